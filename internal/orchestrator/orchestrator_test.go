package orchestrator

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dwca-toolkit/downloader/internal/inatparams"
	"github.com/dwca-toolkit/downloader/internal/models"
	"github.com/dwca-toolkit/downloader/internal/photofetch"
	"github.com/dwca-toolkit/downloader/internal/ratelimit"
)

func TestMain(m *testing.M) {
	ratelimit.Configure(5 * time.Millisecond)
	os.Exit(m.Run())
}

type pageScript struct {
	pages [][]*models.Observation
	total int
	calls int
}

func (p *pageScript) FetchObservations(ctx context.Context, params inatparams.Params, idBelow string) (*models.ObservationsPage, error) {
	if p.calls >= len(p.pages) {
		return &models.ObservationsPage{TotalResults: p.total, Results: nil}, nil
	}
	results := p.pages[p.calls]
	p.calls++
	return &models.ObservationsPage{TotalResults: p.total, Results: results}, nil
}

func (p *pageScript) FetchTaxa(ctx context.Context, ids []int) ([]*models.Taxon, error) {
	var out []*models.Taxon
	for _, id := range ids {
		out = append(out, &models.Taxon{ID: id, Name: taxonName(id), Rank: taxonRank(id)})
	}
	return out, nil
}

func taxonName(id int) string {
	switch id {
	case 48460:
		return "Life"
	case 47126:
		return "Plantae"
	default:
		return "Unknown"
	}
}

func taxonRank(id int) string {
	switch id {
	case 48460:
		return "stateofmatter"
	case 47126:
		return "kingdom"
	default:
		return "unknown"
	}
}

func readZipEntries(t *testing.T, path string) map[string][]byte {
	t.Helper()
	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	defer zr.Close()
	out := make(map[string][]byte)
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open entry %s: %v", f.Name, err)
		}
		data, _ := io.ReadAll(rc)
		rc.Close()
		out[f.Name] = data
	}
	return out
}

func csvRows(t *testing.T, data []byte) [][]string {
	t.Helper()
	r := csv.NewReader(strings.NewReader(string(data)))
	rows, err := r.ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	return rows
}

func TestExecuteEmptyResult(t *testing.T) {
	client := &pageScript{pages: nil, total: 0}
	o := New(client, inatparams.Params{TaxonID: []string{"99999999"}}, nil, false)

	target := filepath.Join(t.TempDir(), "out.zip")
	if err := o.Execute(context.Background(), target, nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	entries := readZipEntries(t, target)
	for _, want := range []string{"meta.xml", "eml.xml", "occurrence.csv"} {
		if _, ok := entries[want]; !ok {
			t.Errorf("missing %q in empty-result archive", want)
		}
	}
	rows := csvRows(t, entries["occurrence.csv"])
	if len(rows) != 1 {
		t.Errorf("expected header-only occurrence.csv, got %d rows", len(rows))
	}
}

func TestExecuteSingleObservationNoPhotosNoExtensions(t *testing.T) {
	login := "alice"
	captive := false
	obs := &models.Observation{
		ID:         123456,
		User:       &models.User{ID: 1, Login: login},
		ObservedOn: "2024-01-01",
		CreatedAt:  "2024-01-01T00:00:00Z",
		UpdatedAt:  "2024-01-01T00:00:00Z",
		Captive:    &captive,
		Geojson:    &models.Geometry{Type: "Point", Coordinates: []float64{-122.4194, 37.7749}},
		Taxon: &models.Taxon{
			ID: 47126, Name: "Plantae", Rank: "kingdom",
			AncestorIDs: []int{48460, 47126},
		},
	}
	client := &pageScript{pages: [][]*models.Observation{{obs}}, total: 1}
	o := New(client, inatparams.Params{}, nil, false)

	target := filepath.Join(t.TempDir(), "out.zip")
	if err := o.Execute(context.Background(), target, nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	entries := readZipEntries(t, target)
	rows := csvRows(t, entries["occurrence.csv"])
	if len(rows) != 2 {
		t.Fatalf("expected header + 1 row, got %d", len(rows))
	}
	row := rows[1]
	if row[4] != "37.7749" || row[5] != "-122.4194" {
		t.Errorf("coordinates = (%s, %s), want (37.7749, -122.4194)", row[4], row[5])
	}
	if row[2] != "alice" {
		t.Errorf("recordedBy = %q, want alice", row[2])
	}
	if row[20] != "native" {
		t.Errorf("establishmentMeans = %q, want native", row[20])
	}
	if row[10] != "Plantae" {
		t.Errorf("kingdom = %q, want Plantae", row[10])
	}
	if row[8] != "accepted" {
		t.Errorf("taxonomicStatus = %q, want accepted", row[8])
	}
}

func TestExecutePrivateCoordsOverridePublic(t *testing.T) {
	lng10, lat20 := 10.0, 20.0
	acc5, acc500 := 5.0, 500.0
	obs := &models.Observation{
		ID:                 1,
		ObservedOn:         "2024-01-01",
		CreatedAt:          "2024-01-01T00:00:00Z",
		UpdatedAt:          "2024-01-01T00:00:00Z",
		Geojson:            &models.Geometry{Coordinates: []float64{0, 0}},
		PrivateGeojson:     &models.Geometry{Coordinates: []float64{lng10, lat20}},
		PositionalAccuracy: &acc5,
		PublicPositionalAccuracy: &acc500,
	}
	client := &pageScript{pages: [][]*models.Observation{{obs}}, total: 1}
	o := New(client, inatparams.Params{}, nil, false)

	target := filepath.Join(t.TempDir(), "out.zip")
	if err := o.Execute(context.Background(), target, nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	entries := readZipEntries(t, target)
	rows := csvRows(t, entries["occurrence.csv"])
	row := rows[1]
	if row[4] != "20" || row[5] != "10" {
		t.Errorf("coordinates = (%s, %s), want (20, 10)", row[4], row[5])
	}
	if row[23] != "5" {
		t.Errorf("coordinateUncertaintyInMeters = %q, want 5", row[23])
	}
	if row[28] != "" {
		t.Errorf("informationWithheld = %q, want empty", row[28])
	}
}

func TestExecuteGeoprivacyObscuredNoPrivateCoords(t *testing.T) {
	obscured := "obscured"
	obs := &models.Observation{
		ID:         1,
		ObservedOn: "2024-01-01",
		CreatedAt:  "2024-01-01T00:00:00Z",
		UpdatedAt:  "2024-01-01T00:00:00Z",
		Geojson:    &models.Geometry{Coordinates: []float64{0, 0}},
		Geoprivacy: &obscured,
	}
	client := &pageScript{pages: [][]*models.Observation{{obs}}, total: 1}
	o := New(client, inatparams.Params{}, nil, false)

	target := filepath.Join(t.TempDir(), "out.zip")
	if err := o.Execute(context.Background(), target, nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	entries := readZipEntries(t, target)
	rows := csvRows(t, entries["occurrence.csv"])
	row := rows[1]
	if row[28] != "Coordinates obscured by the observer" {
		t.Errorf("informationWithheld = %q", row[28])
	}
	if row[4] != "0" || row[5] != "0" {
		t.Errorf("coordinates = (%s, %s), want (0, 0)", row[4], row[5])
	}
}

func TestExecutePaginationAndCancellation(t *testing.T) {
	page1 := make([]*models.Observation, 200)
	page2 := make([]*models.Observation, 200)
	for i := range page1 {
		page1[i] = &models.Observation{ID: 1000 + i, ObservedOn: "2024-01-01", CreatedAt: "2024-01-01T00:00:00Z", UpdatedAt: "2024-01-01T00:00:00Z"}
	}
	for i := range page2 {
		page2[i] = &models.Observation{ID: 2000 + i, ObservedOn: "2024-01-01", CreatedAt: "2024-01-01T00:00:00Z", UpdatedAt: "2024-01-01T00:00:00Z"}
	}
	client := &pageScript{pages: [][]*models.Observation{page1, page2}, total: 400}

	var flag atomic.Bool
	var pagesSeen atomic.Int32
	o := New(client, inatparams.Params{}, nil, false, WithCancellationFlag(&flag))

	target := filepath.Join(t.TempDir(), "out.zip")
	err := o.Execute(context.Background(), target, func(p Progress) {
		if p.Stage == StageFetching {
			pagesSeen.Add(1)
			if pagesSeen.Load() == 1 {
				flag.Store(true)
			}
		}
	})
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	if _, statErr := os.Stat(target); !os.IsNotExist(statErr) {
		t.Error("expected no finished ZIP at target path after cancellation")
	}
}

func TestExecutePhotosEnabled(t *testing.T) {
	var imgServer *httptest.Server
	imgServer = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "original") {
			t.Errorf("photofetch requested %q, want rewritten to original", r.URL.Path)
		}
		w.Write(make([]byte, 67))
	}))
	defer imgServer.Close()

	obs := &models.Observation{
		ID:         1,
		ObservedOn: "2024-01-01",
		CreatedAt:  "2024-01-01T00:00:00Z",
		UpdatedAt:  "2024-01-01T00:00:00Z",
		Photos:     []*models.Photo{{ID: 456, URL: imgServer.URL + "/square.jpg"}},
	}
	client := &pageScript{pages: [][]*models.Observation{{obs}}, total: 1}
	fetcher := photofetch.New(5 * time.Second)
	o := New(client, inatparams.Params{}, []string{"multimedia"}, true, WithPhotoFetcher(fetcher))

	target := filepath.Join(t.TempDir(), "out.zip")
	if err := o.Execute(context.Background(), target, nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	entries := readZipEntries(t, target)
	mediaKey := "media/2024/01/01/456.jpg"
	data, ok := entries[mediaKey]
	if !ok {
		t.Fatalf("missing %q; entries: %v", mediaKey, mapKeys(entries))
	}
	if len(data) != 67 {
		t.Errorf("media length = %d, want 67", len(data))
	}

	mmRows := csvRows(t, entries["multimedia.csv"])
	if len(mmRows) != 2 {
		t.Fatalf("expected header + 1 multimedia row, got %d", len(mmRows))
	}
	if mmRows[1][3] != mediaKey {
		t.Errorf("multimedia identifier = %q, want %q", mmRows[1][3], mediaKey)
	}
}

func mapKeys(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func TestExecuteWaitsOnRateLimiterBetweenPages(t *testing.T) {
	page1 := []*models.Observation{{ID: 1, ObservedOn: "2024-01-01", CreatedAt: "2024-01-01T00:00:00Z", UpdatedAt: "2024-01-01T00:00:00Z"}}
	page2 := []*models.Observation{{ID: 2, ObservedOn: "2024-01-01", CreatedAt: "2024-01-01T00:00:00Z", UpdatedAt: "2024-01-01T00:00:00Z"}}
	client := &pageScript{pages: [][]*models.Observation{page1, page2}, total: 2}
	o := New(client, inatparams.Params{}, nil, false)

	target := filepath.Join(t.TempDir(), "out.zip")
	start := time.Now()
	if err := o.Execute(context.Background(), target, nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	// TestMain configures a 5ms interval; the wait after page 2 cannot
	// return sooner than that after the wait after page 1.
	if elapsed := time.Since(start); elapsed < 5*time.Millisecond {
		t.Errorf("elapsed %v across two rate-limited page fetches, want >= 5ms", elapsed)
	}
}

func TestExecutePropagatesFetchError(t *testing.T) {
	client := &erroringClient{}
	o := New(client, inatparams.Params{}, nil, false)
	target := filepath.Join(t.TempDir(), "out.zip")
	err := o.Execute(context.Background(), target, nil)
	if err == nil {
		t.Fatal("expected error from Execute when fetch fails")
	}
	if _, statErr := os.Stat(target); !os.IsNotExist(statErr) {
		t.Error("expected no ZIP produced on fetch error")
	}
}

type erroringClient struct{}

func (erroringClient) FetchObservations(ctx context.Context, params inatparams.Params, idBelow string) (*models.ObservationsPage, error) {
	return nil, errFetch
}
func (erroringClient) FetchTaxa(ctx context.Context, ids []int) ([]*models.Taxon, error) {
	return nil, nil
}

var errFetch = &fetchFailure{}

type fetchFailure struct{}

func (e *fetchFailure) Error() string { return "simulated fetch failure" }

func TestExecuteKeysetCursorAdvancesByLastObservationID(t *testing.T) {
	page1 := []*models.Observation{
		{ID: 500, ObservedOn: "2024-01-01", CreatedAt: "2024-01-01T00:00:00Z", UpdatedAt: "2024-01-01T00:00:00Z"},
		{ID: 300, ObservedOn: "2024-01-01", CreatedAt: "2024-01-01T00:00:00Z", UpdatedAt: "2024-01-01T00:00:00Z"},
	}
	client := &cursorCapturingClient{pages: [][]*models.Observation{page1, nil}}
	o := New(client, inatparams.Params{}, nil, false)
	target := filepath.Join(t.TempDir(), "out.zip")
	if err := o.Execute(context.Background(), target, nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(client.idBelowSeen) != 2 {
		t.Fatalf("expected 2 fetch calls, got %d", len(client.idBelowSeen))
	}
	if client.idBelowSeen[0] != "" {
		t.Errorf("first call id_below = %q, want empty", client.idBelowSeen[0])
	}
	if client.idBelowSeen[1] != strconv.Itoa(300) {
		t.Errorf("second call id_below = %q, want 300", client.idBelowSeen[1])
	}
}

type cursorCapturingClient struct {
	pages       [][]*models.Observation
	calls       int
	idBelowSeen []string
}

func (c *cursorCapturingClient) FetchObservations(ctx context.Context, params inatparams.Params, idBelow string) (*models.ObservationsPage, error) {
	c.idBelowSeen = append(c.idBelowSeen, idBelow)
	if c.calls >= len(c.pages) {
		return &models.ObservationsPage{}, nil
	}
	results := c.pages[c.calls]
	c.calls++
	return &models.ObservationsPage{TotalResults: 2, Results: results}, nil
}

func (c *cursorCapturingClient) FetchTaxa(ctx context.Context, ids []int) ([]*models.Taxon, error) {
	return nil, nil
}
