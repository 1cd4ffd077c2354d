package photofetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dwca-toolkit/downloader/internal/models"
)

func TestFetchDownloadsAndLaysOutByDate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fake-jpeg-bytes"))
	}))
	defer srv.Close()

	obs := []*models.Observation{
		{
			ID:         1,
			ObservedOn: "2024-01-01",
			Photos:     []*models.Photo{{ID: 456, URL: srv.URL + "/square.jpg"}},
		},
	}

	dir := t.TempDir()
	f := New(5 * time.Second)
	result := f.Fetch(context.Background(), obs, dir, nil)

	want := "media/2024/01/01/456.jpg"
	if result[456] != want {
		t.Fatalf("result[456] = %q, want %q", result[456], want)
	}
	if _, err := os.Stat(filepath.Join(dir, "2024", "01", "01", "456.jpg")); err != nil {
		t.Errorf("expected file on disk: %v", err)
	}
}

func TestFetchUsesUnknownDirForUnparseableDate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	obs := []*models.Observation{
		{ID: 1, ObservedOn: "", Photos: []*models.Photo{{ID: 1, URL: srv.URL + "/square.jpg"}}},
	}
	dir := t.TempDir()
	f := New(5 * time.Second)
	result := f.Fetch(context.Background(), obs, dir, nil)

	if result[1] != "media/unknown/1.jpg" {
		t.Errorf("result[1] = %q, want media/unknown/1.jpg", result[1])
	}
}

func TestFetchFailureOmitsFromResultButCallsProgress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	obs := []*models.Observation{
		{ID: 1, ObservedOn: "2024-01-01", Photos: []*models.Photo{{ID: 1, URL: srv.URL + "/square.jpg"}}},
	}
	dir := t.TempDir()
	f := New(2 * time.Second)

	var calls int32
	result := f.Fetch(context.Background(), obs, dir, func(processed int) {
		atomic.AddInt32(&calls, 1)
	})

	if _, ok := result[1]; ok {
		t.Error("expected failed photo to be omitted from result map")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("progress called %d times, want 1", calls)
	}
}

func TestFetchEmptyBatchReturnsEmptyMap(t *testing.T) {
	f := New(time.Second)
	result := f.Fetch(context.Background(), nil, t.TempDir(), nil)
	if len(result) != 0 {
		t.Errorf("expected empty result, got %d entries", len(result))
	}
}

func TestFetchRespectsConcurrencyCap(t *testing.T) {
	var inFlight int32
	var maxSeen int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			cur := atomic.LoadInt32(&maxSeen)
			if n <= cur || atomic.CompareAndSwapInt32(&maxSeen, cur, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	var photos []*models.Photo
	for i := 0; i < 60; i++ {
		photos = append(photos, &models.Photo{ID: i, URL: srv.URL + "/square.jpg"})
	}
	obs := []*models.Observation{{ID: 1, ObservedOn: "2024-01-01", Photos: photos}}

	f := New(5 * time.Second)
	f.Fetch(context.Background(), obs, t.TempDir(), nil)

	if maxSeen > maxInFlight {
		t.Errorf("observed %d concurrent downloads, want <= %d", maxSeen, maxInFlight)
	}
}

func TestRewriteToOriginal(t *testing.T) {
	got := rewriteToOriginal("https://example.com/p/1/square.jpg")
	want := "https://example.com/p/1/original.jpg"
	if got != want {
		t.Errorf("rewriteToOriginal = %q, want %q", got, want)
	}
}
