package inatclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dwca-toolkit/downloader/internal/inatparams"
)

func TestFetchObservationsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/observations" {
			t.Errorf("path = %q, want /observations", r.URL.Path)
		}
		if r.URL.Query().Get("per_page") != "200" {
			t.Errorf("per_page = %q, want 200", r.URL.Query().Get("per_page"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"total_results":1,"results":[{"id":1,"observed_on":"2024-01-01","created_at":"2024-01-01T00:00:00Z","updated_at":"2024-01-01T00:00:00Z"}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	page, err := c.FetchObservations(context.Background(), inatparams.Params{}, "")
	if err != nil {
		t.Fatalf("FetchObservations: %v", err)
	}
	if page.TotalResults != 1 || len(page.Results) != 1 {
		t.Errorf("page = %+v, want TotalResults=1 len(Results)=1", page)
	}
}

func TestFetchObservationsNon2xxReturnsResponseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	_, err := c.FetchObservations(context.Background(), inatparams.Params{}, "")
	var respErr *ResponseError
	if !asResponseError(err, &respErr) {
		t.Fatalf("err = %v, want *ResponseError", err)
	}
	if respErr.Status != http.StatusInternalServerError {
		t.Errorf("Status = %d, want 500", respErr.Status)
	}
}

func TestFetchObservationsDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	_, err := c.FetchObservations(context.Background(), inatparams.Params{}, "")
	if _, ok := err.(*DecodeError); !ok {
		t.Fatalf("err = %v (%T), want *DecodeError", err, err)
	}
}

type stubRefresher struct {
	calls  int32
	bearer string
	err    error
}

func (s *stubRefresher) Refresh(ctx context.Context) (string, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.bearer, s.err
}

func TestFetchObservationsRetriesOnceAfter401(t *testing.T) {
	var attempt int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempt, 1)
		if n == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Header.Get("Authorization") != "Bearer fresh-token" {
			t.Errorf("Authorization = %q, want Bearer fresh-token", r.Header.Get("Authorization"))
		}
		w.Write([]byte(`{"total_results":0,"results":[]}`))
	}))
	defer srv.Close()

	refresher := &stubRefresher{bearer: "fresh-token"}
	c := New(srv.URL, 5*time.Second, WithBearer("stale-token"), WithCredentialRefresher(refresher))

	page, err := c.FetchObservations(context.Background(), inatparams.Params{}, "")
	if err != nil {
		t.Fatalf("FetchObservations: %v", err)
	}
	if page.TotalResults != 0 {
		t.Errorf("TotalResults = %d, want 0", page.TotalResults)
	}
	if atomic.LoadInt32(&refresher.calls) != 1 {
		t.Errorf("refresher called %d times, want 1", refresher.calls)
	}
	if atomic.LoadInt32(&attempt) != 2 {
		t.Errorf("server hit %d times, want 2", attempt)
	}
}

func TestFetchObservationsDoesNotRetryTwiceOn401(t *testing.T) {
	var attempt int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempt, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	refresher := &stubRefresher{bearer: "still-bad"}
	c := New(srv.URL, 5*time.Second, WithCredentialRefresher(refresher))

	_, err := c.FetchObservations(context.Background(), inatparams.Params{}, "")
	var respErr *ResponseError
	if !asResponseError(err, &respErr) {
		t.Fatalf("err = %v, want *ResponseError", err)
	}
	if atomic.LoadInt32(&attempt) != 2 {
		t.Errorf("server hit %d times, want exactly 2 (initial + one retry)", attempt)
	}
}

func TestFetchTaxaJoinsIDs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("id"); got != "1,2,3" {
			t.Errorf("id = %q, want 1,2,3", got)
		}
		w.Write([]byte(`{"total_results":1,"results":[{"id":1,"name":"Aves","rank":"class"}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	taxa, err := c.FetchTaxa(context.Background(), []int{1, 2, 3})
	if err != nil {
		t.Fatalf("FetchTaxa: %v", err)
	}
	if len(taxa) != 1 || taxa[0].Name != "Aves" {
		t.Errorf("taxa = %+v, want one taxon named Aves", taxa)
	}
}

func TestFetchTaxaEmptyIDsSkipsRequest(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	taxa, err := c.FetchTaxa(context.Background(), nil)
	if err != nil || taxa != nil {
		t.Fatalf("FetchTaxa(nil) = %v, %v, want nil, nil", taxa, err)
	}
	if called {
		t.Error("server should not have been called for empty id list")
	}
}

func TestTransportErrorOnUnreachableHost(t *testing.T) {
	c := New("http://127.0.0.1:1", 200*time.Millisecond)
	_, err := c.FetchObservations(context.Background(), inatparams.Params{}, "")
	if _, ok := err.(*TransportError); !ok {
		t.Fatalf("err = %v (%T), want *TransportError", err, err)
	}
}

func TestJoinInts(t *testing.T) {
	got := joinInts([]int{7, 42, 100})
	want := "7,42,100"
	if got != want {
		t.Errorf("joinInts = %q, want %q", got, want)
	}
	if got := joinInts(nil); got != "" {
		t.Errorf("joinInts(nil) = %q, want empty", got)
	}
}

func asResponseError(err error, target **ResponseError) bool {
	re, ok := err.(*ResponseError)
	if !ok {
		return false
	}
	*target = re
	return true
}
