// Package photofetch concurrently downloads the photos referenced by a
// page of observations into a date-partitioned media tree, with bounded
// parallelism and per-item retry. Failures never abort the batch.
package photofetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dwca-toolkit/downloader/internal/logging"
	"github.com/dwca-toolkit/downloader/internal/metrics"
	"github.com/dwca-toolkit/downloader/internal/models"
)

// maxInFlight bounds concurrent photo downloads. Acquired before any
// local file is created, to cap open file descriptors.
const maxInFlight = 20

const maxAttempts = 3

// backoffBase is the base delay for the 2s, 4s retry schedule.
const backoffBase = 2 * time.Second

// ProgressFunc is invoked once per photo, success or failure, with the
// running count of photos processed so far in this batch.
type ProgressFunc func(processed int)

// Fetcher downloads photo batches into a media root.
type Fetcher struct {
	httpClient *http.Client
}

// New constructs a Fetcher. timeout bounds a single photo download.
func New(timeout time.Duration) *Fetcher {
	return &Fetcher{httpClient: &http.Client{Timeout: timeout}}
}

type photoRef struct {
	id         int
	url        string
	observedOn string
}

// Fetch downloads every photo referenced across obs into mediaRoot,
// returning a map from photo id to the path of the downloaded file
// relative to the archive root (e.g. "media/2024/01/01/456.jpg").
// Photos referenced by more than one observation are downloaded once
// per reference; deduplication is deliberately not performed.
func (f *Fetcher) Fetch(ctx context.Context, obs []*models.Observation, mediaRoot string, progress ProgressFunc) map[int]string {
	refs := collectPhotoRefs(obs)
	result := make(map[int]string, len(refs))
	if len(refs) == 0 {
		return result
	}

	type outcome struct {
		id   int
		path string
		ok   bool
	}

	sem := make(chan struct{}, maxInFlight)
	results := make(chan outcome, len(refs))

	for _, ref := range refs {
		ref := ref
		sem <- struct{}{}
		go func() {
			defer func() { <-sem }()
			p, err := f.downloadWithRetry(ctx, ref, mediaRoot)
			if err != nil {
				logging.Warn().Err(err).Int("photo_id", ref.id).Msg("photo download failed, skipping")
				metrics.PhotosDownloadedTotal.WithLabelValues("failed").Inc()
				results <- outcome{id: ref.id, ok: false}
				return
			}
			metrics.PhotosDownloadedTotal.WithLabelValues("success").Inc()
			results <- outcome{id: ref.id, path: p, ok: true}
		}()
	}

	for i := 0; i < len(refs); i++ {
		o := <-results
		if o.ok {
			result[o.id] = o.path
		}
		if progress != nil {
			progress(i + 1)
		}
	}
	return result
}

func collectPhotoRefs(obs []*models.Observation) []photoRef {
	var refs []photoRef
	for _, o := range obs {
		for _, p := range o.Photos {
			observedOn := "unknown"
			if o.ObservedOn != "" {
				observedOn = o.ObservedOn
			}
			refs = append(refs, photoRef{id: p.ID, url: p.URL, observedOn: observedOn})
		}
	}
	return refs
}

func rewriteToOriginal(url string) string {
	return strings.Replace(url, "square", "original", 1)
}

// targetDir returns the directory for a photo, relative to the media
// root, based on its parent observation's observed-on date: YYYY/MM/DD,
// or unknown if the date does not parse.
func targetDir(observedOn string) string {
	t, err := time.Parse("2006-01-02", observedOn)
	if err != nil {
		return "unknown"
	}
	return path.Join(strconv.Itoa(t.Year()), fmt.Sprintf("%02d", t.Month()), fmt.Sprintf("%02d", t.Day()))
}

func (f *Fetcher) downloadWithRetry(ctx context.Context, ref photoRef, mediaRoot string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		p, err := f.downloadOnce(ctx, ref, mediaRoot)
		if err == nil {
			return p, nil
		}
		lastErr = err
		if attempt == maxAttempts {
			break
		}
		delay := backoffBase * time.Duration(1<<(attempt-1))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", lastErr
}

func (f *Fetcher) downloadOnce(ctx context.Context, ref photoRef, mediaRoot string) (string, error) {
	relDir := targetDir(ref.observedOn)
	absDir := filepath.Join(mediaRoot, relDir)
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return "", fmt.Errorf("photofetch: mkdir %s: %w", absDir, err)
	}

	url := rewriteToOriginal(ref.url)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("photofetch: build request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("photofetch: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("photofetch: %s returned status %d", url, resp.StatusCode)
	}

	fileName := strconv.Itoa(ref.id) + ".jpg"
	absPath := filepath.Join(absDir, fileName)
	tmpPath := absPath + ".part"

	out, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("photofetch: create %s: %w", tmpPath, err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("photofetch: write %s: %w", tmpPath, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("photofetch: close %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, absPath); err != nil {
		return "", fmt.Errorf("photofetch: rename %s: %w", tmpPath, err)
	}

	return path.Join("media", filepath.ToSlash(relDir), fileName), nil
}
