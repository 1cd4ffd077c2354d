// Package taxonomy resolves the full set of ancestor taxa referenced by
// a page of observations, in chunks bounded by the remote catalog's
// per-request limit, with retry and backoff per chunk.
package taxonomy

import (
	"context"
	"fmt"
	"time"

	"github.com/dwca-toolkit/downloader/internal/logging"
	"github.com/dwca-toolkit/downloader/internal/metrics"
	"github.com/dwca-toolkit/downloader/internal/models"
	"github.com/dwca-toolkit/downloader/internal/ratelimit"
)

// chunkSize is the taxa endpoint's per-request identifier limit.
const chunkSize = 500

const maxAttempts = 3

// backoffBase is the base delay for the 1s, 2s retry schedule.
const backoffBase = time.Second

// ResolverFailed reports that a taxa chunk could not be fetched after
// maxAttempts tries.
type ResolverFailed struct {
	ChunkIDs []int
	Err      error
}

func (e *ResolverFailed) Error() string {
	return fmt.Sprintf("taxonomy: resolving %d taxa failed: %v", len(e.ChunkIDs), e.Err)
}
func (e *ResolverFailed) Unwrap() error { return e.Err }

// TaxaFetcher is the HTTP Client Facade's taxa operation, narrowed to
// the one method this package needs.
type TaxaFetcher interface {
	FetchTaxa(ctx context.Context, ids []int) ([]*models.Taxon, error)
}

// Resolve collects the union of ancestor taxon ids referenced by obs
// (from both the primary classification and every identification), and
// resolves them via client in chunks of at most chunkSize, returning a
// lookup table keyed by taxon id. An empty id set is a no-op.
func Resolve(ctx context.Context, client TaxaFetcher, obs []*models.Observation) (map[int]*models.Taxon, error) {
	ids := collectAncestorIDs(obs)
	result := make(map[int]*models.Taxon, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	chunks := chunk(ids, chunkSize)
	start := time.Now()
	defer func() { metrics.TaxaResolutionDuration.Observe(time.Since(start).Seconds()) }()

	for i, c := range chunks {
		if i > 0 {
			if err := ratelimit.WaitForSlot(ctx); err != nil {
				return nil, err
			}
		}
		taxa, err := resolveChunkWithRetry(ctx, client, c)
		if err != nil {
			return nil, err
		}
		for _, t := range taxa {
			result[t.ID] = t
		}
	}
	return result, nil
}

func collectAncestorIDs(obs []*models.Observation) []int {
	seen := make(map[int]struct{})
	var ids []int
	add := func(id int) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for _, o := range obs {
		if o.Taxon != nil {
			for _, id := range o.Taxon.AncestorIDs {
				add(id)
			}
		}
		for _, ident := range o.Identifications {
			if ident.Taxon != nil {
				for _, id := range ident.Taxon.AncestorIDs {
					add(id)
				}
			}
		}
	}
	return ids
}

func chunk(ids []int, size int) [][]int {
	var chunks [][]int
	for i := 0; i < len(ids); i += size {
		end := i + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[i:end])
	}
	return chunks
}

func resolveChunkWithRetry(ctx context.Context, client TaxaFetcher, ids []int) ([]*models.Taxon, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		taxa, err := client.FetchTaxa(ctx, ids)
		if err == nil {
			return taxa, nil
		}
		lastErr = err
		logging.Warn().Err(err).Int("attempt", attempt).Int("chunk_size", len(ids)).Msg("taxa chunk fetch failed")
		if attempt == maxAttempts {
			break
		}
		delay := backoffBase * time.Duration(1<<(attempt-1))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, &ResolverFailed{ChunkIDs: ids, Err: lastErr}
}
