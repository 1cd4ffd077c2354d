// Package orchestrator is the Download Orchestrator: the top-level
// coordinator that iterates a keyset-paginated observation catalog,
// resolves taxonomy, maps rows, fetches photos, and drives the Archive
// Writer to a finished ZIP. It runs entirely on the calling goroutine;
// callers that want it backgrounded start their own.
package orchestrator

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/dwca-toolkit/downloader/internal/archive"
	"github.com/dwca-toolkit/downloader/internal/inatparams"
	"github.com/dwca-toolkit/downloader/internal/logging"
	"github.com/dwca-toolkit/downloader/internal/mapper"
	"github.com/dwca-toolkit/downloader/internal/metrics"
	"github.com/dwca-toolkit/downloader/internal/models"
	"github.com/dwca-toolkit/downloader/internal/photofetch"
	"github.com/dwca-toolkit/downloader/internal/ratelimit"
	"github.com/dwca-toolkit/downloader/internal/taxonomy"
)

// defaultPhotoTimeout bounds a single photo download when the caller
// does not inject a PhotoFetcher of its own.
const defaultPhotoTimeout = 30 * time.Second

// photoTotalDecreaseFactor compensates for an empirically observed
// decreasing-photos trend across the catalog: later pages tend to
// reference fewer photos per observation than earlier ones, so a naive
// extrapolation from a single page overshoots.
const photoTotalDecreaseFactor = 0.9

// Client is the subset of the HTTP Client Facade the orchestrator and
// the taxonomy resolver need.
type Client interface {
	FetchObservations(ctx context.Context, params inatparams.Params, idBelow string) (*models.ObservationsPage, error)
	FetchTaxa(ctx context.Context, ids []int) ([]*models.Taxon, error)
}

// PhotoFetcher is the Photo Fetcher surface the orchestrator drives per
// page when photo download is enabled.
type PhotoFetcher interface {
	Fetch(ctx context.Context, obs []*models.Observation, mediaRoot string, progress photofetch.ProgressFunc) map[int]string
}

// EventPublisher mirrors progress events to an out-of-process observer.
// A nil EventPublisher is a valid no-op; the orchestrator never lets a
// publish failure affect the archive it produces.
type EventPublisher interface {
	Publish(ctx context.Context, p Progress)
}

// Orchestrator is the Download Orchestrator. One instance performs
// exactly one run; construct a fresh one per Execute call.
type Orchestrator struct {
	client       Client
	params       inatparams.Params
	extensions   map[string]bool
	extensionList []string
	fetchPhotos  bool

	photoFetcher PhotoFetcher
	cancelFlag   *atomic.Bool
	eventPublisher EventPublisher
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPhotoFetcher overrides the default Photo Fetcher. Tests inject a
// fake; production callers normally accept the default.
func WithPhotoFetcher(pf PhotoFetcher) Option {
	return func(o *Orchestrator) { o.photoFetcher = pf }
}

// WithCancellationFlag installs a shared cancellation flag, checked
// alongside ctx cancellation at the top of each page iteration. This is
// accepted for parity with callers that model cancellation as a bare
// flag rather than a context; ctx cancellation alone is sufficient for
// new callers.
func WithCancellationFlag(flag *atomic.Bool) Option {
	return func(o *Orchestrator) { o.cancelFlag = flag }
}

// WithEventPublisher installs the optional progress event mirror.
func WithEventPublisher(p EventPublisher) Option {
	return func(o *Orchestrator) { o.eventPublisher = p }
}

// New constructs an Orchestrator. The bearer credential, if any, is
// configured on client before it is passed here — the orchestrator has
// no notion of authentication of its own.
func New(client Client, params inatparams.Params, extensions []string, fetchPhotos bool, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client:        client,
		params:        params,
		extensions:    make(map[string]bool, len(extensions)),
		extensionList: extensions,
		fetchPhotos:   fetchPhotos,
	}
	for _, e := range extensions {
		o.extensions[e] = true
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.photoFetcher == nil {
		o.photoFetcher = photofetch.New(defaultPhotoTimeout)
	}
	return o
}

func (o *Orchestrator) cancelled(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	return o.cancelFlag != nil && o.cancelFlag.Load()
}

func (o *Orchestrator) emit(ctx context.Context, p Progress, onProgress ProgressFunc) {
	if onProgress != nil {
		onProgress(p)
	}
	if o.eventPublisher != nil {
		o.eventPublisher.Publish(ctx, p)
	}
}

// Execute runs the full page loop to completion (or until cancellation
// or an unrecoverable error) and finalizes the archive at outputPath.
// On any non-ErrCancelled error, outputPath is left undefined —
// typically absent, since Finalize did not run.
func (o *Orchestrator) Execute(ctx context.Context, outputPath string, onProgress ProgressFunc) error {
	criteria := inatparams.ExtractCriteria(o.params)
	abstractLines := make([]string, 0, len(criteria)+1)
	abstractLines = append(abstractLines, criteria...)
	if o.fetchPhotos {
		abstractLines = append(abstractLines, "Photos downloaded and included in archive")
	}

	writer, err := archive.New(abstractLines, o.extensionList)
	if err != nil {
		return fmt.Errorf("orchestrator: open archive writer: %w", err)
	}

	var (
		idBelow             string
		firstPage           = true
		observationsCurrent int
		observationsTotal   int
		photosCurrentBase   int
		photosTotalEstimate float64
	)

	for {
		if o.cancelled(ctx) {
			writer.Close()
			return ErrCancelled
		}

		page, err := o.client.FetchObservations(ctx, o.params, idBelow)
		if err != nil {
			writer.Close()
			return fmt.Errorf("orchestrator: fetch observations: %w", err)
		}
		if len(page.Results) == 0 {
			break
		}
		metrics.PagesProcessedTotal.Inc()

		if firstPage {
			observationsTotal = page.TotalResults
			firstPage = false
		}

		taxa, err := taxonomy.Resolve(ctx, o.client, page.Results)
		if err != nil {
			writer.Close()
			return fmt.Errorf("orchestrator: resolve taxonomy: %w", err)
		}

		occRows := make([][]string, len(page.Results))
		for i, obs := range page.Results {
			occRows[i] = mapper.Occurrence(obs, taxa)
		}
		if err := writer.AddOccurrences(occRows); err != nil {
			writer.Close()
			return fmt.Errorf("orchestrator: write occurrence rows: %w", err)
		}
		metrics.ArchiveRowsTotal.WithLabelValues("occurrence").Add(float64(len(occRows)))

		observationsCurrent += len(page.Results)
		o.emit(ctx, Progress{
			Stage:               StageFetching,
			ObservationsCurrent: observationsCurrent,
			ObservationsTotal:   observationsTotal,
			PhotosCurrent:       photosCurrentBase,
			PhotosTotal:         int(photosTotalEstimate),
		}, onProgress)

		var mediaPaths map[int]string
		if o.fetchPhotos {
			photosInPage := countPhotos(page.Results)
			if photosInPage > 0 && observationsTotal > 0 {
				avgPerObs := float64(photosInPage) / float64(len(page.Results))
				estimate := avgPerObs * float64(observationsTotal) * photoTotalDecreaseFactor
				if estimate > photosTotalEstimate {
					photosTotalEstimate = estimate
				}
			}

			mediaPaths = o.photoFetcher.Fetch(ctx, page.Results, writer.MediaDir(), func(processed int) {
				o.emit(ctx, Progress{
					Stage:               StageDownloadingPhotos,
					ObservationsCurrent: observationsCurrent,
					ObservationsTotal:   observationsTotal,
					PhotosCurrent:       photosCurrentBase + processed,
					PhotosTotal:         int(photosTotalEstimate),
				}, onProgress)
			})
			photosCurrentBase += photosInPage
		}

		if err := o.writeExtensions(writer, page.Results, taxa, mediaPaths); err != nil {
			writer.Close()
			return fmt.Errorf("orchestrator: write extension rows: %w", err)
		}

		idBelow = strconv.Itoa(page.Results[len(page.Results)-1].ID)

		if err := ratelimit.WaitForSlot(ctx); err != nil {
			writer.Close()
			return fmt.Errorf("orchestrator: rate limiter wait: %w", err)
		}
	}

	o.emit(ctx, Progress{
		Stage:               StageBuilding,
		ObservationsCurrent: observationsCurrent,
		ObservationsTotal:   observationsTotal,
		PhotosCurrent:       photosCurrentBase,
		PhotosTotal:         int(photosTotalEstimate),
	}, onProgress)

	if err := writer.Finalize(outputPath); err != nil {
		return fmt.Errorf("orchestrator: finalize archive: %w", err)
	}
	logging.Info().Int("observations", observationsCurrent).Str("output_path", outputPath).Msg("archive finalized")
	return nil
}

func (o *Orchestrator) writeExtensions(writer *archive.Writer, obs []*models.Observation, taxa map[int]*models.Taxon, mediaPaths map[int]string) error {
	if o.extensions[archive.ExtMultimedia] {
		var rows [][]string
		for _, ob := range obs {
			for _, photo := range ob.Photos {
				rows = append(rows, mapper.Multimedia(ob, photo, mediaPaths))
			}
		}
		if err := writer.AddMultimedia(rows); err != nil {
			return err
		}
		metrics.ArchiveRowsTotal.WithLabelValues("multimedia").Add(float64(len(rows)))
	}

	if o.extensions[archive.ExtAudiovisual] {
		var rows [][]string
		for _, ob := range obs {
			for _, photo := range ob.Photos {
				rows = append(rows, mapper.Audiovisual(ob, photo, mediaPaths))
			}
		}
		if err := writer.AddAudiovisual(rows); err != nil {
			return err
		}
		metrics.ArchiveRowsTotal.WithLabelValues("audiovisual").Add(float64(len(rows)))
	}

	if o.extensions[archive.ExtIdentifications] {
		var rows [][]string
		for _, ob := range obs {
			for _, ident := range ob.Identifications {
				rows = append(rows, mapper.Identification(ob, ident, taxa))
			}
		}
		if err := writer.AddIdentifications(rows); err != nil {
			return err
		}
		metrics.ArchiveRowsTotal.WithLabelValues("identification").Add(float64(len(rows)))
	}

	return nil
}

func countPhotos(obs []*models.Observation) int {
	n := 0
	for _, o := range obs {
		n += len(o.Photos)
	}
	return n
}
