// Command dwca-download is the composition root for the Darwin Core
// Archive download pipeline: it loads configuration, builds the
// iNaturalist client and the optional progress event mirror, and drives
// the Download Orchestrator to a finished archive on disk.
//
// Filter criteria are supplied either as a single query string matching
// the iNaturalist observations endpoint's own parameter names, or as a
// handful of discrete flags for the common cases. The two are mutually
// exclusive; combining them is a usage error.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dwca-toolkit/downloader/internal/config"
	"github.com/dwca-toolkit/downloader/internal/eventbus"
	"github.com/dwca-toolkit/downloader/internal/inatclient"
	"github.com/dwca-toolkit/downloader/internal/inatparams"
	"github.com/dwca-toolkit/downloader/internal/logging"
	"github.com/dwca-toolkit/downloader/internal/orchestrator"
	"github.com/dwca-toolkit/downloader/internal/ratelimit"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		query     = flag.String("query", "", "raw iNaturalist observations query string (mutually exclusive with the discrete filter flags)")
		taxon     = flag.String("taxon", "", "taxon name or numeric ID")
		placeID   = flag.String("place-id", "", "place ID")
		user      = flag.String("user", "", "observer username")
		d1        = flag.String("d1", "", "observed-on range start (YYYY-MM-DD)")
		d2        = flag.String("d2", "", "observed-on range end (YYYY-MM-DD)")
		createdD1 = flag.String("created-d1", "", "created-at range start (YYYY-MM-DD)")
		createdD2 = flag.String("created-d2", "", "created-at range end (YYYY-MM-DD)")
		output    = flag.String("output", "", "output archive path, overrides the configured download.output_path")
		bearer    = flag.String("bearer", "", "bearer token for authenticated requests, overrides DWCA_INATURALIST_BEARER")
	)
	flag.Parse()

	if *query != "" && (*taxon != "" || *placeID != "" || *user != "" || *d1 != "" || *d2 != "" || *createdD1 != "" || *createdD2 != "") {
		fmt.Fprintln(os.Stderr, "dwca-download: -query is mutually exclusive with the discrete filter flags")
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("dwca-download: load configuration")
		return 1
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	ratelimit.Configure(cfg.INaturalist.RateLimitInterval)

	outputPath := cfg.Download.OutputPath
	if *output != "" {
		outputPath = *output
	}

	var params inatparams.Params
	if *query != "" {
		params = inatparams.ParseQueryString(*query)
	} else {
		params = inatparams.BuildParams(*taxon, *placeID, *user, *d1, *d2, *createdD1, *createdD2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.ContextWithNewCorrelationID(ctx)

	if cfg.Metrics.Enabled {
		startMetricsServer(cfg.Metrics.ListenAddr)
	}

	clientOpts := []inatclient.Option{}
	if envBearer := os.Getenv("DWCA_INATURALIST_BEARER"); envBearer != "" {
		clientOpts = append(clientOpts, inatclient.WithBearer(envBearer))
	}
	if *bearer != "" {
		clientOpts = append(clientOpts, inatclient.WithBearer(*bearer))
	}
	client := inatclient.New(cfg.INaturalist.BaseURL, cfg.INaturalist.RequestTimeout, clientOpts...)

	orchOpts := []orchestrator.Option{}
	if cfg.EventBus.Enabled {
		pub, err := eventbus.NewPublisher(cfg.EventBus)
		if err != nil {
			logging.Error().Err(err).Msg("eventbus: failed to connect, continuing without progress mirror")
		} else {
			defer pub.Close()
			orchOpts = append(orchOpts, orchestrator.WithEventPublisher(pub))
		}
	}

	orch := orchestrator.New(client, params, cfg.Download.Extensions, cfg.Download.FetchPhotos, orchOpts...)

	logging.Info().Str("correlation_id", logging.CorrelationIDFromContext(ctx)).
		Str("output_path", outputPath).Strs("extensions", cfg.Download.Extensions).
		Bool("fetch_photos", cfg.Download.FetchPhotos).Msg("starting download")

	err = orch.Execute(ctx, outputPath, func(p orchestrator.Progress) {
		logging.Info().Str("stage", string(p.Stage)).
			Int("observations_current", p.ObservationsCurrent).
			Int("observations_total", p.ObservationsTotal).
			Int("photos_current", p.PhotosCurrent).
			Int("photos_total", p.PhotosTotal).
			Msg("progress")
	})
	if err != nil {
		if errors.Is(err, orchestrator.ErrCancelled) {
			logging.Warn().Msg("download cancelled")
			return 130
		}
		logging.Error().Err(err).Msg("download failed")
		return 1
	}

	logging.Info().Str("output_path", outputPath).Msg("download complete")
	return 0
}

func startMetricsServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error().Err(err).Msg("metrics server stopped unexpectedly")
		}
	}()
}
