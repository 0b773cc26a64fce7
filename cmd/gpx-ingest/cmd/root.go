package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ojparkinson/gpx-ingest/internal/config"
	"github.com/ojparkinson/gpx-ingest/internal/dashboard"
	"github.com/ojparkinson/gpx-ingest/internal/geodesy"
	"github.com/ojparkinson/gpx-ingest/internal/messaging"
	"github.com/ojparkinson/gpx-ingest/internal/metrics"
	"github.com/ojparkinson/gpx-ingest/internal/persistance"
	"github.com/ojparkinson/gpx-ingest/internal/processing"
	"github.com/ojparkinson/gpx-ingest/internal/track"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// NewRootCmd builds the gpx-ingest command tree. The root command loads.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gpx-ingest",
		Short: "Load GPX track logs into a time-series store",
		Long: `gpx-ingest reads recorded GPS track logs (GPX) and loads every point into a
time-series table, one batch per track segment. Speeds missing from the
recording are derived from consecutive positions and timestamps first.

The input may be a single file or a directory of .gpx files. Rows go to
QuestDB by default; InfluxDB and RabbitMQ are also supported with --sink.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runLoad,
	}

	config.RegisterFlags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(newCountCmd())

	return rootCmd
}

// Execute runs the command tree and exits non-zero on failure.
// This is called by main.main(). It only needs to happen once.
func Execute() {
	if err := NewRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	return cfg.Build()
}

// setup resolves configuration and the logger shared by every command.
func setup(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
		return nil, nil, err
	}

	logger, err := newLogger(cfg.Verbose)
	if err != nil {
		log.Printf("Failed to initialize logger: %v", err)
		return nil, nil, err
	}
	return cfg, logger, nil
}

func runLoad(cmd *cobra.Command, _ []string) error {
	startTime := time.Now()

	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := cfg.ValidateLoad(); err != nil {
		logger.Error("Invalid configuration", zap.Error(err), zap.String("action", "Pass --track-name and --input"))
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	files, err := processing.Discover(cfg.Input, cfg.FileAgeThreshold, logger)
	if err != nil {
		logger.Error("File discovery failed", zap.Error(err), zap.String("path", cfg.Input))
		return err
	}
	if len(files) == 0 {
		err := fmt.Errorf("no GPX files found in %s", cfg.Input)
		logger.Error("Nothing to load", zap.Error(err), zap.String("action", "Check the directory holds .gpx files older than --file-age-threshold"))
		return err
	}

	if cfg.Sink == config.SinkQuestDB && cfg.CreateTable {
		schema := persistance.NewSchema(cfg.HTTPBaseURL(), cfg.TableName, &http.Client{Timeout: cfg.RequestTimeout}, logger)
		if cfg.HasCredentials() {
			schema.SetBasicAuth(cfg.Username, cfg.Password)
		}
		if err := schema.CreateTableHTTP(ctx); err != nil {
			logger.Error("Failed to create table",
				zap.Error(err),
				zap.String("table", cfg.TableName),
				zap.String("action", "Check QuestDB is reachable on --db-endpoint"))
			return err
		}
	}

	writer, err := newWriter(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to connect to target store",
			zap.Error(err),
			zap.String("sink", cfg.Sink),
			zap.String("endpoint", cfg.Endpoint))
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
		defer cancel()
		if err := writer.Close(closeCtx); err != nil {
			logger.Warn("Error closing writer", zap.Error(err))
		}
	}()

	summary := dashboard.NewSummary()
	runner := processing.NewRunner(processing.NewLoader(writer, cfg.TableName, logger), logger)
	stopDisplay := func() {}
	if cfg.Quiet {
		runner.SetProgressCallback(summary)
	} else {
		display := dashboard.NewProgress(cmd.ErrOrStderr(), len(files))
		display.Start()
		stopDisplay = display.Stop
		runner.SetProgressCallback(processing.MultiProgress(summary, display))
	}

	var total uint32
	g, gctx := errgroup.WithContext(ctx)
	metricsCtx, stopMetrics := context.WithCancel(gctx)
	defer stopMetrics()

	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return metrics.Serve(metricsCtx, cfg.MetricsAddr, logger)
		})
	}
	g.Go(func() error {
		defer stopMetrics()
		var err error
		total, err = runner.RunFiles(gctx, cfg.TrackName, files)
		return err
	})

	err = g.Wait()
	stopDisplay()
	if err != nil {
		logger.Error("Load failed",
			zap.Error(err),
			zap.Uint32("rows_committed", total),
			zap.String("action", actionFor(err)))
		return err
	}

	if !cfg.Quiet {
		summary.Render(cmd.OutOrStdout())
	}

	logger.Info("Load complete",
		zap.String("track_name", cfg.TrackName),
		zap.Int("files", len(files)),
		zap.Uint32("rows", total),
		zap.Duration("took", time.Since(startTime)))
	return nil
}

func newWriter(ctx context.Context, cfg *config.Config, logger *zap.Logger) (persistance.Writer, error) {
	switch cfg.Sink {
	case config.SinkQuestDB:
		return persistance.NewQuestDBWriter(ctx, cfg, logger)
	case config.SinkInfluxDB:
		return persistance.NewInfluxWriter(cfg, logger), nil
	case config.SinkAMQP:
		return messaging.NewPublisher(cfg, logger)
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownSink, cfg.Sink)
	}
}

func actionFor(err error) string {
	var distErr *geodesy.DistanceError
	var writeErr *persistance.WriteError

	switch {
	case errors.Is(err, track.ErrTimestampNotPresent):
		return "Every track point needs a <time> element"
	case errors.As(err, &distErr):
		return "Check the track for consecutive points on nearly opposite sides of the earth"
	case errors.As(err, &writeErr):
		return "Check the target store is reachable and the credentials are valid"
	case errors.Is(err, context.Canceled):
		return "Load was interrupted; rows of committed segments are kept"
	default:
		return "Check the input file is valid GPX"
	}
}
