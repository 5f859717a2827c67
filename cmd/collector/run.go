package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/user/fetch-pipeline/internal/adapter/extractor"
	"github.com/user/fetch-pipeline/internal/adapter/session"
	"github.com/user/fetch-pipeline/internal/delivery/http/handler"
	"github.com/user/fetch-pipeline/internal/delivery/http/router"
	"github.com/user/fetch-pipeline/internal/entity"
	"github.com/user/fetch-pipeline/internal/repository"
	"github.com/user/fetch-pipeline/internal/usecase"
	"github.com/user/fetch-pipeline/pkg/config"
	"github.com/user/fetch-pipeline/pkg/logger"
)

type runFlags struct {
	key string
	url string
}

func newRunCmd() *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch every target of a batch and store the records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollector(cmd, flags)
		},
	}
	f := cmd.Flags()
	f.String("mode", "all", "targets to run: all, or missing (no stored record yet)")
	f.Float64("qps", 0.7, "global fetch starts per second")
	f.IntP("concurrency", "c", 3, "workers (capped at 8)")
	f.Int("retries", 3, "fetch attempts per target")
	f.Int("batch-size", 100, "records per store write")
	f.String("listen", "", "address for /api/health, /api/progress and /metrics (disabled when empty)")
	f.StringP("targets-file", "t", "", `read "key url" lines from this file ("-" for stdin) instead of the store`)
	f.String("base-url", "", "origin that relative target urls are resolved against")
	f.String("fetcher", "http", "fetcher: http or chromedp")
	f.Bool("headless", true, "run the chromedp browser without a window (--headless=false to watch it)")
	f.String("session", "session.json", "exported session cookies")
	f.Bool("allow-automation", false, "confirm that automated collection is permitted for this origin")
	f.StringVar(&flags.key, "key", "", "run a single target with this key")
	f.StringVar(&flags.url, "url", "", "url of the single target given by --key")
	cmd.MarkFlagsRequiredTogether("key", "url")
	return cmd
}

func runCollector(cmd *cobra.Command, flags runFlags) error {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("targets-file") {
		cfg.Targets.Source = "file"
	}
	log, err := logger.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer log.Sync()

	if !cfg.AllowAutomation {
		log.Warn("automated collection is disabled; set allow_automation (GATED_ALLOW_AUTOMATION=true or --allow-automation) once it is permitted")
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.close()

	loader, err := usecase.NewTargetLoader(targetSource(cfg, b), cfg.Targets.BaseURL, log)
	if err != nil {
		return err
	}
	batchID, jobs, err := loadJobs(ctx, cfg, loader, flags)
	if err != nil {
		return err
	}

	sess, err := session.NewFileProvider(cfg.Session.File, cfg.Session.Identity).Session(ctx)
	if err != nil {
		return err
	}
	ex, err := extractor.New(cfg.Extract.Fields)
	if err != nil {
		return err
	}
	schema := entity.NewSchema(cfg.Extract.Kind, cfg.Extract.Version, ex.Fields())

	fetcher, err := newFetcher(ctx, cfg, sess, ex, log)
	if err != nil {
		return err
	}
	defer fetcher.Close()

	pipeline := usecase.NewPipeline(fetcher, b.store, schema, pipelineConfig(cfg), log)

	if cfg.Listen != "" {
		srv := startServer(cfg.Listen, pipeline, b.reader, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error("server forced to shutdown", zap.Error(err))
			}
		}()
	}

	report, err := pipeline.Run(ctx, batchID, jobs)
	log.Info("run report",
		zap.String("run_id", report.RunID),
		zap.String("batch_id", report.BatchID),
		zap.String("state", string(report.State)),
		zap.Int("total", report.Total),
		zap.Int("ok", report.OK),
		zap.Int("ng", report.NG),
		zap.Int("stored", report.Stored),
		zap.Int("flushes", report.Flushes),
		zap.Int("workers", report.Workers),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)
	return err
}

func loadJobs(ctx context.Context, cfg *config.Config, loader *usecase.TargetLoader, flags runFlags) (string, []entity.Job, error) {
	if flags.key != "" {
		batchID, err := loader.ResolveBatch(ctx, cfg.BatchID)
		if errors.Is(err, repository.ErrNoBatch) {
			batchID, err = time.Now().Format("2006-01-02"), nil
		}
		if err != nil {
			return "", nil, err
		}
		jobs, err := loader.Resolve([]entity.Job{{Key: flags.key, URL: flags.url}})
		if err != nil {
			return "", nil, err
		}
		return batchID, jobs, nil
	}

	mode, err := repository.ParseTargetMode(cfg.Mode)
	if err != nil {
		return "", nil, err
	}
	batchID, err := loader.ResolveBatch(ctx, cfg.BatchID)
	if err != nil {
		return "", nil, err
	}
	jobs, err := loader.Load(ctx, batchID, mode)
	if err != nil {
		return "", nil, err
	}
	return batchID, jobs, nil
}

func startServer(addr string, pipeline *usecase.Pipeline, records repository.RecordReader, log *zap.Logger) *http.Server {
	srv := &http.Server{
		Addr:         addr,
		Handler:      router.New(handler.NewHandler(pipeline, records, log), log),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		log.Info("starting server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(fmt.Sprintf("could not listen on %s", addr), zap.Error(err))
		}
	}()
	return srv
}
