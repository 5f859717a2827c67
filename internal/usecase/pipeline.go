package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/user/fetch-pipeline/internal/entity"
	"github.com/user/fetch-pipeline/internal/repository"
)

// workerCeiling caps simultaneous open pages against the origin no matter
// what is configured.
const workerCeiling = 8

var ErrPageOpen = errors.New("open fetch page")

type PipelineConfig struct {
	QPS         float64
	Concurrency int
	MaxWorkers  int
	Retry       RetryPolicy
	Aggregator  AggregatorConfig
}

func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		QPS:         0.7,
		Concurrency: 3,
		MaxWorkers:  workerCeiling,
		Retry:       DefaultRetryPolicy(),
		Aggregator:  DefaultAggregatorConfig(),
	}
}

// Pipeline drives one run at a time: Seeding, Running, Draining, Done.
// State and Progress are safe to call from other goroutines.
type Pipeline struct {
	fetcher repository.Fetcher
	store   repository.RecordStore
	schema  *entity.Schema
	cfg     PipelineConfig
	logger  *zap.Logger

	mu       sync.RWMutex
	state    entity.State
	progress entity.Progress
}

func NewPipeline(fetcher repository.Fetcher, store repository.RecordStore, schema *entity.Schema, cfg PipelineConfig, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		fetcher: fetcher,
		store:   store,
		schema:  schema,
		cfg:     cfg,
		logger:  logger,
		state:   entity.StateIdle,
	}
}

// Workers returns the pool size for a run of n jobs.
func (p *Pipeline) Workers(n int) int {
	ceiling := p.cfg.MaxWorkers
	if ceiling < 1 || ceiling > workerCeiling {
		ceiling = workerCeiling
	}
	w := p.cfg.Concurrency
	if w < 1 {
		w = 1
	}
	if w > ceiling {
		w = ceiling
	}
	if n > 0 && w > n {
		w = n
	}
	return w
}

// Run fetches every job and persists the successes under batchID. The
// report is always populated; the error is non-nil only for run-fatal
// conditions or when ctx was canceled.
func (p *Pipeline) Run(ctx context.Context, batchID string, jobs []entity.Job) (report entity.RunReport, err error) {
	report = entity.RunReport{
		RunID:     uuid.NewString(),
		BatchID:   batchID,
		Total:     len(jobs),
		StartedAt: time.Now(),
	}
	log := p.logger.With(zap.String("run_id", report.RunID), zap.String("batch_id", batchID))

	p.setState(entity.StateSeeding)
	p.Observe(entity.Progress{RunID: report.RunID, BatchID: batchID, Total: len(jobs), At: report.StartedAt})
	defer func() {
		report.State = entity.StateDone
		report.FinishedAt = time.Now()
		p.setState(entity.StateDone)
		p.Observe(entity.Progress{
			RunID: report.RunID, BatchID: batchID,
			Done: report.OK + report.NG, Total: report.Total, OK: report.OK, NG: report.NG,
			At: report.FinishedAt,
		})
	}()

	if len(jobs) == 0 {
		log.Info("no jobs to run")
		return report, nil
	}

	workers := p.Workers(len(jobs))
	pages, err := p.openPages(ctx, workers)
	if err != nil {
		return report, fmt.Errorf("%w: %w", ErrPageOpen, err)
	}
	defer p.closePages(log, pages)
	report.Workers = workers

	queue := NewJobQueue(jobs, workers)
	results := make(chan entity.FetchResult, len(jobs))
	pool := NewWorkerPool(pages, NewRateLimiter(p.cfg.QPS), p.cfg.Retry, log)
	agg := NewAggregator(p.store, p.schema, p.cfg.Aggregator, p, log)
	batch := entity.Batch{ID: batchID, RunID: report.RunID, Total: queue.Total()}

	log.Info("run started",
		zap.Int("total", batch.Total),
		zap.Int("workers", workers),
		zap.Float64("qps", p.cfg.QPS),
	)
	p.setState(entity.StateRunning)

	var tally entity.Tally
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return pool.Run(gctx, queue, results)
	})
	g.Go(func() error {
		defer func() {
			p.setState(entity.StateDraining)
			queue.Stop(workers)
		}()
		var err error
		tally, err = agg.Run(gctx, batch, results)
		return err
	})
	err = g.Wait()

	report.OK, report.NG = tally.OK, tally.NG
	report.Stored, report.Flushes = tally.Stored, tally.Flushes

	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		log.Error("run ended with error", zap.Error(err))
	}
	return report, err
}

func (p *Pipeline) openPages(ctx context.Context, n int) ([]repository.Page, error) {
	pages := make([]repository.Page, 0, n)
	for i := 0; i < n; i++ {
		page, err := p.fetcher.Open(ctx)
		if err != nil {
			for _, pg := range pages {
				_ = pg.Close()
			}
			return nil, err
		}
		pages = append(pages, page)
	}
	return pages, nil
}

func (p *Pipeline) closePages(log *zap.Logger, pages []repository.Page) {
	for _, pg := range pages {
		if err := pg.Close(); err != nil {
			log.Warn("close page", zap.Error(err))
		}
	}
}

func (p *Pipeline) setState(s entity.State) {
	p.mu.Lock()
	p.state = s
	p.progress.State = s
	p.mu.Unlock()
}

func (p *Pipeline) State() entity.State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Observe records a progress snapshot. The state always reflects the
// pipeline's own lifecycle rather than the reporter's view.
func (p *Pipeline) Observe(pr entity.Progress) {
	p.mu.Lock()
	pr.State = p.state
	p.progress = pr
	p.mu.Unlock()
}

// Progress returns the latest snapshot of the current or last run.
func (p *Pipeline) Progress() entity.Progress {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.progress
}
