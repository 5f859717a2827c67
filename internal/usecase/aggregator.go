package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/user/fetch-pipeline/internal/entity"
	"github.com/user/fetch-pipeline/internal/repository"
	"github.com/user/fetch-pipeline/pkg/metrics"
	"github.com/user/fetch-pipeline/pkg/utils"
)

var (
	// ErrStoreExhausted means a batch could not be written after every retry.
	// Buffered records are lost, so the run must fail.
	ErrStoreExhausted = errors.New("store write retries exhausted")
	// ErrDrainTimeout means workers did not account for every job within the
	// drain grace period after cancellation.
	ErrDrainTimeout = errors.New("drain grace period expired")
	// ErrResultsClosed means the result channel closed before every job reported.
	ErrResultsClosed = errors.New("result channel closed early")
	// ErrExcessResults means a result was waiting after every job had
	// reported. The run is broken and must fail.
	ErrExcessResults = errors.New("more results than jobs")
)

type AggregatorConfig struct {
	BatchSize     int
	ProgressEvery int
	FlushRetries  int
	FlushBackoff  time.Duration
	FlushTimeout  time.Duration
	DrainGrace    time.Duration
}

func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		BatchSize:     100,
		ProgressEvery: 50,
		FlushRetries:  3,
		FlushBackoff:  200 * time.Millisecond,
		FlushTimeout:  30 * time.Second,
		DrainGrace:    30 * time.Second,
	}
}

// ProgressObserver receives a snapshot every ProgressEvery results and once
// at completion.
type ProgressObserver interface {
	Observe(entity.Progress)
}

// ProgressFunc adapts a function to ProgressObserver.
type ProgressFunc func(entity.Progress)

func (f ProgressFunc) Observe(p entity.Progress) { f(p) }

// Aggregator is the single consumer of worker results and the only writer to
// the record store.
type Aggregator struct {
	store    repository.RecordStore
	schema   *entity.Schema
	cfg      AggregatorConfig
	observer ProgressObserver
	logger   *zap.Logger
}

// NewAggregator builds an aggregator. schema and observer may be nil.
func NewAggregator(store repository.RecordStore, schema *entity.Schema, cfg AggregatorConfig, observer ProgressObserver, logger *zap.Logger) *Aggregator {
	def := DefaultAggregatorConfig()
	if cfg.BatchSize < 1 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.ProgressEvery < 1 {
		cfg.ProgressEvery = def.ProgressEvery
	}
	if cfg.FlushRetries < 1 {
		cfg.FlushRetries = def.FlushRetries
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = def.FlushTimeout
	}
	if cfg.DrainGrace <= 0 {
		cfg.DrainGrace = def.DrainGrace
	}
	return &Aggregator{store: store, schema: schema, cfg: cfg, observer: observer, logger: logger}
}

// buffer holds records awaiting the next flush. A key seen twice keeps only
// its latest fields.
type buffer struct {
	records []entity.Record
	index   map[string]int
}

func newBuffer(size int) *buffer {
	return &buffer{records: make([]entity.Record, 0, size), index: make(map[string]int, size)}
}

func (b *buffer) add(r entity.Record) {
	if i, ok := b.index[r.Key]; ok {
		b.records[i] = r
		return
	}
	b.index[r.Key] = len(b.records)
	b.records = append(b.records, r)
}

func (b *buffer) len() int { return len(b.records) }

// Run consumes exactly batch.Total results. When ctx is canceled it keeps
// consuming for up to DrainGrace so in-flight jobs can report, then flushes
// whatever is buffered. Flushes ignore ctx cancellation.
func (a *Aggregator) Run(ctx context.Context, batch entity.Batch, results <-chan entity.FetchResult) (entity.Tally, error) {
	var (
		tally entity.Tally
		buf   = newBuffer(a.cfg.BatchSize)
		done  = ctx.Done()
		grace <-chan time.Time
	)
	log := a.logger.With(zap.String("batch_id", batch.ID))

	for tally.Done < batch.Total {
		select {
		case res, ok := <-results:
			if !ok {
				err := fmt.Errorf("%w: %d of %d results", ErrResultsClosed, tally.Done, batch.Total)
				return tally, errors.Join(err, a.flush(ctx, log, batch.ID, buf, &tally))
			}
			a.consume(log, batch, buf, &tally, res)
			if buf.len() >= a.cfg.BatchSize {
				if err := a.flush(ctx, log, batch.ID, buf, &tally); err != nil {
					return tally, err
				}
				buf = newBuffer(a.cfg.BatchSize)
			}
			if tally.Done%a.cfg.ProgressEvery == 0 || tally.Done == batch.Total {
				a.report(log, batch, tally)
			}
		case <-done:
			done = nil
			t := time.NewTimer(a.cfg.DrainGrace)
			defer t.Stop()
			grace = t.C
			log.Warn("run canceled, draining in-flight jobs",
				zap.Int("done", tally.Done),
				zap.Int("total", batch.Total),
				zap.Duration("grace", a.cfg.DrainGrace),
			)
		case <-grace:
			err := fmt.Errorf("%w: %d of %d results", ErrDrainTimeout, tally.Done, batch.Total)
			return tally, errors.Join(err, a.flush(ctx, log, batch.ID, buf, &tally))
		}
	}

	select {
	case res, ok := <-results:
		if ok {
			err := fmt.Errorf("%w: %d jobs, extra result for %s", ErrExcessResults, batch.Total, res.Key)
			return tally, errors.Join(err, a.flush(ctx, log, batch.ID, buf, &tally))
		}
	default:
	}
	return tally, a.flush(ctx, log, batch.ID, buf, &tally)
}

func (a *Aggregator) consume(log *zap.Logger, batch entity.Batch, buf *buffer, tally *entity.Tally, res entity.FetchResult) {
	tally.Done++
	if !res.OK() {
		a.fail(log, tally, res.Key, res.Kind, res.Err, res.Attempts)
		return
	}

	fields, err := a.schema.Normalize(res.Fields)
	if err != nil {
		a.fail(log, tally, res.Key, entity.ErrorKindSchema, err, res.Attempts)
		return
	}
	kind, version := a.schema.Describe()
	buf.add(entity.Record{
		Key:       res.Key,
		Kind:      kind,
		Version:   version,
		Fields:    fields,
		FetchedAt: time.Now().UTC(),
	})
	tally.OK++
	metrics.JobsTotal.WithLabelValues("ok", "").Inc()
}

func (a *Aggregator) fail(log *zap.Logger, tally *entity.Tally, key string, kind entity.ErrorKind, err error, attempts int) {
	tally.NG++
	metrics.JobsTotal.WithLabelValues("ng", string(kind)).Inc()
	log.Warn("job failed",
		zap.String("key", key),
		zap.String("kind", string(kind)),
		zap.Int("attempts", attempts),
		zap.String("error", utils.RedactError(err)),
	)
}

func (a *Aggregator) report(log *zap.Logger, batch entity.Batch, tally entity.Tally) {
	log.Info("progress",
		zap.Int("done", tally.Done),
		zap.Int("total", batch.Total),
		zap.Int("ok", tally.OK),
		zap.Int("ng", tally.NG),
	)
	if a.observer != nil {
		a.observer.Observe(entity.Progress{
			RunID:   batch.RunID,
			BatchID: batch.ID,
			State:   entity.StateRunning,
			Done:    tally.Done,
			Total:   batch.Total,
			OK:      tally.OK,
			NG:      tally.NG,
			At:      time.Now(),
		})
	}
}

// flush writes buf with bounded retries and doubling backoff.
func (a *Aggregator) flush(ctx context.Context, log *zap.Logger, batchID string, buf *buffer, tally *entity.Tally) error {
	if buf.len() == 0 {
		return nil
	}
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.FlushTimeout)
	defer cancel()

	delay := a.cfg.FlushBackoff
	for attempt := 1; ; attempt++ {
		err := a.store.UpsertBatch(fctx, batchID, buf.records)
		if err == nil {
			tally.Flushes++
			tally.Stored += buf.len()
			metrics.StoreFlushesTotal.WithLabelValues("ok").Inc()
			metrics.StoreFlushedRecords.Add(float64(buf.len()))
			log.Debug("flushed records", zap.Int("records", buf.len()), zap.Int("attempt", attempt))
			return nil
		}
		if attempt >= a.cfg.FlushRetries || fctx.Err() != nil {
			metrics.StoreFlushesTotal.WithLabelValues("failed").Inc()
			return fmt.Errorf("%w: batch %s, %d records, %d attempts: %w", ErrStoreExhausted, batchID, buf.len(), attempt, err)
		}
		metrics.StoreFlushesTotal.WithLabelValues("retry").Inc()
		log.Warn("store write failed, retrying",
			zap.Int("records", buf.len()),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.String("error", utils.RedactError(err)),
		)
		if err := sleep(fctx, delay); err != nil {
			metrics.StoreFlushesTotal.WithLabelValues("failed").Inc()
			return fmt.Errorf("%w: batch %s: %w", ErrStoreExhausted, batchID, err)
		}
		delay *= 2
	}
}
