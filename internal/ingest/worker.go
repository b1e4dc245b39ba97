package ingest

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vaibhavgoyal09/baileys-rest-api/internal/metrics"
	"github.com/vaibhavgoyal09/baileys-rest-api/internal/model"
)

// maxSplitDepth bounds the binary-search recursion on failing batches
const maxSplitDepth = 20

// BatchStore is the slice of the persistent store the workers need
type BatchStore interface {
	SaveMessagesBatch(ctx context.Context, recs []model.IngestRecord) error
}

// PoolConfig carries the worker and retry tuning knobs
type PoolConfig struct {
	Workers          int
	BatchSize        int
	BatchMaxWait     time.Duration
	RetryBase        time.Duration
	RetryMax         time.Duration
	RetryMaxAttempts int
	RetryMaxHorizon  time.Duration
}

// Pool runs a fixed set of batching persister workers over the shared
// queue. Each worker flushes when its batch fills or the oldest in-batch
// item exceeds the max wait.
type Pool struct {
	cfg     PoolConfig
	queue   *Queue
	store   BatchStore
	dlq     *DeadLetterLog
	metrics *metrics.Registry
	logger  zerolog.Logger
	wg      sync.WaitGroup
}

// NewPool wires a worker pool; Start launches the workers
func NewPool(cfg PoolConfig, q *Queue, store BatchStore, dlq *DeadLetterLog, m *metrics.Registry, logger zerolog.Logger) *Pool {
	return &Pool{cfg: cfg, queue: q, store: store, dlq: dlq, metrics: m, logger: logger}
}

// Start launches the workers. They exit when the queue is closed and
// drained, or when ctx is cancelled; Wait blocks until then.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Wait blocks until every worker has flushed its final batch and exited
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	logger := p.logger.With().Int("worker", id).Logger()

	batch := make([]model.IngestRecord, 0, p.cfg.BatchSize)
	var timer *time.Timer
	var deadline <-chan time.Time
	idleSince := time.Now()

	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
			deadline = nil
		}
	}
	flush := func() {
		stopTimer()
		if len(batch) == 0 {
			return
		}
		waited := time.Since(idleSince)
		start := time.Now()
		p.persistBatch(ctx, logger, batch)
		busy := time.Since(start)
		if total := waited + busy; total > 0 {
			p.metrics.ObserveWorkerUtilization(float64(busy) / float64(total))
		}
		idleSince = time.Now()
		batch = batch[:0]
	}

	for {
		select {
		case rec, ok := <-p.queue.Chan():
			if !ok {
				flush()
				logger.Debug().Msg("queue closed, worker draining done")
				return
			}
			batch = append(batch, rec)
			if len(batch) == 1 {
				timer = time.NewTimer(p.cfg.BatchMaxWait)
				deadline = timer.C
			}
			if len(batch) >= p.cfg.BatchSize {
				flush()
			}
		case <-deadline:
			timer = nil
			deadline = nil
			flush()
		case <-ctx.Done():
			flush()
			return
		}
	}
}

// persistBatch attempts the whole batch once, then isolates failures by
// binary search: transient multi-record failures split in half and
// recurse; everything that cannot be split further goes through the
// per-record retry loop.
func (p *Pool) persistBatch(ctx context.Context, logger zerolog.Logger, recs []model.IngestRecord) {
	p.persistSplit(ctx, logger, recs, 0)
}

func (p *Pool) persistSplit(ctx context.Context, logger zerolog.Logger, recs []model.IngestRecord, depth int) {
	start := time.Now()
	err := p.store.SaveMessagesBatch(ctx, recs)
	if err == nil {
		p.metrics.ObservePersistLatency(float64(time.Since(start)) / float64(time.Millisecond))
		p.metrics.AddPersisted(len(recs))
		return
	}

	if IsTransient(err) && len(recs) > 1 && depth < maxSplitDepth {
		mid := len(recs) / 2
		p.persistSplit(ctx, logger, recs[:mid], depth+1)
		p.persistSplit(ctx, logger, recs[mid:], depth+1)
		return
	}

	for _, rec := range recs {
		p.retryRecord(ctx, logger, rec)
	}
}

// retryRecord retries a single record with jittered exponential backoff
// until it persists, turns out to be poison, or exhausts the attempt or
// horizon budget. Terminal failures land in the DLQ.
func (p *Pool) retryRecord(ctx context.Context, logger zerolog.Logger, rec model.IngestRecord) {
	attempt := 0
	for {
		start := time.Now()
		err := p.store.SaveMessagesBatch(ctx, []model.IngestRecord{rec})
		if err == nil {
			p.metrics.ObservePersistLatency(float64(time.Since(start)) / float64(time.Millisecond))
			p.metrics.AddPersisted(1)
			return
		}

		if !IsTransient(err) {
			p.metrics.RecordError(metrics.ErrPersistFatal)
			p.deadLetter(logger, rec, err)
			return
		}

		p.metrics.IncRetried()
		p.metrics.RecordError(metrics.ErrPersistTransient)

		attempt++
		if attempt >= p.cfg.RetryMaxAttempts {
			p.deadLetter(logger, rec, err)
			return
		}
		if time.Since(time.UnixMilli(rec.ReceivedAt)) >= p.cfg.RetryMaxHorizon {
			p.deadLetter(logger, rec, err)
			return
		}

		wait := backoff(p.cfg.RetryBase, p.cfg.RetryMax, attempt-1)
		logger.Debug().
			Str("correlation_id", rec.CorrelationID).
			Int("attempt", attempt).
			Dur("wait", wait).
			Msg("transient persist error, backing off")

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			// shutdown mid-retry: the record stays in the durable log
			// and is replayed on restart
			return
		}
	}
}

func (p *Pool) deadLetter(logger zerolog.Logger, rec model.IngestRecord, cause error) {
	p.metrics.IncDeadLettered()
	logger.Error().
		Err(cause).
		Str("idempotency_key", rec.IdempotencyKey).
		Str("correlation_id", rec.CorrelationID).
		Msg("record dead-lettered")
	if err := p.dlq.Append(rec, cause); err != nil {
		logger.Error().Err(err).Str("idempotency_key", rec.IdempotencyKey).Msg("dead-letter append failed")
	}
}

// backoff computes min(max, base*2^attempt) plus up to 20% jitter
func backoff(base, max time.Duration, attempt int) time.Duration {
	exp := base << uint(attempt)
	if exp > max || exp <= 0 {
		exp = max
	}
	jitter := time.Duration(rand.Int63n(int64(exp)/5 + 1))
	return exp + jitter
}
