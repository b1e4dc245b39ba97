package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vaibhavgoyal09/baileys-rest-api/internal/metrics"
	"github.com/vaibhavgoyal09/baileys-rest-api/internal/model"
)

// Rejection reasons reported to producers
const (
	ReasonInvalidMessage  = "invalid_message"
	ReasonLogAppendFailed = "log_append_failed"
)

// Result is the producer-visible outcome of EnqueueMessage. Accepted
// means the record is fsynced in the durable log; persistence continues
// asynchronously.
type Result struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// ServiceConfig bundles the file paths and tuning for the pipeline
type ServiceConfig struct {
	LogPath        string
	CheckpointPath string
	DLQPath        string
	QueueCapacity  int
	Pool           PoolConfig
}

// Service owns the ingestion pipeline: durable log, bounded queue,
// worker pool, replay loop, and dead-letter log.
type Service struct {
	log      *DurableLog
	queue    *Queue
	pool     *Pool
	replayer *Replayer
	dlq      *DeadLetterLog
	metrics  *metrics.Registry
	logger   zerolog.Logger

	runWG  sync.WaitGroup
	cancel context.CancelFunc
}

// NewService opens the backing files and wires the pipeline. Start must
// be called before records flow.
func NewService(cfg ServiceConfig, store BatchStore, m *metrics.Registry, logger zerolog.Logger) (*Service, error) {
	dlog, err := OpenLog(cfg.LogPath)
	if err != nil {
		return nil, err
	}
	dlq, err := OpenDLQ(cfg.DLQPath)
	if err != nil {
		dlog.Close()
		return nil, err
	}

	queue := NewQueue(cfg.QueueCapacity)
	m.SetQueueDepthFunc(queue.Depth)

	cp := NewCheckpointer(cfg.CheckpointPath)
	pool := NewPool(cfg.Pool, queue, store, dlq, m, logger)
	replayer := NewReplayer(cfg.LogPath, cp, queue, m, logger)

	return &Service{
		log:      dlog,
		queue:    queue,
		pool:     pool,
		replayer: replayer,
		dlq:      dlq,
		metrics:  m,
		logger:   logger,
	}, nil
}

// Start launches the workers and the replay loop
func (s *Service) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.pool.Start(ctx)
	s.runWG.Add(1)
	go func() {
		defer s.runWG.Done()
		s.replayer.Run(ctx)
	}()
}

// EnqueueMessage validates, durably appends, and best-effort enqueues a
// message. Accepted is returned as soon as the log fsync completes; a
// full queue is not an error because the replay loop delivers from the
// log.
func (s *Service) EnqueueMessage(ctx context.Context, m model.MessageInfo) Result {
	if m.ID == "" || m.From == "" {
		s.metrics.RecordError(metrics.ErrInvalidMessage)
		return Result{Accepted: false, Reason: ReasonInvalidMessage}
	}

	rec := model.IngestRecord{
		IdempotencyKey: model.IdempotencyKey(m.ID),
		CorrelationID:  m.CorrelationID(),
		ReceivedAt:     time.Now().UnixMilli(),
		Payload:        m,
	}
	s.metrics.IncReceived()

	start, end, err := s.log.Append(rec)
	if err != nil {
		s.metrics.RecordError(metrics.ErrLogAppendFailed)
		s.logger.Error().Err(err).Str("correlation_id", rec.CorrelationID).Msg("durable log append failed")
		return Result{Accepted: false, Reason: ReasonLogAppendFailed}
	}

	// Best-effort direct handoff. When it lands and the replay loop has
	// already caught up to this record, skip redelivery; in every other
	// case the replay loop remains the authoritative reader.
	if s.queue.TryEnqueue(rec) {
		s.metrics.IncEnqueued()
		s.replayer.TrySkip(start, end)
	} else {
		s.metrics.RecordError(metrics.ErrQueueFull)
	}

	return Result{Accepted: true}
}

// QueueDepth reports the current number of buffered records
func (s *Service) QueueDepth() int {
	return s.queue.Depth()
}

// QueueCapacity reports the configured queue bound
func (s *Service) QueueCapacity() int {
	return s.queue.Capacity()
}

// Shutdown closes the queue, waits for the workers to drain their final
// batches, and stops the replay loop.
func (s *Service) Shutdown(ctx context.Context) {
	s.queue.Close()

	done := make(chan struct{})
	go func() {
		s.pool.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn().Msg("worker drain timed out")
	}

	if s.cancel != nil {
		s.cancel()
	}
	s.runWG.Wait()

	if err := s.log.Close(); err != nil {
		s.logger.Error().Err(err).Msg("durable log close failed")
	}
	if err := s.dlq.Close(); err != nil {
		s.logger.Error().Err(err).Msg("dead-letter log close failed")
	}
}
