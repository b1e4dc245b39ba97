// Package metrics tracks ingestion pipeline counters and exposes them
// both as an in-process snapshot and as Prometheus collectors.
package metrics

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// maxLatencySamples bounds the persistence-latency window
const maxLatencySamples = 5000

// utilizationAlpha is the smoothing factor of the worker-utilization
// moving average (higher = more weight on recent observations)
const utilizationAlpha = 0.2

// Error reason codes used with RecordError
const (
	ErrInvalidMessage   = "invalid_message"
	ErrLogAppendFailed  = "log_append_failed"
	ErrPersistTransient = "persist_transient"
	ErrPersistFatal     = "persist_fatal"
	ErrReplayParse      = "replay_parse_error"
	ErrWebhookDelivery  = "webhook_delivery_failed"
	ErrQueueFull        = "queue_full"
)

// Snapshot is the point-in-time view served by the metrics endpoint
type Snapshot struct {
	Received          uint64            `json:"received"`
	Enqueued          uint64            `json:"enqueued"`
	Persisted         uint64            `json:"persisted"`
	Retried           uint64            `json:"retried"`
	DeadLettered      uint64            `json:"deadLettered"`
	Errors            map[string]uint64 `json:"errors"`
	QueueDepth        int               `json:"queueDepth"`
	WorkerUtilization float64           `json:"workerUtilization"`
	PersistLatencyP50 float64           `json:"persistLatencyP50Ms"`
	PersistLatencyP95 float64           `json:"persistLatencyP95Ms"`
	CheckpointOffset  int64             `json:"checkpointOffset"`
}

// Registry collects ingestion metrics. All methods are safe for
// concurrent use; counters are atomics, the latency window and the error
// histogram take a mutex.
type Registry struct {
	received     atomic.Uint64
	enqueued     atomic.Uint64
	persisted    atomic.Uint64
	retried      atomic.Uint64
	deadLettered atomic.Uint64
	checkpoint   atomic.Int64

	mu          sync.Mutex
	errors      map[string]uint64
	latencies   []float64 // ring buffer of persist latencies in ms
	latencyNext int
	utilization float64
	utilSeeded  bool

	queueDepth func() int

	promReceived     prometheus.Counter
	promEnqueued     prometheus.Counter
	promPersisted    prometheus.Counter
	promRetried      prometheus.Counter
	promDeadLettered prometheus.Counter
	promErrors       *prometheus.CounterVec
	promLatency      prometheus.Histogram
}

// New creates a Registry and registers its Prometheus collectors on reg.
// Pass nil to skip Prometheus registration (tests).
func New(reg prometheus.Registerer) *Registry {
	r := &Registry{
		errors:     make(map[string]uint64),
		latencies:  make([]float64, 0, maxLatencySamples),
		queueDepth: func() int { return 0 },
	}

	r.promReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ingest", Name: "received_total", Help: "Messages accepted by the producer path",
	})
	r.promEnqueued = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ingest", Name: "enqueued_total", Help: "Records handed to the bounded queue",
	})
	r.promPersisted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ingest", Name: "persisted_total", Help: "Records persisted to the store",
	})
	r.promRetried = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ingest", Name: "retried_total", Help: "Per-record persistence retries",
	})
	r.promDeadLettered = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ingest", Name: "dead_lettered_total", Help: "Records written to the dead-letter log",
	})
	r.promErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ingest", Name: "errors_total", Help: "Errors by classified reason",
	}, []string{"reason"})
	r.promLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ingest", Name: "persist_latency_seconds", Help: "Batch persistence latency",
		Buckets: prometheus.DefBuckets,
	})

	if reg != nil {
		reg.MustRegister(r.promReceived, r.promEnqueued, r.promPersisted,
			r.promRetried, r.promDeadLettered, r.promErrors, r.promLatency)
	}
	return r
}

// SetQueueDepthFunc wires the live queue-depth source
func (r *Registry) SetQueueDepthFunc(fn func() int) {
	if fn != nil {
		r.queueDepth = fn
	}
}

func (r *Registry) IncReceived() { r.received.Add(1); r.promReceived.Inc() }

func (r *Registry) IncEnqueued() { r.enqueued.Add(1); r.promEnqueued.Inc() }

// AddPersisted advances the persisted counter by a whole batch
func (r *Registry) AddPersisted(n int) {
	r.persisted.Add(uint64(n))
	r.promPersisted.Add(float64(n))
}

func (r *Registry) IncRetried() { r.retried.Add(1); r.promRetried.Inc() }

func (r *Registry) IncDeadLettered() { r.deadLettered.Add(1); r.promDeadLettered.Inc() }

// RecordError bumps the error histogram for a classified reason code
func (r *Registry) RecordError(reason string) {
	r.mu.Lock()
	r.errors[reason]++
	r.mu.Unlock()
	r.promErrors.WithLabelValues(reason).Inc()
}

// ObservePersistLatency records one batch persistence latency sample
func (r *Registry) ObservePersistLatency(ms float64) {
	r.promLatency.Observe(ms / 1000)
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.latencies) < maxLatencySamples {
		r.latencies = append(r.latencies, ms)
		return
	}
	// window full: overwrite oldest
	r.latencies[r.latencyNext] = ms
	r.latencyNext = (r.latencyNext + 1) % maxLatencySamples
}

// ObserveWorkerUtilization feeds the moving average with the fraction of
// time a worker spent flushing (0..1)
func (r *Registry) ObserveWorkerUtilization(busy float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.utilSeeded {
		r.utilization = busy
		r.utilSeeded = true
		return
	}
	r.utilization = utilizationAlpha*busy + (1-utilizationAlpha)*r.utilization
}

// SetCheckpointOffset records the replay loop's current byte offset
func (r *Registry) SetCheckpointOffset(off int64) {
	r.checkpoint.Store(off)
}

// Snapshot returns a consistent copy of all metrics
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	errs := make(map[string]uint64, len(r.errors))
	for k, v := range r.errors {
		errs[k] = v
	}
	samples := make([]float64, len(r.latencies))
	copy(samples, r.latencies)
	util := r.utilization
	r.mu.Unlock()

	p50, p95 := percentiles(samples)
	return Snapshot{
		Received:          r.received.Load(),
		Enqueued:          r.enqueued.Load(),
		Persisted:         r.persisted.Load(),
		Retried:           r.retried.Load(),
		DeadLettered:      r.deadLettered.Load(),
		Errors:            errs,
		QueueDepth:        r.queueDepth(),
		WorkerUtilization: util,
		PersistLatencyP50: p50,
		PersistLatencyP95: p95,
		CheckpointOffset:  r.checkpoint.Load(),
	}
}

func percentiles(samples []float64) (p50, p95 float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)
	idx := func(p float64) int {
		i := int(p * float64(len(sorted)-1))
		if i < 0 {
			i = 0
		}
		if i >= len(sorted) {
			i = len(sorted) - 1
		}
		return i
	}
	return sorted[idx(0.50)], sorted[idx(0.95)]
}
