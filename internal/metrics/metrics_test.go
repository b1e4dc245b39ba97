package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCounters(t *testing.T) {
	r := New(nil)
	r.IncReceived()
	r.IncReceived()
	r.IncEnqueued()
	r.AddPersisted(5)
	r.IncRetried()
	r.IncDeadLettered()
	r.RecordError(ErrPersistTransient)
	r.RecordError(ErrPersistTransient)
	r.RecordError(ErrReplayParse)
	r.SetCheckpointOffset(4096)

	snap := r.Snapshot()
	if snap.Received != 2 {
		t.Errorf("received = %d", snap.Received)
	}
	if snap.Enqueued != 1 {
		t.Errorf("enqueued = %d", snap.Enqueued)
	}
	if snap.Persisted != 5 {
		t.Errorf("persisted = %d", snap.Persisted)
	}
	if snap.Retried != 1 || snap.DeadLettered != 1 {
		t.Errorf("retried = %d deadLettered = %d", snap.Retried, snap.DeadLettered)
	}
	if snap.Errors[ErrPersistTransient] != 2 || snap.Errors[ErrReplayParse] != 1 {
		t.Errorf("errors = %v", snap.Errors)
	}
	if snap.CheckpointOffset != 4096 {
		t.Errorf("checkpoint = %d", snap.CheckpointOffset)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	r := New(nil)
	r.RecordError(ErrPersistFatal)
	snap := r.Snapshot()
	snap.Errors[ErrPersistFatal] = 99

	if r.Snapshot().Errors[ErrPersistFatal] != 1 {
		t.Error("snapshot mutation leaked into registry")
	}
}

func TestLatencyPercentiles(t *testing.T) {
	r := New(nil)
	for i := 1; i <= 100; i++ {
		r.ObservePersistLatency(float64(i))
	}
	snap := r.Snapshot()
	if snap.PersistLatencyP50 < 45 || snap.PersistLatencyP50 > 55 {
		t.Errorf("p50 = %v", snap.PersistLatencyP50)
	}
	if snap.PersistLatencyP95 < 90 || snap.PersistLatencyP95 > 100 {
		t.Errorf("p95 = %v", snap.PersistLatencyP95)
	}
}

func TestLatencyWindowBounded(t *testing.T) {
	r := New(nil)
	for i := 0; i < maxLatencySamples+500; i++ {
		r.ObservePersistLatency(1)
	}
	r.mu.Lock()
	n := len(r.latencies)
	r.mu.Unlock()
	if n > maxLatencySamples {
		t.Errorf("window size = %d, exceeds bound %d", n, maxLatencySamples)
	}
}

func TestWorkerUtilizationMovingAverage(t *testing.T) {
	r := New(nil)
	r.ObserveWorkerUtilization(1.0)
	if got := r.Snapshot().WorkerUtilization; got != 1.0 {
		t.Errorf("seeded utilization = %v", got)
	}
	for i := 0; i < 50; i++ {
		r.ObserveWorkerUtilization(0.0)
	}
	if got := r.Snapshot().WorkerUtilization; got > 0.01 {
		t.Errorf("utilization after decay = %v, want near 0", got)
	}
}

func TestPercentilesEmpty(t *testing.T) {
	p50, p95 := percentiles(nil)
	if p50 != 0 || p95 != 0 {
		t.Errorf("empty percentiles = %v, %v", p50, p95)
	}
}

func TestPrometheusRegistration(t *testing.T) {
	// duplicate registration on the same registry panics via
	// MustRegister, so each Registry needs its own prometheus registry
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected duplicate registration to panic")
		}
	}()
	reg := prometheus.NewRegistry()
	New(reg)
	New(reg)
}
