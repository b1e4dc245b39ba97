package ingest

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vaibhavgoyal09/baileys-rest-api/internal/metrics"
	"github.com/vaibhavgoyal09/baileys-rest-api/internal/model"
)

func testServiceConfig(dir string) ServiceConfig {
	return ServiceConfig{
		LogPath:        filepath.Join(dir, "ingestion.log"),
		CheckpointPath: filepath.Join(dir, "ingestion.offset"),
		DLQPath:        filepath.Join(dir, "dlq.log"),
		QueueCapacity:  100,
		Pool:           testPoolConfig(),
	}
}

func msg(id string) model.MessageInfo {
	return model.MessageInfo{
		ID:        id,
		From:      "1555@s.whatsapp.net",
		Timestamp: 1700000000,
		Type:      "conversation",
		Content:   model.MessageContent{Type: model.TypeText, Text: "hi"},
	}
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestEnqueueMessageHappyPath(t *testing.T) {
	dir := t.TempDir()
	st := newFakeStore()
	m := metrics.New(nil)
	svc, err := NewService(testServiceConfig(dir), st, m, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	svc.Start(context.Background())
	defer svc.Shutdown(context.Background())

	res := svc.EnqueueMessage(context.Background(), msg("A1"))
	if !res.Accepted {
		t.Fatalf("not accepted: %s", res.Reason)
	}

	waitFor(t, func() bool { return st.has("A1") }, "message persisted")

	// exactly one log line with the derived idempotency key
	data, err := os.ReadFile(filepath.Join(dir, "ingestion.log"))
	if err != nil {
		t.Fatal(err)
	}
	var keys []string
	for _, line := range splitLines(data) {
		var r model.IngestRecord
		if err := json.Unmarshal(line, &r); err != nil {
			t.Fatalf("bad log line: %v", err)
		}
		keys = append(keys, r.IdempotencyKey)
	}
	if len(keys) != 1 || keys[0] != "wa:A1" {
		t.Errorf("log keys = %v, want [wa:A1]", keys)
	}
}

func splitLines(data []byte) [][]byte {
	var out [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			if i > start {
				out = append(out, data[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func TestEnqueueMessageValidation(t *testing.T) {
	dir := t.TempDir()
	st := newFakeStore()
	m := metrics.New(nil)
	svc, err := NewService(testServiceConfig(dir), st, m, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer svc.Shutdown(context.Background())

	tests := []struct {
		name string
		m    model.MessageInfo
	}{
		{"missing id", model.MessageInfo{From: "1555@s.whatsapp.net"}},
		{"missing from", model.MessageInfo{ID: "A1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := svc.EnqueueMessage(context.Background(), tt.m)
			if res.Accepted {
				t.Error("invalid message accepted")
			}
			if res.Reason != ReasonInvalidMessage {
				t.Errorf("reason = %q, want %q", res.Reason, ReasonInvalidMessage)
			}
		})
	}

	// nothing reached the log
	if size, _ := fileSize(filepath.Join(dir, "ingestion.log")); size != 0 {
		t.Errorf("log size = %d after rejected messages, want 0", size)
	}
}

func TestDuplicateSuppression(t *testing.T) {
	dir := t.TempDir()
	st := newFakeStore()
	m := metrics.New(nil)
	svc, err := NewService(testServiceConfig(dir), st, m, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	svc.Start(context.Background())
	defer svc.Shutdown(context.Background())

	for i := 0; i < 2; i++ {
		if res := svc.EnqueueMessage(context.Background(), msg("A1")); !res.Accepted {
			t.Fatalf("submit %d not accepted", i)
		}
	}

	waitFor(t, func() bool {
		return m.Snapshot().Persisted >= 2
	}, "both log records persisted")

	// at-least-once: two log records, one row
	data, _ := os.ReadFile(filepath.Join(dir, "ingestion.log"))
	if n := len(splitLines(data)); n != 2 {
		t.Errorf("log lines = %d, want 2", n)
	}
	if st.count() != 1 {
		t.Errorf("rows = %d, want 1", st.count())
	}
	if dlqSize, _ := fileSize(filepath.Join(dir, "dlq.log")); dlqSize != 0 {
		t.Errorf("dlq not empty")
	}
}

func TestQueueFullStillAccepted(t *testing.T) {
	dir := t.TempDir()
	cfg := testServiceConfig(dir)
	cfg.QueueCapacity = 1
	st := newFakeStore()
	m := metrics.New(nil)
	svc, err := NewService(cfg, st, m, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	// workers not started: the queue fills immediately

	for i, id := range []string{"A1", "A2", "A3"} {
		if res := svc.EnqueueMessage(context.Background(), msg(id)); !res.Accepted {
			t.Fatalf("submit %d rejected despite durable log acceptance", i)
		}
	}
	if depth := svc.QueueDepth(); depth != 1 {
		t.Errorf("queue depth = %d, want 1", depth)
	}
	// the overflow is in the durable log, not lost
	data, _ := os.ReadFile(cfg.LogPath)
	if n := len(splitLines(data)); n != 3 {
		t.Errorf("log lines = %d, want 3", n)
	}
}

func TestCrashReplay(t *testing.T) {
	dir := t.TempDir()
	cfg := testServiceConfig(dir)

	// first process: accept 100 messages, then "crash" before any
	// persistence (workers never started)
	st1 := newFakeStore()
	m1 := metrics.New(nil)
	cfg.QueueCapacity = 5 // most records never make it past the log
	svc1, err := NewService(cfg, st1, m1, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 100; i++ {
		if res := svc1.EnqueueMessage(context.Background(), msg(msgID(i))); !res.Accepted {
			t.Fatalf("submit %d rejected", i)
		}
	}
	if st1.count() != 0 {
		t.Fatalf("rows persisted before restart: %d", st1.count())
	}
	svc1.Shutdown(context.Background())

	// restart: fresh service over the same files
	st2 := newFakeStore()
	m2 := metrics.New(nil)
	cfg.QueueCapacity = 100
	svc2, err := NewService(cfg, st2, m2, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	svc2.Start(context.Background())
	defer svc2.Shutdown(context.Background())

	waitFor(t, func() bool { return st2.count() == 100 }, "replay persisted all rows")

	logSize, _ := fileSize(cfg.LogPath)
	waitFor(t, func() bool {
		return m2.Snapshot().CheckpointOffset == logSize
	}, "checkpoint caught up to log size")
}

func msgID(i int) string {
	return "B" + string(rune('0'+i/10)) + string(rune('0'+i%10))
}
