package ingest

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/vaibhavgoyal09/baileys-rest-api/internal/metrics"
	"github.com/vaibhavgoyal09/baileys-rest-api/internal/model"
)

func writeLogLines(t *testing.T, path string, lines ...[]byte) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	for _, line := range lines {
		if _, err := f.Write(append(line, '\n')); err != nil {
			t.Fatal(err)
		}
	}
}

func recordLine(t *testing.T, id string) []byte {
	t.Helper()
	data, err := json.Marshal(rec(id))
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func drainQueue(q *Queue) []model.IngestRecord {
	var out []model.IngestRecord
	for {
		select {
		case r := <-q.Chan():
			out = append(out, r)
		default:
			return out
		}
	}
}

func TestReplaySkipsCorruptLines(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "ingestion.log")
	writeLogLines(t, logPath,
		recordLine(t, "good1"),
		[]byte("{this is not json"),
		recordLine(t, "good2"),
	)

	q := NewQueue(10)
	m := metrics.New(nil)
	cp := NewCheckpointer(filepath.Join(dir, "offset"))
	r := NewReplayer(logPath, cp, q, m, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)

	waitFor(t, func() bool { return q.Depth() == 2 }, "both valid records enqueued")
	cancel()

	got := drainQueue(q)
	if got[0].Payload.ID != "good1" || got[1].Payload.ID != "good2" {
		t.Errorf("replayed ids = %s, %s", got[0].Payload.ID, got[1].Payload.ID)
	}
	snap := m.Snapshot()
	if snap.Errors[metrics.ErrReplayParse] != 1 {
		t.Errorf("replay_parse_error = %d, want 1", snap.Errors[metrics.ErrReplayParse])
	}
	size, _ := fileSize(logPath)
	if snap.CheckpointOffset != size {
		t.Errorf("offset = %d, want %d (past the corrupt line)", snap.CheckpointOffset, size)
	}
}

func TestReplayIgnoresPartialTail(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "ingestion.log")
	writeLogLines(t, logPath, recordLine(t, "complete"))
	// partial record without trailing newline
	f, err := os.OpenFile(logPath, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	f.Write([]byte(`{"idempotencyKey":"wa:par`))
	f.Close()

	q := NewQueue(10)
	m := metrics.New(nil)
	cp := NewCheckpointer(filepath.Join(dir, "offset"))
	r := NewReplayer(logPath, cp, q, m, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)

	waitFor(t, func() bool { return q.Depth() == 1 }, "complete record enqueued")
	cancel()

	if got := drainQueue(q); got[0].Payload.ID != "complete" {
		t.Errorf("replayed id = %s", got[0].Payload.ID)
	}
	// the offset never advanced past the partial line
	line := recordLine(t, "complete")
	wantOffset := int64(len(line) + 1)
	if off := r.Offset(); off != wantOffset {
		t.Errorf("offset = %d, want %d", off, wantOffset)
	}
	if m.Snapshot().Errors[metrics.ErrReplayParse] != 0 {
		t.Error("partial tail counted as parse error")
	}
}

func TestReplayResetsWhenLogShrinks(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "ingestion.log")
	writeLogLines(t, logPath, recordLine(t, "fresh"))

	// checkpoint far beyond the (rotated) log
	cp := NewCheckpointer(filepath.Join(dir, "offset"))
	if err := cp.Save(999999); err != nil {
		t.Fatal(err)
	}

	q := NewQueue(10)
	m := metrics.New(nil)
	r := NewReplayer(logPath, cp, q, m, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)

	waitFor(t, func() bool { return q.Depth() == 1 }, "record redelivered after reset")
	cancel()

	if got := drainQueue(q); got[0].Payload.ID != "fresh" {
		t.Errorf("replayed id = %s", got[0].Payload.ID)
	}
}

func TestReplayPicksUpGrowth(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "ingestion.log")
	writeLogLines(t, logPath, recordLine(t, "first"))

	q := NewQueue(10)
	m := metrics.New(nil)
	cp := NewCheckpointer(filepath.Join(dir, "offset"))
	r := NewReplayer(logPath, cp, q, m, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)

	waitFor(t, func() bool { return q.Depth() == 1 }, "first record")

	writeLogLines(t, logPath, recordLine(t, "second"))
	waitFor(t, func() bool { return q.Depth() == 2 }, "appended record picked up")
	cancel()
}

func TestTrySkipOnlyWhenCaughtUp(t *testing.T) {
	dir := t.TempDir()
	q := NewQueue(10)
	m := metrics.New(nil)
	cp := NewCheckpointer(filepath.Join(dir, "offset"))
	r := NewReplayer(filepath.Join(dir, "ingestion.log"), cp, q, m, zerolog.Nop())

	if !r.TrySkip(0, 100) {
		t.Error("skip from the current offset should succeed")
	}
	if r.Offset() != 100 {
		t.Errorf("offset = %d, want 100", r.Offset())
	}
	if r.TrySkip(50, 200) {
		t.Error("skip from a stale offset should fail")
	}
	if r.Offset() != 100 {
		t.Errorf("offset = %d after failed skip, want 100", r.Offset())
	}
}
