package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/vaibhavgoyal09/baileys-rest-api/internal/model"
)

// DurableLog is the append-only JSON-lines file that anchors at-least-once
// delivery: a record is accepted only after its line has been fsynced.
// One writer per process; the replay loop reads through its own handle.
type DurableLog struct {
	mu   sync.Mutex
	f    *os.File
	path string
	size int64
}

// OpenLog opens (or creates) the durable log at path
func OpenLog(path string) (*DurableLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open durable log: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat durable log: %w", err)
	}
	return &DurableLog{f: f, path: path, size: st.Size()}, nil
}

// Append serializes the record as one JSON line and fsyncs before
// returning. It reports the byte range [start, end) the line occupies so
// the producer can reconcile with the replay offset.
func (l *DurableLog) Append(rec model.IngestRecord) (start, end int64, err error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return 0, 0, fmt.Errorf("marshal ingest record: %w", err)
	}
	line := append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	start = l.size
	n, err := l.f.Write(line)
	if err != nil {
		// A short write leaves a partial line at the tail; the replay
		// parser discards it because it has no terminating newline.
		l.size += int64(n)
		return 0, 0, fmt.Errorf("append durable log: %w", err)
	}
	if err := l.f.Sync(); err != nil {
		l.size += int64(n)
		return 0, 0, fmt.Errorf("fsync durable log: %w", err)
	}
	l.size += int64(n)
	return start, l.size, nil
}

// SizeBytes returns the current log length
func (l *DurableLog) SizeBytes() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

// Path returns the backing file path (the replay loop opens its own
// read handle there)
func (l *DurableLog) Path() string {
	return l.path
}

// Close closes the writer handle
func (l *DurableLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}
