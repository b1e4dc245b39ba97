package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/vaibhavgoyal09/baileys-rest-api/internal/model"
)

// DeadLetterEntry is one permanently failed record plus the diagnostic
// error, preserved for operator triage.
type DeadLetterEntry struct {
	model.IngestRecord
	Error          string `json:"error"`
	DeadLetteredAt int64  `json:"deadLetteredAt"` // milliseconds since epoch
}

// DeadLetterLog is the append-only JSON-lines file of records that
// exhausted their retry budget or hit a non-transient store error.
type DeadLetterLog struct {
	mu sync.Mutex
	f  *os.File
}

// OpenDLQ opens (or creates) the dead-letter log at path
func OpenDLQ(path string) (*DeadLetterLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open dead-letter log: %w", err)
	}
	return &DeadLetterLog{f: f}, nil
}

// Append writes one dead-letter line and fsyncs it
func (d *DeadLetterLog) Append(rec model.IngestRecord, cause error) error {
	entry := DeadLetterEntry{
		IngestRecord:   rec,
		Error:          cause.Error(),
		DeadLetteredAt: time.Now().UnixMilli(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal dead-letter entry: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append dead-letter log: %w", err)
	}
	return d.f.Sync()
}

// Close closes the writer handle
func (d *DeadLetterLog) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.f.Close()
}
