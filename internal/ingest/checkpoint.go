package ingest

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Checkpointer persists the byte offset up to which durable-log records
// have been handed off to the queue. It deliberately does not track
// persistence: replay after a crash re-runs the idempotent upsert and the
// store absorbs duplicates.
type Checkpointer struct {
	path string
}

// NewCheckpointer creates a checkpointer backed by the file at path
func NewCheckpointer(path string) *Checkpointer {
	return &Checkpointer{path: path}
}

// Load returns the stored offset, or 0 when the file is absent,
// unparseable, or negative.
func (c *Checkpointer) Load() int64 {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return 0
	}
	off, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil || off < 0 {
		return 0
	}
	return off
}

// Save atomically rewrites the offset (write temp, rename)
func (c *Checkpointer) Save(offset int64) error {
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.FormatInt(offset, 10)), 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}
