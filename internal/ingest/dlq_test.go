package ingest

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDeadLetterFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dlq.log")
	dlq, err := OpenDLQ(path)
	if err != nil {
		t.Fatal(err)
	}
	defer dlq.Close()

	r := rec("A1")
	r.ReceivedAt = time.Now().UnixMilli()
	before := time.Now().UnixMilli()
	if err := dlq.Append(r, errors.New("null constraint violated")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := splitLines(data)
	if len(lines) != 1 {
		t.Fatalf("dlq lines = %d, want 1", len(lines))
	}

	var entry DeadLetterEntry
	if err := json.Unmarshal(lines[0], &entry); err != nil {
		t.Fatalf("dlq line not json: %v", err)
	}
	if entry.IdempotencyKey != "wa:A1" {
		t.Errorf("idempotencyKey = %q", entry.IdempotencyKey)
	}
	if entry.Error != "null constraint violated" {
		t.Errorf("error = %q", entry.Error)
	}
	if entry.DeadLetteredAt < before {
		t.Errorf("deadLetteredAt = %d, before %d", entry.DeadLetteredAt, before)
	}
	if entry.Payload.ID != "A1" {
		t.Errorf("payload id = %q", entry.Payload.ID)
	}

	// the inlined record fields survive at the top level of the line
	var raw map[string]any
	json.Unmarshal(lines[0], &raw)
	for _, key := range []string{"idempotencyKey", "correlationId", "receivedAt", "payload", "error", "deadLetteredAt"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("dlq line missing %q field", key)
		}
	}
}
