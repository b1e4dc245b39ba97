package ingest

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vaibhavgoyal09/baileys-rest-api/internal/model"
)

func TestDurableLogAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ingestion.log")
	l, err := OpenLog(path)
	if err != nil {
		t.Fatalf("OpenLog: %v", err)
	}
	defer l.Close()

	start1, end1, err := l.Append(rec("A1"))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if start1 != 0 {
		t.Errorf("first record start = %d, want 0", start1)
	}
	start2, end2, err := l.Append(rec("A2"))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if start2 != end1 {
		t.Errorf("second record start = %d, want %d", start2, end1)
	}
	if l.SizeBytes() != end2 {
		t.Errorf("SizeBytes = %d, want %d", l.SizeBytes(), end2)
	}

	// each line is a self-contained JSON record, LF terminated
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(string(data), "\n") {
		t.Error("log does not end with LF")
	}
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	var keys []string
	for scanner.Scan() {
		var r model.IngestRecord
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			t.Fatalf("line not a record: %v", err)
		}
		keys = append(keys, r.IdempotencyKey)
	}
	if len(keys) != 2 || keys[0] != "wa:A1" || keys[1] != "wa:A2" {
		t.Errorf("log keys = %v", keys)
	}
}

func TestDurableLogReopenPreservesOffsets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ingestion.log")
	l, err := OpenLog(path)
	if err != nil {
		t.Fatal(err)
	}
	_, end, err := l.Append(rec("A1"))
	if err != nil {
		t.Fatal(err)
	}
	l.Close()

	l2, err := OpenLog(path)
	if err != nil {
		t.Fatal(err)
	}
	defer l2.Close()
	if l2.SizeBytes() != end {
		t.Errorf("reopened size = %d, want %d", l2.SizeBytes(), end)
	}
	start2, _, err := l2.Append(rec("A2"))
	if err != nil {
		t.Fatal(err)
	}
	if start2 != end {
		t.Errorf("append after reopen starts at %d, want %d", start2, end)
	}
}
