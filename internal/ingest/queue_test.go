package ingest

import (
	"testing"

	"github.com/vaibhavgoyal09/baileys-rest-api/internal/model"
)

func rec(id string) model.IngestRecord {
	return model.IngestRecord{
		IdempotencyKey: model.IdempotencyKey(id),
		CorrelationID:  "cid:" + id,
		ReceivedAt:     1,
		Payload:        model.MessageInfo{ID: id, From: "1555@s.whatsapp.net"},
	}
}

func TestQueueCapacity(t *testing.T) {
	q := NewQueue(2)

	if !q.TryEnqueue(rec("a")) || !q.TryEnqueue(rec("b")) {
		t.Fatal("enqueue within capacity failed")
	}
	if q.TryEnqueue(rec("c")) {
		t.Error("enqueue beyond capacity succeeded")
	}
	if q.Depth() != 2 {
		t.Errorf("Depth = %d, want 2", q.Depth())
	}
	if q.Capacity() != 2 {
		t.Errorf("Capacity = %d, want 2", q.Capacity())
	}
}

func TestQueueFIFO(t *testing.T) {
	q := NewQueue(10)
	for _, id := range []string{"1", "2", "3"} {
		q.TryEnqueue(rec(id))
	}
	q.Close()

	var got []string
	for r := range q.Chan() {
		got = append(got, r.Payload.ID)
	}
	want := []string{"1", "2", "3"}
	if len(got) != len(want) {
		t.Fatalf("drained %d items, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("item %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestQueueClose(t *testing.T) {
	q := NewQueue(1)
	q.TryEnqueue(rec("a"))
	q.Close()

	if q.TryEnqueue(rec("b")) {
		t.Error("enqueue after close succeeded")
	}
	// close is idempotent
	q.Close()

	// backlog still drains, then the channel reports end-of-stream
	if r, ok := <-q.Chan(); !ok || r.Payload.ID != "a" {
		t.Errorf("expected buffered item after close, got ok=%v", ok)
	}
	if _, ok := <-q.Chan(); ok {
		t.Error("expected end-of-stream after drain")
	}
}
