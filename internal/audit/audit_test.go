package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type captureRecorder struct {
	mu      sync.Mutex
	entries []Entry
	err     error
}

func (c *captureRecorder) Record(_ context.Context, e Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
	return c.err
}

func (c *captureRecorder) last(t *testing.T) Entry {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) == 0 {
		t.Fatal("no entries recorded")
	}
	return c.entries[len(c.entries)-1]
}

func TestEmitFillsIdentityAndTimestamp(t *testing.T) {
	rec := &captureRecorder{}
	Emit(context.Background(), rec, Entry{ActorID: "u1", Action: "rfp.publish", TargetKind: "rfp", TargetID: "r1"})

	got := rec.last(t)
	if got.ID == "" {
		t.Fatal("entry id not filled")
	}
	if got.OccurredAt.IsZero() {
		t.Fatal("entry timestamp not filled")
	}
	if got.Action != "rfp.publish" || got.TargetID != "r1" {
		t.Fatalf("entry mangled: %+v", got)
	}
}

func TestEmitKeepsProvidedFields(t *testing.T) {
	rec := &captureRecorder{}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	Emit(context.Background(), rec, Entry{ID: "fixed", Action: "rfp.close", OccurredAt: at})

	got := rec.last(t)
	if got.ID != "fixed" || !got.OccurredAt.Equal(at) {
		t.Fatalf("provided fields overwritten: %+v", got)
	}
}

func TestEmitSuppressesRecorderFailure(t *testing.T) {
	rec := &captureRecorder{err: errors.New("sink down")}
	// Must not panic or propagate.
	Emit(context.Background(), rec, Entry{Action: "rfp.delete"})
	Emit(context.Background(), nil, Entry{Action: "rfp.delete"})
}

func TestFanoutReachesEverySink(t *testing.T) {
	a := &captureRecorder{}
	b := &captureRecorder{err: errors.New("b failed")}
	c := &captureRecorder{}
	rec := Fanout(a, b, c)

	err := rec.Record(context.Background(), Entry{Action: "response.submit"})
	if err == nil || err.Error() != "b failed" {
		t.Fatalf("expected first sink error, got %v", err)
	}
	for name, sink := range map[string]*captureRecorder{"a": a, "b": b, "c": c} {
		if len(sink.entries) != 1 {
			t.Fatalf("sink %s recorded %d entries, want 1", name, len(sink.entries))
		}
	}
}

func TestLogRecorderRequiresAction(t *testing.T) {
	rec := NewLogRecorder()
	if err := rec.Record(context.Background(), Entry{Action: "  "}); err == nil {
		t.Fatal("empty action must fail")
	}
	if err := rec.Record(context.Background(), Entry{
		Action: "auth.token.issued", ActorID: "u1", OccurredAt: time.Now(),
		Details: map[string]string{"role": "buyer"},
	}); err != nil {
		t.Fatalf("Record: %v", err)
	}
}
