package statestore

import (
	"context"
	"testing"
)

func TestMemoryStoreCASConflict(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.CASSet(ctx, "match:1", 0, []byte("v1")); err != nil {
		t.Fatalf("initial cas_set: %v", err)
	}
	v, err := s.Get(ctx, "match:1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v.Version != 1 {
		t.Fatalf("version = %d, want 1", v.Version)
	}

	if err := s.CASSet(ctx, "match:1", 0, []byte("stale")); err != ErrConflict {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := s.CASSet(ctx, "match:1", 1, []byte("v2")); err != nil {
		t.Fatalf("cas_set with correct version: %v", err)
	}
}

func TestMemoryStoreZPopMinIfSkipsRejected(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.ZAdd(ctx, "queue:ranked:0", 10, "p1") // rating 1400, enqueued first
	s.ZAdd(ctx, "queue:ranked:0", 20, "p2") // rating 1000

	// Reject the oldest member once (simulating bucket mismatch), accept
	// the next.
	called := 0
	m, err := s.ZPopMinIf(ctx, "queue:ranked:0", func(member string, score float64) bool {
		called++
		return member == "p2"
	})
	if err != nil {
		t.Fatalf("zpop_min_if: %v", err)
	}
	if m.Member != "p2" {
		t.Fatalf("popped %s, want p2", m.Member)
	}
	if called != 2 {
		t.Fatalf("predicate called %d times, want 2", called)
	}

	card, _ := s.ZCard(ctx, "queue:ranked:0")
	if card != 1 {
		t.Fatalf("queue card = %d, want 1 (p1 remains)", card)
	}
}

func TestMemoryStorePubSub(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	sub, err := s.Subscribe(ctx, "match:1:events")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	if err := s.Publish(ctx, "match:1:events", []byte("round_start")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case ev := <-sub.Events():
		if string(ev.Payload) != "round_start" {
			t.Fatalf("payload = %s, want round_start", ev.Payload)
		}
	default:
		t.Fatal("expected buffered event to be immediately available")
	}
}
