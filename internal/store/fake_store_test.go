package store

import (
	"context"
	"testing"

	"arena-core/internal/arena"
)

func TestFakeStoreGetPlayerNotFound(t *testing.T) {
	s := NewFakeStore()
	_, err := s.GetPlayer(context.Background(), "nope")
	if err != ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestFakeStoreSaveFinalResult(t *testing.T) {
	s := NewFakeStore()
	result := FinalResult{
		MatchID: "m1",
		Mode:    arena.ModeCasual,
		Reason:  "completed",
		Standings: []arena.StandingEntry{
			{PlayerID: "a", Total: 300},
			{PlayerID: "b", Total: 240},
		},
	}
	if err := s.SaveFinalResult(context.Background(), result); err != nil {
		t.Fatalf("save final result: %v", err)
	}
	if len(s.Results) != 1 || s.Results[0].MatchID != "m1" {
		t.Fatalf("expected result to be recorded, got %+v", s.Results)
	}
}
