package supervisor

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"arena-core/internal/arena"
	"arena-core/internal/clock"
	"arena-core/internal/grader"
	"arena-core/internal/runtime"
	"arena-core/internal/statestore"
	"arena-core/internal/store"
	"arena-core/internal/wire"
)

type fakeGrader struct{}

func (fakeGrader) Grade(ctx context.Context, req grader.Request, deadline time.Time) (arena.GradeReport, error) {
	return arena.GradeReport{SubmissionID: req.Submission.SubmissionID}, nil
}

type fakeBroadcaster struct{}

func (fakeBroadcaster) BroadcastToRoom(matchID string, ev wire.Event) {}
func (fakeBroadcaster) SendToPlayer(playerID string, ev wire.Event)   {}

func testLogger() *log.Logger {
	return log.New(os.Stdout, "[test] ", 0)
}

func newTestSupervisor(t *testing.T, maxMatches int) *Supervisor {
	t.Helper()
	clk := clock.NewFake(time.Unix(0, 0))
	return New(clk, statestore.NewMemoryStore(), store.NewFakeStore(), fakeGrader{}, fakeBroadcaster{},
		Config{MaxMatchesPerProcess: maxMatches, ShutdownTimeout: time.Second, RuntimeConfig: runtime.DefaultConfig},
		testLogger())
}

func testPlayers() []arena.Player {
	return []arena.Player{{PlayerID: "a", Connected: true}, {PlayerID: "b", Connected: true}}
}

func testConfig() arena.MatchConfig {
	return arena.MatchConfig{RoundCount: 1, RoundTimeLimit: 30 * time.Second, MaxPlayers: 2, LanguageWhitelist: []string{"python"}, Weights: arena.DefaultScoreWeights}
}

// TestSpawnMatchRoutesAndTracksPlayers reproduces the Router and
// PresenceTracker contracts: a spawned match routes by its returned id
// and reports as active only for its own seated players.
func TestSpawnMatchRoutesAndTracksPlayers(t *testing.T) {
	s := newTestSupervisor(t, 0)
	defer s.Shutdown(context.Background())

	matchID, err := s.SpawnMatch(arena.ModeCasual, testPlayers(), testConfig(), "a")
	if err != nil {
		t.Fatalf("spawn match: %v", err)
	}

	if _, ok := s.Route(matchID); !ok {
		t.Fatalf("expected Route to resolve the spawned match")
	}
	if _, ok := s.Route("nonexistent"); ok {
		t.Fatalf("expected Route to reject an unknown match id")
	}

	for _, pid := range []string{"a", "b"} {
		active := s.ActiveMatchesForPlayer(pid)
		if len(active) != 1 || active[0] != matchID {
			t.Fatalf("ActiveMatchesForPlayer(%s) = %v, want [%s]", pid, active, matchID)
		}
	}
	if active := s.ActiveMatchesForPlayer("stranger"); len(active) != 0 {
		t.Fatalf("expected no active matches for an unrelated player, got %v", active)
	}
}

// TestSpawnMatchAtCapacityRejects reproduces the per-process match cap:
// once MaxMatchesPerProcess is reached, further spawns fail fast rather
// than queuing.
func TestSpawnMatchAtCapacityRejects(t *testing.T) {
	s := newTestSupervisor(t, 1)
	defer s.Shutdown(context.Background())

	if _, err := s.SpawnMatch(arena.ModeCasual, testPlayers(), testConfig(), "a"); err != nil {
		t.Fatalf("first spawn: %v", err)
	}
	if _, err := s.SpawnMatch(arena.ModeCasual, testPlayers(), testConfig(), "a"); err != ErrAtCapacity {
		t.Fatalf("expected ErrAtCapacity on second spawn, got %v", err)
	}
}

// TestShutdownDrainsRunningMatches reproduces graceful shutdown: every
// running match's stop channel is closed and Shutdown waits for the
// routing table to empty before returning.
func TestShutdownDrainsRunningMatches(t *testing.T) {
	s := newTestSupervisor(t, 0)
	matchID, err := s.SpawnMatch(arena.ModeCasual, testPlayers(), testConfig(), "a")
	if err != nil {
		t.Fatalf("spawn match: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if _, ok := s.Route(matchID); ok {
		t.Fatalf("expected match to be unrouted after shutdown")
	}
}
