package runtime

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"arena-core/internal/arena"
	"arena-core/internal/clock"
	"arena-core/internal/grader"
	"arena-core/internal/statestore"
	"arena-core/internal/store"
	"arena-core/internal/wire"
)

type fakeGrader struct {
	report arena.GradeReport
	err    error
}

func (g *fakeGrader) Grade(ctx context.Context, req grader.Request, deadline time.Time) (arena.GradeReport, error) {
	if g.err != nil {
		return arena.GradeReport{}, g.err
	}
	r := g.report
	r.SubmissionID = req.Submission.SubmissionID
	return r, nil
}

type fakeBroadcaster struct {
	room   map[string][]wire.Event
	direct map[string][]wire.Event
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{room: map[string][]wire.Event{}, direct: map[string][]wire.Event{}}
}

func (f *fakeBroadcaster) BroadcastToRoom(matchID string, ev wire.Event) {
	f.room[matchID] = append(f.room[matchID], ev)
}

func (f *fakeBroadcaster) SendToPlayer(playerID string, ev wire.Event) {
	f.direct[playerID] = append(f.direct[playerID], ev)
}

func (f *fakeBroadcaster) last(matchID string) wire.Event {
	evs := f.room[matchID]
	return evs[len(evs)-1]
}

func testLogger() *log.Logger {
	return log.New(os.Stdout, "[test] ", 0)
}

func twoPlayerConfig() arena.MatchConfig {
	return arena.MatchConfig{
		RoundCount:        1,
		RoundTimeLimit:    30 * time.Second,
		MaxPlayers:        2,
		LanguageWhitelist: []string{"python"},
		Weights:           arena.DefaultScoreWeights,
	}
}

func newTestRuntime(t *testing.T, cfg arena.MatchConfig, gr *fakeGrader) (*Runtime, *clock.Fake, *fakeBroadcaster) {
	t.Helper()
	clk := clock.NewFake(time.Unix(0, 0))
	bc := newFakeBroadcaster()
	match := &arena.Match{
		MatchID: "m1",
		Mode:    arena.ModeCasual,
		Config:  cfg,
		Players: []arena.Player{
			{PlayerID: "a", Connected: true, LastSeenAt: clk.Now()},
			{PlayerID: "b", Connected: true, LastSeenAt: clk.Now()},
		},
		Status:    arena.StatusWaiting,
		CreatedAt: clk.Now(),
	}
	rt := New(match, clk, statestore.NewMemoryStore(), store.NewFakeStore(), gr, bc, nil, DefaultConfig, testLogger())
	return rt, clk, bc
}

// TestHappyPathSingleRoundMatch reproduces the 1v1, 1-round happy path:
// both players submit, both get graded, and the match completes with
// match_end as the last event.
func TestHappyPathSingleRoundMatch(t *testing.T) {
	gr := &fakeGrader{report: arena.GradeReport{Criteria: arena.Criteria{Correctness: 100, Efficiency: 100, Readability: 100, Style: 100, Innovation: 100}}}
	rt, _, bc := newTestRuntime(t, twoPlayerConfig(), gr)

	rt.handleReady(wire.Command{Kind: wire.CmdReady, PlayerID: "a"})
	rt.handleReady(wire.Command{Kind: wire.CmdReady, PlayerID: "b"})
	if rt.match.Status != arena.StatusStarting {
		t.Fatalf("status = %s, want starting", rt.match.Status)
	}

	rt.beginInProgress()
	if rt.match.Status != arena.StatusInProgress {
		t.Fatalf("status = %s, want in_progress", rt.match.Status)
	}
	round := rt.match.CurrentRound()
	if round == nil || round.Status != arena.RoundOpen {
		t.Fatalf("expected an open round, got %+v", round)
	}

	rt.handleSubmit(wire.Command{Kind: wire.CmdSubmitSolution, PlayerID: "a", ConnID: "ca", Code: "print(1)", Language: "python"})
	rt.handleSubmit(wire.Command{Kind: wire.CmdSubmitSolution, PlayerID: "b", ConnID: "cb", Code: "print(1)", Language: "python"})

	if round.Status != arena.RoundGrading {
		t.Fatalf("round status = %s, want grading once both submitted", round.Status)
	}

	drainGrades(t, rt, 2)

	if rt.match.Status != arena.StatusCompleted {
		t.Fatalf("status = %s, want completed", rt.match.Status)
	}
	final := bc.last("m1")
	if final.Kind != wire.EvMatchEnd {
		t.Fatalf("last event = %s, want match_end", final.Kind)
	}
}

// TestGraderOutageFallback reproduces a grader outage: the client errors
// on every call, so both submissions resolve via the fallback verdict
// instead of hanging the round indefinitely.
func TestGraderOutageFallback(t *testing.T) {
	gr := &fakeGrader{err: context.DeadlineExceeded}
	rt, _, _ := newTestRuntime(t, twoPlayerConfig(), gr)

	rt.handleReady(wire.Command{Kind: wire.CmdReady, PlayerID: "a"})
	rt.handleReady(wire.Command{Kind: wire.CmdReady, PlayerID: "b"})
	rt.beginInProgress()

	rt.handleSubmit(wire.Command{Kind: wire.CmdSubmitSolution, PlayerID: "a", ConnID: "ca", Code: "print(1)", Language: "python"})
	rt.handleSubmit(wire.Command{Kind: wire.CmdSubmitSolution, PlayerID: "b", ConnID: "cb", Code: "print(1)", Language: "python"})

	drainGrades(t, rt, 2)

	if rt.match.Status != arena.StatusCompleted {
		t.Fatalf("status = %s, want completed despite grader outage", rt.match.Status)
	}
	round := rt.match.Rounds[0]
	for pid, report := range round.Grades {
		if report.Verdict != arena.VerdictGraderError {
			t.Fatalf("player %s verdict = %s, want grader_error fallback", pid, report.Verdict)
		}
	}
}

// TestMidMatchDisconnectAndReconnect reproduces a disconnect during an
// open round followed by a reconnect before the grace window lapses:
// the player keeps their seat and the grace deadline clears.
func TestMidMatchDisconnectAndReconnect(t *testing.T) {
	gr := &fakeGrader{report: arena.GradeReport{Criteria: arena.Criteria{Correctness: 50}}}
	rt, clk, _ := newTestRuntime(t, twoPlayerConfig(), gr)

	rt.handleReady(wire.Command{Kind: wire.CmdReady, PlayerID: "a"})
	rt.handleReady(wire.Command{Kind: wire.CmdReady, PlayerID: "b"})
	rt.beginInProgress()

	rt.handleLeave(wire.Command{Kind: wire.CmdLeaveGame, PlayerID: "a"})
	if _, graced := rt.graceDeadlines["a"]; !graced {
		t.Fatalf("expected a's disconnect to start a grace window")
	}
	if rt.match.PlayerIndex("a") < 0 {
		t.Fatalf("disconnected player should keep their seat")
	}

	clk.Advance(5 * time.Second)
	rt.handleResync(wire.Command{Kind: wire.CmdGetGameState, PlayerID: "a"})

	if _, stillGraced := rt.graceDeadlines["a"]; stillGraced {
		t.Fatalf("reconnect should clear the grace window")
	}
	idx := rt.match.PlayerIndex("a")
	if idx < 0 || !rt.match.Players[idx].Connected {
		t.Fatalf("reconnected player should be marked connected")
	}
}

// TestForfeitByGraceExpiry reproduces a 2-player match where one player's
// disconnect grace window lapses: the match forfeits to the remaining
// player rather than waiting out the round.
func TestForfeitByGraceExpiry(t *testing.T) {
	gr := &fakeGrader{report: arena.GradeReport{}}
	rt, _, bc := newTestRuntime(t, twoPlayerConfig(), gr)

	rt.handleReady(wire.Command{Kind: wire.CmdReady, PlayerID: "a"})
	rt.handleReady(wire.Command{Kind: wire.CmdReady, PlayerID: "b"})
	rt.beginInProgress()

	rt.handleLeave(wire.Command{Kind: wire.CmdLeaveGame, PlayerID: "a"})
	rt.onGraceExpired("a")

	if rt.match.Status != arena.StatusCompleted {
		t.Fatalf("status = %s, want completed by forfeit", rt.match.Status)
	}
	final := bc.last("m1")
	payload, ok := final.Payload.(map[string]any)
	if !ok || payload["winner"] != "b" {
		t.Fatalf("expected b to win by forfeit, payload = %+v", final.Payload)
	}
}

// TestForfeitGraceExpiryInLargerMatchContinues reproduces a >2-player
// match where one player's disconnect grace window lapses: that player
// stays seated with Forfeited set and a permanent zero going forward
// instead of vanishing from the roster, and the match keeps running.
func TestForfeitGraceExpiryInLargerMatchContinues(t *testing.T) {
	cfg := twoPlayerConfig()
	cfg.MaxPlayers = 3
	cfg.RoundCount = 2
	gr := &fakeGrader{report: arena.GradeReport{Criteria: arena.Criteria{Correctness: 100, Efficiency: 100, Readability: 100, Style: 100, Innovation: 100}}}
	rt, clk, _ := newTestRuntime(t, cfg, gr)
	rt.match.Players = append(rt.match.Players, arena.Player{PlayerID: "c", Connected: true, LastSeenAt: clk.Now()})

	rt.handleReady(wire.Command{Kind: wire.CmdReady, PlayerID: "a"})
	rt.handleReady(wire.Command{Kind: wire.CmdReady, PlayerID: "b"})
	rt.handleReady(wire.Command{Kind: wire.CmdReady, PlayerID: "c"})
	rt.beginInProgress()

	rt.handleLeave(wire.Command{Kind: wire.CmdLeaveGame, PlayerID: "c"})
	rt.onGraceExpired("c")

	if rt.match.Status != arena.StatusInProgress {
		t.Fatalf("status = %s, want in_progress to continue with two active players", rt.match.Status)
	}
	idx := rt.match.PlayerIndex("c")
	if idx < 0 {
		t.Fatalf("forfeited player should remain seated in Players")
	}
	if !rt.match.Players[idx].Forfeited {
		t.Fatalf("expected c to be marked Forfeited")
	}

	forfeitAck := make(chan wire.Ack, 1)
	rt.handleSubmit(wire.Command{Kind: wire.CmdSubmitSolution, PlayerID: "c", ConnID: "cc", Code: "print(1)", Language: "python", Ack: forfeitAck})
	if got := <-forfeitAck; got.OK || got.Code != "forfeited" {
		t.Fatalf("forfeited player should not be able to submit, ack = %+v", got)
	}

	rt.handleSubmit(wire.Command{Kind: wire.CmdSubmitSolution, PlayerID: "a", ConnID: "ca", Code: "print(1)", Language: "python"})
	rt.handleSubmit(wire.Command{Kind: wire.CmdSubmitSolution, PlayerID: "b", ConnID: "cb", Code: "print(1)", Language: "python"})
	if rt.match.CurrentRound().Status != arena.RoundGrading {
		t.Fatalf("round should close to grading once both active players submit, forfeited player excluded")
	}

	drainGrades(t, rt, 2)

	standings := rt.match.Standings()
	for _, s := range standings {
		if s.PlayerID == "c" && s.Total != 0 {
			t.Fatalf("forfeited player's total = %d, want 0", s.Total)
		}
	}
}

// TestOwnerTransferOnOwnerLeave reproduces a waiting custom lobby whose
// owner disconnects: ownership passes to the next connected player
// instead of stranding the lobby.
func TestOwnerTransferOnOwnerLeave(t *testing.T) {
	cfg := twoPlayerConfig()
	cfg.MaxPlayers = 3
	gr := &fakeGrader{}
	rt, clk, _ := newTestRuntime(t, cfg, gr)
	rt.match.OwnerPlayerID = "a"
	rt.match.Players = append(rt.match.Players, arena.Player{PlayerID: "c", Connected: true, LastSeenAt: clk.Now()})

	rt.handleLeave(wire.Command{Kind: wire.CmdLeaveGame, PlayerID: "a"})

	if rt.match.OwnerPlayerID != "b" {
		t.Fatalf("owner = %s, want b to inherit ownership", rt.match.OwnerPlayerID)
	}
	ack := make(chan wire.Ack, 1)
	rt.handleStartGame(wire.Command{Kind: wire.CmdStartGame, PlayerID: "b", Ack: ack})
	if got := <-ack; !got.OK {
		t.Fatalf("expected new owner to be able to start the match, got %+v", got)
	}
}

// drainGrades waits for n grade results on the runtime's grades channel
// and applies each one, standing in for the select loop in Run.
func drainGrades(t *testing.T, rt *Runtime, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case gr := <-rt.grades:
			rt.onGradeResult(gr)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for grade result %d/%d", i+1, n)
		}
	}
}
