package runtime

import (
	"context"
	"time"

	"arena-core/internal/arena"
	"arena-core/internal/store"
	"arena-core/internal/wire"
)

// onTimerFired runs whichever deadline has actually elapsed: the phase
// deadline (waiting auto-start, starting countdown, round open, or
// grading budget) and/or any player's disconnect grace window. Both can
// fire in the same wake since armTimer coalesces them into one timer.
func (r *Runtime) onTimerFired() {
	now := r.clk.Now()

	if !r.phaseDeadline.IsZero() && !now.Before(r.phaseDeadline) {
		r.phaseDeadline = time.Time{}
		r.onPhaseDeadline()
	}

	for playerID, deadline := range r.graceDeadlines {
		if !now.Before(deadline) {
			delete(r.graceDeadlines, playerID)
			r.onGraceExpired(playerID)
		}
		if r.match.Status == arena.StatusCompleted || r.match.Status == arena.StatusCancelled {
			return
		}
	}
}

func (r *Runtime) onPhaseDeadline() {
	switch r.match.Status {
	case arena.StatusWaiting:
		r.tryAutoStart()
	case arena.StatusStarting:
		r.beginInProgress()
	case arena.StatusInProgress:
		round := r.match.CurrentRound()
		if round == nil {
			return
		}
		switch round.Status {
		case arena.RoundOpen:
			r.closeSubmissionsAndGrade()
		case arena.RoundGrading:
			r.finishGradingOnBudget()
		}
	}
}

// tryAutoStart fires the waiting -> starting transition when the
// min-players auto-start timer has elapsed, regardless of explicit
// ready acks.
func (r *Runtime) tryAutoStart() {
	if r.match.Status != arena.StatusWaiting {
		return
	}
	if len(r.match.Players) < 2 && r.match.Config.MaxPlayers > 1 {
		return
	}
	r.enterStarting()
}

func (r *Runtime) readyCondition() bool {
	minPlayers := 2
	if r.match.Config.MaxPlayers < 2 {
		minPlayers = r.match.Config.MaxPlayers
	}
	if len(r.match.Players) < minPlayers {
		return false
	}
	allReady := true
	for _, p := range r.match.Players {
		if !p.Connected {
			allReady = false
			break
		}
	}
	return allReady
}

func (r *Runtime) enterStarting() {
	r.match.Status = arena.StatusStarting
	r.match.StartedAt = r.clk.Now()
	r.match.Bump()
	r.preloadNextProblem()
	r.phaseDeadline = r.clk.Now().Add(r.cfg.StartingCountdown)
	r.persistAndBroadcast(wire.Event{Kind: wire.EvMatchStarting, Payload: map[string]any{"countdown": r.cfg.StartingCountdown.Seconds()}})
}

func (r *Runtime) beginInProgress() {
	r.match.Status = arena.StatusInProgress
	r.match.Cursor = 0
	r.match.Bump()
	r.openRound(0)
}

// cancelMatch transitions the match to cancelled, persists a minimal
// final record, and broadcasts cancelled unless the match is already
// terminal (idempotent — a panic during shutdown must not double-fire).
func (r *Runtime) cancelMatch(reason string) {
	if r.match.Status == arena.StatusCompleted || r.match.Status == arena.StatusCancelled {
		return
	}
	r.match.Status = arena.StatusCancelled
	r.match.EndedAt = r.clk.Now()
	r.match.Bump()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = r.persistSnapshot(ctx, false)
	_ = r.persist.SaveFinalResult(ctx, finalResultFor(r.match, reason))

	r.broadcast.BroadcastToRoom(r.match.MatchID, wire.Event{
		Kind:    wire.EvMatchEnd,
		MatchID: r.match.MatchID,
		Version: r.match.Version,
		Payload: map[string]any{"reason": reason, "standings": r.match.Standings()},
	})
}

// completeMatch transitions to completed with final standings. winner
// is set only on a forfeit path where cursor hasn't reached round_count.
func (r *Runtime) completeMatch(reason, winner string) {
	if r.match.Status == arena.StatusCompleted || r.match.Status == arena.StatusCancelled {
		return
	}
	r.match.Status = arena.StatusCompleted
	r.match.EndedAt = r.clk.Now()
	r.match.Bump()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = r.persistSnapshot(ctx, false)
	_ = r.persist.SaveFinalResult(ctx, finalResultFor(r.match, reason))

	payload := map[string]any{"reason": reason, "standings": r.match.Standings()}
	if winner != "" {
		payload["winner"] = winner
	}
	r.broadcast.BroadcastToRoom(r.match.MatchID, wire.Event{
		Kind:    wire.EvMatchEnd,
		MatchID: r.match.MatchID,
		Version: r.match.Version,
		Payload: payload,
	})
}

func finalResultFor(m *arena.Match, reason string) store.FinalResult {
	return store.FinalResult{MatchID: m.MatchID, Mode: m.Mode, Standings: m.Standings(), Reason: reason, EndedAt: m.EndedAt}
}

// onGraceExpired ejects a player whose disconnect grace window lapsed.
// A 2-player match forfeits to the remaining player; a >2-player match
// keeps the ejected player seated with Forfeited set so they carry a
// permanent zero for subsequent rounds and still appear in standings,
// instead of vanishing from the roster entirely.
func (r *Runtime) onGraceExpired(playerID string) {
	idx := r.match.PlayerIndex(playerID)
	if idx < 0 {
		return
	}
	if len(r.match.Players) <= 2 {
		r.match.Players = append(r.match.Players[:idx], r.match.Players[idx+1:]...)
	} else {
		r.match.Players[idx].Connected = false
		r.match.Players[idx].Forfeited = true
	}
	r.match.Bump()

	r.broadcast.BroadcastToRoom(r.match.MatchID, wire.Event{
		Kind: wire.EvPlayerLeft, MatchID: r.match.MatchID, Version: r.match.Version,
		Payload: map[string]any{"player_id": playerID, "reason": "grace_expired"},
	})

	active := r.activePlayers()
	if r.match.Status == arena.StatusInProgress && len(active) == 1 {
		r.completeMatch("forfeit", active[0].PlayerID)
		return
	}
	if len(active) == 0 {
		r.cancelMatch("no_players")
	}
}

// activePlayers returns the seated players who haven't been ejected by
// forfeit, i.e. those still eligible to submit and counted by the
// end-of-match forfeit and no-player checks. Round-closing in
// handleSubmit compares against ConnectedPlayerCount instead.
func (r *Runtime) activePlayers() []arena.Player {
	out := make([]arena.Player, 0, len(r.match.Players))
	for _, p := range r.match.Players {
		if !p.Forfeited {
			out = append(out, p)
		}
	}
	return out
}

func (r *Runtime) persistAndBroadcast(ev wire.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = r.persistSnapshot(ctx, false)
	ev.MatchID = r.match.MatchID
	ev.Version = r.match.Version
	r.broadcast.BroadcastToRoom(r.match.MatchID, ev)
}
