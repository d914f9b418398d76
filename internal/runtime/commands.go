package runtime

import (
	"time"

	"arena-core/internal/arena"
	"arena-core/internal/wire"
)

func (r *Runtime) handleJoin(cmd wire.Command) {
	if r.match.Status != arena.StatusWaiting {
		r.ack(cmd, wire.Ack{OK: false, Code: "not_joinable"})
		return
	}
	if r.match.IsParticipant(cmd.PlayerID) {
		r.reconnectParticipant(cmd.PlayerID)
		r.ack(cmd, wire.Ack{OK: true})
		return
	}
	if len(r.match.Players) >= r.match.Config.MaxPlayers {
		r.ack(cmd, wire.Ack{OK: false, Code: "full"})
		return
	}
	r.match.Players = append(r.match.Players, arena.Player{PlayerID: cmd.PlayerID, Connected: true, LastSeenAt: r.clk.Now()})
	r.match.Bump()
	r.ack(cmd, wire.Ack{OK: true})
	r.persistAndBroadcast(wire.Event{Kind: wire.EvPlayerJoined, Payload: map[string]any{"player_id": cmd.PlayerID}})

	if r.waitingSince.IsZero() {
		r.waitingSince = r.clk.Now()
	}
	if len(r.match.Players) >= 2 && r.phaseDeadline.IsZero() {
		r.phaseDeadline = r.clk.Now().Add(r.cfg.AutoStartTimeout)
	}
	if r.readyCondition() {
		r.enterStarting()
	}
}

func (r *Runtime) handleLeave(cmd wire.Command) {
	idx := r.match.PlayerIndex(cmd.PlayerID)
	if idx < 0 {
		r.ack(cmd, wire.Ack{OK: false, Code: "not_a_participant"})
		return
	}
	switch r.match.Status {
	case arena.StatusWaiting, arena.StatusStarting:
		wasOwner := r.match.OwnerPlayerID != "" && cmd.PlayerID == r.match.OwnerPlayerID
		r.match.Players = append(r.match.Players[:idx], r.match.Players[idx+1:]...)
		if wasOwner && len(r.match.Players) > 0 {
			r.match.OwnerPlayerID = r.nextOwner()
		}
		r.match.Bump()
		r.ack(cmd, wire.Ack{OK: true})
		r.persistAndBroadcast(wire.Event{Kind: wire.EvPlayerLeft, Payload: map[string]any{"player_id": cmd.PlayerID}})
		if r.match.Status == arena.StatusStarting && len(r.match.Players) < 2 {
			r.cancelMatch("player_drop_no_recover")
		} else if r.match.ConnectedPlayerCount() == 0 {
			r.cancelMatch("no_players")
		}
	default:
		r.markDisconnected(cmd.PlayerID)
		r.ack(cmd, wire.Ack{OK: true})
	}
}

func (r *Runtime) handleReady(cmd wire.Command) {
	idx := r.match.PlayerIndex(cmd.PlayerID)
	if idx < 0 {
		r.ack(cmd, wire.Ack{OK: false, Code: "not_a_participant"})
		return
	}
	r.match.Players[idx].Connected = true
	r.match.Bump()
	r.ack(cmd, wire.Ack{OK: true})
	if r.match.Status == arena.StatusWaiting && r.readyCondition() {
		r.enterStarting()
	}
}

func (r *Runtime) handleStartGame(cmd wire.Command) {
	if r.match.OwnerPlayerID != "" && cmd.PlayerID != r.match.OwnerPlayerID {
		r.ack(cmd, wire.Ack{OK: false, Code: "not_owner"})
		return
	}
	if r.match.Status != arena.StatusWaiting || len(r.match.Players) < 2 {
		r.ack(cmd, wire.Ack{OK: false, Code: "not_ready"})
		return
	}
	r.ack(cmd, wire.Ack{OK: true})
	r.enterStarting()
}

// handleSubmit is the submission-intake path: round-open check, language
// whitelist, content validation, last-write-wins replace, ack, and an
// early close-to-grading if every active player has now submitted.
func (r *Runtime) handleSubmit(cmd wire.Command) {
	round := r.match.CurrentRound()
	if round == nil || round.Status != arena.RoundOpen {
		r.ack(cmd, wire.Ack{OK: false, Code: "round_not_open"})
		return
	}
	if !r.match.IsParticipant(cmd.PlayerID) {
		r.ack(cmd, wire.Ack{OK: false, Code: "not_a_participant"})
		return
	}
	if idx := r.match.PlayerIndex(cmd.PlayerID); idx >= 0 && r.match.Players[idx].Forfeited {
		r.ack(cmd, wire.Ack{OK: false, Code: "forfeited"})
		return
	}
	if err := arena.ValidateSubmission(cmd.Code, cmd.Language, r.match.Config); err != nil {
		r.ack(cmd, wire.Ack{OK: false, Code: "invalid_submission", Message: err.Error()})
		return
	}

	sub := arena.Submission{
		SubmissionID: cmd.ConnID + ":" + r.clk.Now().Format(time.RFC3339Nano),
		MatchID:      r.match.MatchID,
		RoundIndex:   round.RoundIndex,
		PlayerID:     cmd.PlayerID,
		Code:         cmd.Code,
		Language:     cmd.Language,
		SubmittedAt:  r.clk.Now(),
	}
	round.Submissions[cmd.PlayerID] = sub
	r.match.Bump()
	r.ack(cmd, wire.Ack{OK: true, Code: "submitted"})
	r.archiveSubmission(sub)

	r.broadcast.BroadcastToRoom(r.match.MatchID, wire.Event{
		Kind: wire.EvSubmissionAck, MatchID: r.match.MatchID, Version: r.match.Version,
		Payload: map[string]any{"player_id": cmd.PlayerID, "round_index": round.RoundIndex},
	})

	if len(round.Submissions) >= r.match.ConnectedPlayerCount() {
		r.closeSubmissionsAndGrade()
	}
}

// nextOwner picks the earliest-joined connected player to inherit
// ownership of a waiting custom lobby, falling back to the
// earliest-joined player overall if none are currently connected.
func (r *Runtime) nextOwner() string {
	for _, p := range r.match.Players {
		if p.Connected {
			return p.PlayerID
		}
	}
	return r.match.Players[0].PlayerID
}

func (r *Runtime) handleSpectate(cmd wire.Command) {
	if !r.match.Config.AllowsSpectator(cmd.PlayerID) {
		r.ack(cmd, wire.Ack{OK: false, Code: "spectation_denied"})
		return
	}
	for _, s := range r.match.Spectators {
		if s.PlayerID == cmd.PlayerID {
			r.ack(cmd, wire.Ack{OK: true})
			return
		}
	}
	r.match.Spectators = append(r.match.Spectators, arena.Player{PlayerID: cmd.PlayerID, Connected: true, LastSeenAt: r.clk.Now()})
	r.match.Bump()
	r.ack(cmd, wire.Ack{OK: true})
}

func (r *Runtime) handleStopSpectating(cmd wire.Command) {
	for i, s := range r.match.Spectators {
		if s.PlayerID == cmd.PlayerID {
			r.match.Spectators = append(r.match.Spectators[:i], r.match.Spectators[i+1:]...)
			r.match.Bump()
			break
		}
	}
	r.ack(cmd, wire.Ack{OK: true})
}

// handleResync responds with a full snapshot packet so a reconnecting
// client can replay the live event stream from this version forward.
func (r *Runtime) handleResync(cmd wire.Command) {
	r.broadcast.SendToPlayer(cmd.PlayerID, wire.Event{
		Kind: wire.EvResync, MatchID: r.match.MatchID, Version: r.match.Version,
		Payload: snapshotPayload(r.match),
	})
	r.ack(cmd, wire.Ack{OK: true})
	if r.match.IsParticipant(cmd.PlayerID) {
		r.reconnectParticipant(cmd.PlayerID)
	}
}

func snapshotPayload(m *arena.Match) map[string]any {
	payload := map[string]any{
		"status": m.Status,
		"cursor": m.Cursor,
	}
	if round := m.CurrentRound(); round != nil {
		payload["current_round"] = round
	}
	totals := map[string]int{}
	for _, rd := range m.Rounds {
		for pid, s := range rd.Scores {
			totals[pid] += s
		}
	}
	payload["scores"] = totals
	return payload
}

func (r *Runtime) handleChat(cmd wire.Command) {
	r.broadcast.BroadcastToRoom(r.match.MatchID, wire.Event{
		Kind: wire.EvChatMessage, MatchID: r.match.MatchID, Version: r.match.Version,
		Payload: map[string]any{"player_id": cmd.PlayerID, "text": cmd.Text},
	})
	r.ack(cmd, wire.Ack{OK: true})
}

func (r *Runtime) handleTyping(cmd wire.Command) {
	r.broadcast.BroadcastToRoom(r.match.MatchID, wire.Event{
		Kind: wire.EvUserTyping, MatchID: r.match.MatchID,
		Payload: map[string]any{"player_id": cmd.PlayerID, "is_typing": cmd.IsTyping},
	})
}

// reconnectParticipant clears a player's disconnect grace window and
// marks them connected again. A no-op for a player already ejected by
// forfeit: they stay seated for standings but can't rejoin play.
func (r *Runtime) reconnectParticipant(playerID string) {
	delete(r.graceDeadlines, playerID)
	idx := r.match.PlayerIndex(playerID)
	if idx < 0 || r.match.Players[idx].Forfeited {
		return
	}
	r.match.Players[idx].Connected = true
	r.match.Players[idx].DisconnectedAt = time.Time{}
	r.match.Players[idx].LastSeenAt = r.clk.Now()
	r.match.Bump()
}

// markDisconnected starts a player's grace window rather than removing
// them immediately, so a brief drop mid-round doesn't cost their seat.
func (r *Runtime) markDisconnected(playerID string) {
	idx := r.match.PlayerIndex(playerID)
	if idx < 0 {
		return
	}
	r.match.Players[idx].Connected = false
	r.match.Players[idx].DisconnectedAt = r.clk.Now()
	r.match.Bump()
	r.graceDeadlines[playerID] = r.clk.Now().Add(r.cfg.DisconnectGrace)
}
