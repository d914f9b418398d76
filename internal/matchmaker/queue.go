package matchmaker

import (
	"fmt"
	"sort"
	"time"

	"arena-core/internal/arena"
	"arena-core/internal/wire"

	"github.com/google/uuid"
)

func (m *Matchmaker) handleFindMatch(cmd mmCommand) {
	ticketID := uuid.NewString()
	entry := &ticketEntry{
		ticketID:   ticketID,
		playerID:   cmd.playerID,
		rating:     cmd.rating,
		mode:       cmd.mode,
		enqueuedAt: m.clock.Now(),
		connID:     cmd.connID,
	}
	m.ticketsByID[ticketID] = entry
	m.queues[cmd.mode] = append(m.queues[cmd.mode], entry)

	cmd.reply <- mmResult{ticketID: ticketID}
	m.attemptPairing(cmd.mode)
}

func (m *Matchmaker) handleCancel(cmd mmCommand) {
	entry, ok := m.ticketsByID[cmd.ticketID]
	if !ok {
		cmd.reply <- mmResult{err: fmt.Errorf("matchmaker: unknown ticket %s", cmd.ticketID)}
		return
	}
	m.removeTicket(entry)
	cmd.reply <- mmResult{}
}

func (m *Matchmaker) handleCreateCustom(cmd mmCommand) {
	lobby := &arena.Match{
		MatchID:       uuid.NewString(),
		Mode:          cmd.mode,
		Config:        cmd.cfg,
		OwnerPlayerID: cmd.playerID,
		Status:        arena.StatusWaiting,
		CreatedAt:     m.clock.Now(),
	}
	lobby.Players = append(lobby.Players, arena.Player{PlayerID: cmd.playerID, Connected: true, LastSeenAt: m.clock.Now()})
	m.lobbies[lobby.MatchID] = lobby
	cmd.reply <- mmResult{matchID: lobby.MatchID}
}

func (m *Matchmaker) handleJoinCustom(cmd mmCommand) {
	lobby, ok := m.lobbies[cmd.matchID]
	if !ok {
		cmd.reply <- mmResult{err: fmt.Errorf("matchmaker: unknown lobby %s", cmd.matchID)}
		return
	}
	if lobby.IsParticipant(cmd.playerID) {
		cmd.reply <- mmResult{matchID: lobby.MatchID}
		return
	}
	if len(lobby.Players) >= lobby.Config.MaxPlayers {
		cmd.reply <- mmResult{err: fmt.Errorf("matchmaker: lobby %s is full", cmd.matchID)}
		return
	}
	lobby.Players = append(lobby.Players, arena.Player{PlayerID: cmd.playerID, Connected: true, LastSeenAt: m.clock.Now()})

	if len(lobby.Players) >= lobby.Config.MaxPlayers {
		m.spawnFromLobby(lobby)
	}
	cmd.reply <- mmResult{matchID: lobby.MatchID}
}

func (m *Matchmaker) spawnFromLobby(lobby *arena.Match) {
	matchID, err := m.spawner.SpawnMatch(lobby.Mode, lobby.Players, lobby.Config, lobby.OwnerPlayerID)
	delete(m.lobbies, lobby.MatchID)
	if err != nil {
		m.logger.Printf("matchmaker: failed to spawn custom lobby %s: %v", lobby.MatchID, err)
		return
	}
	m.broadcast.BroadcastToRoom(matchID, wire.Event{
		Kind:    wire.EvMatchStarting,
		MatchID: matchID,
		Payload: map[string]any{"mode": lobby.Mode},
	})
}

// handleConfirmMatch records a player's confirmation for a pending
// pairing. Once every paired player has confirmed, the match is handed
// to the Spawner; a lapse past confirmDeadline re-queues the remaining
// confirmed players at the head of their mode's queue instead of the
// tail, so an unresponsive opponent doesn't cost them their place in line.
func (m *Matchmaker) handleConfirmMatch(cmd mmCommand) {
	p, ok := m.pendingPairs[cmd.ticketID]
	if !ok {
		cmd.reply <- mmResult{err: fmt.Errorf("matchmaker: no pending pairing for ticket %s", cmd.ticketID)}
		return
	}
	found := false
	for _, pid := range p.playerIDs() {
		if pid == cmd.playerID {
			found = true
			break
		}
	}
	if !found {
		cmd.reply <- mmResult{err: fmt.Errorf("matchmaker: player %s not part of pairing", cmd.playerID)}
		return
	}
	p.confirmed[cmd.playerID] = true

	if m.allConfirmed(p) {
		matchID, err := m.spawnFromPairing(p)
		if err != nil {
			cmd.reply <- mmResult{err: err}
			m.dropPairing(p)
			return
		}
		p.matchID = matchID
		cmd.reply <- mmResult{matchID: matchID}
		m.dropPairing(p)
		return
	}
	cmd.reply <- mmResult{}
}

func (m *Matchmaker) allConfirmed(p *pairing) bool {
	for _, pid := range p.playerIDs() {
		if !p.confirmed[pid] {
			return false
		}
	}
	return true
}

func (m *Matchmaker) spawnFromPairing(p *pairing) (string, error) {
	players := make([]arena.Player, len(p.entries))
	for i, e := range p.entries {
		players[i] = arena.Player{PlayerID: e.playerID, Rating: e.rating, Connected: true, LastSeenAt: m.clock.Now()}
	}
	cfg := arena.ModeDefaults(p.mode, nil)
	matchID, err := m.spawner.SpawnMatch(p.mode, players, cfg, "")
	if err != nil {
		return "", fmt.Errorf("matchmaker: spawn match: %w", err)
	}
	for _, pid := range p.playerIDs() {
		m.broadcast.SendToPlayer(pid, wire.Event{Kind: wire.EvMatchStarting, MatchID: matchID, Payload: map[string]any{"mode": p.mode}})
	}
	return matchID, nil
}

// dropPairing removes every ticket-id alias for p from pendingPairs.
func (m *Matchmaker) dropPairing(p *pairing) {
	for _, e := range p.entries {
		delete(m.pendingPairs, e.ticketID)
	}
}

// attemptPairingAllModes runs attemptPairing over every mode with an
// active queue; called on each tick so bucket widening keeps progressing
// even with no new arrivals.
func (m *Matchmaker) attemptPairingAllModes() {
	for mode := range m.queues {
		m.attemptPairing(mode)
	}
}

// attemptPairing scans mode's queue for a compatible pair under the
// current (wait-time-widened) rating bucket, FIFO by enqueue time.
// Entries are kept sorted by enqueuedAt so the earliest-waiting ticket
// is always tried first, matching the requirement that a longer wait
// never reduces a player's chance of being paired.
func (m *Matchmaker) attemptPairing(mode arena.MatchMode) {
	q := m.queues[mode]
	if len(q) < 2 {
		return
	}
	sort.SliceStable(q, func(i, j int) bool { return q[i].enqueuedAt.Before(q[j].enqueuedAt) })

	now := m.clock.Now()
	for i := 0; i < len(q); i++ {
		a := q[i]
		bucketA := m.bucketFor(a, now)
		for j := i + 1; j < len(q); j++ {
			b := q[j]
			delta := abs(a.rating - b.rating)
			if delta > bucketA {
				continue
			}
			if delta > m.bucketFor(b, now) {
				continue
			}
			m.pairTickets(mode, a, b)
			return
		}
	}
}

// bucketFor widens a ticket's acceptable rating delta linearly with wait
// time: BucketWidenStep every BucketWidenInterval, capped at
// BucketWidenMax. A fresh ticket starts at one step, not zero, so two
// players at the same rating pair immediately rather than waiting for
// the first tick.
func (m *Matchmaker) bucketFor(e *ticketEntry, now time.Time) int {
	elapsed := now.Sub(e.enqueuedAt)
	widenings := int(elapsed/m.cfg.BucketWidenInterval) + 1
	bucket := widenings * m.cfg.BucketWidenStep
	if bucket > m.cfg.BucketWidenMax {
		bucket = m.cfg.BucketWidenMax
	}
	return bucket
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// pairTickets removes both tickets from the queue and opens a
// confirmation window rather than spawning the match immediately, so a
// stale or disconnected ticket doesn't silently consume its opponent.
func (m *Matchmaker) pairTickets(mode arena.MatchMode, a, b *ticketEntry) {
	m.removeTicket(a)
	m.removeTicket(b)

	deadline := m.clock.Now().Add(m.cfg.ConfirmWindow)
	p := &pairing{
		mode:            mode,
		entries:         []*ticketEntry{a, b},
		confirmed:       map[string]bool{},
		confirmDeadline: deadline,
	}
	// Both original ticket ids alias the same pairing, so ConfirmMatch can
	// look it up by either player's ticket id.
	m.pendingPairs[a.ticketID] = p
	m.pendingPairs[b.ticketID] = p

	m.broadcast.SendToPlayer(a.playerID, wire.Event{Kind: wire.EvMatchFound, Payload: map[string]any{
		"ticket_id": a.ticketID, "opponent_rating": b.rating, "confirm_deadline_at": deadline, "mode": mode,
	}})
	m.broadcast.SendToPlayer(b.playerID, wire.Event{Kind: wire.EvMatchFound, Payload: map[string]any{
		"ticket_id": b.ticketID, "opponent_rating": a.rating, "confirm_deadline_at": deadline, "mode": mode,
	}})
}

func (m *Matchmaker) removeTicket(e *ticketEntry) {
	delete(m.ticketsByID, e.ticketID)
	q := m.queues[e.mode]
	for i, cand := range q {
		if cand.ticketID == e.ticketID {
			m.queues[e.mode] = append(q[:i], q[i+1:]...)
			break
		}
	}
}

// expireUnconfirmedPairs re-queues confirmed players of a lapsed
// confirmation window at the head of their mode's queue (enqueuedAt
// backdated by at least one widen interval and to no later than the
// oldest ticket already waiting, so they're tried before any ticket that
// was already waiting) rather than the tail.
func (m *Matchmaker) expireUnconfirmedPairs() {
	now := m.clock.Now()
	seen := map[*pairing]bool{}
	for _, p := range m.pendingPairs {
		if seen[p] || now.Before(p.confirmDeadline) {
			continue
		}
		seen[p] = true
		for _, e := range p.entries {
			if p.confirmed[e.playerID] {
				m.requeueAtHead(e)
			}
		}
		m.dropPairing(p)
	}
}

func (m *Matchmaker) requeueAtHead(stale *ticketEntry) {
	enqueuedAt := m.clock.Now().Add(-m.cfg.BucketWidenInterval)
	for _, e := range m.queues[stale.mode] {
		if e.enqueuedAt.Before(enqueuedAt) {
			enqueuedAt = e.enqueuedAt
		}
	}
	entry := &ticketEntry{
		ticketID:   uuid.NewString(),
		playerID:   stale.playerID,
		rating:     stale.rating,
		mode:       stale.mode,
		enqueuedAt: enqueuedAt,
		connID:     stale.connID,
	}
	m.ticketsByID[entry.ticketID] = entry
	m.queues[entry.mode] = append([]*ticketEntry{entry}, m.queues[entry.mode]...)
}
