// Package supervisor implements the Supervisor: owns match_id -> mailbox
// routing, spawns MatchRuntime goroutines, records ownership in
// StateStore, and drives graceful shutdown. Grounded on
// cmd/server/main.go's gracefulShutdown (signal.Notify + bounded
// Shutdown(ctx)) generalized from "one HTTP server" to "N match
// runtimes plus the matchmaker actor".
package supervisor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"arena-core/internal/arena"
	"arena-core/internal/clock"
	"arena-core/internal/grader"
	"arena-core/internal/matchmaker"
	"arena-core/internal/runtime"
	"arena-core/internal/statestore"
	"arena-core/internal/store"
	"arena-core/internal/wire"

	"github.com/google/uuid"
)

var ErrAtCapacity = fmt.Errorf("supervisor: at per-process match capacity")

// Config holds the supervisor's tunables.
type Config struct {
	MaxMatchesPerProcess int
	InstanceID           string
	ShutdownTimeout      time.Duration
	RuntimeConfig        runtime.Config
}

type runningMatch struct {
	mailbox   wire.Mailbox
	stop      chan struct{}
	playerIDs map[string]bool
}

// Supervisor implements wire.Router (for the SessionHub) and
// matchmaker.Spawner (for the Matchmaker).
type Supervisor struct {
	clk       clock.Source
	snapshots statestore.Store
	persist   store.Store
	grade     grader.Client
	broadcast wire.Broadcaster
	cfg       Config
	logger    *log.Logger

	mu      sync.RWMutex
	matches map[string]*runningMatch
}

func New(clk clock.Source, snapshots statestore.Store, persist store.Store, gr grader.Client, broadcast wire.Broadcaster, cfg Config, logger *log.Logger) *Supervisor {
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}
	return &Supervisor{
		clk: clk, snapshots: snapshots, persist: persist, grade: gr, broadcast: broadcast,
		cfg: cfg, logger: logger, matches: make(map[string]*runningMatch),
	}
}

// Route implements wire.Router.
func (s *Supervisor) Route(matchID string) (wire.Mailbox, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.matches[matchID]
	if !ok {
		return nil, false
	}
	return m.mailbox, true
}

// ActiveMatchesForPlayer implements hub.PresenceTracker: used on
// reconnect to find which of this player's matches are still live in
// this process, so the hub can re-attach the room and request a resync.
func (s *Supervisor) ActiveMatchesForPlayer(playerID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for matchID, m := range s.matches {
		if m.playerIDs[playerID] {
			out = append(out, matchID)
		}
	}
	return out
}

// SpawnMatch implements matchmaker.Spawner: builds the Match aggregate,
// fetches its problem pool, starts the runtime goroutine, and records
// ownership in StateStore so any process's SessionHub can route to it.
func (s *Supervisor) SpawnMatch(mode arena.MatchMode, players []arena.Player, cfg arena.MatchConfig, ownerPlayerID string) (string, error) {
	s.mu.Lock()
	if s.cfg.MaxMatchesPerProcess > 0 && len(s.matches) >= s.cfg.MaxMatchesPerProcess {
		s.mu.Unlock()
		return "", ErrAtCapacity
	}
	s.mu.Unlock()

	match := &arena.Match{
		MatchID:       uuid.NewString(),
		Mode:          mode,
		Config:        cfg,
		OwnerPlayerID: ownerPlayerID,
		Players:       players,
		Status:        arena.StatusWaiting,
		CreatedAt:     s.clk.Now(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	problems, err := s.persist.GetProblemsByMode(ctx, mode, cfg.RoundCount)
	cancel()
	if err != nil {
		s.logger.Printf("supervisor: failed to fetch problem pool for match %s: %v", match.MatchID, err)
	}

	rt := runtime.New(match, s.clk, s.snapshots, s.persist, s.grade, s.broadcast, problems, s.cfg.RuntimeConfig, s.logger)

	playerIDs := make(map[string]bool, len(players))
	for _, p := range players {
		playerIDs[p.PlayerID] = true
	}

	s.mu.Lock()
	stop := make(chan struct{})
	s.matches[match.MatchID] = &runningMatch{mailbox: rt, stop: stop, playerIDs: playerIDs}
	s.mu.Unlock()

	s.recordOwnership(match.MatchID)
	go s.runWithRecovery(match.MatchID, rt, stop)

	return match.MatchID, nil
}

func (s *Supervisor) recordOwnership(matchID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.snapshots.CASSet(ctx, "match:"+matchID+":owner", 0, []byte(s.cfg.InstanceID))
}

// runWithRecovery runs a runtime to completion, then removes it from
// the routing table. An unexpected panic escaping Runtime.Run (beyond
// the runtime's own recover) is a last line of defense — it should
// never fire if Runtime.Run's recover works, but the supervisor must
// never let one wedged match take the process down.
func (s *Supervisor) runWithRecovery(matchID string, rt *runtime.Runtime, stop chan struct{}) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Printf("supervisor: match %s runtime escaped with panic: %v", matchID, rec)
			s.broadcast.BroadcastToRoom(matchID, wire.Event{Kind: wire.EvMatchEnd, MatchID: matchID, Payload: map[string]any{"reason": "internal_error"}})
		}
		s.mu.Lock()
		delete(s.matches, matchID)
		s.mu.Unlock()
	}()
	rt.Run(stop)
}

// Shutdown signals every running match to cancel and persist, waiting
// up to cfg.ShutdownTimeout for them to drain.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	stops := make([]chan struct{}, 0, len(s.matches))
	for _, m := range s.matches {
		stops = append(stops, m.stop)
	}
	s.mu.RUnlock()

	for _, stop := range stops {
		close(stop)
	}

	deadline := time.Now().Add(s.cfg.ShutdownTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	for time.Now().Before(deadline) {
		s.mu.RLock()
		n := len(s.matches)
		s.mu.RUnlock()
		if n == 0 {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("supervisor: shutdown timed out with matches still running")
}

var (
	_ wire.Router        = (*Supervisor)(nil)
	_ matchmaker.Spawner = (*Supervisor)(nil)
)
