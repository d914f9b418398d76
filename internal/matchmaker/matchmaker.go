// Package matchmaker implements the Matchmaker: a single long-running
// actor holding FIFO-by-mode queues with rating-bucket widening, a
// custom-lobby directory, and a confirmation window before a paired
// match is handed to the Supervisor. Grounded on the poker-engine
// matchmaking handlers' in-memory per-mode queue guarded by a single
// actor (here, single-writer goroutine instead of a mutex), with the
// countdown-via-absolute-deadline idiom adapted into confirm_deadline_at.
package matchmaker

import (
	"log"
	"time"

	"arena-core/internal/arena"
	"arena-core/internal/clock"
	"arena-core/internal/wire"
)

// Config holds the matchmaker's tunables, sourced from spec §6.
type Config struct {
	BucketWidenStep     int           // rating points widened per interval
	BucketWidenInterval time.Duration
	BucketWidenMax      int
	ConfirmWindow       time.Duration
	FillDeadline        time.Duration // n-player modes: wait-for-fill timeout
	TickInterval        time.Duration
}

// DefaultConfig matches spec §4.5/§6's literal defaults.
var DefaultConfig = Config{
	BucketWidenStep:     50,
	BucketWidenInterval: 5 * time.Second,
	BucketWidenMax:      500,
	ConfirmWindow:       10 * time.Second,
	FillDeadline:        30 * time.Second,
	TickInterval:        1 * time.Second,
}

// Spawner creates a Match and hands it to its owning runtime; the
// Supervisor implements this.
type Spawner interface {
	SpawnMatch(mode arena.MatchMode, players []arena.Player, cfg arena.MatchConfig, ownerPlayerID string) (matchID string, err error)
}

type ticketEntry struct {
	ticketID   string
	playerID   string
	rating     int
	mode       arena.MatchMode
	enqueuedAt time.Time
	connID     string
	cancelled  bool
}

type pairing struct {
	matchID         string
	mode            arena.MatchMode
	entries         []*ticketEntry
	confirmed       map[string]bool
	confirmDeadline time.Time
}

func (p *pairing) playerIDs() []string {
	ids := make([]string, len(p.entries))
	for i, e := range p.entries {
		ids[i] = e.playerID
	}
	return ids
}

// Matchmaker is the actor. Construct with New and run Run in its own
// goroutine.
type Matchmaker struct {
	clock      clock.Source
	spawner    Spawner
	broadcast  wire.Broadcaster
	logger     *log.Logger
	cfg        Config

	mailbox chan mmCommand

	// actor-local state — touched only from the Run goroutine.
	queues       map[arena.MatchMode][]*ticketEntry
	ticketsByID  map[string]*ticketEntry
	pendingPairs map[string]*pairing // keyed by a synthetic pairing id
	lobbies      map[string]*arena.Match
}

type mmCommandKind int

const (
	mmFindMatch mmCommandKind = iota
	mmCancel
	mmCreateCustom
	mmJoinCustom
	mmConfirmMatch
	mmTick
)

type mmCommand struct {
	kind        mmCommandKind
	playerID    string
	rating      int
	mode        arena.MatchMode
	connID      string
	ticketID    string
	matchID     string
	cfg         arena.MatchConfig
	reply       chan mmResult
}

type mmResult struct {
	ticketID string
	matchID  string
	err      error
}

// New constructs a Matchmaker. Player ratings for bucket placement come
// from the client-supplied preferences at FindMatch time (see
// DESIGN.md on why this doesn't consult StateStore).
func New(clk clock.Source, spawner Spawner, broadcast wire.Broadcaster, cfg Config, logger *log.Logger) *Matchmaker {
	return &Matchmaker{
		clock:        clk,
		spawner:      spawner,
		broadcast:    broadcast,
		logger:       logger,
		cfg:          cfg,
		mailbox:      make(chan mmCommand, 1024),
		queues:       make(map[arena.MatchMode][]*ticketEntry),
		ticketsByID:  make(map[string]*ticketEntry),
		pendingPairs: make(map[string]*pairing),
		lobbies:      make(map[string]*arena.Match),
	}
}

// Run drains the mailbox and periodically attempts pairing. Call once,
// in its own goroutine, for the matchmaker's lifetime.
func (m *Matchmaker) Run(stop <-chan struct{}) {
	timer := m.clock.SleepUntil(m.clock.Now().Add(m.cfg.TickInterval))
	for {
		select {
		case <-stop:
			return
		case cmd := <-m.mailbox:
			m.handle(cmd)
		case <-timer.C():
			m.handle(mmCommand{kind: mmTick})
			timer = m.clock.SleepUntil(m.clock.Now().Add(m.cfg.TickInterval))
		}
	}
}

func (m *Matchmaker) handle(cmd mmCommand) {
	switch cmd.kind {
	case mmFindMatch:
		m.handleFindMatch(cmd)
	case mmCancel:
		m.handleCancel(cmd)
	case mmCreateCustom:
		m.handleCreateCustom(cmd)
	case mmJoinCustom:
		m.handleJoinCustom(cmd)
	case mmConfirmMatch:
		m.handleConfirmMatch(cmd)
	case mmTick:
		m.attemptPairingAllModes()
		m.expireUnconfirmedPairs()
	}
}

// --- wire.MatchmakingAPI, called synchronously by SessionHub ---

func (m *Matchmaker) FindMatch(playerID string, mode arena.MatchMode, preferences map[string]any, connID string) (string, error) {
	reply := make(chan mmResult, 1)
	rating := 1000
	switch r := preferences["rating"].(type) {
	case int:
		rating = r
	case float64:
		rating = int(r)
	}
	m.mailbox <- mmCommand{kind: mmFindMatch, playerID: playerID, mode: mode, rating: rating, connID: connID, reply: reply}
	res := <-reply
	return res.ticketID, res.err
}

func (m *Matchmaker) Cancel(ticketID string) error {
	reply := make(chan mmResult, 1)
	m.mailbox <- mmCommand{kind: mmCancel, ticketID: ticketID, reply: reply}
	res := <-reply
	return res.err
}

func (m *Matchmaker) CreateCustom(ownerID string, cfg arena.MatchConfig, mode arena.MatchMode) (string, error) {
	reply := make(chan mmResult, 1)
	m.mailbox <- mmCommand{kind: mmCreateCustom, playerID: ownerID, cfg: cfg, mode: mode, reply: reply}
	res := <-reply
	return res.matchID, res.err
}

func (m *Matchmaker) JoinCustom(playerID, matchID string) error {
	reply := make(chan mmResult, 1)
	m.mailbox <- mmCommand{kind: mmJoinCustom, playerID: playerID, matchID: matchID, reply: reply}
	res := <-reply
	return res.err
}

func (m *Matchmaker) ConfirmMatch(ticketID, playerID string) error {
	reply := make(chan mmResult, 1)
	m.mailbox <- mmCommand{kind: mmConfirmMatch, ticketID: ticketID, playerID: playerID, reply: reply}
	res := <-reply
	return res.err
}

var _ wire.MatchmakingAPI = (*Matchmaker)(nil)
