// Package runtime implements MatchRuntime: the per-match state machine
// driving rounds, deadlines, solution intake, scoring, and reconnection.
// Each Runtime is a single-writer actor — one goroutine draining a
// bounded mailbox — so Match mutation never needs a lock. Structured,
// per spec.md §9's re-architecture note, as a select over {mailbox,
// timers, grade completions}, the same dispatch-table shape Nakama-style
// match handlers use (MatchInit/MatchJoin/MatchLoop/MatchTerminate),
// without any dependency on a Nakama host.
package runtime

import (
	"context"
	"log"
	"time"

	"arena-core/internal/arena"
	"arena-core/internal/clock"
	"arena-core/internal/grader"
	"arena-core/internal/statestore"
	"arena-core/internal/store"
	"arena-core/internal/wire"
)

// Config holds the runtime's tunables.
type Config struct {
	StartingCountdown  time.Duration
	AutoStartTimeout   time.Duration // waiting -> starting once min players ready, absent explicit ready
	GradingBudget      time.Duration
	DisconnectGrace    time.Duration
	RetentionWindow    time.Duration
	MaxConcurrentGrades int
}

// DefaultConfig matches spec §4.6's suggested literal defaults.
var DefaultConfig = Config{
	StartingCountdown:   3 * time.Second,
	AutoStartTimeout:    10 * time.Second,
	GradingBudget:       30 * time.Second,
	DisconnectGrace:     60 * time.Second,
	RetentionWindow:     5 * time.Minute,
	MaxConcurrentGrades: 16,
}

type gradeResult struct {
	submissionID string
	roundIndex   int
	report       arena.GradeReport
}

// Runtime owns and exclusively mutates a single Match. Construct with
// New and run Run in its own goroutine; all interaction from outside
// happens through Enqueue (the wire.Mailbox contract).
type Runtime struct {
	match *arena.Match

	clk       clock.Source
	snapshots statestore.Store
	persist   store.Store
	grade     grader.Client
	broadcast wire.Broadcaster
	cfg       Config
	logger    *log.Logger

	problems      []store.ProblemRecord
	problemCursor int
	nextProblem   *arena.Problem

	mailbox chan wire.Command
	grades  chan gradeResult

	graceDeadlines map[string]time.Time
	phaseDeadline  time.Time
	waitingSince   time.Time

	// snapshotVersion is the StateStore version of the last snapshot this
	// runtime wrote; each successful CASSet advances it by one.
	snapshotVersion uint64

	fatalCount int
}

// New constructs a Runtime for a freshly-created match. problems is the
// pre-fetched problem pool for the match's mode (spec's "runtime
// pre-fetches the first problem" applies to round 0; subsequent rounds
// draw from the remaining pool).
func New(match *arena.Match, clk clock.Source, snapshots statestore.Store, persist store.Store, gr grader.Client, broadcast wire.Broadcaster, problems []store.ProblemRecord, cfg Config, logger *log.Logger) *Runtime {
	return &Runtime{
		match:          match,
		clk:            clk,
		snapshots:      snapshots,
		persist:        persist,
		grade:          gr,
		broadcast:      broadcast,
		cfg:            cfg,
		logger:         logger,
		problems:       problems,
		mailbox:        make(chan wire.Command, 256),
		grades:         make(chan gradeResult, cfg.MaxConcurrentGrades),
		graceDeadlines: make(map[string]time.Time),
		waitingSince:   clk.Now(),
	}
}

// Enqueue implements wire.Mailbox. Never blocks: a saturated mailbox
// means the runtime is wedged and callers should treat the match as
// unreachable rather than pile up goroutines waiting on it.
func (r *Runtime) Enqueue(cmd wire.Command) error {
	select {
	case r.mailbox <- cmd:
		return nil
	default:
		return wire.ErrMailboxFull
	}
}

// Run drains the mailbox, deadlines, and grading completions until stop
// fires or the match reaches a terminal state, and returns as soon as
// either happens. Config.RetentionWindow is not consulted here: no
// retention period is kept after the terminal state. Call once, in its
// own goroutine, for the runtime's lifetime.
func (r *Runtime) Run(stop <-chan struct{}) {
	defer r.recoverPanic()

	timer := r.armTimer()
	for {
		select {
		case <-stop:
			r.cancelMatch("shutdown")
			return
		case cmd := <-r.mailbox:
			r.dispatch(cmd)
		case gr := <-r.grades:
			r.onGradeResult(gr)
		case <-timer.C():
			r.onTimerFired()
		}
		if r.match.Status == arena.StatusCompleted || r.match.Status == arena.StatusCancelled {
			return
		}
		timer = r.armTimer()
	}
}

// armTimer reschedules the single wake-up timer to the earliest pending
// deadline across phase transitions and per-player disconnect grace
// windows, so the actor needs only one timer case in its select loop.
func (r *Runtime) armTimer() clock.Timer {
	next := r.phaseDeadline
	for _, d := range r.graceDeadlines {
		if next.IsZero() || d.Before(next) {
			next = d
		}
	}
	if next.IsZero() {
		next = r.clk.Now().Add(24 * time.Hour)
	}
	return r.clk.SleepUntil(next)
}

func (r *Runtime) recoverPanic() {
	if rec := recover(); rec != nil {
		r.logger.Printf("runtime: match %s panicked: %v", r.match.MatchID, rec)
		r.cancelMatch("panic")
	}
}

func (r *Runtime) dispatch(cmd wire.Command) {
	switch cmd.Kind {
	case wire.CmdJoinGame:
		r.handleJoin(cmd)
	case wire.CmdLeaveGame:
		r.handleLeave(cmd)
	case wire.CmdReady:
		r.handleReady(cmd)
	case wire.CmdStartGame:
		r.handleStartGame(cmd)
	case wire.CmdSubmitSolution:
		r.handleSubmit(cmd)
	case wire.CmdSpectateGame:
		r.handleSpectate(cmd)
	case wire.CmdStopSpectating:
		r.handleStopSpectating(cmd)
	case wire.CmdGetGameState:
		r.handleResync(cmd)
	case wire.CmdSendChatMessage:
		r.handleChat(cmd)
	case wire.CmdUserTyping:
		r.handleTyping(cmd)
	default:
		r.ack(cmd, wire.Ack{OK: false, Code: "unsupported_command"})
	}
}

func (r *Runtime) ack(cmd wire.Command, a wire.Ack) {
	if cmd.Ack == nil {
		return
	}
	a.MatchID = r.match.MatchID
	select {
	case cmd.Ack <- a:
	default:
	}
}

// persistSnapshot writes the Match under CAS guard, expecting the store
// version left by this runtime's previous write. On conflict the runtime
// assumes another instance holds ownership and self-cancels, per the
// single-owner invariant. Only when the caller passes noopRetry is the
// conflict first retried once against the freshly observed version; the
// conflicting write itself is not inspected, and every current caller
// passes false.
func (r *Runtime) persistSnapshot(ctx context.Context, noopRetry bool) error {
	data, err := encodeSnapshot(r.match)
	if err != nil {
		return err
	}
	err = r.snapshots.CASSet(ctx, snapshotKey(r.match.MatchID), r.snapshotVersion, data)
	if err == nil {
		r.snapshotVersion++
		return nil
	}
	if err == statestore.ErrConflict {
		if noopRetry {
			if v, rerr := r.snapshots.Get(ctx, snapshotKey(r.match.MatchID)); rerr == nil {
				if retryErr := r.snapshots.CASSet(ctx, snapshotKey(r.match.MatchID), v.Version, data); retryErr == nil {
					r.snapshotVersion = v.Version + 1
					return nil
				}
			}
		}
		r.cancelMatch("ownership_lost")
		return err
	}
	return err
}

func snapshotKey(matchID string) string { return "match:" + matchID + ":snapshot" }
func ownerKey(matchID string) string    { return "match:" + matchID + ":owner" }
