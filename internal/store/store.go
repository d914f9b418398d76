// Package store persists the entities the core's Non-goals push outside
// the runtime: user/player records, problem payloads, and final match
// results, plus an append-only archive of submissions and grade reports.
// The core depends only on the Store interface; MySQLStore and
// MongoArchive are the concrete implementations wired in cmd/arena-server.
package store

import (
	"context"
	"errors"
	"time"

	"arena-core/internal/arena"
)

var ErrNotFound = errors.New("store: not found")

// PlayerRecord is the durable identity behind an arena.Player.
type PlayerRecord struct {
	PlayerID    string
	DisplayName string
	Rating      int
}

// ProblemRecord is the durable payload behind an arena.Problem.
type ProblemRecord struct {
	ProblemID string
	Mode      arena.MatchMode
	TimeLimit time.Duration
	Payload   map[string]any
}

// FinalResult is the terminal record persisted once a match reaches
// completed or cancelled.
type FinalResult struct {
	MatchID   string
	Mode      arena.MatchMode
	Standings []arena.StandingEntry
	Reason    string // completed | forfeit | the cancel reason of a cancelled match (e.g. shutdown, no_players)
	EndedAt   time.Time
}

// Store is the persistence interface the runtime and supervisor depend
// on. Durable storage details live entirely behind it.
type Store interface {
	GetPlayer(ctx context.Context, playerID string) (PlayerRecord, error)
	GetProblemsByMode(ctx context.Context, mode arena.MatchMode, n int) ([]ProblemRecord, error)
	SaveFinalResult(ctx context.Context, result FinalResult) error

	ArchiveSubmission(ctx context.Context, sub arena.Submission) error
	ArchiveGradeReport(ctx context.Context, matchID string, roundIndex int, report arena.GradeReport) error
}
