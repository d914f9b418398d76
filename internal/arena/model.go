// Package arena holds the core data model shared by the matchmaker, match
// runtime, and session hub: players, matches, rounds, submissions and
// grades, plus the scoring and validation rules that operate on them.
package arena

import (
	"sort"
	"time"
)

// MatchMode determines round count, per-round time limit, scoring curve
// and problem source for a Match.
type MatchMode string

const (
	ModeCasual   MatchMode = "casual"
	ModeRanked   MatchMode = "ranked"
	ModeBlitz    MatchMode = "blitz"
	ModePractice MatchMode = "practice"
	ModeTrivia   MatchMode = "trivia"
	ModeDebug    MatchMode = "debug"
	ModeCustom   MatchMode = "custom"
)

// MatchStatus is the Match's lifecycle state. Transitions only move
// forward: waiting -> starting -> in_progress -> (completed|cancelled),
// with cancelled reachable from any non-terminal state.
type MatchStatus string

const (
	StatusWaiting    MatchStatus = "waiting"
	StatusStarting   MatchStatus = "starting"
	StatusInProgress MatchStatus = "in_progress"
	StatusCompleted  MatchStatus = "completed"
	StatusCancelled  MatchStatus = "cancelled"
)

// RoundStatus transitions pending -> open -> grading -> closed.
type RoundStatus string

const (
	RoundPending RoundStatus = "pending"
	RoundOpen    RoundStatus = "open"
	RoundGrading RoundStatus = "grading"
	RoundClosed  RoundStatus = "closed"
)

// Verdict is the outcome of grading a single submission.
type Verdict string

const (
	VerdictOK          Verdict = "ok"
	VerdictGraderError Verdict = "grader_error"
	VerdictTimeout     Verdict = "timeout"
	VerdictInvalid     Verdict = "invalid"
)

// Player is the identity for a connected session. Owned by the session
// hub for the lifetime of a connection; referenced, not owned, by Match.
type Player struct {
	PlayerID       string    `json:"player_id"`
	DisplayName    string    `json:"display_name"`
	Rating         int       `json:"rating"`
	Connected      bool      `json:"connected"`
	LastSeenAt     time.Time `json:"last_seen_at"`
	DisconnectedAt time.Time `json:"disconnected_at,omitzero"`
	// Forfeited marks a player ejected by disconnect-grace expiry in a
	// >2-player match: they stay seated in Players (and in Standings)
	// with a permanent zero for every round from here on, but can no
	// longer submit, reconnect, or be counted toward round-closing.
	Forfeited bool `json:"forfeited,omitempty"`
}

// Problem is opaque to the core beyond its id and time limit.
type Problem struct {
	ProblemID string          `json:"problem_id"`
	TimeLimit time.Duration   `json:"time_limit"`
	Payload   map[string]any  `json:"payload,omitempty"`
}

// Submission is immutable once created. A later submission from the same
// player in the same round replaces the prior one (last-write-wins).
type Submission struct {
	SubmissionID string    `json:"submission_id"`
	MatchID      string    `json:"match_id"`
	RoundIndex   int       `json:"round_index"`
	PlayerID     string    `json:"player_id"`
	Code         string    `json:"code"`
	Language     string    `json:"language"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// Criteria is the per-dimension grading breakdown, each a percentage
// in [0,100].
type Criteria struct {
	Correctness float64 `json:"correctness"`
	Efficiency  float64 `json:"efficiency"`
	Readability float64 `json:"readability"`
	Style       float64 `json:"style"`
	Innovation  float64 `json:"innovation"`
}

// GradeReport is produced exactly once per accepted submission and cached
// in the match until match end.
type GradeReport struct {
	SubmissionID string   `json:"submission_id"`
	ScoreTotal   float64  `json:"score_total"`
	Criteria     Criteria `json:"criteria"`
	Feedback     string   `json:"feedback"`
	Verdict      Verdict  `json:"verdict"`
}

// Round is one problem within a match with its own deadline and grading
// pass.
type Round struct {
	RoundIndex int                     `json:"round_index"`
	Problem    Problem                 `json:"problem"`
	StartedAt  time.Time               `json:"started_at"`
	DeadlineAt time.Time               `json:"deadline_at"`
	Submissions map[string]Submission  `json:"submissions"`
	Grades      map[string]GradeReport `json:"grades"`
	Scores      map[string]int         `json:"scores"`
	Status      RoundStatus            `json:"status"`
}

// NewRound returns a pending round with initialized maps.
func NewRound(index int, problem Problem) *Round {
	return &Round{
		RoundIndex:  index,
		Problem:     problem,
		Status:      RoundPending,
		Submissions: make(map[string]Submission),
		Grades:      make(map[string]GradeReport),
		Scores:      make(map[string]int),
	}
}

// ScoreWeights are the mode-specific per-criterion weights, summing to
// 100.
type ScoreWeights struct {
	Correctness float64
	Efficiency  float64
	Readability float64
	Style       float64
	Innovation  float64
}

// DefaultScoreWeights matches spec's default weighting.
var DefaultScoreWeights = ScoreWeights{
	Correctness: 40,
	Efficiency:  25,
	Readability: 20,
	Style:       10,
	Innovation:  5,
}

// MatchConfig is the set of per-match parameters, resolved from mode
// defaults at creation time and possibly overridden for custom lobbies.
type MatchConfig struct {
	RoundCount          int           `json:"round_count"`
	RoundTimeLimit      time.Duration `json:"round_time_limit"`
	MaxPlayers          int           `json:"max_players"`
	IsPrivate           bool          `json:"is_private"`
	IsRanked            bool          `json:"is_ranked"`
	LanguageWhitelist   []string      `json:"language_whitelist"`
	SpectatorAllowlist  []string      `json:"spectator_allowlist,omitempty"`
	Weights             ScoreWeights  `json:"weights"`
}

// AllowsLanguage reports whether lang is permitted by this config.
func (c MatchConfig) AllowsLanguage(lang string) bool {
	for _, l := range c.LanguageWhitelist {
		if l == lang {
			return true
		}
	}
	return false
}

// AllowsSpectator reports whether playerID may spectate a private match.
func (c MatchConfig) AllowsSpectator(playerID string) bool {
	if !c.IsPrivate {
		return true
	}
	for _, p := range c.SpectatorAllowlist {
		if p == playerID {
			return true
		}
	}
	return false
}

// Match is the central aggregate. MatchRuntime exclusively owns and
// mutates it; all other readers use versioned snapshots.
type Match struct {
	MatchID       string      `json:"match_id"`
	Mode          MatchMode   `json:"mode"`
	Config        MatchConfig `json:"config"`
	OwnerPlayerID string      `json:"owner_player_id,omitempty"`
	Players       []Player    `json:"players"`
	Spectators    []Player    `json:"spectators"`
	Rounds        []*Round    `json:"rounds"`
	Cursor        int         `json:"cursor"`
	Status        MatchStatus `json:"status"`
	CreatedAt     time.Time   `json:"created_at"`
	StartedAt     time.Time   `json:"started_at,omitzero"`
	EndedAt       time.Time   `json:"ended_at,omitzero"`
	Version       uint64      `json:"version"`
}

// PlayerIndex returns the index of playerID in Players, or -1.
func (m *Match) PlayerIndex(playerID string) int {
	for i, p := range m.Players {
		if p.PlayerID == playerID {
			return i
		}
	}
	return -1
}

// IsParticipant reports whether playerID is a seated player.
func (m *Match) IsParticipant(playerID string) bool {
	return m.PlayerIndex(playerID) >= 0
}

// ConnectedPlayerCount counts players currently marked connected.
func (m *Match) ConnectedPlayerCount() int {
	n := 0
	for _, p := range m.Players {
		if p.Connected {
			n++
		}
	}
	return n
}

// CurrentRound returns the round at Cursor, or nil if out of range.
func (m *Match) CurrentRound() *Round {
	if m.Cursor < 0 || m.Cursor >= len(m.Rounds) {
		return nil
	}
	return m.Rounds[m.Cursor]
}

// Bump increments the version counter. Call on every mutation.
func (m *Match) Bump() {
	m.Version++
}

// StandingEntry is one row of the final standings.
type StandingEntry struct {
	PlayerID          string `json:"player_id"`
	Total             int    `json:"total"`
	EarliestSubmitted time.Time `json:"-"`
}

// Standings sorts players by total descending, then by earliest
// submission timestamp ascending as a winner-slot tiebreak.
func (m *Match) Standings() []StandingEntry {
	totals := make(map[string]int, len(m.Players))
	earliest := make(map[string]time.Time, len(m.Players))
	for _, p := range m.Players {
		totals[p.PlayerID] = 0
	}
	for _, r := range m.Rounds {
		for pid, s := range r.Scores {
			totals[pid] += s
		}
		for pid, sub := range r.Submissions {
			if e, ok := earliest[pid]; !ok || sub.SubmittedAt.Before(e) {
				earliest[pid] = sub.SubmittedAt
			}
		}
	}
	entries := make([]StandingEntry, 0, len(m.Players))
	for _, p := range m.Players {
		entries = append(entries, StandingEntry{
			PlayerID:          p.PlayerID,
			Total:             totals[p.PlayerID],
			EarliestSubmitted: earliest[p.PlayerID],
		})
	}
	sort.SliceStable(entries, func(i, j int) bool { return less(entries[i], entries[j]) })
	return entries
}

func less(a, b StandingEntry) bool {
	if a.Total != b.Total {
		return a.Total > b.Total
	}
	if a.EarliestSubmitted.IsZero() != b.EarliestSubmitted.IsZero() {
		return b.EarliestSubmitted.IsZero()
	}
	return a.EarliestSubmitted.Before(b.EarliestSubmitted)
}
