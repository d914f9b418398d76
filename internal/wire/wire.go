// Package wire defines the command/event vocabulary and the narrow
// interfaces that let the session hub, matchmaker, and match runtime
// depend on each other without an import cycle: hub and matchmaker
// import wire; runtime imports wire and implements Mailbox; the hub
// holds a wire.Router to reach whichever runtime owns a match.
package wire

import (
	"time"

	"arena-core/internal/arena"
)

// CommandKind is the closed set of inbound events a connection may send
// once authorized for a match. Unknown kinds are a validation error, not
// silently accepted.
type CommandKind string

const (
	CmdFindMatch        CommandKind = "find_match"
	CmdCancelMatchmaking CommandKind = "cancel_matchmaking"
	CmdCreateCustom     CommandKind = "create_custom"
	CmdJoinGame         CommandKind = "join_game"
	CmdLeaveGame        CommandKind = "leave_game"
	CmdReady            CommandKind = "ready"
	CmdStartGame        CommandKind = "start_game"
	CmdSubmitSolution   CommandKind = "submit_solution"
	CmdSpectateGame     CommandKind = "spectate_game"
	CmdStopSpectating   CommandKind = "stop_spectating"
	CmdGetGameState     CommandKind = "get_game_state"
	CmdSendChatMessage  CommandKind = "send_chat_message"
	CmdUserTyping       CommandKind = "user_typing"
	CmdConfirmMatch     CommandKind = "confirm_match"
)

// Command is a single inbound instruction, already authorized by the
// SessionHub (sender resolved to PlayerID, membership checked) before
// being handed to a match's mailbox.
type Command struct {
	Kind       CommandKind
	MatchID    string
	PlayerID   string
	ConnID     string
	RoundIndex int
	Code       string
	Language   string
	Text       string
	IsTyping   bool
	Mode       arena.MatchMode
	Preferences map[string]any
	Config     arena.MatchConfig
	Ack        chan<- Ack
}

// Ack is the synchronous acknowledgement/error returned to the
// originating connection for commands that need one beyond the
// fire-and-forget broadcast path (join/create/cancel results).
type Ack struct {
	OK      bool
	Code    string
	Message string
	MatchID string
}

// EventKind is the closed set of outbound events the runtime, hub, and
// matchmaker emit to connections.
type EventKind string

const (
	EvQueued        EventKind = "queued"
	EvLobbyCreated  EventKind = "lobby_created"
	EvMatchFound    EventKind = "match_found"
	EvPlayerJoined  EventKind = "player_joined"
	EvPlayerLeft    EventKind = "player_left"
	EvMatchStarting EventKind = "match_starting"
	EvRoundStart    EventKind = "round_start"
	EvSubmissionAck EventKind = "submission_ack"
	EvRoundResult   EventKind = "round_result"
	EvMatchEnd      EventKind = "match_end"
	EvChatMessage   EventKind = "chat_message"
	EvUserTyping    EventKind = "user_typing"
	EvResync        EventKind = "resync"
	EvError         EventKind = "error"
)

// Event is a single outbound message. MatchID and Version are populated
// whenever the event is match-scoped, per the wire protocol.
type Event struct {
	Kind    EventKind `json:"kind"`
	MatchID string    `json:"match_id,omitempty"`
	Version uint64    `json:"version,omitempty"`
	Payload any       `json:"payload"`
}

// Broadcaster is how a MatchRuntime reaches the SessionHub to fan events
// out to a room (match participants + spectators), and to send a
// single-connection reply.
type Broadcaster interface {
	BroadcastToRoom(matchID string, ev Event)
	SendToPlayer(playerID string, ev Event)
}

// Router resolves a match id to the mailbox of its owning runtime. The
// Supervisor implements this; the SessionHub uses it to deliver inbound
// commands.
type Router interface {
	Route(matchID string) (Mailbox, bool)
}

// Mailbox is the bounded inbound channel of a single-writer actor
// (a MatchRuntime).
type Mailbox interface {
	Enqueue(cmd Command) error
}

// MailboxFunc adapts a plain function to Mailbox.
type MailboxFunc func(cmd Command) error

func (f MailboxFunc) Enqueue(cmd Command) error { return f(cmd) }

// ErrMailboxFull is returned by Enqueue when the mailbox's bounded
// channel is saturated.
var ErrMailboxFull = mailboxFullError{}

type mailboxFullError struct{}

func (mailboxFullError) Error() string { return "wire: mailbox full" }

// MatchmakingAPI is the subset of Matchmaker operations the SessionHub
// calls directly (outside the mailbox/Command path, since a ticket has
// no match_id yet).
type MatchmakingAPI interface {
	FindMatch(playerID string, mode arena.MatchMode, preferences map[string]any, ackConnID string) (ticketID string, err error)
	Cancel(ticketID string) error
	CreateCustom(ownerID string, cfg arena.MatchConfig, mode arena.MatchMode) (matchID string, err error)
	JoinCustom(playerID, matchID string) error
	ConfirmMatch(ticketID, playerID string) error
}

// Clock-adjacent helper used by both matchmaker and runtime to stamp
// absolute deadlines consistently; kept here instead of importing
// internal/clock from wire to avoid pulling time-source policy into the
// shared vocabulary package — callers pass already-resolved times.
type Deadline = time.Time
