// Package hub implements the SessionHub: the duplex connection layer
// that owns the connection↔player↔match mapping, fans events out to
// rooms (match participants + spectators), and survives brief
// disconnects. Grounded on internal/websocket's Hub/Client split,
// generalized from tournament subscriptions to match rooms.
package hub

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"arena-core/internal/arena"
	"arena-core/internal/utils"
	"arena-core/internal/wire"
)

const chatHistorySize = 200

// room is the SessionHub's per-match set of connections.
type room struct {
	participants map[*Client]bool
	spectators   map[*Client]bool
	chatHistory  []wire.Event
}

func newRoom() *room {
	return &room{
		participants: make(map[*Client]bool),
		spectators:   make(map[*Client]bool),
	}
}

func (r *room) allClients() []*Client {
	out := make([]*Client, 0, len(r.participants)+len(r.spectators))
	for c := range r.participants {
		out = append(out, c)
	}
	for c := range r.spectators {
		out = append(out, c)
	}
	return out
}

// Hub is the SessionHub. One Hub per process; the Router it's given
// resolves match ids to the mailbox of the runtime that owns them
// (possibly on another process, per StateStore's owner marker — this
// process only routes to locally-owned runtimes via Router).
type Hub struct {
	router      wire.Router
	matchmaking wire.MatchmakingAPI
	logger      *log.Logger

	chatRatePerWindow int
	chatRateWindow    time.Duration

	mu          sync.RWMutex
	connsByID   map[string]*Client          // conn_id -> client
	playerConns map[string]map[*Client]bool // player_id -> set<conn>
	rooms       map[string]*room            // match_id -> room

	register   chan *Client
	unregister chan *Client
	inbound    chan inboundMessage
}

type inboundMessage struct {
	client *Client
	msg    ClientMessage
}

// NewHub constructs a SessionHub. router is typically the Supervisor.
// The per-connection chat/typing rate limit defaults to the spec's
// named 10 msg/10s if left zero.
func NewHub(router wire.Router, logger *log.Logger) *Hub {
	return &Hub{
		router:            router,
		logger:            logger,
		chatRatePerWindow: chatRatePerWindow,
		chatRateWindow:    chatRateWindow,
		connsByID:         make(map[string]*Client),
		playerConns:       make(map[string]map[*Client]bool),
		rooms:             make(map[string]*room),
		register:          make(chan *Client),
		unregister:        make(chan *Client),
		inbound:           make(chan inboundMessage, 256),
	}
}

// SetChatRateLimit overrides the per-connection chat/typing rate limit
// applied to connections registered after this call (operator-configured
// via MatchConfig.ChatRatePerWindow/ChatRateWindow).
func (h *Hub) SetChatRateLimit(n int, window time.Duration) {
	h.chatRatePerWindow = n
	h.chatRateWindow = window
}

// Run drains the hub's control channels. Call once, in its own
// goroutine, for the hub's lifetime.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.registerClient(c)
		case c := <-h.unregister:
			h.unregisterClient(c)
		case im := <-h.inbound:
			h.handleInbound(im.client, im.msg)
		}
	}
}

func (h *Hub) registerClient(c *Client) {
	h.mu.Lock()
	h.connsByID[c.connID] = c
	if h.playerConns[c.playerID] == nil {
		h.playerConns[c.playerID] = make(map[*Client]bool)
	}
	h.playerConns[c.playerID][c] = true
	h.mu.Unlock()

	h.logger.Printf("hub: connection %s registered for player %s", c.connID, c.playerID)
}

func (h *Hub) unregisterClient(c *Client) {
	h.mu.Lock()
	delete(h.connsByID, c.connID)
	lastConnForPlayer := false
	if conns, ok := h.playerConns[c.playerID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.playerConns, c.playerID)
			lastConnForPlayer = true
		}
	}
	var matchIDs []string
	for matchID, r := range h.rooms {
		if !r.participants[c] {
			continue
		}
		matchIDs = append(matchIDs, matchID)
	}
	for matchID, r := range h.rooms {
		delete(r.participants, c)
		delete(r.spectators, c)
		if len(r.participants) == 0 && len(r.spectators) == 0 {
			delete(h.rooms, matchID)
		}
	}
	h.mu.Unlock()
	close(c.send)
	h.logger.Printf("hub: connection %s unregistered", c.connID)

	// Only tell the runtime the player actually left once their last
	// connection drops — a closed tab with others still open isn't a
	// disconnect.
	if lastConnForPlayer {
		for _, matchID := range matchIDs {
			if mailbox, ok := h.router.Route(matchID); ok {
				_ = mailbox.Enqueue(wire.Command{Kind: wire.CmdLeaveGame, MatchID: matchID, PlayerID: c.playerID, ConnID: c.connID})
			}
		}
	}
}

// SetRouter attaches the Router after construction, for the common
// wiring cycle where the Router (Supervisor) itself needs a
// wire.Broadcaster (this Hub) to construct. Call before Run.
func (h *Hub) SetRouter(r wire.Router) { h.router = r }

// SetMatchmaking attaches the Matchmaker's client-facing API, used for
// commands with no match_id yet (find_match, create_custom, ...). The
// hub can run without one (matchmaking commands are rejected), which
// keeps hub_test.go's minimal fixtures working unchanged.
func (h *Hub) SetMatchmaking(api wire.MatchmakingAPI) { h.matchmaking = api }

// Register attaches a new connection. Called from the WS upgrade
// handler after authbridge has resolved playerID.
func (h *Hub) Register(c *Client) { h.register <- c }

// Unregister detaches a connection; called when readPump exits.
func (h *Hub) Unregister(c *Client) { h.unregister <- c }

// Deliver hands an inbound client frame to the hub's processing loop.
func (h *Hub) Deliver(c *Client, msg ClientMessage) { h.inbound <- inboundMessage{client: c, msg: msg} }

// JoinRoom attaches c to matchID's room as a participant or spectator,
// replaying the room's chat history to c.
func (h *Hub) JoinRoom(matchID string, c *Client, asSpectator bool) {
	h.mu.Lock()
	r, ok := h.rooms[matchID]
	if !ok {
		r = newRoom()
		h.rooms[matchID] = r
	}
	if asSpectator {
		r.spectators[c] = true
	} else {
		r.participants[c] = true
	}
	history := append([]wire.Event(nil), r.chatHistory...)
	h.mu.Unlock()

	for _, ev := range history {
		c.deliver(ev)
	}
}

// LeaveRoom detaches c from matchID's room.
func (h *Hub) LeaveRoom(matchID string, c *Client) {
	h.mu.Lock()
	if r, ok := h.rooms[matchID]; ok {
		delete(r.participants, c)
		delete(r.spectators, c)
		if len(r.participants) == 0 && len(r.spectators) == 0 {
			delete(h.rooms, matchID)
		}
	}
	h.mu.Unlock()
}

// ConnectionsForPlayer returns how many connections a player currently
// has open, so liveness can be checked without exposing the routing
// tables directly.
func (h *Hub) ConnectionsForPlayer(playerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.playerConns[playerID])
}

// BroadcastToRoom implements wire.Broadcaster: fan ev out to every
// connection in matchID's room, recording chat events in the bounded
// history for resync replay.
func (h *Hub) BroadcastToRoom(matchID string, ev wire.Event) {
	h.mu.Lock()
	r, ok := h.rooms[matchID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if ev.Kind == wire.EvChatMessage {
		r.chatHistory = append(r.chatHistory, ev)
		if len(r.chatHistory) > chatHistorySize {
			r.chatHistory = r.chatHistory[len(r.chatHistory)-chatHistorySize:]
		}
	}
	clients := r.allClients()
	h.mu.Unlock()

	for _, c := range clients {
		c.deliver(ev)
	}
}

// SendToPlayer implements wire.Broadcaster: deliver ev to every
// connection a player currently has open (a player may have multiple
// tabs).
func (h *Hub) SendToPlayer(playerID string, ev wire.Event) {
	h.mu.RLock()
	conns := make([]*Client, 0, len(h.playerConns[playerID]))
	for c := range h.playerConns[playerID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.deliver(ev)
	}
}

func (h *Hub) sendError(c *Client, code, message string) {
	c.deliver(wire.Event{Kind: wire.EvError, Payload: map[string]string{"code": code, "message": message}})
}

func (h *Hub) handleInbound(c *Client, msg ClientMessage) {
	if !c.allowEvent(msg.Type) {
		h.sendError(c, "rate_limited", "too many messages")
		return
	}

	switch wire.CommandKind(msg.Type) {
	case wire.CmdFindMatch, wire.CmdCancelMatchmaking, wire.CmdCreateCustom, wire.CmdConfirmMatch:
		h.handleMatchmaking(c, msg)
	default:
		h.handleRoomScoped(c, msg)
	}
}

// handleRoomScoped validates a match-scoped command and forwards it to
// the owning runtime's mailbox via Router. A missing match_id is
// rejected; apart from join_game, spectate_game and get_game_state, the
// connection must already be authorized for the match.
func (h *Hub) handleRoomScoped(c *Client, msg ClientMessage) {
	var body struct {
		MatchID    string          `json:"match_id"`
		RoundIndex int             `json:"round_index"`
		Code       string          `json:"code"`
		Language   string          `json:"language"`
		Text       string          `json:"text"`
		IsTyping   bool            `json:"is_typing"`
		Raw        json.RawMessage `json:"-"`
	}
	if len(msg.Data) > 0 {
		_ = json.Unmarshal(msg.Data, &body)
	}

	if body.MatchID == "" {
		h.sendError(c, "invalid_command", "match_id required")
		return
	}

	kind := wire.CommandKind(msg.Type)
	isEntry := kind == wire.CmdJoinGame || kind == wire.CmdSpectateGame || kind == wire.CmdGetGameState
	if !isEntry && !h.authorizedForMatch(body.MatchID, c) {
		h.sendError(c, "private_denied", "not authorized for this match")
		return
	}

	mailbox, ok := h.router.Route(body.MatchID)
	if !ok && kind == wire.CmdJoinGame && h.matchmaking != nil {
		// Not a spawned runtime yet: body.MatchID may be a custom lobby
		// still filling. JoinCustom spawns it synchronously once full, so
		// a successful reply with no mailbox yet just means the lobby is
		// still waiting on more players.
		if err := h.matchmaking.JoinCustom(c.playerID, body.MatchID); err != nil {
			h.sendError(c, "not_found", "match not found")
			return
		}
		if mailbox, ok = h.router.Route(body.MatchID); !ok {
			return
		}
	} else if !ok {
		h.sendError(c, "not_found", "match not found")
		return
	}

	cmd := wire.Command{
		Kind:       kind,
		MatchID:    body.MatchID,
		PlayerID:   c.playerID,
		ConnID:     c.connID,
		RoundIndex: body.RoundIndex,
		Code:       body.Code,
		Language:   body.Language,
		Text:       utils.SanitizeString(body.Text),
		IsTyping:   body.IsTyping,
	}
	if err := mailbox.Enqueue(cmd); err != nil {
		h.sendError(c, "internal", "match is not accepting commands right now")
		return
	}

	switch kind {
	case wire.CmdJoinGame:
		h.JoinRoom(body.MatchID, c, false)
	case wire.CmdSpectateGame:
		h.JoinRoom(body.MatchID, c, true)
	case wire.CmdLeaveGame, wire.CmdStopSpectating:
		h.LeaveRoom(body.MatchID, c)
	}
}

func (h *Hub) authorizedForMatch(matchID string, c *Client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.rooms[matchID]
	if !ok {
		// not yet joined locally; join/spectate/create commands are
		// allowed through and validated by the runtime/matchmaker itself.
		return true
	}
	return r.participants[c] || r.spectators[c]
}

// Resync sends a resync event carrying a full match snapshot to a single
// connection, used on reconnection and on explicit get_game_state.
func (h *Hub) Resync(c *Client, matchID string, snapshot arena.Match) {
	c.deliver(wire.Event{
		Kind:    wire.EvResync,
		MatchID: matchID,
		Version: snapshot.Version,
		Payload: snapshot,
	})
}

var _ wire.Broadcaster = (*Hub)(nil)
