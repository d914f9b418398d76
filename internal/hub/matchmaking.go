package hub

import (
	"encoding/json"

	"arena-core/internal/arena"
	"arena-core/internal/wire"
)

// handleMatchmaking dispatches the commands with no match_id yet
// (find_match, cancel_matchmaking, create_custom, confirm_match) to the
// Matchmaker's synchronous API rather than through Router, since there
// is no runtime mailbox to enqueue onto before a match exists.
func (h *Hub) handleMatchmaking(c *Client, msg ClientMessage) {
	if h.matchmaking == nil {
		h.sendError(c, "unavailable", "matchmaking is not available")
		return
	}

	var body struct {
		Mode        string         `json:"mode"`
		Preferences map[string]any `json:"preferences"`
		TicketID    string         `json:"ticket_id"`
		Config      struct {
			RoundCount int  `json:"round_count"`
			MaxPlayers int  `json:"max_players"`
			IsPrivate  bool `json:"is_private"`
		} `json:"config"`
	}
	if len(msg.Data) > 0 {
		_ = json.Unmarshal(msg.Data, &body)
	}
	mode := arena.MatchMode(body.Mode)

	switch wire.CommandKind(msg.Type) {
	case wire.CmdFindMatch:
		ticketID, err := h.matchmaking.FindMatch(c.playerID, mode, body.Preferences, c.connID)
		if err != nil {
			h.sendError(c, "find_match_failed", err.Error())
			return
		}
		c.deliver(wire.Event{Kind: wire.EvQueued, Payload: map[string]any{"ticket_id": ticketID}})

	case wire.CmdCancelMatchmaking:
		if err := h.matchmaking.Cancel(body.TicketID); err != nil {
			h.sendError(c, "cancel_failed", err.Error())
		}

	case wire.CmdCreateCustom:
		if mode == "" {
			mode = arena.ModeCustom
		}
		cfg := arena.ModeDefaults(mode, nil)
		cfg.IsPrivate = body.Config.IsPrivate
		if body.Config.RoundCount > 0 {
			cfg.RoundCount = body.Config.RoundCount
		}
		if body.Config.MaxPlayers > 0 {
			cfg.MaxPlayers = body.Config.MaxPlayers
		}
		matchID, err := h.matchmaking.CreateCustom(c.playerID, cfg, mode)
		if err != nil {
			h.sendError(c, "create_custom_failed", err.Error())
			return
		}
		h.JoinRoom(matchID, c, false)
		c.deliver(wire.Event{Kind: wire.EvLobbyCreated, MatchID: matchID, Payload: map[string]any{"mode": mode}})

	case wire.CmdConfirmMatch:
		if err := h.matchmaking.ConfirmMatch(body.TicketID, c.playerID); err != nil {
			h.sendError(c, "confirm_failed", err.Error())
		}
	}
}
