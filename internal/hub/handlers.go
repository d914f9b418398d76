package hub

import (
	"log"
	"net/http"

	"arena-core/internal/authbridge"
	"arena-core/internal/wire"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// reconnectCommand builds the get_game_state command issued on behalf of
// a reconnecting connection, so the runtime replies with a resync
// snapshot without the client having to ask explicitly.
func reconnectCommand(matchID, playerID, connID string) wire.Command {
	return wire.Command{
		Kind:     wire.CmdGetGameState,
		MatchID:  matchID,
		PlayerID: playerID,
		ConnID:   connID,
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// PresenceTracker lets the hub mark a reconnecting player's active
// matches (the SessionHub only holds weak routing references; the
// runtime is the owner, so rejoining a room is driven by whatever the
// caller — typically the Supervisor — reports as the player's active
// match ids).
type PresenceTracker interface {
	ActiveMatchesForPlayer(playerID string) []string
}

// UpgradeHandler returns a gin.HandlerFunc that authenticates the
// connecting principal via validator, upgrades to a WebSocket, and
// re-attaches the player to any match rooms presence reports as active,
// delivering a resync snapshot request for each.
func UpgradeHandler(h *Hub, validator *authbridge.Validator, presence PresenceTracker, logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			token = c.GetHeader("Authorization")
		}
		playerID, err := validator.ResolvePlayerID(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Printf("hub: upgrade failed: %v", err)
			return
		}

		connID := uuid.NewString()
		client := NewClient(h, conn, playerID, connID, logger)
		h.Register(client)

		for _, matchID := range presence.ActiveMatchesForPlayer(playerID) {
			h.JoinRoom(matchID, client, false)
			if mailbox, ok := h.router.Route(matchID); ok {
				_ = mailbox.Enqueue(reconnectCommand(matchID, playerID, connID))
			}
		}

		go client.WritePump()
		go client.ReadPump()
	}
}
