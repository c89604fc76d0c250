package chat

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/ecopower/ecopower/internal/auth"
)

// HandleWebSocket upgrades the connection and runs it as a hub client for
// the authenticated user.
func HandleWebSocket(hub *Hub, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.UserID(r.Context())
		if userID == 0 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: true, // cross-origin clients carry their token in the query
		})
		if err != nil {
			logger.Error("websocket accept", "error", err)
			return
		}

		client := NewClient(hub, conn, userID)
		client.Run(r.Context())
	}
}
