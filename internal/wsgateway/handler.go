package wsgateway

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mohamedkhairy/displacement-tracker/pkg/logger"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Handler returns the /ws endpoint. Tokens are read from the Authorization
// header or the token query parameter.
func Handler(hub *Hub, auth *AuthManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if max := hub.config.MaxConnections; max > 0 && hub.ConnectionCount() >= max {
			logger.Warn("Max connections reached, rejecting new connection",
				logger.Int("max_connections", max),
			)
			http.Error(w, "Max connections reached", http.StatusServiceUnavailable)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if token := r.URL.Query().Get("token"); token != "" {
				authHeader = "Bearer " + token
			}
		}

		userID := AnonymousUser
		if auth.Enabled() {
			tokenString, err := auth.ExtractTokenFromHeader(authHeader)
			if err != nil {
				http.Error(w, "Missing authentication token", http.StatusUnauthorized)
				return
			}
			userID, err = auth.ValidateToken(tokenString)
			if err != nil {
				logger.Warn("Invalid token, rejecting connection",
					logger.ErrorField(err),
				)
				http.Error(w, "Invalid authentication token", http.StatusUnauthorized)
				return
			}
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("Failed to upgrade connection",
				logger.ErrorField(err),
			)
			return
		}

		connectionID := uuid.New().String()
		hub.Register(NewConnection(connectionID, userID, conn))

		logger.Info("WebSocket connection established",
			logger.String("connection_id", connectionID),
			logger.String("user_id", userID),
			logger.String("remote_addr", r.RemoteAddr),
		)
	}
}
