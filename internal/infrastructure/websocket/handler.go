package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	domainerrors "github.com/clipcast/engine/internal/domain/errors"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CheckOrigin allows connections from any origin.
	// In production, configure this based on your CORS policy.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades HTTP requests onto the operator dashboard's live feed
// (spec.md §11: ledger events, guard refusals among them, and component
// health transitions streamed as they're observed; tick notifications are
// not sent) and registers the resulting client with the Hub.
type Handler struct {
	hub    *Hub
	auth   Authenticator
	logger *slog.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *Hub, auth Authenticator, logger *slog.Logger) *Handler {
	return &Handler{
		hub:    hub,
		auth:   auth,
		logger: logger,
	}
}

// ServeHTTP handles the WebSocket upgrade request
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Authenticate the connecting operator
	userID, err := h.auth.Authenticate(r)
	if err != nil {
		h.logger.Warn("websocket authentication failed",
			"error", err,
			"remote_addr", r.RemoteAddr)
		writeUnauthorized(w, domainerrors.NewAuthError(err.Error()))
		return
	}

	// Upgrade HTTP connection to WebSocket
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed",
			"error", err,
			"remote_addr", r.RemoteAddr)
		return
	}

	// Create a new client
	clientID := uuid.New().String()
	client := NewClient(clientID, userID, h.hub, conn)

	h.logger.Info("websocket client connected",
		"client_id", clientID,
		"user_id", userID,
		"remote_addr", r.RemoteAddr)

	// Register client with hub
	h.hub.register <- client

	// Start client pumps in separate goroutines
	go client.writePump()
	go client.readPump()
}

// writeUnauthorized reports an AuthError with the same JSON error-body
// shape api/rest's handlers use, instead of the plain-text 401 a bare
// http.Error would write.
func writeUnauthorized(w http.ResponseWriter, err *domainerrors.AuthError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// SetCheckOrigin allows customizing the origin check function
func SetCheckOrigin(f func(r *http.Request) bool) {
	upgrader.CheckOrigin = f
}

// SetBufferSizes sets the read and write buffer sizes for WebSocket connections
func SetBufferSizes(readSize, writeSize int) {
	upgrader.ReadBufferSize = readSize
	upgrader.WriteBufferSize = writeSize
}
