package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/motorchat/internal/logger"
	"github.com/motorchat/internal/middleware"
	"github.com/motorchat/internal/repository"
	"github.com/motorchat/internal/ws"
)

// WSHandler upgrades /ws/chat/{id} requests and hands the connection to the
// hub. Authentication happens before the upgrade via RequireAuth (the browser
// passes the credential as ?token=).
type WSHandler struct {
	hub      *ws.Hub
	convRepo *repository.ConversationRepository
	upgrader websocket.Upgrader
}

func NewWSHandler(hub *ws.Hub, convRepo *repository.ConversationRepository, allowedOrigins string) *WSHandler {
	origins := parseOrigins(allowedOrigins)
	return &WSHandler{
		hub:      hub,
		convRepo: convRepo,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(r.Header.Get("Origin"), origins)
			},
		},
	}
}

func parseOrigins(s string) []string {
	parts := strings.Split(s, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}

// originAllowed permits requests without an Origin header (non-browser
// clients) and any origin when the list contains "*".
func originAllowed(origin string, allowed []string) bool {
	if origin == "" {
		return true
	}
	for _, o := range allowed {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	convID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}

	isParticipant, err := h.convRepo.IsParticipant(r.Context(), convID, userID)
	if err != nil {
		logger.Errorf("ws participant check conv=%d user=%d: %v", convID, userID, err)
		writeError(w, http.StatusInternalServerError, "failed to open chat")
		return
	}
	if !isParticipant {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		logger.Errorf("ws upgrade conv=%d user=%d: %v", convID, userID, err)
		return
	}

	// The request context dies with this handler; the connection outlives it.
	ctx, cancel := context.WithCancel(context.Background())
	client := ws.NewClient(h.hub, conn, convID, userID)
	client.Start(ctx, cancel)
	h.hub.Register(client)
	logger.Infof("ws connected conv=%d user=%d", convID, userID)
}
