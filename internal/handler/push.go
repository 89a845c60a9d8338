package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/motorchat/internal/logger"
	"github.com/motorchat/internal/middleware"
	"github.com/motorchat/internal/push"
	"github.com/motorchat/internal/repository"
)

// PushHandler manages Web Push subscriptions for the logged-in user.
type PushHandler struct {
	subs      *repository.SubscriptionRepository
	notifier  *push.Notifier
	publicKey string
}

func NewPushHandler(subs *repository.SubscriptionRepository, notifier *push.Notifier, publicKey string) *PushHandler {
	return &PushHandler{subs: subs, notifier: notifier, publicKey: publicKey}
}

// PublicKey hands the browser the VAPID application server key it needs for
// pushManager.subscribe.
func (h *PushHandler) PublicKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled":    h.notifier.Enabled(),
		"public_key": h.publicKey,
	})
}

type subscribeRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if strings.TrimSpace(req.Endpoint) == "" || req.Keys.P256dh == "" || req.Keys.Auth == "" {
		writeError(w, http.StatusBadRequest, "endpoint and keys are required")
		return
	}

	sub := &repository.PushSubscription{
		UserID:   userID,
		Endpoint: req.Endpoint,
		P256dh:   req.Keys.P256dh,
		Auth:     req.Keys.Auth,
	}
	if err := h.subs.Upsert(r.Context(), sub); err != nil {
		logger.Errorf("push subscribe user=%d: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "failed to store subscription")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "subscribed"})
}

type unsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req unsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "endpoint is required")
		return
	}
	if err := h.subs.DeleteByEndpoint(r.Context(), req.Endpoint); err != nil {
		logger.Errorf("push unsubscribe: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to remove subscription")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
