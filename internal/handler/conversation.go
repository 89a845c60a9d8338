package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/motorchat/internal/logger"
	"github.com/motorchat/internal/middleware"
	"github.com/motorchat/internal/model"
	"github.com/motorchat/internal/repository"
	"github.com/motorchat/internal/ws"
)

// ConversationHandler serves the collaborator REST surface that hydrates the
// chat UI: list, detail, get-or-create and the mark-as-read fallback.
type ConversationHandler struct {
	convRepo    *repository.ConversationRepository
	msgRepo     *repository.MessageRepository
	listingRepo *repository.ListingRepository
	userRepo    *repository.UserRepository
	hub         *ws.Hub
}

func NewConversationHandler(
	convRepo *repository.ConversationRepository,
	msgRepo *repository.MessageRepository,
	listingRepo *repository.ListingRepository,
	userRepo *repository.UserRepository,
	hub *ws.Hub,
) *ConversationHandler {
	return &ConversationHandler{
		convRepo:    convRepo,
		msgRepo:     msgRepo,
		listingRepo: listingRepo,
		userRepo:    userRepo,
		hub:         hub,
	}
}

// List returns the viewer's conversations, most recently active first.
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	defer logger.DeferLogDuration("handler.ConversationList", time.Now())()
	userID := middleware.GetUserID(r.Context())

	convs, err := h.convRepo.ListForUser(r.Context(), userID)
	if err != nil {
		logger.Errorf("list conversations user=%d: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "failed to load conversations")
		return
	}

	summaries := make([]model.ConversationSummary, 0, len(convs))
	for i := range convs {
		s, err := h.buildSummary(r.Context(), &convs[i], userID)
		if err != nil {
			logger.Errorf("build summary conv=%d user=%d: %v", convs[i].ID, userID, err)
			writeError(w, http.StatusInternalServerError, "failed to load conversations")
			return
		}
		summaries = append(summaries, *s)
	}
	writeJSON(w, http.StatusOK, summaries)
}

// Get returns one conversation with its full message history. Retrieving a
// conversation marks the peer's messages as read, mirroring the read receipt
// a user opening the thread implies.
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	defer logger.DeferLogDuration("handler.ConversationGet", time.Now())()
	userID := middleware.GetUserID(r.Context())
	convID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}

	conv, _ := h.loadParticipantConversation(r.Context(), w, convID, userID)
	if conv == nil {
		return
	}

	if err := h.msgRepo.MarkRead(r.Context(), convID, userID); err != nil {
		logger.Errorf("mark read on retrieve conv=%d user=%d: %v", convID, userID, err)
	} else {
		h.hub.BroadcastToConversation(convID, ws.OutboundFrame{Type: ws.FrameMessagesRead, UserID: userID})
	}

	detail, err := h.buildDetail(r.Context(), conv, userID)
	if err != nil {
		logger.Errorf("build detail conv=%d user=%d: %v", convID, userID, err)
		writeError(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

type getOrCreateRequest struct {
	AdID int64 `json:"ad_id"`
}

// GetOrCreate finds or starts the viewer's conversation about a listing.
// Responds 201 when a new conversation was created, 200 when it existed.
func (h *ConversationHandler) GetOrCreate(w http.ResponseWriter, r *http.Request) {
	defer logger.DeferLogDuration("handler.ConversationGetOrCreate", time.Now())()
	userID := middleware.GetUserID(r.Context())

	var req getOrCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AdID <= 0 {
		writeError(w, http.StatusBadRequest, "ad_id is required")
		return
	}

	listing, err := h.listingRepo.GetByID(r.Context(), req.AdID)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "ad not found")
		return
	}
	if err != nil {
		logger.Errorf("get listing id=%d: %v", req.AdID, err)
		writeError(w, http.StatusInternalServerError, "failed to load ad")
		return
	}
	if listing.SellerID == userID {
		writeError(w, http.StatusBadRequest, "You cannot chat with yourself")
		return
	}

	conv, created, err := h.convRepo.GetOrCreate(r.Context(), listing.ID, userID, listing.SellerID)
	if err != nil {
		logger.Errorf("get or create conversation ad=%d buyer=%d: %v", listing.ID, userID, err)
		writeError(w, http.StatusInternalServerError, "failed to open conversation")
		return
	}

	detail, err := h.buildDetail(r.Context(), conv, userID)
	if err != nil {
		logger.Errorf("build detail conv=%d user=%d: %v", conv.ID, userID, err)
		writeError(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, detail)
}

// MarkAsRead is the REST fallback for the mark_read socket frame.
func (h *ConversationHandler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	defer logger.DeferLogDuration("handler.ConversationMarkAsRead", time.Now())()
	userID := middleware.GetUserID(r.Context())
	convID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}

	conv, _ := h.loadParticipantConversation(r.Context(), w, convID, userID)
	if conv == nil {
		return
	}

	if err := h.msgRepo.MarkRead(r.Context(), convID, userID); err != nil {
		logger.Errorf("mark as read conv=%d user=%d: %v", convID, userID, err)
		writeError(w, http.StatusInternalServerError, "failed to mark as read")
		return
	}
	h.hub.BroadcastToConversation(convID, ws.OutboundFrame{Type: ws.FrameMessagesRead, UserID: userID})
	writeJSON(w, http.StatusOK, map[string]string{"status": "messages marked as read"})
}

// loadParticipantConversation fetches the conversation and enforces that the
// viewer participates in it. Writes the error response itself; a nil return
// means the response has been sent.
func (h *ConversationHandler) loadParticipantConversation(ctx context.Context, w http.ResponseWriter, convID, userID int64) (*model.Conversation, error) {
	conv, err := h.convRepo.GetByID(ctx, convID)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return nil, err
	}
	if err != nil {
		logger.Errorf("get conversation id=%d: %v", convID, err)
		writeError(w, http.StatusInternalServerError, "failed to load conversation")
		return nil, err
	}
	if conv.BuyerID != userID && conv.SellerID != userID {
		// Hide the thread's existence from non-participants.
		writeError(w, http.StatusNotFound, "conversation not found")
		return nil, repository.ErrNotFound
	}
	return conv, nil
}

func (h *ConversationHandler) participants(ctx context.Context, conv *model.Conversation) (buyer, seller model.UserPublic, err error) {
	b, err := h.userRepo.GetByID(ctx, conv.BuyerID)
	if err != nil {
		return buyer, seller, err
	}
	s, err := h.userRepo.GetByID(ctx, conv.SellerID)
	if err != nil {
		return buyer, seller, err
	}
	return b.ToPublic(), s.ToPublic(), nil
}

func (h *ConversationHandler) buildSummary(ctx context.Context, conv *model.Conversation, viewerID int64) (*model.ConversationSummary, error) {
	listing, err := h.listingRepo.GetByID(ctx, conv.ListingID)
	if err != nil {
		return nil, err
	}
	buyer, seller, err := h.participants(ctx, conv)
	if err != nil {
		return nil, err
	}

	s := &model.ConversationSummary{
		ID:        conv.ID,
		Listing:   *listing,
		Buyer:     buyer,
		Seller:    seller,
		OtherUser: conv.OtherUser(viewerID, buyer, seller),
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
	}

	last, err := h.msgRepo.Last(ctx, conv.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if last != nil {
		s.LastMessage = &model.LastMessagePreview{
			Content:   last.Content,
			SenderID:  last.SenderID,
			CreatedAt: last.CreatedAt,
		}
	}

	unread, err := h.msgRepo.UnreadCount(ctx, conv.ID, viewerID)
	if err != nil {
		return nil, err
	}
	s.UnreadCount = unread
	return s, nil
}

func (h *ConversationHandler) buildDetail(ctx context.Context, conv *model.Conversation, viewerID int64) (*model.ConversationDetail, error) {
	listing, err := h.listingRepo.GetByID(ctx, conv.ListingID)
	if err != nil {
		return nil, err
	}
	buyer, seller, err := h.participants(ctx, conv)
	if err != nil {
		return nil, err
	}
	messages, err := h.msgRepo.History(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	return &model.ConversationDetail{
		ID:        conv.ID,
		Listing:   *listing,
		Buyer:     buyer,
		Seller:    seller,
		OtherUser: conv.OtherUser(viewerID, buyer, seller),
		Messages:  messages,
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
	}, nil
}
