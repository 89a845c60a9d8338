package ws

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/motorchat/internal/logger"
	"github.com/motorchat/internal/model"
)

// ConversationAccess is the slice of the conversation repository the hub needs.
type ConversationAccess interface {
	GetByID(ctx context.Context, id int64) (*model.Conversation, error)
	IsParticipant(ctx context.Context, convID, userID int64) (bool, error)
	Touch(ctx context.Context, convID int64, t time.Time) error
}

// MessageWriter persists chat lines and read flags.
type MessageWriter interface {
	Create(ctx context.Context, m *model.Message) error
	MarkRead(ctx context.Context, convID, readerID int64) error
}

// UserDirectory resolves sender references for outbound frames.
type UserDirectory interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
}

// PushNotifier delivers push notifications. nil disables push.
type PushNotifier interface {
	Notify(ctx context.Context, userID int64, title, body string, data map[string]string)
}

// Hub routes frames between the clients of each conversation room. One room
// per conversation id; a participant may hold several connections (tabs).
type Hub struct {
	mu       sync.RWMutex
	rooms    map[int64]map[*Client]struct{}
	total    int
	maxConns int

	convRepo   ConversationAccess
	msgRepo    MessageWriter
	userRepo   UserDirectory
	pushClient PushNotifier

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub(convRepo ConversationAccess, msgRepo MessageWriter, userRepo UserDirectory, maxConns int, pushClient PushNotifier) *Hub {
	if maxConns <= 0 {
		maxConns = 10000
	}
	return &Hub{
		rooms:      make(map[int64]map[*Client]struct{}),
		maxConns:   maxConns,
		convRepo:   convRepo,
		msgRepo:    msgRepo,
		userRepo:   userRepo,
		pushClient: pushClient,
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) shutdown() {
	// Collect all clients under the lock, do NOT perform I/O under mutex.
	h.mu.Lock()
	allClients := make([]*Client, 0, h.total)
	for _, room := range h.rooms {
		for c := range room {
			allClients = append(allClients, c)
		}
	}
	h.rooms = make(map[int64]map[*Client]struct{})
	h.total = 0
	h.mu.Unlock()

	// Close connections outside the lock (network I/O).
	for _, c := range allClients {
		c.Close()
	}
	for _, c := range allClients {
		c.Wait()
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	if h.total >= h.maxConns {
		h.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting conv=%d user=%d", h.maxConns, c.conversationID, c.userID)
		c.Close()
		return
	}
	if _, ok := h.rooms[c.conversationID]; !ok {
		h.rooms[c.conversationID] = make(map[*Client]struct{})
	}
	h.rooms[c.conversationID][c] = struct{}{}
	h.total++
	h.mu.Unlock()

	h.sendToClient(c, OutboundFrame{Type: FrameConnectionEstablished, Message: "Connected to chat"})
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	room, ok := h.rooms[c.conversationID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, exists := room[c]; !exists {
		h.mu.Unlock()
		return
	}
	delete(room, c)
	h.total--
	if len(room) == 0 {
		delete(h.rooms, c.conversationID)
	}
	h.mu.Unlock()

	// Network I/O outside the lock.
	c.Close()
}

// HandleFrame dispatches one inbound frame from a client.
func (h *Hub) HandleFrame(ctx context.Context, c *Client, frame InboundFrame) {
	switch frame.Type {
	case FrameChatMessage:
		h.handleChatMessage(ctx, c, frame)
	case FrameMarkRead:
		h.handleMarkRead(ctx, c)
	default:
		h.sendToClient(c, OutboundFrame{Type: FrameError, Message: "unknown frame type"})
	}
}

func (h *Hub) handleChatMessage(ctx context.Context, c *Client, frame InboundFrame) {
	defer logger.DeferLogDuration("ws.handleChatMessage", time.Now())()
	text := strings.TrimSpace(frame.Message)
	if text == "" {
		h.sendToClient(c, OutboundFrame{Type: FrameError, Message: "Message cannot be empty"})
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	m := &model.Message{
		ConversationID: c.conversationID,
		SenderID:       c.userID,
		Content:        text,
	}
	if err := h.msgRepo.Create(ctx, m); err != nil {
		logger.Errorf("ws save message conv=%d user=%d: %v", c.conversationID, c.userID, err)
		h.sendToClient(c, OutboundFrame{Type: FrameError, Message: "failed to save message"})
		return
	}

	sender, err := h.userRepo.GetByID(ctx, c.userID)
	if err != nil {
		logger.Errorf("ws get sender user=%d: %v", c.userID, err)
	} else {
		m.Sender = sender.ToPublic()
	}

	if err := h.convRepo.Touch(ctx, c.conversationID, m.CreatedAt); err != nil {
		logger.Errorf("ws touch conversation conv=%d: %v", c.conversationID, err)
	}

	h.broadcastToRoom(c.conversationID, OutboundFrame{Type: FrameChatMessage, Message: m})
	h.notifyAbsentPeer(c, m)
}

// notifyAbsentPeer pushes a notification to the other participant when they
// have no connection to this conversation's room.
func (h *Hub) notifyAbsentPeer(c *Client, m *model.Message) {
	if h.pushClient == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conv, err := h.convRepo.GetByID(ctx, c.conversationID)
	if err != nil {
		logger.Errorf("ws get conversation conv=%d: %v", c.conversationID, err)
		return
	}
	peerID := conv.BuyerID
	if c.userID == conv.BuyerID {
		peerID = conv.SellerID
	}
	if h.userInRoom(c.conversationID, peerID) {
		return
	}

	title := strings.TrimSpace(m.Sender.FirstName + " " + m.Sender.LastName)
	if title == "" {
		title = "New message"
	}
	body := m.Content
	if len(body) > 120 {
		body = body[:117] + "..."
	}
	data := map[string]string{"conversation_id": fmt.Sprintf("%d", c.conversationID)}
	go h.pushClient.Notify(context.Background(), peerID, title, body, data)
}

func (h *Hub) handleMarkRead(ctx context.Context, c *Client) {
	defer logger.DeferLogDuration("ws.handleMarkRead", time.Now())()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := h.msgRepo.MarkRead(ctx, c.conversationID, c.userID); err != nil {
		logger.Errorf("ws mark read conv=%d user=%d: %v", c.conversationID, c.userID, err)
		return
	}

	h.broadcastToRoom(c.conversationID, OutboundFrame{Type: FrameMessagesRead, UserID: c.userID})
}

// BroadcastToConversation sends a frame to every client in the conversation's
// room. Used by REST handlers for events that originate outside the socket.
func (h *Hub) BroadcastToConversation(convID int64, frame OutboundFrame) {
	h.broadcastToRoom(convID, frame)
}

func (h *Hub) broadcastToRoom(convID int64, frame OutboundFrame) {
	h.mu.RLock()
	room, ok := h.rooms[convID]
	if !ok {
		h.mu.RUnlock()
		return
	}
	targets := make([]*Client, 0, len(room))
	for c := range room {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.sendToClient(c, frame)
	}
}

func (h *Hub) userInRoom(convID, userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[convID] {
		if c.userID == userID {
			return true
		}
	}
	return false
}

func (h *Hub) sendToClient(c *Client, frame OutboundFrame) {
	select {
	case c.send <- frame:
	case <-c.done:
	default:
		// Backpressure: send buffer full, close slow client.
		logger.Errorf("ws send buffer full, closing slow client conv=%d user=%d", c.conversationID, c.userID)
		c.Close()
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
