package client

import (
	"sync"

	"github.com/motorchat/internal/model"
)

// ConversationStore holds the conversation list and the open conversation's
// message history. It is mutated only through its methods, so a session
// controller dispatches events into it without reaching into its state. Safe
// for concurrent use; the mutex serializes mutations the way a single-threaded
// reducer would.
type ConversationStore struct {
	mu sync.RWMutex

	summaries []model.ConversationSummary

	openID   int64 // 0 when no conversation is open
	messages []model.Message
	seen     map[int64]struct{} // message ids in the open history, for dedup
}

func NewConversationStore() *ConversationStore {
	return &ConversationStore{seen: make(map[int64]struct{})}
}

// Hydrate replaces the conversation list with fresh REST data.
func (s *ConversationStore) Hydrate(summaries []model.ConversationSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries = append([]model.ConversationSummary(nil), summaries...)
}

// Summaries returns a copy of the conversation list.
func (s *ConversationStore) Summaries() []model.ConversationSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.ConversationSummary(nil), s.summaries...)
}

// Open makes the conversation current and seeds its history from REST detail
// data. Any previously open conversation's history is discarded.
func (s *ConversationStore) Open(detail *model.ConversationDetail) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openID = detail.ID
	s.messages = append([]model.Message(nil), detail.Messages...)
	s.seen = make(map[int64]struct{}, len(s.messages))
	for _, m := range s.messages {
		s.seen[m.ID] = struct{}{}
	}
}

// Close forgets the open conversation. Late appends become no-ops.
func (s *ConversationStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openID = 0
	s.messages = nil
	s.seen = make(map[int64]struct{})
}

// OpenID returns the current conversation id, 0 if none.
func (s *ConversationStore) OpenID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.openID
}

// Messages returns a copy of the open conversation's history in receive order.
func (s *ConversationStore) Messages() []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Message(nil), s.messages...)
}

// AppendMessage appends an inbound message to the open conversation's history.
// Dropped when no conversation is open; duplicates (same id, e.g. a reconnect
// replay) are dropped too. History is append-only, never re-sorted.
func (s *ConversationStore) AppendMessage(m model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openID == 0 {
		return
	}
	if _, dup := s.seen[m.ID]; dup {
		return
	}
	s.seen[m.ID] = struct{}{}
	s.messages = append(s.messages, m)

	for i := range s.summaries {
		if s.summaries[i].ID == s.openID {
			s.summaries[i].LastMessage = &model.LastMessagePreview{
				Content:   m.Content,
				SenderID:  m.Sender.ID,
				CreatedAt: m.CreatedAt,
			}
			s.summaries[i].UpdatedAt = m.CreatedAt
			break
		}
	}
}

// MessagesRead records a read receipt: every open-history message not sent by
// the reader gets its read flag set.
func (s *ConversationStore) MessagesRead(readerID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openID == 0 {
		return
	}
	for i := range s.messages {
		if s.messages[i].Sender.ID != readerID {
			s.messages[i].IsRead = true
		}
	}
}

// ClearUnread zeroes the unread counter of a conversation in the list. The
// counter never goes negative: it is set, not decremented.
func (s *ConversationStore) ClearUnread(convID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.summaries {
		if s.summaries[i].ID == convID {
			s.summaries[i].UnreadCount = 0
			return
		}
	}
}
