package model

import "time"

// Message is one chat line. Content and sender are immutable after creation;
// only the read flag may transition false -> true.
type Message struct {
	ID             int64      `json:"id"`
	ConversationID int64      `json:"-"`
	SenderID       int64      `json:"-"`
	Content        string     `json:"content"`
	IsRead         bool       `json:"is_read"`
	CreatedAt      time.Time  `json:"created_at"`
	Sender         UserPublic `json:"sender"`
}
