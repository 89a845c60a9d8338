package model

import "time"

// Conversation is one buyer/seller thread anchored to one listing.
// The (listing, buyer, seller) triple is unique; the anchor is immutable.
type Conversation struct {
	ID        int64     `json:"id"`
	ListingID int64     `json:"-"`
	BuyerID   int64     `json:"-"`
	SellerID  int64     `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OtherUser returns the participant that is not the viewing user.
func (c *Conversation) OtherUser(viewerID int64, buyer, seller UserPublic) UserPublic {
	if viewerID == c.BuyerID {
		return seller
	}
	return buyer
}

// LastMessagePreview is the denormalized last-message cache shown in the
// conversation list. It may lag the true message history.
type LastMessagePreview struct {
	Content   string    `json:"content"`
	SenderID  int64     `json:"sender_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationSummary is the list projection: participants, listing anchor,
// last message preview and the viewer's unread counter.
type ConversationSummary struct {
	ID          int64               `json:"id"`
	Listing     Listing             `json:"ad"`
	Buyer       UserPublic          `json:"buyer"`
	Seller      UserPublic          `json:"seller"`
	OtherUser   UserPublic          `json:"other_user"`
	LastMessage *LastMessagePreview `json:"last_message,omitempty"`
	UnreadCount int                 `json:"unread_count"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// ConversationDetail is the retrieve projection with full message history,
// chronologically ordered.
type ConversationDetail struct {
	ID        int64      `json:"id"`
	Listing   Listing    `json:"ad"`
	Buyer     UserPublic `json:"buyer"`
	Seller    UserPublic `json:"seller"`
	OtherUser UserPublic `json:"other_user"`
	Messages  []Message  `json:"messages"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
