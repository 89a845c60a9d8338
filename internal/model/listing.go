package model

import "time"

// Listing is the vehicle ad a conversation is anchored to. The chat service
// only reads listings; the catalog service owns their lifecycle.
type Listing struct {
	ID           int64     `json:"id"`
	SellerID     int64     `json:"seller_id"`
	Title        string    `json:"title"`
	Price        int64     `json:"price"`
	PrimaryImage string    `json:"primary_image,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
