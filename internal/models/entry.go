package models

import "time"

type QueueEntry struct {
	ID            int64     `json:"id"`
	ShopID        string    `json:"shop_id"`
	FirstName     string    `json:"first_name"`
	SourceOrderID *string   `json:"source_order_id,omitempty"`
	OrderNumber   *string   `json:"order_number,omitempty"`
	Status        string    `json:"status"` // waiting, active, done, skipped, removed, undone
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// QueueState is the snapshot returned to the dashboard and the overlay.
type QueueState struct {
	Active       *QueueEntry  `json:"active"`
	Waiting      []QueueEntry `json:"waiting"`
	TotalWaiting int          `json:"total_waiting"`
}
