package models

import "time"

type Shop struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"` // technical token, lowercase, no whitespace
	DisplayName string    `json:"display_name"`
	ShopDomain  *string   `json:"shop_domain,omitempty"`
	IsActive    bool      `json:"is_active"`
	QueueClosed bool      `json:"queue_closed"`
	Branding    Branding  `json:"branding"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Branding holds the overlay colors and toggles per shop.
type Branding struct {
	PrimaryColor       string `json:"primary_color"`
	TextColor          string `json:"text_color"`
	BackgroundColor    string `json:"background_color"`
	ShowNameBackground bool   `json:"show_name_background"`
	ShowMoreBackground bool   `json:"show_more_background"`
}

// BrandingUpdate carries the optional branding fields of an update request;
// nil means "leave unchanged". At least one field must be present.
type BrandingUpdate struct {
	PrimaryColor       *string `json:"primary_color"`
	TextColor          *string `json:"text_color"`
	BackgroundColor    *string `json:"background_color"`
	ShowNameBackground *bool   `json:"show_name_background"`
	ShowMoreBackground *bool   `json:"show_more_background"`
}

func (u BrandingUpdate) Empty() bool {
	return u.PrimaryColor == nil && u.TextColor == nil && u.BackgroundColor == nil &&
		u.ShowNameBackground == nil && u.ShowMoreBackground == nil
}
