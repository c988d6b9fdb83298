package models

import (
	"fmt"
	"time"
)

// Placeholder values used when a message yields no usable image or link.
// ContentEntry.AffiliateURL is never empty.
const (
	PlaceholderImageURL = "https://via.placeholder.com/300x300?text=Product"
	PlaceholderDealURL  = "https://via.placeholder.com/deal"
)

// ProductPayload is the normalized content blob stored with every entry.
type ProductPayload struct {
	Price         string `json:"price,omitempty"`
	OriginalPrice string `json:"original_price,omitempty"`
	Discount      int    `json:"discount,omitempty"`
	Currency      string `json:"currency"`
	Description   string `json:"description,omitempty"`
	ImageURL      string `json:"image_url,omitempty"`
	AffiliateURL  string `json:"affiliate_url"`
	Rating        string `json:"rating,omitempty"`
	ReviewCount   int    `json:"review_count,omitempty"`
	PhotoRef      string `json:"photo_ref,omitempty"`
}

// ContentEntry is a persisted, display-ready record derived from one
// ingested message. Entries are deduplicated on SourceID: an edited post
// updates its existing row instead of inserting a second one.
type ContentEntry struct {
	ID           string         `json:"id"`
	SourceID     string         `json:"source_id"` // "<channelID>:<messageID>"
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	ImageURL     string         `json:"image_url"`
	AffiliateURL string         `json:"affiliate_url"`
	ContentType  string         `json:"content_type"` // always "product"
	PageType     string         `json:"page_type"`
	Category     string         `json:"category"`
	SourceType   string         `json:"source_type"` // always "telegram"
	Discount     int            `json:"discount,omitempty"`
	DisplayPages []string       `json:"display_pages"`
	Content      ProductPayload `json:"content"`
	Caption      string         `json:"caption,omitempty"` // generated for the social re-posting pipeline
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func formatSourceID(channelID int64, messageID int) string {
	return fmt.Sprintf("%d:%d", channelID, messageID)
}

// ProcessingSettings is the global kill switch state. When disabled, channel
// events are received but dropped without side effects.
type ProcessingSettings struct {
	Enabled          bool      `json:"enabled"`
	CommissionMethod string    `json:"commission_method"` // "priority" or "commission"
	UpdatedAt        time.Time `json:"updated_at"`
}
