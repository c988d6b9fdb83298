package models

import (
	"time"
)

// TagType is one of the three ways an affiliate tag rewrites a link.
type TagType string

const (
	TagTypeParameter TagType = "parameter" // append/replace a query parameter
	TagTypeWrapper   TagType = "wrapper"   // embed the encoded URL in a redirect template
	TagTypeURL       TagType = "url"       // substitute the network URL outright
)

// WrapperURLPlaceholder marks where the percent-encoded original URL goes in
// a wrapper-type tag value.
const WrapperURLPlaceholder = "{{URL_ENC}}"

// Commission methods rank competing tags: by operator-assigned priority, or
// by highest commission rate first.
const (
	CommissionMethodPriority   = "priority"
	CommissionMethodCommission = "commission"
)

// AffiliateTag is a per-network monetization rule. Multiple tags may exist
// for one network; exactly one is selected per transformation: lowest
// priority number wins, ties broken by higher commission rate, then row id.
type AffiliateTag struct {
	ID             int64      `json:"id"`
	BotName        string     `json:"bot_name"`
	Network        string     `json:"network_name"`
	TagType        TagType    `json:"tag_type"`
	TagValue       string     `json:"tag_value"`
	Priority       int        `json:"priority"`
	CommissionRate float64    `json:"commission_rate"`
	Active         bool       `json:"is_active"`
	LastUsed       *time.Time `json:"last_used,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Validate reports whether the tag is well-formed enough to apply.
func (t AffiliateTag) Validate() bool {
	switch t.TagType {
	case TagTypeParameter, TagTypeWrapper, TagTypeURL:
		return t.TagValue != ""
	default:
		return false
	}
}

// CommissionRate is one row of a bulk commission upload.
type CommissionUpload struct {
	Network  string  `json:"network"`
	Category string  `json:"category"`
	Rate     float64 `json:"rate"`
}
