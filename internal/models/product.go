package models

// ExtractedProduct is the transient result of parsing one promotional
// message. Absent data is represented by empty fields, never by an error.
type ExtractedProduct struct {
	Title         string   `json:"title,omitempty"`
	Price         string   `json:"price,omitempty"`          // formatted with currency symbol, e.g. "₹1,999"
	OriginalPrice string   `json:"original_price,omitempty"` // pre-discount price, same format
	Discount      string   `json:"discount,omitempty"`       // e.g. "60%"
	Description   string   `json:"description,omitempty"`
	ImageURL      string   `json:"image_url,omitempty"`
	URLs          []string `json:"urls,omitempty"`
}

// Merge fills empty fields of p from other, preferring what p already has.
func (p *ExtractedProduct) Merge(other ExtractedProduct) {
	if p.Title == "" {
		p.Title = other.Title
	}
	if p.Price == "" {
		p.Price = other.Price
	}
	if p.OriginalPrice == "" {
		p.OriginalPrice = other.OriginalPrice
	}
	if p.Discount == "" {
		p.Discount = other.Discount
	}
	if p.ImageURL == "" {
		p.ImageURL = other.ImageURL
	}
	if p.Description == "" {
		p.Description = other.Description
	}
}

// ParseResult is the typed outcome of a parsing strategy. Parsed=false means
// nothing usable was derived and the message should be skipped.
type ParseResult struct {
	Product    ExtractedProduct
	Parsed     bool
	Confidence float64 // 0-1, how much of the product shape was recovered
	Strategy   string  // name of the strategy that produced the result
}
