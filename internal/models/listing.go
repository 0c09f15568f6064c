package models

// Listing is the marketplace record being edited. It is owned by the upstream
// marketplace API; the editor only ever holds a possibly-stale local copy.
type Listing struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Name          string         `json:"name,omitempty"` // legacy records carry the title here
	Description   string         `json:"description"`
	Location      string         `json:"location"`
	Price         float64        `json:"price"`
	Negotiable    any            `json:"negotiable"` // upstream sends either a bool or a string
	ContactNumber string         `json:"contactNumber"`
	Group         string         `json:"group,omitempty"`
	Category      string         `json:"category"`
	SubCategory   string         `json:"subCategory"`
	ChildCategory string         `json:"childCategory,omitempty"`
	Attributes    map[string]any `json:"attributes,omitempty"`
	Images        []string       `json:"images"`
	IsPromoted    bool           `json:"isPromoted,omitempty"`
}

// DisplayTitle returns the listing title, falling back to the legacy name
// field for records created before the title rename.
func (l *Listing) DisplayTitle() string {
	if l.Title != "" {
		return l.Title
	}
	return l.Name
}

// CoerceNegotiable preserves the exact legacy coercion: boolean true, or the
// literal string "true", count as negotiable. Every other value is false.
func CoerceNegotiable(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "true"
	}
	return false
}

// RequestImage is one image reference in the update payload. IDs are
// positional ("image-0", "image-1", ...), matching what the upstream
// endpoint expects.
type RequestImage struct {
	ImageURL string `json:"imageUrl"`
	ID       string `json:"id"`
}

// UpdateListingRequest is the write-only projection sent to the upstream
// update endpoint. It is assembled fresh at submit time and never stored.
type UpdateListingRequest struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Price         float64        `json:"price"`
	Location      string         `json:"location"`
	Category      string         `json:"category"`
	SubCategory   string         `json:"subCategory"`
	ChildCategory *string        `json:"childCategory"` // null when the listing has none
	ContactNumber string         `json:"contactNumber"`
	Images        []RequestImage `json:"images"`
	IsPromoted    bool           `json:"isPromoted"`
	Negotiable    bool           `json:"negotiable"`
	Attributes    map[string]any `json:"attributes"`
}
