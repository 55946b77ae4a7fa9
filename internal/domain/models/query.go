package models

import (
	"fmt"
	"strings"
	"time"
)

// Source identifies a marketplace backend.
type Source string

const (
	SourceBig   Source = "big"
	SourceSmall Source = "small"
)

// ParseSource validates a source name.
func ParseSource(s string) (Source, error) {
	switch Source(strings.ToLower(strings.TrimSpace(s))) {
	case SourceBig:
		return SourceBig, nil
	case SourceSmall:
		return SourceSmall, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSource, s)
}

// Listing type bitmask for the big marketplace.
const (
	ListingTypeAuction    = 1
	ListingTypeBuyNow     = 2
	ListingTypeBestOffer  = 4
	ListingTypeAllFormats = 0
)

// SearchParams is one parameter set of a tracked query. Fields that a
// backend does not understand are ignored by it.
type SearchParams struct {
	Query    string `json:"query" yaml:"query" validate:"required,max=120"`
	MinPrice int    `json:"min_price,omitempty" yaml:"min_price" validate:"gte=0"`
	MaxPrice int    `json:"max_price,omitempty" yaml:"max_price" validate:"gte=0"`
	Exclude  string `json:"exclude,omitempty" yaml:"exclude" validate:"max=60"`

	Category    int    `json:"category,omitempty" yaml:"category" validate:"gte=0"`
	Condition   []int  `json:"condition,omitempty" yaml:"condition"`
	ListingType int    `json:"listing_type,omitempty" yaml:"listing_type" validate:"gte=0,lte=7"`
	SellerType  int    `json:"seller_type,omitempty" yaml:"seller_type" validate:"gte=0,lte=2"`
	SortBy      int    `json:"sort_by,omitempty" yaml:"sort_by" validate:"gte=0"`
	Location    int    `json:"location,omitempty" yaml:"location" validate:"gte=0"`
	Zip         string `json:"zip,omitempty" yaml:"zip"`
	Sold        bool   `json:"sold,omitempty" yaml:"sold"`

	LocationID int `json:"location_id,omitempty" yaml:"location_id" validate:"gte=0"`
	Radius     int `json:"radius,omitempty" yaml:"radius" validate:"gte=0"`
	Size       int `json:"size,omitempty" yaml:"size" validate:"gte=0,lte=100"`
}

// Excludes reports whether the title matches the exclude keyword.
func (p SearchParams) Excludes(title string) bool {
	kw := strings.TrimSpace(p.Exclude)
	if kw == "" {
		return false
	}
	return strings.Contains(strings.ToLower(title), strings.ToLower(kw))
}

// Label renders the parameter set the way it is listed to users.
func (p SearchParams) Label() string {
	var b strings.Builder
	b.WriteString(p.Query)
	if p.Exclude != "" {
		fmt.Fprintf(&b, " (-%s)", p.Exclude)
	}
	if p.MinPrice > 0 || p.MaxPrice > 0 {
		fmt.Fprintf(&b, " [%d:%d]", p.MinPrice, p.MaxPrice)
	}
	return b.String()
}

// TrackedQuery binds a notification thread to one or more search parameter sets.
type TrackedQuery struct {
	ThreadID  string         `json:"thread_id"`
	Name      string         `json:"name"`
	Source    Source         `json:"source"`
	ParamSets []SearchParams `json:"param_sets"`
	FirstPoll bool           `json:"first_poll"`
	Mention   string         `json:"mention,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Clone returns a deep copy safe to hand out of the registry.
func (q *TrackedQuery) Clone() *TrackedQuery {
	if q == nil {
		return nil
	}
	c := *q
	c.ParamSets = make([]SearchParams, len(q.ParamSets))
	for i, p := range q.ParamSets {
		p.Condition = append([]int(nil), p.Condition...)
		c.ParamSets[i] = p
	}
	return &c
}
