package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// RawListing is one unprocessed item of a search response.
type RawListing struct {
	ID      string
	Payload json.RawMessage
}

// ListingRecord is the normalized form of a marketplace listing.
type ListingRecord struct {
	ID          string          `json:"id"`
	Source      Source          `json:"source"`
	Title       string          `json:"title"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`
	Negotiable  bool            `json:"negotiable,omitempty"`
	IsAuction   bool            `json:"is_auction"`
	BuyNow      bool            `json:"buy_now,omitempty"`
	BestOffer   bool            `json:"best_offer,omitempty"`
	URL         string          `json:"url"`
	ImageURL    string          `json:"image_url,omitempty"`
	Seller      string          `json:"seller,omitempty"`
	SellerURL   string          `json:"seller_url,omitempty"`
	SellerType  string          `json:"seller_type,omitempty"`
	Condition   string          `json:"condition,omitempty"`
	Shipping    string          `json:"shipping,omitempty"`
	Location    string          `json:"location,omitempty"`
	EndsAt      *time.Time      `json:"ends_at,omitempty"`
	PublishedAt *time.Time      `json:"published_at,omitempty"`
	Detail      *ListingDetail  `json:"detail,omitempty"`
	FirstSeen   time.Time       `json:"first_seen"`
}

// Clone copies the record including its detail.
func (r *ListingRecord) Clone() *ListingRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.Detail != nil {
		d := *r.Detail
		if r.Detail.SellerBadges != nil {
			d.SellerBadges = make(map[string]string, len(r.Detail.SellerBadges))
			for k, v := range r.Detail.SellerBadges {
				d.SellerBadges[k] = v
			}
		}
		c.Detail = &d
	}
	return &c
}

// ListingDetail holds fields that need a second request.
type ListingDetail struct {
	Title          string            `json:"title,omitempty"`
	Description    string            `json:"description,omitempty"`
	SellerName     string            `json:"seller_name,omitempty"`
	SellerID       string            `json:"seller_id,omitempty"`
	SellerRating   *float64          `json:"seller_rating,omitempty"`
	SellerBadges   map[string]string `json:"seller_badges,omitempty"`
	AccountCreated *time.Time        `json:"account_created,omitempty"`
	Views          int               `json:"views,omitempty"`
	IsAuction      bool              `json:"is_auction"`
	StartsAt       *time.Time        `json:"starts_at,omitempty"`
	EndsAt         *time.Time        `json:"ends_at,omitempty"`
	SessionToken   string            `json:"session_token,omitempty"`
	FetchedAt      time.Time         `json:"fetched_at"`
}

// PreviewField is a name/value pair rendered inside a rich preview.
type PreviewField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// RichPreview is the embed attached to an announcement.
type RichPreview struct {
	Title       string         `json:"title"`
	URL         string         `json:"url,omitempty"`
	Description string         `json:"description,omitempty"`
	ImageURL    string         `json:"image_url,omitempty"`
	Author      string         `json:"author,omitempty"`
	AuthorURL   string         `json:"author_url,omitempty"`
	Footer      string         `json:"footer,omitempty"`
	Timestamp   *time.Time     `json:"timestamp,omitempty"`
	Fields      []PreviewField `json:"fields,omitempty"`
}

// Announcement is a message queued for a thread.
type Announcement struct {
	ThreadID  string       `json:"thread_id"`
	ListingID string       `json:"listing_id,omitempty"`
	Content   string       `json:"content"`
	Preview   *RichPreview `json:"preview,omitempty"`
}
