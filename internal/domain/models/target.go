package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TargetStatus is the lifecycle state of an auction target.
type TargetStatus string

const (
	TargetScheduled TargetStatus = "scheduled"
	TargetFired     TargetStatus = "fired"
	TargetCancelled TargetStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s TargetStatus) Terminal() bool {
	return s == TargetFired || s == TargetCancelled
}

// AuctionTarget is a scheduled intent to bid on a listing at a given time.
type AuctionTarget struct {
	ListingID     string          `json:"listing_id"`
	Source        Source          `json:"source"`
	FireAt        time.Time       `json:"fire_at"`
	MaxBid        decimal.Decimal `json:"max_bid"`
	SessionToken  string          `json:"session_token,omitempty"`
	OwnerThreadID string          `json:"owner_thread_id"`
	AffordanceRef string          `json:"affordance_ref,omitempty"`
	Title         string          `json:"title"`
	Status        TargetStatus    `json:"status"`
	Note          string          `json:"note,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ScheduleRequest carries everything the scheduler needs to arm a target.
type ScheduleRequest struct {
	ListingID     string
	Source        Source
	FireAt        time.Time
	MaxBid        decimal.Decimal
	SessionToken  string
	OwnerThreadID string
	AffordanceRef string
	Title         string
}

// BidResult is the marketplace answer to a bid.
type BidResult struct {
	IsHighestBidder bool            `json:"is_highest_bidder"`
	CurrentPrice    decimal.Decimal `json:"current_price"`
	HighBidder      string          `json:"high_bidder,omitempty"`
	Message         string          `json:"message"`
}
