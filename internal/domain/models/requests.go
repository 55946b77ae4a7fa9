package models

// Requests for the HTTP API and the commands topic.

type CreateQueryRequest struct {
	Source  string       `json:"source" default:"big" validate:"oneof=big small"`
	Name    string       `json:"name" validate:"max=100"`
	Mention string       `json:"mention" validate:"max=64"`
	Params  SearchParams `json:"params"`
	// SkipCategory keeps category 0 instead of asking the marketplace.
	SkipCategory bool `json:"skip_category"`
}

type AddParamsRequest struct {
	Params SearchParams `json:"params"`
}

type ListQueriesRequest struct {
	Source string `query:"source" validate:"omitempty,oneof=big small"`
}

type TargetRequest struct {
	Source      string  `json:"source" default:"big" validate:"oneof=big small"`
	ListingID   string  `json:"listing_id" validate:"required,max=64"`
	ThreadID    string  `json:"thread_id" validate:"required,max=64"`
	MaxBid      float64 `json:"max_bid" validate:"required,gt=0"`
	LeadSeconds int     `json:"lead_seconds" validate:"gte=0,lte=3600"`
}

// Command is a message of the commands topic.
type Command struct {
	Action      string  `json:"action" validate:"oneof=target untarget cancel_affordance"`
	Source      string  `json:"source" default:"big" validate:"oneof=big small"`
	ListingID   string  `json:"listing_id" validate:"required_unless=Action cancel_affordance"`
	ThreadID    string  `json:"thread_id" validate:"required_if=Action target"`
	MaxBid      float64 `json:"max_bid" validate:"required_if=Action target,gte=0"`
	LeadSeconds int     `json:"lead_seconds" validate:"gte=0,lte=3600"`
	MessageID   string  `json:"message_id" validate:"required_if=Action cancel_affordance"`
}
