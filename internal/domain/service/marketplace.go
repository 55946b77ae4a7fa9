package service

import (
	"context"

	"MarketPull/internal/domain/models"

	"github.com/shopspring/decimal"
)

// MarketplaceClient is implemented once per marketplace backend. Each
// variant owns the relevance filter and the normalization of its own
// response shape.
type MarketplaceClient interface {
	Source() models.Source
	// Search fails with models.ErrRateLimited or models.ErrNetwork.
	Search(ctx context.Context, params models.SearchParams) ([]models.RawListing, error)
	// IsOrganic rejects promoted or unrelated items mixed into results.
	IsOrganic(raw models.RawListing) bool
	Normalize(raw models.RawListing) (*models.ListingRecord, error)
	// RequiresDetail reports whether announcements need GetDetails first.
	RequiresDetail() bool
	GetDetails(ctx context.Context, listingID string) (*models.ListingDetail, error)
	PlaceBid(ctx context.Context, listingID string, amount decimal.Decimal, sessionToken string) (*models.BidResult, error)
}

// CategorySuggester guesses the marketplace category for a query. id is 0
// when the marketplace has no opinion.
type CategorySuggester interface {
	SuggestCategory(ctx context.Context, params models.SearchParams) (id int, name string, err error)
}

// Marketplaces indexes the configured clients by source.
type Marketplaces map[models.Source]MarketplaceClient

// Get returns the client for a source or models.ErrUnknownSource.
func (m Marketplaces) Get(src models.Source) (MarketplaceClient, error) {
	c, ok := m[src]
	if !ok || c == nil {
		return nil, models.ErrUnknownSource
	}
	return c, nil
}
