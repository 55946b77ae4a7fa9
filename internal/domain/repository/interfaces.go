package repository

import (
	"context"

	"MarketPull/internal/domain/models"
)

// QueryStore persists the tracked query registry.
type QueryStore interface {
	LoadQueries(ctx context.Context) ([]*models.TrackedQuery, error)
	SaveQuery(ctx context.Context, q *models.TrackedQuery) error
	DeleteQuery(ctx context.Context, threadID string) error
}

// TargetStore persists pending auction targets so they can be re-armed.
type TargetStore interface {
	LoadTargets(ctx context.Context) ([]*models.AuctionTarget, error)
	SaveTarget(ctx context.Context, t *models.AuctionTarget) error
	DeleteTarget(ctx context.Context, listingID string) error
}

// StateStore is a backend holding both registries.
type StateStore interface {
	QueryStore
	TargetStore
	Close() error
}

// ListingArchive keeps a history of announced listings.
type ListingArchive interface {
	Init(ctx context.Context) error
	StoreBatch(ctx context.Context, records []*models.ListingRecord) error
	Health(ctx context.Context) error
	Close() error
}

// EventPublisher emits lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, ev *models.Event) error
	PublishBatch(ctx context.Context, evs []*models.Event) error
	Close() error
}

type Metrics interface {
	RecordPoll(source, result string)
	RecordListingsEmitted(source string, n int)
	RecordDetailFetch(source, result string)
	RecordTarget(status string)
	RecordBid(source, outcome string)
	SetPendingTargets(n int)
	SetCacheSize(source string, n int)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
