package repository

import (
	"context"

	"MarketPull/internal/domain/models"
	domrepo "MarketPull/internal/domain/repository"
)

// NoopArchive is used when archive.type is none.
type NoopArchive struct{}

func (NoopArchive) Init(context.Context) error                                 { return nil }
func (NoopArchive) StoreBatch(context.Context, []*models.ListingRecord) error { return nil }
func (NoopArchive) Health(context.Context) error                               { return nil }
func (NoopArchive) Close() error                                               { return nil }

// NoopPublisher is used when Kafka is disabled.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, *models.Event) error        { return nil }
func (NoopPublisher) PublishBatch(context.Context, []*models.Event) error { return nil }
func (NoopPublisher) Close() error                                        { return nil }

var (
	_ domrepo.ListingArchive = NoopArchive{}
	_ domrepo.EventPublisher = NoopPublisher{}
)
