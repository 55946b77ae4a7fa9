package repository

import (
	"context"
	"fmt"
	"strings"

	"MarketPull/internal/domain/models"
	domrepo "MarketPull/internal/domain/repository"
	"MarketPull/pkg/postgres"

	"github.com/jackc/pgx/v5"
)

// PostgresArchive stores announced listings, first sighting wins.
type PostgresArchive struct {
	client *postgres.Client
	schema string
	batch  int
}

func NewPostgresArchive(client *postgres.Client, schema string) *PostgresArchive {
	if schema == "" {
		schema = "public"
	}
	return &PostgresArchive{client: client, schema: schema, batch: 200}
}

func (a *PostgresArchive) table() string {
	return pgx.Identifier{a.schema, "marketplace_listings"}.Sanitize()
}

func (a *PostgresArchive) Init(ctx context.Context) error {
	return a.client.InitSchema(ctx, []string{
		`CREATE SCHEMA IF NOT EXISTS ` + pgx.Identifier{a.schema}.Sanitize(),
		`CREATE TABLE IF NOT EXISTS ` + a.table() + ` (
			source       TEXT NOT NULL,
			listing_id   TEXT NOT NULL,
			title        TEXT NOT NULL,
			price        NUMERIC(18, 2),
			currency     TEXT,
			is_auction   BOOLEAN NOT NULL DEFAULT FALSE,
			url          TEXT,
			seller       TEXT,
			condition    TEXT,
			location     TEXT,
			description  TEXT,
			ends_at      TIMESTAMPTZ,
			published_at TIMESTAMPTZ,
			first_seen   TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (source, listing_id)
		)`,
	})
}

func (a *PostgresArchive) StoreBatch(ctx context.Context, records []*models.ListingRecord) error {
	pool := a.client.Pool()
	for i := 0; i < len(records); i += a.batch {
		j := i + a.batch
		if j > len(records) {
			j = len(records)
		}
		b := &pgx.Batch{}
		for _, r := range records[i:j] {
			if r == nil || strings.TrimSpace(r.ID) == "" {
				continue
			}
			var desc *string
			if r.Detail != nil && r.Detail.Description != "" {
				desc = &r.Detail.Description
			}
			b.Queue(`INSERT INTO `+a.table()+`
				(source, listing_id, title, price, currency, is_auction, url, seller, condition, location,
				 description, ends_at, published_at, first_seen)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
				ON CONFLICT (source, listing_id) DO NOTHING`,
				string(r.Source), r.ID, r.Title, r.Price.StringFixed(2), r.Currency, r.IsAuction, r.URL, r.Seller,
				r.Condition, r.Location, desc, r.EndsAt, r.PublishedAt, r.FirstSeen.UTC(),
			)
		}
		if b.Len() == 0 {
			continue
		}
		if err := pool.SendBatch(ctx, b).Close(); err != nil {
			return fmt.Errorf("archive batch: %w", err)
		}
	}
	return nil
}

func (a *PostgresArchive) Health(ctx context.Context) error {
	return a.client.Health(ctx)
}

func (a *PostgresArchive) Close() error {
	a.client.Close()
	return nil
}

var _ domrepo.ListingArchive = (*PostgresArchive)(nil)
