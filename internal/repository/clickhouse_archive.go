package repository

import (
	"context"
	"fmt"
	"time"

	"MarketPull/internal/domain/models"
	domrepo "MarketPull/internal/domain/repository"
	"MarketPull/pkg/clickhouse"
)

// ClickHouseArchive stores announced listings in a ReplacingMergeTree table.
type ClickHouseArchive struct {
	client *clickhouse.Client
	table  string
}

// NewClickHouseArchive creates the ClickHouse listing archive.
func NewClickHouseArchive(client *clickhouse.Client, table string) *ClickHouseArchive {
	if table == "" {
		table = "listings"
	}
	return &ClickHouseArchive{client: client, table: table}
}

func (a *ClickHouseArchive) Init(ctx context.Context) error {
	return a.client.InitSchema(ctx, []string{fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		source       LowCardinality(String),
		listing_id   String,
		title        String,
		price        Decimal(18, 2),
		currency     LowCardinality(String),
		is_auction   UInt8,
		url          String,
		seller       String,
		condition    String,
		location     String,
		ends_at      Nullable(DateTime64(3, 'UTC')),
		published_at Nullable(DateTime64(3, 'UTC')),
		first_seen   DateTime64(3, 'UTC')
	) ENGINE = ReplacingMergeTree(first_seen)
	ORDER BY (source, listing_id)`, a.table)})
}

func (a *ClickHouseArchive) StoreBatch(ctx context.Context, records []*models.ListingRecord) error {
	if len(records) == 0 {
		return nil
	}
	// Chunked so one cycle cannot build an unbounded block.
	const chunkSize = 2000
	q := fmt.Sprintf(`INSERT INTO %s (source, listing_id, title, price, currency, is_auction, url, seller,
		condition, location, ends_at, published_at, first_seen)`, a.table)

	for start := 0; start < len(records); start += chunkSize {
		end := start + chunkSize
		if end > len(records) {
			end = len(records)
		}
		rows := make([][]any, 0, end-start)
		for _, r := range records[start:end] {
			if r == nil || r.ID == "" {
				continue
			}
			firstSeen := r.FirstSeen
			if firstSeen.IsZero() {
				firstSeen = time.Now().UTC()
			}
			var auction uint8
			if r.IsAuction {
				auction = 1
			}
			rows = append(rows, []any{
				string(r.Source), r.ID, r.Title, r.Price, r.Currency, auction, r.URL, r.Seller,
				r.Condition, r.Location, r.EndsAt, r.PublishedAt, firstSeen,
			})
		}
		if err := a.client.InsertBatch(ctx, q, rows); err != nil {
			return fmt.Errorf("archive %d listings: %w", len(rows), err)
		}
	}
	return nil
}

func (a *ClickHouseArchive) Health(ctx context.Context) error {
	return a.client.Health(ctx)
}

func (a *ClickHouseArchive) Close() error {
	return a.client.Close()
}

var _ domrepo.ListingArchive = (*ClickHouseArchive)(nil)
