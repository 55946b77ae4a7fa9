package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"MarketPull/internal/domain/models"
	domrepo "MarketPull/internal/domain/repository"
	"MarketPull/pkg/logger"
	"MarketPull/pkg/sqlite"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS tracked_queries (
		thread_id  TEXT PRIMARY KEY,
		source     TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		doc        TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS auction_targets (
		listing_id TEXT PRIMARY KEY,
		thread_id  TEXT NOT NULL,
		fire_at    TIMESTAMP NOT NULL,
		doc        TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_auction_targets_thread ON auction_targets(thread_id)`,
}

// SQLiteStore persists the registries in SQLite, one JSON document per row.
type SQLiteStore struct {
	client *sqlite.Client
	db     *sql.DB
	log    *logger.Logger
}

// NewSQLiteStore migrates the schema and checks its version.
func NewSQLiteStore(ctx context.Context, client *sqlite.Client, log *logger.Logger) (*SQLiteStore, error) {
	s := &SQLiteStore{client: client, db: client.DB(), log: log}
	if err := client.Migrate(ctx, sqliteSchema); err != nil {
		return nil, err
	}
	if err := s.checkVersion(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) checkVersion(ctx context.Context) error {
	var v int
	err := s.db.QueryRowContext(ctx, `SELECT version FROM schema_version LIMIT 1`).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		_, err = s.db.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, StateVersion)
		return err
	}
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if v > StateVersion {
		return fmt.Errorf("sqlite state has version %d, newest supported is %d", v, StateVersion)
	}
	return nil
}

func (s *SQLiteStore) LoadQueries(ctx context.Context) ([]*models.TrackedQuery, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT thread_id, doc FROM tracked_queries ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("load queries: %w", err)
	}
	defer rows.Close()

	var out []*models.TrackedQuery
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, err
		}
		var q models.TrackedQuery
		if err := json.Unmarshal([]byte(doc), &q); err != nil {
			s.log.Warn("skipping corrupt query row", logger.String("thread_id", id), logger.Error(err))
			continue
		}
		out = append(out, &q)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveQuery(ctx context.Context, q *models.TrackedQuery) error {
	doc, err := json.Marshal(q)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO tracked_queries (thread_id, source, created_at, doc) VALUES (?, ?, ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET source = excluded.source, doc = excluded.doc`,
		q.ThreadID, string(q.Source), q.CreatedAt.UTC(), string(doc))
	if err != nil {
		return fmt.Errorf("save query %s: %w", q.ThreadID, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteQuery(ctx context.Context, threadID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tracked_queries WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("delete query %s: %w", threadID, err)
	}
	return nil
}

func (s *SQLiteStore) LoadTargets(ctx context.Context) ([]*models.AuctionTarget, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT listing_id, doc FROM auction_targets ORDER BY fire_at`)
	if err != nil {
		return nil, fmt.Errorf("load targets: %w", err)
	}
	defer rows.Close()

	var out []*models.AuctionTarget
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, err
		}
		var t models.AuctionTarget
		if err := json.Unmarshal([]byte(doc), &t); err != nil {
			s.log.Warn("skipping corrupt target row", logger.String("listing_id", id), logger.Error(err))
			continue
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveTarget(ctx context.Context, t *models.AuctionTarget) error {
	doc, err := json.Marshal(t)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO auction_targets (listing_id, thread_id, fire_at, doc) VALUES (?, ?, ?, ?)
		ON CONFLICT(listing_id) DO UPDATE SET thread_id = excluded.thread_id, fire_at = excluded.fire_at, doc = excluded.doc`,
		t.ListingID, t.OwnerThreadID, t.FireAt.UTC(), string(doc))
	if err != nil {
		return fmt.Errorf("save target %s: %w", t.ListingID, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteTarget(ctx context.Context, listingID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM auction_targets WHERE listing_id = ?`, listingID); err != nil {
		return fmt.Errorf("delete target %s: %w", listingID, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.client.Close()
}

var _ domrepo.StateStore = (*SQLiteStore)(nil)
