package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"MarketPull/internal/domain/models"
	domrepo "MarketPull/internal/domain/repository"
	"MarketPull/pkg/cache"
	"MarketPull/pkg/logger"
)

const (
	redisQueriesKey = "queries"
	redisTargetsKey = "targets"
	redisVersionKey = "schema_version"
)

// RedisStore keeps queries and targets in two hashes keyed by id.
type RedisStore struct {
	rc  *cache.RedisCache
	log *logger.Logger
}

func NewRedisStore(ctx context.Context, rc *cache.RedisCache, log *logger.Logger) (*RedisStore, error) {
	s := &RedisStore{rc: rc, log: log}
	var raw string
	err := rc.Get(ctx, redisVersionKey, &raw)
	switch {
	case errors.Is(err, cache.ErrCacheMiss):
		if err := rc.Set(ctx, redisVersionKey, strconv.Itoa(StateVersion), 0); err != nil {
			return nil, fmt.Errorf("write schema version: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("read schema version: %w", err)
	default:
		v, perr := strconv.Atoi(raw)
		if perr != nil || v > StateVersion {
			return nil, fmt.Errorf("redis state has version %q, newest supported is %d", raw, StateVersion)
		}
	}
	return s, nil
}

func (s *RedisStore) LoadQueries(ctx context.Context) ([]*models.TrackedQuery, error) {
	m, skipped, err := cache.HGetAllTyped[models.TrackedQuery](ctx, s.rc, redisQueriesKey)
	if err != nil {
		return nil, fmt.Errorf("load queries: %w", err)
	}
	if len(skipped) > 0 {
		s.log.Warn("skipping corrupt queries", logger.Strings("thread_ids", skipped))
	}
	out := make([]*models.TrackedQuery, 0, len(m))
	for _, q := range m {
		q := q
		out = append(out, &q)
	}
	return out, nil
}

func (s *RedisStore) SaveQuery(ctx context.Context, q *models.TrackedQuery) error {
	return s.rc.HSet(ctx, redisQueriesKey, q.ThreadID, q)
}

func (s *RedisStore) DeleteQuery(ctx context.Context, threadID string) error {
	return s.rc.HDel(ctx, redisQueriesKey, threadID)
}

func (s *RedisStore) LoadTargets(ctx context.Context) ([]*models.AuctionTarget, error) {
	m, skipped, err := cache.HGetAllTyped[models.AuctionTarget](ctx, s.rc, redisTargetsKey)
	if err != nil {
		return nil, fmt.Errorf("load targets: %w", err)
	}
	if len(skipped) > 0 {
		s.log.Warn("skipping corrupt targets", logger.Strings("listing_ids", skipped))
	}
	out := make([]*models.AuctionTarget, 0, len(m))
	for _, t := range m {
		t := t
		out = append(out, &t)
	}
	return out, nil
}

func (s *RedisStore) SaveTarget(ctx context.Context, t *models.AuctionTarget) error {
	return s.rc.HSet(ctx, redisTargetsKey, t.ListingID, t)
}

func (s *RedisStore) DeleteTarget(ctx context.Context, listingID string) error {
	return s.rc.HDel(ctx, redisTargetsKey, listingID)
}

func (s *RedisStore) Close() error {
	return s.rc.Close()
}

var _ domrepo.StateStore = (*RedisStore)(nil)
