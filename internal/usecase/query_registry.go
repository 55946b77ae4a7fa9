package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"MarketPull/internal/domain/models"
	domrepo "MarketPull/internal/domain/repository"
	dsvc "MarketPull/internal/domain/service"
	"MarketPull/pkg/logger"
)

// QueryRegistry owns the tracked queries. Every mutation is persisted
// before the call returns.
type QueryRegistry struct {
	mu      sync.RWMutex
	queries map[string]*models.TrackedQuery
	store   domrepo.QueryStore
	sink    dsvc.NotificationSink
	log     *logger.Logger
	now     func() time.Time
}

func NewQueryRegistry(store domrepo.QueryStore, sink dsvc.NotificationSink, log *logger.Logger) *QueryRegistry {
	return &QueryRegistry{
		queries: make(map[string]*models.TrackedQuery),
		store:   store,
		sink:    sink,
		log:     log,
		now:     time.Now,
	}
}

// Load reads persisted queries. The listing cache does not survive a
// restart, so every loaded query starts over with FirstPoll set.
func (r *QueryRegistry) Load(ctx context.Context) error {
	qs, err := r.store.LoadQueries(ctx)
	if err != nil {
		return fmt.Errorf("load queries: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, q := range qs {
		q.FirstPoll = true
		r.queries[q.ThreadID] = q
	}
	r.log.Info("tracked queries loaded", logger.Int("count", len(qs)))
	return nil
}

// Create opens a new thread and starts tracking params in it.
func (r *QueryRegistry) Create(ctx context.Context, source models.Source, name string, params models.SearchParams, mention string) (*models.TrackedQuery, error) {
	if _, err := models.ParseSource(string(source)); err != nil {
		return nil, err
	}
	threadID, err := r.sink.CreateThread(ctx, threadName(name, params))
	if err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}

	q := &models.TrackedQuery{
		ThreadID:  threadID,
		Name:      threadName(name, params),
		Source:    source,
		ParamSets: []models.SearchParams{params},
		FirstPoll: true,
		Mention:   mention,
		CreatedAt: r.now().UTC(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.store.SaveQuery(ctx, q); err != nil {
		return nil, fmt.Errorf("save query %s: %w", threadID, err)
	}
	r.queries[threadID] = q
	r.log.Info("query created",
		logger.String("thread_id", threadID),
		logger.String("source", string(source)),
		logger.String("query", params.Query),
	)
	return q.Clone(), nil
}

// AddParams appends a parameter set to an existing query.
func (r *QueryRegistry) AddParams(ctx context.Context, threadID string, params models.SearchParams) (*models.TrackedQuery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queries[threadID]
	if !ok {
		return nil, fmt.Errorf("query %s: %w", threadID, models.ErrNotFound)
	}
	next := q.Clone()
	next.ParamSets = append(next.ParamSets, params)
	if err := r.store.SaveQuery(ctx, next); err != nil {
		return nil, fmt.Errorf("save query %s: %w", threadID, err)
	}
	r.queries[threadID] = next
	return next.Clone(), nil
}

// RemoveParams drops the parameter sets at the given indices. Removing
// the last set is allowed; the query then polls nothing until one is added.
func (r *QueryRegistry) RemoveParams(ctx context.Context, threadID string, indices ...int) (*models.TrackedQuery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queries[threadID]
	if !ok {
		return nil, fmt.Errorf("query %s: %w", threadID, models.ErrNotFound)
	}
	drop := make(map[int]bool, len(indices))
	for _, i := range indices {
		if i < 0 || i >= len(q.ParamSets) {
			return nil, fmt.Errorf("param set %d of %s: %w", i, threadID, models.ErrNotFound)
		}
		drop[i] = true
	}

	next := q.Clone()
	next.ParamSets = next.ParamSets[:0]
	for i, p := range q.Clone().ParamSets {
		if !drop[i] {
			next.ParamSets = append(next.ParamSets, p)
		}
	}
	if err := r.store.SaveQuery(ctx, next); err != nil {
		return nil, fmt.Errorf("save query %s: %w", threadID, err)
	}
	r.queries[threadID] = next
	return next.Clone(), nil
}

// Delete stops tracking and removes the thread. A thread the sink no
// longer knows is not an error.
func (r *QueryRegistry) Delete(ctx context.Context, threadID string) error {
	r.mu.RLock()
	_, ok := r.queries[threadID]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("query %s: %w", threadID, models.ErrNotFound)
	}

	if err := r.sink.DeleteThread(ctx, threadID); err != nil && !errors.Is(err, models.ErrThreadNotFound) {
		return fmt.Errorf("delete thread %s: %w", threadID, err)
	}
	return r.Forget(ctx, threadID)
}

// Forget drops a query whose thread vanished, without touching the sink.
func (r *QueryRegistry) Forget(ctx context.Context, threadID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.queries[threadID]; !ok {
		return nil
	}
	if err := r.store.DeleteQuery(ctx, threadID); err != nil {
		return fmt.Errorf("delete query %s: %w", threadID, err)
	}
	delete(r.queries, threadID)
	r.log.Info("query removed", logger.String("thread_id", threadID))
	return nil
}

// ClearFirstPoll ends the warm-up phase of a query.
func (r *QueryRegistry) ClearFirstPoll(ctx context.Context, threadID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queries[threadID]
	if !ok || !q.FirstPoll {
		return nil
	}
	next := q.Clone()
	next.FirstPoll = false
	if err := r.store.SaveQuery(ctx, next); err != nil {
		return fmt.Errorf("save query %s: %w", threadID, err)
	}
	r.queries[threadID] = next
	return nil
}

// List returns copies of the queries of a source, oldest first. An empty
// source lists everything.
func (r *QueryRegistry) List(source models.Source) []*models.TrackedQuery {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.TrackedQuery, 0, len(r.queries))
	for _, q := range r.queries {
		if source == "" || q.Source == source {
			out = append(out, q.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ThreadID < out[j].ThreadID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *QueryRegistry) Get(threadID string) (*models.TrackedQuery, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.queries[threadID]
	return q.Clone(), ok
}
