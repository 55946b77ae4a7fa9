package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"MarketPull/internal/domain/models"

	"github.com/shopspring/decimal"
)

// fakeMarket is a scripted MarketplaceClient.
type fakeMarket struct {
	mu          sync.Mutex
	src         models.Source
	needDetail  bool
	results     map[string][]string // query -> ids
	searchErr   map[string]error
	detailErr   map[string]error
	details     map[string]*models.ListingDetail
	promoted    map[string]bool
	titles      map[string]string
	badPayload  map[string]bool
	searches    int
	detailCalls map[string]int

	bids     []decimal.Decimal
	bidFn    func(ctx context.Context, id string, amount decimal.Decimal) (*models.BidResult, error)
	bidCalls map[string]int
}

func newFakeMarket(src models.Source) *fakeMarket {
	return &fakeMarket{
		src:         src,
		results:     map[string][]string{},
		searchErr:   map[string]error{},
		detailErr:   map[string]error{},
		details:     map[string]*models.ListingDetail{},
		promoted:    map[string]bool{},
		titles:      map[string]string{},
		badPayload:  map[string]bool{},
		detailCalls: map[string]int{},
		bidCalls:    map[string]int{},
	}
}

func (f *fakeMarket) Source() models.Source { return f.src }
func (f *fakeMarket) RequiresDetail() bool  { return f.needDetail }

func (f *fakeMarket) Search(_ context.Context, p models.SearchParams) ([]models.RawListing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches++
	if err := f.searchErr[p.Query]; err != nil {
		return nil, err
	}
	var out []models.RawListing
	for _, id := range f.results[p.Query] {
		out = append(out, models.RawListing{ID: id})
	}
	return out, nil
}

func (f *fakeMarket) IsOrganic(raw models.RawListing) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.promoted[raw.ID]
}

func (f *fakeMarket) Normalize(raw models.RawListing) (*models.ListingRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.badPayload[raw.ID] {
		return nil, fmt.Errorf("normalize %s: %w", raw.ID, models.ErrParse)
	}
	title := f.titles[raw.ID]
	if title == "" {
		title = "Item " + raw.ID
	}
	return &models.ListingRecord{ID: raw.ID, Source: f.src, Title: title, Price: decimal.NewFromInt(10), Currency: "USD"}, nil
}

func (f *fakeMarket) GetDetails(_ context.Context, id string) (*models.ListingDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailCalls[id]++
	if err := f.detailErr[id]; err != nil {
		return nil, err
	}
	if d, ok := f.details[id]; ok {
		c := *d
		return &c, nil
	}
	return &models.ListingDetail{Title: "Item " + id}, nil
}

func (f *fakeMarket) PlaceBid(ctx context.Context, id string, amount decimal.Decimal, _ string) (*models.BidResult, error) {
	f.mu.Lock()
	f.bidCalls[id]++
	f.bids = append(f.bids, amount)
	fn := f.bidFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, id, amount)
	}
	return &models.BidResult{IsHighestBidder: true, CurrentPrice: amount}, nil
}

func (f *fakeMarket) setDetailErr(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.detailErr, id)
		return
	}
	f.detailErr[id] = err
}

func (f *fakeMarket) bidCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bidCalls[id]
}

// fakeSink records everything posted to the notification side.
type fakeSink struct {
	mu        sync.Mutex
	seq       int
	threads   map[string]string
	gone      map[string]bool
	posts     []fakePost
	deleted   []string
	added     []string
	removed   []string
	postErr   error
	threadErr error
}

type fakePost struct {
	ThreadID  string
	MessageID string
	Content   string
	Preview   *models.RichPreview
}

func newFakeSink() *fakeSink {
	return &fakeSink{threads: map[string]string{}, gone: map[string]bool{}}
}

func (s *fakeSink) CreateThread(_ context.Context, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.threadErr != nil {
		return "", s.threadErr
	}
	s.seq++
	id := fmt.Sprintf("thread-%d", s.seq)
	s.threads[id] = name
	return id, nil
}

func (s *fakeSink) Post(_ context.Context, threadID, content string, preview *models.RichPreview) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gone[threadID] {
		return "", models.ErrThreadNotFound
	}
	if s.postErr != nil {
		return "", s.postErr
	}
	s.seq++
	id := fmt.Sprintf("msg-%d", s.seq)
	s.posts = append(s.posts, fakePost{ThreadID: threadID, MessageID: id, Content: content, Preview: preview})
	return id, nil
}

func (s *fakeSink) Delete(_ context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, messageID)
	return nil
}

func (s *fakeSink) AddCancelAffordance(_ context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.added = append(s.added, messageID)
	return nil
}

func (s *fakeSink) RemoveCancelAffordance(_ context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, messageID)
	return nil
}

func (s *fakeSink) DeleteThread(_ context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gone[threadID] {
		return models.ErrThreadNotFound
	}
	s.gone[threadID] = true
	delete(s.threads, threadID)
	return nil
}

func (s *fakeSink) postsTo(threadID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, p := range s.posts {
		if p.ThreadID == threadID {
			out = append(out, p.Content)
		}
	}
	return out
}

func (s *fakeSink) removedRefs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.removed...)
}

// memStore is an in-memory StateStore.
type memStore struct {
	mu      sync.Mutex
	queries map[string]*models.TrackedQuery
	targets map[string]*models.AuctionTarget
	saveErr error
}

func newMemStore() *memStore {
	return &memStore{queries: map[string]*models.TrackedQuery{}, targets: map[string]*models.AuctionTarget{}}
}

func (m *memStore) LoadQueries(context.Context) ([]*models.TrackedQuery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.TrackedQuery
	for _, q := range m.queries {
		out = append(out, q.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ThreadID < out[j].ThreadID })
	return out, nil
}

func (m *memStore) SaveQuery(_ context.Context, q *models.TrackedQuery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.queries[q.ThreadID] = q.Clone()
	return nil
}

func (m *memStore) DeleteQuery(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.queries, id)
	return nil
}

func (m *memStore) LoadTargets(context.Context) ([]*models.AuctionTarget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.AuctionTarget
	for _, t := range m.targets {
		c := *t
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ListingID < out[j].ListingID })
	return out, nil
}

func (m *memStore) SaveTarget(_ context.Context, t *models.AuctionTarget) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	c := *t
	m.targets[t.ListingID] = &c
	return nil
}

func (m *memStore) DeleteTarget(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.targets, id)
	return nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) targetCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.targets)
}

// recPublisher collects published events.
type recPublisher struct {
	mu     sync.Mutex
	events []*models.Event
}

func (p *recPublisher) Publish(_ context.Context, ev *models.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recPublisher) PublishBatch(ctx context.Context, evs []*models.Event) error {
	for _, ev := range evs {
		_ = p.Publish(ctx, ev)
	}
	return nil
}

func (p *recPublisher) Close() error { return nil }

func (p *recPublisher) types() []models.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.EventType
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}
