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
	"MarketPull/internal/service/timer"
	"MarketPull/pkg/logger"
	"MarketPull/pkg/metrics"

	"github.com/shopspring/decimal"
)

// ErrSchedulerStopped is returned by Schedule after Stop.
var ErrSchedulerStopped = errors.New("scheduler stopped")

const (
	defaultBidTimeout = 15 * time.Second

	noteSuperseded = "superseded"
	noteMissed     = "missed while offline"
)

// OverbidPolicy allows a single follow-up bid after being outbid.
type OverbidPolicy struct {
	Enabled   bool
	Increment decimal.Decimal
	MaxOver   decimal.Decimal
}

type targetEntry struct {
	target models.AuctionTarget
	token  timer.Token
	firing bool
}

// Scheduler holds pending auction targets and fires one bid per target.
// Schedule, Cancel and the firing check share one mutex; the bid itself
// runs outside of it.
type Scheduler struct {
	mu      sync.Mutex
	entries map[string]*targetEntry
	stopped bool
	wg      sync.WaitGroup

	markets    dsvc.Marketplaces
	sink       dsvc.NotificationSink
	store      domrepo.TargetStore
	publisher  domrepo.EventPublisher
	metrics    domrepo.Metrics
	clock      timer.Clock
	bidTimeout time.Duration
	overbid    OverbidPolicy
	log        *logger.Logger
}

type SchedulerOption func(*Scheduler)

func WithClock(c timer.Clock) SchedulerOption {
	return func(s *Scheduler) { s.clock = c }
}

func WithBidTimeout(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.bidTimeout = d
		}
	}
}

func WithOverbid(p OverbidPolicy) SchedulerOption {
	return func(s *Scheduler) { s.overbid = p }
}

// WithEventPublisher makes the scheduler emit target lifecycle events.
func WithEventPublisher(p domrepo.EventPublisher) SchedulerOption {
	return func(s *Scheduler) { s.publisher = p }
}

func WithSchedulerMetrics(m domrepo.Metrics) SchedulerOption {
	return func(s *Scheduler) {
		if m != nil {
			s.metrics = m
		}
	}
}

func NewScheduler(markets dsvc.Marketplaces, sink dsvc.NotificationSink, store domrepo.TargetStore, log *logger.Logger, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		entries:    make(map[string]*targetEntry),
		markets:    markets,
		sink:       sink,
		store:      store,
		metrics:    metrics.Nop{},
		clock:      timer.Real(),
		bidTimeout: defaultBidTimeout,
		log:        log.With(logger.String("component", "scheduler")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule registers a target and arms its timer.
func (s *Scheduler) Schedule(ctx context.Context, req models.ScheduleRequest) (*models.AuctionTarget, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil, ErrSchedulerStopped
	}
	if _, ok := s.entries[req.ListingID]; ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("schedule %s: %w", req.ListingID, models.ErrDuplicateTarget)
	}
	now := s.clock.Now()
	if !req.FireAt.After(now) {
		s.mu.Unlock()
		return nil, fmt.Errorf("schedule %s at %s: %w", req.ListingID, req.FireAt.Format(time.RFC3339), models.ErrInvalidTime)
	}

	e := &targetEntry{target: models.AuctionTarget{
		ListingID:     req.ListingID,
		Source:        req.Source,
		FireAt:        req.FireAt,
		MaxBid:        req.MaxBid,
		SessionToken:  req.SessionToken,
		OwnerThreadID: req.OwnerThreadID,
		AffordanceRef: req.AffordanceRef,
		Title:         req.Title,
		Status:        models.TargetScheduled,
		CreatedAt:     now.UTC(),
	}}
	if err := s.store.SaveTarget(ctx, &e.target); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("persist target %s: %w", req.ListingID, err)
	}
	s.arm(e, now)
	t := e.target
	pending := len(s.entries)
	s.mu.Unlock()

	s.log.Info("target scheduled",
		logger.String("listing_id", t.ListingID),
		logger.String("thread_id", t.OwnerThreadID),
		logger.Time("fire_at", t.FireAt),
		logger.Decimal("max_bid", t.MaxBid),
	)
	s.metrics.RecordTarget(string(models.TargetScheduled))
	s.metrics.SetPendingTargets(pending)
	s.publish(ctx, models.EventTargetScheduled, &t)
	return &t, nil
}

// arm must be called with s.mu held.
func (s *Scheduler) arm(e *targetEntry, now time.Time) {
	e.token = s.clock.Arm(e.target.FireAt.Sub(now), func() { s.fire(e) })
	s.entries[e.target.ListingID] = e
}

// Cancel stops a target that has not started firing.
func (s *Scheduler) Cancel(ctx context.Context, listingID string) (*models.AuctionTarget, error) {
	s.mu.Lock()
	e, ok := s.entries[listingID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("cancel %s: %w", listingID, models.ErrNotFound)
	}
	if e.firing {
		s.mu.Unlock()
		return nil, fmt.Errorf("cancel %s: %w", listingID, models.ErrAlreadyFired)
	}
	if err := s.store.DeleteTarget(ctx, listingID); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("delete target %s: %w", listingID, err)
	}
	e.token.Cancel()
	e.target.Status = models.TargetCancelled
	delete(s.entries, listingID)
	t := e.target
	pending := len(s.entries)
	s.mu.Unlock()

	s.retract(ctx, &t)
	s.log.Info("target cancelled", logger.String("listing_id", listingID))
	s.metrics.RecordTarget(string(models.TargetCancelled))
	s.metrics.SetPendingTargets(pending)
	s.publish(ctx, models.EventTargetCancelled, &t)
	return &t, nil
}

// CancelByAffordance cancels the target whose info message is messageID.
func (s *Scheduler) CancelByAffordance(ctx context.Context, messageID string) (*models.AuctionTarget, error) {
	s.mu.Lock()
	var id string
	for lid, e := range s.entries {
		if e.target.AffordanceRef != "" && e.target.AffordanceRef == messageID {
			id = lid
			break
		}
	}
	s.mu.Unlock()
	if id == "" {
		return nil, fmt.Errorf("affordance %s: %w", messageID, models.ErrNotFound)
	}
	return s.Cancel(ctx, id)
}

type bidOutcome struct {
	won     bool
	label   string
	note    string
	message string
}

func (s *Scheduler) fire(e *targetEntry) {
	s.mu.Lock()
	if s.stopped || e.firing || e.target.Status != models.TargetScheduled || s.entries[e.target.ListingID] != e {
		s.mu.Unlock()
		return
	}
	e.firing = true
	s.wg.Add(1)
	t := e.target
	s.mu.Unlock()
	defer s.wg.Done()

	out := s.bid(&t)

	ctx, cancel := context.WithTimeout(context.Background(), s.bidTimeout)
	defer cancel()

	s.mu.Lock()
	e.target.Status = models.TargetFired
	e.target.Note = out.note
	if s.entries[t.ListingID] == e {
		delete(s.entries, t.ListingID)
	}
	if err := s.store.DeleteTarget(ctx, t.ListingID); err != nil {
		s.log.Error("failed to delete fired target", logger.String("listing_id", t.ListingID), logger.Error(err))
	}
	fired := e.target

	var superseded []models.AuctionTarget
	if out.won {
		for id, other := range s.entries {
			if other.firing || other.target.Status != models.TargetScheduled || other.target.OwnerThreadID != t.OwnerThreadID {
				continue
			}
			other.token.Cancel()
			other.target.Status = models.TargetCancelled
			other.target.Note = noteSuperseded
			delete(s.entries, id)
			if err := s.store.DeleteTarget(ctx, id); err != nil {
				s.log.Error("failed to delete superseded target", logger.String("listing_id", id), logger.Error(err))
			}
			superseded = append(superseded, other.target)
		}
	}
	pending := len(s.entries)
	s.mu.Unlock()

	s.log.Info("target fired",
		logger.String("listing_id", t.ListingID),
		logger.String("outcome", out.label),
		logger.String("note", out.note),
	)
	s.retract(ctx, &fired)
	s.notify(ctx, fired.OwnerThreadID, out.message)
	s.metrics.RecordBid(string(t.Source), out.label)
	s.metrics.RecordTarget(string(models.TargetFired))
	s.publish(ctx, models.EventTargetFired, &fired)

	sort.Slice(superseded, func(i, j int) bool { return superseded[i].FireAt.Before(superseded[j].FireAt) })
	for i := range superseded {
		sib := &superseded[i]
		s.retract(ctx, sib)
		s.notify(ctx, sib.OwnerThreadID, fmt.Sprintf("Removed %s from schedule: superseded by winning bid on %s", sib.Title, fired.Title))
		s.metrics.RecordTarget(string(models.TargetCancelled))
		s.publish(ctx, models.EventTargetCancelled, sib)
	}
	s.metrics.SetPendingTargets(pending)
}

// bid places the bid for t, with at most one overbid follow-up.
func (s *Scheduler) bid(t *models.AuctionTarget) bidOutcome {
	client, err := s.markets.Get(t.Source)
	if err != nil {
		return failedOutcome(t, err)
	}

	res, err := s.placeBid(client, t, t.MaxBid)
	if err == nil && !res.IsHighestBidder && s.overbid.Enabled {
		amount := res.CurrentPrice.Add(s.overbid.Increment)
		if amount.LessThanOrEqual(t.MaxBid.Add(s.overbid.MaxOver)) {
			s.log.Info("outbid, placing overbid",
				logger.String("listing_id", t.ListingID),
				logger.Decimal("amount", amount),
			)
			res, err = s.placeBid(client, t, amount)
		}
	}
	if err != nil {
		return failedOutcome(t, err)
	}

	price := res.CurrentPrice.StringFixed(2)
	if res.IsHighestBidder {
		return bidOutcome{
			won:     true,
			label:   "won",
			note:    "highest bidder at " + price,
			message: fmt.Sprintf("Won: placed highest bid %s on %s (%s)", price, t.Title, t.ListingID),
		}
	}
	return bidOutcome{
		label:   "outbid",
		note:    "outbid at " + price,
		message: fmt.Sprintf("Outbid on %s: current price %s is above max bid %s", t.Title, price, t.MaxBid.StringFixed(2)),
	}
}

func (s *Scheduler) placeBid(client dsvc.MarketplaceClient, t *models.AuctionTarget, amount decimal.Decimal) (*models.BidResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.bidTimeout)
	defer cancel()
	start := time.Now()
	res, err := client.PlaceBid(ctx, t.ListingID, amount, t.SessionToken)
	s.metrics.RecordLatency("place_bid", time.Since(start).Seconds())
	if err == nil && res == nil {
		err = fmt.Errorf("empty bid response: %w", models.ErrParse)
	}
	return res, err
}

func failedOutcome(t *models.AuctionTarget, err error) bidOutcome {
	if errors.Is(err, models.ErrNotFound) {
		return bidOutcome{
			label:   "gone",
			note:    "listing no longer available",
			message: fmt.Sprintf("Bid failed on %s: listing no longer available", t.Title),
		}
	}
	return bidOutcome{
		label:   "error",
		note:    "bid failed: " + err.Error(),
		message: fmt.Sprintf("Bid failed on %s: %v", t.Title, err),
	}
}

// Restore re-arms persisted targets. Targets whose fire time passed while
// the process was down are reported as missed.
func (s *Scheduler) Restore(ctx context.Context) error {
	targets, err := s.store.LoadTargets(ctx)
	if err != nil {
		return fmt.Errorf("load targets: %w", err)
	}

	var missed []models.AuctionTarget
	restored := 0
	s.mu.Lock()
	now := s.clock.Now()
	for _, t := range targets {
		if t.Status.Terminal() {
			if err := s.store.DeleteTarget(ctx, t.ListingID); err != nil {
				s.log.Warn("failed to drop terminal target", logger.String("listing_id", t.ListingID), logger.Error(err))
			}
			continue
		}
		if _, ok := s.entries[t.ListingID]; ok {
			continue
		}
		if !t.FireAt.After(now) {
			if err := s.store.DeleteTarget(ctx, t.ListingID); err != nil {
				s.log.Warn("failed to drop missed target", logger.String("listing_id", t.ListingID), logger.Error(err))
			}
			m := *t
			m.Status = models.TargetFired
			m.Note = noteMissed
			missed = append(missed, m)
			continue
		}
		e := &targetEntry{target: *t}
		e.target.Status = models.TargetScheduled
		s.arm(e, now)
		restored++
	}
	pending := len(s.entries)
	s.mu.Unlock()

	for i := range missed {
		m := &missed[i]
		s.retract(ctx, m)
		s.notify(ctx, m.OwnerThreadID, fmt.Sprintf("Missed bid on %s: fire time passed while offline", m.Title))
		s.metrics.RecordTarget("missed")
		s.publish(ctx, models.EventTargetFired, m)
	}
	s.metrics.SetPendingTargets(pending)
	s.log.Info("targets restored", logger.Int("armed", restored), logger.Int("missed", len(missed)))
	return nil
}

// Stop disarms every timer and waits for in-flight bids. Persisted
// targets are left untouched so the next Restore re-arms them.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	for _, e := range s.entries {
		if !e.firing {
			e.token.Cancel()
		}
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) Get(listingID string) (*models.AuctionTarget, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[listingID]
	if !ok {
		return nil, false
	}
	t := e.target
	return &t, true
}

func (s *Scheduler) Has(listingID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[listingID]
	return ok
}

// List returns the pending targets ordered by fire time.
func (s *Scheduler) List() []*models.AuctionTarget {
	s.mu.Lock()
	out := make([]*models.AuctionTarget, 0, len(s.entries))
	for _, e := range s.entries {
		t := e.target
		out = append(out, &t)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].FireAt.Before(out[j].FireAt) })
	return out
}

func (s *Scheduler) retract(ctx context.Context, t *models.AuctionTarget) {
	if t.AffordanceRef == "" {
		return
	}
	if err := s.sink.RemoveCancelAffordance(ctx, t.AffordanceRef); err != nil {
		s.log.Warn("failed to retract cancel affordance",
			logger.String("listing_id", t.ListingID),
			logger.String("message_id", t.AffordanceRef),
			logger.Error(err),
		)
	}
}

func (s *Scheduler) notify(ctx context.Context, threadID, content string) {
	if threadID == "" {
		return
	}
	if _, err := s.sink.Post(ctx, threadID, content, nil); err != nil {
		s.log.Warn("failed to notify owner thread", logger.String("thread_id", threadID), logger.Error(err))
	}
}

func (s *Scheduler) publish(ctx context.Context, typ models.EventType, t *models.AuctionTarget) {
	if s.publisher == nil {
		return
	}
	ev := &models.Event{
		Type:      typ,
		Source:    t.Source,
		ThreadID:  t.OwnerThreadID,
		ListingID: t.ListingID,
		Payload:   t,
		At:        s.clock.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.metrics.RecordError("publish")
		s.log.Warn("failed to publish event", logger.String("type", string(typ)), logger.Error(err))
	}
}
