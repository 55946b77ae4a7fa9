package usecase

import (
	"context"
	"fmt"
	"time"

	"MarketPull/internal/domain/models"
	dsvc "MarketPull/internal/domain/service"
	"MarketPull/internal/service/timer"
	"MarketPull/pkg/logger"

	"github.com/shopspring/decimal"
)

const defaultBidLead = 2 * time.Second

// TargetingService turns a user request into a scheduled auction target.
type TargetingService struct {
	markets   dsvc.Marketplaces
	sink      dsvc.NotificationSink
	scheduler *Scheduler
	clock     timer.Clock
	lead      time.Duration
	log       *logger.Logger
}

func NewTargetingService(markets dsvc.Marketplaces, sink dsvc.NotificationSink, scheduler *Scheduler, clock timer.Clock, defaultLead time.Duration, log *logger.Logger) *TargetingService {
	if defaultLead <= 0 {
		defaultLead = defaultBidLead
	}
	if clock == nil {
		clock = timer.Real()
	}
	return &TargetingService{
		markets:   markets,
		sink:      sink,
		scheduler: scheduler,
		clock:     clock,
		lead:      defaultLead,
		log:       log.With(logger.String("component", "targeting")),
	}
}

// Target schedules a bid of req.MaxBid shortly before the auction ends.
func (s *TargetingService) Target(ctx context.Context, req models.TargetRequest) (*models.AuctionTarget, error) {
	src, err := models.ParseSource(req.Source)
	if err != nil {
		return nil, err
	}
	client, err := s.markets.Get(src)
	if err != nil {
		return nil, fmt.Errorf("target %s: %w", req.ListingID, err)
	}
	if s.scheduler.Has(req.ListingID) {
		return nil, fmt.Errorf("target %s: %w", req.ListingID, models.ErrDuplicateTarget)
	}

	detail, err := client.GetDetails(ctx, req.ListingID)
	if err != nil {
		return nil, fmt.Errorf("target %s: %w", req.ListingID, err)
	}
	if !detail.IsAuction || detail.EndsAt == nil {
		return nil, fmt.Errorf("target %s: %w", req.ListingID, models.ErrNotAuction)
	}

	lead := s.lead
	if req.LeadSeconds > 0 {
		lead = time.Duration(req.LeadSeconds) * time.Second
	}
	fireAt := detail.EndsAt.Add(-lead)
	if !fireAt.After(s.clock.Now()) {
		return nil, fmt.Errorf("target %s ending %s: %w", req.ListingID, detail.EndsAt.Format(time.RFC3339), models.ErrInvalidTime)
	}

	title := detail.Title
	if title == "" {
		title = req.ListingID
	}
	sr := models.ScheduleRequest{
		ListingID:     req.ListingID,
		Source:        src,
		FireAt:        fireAt,
		MaxBid:        decimal.NewFromFloat(req.MaxBid).Round(2),
		SessionToken:  detail.SessionToken,
		OwnerThreadID: req.ThreadID,
		Title:         title,
	}

	msgID, err := s.sink.Post(ctx, req.ThreadID, scheduledMessage(&models.AuctionTarget{
		ListingID: sr.ListingID, Title: sr.Title, MaxBid: sr.MaxBid, FireAt: sr.FireAt,
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("post target info: %w", err)
	}
	if err := s.sink.AddCancelAffordance(ctx, msgID); err != nil {
		s.log.Warn("failed to add cancel affordance", logger.String("message_id", msgID), logger.Error(err))
	} else {
		sr.AffordanceRef = msgID
	}

	t, err := s.scheduler.Schedule(ctx, sr)
	if err != nil {
		if derr := s.sink.Delete(ctx, msgID); derr != nil {
			s.log.Warn("failed to delete target info", logger.String("message_id", msgID), logger.Error(derr))
		}
		return nil, err
	}
	return t, nil
}

// Untarget cancels a target and tells its owner thread.
func (s *TargetingService) Untarget(ctx context.Context, listingID string) (*models.AuctionTarget, error) {
	t, err := s.scheduler.Cancel(ctx, listingID)
	if err != nil {
		return nil, err
	}
	s.announceRemoval(ctx, t)
	return t, nil
}

// CancelByAffordance serves the cancel button of a target info message.
func (s *TargetingService) CancelByAffordance(ctx context.Context, messageID string) (*models.AuctionTarget, error) {
	t, err := s.scheduler.CancelByAffordance(ctx, messageID)
	if err != nil {
		return nil, err
	}
	s.announceRemoval(ctx, t)
	return t, nil
}

func (s *TargetingService) announceRemoval(ctx context.Context, t *models.AuctionTarget) {
	msg := fmt.Sprintf("Removed %s (%s) from schedule", t.Title, t.ListingID)
	if _, err := s.sink.Post(ctx, t.OwnerThreadID, msg, nil); err != nil {
		s.log.Warn("failed to post removal", logger.String("thread_id", t.OwnerThreadID), logger.Error(err))
	}
}

func (s *TargetingService) Get(listingID string) (*models.AuctionTarget, bool) {
	return s.scheduler.Get(listingID)
}

func (s *TargetingService) List() []*models.AuctionTarget {
	return s.scheduler.List()
}
