package usecase

import (
	"context"
	"errors"
	"time"

	"MarketPull/internal/domain/models"
	domrepo "MarketPull/internal/domain/repository"
	"MarketPull/internal/middleware"
	"MarketPull/pkg/logger"
	"MarketPull/pkg/util"
)

// Announcer delivers an announcement to its thread.
type Announcer interface {
	Announce(ctx context.Context, a *models.Announcement) error
}

type PollRunnerConfig struct {
	Interval   time.Duration
	Jitter     float64
	QueryDelay time.Duration
}

// PollRunner polls every tracked query of one source on a jittered interval.
type PollRunner struct {
	poller    *Poller
	registry  *QueryRegistry
	announcer Announcer
	archive   domrepo.ListingArchive
	publisher domrepo.EventPublisher
	metrics   domrepo.Metrics
	cfg       PollRunnerConfig
	log       *logger.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

type RunnerOption func(*PollRunner)

// WithArchive stores every announced batch.
func WithArchive(a domrepo.ListingArchive) RunnerOption {
	return func(r *PollRunner) { r.archive = a }
}

// WithListingEvents publishes a listing.discovered event per announced listing.
func WithListingEvents(p domrepo.EventPublisher) RunnerOption {
	return func(r *PollRunner) { r.publisher = p }
}

func NewPollRunner(poller *Poller, registry *QueryRegistry, announcer Announcer, cfg PollRunnerConfig, metrics domrepo.Metrics, log *logger.Logger, opts ...RunnerOption) *PollRunner {
	r := &PollRunner{
		poller:    poller,
		registry:  registry,
		announcer: announcer,
		metrics:   metrics,
		cfg:       cfg,
		log:       log.With(logger.String("runner", string(poller.Source()))),
		sleep:     sleepCtx,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *PollRunner) Source() models.Source { return r.poller.Source() }

// Run polls until ctx is cancelled.
func (r *PollRunner) Run(ctx context.Context) error {
	r.log.Info("poll runner started",
		logger.Duration("interval", r.cfg.Interval),
		logger.Any("jitter", r.cfg.Jitter),
	)
	for {
		r.RunCycle(ctx)
		if err := r.sleep(ctx, util.Jitter(r.cfg.Interval, r.cfg.Jitter)); err != nil {
			r.log.Info("poll runner stopped")
			return nil
		}
	}
}

// RunCycle polls each query of the source once. A rate-limited search
// ends the cycle early.
func (r *PollRunner) RunCycle(ctx context.Context) {
	queries := r.registry.List(r.poller.Source())
	start := time.Now()
	for i, q := range queries {
		if ctx.Err() != nil {
			return
		}
		if i > 0 && r.cfg.QueryDelay > 0 {
			if err := r.sleep(ctx, r.cfg.QueryDelay); err != nil {
				return
			}
		}
		if limited := r.runQuery(ctx, q); limited {
			r.log.Warn("rate limited, ending cycle early", logger.Int("skipped", len(queries)-i-1))
			return
		}
	}
	r.metrics.RecordLatency("poll_cycle_"+string(r.poller.Source()), time.Since(start).Seconds())
}

func (r *PollRunner) runQuery(ctx context.Context, q *models.TrackedQuery) bool {
	src := string(r.poller.Source())
	res := r.poller.Poll(ctx, q)
	switch {
	case res.RateLimited:
		r.metrics.RecordPoll(src, "rate_limited")
	case res.Success():
		r.metrics.RecordPoll(src, "ok")
	default:
		r.metrics.RecordPoll(src, "failed")
	}

	announced := make([]*models.ListingRecord, 0, len(res.Records))
	for _, rec := range res.Records {
		err := r.announcer.Announce(ctx, RenderAnnouncement(q, rec))
		switch {
		case err == nil:
			announced = append(announced, rec)
		case errors.Is(err, models.ErrThreadNotFound):
			r.log.Warn("thread gone, forgetting query", logger.String("thread_id", q.ThreadID))
			if ferr := r.registry.Forget(ctx, q.ThreadID); ferr != nil {
				r.log.Error("failed to forget query", logger.String("thread_id", q.ThreadID), logger.Error(ferr))
			}
			return res.RateLimited
		case errors.Is(err, middleware.ErrBuffered):
			announced = append(announced, rec)
			r.log.Warn("announcement buffered", logger.String("listing_id", rec.ID), logger.Error(err))
		default:
			r.log.Error("announcement failed", logger.String("listing_id", rec.ID), logger.Error(err))
		}
	}
	r.metrics.RecordListingsEmitted(src, len(announced))
	if len(res.IDs) > 0 {
		r.log.Info("new listings",
			logger.String("thread_id", q.ThreadID),
			logger.Strings("ids", res.IDs),
		)
	}

	r.store(ctx, q, announced)

	if res.Success() && q.FirstPoll {
		if err := r.registry.ClearFirstPoll(ctx, q.ThreadID); err != nil {
			r.log.Error("failed to clear first poll", logger.String("thread_id", q.ThreadID), logger.Error(err))
		}
	}
	return res.RateLimited
}

func (r *PollRunner) store(ctx context.Context, q *models.TrackedQuery, recs []*models.ListingRecord) {
	if len(recs) == 0 {
		return
	}
	if r.archive != nil {
		if err := r.archive.StoreBatch(ctx, recs); err != nil {
			r.metrics.RecordError("archive")
			r.log.Error("failed to archive listings", logger.Int("count", len(recs)), logger.Error(err))
		}
	}
	if r.publisher != nil {
		now := time.Now().UTC()
		evs := make([]*models.Event, 0, len(recs))
		for _, rec := range recs {
			evs = append(evs, &models.Event{
				Type:      models.EventListingDiscovered,
				Source:    rec.Source,
				ThreadID:  q.ThreadID,
				ListingID: rec.ID,
				Payload:   rec,
				At:        now,
			})
		}
		if err := r.publisher.PublishBatch(ctx, evs); err != nil {
			r.metrics.RecordError("publish")
			r.log.Error("failed to publish listing events", logger.Error(err))
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
