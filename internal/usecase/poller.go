package usecase

import (
	"context"
	"errors"
	"time"

	"MarketPull/internal/domain/models"
	domrepo "MarketPull/internal/domain/repository"
	dsvc "MarketPull/internal/domain/service"
	"MarketPull/internal/service/listingcache"
	"MarketPull/internal/service/ratelimit"
	"MarketPull/pkg/logger"
)

// PollResult is the outcome of polling one tracked query.
type PollResult struct {
	// IDs of newly announced listings in discovery order.
	IDs []string
	// Records holds copies of the announced listings, aligned with IDs.
	Records     []*models.ListingRecord
	Searched    int
	Failed      int
	RateLimited bool
}

// Success reports whether at least one parameter set was searched.
func (r PollResult) Success() bool { return r.Searched > 0 }

// Poller turns search results into a batch of newly discovered listings.
// One Poller serves one source and owns that source's cache.
type Poller struct {
	client      dsvc.MarketplaceClient
	cache       *listingcache.Cache
	detailPacer *ratelimit.Pacer
	metrics     domrepo.Metrics
	log         *logger.Logger
}

func NewPoller(client dsvc.MarketplaceClient, cache *listingcache.Cache, detailDelay time.Duration, metrics domrepo.Metrics, log *logger.Logger) *Poller {
	return &Poller{
		client:      client,
		cache:       cache,
		detailPacer: ratelimit.NewPacer(detailDelay),
		metrics:     metrics,
		log:         log.With(logger.String("source", string(client.Source()))),
	}
}

func (p *Poller) Source() models.Source { return p.client.Source() }

// Cache exposes the listing cache, mainly for inspection.
func (p *Poller) Cache() *listingcache.Cache { return p.cache }

// Poll searches every parameter set of q and returns the listings that
// should be announced. A listing already cached is never returned again,
// except a pending one whose detail fetch succeeds now.
func (p *Poller) Poll(ctx context.Context, q *models.TrackedQuery) PollResult {
	var res PollResult
	tried := make(map[string]bool)
	src := string(p.client.Source())

	for i, params := range q.ParamSets {
		if ctx.Err() != nil {
			break
		}
		start := time.Now()
		raws, err := p.client.Search(ctx, params)
		p.metrics.RecordLatency("search_"+src, time.Since(start).Seconds())
		if err != nil {
			res.Failed++
			if errors.Is(err, models.ErrRateLimited) {
				res.RateLimited = true
				p.log.Warn("search rate limited, skipping remaining param sets",
					logger.String("thread_id", q.ThreadID), logger.Int("param_set", i))
				break
			}
			p.metrics.RecordError("search")
			p.log.Error("search failed",
				logger.String("thread_id", q.ThreadID),
				logger.Int("param_set", i),
				logger.String("query", params.Query),
				logger.Error(err),
			)
			continue
		}
		res.Searched++

		for _, raw := range raws {
			if !p.client.IsOrganic(raw) {
				continue
			}
			rec, err := p.client.Normalize(raw)
			if err != nil {
				p.metrics.RecordError("parse")
				p.log.Warn("skipping unparsable listing", logger.String("listing_id", raw.ID), logger.Error(err))
				continue
			}
			if params.Excludes(rec.Title) {
				continue
			}
			p.consider(ctx, q, rec, tried, &res)
		}
	}

	p.metrics.SetCacheSize(src, p.cache.Len())
	return res
}

func (p *Poller) consider(ctx context.Context, q *models.TrackedQuery, rec *models.ListingRecord, tried map[string]bool, res *PollResult) {
	if state, ok := p.cache.State(rec.ID); ok {
		// A first poll never announces, not even a listing another query left pending.
		if q.FirstPoll || state != listingcache.Pending || tried[rec.ID] {
			return
		}
		tried[rec.ID] = true
		if p.fetchDetail(ctx, rec.ID) {
			p.emit(rec.ID, res)
		}
		return
	}

	if !p.cache.Insert(rec, q.FirstPoll) {
		return
	}
	if q.FirstPoll {
		return
	}
	if p.client.RequiresDetail() {
		tried[rec.ID] = true
		if !p.fetchDetail(ctx, rec.ID) {
			return
		}
	}
	p.emit(rec.ID, res)
}

func (p *Poller) fetchDetail(ctx context.Context, id string) bool {
	src := string(p.client.Source())
	if err := p.detailPacer.Wait(ctx); err != nil {
		return false
	}
	d, err := p.client.GetDetails(ctx, id)
	if err != nil {
		p.metrics.RecordDetailFetch(src, "error")
		p.log.Warn("detail fetch failed, listing stays pending", logger.String("listing_id", id), logger.Error(err))
		return false
	}
	p.metrics.RecordDetailFetch(src, "ok")
	return p.cache.AttachDetail(id, d)
}

func (p *Poller) emit(id string, res *PollResult) {
	if !p.cache.MarkAnnounced(id) {
		return
	}
	rec, _ := p.cache.Get(id)
	res.IDs = append(res.IDs, id)
	res.Records = append(res.Records, rec)
}
