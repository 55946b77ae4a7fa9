package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"MarketPull/internal/domain/models"
	domrepo "MarketPull/internal/domain/repository"
	"MarketPull/internal/service/ratelimit"
	"MarketPull/pkg/logger"
)

// ErrBuffered means the announcement could not be posted right away and
// was queued for a background retry.
var ErrBuffered = errors.New("announcement buffered for retry")

// Poster is the part of the notification sink the pipeline needs.
type Poster interface {
	Post(ctx context.Context, threadID, content string, preview *models.RichPreview) (string, error)
}

type pending struct {
	a        *models.Announcement
	attempts int
}

// AnnouncePipeline sits between the poll runners and the notification sink.
// It validates, paces posts, and buffers transient sink failures.
type AnnouncePipeline struct {
	sink        Poster
	metrics     domrepo.Metrics
	log         *logger.Logger
	pacer       *ratelimit.Pacer
	bufSize     int
	maxAttempts int
	bufCh       chan *pending
	stopCh      chan struct{}
	doneCh      chan struct{}
	started     bool
	mu          sync.Mutex
	onGone      func(threadID string)
}

type PipelineOption func(*AnnouncePipeline)

// WithPostInterval sets the minimum spacing between two posts.
func WithPostInterval(d time.Duration) PipelineOption {
	return func(p *AnnouncePipeline) {
		p.pacer = ratelimit.NewPacer(d)
	}
}

// WithBufferSize sets the retry buffer size.
func WithBufferSize(n int) PipelineOption {
	return func(p *AnnouncePipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithMaxAttempts bounds how often a buffered announcement is retried.
func WithMaxAttempts(n int) PipelineOption {
	return func(p *AnnouncePipeline) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithThreadGone is called when a buffered retry finds its thread deleted.
func WithThreadGone(fn func(threadID string)) PipelineOption {
	return func(p *AnnouncePipeline) { p.onGone = fn }
}

func NewAnnouncePipeline(sink Poster, metrics domrepo.Metrics, log *logger.Logger, opts ...PipelineOption) *AnnouncePipeline {
	p := &AnnouncePipeline{
		sink:        sink,
		metrics:     metrics,
		log:         log,
		pacer:       ratelimit.NewPacer(500 * time.Millisecond),
		bufSize:     256,
		maxAttempts: 5,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *pending, p.bufSize)
	return p
}

// Start launches the background retry loop.
func (p *AnnouncePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		defer close(p.doneCh)
		backoff := 250 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			case it := <-p.bufCh:
				err := p.post(ctx, it.a)
				if err == nil {
					backoff = 250 * time.Millisecond
					continue
				}
				it.attempts++
				if errors.Is(err, models.ErrThreadNotFound) {
					p.log.Warn("dropping announcement, thread gone", logger.String("thread_id", it.a.ThreadID))
					if p.onGone != nil {
						p.onGone(it.a.ThreadID)
					}
					continue
				}
				p.metrics.RecordError("announce_retry")
				if it.attempts >= p.maxAttempts {
					p.metrics.RecordError("announce_dropped")
					p.log.Error("dropping announcement after retries",
						logger.String("thread_id", it.a.ThreadID),
						logger.String("listing_id", it.a.ListingID),
						logger.Int("attempts", it.attempts),
						logger.Error(err),
					)
					continue
				}
				if backoff < 8*time.Second {
					backoff *= 2
				}
				select {
				case <-time.After(backoff):
				case <-p.stopCh:
					return
				case <-ctx.Done():
					return
				}
				select {
				case p.bufCh <- it:
				default:
					p.metrics.RecordError("announce_buffer_drop")
				}
			}
		}
	}()
}

// Stop stops the retry loop. Buffered announcements are discarded.
func (p *AnnouncePipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
	<-p.doneCh
}

// Pending returns the number of buffered announcements.
func (p *AnnouncePipeline) Pending() int { return len(p.bufCh) }

// Announce posts a to its thread. ErrThreadNotFound is returned as-is; other
// sink failures buffer the announcement and return ErrBuffered.
func (p *AnnouncePipeline) Announce(ctx context.Context, a *models.Announcement) error {
	if err := validateAnnouncement(a); err != nil {
		p.metrics.RecordError("announce_validate")
		return err
	}
	err := p.post(ctx, a)
	if err == nil {
		return nil
	}
	if errors.Is(err, models.ErrThreadNotFound) || errors.Is(err, context.Canceled) {
		return err
	}
	p.metrics.RecordError("announce_post")
	select {
	case p.bufCh <- &pending{a: a, attempts: 1}:
		return fmt.Errorf("%w: %v", ErrBuffered, err)
	default:
		p.metrics.RecordError("announce_buffer_full")
		return fmt.Errorf("announce: buffer full: %w", err)
	}
}

func (p *AnnouncePipeline) post(ctx context.Context, a *models.Announcement) error {
	if err := p.pacer.Wait(ctx); err != nil {
		return err
	}
	start := time.Now()
	_, err := p.sink.Post(ctx, a.ThreadID, a.Content, a.Preview)
	p.metrics.RecordLatency("announce_post", time.Since(start).Seconds())
	return err
}

func validateAnnouncement(a *models.Announcement) error {
	if a == nil {
		return fmt.Errorf("announcement nil")
	}
	if a.ThreadID == "" {
		return fmt.Errorf("announcement without thread")
	}
	if a.Content == "" && a.Preview == nil {
		return fmt.Errorf("announcement is empty")
	}
	return nil
}
