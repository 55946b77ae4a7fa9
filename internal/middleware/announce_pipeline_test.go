package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"MarketPull/internal/domain/models"
	"MarketPull/pkg/logger"
	"MarketPull/pkg/metrics"
)

type flakySink struct {
	mu    sync.Mutex
	fails int
	gone  map[string]bool
	posts []string
}

func (s *flakySink) Post(_ context.Context, threadID, content string, _ *models.RichPreview) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gone[threadID] {
		return "", models.ErrThreadNotFound
	}
	if s.fails > 0 {
		s.fails--
		return "", errors.New("sink unavailable")
	}
	s.posts = append(s.posts, content)
	return "m", nil
}

func (s *flakySink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.posts)
}

func TestAnnounceDirect(t *testing.T) {
	sink := &flakySink{}
	p := NewAnnouncePipeline(sink, metrics.Nop{}, logger.Nop(), WithPostInterval(0))
	if err := p.Announce(context.Background(), &models.Announcement{ThreadID: "t", Content: "hi"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sink.count() != 1 {
		t.Fatalf("expected one post")
	}
}

func TestAnnounceValidation(t *testing.T) {
	p := NewAnnouncePipeline(&flakySink{}, metrics.Nop{}, logger.Nop())
	if err := p.Announce(context.Background(), &models.Announcement{Content: "x"}); err == nil {
		t.Fatalf("expected error for missing thread")
	}
}

func TestAnnounceThreadGonePassesThrough(t *testing.T) {
	sink := &flakySink{gone: map[string]bool{"t": true}}
	p := NewAnnouncePipeline(sink, metrics.Nop{}, logger.Nop(), WithPostInterval(0))
	err := p.Announce(context.Background(), &models.Announcement{ThreadID: "t", Content: "x"})
	if !errors.Is(err, models.ErrThreadNotFound) {
		t.Fatalf("expected thread not found, got %v", err)
	}
	if p.Pending() != 0 {
		t.Fatalf("thread-gone announcements must not be buffered")
	}
}

func TestAnnounceBuffersAndRetries(t *testing.T) {
	sink := &flakySink{fails: 1}
	p := NewAnnouncePipeline(sink, metrics.Nop{}, logger.Nop(), WithPostInterval(0))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := p.Announce(ctx, &models.Announcement{ThreadID: "t", Content: "x"})
	if !errors.Is(err, ErrBuffered) {
		t.Fatalf("expected buffered, got %v", err)
	}
	p.Start(ctx)
	defer p.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for sink.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if sink.count() != 1 {
		t.Fatalf("buffered announcement was not retried")
	}
}
