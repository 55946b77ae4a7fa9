package ratelimit

import (
    "context"
    "sync"
    "time"
)

// Pacer enforces a minimum spacing between consecutive calls to Wait.
// Posts to the notification sink and consecutive marketplace searches go through one.
type Pacer struct {
    mu       sync.Mutex
    interval time.Duration
    next     time.Time
    now      func() time.Time
}

func NewPacer(interval time.Duration) *Pacer {
    return &Pacer{interval: interval, now: time.Now}
}

// Wait blocks until the next slot is available or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
    if p == nil || p.interval <= 0 {
        return ctx.Err()
    }
    p.mu.Lock()
    now := p.now()
    slot := p.next
    if slot.Before(now) {
        slot = now
    }
    p.next = slot.Add(p.interval)
    p.mu.Unlock()

    d := slot.Sub(now)
    if d <= 0 {
        return ctx.Err()
    }
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return ctx.Err()
    case <-t.C:
        return nil
    }
}
