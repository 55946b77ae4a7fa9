// Package timer provides the one-shot timers auction targets are armed with.
package timer

import "time"

// Token cancels an armed callback. Cancel reports whether the callback was
// prevented from running.
type Token interface {
	Cancel() bool
}

// Clock arms callbacks to run after a delay.
type Clock interface {
	Now() time.Time
	Arm(d time.Duration, fn func()) Token
}

type realClock struct{}

// Real returns a Clock backed by the runtime timers.
func Real() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Arm(d time.Duration, fn func()) Token {
	if d < 0 {
		d = 0
	}
	return realToken{t: time.AfterFunc(d, fn)}
}

type realToken struct{ t *time.Timer }

func (r realToken) Cancel() bool { return r.t.Stop() }
