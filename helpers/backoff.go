package helpers

import (
	"sync/atomic"
	"time"

	"github.com/temoto/atomic_clock"
)

// Limited exponential backoff for reconnect delays.
// First delay after success is Min, each Failure() multiplies next delay by K.
//
//   for running {
//     time.Sleep(backoff.Delay())
//     err := reopen()
//     backoff.Update(err == nil)
//   }
type Backoff struct {
	next int64 // atomic
	last atomic_clock.Clock

	Min time.Duration
	Max time.Duration
	K   float32
	Res time.Duration // delay resolution for nice logs, default=1ms
}

// Delay returns remaining time to wait since last Update, 0 before first failure.
func (b *Backoff) Delay() time.Duration {
	next := time.Duration(atomic.LoadInt64(&b.next))
	if next == 0 || b.last.IsZero() {
		return 0
	}
	delay := b.limit(next)
	since := atomic_clock.Since(&b.last)
	if since >= delay {
		return 0
	}
	return b.round(delay - since)
}

// Next returns delay to be used after next failure, useful for logs.
func (b *Backoff) Next() time.Duration {
	return b.limit(time.Duration(atomic.LoadInt64(&b.next)))
}

func (b *Backoff) Failure() {
	next := time.Duration(atomic.LoadInt64(&b.next))
	if next == 0 {
		next = b.Min
	} else {
		k := b.K
		if k < 1 {
			k = 2
		}
		next = time.Duration(float32(next) * k)
	}
	b.last.SetNow()
	atomic.StoreInt64(&b.next, int64(b.limit(next)))
}

func (b *Backoff) Reset() {
	b.last.SetNow()
	atomic.StoreInt64(&b.next, 0)
}

func (b *Backoff) Update(success bool) {
	if success {
		b.Reset()
	} else {
		b.Failure()
	}
}

func (b *Backoff) limit(d time.Duration) time.Duration {
	if d < b.Min {
		d = b.Min
	}
	if b.Max != 0 && d > b.Max {
		d = b.Max
	}
	return b.round(d)
}

func (b *Backoff) round(d time.Duration) time.Duration {
	res := b.Res
	if res == 0 {
		res = 1 * time.Millisecond
	}
	return d / res * res
}
