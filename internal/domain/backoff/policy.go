// Package backoff decides when a failed export may be attempted again.
package backoff

import (
	"time"

	"social-export/internal/domain/model"
)

const (
	DefaultBaseDelay = time.Minute
	DefaultMaxDelay  = 30 * time.Minute
)

// Policy is an exponential delay curve: base * 2^(attempt-1), capped at Max.
type Policy struct {
	Base time.Duration
	Max  time.Duration
}

func Default() Policy {
	return Policy{Base: DefaultBaseDelay, Max: DefaultMaxDelay}
}

// Bounds returns Base and Max with unset values replaced by the defaults.
func (p Policy) Bounds() (base, max time.Duration) {
	base, max = p.Base, p.Max
	if base <= 0 {
		base = DefaultBaseDelay
	}
	if max <= 0 {
		max = DefaultMaxDelay
	}
	return base, max
}

// Delay returns the wait after the given number of attempts. Zero attempts never wait.
func (p Policy) Delay(attemptCount int) time.Duration {
	if attemptCount <= 0 {
		return 0
	}
	base, max := p.Bounds()
	d := base
	for i := 1; i < attemptCount; i++ {
		// doubling past max can only be clamped back, stop early to avoid overflow
		if d >= max {
			return max
		}
		d *= 2
	}
	if d > max {
		return max
	}
	return d
}

// DelayMs is Delay in milliseconds.
func (p Policy) DelayMs(attemptCount int) int64 {
	return p.Delay(attemptCount).Milliseconds()
}

// Decision is the outcome of ShouldBackoff.
type Decision struct {
	Wait    bool
	RetryAt time.Time
}

// ShouldBackoff reports whether req must keep waiting at now. Requests that were
// never attempted, or carry no last-attempt time, proceed.
func (p Policy) ShouldBackoff(req *model.ExportRequest, now time.Time) Decision {
	if req.AttemptCount <= 0 || req.ProcessedAt == nil {
		return Decision{}
	}
	retryAt := req.ProcessedAt.Add(p.Delay(req.AttemptCount))
	if now.Before(retryAt) {
		return Decision{Wait: true, RetryAt: retryAt}
	}
	return Decision{}
}
