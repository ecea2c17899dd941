// Package lockout decides, from stored lock state, whether an authentication
// may proceed, and counts failures within one authentication session.
package lockout

import (
	"fmt"
	"time"
)

const (
	DefaultMaxAttempts = 3
	DefaultDuration    = time.Minute
)

// Policy is immutable once built and safe for concurrent use.
type Policy struct {
	maxAttempts int
	duration    time.Duration
}

type Option func(*Policy)

func WithMaxAttempts(n int) Option {
	return func(p *Policy) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

func WithDuration(d time.Duration) Option {
	return func(p *Policy) {
		if d > 0 {
			p.duration = d
		}
	}
}

func NewPolicy(opts ...Option) Policy {
	p := Policy{maxAttempts: DefaultMaxAttempts, duration: DefaultDuration}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

func (p Policy) MaxAttempts() int        { return p.maxAttempts }
func (p Policy) Duration() time.Duration { return p.duration }

// Decision is the result of CheckAccess. Remaining is zero when Allowed.
type Decision struct {
	Allowed   bool
	Remaining time.Duration
}

// CheckAccess allows authentication when lockedUntil is nil or not after now.
// The remaining time is always derived from the stored instant.
func (p Policy) CheckAccess(lockedUntil *time.Time, now time.Time) Decision {
	if lockedUntil == nil || !lockedUntil.After(now) {
		return Decision{Allowed: true}
	}
	return Decision{Remaining: lockedUntil.Sub(now)}
}

// LockUntil is the instant a lock written at now expires.
func (p Policy) LockUntil(now time.Time) time.Time {
	return now.UTC().Add(p.duration)
}

// Outcome of recording a failed attempt.
type Outcome int

const (
	Continue Outcome = iota
	Lockout
)

func (o Outcome) String() string {
	if o == Lockout {
		return "lockout"
	}
	return "continue"
}

// Session counts failures of a single authentication call. It is not shared
// between callers and not persisted.
type Session struct {
	budget int
	failed int
}

func (p Policy) NewSession() *Session {
	return &Session{budget: p.maxAttempts}
}

// RecordFailure consumes one attempt and reports Lockout once the budget is
// exhausted.
func (s *Session) RecordFailure() Outcome {
	if s.failed < s.budget {
		s.failed++
	}
	if s.failed >= s.budget {
		return Lockout
	}
	return Continue
}

// Remaining is the number of attempts left in the session.
func (s *Session) Remaining() int { return s.budget - s.failed }

// Attempt is the 1-based number of the next attempt.
func (s *Session) Attempt() int { return s.failed + 1 }

// Exhausted reports whether no attempts are left.
func (s *Session) Exhausted() bool { return s.failed >= s.budget }

// Later returns the lock instant to store: proposed, unless current is already
// later. Locks only ever move forward.
func Later(current *time.Time, proposed time.Time) time.Time {
	if current != nil && current.After(proposed) {
		return current.UTC()
	}
	return proposed.UTC()
}

// Breakdown splits d into whole hours, minutes and seconds, rounding up so a
// lock with 0.4s left still shows one second.
func Breakdown(d time.Duration) (hours, minutes, seconds int) {
	if d <= 0 {
		return 0, 0, 0
	}
	total := int((d + time.Second - 1) / time.Second)
	return total / 3600, (total % 3600) / 60, total % 60
}

// Clock formats d as hh:mm:ss.
func Clock(d time.Duration) string {
	h, m, s := Breakdown(d)
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
