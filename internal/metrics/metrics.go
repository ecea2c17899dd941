// Package metrics exposes authentication and account-management counters to
// Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Login outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeLocked   = "locked"
	OutcomeUnknown  = "unknown_login"
	OutcomeAborted  = "aborted"
	OutcomeInternal = "error"
)

// Recorder is what the services report to.
type Recorder interface {
	RecordLogin(outcome string)
	RecordLoginDuration(d time.Duration)
	RecordLockout()
	RecordLockWriteFailure()
	RecordAccountOp(op string, err error)
}

type Collector struct {
	logins            *prometheus.CounterVec
	loginDuration     prometheus.Histogram
	lockouts          prometheus.Counter
	lockWriteFailures prometheus.Counter
	accountOps        *prometheus.CounterVec
}

// NewCollector registers the collector's metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "staffkeeper_logins_total",
			Help: "Completed login sessions by outcome.",
		}, []string{"outcome"}),
		loginDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "staffkeeper_login_duration_seconds",
			Help:    "Time spent in a login session, including prompts.",
			Buckets: prometheus.DefBuckets,
		}),
		lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "staffkeeper_lockouts_total",
			Help: "Accounts locked after exhausting their attempts.",
		}),
		lockWriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "staffkeeper_lock_write_failures_total",
			Help: "Lock writes that failed after all retries.",
		}),
		accountOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "staffkeeper_account_operations_total",
			Help: "Account management operations by name and result.",
		}, []string{"op", "result"}),
	}

	reg.MustRegister(
		c.logins,
		c.loginDuration,
		c.lockouts,
		c.lockWriteFailures,
		c.accountOps,
	)

	return c
}

func (c *Collector) RecordLogin(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordLoginDuration(d time.Duration) {
	c.loginDuration.Observe(d.Seconds())
}

func (c *Collector) RecordLockout() {
	c.lockouts.Inc()
}

func (c *Collector) RecordLockWriteFailure() {
	c.lockWriteFailures.Inc()
}

// RecordAccountOp counts op as "ok" when err is nil, "error" otherwise.
func (c *Collector) RecordAccountOp(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.accountOps.WithLabelValues(op, result).Inc()
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordLogin(string)                {}
func (Nop) RecordLoginDuration(time.Duration) {}
func (Nop) RecordLockout()                    {}
func (Nop) RecordLockWriteFailure()           {}
func (Nop) RecordAccountOp(string, error)     {}
