// Package audit records security-relevant events: logins, lockouts and every
// change made to an account. Events go to the structured log and, when
// configured, are archived as JSON objects in an S3 bucket.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/staffkeeper/internal/logging"
	"github.com/google/uuid"
)

type Kind string

const (
	LoginSucceeded      Kind = "login_succeeded"
	LoginFailed         Kind = "login_failed"
	LoginRejectedLocked Kind = "login_rejected_locked"
	AccountLocked       Kind = "account_locked"
	LockWriteFailed     Kind = "lock_write_failed"
	AccountCreated      Kind = "account_created"
	PasswordChanged     Kind = "password_changed"
	PasswordReset       Kind = "password_reset"
	RoleChanged         Kind = "role_changed"
	NamesUpdated        Kind = "names_updated"
	TerritoryChanged    Kind = "territory_changed"
	LoginRenamed        Kind = "login_renamed"
	AccountDeleted      Kind = "account_deleted"
	Bootstrapped        Kind = "superadmin_bootstrapped"
)

// Event is one audit record. Detail never carries secrets.
type Event struct {
	ID     string            `json:"id"`
	Time   time.Time         `json:"time"`
	Kind   Kind              `json:"kind"`
	Actor  string            `json:"actor,omitempty"`
	Target string            `json:"target,omitempty"`
	Detail map[string]string `json:"detail,omitempty"`
}

func NewEvent(kind Kind, actor, target string) Event {
	return Event{
		ID:     uuid.NewString(),
		Time:   time.Now().UTC(),
		Kind:   kind,
		Actor:  actor,
		Target: target,
	}
}

// With returns a copy of e with key set in Detail.
func (e Event) With(key, value string) Event {
	d := make(map[string]string, len(e.Detail)+1)
	for k, v := range e.Detail {
		d[k] = v
	}
	d[key] = value
	e.Detail = d
	return e
}

type Sink interface {
	Record(ctx context.Context, e Event) error
}

// LogSink writes events to a logger.
type LogSink struct {
	log logging.Logger
}

func NewLogSink(log logging.Logger) *LogSink {
	return &LogSink{log: log.With("module", "audit")}
}

func (s *LogSink) Record(ctx context.Context, e Event) error {
	args := []any{"id", e.ID, "kind", string(e.Kind)}
	if e.Actor != "" {
		args = append(args, "actor", e.Actor)
	}
	if e.Target != "" {
		args = append(args, "target", e.Target)
	}
	for k, v := range e.Detail {
		args = append(args, k, v)
	}
	if e.Kind == LockWriteFailed {
		s.log.Error(ctx, "audit", args...)
	} else {
		s.log.Info(ctx, "audit", args...)
	}
	return nil
}

// MultiSink fans an event out to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Record(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Record(context.Context, Event) error { return nil }
