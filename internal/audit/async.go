package audit

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/staffkeeper/internal/logging"
)

// AsyncSink hands events to a background goroutine so slow sinks (S3) stay
// off the request path. When the buffer is full the event is recorded
// synchronously instead of being dropped.
type AsyncSink struct {
	next    Sink
	log     logging.Logger
	timeout time.Duration

	events chan Event
	done   chan struct{}
	once   sync.Once
}

func NewAsyncSink(next Sink, buffer int, timeout time.Duration, log logging.Logger) *AsyncSink {
	s := &AsyncSink{
		next:    next,
		log:     log.With("module", "audit"),
		timeout: timeout,
		events:  make(chan Event, buffer),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *AsyncSink) run() {
	defer close(s.done)
	for e := range s.events {
		s.deliver(e)
	}
}

func (s *AsyncSink) deliver(e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.next.Record(ctx, e); err != nil {
		s.log.Error(ctx, "audit delivery failed", "id", e.ID, "kind", string(e.Kind), "error", err)
	}
}

func (s *AsyncSink) Record(ctx context.Context, e Event) error {
	select {
	case s.events <- e:
		return nil
	default:
		return s.next.Record(ctx, e)
	}
}

// Close stops accepting events and waits for the queue to drain.
func (s *AsyncSink) Close() {
	s.once.Do(func() { close(s.events) })
	<-s.done
}
