package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// State is the connection state of a ReconnectingSource.
type State int

const (
	Disconnected State = iota
	Connecting
	Subscribed
	BackingOff
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Subscribed:
		return "subscribed"
	case BackingOff:
		return "backing_off"
	default:
		return "disconnected"
	}
}

// DefaultResyncGap is how long a subscription may be down before a
// reconnect triggers a bulk-load resync to close the event gap.
const DefaultResyncGap = 30 * time.Second

// DialFunc opens one underlying event stream for a scope. The returned
// channel must be closed by the transport when the stream dies.
type DialFunc func(ctx context.Context, scope Scope) (<-chan Row, error)

// ReconnectingSource is an EventSource that owns its reconnect policy
// instead of delegating it to the transport:
//
//	Disconnected -> Connecting -> Subscribed -> Disconnected -> ...
//	                    \-> BackingOff (exponential, jittered) -> Connecting
//
// After an outage longer than ResyncGap it emits a Resync event before
// resuming, so the consumer re-runs its bulk load.
type ReconnectingSource struct {
	Dial DialFunc

	ResyncGap      time.Duration // DefaultResyncGap when zero
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Log            *slog.Logger

	mu    sync.Mutex
	state State
}

func (s *ReconnectingSource) log() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default()
}

// State returns the current connection state.
func (s *ReconnectingSource) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *ReconnectingSource) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Subscribe starts the reconnect loop for scope. The returned channel is
// closed when ctx is cancelled.
func (s *ReconnectingSource) Subscribe(ctx context.Context, scope Scope) (<-chan Event, error) {
	if s.Dial == nil {
		return nil, errors.New("feed: no dial func configured")
	}
	out := make(chan Event, 64)
	go s.run(ctx, scope, out)
	return out, nil
}

func (s *ReconnectingSource) run(ctx context.Context, scope Scope, out chan<- Event) {
	defer close(out)
	defer s.setState(Disconnected)

	b := backoff.NewExponentialBackOff()
	if s.InitialBackoff > 0 {
		b.InitialInterval = s.InitialBackoff
	}
	if s.MaxBackoff > 0 {
		b.MaxInterval = s.MaxBackoff
	}
	b.Reset()
	gap := s.ResyncGap
	if gap <= 0 {
		gap = DefaultResyncGap
	}

	var lostAt time.Time
	for {
		if ctx.Err() != nil {
			return
		}
		s.setState(Connecting)
		in, err := s.Dial(ctx, scope)
		if err != nil {
			s.setState(BackingOff)
			wait := b.NextBackOff()
			s.log().Warn("subscription dial failed",
				slog.String("scope", scope.String()), slog.Duration("retry_in", wait),
				slog.Any("err", err), slog.String("component", "feed"))
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}
		b.Reset()

		if !lostAt.IsZero() && time.Since(lostAt) > gap {
			select {
			case out <- Event{Resync: true}:
			case <-ctx.Done():
				return
			}
		}
		s.setState(Subscribed)
		s.forward(ctx, in, out)
		if ctx.Err() != nil {
			return
		}
		lostAt = time.Now()
		s.setState(Disconnected)
		s.log().Info("subscription lost; reconnecting",
			slog.String("scope", scope.String()), slog.String("component", "feed"))
	}
}

// forward copies rows from the transport stream until it closes or ctx
// is cancelled.
func (s *ReconnectingSource) forward(ctx context.Context, in <-chan Row, out chan<- Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case row, ok := <-in:
			if !ok {
				return
			}
			select {
			case out <- Event{Row: row}:
			case <-ctx.Done():
				return
			}
		}
	}
}
