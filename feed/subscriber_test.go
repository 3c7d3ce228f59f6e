package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Disconnected, "disconnected"},
		{Connecting, "connecting"},
		{Subscribed, "subscribed"},
		{BackingOff, "backing_off"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestSubscribeRequiresDial(t *testing.T) {
	s := &ReconnectingSource{}
	if _, err := s.Subscribe(context.Background(), Global()); err == nil {
		t.Fatal("Subscribe without a dial func should fail")
	}
}

func TestReconnectingSourceForwardsRows(t *testing.T) {
	in := make(chan Row, 4)
	s := &ReconnectingSource{
		Dial: func(ctx context.Context, scope Scope) (<-chan Row, error) {
			return in, nil
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out, err := s.Subscribe(ctx, ScopeOf(1))
	if err != nil {
		t.Fatal(err)
	}
	in <- Row{ID: "a", Scope: ScopeOf(1), Content: "x"}
	ev := <-out
	if ev.Resync || ev.Row.ID != "a" {
		t.Fatalf("got event %+v, want row a", ev)
	}
	waitFor(t, func() bool { return s.State() == Subscribed })

	cancel()
	waitFor(t, func() bool {
		_, open := <-out
		return !open
	})
	if s.State() != Disconnected {
		t.Fatalf("state after cancel = %v, want Disconnected", s.State())
	}
}

func TestReconnectingSourceRetriesWithBackoff(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	in := make(chan Row, 1)
	s := &ReconnectingSource{
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Dial: func(ctx context.Context, scope Scope) (<-chan Row, error) {
			mu.Lock()
			defer mu.Unlock()
			attempts++
			if attempts < 3 {
				return nil, errors.New("refused")
			}
			return in, nil
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out, err := s.Subscribe(ctx, Global())
	if err != nil {
		t.Fatal(err)
	}
	in <- Row{ID: "a", Content: "x"}
	ev := <-out
	if ev.Row.ID != "a" {
		t.Fatalf("got %+v after retries, want row a", ev)
	}
	mu.Lock()
	got := attempts
	mu.Unlock()
	if got != 3 {
		t.Fatalf("dialed %d times, want 3", got)
	}
}

func TestReconnectingSourceEmitsResyncAfterGap(t *testing.T) {
	var mu sync.Mutex
	dials := 0
	streams := []chan Row{make(chan Row), make(chan Row, 1)}
	s := &ReconnectingSource{
		ResyncGap:      time.Millisecond,
		InitialBackoff: time.Millisecond,
		Dial: func(ctx context.Context, scope Scope) (<-chan Row, error) {
			mu.Lock()
			defer mu.Unlock()
			if dials >= len(streams) {
				return nil, errors.New("no more streams")
			}
			ch := streams[dials]
			dials++
			// Force the outage past ResyncGap before the second connect.
			if dials == 2 {
				time.Sleep(5 * time.Millisecond)
			}
			return ch, nil
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out, err := s.Subscribe(ctx, Global())
	if err != nil {
		t.Fatal(err)
	}

	// First stream dies immediately: the channel close is the loss signal.
	close(streams[0])

	ev := <-out
	if !ev.Resync {
		t.Fatalf("got %+v after long outage, want a resync marker", ev)
	}

	streams[1] <- Row{ID: "b", Content: "after reconnect"}
	ev = <-out
	if ev.Row.ID != "b" {
		t.Fatalf("got %+v, want row b", ev)
	}
}

func TestReconnectingSourceNoResyncWithinGap(t *testing.T) {
	var mu sync.Mutex
	dials := 0
	streams := []chan Row{make(chan Row), make(chan Row, 1)}
	s := &ReconnectingSource{
		ResyncGap:      time.Hour,
		InitialBackoff: time.Millisecond,
		Dial: func(ctx context.Context, scope Scope) (<-chan Row, error) {
			mu.Lock()
			defer mu.Unlock()
			if dials >= len(streams) {
				return nil, errors.New("no more streams")
			}
			ch := streams[dials]
			dials++
			return ch, nil
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out, err := s.Subscribe(ctx, Global())
	if err != nil {
		t.Fatal(err)
	}
	close(streams[0])
	streams[1] <- Row{ID: "b", Content: "fast reconnect"}

	ev := <-out
	if ev.Resync {
		t.Fatal("fast reconnect should not force a resync")
	}
	if ev.Row.ID != "b" {
		t.Fatalf("got %+v, want row b", ev)
	}
}
