package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oddsradar/backend/telemetry"
)

// DefaultBulkLimit is the number of rows fetched on open when Limit is
// unset. Feeds render tens of rows; anything older is never shown.
const DefaultBulkLimit = 50

// Guard errors returned by Send and Like. They describe local
// preconditions, not backend failures.
var (
	ErrEmptyDraft   = errors.New("feed: draft is empty")
	ErrSendInFlight = errors.New("feed: a send is already in flight")
	ErrNoDispatcher = errors.New("feed: no dispatcher configured")
	ErrNotOpen      = errors.New("feed: no scope open")
	ErrUnknownRow   = errors.New("feed: row not in store")
)

// Loader fetches the most recent rows for a scope, newest first.
type Loader interface {
	RecentRows(ctx context.Context, scope Scope, limit int) ([]Row, error)
}

// EventSource delivers live events for a scope until ctx is cancelled.
type EventSource interface {
	Subscribe(ctx context.Context, scope Scope) (<-chan Event, error)
}

// Dispatcher submits outbound writes. SendRow returns the authoritative
// server row (server id and timestamp); LikeRow returns the confirmed
// like count.
type Dispatcher interface {
	SendRow(ctx context.Context, row Row) (Row, error)
	LikeRow(ctx context.Context, id string) (int, error)
}

// Client binds a Loader, EventSource and Dispatcher to one Store and runs
// the reconciliation loop: bulk load, scoped live subscription, draft
// sends and optimistic likes. Configure the exported fields before the
// first Open; they are not read again concurrently after that.
type Client struct {
	Loader     Loader
	Events     EventSource
	Dispatcher Dispatcher

	// Identity attached to dispatched rows.
	Sender string
	Role   string
	Avatar string

	Limit int          // bulk load size, DefaultBulkLimit when zero
	Log   *slog.Logger // slog.Default when nil

	mu      sync.Mutex
	store   *Store
	gen     int // bumped per Open; stale loads check it before installing
	cancel  context.CancelFunc
	draft   string
	sending bool
}

func (c *Client) log() *slog.Logger {
	if c.Log != nil {
		return c.Log
	}
	return slog.Default()
}

func (c *Client) limit() int {
	if c.Limit > 0 {
		return c.Limit
	}
	return DefaultBulkLimit
}

// Open loads the most recent rows for scope and attaches the live
// subscription, returning the store backing the feed. Any previously
// open scope is discarded: its subscription is cancelled and an in-flight
// load from it can no longer overwrite the new store.
//
// A load failure is logged and leaves the store empty; the subscription
// is still attached so the feed recovers through live events and resync.
func (c *Client) Open(ctx context.Context, scope Scope) (*Store, error) {
	if c.Loader == nil {
		return nil, errors.New("feed: no loader configured")
	}

	c.mu.Lock()
	c.gen++
	gen := c.gen
	if c.cancel != nil {
		c.cancel()
	}
	watchCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	st := NewStore(scope)
	c.store = st
	c.draft = ""
	c.sending = false
	c.mu.Unlock()

	if rows, err := c.Loader.RecentRows(ctx, scope, c.limit()); err != nil {
		c.log().Warn("bulk load failed; feed starts empty",
			slog.String("scope", scope.String()), slog.Any("err", err), slog.String("component", "feed"))
	} else {
		c.install(gen, st, rows)
	}

	if c.Events != nil {
		ch, err := c.Events.Subscribe(watchCtx, scope)
		if err != nil {
			c.log().Warn("subscription failed; feed stays static",
				slog.String("scope", scope.String()), slog.Any("err", err), slog.String("component", "feed"))
		} else {
			go c.consume(watchCtx, gen, st, scope, ch)
		}
	}
	return st, nil
}

// install replaces the store contents unless a newer Open superseded gen.
func (c *Client) install(gen int, st *Store, newestFirst []Row) {
	c.mu.Lock()
	stale := gen != c.gen
	c.mu.Unlock()
	if stale {
		return
	}
	st.ReplaceAll(newestFirst)
}

// consume drains the live event channel into the store. Malformed events
// are dropped; a resync marker re-runs the bulk load to close the gap.
func (c *Client) consume(ctx context.Context, gen int, st *Store, scope Scope, ch <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Resync {
				telemetry.CountFeedResync()
				rows, err := c.Loader.RecentRows(ctx, scope, c.limit())
				if err != nil {
					c.log().Warn("resync load failed",
						slog.String("scope", scope.String()), slog.Any("err", err), slog.String("component", "feed"))
					continue
				}
				c.install(gen, st, rows)
				continue
			}
			row, err := Normalize(scope, ev.Row)
			if err != nil {
				telemetry.CountRowDropped()
				c.log().Debug("dropped live event",
					slog.String("scope", scope.String()), slog.Any("err", err), slog.String("component", "feed"))
				continue
			}
			if st.Merge(row) {
				telemetry.CountRowMerged()
			}
		}
	}
}

// Store returns the store of the currently open scope, or nil.
func (c *Client) Store() *Store {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store
}

// SetDraft replaces the outbound input buffer.
func (c *Client) SetDraft(content string) {
	c.mu.Lock()
	c.draft = content
	c.mu.Unlock()
}

// Draft returns the current input buffer.
func (c *Client) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// Send submits the current draft bound to the open scope and the client
// identity. No-op errors: empty/whitespace draft, a send already in
// flight, no dispatcher, no open scope. On success the authoritative row
// is reconciled into the store and the draft is cleared; on backend
// failure the draft is preserved so the user can retry.
func (c *Client) Send(ctx context.Context) (Row, error) {
	c.mu.Lock()
	draft := strings.TrimSpace(c.draft)
	st := c.store
	switch {
	case draft == "":
		c.mu.Unlock()
		return Row{}, ErrEmptyDraft
	case c.sending:
		c.mu.Unlock()
		return Row{}, ErrSendInFlight
	case c.Dispatcher == nil:
		c.mu.Unlock()
		return Row{}, ErrNoDispatcher
	case st == nil:
		c.mu.Unlock()
		return Row{}, ErrNotOpen
	}
	c.sending = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.sending = false
		c.mu.Unlock()
	}()

	pending := Row{
		Scope:     st.Scope(),
		CreatedAt: time.Now().UTC(),
		Sender:    c.Sender,
		Role:      c.Role,
		Avatar:    c.Avatar,
		Content:   draft,
	}
	token := st.Stage(pending)
	confirmed, err := c.Dispatcher.SendRow(ctx, pending)
	if err != nil {
		st.Unstage(token)
		telemetry.CountSendFailed()
		c.log().Warn("send failed; draft preserved",
			slog.String("scope", st.Scope().String()), slog.Any("err", err), slog.String("component", "feed"))
		return Row{}, fmt.Errorf("send row: %w", err)
	}
	st.Reconcile(token, confirmed)

	c.mu.Lock()
	if strings.TrimSpace(c.draft) == draft {
		c.draft = ""
	}
	c.mu.Unlock()
	return confirmed, nil
}

// Like optimistically increments the like count of a row, then confirms
// with the backend. On failure the count rolls back to its prior value;
// no other row is touched.
func (c *Client) Like(ctx context.Context, id string) error {
	st := c.Store()
	if st == nil {
		return ErrNotOpen
	}
	cur, ok := st.Row(id)
	if !ok {
		return ErrUnknownRow
	}
	st.UpdateLikes(id, cur.Likes+1)
	if c.Dispatcher == nil {
		st.UpdateLikes(id, cur.Likes)
		return ErrNoDispatcher
	}
	confirmed, err := c.Dispatcher.LikeRow(ctx, id)
	if err != nil {
		st.UpdateLikes(id, cur.Likes)
		telemetry.CountLikeRollback()
		c.log().Warn("like failed; rolled back",
			slog.String("row_id", id), slog.Any("err", err), slog.String("component", "feed"))
		return fmt.Errorf("like row: %w", err)
	}
	st.UpdateLikes(id, confirmed)
	return nil
}

// Close tears down the live subscription of the open scope, if any.
func (c *Client) Close() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.store = nil
	c.mu.Unlock()
}
