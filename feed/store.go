package feed

import (
	"sync"

	"github.com/google/uuid"
)

// Store holds the ordered, deduplicated rows for one active scope.
// Display order is insertion order: a bulk load establishes ascending
// creation-time order and live merges append at the end. Strict time
// order across the bulk/live boundary is not re-established; feeds are
// small and eventual order is accepted.
//
// Optimistic local rows are staged under a correlation token separate
// from the row-id namespace, so a server-confirmed row with a different
// id still replaces its staged counterpart instead of duplicating it.
type Store struct {
	mu      sync.Mutex
	scope   Scope
	rows    []Row
	ids     map[string]int // row id -> index in rows
	pending map[string]Row // correlation token -> staged row

	// onLatest, when set, is invoked after each successful ReplaceAll or
	// Merge with the newest row. This is the scroll-to-latest signal for
	// the presentation layer. Called without the store lock held.
	onLatest func(Row)
}

// NewStore returns an empty store bound to scope.
func NewStore(scope Scope) *Store {
	return &Store{
		scope:   scope,
		ids:     make(map[string]int),
		pending: make(map[string]Row),
	}
}

// OnLatest registers the latest-row notification callback.
func (s *Store) OnLatest(fn func(Row)) {
	s.mu.Lock()
	s.onLatest = fn
	s.mu.Unlock()
}

// Scope returns the partition key the store is bound to.
func (s *Store) Scope() Scope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scope
}

// Len returns the number of confirmed rows.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// Rows returns a copy of the confirmed rows in display order.
func (s *Store) Rows() []Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Row, len(s.rows))
	copy(out, s.rows)
	return out
}

// Row returns the row with the given id, if present.
func (s *Store) Row(id string) (Row, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.ids[id]
	if !ok {
		return Row{}, false
	}
	return s.rows[i], true
}

// ReplaceAll installs a bulk-loaded batch, discarding current rows. The
// input arrives newest first (descending fetch) and is reversed here to
// ascending display order. Duplicate ids within the batch keep the first
// (newest) occurrence.
func (s *Store) ReplaceAll(newestFirst []Row) {
	s.mu.Lock()
	s.rows = s.rows[:0]
	s.ids = make(map[string]int, len(newestFirst))
	for i := len(newestFirst) - 1; i >= 0; i-- {
		r := newestFirst[i]
		if _, dup := s.ids[r.ID]; dup {
			continue
		}
		s.ids[r.ID] = len(s.rows)
		s.rows = append(s.rows, r)
	}
	var latest Row
	notify := s.onLatest
	if n := len(s.rows); n > 0 && notify != nil {
		latest = s.rows[n-1]
	} else {
		notify = nil
	}
	s.mu.Unlock()
	if notify != nil {
		notify(latest)
	}
}

// Merge appends row if no existing row shares its id; duplicate ids are a
// no-op, making Merge idempotent. Returns whether the row was added.
func (s *Store) Merge(row Row) bool {
	s.mu.Lock()
	if _, dup := s.ids[row.ID]; dup {
		s.mu.Unlock()
		return false
	}
	s.ids[row.ID] = len(s.rows)
	s.rows = append(s.rows, row)
	notify := s.onLatest
	s.mu.Unlock()
	if notify != nil {
		notify(row)
	}
	return true
}

// UpdateLikes sets the like count of the row with the given id in place.
// Row order never changes. Returns whether the row was found.
func (s *Store) UpdateLikes(id string, likes int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.ids[id]
	if !ok {
		return false
	}
	s.rows[i].Likes = likes
	return true
}

// Stage records row as an optimistic, not-yet-confirmed send and returns
// the correlation token to reconcile it with later. Staged rows never
// enter the confirmed list and carry no authoritative id.
func (s *Store) Stage(row Row) string {
	token := uuid.New().String()
	s.mu.Lock()
	s.pending[token] = row
	s.mu.Unlock()
	return token
}

// Pending returns a copy of the staged rows, in no particular order.
func (s *Store) Pending() []Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Row, 0, len(s.pending))
	for _, r := range s.pending {
		out = append(out, r)
	}
	return out
}

// Reconcile replaces the staged row for token with the authoritative
// server row. The confirmed row merges by its server id, so a concurrent
// delivery of the same row over the live stream still dedupes.
func (s *Store) Reconcile(token string, confirmed Row) bool {
	s.mu.Lock()
	_, staged := s.pending[token]
	delete(s.pending, token)
	s.mu.Unlock()
	if !staged {
		return false
	}
	s.Merge(confirmed)
	return true
}

// Unstage discards a staged row whose send failed.
func (s *Store) Unstage(token string) {
	s.mu.Lock()
	delete(s.pending, token)
	s.mu.Unlock()
}
