// Package feed implements the scoped live-feed core: an ordered,
// deduplicated in-memory row store per scope, reconciliation of an initial
// bulk load with a server-pushed event stream, optimistic updates with
// rollback, and a reconnecting subscription with gap resync.
//
// A feed is partitioned by Scope (global, or a match/fixture id). Exactly
// one Store exists per mounted scope; changing scope discards and rebuilds
// the store.
package feed

import (
	"bytes"
	"fmt"
	"strconv"
	"time"
)

// Scope is the partition key isolating one logical conversation or signal
// stream from another. The zero value is the global scope.
type Scope struct {
	ID    int64
	Valid bool
}

// Global returns the unscoped (global) partition key.
func Global() Scope { return Scope{} }

// ScopeOf returns the partition key for a match or fixture id.
func ScopeOf(id int64) Scope { return Scope{ID: id, Valid: true} }

// IsGlobal reports whether s is the global scope.
func (s Scope) IsGlobal() bool { return !s.Valid }

// Equal reports whether two scopes select the same partition. Global only
// matches global; a scoped key only matches the same id.
func (s Scope) Equal(o Scope) bool {
	if s.Valid != o.Valid {
		return false
	}
	return !s.Valid || s.ID == o.ID
}

func (s Scope) String() string {
	if !s.Valid {
		return "global"
	}
	return strconv.FormatInt(s.ID, 10)
}

// ParseScope parses the wire form of a scope: empty or "global" selects
// the global partition, anything else must be an integer id.
func ParseScope(v string) (Scope, error) {
	if v == "" || v == "global" || v == "null" {
		return Scope{}, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return Scope{}, fmt.Errorf("invalid scope %q: %w", v, err)
	}
	return Scope{ID: id, Valid: true}, nil
}

// MarshalJSON encodes the global scope as null and a scoped key as its id,
// matching the nullable scope column on the wire.
func (s Scope) MarshalJSON() ([]byte, error) {
	if !s.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(s.ID, 10)), nil
}

// UnmarshalJSON decodes null (or absent) as global and a number as a
// scoped key.
func (s *Scope) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*s = Scope{}
		return nil
	}
	id, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid scope %s: %w", b, err)
	}
	*s = Scope{ID: id, Valid: true}
	return nil
}

// Row is the unit held in a Store: one chat message or radar signal.
// ID is globally unique within a scope and is the dedup key. CreatedAt is
// the display ordering key. Confidence, Mood and Likes are presentational.
type Row struct {
	ID         string    `json:"id"`
	Scope      Scope     `json:"scope"`
	CreatedAt  time.Time `json:"created_at"`
	Sender     string    `json:"sender"`
	Role       string    `json:"role,omitempty"`
	Avatar     string    `json:"avatar,omitempty"`
	Content    string    `json:"content"`
	Confidence float64   `json:"confidence,omitempty"`
	Mood       float64   `json:"mood,omitempty"`
	Likes      int       `json:"likes"`
}

// Event is one item delivered by an EventSource. When Resync is set the
// transport reconnected after a gap long enough that events may have been
// missed; the consumer must re-run its bulk load.
type Event struct {
	Row    Row
	Resync bool
}
