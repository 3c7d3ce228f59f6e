package feed

import (
	"errors"
	"strings"
	"time"
)

// Validation errors returned by Normalize. Callers drop the record on any
// of these; they are not surfaced to the end user.
var (
	ErrEmptyContent  = errors.New("feed: empty content")
	ErrScopeMismatch = errors.New("feed: row scope does not match active scope")
	ErrMissingID     = errors.New("feed: row has no id")
)

// DefaultSender is substituted when an inbound record carries no sender
// name.
const DefaultSender = "Guest"

// Normalize validates and coerces a raw inbound record into a row bound
// to the active scope.
//
// Rejections: empty or whitespace-only content, a scope field that does
// not match active (defense against a misconfigured server-side filter),
// and a missing id. Records without an id are rejected rather than given
// a synthesized one: a locally invented id can never dedupe against the
// authoritative row for the same logical message, so optimistic rows go
// through Store.Stage/Reconcile instead.
//
// Defaults: missing sender becomes DefaultSender, missing timestamp
// becomes the current time.
func Normalize(active Scope, raw Row) (Row, error) {
	if strings.TrimSpace(raw.Content) == "" {
		return Row{}, ErrEmptyContent
	}
	if raw.ID == "" {
		return Row{}, ErrMissingID
	}
	if !raw.Scope.Equal(active) {
		return Row{}, ErrScopeMismatch
	}
	if raw.Sender == "" {
		raw.Sender = DefaultSender
	}
	if raw.CreatedAt.IsZero() {
		raw.CreatedAt = time.Now().UTC()
	}
	return raw, nil
}
