// Package server exposes the HTTP API handlers.
package server

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/oddsradar/backend/pgstore"
	"github.com/oddsradar/backend/telegram"
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	db    *sql.DB
	store *pgstore.Store
	hub   *Hub
	ctx   context.Context

	// Telegram auth; empty botToken disables write authentication (dev mode).
	botToken       string
	initDataMaxAge time.Duration

	bulkLimit int
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(ctx context.Context, db *sql.DB, hub *Hub, botToken string, initDataMaxAge time.Duration, bulkLimit int) *Handlers {
	if bulkLimit <= 0 {
		bulkLimit = 50
	}
	if initDataMaxAge <= 0 {
		initDataMaxAge = 24 * time.Hour
	}
	return &Handlers{
		db:             db,
		store:          &pgstore.Store{DB: db},
		hub:            hub,
		ctx:            ctx,
		botToken:       botToken,
		initDataMaxAge: initDataMaxAge,
		bulkLimit:      bulkLimit,
	}
}

// feedByName resolves a feed surface; split out so the websocket hub can
// validate subscription targets too.
func feedByName(name string) (pgstore.FeedTable, bool) {
	return pgstore.Lookup(name)
}

// authenticate validates the X-Telegram-Init-Data header and returns the
// verified user. When no bot token is configured the check is skipped and
// a zero user is returned.
func (h *Handlers) authenticate(r *http.Request) (telegram.User, error) {
	if h.botToken == "" {
		return telegram.User{}, nil
	}
	data, err := telegram.Validate(r.Header.Get("X-Telegram-Init-Data"), h.botToken, h.initDataMaxAge)
	if err != nil {
		return telegram.User{}, err
	}
	return data.User, nil
}
