package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/oddsradar/backend/feed"
	"github.com/oddsradar/backend/pgstore"
)

// HandleFeedsDispatcher routes requests under /feeds/{feed}/* to the
// appropriate sub-handlers.
func (h *Handlers) HandleFeedsDispatcher(w http.ResponseWriter, r *http.Request) {
	// crude routing
	path := strings.TrimPrefix(r.URL.Path, "/feeds/")
	parts := strings.Split(path, "/")
	name := parts[0]
	ft, ok := feedByName(name)
	if !ok || name == "" {
		http.NotFound(w, r)
		return
	}
	tail := parts[1:]
	switch {
	case len(tail) == 1 && tail[0] == "rows" && r.Method == http.MethodGet:
		h.handleFeedRows(w, r, ft)
	case len(tail) == 1 && tail[0] == "rows" && r.Method == http.MethodPost:
		h.handleFeedSend(w, r, ft)
	case len(tail) == 1 && tail[0] == "rows":
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	case len(tail) == 3 && tail[0] == "rows" && tail[2] == "like":
		h.handleFeedLike(w, r, ft, tail[1])
	case len(tail) == 1 && tail[0] == "stream":
		h.handleFeedStream(w, r, ft)
	default:
		http.NotFound(w, r)
	}
}

// handleFeedRows returns the most recent rows for a scope, newest first.
// Clients reverse the batch into display order.
func (h *Handlers) handleFeedRows(w http.ResponseWriter, r *http.Request, ft pgstore.FeedTable) {
	scope, err := feed.ParseScope(r.URL.Query().Get("scope"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	limit := parseIntQuery(r, "limit", h.bulkLimit)
	if limit <= 0 || limit > pgstore.MaxBulkLimit {
		limit = h.bulkLimit
	}
	rows, err := h.store.RecentRows(r.Context(), ft, scope, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rows)
}

// sendRequest is the dispatch body. Sender identity comes from the
// validated Telegram user when auth is configured; the body fields are
// only honored in dev mode.
type sendRequest struct {
	Scope      feed.Scope `json:"scope"`
	Content    string     `json:"content"`
	Sender     string     `json:"sender,omitempty"`
	Role       string     `json:"role,omitempty"`
	Avatar     string     `json:"avatar,omitempty"`
	Confidence float64    `json:"confidence,omitempty"`
	Mood       float64    `json:"mood,omitempty"`
}

// handleFeedSend persists one row and fans it out to live subscribers.
func (h *Handlers) handleFeedSend(w http.ResponseWriter, r *http.Request, ft pgstore.FeedTable) {
	user, err := h.authenticate(r)
	if err != nil {
		http.Error(w, "invalid init data", http.StatusUnauthorized)
		slog.Warn("rejected unauthenticated send", slog.String("feed", ft.Name), slog.Any("err", err), slog.String("component", "http"))
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		http.Error(w, "empty content", http.StatusBadRequest)
		return
	}

	row := feed.Row{
		Scope:      req.Scope,
		Content:    strings.TrimSpace(req.Content),
		Sender:     req.Sender,
		Role:       req.Role,
		Avatar:     req.Avatar,
		Confidence: req.Confidence,
		Mood:       req.Mood,
	}
	if user.ID != 0 {
		row.Sender = user.DisplayName()
		row.Avatar = user.PhotoURL
		row.Role = "user"
		if err := h.store.UpsertUser(r.Context(), pgstore.User{
			ID: user.ID, Username: user.Username, FirstName: user.FirstName, Avatar: user.PhotoURL,
		}); err != nil {
			slog.Warn("user upsert failed", slog.Int64("user_id", user.ID), slog.Any("err", err), slog.String("component", "http"))
		}
	}
	if row.Sender == "" {
		row.Sender = feed.DefaultSender
	}

	confirmed, err := h.store.InsertRow(r.Context(), ft, row)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.hub.BroadcastRow(ft.Name, confirmed)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(confirmed)
}

// handleFeedLike bumps the like counter of one row and returns the
// confirmed count.
func (h *Handlers) handleFeedLike(w http.ResponseWriter, r *http.Request, ft pgstore.FeedTable, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, err := h.authenticate(r); err != nil {
		http.Error(w, "invalid init data", http.StatusUnauthorized)
		slog.Warn("rejected unauthenticated like", slog.String("feed", ft.Name), slog.Any("err", err), slog.String("component", "http"))
		return
	}
	likes, err := h.store.IncrementLikes(r.Context(), ft, id)
	if errors.Is(err, pgstore.ErrRowNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int{"likes": likes})
}

// handleFeedStream tails live rows for one scope using Server-Sent Events.
func (h *Handlers) handleFeedStream(w http.ResponseWriter, r *http.Request, ft pgstore.FeedTable) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	scope, err := feed.ParseScope(r.URL.Query().Get("scope"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ch, cancel := h.hub.Listen(ft.Name, scope)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	ctx := r.Context()
	enc := json.NewEncoder(w)
	for {
		select {
		case <-ctx.Done():
			return
		case row, ok := <-ch:
			if !ok {
				return
			}
			if _, err := w.Write([]byte("data: ")); err != nil {
				slog.Warn("failed to write SSE data prefix", slog.Any("err", err))
				return
			}
			_ = enc.Encode(row)
			if _, err := w.Write([]byte("\n")); err != nil {
				slog.Warn("failed to write SSE newline", slog.Any("err", err))
				return
			}
			flusher.Flush()
		}
	}
}

// HandleAdminStats reports hub subscriptions and per-feed row counts.
func (h *Handlers) HandleAdminStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	counts := make(map[string]int64, len(pgstore.Feeds))
	for name, ft := range pgstore.Feeds {
		var n int64
		if err := h.db.QueryRowContext(r.Context(), "SELECT COUNT(*) FROM "+ft.Table).Scan(&n); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		counts[name] = n
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ws_clients":    h.hub.ClientCount(),
		"subscriptions": h.hub.Stats(),
		"rows":          counts,
	})
}
