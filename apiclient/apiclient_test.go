package apiclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/oddsradar/backend/apiclient"
	"github.com/oddsradar/backend/feed"
)

func TestRecentRows(t *testing.T) {
	var gotScope, gotLimit, gotInitData string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/feeds/chat/rows" || r.Method != http.MethodGet {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotScope = r.URL.Query().Get("scope")
		gotLimit = r.URL.Query().Get("limit")
		gotInitData = r.Header.Get("X-Telegram-Init-Data")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]feed.Row{
			{ID: "b", Scope: feed.ScopeOf(7), Content: "second", Sender: "s"},
			{ID: "a", Scope: feed.ScopeOf(7), Content: "first", Sender: "s"},
		})
	}))
	defer srv.Close()

	c := &apiclient.Client{BaseURL: srv.URL, Feed: "chat", InitData: "user=x&hash=y"}
	rows, err := c.RecentRows(context.Background(), feed.ScopeOf(7), 25)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[0].ID != "b" {
		t.Fatalf("got %+v, want [b a]", rows)
	}
	if gotScope != "7" || gotLimit != "25" {
		t.Fatalf("query scope=%q limit=%q, want 7 and 25", gotScope, gotLimit)
	}
	if gotInitData != "user=x&hash=y" {
		t.Fatal("init data header not forwarded")
	}
}

func TestRecentRowsGlobalScope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("scope"); got != "global" {
			t.Errorf("scope = %q, want global", got)
		}
		_ = json.NewEncoder(w).Encode([]feed.Row{})
	}))
	defer srv.Close()

	c := &apiclient.Client{BaseURL: srv.URL, Feed: "chat"}
	if _, err := c.RecentRows(context.Background(), feed.Global(), 0); err != nil {
		t.Fatal(err)
	}
}

func TestSendRow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var row feed.Row
		if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
			t.Error(err)
		}
		if row.Content != "hello" {
			t.Errorf("content = %q, want hello", row.Content)
		}
		row.ID = "srv-1"
		row.CreatedAt = time.Now().UTC()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(row)
	}))
	defer srv.Close()

	c := &apiclient.Client{BaseURL: srv.URL, Feed: "war_room"}
	confirmed, err := c.SendRow(context.Background(), feed.Row{Scope: feed.ScopeOf(3), Content: "hello", Sender: "me"})
	if err != nil {
		t.Fatal(err)
	}
	if confirmed.ID != "srv-1" {
		t.Fatalf("got %+v, want server id srv-1", confirmed)
	}
}

func TestSendRowSurfacesBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "empty content", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := &apiclient.Client{BaseURL: srv.URL, Feed: "chat"}
	if _, err := c.SendRow(context.Background(), feed.Row{Content: " "}); err == nil {
		t.Fatal("expected error from 400 response")
	}
}

func TestLikeRow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/feeds/chat/rows/abc/like" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]int{"likes": 4})
	}))
	defer srv.Close()

	c := &apiclient.Client{BaseURL: srv.URL, Feed: "chat"}
	likes, err := c.LikeRow(context.Background(), "abc")
	if err != nil {
		t.Fatal(err)
	}
	if likes != 4 {
		t.Fatalf("likes = %d, want 4", likes)
	}
}

func TestLikeRowNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := &apiclient.Client{BaseURL: srv.URL, Feed: "chat"}
	if _, err := c.LikeRow(context.Background(), "missing"); err == nil {
		t.Fatal("expected error from 404 response")
	}
}
