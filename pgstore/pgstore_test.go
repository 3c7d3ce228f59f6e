package pgstore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/oddsradar/backend/feed"
	"github.com/oddsradar/backend/pgstore"
	"github.com/oddsradar/backend/testutil"
)

func TestLookup(t *testing.T) {
	for _, name := range []string{"chat", "war_room", "radar"} {
		if _, ok := pgstore.Lookup(name); !ok {
			t.Errorf("Lookup(%q) missing", name)
		}
	}
	if _, ok := pgstore.Lookup("nope"); ok {
		t.Error("Lookup should reject unknown feeds")
	}
}

func TestInsertAndRecentRowsScopeSymmetry(t *testing.T) {
	database := testutil.SetupTestDB(t)
	testutil.TruncateFeeds(t, database)
	store := &pgstore.Store{DB: database}
	ctx := context.Background()
	ft, _ := pgstore.Lookup("chat")

	mk := func(scope feed.Scope, content string) feed.Row {
		t.Helper()
		row, err := store.InsertRow(ctx, ft, feed.Row{
			Scope: scope, Sender: "tester", Role: "user", Content: content,
		})
		if err != nil {
			t.Fatal(err)
		}
		if row.ID == "" || row.CreatedAt.IsZero() {
			t.Fatalf("insert returned row without server id/timestamp: %+v", row)
		}
		return row
	}

	g1 := mk(feed.Global(), "global one")
	g2 := mk(feed.Global(), "global two")
	s1 := mk(feed.ScopeOf(7), "match seven")
	_ = mk(feed.ScopeOf(8), "match eight")

	// Global selects only NULL-scoped rows, newest first.
	rows, err := store.RecentRows(ctx, ft, feed.Global(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("global read returned %d rows, want 2", len(rows))
	}
	if rows[0].ID != g2.ID || rows[1].ID != g1.ID {
		t.Fatalf("global rows not newest first: %v then %v", rows[0].ID, rows[1].ID)
	}
	for _, r := range rows {
		if !r.Scope.IsGlobal() {
			t.Fatalf("scoped row leaked into global read: %+v", r)
		}
	}

	// A scoped key selects only its own rows.
	rows, err = store.RecentRows(ctx, ft, feed.ScopeOf(7), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].ID != s1.ID {
		t.Fatalf("scope 7 read = %v, want exactly %s", rows, s1.ID)
	}
}

func TestRecentRowsLimit(t *testing.T) {
	database := testutil.SetupTestDB(t)
	testutil.TruncateFeeds(t, database)
	store := &pgstore.Store{DB: database}
	ctx := context.Background()
	ft, _ := pgstore.Lookup("radar")

	for i := 0; i < 5; i++ {
		if _, err := store.InsertRow(ctx, ft, feed.Row{Scope: feed.Global(), Sender: "bot", Content: "signal"}); err != nil {
			t.Fatal(err)
		}
	}
	rows, err := store.RecentRows(ctx, ft, feed.Global(), 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
}

func TestIncrementLikes(t *testing.T) {
	database := testutil.SetupTestDB(t)
	testutil.TruncateFeeds(t, database)
	store := &pgstore.Store{DB: database}
	ctx := context.Background()
	ft, _ := pgstore.Lookup("war_room")

	row, err := store.InsertRow(ctx, ft, feed.Row{Scope: feed.ScopeOf(3), Sender: "tester", Content: "hot take"})
	if err != nil {
		t.Fatal(err)
	}
	for want := 1; want <= 3; want++ {
		likes, err := store.IncrementLikes(ctx, ft, row.ID)
		if err != nil {
			t.Fatal(err)
		}
		if likes != want {
			t.Fatalf("likes = %d, want %d", likes, want)
		}
	}

	_, err = store.IncrementLikes(ctx, ft, "00000000-0000-0000-0000-000000000000")
	if !errors.Is(err, pgstore.ErrRowNotFound) {
		t.Fatalf("got %v, want ErrRowNotFound", err)
	}

	// A garbage id is indistinguishable from an unknown row to callers.
	_, err = store.IncrementLikes(ctx, ft, "not-a-uuid")
	if !errors.Is(err, pgstore.ErrRowNotFound) {
		t.Fatalf("non-UUID id: got %v, want ErrRowNotFound", err)
	}
}

func TestUpsertUser(t *testing.T) {
	database := testutil.SetupTestDB(t)
	testutil.TruncateFeeds(t, database)
	store := &pgstore.Store{DB: database}
	ctx := context.Background()

	u := pgstore.User{ID: 42, Username: "ada", FirstName: "Ada", Avatar: "https://t.me/a.jpg"}
	if err := store.UpsertUser(ctx, u); err != nil {
		t.Fatal(err)
	}
	// Second upsert with changed fields must not conflict.
	u.Username = "ada_l"
	if err := store.UpsertUser(ctx, u); err != nil {
		t.Fatal(err)
	}

	got, found, err := store.GetUser(ctx, 42)
	if err != nil {
		t.Fatal(err)
	}
	if !found || got.Username != "ada_l" {
		t.Fatalf("got %+v found=%v, want updated username", got, found)
	}
	if _, found, _ := store.GetUser(ctx, 999); found {
		t.Fatal("GetUser should not find unknown id")
	}
}
