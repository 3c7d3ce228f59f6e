package persona_test

import (
	"context"
	"testing"

	"github.com/oddsradar/backend/feed"
	"github.com/oddsradar/backend/persona"
	"github.com/oddsradar/backend/pgstore"
	"github.com/oddsradar/backend/server"
	"github.com/oddsradar/backend/testutil"
)

func TestPostOnceInsertsAndBroadcasts(t *testing.T) {
	database := testutil.SetupTestDB(t)
	testutil.TruncateFeeds(t, database)
	store := &pgstore.Store{DB: database}
	hub := server.NewHub(nil)
	ctx := context.Background()

	ch, cancel := hub.Listen("radar", feed.Global())
	defer cancel()

	p := persona.Persona{
		Name: "Sharp", Role: "tipster", Feed: "radar",
		Schedule: "* * * * *", Lines: []string{"value on the over"},
		MinConfidence: 0.6, MaxConfidence: 0.9,
	}
	if err := persona.PostOnce(ctx, store, hub, p); err != nil {
		t.Fatal(err)
	}

	ft, _ := pgstore.Lookup("radar")
	rows, err := store.RecentRows(ctx, ft, feed.Global(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Sender != "Sharp" {
		t.Fatalf("got %+v, want one row by Sharp", rows)
	}
	if rows[0].Confidence < 0.6 || rows[0].Confidence > 0.9 {
		t.Fatalf("confidence %v outside configured range", rows[0].Confidence)
	}

	select {
	case row := <-ch:
		if row.ID != rows[0].ID {
			t.Fatalf("broadcast row %q, want %q", row.ID, rows[0].ID)
		}
	default:
		t.Fatal("insert did not reach the hub listener")
	}
}
