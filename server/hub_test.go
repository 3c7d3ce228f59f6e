package server

import (
	"testing"
	"time"

	"github.com/oddsradar/backend/feed"
)

func TestHubListenScopeSymmetry(t *testing.T) {
	hub := NewHub(nil)

	globalCh, cancelGlobal := hub.Listen("chat", feed.Global())
	defer cancelGlobal()
	scopedCh, cancelScoped := hub.Listen("chat", feed.ScopeOf(7))
	defer cancelScoped()
	otherFeedCh, cancelOther := hub.Listen("radar", feed.Global())
	defer cancelOther()

	hub.BroadcastRow("chat", feed.Row{ID: "g", Scope: feed.Global(), Content: "global"})
	hub.BroadcastRow("chat", feed.Row{ID: "s", Scope: feed.ScopeOf(7), Content: "scoped"})
	hub.BroadcastRow("chat", feed.Row{ID: "x", Scope: feed.ScopeOf(8), Content: "other scope"})

	select {
	case row := <-globalCh:
		if row.ID != "g" {
			t.Fatalf("global listener got %q, want g", row.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("global listener received nothing")
	}
	select {
	case row := <-scopedCh:
		if row.ID != "s" {
			t.Fatalf("scoped listener got %q, want s", row.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("scoped listener received nothing")
	}

	// No cross-delivery: both channels must now be empty.
	select {
	case row := <-globalCh:
		t.Fatalf("global listener leaked scoped row %q", row.ID)
	default:
	}
	select {
	case row := <-scopedCh:
		t.Fatalf("scoped listener leaked row %q", row.ID)
	default:
	}
	select {
	case row := <-otherFeedCh:
		t.Fatalf("radar listener received chat row %q", row.ID)
	default:
	}
}

func TestHubListenCancelCloses(t *testing.T) {
	hub := NewHub(nil)
	ch, cancel := hub.Listen("chat", feed.Global())
	cancel()
	if _, open := <-ch; open {
		t.Fatal("cancel should close the listener channel")
	}
	// Second cancel is a no-op.
	cancel()

	// Broadcast after cancel must not panic or deliver.
	hub.BroadcastRow("chat", feed.Row{ID: "g", Scope: feed.Global(), Content: "late"})
}

func TestHubCountsStartEmpty(t *testing.T) {
	hub := NewHub(nil)
	if hub.ClientCount() != 0 {
		t.Fatalf("ClientCount = %d, want 0", hub.ClientCount())
	}
	if len(hub.Stats()) != 0 {
		t.Fatalf("Stats = %v, want empty", hub.Stats())
	}
}
