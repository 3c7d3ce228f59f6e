package feed

import (
	"errors"
	"testing"
	"time"
)

func TestNormalize(t *testing.T) {
	active := ScopeOf(5)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		raw     Row
		wantErr error
	}{
		{"valid", Row{ID: "a", Scope: active, Content: "hello", Sender: "x", CreatedAt: now}, nil},
		{"empty content", Row{ID: "a", Scope: active, Content: ""}, ErrEmptyContent},
		{"whitespace content", Row{ID: "a", Scope: active, Content: "  \t\n "}, ErrEmptyContent},
		{"missing id", Row{Scope: active, Content: "hello"}, ErrMissingID},
		{"wrong scope", Row{ID: "a", Scope: ScopeOf(6), Content: "hello"}, ErrScopeMismatch},
		{"global against scoped", Row{ID: "a", Scope: Global(), Content: "hello"}, ErrScopeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(active, tt.raw)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got err %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNormalizeDefaults(t *testing.T) {
	got, err := Normalize(Global(), Row{ID: "a", Scope: Global(), Content: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if got.Sender != DefaultSender {
		t.Fatalf("sender = %q, want %q", got.Sender, DefaultSender)
	}
	if got.CreatedAt.IsZero() {
		t.Fatal("missing timestamp should default to now")
	}

	// Provided values survive untouched.
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	got, err = Normalize(Global(), Row{ID: "a", Scope: Global(), Content: "hi", Sender: "pundit", CreatedAt: at})
	if err != nil {
		t.Fatal(err)
	}
	if got.Sender != "pundit" || !got.CreatedAt.Equal(at) {
		t.Fatalf("defaults overwrote provided fields: %+v", got)
	}
}
