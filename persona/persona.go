// Package persona runs scheduled bot personas that post radar signals.
// Each persona has a cron schedule; on every tick it inserts one row into
// its feed through pgstore and fans it out through the hub, so live
// subscribers see persona posts exactly like user posts.
package persona

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/adhocore/gronx"

	"github.com/oddsradar/backend/feed"
	"github.com/oddsradar/backend/pgstore"
	"github.com/oddsradar/backend/telemetry"
)

// Persona is one scheduled bot author.
type Persona struct {
	Name     string   `json:"name"`
	Role     string   `json:"role"`
	Avatar   string   `json:"avatar"`
	Feed     string   `json:"feed"`     // defaults to "radar"
	Scope    *int64   `json:"scope"`    // null = global
	Schedule string   `json:"schedule"` // cron expression
	Lines    []string `json:"lines"`    // content templates, one picked per tick

	MinConfidence float64 `json:"min_confidence"`
	MaxConfidence float64 `json:"max_confidence"`
	MinMood       float64 `json:"min_mood"`
	MaxMood       float64 `json:"max_mood"`
}

// Broadcaster is the fanout sink for inserted rows. *server.Hub satisfies it.
type Broadcaster interface {
	BroadcastRow(feedName string, row feed.Row)
}

// LoadFile reads persona definitions from a JSON file and validates each
// schedule and feed name.
func LoadFile(path string) ([]Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona config: %w", err)
	}
	var personas []Persona
	if err := json.Unmarshal(data, &personas); err != nil {
		return nil, fmt.Errorf("parse persona config: %w", err)
	}
	for i := range personas {
		p := &personas[i]
		if p.Feed == "" {
			p.Feed = "radar"
		}
		if _, ok := pgstore.Lookup(p.Feed); !ok {
			return nil, fmt.Errorf("persona %q: unknown feed %q", p.Name, p.Feed)
		}
		if !gronx.IsValid(p.Schedule) {
			return nil, fmt.Errorf("persona %q: invalid schedule %q", p.Name, p.Schedule)
		}
		if p.Name == "" || len(p.Lines) == 0 {
			return nil, fmt.Errorf("persona %d: name and lines required", i)
		}
	}
	return personas, nil
}

// Start launches one scheduler goroutine per persona. It returns
// immediately; schedulers stop when ctx is cancelled.
func Start(ctx context.Context, store *pgstore.Store, hub Broadcaster, personas []Persona) {
	for i := range personas {
		go run(ctx, store, hub, personas[i])
	}
	slog.Info("personas started", slog.Int("count", len(personas)), slog.String("component", "persona"))
}

// run sleeps until the next cron tick and posts one row, repeating until
// ctx is cancelled.
func run(ctx context.Context, store *pgstore.Store, hub Broadcaster, p Persona) {
	for {
		if ctx.Err() != nil {
			return
		}
		next, err := gronx.NextTickAfter(p.Schedule, time.Now(), false)
		if err != nil {
			slog.Error("persona next tick failed", slog.String("persona", p.Name), slog.Any("err", err), slog.String("component", "persona"))
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		select {
		case <-time.After(time.Until(next)):
		case <-ctx.Done():
			return
		}
		if err := PostOnce(ctx, store, hub, p); err != nil {
			slog.Warn("persona post failed", slog.String("persona", p.Name), slog.Any("err", err), slog.String("component", "persona"))
		}
	}
}

// PostOnce inserts one row authored by p and fans it out.
func PostOnce(ctx context.Context, store *pgstore.Store, hub Broadcaster, p Persona) error {
	ft, ok := pgstore.Lookup(p.Feed)
	if !ok {
		return fmt.Errorf("unknown feed %q", p.Feed)
	}

	scope := feed.Global()
	if p.Scope != nil {
		scope = feed.ScopeOf(*p.Scope)
	}
	row := feed.Row{
		Scope:      scope,
		Sender:     p.Name,
		Role:       p.Role,
		Avatar:     p.Avatar,
		Content:    p.Lines[rand.Intn(len(p.Lines))],
		Confidence: inRange(p.MinConfidence, p.MaxConfidence),
		Mood:       inRange(p.MinMood, p.MaxMood),
	}

	confirmed, err := store.InsertRow(ctx, ft, row)
	if err != nil {
		return err
	}
	if hub != nil {
		hub.BroadcastRow(ft.Name, confirmed)
	}
	telemetry.CountPersonaRun()
	slog.Debug("persona posted", slog.String("persona", p.Name), slog.String("feed", ft.Name),
		slog.String("row_id", confirmed.ID), slog.String("component", "persona"))
	return nil
}

func inRange(min, max float64) float64 {
	if max <= min {
		return min
	}
	return min + rand.Float64()*(max-min)
}
