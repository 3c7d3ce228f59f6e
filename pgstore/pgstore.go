// Package pgstore persists feed rows and Telegram user records in Postgres.
// Every feed surface (global/match chat, war rooms, radar signals) shares
// one parametrized table abstraction instead of a per-screen query copy.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/oddsradar/backend/feed"
	"github.com/oddsradar/backend/telemetry"
)

// ErrRowNotFound is returned when a like targets a row that does not exist.
var ErrRowNotFound = errors.New("pgstore: row not found")

// MaxBulkLimit caps bulk loads; feeds only ever render tens of rows.
const MaxBulkLimit = 200

// FeedTable describes one feed surface: its table and the nullable column
// holding the partition key (NULL = global).
type FeedTable struct {
	Name        string
	Table       string
	ScopeColumn string
}

// Feeds is the registry of shipped feed surfaces. Table and column names
// only ever come from here, so they are safe to splice into SQL.
var Feeds = map[string]FeedTable{
	"chat":     {Name: "chat", Table: "chat_messages", ScopeColumn: "match_id"},
	"war_room": {Name: "war_room", Table: "war_room_messages", ScopeColumn: "fixture_id"},
	"radar":    {Name: "radar", Table: "radar_signals", ScopeColumn: "fixture_id"},
}

// Lookup resolves a feed surface by name.
func Lookup(name string) (FeedTable, bool) {
	ft, ok := Feeds[name]
	return ft, ok
}

// Store wraps the database handle with feed row access.
type Store struct {
	DB *sql.DB
}

func rowColumns(ft FeedTable) string {
	return fmt.Sprintf(`id, %s, COALESCE(sender,''), COALESCE(role,''), COALESCE(avatar,''), content,
		COALESCE(confidence,0), COALESCE(mood,0), COALESCE(likes,0), created_at`, ft.ScopeColumn)
}

func scanRow(sc interface{ Scan(...any) error }) (feed.Row, error) {
	var r feed.Row
	var scope sql.NullInt64
	var created time.Time
	if err := sc.Scan(&r.ID, &scope, &r.Sender, &r.Role, &r.Avatar, &r.Content,
		&r.Confidence, &r.Mood, &r.Likes, &created); err != nil {
		return feed.Row{}, err
	}
	if scope.Valid {
		r.Scope = feed.ScopeOf(scope.Int64)
	}
	r.CreatedAt = created.UTC()
	return r, nil
}

// RecentRows returns the most recent rows for a scope, newest first.
// Scope selection is symmetric: the global scope selects only rows whose
// scope column IS NULL, a scoped key only rows equal to it. This is the
// rule that keeps conversations from leaking into each other.
func (s *Store) RecentRows(ctx context.Context, ft FeedTable, scope feed.Scope, limit int) ([]feed.Row, error) {
	if limit <= 0 || limit > MaxBulkLimit {
		limit = feed.DefaultBulkLimit
	}
	var rows *sql.Rows
	var err error
	telemetry.TimeFunc(telemetry.BulkLoadDuration, func() {
		if scope.IsGlobal() {
			q := fmt.Sprintf(`SELECT %s FROM %s WHERE %s IS NULL ORDER BY created_at DESC LIMIT $1`,
				rowColumns(ft), ft.Table, ft.ScopeColumn)
			rows, err = s.DB.QueryContext(ctx, q, limit)
		} else {
			q := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 ORDER BY created_at DESC LIMIT $2`,
				rowColumns(ft), ft.Table, ft.ScopeColumn)
			rows, err = s.DB.QueryContext(ctx, q, scope.ID, limit)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("recent rows %s: %w", ft.Name, err)
	}
	defer rows.Close()

	out := make([]feed.Row, 0, limit)
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s row: %w", ft.Name, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertRow persists row with a server-assigned id and timestamp and
// returns the authoritative row.
func (s *Store) InsertRow(ctx context.Context, ft FeedTable, row feed.Row) (feed.Row, error) {
	scope := sql.NullInt64{Int64: row.Scope.ID, Valid: row.Scope.Valid}
	q := fmt.Sprintf(`INSERT INTO %s (id, %s, sender, role, avatar, content, confidence, mood, likes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,0,NOW())
		RETURNING %s`, ft.Table, ft.ScopeColumn, rowColumns(ft))
	var out feed.Row
	var err error
	telemetry.TimeFunc(telemetry.InsertDuration, func() {
		out, err = scanRow(s.DB.QueryRowContext(ctx, q,
			uuid.New().String(), scope, row.Sender, row.Role, row.Avatar, row.Content, row.Confidence, row.Mood))
	})
	if err != nil {
		return feed.Row{}, fmt.Errorf("insert %s row: %w", ft.Name, err)
	}
	telemetry.CountRowInserted()
	return out, nil
}

// IncrementLikes bumps the like counter of one row and returns the
// confirmed count. It prefers the feed_increment_likes SQL function and
// falls back to a direct column update when the function is absent
// (older schema installs).
func (s *Store) IncrementLikes(ctx context.Context, ft FeedTable, id string) (int, error) {
	var n sql.NullInt64
	err := s.DB.QueryRowContext(ctx, `SELECT feed_increment_likes($1, $2)`, ft.Table, id).Scan(&n)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "42883": // undefined_function
				return s.incrementLikesDirect(ctx, ft, id)
			case "22P02": // invalid_text_representation: non-UUID id
				return 0, ErrRowNotFound
			}
		}
		return 0, fmt.Errorf("increment likes %s: %w", ft.Name, err)
	}
	if !n.Valid {
		return 0, ErrRowNotFound
	}
	return int(n.Int64), nil
}

func (s *Store) incrementLikesDirect(ctx context.Context, ft FeedTable, id string) (int, error) {
	q := fmt.Sprintf(`UPDATE %s SET likes = COALESCE(likes,0) + 1 WHERE id = $1 RETURNING likes`, ft.Table)
	var n int
	err := s.DB.QueryRowContext(ctx, q, id).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrRowNotFound
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "22P02" {
			return 0, ErrRowNotFound
		}
		return 0, fmt.Errorf("increment likes (direct) %s: %w", ft.Name, err)
	}
	return n, nil
}
