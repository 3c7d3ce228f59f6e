package pgstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// User is a Telegram user record, keyed by the Telegram user id.
type User struct {
	ID        int64
	Username  string
	FirstName string
	Avatar    string
	Role      string
	CreatedAt time.Time
}

// UpsertUser stores or refreshes a user record and stamps last_seen_at.
func (s *Store) UpsertUser(ctx context.Context, u User) error {
	if u.Role == "" {
		u.Role = "user"
	}
	q := `INSERT INTO users(id, username, first_name, avatar, role, created_at, last_seen_at)
		  VALUES($1,$2,$3,$4,$5,NOW(),NOW())
		  ON CONFLICT(id) DO UPDATE SET
		    username=EXCLUDED.username,
		    first_name=EXCLUDED.first_name,
		    avatar=EXCLUDED.avatar,
		    last_seen_at=NOW()`
	if _, err := s.DB.ExecContext(ctx, q, u.ID, u.Username, u.FirstName, u.Avatar, u.Role); err != nil {
		return fmt.Errorf("upsert user %d: %w", u.ID, err)
	}
	return nil
}

// GetUser retrieves a stored user record; returns found=false if absent.
func (s *Store) GetUser(ctx context.Context, id int64) (User, bool, error) {
	var u User
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, COALESCE(username,''), COALESCE(first_name,''), COALESCE(avatar,''), COALESCE(role,'user'), created_at
		 FROM users WHERE id = $1`, id)
	err := row.Scan(&u.ID, &u.Username, &u.FirstName, &u.Avatar, &u.Role, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, err
	}
	return u, true, nil
}
