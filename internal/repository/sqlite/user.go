package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/cjudge/internal/apperror"
	"github.com/sakif/cjudge/internal/model"
	"github.com/sakif/cjudge/internal/repository"
)

var _ repository.UserRepository = (*DB)(nil)

// Upsert inserts a user or refreshes the profile of the existing row with the
// same GitHub ID. Either way user.ID and user.CreatedAt come back populated
// with the stored values, so a returning user keeps their internal ID.
func (db *DB) Upsert(ctx context.Context, user *model.User) error {
	now := time.Now()
	user.UpdatedAt = now

	err := db.conn.QueryRowContext(ctx,
		`INSERT INTO users (id, github_id, login, email, avatar_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(github_id) DO UPDATE SET
			login = excluded.login,
			email = excluded.email,
			avatar_url = excluded.avatar_url,
			updated_at = excluded.updated_at
		 RETURNING id`,
		xid.New().String(), user.GitHubID, user.Login, user.Email, user.AvatarURL, now, now,
	).Scan(&user.ID)
	if err != nil {
		return fmt.Errorf("sqlite: upserting user (githubID=%d): %w", user.GitHubID, err)
	}

	// created_at is read back with a plain SELECT so the driver sees the
	// column's DATETIME type and returns a time.Time.
	err = db.conn.QueryRowContext(ctx,
		`SELECT created_at FROM users WHERE id = ?`, user.ID,
	).Scan(&user.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: reading back user %s: %w", user.ID, err)
	}
	return nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, github_id, login, email, avatar_url, created_at, updated_at
		 FROM users WHERE id = ?`,
		id,
	).Scan(&u.ID, &u.GitHubID, &u.Login, &u.Email, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return &u, nil
}
