package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/lunahub/scripthub/internal/apperror"
	"github.com/lunahub/scripthub/internal/model"
	"github.com/lunahub/scripthub/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

// Upsert inserts or refreshes a user keyed by their Roblox user ID.
//
// First login inserts the row (role user, zero upload count). Subsequent
// logins keep the existing internal ID, role and upload count, and refresh
// username, avatar and last_active — the provider profile is the source of
// truth for those fields.
func (db *DB) Upsert(ctx context.Context, user *model.User) error {
	var existing model.User
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, role, upload_count, created_at FROM users WHERE roblox_user_id = ?`,
		user.RobloxUserID,
	).Scan(&existing.ID, &existing.Role, &existing.UploadCount, &existing.CreatedAt)

	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("sqlite: looking up user by roblox_user_id %d: %w", user.RobloxUserID, err)
	}

	now := time.Now()
	if existing.ID != "" {
		user.ID = existing.ID
		user.Role = existing.Role
		user.UploadCount = existing.UploadCount
		user.CreatedAt = existing.CreatedAt
		user.LastActive = now
		user.UpdatedAt = now

		_, err = db.conn.ExecContext(ctx,
			`UPDATE users SET username = ?, avatar_url = ?, last_active = ?, updated_at = ?
			 WHERE id = ?`,
			user.Username,
			user.AvatarURL,
			user.LastActive,
			user.UpdatedAt,
			user.ID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
		}
		return nil
	}

	user.ID = xid.New().String()
	if user.Role == "" {
		user.Role = model.RoleUser
	}
	user.UploadCount = 0
	user.LastActive = now
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO users (id, roblox_user_id, username, avatar_url, role,
		                    upload_count, last_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.RobloxUserID,
		user.Username,
		user.AvatarURL,
		user.Role,
		user.UploadCount,
		user.LastActive,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting user (robloxUserID=%d): %w", user.RobloxUserID, err)
	}

	return nil
}

// GetByID retrieves a user by their internal ID.
func (db *DB) GetByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, roblox_user_id, username, avatar_url, role, upload_count,
		        last_active, created_at, updated_at
		 FROM users WHERE id = ?`,
		id,
	).Scan(
		&u.ID,
		&u.RobloxUserID,
		&u.Username,
		&u.AvatarURL,
		&u.Role,
		&u.UploadCount,
		&u.LastActive,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}

	return &u, nil
}

// IncrementUploadCount bumps the user's upload counter store-side.
func (db *DB) IncrementUploadCount(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET upload_count = upload_count + 1, updated_at = ? WHERE id = ?`,
		time.Now(), id)
	if err != nil {
		return fmt.Errorf("sqlite: incrementing upload count for user %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("user", id)
	}

	return nil
}
