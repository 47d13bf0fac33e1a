// Package repository defines the storage interfaces consumed by the service
// layer. The sqlite subpackage provides the concrete implementation; tests
// substitute in-memory mocks.
package repository

import (
	"context"
	"time"

	"github.com/lunahub/scripthub/internal/model"
)

// ListOptions controls offset pagination for list-shaped queries.
type ListOptions struct {
	Limit  int
	Offset int
}

// ScriptRepository is the document-store port for scripts. All read methods
// see only active scripts; removed scripts behave as absent.
type ScriptRepository interface {
	Create(ctx context.Context, script *model.Script) error

	// GetByID fetches a script without side effects. LikedBy is populated.
	GetByID(ctx context.Context, id string) (*model.Script, error)

	// ViewAndGet atomically increments the script's view counter store-side
	// and returns the post-increment document. The returned view count always
	// reflects the increment.
	ViewAndGet(ctx context.Context, id string) (*model.Script, error)

	// List returns active scripts sorted by creation time descending.
	List(ctx context.Context, opts ListOptions) ([]model.Script, error)

	// CountActive returns the number of active scripts.
	CountActive(ctx context.Context) (int, error)

	// Update overwrites title/description/code/gameName/updatedAt.
	Update(ctx context.Context, script *model.Script) error

	// Remove soft-deletes a script (status active -> removed).
	Remove(ctx context.Context, id string) error

	// AddLike records that userID likes scriptID and increments the like
	// counter, as one atomic conditional operation: if userID already liked
	// the script nothing changes and apperror.ErrAlreadyLiked is returned.
	// On success the post-update script (with LikedBy) is returned.
	AddLike(ctx context.Context, scriptID string, userID int64) (*model.Script, error)

	// Search runs a full-text relevance search over title/gameName/
	// uploaderName, most relevant first. Returns the page of results and the
	// total match count.
	Search(ctx context.Context, query string, opts ListOptions) ([]model.Script, int, error)

	// Trending returns active scripts created at or after since, ordered by
	// views descending then likes descending, capped at limit.
	Trending(ctx context.Context, since time.Time, limit int) ([]model.Script, error)

	// HasRecentDuplicate reports whether uploaderID uploaded byte-identical
	// code at or after since.
	HasRecentDuplicate(ctx context.Context, uploaderID, code string, since time.Time) (bool, error)
}

// UserRepository is the document-store port for user accounts.
type UserRepository interface {
	// Upsert inserts a user on first login (keyed by RobloxUserID) or
	// refreshes username/avatar/lastActive on subsequent logins. The user's
	// internal ID and timestamps are populated on return.
	Upsert(ctx context.Context, user *model.User) error

	// GetByID fetches a user by internal ID.
	GetByID(ctx context.Context, id string) (*model.User, error)

	// IncrementUploadCount bumps the user's upload counter by one, store-side.
	IncrementUploadCount(ctx context.Context, id string) error
}
