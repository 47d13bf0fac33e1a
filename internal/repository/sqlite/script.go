package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/lunahub/scripthub/internal/apperror"
	"github.com/lunahub/scripthub/internal/model"
	"github.com/lunahub/scripthub/internal/repository"
)

// compile-time check that *DB implements repository.ScriptRepository
var _ repository.ScriptRepository = (*DB)(nil)

// scriptColumns is the canonical column list; every scanScript call must
// match this order. The prefixed variant is for joins where title/game_name/
// uploader_name would otherwise be ambiguous with the FTS index columns.
const (
	scriptColumns = `id, title, description, code, uploader_id, uploader_name, ` +
		`uploader_avatar, anonymous, game_name, views, likes, reports, status, ` +
		`created_at, updated_at`
	scriptColumnsPrefixed = `s.id, s.title, s.description, s.code, s.uploader_id, ` +
		`s.uploader_name, s.uploader_avatar, s.anonymous, s.game_name, s.views, ` +
		`s.likes, s.reports, s.status, s.created_at, s.updated_at`
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanScript(row rowScanner) (*model.Script, error) {
	var s model.Script
	err := row.Scan(
		&s.ID,
		&s.Title,
		&s.Description,
		&s.Code,
		&s.UploaderID,
		&s.UploaderName,
		&s.UploaderAvatar,
		&s.Anonymous,
		&s.GameName,
		&s.Views,
		&s.Likes,
		&s.Reports,
		&s.Status,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create inserts a new script. The ID, status and timestamps are assigned
// here; counters start at zero.
func (db *DB) Create(ctx context.Context, script *model.Script) error {
	script.ID = xid.New().String()
	script.Status = model.StatusActive

	now := time.Now()
	script.CreatedAt = now
	script.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO scripts (id, title, description, code, uploader_id, uploader_name,
		                      uploader_avatar, anonymous, game_name, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		script.ID,
		script.Title,
		script.Description,
		script.Code,
		script.UploaderID,
		script.UploaderName,
		script.UploaderAvatar,
		script.Anonymous,
		script.GameName,
		script.Status,
		script.CreatedAt,
		script.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating script: %w", err)
	}

	return nil
}

// GetByID fetches an active script, likers included, without side effects.
func (db *DB) GetByID(ctx context.Context, id string) (*model.Script, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+scriptColumns+` FROM scripts WHERE id = ? AND status = 'active'`, id)

	script, err := scanScript(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("script", id)
		}
		return nil, fmt.Errorf("sqlite: getting script %s: %w", id, err)
	}

	script.LikedBy, err = db.likedBy(ctx, db.conn, id)
	if err != nil {
		return nil, err
	}
	return script, nil
}

// ViewAndGet increments the view counter and returns the post-increment
// script in a single UPDATE ... RETURNING statement. The increment happens
// store-side, so concurrent callers never lose a view.
func (db *DB) ViewAndGet(ctx context.Context, id string) (*model.Script, error) {
	row := db.conn.QueryRowContext(ctx,
		`UPDATE scripts SET views = views + 1
		 WHERE id = ? AND status = 'active'
		 RETURNING `+scriptColumns, id)

	script, err := scanScript(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("script", id)
		}
		return nil, fmt.Errorf("sqlite: incrementing views for script %s: %w", id, err)
	}

	script.LikedBy, err = db.likedBy(ctx, db.conn, id)
	if err != nil {
		return nil, err
	}
	return script, nil
}

// List returns active scripts, newest first.
func (db *DB) List(ctx context.Context, opts repository.ListOptions) ([]model.Script, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+scriptColumns+` FROM scripts
		 WHERE status = 'active'
		 ORDER BY created_at DESC
		 LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing scripts: %w", err)
	}
	defer rows.Close()

	return collectScripts(rows)
}

// CountActive returns the number of active scripts.
func (db *DB) CountActive(ctx context.Context) (int, error) {
	var total int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM scripts WHERE status = 'active'`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting scripts: %w", err)
	}
	return total, nil
}

// Update overwrites the editable fields of an active script. Counters and
// the uploader snapshot are immutable here.
func (db *DB) Update(ctx context.Context, script *model.Script) error {
	script.UpdatedAt = time.Now()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE scripts
		 SET title = ?, description = ?, code = ?, game_name = ?, updated_at = ?
		 WHERE id = ? AND status = 'active'`,
		script.Title,
		script.Description,
		script.Code,
		script.GameName,
		script.UpdatedAt,
		script.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating script %s: %w", script.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("script", script.ID)
	}

	return nil
}

// Remove soft-deletes a script. The row is kept (status flips to removed) but
// every read path filters it out from then on. The transition is
// one-directional: a removed script can't be removed again, so a second call
// reports not-found.
func (db *DB) Remove(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE scripts SET status = 'removed', updated_at = ?
		 WHERE id = ? AND status = 'active'`,
		time.Now(), id)
	if err != nil {
		return fmt.Errorf("sqlite: removing script %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("script", id)
	}

	return nil
}

// AddLike records a like as one atomic conditional operation: insert the
// (script, user) membership if absent, and only when that insert took effect
// increment the counter. Everything runs inside a single transaction, so two
// concurrent likers can never lose an update, and likes always equals the
// number of script_likes rows.
func (db *DB) AddLike(ctx context.Context, scriptID string, userID int64) (*model.Script, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: beginning like transaction: %w", err)
	}
	defer tx.Rollback()

	var one int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM scripts WHERE id = ? AND status = 'active'`, scriptID).Scan(&one)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("script", scriptID)
		}
		return nil, fmt.Errorf("sqlite: checking script %s: %w", scriptID, err)
	}

	result, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO script_likes (script_id, user_id, created_at)
		 VALUES (?, ?, ?)`,
		scriptID, userID, time.Now())
	if err != nil {
		return nil, fmt.Errorf("sqlite: inserting like for script %s: %w", scriptID, err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if inserted == 0 {
		return nil, apperror.AlreadyLiked(scriptID)
	}

	row := tx.QueryRowContext(ctx,
		`UPDATE scripts SET likes = likes + 1 WHERE id = ? RETURNING `+scriptColumns,
		scriptID)
	script, err := scanScript(row)
	if err != nil {
		return nil, fmt.Errorf("sqlite: incrementing likes for script %s: %w", scriptID, err)
	}

	script.LikedBy, err = db.likedBy(ctx, tx, scriptID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: committing like for script %s: %w", scriptID, err)
	}

	return script, nil
}

// Search runs an FTS5 match over title/game_name/uploader_name, restricted to
// active scripts. bm25() scores lower for better matches, so ascending order
// is descending relevance.
func (db *DB) Search(ctx context.Context, query string, opts repository.ListOptions) ([]model.Script, int, error) {
	match := ftsMatchExpr(query)
	if match == "" {
		return []model.Script{}, 0, nil
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+scriptColumnsPrefixed+` FROM scripts_fts
		 JOIN scripts s ON s.rowid = scripts_fts.rowid
		 WHERE scripts_fts MATCH ? AND s.status = 'active'
		 ORDER BY bm25(scripts_fts)
		 LIMIT ? OFFSET ?`,
		match, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: searching scripts: %w", err)
	}
	defer rows.Close()

	scripts, err := collectScripts(rows)
	if err != nil {
		return nil, 0, err
	}

	var total int
	err = db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM scripts_fts
		 JOIN scripts s ON s.rowid = scripts_fts.rowid
		 WHERE scripts_fts MATCH ? AND s.status = 'active'`,
		match).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting search results: %w", err)
	}

	return scripts, total, nil
}

// Trending returns active scripts created at or after since, ranked by views
// with likes as the tie-break.
func (db *DB) Trending(ctx context.Context, since time.Time, limit int) ([]model.Script, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+scriptColumns+` FROM scripts
		 WHERE status = 'active' AND created_at >= ?
		 ORDER BY views DESC, likes DESC
		 LIMIT ?`,
		since, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: querying trending scripts: %w", err)
	}
	defer rows.Close()

	return collectScripts(rows)
}

// HasRecentDuplicate reports whether the uploader stored byte-identical code
// at or after since. Removed scripts count too — re-uploading code you just
// deleted is still the same spam.
func (db *DB) HasRecentDuplicate(ctx context.Context, uploaderID, code string, since time.Time) (bool, error) {
	var exists bool
	err := db.conn.QueryRowContext(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM scripts
			WHERE uploader_id = ? AND code = ? AND created_at >= ?
		 )`,
		uploaderID, code, since).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking duplicate upload: %w", err)
	}
	return exists, nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// likedBy loads the liker set for a script, oldest like first.
func (db *DB) likedBy(ctx context.Context, q querier, scriptID string) ([]int64, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT user_id FROM script_likes
		 WHERE script_id = ?
		 ORDER BY created_at, user_id`,
		scriptID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading likers for script %s: %w", scriptID, err)
	}
	defer rows.Close()

	likedBy := []int64{}
	for rows.Next() {
		var userID int64
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("sqlite: scanning liker row: %w", err)
		}
		likedBy = append(likedBy, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating likers: %w", err)
	}

	return likedBy, nil
}

func collectScripts(rows *sql.Rows) ([]model.Script, error) {
	scripts := []model.Script{}
	for rows.Next() {
		s, err := scanScript(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning script row: %w", err)
		}
		scripts = append(scripts, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating scripts: %w", err)
	}
	return scripts, nil
}

// ftsMatchExpr turns raw user input into a safe FTS5 match expression by
// quoting each whitespace-separated term, so query syntax characters in user
// input can't break the match or inject operators. Returns "" when the input
// has no terms.
func ftsMatchExpr(query string) string {
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return ""
	}
	quoted := make([]string, 0, len(terms))
	for _, term := range terms {
		quoted = append(quoted, `"`+strings.ReplaceAll(term, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}
