// Package service contains the business logic layer: handlers parse HTTP and
// shape responses, services enforce the rules and orchestrate the repositories
// and the cache, repositories talk to the database.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lunahub/scripthub/internal/apperror"
	"github.com/lunahub/scripthub/internal/cache"
	"github.com/lunahub/scripthub/internal/model"
	"github.com/lunahub/scripthub/internal/repository"
)

// Validation and pagination constants. Code length is the one configurable
// bound (ScriptConfig.MaxCodeLength); everything else is fixed.
const (
	MinTitleLength       = 3
	MaxTitleLength       = 100
	MaxDescriptionLength = 500
	MinCodeLength        = 10
	MinGameNameLength    = 2
	MaxGameNameLength    = 50

	DefaultPageSize = 20
	MaxPageSize     = 100

	// TrendingWindow and TrendingLimit bound the trending feed: scripts from
	// the last 24 hours, at most 10, views then likes.
	TrendingWindow = 24 * time.Hour
	TrendingLimit  = 10
)

const defaultMaxCodeLength = 50000

// ScriptConfig carries the tunable limits for the script service.
type ScriptConfig struct {
	// MaxCodeLength is the maximum script code length. Zero means the default.
	MaxCodeLength int
	// DuplicateWindow is how long identical code from the same uploader is
	// rejected as spam. Zero disables the check.
	DuplicateWindow time.Duration
}

// ScriptService owns the read-path caching and ranking logic: cache-aside
// single-script reads, view/like counters, trending and search.
//
// The cache is optional: a nil cache behaves as an always-miss cache, so the
// service keeps working (every read goes to the store) if no cache is wired.
type ScriptService struct {
	scripts repository.ScriptRepository
	users   repository.UserRepository
	cache   *cache.ScriptCache
	cfg     ScriptConfig
	logger  *slog.Logger
}

// NewScriptService creates a ScriptService. The caller decides which
// repository implementations and which cache instance to use; tests inject
// mocks and a private cache.
func NewScriptService(
	scripts repository.ScriptRepository,
	users repository.UserRepository,
	scriptCache *cache.ScriptCache,
	cfg ScriptConfig,
	logger *slog.Logger,
) *ScriptService {
	if cfg.MaxCodeLength <= 0 {
		cfg.MaxCodeLength = defaultMaxCodeLength
	}
	return &ScriptService{
		scripts: scripts,
		users:   users,
		cache:   scriptCache,
		cfg:     cfg,
		logger:  logger,
	}
}

// CreateInput is the payload for a script upload.
type CreateInput struct {
	Title       string
	Description string
	Code        string
	Anonymous   bool
	GameName    string
}

// EditInput is the payload for a script edit. All fields are overwritten.
type EditInput struct {
	Title       string
	Description string
	Code        string
	GameName    string
}

// Pagination describes one page of a list-shaped result.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// ListResult bundles a page of scripts with its pagination block.
type ListResult struct {
	Scripts    []model.Script `json:"scripts"`
	Pagination Pagination     `json:"pagination"`
}

// Create validates and persists a new script, stamping the uploader snapshot
// (id, name, avatar) from owner at call time.
//
// The upload counter increment is a second, separate store write. If it
// fails the script stands and the counter is under-counted; that is accepted
// and logged rather than compensated.
func (s *ScriptService) Create(ctx context.Context, in CreateInput, owner *model.User) (*model.Script, error) {
	if owner == nil {
		return nil, fmt.Errorf("service/script: owner must not be nil")
	}

	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.GameName = strings.TrimSpace(in.GameName)

	if err := s.validateFields(in.Title, in.Description, in.Code, in.GameName); err != nil {
		return nil, err
	}

	if s.cfg.DuplicateWindow > 0 {
		since := time.Now().Add(-s.cfg.DuplicateWindow)
		dup, err := s.scripts.HasRecentDuplicate(ctx, owner.ID, in.Code, since)
		if err != nil {
			return nil, fmt.Errorf("checking duplicate upload: %w", err)
		}
		if dup {
			return nil, apperror.TooManyRequests(
				"duplicate script detected, please wait before uploading again")
		}
	}

	script := &model.Script{
		Title:          in.Title,
		Description:    in.Description,
		Code:           in.Code,
		UploaderID:     owner.ID,
		UploaderName:   owner.Username,
		UploaderAvatar: owner.AvatarURL,
		Anonymous:      in.Anonymous,
		GameName:       in.GameName,
	}

	if err := s.scripts.Create(ctx, script); err != nil {
		s.logger.Error("failed to create script",
			slog.String("title", in.Title),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating script: %w", err)
	}

	if err := s.users.IncrementUploadCount(ctx, owner.ID); err != nil {
		// The script exists; the counter is merely under-counted.
		s.logger.Warn("upload count not incremented",
			slog.String("userID", owner.ID),
			slog.String("scriptID", script.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("script created",
		slog.String("id", script.ID),
		slog.String("uploaderID", owner.ID),
		slog.String("gameName", script.GameName),
	)

	return script, nil
}

// List returns active scripts, newest first, one page at a time. Pages are
// 1-indexed; list results are never cached.
func (s *ScriptService) List(ctx context.Context, page, limit int) (*ListResult, error) {
	page, limit = normalizePage(page, limit)

	scripts, err := s.scripts.List(ctx, repository.ListOptions{
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
	if err != nil {
		s.logger.Error("failed to list scripts", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing scripts: %w", err)
	}

	total, err := s.scripts.CountActive(ctx)
	if err != nil {
		s.logger.Error("failed to count scripts", slog.String("error", err.Error()))
		return nil, fmt.Errorf("counting scripts: %w", err)
	}

	return &ListResult{
		Scripts:    scripts,
		Pagination: paginate(page, limit, total),
	}, nil
}

// GetByID is the cache-aside detail read.
//
// Cache hit: the cached snapshot is returned as-is, without touching the view
// counter — views only grow on genuine store reads, so cached responses
// under-count views by design (staleness is bounded by the cache TTL).
//
// Cache miss: the store atomically increments the view counter and returns
// the post-increment document, which is cached with the default TTL.
func (s *ScriptService) GetByID(ctx context.Context, id string) (*model.Script, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "script ID is required")
	}

	if s.cache != nil {
		if snapshot, ok := s.cache.Get(id); ok {
			return &snapshot, nil
		}
	}

	script, err := s.scripts.ViewAndGet(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(*script)
	}

	return script, nil
}

// Like records that likerID likes the script. The membership insert and the
// counter increment are one atomic conditional store operation, so concurrent
// likers with distinct IDs can never lose an update. A repeated like fails
// with apperror.ErrAlreadyLiked and changes nothing.
//
// The cached copy (if any) is stale after a successful like and must be
// invalidated.
func (s *ScriptService) Like(ctx context.Context, id string, likerID int64) (*model.Script, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "script ID is required")
	}

	script, err := s.scripts.AddLike(ctx, id, likerID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Delete(id)
	}

	s.logger.Info("script liked",
		slog.String("id", id),
		slog.Int64("likerID", likerID),
		slog.Int64("likes", script.Likes),
	)

	return script, nil
}

// Edit overwrites title/description/code/gameName of a script. Only the
// owner or an admin may edit; the cached copy is invalidated.
func (s *ScriptService) Edit(ctx context.Context, id, actorID string, in EditInput) (*model.Script, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "script ID is required")
	}

	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.GameName = strings.TrimSpace(in.GameName)

	if err := s.validateFields(in.Title, in.Description, in.Code, in.GameName); err != nil {
		return nil, err
	}

	script, err := s.authorizeMutation(ctx, id, actorID)
	if err != nil {
		return nil, err
	}

	script.Title = in.Title
	script.Description = in.Description
	script.Code = in.Code
	script.GameName = in.GameName

	if err := s.scripts.Update(ctx, script); err != nil {
		s.logger.Error("failed to update script",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("updating script: %w", err)
	}

	if s.cache != nil {
		s.cache.Delete(id)
	}

	s.logger.Info("script updated", slog.String("id", id), slog.String("actorID", actorID))
	return script, nil
}

// Delete removes a script (soft delete: status flips to removed and the
// script disappears from every read path). Only the owner or an admin may
// delete; the cached copy is invalidated.
func (s *ScriptService) Delete(ctx context.Context, id, actorID string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return apperror.ValidationFailed("id", "script ID is required")
	}

	if _, err := s.authorizeMutation(ctx, id, actorID); err != nil {
		return err
	}

	if err := s.scripts.Remove(ctx, id); err != nil {
		return err
	}

	if s.cache != nil {
		s.cache.Delete(id)
	}

	s.logger.Info("script deleted", slog.String("id", id), slog.String("actorID", actorID))
	return nil
}

// Search runs a full-text relevance search over title/gameName/uploaderName
// of active scripts, most relevant first, paginated like List.
func (s *ScriptService) Search(ctx context.Context, query string, page, limit int) (*ListResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperror.ValidationFailed("q", "search query is required")
	}

	page, limit = normalizePage(page, limit)

	scripts, total, err := s.scripts.Search(ctx, query, repository.ListOptions{
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
	if err != nil {
		s.logger.Error("failed to search scripts",
			slog.String("query", query),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("searching scripts: %w", err)
	}

	return &ListResult{
		Scripts:    scripts,
		Pagination: paginate(page, limit, total),
	}, nil
}

// Trending returns at most TrendingLimit active scripts created within
// TrendingWindow, ordered by views descending with likes as the tie-break.
func (s *ScriptService) Trending(ctx context.Context) ([]model.Script, error) {
	scripts, err := s.scripts.Trending(ctx, time.Now().Add(-TrendingWindow), TrendingLimit)
	if err != nil {
		s.logger.Error("failed to load trending scripts", slog.String("error", err.Error()))
		return nil, fmt.Errorf("loading trending scripts: %w", err)
	}
	return scripts, nil
}

// authorizeMutation loads the script and verifies the actor is its owner or
// an admin. Returns the script so callers don't fetch twice.
func (s *ScriptService) authorizeMutation(ctx context.Context, id, actorID string) (*model.Script, error) {
	script, err := s.scripts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	actor, err := s.users.GetByID(ctx, actorID)
	if err != nil {
		return nil, err
	}

	if script.UploaderID != actor.ID && !actor.IsAdmin() {
		return nil, apperror.Forbidden("only the uploader or an admin may modify this script")
	}

	return script, nil
}

func (s *ScriptService) validateFields(title, description, code, gameName string) error {
	if len(title) < MinTitleLength || len(title) > MaxTitleLength {
		return apperror.ValidationFailed("title",
			fmt.Sprintf("title must be between %d and %d characters", MinTitleLength, MaxTitleLength))
	}
	if len(description) > MaxDescriptionLength {
		return apperror.ValidationFailed("description",
			fmt.Sprintf("description must be %d characters or less", MaxDescriptionLength))
	}
	if len(code) < MinCodeLength || len(code) > s.cfg.MaxCodeLength {
		return apperror.ValidationFailed("code",
			fmt.Sprintf("code must be between %d and %d characters", MinCodeLength, s.cfg.MaxCodeLength))
	}
	if len(gameName) < MinGameNameLength || len(gameName) > MaxGameNameLength {
		return apperror.ValidationFailed("gameName",
			fmt.Sprintf("game name must be between %d and %d characters", MinGameNameLength, MaxGameNameLength))
	}
	return nil
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return page, limit
}

func paginate(page, limit, total int) Pagination {
	pages := 0
	if total > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{
		Page:  page,
		Limit: limit,
		Total: total,
		Pages: pages,
	}
}
