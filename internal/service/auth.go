package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lunahub/scripthub/internal/auth"
	"github.com/lunahub/scripthub/internal/model"
	"github.com/lunahub/scripthub/internal/repository"
)

// defaultAvatarURLFormat is the Roblox headshot thumbnail for users whose
// profile carries no picture.
const defaultAvatarURLFormat = "https://www.roblox.com/headshot-thumbnail/image?userId=%d&width=150&height=150&format=png"

// AuthService is the authentication business logic: it upserts accounts on
// login and issues access tokens. HTTP concerns (cookies, redirects) stay in
// the handler.
type AuthService struct {
	users  repository.UserRepository
	tokens *auth.TokenService
	logger *slog.Logger
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(users repository.UserRepository, tokens *auth.TokenService, logger *slog.Logger) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
		logger: logger,
	}
}

// AuthResult bundles the authenticated user and their issued token so the
// handler can set the cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// LoginOrRegister completes a login for a verified Roblox identity: first
// login inserts the account, subsequent logins refresh username, avatar and
// last-active from the provider profile. An access token is issued either
// way.
//
// If the profile carries no avatar a Roblox headshot thumbnail URL is
// derived from the Roblox user ID.
func (s *AuthService) LoginOrRegister(ctx context.Context, robloxUserID int64, username, avatarURL string) (*AuthResult, error) {
	if robloxUserID <= 0 {
		return nil, fmt.Errorf("service/auth: roblox user ID must be positive, got %d", robloxUserID)
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("service/auth: username must not be empty")
	}
	if avatarURL == "" {
		avatarURL = fmt.Sprintf(defaultAvatarURLFormat, robloxUserID)
	}

	user := &model.User{
		RobloxUserID: robloxUserID,
		Username:     username,
		AvatarURL:    avatarURL,
	}

	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: upserting user (robloxUserID=%d): %w", robloxUserID, err)
	}

	s.logger.Info("user authenticated",
		slog.String("userID", user.ID),
		slog.Int64("robloxUserID", robloxUserID),
		slog.String("username", user.Username),
	)

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}

	return &AuthResult{User: user, Token: token}, nil
}

// GetUserByID returns the user for the given internal ID. Used by handlers
// after the middleware extracts the ID from the token.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, fmt.Errorf("service/auth: user ID must not be empty")
	}
	return s.users.GetByID(ctx, id)
}

// ValidateToken validates a token string and returns the user ID it encodes.
func (s *AuthService) ValidateToken(tokenStr string) (string, error) {
	userID, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return "", fmt.Errorf("service/auth: %w", err)
	}
	return userID, nil
}
