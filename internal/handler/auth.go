package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/xid"

	"github.com/lunahub/scripthub/internal/apperror"
	"github.com/lunahub/scripthub/internal/auth"
	"github.com/lunahub/scripthub/internal/service"
)

// AuthHandler manages login, logout and the current-user endpoint.
//
// Two login paths exist:
//   - POST /api/auth/login with a Roblox identity payload, used by in-game
//     clients that already verified the player.
//   - The browser OAuth flow against Roblox (login + callback), available
//     only when a RobloxProvider is configured.
type AuthHandler struct {
	roblox      *auth.RobloxProvider // nil when OAuth is not configured
	authSvc     *service.AuthService
	tokenExpiry time.Duration
	logger      *slog.Logger
}

// NewAuthHandler creates an AuthHandler. roblox may be nil; the OAuth routes
// are simply not mounted in that case.
func NewAuthHandler(roblox *auth.RobloxProvider, authSvc *service.AuthService, tokenExpiry time.Duration, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		roblox:      roblox,
		authSvc:     authSvc,
		tokenExpiry: tokenExpiry,
		logger:      logger,
	}
}

type loginRequest struct {
	RobloxUserID int64  `json:"robloxUserId"`
	Username     string `json:"username"`
	AvatarURL    string `json:"avatarUrl"`
}

type loginResponse struct {
	User  any    `json:"user"`
	Token string `json:"token"`
}

// HandleLogin logs in (or registers) a Roblox identity and returns the user
// plus a bearer token. The token is also set as an HttpOnly cookie for
// browser clients.
//
// HTTP: POST /api/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if req.RobloxUserID <= 0 {
		writeError(w, apperror.ValidationFailed("robloxUserId", "robloxUserId is required"))
		return
	}
	if req.Username == "" {
		writeError(w, apperror.ValidationFailed("username", "username is required"))
		return
	}

	res, err := h.authSvc.LoginOrRegister(r.Context(), req.RobloxUserID, req.Username, req.AvatarURL)
	if err != nil {
		h.logger.Error("login failed",
			slog.Int64("robloxUserID", req.RobloxUserID),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	h.setTokenCookie(w, res.Token)
	writeData(w, http.StatusOK, loginResponse{User: res.User, Token: res.Token})
}

// HandleRobloxLogin redirects the browser to Roblox's authorization page.
// A random state value in a short-lived cookie ties the callback to this
// browser.
//
// HTTP: GET /auth/roblox/login
func (h *AuthHandler) HandleRobloxLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.roblox.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleRobloxCallback completes the OAuth flow: verify the state, exchange
// the code for the Roblox profile, log the user in, set the token cookie and
// redirect home.
//
// HTTP: GET /auth/roblox/callback?code=xxx&state=yyy
func (h *AuthHandler) HandleRobloxCallback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie("oauth_state")
	if err != nil || stateCookie.Value == "" {
		h.logger.Warn("auth callback: missing state cookie")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}
	if r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("auth callback: state mismatch")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	// The state is single-use.
	http.SetCookie(w, &http.Cookie{Name: "oauth_state", Value: "", Path: "/", MaxAge: -1})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	rbxUser, err := h.roblox.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: Roblox exchange failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	res, err := h.authSvc.LoginOrRegister(r.Context(), rbxUser.ID, rbxUser.Username, rbxUser.Picture)
	if err != nil {
		h.logger.Error("auth callback: login failed",
			slog.Int64("robloxUserID", rbxUser.ID),
			slog.String("error", err.Error()),
		)
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	h.setTokenCookie(w, res.Token)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleLogout clears the token cookie. The token stays valid until expiry;
// the browser just stops sending it.
//
// HTTP: POST /auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	writeData(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe returns the authenticated user's profile. Mounted at both
// /api/me and /api/auth/verify (the latter is what in-game clients poll to
// check their token).
//
// HTTP: GET /api/me, GET /api/auth/verify
// Auth: required
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}

	user, err := h.authSvc.GetUserByID(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeData(w, http.StatusOK, user)
}

func (h *AuthHandler) setTokenCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.tokenExpiry.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
