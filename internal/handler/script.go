package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lunahub/scripthub/internal/apperror"
	"github.com/lunahub/scripthub/internal/auth"
	"github.com/lunahub/scripthub/internal/service"
)

// maxRequestBody caps upload/edit bodies. Script code is capped separately
// by the service; this bound only stops pathological payloads at the door.
const maxRequestBody = 1 << 20 // 1 MiB

// ScriptHandler exposes the script endpoints: list, trending, search, detail
// (cache-aside with view counting), upload, edit, delete and like.
type ScriptHandler struct {
	scripts *service.ScriptService
	auth    *service.AuthService
	logger  *slog.Logger
}

// NewScriptHandler creates a ScriptHandler.
func NewScriptHandler(scripts *service.ScriptService, authSvc *service.AuthService, logger *slog.Logger) *ScriptHandler {
	return &ScriptHandler{scripts: scripts, auth: authSvc, logger: logger}
}

type scriptRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Code        string `json:"code"`
	Anonymous   bool   `json:"anonymous"`
	GameName    string `json:"gameName"`
}

// HandleList returns a page of active scripts, newest first.
//
// HTTP: GET /api/scripts?page=1&limit=20
func (h *ScriptHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)

	res, err := h.scripts.List(r.Context(), page, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeData(w, http.StatusOK, res)
}

// HandleTrending returns the trending feed: most-viewed scripts of the last
// 24 hours.
//
// HTTP: GET /api/scripts/trending
func (h *ScriptHandler) HandleTrending(w http.ResponseWriter, r *http.Request) {
	scripts, err := h.scripts.Trending(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeData(w, http.StatusOK, scripts)
}

// HandleSearch runs the full-text search.
//
// HTTP: GET /api/scripts/search?q=blox&page=1&limit=20
func (h *ScriptHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)

	res, err := h.scripts.Search(r.Context(), r.URL.Query().Get("q"), page, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeData(w, http.StatusOK, res)
}

// HandleGet returns one script and counts the view (unless served from
// cache).
//
// HTTP: GET /api/scripts/{id}
func (h *ScriptHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	script, err := h.scripts.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeData(w, http.StatusOK, script)
}

// HandleCreate uploads a new script for the authenticated user.
//
// HTTP: POST /api/scripts
// Auth: required
func (h *ScriptHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}

	var req scriptRequest
	if !decodeBody(w, r, &req) {
		return
	}

	owner, err := h.auth.GetUserByID(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	script, err := h.scripts.Create(r.Context(), service.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Code:        req.Code,
		Anonymous:   req.Anonymous,
		GameName:    req.GameName,
	}, owner)
	if err != nil {
		writeError(w, err)
		return
	}

	writeData(w, http.StatusCreated, script)
}

// HandleUpdate edits a script. Only the uploader or an admin may edit.
//
// HTTP: PUT /api/scripts/{id}
// Auth: required
func (h *ScriptHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}

	var req scriptRequest
	if !decodeBody(w, r, &req) {
		return
	}

	script, err := h.scripts.Edit(r.Context(), chi.URLParam(r, "id"), userID, service.EditInput{
		Title:       req.Title,
		Description: req.Description,
		Code:        req.Code,
		GameName:    req.GameName,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeData(w, http.StatusOK, script)
}

// HandleDelete removes a script. Only the uploader or an admin may delete.
//
// HTTP: DELETE /api/scripts/{id}
// Auth: required
func (h *ScriptHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.scripts.Delete(r.Context(), id, userID); err != nil {
		writeError(w, err)
		return
	}

	writeData(w, http.StatusOK, map[string]string{"message": "script deleted"})
}

// HandleLike records a like from the authenticated user's Roblox identity.
// Liking twice returns 409 and changes nothing.
//
// HTTP: POST /api/scripts/{id}/like
// Auth: required
func (h *ScriptHandler) HandleLike(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}

	user, err := h.auth.GetUserByID(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	script, err := h.scripts.Like(r.Context(), chi.URLParam(r, "id"), user.RobloxUserID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeData(w, http.StatusOK, map[string]any{
		"likes":   script.Likes,
		"likedBy": script.LikedBy,
	})
}

// decodeBody parses a JSON request body into dst. On failure it writes a 400
// and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON request body"))
		return false
	}
	return true
}

func pageParams(r *http.Request) (page, limit int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	return page, limit
}
