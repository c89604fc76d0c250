package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/ecopower/ecopower/internal/apperror"
	"github.com/ecopower/ecopower/internal/auth"
	"github.com/ecopower/ecopower/internal/store"
)

type AuthHandler struct {
	users  *store.UserStore
	tokens *auth.TokenManager
	logger *slog.Logger
}

func NewAuthHandler(users *store.UserStore, tokens *auth.TokenManager, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens, logger: logger}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Role         string `json:"role"`
	FirstLogin   bool   `json:"first_login"`
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	user, err := h.users.GetByEmail(email)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}

	access, err := h.tokens.GenerateAccessToken(user.ID, auth.Role(user.Role))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	refresh, err := auth.GenerateRefreshToken()
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.users.SetRefreshToken(user.ID, &refresh); err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.logger.Info("login", "user_id", user.ID, "role", user.Role)
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		Role:         user.Role,
		FirstLogin:   user.FirstLogin,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh handles POST /api/auth/refresh. Refresh tokens rotate on use.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if req.RefreshToken == "" {
		writeError(w, h.logger, apperror.Validation("refresh_token is required"))
		return
	}

	user, err := h.users.GetByRefreshToken(req.RefreshToken)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if user == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid refresh token"})
		return
	}

	access, err := h.tokens.GenerateAccessToken(user.ID, auth.Role(user.Role))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	refresh, err := auth.GenerateRefreshToken()
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.users.SetRefreshToken(user.ID, &refresh); err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		Role:         user.Role,
		FirstLogin:   user.FirstLogin,
	})
}

// Logout handles POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if err := h.users.SetRefreshToken(userID, nil); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ChangePassword handles POST /api/auth/password. Residents created with a
// temporary password go through this to clear their first-login flag.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if len(req.NewPassword) < 8 {
		writeError(w, h.logger, apperror.Validation("new password must be at least 8 characters"))
		return
	}

	user, err := h.users.GetByID(userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if user == nil {
		writeError(w, h.logger, apperror.NotFound("user"))
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.CurrentPassword) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "current password is incorrect"})
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.users.SetPassword(userID, hash); err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.logger.Info("password changed", "user_id", userID)
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetByID(auth.UserID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if user == nil {
		writeError(w, h.logger, apperror.NotFound("user"))
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type registerRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Password  string `json:"password"`
}

// Register handles POST /api/auth/register. Self-service registration
// creates owner accounts; residents are created by their owner.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.FirstName == "" || req.LastName == "" || req.Email == "" {
		writeError(w, h.logger, apperror.Validation("first_name, last_name and email are required"))
		return
	}
	if len(req.Password) < 8 {
		writeError(w, h.logger, apperror.Validation("password must be at least 8 characters"))
		return
	}

	exists, err := h.users.EmailExists(req.Email, 0)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if exists {
		writeError(w, h.logger, apperror.Conflict("email is already registered"))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	user, err := h.users.CreateOwner(req.FirstName, req.LastName, req.Email, req.Phone, hash)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.logger.Info("owner registered", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, user)
}
