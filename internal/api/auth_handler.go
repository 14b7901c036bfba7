package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/siteprobe/siteprobe/internal/auth"
	"github.com/siteprobe/siteprobe/internal/middleware"
)

// AuthHandler handles admin login
type AuthHandler struct {
	auth   *auth.Service
	logger *slog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *auth.Service, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: authService, logger: logger}
}

// Login handles POST /api/v1/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[auth.LoginRequest](w, r)
	if !ok {
		return
	}

	resp, err := h.auth.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			h.logger.Warn("Login failed", "username", req.Username, "ip", middleware.GetClientIP(r))
			sendError(w, r, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid username or password", nil)
			return
		}
		h.logger.Error("Failed to issue token", "error", err)
		sendError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to issue token", nil)
		return
	}

	sendJSON(w, http.StatusOK, resp)
}
