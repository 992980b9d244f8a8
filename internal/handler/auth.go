package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/devicesession/backend/internal/model"
	"github.com/devicesession/backend/internal/service"
)

type AuthHandler struct {
	svc *service.AuthService
	log *slog.Logger
}

func NewAuthHandler(svc *service.AuthService, log *slog.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, log: log}
}

// Login godoc
// @Summary Login and open a device session
// @Tags auth
// @Accept json
// @Produce json
// @Param request body model.LoginRequest true "Credentials, device name and fingerprint"
// @Success 200 {object} model.TokenResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Detail: "invalid request"})
		return
	}

	pair, err := h.svc.Login(c.Request.Context(), req)
	if err != nil {
		h.writeAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, tokenResponse(pair))
}

// Refresh godoc
// @Summary Exchange a refresh token for new tokens
// @Description Rotates the refresh token when rotation is enabled.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body model.RefreshRequest true "Refresh token and fingerprint"
// @Success 200 {object} model.TokenResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 401 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req model.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Detail: "invalid request"})
		return
	}

	pair, err := h.svc.Sessions().RefreshSession(c.Request.Context(), strings.TrimSpace(req.RefreshToken), req.Fingerprint)
	if err != nil {
		h.writeAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, tokenResponse(pair))
}

// Logout godoc
// @Summary Logout
// @Description Revokes the refresh token. Unknown tokens are accepted.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body model.RefreshTokenRequest true "Refresh token"
// @Success 200 {object} model.AuthLogoutResponse
// @Failure 400 {object} model.ErrorResponse
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	var req model.RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Detail: "invalid request"})
		return
	}

	if err := h.svc.Sessions().Logout(c.Request.Context(), strings.TrimSpace(req.RefreshToken)); err != nil {
		h.writeAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.AuthLogoutResponse{Status: "logged_out"})
}

// LogoutAll godoc
// @Summary Revoke every session of the current user
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.RevokeSessionsResponse
// @Failure 401 {object} model.ErrorResponse
// @Router /api/v1/auth/logout_all [post]
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	user := GetAuthUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Detail: "unauthorized"})
		return
	}

	n, err := h.svc.Sessions().LogoutAll(c.Request.Context(), user.ID)
	if err != nil {
		h.writeAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.RevokeSessionsResponse{Status: "logged_out", Revoked: int64(n)})
}

// ActiveSessions godoc
// @Summary List active sessions of the current user
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.ActiveSessionsResponse
// @Failure 401 {object} model.ErrorResponse
// @Router /api/v1/auth/active_sessions [get]
func (h *AuthHandler) ActiveSessions(c *gin.Context) {
	user := GetAuthUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Detail: "unauthorized"})
		return
	}

	sessions, err := h.svc.Sessions().ListActiveSessions(c.Request.Context(), user.ID)
	if err != nil {
		h.writeAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.ActiveSessionsResponse{Sessions: sessions})
}

// RevokeOtherSessions godoc
// @Summary Revoke every session of the current user except the given one
// @Tags auth
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body model.RefreshTokenRequest true "Refresh token of the session to keep"
// @Success 200 {object} model.RevokeSessionsResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 401 {object} model.ErrorResponse
// @Router /api/v1/auth/revoke_other_session [post]
func (h *AuthHandler) RevokeOtherSessions(c *gin.Context) {
	user := GetAuthUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Detail: "unauthorized"})
		return
	}

	var req model.RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Detail: "invalid request"})
		return
	}

	n, err := h.svc.Sessions().RevokeOtherSessions(c.Request.Context(), user.ID, strings.TrimSpace(req.RefreshToken))
	if err != nil {
		h.writeAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.RevokeSessionsResponse{Status: "revoked", Revoked: n})
}

func tokenResponse(pair *service.TokenPair) model.TokenResponse {
	return model.TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "bearer",
	}
}

// writeAuthError maps every token failure to 401 and bad credentials to 400.
// The precise kind only goes to the log.
func (h *AuthHandler) writeAuthError(c *gin.Context, err error) {
	kind := service.ErrorKind(err)
	switch {
	case service.IsTokenError(err):
		h.log.InfoContext(c.Request.Context(), "token rejected", "path", c.FullPath(), "reason", kind)
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Detail: "Invalid refresh token"})
	case errors.Is(err, service.ErrInvalidCredentials):
		h.log.InfoContext(c.Request.Context(), "login rejected", "reason", kind)
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Detail: "Incorrect username or password"})
	case errors.Is(err, service.ErrConflict):
		h.log.ErrorContext(c.Request.Context(), "session conflict", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusConflict, model.ErrorResponse{Detail: "already exists"})
	default:
		h.log.ErrorContext(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Detail: "server error"})
	}
}
