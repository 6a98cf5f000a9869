package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/geocoder89/authhub/internal/domain/user"
	"github.com/geocoder89/authhub/internal/http/middlewares"
	"github.com/geocoder89/authhub/internal/observability"
	"github.com/geocoder89/authhub/internal/service"
	"github.com/gin-gonic/gin"
)

// Credentials is the part of the auth service the handler needs.
type Credentials interface {
	Register(ctx context.Context, email, password, name string) (user.Public, error)
	Login(ctx context.Context, email, password string) (user.Public, service.TokenPair, error)
	GetByID(ctx context.Context, id string) (user.Public, error)
	Refresh(ctx context.Context, rawToken string) (service.TokenPair, error)
	Logout(ctx context.Context, rawToken string) error
	LogoutAll(ctx context.Context, userID string) error
}

type AuthHandler struct {
	svc  Credentials
	prom *observability.Prom
}

func NewAuthHandler(svc Credentials, prom *observability.Prom) *AuthHandler {
	return &AuthHandler{svc: svc, prom: prom}
}

func (h *AuthHandler) count(op, result string) {
	if h.prom != nil {
		h.prom.AuthResults.WithLabelValues(op, result).Inc()
	}
}

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name" binding:"required,min=2"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// opTimeout bounds a store-backed operation; it includes time spent waiting
// for a hash-pool slot.
func opTimeout(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), 5*time.Second)
}

func (h *AuthHandler) Register(ctx *gin.Context) {
	var req RegisterRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := opTimeout(ctx)

	defer cancel()

	u, err := h.svc.Register(cctx, req.Email, req.Password, req.Name)

	if err != nil {
		if errors.Is(err, service.ErrEmailTaken) {
			h.count("register", "rejected")
			RespondConflict(ctx, "email_taken", "Email already in use.")
			return
		}

		h.count("register", "error")
		respondAuthFailure(ctx, err, "Could not create user")
		return
	}

	h.count("register", "success")
	ctx.JSON(http.StatusCreated, gin.H{"user": u})
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := opTimeout(ctx)

	defer cancel()

	u, pair, err := h.svc.Login(cctx, req.Email, req.Password)

	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			h.count("login", "rejected")
			RespondUnAuthorized(ctx, "invalid_credentials", "Email or password is incorrect.")
			return
		}

		if errors.Is(err, service.ErrAccountDisabled) {
			h.count("login", "rejected")
			RespondForbidden(ctx, "account_disabled", "Account is disabled.")
			return
		}

		h.count("login", "error")
		respondAuthFailure(ctx, err, "Could not log in")
		return
	}

	h.count("login", "success")
	ctx.JSON(http.StatusOK, gin.H{
		"user":         u,
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
}

// Me returns the caller's own projection, resolved from the access token.
func (h *AuthHandler) Me(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)

	if !ok || userID == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	cctx, cancel := opTimeout(ctx)

	defer cancel()

	u, err := h.svc.GetByID(cctx, userID)

	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}

		respondAuthFailure(ctx, err, "Could not load user")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"user": u})
}

func (h *AuthHandler) Refresh(ctx *gin.Context) {
	var req RefreshRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := opTimeout(ctx)

	defer cancel()

	pair, err := h.svc.Refresh(cctx, req.RefreshToken)

	if err != nil {
		if errors.Is(err, service.ErrInvalidRefreshToken) {
			h.count("refresh", "rejected")
			RespondUnAuthorized(ctx, "invalid_refresh", "Invalid refresh token.")
			return
		}

		if errors.Is(err, service.ErrRefreshTokenExpired) {
			h.count("refresh", "rejected")
			RespondUnAuthorized(ctx, "expired_refresh", "Refresh token expired.")
			return
		}

		h.count("refresh", "error")
		respondAuthFailure(ctx, err, "Could not refresh session")
		return
	}

	h.count("refresh", "success")
	ctx.JSON(http.StatusOK, gin.H{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
}

func (h *AuthHandler) Logout(ctx *gin.Context) {
	var req LogoutRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := opTimeout(ctx)

	defer cancel()

	if err := h.svc.Logout(cctx, req.RefreshToken); err != nil {
		h.count("logout", "error")
		respondAuthFailure(ctx, err, "Could not log out")
		return
	}

	h.count("logout", "success")
	ctx.Status(http.StatusNoContent)
}

// LogoutAll ends every session of the authenticated caller. Identity comes
// from the access token, not the body, so one leaked refresh token cannot be
// used to sign everyone else out.
func (h *AuthHandler) LogoutAll(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)

	if !ok || userID == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	cctx, cancel := opTimeout(ctx)

	defer cancel()

	if err := h.svc.LogoutAll(cctx, userID); err != nil {
		h.count("logout_all", "error")
		respondAuthFailure(ctx, err, "Could not log out")
		return
	}

	h.count("logout_all", "success")
	ctx.Status(http.StatusNoContent)
}

// respondAuthFailure handles the leftover error cases: a caller deadline maps
// to a retryable timeout, everything else to a generic internal failure. No
// internal detail reaches the response body.
func respondAuthFailure(ctx *gin.Context, err error, message string) {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		RespondError(ctx, http.StatusGatewayTimeout, "timeout", "Request timed out, please retry.", nil)
		return
	}

	RespondInternal(ctx, message)
}
