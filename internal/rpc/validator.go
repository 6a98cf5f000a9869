// Package rpc hosts the internal token-validation endpoint other services
// call instead of holding the signing secret themselves. It listens on its
// own port and never touches the store: one signature check bounds its cost.
package rpc

import (
	"log/slog"
	"net/http"

	"github.com/geocoder89/authhub/internal/auth"
	"github.com/geocoder89/authhub/internal/observability"
	"github.com/gin-gonic/gin"
)

type TokenVerifier interface {
	VerifyToken(tokenStr string) (*auth.Claims, error)
}

type ValidateRequest struct {
	Token string `json:"token"`
}

type ValidateResponse struct {
	IsValid      bool   `json:"is_valid"`
	UserID       string `json:"user_id"`
	Role         string `json:"role"`
	ErrorMessage string `json:"error_message"`
}

type Validator struct {
	jwt  TokenVerifier
	log  *slog.Logger
	prom *observability.Prom
}

func NewValidator(jwt TokenVerifier, log *slog.Logger, prom *observability.Prom) *Validator {
	return &Validator{jwt: jwt, log: log, prom: prom}
}

func (v *Validator) countResult(result string) {
	if v.prom != nil {
		v.prom.TokenValidations.WithLabelValues(result).Inc()
	}
}

// Validate never fails the transport: every outcome is a 200 with a
// structured body, and the reason never says more than "invalid or expired".
func (v *Validator) Validate(ctx *gin.Context) {
	var req ValidateRequest

	if err := ctx.ShouldBindJSON(&req); err != nil || req.Token == "" {
		if err != nil {
			v.log.DebugContext(ctx.Request.Context(), "malformed validate request", "err", err)
		}

		v.countResult("invalid")
		ctx.JSON(http.StatusOK, ValidateResponse{
			IsValid:      false,
			ErrorMessage: "Token missing",
		})
		return
	}

	claims, err := v.jwt.VerifyToken(req.Token)

	if err != nil {
		v.countResult("invalid")
		ctx.JSON(http.StatusOK, ValidateResponse{
			IsValid:      false,
			ErrorMessage: "Invalid or expired token",
		})
		return
	}

	v.countResult("valid")
	ctx.JSON(http.StatusOK, ValidateResponse{
		IsValid: true,
		UserID:  claims.UserID,
		Role:    claims.Role,
	})
}

// NewRouter builds the engine for the validator listener. Recovery keeps a
// misbehaving caller from crashing the process.
func NewRouter(jwt TokenVerifier, log *slog.Logger, prom *observability.Prom) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())

	v := NewValidator(jwt, log, prom)

	r.POST("/v1/validate", v.Validate)

	return r
}
