package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shiftops/kanban/database"
	"github.com/shiftops/kanban/internal/auth"
	"go.uber.org/zap"
)

const claimsKey = "authClaims"

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SeedUserHandler creates or updates a login. Intended for bootstrap and
// operator rotation, mirroring the admin seeding flow.
func (h *Handler) SeedUserHandler(c *gin.Context) {
	var body credentialsRequest
	if err := c.ShouldBindJSON(&body); err != nil || body.Email == "" || body.Password == "" {
		jsonError(c, http.StatusBadRequest, "email_password_required")
		return
	}

	hash, err := auth.HashPassword(body.Password)
	if err != nil {
		zap.L().Error("Failed to hash password", zap.Error(err))
		jsonError(c, http.StatusInternalServerError, "hash_error")
		return
	}

	if err := h.Store.UpsertUser(body.Email, hash); err != nil {
		zap.L().Error("Failed to upsert user", zap.Error(err))
		jsonError(c, http.StatusInternalServerError, "db_error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) LoginHandler(c *gin.Context) {
	var body credentialsRequest
	if err := c.ShouldBindJSON(&body); err != nil || body.Email == "" || body.Password == "" {
		jsonError(c, http.StatusBadRequest, "email_password_required")
		return
	}

	user, err := h.Store.GetUserByEmail(body.Email)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			jsonError(c, http.StatusUnauthorized, "invalid_credentials")
			return
		}
		zap.L().Error("Failed to load user", zap.Error(err))
		jsonError(c, http.StatusInternalServerError, "db_error")
		return
	}

	if !auth.CheckPassword(user.PassHash, body.Password) {
		jsonError(c, http.StatusUnauthorized, "invalid_credentials")
		return
	}

	token, err := h.Auth.SignToken(user.ID, user.Email)
	if err != nil {
		zap.L().Error("Failed to sign token", zap.Error(err))
		jsonError(c, http.StatusInternalServerError, "token_error")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user":  gin.H{"id": user.ID, "email": user.Email},
	})
}

// RequireAuth guards mutating routes with a bearer token.
func (h *Handler) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			jsonError(c, http.StatusUnauthorized, "missing_token")
			c.Abort()
			return
		}

		claims, err := h.Auth.VerifyToken(token)
		if err != nil {
			jsonError(c, http.StatusUnauthorized, "invalid_token")
			c.Abort()
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

func currentClaims(c *gin.Context) *auth.Claims {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*auth.Claims)
	return claims
}
