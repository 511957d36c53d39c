package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/collabdocs/collabdocs/internal/tokens"
	"github.com/collabdocs/collabdocs/internal/users"
	"github.com/collabdocs/collabdocs/pkg/logger"
	"github.com/collabdocs/collabdocs/pkg/middleware"
	"github.com/gin-gonic/gin"
)

// Revoker blacklists an access token for ttl.
type Revoker interface {
	Revoke(ctx context.Context, token string, ttl time.Duration) error
}

// AuthHandler serves the account endpoints. Tokens are issued elsewhere;
// this service only reads them and can revoke them.
type AuthHandler struct {
	users   *users.Service
	revoker Revoker
}

func NewAuthHandler(u *users.Service, r Revoker) *AuthHandler {
	return &AuthHandler{users: u, revoker: r}
}

// Register mounts the routes on an authenticated group (normally /api).
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/v1/me", h.Me)
	rg.POST("/auth/logout", h.Logout)
}

// Me records the caller in the user directory and returns the stored entry.
func (h *AuthHandler) Me(c *gin.Context) {
	claims := middleware.GetClaims(c)
	u, err := h.users.UpsertFromClaims(c.Request.Context(), claims)
	if err != nil {
		logger.Errorw("user upsert failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user upsert failed"})
		return
	}
	if u == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token has no subject"})
		return
	}
	c.JSON(http.StatusOK, u)
}

// Logout blacklists the presented access token until it expires.
func (h *AuthHandler) Logout(c *gin.Context) {
	raw := middleware.GetToken(c)
	if exp, ok := tokens.ExpiresAt(raw); ok && h.revoker != nil {
		if ttl := time.Until(exp); ttl > 0 {
			if err := h.revoker.Revoke(c.Request.Context(), raw, ttl); err != nil {
				logger.Errorw("token revoke failed", "err", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to blacklist access token"})
				return
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}
