package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/collabdocs/collabdocs/internal/access"
	"github.com/gin-gonic/gin"
)

// Token is minimal interface for a verified token that can expose claims
type Token interface {
	Claims(v interface{}) error
}

// Verifier is the minimal interface the middleware depends on
type Verifier interface {
	Verify(ctx context.Context, raw string) (Token, error)
}

// Revocations reports whether a still-valid token was revoked.
type Revocations interface {
	IsRevoked(ctx context.Context, token string) (bool, error)
}

const (
	ctxClaims   = "claims"
	ctxIdentity = "identity"
	ctxToken    = "token"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrRevokedToken = errors.New("token revoked")
	ErrNoSubject    = errors.New("token has no subject")
)

// BearerToken extracts the token of an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// IdentityFromClaims maps verified claims to the caller identity. sub is
// required; email and name are optional.
func IdentityFromClaims(claims map[string]interface{}) (access.Identity, error) {
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return access.Identity{}, ErrNoSubject
	}
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	return access.Identity{UserID: sub, Email: email, Name: name}, nil
}

// Authenticate verifies raw with ver, refuses revoked tokens and returns the
// claims and the identity they carry. rev may be nil.
func Authenticate(ctx context.Context, ver Verifier, rev Revocations, raw string) (map[string]interface{}, access.Identity, error) {
	if raw == "" {
		return nil, access.Identity{}, ErrMissingToken
	}
	tok, err := ver.Verify(ctx, raw)
	if err != nil {
		return nil, access.Identity{}, err
	}
	if rev != nil {
		revoked, err := rev.IsRevoked(ctx, raw)
		if err != nil {
			return nil, access.Identity{}, err
		}
		if revoked {
			return nil, access.Identity{}, ErrRevokedToken
		}
	}
	var claims map[string]interface{}
	if err := tok.Claims(&claims); err != nil {
		return nil, access.Identity{}, err
	}
	id, err := IdentityFromClaims(claims)
	if err != nil {
		return nil, access.Identity{}, err
	}
	return claims, id, nil
}

// AuthMiddleware returns a Gin middleware that verifies Bearer tokens using the provided verifier
func AuthMiddleware(ver Verifier, rev Revocations) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing Authorization header"})
			return
		}
		raw := BearerToken(c.Request)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid Authorization header"})
			return
		}
		claims, id, err := Authenticate(c.Request.Context(), ver, rev, raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "details": err.Error()})
			return
		}
		c.Set(ctxClaims, claims)
		c.Set(ctxIdentity, id)
		c.Set(ctxToken, raw)
		c.Next()
	}
}

// GetIdentity returns the identity stored by AuthMiddleware.
func GetIdentity(c *gin.Context) (access.Identity, bool) {
	v, ok := c.Get(ctxIdentity)
	if !ok {
		return access.Identity{}, false
	}
	id, ok := v.(access.Identity)
	return id, ok
}

// GetClaims returns the raw claims stored by AuthMiddleware.
func GetClaims(c *gin.Context) map[string]interface{} {
	v, _ := c.Get(ctxClaims)
	cm, _ := v.(map[string]interface{})
	return cm
}

// GetToken returns the raw bearer token stored by AuthMiddleware.
func GetToken(c *gin.Context) string {
	return c.GetString(ctxToken)
}

var ErrNoVerifier = errors.New("no token verifier configured")

// FirstOf tries each verifier in order and accepts the first success.
type FirstOf []Verifier

func (f FirstOf) Verify(ctx context.Context, raw string) (Token, error) {
	err := ErrNoVerifier
	for _, v := range f {
		tok, verr := v.Verify(ctx, raw)
		if verr == nil {
			return tok, nil
		}
		err = verr
	}
	return nil, err
}
