// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// RequireAdmin and RequireCitizen guard routes with Bearer access tokens
// issued by auth.TokenManager. Both kinds of account share the signing key,
// so each guard also checks the token's role.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/civic-complaints-backend/internal/auth"
)

const (
	adminIDKey       = "adminID"
	adminUsernameKey = "adminUsername"
	adminRoleKey     = "adminRole"

	citizenIDKey    = "citizenID"
	citizenEmailKey = "citizenEmail"
)

// TokenParser validates a raw access token. *auth.TokenManager implements it.
type TokenParser interface {
	Parse(raw string) (*auth.Claims, error)
}

// RequireAdmin rejects requests without a valid Bearer token with 401,
// citizen tokens with 403, and otherwise stores the admin's identity in the
// Gin context.
func RequireAdmin(tokens TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := authenticate(c, tokens, "admin")
		if !ok {
			return
		}
		if claims.Role == auth.RoleCitizen {
			forbidden(c, "operator access required")
			return
		}
		c.Set(adminIDKey, claims.Subject)
		c.Set(adminUsernameKey, claims.Username)
		c.Set(adminRoleKey, claims.Role)
		c.Next()
	}
}

// RequireCitizen admits only citizen tokens and stores the account ID and
// e-mail in the Gin context.
func RequireCitizen(tokens TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := authenticate(c, tokens, "citizen")
		if !ok {
			return
		}
		if claims.Role != auth.RoleCitizen {
			forbidden(c, "citizen account required")
			return
		}
		setCitizen(c, claims)
		c.Next()
	}
}

// OptionalCitizen lets anonymous requests through. When an Authorization
// header is present it must carry a valid citizen token.
func OptionalCitizen(tokens TokenParser) gin.HandlerFunc {
	require := RequireCitizen(tokens)
	return func(c *gin.Context) {
		if strings.TrimSpace(c.GetHeader("Authorization")) == "" {
			c.Next()
			return
		}
		require(c)
	}
}

// AdminFrom returns the authenticated admin's ID and username.
func AdminFrom(c *gin.Context) (id, username string) {
	return c.GetString(adminIDKey), c.GetString(adminUsernameKey)
}

// CitizenFrom returns the signed-in citizen's account ID and e-mail. ok is
// false for anonymous requests.
func CitizenFrom(c *gin.Context) (id, email string, ok bool) {
	id = c.GetString(citizenIDKey)
	return id, c.GetString(citizenEmailKey), id != ""
}

func setCitizen(c *gin.Context, claims *auth.Claims) {
	c.Set(citizenIDKey, claims.Subject)
	c.Set(citizenEmailKey, claims.Username)
}

func authenticate(c *gin.Context, tokens TokenParser, realm string) (*auth.Claims, bool) {
	raw, ok := bearer(c.GetHeader("Authorization"))
	if !ok {
		unauthorized(c, realm, "missing bearer token")
		return nil, false
	}
	claims, err := tokens.Parse(raw)
	if err != nil {
		unauthorized(c, realm, "invalid or expired token")
		return nil, false
	}
	return claims, true
}

func bearer(h string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(h), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(c *gin.Context, realm, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="`+realm+`"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": RequestIDFrom(c),
		"code":       "unauthorized",
		"message":    msg,
	})
}

func forbidden(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
		"request_id": RequestIDFrom(c),
		"code":       "forbidden",
		"message":    msg,
	})
}
