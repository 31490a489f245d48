// Package auth authenticates API callers from HS256 bearer tokens.
package auth

import (
	"fmt"
	"strings"
	"time"

	commonerrors "github.com/Aidin1998/teammatch/common/errors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// UserIDKey is the gin context key holding the authenticated user id
const UserIDKey = "userID"

type AuthorizationConfig struct {
	Secret []byte
	Issuer string
}

// SignToken issues a token for userID valid for ttl
func SignToken(cfg AuthorizationConfig, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.Secret)
}

// ParseToken validates the token and returns its subject
func ParseToken(cfg AuthorizationConfig, raw string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(30 * time.Second),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	var claims jwt.RegisteredClaims
	if _, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return cfg.Secret, nil
	}, opts...); err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return claims.Subject, nil
}

// Middleware requires a valid bearer token and stores its subject under UserIDKey.
// Browsers cannot set headers on websocket upgrades, so an access_token query
// parameter is accepted as well.
func Middleware(logger *zap.Logger, cfg AuthorizationConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
		if raw == "" {
			raw = c.Query("access_token")
		}
		if raw == "" {
			commonerrors.Unauthorized(c, "missing bearer token")
			return
		}

		userID, err := ParseToken(cfg, raw)
		if err != nil {
			logger.Debug("Rejected token", zap.Error(err), zap.String("path", c.Request.URL.Path))
			commonerrors.Unauthorized(c, "invalid token")
			return
		}
		c.Set(UserIDKey, userID)
		c.Next()
	}
}

// UserID returns the authenticated user id set by Middleware
func UserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}
