// Package runtime holds small cross-cutting helpers shared by cmd/oedr's
// HTTP-facing subcommands: JWT issuance and the Echo auth middleware that
// protects the run-submission and status-polling endpoints.
package runtime

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// LoadJWTSecret resolves the shared bearer-token secret the server signs
// and verifies with. There is no per-user secret: oedr serve protects a
// single operator surface, not a multi-tenant one.
func LoadJWTSecret(configured string) ([]byte, error) {
	if configured == "" {
		return nil, errors.New("jwt secret not configured (server.jwt_secret)")
	}
	return []byte(configured), nil
}

// SignJWT issues a signed operator token with the given subject and TTL.
func SignJWT(subject string, secret []byte, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

type subjectKey struct{}

// SubjectFromContext returns the JWT subject stored by EchoAuthMiddleware.
func SubjectFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(subjectKey{}).(string)
	return v, ok
}

// EchoAuthMiddleware rejects requests without a valid Bearer token signed
// with secret, and stashes the token subject in the request context.
func EchoAuthMiddleware(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tok := extractToken(c)
			if tok == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}
			parsed, err := jwt.Parse(tok, func(t *jwt.Token) (interface{}, error) { return secret, nil })
			if err != nil || !parsed.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			claims, ok := parsed.Claims.(jwt.MapClaims)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token claims")
			}
			sub, _ := claims["sub"].(string)
			reqCtx := context.WithValue(c.Request().Context(), subjectKey{}, sub)
			c.SetRequest(c.Request().WithContext(reqCtx))
			return next(c)
		}
	}
}

func extractToken(c echo.Context) string {
	h := c.Request().Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}
