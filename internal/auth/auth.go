// Package auth carries the caller's principal in a signed JWT. Identity
// issuance is external; IssueToken exists for tests and local tooling.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	"lifecycle-service/internal/apperr"
	"lifecycle-service/internal/entity"
)

const contextKey = "user"

type Claims struct {
	UserID string      `json:"user_id"`
	Role   entity.Role `json:"role"`
	jwt.RegisteredClaims
}

// Validate is called by the jwt parser after the registered claims checks.
func (c *Claims) Validate() error {
	if c.UserID == "" {
		return errors.New("missing user_id claim")
	}
	if c.Role != entity.RoleCustomer && c.Role != entity.RoleAdmin {
		return fmt.Errorf("unknown role %q", c.Role)
	}
	return nil
}

func (c *Claims) Principal() entity.Principal {
	return entity.Principal{UserID: c.UserID, Role: c.Role}
}

func IssueToken(secret []byte, p entity.Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: p.UserID,
		Role:   p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	tkn := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tkn.SignedString(secret)
}

func ParseToken(secret []byte, token string) (entity.Principal, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return entity.Principal{}, apperr.Wrap(apperr.KindUnauthorized, "parse token", err)
	}
	return claims.Principal(), nil
}

// PeekPrincipal reads the claims without checking the signature. Clients use
// it to learn who they are; the service still verifies every request.
func PeekPrincipal(token string) (entity.Principal, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return entity.Principal{}, apperr.Wrap(apperr.KindUnauthorized, "peek token", err)
	}
	if err := claims.Validate(); err != nil {
		return entity.Principal{}, apperr.Wrap(apperr.KindUnauthorized, "peek token", err)
	}
	return claims.Principal(), nil
}

// Middleware rejects requests without a valid bearer token and stores the
// parsed token in the echo context.
func Middleware(secret []byte) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey:    secret,
		SigningMethod: jwt.SigningMethodHS256.Alg(),
		ContextKey:    contextKey,
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return &Claims{}
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error":   string(apperr.KindUnauthorized),
				"message": "missing or invalid token",
			})
		},
	})
}

// PrincipalFrom returns the principal stored by Middleware.
func PrincipalFrom(c echo.Context) (entity.Principal, error) {
	token, ok := c.Get(contextKey).(*jwt.Token)
	if !ok {
		return entity.Principal{}, apperr.New(apperr.KindUnauthorized, "principal", "no token in context")
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return entity.Principal{}, apperr.New(apperr.KindUnauthorized, "principal", "unexpected claims")
	}
	return claims.Principal(), nil
}

// RequireAdmin allows only administrator principals through.
func RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, err := PrincipalFrom(c)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error":   string(apperr.KindUnauthorized),
				"message": apperr.MessageOf(err),
			})
		}
		if !p.IsAdmin() {
			return c.JSON(http.StatusForbidden, map[string]string{
				"error":   string(apperr.KindForbidden),
				"message": "administrator role required",
			})
		}
		return next(c)
	}
}
