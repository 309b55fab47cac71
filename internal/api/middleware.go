package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"lifecycle-service/internal/apperr"
	"lifecycle-service/internal/auth"
)

const IdempotencyHeader = "Idempotent-Key"

type KeyStore interface {
	Claim(ctx context.Context, key string) error
	Release(ctx context.Context, key string) error
}

// Idempotent rejects a mutating request whose Idempotent-Key was already
// seen for the same user. Keys of requests that failed are released so the
// request can be sent again.
func Idempotent(store KeyStore) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.Request().Header.Get(IdempotencyHeader)
			if key == "" {
				return next(c)
			}
			p, err := auth.PrincipalFrom(c)
			if err != nil {
				return respondError(c, err)
			}
			key = p.UserID + ":" + key
			ctx := c.Request().Context()

			if err := store.Claim(ctx, key); err != nil {
				if !errors.Is(err, apperr.ErrDuplicateRequest) {
					err = apperr.Wrap(apperr.KindTransportUnavailable, "idempotency", err)
				}
				return respondError(c, err)
			}

			err = next(c)
			if err != nil || c.Response().Status >= http.StatusBadRequest {
				if rerr := store.Release(context.WithoutCancel(ctx), key); rerr != nil {
					logger.Error().Err(rerr).Str("key", key).Msg("Error releasing idempotent key")
				}
			}
			return err
		}
	}
}

// RateLimiter limits each client address to limit requests per second.
func RateLimiter(limit float64, burst int) echo.MiddlewareFunc {
	limiterConfig := middleware.RateLimiterConfig{
		Skipper: middleware.DefaultSkipper,
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(limit),
				Burst:     burst,
				ExpiresIn: 3 * time.Minute,
			}),
		IdentifierExtractor: func(context echo.Context) (string, error) {
			return context.RealIP(), nil
		},
		ErrorHandler: func(context echo.Context, err error) error {
			return context.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate_limited", Message: "rate limit exceeded"})
		},
		DenyHandler: func(context echo.Context, identifier string, err error) error {
			return context.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate_limited", Message: "rate limit exceeded"})
		},
	}
	return middleware.RateLimiterWithConfig(limiterConfig)
}
