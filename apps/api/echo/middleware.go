package echoapi

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/madrasa-app/madrasa/core/account"
)

// currentAccountMiddleware loads the token's account and rejects tokens of unknown or deactivated accounts,
// and tokens issued before the last password change.
func currentAccountMiddleware(svc *account.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			acc, err := svc.GetByID(ctx.Request().Context(), claims.Subject)
			if err != nil {
				if errors.Cause(err) == account.ErrNotFound {
					return errUnauthorized
				}
				return errors.Wrap(err, "finding account by ID")
			}
			if !acc.IsActive {
				return errHttpAccountDeactivated
			}
			if acc.PasswordChangedAfter(time.Unix(claims.IssuedAt, 0)) {
				return errPasswordChanged
			}
			ctx.Set(contextAccountKey, acc)
			return next(ctx)
		}
	}
}

// restrictTo only lets accounts holding one of roles through. Must run after currentAccountMiddleware.
func restrictTo(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			acc, err := getContextAccount(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context account")
			}
			if !acc.HasRole(roles...) {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}

// rateLimitMiddleware allows limit requests per window and client IP. A limit <= 0 disables it.
func rateLimitMiddleware(limit int, window time.Duration) echo.MiddlewareFunc {
	if limit <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return echo.WrapMiddleware(httprate.Limit(
		limit, window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSONCharsetUTF8)
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"too many requests, try again later"}`))
		}),
	))
}
