package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/madrasa-app/madrasa/core"
	"github.com/madrasa-app/madrasa/core/account"
)

var (
	errUnauthorized           = echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	errPasswordChanged        = echo.NewHTTPError(http.StatusUnauthorized, "password recently changed, log in again")
	errHttpAccountDeactivated = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired         = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden          = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errCannotDeactivateSelf   = echo.NewHTTPError(http.StatusForbidden, "you cannot deactivate your own account")

	// domainErrCodes maps the account errors to their HTTP status.
	domainErrCodes = map[error]int{
		account.ErrNotFound:             http.StatusNotFound,
		account.ErrBadCredential:        http.StatusBadRequest,
		account.ErrExpired:              http.StatusGone,
		account.ErrTooManyAttempts:      http.StatusTooManyRequests,
		account.ErrVersionConflict:      http.StatusConflict,
		account.ErrAuthenticationFailed: http.StatusBadRequest,
		account.ErrAccountDeactivated:   http.StatusForbidden,
		account.ErrEmailExists:          http.StatusBadRequest,
		account.ErrUsernameExists:       http.StatusBadRequest,
	}
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		if c, ok := domainErrCodes[cause]; ok {
			code, message = c, cause.Error()
		} else {
			switch origErr := cause.(type) {
			case *echo.HTTPError:
				if origErr == middleware.ErrJWTMissing {
					code = http.StatusUnauthorized
					message = origErr.Message
					break
				}
				if origErr.Internal != nil {
					if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
						origErr = herr
					}
				}
				code = origErr.Code
				message = origErr.Message
			case validator.ValidationErrors:
				fldErrs := make(map[string]string, len(origErr))
				for _, vErr := range origErr {
					fldErrs[vErr.Field()] = vErr.Translate(translator)
				}
				code = http.StatusBadRequest
				message = fldErrs
			case *core.ValidationError:
				if origErr.Fields != nil {
					message = origErr.FieldMap()
				} else {
					message = origErr.Error()
				}
				code = http.StatusBadRequest
			default: // any other error is a server error
				code = http.StatusInternalServerError
				msg := http.StatusText(http.StatusInternalServerError)
				message = msg

				args := []interface{}{errors.Wrap(err, msg), ctx.Request()}
				if acc, aErr := getContextAccount(ctx); aErr == nil {
					args = append(args, acc)
				}
				logger.Error(msg, args...)

				// shutting down...
				if core.IsShutdown(err) {
					signalShutdown()
				}
			}
		}

		if ctx.Echo().Debug && code == http.StatusInternalServerError {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				logger.Error("sending error response", err)
			}
		}
	}
}
