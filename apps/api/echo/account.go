package echoapi

import (
	"net/http"
	"strconv"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/madrasa-app/madrasa/core"
	"github.com/madrasa-app/madrasa/core/account"
)

type accountApi struct {
	svc        *account.Service
	auth       *authenticator
	validate   *validator.Validate
	translator ut.Translator
}

func registerAccountAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, deps ServerDeps) {
	api := accountApi{
		svc:        deps.AccountSvc,
		auth:       auth,
		validate:   deps.Validate,
		translator: deps.Translator,
	}
	otpConf := deps.Conf.OTP
	currentAccount := currentAccountMiddleware(api.svc)

	// un-authed endpoints
	ag := g.Group("/auth")
	ag.POST("/register", api.register)
	ag.POST("/login", api.login)
	ag.POST("/logout", api.logout)
	ag.POST("/send-otp", api.sendOTP, rateLimitMiddleware(otpConf.RateLimit, otpConf.RateWindow))
	ag.POST("/verify-otp", api.verifyOTP, rateLimitMiddleware(otpConf.RateLimit, otpConf.RateWindow))
	ag.POST("/reset-password-after-otp", api.resetPasswordAfterOTP, rateLimitMiddleware(otpConf.RateLimit, otpConf.RateWindow))

	// authed endpoints
	ag.POST("/token-refresh", api.refreshToken, jwt, currentAccount)

	acg := g.Group("/accounts", jwt, currentAccount)
	acg.GET("/me", api.me)
	acg.PUT("/me", api.updateMe)
	acg.GET("", api.query, restrictTo(account.RoleAdmin))
	acg.DELETE("/:id", api.deactivate, restrictTo(account.RoleAdmin))
}

func (api *accountApi) validateStruct(data interface{}) error {
	return api.validate.Struct(data)
}

// Handlers

func (api *accountApi) register(ctx echo.Context) error {
	var data account.NewAccount
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAccount")
	}
	data.Role = account.RoleStudent
	data.Clean()
	if err := api.validateStruct(data); err != nil {
		return err
	}
	if err := api.svc.CheckUniqueness(ctx.Request().Context(), data.Username, data.Email); err != nil {
		return err
	}

	acc, res, err := api.svc.Register(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "registering account")
	}
	return ctx.JSON(http.StatusCreated, RegisterResponse{Account: acc, DeliveredVia: res.DeliveredVia})
}

func (api *accountApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := api.validateStruct(data); err != nil {
		return err
	}

	acc, err := api.svc.Authenticate(ctx.Request().Context(), data.Email, data.Password)
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}
	token, err := GenerateToken(api.auth.conf, GetAccountClaims(api.auth.conf, acc))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}

	ctx.SetCookie(api.auth.tokenCookie(token))
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token, Account: acc})
}

func (api *accountApi) logout(ctx echo.Context) error {
	ctx.SetCookie(api.auth.expiredCookie())
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "logged out"})
}

func (api *accountApi) sendOTP(ctx echo.Context) error {
	var data SendOTPRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SendOTPRequest")
	}
	if err := api.validateStruct(data); err != nil {
		return err
	}

	res, err := api.svc.IssueOTP(ctx.Request().Context(), data.Email)
	if err != nil {
		return errors.Wrap(err, "issuing otp")
	}
	return ctx.JSON(http.StatusOK, SendOTPResponse{
		Success:      "a verification code was sent to your email address",
		DeliveredVia: res.DeliveredVia,
	})
}

func (api *accountApi) verifyOTP(ctx echo.Context) error {
	var data VerifyOTPRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to VerifyOTPRequest")
	}
	if err := api.validateStruct(data); err != nil {
		return err
	}

	acc, err := api.svc.VerifyOTP(ctx.Request().Context(), data.Email, data.Code)
	if err != nil {
		return errors.Wrap(err, "verifying otp")
	}
	return ctx.JSON(http.StatusOK, VerifyOTPResponse{Verified: true, AccountID: acc.ID})
}

func (api *accountApi) resetPasswordAfterOTP(ctx echo.Context) error {
	var data account.OTPPasswordReset
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to OTPPasswordReset")
	}
	if err := api.validateStruct(data); err != nil {
		return err
	}

	if err := api.svc.ResetPasswordWithOTP(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "your password has been reset, you can now log in"})
}

func (api *accountApi) refreshToken(ctx echo.Context) error {
	token, err := api.auth.refreshToken(ctx)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	ctx.SetCookie(api.auth.tokenCookie(token))
	return ctx.JSON(http.StatusOK, TokenResponse{Token: token})
}

func (api *accountApi) me(ctx echo.Context) error {
	acc, err := getContextAccount(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context account")
	}
	return ctx.JSON(http.StatusOK, acc)
}

func (api *accountApi) updateMe(ctx echo.Context) error {
	acc, err := getContextAccount(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context account")
	}
	var data account.UpdateAccount
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateAccount")
	}
	data.Clean()
	if err := api.validateStruct(data); err != nil {
		return err
	}

	acc, err = api.svc.Update(ctx.Request().Context(), acc.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating account")
	}
	resp := UpdateAccountResponse{Account: acc}
	if data.Password != "" {
		// the current token predates the new password
		if resp.Token, err = GenerateToken(api.auth.conf, GetAccountClaims(api.auth.conf, acc)); err != nil {
			return errors.Wrap(err, "generating token")
		}
		ctx.SetCookie(api.auth.tokenCookie(resp.Token))
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *accountApi) deactivate(ctx echo.Context) error {
	acc, err := getContextAccount(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context account")
	}
	id := ctx.Param("id")
	if id == acc.ID {
		return errCannotDeactivateSelf
	}

	if _, err := api.svc.Deactivate(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deactivating account")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *accountApi) query(ctx echo.Context) error {
	filter, err := bindQueryFilter(ctx)
	if err != nil {
		return err
	}
	accounts, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying accounts")
	}
	return ctx.JSON(http.StatusOK, accounts)
}

func bindQueryFilter(ctx echo.Context) (account.QueryFilter, error) {
	params := ctx.QueryParams()
	filter := account.QueryFilter{
		Search: params.Get("search"),
		Roles:  params["role"],
	}
	if v := params.Get("is_active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			return account.QueryFilter{}, core.NewValidationError(err,
				core.FieldError{Field: "is_active", Error: "must be a boolean"})
		}
		filter.IsActive = &active
	}
	return filter, nil
}
