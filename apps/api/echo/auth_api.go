package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/madrasa/core"
	"github.com/trezcool/madrasa/core/user"
)

const resetLinkCreatedMsg = "تم إنشاء رابط الاستعادة."

type authApi struct {
	svc      *user.Service
	conf     *core.Config
	validate *validator.Validate
}

func registerAuthAPI(g *echo.Group, authed []echo.MiddlewareFunc, limit echo.MiddlewareFunc, opts *Options) {
	api := authApi{
		svc:      opts.UserSvc,
		conf:     opts.Conf,
		validate: opts.Validate,
	}

	// un-authed endpoints
	g.POST("/login", api.login, limit)
	g.POST("/auth/forgot-password", api.forgotPassword, limit)
	g.POST("/auth/reset-password", api.resetPassword, limit)

	g.POST("/admin/change-credentials", api.changeCredentials, authed...)
}

func (api *authApi) login(ctx echo.Context) error {
	var data user.LoginRequest
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	prof, err := api.svc.Login(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	token, err := GenerateToken(GetUserClaims(prof.User, api.conf), api.conf)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Success: true, User: prof, Token: token})
}

func (api *authApi) changeCredentials(ctx echo.Context) error {
	var data user.ChangeCredentials
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	if err := api.svc.ChangeCredentials(ctx.Request().Context(), data); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, successResponse)
}

func (api *authApi) forgotPassword(ctx echo.Context) error {
	var data ForgotPasswordRequest
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if core.CleanString(data.Email) == "" {
		return user.ErrEmailNotFound
	}

	baseURL := ctx.Scheme() + "://" + ctx.Request().Host
	link, err := api.svc.RequestPasswordReset(ctx.Request().Context(), data.Email, baseURL)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ForgotPasswordResponse{Success: true, Message: resetLinkCreatedMsg, Link: link})
}

func (api *authApi) resetPassword(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		if _, ok := errors.Cause(err).(validator.ValidationErrors); ok && data.Token == "" {
			return user.ErrInvalidResetToken
		}
		return err
	}
	if err := api.svc.ResetPassword(ctx.Request().Context(), data); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, successResponse)
}
