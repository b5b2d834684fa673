package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/madrasa/core/notification"
)

type notificationApi struct {
	svc *notification.Service
}

func registerNotificationAPI(g *echo.Group, authed []echo.MiddlewareFunc, opts *Options) {
	api := notificationApi{svc: opts.NotificationSvc}

	g.GET("/notifications/:uid", api.recent, authed...)
	g.POST("/notifications/read/:id", api.markRead, authed...)
	g.POST("/notifications/clear/:uid", api.clear, authed...)
}

func (api *notificationApi) recent(ctx echo.Context) error {
	uid, err := paramID(ctx, "uid")
	if err != nil {
		return err
	}
	if uid, err = contextActor(ctx, uid); err != nil {
		return err
	}
	notes, err := api.svc.Recent(ctx.Request().Context(), uid)
	if err != nil {
		return errors.Wrap(err, "querying notifications")
	}
	return ctx.JSON(http.StatusOK, notes)
}

func (api *notificationApi) markRead(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	if err = api.svc.MarkRead(ctx.Request().Context(), id); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, successResponse)
}

func (api *notificationApi) clear(ctx echo.Context) error {
	uid, err := paramID(ctx, "uid")
	if err != nil {
		return err
	}
	if uid, err = contextActor(ctx, uid); err != nil {
		return err
	}
	if err = api.svc.Clear(ctx.Request().Context(), uid); err != nil {
		return errors.Wrap(err, "clearing notifications")
	}
	return ctx.JSON(http.StatusOK, successResponse)
}
