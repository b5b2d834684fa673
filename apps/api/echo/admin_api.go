package echoapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/madrasa/core"
	"github.com/trezcool/madrasa/core/chat"
	"github.com/trezcool/madrasa/core/stats"
	"github.com/trezcool/madrasa/core/user"
	"github.com/trezcool/madrasa/storage/files"
)

const wrongMessagePasswordMsg = "Password"

var errInvalidRecipients = core.BadRequest("invalid recipients")

type adminApi struct {
	userSvc  *user.Service
	chatSvc  *chat.Service
	statsSvc *stats.Service
	files    *files.Store
	logger   core.Logger
	// deleters maps the bulk-delete types to their deletion
	deleters map[string]func(context.Context, ...int) error
}

func registerAdminAPI(g *echo.Group, authed []echo.MiddlewareFunc, opts *Options) {
	api := adminApi{
		userSvc:  opts.UserSvc,
		chatSvc:  opts.ChatSvc,
		statsSvc: opts.StatsSvc,
		files:    opts.Files,
		logger:   opts.Logger,
		deleters: map[string]func(context.Context, ...int) error{
			user.TypeTeacher: opts.UserSvc.Delete,
			user.TypeStudent: opts.UserSvc.Delete,
			"level":          opts.DirectorySvc.DeleteLevels,
			"group":          opts.DirectorySvc.DeleteGroups,
			"subject":        opts.DirectorySvc.DeleteSubjects,
			"lesson":         opts.LessonSvc.Delete,
			"chat_group":     opts.ChatSvc.DeleteGroups,
		},
	}

	g.POST("/admin/broadcast", api.broadcast, authed...)
	g.POST("/admin/message/delete", api.destroyMessage, append(authed, stepUpMiddleware(opts.UserSvc, wrongMessagePasswordMsg))...)
	g.GET("/admin/stats", api.stats, authed...)
	g.GET("/admin/usage-stats", api.usageStats, authed...)
	g.POST("/admin/reset-stats", api.resetStats, authed...)
	g.GET("/admin/conversations", api.conversations, authed...)
	g.GET("/admin/inbox-summary", api.inboxSummary, authed...)
	g.POST("/bulk-delete", api.bulkDelete, authed...)
}

// broadcast reads a multipart form: recipients (a JSON array of user ids), message_text and an optional file.
func (api *adminApi) broadcast(ctx echo.Context) error {
	sender, err := contextActor(ctx, formInt(ctx, "sender_id").Int)
	if err != nil {
		return err
	}
	var recipients []int
	if err = json.Unmarshal([]byte(ctx.FormValue("recipients")), &recipients); err != nil {
		return errInvalidRecipients
	}

	b := chat.Broadcast{SenderID: sender, Recipients: recipients, Text: ctx.FormValue("message_text")}
	var stored files.Stored
	if fh, err := formFile(ctx, nil); err != nil {
		return err
	} else if fh != nil {
		if stored, err = api.files.Save(files.Chat, fh); err != nil {
			return err
		}
		b.File = &chat.Attachment{Path: stored.Name, Name: stored.OriginalName, Size: stored.Size}
	}

	if err = api.chatSvc.Broadcast(ctx.Request().Context(), b); err != nil {
		if b.File != nil {
			if rmErr := api.files.Remove(files.Chat, stored.Name); rmErr != nil {
				api.logger.Warn("removing broadcast file", rmErr)
			}
		}
		return err
	}
	return ctx.JSON(http.StatusOK, successResponse)
}

func (api *adminApi) destroyMessage(ctx echo.Context) error {
	var data IDRequest
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if data.ID == 0 {
		return errInvalidRequest
	}
	if err := api.chatSvc.DeleteMessage(ctx.Request().Context(), data.ID); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, successResponse)
}

func (api *adminApi) stats(ctx echo.Context) error {
	s, err := api.statsSvc.Stats(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "computing stats")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *adminApi) usageStats(ctx echo.Context) error {
	s, err := api.userSvc.UsageStats(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying usage stats")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *adminApi) resetStats(ctx echo.Context) error {
	var data ResetStatsRequest
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := api.userSvc.ResetStats(ctx.Request().Context(), data.Code); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, successResponse)
}

func (api *adminApi) conversations(ctx echo.Context) error {
	convs, err := api.chatSvc.Conversations(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying conversations")
	}
	return ctx.JSON(http.StatusOK, convs)
}

func (api *adminApi) inboxSummary(ctx echo.Context) error {
	entries, err := api.chatSvc.InboxSummary(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "summarizing inbox")
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (api *adminApi) bulkDelete(ctx echo.Context) error {
	var data BulkDeleteRequest
	if err := bind(ctx, &data); err != nil {
		return err
	}
	del, ok := api.deleters[data.Type]
	ids := core.UniqueIDs(data.IDs)
	if !ok || len(ids) == 0 {
		return errInvalidRequest
	}
	if err := del(ctx.Request().Context(), ids...); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, successResponse)
}
