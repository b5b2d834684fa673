package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/madrasa/core"
	"github.com/trezcool/madrasa/core/chat"
	"github.com/trezcool/madrasa/storage/files"
)

const wrongGroupPasswordMsg = "Wrong password"

type chatApi struct {
	svc      *chat.Service
	files    *files.Store
	validate *validator.Validate
	logger   core.Logger
}

func registerChatAPI(g *echo.Group, authed []echo.MiddlewareFunc, opts *Options) {
	api := chatApi{
		svc:      opts.ChatSvc,
		files:    opts.Files,
		validate: opts.Validate,
		logger:   opts.Logger,
	}

	g.GET("/chat/files/:f", api.file)

	g.GET("/chat-groups", api.queryGroups, authed...)
	g.POST("/chat-groups", api.createGroup, authed...)
	g.PUT("/chat-groups/:id", api.updateGroup, authed...)
	g.POST("/chat-groups/delete", api.destroyGroup, append(authed, stepUpMiddleware(opts.UserSvc, wrongGroupPasswordMsg))...)
	g.GET("/chat-groups/:id/details", api.groupDetails, authed...)
	g.GET("/chat-groups/:id/members", api.groupMembers, authed...)
	g.GET("/chat-groups/:id/messages", api.groupMessages, authed...)
	g.POST("/chat-groups/:id/settings", api.updateSettings, authed...)
	g.GET("/user/:id/chat-groups", api.userGroups, authed...)

	g.GET("/teacher/:id/linked-students", api.teacherContacts, authed...)
	g.GET("/student/:id/linked-teachers", api.studentContacts, authed...)
	g.GET("/conversation/:u1/:u2", api.conversation, authed...)
	g.POST("/conversation/mark-read", api.markRead, authed...)
	g.POST("/message/send", api.send, authed...)
	g.POST("/message/upload", api.upload, authed...)
}

// Groups

func (api *chatApi) queryGroups(ctx echo.Context) error {
	groups, err := api.svc.QueryGroups(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying chat groups")
	}
	return ctx.JSON(http.StatusOK, groups)
}

func (api *chatApi) createGroup(ctx echo.Context) error {
	var data chat.GroupData
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	grp, err := api.svc.CreateGroup(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"success": true, "id": grp.ID})
}

func (api *chatApi) updateGroup(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	var data chat.GroupData
	if err = bind(ctx, &data); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	if err = api.svc.UpdateGroup(ctx.Request().Context(), id, data); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, successResponse)
}

func (api *chatApi) destroyGroup(ctx echo.Context) error {
	var data IDRequest
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if data.ID == 0 {
		return errInvalidRequest
	}
	if err := api.svc.DeleteGroup(ctx.Request().Context(), data.ID); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, successResponse)
}

func (api *chatApi) groupDetails(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	details, err := api.svc.GroupDetails(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, details)
}

func (api *chatApi) groupMembers(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	members, err := api.svc.ListGroupMembers(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "listing group members")
	}
	return ctx.JSON(http.StatusOK, members)
}

func (api *chatApi) groupMessages(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	msgs, err := api.svc.GroupMessages(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "querying group messages")
	}
	return ctx.JSON(http.StatusOK, msgs)
}

func (api *chatApi) updateSettings(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	var data chat.Settings
	if err = bind(ctx, &data); err != nil {
		return err
	}
	if data.UserID, err = contextActor(ctx, data.UserID); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	if err = api.svc.UpdateSettings(ctx.Request().Context(), id, data); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, successResponse)
}

func (api *chatApi) userGroups(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	if id, err = contextActor(ctx, id); err != nil {
		return err
	}
	groups, err := api.svc.UserGroups(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "querying user groups")
	}
	return ctx.JSON(http.StatusOK, groups)
}

// Contacts & conversations

func (api *chatApi) teacherContacts(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	if id, err = contextActor(ctx, id); err != nil {
		return err
	}
	contacts, err := api.svc.TeacherContacts(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "querying teacher contacts")
	}
	return ctx.JSON(http.StatusOK, contacts)
}

func (api *chatApi) studentContacts(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	if id, err = contextActor(ctx, id); err != nil {
		return err
	}
	contacts, err := api.svc.StudentContacts(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "querying student contacts")
	}
	return ctx.JSON(http.StatusOK, contacts)
}

func (api *chatApi) conversation(ctx echo.Context) error {
	u1, err := paramID(ctx, "u1")
	if err != nil {
		return err
	}
	u2, err := paramID(ctx, "u2")
	if err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	if !claims.IsAdmin() && claims.UserID != u1 && claims.UserID != u2 {
		return errHttpForbidden
	}
	msgs, err := api.svc.Conversation(ctx.Request().Context(), u1, u2)
	if err != nil {
		return errors.Wrap(err, "querying conversation")
	}
	return ctx.JSON(http.StatusOK, msgs)
}

func (api *chatApi) markRead(ctx echo.Context) error {
	var data chat.MarkRead
	if err := bind(ctx, &data); err != nil {
		return err
	}
	var err error
	if data.ReaderID, err = contextActor(ctx, data.ReaderID); err != nil {
		return err
	}
	if err = api.svc.MarkRead(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "marking messages read")
	}
	return ctx.JSON(http.StatusOK, successResponse)
}

// Messages

func (api *chatApi) send(ctx echo.Context) error {
	var data SendMessageRequest
	if err := bind(ctx, &data); err != nil {
		return err
	}
	sender, err := contextActor(ctx, data.SenderID)
	if err != nil {
		return err
	}
	msg, err := api.svc.Send(ctx.Request().Context(), chat.NewMessage{
		SenderID:   sender,
		ReceiverID: data.ReceiverID,
		GroupID:    data.GroupID,
		Text:       data.MessageText,
	})
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"success": true, "id": msg.ID})
}

func (api *chatApi) upload(ctx echo.Context) error {
	sender, err := contextActor(ctx, formInt(ctx, "sender_id").Int)
	if err != nil {
		return err
	}
	fh, err := formFile(ctx, chat.ErrNoFile)
	if err != nil {
		return err
	}
	stored, err := api.files.Save(files.Chat, fh)
	if err != nil {
		return err
	}

	msg, err := api.svc.Send(ctx.Request().Context(), chat.NewMessage{
		SenderID:   sender,
		ReceiverID: formInt(ctx, "receiver_id"),
		GroupID:    formInt(ctx, "group_id"),
		File:       &chat.Attachment{Path: stored.Name, Name: stored.OriginalName, Size: stored.Size},
	})
	if err != nil {
		if msg.ID == 0 {
			if rmErr := api.files.Remove(files.Chat, stored.Name); rmErr != nil {
				api.logger.Warn("removing rejected upload", rmErr)
			}
		}
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"success": true, "id": msg.ID})
}

func (api *chatApi) file(ctx echo.Context) error {
	p, err := api.files.Path(files.Chat, ctx.Param("f"))
	if err != nil {
		return err
	}
	return ctx.File(p)
}
