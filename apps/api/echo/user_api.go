package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/madrasa/core"
	"github.com/trezcool/madrasa/core/user"
	"github.com/trezcool/madrasa/storage/files"
)

var errNoAvatar = core.BadRequest("No file")

type userApi struct {
	svc      *user.Service
	files    *files.Store
	validate *validator.Validate
	logger   core.Logger
}

func registerUserAPI(g *echo.Group, authed []echo.MiddlewareFunc, opts *Options) {
	api := userApi{
		svc:      opts.UserSvc,
		files:    opts.Files,
		validate: opts.Validate,
		logger:   opts.Logger,
	}

	g.GET("/avatars/:f", api.avatar)

	g.GET("/teachers/all", api.queryTeachers, authed...)
	g.POST("/teachers", api.createTeacher, authed...)
	g.GET("/students/all", api.queryStudents, authed...)
	g.POST("/students", api.createStudent, authed...)

	g.PUT("/users/:id", api.update, authed...)
	g.DELETE("/users/:id", api.destroy, authed...)
	g.POST("/users/:id/avatar", api.uploadAvatar, authed...)
}

func (api *userApi) queryTeachers(ctx echo.Context) error {
	teachers, err := api.svc.QueryTeachers(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying teachers")
	}
	return ctx.JSON(http.StatusOK, teachers)
}

func (api *userApi) createTeacher(ctx echo.Context) error {
	var data user.NewTeacher
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	usr, err := api.svc.CreateTeacher(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, CreatedResponse{ID: usr.ID})
}

func (api *userApi) queryStudents(ctx echo.Context) error {
	students, err := api.svc.QueryStudents(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *userApi) createStudent(ctx echo.Context) error {
	var data user.NewStudent
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	created, err := api.svc.CreateStudent(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, created)
}

func (api *userApi) update(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	var data user.UpdateUser
	if err = bind(ctx, &data); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	if err = api.svc.Update(ctx.Request().Context(), id, data); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, successResponse)
}

func (api *userApi) destroy(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting user")
	}
	return ctx.JSON(http.StatusOK, successResponse)
}

func (api *userApi) uploadAvatar(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	if id, err = contextActor(ctx, id); err != nil {
		return err
	}
	fh, err := formFile(ctx, errNoAvatar)
	if err != nil {
		return err
	}

	c := ctx.Request().Context()
	usr, err := api.svc.GetByID(c, id)
	if err != nil {
		return err
	}
	stored, err := api.files.SaveAvatar(fh)
	if err != nil {
		return err
	}
	updated, err := api.svc.SetAvatar(c, id, stored.Name)
	if err != nil {
		_ = api.files.Remove(files.Avatars, stored.Name)
		return err
	}

	// the previous avatar may be a stored thumbnail or a plain initial
	if usr.Avatar.Valid {
		if err = api.files.Remove(files.Avatars, usr.Avatar.String); err != nil && errors.Cause(err) != files.ErrNotFound {
			api.logger.Warn("removing previous avatar", err)
		}
	}
	return ctx.JSON(http.StatusOK, updated)
}

func (api *userApi) avatar(ctx echo.Context) error {
	p, err := api.files.Path(files.Avatars, ctx.Param("f"))
	if err != nil {
		return err
	}
	return ctx.File(p)
}
