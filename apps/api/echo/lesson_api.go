package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/madrasa/core"
	"github.com/trezcool/madrasa/core/lesson"
	"github.com/trezcool/madrasa/core/user"
	"github.com/trezcool/madrasa/storage/files"
)

type lessonApi struct {
	svc      *lesson.Service
	files    *files.Store
	validate *validator.Validate
	logger   core.Logger
}

func registerLessonAPI(g *echo.Group, authed []echo.MiddlewareFunc, opts *Options) {
	api := lessonApi{
		svc:      opts.LessonSvc,
		files:    opts.Files,
		validate: opts.Validate,
		logger:   opts.Logger,
	}

	g.GET("/lessons/files/:f", api.file)

	g.GET("/lessons", api.query, authed...)
	g.POST("/lessons", api.create, authed...)
	g.DELETE("/lessons/:id", api.destroy, authed...)
	g.GET("/teachers/:id/lessons", api.teacherLessons, authed...)
}

// create reads a multipart form: the lesson fields, target_all ("true") with the comma separated
// target_levels, target_groups & target_students lists, and the lesson file.
func (api *lessonApi) create(ctx echo.Context) error {
	teacherID, err := contextActor(ctx, formInt(ctx, "teacher_id").Int)
	if err != nil {
		return err
	}
	data := lesson.NewLesson{
		TeacherID:   teacherID,
		SubjectID:   formInt(ctx, "subject_id"),
		Title:       ctx.FormValue("title"),
		Description: ctx.FormValue("description"),
		Target: lesson.Target{
			All:      ctx.FormValue("target_all") == "true",
			Levels:   core.ParseIDs(ctx.FormValue("target_levels")),
			Groups:   core.ParseIDs(ctx.FormValue("target_groups")),
			Students: core.ParseIDs(ctx.FormValue("target_students")),
		},
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	fh, err := formFile(ctx, lesson.ErrNoFile)
	if err != nil {
		return err
	}
	stored, err := api.files.Save(files.Lessons, fh)
	if err != nil {
		return err
	}
	data.FilePath = stored.Name

	l, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		if l.ID == 0 {
			if rmErr := api.files.Remove(files.Lessons, stored.Name); rmErr != nil {
				api.logger.Warn("removing lesson file", rmErr)
			}
		}
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"success": true, "id": l.ID})
}

// query lists every lesson, or only the ones visible to the student given by
// user_id, user_group & user_level. Students always get their own view.
func (api *lessonApi) query(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	var viewer *lesson.Viewer
	userID := queryInt(ctx, "user_id")
	if userID != 0 || claims.Type == user.TypeStudent {
		if userID, err = contextActor(ctx, userID); err != nil {
			return err
		}
		viewer = &lesson.Viewer{
			UserID:  userID,
			GroupID: queryInt(ctx, "user_group"),
			LevelID: queryInt(ctx, "user_level"),
		}
	}

	lessons, err := api.svc.List(ctx.Request().Context(), viewer)
	if err != nil {
		return errors.Wrap(err, "querying lessons")
	}
	return ctx.JSON(http.StatusOK, lessons)
}

func (api *lessonApi) destroy(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	if claims.IsAdmin() {
		err = api.svc.Delete(ctx.Request().Context(), id)
	} else {
		err = api.svc.DeleteOwn(ctx.Request().Context(), claims.UserID, id)
	}
	if err != nil {
		return errors.Wrap(err, "deleting lesson")
	}
	return ctx.JSON(http.StatusOK, successResponse)
}

func (api *lessonApi) teacherLessons(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	if id, err = contextActor(ctx, id); err != nil {
		return err
	}
	lessons, err := api.svc.ListByTeacher(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "querying teacher lessons")
	}
	return ctx.JSON(http.StatusOK, lessons)
}

func (api *lessonApi) file(ctx echo.Context) error {
	p, err := api.files.Path(files.Lessons, ctx.Param("f"))
	if err != nil {
		return err
	}
	return ctx.File(p)
}
