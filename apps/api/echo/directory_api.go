package echoapi

import (
	"context"
	"io"
	"net/http"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/madrasa/core"
	"github.com/trezcool/madrasa/core/directory"
	"github.com/trezcool/madrasa/storage/files"
)

var errNoWorkbook = core.BadRequest("No file")

type directoryApi struct {
	svc      *directory.Service
	importer *directory.Importer
	files    *files.Store
	validate *validator.Validate
	logger   core.Logger
}

func registerDirectoryAPI(g *echo.Group, authed []echo.MiddlewareFunc, opts *Options) {
	api := directoryApi{
		svc:      opts.DirectorySvc,
		importer: opts.Importer,
		files:    opts.Files,
		validate: opts.Validate,
		logger:   opts.Logger,
	}

	g.GET("/levels", api.queryLevels, authed...)
	g.POST("/levels", api.createLevel, authed...)
	g.PUT("/levels/:id", api.updateLevel, authed...)
	g.DELETE("/levels/:id", api.destroyLevel, authed...)

	g.GET("/groups", api.queryGroups, authed...)
	g.POST("/groups", api.createGroup, authed...)
	g.PUT("/groups/:id", api.updateGroup, authed...)
	g.DELETE("/groups/:id", api.destroyGroup, authed...)

	g.GET("/subjects", api.querySubjects, authed...)
	g.POST("/subjects", api.createSubject, authed...)
	g.PUT("/subjects/:id", api.updateSubject, authed...)
	g.DELETE("/subjects/:id", api.destroySubject, authed...)

	g.GET("/teacher-subjects", api.queryTeacherSubjects, authed...)
	g.POST("/teacher-subjects/bulk", api.replaceTeacherSubjects, authed...)
	g.DELETE("/teacher-subjects/:tid/:sid", api.destroyTeacherSubject, authed...)

	g.GET("/teacher-groups", api.queryTeacherGroups, authed...)
	g.POST("/teacher-groups/bulk", api.replaceTeacherGroups, authed...)
	g.DELETE("/teacher-groups/:tid/:gid", api.destroyTeacherGroup, authed...)

	g.GET("/teacher-teaching-students", api.queryTeacherStudents, authed...)
	g.POST("/teacher-teaching-students/bulk", api.replaceTeacherStudents, authed...)

	g.GET("/student-teacher-links", api.queryLinks, authed...)
	g.POST("/student-teacher-links/bulk", api.linkStudents, authed...)
	g.DELETE("/student-teacher-links", api.unlink, authed...)

	g.GET("/teachers/:id/scope", api.teacherScope, authed...)

	g.POST("/teachers/import", api.importTeachers, authed...)
	g.POST("/students/import", api.importStudents, authed...)
}

// Levels

func (api *directoryApi) queryLevels(ctx echo.Context) error {
	levels, err := api.svc.QueryLevels(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying levels")
	}
	return ctx.JSON(http.StatusOK, levels)
}

func (api *directoryApi) createLevel(ctx echo.Context) error {
	var data directory.LevelData
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	lvl, err := api.svc.CreateLevel(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, CreatedResponse{ID: lvl.ID})
}

func (api *directoryApi) updateLevel(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	var data directory.LevelData
	if err = bind(ctx, &data); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	if err = api.svc.UpdateLevel(ctx.Request().Context(), id, data); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, successResponse)
}

func (api *directoryApi) destroyLevel(ctx echo.Context) error {
	return api.destroy(ctx, api.svc.DeleteLevels)
}

// Groups

func (api *directoryApi) queryGroups(ctx echo.Context) error {
	groups, err := api.svc.QueryGroups(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying groups")
	}
	return ctx.JSON(http.StatusOK, groups)
}

func (api *directoryApi) createGroup(ctx echo.Context) error {
	var data directory.GroupData
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
	return ctx.JSON(http.StatusOK, CreatedResponse{ID: grp.ID})
}

func (api *directoryApi) updateGroup(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	var data directory.GroupData
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

func (api *directoryApi) destroyGroup(ctx echo.Context) error {
	return api.destroy(ctx, api.svc.DeleteGroups)
}

// Subjects

func (api *directoryApi) querySubjects(ctx echo.Context) error {
	subjects, err := api.svc.QuerySubjects(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying subjects")
	}
	return ctx.JSON(http.StatusOK, subjects)
}

func (api *directoryApi) createSubject(ctx echo.Context) error {
	var data directory.SubjectData
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	sub, err := api.svc.CreateSubject(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, CreatedResponse{ID: sub.ID})
}

func (api *directoryApi) updateSubject(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	var data directory.SubjectData
	if err = bind(ctx, &data); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	if err = api.svc.UpdateSubject(ctx.Request().Context(), id, data); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, successResponse)
}

func (api *directoryApi) destroySubject(ctx echo.Context) error {
	return api.destroy(ctx, api.svc.DeleteSubjects)
}

func (api *directoryApi) destroy(ctx echo.Context, del func(context.Context, ...int) error) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	if err = del(ctx.Request().Context(), id); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, successResponse)
}

// Assignments

func (api *directoryApi) queryTeacherSubjects(ctx echo.Context) error {
	ts, err := api.svc.QueryTeacherSubjects(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying teacher subjects")
	}
	return ctx.JSON(http.StatusOK, ts)
}

func (api *directoryApi) replaceTeacherSubjects(ctx echo.Context) error {
	var data directory.TeacherSubjects
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	if err := api.svc.ReplaceTeacherSubjects(ctx.Request().Context(), data); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, successResponse)
}

func (api *directoryApi) destroyTeacherSubject(ctx echo.Context) error {
	tid, err := paramID(ctx, "tid")
	if err != nil {
		return err
	}
	sid, err := paramID(ctx, "sid")
	if err != nil {
		return err
	}
	if err = api.svc.DeleteTeacherSubject(ctx.Request().Context(), tid, sid); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, successResponse)
}

func (api *directoryApi) queryTeacherGroups(ctx echo.Context) error {
	tg, err := api.svc.QueryTeacherGroups(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying teacher groups")
	}
	return ctx.JSON(http.StatusOK, tg)
}

func (api *directoryApi) replaceTeacherGroups(ctx echo.Context) error {
	var data directory.TeacherGroups
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	if err := api.svc.ReplaceTeacherGroups(ctx.Request().Context(), data); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, successResponse)
}

func (api *directoryApi) destroyTeacherGroup(ctx echo.Context) error {
	tid, err := paramID(ctx, "tid")
	if err != nil {
		return err
	}
	gid, err := paramID(ctx, "gid")
	if err != nil {
		return err
	}
	if err = api.svc.DeleteTeacherGroup(ctx.Request().Context(), tid, gid); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, successResponse)
}

func (api *directoryApi) queryTeacherStudents(ctx echo.Context) error {
	ts, err := api.svc.QueryTeacherStudents(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying teacher students")
	}
	return ctx.JSON(http.StatusOK, ts)
}

func (api *directoryApi) replaceTeacherStudents(ctx echo.Context) error {
	var data directory.TeacherStudents
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	if err := api.svc.ReplaceTeacherStudents(ctx.Request().Context(), data); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, successResponse)
}

// Links

func (api *directoryApi) queryLinks(ctx echo.Context) error {
	links, err := api.svc.QueryLinks(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying links")
	}
	return ctx.JSON(http.StatusOK, links)
}

func (api *directoryApi) linkStudents(ctx echo.Context) error {
	var data directory.TeacherStudents
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	if err := api.svc.LinkStudents(ctx.Request().Context(), data); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, successResponse)
}

func (api *directoryApi) unlink(ctx echo.Context) error {
	var data directory.Link
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	if err := api.svc.Unlink(ctx.Request().Context(), data); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, successResponse)
}

func (api *directoryApi) teacherScope(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	if id, err = contextActor(ctx, id); err != nil {
		return err
	}
	scope, err := api.svc.TeacherScope(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, scope)
}

// Imports

func (api *directoryApi) importTeachers(ctx echo.Context) error {
	return api.importWorkbook(ctx, api.importer.ImportTeachers)
}

func (api *directoryApi) importStudents(ctx echo.Context) error {
	return api.importWorkbook(ctx, api.importer.ImportStudents)
}

// importWorkbook stores the uploaded spreadsheet for the time of the import, then removes it.
func (api *directoryApi) importWorkbook(ctx echo.Context, run func(context.Context, io.Reader) (int, error)) error {
	fh, err := formFile(ctx, errNoWorkbook)
	if err != nil {
		return err
	}
	stored, err := api.files.Save(files.Excel, fh)
	if err != nil {
		return err
	}
	defer func() {
		if err := api.files.Remove(files.Excel, stored.Name); err != nil {
			api.logger.Warn("removing imported workbook", err)
		}
	}()

	p, err := api.files.Path(files.Excel, stored.Name)
	if err != nil {
		return err
	}
	f, err := os.Open(p)
	if err != nil {
		return errors.Wrap(err, "opening workbook")
	}
	defer func() { _ = f.Close() }()

	imported, err := run(ctx.Request().Context(), f)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ImportResponse{Imported: imported, Success: true})
}
