package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/coachdiary/core/roster"
)

type rosterApi struct {
	svc      roster.ServiceInterface
	validate *validator.Validate
}

func registerRosterAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc roster.ServiceInterface, validate *validator.Validate) {
	api := rosterApi{svc: svc, validate: validate}

	cg := g.Group("/classes", authed...)
	cg.GET("", api.queryClasses)
	cg.POST("", api.createClass)
	cg.GET("/:id", api.retrieveClass)
	cg.PUT("/:id", api.updateClass)
	cg.DELETE("/:id", api.destroyClass)
	cg.POST("/:id/restore", api.restoreClass)

	sg := g.Group("/students", authed...)
	sg.GET("", api.queryStudents)
	sg.POST("", api.createStudent)
	sg.GET("/:id", api.retrieveStudent)
	sg.PUT("/:id", api.updateStudent)
	sg.DELETE("/:id", api.destroyStudent)
	sg.POST("/:id/restore", api.restoreStudent)
}

// Classes

func (api *rosterApi) queryClasses(ctx echo.Context) error {
	var filter roster.ClassFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to ClassFilter")
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	classes, err := api.svc.QueryClasses(ctx.Request().Context(), coachID(ctx), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying classes")
	}
	return ctx.JSON(http.StatusOK, classes)
}

func (api *rosterApi) createClass(ctx echo.Context) error {
	var data roster.NewClass
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewClass")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	class, err := api.svc.CreateClass(ctx.Request().Context(), coachID(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating class")
	}
	return ctx.JSON(http.StatusCreated, class)
}

func (api *rosterApi) retrieveClass(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	class, err := api.svc.GetClass(ctx.Request().Context(), coachID(ctx), id)
	if err != nil {
		return errors.Wrap(err, "getting class")
	}
	return ctx.JSON(http.StatusOK, class)
}

func (api *rosterApi) updateClass(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	var data roster.UpdateClass
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateClass")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	class, err := api.svc.UpdateClass(ctx.Request().Context(), coachID(ctx), id, data)
	if err != nil {
		return errors.Wrap(err, "updating class")
	}
	return ctx.JSON(http.StatusOK, class)
}

func (api *rosterApi) destroyClass(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteClass(ctx.Request().Context(), coachID(ctx), id); err != nil {
		return errors.Wrap(err, "deleting class")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *rosterApi) restoreClass(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	class, err := api.svc.RestoreClass(ctx.Request().Context(), coachID(ctx), id)
	if err != nil {
		return errors.Wrap(err, "restoring class")
	}
	return ctx.JSON(http.StatusOK, class)
}

// Students

func (api *rosterApi) queryStudents(ctx echo.Context) error {
	var filter roster.StudentFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to StudentFilter")
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	students, err := api.svc.QueryStudents(ctx.Request().Context(), coachID(ctx), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *rosterApi) createStudent(ctx echo.Context) error {
	var data roster.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	student, err := api.svc.CreateStudent(ctx.Request().Context(), coachID(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating student")
	}
	return ctx.JSON(http.StatusCreated, student)
}

func (api *rosterApi) retrieveStudent(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	student, err := api.svc.GetStudent(ctx.Request().Context(), coachID(ctx), id)
	if err != nil {
		return errors.Wrap(err, "getting student")
	}
	return ctx.JSON(http.StatusOK, student)
}

func (api *rosterApi) updateStudent(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	var data roster.UpdateStudent
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStudent")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	student, err := api.svc.UpdateStudent(ctx.Request().Context(), coachID(ctx), id, data)
	if err != nil {
		return errors.Wrap(err, "updating student")
	}
	return ctx.JSON(http.StatusOK, student)
}

func (api *rosterApi) destroyStudent(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteStudent(ctx.Request().Context(), coachID(ctx), id); err != nil {
		return errors.Wrap(err, "deleting student")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *rosterApi) restoreStudent(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	student, err := api.svc.RestoreStudent(ctx.Request().Context(), coachID(ctx), id)
	if err != nil {
		return errors.Wrap(err, "restoring student")
	}
	return ctx.JSON(http.StatusOK, student)
}
