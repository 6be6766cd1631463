package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/coachdiary/core/standard"
)

type standardApi struct {
	svc      standard.ServiceInterface
	validate *validator.Validate
}

func registerStandardAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc standard.ServiceInterface, validate *validator.Validate) {
	api := standardApi{svc: svc, validate: validate}

	sg := g.Group("/standards", authed...)
	sg.GET("", api.query)
	sg.POST("", api.create)
	sg.GET("/:id", api.retrieve)
	sg.PUT("/:id", api.update)
	sg.DELETE("/:id", api.destroy)
	sg.POST("/:id/restore", api.restore)
	sg.GET("/:id/levels", api.levels)
	sg.PUT("/:id/levels", api.replaceLevels)
}

func (api *standardApi) query(ctx echo.Context) error {
	var filter standard.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	hasNumeric, err := queryBool(ctx, "has_numeric_value")
	if err != nil {
		return err
	}
	filter.HasNumeric = hasNumeric
	ordering := new(Ordering)
	ordering.Bind(ctx)

	standards, err := api.svc.Query(ctx.Request().Context(), coachID(ctx), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying standards")
	}
	return ctx.JSON(http.StatusOK, standards)
}

func (api *standardApi) create(ctx echo.Context) error {
	var data standard.NewStandard
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStandard")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	std, err := api.svc.Create(ctx.Request().Context(), coachID(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating standard")
	}
	return ctx.JSON(http.StatusCreated, std)
}

func (api *standardApi) retrieve(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	std, err := api.svc.Get(ctx.Request().Context(), coachID(ctx), id)
	if err != nil {
		return errors.Wrap(err, "getting standard")
	}
	return ctx.JSON(http.StatusOK, std)
}

func (api *standardApi) update(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	var data standard.UpdateStandard
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStandard")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	std, err := api.svc.Update(ctx.Request().Context(), coachID(ctx), id, data)
	if err != nil {
		return errors.Wrap(err, "updating standard")
	}
	return ctx.JSON(http.StatusOK, std)
}

func (api *standardApi) destroy(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), coachID(ctx), id); err != nil {
		return errors.Wrap(err, "deleting standard")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *standardApi) restore(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	std, err := api.svc.Restore(ctx.Request().Context(), coachID(ctx), id)
	if err != nil {
		return errors.Wrap(err, "restoring standard")
	}
	return ctx.JSON(http.StatusOK, std)
}

// levels reads the standard along with its levels.
func (api *standardApi) levels(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	std, err := api.svc.Get(ctx.Request().Context(), coachID(ctx), id)
	if err != nil {
		return errors.Wrap(err, "getting standard")
	}
	return ctx.JSON(http.StatusOK, std)
}

func (api *standardApi) replaceLevels(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	var data ReplaceLevelsRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ReplaceLevelsRequest")
	}
	if data.Levels == nil {
		data.Levels = []standard.Level{}
	}

	if _, err = api.svc.ReplaceLevels(ctx.Request().Context(), coachID(ctx), id, data.Levels); err != nil {
		return errors.Wrap(err, "replacing levels")
	}
	std, err := api.svc.Get(ctx.Request().Context(), coachID(ctx), id)
	if err != nil {
		return errors.Wrap(err, "getting standard")
	}
	return ctx.JSON(http.StatusOK, std)
}

// ReplaceLevelsRequest carries the complete set of levels of a standard.
type ReplaceLevelsRequest struct {
	Levels []standard.Level `json:"levels"`
}
