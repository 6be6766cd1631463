package echoapi

import (
	"fmt"
	"net/http"
	"sort"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/coachdiary/core"
	"github.com/trezcool/coachdiary/core/result"
)

type resultApi struct {
	svc        result.ServiceInterface
	validate   *validator.Validate
	translator ut.Translator
}

func registerResultAPI(
	g *echo.Group,
	authed []echo.MiddlewareFunc,
	svc result.ServiceInterface,
	validate *validator.Validate,
	translator ut.Translator,
) {
	api := resultApi{
		svc:        svc,
		validate:   validate,
		translator: translator,
	}

	rg := g.Group("/results", authed...)
	rg.GET("", api.queryByClasses)
	rg.POST("", api.submit)
	rg.POST("/batch", api.submitBatch)

	g.GET("/students/:id/standards", api.queryByStudent, authed...)
}

func (api *resultApi) submit(ctx echo.Context) error {
	var data result.Submission
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Submission")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	res, err := api.svc.Submit(ctx.Request().Context(), coachID(ctx), data)
	if err != nil {
		return errors.Wrap(err, "submitting result")
	}
	return ctx.JSON(http.StatusOK, res)
}

// submitBatch saves a list of submissions and reports one outcome per entry, in request order.
// Malformed entries reject the whole request before anything is evaluated.
func (api *resultApi) submitBatch(ctx echo.Context) error {
	var data []result.Submission
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to []Submission")
	}
	if len(data) == 0 {
		return core.NewValidationError(result.ErrEmptyBatch)
	}

	var invalid BatchResponse
	for i := range data {
		if err := data[i].Validate(api.validate); err != nil {
			invalid.add(OutcomeResponse{Index: i, Errors: api.renderError(err)}, true)
		}
	}
	if len(invalid.Results) > 0 {
		return ctx.JSON(http.StatusBadRequest, invalid)
	}

	outcomes, err := api.svc.SubmitBatch(ctx.Request().Context(), coachID(ctx), data)
	if err != nil && !errors.Is(err, result.ErrBatchRejected) {
		return errors.Wrap(err, "submitting results")
	}

	resp := BatchResponse{Results: make([]OutcomeResponse, 0, len(outcomes))}
	for _, out := range outcomes {
		entry := OutcomeResponse{Index: out.Index, Saved: out.Saved, Result: out.Result}
		switch {
		case out.Err != nil:
			if !isClientError(out.Err) {
				return errors.Wrapf(out.Err, "submitting entry %d", out.Index)
			}
			entry.Errors = api.renderError(out.Err)
		case !out.Saved:
			entry.Errors = echo.Map{"error": result.ErrNotSaved.Error()}
		}
		resp.add(entry, out.Err != nil)
	}

	if err != nil {
		return ctx.JSON(http.StatusBadRequest, resp)
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *resultApi) queryByClasses(ctx echo.Context) error {
	var filter result.ClassResultsFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to ClassResultsFilter")
	}

	rows, err := api.svc.QueryByClasses(ctx.Request().Context(), coachID(ctx), filter)
	if err != nil {
		return errors.Wrap(err, "querying class results")
	}
	return ctx.JSON(http.StatusOK, rows)
}

func (api *resultApi) queryByStudent(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	results, err := api.svc.QueryByStudent(ctx.Request().Context(), coachID(ctx), id)
	if err != nil {
		return errors.Wrap(err, "querying student results")
	}
	return ctx.JSON(http.StatusOK, results)
}

// renderError renders an entry error the way the error handler renders a request error.
func (api *resultApi) renderError(err error) interface{} {
	if fldErrs, ok := fieldErrors(err, api.translator); ok {
		return fldErrs
	}
	return echo.Map{"error": errors.Cause(err).Error()}
}

func isClientError(err error) bool {
	switch errors.Cause(err).(type) {
	case validator.ValidationErrors, *core.ValidationError:
		return true
	}
	return core.IsNotFound(err) || core.IsPermissionDenied(err)
}

type (
	// OutcomeResponse is one entry of a batch: its saved result or its errors, rendered like a request error.
	OutcomeResponse struct {
		Index  int            `json:"index"`
		Saved  bool           `json:"saved"`
		Result *result.Result `json:"result,omitempty"`
		Errors interface{}    `json:"errors,omitempty"`
	}

	// EntryError is an error of a batch entry; Field is empty for errors of the whole entry.
	EntryError struct {
		Index int    `json:"index"`
		Field string `json:"field,omitempty"`
		Error string `json:"error"`
	}

	// BatchResponse lists the outcome of every entry and, in Errors, every error of the entries that failed.
	BatchResponse struct {
		Results []OutcomeResponse `json:"results"`
		Errors  []EntryError      `json:"errors,omitempty"`
	}
)

// add appends out and, when the entry failed, flattens its errors into resp.Errors, fields sorted.
func (resp *BatchResponse) add(out OutcomeResponse, failed bool) {
	resp.Results = append(resp.Results, out)
	if !failed {
		return
	}
	switch errs := out.Errors.(type) {
	case map[string]string:
		fields := make([]string, 0, len(errs))
		for f := range errs {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		for _, f := range fields {
			resp.Errors = append(resp.Errors, EntryError{Index: out.Index, Field: f, Error: errs[f]})
		}
	case echo.Map:
		resp.Errors = append(resp.Errors, EntryError{Index: out.Index, Error: fmt.Sprint(errs["error"])})
	}
}
