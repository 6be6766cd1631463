package echoapi_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/coachdiary/apps/api/echo"
	"github.com/trezcool/coachdiary/core"
	"github.com/trezcool/coachdiary/core/standard"
	"github.com/trezcool/coachdiary/tests"
)

func Test_standardApi(t *testing.T) {
	app := setup(t)
	coach := testutil.CreateUser(t, app.usrRepo, "Coach", "coach@test.cd", testPwd, true)
	other := testutil.CreateUser(t, app.usrRepo, "Other", "other@test.cd", testPwd, true)
	token := getToken(t, app.conf, coach)

	sprint := testutil.CreateStandard(t, app.stdRepo, coach.ID, "100m Sprint", true,
		testutil.NumericLevel(5, core.GenderMale, 10, 12, 14),
		testutil.NumericLevel(5, core.GenderFemale, 9, 11, 13),
	)
	grammar := testutil.CreateStandard(t, app.stdRepo, coach.ID, "English Grammar", false)
	foreign := testutil.CreateStandard(t, app.stdRepo, other.ID, "Long Jump", true)

	stdPath := func(id int64) string { return fmt.Sprintf("/v1/standards/%d", id) }
	permDenied := marchallObj(t, httpErr{Error: core.ErrPermissionDenied.Error()})

	tests := []httpTest{
		{name: "auth required", path: "/v1/standards", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "list own standards", path: "/v1/standards", token: token, wantCode: http.StatusOK, wantData: marchallList(t, sprint, grammar)},
		{name: "numeric only", path: "/v1/standards?has_numeric_value=true", token: token, wantCode: http.StatusOK, wantData: marchallList(t, sprint)},
		{name: "skills only", path: "/v1/standards?has_numeric_value=false", token: token, wantCode: http.StatusOK, wantData: marchallList(t, grammar)},
		{
			name: "invalid has_numeric_value", path: "/v1/standards?has_numeric_value=lol", token: token,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"has_numeric_value": "must be a boolean"}),
		},
		{name: "search", path: "/v1/standards?search=sprint", token: token, wantCode: http.StatusOK, wantData: marchallList(t, sprint)},
		{name: "get", path: stdPath(sprint.ID), token: token, wantCode: http.StatusOK, wantData: marchallObj(t, sprint)},
		{name: "get levels", path: stdPath(sprint.ID) + "/levels", token: token, wantCode: http.StatusOK, wantData: marchallObj(t, sprint)},
		{name: "get: other coach's standard", path: stdPath(foreign.ID), token: token, wantCode: http.StatusForbidden, wantData: permDenied},
		{
			name: "get: unknown", path: stdPath(9999), token: token,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "standard not found"}),
		},
		{
			name: "create: has_numeric_value required", method: http.MethodPost, path: "/v1/standards", token: token,
			body:     []byte(`{"name":"Push-ups"}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"has_numeric_value": "this field is required"}),
		},
		{
			name: "create: duplicate name (case-insensitive)", method: http.MethodPost, path: "/v1/standards", token: token,
			body:     []byte(`{"name":"100M SPRINT","has_numeric_value":true}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"name": standard.ErrStandardExists.Error()}),
		},
		{
			name: "create: numeric level missing a threshold", method: http.MethodPost, path: "/v1/standards", token: token,
			body: []byte(`{"name":"Push-ups","has_numeric_value":true,"levels":[` +
				`{"level_number":5,"gender":"m","low_level_value":10,"middle_level_value":20}]}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"levels[0].high_level_value": "this field is required for numeric standards"}),
		},
		{
			name: "create: skill level with a threshold", method: http.MethodPost, path: "/v1/standards", token: token,
			body:     []byte(`{"name":"Dribbling","has_numeric_value":false,"levels":[{"level_number":5,"gender":"m","low_level_value":1}]}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"levels[0].low_level_value": "this field must be empty for non-numeric standards"}),
		},
		{
			name: "update: type change", method: http.MethodPut, path: stdPath(sprint.ID), token: token,
			body:     []byte(`{"has_numeric_value":false}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"has_numeric_value": standard.ErrTypeChange.Error()}),
		},
		{
			name: "update: other coach's standard", method: http.MethodPut, path: stdPath(foreign.ID), token: token,
			body: []byte(`{"name":"Mine now"}`), wantCode: http.StatusForbidden, wantData: permDenied,
		},
		{
			name: "replace levels: unknown level id", method: http.MethodPut, path: stdPath(grammar.ID) + "/levels", token: token,
			body:     []byte(fmt.Sprintf(`{"levels":[{"id":%d,"level_number":5,"gender":"m"}]}`, sprint.Levels[0].ID)),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"levels[0].id": standard.ErrUnknownLevel.Error()}),
		},
	}
	runHTTPTests(t, app, tests)

	t.Run("create", func(t *testing.T) {
		rec := app.serve(httpTest{
			method: http.MethodPost, path: "/v1/standards", token: token,
			body: []byte(`{"name":" Push-ups ","has_numeric_value":true,"levels":[` +
				`{"level_number":7,"gender":"f","low_level_value":10,"middle_level_value":15,"high_level_value":20}]}`),
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var std standard.Standard
		decode(t, rec, &std)
		assert.Equal(t, "Push-ups", std.Name)
		assert.True(t, std.HasNumericValue)
		require.Len(t, std.Levels, 1)
		assert.NotZero(t, std.Levels[0].ID)
		assert.Equal(t, 7, std.Levels[0].LevelNumber)
		assert.Equal(t, 20.0, std.Levels[0].High.Float64)
	})

	t.Run("update name", func(t *testing.T) {
		rec := app.serve(httpTest{method: http.MethodPut, path: stdPath(grammar.ID), token: token, body: []byte(`{"name":"Grammar"}`)})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var std standard.Standard
		decode(t, rec, &std)
		assert.Equal(t, "Grammar", std.Name)
		assert.False(t, std.HasNumericValue)
	})

	t.Run("replace levels", func(t *testing.T) {
		kept := sprint.Levels[0]
		kept.High = standard.NullFloat(15)
		body := marchallObj(t, ReplaceLevelsRequest{Levels: []standard.Level{
			kept,
			testutil.NumericLevel(6, core.GenderMale, 11, 13, 15),
		}})

		rec := app.serve(httpTest{method: http.MethodPut, path: stdPath(sprint.ID) + "/levels", token: token, body: body})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var std standard.Standard
		decode(t, rec, &std)
		require.Len(t, std.Levels, 2)
		assert.Equal(t, kept.ID, std.Levels[0].ID)
		assert.Equal(t, 15.0, std.Levels[0].High.Float64)
		assert.Equal(t, 6, std.Levels[1].LevelNumber)
		for _, lvl := range std.Levels {
			assert.NotEqual(t, sprint.Levels[1].ID, lvl.ID, "dropped level is deleted")
		}
	})

	t.Run("delete & restore", func(t *testing.T) {
		rec := app.serve(httpTest{method: http.MethodDelete, path: stdPath(grammar.ID), token: token})
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		rec = app.serve(httpTest{path: stdPath(grammar.ID), token: token})
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = app.serve(httpTest{method: http.MethodPost, path: stdPath(grammar.ID) + "/restore", token: token})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = app.serve(httpTest{path: stdPath(grammar.ID), token: token})
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
