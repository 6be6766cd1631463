package echoapi_test

import (
	"fmt"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/coachdiary/core"
	"github.com/trezcool/coachdiary/core/roster"
	"github.com/trezcool/coachdiary/tests"
)

func Test_rosterApi_classes(t *testing.T) {
	app := setup(t)
	coach := testutil.CreateUser(t, app.usrRepo, "Coach", "coach@test.cd", testPwd, true)
	other := testutil.CreateUser(t, app.usrRepo, "Other", "other@test.cd", testPwd, true)
	token := getToken(t, app.conf, coach)

	c5b := testutil.CreateClass(t, app.rosterRepo, coach.ID, 5, "Б")
	c5a := testutil.CreateClass(t, app.rosterRepo, coach.ID, 5, "А")
	c1v := testutil.CreateClass(t, app.rosterRepo, coach.ID, 1, "В")
	foreign := testutil.CreateClass(t, app.rosterRepo, other.ID, 2, "А")

	classPath := func(id int64) string { return fmt.Sprintf("/v1/classes/%d", id) }
	permDenied := marchallObj(t, httpErr{Error: core.ErrPermissionDenied.Error()})
	classExists := marchallObj(t, map[string]string{
		"number":     roster.ErrClassExists.Error(),
		"class_name": roster.ErrClassExists.Error(),
	})

	tests := []httpTest{
		{name: "auth required", path: "/v1/classes", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "list own classes", path: "/v1/classes", token: token, wantCode: http.StatusOK, wantData: marchallList(t, c1v, c5a, c5b)},
		{name: "filter by number", path: "/v1/classes?number=5", token: token, wantCode: http.StatusOK, wantData: marchallList(t, c5a, c5b)},
		{
			name: "order by -class_name", path: "/v1/classes?ordering=-class_name", token: token,
			wantCode: http.StatusOK, wantData: marchallList(t, c1v, c5b, c5a),
		},
		{name: "get", path: classPath(c5a.ID), token: token, wantCode: http.StatusOK, wantData: marchallObj(t, c5a)},
		{name: "get: other coach's class", path: classPath(foreign.ID), token: token, wantCode: http.StatusForbidden, wantData: permDenied},
		{
			name: "get: unknown", path: classPath(9999), token: token, wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "class not found"}),
		},
		{name: "get: invalid id", path: "/v1/classes/lol", token: token, wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"})},
		{
			name: "create: required fields", method: http.MethodPost, path: "/v1/classes", token: token, body: []byte(`{}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"number": "this field is required", "class_name": "this field is required"}),
		},
		{
			name: "create: class name must be a letter", method: http.MethodPost, path: "/v1/classes", token: token,
			body: marchallObj(t, roster.NewClass{Number: 3, ClassName: "AB"}), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"class_name": "class name must be a single letter"}),
		},
		{
			name: "create: number out of range", method: http.MethodPost, path: "/v1/classes", token: token,
			body: marchallObj(t, roster.NewClass{Number: 12, ClassName: "A"}), wantCode: http.StatusBadRequest,
		},
		{
			name: "create: duplicate (case-insensitive)", method: http.MethodPost, path: "/v1/classes", token: token,
			body: marchallObj(t, roster.NewClass{Number: 5, ClassName: "б"}), wantCode: http.StatusBadRequest, wantData: classExists,
		},
		{
			name: "update: other coach's class", method: http.MethodPut, path: classPath(foreign.ID), token: token,
			body: marchallObj(t, roster.UpdateClass{Number: 3}), wantCode: http.StatusForbidden, wantData: permDenied,
		},
		{
			name: "update: clashes with another class", method: http.MethodPut, path: classPath(c5b.ID), token: token,
			body: marchallObj(t, roster.UpdateClass{ClassName: "а"}), wantCode: http.StatusBadRequest, wantData: classExists,
		},
		{name: "delete: other coach's class", method: http.MethodDelete, path: classPath(foreign.ID), token: token, wantCode: http.StatusForbidden, wantData: permDenied},
		{
			name: "restore: not deleted", method: http.MethodPost, path: classPath(c5a.ID) + "/restore", token: token,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: roster.ErrNotDeleted.Error()}),
		},
	}
	runHTTPTests(t, app, tests)

	t.Run("create", func(t *testing.T) {
		rec := app.serve(httpTest{method: http.MethodPost, path: "/v1/classes", token: token, body: marchallObj(t, roster.NewClass{Number: 7, ClassName: " в "})})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var class roster.StudentClass
		decode(t, rec, &class)
		assert.NotZero(t, class.ID)
		assert.Equal(t, 7, class.Number)
		assert.Equal(t, "В", class.ClassName)
		assert.Equal(t, coach.ID, class.OwnerID)
		assert.Equal(t, core.CurrentYear()-7, class.RecruitmentYear)
	})

	t.Run("update", func(t *testing.T) {
		rec := app.serve(httpTest{method: http.MethodPut, path: classPath(c1v.ID), token: token, body: marchallObj(t, roster.UpdateClass{Number: 2})})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var class roster.StudentClass
		decode(t, rec, &class)
		assert.Equal(t, 2, class.Number)
		assert.Equal(t, c1v.ClassName, class.ClassName)
	})

	t.Run("delete & restore", func(t *testing.T) {
		rec := app.serve(httpTest{method: http.MethodDelete, path: classPath(c5b.ID), token: token})
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		rec = app.serve(httpTest{path: classPath(c5b.ID), token: token})
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = app.serve(httpTest{method: http.MethodPost, path: classPath(c5b.ID) + "/restore", token: token})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = app.serve(httpTest{path: classPath(c5b.ID), token: token})
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func Test_rosterApi_students(t *testing.T) {
	app := setup(t)
	coach := testutil.CreateUser(t, app.usrRepo, "Coach", "coach@test.cd", testPwd, true)
	other := testutil.CreateUser(t, app.usrRepo, "Other", "other@test.cd", testPwd, true)
	token := getToken(t, app.conf, coach)

	c5a := testutil.CreateClass(t, app.rosterRepo, coach.ID, 5, "А")
	c6a := testutil.CreateClass(t, app.rosterRepo, coach.ID, 6, "А")
	foreign := testutil.CreateClass(t, app.rosterRepo, other.ID, 5, "А")

	ivan := testutil.CreateStudent(t, app.rosterRepo, c5a.ID, "Ivan Petrov", core.GenderMale, roster.NewDate(2012, time.March, 4))
	maria := testutil.CreateStudent(t, app.rosterRepo, c5a.ID, "Maria Ivanova", core.GenderFemale, roster.NewDate(2012, time.June, 1))
	oleg := testutil.CreateStudent(t, app.rosterRepo, c6a.ID, "Oleg Sidorov", core.GenderMale, roster.NewDate(2011, time.January, 9))
	stranger := testutil.CreateStudent(t, app.rosterRepo, foreign.ID, "Anna Stranger", core.GenderFemale, roster.NewDate(2012, time.May, 5))

	studentPath := func(id int64) string { return fmt.Sprintf("/v1/students/%d", id) }
	path := func(q url.Values) string { return "/v1/students?" + q.Encode() }

	tests := []httpTest{
		{name: "list own students", path: "/v1/students", token: token, wantCode: http.StatusOK, wantData: marchallList(t, ivan, maria, oleg)},
		{name: "search", path: path(url.Values{"search": {"IVAN"}}), token: token, wantCode: http.StatusOK, wantData: marchallList(t, ivan, maria)},
		{name: "filter by gender", path: path(url.Values{"gender": {"f"}}), token: token, wantCode: http.StatusOK, wantData: marchallList(t, maria)},
		{
			name: "filter by classes", path: path(url.Values{"class_id": {fmt.Sprint(c6a.ID), fmt.Sprint(foreign.ID)}}), token: token,
			wantCode: http.StatusOK, wantData: marchallList(t, oleg),
		},
		{
			name: "filter by birth year", path: path(url.Values{"birth_year_from": {"2012"}, "birth_year_to": {"2012"}}), token: token,
			wantCode: http.StatusOK, wantData: marchallList(t, ivan, maria),
		},
		{
			name: "invalid gender filter", path: path(url.Values{"gender": {"x"}}), token: token,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"gender": "gender must be one of: m, f"}),
		},
		{name: "get", path: studentPath(oleg.ID), token: token, wantCode: http.StatusOK, wantData: marchallObj(t, oleg)},
		{
			name: "get: other coach's student", path: studentPath(stranger.ID), token: token,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: core.ErrPermissionDenied.Error()}),
		},
		{
			name: "create: birthday required", method: http.MethodPost, path: "/v1/students", token: token,
			body:     []byte(fmt.Sprintf(`{"full_name":"New Kid","gender":"m","student_class":%d}`, c5a.ID)),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"birthday": "this field is required"}),
		},
		{
			name: "create: invalid gender", method: http.MethodPost, path: "/v1/students", token: token,
			body:     []byte(fmt.Sprintf(`{"full_name":"New Kid","birthday":"2012-01-01","gender":"x","student_class":%d}`, c5a.ID)),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"gender": "gender must be one of: m, f"}),
		},
		{
			name: "create: other coach's class", method: http.MethodPost, path: "/v1/students", token: token,
			body:     []byte(fmt.Sprintf(`{"full_name":"New Kid","birthday":"2012-01-01","gender":"m","student_class":%d}`, foreign.ID)),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"student_class": "class not found"}),
		},
		{
			name: "update: move to other coach's class", method: http.MethodPut, path: studentPath(ivan.ID), token: token,
			body:     []byte(fmt.Sprintf(`{"student_class":%d}`, foreign.ID)),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"student_class": "class not found"}),
		},
	}
	runHTTPTests(t, app, tests)

	t.Run("create", func(t *testing.T) {
		rec := app.serve(httpTest{
			method: http.MethodPost, path: "/v1/students", token: token,
			body: []byte(fmt.Sprintf(`{"full_name":"  New Kid ","birthday":"2012-01-01","gender":"F","student_class":%d}`, c5a.ID)),
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var student roster.Student
		decode(t, rec, &student)
		assert.Equal(t, "New Kid", student.FullName)
		assert.Equal(t, core.GenderFemale, student.Gender)
		assert.Equal(t, "2012-01-01", student.Birthday.String())
		assert.Equal(t, c5a.ID, student.ClassID)
	})

	t.Run("update: move to another class", func(t *testing.T) {
		rec := app.serve(httpTest{method: http.MethodPut, path: studentPath(maria.ID), token: token, body: []byte(fmt.Sprintf(`{"student_class":%d}`, c6a.ID))})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var student roster.Student
		decode(t, rec, &student)
		assert.Equal(t, c6a.ID, student.ClassID)
		assert.Equal(t, maria.FullName, student.FullName)
	})

	t.Run("class deletion cascades to students", func(t *testing.T) {
		petr := testutil.CreateStudent(t, app.rosterRepo, c5a.ID, "Petr Kuznetsov", core.GenderMale, roster.NewDate(2012, time.July, 7))
		rec := app.serve(httpTest{method: http.MethodDelete, path: studentPath(petr.ID), token: token})
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		rec = app.serve(httpTest{method: http.MethodDelete, path: fmt.Sprintf("/v1/classes/%d", c5a.ID), token: token})
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		rec = app.serve(httpTest{path: studentPath(ivan.ID), token: token})
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = app.serve(httpTest{method: http.MethodPost, path: studentPath(ivan.ID) + "/restore", token: token})
		assert.Equal(t, http.StatusBadRequest, rec.Code, "cannot restore a student of a deleted class")

		rec = app.serve(httpTest{method: http.MethodPost, path: fmt.Sprintf("/v1/classes/%d/restore", c5a.ID), token: token})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		// the student deleted on their own stays deleted
		rec = app.serve(httpTest{path: studentPath(ivan.ID), token: token})
		assert.Equal(t, http.StatusOK, rec.Code)
		rec = app.serve(httpTest{path: studentPath(petr.ID), token: token})
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = app.serve(httpTest{method: http.MethodPost, path: studentPath(petr.ID) + "/restore", token: token})
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})
}
