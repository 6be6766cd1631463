package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	. "github.com/trezcool/coachdiary/apps/api/echo"
	"github.com/trezcool/coachdiary/core"
	"github.com/trezcool/coachdiary/core/result"
	"github.com/trezcool/coachdiary/core/roster"
	"github.com/trezcool/coachdiary/core/standard"
	"github.com/trezcool/coachdiary/core/user"
	emailsvc "github.com/trezcool/coachdiary/services/email"
	inmemdb "github.com/trezcool/coachdiary/storage/database/inmem"
	"github.com/trezcool/coachdiary/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type testApp struct {
	*Server
	conf       *core.Config
	usrRepo    user.Repository
	rosterRepo roster.Repository
	stdRepo    standard.Repository
	resultRepo result.Repository
}

func setup(t *testing.T, configure ...func(conf *core.Config)) testApp {
	conf := testutil.NewTestConfig()
	for _, fn := range configure {
		fn(conf)
	}
	logger := testutil.NewLogger(conf)
	validate, translator := testutil.NewValidator()

	// set up DB & repos
	db := inmemdb.Open()
	app := testApp{
		conf:       conf,
		usrRepo:    inmemdb.NewUserRepository(db),
		rosterRepo: inmemdb.NewRosterRepository(db),
		stdRepo:    inmemdb.NewStandardRepository(db),
		resultRepo: inmemdb.NewResultRepository(db),
	}

	// set up services
	usrSvc := user.NewService(conf, app.usrRepo, emailsvc.NewConsoleServiceMock(conf, logger))
	rosterSvc := roster.NewService(db, app.rosterRepo)
	stdSvc := standard.NewService(db, app.stdRepo, nil, logger)
	resultSvc := result.NewService(
		db,
		app.resultRepo,
		inmemdb.NewReportRepository(db),
		rosterSvc,
		stdSvc,
		logger,
		result.OptionsFromConfig(conf),
	)

	// set up server
	app.Server = NewServer(ServerDeps{
		Conf:        conf,
		Logger:      logger,
		UserSvc:     usrSvc,
		RosterSvc:   rosterSvc,
		StandardSvc: stdSvc,
		ResultSvc:   resultSvc,
		Validate:    validate,
		Translator:  translator,
	})
	return app
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func (app testApp) serve(tt httpTest) *httptest.ResponseRecorder {
	method := tt.method
	if method == "" {
		method = http.MethodGet
	}
	req, rec := newAuthRequest(method, tt.path, tt.token, tt.body)
	app.ServeHTTP(rec, req)
	return rec
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func getToken(t *testing.T, conf *core.Config, usr user.User) string {
	claims := GetUserClaims(conf, usr)
	token, err := GenerateToken(conf, claims)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, tt.wantCode, rec.Code, "code; body %s", rec.Body.String())
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

// decode unmarshals the response body into v.
func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode() failed: %v; body %s", err, rec.Body.String())
	}
}

func runHTTPTests(t *testing.T, app testApp, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.serve(tt)
			checkCodeAndData(t, tt, rec)
		})
	}
}
