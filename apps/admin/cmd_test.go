package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"strconv"
	"testing"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/coachdiary/core/result"
	"github.com/trezcool/coachdiary/core/roster"
	"github.com/trezcool/coachdiary/core/standard"
	"github.com/trezcool/coachdiary/core/user"
	inmemdb "github.com/trezcool/coachdiary/storage/database/inmem"
	"github.com/trezcool/coachdiary/tests"
)

const testPwd = "Gym#Class2020"

func setup(t *testing.T) *commandLine {
	conf := testutil.NewTestConfig()
	logger := testutil.NewLogger(conf)

	db := inmemdb.Open()
	rosterSvc := roster.NewService(db, inmemdb.NewRosterRepository(db))
	stdSvc := standard.NewService(db, inmemdb.NewStandardRepository(db), nil, logger)
	return &commandLine{
		usrRepo:   inmemdb.NewUserRepository(db),
		rosterSvc: rosterSvc,
		stdSvc:    stdSvc,
		resultSvc: result.NewService(
			db,
			inmemdb.NewResultRepository(db),
			inmemdb.NewReportRepository(db),
			rosterSvc,
			stdSvc,
			logger,
			result.OptionsFromConfig(conf),
		),
		out: io.Discard,
	}
}

func mockPassword(t *testing.T, pwd string) {
	orig := readPasswordFunc
	readPasswordFunc = func(int) ([]byte, error) { return []byte(pwd), nil }
	t.Cleanup(func() { readPasswordFunc = orig })
}

type cliTest struct {
	name       string
	args       []string // without program name
	pwd        string
	wantErr    error
	wantErrStr string
}

func runCLITests(t *testing.T, cli *commandLine, tests []cliTest, check func(t *testing.T, tt cliTest)) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockPassword(t, tt.pwd)
			err := cli.run(append([]string{"admin"}, tt.args...))
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.wantErrStr != "":
				assert.EqualError(t, err, tt.wantErrStr)
			default:
				require.NoError(t, err)
				if check != nil {
					check(t, tt)
				}
			}
		})
	}
}

func Test_commandLine_usage(t *testing.T) {
	cli := setup(t)
	var out bytes.Buffer
	cli.out = &out

	runCLITests(t, cli, []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
	}, nil)
	assert.Contains(t, out.String(), "resetpassword -email EMAIL")
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	t.Run("memory engine", func(t *testing.T) {
		assert.ErrorIs(t, cli.run([]string{"admin", "migrate", "up"}), errNoSQLDB)
	})

	// sql.Open does not connect
	db, err := sql.Open("postgres", "postgres://localhost/coachdiary_test?sslmode=disable")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	cli.db = db

	var ran []string
	origRun := gooseRunFunc
	gooseRunFunc = func(command string, db *sql.DB, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		ran = append(ran, command)
		return nil
	}
	t.Cleanup(func() { gooseRunFunc = origRun })

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "add_level_index", "sql"}},
	}
	runCLITests(t, cli, tests, nil)
	assert.Equal(t, []string{"up", "up-to", "down-to", "status", "create"}, ran)
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)
	existing := testutil.CreateUser(t, cli.usrRepo, "Old Name", "coach@test.cd", "Old#Pwd2019", false)

	tests := []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "email but no password", args: []string{"adduser", "-email", "new@test.cd"}, wantErr: errHelp},
		{name: "create", args: []string{"adduser", "-email", " New@Test.cd ", "-name", "New Coach"}, pwd: testPwd},
		{name: "create staff", args: []string{"adduser", "-email", "staff@test.cd", "-staff"}, pwd: testPwd},
		{name: "update existing", args: []string{"adduser", "-email", existing.Email}, pwd: testPwd},
	}
	runCLITests(t, cli, tests, nil)

	get := func(email string) user.User {
		usr, err := cli.usrRepo.GetUser(context.Background(), user.GetFilter{Email: email})
		require.NoError(t, err)
		return usr
	}

	created := get("new@test.cd")
	assert.Equal(t, "New Coach", created.Name)
	assert.True(t, created.IsActive)
	assert.False(t, created.IsStaff)
	assert.NoError(t, created.CheckPassword(testPwd))

	staff := get("staff@test.cd")
	assert.Equal(t, "staff@test.cd", staff.Name)
	assert.True(t, staff.IsStaff)

	updated := get(existing.Email)
	assert.Equal(t, existing.ID, updated.ID)
	assert.Equal(t, "Old Name", updated.Name)
	assert.True(t, updated.IsActive)
	assert.NoError(t, updated.CheckPassword(testPwd))
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)
	usr := testutil.CreateUser(t, cli.usrRepo, "Coach", "coach@test.cd", testPwd, true)

	tests := []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "email but no password", args: []string{"resetpassword", "-email", "lol@test.cd"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-email", "lol@test.cd"}, pwd: "lol", wantErr: user.ErrNotFound},
		{name: "reset", args: []string{"resetpassword", "-email", usr.Email}, pwd: "New#Pwd2021"},
		{name: "reset (email is case-insensitive)", args: []string{"resetpassword", "-email", "COACH@test.cd"}, pwd: "Other#Pwd2021"},
	}
	runCLITests(t, cli, tests, func(t *testing.T, tt cliTest) {
		got, err := cli.usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
		require.NoError(t, err)
		assert.NoError(t, got.CheckPassword(tt.pwd))
	})
}

func Test_commandLine_seed(t *testing.T) {
	cli := setup(t)
	var out bytes.Buffer
	cli.out = &out
	ctx := context.Background()

	runCLITests(t, cli, []cliTest{
		{name: "no args", args: []string{"seed"}, wantErr: errHelp},
		{name: "seed a new coach", args: []string{"seed", "-email", "demo@test.cd"}, pwd: testPwd},
		{name: "seed twice", args: []string{"seed", "-email", "demo@test.cd"}, wantErr: errAlreadySeeded},
	}, nil)
	assert.Contains(t, out.String(), "seeded 33 classes, 198 students, 3 standards, 594 results (0 ungraded)")

	coach, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Email: "demo@test.cd"})
	require.NoError(t, err)
	assert.NoError(t, coach.CheckPassword(testPwd))

	classes, err := cli.rosterSvc.QueryClasses(ctx, coach.ID, roster.ClassFilter{}, nil)
	require.NoError(t, err)
	require.Len(t, classes, 33)
	assert.Equal(t, 1, classes[0].Number)
	assert.Equal(t, "А", classes[0].ClassName)
	assert.Equal(t, 11, classes[32].Number)
	assert.Equal(t, "В", classes[32].ClassName)

	stds, err := cli.stdSvc.Query(ctx, coach.ID, standard.QueryFilter{}, nil)
	require.NoError(t, err)
	require.Len(t, stds, 3)

	// every numeric result is graded against the level of its student's class & gender
	for _, std := range stds {
		rows, err := cli.resultSvc.QueryByClasses(ctx, coach.ID, result.ClassResultsFilter{
			ClassIDs:   []int64{classes[4].ID},
			StandardID: std.ID,
		})
		require.NoError(t, err)
		require.Len(t, rows, 6)
		for _, row := range rows {
			assert.False(t, row.Value.IsEmpty())
			assert.False(t, row.Grade.IsEmpty())
			if std.HasNumericValue {
				assert.Equal(t, classes[4].Number, int(row.LevelNumber.Int))
			} else {
				assert.Equal(t, row.Value, row.Grade)
			}
		}
	}
}

func Test_commandLine_seed_isDeterministic(t *testing.T) {
	names := func() []string {
		cli := setup(t)
		coach := testutil.CreateUser(t, cli.usrRepo, "Coach", "coach@test.cd", testPwd, true)
		_, err := cli.seed(context.Background(), coach)
		require.NoError(t, err)

		students, err := cli.rosterSvc.QueryStudents(context.Background(), coach.ID, roster.StudentFilter{}, nil)
		require.NoError(t, err)
		out := make([]string, 0, len(students))
		for _, s := range students {
			out = append(out, fmt.Sprintf("%s %d %s", s.FullName, s.ClassID, s.Birthday))
		}
		return out
	}
	assert.Equal(t, names(), names())
}
