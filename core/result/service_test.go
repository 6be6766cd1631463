package result_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/coachdiary/core"
	"github.com/trezcool/coachdiary/core/result"
	"github.com/trezcool/coachdiary/core/roster"
	"github.com/trezcool/coachdiary/core/standard"
	inmemdb "github.com/trezcool/coachdiary/storage/database/inmem"
	"github.com/trezcool/coachdiary/tests"
)

var errBoom = errors.New("boom")

// flakyRepo fails the upserts after the first okUpserts ones.
type flakyRepo struct {
	result.Repository
	okUpserts int
	upserts   int
}

func (r *flakyRepo) UpsertResult(ctx context.Context, res result.Result, exec ...core.DBExecutor) (result.Result, error) {
	r.upserts++
	if r.upserts > r.okUpserts {
		return result.Result{}, errBoom
	}
	return r.Repository.UpsertResult(ctx, res, exec...)
}

// execRepo records the executor of every upsert.
type execRepo struct {
	result.Repository
	execs []core.DBExecutor
}

func (r *execRepo) UpsertResult(ctx context.Context, res result.Result, exec ...core.DBExecutor) (result.Result, error) {
	var e core.DBExecutor
	if len(exec) > 0 {
		e = exec[0]
	}
	r.execs = append(r.execs, e)
	return r.Repository.UpsertResult(ctx, res, exec...)
}

// warnLogger records warnings.
type warnLogger struct {
	core.Logger
	warnings []string
}

func (l *warnLogger) Warn(msg string, _ ...interface{}) { l.warnings = append(l.warnings, msg) }

type fixture struct {
	svc     *result.Service
	repo    result.Repository
	logger  *warnLogger
	coachID string
	otherID string

	boy, girl, boy7 roster.Student
	foreign         roster.Student
	sprint, grammar standard.Standard
}

func setup(t *testing.T, opts result.Options, wrap ...func(result.Repository) result.Repository) fixture {
	conf := testutil.NewTestConfig()
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	rosterRepo := inmemdb.NewRosterRepository(db)
	stdRepo := inmemdb.NewStandardRepository(db)

	fx := fixture{
		repo:   inmemdb.NewResultRepository(db),
		logger: &warnLogger{Logger: testutil.NewLogger(conf)},
	}
	fx.coachID = testutil.CreateUser(t, usrRepo, "Coach", "coach@test.cd", "", true).ID
	fx.otherID = testutil.CreateUser(t, usrRepo, "Other", "other@test.cd", "", true).ID

	c5 := testutil.CreateClass(t, rosterRepo, fx.coachID, 5, "А")
	c7 := testutil.CreateClass(t, rosterRepo, fx.coachID, 7, "А")
	foreign := testutil.CreateClass(t, rosterRepo, fx.otherID, 5, "А")
	bday := roster.NewDate(2012, time.March, 4)
	fx.boy = testutil.CreateStudent(t, rosterRepo, c5.ID, "Ivan Petrov", core.GenderMale, bday)
	fx.girl = testutil.CreateStudent(t, rosterRepo, c5.ID, "Maria Ivanova", core.GenderFemale, bday)
	fx.boy7 = testutil.CreateStudent(t, rosterRepo, c7.ID, "Oleg Sidorov", core.GenderMale, bday)
	fx.foreign = testutil.CreateStudent(t, rosterRepo, foreign.ID, "Anna Stranger", core.GenderFemale, bday)

	fx.sprint = testutil.CreateStandard(t, stdRepo, fx.coachID, "100m Sprint", true,
		testutil.NumericLevel(5, core.GenderMale, 10, 12, 14),
		testutil.NumericLevel(5, core.GenderFemale, 9, 11, 13),
	)
	fx.grammar = testutil.CreateStandard(t, stdRepo, fx.coachID, "English Grammar", false)

	repo := fx.repo
	for _, w := range wrap {
		repo = w(repo)
	}
	rosterSvc := roster.NewService(db, rosterRepo)
	stdSvc := standard.NewService(db, stdRepo, nil, fx.logger)
	fx.svc = result.NewService(db, repo, inmemdb.NewReportRepository(db), rosterSvc, stdSvc, fx.logger, opts)
	return fx
}

func (fx fixture) savedValues(t *testing.T) map[int64]result.Mark {
	t.Helper()
	results, err := fx.repo.QueryResults(context.Background(), result.QueryFilter{})
	require.NoError(t, err)
	values := make(map[int64]result.Mark, len(results))
	for _, r := range results {
		values[r.StudentID] = r.Value
	}
	return values
}

func sub(studentID, standardID int64, value result.Mark) result.Submission {
	return result.Submission{StudentID: studentID, StandardID: standardID, Value: value}
}

func TestService_Submit(t *testing.T) {
	ctx := context.Background()

	t.Run("grades numeric & skill standards", func(t *testing.T) {
		fx := setup(t, result.Options{BatchAtomic: true})

		res, err := fx.svc.Submit(ctx, fx.coachID, sub(fx.boy.ID, fx.sprint.ID, "13"))
		require.NoError(t, err)
		assert.NotZero(t, res.ID)
		assert.Equal(t, result.Mark("4"), res.Grade)
		require.NotNil(t, res.Level)
		assert.Equal(t, fx.sprint.Levels[0].ID, res.Level.ID)
		assert.Equal(t, null.Int64From(fx.sprint.Levels[0].ID), res.LevelID)

		res, err = fx.svc.Submit(ctx, fx.coachID, sub(fx.boy.ID, fx.grammar.ID, "B"))
		require.NoError(t, err)
		assert.Equal(t, result.Mark("B"), res.Grade)
		assert.Nil(t, res.Level)
	})

	t.Run("resubmission keeps one result", func(t *testing.T) {
		fx := setup(t, result.Options{BatchAtomic: true})

		first, err := fx.svc.Submit(ctx, fx.coachID, sub(fx.boy.ID, fx.sprint.ID, "9"))
		require.NoError(t, err)
		second, err := fx.svc.Submit(ctx, fx.coachID, sub(fx.boy.ID, fx.sprint.ID, "14"))
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		results, err := fx.repo.QueryResults(ctx, result.QueryFilter{StudentIDs: []int64{fx.boy.ID}})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, result.Mark("14"), results[0].Value)
		assert.Equal(t, result.Mark("5"), results[0].Grade)
	})

	t.Run("saves in a unit of work", func(t *testing.T) {
		rec := &execRepo{}
		fx := setup(t, result.Options{BatchAtomic: true}, func(r result.Repository) result.Repository {
			rec.Repository = r
			return rec
		})

		_, err := fx.svc.Submit(ctx, fx.coachID, sub(fx.boy.ID, fx.sprint.ID, "13"))
		require.NoError(t, err)
		require.Len(t, rec.execs, 1)
		assert.NotNil(t, rec.execs[0])
	})

	t.Run("a failed write saves nothing", func(t *testing.T) {
		fx := setup(t, result.Options{BatchAtomic: true}, func(r result.Repository) result.Repository {
			return &flakyRepo{Repository: r}
		})

		_, err := fx.svc.Submit(ctx, fx.coachID, sub(fx.boy.ID, fx.sprint.ID, "13"))
		assert.ErrorIs(t, err, errBoom)
		assert.Empty(t, fx.savedValues(t))
	})

	t.Run("level not resolved", func(t *testing.T) {
		fx := setup(t, result.Options{BatchAtomic: true})

		_, err := fx.svc.Submit(ctx, fx.coachID, sub(fx.boy7.ID, fx.sprint.ID, "13"))
		assert.True(t, result.IsLevelNotResolved(err))
		assert.Equal(t, map[string]string{"level": "no level matches rank 7 and gender m"}, testutil.FieldErrors(t, err))
		assert.Empty(t, fx.savedValues(t))
		assert.Len(t, fx.logger.warnings, 1)
	})

	t.Run("level not resolved: kept ungraded", func(t *testing.T) {
		fx := setup(t, result.Options{BatchAtomic: true, KeepUngraded: true})

		res, err := fx.svc.Submit(ctx, fx.coachID, sub(fx.boy7.ID, fx.sprint.ID, "13"))
		require.NoError(t, err)
		assert.True(t, res.Grade.IsEmpty())
		assert.Nil(t, res.Level)
		assert.False(t, res.LevelID.Valid)
		assert.Equal(t, map[int64]result.Mark{fx.boy7.ID: "13"}, fx.savedValues(t))
	})

	t.Run("other coach's student", func(t *testing.T) {
		fx := setup(t, result.Options{BatchAtomic: true})

		_, err := fx.svc.Submit(ctx, fx.coachID, sub(fx.foreign.ID, fx.sprint.ID, "13"))
		assert.True(t, core.IsPermissionDenied(err))
	})

	t.Run("unknown standard", func(t *testing.T) {
		fx := setup(t, result.Options{BatchAtomic: true})

		_, err := fx.svc.Submit(ctx, fx.coachID, sub(fx.boy.ID, 9999, "13"))
		assert.True(t, core.IsNotFound(err))
	})
}

func TestService_SubmitBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("empty", func(t *testing.T) {
		fx := setup(t, result.Options{BatchAtomic: true})
		_, err := fx.svc.SubmitBatch(ctx, fx.coachID, nil)
		assert.ErrorIs(t, err, result.ErrEmptyBatch)
		assert.True(t, core.IsValidationError(err))
	})

	tests := []struct {
		name       string
		opts       result.Options
		okUpserts  int // -1: never fail
		subs       func(fx fixture) []result.Submission
		wantErr    error
		wantFailed []int
		wantSaved  func(fx fixture) map[int64]result.Mark
	}{
		{
			name: "atomic: all saved", opts: result.Options{BatchAtomic: true}, okUpserts: -1,
			subs: func(fx fixture) []result.Submission {
				return []result.Submission{sub(fx.boy.ID, fx.sprint.ID, "13"), sub(fx.girl.ID, fx.sprint.ID, "8")}
			},
			wantSaved: func(fx fixture) map[int64]result.Mark {
				return map[int64]result.Mark{fx.boy.ID: "13", fx.girl.ID: "8"}
			},
		},
		{
			name: "atomic: an invalid entry saves nothing", opts: result.Options{BatchAtomic: true}, okUpserts: -1,
			subs: func(fx fixture) []result.Submission {
				return []result.Submission{sub(fx.boy.ID, fx.sprint.ID, "13"), sub(fx.boy7.ID, fx.sprint.ID, "13")}
			},
			wantErr: result.ErrBatchRejected, wantFailed: []int{1},
			wantSaved: func(fixture) map[int64]result.Mark { return map[int64]result.Mark{} },
		},
		{
			name: "atomic: a failed write rolls back", opts: result.Options{BatchAtomic: true}, okUpserts: 1,
			subs: func(fx fixture) []result.Submission {
				return []result.Submission{sub(fx.boy.ID, fx.sprint.ID, "13"), sub(fx.girl.ID, fx.sprint.ID, "8")}
			},
			wantErr:   errBoom,
			wantSaved: func(fixture) map[int64]result.Mark { return map[int64]result.Mark{} },
		},
		{
			name: "isolated: valid entries are saved", opts: result.Options{}, okUpserts: -1,
			subs: func(fx fixture) []result.Submission {
				return []result.Submission{
					sub(fx.boy.ID, fx.sprint.ID, "13"),
					sub(fx.foreign.ID, fx.sprint.ID, "13"),
					sub(fx.girl.ID, fx.sprint.ID, "fast"),
				}
			},
			wantErr: result.ErrBatchRejected, wantFailed: []int{1, 2},
			wantSaved: func(fx fixture) map[int64]result.Mark {
				return map[int64]result.Mark{fx.boy.ID: "13"}
			},
		},
		{
			name: "isolated: a failed write only fails its entry", opts: result.Options{}, okUpserts: 1,
			subs: func(fx fixture) []result.Submission {
				return []result.Submission{sub(fx.boy.ID, fx.sprint.ID, "13"), sub(fx.girl.ID, fx.sprint.ID, "8")}
			},
			wantErr: result.ErrBatchRejected, wantFailed: []int{1},
			wantSaved: func(fx fixture) map[int64]result.Mark {
				return map[int64]result.Mark{fx.boy.ID: "13"}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var wrap []func(result.Repository) result.Repository
			if tt.okUpserts >= 0 {
				wrap = append(wrap, func(r result.Repository) result.Repository {
					return &flakyRepo{Repository: r, okUpserts: tt.okUpserts}
				})
			}
			fx := setup(t, tt.opts, wrap...)
			subs := tt.subs(fx)

			outcomes, err := fx.svc.SubmitBatch(ctx, fx.coachID, subs)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantSaved(fx), fx.savedValues(t))

			if tt.wantErr == errBoom {
				assert.Nil(t, outcomes)
				return
			}
			require.Len(t, outcomes, len(subs))
			var failed []int
			for i, out := range outcomes {
				assert.Equal(t, i, out.Index)
				if !out.OK() {
					failed = append(failed, i)
					assert.Nil(t, out.Result)
					assert.False(t, out.Saved)
				} else if tt.wantErr == nil || !tt.opts.BatchAtomic {
					assert.NotNil(t, out.Result)
					assert.True(t, out.Saved)
				} else {
					assert.Nil(t, out.Result)
					assert.False(t, out.Saved, "rolled back")
				}
			}
			assert.Equal(t, tt.wantFailed, failed)
		})
	}
}

func TestService_QueryByStudent(t *testing.T) {
	ctx := context.Background()
	fx := setup(t, result.Options{BatchAtomic: true})

	_, err := fx.svc.Submit(ctx, fx.coachID, sub(fx.girl.ID, fx.sprint.ID, "10"))
	require.NoError(t, err)
	_, err = fx.svc.Submit(ctx, fx.coachID, sub(fx.girl.ID, fx.grammar.ID, "A"))
	require.NoError(t, err)

	got, err := fx.svc.QueryByStudent(ctx, fx.coachID, fx.girl.ID)
	require.NoError(t, err)
	assert.Equal(t, []result.StudentResult{
		{
			Standard:    result.StandardRef{ID: fx.sprint.ID, Name: fx.sprint.Name, HasNumericValue: true},
			LevelNumber: null.IntFrom(5),
			Value:       "10",
			Grade:       "3",
		},
		{
			Standard: result.StandardRef{ID: fx.grammar.ID, Name: fx.grammar.Name},
			Value:    "A",
			Grade:    "A",
		},
	}, got)

	_, err = fx.svc.QueryByStudent(ctx, fx.otherID, fx.girl.ID)
	assert.True(t, core.IsPermissionDenied(err))
}
