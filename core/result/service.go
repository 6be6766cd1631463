package result

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/kat-co/vala"
	pkgerrors "github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/coachdiary/core"
	"github.com/trezcool/coachdiary/core/roster"
	"github.com/trezcool/coachdiary/core/standard"
)

var (
	// errors
	ErrNotFound      = core.NewNotFoundError("result")
	ErrEmptyBatch    = errors.New("a non-empty list of results is required")
	ErrBatchRejected = errors.New("some results could not be saved")
	ErrNotSaved      = errors.New("not saved: another entry of the batch was rejected")
)

type (
	Repository interface {
		// UpsertResult creates the result of (StudentID, StandardID) or overwrites the existing one.
		UpsertResult(ctx context.Context, r Result, exec ...core.DBExecutor) (Result, error)
		GetResult(ctx context.Context, studentID, standardID int64, exec ...core.DBExecutor) (Result, error)
		// QueryResults returns the live results matching filter ordered by ID.
		QueryResults(ctx context.Context, filter QueryFilter, exec ...core.DBExecutor) ([]Result, error)
	}

	ReportRepository interface {
		// QueryClassResults lists the live students of the classes of filter.OwnerID among filter.ClassIDs,
		// ordered by class then name, with their result on filter.StandardID.
		QueryClassResults(ctx context.Context, filter ClassResultsFilter, exec ...core.DBExecutor) ([]ClassResult, error)
	}

	// Roster is the part of roster.Service results depend on.
	Roster interface {
		GetStudentAndClass(ctx context.Context, coachID string, id int64, exec ...core.DBExecutor) (roster.Student, roster.StudentClass, error)
	}

	// Catalog is the part of standard.Service results depend on.
	Catalog interface {
		Get(ctx context.Context, coachID string, id int64, exec ...core.DBExecutor) (standard.Standard, error)
		Query(ctx context.Context, coachID string, filter standard.QueryFilter, ordering []core.DBOrdering) ([]standard.Standard, error)
	}

	ServiceInterface interface {
		Submit(ctx context.Context, coachID string, sub Submission) (Result, error)
		SubmitBatch(ctx context.Context, coachID string, subs []Submission) ([]Outcome, error)
		QueryByClasses(ctx context.Context, coachID string, filter ClassResultsFilter) ([]ClassResult, error)
		QueryByStudent(ctx context.Context, coachID string, studentID int64) ([]StudentResult, error)
	}

	Options struct {
		// BatchAtomic rolls back the whole batch when one entry fails; otherwise entries are saved independently.
		BatchAtomic bool
		// KeepUngraded saves numeric results no level matches (with an empty grade) instead of rejecting them.
		KeepUngraded bool
	}

	Service struct {
		tx      core.TxRunner
		repo    Repository
		reports ReportRepository
		roster  Roster
		catalog Catalog
		logger  core.Logger
		opts    Options
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(
	tx core.TxRunner,
	repo Repository,
	reports ReportRepository,
	rstr Roster,
	catalog Catalog,
	logger core.Logger,
	opts Options,
) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(tx, "tx"),
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(reports, "reports"),
		vala.IsNotNil(rstr, "roster"),
		vala.IsNotNil(catalog, "catalog"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &Service{
		tx:      tx,
		repo:    repo,
		reports: reports,
		roster:  rstr,
		catalog: catalog,
		logger:  logger,
		opts:    opts,
	}
}

// OptionsFromConfig reads the grading options from the app config.
func OptionsFromConfig(conf *core.Config) Options {
	return Options{
		BatchAtomic:  conf.Grading.BatchAtomic,
		KeepUngraded: conf.Grading.KeepUngraded,
	}
}

// evaluate resolves the student, the standard and the grade of a submission without writing anything.
// Given the executor of a unit of work, the levels it grades with cannot change before the unit of work ends.
func (svc *Service) evaluate(ctx context.Context, coachID string, sub Submission, exec ...core.DBExecutor) (Result, error) {
	student, class, err := svc.roster.GetStudentAndClass(ctx, coachID, sub.StudentID, exec...)
	if err != nil {
		return Result{}, pkgerrors.Wrap(err, "finding student")
	}
	std, err := svc.catalog.Get(ctx, coachID, sub.StandardID, exec...)
	if err != nil {
		return Result{}, pkgerrors.Wrap(err, "finding standard")
	}

	subj := Subject{Rank: class.Number, Gender: student.Gender}
	ovr := Override{LevelID: sub.LevelID, LevelNumber: sub.LevelNumber}
	eval, err := Evaluate(std, std.Levels, subj, sub.Value, ovr)
	if err != nil {
		if !IsLevelNotResolved(err) {
			return Result{}, err
		}
		svc.logger.Warn(
			fmt.Sprintf("no level of standard %d (%s) matches student %d", std.ID, std.Name, student.ID),
			map[string]interface{}{"rank": subj.Rank, "gender": subj.Gender, "level_number": sub.LevelNumber.Ptr()},
		)
		if !svc.opts.KeepUngraded {
			return Result{}, err
		}
	}

	r := Result{
		StudentID:  student.ID,
		StandardID: std.ID,
		Value:      sub.Value,
		Grade:      eval.Grade,
		Level:      eval.Level,
	}
	if eval.Level != nil {
		r.LevelID = null.Int64From(eval.Level.ID)
	}
	return r, nil
}

func (svc *Service) save(ctx context.Context, r Result, exec ...core.DBExecutor) (Result, error) {
	now := core.NowFunc().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	lvl := r.Level
	saved, err := svc.repo.UpsertResult(ctx, r, exec...)
	if err != nil {
		return Result{}, pkgerrors.Wrap(err, "saving result")
	}
	saved.Level = lvl
	return saved, nil
}

// Submit records a value for a student on a standard, replacing any previous one, in a single unit of work.
// The level and the grade are always derived, never taken from the caller.
func (svc *Service) Submit(ctx context.Context, coachID string, sub Submission) (Result, error) {
	var saved Result
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		r, err := svc.evaluate(ctx, coachID, sub, exec)
		if err != nil {
			return err
		}
		saved, err = svc.save(ctx, r, exec)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	return saved, nil
}

// SubmitBatch records several submissions and returns their outcomes in order.
// ErrBatchRejected is returned along with the outcomes when any entry failed. With Options.BatchAtomic the whole
// batch is one unit of work and nothing is saved then; otherwise each entry is its own unit of work.
func (svc *Service) SubmitBatch(ctx context.Context, coachID string, subs []Submission) ([]Outcome, error) {
	if len(subs) == 0 {
		return nil, core.NewValidationError(ErrEmptyBatch)
	}
	outcomes := make([]Outcome, len(subs))
	for i := range outcomes {
		outcomes[i].Index = i
	}

	if svc.opts.BatchAtomic {
		err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
			failed := false
			for i, sub := range subs {
				r, err := svc.evaluate(ctx, coachID, sub, exec)
				if err != nil {
					outcomes[i].Err = err
					failed = true
					continue
				}
				saved, err := svc.save(ctx, r, exec)
				if err != nil {
					return pkgerrors.Wrapf(err, "saving entry %d", i)
				}
				outcomes[i].Result = &saved
			}
			if failed {
				return ErrBatchRejected
			}
			return nil
		})
		switch {
		case errors.Is(err, ErrBatchRejected):
			for i := range outcomes {
				outcomes[i].Result = nil
			}
			return outcomes, ErrBatchRejected
		case err != nil:
			return nil, err
		}
		for i := range outcomes {
			outcomes[i].Saved = true
		}
		return outcomes, nil
	}

	failed := false
	for i, sub := range subs {
		err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
			r, err := svc.evaluate(ctx, coachID, sub, exec)
			if err != nil {
				return err
			}
			saved, err := svc.save(ctx, r, exec)
			if err != nil {
				return err
			}
			outcomes[i].Result = &saved
			return nil
		})
		if err != nil {
			outcomes[i].Result = nil
			outcomes[i].Err = err
			failed = true
			continue
		}
		outcomes[i].Saved = true
	}
	if failed {
		return outcomes, ErrBatchRejected
	}
	return outcomes, nil
}

// QueryByClasses lists the students of the coach's classes among filter.ClassIDs with their result on
// filter.StandardID. Classes of other coaches are left out.
func (svc *Service) QueryByClasses(ctx context.Context, coachID string, filter ClassResultsFilter) ([]ClassResult, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if _, err := svc.catalog.Get(ctx, coachID, filter.StandardID); err != nil {
		return nil, pkgerrors.Wrap(err, "finding standard")
	}
	filter.OwnerID = coachID
	rows, err := svc.reports.QueryClassResults(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "querying class results")
	}
	return rows, nil
}

// QueryByStudent lists the results of a student on the coach's standards.
func (svc *Service) QueryByStudent(ctx context.Context, coachID string, studentID int64) ([]StudentResult, error) {
	student, _, err := svc.roster.GetStudentAndClass(ctx, coachID, studentID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "finding student")
	}
	results, err := svc.repo.QueryResults(ctx, QueryFilter{StudentIDs: []int64{student.ID}})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "querying results")
	}
	standards, err := svc.catalog.Query(ctx, coachID, standard.QueryFilter{}, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "querying standards")
	}

	stds := make(map[int64]standard.Standard, len(standards))
	levelNums := make(map[int64]int)
	for _, std := range standards {
		stds[std.ID] = std
		for _, lvl := range std.Levels {
			levelNums[lvl.ID] = lvl.LevelNumber
		}
	}

	out := make([]StudentResult, 0, len(results))
	for _, r := range results {
		std, ok := stds[r.StandardID]
		if !ok {
			continue
		}
		sr := StudentResult{
			Standard: StandardRef{ID: std.ID, Name: std.Name, HasNumericValue: std.HasNumericValue},
			Value:    r.Value,
			Grade:    r.Grade,
		}
		if r.LevelID.Valid {
			if num, ok := levelNums[r.LevelID.Int64]; ok {
				sr.LevelNumber = null.IntFrom(num)
			}
		}
		out = append(out, sr)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Standard.Name < out[j].Standard.Name })
	return out, nil
}
