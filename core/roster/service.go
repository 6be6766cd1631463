package roster

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/kat-co/vala"
	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/coachdiary/core"
)

var (
	// errors
	ErrClassNotFound     = core.NewNotFoundError("class")
	ErrStudentNotFound   = core.NewNotFoundError("student")
	ErrClassExists       = errors.New("a class with this number and name already exists")
	ErrFutureRecruitment = errors.New("recruitment year cannot be later than the current year")
	ErrFutureBirthday    = errors.New("birthday cannot be in the future")
	ErrNotDeleted        = errors.New("object is not deleted")
	ErrClassDeleted      = errors.New("the class of this student is deleted")
)

type (
	Repository interface {
		CheckClassUniqueness(ctx context.Context, ownerID string, number int, className string, excludeID int64, exec ...core.DBExecutor) error
		CreateClass(ctx context.Context, class StudentClass, exec ...core.DBExecutor) (StudentClass, error)
		// GetClass returns ErrClassNotFound for soft-deleted classes unless withDeleted.
		GetClass(ctx context.Context, id int64, withDeleted bool, exec ...core.DBExecutor) (StudentClass, error)
		QueryClasses(ctx context.Context, filter ClassFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]StudentClass, error)
		UpdateClass(ctx context.Context, class StudentClass, exec ...core.DBExecutor) (StudentClass, error)
		// DeleteClass soft deletes the class, its students and their results.
		DeleteClass(ctx context.Context, id int64, at time.Time, exec ...core.DBExecutor) error
		// RestoreClass undeletes the class and the students & results deleted along with it.
		RestoreClass(ctx context.Context, id int64, deletedAt time.Time, exec ...core.DBExecutor) error

		CreateStudent(ctx context.Context, student Student, exec ...core.DBExecutor) (Student, error)
		// GetStudent returns ErrStudentNotFound for soft-deleted students unless withDeleted.
		GetStudent(ctx context.Context, id int64, withDeleted bool, exec ...core.DBExecutor) (Student, error)
		QueryStudents(ctx context.Context, filter StudentFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Student, error)
		UpdateStudent(ctx context.Context, student Student, exec ...core.DBExecutor) (Student, error)
		// DeleteStudent soft deletes the student and their results.
		DeleteStudent(ctx context.Context, id int64, at time.Time, exec ...core.DBExecutor) error
		// RestoreStudent undeletes the student and the results deleted along with them.
		RestoreStudent(ctx context.Context, id int64, deletedAt time.Time, exec ...core.DBExecutor) error
	}

	ServiceInterface interface {
		CreateClass(ctx context.Context, coachID string, nc NewClass) (StudentClass, error)
		GetClass(ctx context.Context, coachID string, id int64) (StudentClass, error)
		QueryClasses(ctx context.Context, coachID string, filter ClassFilter, ordering []core.DBOrdering) ([]StudentClass, error)
		UpdateClass(ctx context.Context, coachID string, id int64, uc UpdateClass) (StudentClass, error)
		DeleteClass(ctx context.Context, coachID string, id int64) error
		RestoreClass(ctx context.Context, coachID string, id int64) (StudentClass, error)

		CreateStudent(ctx context.Context, coachID string, ns NewStudent) (Student, error)
		GetStudent(ctx context.Context, coachID string, id int64) (Student, error)
		GetStudentAndClass(ctx context.Context, coachID string, id int64, exec ...core.DBExecutor) (Student, StudentClass, error)
		QueryStudents(ctx context.Context, coachID string, filter StudentFilter, ordering []core.DBOrdering) ([]Student, error)
		UpdateStudent(ctx context.Context, coachID string, id int64, us UpdateStudent) (Student, error)
		DeleteStudent(ctx context.Context, coachID string, id int64) error
		RestoreStudent(ctx context.Context, coachID string, id int64) (Student, error)
	}

	Service struct {
		tx   core.TxRunner
		repo Repository
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(tx core.TxRunner, repo Repository) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(tx, "tx"),
		vala.IsNotNil(repo, "repo"),
	).CheckAndPanic()
	return &Service{tx: tx, repo: repo}
}

// Classes

func (svc *Service) getOwnedClass(ctx context.Context, coachID string, id int64, withDeleted bool, exec ...core.DBExecutor) (StudentClass, error) {
	class, err := svc.repo.GetClass(ctx, id, withDeleted, exec...)
	if err != nil {
		return StudentClass{}, err
	}
	if class.OwnerID != coachID {
		return StudentClass{}, core.ErrPermissionDenied
	}
	return class, nil
}

func (svc *Service) checkClassUniqueness(ctx context.Context, class StudentClass, exec ...core.DBExecutor) error {
	if err := svc.repo.CheckClassUniqueness(ctx, class.OwnerID, class.Number, class.ClassName, class.ID, exec...); err != nil {
		if pkgerrors.Cause(err) == ErrClassExists {
			return core.NewValidationError(ErrClassExists,
				core.FieldError{Field: "number", Error: ErrClassExists.Error()},
				core.FieldError{Field: "class_name", Error: ErrClassExists.Error()},
			)
		}
		return pkgerrors.Wrap(err, "checking class uniqueness")
	}
	return nil
}

func (svc *Service) CreateClass(ctx context.Context, coachID string, nc NewClass) (StudentClass, error) {
	if coachID == "" {
		return StudentClass{}, core.ErrPermissionDenied
	}

	now := core.NowFunc().UTC()
	class := StudentClass{
		Number:          nc.Number,
		ClassName:       strings.ToUpper(nc.ClassName),
		OwnerID:         coachID,
		RecruitmentYear: nc.RecruitmentYear,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if class.RecruitmentYear == 0 {
		class.RecruitmentYear = now.Year() - class.Number
	}
	if err := validateRecruitmentYear(class.RecruitmentYear); err != nil {
		return StudentClass{}, err
	}

	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		if err := svc.checkClassUniqueness(ctx, class, exec); err != nil {
			return err
		}
		var err error
		class, err = svc.repo.CreateClass(ctx, class, exec)
		return pkgerrors.Wrap(err, "creating class")
	})
	if err != nil {
		return StudentClass{}, err
	}
	return class, nil
}

func (svc *Service) GetClass(ctx context.Context, coachID string, id int64) (StudentClass, error) {
	return svc.getOwnedClass(ctx, coachID, id, false)
}

func (svc *Service) QueryClasses(ctx context.Context, coachID string, filter ClassFilter, ordering []core.DBOrdering) ([]StudentClass, error) {
	filter.OwnerID = coachID
	classes, err := svc.repo.QueryClasses(ctx, filter, core.FilterOrderings(ordering, ClassOrderingFields...))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "querying classes")
	}
	return classes, nil
}

func (svc *Service) UpdateClass(ctx context.Context, coachID string, id int64, uc UpdateClass) (StudentClass, error) {
	var class StudentClass
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if class, err = svc.getOwnedClass(ctx, coachID, id, false, exec); err != nil {
			return err
		}

		if uc.Number != 0 {
			class.Number = uc.Number
		}
		if uc.ClassName != "" {
			class.ClassName = strings.ToUpper(uc.ClassName)
		}
		if uc.RecruitmentYear != 0 {
			class.RecruitmentYear = uc.RecruitmentYear
		}
		if err = validateRecruitmentYear(class.RecruitmentYear); err != nil {
			return err
		}
		if err = svc.checkClassUniqueness(ctx, class, exec); err != nil {
			return err
		}

		class.UpdatedAt = core.NowFunc().UTC()
		class, err = svc.repo.UpdateClass(ctx, class, exec)
		return pkgerrors.Wrap(err, "updating class")
	})
	if err != nil {
		return StudentClass{}, err
	}
	return class, nil
}

func (svc *Service) DeleteClass(ctx context.Context, coachID string, id int64) error {
	return svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		if _, err := svc.getOwnedClass(ctx, coachID, id, false, exec); err != nil {
			return err
		}
		return pkgerrors.Wrap(svc.repo.DeleteClass(ctx, id, core.NowFunc().UTC(), exec), "deleting class")
	})
}

func (svc *Service) RestoreClass(ctx context.Context, coachID string, id int64) (StudentClass, error) {
	var class StudentClass
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if class, err = svc.getOwnedClass(ctx, coachID, id, true, exec); err != nil {
			return err
		}
		if !class.IsDeleted() {
			return core.NewValidationError(ErrNotDeleted)
		}
		if err = svc.checkClassUniqueness(ctx, class, exec); err != nil {
			return err
		}
		if err = svc.repo.RestoreClass(ctx, id, class.DeletedAt.Time, exec); err != nil {
			return pkgerrors.Wrap(err, "restoring class")
		}
		class, err = svc.repo.GetClass(ctx, id, false, exec)
		return err
	})
	if err != nil {
		return StudentClass{}, err
	}
	return class, nil
}

// Students

// getOwnedStudent fetches the student and checks that coachID owns their class.
func (svc *Service) getOwnedStudent(ctx context.Context, coachID string, id int64, withDeleted bool, exec ...core.DBExecutor) (Student, StudentClass, error) {
	student, err := svc.repo.GetStudent(ctx, id, withDeleted, exec...)
	if err != nil {
		return Student{}, StudentClass{}, err
	}
	class, err := svc.repo.GetClass(ctx, student.ClassID, true, exec...)
	if err != nil {
		return Student{}, StudentClass{}, pkgerrors.Wrap(err, "finding class of student")
	}
	if class.OwnerID != coachID {
		return Student{}, StudentClass{}, core.ErrPermissionDenied
	}
	return student, class, nil
}

// classFieldErr maps the errors of a class lookup done on behalf of a student to the student_class field.
func classFieldErr(err error) error {
	switch {
	case core.IsNotFound(err):
		return core.NewValidationError(err, core.FieldError{Field: "student_class", Error: err.Error()})
	case core.IsPermissionDenied(err):
		return core.NewValidationError(err, core.FieldError{Field: "student_class", Error: ErrClassNotFound.Error()})
	}
	return err
}

func (svc *Service) CreateStudent(ctx context.Context, coachID string, ns NewStudent) (Student, error) {
	var student Student
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		if _, err := svc.getOwnedClass(ctx, coachID, ns.ClassID, false, exec); err != nil {
			return classFieldErr(err)
		}

		now := core.NowFunc().UTC()
		var err error
		student, err = svc.repo.CreateStudent(ctx, Student{
			FullName:  ns.FullName,
			Birthday:  ns.Birthday,
			Gender:    ns.Gender,
			ClassID:   ns.ClassID,
			CreatedAt: now,
			UpdatedAt: now,
		}, exec)
		return pkgerrors.Wrap(err, "creating student")
	})
	if err != nil {
		return Student{}, err
	}
	return student, nil
}

func (svc *Service) GetStudent(ctx context.Context, coachID string, id int64) (Student, error) {
	student, _, err := svc.getOwnedStudent(ctx, coachID, id, false)
	return student, err
}

func (svc *Service) GetStudentAndClass(ctx context.Context, coachID string, id int64, exec ...core.DBExecutor) (Student, StudentClass, error) {
	return svc.getOwnedStudent(ctx, coachID, id, false, exec...)
}

func (svc *Service) QueryStudents(ctx context.Context, coachID string, filter StudentFilter, ordering []core.DBOrdering) ([]Student, error) {
	filter.Clean()
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	filter.OwnerID = coachID
	students, err := svc.repo.QueryStudents(ctx, filter, core.FilterOrderings(ordering, StudentOrderingFields...))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "querying students")
	}
	return students, nil
}

func (svc *Service) UpdateStudent(ctx context.Context, coachID string, id int64, us UpdateStudent) (Student, error) {
	var student Student
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if student, _, err = svc.getOwnedStudent(ctx, coachID, id, false, exec); err != nil {
			return err
		}

		if us.ClassID != 0 && us.ClassID != student.ClassID {
			if _, err = svc.getOwnedClass(ctx, coachID, us.ClassID, false, exec); err != nil {
				return classFieldErr(err)
			}
			student.ClassID = us.ClassID
		}
		if us.FullName != "" {
			student.FullName = us.FullName
		}
		if !us.Birthday.IsZero() {
			student.Birthday = us.Birthday
		}
		if us.Gender != "" {
			student.Gender = us.Gender
		}

		student.UpdatedAt = core.NowFunc().UTC()
		student, err = svc.repo.UpdateStudent(ctx, student, exec)
		return pkgerrors.Wrap(err, "updating student")
	})
	if err != nil {
		return Student{}, err
	}
	return student, nil
}

func (svc *Service) DeleteStudent(ctx context.Context, coachID string, id int64) error {
	return svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		if _, _, err := svc.getOwnedStudent(ctx, coachID, id, false, exec); err != nil {
			return err
		}
		return pkgerrors.Wrap(svc.repo.DeleteStudent(ctx, id, core.NowFunc().UTC(), exec), "deleting student")
	})
}

func (svc *Service) RestoreStudent(ctx context.Context, coachID string, id int64) (Student, error) {
	var student Student
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		var class StudentClass
		var err error
		if student, class, err = svc.getOwnedStudent(ctx, coachID, id, true, exec); err != nil {
			return err
		}
		if !student.IsDeleted() {
			return core.NewValidationError(ErrNotDeleted)
		}
		if class.IsDeleted() {
			return core.NewValidationError(ErrClassDeleted, core.FieldError{Field: "student_class", Error: ErrClassDeleted.Error()})
		}
		if err = svc.repo.RestoreStudent(ctx, id, student.DeletedAt.Time, exec); err != nil {
			return pkgerrors.Wrap(err, "restoring student")
		}
		student, err = svc.repo.GetStudent(ctx, id, false, exec)
		return err
	})
	if err != nil {
		return Student{}, err
	}
	return student, nil
}
