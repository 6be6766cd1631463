package roster

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/coachdiary/core"
)

const (
	MinClassNumber     = 1
	MaxClassNumber     = 11
	MinRecruitmentYear = 2000
)

// StudentClass is a school class (e.g. "5Б") curated by a coach.
type StudentClass struct {
	ID              int64     `json:"id"`
	Number          int       `json:"number"`
	ClassName       string    `json:"class_name"`
	OwnerID         string    `json:"class_owner"`
	RecruitmentYear int       `json:"recruitment_year"`
	CreatedAt       time.Time `json:"created_at"` // UTC
	UpdatedAt       time.Time `json:"updated_at"` // UTC
	DeletedAt       null.Time `json:"-"`
}

func (c StudentClass) String() string { return fmt.Sprintf("%d%s", c.Number, c.ClassName) }

func (c StudentClass) IsDeleted() bool { return c.DeletedAt.Valid }

type Student struct {
	ID        int64     `json:"id"`
	FullName  string    `json:"full_name"`
	Birthday  Date      `json:"birthday"`
	Gender    string    `json:"gender"`
	ClassID   int64     `json:"student_class"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
	DeletedAt null.Time `json:"-"`
}

func (s Student) IsDeleted() bool { return s.DeletedAt.Valid }

// NewClass contains information needed to create a new StudentClass.
// RecruitmentYear defaults to the current year minus Number.
type NewClass struct {
	Number          int    `json:"number" validate:"required,min=1,max=11"`
	ClassName       string `json:"class_name" validate:"required,classletter"`
	RecruitmentYear int    `json:"recruitment_year" validate:"omitempty,min=2000"`
}

func (nc *NewClass) Validate(validate *validator.Validate) error {
	nc.ClassName = strings.ToUpper(core.CleanString(nc.ClassName))
	if err := validate.Struct(nc); err != nil {
		return err
	}
	return validateRecruitmentYear(nc.RecruitmentYear)
}

// UpdateClass defines what information may be provided to modify an existing StudentClass.
type UpdateClass struct {
	Number          int    `json:"number" validate:"omitempty,min=1,max=11"`
	ClassName       string `json:"class_name" validate:"omitempty,classletter"`
	RecruitmentYear int    `json:"recruitment_year" validate:"omitempty,min=2000"`
}

func (uc *UpdateClass) Validate(validate *validator.Validate) error {
	uc.ClassName = strings.ToUpper(core.CleanString(uc.ClassName))
	if err := validate.Struct(uc); err != nil {
		return err
	}
	return validateRecruitmentYear(uc.RecruitmentYear)
}

// NewStudent contains information needed to create a new Student.
type NewStudent struct {
	FullName string `json:"full_name" validate:"required,notblank,max=1024"`
	Birthday Date   `json:"birthday"`
	Gender   string `json:"gender" validate:"required,gender"`
	ClassID  int64  `json:"student_class" validate:"required"`
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.FullName = core.CleanString(ns.FullName)
	ns.Gender = core.CleanString(ns.Gender, true /* lower */)
	if err := validate.Struct(ns); err != nil {
		return err
	}
	if ns.Birthday.IsZero() {
		return core.NewValidationError(nil, core.FieldError{Field: "birthday", Error: "this field is required"})
	}
	return validateBirthday(ns.Birthday)
}

// UpdateStudent defines what information may be provided to modify an existing Student.
// Setting ClassID moves the student to another class.
type UpdateStudent struct {
	FullName string `json:"full_name" validate:"omitempty,notblank,max=1024"`
	Birthday Date   `json:"birthday"`
	Gender   string `json:"gender" validate:"omitempty,gender"`
	ClassID  int64  `json:"student_class"`
}

func (us *UpdateStudent) Validate(validate *validator.Validate) error {
	us.FullName = core.CleanString(us.FullName)
	us.Gender = core.CleanString(us.Gender, true /* lower */)
	if err := validate.Struct(us); err != nil {
		return err
	}
	if us.Birthday.IsZero() {
		return nil
	}
	return validateBirthday(us.Birthday)
}

type ClassFilter struct {
	Numbers        []int  `query:"number"`
	IncludeDeleted bool   `query:"deleted"`
	OwnerID        string `query:"-"`
}

// StudentFilter applies AND operation on the set fields.
// Search does a case-insensitive match on Student.FullName.
type StudentFilter struct {
	Search         string  `query:"search"`
	ClassIDs       []int64 `query:"class_id"`
	Gender         string  `query:"gender"`
	BirthYearFrom  int     `query:"birth_year_from"`
	BirthYearTo    int     `query:"birth_year_to"`
	IncludeDeleted bool    `query:"deleted"`
	OwnerID        string  `query:"-"`
}

func (sf *StudentFilter) Clean() {
	sf.Search = core.CleanString(sf.Search)
	sf.Gender = core.CleanString(sf.Gender, true /* lower */)
}

func (sf *StudentFilter) Validate() error {
	var flds []core.FieldError
	if sf.Gender != "" && !core.IsGender(sf.Gender) {
		flds = append(flds, core.FieldError{Field: "gender", Error: "gender must be one of: m, f"})
	}
	curr := core.CurrentYear()
	yearErr := fmt.Sprintf("year must be between %d and %d", MinRecruitmentYear, curr)
	if sf.BirthYearFrom != 0 && (sf.BirthYearFrom < MinRecruitmentYear || sf.BirthYearFrom > curr) {
		flds = append(flds, core.FieldError{Field: "birth_year_from", Error: yearErr})
	}
	if sf.BirthYearTo != 0 && sf.BirthYearTo < MinRecruitmentYear {
		flds = append(flds, core.FieldError{Field: "birth_year_to", Error: yearErr})
	}
	if len(flds) > 0 {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

// OrderingFields list the fields classes and students may be ordered by.
var (
	ClassOrderingFields   = []string{"id", "number", "class_name", "recruitment_year", "created_at"}
	StudentOrderingFields = []string{"id", "full_name", "birthday", "gender", "student_class", "created_at"}
)

func validateRecruitmentYear(year int) error {
	if year != 0 && year > core.CurrentYear() {
		return core.NewValidationError(ErrFutureRecruitment, core.FieldError{Field: "recruitment_year", Error: ErrFutureRecruitment.Error()})
	}
	return nil
}

func validateBirthday(d Date) error {
	if d.Time.After(core.NowFunc().UTC()) {
		return core.NewValidationError(ErrFutureBirthday, core.FieldError{Field: "birthday", Error: ErrFutureBirthday.Error()})
	}
	return nil
}
