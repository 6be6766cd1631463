package result

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/coachdiary/core"
	"github.com/trezcool/coachdiary/core/roster"
	"github.com/trezcool/coachdiary/core/standard"
)

// Result is the value a student recorded for a standard, with its derived grade.
// There is at most one live Result per (student, standard).
type Result struct {
	ID         int64           `json:"-"`
	StudentID  int64           `json:"student_id"`
	StandardID int64           `json:"standard_id"`
	Value      Mark            `json:"value"`
	Grade      Mark            `json:"grade"`
	LevelID    null.Int64      `json:"-"`
	Level      *standard.Level `json:"level"`
	CreatedAt  time.Time       `json:"created_at"` // UTC
	UpdatedAt  time.Time       `json:"updated_at"` // UTC
	DeletedAt  null.Time       `json:"-"`
}

// Submission is a value recorded for a student on a standard.
// LevelID or LevelNumber may be set to override the level resolved from the student's class.
type Submission struct {
	StudentID   int64      `json:"student_id" validate:"required"`
	StandardID  int64      `json:"standard_id" validate:"required"`
	Value       Mark       `json:"value" validate:"required"`
	LevelID     null.Int64 `json:"level_id"`
	LevelNumber null.Int   `json:"level_number"`
}

func (sub *Submission) Validate(validate *validator.Validate) error {
	if err := validate.Struct(sub); err != nil {
		return err
	}
	if sub.LevelNumber.Valid && (sub.LevelNumber.Int < standard.MinLevelNumber || sub.LevelNumber.Int > standard.MaxLevelNumber) {
		return core.NewValidationError(nil, core.FieldError{
			Field: "level_number",
			Error: fmt.Sprintf("level number must be between %d and %d", standard.MinLevelNumber, standard.MaxLevelNumber),
		})
	}
	return nil
}

// Outcome is the outcome of one entry of a batch submission.
// Saved is false for the valid entries of a rejected atomic batch.
type Outcome struct {
	Index  int
	Result *Result
	Err    error
	Saved  bool
}

func (o Outcome) OK() bool { return o.Err == nil }

type QueryFilter struct {
	StudentIDs  []int64
	StandardIDs []int64
}

// ClassResultsFilter selects the results of the students of some classes on one standard.
type ClassResultsFilter struct {
	ClassIDs   []int64 `query:"class_id"`
	StandardID int64   `query:"standard_id"`
	OwnerID    string  `query:"-"`
}

func (f ClassResultsFilter) Validate() error {
	var flds []core.FieldError
	if len(f.ClassIDs) == 0 {
		flds = append(flds, core.FieldError{Field: "class_id", Error: "this field is required"})
	}
	if f.StandardID == 0 {
		flds = append(flds, core.FieldError{Field: "standard_id", Error: "this field is required"})
	}
	if len(flds) > 0 {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

// ClassResult is a student of the selected classes along with their result (if any) on the selected standard.
type ClassResult struct {
	StudentID   int64       `json:"id" boil:"student_id"`
	FullName    string      `json:"full_name" boil:"full_name"`
	Birthday    roster.Date `json:"birthday" boil:"birthday"`
	Gender      string      `json:"gender" boil:"gender"`
	ClassID     int64       `json:"class_id" boil:"class_id"`
	ClassNumber int         `json:"class_number" boil:"class_number"`
	ClassName   string      `json:"class_name" boil:"class_name"`
	Value       Mark        `json:"value" boil:"value"`
	Grade       Mark        `json:"grade" boil:"grade"`
	LevelNumber null.Int    `json:"level_number" boil:"level_number"`
}

// StudentResult is a result of a student as listed on their record.
type StudentResult struct {
	Standard    StandardRef `json:"standard"`
	LevelNumber null.Int    `json:"level_number"`
	Value       Mark        `json:"value"`
	Grade       Mark        `json:"grade"`
}

type StandardRef struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	HasNumericValue bool   `json:"has_numeric_value"`
}
