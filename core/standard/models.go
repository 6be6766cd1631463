package standard

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/coachdiary/core"
)

// Standard is a test students are graded on.
// Numeric standards (sprints, jumps...) are graded against threshold Levels;
// the others (skills) take the recorded value as grade.
type Standard struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	HasNumericValue bool      `json:"has_numeric_value"`
	OwnerID         string    `json:"owner_id"`
	Levels          []Level   `json:"levels"`
	CreatedAt       time.Time `json:"created_at"` // UTC
	UpdatedAt       time.Time `json:"updated_at"` // UTC
	DeletedAt       null.Time `json:"-"`
}

func (std Standard) IsDeleted() bool { return std.DeletedAt.Valid }

// Level holds the thresholds of a Standard for one rank (class number) and one gender.
// Low, Middle and High are only set for numeric standards.
type Level struct {
	ID          int64        `json:"id"`
	StandardID  int64        `json:"-"`
	LevelNumber int          `json:"level_number"`
	Gender      string       `json:"gender"`
	Low         null.Float64 `json:"low_level_value"`
	Middle      null.Float64 `json:"middle_level_value"`
	High        null.Float64 `json:"high_level_value"`
}

// NewStandard contains information needed to create a new Standard.
type NewStandard struct {
	Name            string  `json:"name" validate:"required,notblank,max=255"`
	HasNumericValue *bool   `json:"has_numeric_value" validate:"required"`
	Levels          []Level `json:"levels"`
}

func (ns *NewStandard) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	return validate.Struct(ns)
}

// UpdateStandard defines what information may be provided to modify an existing Standard.
// Levels, when provided, replace the current ones (see Service.ReplaceLevels).
type UpdateStandard struct {
	Name            string   `json:"name" validate:"omitempty,notblank,max=255"`
	HasNumericValue *bool    `json:"has_numeric_value"`
	Levels          *[]Level `json:"levels"`
}

func (us *UpdateStandard) Validate(validate *validator.Validate) error {
	us.Name = core.CleanString(us.Name)
	return validate.Struct(us)
}

type QueryFilter struct {
	Search         string `query:"search"`
	HasNumeric     *bool  `query:"-"` // bound by hand from has_numeric_value
	IncludeDeleted bool   `query:"deleted"`
	OwnerID        string `query:"-"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// OrderingFields lists the fields standards may be ordered by.
var OrderingFields = []string{"id", "name", "has_numeric_value", "created_at", "updated_at"}
