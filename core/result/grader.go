package result

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/coachdiary/core"
	"github.com/trezcool/coachdiary/core/standard"
)

// Grades of numeric standards.
const (
	GradeExcellent = 5 // value >= high
	GradeGood      = 4 // value >= middle
	GradeFair      = 3 // value >= low
	GradeFail      = 2
)

var (
	ErrLevelNotResolved = errors.New("level not resolved")
	ErrValueNotNumeric  = errors.New("a valid number is required")
	ErrValueRequired    = errors.New("this field is required")
)

// Subject describes the student a value is evaluated for.
type Subject struct {
	Rank   int // class number
	Gender string
}

// Override lets the caller pick the level explicitly (LevelID) or evaluate against another rank (LevelNumber).
// LevelID takes precedence.
type Override struct {
	LevelID     null.Int64
	LevelNumber null.Int
}

type Evaluation struct {
	Level *standard.Level
	Grade Mark
}

// SelectLevel returns the level matching rank and gender.
// When several levels match, the one with the lowest ID wins.
func SelectLevel(levels []standard.Level, rank int, gender string) (standard.Level, bool) {
	var (
		match standard.Level
		found bool
	)
	for _, lvl := range levels {
		if lvl.LevelNumber != rank || lvl.Gender != gender {
			continue
		}
		if !found || lvl.ID < match.ID {
			match = lvl
			found = true
		}
	}
	return match, found
}

// DeriveGrade compares value against the thresholds of lvl, from the top: high, middle then low (inclusive).
func DeriveGrade(lvl standard.Level, value float64) int {
	switch {
	case value >= lvl.High.Float64:
		return GradeExcellent
	case value >= lvl.Middle.Float64:
		return GradeGood
	case value >= lvl.Low.Float64:
		return GradeFair
	}
	return GradeFail
}

// Evaluate resolves the level of std applying to subj and derives the grade of value.
// Skill standards (non-numeric) take value as grade, with or without level.
// Numeric standards without a matching level get no grade and a level-not-resolved error (see IsLevelNotResolved).
func Evaluate(std standard.Standard, levels []standard.Level, subj Subject, value Mark, ovr Override) (Evaluation, error) {
	if value.IsEmpty() {
		return Evaluation{}, core.NewValidationError(ErrValueRequired, core.FieldError{Field: "value", Error: ErrValueRequired.Error()})
	}

	var numValue float64
	if std.HasNumericValue {
		var ok bool
		if numValue, ok = value.Float(); !ok {
			return Evaluation{}, core.NewValidationError(ErrValueNotNumeric, core.FieldError{Field: "value", Error: ErrValueNotNumeric.Error()})
		}
	}

	var (
		lvl   standard.Level
		found bool
		rank  = subj.Rank
	)
	if ovr.LevelID.Valid {
		for _, l := range levels {
			if l.ID == ovr.LevelID.Int64 {
				lvl, found = l, true
				break
			}
		}
		if !found {
			return Evaluation{}, core.NewValidationError(standard.ErrUnknownLevel, core.FieldError{Field: "level_id", Error: standard.ErrUnknownLevel.Error()})
		}
	} else {
		if ovr.LevelNumber.Valid {
			rank = ovr.LevelNumber.Int
		}
		lvl, found = SelectLevel(levels, rank, subj.Gender)
	}

	var eval Evaluation
	if found {
		eval.Level = &lvl
	}

	switch {
	case !std.HasNumericValue:
		eval.Grade = value
	case found:
		eval.Grade = Mark(strconv.Itoa(DeriveGrade(lvl, numValue)))
	default:
		return eval, newLevelNotResolvedError(rank, subj.Gender)
	}
	return eval, nil
}

func newLevelNotResolvedError(rank int, gender string) error {
	return core.NewValidationError(ErrLevelNotResolved, core.FieldError{
		Field: "level",
		Error: fmt.Sprintf("no level matches rank %d and gender %s", rank, gender),
	})
}

// IsLevelNotResolved reports whether err tells that no level could be resolved for a numeric standard.
func IsLevelNotResolved(err error) bool {
	return errors.Is(err, ErrLevelNotResolved)
}
