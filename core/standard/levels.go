package standard

import (
	"fmt"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/coachdiary/core"
)

const (
	MinLevelNumber = 1
	MaxLevelNumber = 11
)

var (
	levelNumberText   = fmt.Sprintf("level number must be between %d and %d", MinLevelNumber, MaxLevelNumber)
	levelGenderText   = "gender must be one of: m, f"
	thresholdReqText  = "this field is required for numeric standards"
	thresholdNullText = "this field must be empty for non-numeric standards"
	thresholdNegText  = "this field must be greater than or equal to 0"
	thresholdOrdText  = "thresholds must satisfy low_level_value <= middle_level_value <= high_level_value"
	duplicateIDText   = "duplicate level id"
)

// ValidateLevels checks the shape of levels against the kind of their standard.
// Field errors are keyed `levels[i].<field>`.
func ValidateLevels(numeric bool, levels []Level) error {
	var flds []core.FieldError
	seen := make(map[int64]bool, len(levels))
	for i, lvl := range levels {
		flds = append(flds, validateLevel(fmt.Sprintf("levels[%d]", i), numeric, lvl)...)
		if lvl.ID != 0 {
			if seen[lvl.ID] {
				flds = append(flds, core.FieldError{Field: fmt.Sprintf("levels[%d].id", i), Error: duplicateIDText})
			}
			seen[lvl.ID] = true
		}
	}
	if len(flds) > 0 {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

func validateLevel(prefix string, numeric bool, lvl Level) []core.FieldError {
	var flds []core.FieldError
	add := func(field, msg string) {
		flds = append(flds, core.FieldError{Field: prefix + "." + field, Error: msg})
	}

	if lvl.LevelNumber < MinLevelNumber || lvl.LevelNumber > MaxLevelNumber {
		add("level_number", levelNumberText)
	}
	if !core.IsGender(lvl.Gender) {
		add("gender", levelGenderText)
	}

	thresholds := []struct {
		field string
		val   null.Float64
	}{
		{"low_level_value", lvl.Low},
		{"middle_level_value", lvl.Middle},
		{"high_level_value", lvl.High},
	}
	if !numeric {
		for _, th := range thresholds {
			if th.val.Valid {
				add(th.field, thresholdNullText)
			}
		}
		return flds
	}

	complete := true
	for _, th := range thresholds {
		switch {
		case !th.val.Valid:
			add(th.field, thresholdReqText)
			complete = false
		case th.val.Float64 < 0:
			add(th.field, thresholdNegText)
			complete = false
		}
	}
	if complete && !(lvl.Low.Float64 <= lvl.Middle.Float64 && lvl.Middle.Float64 <= lvl.High.Float64) {
		flds = append(flds, core.FieldError{Field: prefix, Error: thresholdOrdText})
	}
	return flds
}
