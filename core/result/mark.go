package result

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Mark is a recorded value or grade: a number ("12.5", "5") or free text ("B", "passed").
// It marshals to a JSON number when numeric, a JSON string otherwise and null when empty.
type Mark string

// NumericMark formats f as a Mark.
func NumericMark(f float64) Mark {
	return Mark(strconv.FormatFloat(f, 'f', -1, 64))
}

// Float returns the numeric value of the mark, if any.
func (m Mark) Float() (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(string(m)), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func (m Mark) IsEmpty() bool { return strings.TrimSpace(string(m)) == "" }

func (m Mark) MarshalJSON() ([]byte, error) {
	if m.IsEmpty() {
		return []byte("null"), nil
	}
	if f, ok := m.Float(); ok {
		return []byte(strconv.FormatFloat(f, 'f', -1, 64)), nil
	}
	return json.Marshal(string(m))
}

func (m *Mark) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	switch {
	case s == "null":
		*m = ""
	case strings.HasPrefix(s, `"`):
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*m = Mark(strings.TrimSpace(str))
	default:
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("mark must be a number or a string")
		}
		*m = NumericMark(f)
	}
	return nil
}

// Scan implements the sql.Scanner interface.
func (m *Mark) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*m = ""
	case string:
		*m = Mark(v)
	case []byte:
		*m = Mark(v)
	case float64:
		*m = NumericMark(v)
	case int64:
		*m = Mark(strconv.FormatInt(v, 10))
	default:
		return fmt.Errorf("cannot scan %T into Mark", value)
	}
	return nil
}

// Value implements the driver.Valuer interface.
func (m Mark) Value() (driver.Value, error) {
	return string(m), nil
}
