package result

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/coachdiary/core"
	"github.com/trezcool/coachdiary/core/standard"
)

func numericLevel(id int64, number int, gender string, low, middle, high float64) standard.Level {
	return standard.Level{
		ID:          id,
		LevelNumber: number,
		Gender:      gender,
		Low:         null.Float64From(low),
		Middle:      null.Float64From(middle),
		High:        null.Float64From(high),
	}
}

func TestDeriveGrade(t *testing.T) {
	lvl := numericLevel(1, 5, core.GenderMale, 10, 20, 30)
	tests := []struct {
		value float64
		want  int
	}{
		{value: 30, want: GradeExcellent},
		{value: 31.5, want: GradeExcellent},
		{value: 25, want: GradeGood},
		{value: 20, want: GradeGood},
		{value: 15, want: GradeFair},
		{value: 10, want: GradeFair},
		{value: 5, want: GradeFail},
		{value: 0, want: GradeFail},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DeriveGrade(lvl, tt.value), "DeriveGrade(%v)", tt.value)
	}
}

func TestSelectLevel(t *testing.T) {
	levels := []standard.Level{
		numericLevel(7, 5, core.GenderMale, 1, 2, 3),
		numericLevel(3, 5, core.GenderMale, 4, 5, 6),
		numericLevel(4, 5, core.GenderFemale, 1, 2, 3),
		numericLevel(1, 6, core.GenderMale, 1, 2, 3),
	}

	lvl, ok := SelectLevel(levels, 5, core.GenderMale)
	require.True(t, ok)
	assert.Equal(t, int64(3), lvl.ID, "lowest id wins")

	lvl, ok = SelectLevel(levels, 5, core.GenderFemale)
	require.True(t, ok)
	assert.Equal(t, int64(4), lvl.ID)

	_, ok = SelectLevel(levels, 7, core.GenderMale)
	assert.False(t, ok)
	_, ok = SelectLevel(nil, 5, core.GenderMale)
	assert.False(t, ok)
}

func TestEvaluate(t *testing.T) {
	sprint := standard.Standard{ID: 1, Name: "100m Sprint", HasNumericValue: true}
	sprintLevels := []standard.Level{
		numericLevel(10, 5, core.GenderMale, 10, 12, 14),
		numericLevel(11, 5, core.GenderFemale, 9, 11, 13),
		numericLevel(12, 6, core.GenderMale, 11, 13, 15),
	}
	grammar := standard.Standard{ID: 2, Name: "English Grammar"}
	grammarLevels := []standard.Level{{ID: 20, LevelNumber: 5, Gender: core.GenderMale}}

	boy5 := Subject{Rank: 5, Gender: core.GenderMale}
	boy7 := Subject{Rank: 7, Gender: core.GenderMale}

	tests := []struct {
		name      string
		std       standard.Standard
		levels    []standard.Level
		subj      Subject
		value     Mark
		ovr       Override
		wantGrade Mark
		wantLevel int64 // 0: no level
		wantErr   error
		wantField string
	}{
		{name: "numeric: good", std: sprint, levels: sprintLevels, subj: boy5, value: "13", wantGrade: "4", wantLevel: 10},
		{name: "numeric: fail", std: sprint, levels: sprintLevels, subj: boy5, value: "9", wantGrade: "2", wantLevel: 10},
		{name: "numeric: decimal value", std: sprint, levels: sprintLevels, subj: boy5, value: "14.0", wantGrade: "5", wantLevel: 10},
		{name: "numeric: gender", std: sprint, levels: sprintLevels, subj: Subject{Rank: 5, Gender: core.GenderFemale}, value: "11", wantGrade: "4", wantLevel: 11},
		{name: "numeric: no level for the rank", std: sprint, levels: sprintLevels, subj: boy7, value: "13", wantErr: ErrLevelNotResolved, wantField: "level"},
		{name: "numeric: not a number", std: sprint, levels: sprintLevels, subj: boy5, value: "fast", wantErr: ErrValueNotNumeric, wantField: "value"},
		{name: "empty value", std: sprint, levels: sprintLevels, subj: boy5, value: " ", wantErr: ErrValueRequired, wantField: "value"},
		{
			name: "level_number overrides the rank", std: sprint, levels: sprintLevels, subj: boy7, value: "13",
			ovr: Override{LevelNumber: null.IntFrom(6)}, wantGrade: "4", wantLevel: 12,
		},
		{
			name: "level_id wins over level_number", std: sprint, levels: sprintLevels, subj: boy7, value: "13",
			ovr: Override{LevelID: null.Int64From(11), LevelNumber: null.IntFrom(6)}, wantGrade: "5", wantLevel: 11,
		},
		{
			name: "unknown level_id", std: sprint, levels: sprintLevels, subj: boy5, value: "13",
			ovr: Override{LevelID: null.Int64From(20)}, wantErr: standard.ErrUnknownLevel, wantField: "level_id",
		},
		{name: "skill: grade is the value", std: grammar, levels: grammarLevels, subj: boy5, value: "B", wantGrade: "B", wantLevel: 20},
		{name: "skill: no level needed", std: grammar, levels: grammarLevels, subj: boy7, value: "passed", wantGrade: "passed"},
		{name: "skill: numeric value kept as is", std: grammar, subj: boy5, value: "5", wantGrade: "5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eval, err := Evaluate(tt.std, tt.levels, tt.subj, tt.value, tt.ovr)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				require.True(t, core.IsValidationError(err))
				flds := err.(*core.ValidationError).Fields
				require.Len(t, flds, 1)
				assert.Equal(t, tt.wantField, flds[0].Field)
				assert.True(t, eval.Grade.IsEmpty())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantGrade, eval.Grade)
			if tt.wantLevel == 0 {
				assert.Nil(t, eval.Level)
			} else if assert.NotNil(t, eval.Level) {
				assert.Equal(t, tt.wantLevel, eval.Level.ID)
			}
		})
	}

	t.Run("level not resolved message", func(t *testing.T) {
		_, err := Evaluate(sprint, sprintLevels, boy7, "13", Override{})
		assert.True(t, IsLevelNotResolved(err))
		assert.Equal(t, "no level matches rank 7 and gender m", err.(*core.ValidationError).Fields[0].Error)
	})
}

func TestMark(t *testing.T) {
	t.Run("float", func(t *testing.T) {
		tests := []struct {
			mark    Mark
			want    float64
			wantNum bool
		}{
			{mark: "13", want: 13, wantNum: true},
			{mark: " 12.5 ", want: 12.5, wantNum: true},
			{mark: "-1", want: -1, wantNum: true},
			{mark: "B", wantNum: false},
			{mark: "NaN", wantNum: false},
			{mark: "", wantNum: false},
		}
		for _, tt := range tests {
			got, ok := tt.mark.Float()
			assert.Equal(t, tt.wantNum, ok, "%q.Float()", tt.mark)
			if tt.wantNum {
				assert.Equal(t, tt.want, got)
			}
		}
	})

	t.Run("json", func(t *testing.T) {
		data, err := json.Marshal(struct {
			Num, Text, Empty Mark
		}{Num: "12.50", Text: "B", Empty: ""})
		require.NoError(t, err)
		assert.JSONEq(t, `{"Num":12.5,"Text":"B","Empty":null}`, string(data))

		var got struct{ A, B, C Mark }
		require.NoError(t, json.Unmarshal([]byte(`{"A":13,"B":" passed ","C":null}`), &got))
		assert.Equal(t, Mark("13"), got.A)
		assert.Equal(t, Mark("passed"), got.B)
		assert.True(t, got.C.IsEmpty())

		assert.Error(t, json.Unmarshal([]byte(`{"A":true}`), &got))
	})

	t.Run("scan", func(t *testing.T) {
		var m Mark
		for _, tt := range []struct {
			src  interface{}
			want Mark
		}{
			{src: nil, want: ""},
			{src: "B", want: "B"},
			{src: []byte("12.5"), want: "12.5"},
			{src: 14.0, want: "14"},
			{src: int64(3), want: "3"},
		} {
			require.NoError(t, m.Scan(tt.src))
			assert.Equal(t, tt.want, m)
		}
		assert.Error(t, m.Scan(true))
	})
}
