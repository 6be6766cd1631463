package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/coachdiary/core"
	"github.com/trezcool/coachdiary/core/result"
	"github.com/trezcool/coachdiary/core/roster"
	"github.com/trezcool/coachdiary/core/standard"
	"github.com/trezcool/coachdiary/core/user"
)

const (
	seedRandSource    = 2020
	seedBoysPerClass  = 3
	seedGirlsPerClass = 3
)

var (
	errAlreadySeeded = errors.New("the coach already has classes")

	seedClassNames = []string{"А", "Б", "В"}
	seedBoyNames   = []string{"Ivan", "Petr", "Oleg", "Anton", "Dmitry", "Sergey", "Nikita", "Artem"}
	seedGirlNames  = []string{"Maria", "Anna", "Olga", "Elena", "Daria", "Sofia", "Alina", "Polina"}
	seedLastNames  = []string{"Ivanov", "Petrov", "Sidorov", "Smirnov", "Kuznetsov", "Popov", "Sokolov", "Volkov"}
	seedSkillMarks = []result.Mark{"A", "B", "C"}
)

// seedStandard describes a demo standard. Numeric ones get a level per rank & gender built by thresholds.
type seedStandard struct {
	name       string
	thresholds func(rank int, gender string) (low, middle, high float64)
}

var seedStandards = []seedStandard{
	{
		name: "Push-ups",
		thresholds: func(rank int, gender string) (float64, float64, float64) {
			low, middle, high := float64(5+rank), float64(10+2*rank), float64(15+3*rank)
			if gender == core.GenderFemale {
				return math.Round(low * .6), math.Round(middle * .6), math.Round(high * .6)
			}
			return low, middle, high
		},
	},
	{
		name: "Standing Long Jump",
		thresholds: func(rank int, gender string) (float64, float64, float64) {
			low, middle, high := float64(100+10*rank), float64(115+12*rank), float64(130+14*rank)
			if gender == core.GenderFemale {
				return low - 10, middle - 10, high - 10
			}
			return low, middle, high
		},
	},
	{name: "Gymnastics"},
}

type seedReport struct {
	Classes, Students, Standards, Results, Ungraded int
}

// seed fills the account of the coach with demo data: classes 1 to 11 (А, Б, В), students, standards with levels,
// and a result of every student on every standard, graded like any submission.
// The data only depends on the current year.
func (cli *commandLine) seed(ctx context.Context, coach user.User) (seedReport, error) {
	var rep seedReport
	existing, err := cli.rosterSvc.QueryClasses(ctx, coach.ID, roster.ClassFilter{}, nil)
	if err != nil {
		return rep, pkgerrors.Wrap(err, "checking existing classes")
	}
	if len(existing) > 0 {
		return rep, errAlreadySeeded
	}

	rnd := rand.New(rand.NewSource(seedRandSource))

	standards := make([]standard.Standard, 0, len(seedStandards))
	for _, s := range seedStandards {
		numeric := s.thresholds != nil
		ns := standard.NewStandard{Name: s.name, HasNumericValue: &numeric}
		if numeric {
			for rank := standard.MinLevelNumber; rank <= standard.MaxLevelNumber; rank++ {
				for _, gender := range []string{core.GenderMale, core.GenderFemale} {
					low, middle, high := s.thresholds(rank, gender)
					ns.Levels = append(ns.Levels, standard.Level{
						LevelNumber: rank,
						Gender:      gender,
						Low:         null.Float64From(low),
						Middle:      null.Float64From(middle),
						High:        null.Float64From(high),
					})
				}
			}
		}
		std, err := cli.stdSvc.Create(ctx, coach.ID, ns)
		if err != nil {
			return rep, pkgerrors.Wrapf(err, "creating standard %q", s.name)
		}
		standards = append(standards, std)
		rep.Standards++
	}

	year := core.CurrentYear()
	for number := 1; number <= 11; number++ {
		for _, name := range seedClassNames {
			class, err := cli.rosterSvc.CreateClass(ctx, coach.ID, roster.NewClass{Number: number, ClassName: name})
			if err != nil {
				return rep, pkgerrors.Wrapf(err, "creating class %d%s", number, name)
			}
			rep.Classes++

			students, err := cli.seedStudents(ctx, coach, class, year, rnd)
			if err != nil {
				return rep, err
			}
			rep.Students += len(students)

			for i, std := range standards {
				subs := make([]result.Submission, 0, len(students))
				for _, student := range students {
					subs = append(subs, result.Submission{
						StudentID:  student.ID,
						StandardID: std.ID,
						Value:      seedValue(seedStandards[i], number, student.Gender, rnd),
					})
				}
				outcomes, err := cli.resultSvc.SubmitBatch(ctx, coach.ID, subs)
				if err != nil {
					return rep, pkgerrors.Wrapf(err, "submitting %s results of class %d%s", std.Name, number, name)
				}
				for _, out := range outcomes {
					rep.Results++
					if out.Result.Grade.IsEmpty() {
						rep.Ungraded++
					}
				}
			}
		}
	}
	return rep, nil
}

func (cli *commandLine) seedStudents(ctx context.Context, coach user.User, class roster.StudentClass, year int, rnd *rand.Rand) ([]roster.Student, error) {
	students := make([]roster.Student, 0, seedBoysPerClass+seedGirlsPerClass)
	add := func(firstNames []string, gender string) error {
		first := firstNames[rnd.Intn(len(firstNames))]
		last := seedLastNames[rnd.Intn(len(seedLastNames))]
		if gender == core.GenderFemale {
			last += "a"
		}
		student, err := cli.rosterSvc.CreateStudent(ctx, coach.ID, roster.NewStudent{
			FullName: first + " " + last,
			Birthday: roster.NewDate(year-class.Number-7, time.Month(1+rnd.Intn(12)), 1+rnd.Intn(28)),
			Gender:   gender,
			ClassID:  class.ID,
		})
		if err != nil {
			return pkgerrors.Wrapf(err, "creating student of class %d%s", class.Number, class.ClassName)
		}
		students = append(students, student)
		return nil
	}

	for i := 0; i < seedBoysPerClass; i++ {
		if err := add(seedBoyNames, core.GenderMale); err != nil {
			return nil, err
		}
	}
	for i := 0; i < seedGirlsPerClass; i++ {
		if err := add(seedGirlNames, core.GenderFemale); err != nil {
			return nil, err
		}
	}
	return students, nil
}

// seedValue draws a value spread around the thresholds of the student's level, or a skill mark.
func seedValue(s seedStandard, rank int, gender string, rnd *rand.Rand) result.Mark {
	if s.thresholds == nil {
		return seedSkillMarks[rnd.Intn(len(seedSkillMarks))]
	}
	low, _, high := s.thresholds(rank, gender)
	spread := high - low
	return result.NumericMark(math.Round(low - spread/4 + rnd.Float64()*spread*1.5))
}

func (r seedReport) String() string {
	return fmt.Sprintf(
		"%d classes, %d students, %d standards, %d results (%d ungraded)",
		r.Classes, r.Students, r.Standards, r.Results, r.Ungraded,
	)
}
