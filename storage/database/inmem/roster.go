package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/coachdiary/core"
	"github.com/trezcool/coachdiary/core/roster"
)

type rosterRepository struct {
	db *DB
}

var _ roster.Repository = (*rosterRepository)(nil) // interface compliance check

func NewRosterRepository(db *DB) roster.Repository {
	return &rosterRepository{db: db}
}

// Classes

func (repo *rosterRepository) CheckClassUniqueness(_ context.Context, ownerID string, number int, className string, excludeID int64, _ ...core.DBExecutor) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, c := range repo.db.classes {
		if c.ID != excludeID && !c.IsDeleted() && c.OwnerID == ownerID && c.Number == number && c.ClassName == className {
			return roster.ErrClassExists
		}
	}
	return nil
}

func (repo *rosterRepository) CreateClass(_ context.Context, class roster.StudentClass, exec ...core.DBExecutor) (roster.StudentClass, error) {
	defer repo.db.lock(exec)()

	class.ID = repo.db.nextID()
	repo.db.classes[class.ID] = class
	return class, nil
}

func (repo *rosterRepository) GetClass(_ context.Context, id int64, withDeleted bool, _ ...core.DBExecutor) (roster.StudentClass, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	c, ok := repo.db.classes[id]
	if !ok || (c.IsDeleted() && !withDeleted) {
		return roster.StudentClass{}, roster.ErrClassNotFound
	}
	return c, nil
}

func (repo *rosterRepository) QueryClasses(_ context.Context, filter roster.ClassFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]roster.StudentClass, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	classes := make([]roster.StudentClass, 0)
	for _, c := range repo.db.classes {
		if c.IsDeleted() && !filter.IncludeDeleted {
			continue
		}
		if filter.OwnerID != "" && c.OwnerID != filter.OwnerID {
			continue
		}
		if len(filter.Numbers) > 0 {
			match := false
			for _, n := range filter.Numbers {
				match = match || n == c.Number
			}
			if !match {
				continue
			}
		}
		classes = append(classes, c)
	}

	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "number", Ascending: true}, {Field: "class_name", Ascending: true}}
	}
	sort.Slice(classes, lessFunc(ordering, func(field string, i, j int) int {
		a, b := classes[i], classes[j]
		switch field {
		case "number":
			return cmpInt(int64(a.Number), int64(b.Number))
		case "class_name":
			return cmpStr(a.ClassName, b.ClassName)
		case "recruitment_year":
			return cmpInt(int64(a.RecruitmentYear), int64(b.RecruitmentYear))
		case "created_at":
			return cmpTime(a.CreatedAt, b.CreatedAt)
		}
		return cmpInt(a.ID, b.ID)
	}))
	return classes, nil
}

func (repo *rosterRepository) UpdateClass(_ context.Context, class roster.StudentClass, exec ...core.DBExecutor) (roster.StudentClass, error) {
	defer repo.db.lock(exec)()

	if _, ok := repo.db.classes[class.ID]; !ok {
		return roster.StudentClass{}, roster.ErrClassNotFound
	}
	repo.db.classes[class.ID] = class
	return class, nil
}

func (repo *rosterRepository) DeleteClass(_ context.Context, id int64, at time.Time, exec ...core.DBExecutor) error {
	defer repo.db.lock(exec)()

	c, ok := repo.db.classes[id]
	if !ok {
		return roster.ErrClassNotFound
	}
	c.DeletedAt = null.TimeFrom(at)
	repo.db.classes[id] = c

	for sid, s := range repo.db.students {
		if s.ClassID == id && !s.IsDeleted() {
			s.DeletedAt = null.TimeFrom(at)
			repo.db.students[sid] = s
			repo.db.deleteStudentResults(sid, at)
		}
	}
	return nil
}

func (repo *rosterRepository) RestoreClass(_ context.Context, id int64, deletedAt time.Time, exec ...core.DBExecutor) error {
	defer repo.db.lock(exec)()

	c, ok := repo.db.classes[id]
	if !ok {
		return roster.ErrClassNotFound
	}
	c.DeletedAt = null.Time{}
	repo.db.classes[id] = c

	for sid, s := range repo.db.students {
		if s.ClassID == id && s.DeletedAt.Valid && s.DeletedAt.Time.Equal(deletedAt) {
			s.DeletedAt = null.Time{}
			repo.db.students[sid] = s
			repo.db.restoreStudentResults(sid, deletedAt)
		}
	}
	return nil
}

// Students

func (repo *rosterRepository) CreateStudent(_ context.Context, student roster.Student, exec ...core.DBExecutor) (roster.Student, error) {
	defer repo.db.lock(exec)()

	student.ID = repo.db.nextID()
	repo.db.students[student.ID] = student
	return student, nil
}

func (repo *rosterRepository) GetStudent(_ context.Context, id int64, withDeleted bool, _ ...core.DBExecutor) (roster.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	s, ok := repo.db.students[id]
	if !ok || (s.IsDeleted() && !withDeleted) {
		return roster.Student{}, roster.ErrStudentNotFound
	}
	return s, nil
}

func (repo *rosterRepository) QueryStudents(_ context.Context, filter roster.StudentFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]roster.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	search := strings.ToLower(filter.Search)
	students := make([]roster.Student, 0)
	for _, s := range repo.db.students {
		if s.IsDeleted() && !filter.IncludeDeleted {
			continue
		}
		if filter.OwnerID != "" {
			if c, ok := repo.db.classes[s.ClassID]; !ok || c.OwnerID != filter.OwnerID {
				continue
			}
		}
		if len(filter.ClassIDs) > 0 && !containsInt64(filter.ClassIDs, s.ClassID) {
			continue
		}
		if filter.Gender != "" && !strings.EqualFold(s.Gender, filter.Gender) {
			continue
		}
		if filter.BirthYearFrom != 0 && s.Birthday.Year() < filter.BirthYearFrom {
			continue
		}
		if filter.BirthYearTo != 0 && s.Birthday.Year() > filter.BirthYearTo {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(s.FullName), search) {
			continue
		}
		students = append(students, s)
	}

	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "full_name", Ascending: true}}
	}
	sort.Slice(students, lessFunc(ordering, func(field string, i, j int) int {
		a, b := students[i], students[j]
		switch field {
		case "full_name":
			return cmpStr(a.FullName, b.FullName)
		case "birthday":
			return cmpTime(a.Birthday.Time, b.Birthday.Time)
		case "gender":
			return cmpStr(a.Gender, b.Gender)
		case "student_class":
			return cmpInt(a.ClassID, b.ClassID)
		case "created_at":
			return cmpTime(a.CreatedAt, b.CreatedAt)
		}
		return cmpInt(a.ID, b.ID)
	}))
	return students, nil
}

func (repo *rosterRepository) UpdateStudent(_ context.Context, student roster.Student, exec ...core.DBExecutor) (roster.Student, error) {
	defer repo.db.lock(exec)()

	if _, ok := repo.db.students[student.ID]; !ok {
		return roster.Student{}, roster.ErrStudentNotFound
	}
	repo.db.students[student.ID] = student
	return student, nil
}

func (repo *rosterRepository) DeleteStudent(_ context.Context, id int64, at time.Time, exec ...core.DBExecutor) error {
	defer repo.db.lock(exec)()

	s, ok := repo.db.students[id]
	if !ok {
		return roster.ErrStudentNotFound
	}
	s.DeletedAt = null.TimeFrom(at)
	repo.db.students[id] = s
	repo.db.deleteStudentResults(id, at)
	return nil
}

func (repo *rosterRepository) RestoreStudent(_ context.Context, id int64, deletedAt time.Time, exec ...core.DBExecutor) error {
	defer repo.db.lock(exec)()

	s, ok := repo.db.students[id]
	if !ok {
		return roster.ErrStudentNotFound
	}
	s.DeletedAt = null.Time{}
	repo.db.students[id] = s
	repo.db.restoreStudentResults(id, deletedAt)
	return nil
}

// deleteStudentResults must be called with db.mutex held.
func (db *DB) deleteStudentResults(studentID int64, at time.Time) {
	for id, r := range db.results {
		if r.StudentID == studentID && !r.DeletedAt.Valid {
			r.DeletedAt = null.TimeFrom(at)
			db.results[id] = r
		}
	}
}

// restoreStudentResults must be called with db.mutex held.
func (db *DB) restoreStudentResults(studentID int64, deletedAt time.Time) {
	for id, r := range db.results {
		if r.StudentID == studentID && r.DeletedAt.Valid && r.DeletedAt.Time.Equal(deletedAt) {
			r.DeletedAt = null.Time{}
			db.results[id] = r
		}
	}
}
