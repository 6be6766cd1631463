package inmemdb

import (
	"context"
	"sort"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/coachdiary/core"
	"github.com/trezcool/coachdiary/core/result"
)

type resultRepository struct {
	db *DB
}

var (
	_ result.Repository       = (*resultRepository)(nil) // interface compliance check
	_ result.ReportRepository = (*resultRepository)(nil)
)

func NewResultRepository(db *DB) result.Repository {
	return &resultRepository{db: db}
}

func NewReportRepository(db *DB) result.ReportRepository {
	return &resultRepository{db: db}
}

func (repo *resultRepository) UpsertResult(_ context.Context, r result.Result, exec ...core.DBExecutor) (result.Result, error) {
	defer repo.db.lock(exec)()

	r.Level = nil
	r.DeletedAt = null.Time{}
	for id, existing := range repo.db.results {
		if existing.StudentID == r.StudentID && existing.StandardID == r.StandardID {
			r.ID = id
			r.CreatedAt = existing.CreatedAt
			repo.db.results[id] = r
			return r, nil
		}
	}

	r.ID = repo.db.nextID()
	repo.db.results[r.ID] = r
	return r, nil
}

func (repo *resultRepository) GetResult(_ context.Context, studentID, standardID int64, _ ...core.DBExecutor) (result.Result, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, r := range repo.db.results {
		if r.StudentID == studentID && r.StandardID == standardID && !r.DeletedAt.Valid {
			return r, nil
		}
	}
	return result.Result{}, result.ErrNotFound
}

func (repo *resultRepository) QueryResults(_ context.Context, filter result.QueryFilter, _ ...core.DBExecutor) ([]result.Result, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	results := make([]result.Result, 0)
	for _, r := range repo.db.results {
		if r.DeletedAt.Valid {
			continue
		}
		if len(filter.StudentIDs) > 0 && !containsInt64(filter.StudentIDs, r.StudentID) {
			continue
		}
		if len(filter.StandardIDs) > 0 && !containsInt64(filter.StandardIDs, r.StandardID) {
			continue
		}
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return results, nil
}

func (repo *resultRepository) QueryClassResults(_ context.Context, filter result.ClassResultsFilter, _ ...core.DBExecutor) ([]result.ClassResult, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	rows := make([]result.ClassResult, 0)
	for _, s := range repo.db.students {
		if s.IsDeleted() || !containsInt64(filter.ClassIDs, s.ClassID) {
			continue
		}
		class, ok := repo.db.classes[s.ClassID]
		if !ok || class.IsDeleted() || (filter.OwnerID != "" && class.OwnerID != filter.OwnerID) {
			continue
		}

		row := result.ClassResult{
			StudentID:   s.ID,
			FullName:    s.FullName,
			Birthday:    s.Birthday,
			Gender:      s.Gender,
			ClassID:     class.ID,
			ClassNumber: class.Number,
			ClassName:   class.ClassName,
		}
		for _, r := range repo.db.results {
			if r.StudentID != s.ID || r.StandardID != filter.StandardID || r.DeletedAt.Valid {
				continue
			}
			row.Value = r.Value
			row.Grade = r.Grade
			if r.LevelID.Valid {
				if lvl, ok := repo.db.levels[r.LevelID.Int64]; ok {
					row.LevelNumber = null.IntFrom(lvl.LevelNumber)
				}
			}
			break
		}
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.ClassNumber != b.ClassNumber {
			return a.ClassNumber < b.ClassNumber
		}
		if c := cmpStr(a.ClassName, b.ClassName); c != 0 {
			return c < 0
		}
		if c := cmpStr(a.FullName, b.FullName); c != 0 {
			return c < 0
		}
		return a.StudentID < b.StudentID
	})
	return rows, nil
}
