package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/coachdiary/core"
	"github.com/trezcool/coachdiary/core/standard"
)

type standardRepository struct {
	db *DB
}

var _ standard.Repository = (*standardRepository)(nil) // interface compliance check

func NewStandardRepository(db *DB) standard.Repository {
	return &standardRepository{db: db}
}

func (repo *standardRepository) CheckNameUniqueness(_ context.Context, ownerID, name string, excludeID int64, _ ...core.DBExecutor) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, std := range repo.db.standards {
		if std.ID != excludeID && !std.IsDeleted() && std.OwnerID == ownerID && strings.EqualFold(std.Name, name) {
			return standard.ErrStandardExists
		}
	}
	return nil
}

func (repo *standardRepository) CreateStandard(_ context.Context, std standard.Standard, exec ...core.DBExecutor) (standard.Standard, error) {
	defer repo.db.lock(exec)()

	std.ID = repo.db.nextID()
	std.Levels = nil
	repo.db.standards[std.ID] = std
	return std, nil
}

func (repo *standardRepository) GetStandard(_ context.Context, id int64, withDeleted bool, _ ...core.DBExecutor) (standard.Standard, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	std, ok := repo.db.standards[id]
	if !ok || (std.IsDeleted() && !withDeleted) {
		return standard.Standard{}, standard.ErrNotFound
	}
	return std, nil
}

func (repo *standardRepository) QueryStandards(_ context.Context, filter standard.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]standard.Standard, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	search := strings.ToLower(filter.Search)
	standards := make([]standard.Standard, 0)
	for _, std := range repo.db.standards {
		if std.IsDeleted() && !filter.IncludeDeleted {
			continue
		}
		if filter.OwnerID != "" && std.OwnerID != filter.OwnerID {
			continue
		}
		if filter.HasNumeric != nil && std.HasNumericValue != *filter.HasNumeric {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(std.Name), search) {
			continue
		}
		standards = append(standards, std)
	}

	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "name", Ascending: true}}
	}
	sort.Slice(standards, lessFunc(ordering, func(field string, i, j int) int {
		a, b := standards[i], standards[j]
		switch field {
		case "name":
			return cmpStr(a.Name, b.Name)
		case "has_numeric_value":
			return cmpBool(a.HasNumericValue, b.HasNumericValue)
		case "created_at":
			return cmpTime(a.CreatedAt, b.CreatedAt)
		case "updated_at":
			return cmpTime(a.UpdatedAt, b.UpdatedAt)
		}
		return cmpInt(a.ID, b.ID)
	}))
	return standards, nil
}

func (repo *standardRepository) UpdateStandard(_ context.Context, std standard.Standard, exec ...core.DBExecutor) (standard.Standard, error) {
	defer repo.db.lock(exec)()

	if _, ok := repo.db.standards[std.ID]; !ok {
		return standard.Standard{}, standard.ErrNotFound
	}
	std.Levels = nil
	repo.db.standards[std.ID] = std
	return std, nil
}

func (repo *standardRepository) DeleteStandard(_ context.Context, id int64, at time.Time, exec ...core.DBExecutor) error {
	defer repo.db.lock(exec)()

	std, ok := repo.db.standards[id]
	if !ok {
		return standard.ErrNotFound
	}
	std.DeletedAt = null.TimeFrom(at)
	repo.db.standards[id] = std

	for rid, r := range repo.db.results {
		if r.StandardID == id && !r.DeletedAt.Valid {
			r.DeletedAt = null.TimeFrom(at)
			repo.db.results[rid] = r
		}
	}
	return nil
}

func (repo *standardRepository) RestoreStandard(_ context.Context, id int64, deletedAt time.Time, exec ...core.DBExecutor) error {
	defer repo.db.lock(exec)()

	std, ok := repo.db.standards[id]
	if !ok {
		return standard.ErrNotFound
	}
	std.DeletedAt = null.Time{}
	repo.db.standards[id] = std

	for rid, r := range repo.db.results {
		if r.StandardID == id && r.DeletedAt.Valid && r.DeletedAt.Time.Equal(deletedAt) {
			r.DeletedAt = null.Time{}
			repo.db.results[rid] = r
		}
	}
	return nil
}

func (repo *standardRepository) QueryLevels(_ context.Context, standardIDs []int64, _ ...core.DBExecutor) ([]standard.Level, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	levels := make([]standard.Level, 0)
	for _, lvl := range repo.db.levels {
		if containsInt64(standardIDs, lvl.StandardID) {
			levels = append(levels, lvl)
		}
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].ID < levels[j].ID })
	return levels, nil
}

// LockLevels needs no lock: writes wait for the running unit of work.
func (repo *standardRepository) LockLevels(ctx context.Context, standardID int64, exec core.DBExecutor) ([]standard.Level, error) {
	return repo.QueryLevels(ctx, []int64{standardID}, exec)
}

func (repo *standardRepository) CreateLevel(_ context.Context, lvl standard.Level, exec ...core.DBExecutor) (standard.Level, error) {
	defer repo.db.lock(exec)()

	lvl.ID = repo.db.nextID()
	repo.db.levels[lvl.ID] = lvl
	return lvl, nil
}

func (repo *standardRepository) UpdateLevel(_ context.Context, lvl standard.Level, exec ...core.DBExecutor) (standard.Level, error) {
	defer repo.db.lock(exec)()

	if _, ok := repo.db.levels[lvl.ID]; !ok {
		return standard.Level{}, standard.ErrUnknownLevel
	}
	repo.db.levels[lvl.ID] = lvl
	return lvl, nil
}

// DeleteLevels removes the levels and unlinks the results graded against them.
func (repo *standardRepository) DeleteLevels(_ context.Context, ids []int64, exec ...core.DBExecutor) error {
	defer repo.db.lock(exec)()

	for _, id := range ids {
		delete(repo.db.levels, id)
	}
	for rid, r := range repo.db.results {
		if r.LevelID.Valid && containsInt64(ids, r.LevelID.Int64) {
			r.LevelID = null.Int64{}
			repo.db.results[rid] = r
		}
	}
	return nil
}
