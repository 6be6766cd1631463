package standard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kat-co/vala"
	pkgerrors "github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/coachdiary/core"
)

var (
	// errors
	ErrNotFound       = core.NewNotFoundError("standard")
	ErrStandardExists = errors.New("a standard with this name already exists")
	ErrTypeChange     = errors.New("cannot change test type after creation")
	ErrNotDeleted     = errors.New("standard is not deleted")
	ErrUnknownLevel   = errors.New("level does not belong to this standard")
	ErrCacheMiss      = errors.New("levels cache miss")
)

type (
	Repository interface {
		CheckNameUniqueness(ctx context.Context, ownerID, name string, excludeID int64, exec ...core.DBExecutor) error
		CreateStandard(ctx context.Context, std Standard, exec ...core.DBExecutor) (Standard, error)
		// GetStandard returns ErrNotFound for soft-deleted standards unless withDeleted.
		GetStandard(ctx context.Context, id int64, withDeleted bool, exec ...core.DBExecutor) (Standard, error)
		QueryStandards(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Standard, error)
		UpdateStandard(ctx context.Context, std Standard, exec ...core.DBExecutor) (Standard, error)
		// DeleteStandard soft deletes the standard and its results.
		DeleteStandard(ctx context.Context, id int64, at time.Time, exec ...core.DBExecutor) error
		// RestoreStandard undeletes the standard and the results deleted along with it.
		RestoreStandard(ctx context.Context, id int64, deletedAt time.Time, exec ...core.DBExecutor) error

		// QueryLevels returns the levels of the given standards ordered by ID.
		QueryLevels(ctx context.Context, standardIDs []int64, exec ...core.DBExecutor) ([]Level, error)
		// LockLevels returns the levels of a standard ordered by ID and keeps them from changing until exec ends.
		LockLevels(ctx context.Context, standardID int64, exec core.DBExecutor) ([]Level, error)
		CreateLevel(ctx context.Context, lvl Level, exec ...core.DBExecutor) (Level, error)
		UpdateLevel(ctx context.Context, lvl Level, exec ...core.DBExecutor) (Level, error)
		DeleteLevels(ctx context.Context, ids []int64, exec ...core.DBExecutor) error
	}

	// LevelCache caches the levels of a standard. GetLevels returns ErrCacheMiss when nothing is cached.
	// InvalidateLevels bumps the version of the level set: SetLevels ignores levels read at an older version,
	// so a read racing with a level change cannot cache the old levels.
	LevelCache interface {
		GetLevels(ctx context.Context, standardID int64) ([]Level, error)
		LevelsVersion(ctx context.Context, standardID int64) (int64, error)
		SetLevels(ctx context.Context, standardID int64, levels []Level, version int64) error
		InvalidateLevels(ctx context.Context, standardID int64) error
	}

	ServiceInterface interface {
		Create(ctx context.Context, coachID string, ns NewStandard) (Standard, error)
		Get(ctx context.Context, coachID string, id int64, exec ...core.DBExecutor) (Standard, error)
		Query(ctx context.Context, coachID string, filter QueryFilter, ordering []core.DBOrdering) ([]Standard, error)
		Update(ctx context.Context, coachID string, id int64, us UpdateStandard) (Standard, error)
		ReplaceLevels(ctx context.Context, coachID string, id int64, levels []Level) ([]Level, error)
		Levels(ctx context.Context, standardID int64) ([]Level, error)
		Delete(ctx context.Context, coachID string, id int64) error
		Restore(ctx context.Context, coachID string, id int64) (Standard, error)
	}

	Service struct {
		tx     core.TxRunner
		repo   Repository
		cache  LevelCache
		logger core.Logger
	}
)

var _ ServiceInterface = (*Service)(nil)

// NewService returns a standard Service. cache may be nil.
func NewService(tx core.TxRunner, repo Repository, cache LevelCache, logger core.Logger) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(tx, "tx"),
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	if cache == nil {
		cache = noCache{}
	}
	return &Service{tx: tx, repo: repo, cache: cache, logger: logger}
}

// getOwned fetches the standard and checks that coachID owns it.
func (svc *Service) getOwned(ctx context.Context, coachID string, id int64, withDeleted bool, exec ...core.DBExecutor) (Standard, error) {
	std, err := svc.repo.GetStandard(ctx, id, withDeleted, exec...)
	if err != nil {
		return Standard{}, err
	}
	if std.OwnerID != coachID {
		return Standard{}, core.ErrPermissionDenied
	}
	return std, nil
}

func (svc *Service) checkNameUniqueness(ctx context.Context, ownerID, name string, excludeID int64, exec ...core.DBExecutor) error {
	if err := svc.repo.CheckNameUniqueness(ctx, ownerID, name, excludeID, exec...); err != nil {
		if pkgerrors.Cause(err) == ErrStandardExists {
			return core.NewValidationError(ErrStandardExists, core.FieldError{Field: "name", Error: ErrStandardExists.Error()})
		}
		return pkgerrors.Wrap(err, "checking standard name uniqueness")
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, coachID string, ns NewStandard) (Standard, error) {
	if coachID == "" {
		return Standard{}, core.ErrPermissionDenied
	}
	if ns.HasNumericValue == nil {
		return Standard{}, core.NewValidationError(nil, core.FieldError{Field: "has_numeric_value", Error: "this field is required"})
	}
	if err := ValidateLevels(*ns.HasNumericValue, ns.Levels); err != nil {
		return Standard{}, err
	}

	var std Standard
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		if err := svc.checkNameUniqueness(ctx, coachID, ns.Name, 0, exec); err != nil {
			return err
		}

		now := core.NowFunc().UTC()
		var err error
		std, err = svc.repo.CreateStandard(ctx, Standard{
			Name:            ns.Name,
			HasNumericValue: *ns.HasNumericValue,
			OwnerID:         coachID,
			CreatedAt:       now,
			UpdatedAt:       now,
		}, exec)
		if err != nil {
			return pkgerrors.Wrap(err, "creating standard")
		}

		std.Levels = make([]Level, 0, len(ns.Levels))
		for _, lvl := range ns.Levels {
			lvl.ID = 0
			lvl.StandardID = std.ID
			lvl, err = svc.repo.CreateLevel(ctx, lvl, exec)
			if err != nil {
				return pkgerrors.Wrap(err, "creating level")
			}
			std.Levels = append(std.Levels, lvl)
		}
		return nil
	})
	if err != nil {
		return Standard{}, err
	}
	return std, nil
}

// Get returns a standard of the coach with its levels.
// Given an executor, the levels are read through it rather than from the cache.
func (svc *Service) Get(ctx context.Context, coachID string, id int64, exec ...core.DBExecutor) (Standard, error) {
	std, err := svc.getOwned(ctx, coachID, id, false, exec...)
	if err != nil {
		return Standard{}, err
	}
	if len(exec) > 0 {
		if std.Levels, err = svc.repo.LockLevels(ctx, std.ID, exec[0]); err != nil {
			return Standard{}, pkgerrors.Wrap(err, "querying levels")
		}
		if std.Levels == nil {
			std.Levels = []Level{}
		}
		return std, nil
	}
	if std.Levels, err = svc.Levels(ctx, std.ID); err != nil {
		return Standard{}, err
	}
	return std, nil
}

func (svc *Service) Query(ctx context.Context, coachID string, filter QueryFilter, ordering []core.DBOrdering) ([]Standard, error) {
	filter.OwnerID = coachID
	filter.Clean()
	standards, err := svc.repo.QueryStandards(ctx, filter, core.FilterOrderings(ordering, OrderingFields...))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "querying standards")
	}
	if len(standards) == 0 {
		return standards, nil
	}

	ids := make([]int64, 0, len(standards))
	for _, std := range standards {
		ids = append(ids, std.ID)
	}
	levels, err := svc.repo.QueryLevels(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "querying levels")
	}
	byStd := make(map[int64][]Level, len(standards))
	for _, lvl := range levels {
		byStd[lvl.StandardID] = append(byStd[lvl.StandardID], lvl)
	}
	for i := range standards {
		standards[i].Levels = byStd[standards[i].ID]
		if standards[i].Levels == nil {
			standards[i].Levels = []Level{}
		}
	}
	return standards, nil
}

func (svc *Service) Update(ctx context.Context, coachID string, id int64, us UpdateStandard) (Standard, error) {
	var std Standard
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if std, err = svc.getOwned(ctx, coachID, id, false, exec); err != nil {
			return err
		}
		if us.HasNumericValue != nil && *us.HasNumericValue != std.HasNumericValue {
			return core.NewValidationError(ErrTypeChange, core.FieldError{Field: "has_numeric_value", Error: ErrTypeChange.Error()})
		}

		if us.Name != "" && us.Name != std.Name {
			if err = svc.checkNameUniqueness(ctx, coachID, us.Name, std.ID, exec); err != nil {
				return err
			}
			std.Name = us.Name
		}
		std.UpdatedAt = core.NowFunc().UTC()
		if std, err = svc.repo.UpdateStandard(ctx, std, exec); err != nil {
			return pkgerrors.Wrap(err, "updating standard")
		}

		if us.Levels != nil {
			std.Levels, err = svc.replaceLevels(ctx, std, *us.Levels, exec)
		} else {
			std.Levels, err = svc.repo.QueryLevels(ctx, []int64{std.ID}, exec)
		}
		return err
	})
	if err != nil {
		return Standard{}, err
	}
	if us.Levels != nil {
		svc.invalidate(ctx, std.ID)
	}
	if std.Levels == nil {
		std.Levels = []Level{}
	}
	return std, nil
}

// ReplaceLevels makes levels the complete set of levels of the standard:
// levels with a known ID are updated, levels without ID are created and the remaining ones are deleted.
func (svc *Service) ReplaceLevels(ctx context.Context, coachID string, id int64, levels []Level) ([]Level, error) {
	var replaced []Level
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		std, err := svc.getOwned(ctx, coachID, id, false, exec)
		if err != nil {
			return err
		}
		replaced, err = svc.replaceLevels(ctx, std, levels, exec)
		return err
	})
	if err != nil {
		return nil, err
	}
	svc.invalidate(ctx, id)
	return replaced, nil
}

func (svc *Service) replaceLevels(ctx context.Context, std Standard, levels []Level, exec core.DBExecutor) ([]Level, error) {
	if err := ValidateLevels(std.HasNumericValue, levels); err != nil {
		return nil, err
	}

	current, err := svc.repo.QueryLevels(ctx, []int64{std.ID}, exec)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "querying levels")
	}
	stale := make(map[int64]bool, len(current))
	for _, lvl := range current {
		stale[lvl.ID] = true
	}

	out := make([]Level, 0, len(levels))
	for i, lvl := range levels {
		lvl.StandardID = std.ID
		if lvl.ID == 0 {
			if lvl, err = svc.repo.CreateLevel(ctx, lvl, exec); err != nil {
				return nil, pkgerrors.Wrap(err, "creating level")
			}
			out = append(out, lvl)
			continue
		}

		if !stale[lvl.ID] {
			return nil, core.NewValidationError(ErrUnknownLevel, core.FieldError{
				Field: fmt.Sprintf("levels[%d].id", i),
				Error: ErrUnknownLevel.Error(),
			})
		}
		delete(stale, lvl.ID)
		if lvl, err = svc.repo.UpdateLevel(ctx, lvl, exec); err != nil {
			return nil, pkgerrors.Wrap(err, "updating level")
		}
		out = append(out, lvl)
	}

	if len(stale) > 0 {
		ids := make([]int64, 0, len(stale))
		for _, lvl := range current {
			if stale[lvl.ID] {
				ids = append(ids, lvl.ID)
			}
		}
		if err = svc.repo.DeleteLevels(ctx, ids, exec); err != nil {
			return nil, pkgerrors.Wrap(err, "deleting stale levels")
		}
	}
	return out, nil
}

// Levels returns the levels of a standard ordered by ID, from the cache when possible.
func (svc *Service) Levels(ctx context.Context, standardID int64) ([]Level, error) {
	levels, err := svc.cache.GetLevels(ctx, standardID)
	if err == nil {
		return levels, nil
	}
	if err != ErrCacheMiss {
		svc.logger.Warn(fmt.Sprintf("reading levels of standard %d from cache", standardID), err)
	}

	// the version is read before the levels: a change committed in between makes SetLevels a no-op
	version, verErr := svc.cache.LevelsVersion(ctx, standardID)
	if verErr != nil {
		svc.logger.Warn(fmt.Sprintf("reading cached levels version of standard %d", standardID), verErr)
	}

	levels, err = svc.repo.QueryLevels(ctx, []int64{standardID})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "querying levels")
	}
	if levels == nil {
		levels = []Level{}
	}
	if verErr == nil {
		if err = svc.cache.SetLevels(ctx, standardID, levels, version); err != nil {
			svc.logger.Warn(fmt.Sprintf("caching levels of standard %d", standardID), err)
		}
	}
	return levels, nil
}

func (svc *Service) Delete(ctx context.Context, coachID string, id int64) error {
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		if _, err := svc.getOwned(ctx, coachID, id, false, exec); err != nil {
			return err
		}
		return svc.repo.DeleteStandard(ctx, id, core.NowFunc().UTC(), exec)
	})
	if err != nil {
		return err
	}
	svc.invalidate(ctx, id)
	return nil
}

func (svc *Service) Restore(ctx context.Context, coachID string, id int64) (Standard, error) {
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		std, err := svc.getOwned(ctx, coachID, id, true, exec)
		if err != nil {
			return err
		}
		if !std.IsDeleted() {
			return core.NewValidationError(ErrNotDeleted)
		}
		if err = svc.checkNameUniqueness(ctx, coachID, std.Name, std.ID, exec); err != nil {
			return err
		}
		return svc.repo.RestoreStandard(ctx, id, std.DeletedAt.Time, exec)
	})
	if err != nil {
		return Standard{}, err
	}
	return svc.Get(ctx, coachID, id)
}

func (svc *Service) invalidate(ctx context.Context, standardID int64) {
	if err := svc.cache.InvalidateLevels(ctx, standardID); err != nil {
		svc.logger.Warn(fmt.Sprintf("invalidating cached levels of standard %d", standardID), err)
	}
}

type noCache struct{}

func (noCache) GetLevels(context.Context, int64) ([]Level, error) { return nil, ErrCacheMiss }
func (noCache) LevelsVersion(context.Context, int64) (int64, error) { return 0, nil }
func (noCache) SetLevels(context.Context, int64, []Level, int64) error { return nil }
func (noCache) InvalidateLevels(context.Context, int64) error { return nil }

// NullFloat is a shorthand for building level thresholds.
func NullFloat(f float64) null.Float64 {
	return null.Float64From(f)
}
