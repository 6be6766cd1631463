package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/coachdiary/core"
	"github.com/trezcool/coachdiary/core/standard"
)

type standardRow struct {
	ID              int64     `db:"id"`
	Name            string    `db:"name"`
	HasNumericValue bool      `db:"has_numeric_value"`
	OwnerID         string    `db:"owner_id"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
	DeletedAt       null.Time `db:"deleted_at"`
}

type levelRow struct {
	ID          int64        `db:"id"`
	StandardID  int64        `db:"standard_id"`
	LevelNumber int          `db:"level_number"`
	Gender      string       `db:"gender"`
	Low         null.Float64 `db:"low_level_value"`
	Middle      null.Float64 `db:"middle_level_value"`
	High        null.Float64 `db:"high_level_value"`
}

const (
	standardColumns = `id, name, has_numeric_value, owner_id, created_at, updated_at, deleted_at`
	levelColumns    = `id, standard_id, level_number, gender, low_level_value, middle_level_value, high_level_value`
)

type standardRepository struct {
	repository
}

var _ standard.Repository = (*standardRepository)(nil) // interface compliance check

func NewStandardRepository(db *sqlx.DB) standard.Repository {
	return &standardRepository{repository{db: db}}
}

func (repo standardRepository) fromRow(row standardRow) standard.Standard {
	return standard.Standard{
		ID:              row.ID,
		Name:            row.Name,
		HasNumericValue: row.HasNumericValue,
		OwnerID:         row.OwnerID,
		CreatedAt:       row.CreatedAt.UTC(),
		UpdatedAt:       row.UpdatedAt.UTC(),
		DeletedAt:       row.DeletedAt,
	}
}

func (repo standardRepository) levelFromRow(row levelRow) standard.Level {
	return standard.Level{
		ID:          row.ID,
		StandardID:  row.StandardID,
		LevelNumber: row.LevelNumber,
		Gender:      row.Gender,
		Low:         row.Low,
		Middle:      row.Middle,
		High:        row.High,
	}
}

func (repo standardRepository) levelToRow(lvl standard.Level) levelRow {
	return levelRow{
		ID:          lvl.ID,
		StandardID:  lvl.StandardID,
		LevelNumber: lvl.LevelNumber,
		Gender:      lvl.Gender,
		Low:         lvl.Low,
		Middle:      lvl.Middle,
		High:        lvl.High,
	}
}

func (repo standardRepository) CheckNameUniqueness(ctx context.Context, ownerID, name string, excludeID int64, exec ...core.DBExecutor) error {
	var exists bool
	err := sqlx.GetContext(ctx, repo.getExec(exec), &exists, `
		SELECT EXISTS (
			SELECT 1 FROM standard
			WHERE owner_id = $1 AND LOWER(name) = LOWER($2) AND id <> $3 AND deleted_at IS NULL
		)`,
		ownerID, name, excludeID,
	)
	if err != nil {
		return errors.Wrap(err, "checking standard uniqueness")
	}
	if exists {
		return standard.ErrStandardExists
	}
	return nil
}

func (repo standardRepository) CreateStandard(ctx context.Context, std standard.Standard, exec ...core.DBExecutor) (standard.Standard, error) {
	std.CreatedAt, std.UpdatedAt = std.CreatedAt.UTC(), std.UpdatedAt.UTC()
	err := sqlx.GetContext(ctx, repo.getExec(exec), &std.ID, `
		INSERT INTO standard (name, has_numeric_value, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		std.Name, std.HasNumericValue, std.OwnerID, std.CreatedAt, std.UpdatedAt,
	)
	if err != nil {
		return standard.Standard{}, errors.Wrap(err, "inserting standard")
	}
	std.Levels = nil
	return std, nil
}

func (repo standardRepository) GetStandard(ctx context.Context, id int64, withDeleted bool, exec ...core.DBExecutor) (standard.Standard, error) {
	query := `SELECT ` + standardColumns + ` FROM standard WHERE id = $1`
	if !withDeleted {
		query += ` AND deleted_at IS NULL`
	}
	var row standardRow
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, query, id); err != nil {
		return standard.Standard{}, trapNoRowsErr(err, standard.ErrNotFound, "getting standard")
	}
	return repo.fromRow(row), nil
}

func (repo standardRepository) QueryStandards(ctx context.Context, filter standard.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]standard.Standard, error) {
	ext := repo.getExec(exec)
	var (
		where []string
		args  []interface{}
	)
	if !filter.IncludeDeleted {
		where = append(where, `deleted_at IS NULL`)
	}
	if filter.OwnerID != "" {
		where = append(where, `owner_id = ?`)
		args = append(args, filter.OwnerID)
	}
	if filter.HasNumeric != nil {
		where = append(where, `has_numeric_value = ?`)
		args = append(args, *filter.HasNumeric)
	}
	if filter.Search != "" {
		where = append(where, `name ILIKE ?`)
		args = append(args, "%"+filter.Search+"%")
	}

	query := `SELECT ` + standardColumns + ` FROM standard`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query = ext.Rebind(query + orderBy("standard", ordering, core.DBOrdering{Field: "name", Ascending: true}))

	var rows []standardRow
	if err := sqlx.SelectContext(ctx, ext, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying standards")
	}
	standards := make([]standard.Standard, 0, len(rows))
	for _, row := range rows {
		standards = append(standards, repo.fromRow(row))
	}
	return standards, nil
}

func (repo standardRepository) UpdateStandard(ctx context.Context, std standard.Standard, exec ...core.DBExecutor) (standard.Standard, error) {
	std.UpdatedAt = std.UpdatedAt.UTC()
	res, err := repo.getExec(exec).ExecContext(ctx, `UPDATE standard SET name = $2, updated_at = $3 WHERE id = $1`, std.ID, std.Name, std.UpdatedAt)
	if err != nil {
		return standard.Standard{}, errors.Wrap(err, "updating standard")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return standard.Standard{}, standard.ErrNotFound
	}
	std.Levels = nil
	return std, nil
}

func (repo standardRepository) DeleteStandard(ctx context.Context, id int64, at time.Time, exec ...core.DBExecutor) error {
	ext := repo.getExec(exec)
	res, err := ext.ExecContext(ctx, `UPDATE standard SET deleted_at = $2 WHERE id = $1`, id, at.UTC())
	if err != nil {
		return errors.Wrap(err, "deleting standard")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return standard.ErrNotFound
	}
	if _, err = ext.ExecContext(ctx, `UPDATE student_standard SET deleted_at = $2 WHERE standard_id = $1 AND deleted_at IS NULL`, id, at.UTC()); err != nil {
		return errors.Wrap(err, "deleting standard results")
	}
	return nil
}

func (repo standardRepository) RestoreStandard(ctx context.Context, id int64, deletedAt time.Time, exec ...core.DBExecutor) error {
	ext := repo.getExec(exec)
	res, err := ext.ExecContext(ctx, `UPDATE standard SET deleted_at = NULL WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "restoring standard")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return standard.ErrNotFound
	}
	if _, err = ext.ExecContext(ctx, `UPDATE student_standard SET deleted_at = NULL WHERE standard_id = $1 AND deleted_at = $2`, id, deletedAt.UTC()); err != nil {
		return errors.Wrap(err, "restoring standard results")
	}
	return nil
}

func (repo standardRepository) QueryLevels(ctx context.Context, standardIDs []int64, exec ...core.DBExecutor) ([]standard.Level, error) {
	levels := make([]standard.Level, 0)
	if len(standardIDs) == 0 {
		return levels, nil
	}
	ext := repo.getExec(exec)
	query, args, err := in(ext, `SELECT `+levelColumns+` FROM level WHERE standard_id IN (?) ORDER BY id`, standardIDs)
	if err != nil {
		return nil, err
	}

	var rows []levelRow
	if err = sqlx.SelectContext(ctx, ext, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying levels")
	}
	for _, row := range rows {
		levels = append(levels, repo.levelFromRow(row))
	}
	return levels, nil
}

func (repo standardRepository) LockLevels(ctx context.Context, standardID int64, exec core.DBExecutor) ([]standard.Level, error) {
	var rows []levelRow
	err := sqlx.SelectContext(ctx, repo.getExec([]core.DBExecutor{exec}), &rows,
		`SELECT `+levelColumns+` FROM level WHERE standard_id = $1 ORDER BY id FOR SHARE`,
		standardID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "locking levels")
	}
	levels := make([]standard.Level, 0, len(rows))
	for _, row := range rows {
		levels = append(levels, repo.levelFromRow(row))
	}
	return levels, nil
}

func (repo standardRepository) CreateLevel(ctx context.Context, lvl standard.Level, exec ...core.DBExecutor) (standard.Level, error) {
	row := repo.levelToRow(lvl)
	err := sqlx.GetContext(ctx, repo.getExec(exec), &row.ID, `
		INSERT INTO level (standard_id, level_number, gender, low_level_value, middle_level_value, high_level_value)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		row.StandardID, row.LevelNumber, row.Gender, row.Low, row.Middle, row.High,
	)
	if err != nil {
		return standard.Level{}, errors.Wrap(err, "inserting level")
	}
	return repo.levelFromRow(row), nil
}

func (repo standardRepository) UpdateLevel(ctx context.Context, lvl standard.Level, exec ...core.DBExecutor) (standard.Level, error) {
	row := repo.levelToRow(lvl)
	res, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), `
		UPDATE level
		SET level_number = :level_number, gender = :gender,
			low_level_value = :low_level_value, middle_level_value = :middle_level_value, high_level_value = :high_level_value
		WHERE id = :id AND standard_id = :standard_id`,
		row,
	)
	if err != nil {
		return standard.Level{}, errors.Wrap(err, "updating level")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return standard.Level{}, standard.ErrUnknownLevel
	}
	return repo.levelFromRow(row), nil
}

// DeleteLevels removes the levels; results graded against them lose their level (ON DELETE SET NULL).
func (repo standardRepository) DeleteLevels(ctx context.Context, ids []int64, exec ...core.DBExecutor) error {
	if len(ids) == 0 {
		return nil
	}
	ext := repo.getExec(exec)
	query, args, err := in(ext, `DELETE FROM level WHERE id IN (?)`, ids)
	if err != nil {
		return err
	}
	if _, err = ext.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "deleting levels")
	}
	return nil
}
