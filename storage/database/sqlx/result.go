package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/coachdiary/core"
	"github.com/trezcool/coachdiary/core/result"
)

type resultRow struct {
	ID         int64       `db:"id"`
	StudentID  int64       `db:"student_id"`
	StandardID int64       `db:"standard_id"`
	LevelID    null.Int64  `db:"level_id"`
	Value      result.Mark `db:"value"`
	Grade      result.Mark `db:"grade"`
	CreatedAt  time.Time   `db:"created_at"`
	UpdatedAt  time.Time   `db:"updated_at"`
	DeletedAt  null.Time   `db:"deleted_at"`
}

const resultColumns = `id, student_id, standard_id, level_id, value, grade, created_at, updated_at, deleted_at`

type resultRepository struct {
	repository
}

var _ result.Repository = (*resultRepository)(nil) // interface compliance check

func NewResultRepository(db *sqlx.DB) result.Repository {
	return &resultRepository{repository{db: db}}
}

func (repo resultRepository) fromRow(row resultRow) result.Result {
	return result.Result{
		ID:         row.ID,
		StudentID:  row.StudentID,
		StandardID: row.StandardID,
		LevelID:    row.LevelID,
		Value:      row.Value,
		Grade:      row.Grade,
		CreatedAt:  row.CreatedAt.UTC(),
		UpdatedAt:  row.UpdatedAt.UTC(),
		DeletedAt:  row.DeletedAt,
	}
}

// UpsertResult relies on the (student_id, standard_id) unique key; a soft-deleted result is revived.
func (repo resultRepository) UpsertResult(ctx context.Context, r result.Result, exec ...core.DBExecutor) (result.Result, error) {
	var row resultRow
	err := sqlx.GetContext(ctx, repo.getExec(exec), &row, `
		INSERT INTO student_standard (student_id, standard_id, level_id, value, grade, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (student_id, standard_id) DO UPDATE
		SET level_id = EXCLUDED.level_id, value = EXCLUDED.value, grade = EXCLUDED.grade,
			updated_at = EXCLUDED.updated_at, deleted_at = NULL
		RETURNING `+resultColumns,
		r.StudentID, r.StandardID, r.LevelID, r.Value, r.Grade, r.CreatedAt.UTC(), r.UpdatedAt.UTC(),
	)
	if err != nil {
		return result.Result{}, errors.Wrap(err, "upserting result")
	}
	return repo.fromRow(row), nil
}

func (repo resultRepository) GetResult(ctx context.Context, studentID, standardID int64, exec ...core.DBExecutor) (result.Result, error) {
	var row resultRow
	err := sqlx.GetContext(ctx, repo.getExec(exec), &row, `
		SELECT `+resultColumns+` FROM student_standard
		WHERE student_id = $1 AND standard_id = $2 AND deleted_at IS NULL`,
		studentID, standardID,
	)
	if err != nil {
		return result.Result{}, trapNoRowsErr(err, result.ErrNotFound, "getting result")
	}
	return repo.fromRow(row), nil
}

func (repo resultRepository) QueryResults(ctx context.Context, filter result.QueryFilter, exec ...core.DBExecutor) ([]result.Result, error) {
	ext := repo.getExec(exec)
	query := `SELECT ` + resultColumns + ` FROM student_standard WHERE deleted_at IS NULL`
	var args []interface{}
	if len(filter.StudentIDs) > 0 {
		query += ` AND student_id IN (?)`
		args = append(args, filter.StudentIDs)
	}
	if len(filter.StandardIDs) > 0 {
		query += ` AND standard_id IN (?)`
		args = append(args, filter.StandardIDs)
	}
	query, args, err := in(ext, query+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}

	var rows []resultRow
	if err = sqlx.SelectContext(ctx, ext, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying results")
	}
	results := make([]result.Result, 0, len(rows))
	for _, row := range rows {
		results = append(results, repo.fromRow(row))
	}
	return results, nil
}
