package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/coachdiary/core"
	"github.com/trezcool/coachdiary/core/roster"
)

type classRow struct {
	ID              int64     `db:"id"`
	Number          int       `db:"number"`
	ClassName       string    `db:"class_name"`
	OwnerID         string    `db:"owner_id"`
	RecruitmentYear int       `db:"recruitment_year"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
	DeletedAt       null.Time `db:"deleted_at"`
}

type studentRow struct {
	ID        int64       `db:"id"`
	FullName  string      `db:"full_name"`
	Birthday  roster.Date `db:"birthday"`
	Gender    string      `db:"gender"`
	ClassID   int64       `db:"class_id"`
	CreatedAt time.Time   `db:"created_at"`
	UpdatedAt time.Time   `db:"updated_at"`
	DeletedAt null.Time   `db:"deleted_at"`
}

const (
	classColumns   = `student_class.id, number, class_name, owner_id, recruitment_year, student_class.created_at, student_class.updated_at, student_class.deleted_at`
	studentColumns = `student.id, full_name, birthday, gender, class_id, student.created_at, student.updated_at, student.deleted_at`
)

type rosterRepository struct {
	repository
}

var _ roster.Repository = (*rosterRepository)(nil) // interface compliance check

func NewRosterRepository(db *sqlx.DB) roster.Repository {
	return &rosterRepository{repository{db: db}}
}

func (repo rosterRepository) classFromRow(row classRow) roster.StudentClass {
	return roster.StudentClass{
		ID:              row.ID,
		Number:          row.Number,
		ClassName:       row.ClassName,
		OwnerID:         row.OwnerID,
		RecruitmentYear: row.RecruitmentYear,
		CreatedAt:       row.CreatedAt.UTC(),
		UpdatedAt:       row.UpdatedAt.UTC(),
		DeletedAt:       row.DeletedAt,
	}
}

func (repo rosterRepository) classToRow(class roster.StudentClass) classRow {
	return classRow{
		ID:              class.ID,
		Number:          class.Number,
		ClassName:       class.ClassName,
		OwnerID:         class.OwnerID,
		RecruitmentYear: class.RecruitmentYear,
		CreatedAt:       class.CreatedAt.UTC(),
		UpdatedAt:       class.UpdatedAt.UTC(),
		DeletedAt:       class.DeletedAt,
	}
}

func (repo rosterRepository) studentFromRow(row studentRow) roster.Student {
	return roster.Student{
		ID:        row.ID,
		FullName:  row.FullName,
		Birthday:  row.Birthday,
		Gender:    row.Gender,
		ClassID:   row.ClassID,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
		DeletedAt: row.DeletedAt,
	}
}

func (repo rosterRepository) studentToRow(s roster.Student) studentRow {
	return studentRow{
		ID:        s.ID,
		FullName:  s.FullName,
		Birthday:  s.Birthday,
		Gender:    s.Gender,
		ClassID:   s.ClassID,
		CreatedAt: s.CreatedAt.UTC(),
		UpdatedAt: s.UpdatedAt.UTC(),
		DeletedAt: s.DeletedAt,
	}
}

// Classes

func (repo rosterRepository) CheckClassUniqueness(ctx context.Context, ownerID string, number int, className string, excludeID int64, exec ...core.DBExecutor) error {
	var exists bool
	err := sqlx.GetContext(ctx, repo.getExec(exec), &exists, `
		SELECT EXISTS (
			SELECT 1 FROM student_class
			WHERE owner_id = $1 AND number = $2 AND class_name = $3 AND id <> $4 AND deleted_at IS NULL
		)`,
		ownerID, number, className, excludeID,
	)
	if err != nil {
		return errors.Wrap(err, "checking class uniqueness")
	}
	if exists {
		return roster.ErrClassExists
	}
	return nil
}

func (repo rosterRepository) CreateClass(ctx context.Context, class roster.StudentClass, exec ...core.DBExecutor) (roster.StudentClass, error) {
	row := repo.classToRow(class)
	err := sqlx.GetContext(ctx, repo.getExec(exec), &row.ID, `
		INSERT INTO student_class (number, class_name, owner_id, recruitment_year, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		row.Number, row.ClassName, row.OwnerID, row.RecruitmentYear, row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		return roster.StudentClass{}, errors.Wrap(err, "inserting class")
	}
	return repo.classFromRow(row), nil
}

func (repo rosterRepository) GetClass(ctx context.Context, id int64, withDeleted bool, exec ...core.DBExecutor) (roster.StudentClass, error) {
	query := `SELECT ` + classColumns + ` FROM student_class WHERE id = $1`
	if !withDeleted {
		query += ` AND deleted_at IS NULL`
	}
	var row classRow
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, query, id); err != nil {
		return roster.StudentClass{}, trapNoRowsErr(err, roster.ErrClassNotFound, "getting class")
	}
	return repo.classFromRow(row), nil
}

func (repo rosterRepository) QueryClasses(ctx context.Context, filter roster.ClassFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]roster.StudentClass, error) {
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
	if len(filter.Numbers) > 0 {
		where = append(where, `number IN (?)`)
		args = append(args, filter.Numbers)
	}

	query := `SELECT ` + classColumns + ` FROM student_class`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += orderBy("student_class", ordering,
		core.DBOrdering{Field: "number", Ascending: true},
		core.DBOrdering{Field: "class_name", Ascending: true},
	)
	query, args, err := in(ext, query, args...)
	if err != nil {
		return nil, err
	}

	var rows []classRow
	if err = sqlx.SelectContext(ctx, ext, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying classes")
	}
	classes := make([]roster.StudentClass, 0, len(rows))
	for _, row := range rows {
		classes = append(classes, repo.classFromRow(row))
	}
	return classes, nil
}

func (repo rosterRepository) UpdateClass(ctx context.Context, class roster.StudentClass, exec ...core.DBExecutor) (roster.StudentClass, error) {
	row := repo.classToRow(class)
	res, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), `
		UPDATE student_class
		SET number = :number, class_name = :class_name, recruitment_year = :recruitment_year, updated_at = :updated_at
		WHERE id = :id`,
		row,
	)
	if err != nil {
		return roster.StudentClass{}, errors.Wrap(err, "updating class")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return roster.StudentClass{}, roster.ErrClassNotFound
	}
	return repo.classFromRow(row), nil
}

func (repo rosterRepository) DeleteClass(ctx context.Context, id int64, at time.Time, exec ...core.DBExecutor) error {
	ext := repo.getExec(exec)
	res, err := ext.ExecContext(ctx, `UPDATE student_class SET deleted_at = $2 WHERE id = $1`, id, at.UTC())
	if err != nil {
		return errors.Wrap(err, "deleting class")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return roster.ErrClassNotFound
	}
	if _, err = ext.ExecContext(ctx, `
		UPDATE student_standard SET deleted_at = $2
		WHERE deleted_at IS NULL
		  AND student_id IN (SELECT id FROM student WHERE class_id = $1 AND deleted_at IS NULL)`,
		id, at.UTC(),
	); err != nil {
		return errors.Wrap(err, "deleting class results")
	}
	if _, err = ext.ExecContext(ctx, `UPDATE student SET deleted_at = $2 WHERE class_id = $1 AND deleted_at IS NULL`, id, at.UTC()); err != nil {
		return errors.Wrap(err, "deleting class students")
	}
	return nil
}

func (repo rosterRepository) RestoreClass(ctx context.Context, id int64, deletedAt time.Time, exec ...core.DBExecutor) error {
	ext := repo.getExec(exec)
	res, err := ext.ExecContext(ctx, `UPDATE student_class SET deleted_at = NULL WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "restoring class")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return roster.ErrClassNotFound
	}
	if _, err = ext.ExecContext(ctx, `
		UPDATE student_standard SET deleted_at = NULL
		WHERE deleted_at = $2
		  AND student_id IN (SELECT id FROM student WHERE class_id = $1 AND deleted_at = $2)`,
		id, deletedAt.UTC(),
	); err != nil {
		return errors.Wrap(err, "restoring class results")
	}
	if _, err = ext.ExecContext(ctx, `UPDATE student SET deleted_at = NULL WHERE class_id = $1 AND deleted_at = $2`, id, deletedAt.UTC()); err != nil {
		return errors.Wrap(err, "restoring class students")
	}
	return nil
}

// Students

func (repo rosterRepository) CreateStudent(ctx context.Context, student roster.Student, exec ...core.DBExecutor) (roster.Student, error) {
	row := repo.studentToRow(student)
	err := sqlx.GetContext(ctx, repo.getExec(exec), &row.ID, `
		INSERT INTO student (full_name, birthday, gender, class_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		row.FullName, row.Birthday, row.Gender, row.ClassID, row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		return roster.Student{}, errors.Wrap(err, "inserting student")
	}
	return repo.studentFromRow(row), nil
}

func (repo rosterRepository) GetStudent(ctx context.Context, id int64, withDeleted bool, exec ...core.DBExecutor) (roster.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM student WHERE id = $1`
	if !withDeleted {
		query += ` AND deleted_at IS NULL`
	}
	var row studentRow
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, query, id); err != nil {
		return roster.Student{}, trapNoRowsErr(err, roster.ErrStudentNotFound, "getting student")
	}
	return repo.studentFromRow(row), nil
}

func (repo rosterRepository) QueryStudents(ctx context.Context, filter roster.StudentFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]roster.Student, error) {
	ext := repo.getExec(exec)
	var (
		where []string
		args  []interface{}
	)
	if !filter.IncludeDeleted {
		where = append(where, `student.deleted_at IS NULL`)
	}
	if filter.OwnerID != "" {
		where = append(where, `student_class.owner_id = ?`)
		args = append(args, filter.OwnerID)
	}
	if len(filter.ClassIDs) > 0 {
		where = append(where, `student.class_id IN (?)`)
		args = append(args, filter.ClassIDs)
	}
	if filter.Gender != "" {
		where = append(where, `student.gender = ?`)
		args = append(args, filter.Gender)
	}
	if filter.BirthYearFrom != 0 {
		where = append(where, `EXTRACT(YEAR FROM student.birthday) >= ?`)
		args = append(args, filter.BirthYearFrom)
	}
	if filter.BirthYearTo != 0 {
		where = append(where, `EXTRACT(YEAR FROM student.birthday) <= ?`)
		args = append(args, filter.BirthYearTo)
	}
	if filter.Search != "" {
		where = append(where, `student.full_name ILIKE ?`)
		args = append(args, "%"+filter.Search+"%")
	}

	query := `SELECT ` + studentColumns + ` FROM student JOIN student_class ON student_class.id = student.class_id`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	cols := make([]core.DBOrdering, 0, len(ordering))
	for _, ord := range ordering {
		if ord.Field == "student_class" {
			ord.Field = "class_id"
		}
		cols = append(cols, ord)
	}
	query += orderBy("student", cols, core.DBOrdering{Field: "full_name", Ascending: true})
	query, args, err := in(ext, query, args...)
	if err != nil {
		return nil, err
	}

	var rows []studentRow
	if err = sqlx.SelectContext(ctx, ext, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	students := make([]roster.Student, 0, len(rows))
	for _, row := range rows {
		students = append(students, repo.studentFromRow(row))
	}
	return students, nil
}

func (repo rosterRepository) UpdateStudent(ctx context.Context, student roster.Student, exec ...core.DBExecutor) (roster.Student, error) {
	row := repo.studentToRow(student)
	res, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), `
		UPDATE student
		SET full_name = :full_name, birthday = :birthday, gender = :gender, class_id = :class_id, updated_at = :updated_at
		WHERE id = :id`,
		row,
	)
	if err != nil {
		return roster.Student{}, errors.Wrap(err, "updating student")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return roster.Student{}, roster.ErrStudentNotFound
	}
	return repo.studentFromRow(row), nil
}

func (repo rosterRepository) DeleteStudent(ctx context.Context, id int64, at time.Time, exec ...core.DBExecutor) error {
	ext := repo.getExec(exec)
	res, err := ext.ExecContext(ctx, `UPDATE student SET deleted_at = $2 WHERE id = $1`, id, at.UTC())
	if err != nil {
		return errors.Wrap(err, "deleting student")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return roster.ErrStudentNotFound
	}
	if _, err = ext.ExecContext(ctx, `UPDATE student_standard SET deleted_at = $2 WHERE student_id = $1 AND deleted_at IS NULL`, id, at.UTC()); err != nil {
		return errors.Wrap(err, "deleting student results")
	}
	return nil
}

func (repo rosterRepository) RestoreStudent(ctx context.Context, id int64, deletedAt time.Time, exec ...core.DBExecutor) error {
	ext := repo.getExec(exec)
	res, err := ext.ExecContext(ctx, `UPDATE student SET deleted_at = NULL WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "restoring student")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return roster.ErrStudentNotFound
	}
	if _, err = ext.ExecContext(ctx, `UPDATE student_standard SET deleted_at = NULL WHERE student_id = $1 AND deleted_at = $2`, id, deletedAt.UTC()); err != nil {
		return errors.Wrap(err, "restoring student results")
	}
	return nil
}
