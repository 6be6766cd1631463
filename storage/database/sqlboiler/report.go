package boiledrepos

import (
	"context"

	"github.com/pkg/errors"
	"github.com/volatiletech/sqlboiler/v4/drivers"
	"github.com/volatiletech/sqlboiler/v4/queries"
	"github.com/volatiletech/sqlboiler/v4/queries/qm"

	"github.com/trezcool/coachdiary/core"
	"github.com/trezcool/coachdiary/core/result"
)

var dialect = drivers.Dialect{
	LQ: '"',
	RQ: '"',

	UseIndexPlaceholders: true,
	UseDefaultKeyword:    true,
}

type reportRepository struct {
	exec core.DBExecutor
}

var _ result.ReportRepository = (*reportRepository)(nil) // interface compliance check

func NewReportRepository(exec core.DBExecutor) result.ReportRepository {
	return &reportRepository{exec: exec}
}

func (repo reportRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

func newQuery(mods ...qm.QueryMod) *queries.Query {
	q := &queries.Query{}
	queries.SetDialect(q, &dialect)
	qm.Apply(q, mods...)
	return q
}

// QueryClassResults lists every live student of the selected classes, with or without a result on the standard.
func (repo reportRepository) QueryClassResults(ctx context.Context, filter result.ClassResultsFilter, exec ...core.DBExecutor) ([]result.ClassResult, error) {
	classIDs := make([]interface{}, 0, len(filter.ClassIDs))
	for _, id := range filter.ClassIDs {
		classIDs = append(classIDs, id)
	}

	mods := []qm.QueryMod{
		qm.Select(
			"s.id AS student_id",
			"s.full_name",
			"s.birthday",
			"s.gender",
			"c.id AS class_id",
			"c.number AS class_number",
			"c.class_name",
			"r.value",
			"r.grade",
			"l.level_number",
		),
		qm.From("student s"),
		qm.InnerJoin("student_class c ON c.id = s.class_id AND c.deleted_at IS NULL"),
		qm.LeftOuterJoin("student_standard r ON r.student_id = s.id AND r.standard_id = ? AND r.deleted_at IS NULL", filter.StandardID),
		qm.LeftOuterJoin("level l ON l.id = r.level_id"),
		qm.Where("s.deleted_at IS NULL"),
		qm.WhereIn("s.class_id IN ?", classIDs...),
	}
	if filter.OwnerID != "" {
		mods = append(mods, qm.Where("c.owner_id = ?", filter.OwnerID))
	}
	mods = append(mods, qm.OrderBy("c.number, c.class_name, s.full_name, s.id"))

	var rows []result.ClassResult
	if err := newQuery(mods...).Bind(ctx, repo.getExec(exec), &rows); err != nil {
		return nil, errors.Wrap(err, "querying class results")
	}
	if rows == nil {
		rows = []result.ClassResult{}
	}
	return rows, nil
}
