package sqlxrepos

import (
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/coachdiary/core"
)

type repository struct {
	db *sqlx.DB
}

// getExec returns the transaction the service runs in, if any, or the repository's connection pool.
func (repo repository) getExec(svcExec []core.DBExecutor) sqlx.ExtContext {
	if len(svcExec) > 0 && svcExec[0] != nil {
		if ext, ok := svcExec[0].(sqlx.ExtContext); ok {
			return ext
		}
	}
	return repo.db
}

// trapNoRowsErr maps psql "no rows" err to notFound
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// in expands the slice args of query and rebinds its placeholders for the executor's driver.
func in(exec sqlx.ExtContext, query string, args ...interface{}) (string, []interface{}, error) {
	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, errors.Wrap(err, "expanding query args")
	}
	return exec.Rebind(query), args, nil
}

// orderBy renders ordering as an ORDER BY clause, prefixing the columns with table and ending with the ID.
func orderBy(table string, ordering []core.DBOrdering, fallback ...core.DBOrdering) string {
	if len(ordering) == 0 {
		ordering = fallback
	}
	clause := " ORDER BY "
	for _, ord := range ordering {
		if ord.Field == "id" {
			continue
		}
		clause += table + "." + ord.String() + ", "
	}
	return clause + table + ".id ASC"
}
