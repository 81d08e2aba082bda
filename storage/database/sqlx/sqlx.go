// Package sqlxrepos implements the core repository interfaces on PostgreSQL
// via sqlx. Bulk statements build their placeholder lists with strmangle.
package sqlxrepos

import (
	"context"

	"github.com/friendsofgo/errors"
	"github.com/jmoiron/sqlx"

	"github.com/opiskelu/palaute/core"
)

// deleteIn runs a DELETE with an IN (?) clause expanded over ids and returns
// the number of deleted rows. Deleting an empty id set is a no-op.
func deleteIn(ctx context.Context, db core.DBExecutor, query string, ids []string, msg string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	q, args, err := sqlx.In(query, ids)
	if err != nil {
		return 0, errors.Wrap(err, msg)
	}
	res, err := db.ExecContext(ctx, db.Rebind(q), args...)
	if err != nil {
		return 0, errors.Wrap(err, msg)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, msg)
	}
	return int(count), nil
}
