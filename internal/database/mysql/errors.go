package mysql

import (
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/koustreak/datastore/internal/database/sqldb"
	"github.com/koustreak/datastore/internal/errs"
)

// MySQL error numbers
// Full list: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	errDBAccessDenied  = 1044
	errAccessDenied    = 1045
	errNoDatabase      = 1046
	errUnknownDatabase = 1049
	errTooManyConns    = 1040
	errUserConnLimit   = 1203
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
	errQueryTimeout    = 3024
	errTableAccess     = 1142
)

// mapError translates go-sql-driver/mysql errors into *errs.Error and
// defers to sqldb.MapError for everything database/sql reports itself.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return errs.Wrap(
			classifyMySQLCode(mysqlErr.Number),
			fmt.Sprintf("%s: %s", msg, mysqlErr.Message),
			err,
		)
	}

	if errors.Is(err, mysql.ErrInvalidConn) || errors.Is(err, driver.ErrBadConn) {
		return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
	}
	return sqldb.MapError(err, msg)
}

// classifyMySQLCode maps MySQL error numbers to ErrKind.
func classifyMySQLCode(code uint16) errs.ErrKind {
	switch code {
	case errNoDatabase, errUnknownDatabase, errTooManyConns, errUserConnLimit:
		return errs.ErrKindConnectionFailed
	case errDBAccessDenied, errAccessDenied, errTableAccess:
		return errs.ErrKindPermissionDenied
	case errLockWaitTimeout, errQueryTimeout:
		return errs.ErrKindTimeout
	case errDeadlock:
		return errs.ErrKindTransaction
	default:
		return errs.ErrKindQueryFailed
	}
}
