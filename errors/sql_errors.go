package errors

import (
	"errors"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	// SQLiteErrConstraintUnique SQLite extended code for a unique constraint violation
	SQLiteErrConstraintUnique = sqlite3.SQLITE_CONSTRAINT_UNIQUE
	// SQLiteErrConstraintPrimaryKey SQLite extended code for a primary key violation
	SQLiteErrConstraintPrimaryKey = sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	// SQLiteErrBusy SQLite code returned when the database file is locked
	SQLiteErrBusy = sqlite3.SQLITE_BUSY
)

// IsSQLiteError checks if the passed error is the specified SQLite error code
func IsSQLiteError(err error, errorCode int) bool {
	var serr *sqlite.Error
	if ee := AsExtendedError(err); ee != nil {
		err = ee.InnerError
	}

	return errors.As(err, &serr) && serr.Code() == errorCode
}

// IsAnySQLiteError checks if the passed error is a SQLite error
func IsAnySQLiteError(err error) bool {
	var serr *sqlite.Error
	if ee := AsExtendedError(err); ee != nil {
		err = ee.InnerError
	}

	return errors.As(err, &serr)
}

// IsNoRowsError returns whether the error is a sql no rows found
func IsNoRowsError(err error) bool {
	return ContainsError(err, "sql: no rows in result set")
}

// ContainsError checks if the error contains the specified error message
func ContainsError(err error, msg string) bool {
	return strings.Contains(err.Error(), msg)
}
