package e

import (
	"errors"

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
	// SQLiteErrGeneric SQLite generic error code, e.g. missing table
	SQLiteErrGeneric = sqlite3.SQLITE_ERROR
)

// IsSQLiteError checks if the passed error is the specified SQLite error code
func IsSQLiteError(err error, errorCode int) bool {
	var serr *sqlite.Error
	if ee := AsExtendedError(err); ee != nil {
		return ee.AsError(&serr) && serr.Code() == errorCode
	}

	return errors.As(err, &serr) && serr.Code() == errorCode
}

// IsAnySQLiteError checks if the passed error is a SQLite error
func IsAnySQLiteError(err error) bool {
	var serr *sqlite.Error
	if ee := AsExtendedError(err); ee != nil {
		return ee.AsError(&serr)
	}

	return errors.As(err, &serr)
}

// IsMissingTableError returns whether the error indicates a table does not
// exist yet. SQLite reports this as a generic error with a "no such table"
// message rather than a distinct code.
func IsMissingTableError(err error) bool {
	return IsSQLiteError(err, SQLiteErrGeneric) && ContainsError(err, "no such table")
}

// IsNoRowsError returns whether the error is a sql no rows found
func IsNoRowsError(err error) bool {
	return ContainsError(err, "sql: no rows in result set")
}
