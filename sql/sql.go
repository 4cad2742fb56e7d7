package sql

import (
	"fmt"
	"os"
	"strings"
	"time"

	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/rs/zerolog/log"
	"github.com/tillpoint/pos-lib/e"

	// Including sqlite library for SQL connections
	_ "modernc.org/sqlite"
)

const (
	ECode020301 = e.Code0203 + "01"
	ECode020302 = e.Code0203 + "02"
	ECode020303 = e.Code0203 + "03"
	ECode020304 = e.Code0203 + "04"
	ECode020305 = e.Code0203 + "05"
	ECode020306 = e.Code0203 + "06"
	ECode020307 = e.Code0203 + "07"
	ECode020308 = e.Code0203 + "08"
	ECode020309 = e.Code0203 + "09"
	ECode02030A = e.Code0203 + "0A"
	ECode02030B = e.Code0203 + "0B"
	ECode02030C = e.Code0203 + "0C"
	ECode02030D = e.Code0203 + "0D"
	ECode02030E = e.Code0203 + "0E"
	ECode02030F = e.Code0203 + "0F"
	ECode02030G = e.Code0203 + "0G"
	ECode02030H = e.Code0203 + "0H"
	ECode02030I = e.Code0203 + "0I"
	ECode02030J = e.Code0203 + "0J"
	ECode02030K = e.Code0203 + "0K"
	ECode02030L = e.Code0203 + "0L"
	ECode02030M = e.Code0203 + "0M"
	ECode02030N = e.Code0203 + "0N"
	ECode02030O = e.Code0203 + "0O"
	ECode02030P = e.Code0203 + "0P"

	// DateTimeFormat layout for timestamps stored as TEXT columns
	DateTimeFormat = "2006-01-02 15:04:05"
)

// Now returns the current UTC time formatted for storage in a TEXT column
func Now() string {
	return time.Now().UTC().Format(DateTimeFormat)
}

// Connection wrapper of the *sql.DB
// If a transaction is started, it is stored internally in the txn and automatically
// used when making DB calls until commit/rollback is executed. If during a txn, a
// call outside of the txn is needed, the DB property can be accessed directly and
// used to make a query/exec/select call.
type Connection struct {
	DB  *sql.DB
	txn *sql.Tx
	// TODO: support nested transactions
}

// ConnParam connection parameters used to initialize a connection
type ConnParam struct {
	Path        string
	BusyTimeout int
	MigratePath string
}

// GetConnParamFromENV initializes new connection parameters and populates from ENV variables
func GetConnParamFromENV() (cp *ConnParam) {
	cp = &ConnParam{
		BusyTimeout: 5000,
	}

	if os.Getenv("POSDBPATH") != "" {
		cp.Path = os.Getenv("POSDBPATH")
	}
	if os.Getenv("POSDBMIGRATEPATH") != "" {
		cp.MigratePath = os.Getenv("POSDBMIGRATEPATH")
	}

	return cp
}

// GetDSN returns the data source name for the local database file. WAL mode
// keeps readers (UI queries) from blocking behind the sync engine's writes,
// and the busy timeout covers the brief write lock overlaps between them.
func GetDSN(cp *ConnParam) (dsn string) {
	if cp == nil {
		cp = GetConnParamFromENV()
	}

	return fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)",
		cp.Path, cp.BusyTimeout)
}

// NewSQLiteConn initializes a new SQLite connection to the terminal's local
// database file
func NewSQLiteConn(cp *ConnParam) (conn *Connection, err error) {
	if cp == nil {
		cp = GetConnParamFromENV()
	}

	sqlConn, err := sql.Open("sqlite", GetDSN(cp))
	if err != nil {
		return nil, e.W(err, ECode020301, "Failed to open DB")
	}

	// A single writer connection avoids SQLITE_BUSY between the producers
	// and the sync engine
	sqlConn.SetMaxOpenConns(1)

	if err := sqlConn.Ping(); err != nil {
		return nil, e.W(err, ECode020302, "Failed to ping DB")
	}

	return &Connection{DB: sqlConn}, nil
}

// Close closes the underlying DB
func (c *Connection) Close() (err error) {
	if err := c.DB.Close(); err != nil {
		return e.W(err, ECode02030F)
	}

	return nil
}

// Txn returns the underlying transaction, if currently in one
func (c *Connection) Txn() *sql.Tx {
	return c.txn
}

// Begin wrapper for sql.Begin. It doesn't return the txn object, but stores
// it internally and it will be used automatically for subsequent query/exec/select
// calls until commit/rollback is called
func (c *Connection) Begin() (err error) {
	if c.txn != nil {
		return e.N(ECode020303, "already in a txn")
	}
	c.txn, err = c.DB.Begin()
	if err != nil {
		return e.W(err, ECode020304)
	}

	return nil
}

// BeginReturnDB begins a txn on the connection and returns the connection
// itself, for callers that pass the in-txn connection along
func (c *Connection) BeginReturnDB() (db *Connection, err error) {
	if err := c.Begin(); err != nil {
		return nil, e.W(err, ECode020305)
	}

	return c, nil
}

// Commit wrapper for sql.Commit. If successful, will unset the txn object
func (c *Connection) Commit() (err error) {
	if c.txn == nil {
		return e.N(ECode020306, "not in a txn")
	}

	if err = c.txn.Commit(); err != nil {
		return e.W(err, ECode020307)
	}

	c.txn = nil

	return nil
}

// RollbackIfInTxn same as Rollback, except if it is not in a txn, it will not
// log an error
func (c *Connection) RollbackIfInTxn() {
	if c.txn == nil {
		return
	}

	c.Rollback()
}

// Rollback wrapper for sql.Rollback - no matter what the transaction will
// be cancelled. So, we will log errors here, but will always assume the
// txn is rolled back and now unavailable
func (c *Connection) Rollback() {
	if c.txn == nil {
		log.Warn().Msg("[Connection.Rollback.1] not in txn")
		return
	}

	if err := c.txn.Rollback(); err != nil {
		log.Error().Err(err).Msg("[Connection.Rollback.2]")
		return
	}

	c.txn = nil
}

// Query wrapper for sql.Query with automatic txn handling
func (c *Connection) Query(query string, args ...interface{}) (rows *Rows, err error) {
	if c.txn != nil {
		sqlRows, err := c.txn.Query(query, args...)
		if err != nil {
			// Not logging args because it may contain sensitive information. The
			// caller can log them if needed
			return nil, e.W(err, ECode020308, fmt.Sprintf("query: %s\n", query))
		}
		return &Rows{
			rows:  sqlRows,
			query: query,
		}, nil
	}

	sqlRows, err := c.DB.Query(query, args...)
	if err != nil {
		// Not logging args because it may contain sensitive information. The
		// caller can log them if needed
		return nil, e.W(err, ECode020309, fmt.Sprintf("query: %s\n", query))
	}

	return &Rows{
		rows:  sqlRows,
		query: query,
	}, nil
}

// Exec wrapper for sql.Exec with automatic txn handling
func (c *Connection) Exec(query string, args ...interface{}) (res sql.Result, err error) {
	if c.txn != nil {
		res, err = c.txn.Exec(query, args...)
	} else {
		res, err = c.DB.Exec(query, args...)
	}
	if err != nil {
		// Not logging args because it may contain sensitive information. The
		// caller can log them if needed
		return nil, e.W(err, ECode02030A, fmt.Sprintf("query: %s\n", query))
	}

	return res, nil
}

// Prepare wrapper for sql.Prepare with automatic txn handling
func (c *Connection) Prepare(query string) (stmt *sql.Stmt, err error) {
	if c.txn != nil {
		stmt, err = c.txn.Prepare(query)
	} else {
		stmt, err = c.DB.Prepare(query)
	}
	if err != nil {
		return nil, e.W(err, ECode02030N, fmt.Sprintf("query: %s\n", query))
	}

	return stmt, nil
}

// QueryRow wrapper for sql.QueryRow with automatic txn handling
func (c *Connection) QueryRow(query string, args ...interface{}) (rows *Row) {
	if c.txn != nil {
		return &Row{
			row:   c.txn.QueryRow(query, args...),
			query: query,
		}
	}
	return &Row{
		row:   c.DB.QueryRow(query, args...),
		query: query,
	}
}

// Select wrapper for github.com/Masterminds/squirrel.Select
func (c *Connection) Select(columns ...string) sq.SelectBuilder {
	return sq.StatementBuilder.PlaceholderFormat(sq.Question).Select(columns...)
}

// Insert wrapper for github.com/Masterminds/squirrel.Insert
func (c *Connection) Insert(table string) sq.InsertBuilder {
	return sq.StatementBuilder.PlaceholderFormat(sq.Question).Insert(table)
}

// Delete wrapper for github.com/Masterminds/squirrel.Delete
func (c *Connection) Delete(from string) sq.DeleteBuilder {
	return sq.StatementBuilder.PlaceholderFormat(sq.Question).Delete(from)
}

// Update wrapper for github.com/Masterminds/squirrel.Update
func (c *Connection) Update(table string) sq.UpdateBuilder {
	return sq.StatementBuilder.PlaceholderFormat(sq.Question).Update(table)
}

// Expr wrapper for github.com/Masterminds/squirrel.Expr
func (c *Connection) Expr(sql string, args interface{}) sq.Sqlizer {
	return sq.Expr(sql, args)
}

// ToSQLAndQuery converts the select builder to a SQL statement and bind parameters,
// then attempts to execute the query, returning the rows
func (c *Connection) ToSQLAndQuery(sb sq.SelectBuilder) (rows *Rows, err error) {
	stmt, bindList, err := sb.ToSql()
	if err != nil {
		return nil, e.W(err, ECode02030B, fmt.Sprintf("stmt: %s\n", stmt))
	}

	rows, err = c.Query(stmt, bindList...)
	if err != nil {
		return nil, e.W(err, ECode02030C)
	}

	return rows, nil
}

// ToSQLAndQueryRow converts the select builder to a SQL statement and bind parameters,
// then attempts to execute the query, returning a single row
func (c *Connection) ToSQLAndQueryRow(sb sq.SelectBuilder) (row *Row, err error) {
	stmt, bindList, err := sb.ToSql()
	if err != nil {
		return nil, e.W(err, ECode02030D, fmt.Sprintf("stmt: %s\n", stmt))
	}

	return c.QueryRow(stmt, bindList...), nil
}

// ToSQLWFieldAndQuery converts the builder to sql, substitutes the field
// place holder with the passed fields and executes the query
func (c *Connection) ToSQLWFieldAndQuery(sb sq.SelectBuilder, fields string) (rows *Rows, err error) {
	stmt, bindParams, err := sb.ToSql()
	if err != nil {
		return nil, e.W(err, ECode02030O)
	}
	stmt = strings.Replace(stmt, FieldPlaceHolder, fields, 1)

	rows, err = c.Query(stmt, bindParams...)
	if err != nil {
		return nil, e.W(err, ECode02030P)
	}

	return rows, nil
}

// ExecInsert wrapper to generate SQL/bind list and then execute insert query
func (c *Connection) ExecInsert(ib sq.InsertBuilder) (err error) {
	stmt, bindList, err := ib.ToSql()
	if err != nil {
		return e.W(err, ECode02030G, fmt.Sprintf("stmt: %s\n", stmt))
	}

	if _, err := c.Exec(stmt, bindList...); err != nil {
		return e.W(err, ECode02030H)
	}

	return nil
}

// ExecUpdate wrapper to generate SQL/bind list and then execute update query
func (c *Connection) ExecUpdate(ub sq.UpdateBuilder) (err error) {
	stmt, bindList, err := ub.ToSql()
	if err != nil {
		return e.W(err, ECode02030I, fmt.Sprintf("stmt: %s\n", stmt))
	}

	if _, err := c.Exec(stmt, bindList...); err != nil {
		return e.W(err, ECode02030J)
	}

	return nil
}

// ExecDelete wrapper to generate SQL/bind list and then execute delete query
func (c *Connection) ExecDelete(delB sq.DeleteBuilder) (err error) {
	stmt, bindList, err := delB.ToSql()
	if err != nil {
		return e.W(err, ECode02030K, fmt.Sprintf("stmt: %s\n", stmt))
	}

	if _, err := c.Exec(stmt, bindList...); err != nil {
		return e.W(err, ECode02030L)
	}

	return nil
}

// ExecInsertReturningID wrapper to generate SQL/bind list and then execute insert query,
// returning the newly inserted row id
func (c *Connection) ExecInsertReturningID(ib sq.InsertBuilder) (id int, err error) {
	stmt, bindList, err := ib.ToSql()
	if err != nil {
		return 0, e.W(err, ECode02030M, fmt.Sprintf("stmt: %s\n", stmt))
	}

	if err := c.QueryRow(stmt, bindList...).Scan(&id); err != nil {
		return 0, e.W(err, ECode02030E, fmt.Sprintf("stmt: %s\n", stmt))
	}

	return id, nil
}
