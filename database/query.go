package database

import (
	"context"
	"database/sql"
	"strings"
)

// queryer is implemented by *sql.Conn and *sql.Tx, so the same helpers run
// inside and outside the migration transaction.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Query runs a raw query and materialises every row as text cells.
// args follow the same rules as Data values.
//
// Cells hold the stored values regardless of declared column types; see Row
// for the two shapes of query where DATE, DATETIME, TIMESTAMP and BOOLEAN
// columns are read through the driver's conversions instead.
func (db *DB) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	conn, err := db.handle()
	if err != nil {
		return nil, err
	}
	bound, err := bindArgs(args)
	if err != nil {
		return nil, err
	}
	return db.query(ctx, conn, "query", query, bound)
}

// Exec runs a raw statement, or several separated by semicolons when no
// args are given.
func (db *DB) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	conn, err := db.handle()
	if err != nil {
		return nil, err
	}
	bound, err := bindArgs(args)
	if err != nil {
		return nil, err
	}
	return db.exec(ctx, conn, "exec", query, bound)
}

// SelectAll returns every row of table with all columns. Cells hold the
// stored values whatever the declared column types, as described on Row.
//
// table is interpolated into the SQL as given and must come from a trusted source.
func (db *DB) SelectAll(ctx context.Context, table string) ([]Row, error) {
	return db.SelectWhere(ctx, table, nil, nil)
}

// SelectWhere returns the given columns (all when empty) of the rows of
// table whose columns equal every value in where. An empty where selects
// every row.
//
// table and column names are interpolated into the SQL as given and must
// come from a trusted source; only values are bound.
func (db *DB) SelectWhere(ctx context.Context, table string, columns []string, where Data) ([]Row, error) {
	conn, err := db.handle()
	if err != nil {
		return nil, err
	}
	return db.selectWhere(ctx, conn, table, columns, where)
}

func (db *DB) selectWhere(ctx context.Context, q queryer, table string, columns []string, where Data) ([]Row, error) {
	whereColumns, args, err := bindData(where)
	if err != nil {
		return nil, err
	}
	return db.query(ctx, q, "select", buildSelect(table, columns, whereColumns), args)
}

// Upsert inserts a row into table, replacing any existing row that
// conflicts on a primary or unique key.
//
// It fails with ErrEmptyData when data is empty and with an *ExecutionError
// when the engine rejects the statement. table and column names are
// interpolated into the SQL as given.
func (db *DB) Upsert(ctx context.Context, table string, data Data) error {
	conn, err := db.handle()
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return ErrEmptyData
	}

	columns, args, err := bindData(data)
	if err != nil {
		return err
	}

	_, err = db.exec(ctx, conn, "upsert", buildUpsert(table, columns), args)
	return err
}

// DeleteWhere deletes the rows of table whose columns equal every value in
// where. An empty where is rejected with ErrNoWhereClauses and nothing runs.
func (db *DB) DeleteWhere(ctx context.Context, table string, where Data) (int64, error) {
	conn, err := db.handle()
	if err != nil {
		return 0, err
	}
	if len(where) == 0 {
		return 0, ErrNoWhereClauses
	}

	columns, args, err := bindData(where)
	if err != nil {
		return 0, err
	}

	result, err := db.exec(ctx, conn, "delete", buildDelete(table, columns), args)
	if err != nil {
		return 0, err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, execError("delete", "", err)
	}
	return n, nil
}

// TableExists reports whether the schema catalog has a table called name.
func (db *DB) TableExists(ctx context.Context, name string) (bool, error) {
	conn, err := db.handle()
	if err != nil {
		return false, err
	}
	return db.tableExists(ctx, conn, name)
}

func (db *DB) tableExists(ctx context.Context, q queryer, name string) (bool, error) {
	rows, err := db.query(ctx, q, "table exists",
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", []any{name})
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

func (db *DB) query(ctx context.Context, q queryer, op, query string, args []any) ([]Row, error) {
	db.logger.Debug("running query", "op", op, "query", query, "params", len(args))

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, execError(op, query, err)
	}

	// The driver has not stepped the statement yet, so it can be dropped
	// and re-issued through a projection that hides the declared types.
	if columns, ok := convertedColumns(rows); ok {
		_ = rows.Close() //nolint:errcheck // Nothing has been read
		rows, err = q.QueryContext(ctx, storedValueQuery(query, columns), args...)
		if err != nil {
			db.logger.Debug("reading driver-converted values", "op", op, "error", err)
			rows, err = q.QueryContext(ctx, query, args...)
			if err != nil {
				return nil, execError(op, query, err)
			}
		}
	}

	result, err := scanRows(rows)
	if err != nil {
		return nil, execError(op, query, err)
	}
	return result, nil
}

func (db *DB) exec(ctx context.Context, q queryer, op, query string, args []any) (sql.Result, error) {
	db.logger.Debug("executing statement", "op", op, "query", query, "params", len(args))

	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, execError(op, query, err)
	}
	return result, nil
}

// convertedColumns returns the result column names when at least one column
// has a declared type the driver converts (DATE, DATETIME, TIMESTAMP to
// time.Time and BOOLEAN to bool). Duplicate names cannot be re-selected by
// name, so they report false.
func convertedColumns(rows *sql.Rows) ([]string, bool) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, false
	}

	converted := false
	names := make([]string, len(types))
	seen := make(map[string]bool, len(types))
	for i, ct := range types {
		name := ct.Name()
		if seen[name] {
			return nil, false
		}
		seen[name] = true
		names[i] = name

		if isConvertedType(ct.DatabaseTypeName()) {
			converted = true
		}
	}
	return names, converted
}

func isConvertedType(declType string) bool {
	base := strings.ToLower(strings.TrimSpace(declType))
	if i := strings.IndexByte(base, '('); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}
	switch base {
	case "date", "datetime", "timestamp", "boolean":
		return true
	}
	return false
}

// storedValueQuery wraps query so every column is a unary-plus expression.
// Unary plus returns its operand unchanged and has no declared type, so the
// driver hands over the stored value as is.
func storedValueQuery(query string, columns []string) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		quoted := quoteIdentifier(c)
		parts[i] = "+" + quoted + " AS " + quoted
	}

	inner := strings.TrimSpace(query)
	inner = strings.TrimSpace(strings.TrimRight(inner, ";"))
	return "SELECT " + strings.Join(parts, ", ") + " FROM (" + inner + "\n)"
}

// quoteIdentifier quotes name with backticks. Unlike double quotes, a
// backtick name that does not resolve is an error, never a string literal.
func quoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
