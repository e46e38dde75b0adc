package database

import (
	"fmt"
	"sort"
	"strings"
)

// Data maps column names to bound values.
//
// A value must be text (string), an integer (int, int8, int16, int32, int64,
// uint8, uint16, uint32) or nil for SQL NULL. Anything else is rejected with
// ErrInvalidDataType before the statement runs.
//
// Columns are always visited in sorted order, so the generated SQL is stable.
type Data map[string]any

// columns returns the keys of d in sorted order.
func (d Data) columns() []string {
	columns := make([]string, 0, len(d))
	for c := range d {
		columns = append(columns, c)
	}
	sort.Strings(columns)
	return columns
}

// bindValue normalises a bound value to one of string, int64 or nil.
func bindValue(v any) (any, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case string:
		return v, nil
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrInvalidDataType, v)
	}
}

// bindArgs validates and normalises positional arguments.
func bindArgs(args []any) ([]any, error) {
	bound := make([]any, len(args))
	for i, a := range args {
		v, err := bindValue(a)
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i+1, err)
		}
		bound[i] = v
	}
	return bound, nil
}

// bindData returns the sorted column list of d and the matching bound values.
func bindData(d Data) (columns []string, args []any, err error) {
	columns = d.columns()
	args = make([]any, len(columns))
	for i, c := range columns {
		v, err := bindValue(d[c])
		if err != nil {
			return nil, nil, fmt.Errorf("column %s: %w", c, err)
		}
		args[i] = v
	}
	return columns, args, nil
}

// whereClause renders "c1 = ? AND c2 = ?" for columns.
func whereClause(columns []string) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = c + " = ?"
	}
	return strings.Join(parts, " AND ")
}

// buildSelect renders SELECT <columns> FROM <table> [WHERE ...].
// Identifiers are interpolated as given.
func buildSelect(table string, columns, whereColumns []string) string {
	selected := "*"
	if len(columns) > 0 {
		selected = strings.Join(columns, ", ")
	}

	query := "SELECT " + selected + " FROM " + table
	if len(whereColumns) > 0 {
		query += " WHERE " + whereClause(whereColumns)
	}
	return query
}

// buildUpsert renders INSERT OR REPLACE INTO <table> (...) VALUES (?, ...).
func buildUpsert(table string, columns []string) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	return "INSERT OR REPLACE INTO " + table +
		" (" + strings.Join(columns, ", ") + ") VALUES (" + placeholders + ")"
}

// buildDelete renders DELETE FROM <table> WHERE ...; whereColumns must not be empty.
func buildDelete(table string, whereColumns []string) string {
	return "DELETE FROM " + table + " WHERE " + whereClause(whereColumns)
}
