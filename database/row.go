package database

import (
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// sqliteTimeFormat is how SQLite renders CURRENT_TIMESTAMP.
const sqliteTimeFormat = "2006-01-02 15:04:05.999999999"

// Scalar lists the types a cell can be read as.
type Scalar interface {
	string | int | int64 | uint | uint64 | float64 | bool
}

// Row is one materialised result row: column name to text cell.
// A cell with Valid == false is SQL NULL.
//
// Cells hold the stored value as text whatever the column's declared type:
// 42 in a DATE column reads back as "42" and 5 in a BOOLEAN column as "5".
// REAL values are written with a trailing ".0" when integral, as SQLite prints
// them. The one exception is a result with duplicate column names, or a
// statement that cannot be used as a subquery (INSERT ... RETURNING): there
// the driver's conversions stand, so DATE, DATETIME and TIMESTAMP cells come
// back as "YYYY-MM-DD HH:MM:SS" in UTC and BOOLEAN cells as "1" or "0".
type Row struct {
	cells map[string]sql.NullString
}

// NewRow returns an empty row.
func NewRow() Row {
	return Row{cells: make(map[string]sql.NullString)}
}

// Add sets the cell for column. Adding the same column twice keeps the last value.
func (r *Row) Add(column string, cell sql.NullString) {
	if r.cells == nil {
		r.cells = make(map[string]sql.NullString)
	}
	r.cells[column] = cell
}

// Cell returns the raw cell for column and whether the column is present.
func (r Row) Cell(column string) (sql.NullString, bool) {
	cell, ok := r.cells[column]
	return cell, ok
}

// Has reports whether the row has a cell for column.
func (r Row) Has(column string) bool {
	_, ok := r.cells[column]
	return ok
}

// Columns returns the row's column names in sorted order.
func (r Row) Columns() []string {
	columns := make([]string, 0, len(r.cells))
	for c := range r.cells {
		columns = append(columns, c)
	}
	sort.Strings(columns)
	return columns
}

// Len returns the number of cells in the row.
func (r Row) Len() int {
	return len(r.cells)
}

// Get parses the cell for column as T.
//
// It fails with ErrColumnNotFound if the column is absent, ErrNullValue if
// the cell is NULL and ErrFormat if the text does not parse as T. Booleans
// are true only for the text "1".
func Get[T Scalar](row Row, column string) (T, error) {
	var zero T
	cell, ok := row.cells[column]
	if !ok {
		return zero, fmt.Errorf("%w: %q", ErrColumnNotFound, column)
	}
	if !cell.Valid {
		return zero, fmt.Errorf("%w: %q", ErrNullValue, column)
	}
	return parseCell[T](column, cell.String)
}

// GetOptional is like Get but a NULL cell yields Valid == false instead of an error.
func GetOptional[T Scalar](row Row, column string) (sql.Null[T], error) {
	cell, ok := row.cells[column]
	if !ok {
		return sql.Null[T]{}, fmt.Errorf("%w: %q", ErrColumnNotFound, column)
	}
	if !cell.Valid {
		return sql.Null[T]{}, nil
	}
	v, err := parseCell[T](column, cell.String)
	if err != nil {
		return sql.Null[T]{}, err
	}
	return sql.Null[T]{V: v, Valid: true}, nil
}

func parseCell[T Scalar](column, text string) (T, error) {
	var out T
	var err error

	switch p := any(&out).(type) {
	case *string:
		*p = text
	case *int:
		var v int64
		v, err = strconv.ParseInt(text, 10, strconv.IntSize)
		*p = int(v)
	case *int64:
		*p, err = strconv.ParseInt(text, 10, 64)
	case *uint:
		var v uint64
		v, err = strconv.ParseUint(text, 10, strconv.IntSize)
		*p = uint(v)
	case *uint64:
		*p, err = strconv.ParseUint(text, 10, 64)
	case *float64:
		*p, err = strconv.ParseFloat(text, 64)
	case *bool:
		*p = text == "1"
	}

	if err != nil {
		var zero T
		return zero, fmt.Errorf("%w: column %q: %w", ErrFormat, column, err)
	}
	return out, nil
}

// cellText renders a driver value the way the SQLite shell would print it.
func cellText(v any) sql.NullString {
	switch v := v.(type) {
	case nil:
		return sql.NullString{}
	case string:
		return sql.NullString{String: v, Valid: true}
	case []byte:
		return sql.NullString{String: string(v), Valid: true}
	case int64:
		return sql.NullString{String: strconv.FormatInt(v, 10), Valid: true}
	case float64:
		return sql.NullString{String: realText(v), Valid: true}
	case bool:
		// Only reached when a converted column could not be re-read as stored.
		if v {
			return sql.NullString{String: "1", Valid: true}
		}
		return sql.NullString{String: "0", Valid: true}
	case time.Time:
		return sql.NullString{String: v.UTC().Format(sqliteTimeFormat), Valid: true}
	default:
		return sql.NullString{String: fmt.Sprint(v), Valid: true}
	}
}

// realText renders a REAL the way SQLite does ("2.0", "1.0e+20", "Inf")
// but with the shortest digits that parse back to v.
func realText(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	}

	exp := strconv.FormatFloat(v, 'e', -1, 64)
	mantissa, exponent, _ := strings.Cut(exp, "e")
	e, _ := strconv.Atoi(exponent)
	if e < -4 || e >= 15 {
		if !strings.Contains(mantissa, ".") {
			mantissa += ".0"
		}
		return mantissa + "e" + exponent
	}

	text := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(text, ".") {
		text += ".0"
	}
	return text
}

// scanRows materialises every remaining row of rows and closes it.
func scanRows(rows *sql.Rows) ([]Row, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	values := make([]any, len(columns))
	dest := make([]any, len(columns))
	for i := range values {
		dest[i] = &values[i]
	}

	var result []Row
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		row := Row{cells: make(map[string]sql.NullString, len(columns))}
		for i, column := range columns {
			row.Add(column, cellText(values[i]))
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return result, nil
}
