package database

import (
	"database/sql"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"
)

func text(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}

func testRow() Row {
	row := NewRow()
	row.Add("int", text("-7"))
	row.Add("uint", text("7"))
	row.Add("float", text("2.5"))
	row.Add("yes", text("1"))
	row.Add("no", text("true"))
	row.Add("word", text("hello"))
	row.Add("null", sql.NullString{})
	return row
}

func TestRowGet(t *testing.T) {
	row := testRow()

	if v, err := Get[int](row, "int"); err != nil || v != -7 {
		t.Errorf("Get[int] = %v, %v; want -7", v, err)
	}
	if v, err := Get[int64](row, "int"); err != nil || v != -7 {
		t.Errorf("Get[int64] = %v, %v; want -7", v, err)
	}
	if v, err := Get[uint](row, "uint"); err != nil || v != 7 {
		t.Errorf("Get[uint] = %v, %v; want 7", v, err)
	}
	if v, err := Get[uint64](row, "uint"); err != nil || v != 7 {
		t.Errorf("Get[uint64] = %v, %v; want 7", v, err)
	}
	if v, err := Get[float64](row, "float"); err != nil || v != 2.5 {
		t.Errorf("Get[float64] = %v, %v; want 2.5", v, err)
	}
	if v, err := Get[string](row, "word"); err != nil || v != "hello" {
		t.Errorf("Get[string] = %v, %v; want hello", v, err)
	}
}

func TestRowGetBool(t *testing.T) {
	row := testRow()

	tests := []struct {
		column string
		want   bool
	}{
		{column: "yes", want: true},
		{column: "no", want: false},
		{column: "word", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.column, func(t *testing.T) {
			got, err := Get[bool](row, tt.column)
			if err != nil {
				t.Fatalf("Get[bool] error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Get[bool](%q) = %v, want %v", tt.column, got, tt.want)
			}
		})
	}
}

func TestRowGetErrors(t *testing.T) {
	row := testRow()

	tests := []struct {
		name string
		get  func() error
		want error
	}{
		{
			name: "missing column",
			get:  func() error { _, err := Get[string](row, "absent"); return err },
			want: ErrColumnNotFound,
		},
		{
			name: "missing column optional",
			get:  func() error { _, err := GetOptional[string](row, "absent"); return err },
			want: ErrColumnNotFound,
		},
		{
			name: "null value",
			get:  func() error { _, err := Get[string](row, "null"); return err },
			want: ErrNullValue,
		},
		{
			name: "null bool",
			get:  func() error { _, err := Get[bool](row, "null"); return err },
			want: ErrNullValue,
		},
		{
			name: "text as int",
			get:  func() error { _, err := Get[int](row, "word"); return err },
			want: ErrFormat,
		},
		{
			name: "negative as uint",
			get:  func() error { _, err := Get[uint](row, "int"); return err },
			want: ErrFormat,
		},
		{
			name: "text as optional float",
			get:  func() error { _, err := GetOptional[float64](row, "word"); return err },
			want: ErrFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.get()
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			if !errors.Is(err, ErrDataShape) {
				t.Errorf("error = %v, want ErrDataShape category", err)
			}
		})
	}
}

func TestRowGetOptional(t *testing.T) {
	row := testRow()

	got, err := GetOptional[int](row, "null")
	if err != nil {
		t.Fatalf("GetOptional() error = %v", err)
	}
	if got.Valid {
		t.Errorf("GetOptional(null) = %v, want invalid", got)
	}

	got, err = GetOptional[int](row, "int")
	if err != nil {
		t.Fatalf("GetOptional() error = %v", err)
	}
	if !got.Valid || got.V != -7 {
		t.Errorf("GetOptional(int) = %+v, want -7", got)
	}

	s, err := GetOptional[string](row, "word")
	if err != nil || !s.Valid || s.V != "hello" {
		t.Errorf("GetOptional[string](word) = %+v, %v", s, err)
	}
}

func TestRowAdd(t *testing.T) {
	var row Row
	row.Add("a", text("1"))
	row.Add("a", text("2"))
	row.Add("b", sql.NullString{})

	if row.Len() != 2 {
		t.Errorf("Len() = %d, want 2", row.Len())
	}
	if v, _ := Get[int](row, "a"); v != 2 {
		t.Errorf("last write should win, got %d", v)
	}
	if !row.Has("b") || row.Has("c") {
		t.Error("Has() mismatch")
	}
	if got := row.Columns(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Columns() = %v", got)
	}
}

func TestCellText(t *testing.T) {
	at := time.Date(2026, 1, 18, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value any
		want  sql.NullString
	}{
		{name: "nil", value: nil, want: sql.NullString{}},
		{name: "string", value: "x", want: text("x")},
		{name: "bytes", value: []byte("y"), want: text("y")},
		{name: "int64", value: int64(42), want: text("42")},
		{name: "float64", value: 0.25, want: text("0.25")},
		{name: "integral float64", value: 2.0, want: text("2.0")},
		{name: "true", value: true, want: text("1")},
		{name: "false", value: false, want: text("0")},
		{name: "time", value: at, want: text("2026-01-18 12:00:00")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cellText(tt.value); got != tt.want {
				t.Errorf("cellText(%v) = %+v, want %+v", tt.value, got, tt.want)
			}
		})
	}
}

func TestRealText(t *testing.T) {
	tests := []struct {
		value float64
		want  string
	}{
		{value: 2, want: "2.0"},
		{value: -3, want: "-3.0"},
		{value: 0, want: "0.0"},
		{value: 1.5, want: "1.5"},
		{value: 1234567, want: "1234567.0"},
		{value: 0.0001, want: "0.0001"},
		{value: 0.00001, want: "1.0e-05"},
		{value: 1e20, want: "1.0e+20"},
		{value: 1.25e20, want: "1.25e+20"},
		{value: math.Inf(1), want: "Inf"},
		{value: math.Inf(-1), want: "-Inf"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := realText(tt.value); got != tt.want {
				t.Errorf("realText(%v) = %q, want %q", tt.value, got, tt.want)
			}
		})
	}
}
