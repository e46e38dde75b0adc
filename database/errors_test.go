package database

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"
)

var categories = []error{ErrOpen, ErrPrecondition, ErrExecution, ErrDataShape}

// categoryOf returns the single category err matches, failing the test if it
// matches none or several.
func categoryOf(t *testing.T, err error) error {
	t.Helper()

	var matched []error
	for _, c := range categories {
		if errors.Is(err, c) {
			matched = append(matched, c)
		}
	}
	if len(matched) != 1 {
		t.Fatalf("error %v matches %d categories, want exactly 1", err, len(matched))
	}
	return matched[0]
}

func TestErrorsHaveExactlyOneCategory(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	closed := openTestDB(t)
	if err := closed.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	tests := []struct {
		name string
		err  func() error
		want error
	}{
		{
			name: "open without path",
			err:  func() error { _, err := Open(ctx, Config{}); return err },
			want: ErrOpen,
		},
		{
			name: "closed handle",
			err:  func() error { _, err := closed.SelectAll(ctx, "t"); return err },
			want: ErrPrecondition,
		},
		{
			name: "missing migrations directory",
			err:  func() error { _, err := LoadMigrations(fstest.MapFS{}, "nope"); return err },
			want: ErrPrecondition,
		},
		{
			name: "duplicate migration title",
			err: func() error {
				_, err := LoadMigrations(fstest.MapFS{
					"m/0001_x.sql":    {Data: []byte("SELECT 1;")},
					"m/0001_x.up.sql": {Data: []byte("SELECT 2;")},
				}, "m")
				return err
			},
			want: ErrPrecondition,
		},
		{
			name: "engine rejects statement",
			err:  func() error { _, err := db.Exec(ctx, "NOT SQL"); return err },
			want: ErrExecution,
		},
		{
			name: "failed migration batch",
			err: func() error {
				return db.RunMigrations(ctx, []Migration{NewMigration("bad", "CREATE TABLE (")})
			},
			want: ErrExecution,
		},
		{
			name: "close failure",
			err:  func() error { return execError("close", "", errors.New("busy")) },
			want: ErrExecution,
		},
		{
			name: "unsupported bound value",
			err:  func() error { return db.Upsert(ctx, "t", Data{"id": 1.5}) },
			want: ErrDataShape,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := categoryOf(t, tt.err()); got != tt.want {
				t.Errorf("category = %v, want %v", got, tt.want)
			}
		})
	}
}
