package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

// MigrationsTable is the ledger of applied migrations.
const MigrationsTable = "sqlitekit_migrations"

// createMigrationsTable is the ledger schema. Existing databases depend on
// these exact columns.
const createMigrationsTable = `CREATE TABLE IF NOT EXISTS ` + MigrationsTable + ` (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL UNIQUE,
	applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP NOT NULL
)`

// Migration is a titled batch of SQL. The title is its identity: a title
// that is already in the ledger is never applied again, whatever its SQL.
type Migration struct {
	Title string
	SQL   string
}

// NewMigration returns a Migration.
func NewMigration(title, body string) Migration {
	return Migration{Title: title, SQL: body}
}

// MigrationRecord represents a row in the ledger.
type MigrationRecord struct {
	ID        int64
	Title     string
	AppliedAt time.Time
}

// RunMigrations applies, in order, every migration whose title is not in
// the ledger.
//
// # Atomicity
//
// The whole call is one transaction. If migration N fails, migrations
// 1 to N-1 from this call are rolled back as well, the ledger is left as
// it was, and the error from migration N is returned.
//
// Migration SQL must not manage transactions itself.
func (db *DB) RunMigrations(ctx context.Context, migrations []Migration) (err error) {
	conn, err := db.handle()
	if err != nil {
		return err
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return execError("beginning migrations", "", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			db.logger.Error("rolling back migrations", "error", rbErr)
		}
		db.logger.Warn("migrations rolled back", "error", err)
	}()

	if err := db.ensureMigrationsTable(ctx, tx); err != nil {
		return err
	}

	applied := 0
	for _, m := range migrations {
		ran, err := db.applyMigration(ctx, tx, m)
		if err != nil {
			return fmt.Errorf("applying migration %q: %w", m.Title, err)
		}
		if ran {
			applied++
		}
	}

	if err := tx.Commit(); err != nil {
		return execError("committing migrations", "", err)
	}
	committed = true

	db.logger.Info("migrations complete",
		"applied", applied,
		"skipped", len(migrations)-applied,
	)
	return nil
}

// ensureMigrationsTable creates the ledger if it doesn't exist.
func (db *DB) ensureMigrationsTable(ctx context.Context, q queryer) error {
	exists, err := db.tableExists(ctx, q, MigrationsTable)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if _, err := db.exec(ctx, q, "creating migrations table", createMigrationsTable, nil); err != nil {
		return err
	}
	return nil
}

// applyMigration records and runs m unless its title is already in the ledger.
func (db *DB) applyMigration(ctx context.Context, q queryer, m Migration) (bool, error) {
	rows, err := db.selectWhere(ctx, q, MigrationsTable, nil, nil)
	if err != nil {
		return false, err
	}
	for _, row := range rows {
		title, err := Get[string](row, "title")
		if err != nil {
			return false, err
		}
		if title == m.Title {
			db.logger.Debug("migration already applied", "title", m.Title)
			return false, nil
		}
	}

	if _, err := db.exec(ctx, q, "recording migration",
		"INSERT INTO "+MigrationsTable+" (title) VALUES (?)", []any{m.Title}); err != nil {
		return false, err
	}

	if _, err := db.exec(ctx, q, "migrate", m.SQL, nil); err != nil {
		return false, err
	}

	db.logger.Info("migration applied", "title", m.Title)
	return true, nil
}

// AppliedMigrations returns the ledger in application order. It is empty,
// not an error, when no migration has ever run.
func (db *DB) AppliedMigrations(ctx context.Context) ([]MigrationRecord, error) {
	conn, err := db.handle()
	if err != nil {
		return nil, err
	}

	exists, err := db.tableExists(ctx, conn, MigrationsTable)
	if err != nil || !exists {
		return nil, err
	}

	rows, err := db.query(ctx, conn, "reading migrations",
		"SELECT id, title, applied_at FROM "+MigrationsTable+" ORDER BY id", nil)
	if err != nil {
		return nil, err
	}

	records := make([]MigrationRecord, 0, len(rows))
	for _, row := range rows {
		r, err := migrationRecord(row)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

func migrationRecord(row Row) (MigrationRecord, error) {
	id, err := Get[int64](row, "id")
	if err != nil {
		return MigrationRecord{}, err
	}
	title, err := Get[string](row, "title")
	if err != nil {
		return MigrationRecord{}, err
	}
	appliedAt, err := Get[string](row, "applied_at")
	if err != nil {
		return MigrationRecord{}, err
	}

	at, err := time.Parse(sqliteTimeFormat, appliedAt)
	if err != nil {
		return MigrationRecord{}, fmt.Errorf("%w: applied_at: %w", ErrFormat, err)
	}
	return MigrationRecord{ID: id, Title: title, AppliedAt: at}, nil
}

// MigrationStatus splits migrations into those already in the ledger and
// those RunMigrations would apply.
func (db *DB) MigrationStatus(ctx context.Context, migrations []Migration) (applied []MigrationRecord, pending []Migration, err error) {
	applied, err = db.AppliedMigrations(ctx)
	if err != nil {
		return nil, nil, err
	}

	appliedSet := make(map[string]bool, len(applied))
	for _, r := range applied {
		appliedSet[r.Title] = true
	}

	for _, m := range migrations {
		if !appliedSet[m.Title] {
			pending = append(pending, m)
		}
	}
	return applied, pending, nil
}

// LoadMigrations reads every .sql file in dir of fsys, sorted by file name.
// The title is the file name without ".sql" (and without ".up" when
// present); ".down.sql" files are skipped.
//
// Example: "0001_create_users.up.sql" -> title "0001_create_users"
//
// Every failure is a precondition failure: an unreadable directory or file,
// ErrDuplicateMigration or ErrEmptyMigration.
func LoadMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("%w: reading migrations directory: %w", ErrPrecondition, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := migrationTitle(entry.Name()); ok {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	migrations := make([]Migration, 0, len(names))
	seen := make(map[string]string, len(names))
	for _, name := range names {
		title, _ := migrationTitle(name)
		if other, dup := seen[title]; dup {
			return nil, fmt.Errorf("%w: %s and %s share title %q", ErrDuplicateMigration, other, name, title)
		}
		seen[title] = name

		body, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("%w: reading %s: %w", ErrPrecondition, name, err)
		}
		if strings.TrimSpace(string(body)) == "" {
			return nil, fmt.Errorf("%w: %s", ErrEmptyMigration, name)
		}
		migrations = append(migrations, NewMigration(title, string(body)))
	}

	return migrations, nil
}

// migrationTitle derives the ledger title from a file name.
func migrationTitle(name string) (string, bool) {
	if !strings.HasSuffix(name, ".sql") {
		return "", false
	}

	base := strings.TrimSuffix(name, ".sql")
	switch {
	case strings.HasSuffix(base, ".down"):
		return "", false
	case strings.HasSuffix(base, ".up"):
		base = strings.TrimSuffix(base, ".up")
	}

	if base == "" {
		return "", false
	}
	return base, true
}
