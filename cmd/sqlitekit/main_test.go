package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/sqlitekit/database"
)

// setupProject writes a config file and a migrations directory under a temp dir
// and returns the config path and database path.
func setupProject(t *testing.T, mustExist bool, migrations map[string]string) (string, string) {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "data", "test.db")
	migrationsDir := filepath.Join(tmpDir, "migrations")
	if err := os.MkdirAll(migrationsDir, 0750); err != nil {
		t.Fatalf("failed to create migrations dir: %v", err)
	}
	for name, body := range migrations {
		if err := os.WriteFile(filepath.Join(migrationsDir, name), []byte(body), 0600); err != nil {
			t.Fatalf("failed to write migration: %v", err)
		}
	}

	mustExistValue := "false"
	if mustExist {
		mustExistValue = "true"
	}

	configContent := `
database:
  path: "` + dbPath + `"
  foreign_keys: true
  wal_mode: true
  busy_timeout: 5
  must_exist: ` + mustExistValue + `
migrations:
  dir: "` + migrationsDir + `"
logging:
  level: info
  format: text
  output: discard
`
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath, dbPath
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

var testMigrations = map[string]string{
	"0001_users.sql":      "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT);",
	"0002_posts.up.sql":   "CREATE TABLE posts (id INTEGER PRIMARY KEY, user_id INTEGER REFERENCES users(id));",
	"0002_posts.down.sql": "DROP TABLE posts;",
}

// TestRun_MigrateStatusTables drives the three commands against one database.
func TestRun_MigrateStatusTables(t *testing.T) {
	configPath, dbPath := setupProject(t, false, testMigrations)
	ctx := testContext(t)

	var out bytes.Buffer
	if err := run(ctx, []string{"-config", configPath, "migrate"}, &out); err != nil {
		t.Fatalf("migrate error = %v", err)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("database file not created: %v", err)
	}

	out.Reset()
	if err := run(ctx, []string{"-config", configPath, "status"}, &out); err != nil {
		t.Fatalf("status error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("status printed %d lines, want 2: %q", len(lines), out.String())
	}
	if !strings.HasPrefix(lines[0], "applied") || !strings.HasSuffix(lines[0], "0001_users") {
		t.Errorf("line 0 = %q", lines[0])
	}
	if !strings.HasSuffix(lines[1], "0002_posts") {
		t.Errorf("line 1 = %q", lines[1])
	}

	out.Reset()
	if err := run(ctx, []string{"-config", configPath, "tables", "users", "comments"}, &out); err != nil {
		t.Fatalf("tables error = %v", err)
	}
	if got, want := out.String(), "users\ttrue\ncomments\tfalse\n"; got != want {
		t.Errorf("tables output = %q, want %q", got, want)
	}
}

// TestRun_StatusPending verifies unapplied migrations are listed as pending.
func TestRun_StatusPending(t *testing.T) {
	configPath, _ := setupProject(t, false, testMigrations)

	var out bytes.Buffer
	if err := run(testContext(t), []string{"-config", configPath, "status"}, &out); err != nil {
		t.Fatalf("status error = %v", err)
	}
	if got, want := out.String(), "pending  0001_users\npending  0002_posts\n"; got != want {
		t.Errorf("status output = %q, want %q", got, want)
	}
}

// TestRun_MigrateFailureRollsBack verifies a failing batch leaves no tables behind.
func TestRun_MigrateFailureRollsBack(t *testing.T) {
	configPath, dbPath := setupProject(t, false, map[string]string{
		"0001_users.sql":  "CREATE TABLE users (id INTEGER PRIMARY KEY);",
		"0002_broken.sql": "CREATE TABLE (",
	})
	ctx := testContext(t)

	err := run(ctx, []string{"-config", configPath, "migrate"}, &bytes.Buffer{})
	if !errors.Is(err, database.ErrExecution) {
		t.Fatalf("migrate error = %v, want ErrExecution", err)
	}

	db, err := database.OpenExisting(ctx, database.Config{Path: dbPath})
	if err != nil {
		t.Fatalf("OpenExisting() error = %v", err)
	}
	defer db.Close()

	exists, err := db.TableExists(ctx, "users")
	if err != nil {
		t.Fatalf("TableExists() error = %v", err)
	}
	if exists {
		t.Error("users table should have been rolled back")
	}
}

// TestRun_MustExist verifies must_exist refuses to create a database.
func TestRun_MustExist(t *testing.T) {
	configPath, dbPath := setupProject(t, true, testMigrations)

	err := run(testContext(t), []string{"-config", configPath, "migrate"}, &bytes.Buffer{})
	if !errors.Is(err, database.ErrNotExist) {
		t.Fatalf("migrate error = %v, want ErrNotExist", err)
	}
	if _, statErr := os.Stat(dbPath); !os.IsNotExist(statErr) {
		t.Errorf("database file should not be created, stat error = %v", statErr)
	}
}

// TestRun_Usage verifies malformed command lines are rejected before any I/O.
func TestRun_Usage(t *testing.T) {
	configPath, _ := setupProject(t, false, testMigrations)

	tests := []struct {
		name string
		args []string
	}{
		{name: "no command", args: []string{"-config", configPath}},
		{name: "unknown command", args: []string{"-config", configPath, "drop"}},
		{name: "tables without names", args: []string{"-config", configPath, "tables"}},
		{name: "migrate with arguments", args: []string{"-config", configPath, "migrate", "extra"}},
		{name: "unknown flag", args: []string{"-verbose", "migrate"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := run(testContext(t), tt.args, &bytes.Buffer{})
			if !errors.Is(err, errUsage) {
				t.Errorf("run(%v) error = %v, want usage error", tt.args, err)
			}
		})
	}
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("SQLITEKIT_CONFIG", "/nonexistent/path/config.yaml")

	if err := run(testContext(t), []string{"status"}, &bytes.Buffer{}); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestGetConfigPath verifies flag, environment and default precedence.
func TestGetConfigPath(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		t.Setenv("SQLITEKIT_CONFIG", "")
		if got := getConfigPath(""); got != defaultConfigPath {
			t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
		}
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv("SQLITEKIT_CONFIG", "/custom/path/config.yaml")
		if got := getConfigPath(""); got != "/custom/path/config.yaml" {
			t.Errorf("getConfigPath() = %q", got)
		}
	})

	t.Run("flag wins", func(t *testing.T) {
		t.Setenv("SQLITEKIT_CONFIG", "/custom/path/config.yaml")
		if got := getConfigPath("/flag/config.yaml"); got != "/flag/config.yaml" {
			t.Errorf("getConfigPath() = %q", got)
		}
	})
}
