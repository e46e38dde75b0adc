// sqlitekit applies and inspects SQLite schema migrations.
//
// Usage:
//
//	sqlitekit [-config path] migrate
//	sqlitekit [-config path] status
//	sqlitekit [-config path] tables NAME...
//
// Configuration is read from the -config flag, then SQLITEKIT_CONFIG, then
// configs/config.yaml. See internal/infrastructure/config for the keys.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/sqlitekit/database"
	"github.com/nerrad567/sqlitekit/internal/infrastructure/config"
	"github.com/nerrad567/sqlitekit/internal/infrastructure/logging"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// errUsage is returned for malformed command lines.
var errUsage = errors.New("usage: sqlitekit [-config path] migrate|status|tables NAME...")

func main() {
	// Cancel on Ctrl+C or SIGTERM so a long migration batch rolls back cleanly
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation
//   - args: Command line arguments without the program name
//   - stdout: Destination for command output (logs go to the configured output)
//
// Returns:
//   - error: nil on success, or error describing failure
func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("sqlitekit", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configFlag := fs.String("config", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() == 0 {
		return errUsage
	}
	command, rest := fs.Arg(0), fs.Args()[1:]

	configPath := getConfigPath(*configFlag)
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logging.New(cfg.Logging, version)
	log.Debug("configuration loaded", "path", configPath, "commit", commit)

	switch command {
	case "migrate":
		if len(rest) != 0 {
			return errUsage
		}
	case "status":
		if len(rest) != 0 {
			return errUsage
		}
	case "tables":
		if len(rest) == 0 {
			return errUsage
		}
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}

	db, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	db.SetLogger(log.With("component", "database"))

	switch command {
	case "migrate":
		return migrate(ctx, db, cfg.Migrations)
	case "status":
		return status(ctx, db, cfg.Migrations, stdout)
	default:
		return tables(ctx, db, rest, stdout)
	}
}

// openDatabase opens the configured database, refusing to create it when
// must_exist is set.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*database.DB, error) {
	dbCfg := database.Config{
		Path:        cfg.Path,
		ForeignKeys: cfg.ForeignKeys,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	}
	if cfg.MustExist {
		return database.OpenExisting(ctx, dbCfg)
	}
	return database.Open(ctx, dbCfg)
}

// loadMigrations reads every migration file in the configured directory.
func loadMigrations(cfg config.MigrationsConfig) ([]database.Migration, error) {
	migrations, err := database.LoadMigrations(os.DirFS(cfg.Dir), ".")
	if err != nil {
		return nil, fmt.Errorf("loading migrations from %s: %w", cfg.Dir, err)
	}
	return migrations, nil
}

func migrate(ctx context.Context, db *database.DB, cfg config.MigrationsConfig) error {
	migrations, err := loadMigrations(cfg)
	if err != nil {
		return err
	}
	if err := db.RunMigrations(ctx, migrations); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

func status(ctx context.Context, db *database.DB, cfg config.MigrationsConfig, stdout io.Writer) error {
	migrations, err := loadMigrations(cfg)
	if err != nil {
		return err
	}

	applied, pending, err := db.MigrationStatus(ctx, migrations)
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}

	for _, m := range applied {
		fmt.Fprintf(stdout, "applied  %s  %s\n", m.AppliedAt.UTC().Format(time.RFC3339), m.Title)
	}
	for _, m := range pending {
		fmt.Fprintf(stdout, "pending  %s\n", m.Title)
	}
	return nil
}

func tables(ctx context.Context, db *database.DB, names []string, stdout io.Writer) error {
	for _, name := range names {
		exists, err := db.TableExists(ctx, name)
		if err != nil {
			return fmt.Errorf("checking table %s: %w", name, err)
		}
		fmt.Fprintf(stdout, "%s\t%t\n", name, exists)
	}
	return nil
}

// getConfigPath returns the configuration file path.
// The flag wins, then SQLITEKIT_CONFIG, then the default.
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv("SQLITEKIT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
