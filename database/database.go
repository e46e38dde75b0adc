package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

// Database configuration constants.
const (
	// MemoryPath opens a private in-memory database.
	MemoryPath = ":memory:"

	// driverName is the database/sql name registered by mattn/go-sqlite3.
	driverName = "sqlite3"

	// dirPermissions is the permission mode for the database directory.
	dirPermissions = 0750

	// filePermissions is the permission mode for the database file.
	filePermissions = 0600

	// msPerSecond converts seconds to milliseconds.
	msPerSecond = 1000

	// connectionTimeout bounds the connectivity check performed by Open.
	connectionTimeout = 5 * time.Second

	// mainSchema is the schema preset images are loaded into.
	mainSchema = "main"
)

// Logger defines the logging interface used by DB.
// *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config contains database configuration options.
type Config struct {
	// Path is the filesystem path to the SQLite database file, or MemoryPath.
	// The parent directory is created if it doesn't exist.
	Path string

	// ForeignKeys turns on foreign key enforcement. Open fails if the
	// engine does not report it as enabled afterwards.
	ForeignKeys bool

	// WALMode enables Write-Ahead Logging.
	WALMode bool

	// BusyTimeout is the maximum time to wait for a database lock (seconds).
	// Zero keeps the driver default.
	BusyTimeout int
}

// DB owns one SQLite connection.
//
// The connection is pinned for the lifetime of the DB so an in-memory
// database lives exactly as long as its handle. A DB is owned by one caller
// at a time; it performs no locking of its own beyond the engine's.
type DB struct {
	pool   *sql.DB
	conn   *sql.Conn
	path   string
	logger Logger
}

// Open creates or opens the database described by cfg.
//
// It performs the following setup:
//  1. Creates the database directory if it doesn't exist
//  2. Opens the database file (creates if not present)
//  3. Applies busy timeout, foreign keys and WAL pragmas
//  4. Reads the schema catalog to prove the file is a usable database
//  5. Sets file permissions (0600)
//
// All failures match ErrOpen.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: path is required", ErrOpen)
	}

	if cfg.Path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
			return nil, fmt.Errorf("%w: creating database directory: %w", ErrOpen, err)
		}
	}

	db, err := open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Path != MemoryPath {
		_ = os.Chmod(cfg.Path, filePermissions) //nolint:errcheck // Best effort, the engine may create the file lazily
	}

	return db, nil
}

// OpenExisting opens a database file that must already exist.
// A missing file yields ErrNotExist without touching the filesystem.
func OpenExisting(ctx context.Context, cfg Config) (*DB, error) {
	if _, err := os.Stat(cfg.Path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotExist, cfg.Path)
		}
		return nil, fmt.Errorf("%w: checking database file: %w", ErrOpen, err)
	}
	return Open(ctx, cfg)
}

// OpenPreset opens an in-memory database initialised from a serialized
// SQLite image, such as one produced by Serialize or embedded with go:embed.
//
// cfg.Path is ignored. The image is copied; the caller may reuse it.
// The engine does not grow a deserialized image, so writes that need new
// pages fail; presets are meant for read-mostly reference data.
func OpenPreset(ctx context.Context, image []byte, cfg Config) (*DB, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("%w: empty preset image", ErrOpen)
	}

	cfg.Path = MemoryPath
	db, err := open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	err = db.conn.Raw(func(driverConn any) error {
		c, ok := driverConn.(*sqlite3.SQLiteConn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", driverConn)
		}
		return c.Deserialize(image, mainSchema)
	})
	if err == nil {
		err = verify(ctx, db.conn)
	}
	if err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("%w: deserializing preset: %w", ErrOpen, err)
	}

	return db, nil
}

// open connects, pins the connection and checks it.
func open(ctx context.Context, cfg Config) (*DB, error) {
	pool, err := sql.Open(driverName, connectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}

	// One physical connection, never recycled: an in-memory database
	// disappears with its connection.
	pool.SetMaxOpenConns(1)
	pool.SetMaxIdleConns(1)
	pool.SetConnMaxLifetime(0)
	pool.SetConnMaxIdleTime(0)

	ctx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()

	conn, err := pool.Conn(ctx)
	if err != nil {
		pool.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("%w: %s: %w", ErrOpen, cfg.Path, err)
	}

	db := &DB{
		pool:   pool,
		conn:   conn,
		path:   cfg.Path,
		logger: noopLogger{},
	}

	if err := verify(ctx, conn); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("%w: %s: %w", ErrOpen, cfg.Path, err)
	}

	if cfg.ForeignKeys {
		var enabled int
		if err := conn.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&enabled); err != nil {
			db.Close() //nolint:errcheck // Best effort cleanup on error path
			return nil, fmt.Errorf("%w: reading foreign_keys pragma: %w", ErrOpen, err)
		}
		if enabled != 1 {
			db.Close() //nolint:errcheck // Best effort cleanup on error path
			return nil, fmt.Errorf("%w: foreign keys could not be enabled", ErrOpen)
		}
	}

	return db, nil
}

// connectionString builds the driver DSN for cfg.
// See: https://github.com/mattn/go-sqlite3#connection-string
func connectionString(cfg Config) string {
	connStr := "file:" + uriPathEscaper.Replace(cfg.Path) + "?_txlock=immediate"
	if cfg.BusyTimeout > 0 {
		connStr += fmt.Sprintf("&_busy_timeout=%d", cfg.BusyTimeout*msPerSecond)
	}
	if cfg.ForeignKeys {
		connStr += "&_foreign_keys=on"
	}
	if cfg.WALMode {
		connStr += "&_journal_mode=WAL&_synchronous=NORMAL"
	}
	return connStr
}

// uriPathEscaper percent-encodes the characters that end or escape the path
// of a file: URI. SQLite decodes them again when it opens the file.
var uriPathEscaper = strings.NewReplacer("%", "%25", "?", "%3F", "#", "%23")

// verify reads the schema catalog, which fails for files that are not databases.
func verify(ctx context.Context, conn *sql.Conn) error {
	var tables int
	if err := conn.QueryRowContext(ctx, "SELECT count(*) FROM sqlite_master").Scan(&tables); err != nil {
		return fmt.Errorf("reading schema: %w", err)
	}
	return nil
}

// SetLogger sets the logger for the database.
func (db *DB) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	db.logger = logger
}

// Close releases the connection. It is safe to call more than once; after
// the first call every other method returns ErrClosed. A failure to release
// is an *ExecutionError with Op "close".
func (db *DB) Close() error {
	if db == nil || db.pool == nil {
		return nil
	}

	conn, pool := db.conn, db.pool
	db.conn, db.pool = nil, nil

	var errs []error
	if conn != nil {
		if err := conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := pool.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return execError("close", "", err)
	}
	return nil
}

// Path returns the path the database was opened with.
func (db *DB) Path() string {
	return db.path
}

// HealthCheck verifies the connection is alive with a trivial query.
func (db *DB) HealthCheck(ctx context.Context) error {
	conn, err := db.handle()
	if err != nil {
		return err
	}

	var result int
	if err := conn.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return execError("health check", "SELECT 1", err)
	}
	return nil
}

// Serialize returns an image of the main schema suitable for OpenPreset.
func (db *DB) Serialize(ctx context.Context) ([]byte, error) {
	conn, err := db.handle()
	if err != nil {
		return nil, err
	}

	var image []byte
	err = conn.Raw(func(driverConn any) error {
		c, ok := driverConn.(*sqlite3.SQLiteConn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", driverConn)
		}
		var serr error
		image, serr = c.Serialize(mainSchema)
		return serr
	})
	if err != nil {
		return nil, execError("serialize", "", err)
	}
	return image, nil
}

// handle returns the pinned connection or ErrClosed.
func (db *DB) handle() (*sql.Conn, error) {
	if db == nil || db.conn == nil {
		return nil, ErrClosed
	}
	return db.conn, nil
}
