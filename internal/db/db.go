package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	DialectSQLite   = "sqlite3"
	DialectPostgres = "postgres"

	DefaultMaxOpenConns = 10
)

// DB is a connection pool together with the SQL dialect spoken by its driver.
// Each service opens its own and owns its lifetime.
type DB struct {
	*sql.DB
	Dialect string
}

type Options struct {
	URL          string
	MaxOpenConns int
}

// Schema holds the DDL statements for each dialect. Statements must be
// idempotent.
type Schema struct {
	SQLite   []string
	Postgres []string
}

func Open(ctx context.Context, opts Options, schema Schema) (*DB, error) {
	driver, dialect, dsn := resolveDriver(opts.URL)

	pool, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxConns := opts.MaxOpenConns
	if maxConns <= 0 {
		maxConns = DefaultMaxOpenConns
	}
	pool.SetMaxOpenConns(maxConns)
	pool.SetMaxIdleConns(maxConns)

	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Debug().Str("driver", driver).Int("max_open_conns", maxConns).Msg("database connection successful")

	d := &DB{DB: pool, Dialect: dialect}
	if err := d.migrate(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info().Str("driver", driver).Msg("migrations completed successfully")

	return d, nil
}

// Goqu returns a query builder bound to the pool and its dialect.
func (d *DB) Goqu() *goqu.Database {
	return goqu.New(d.Dialect, d.DB)
}

// InsertReturningID runs an insert and returns the generated id. The sqlite3
// dialect has no RETURNING support in goqu, so it falls back to LastInsertId.
func (d *DB) InsertReturningID(ctx context.Context, ds *goqu.InsertDataset) (int64, error) {
	if d.Dialect == DialectPostgres {
		var id int64
		if _, err := ds.Returning("id").Executor().ScanValContext(ctx, &id); err != nil {
			return 0, err
		}
		return id, nil
	}

	res, err := ds.Executor().ExecContext(ctx)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (d *DB) migrate(ctx context.Context, schema Schema) error {
	statements := schema.SQLite
	if d.Dialect == DialectPostgres {
		statements = schema.Postgres
	}

	for _, stmt := range statements {
		if _, err := d.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

// IsUniqueViolation reports whether err was caused by a UNIQUE constraint on
// any of the supported drivers.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}

	// libsql reports constraint failures as plain strings
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func resolveDriver(rawURL string) (driver, dialect, dsn string) {
	switch {
	case strings.HasPrefix(rawURL, "postgres://"), strings.HasPrefix(rawURL, "postgresql://"):
		return "pgx", DialectPostgres, rawURL
	case strings.HasPrefix(rawURL, "libsql://"), strings.HasPrefix(rawURL, "wss://"):
		return "libsql", DialectSQLite, rawURL
	default:
		return "sqlite", DialectSQLite, formatDBPath(rawURL)
	}
}

func formatDBPath(path string) string {
	path = strings.TrimPrefix(path, "file:")
	if path == "" {
		path = "shortlink.db"
	}

	// Add pragmas for better performance and safety
	// See: https://pkg.go.dev/modernc.org/sqlite#pkg-overview
	params := url.Values{}
	params.Set("mode", "rwc")
	params.Set("_time_format", "sqlite")
	params.Set("_pragma", "foreign_keys(1)")
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "synchronous(NORMAL)")
	params.Add("_pragma", "busy_timeout(5000)")

	return "file:" + path + "?" + params.Encode()
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
