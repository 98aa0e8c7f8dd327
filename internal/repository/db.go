package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	pingTimeout = 5 * time.Second
)

//go:embed migrations
var migrations embed.FS

// DB is a connection pool bound to one SQL dialect.
type DB struct {
	*sql.DB
	driver string
}

// Open connects with the given driver, verifies the connection and applies
// pending schema migrations.
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	var (
		sqlDB *sql.DB
		err   error
	)

	switch driver {
	case DriverMySQL:
		dsn, err = normalizeMySQLDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("parse mysql dsn: %w", err)
		}
		sqlDB, err = sql.Open("mysql", dsn)
	case DriverPostgres:
		sqlDB, err = sql.Open("pgx", dsn)
	case DriverSQLite:
		sqlDB, err = sql.Open("sqlite", sqliteDSN(dsn))
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		// One connection: every :memory: connection is a separate database,
		// and sqlite allows a single writer anyway.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	db := &DB{DB: sqlDB, driver: driver}

	if err := db.migrate(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}

	return db, nil
}

// sqliteDSN turns on foreign key enforcement for every connection the pool
// opens, unless the caller already set the pragma.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "foreign_keys") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)"
}

// Driver returns the dialect name the pool was opened with.
func (db *DB) Driver() string { return db.driver }

func (db *DB) migrate(ctx context.Context) error {
	var dialect goose.Dialect
	switch db.driver {
	case DriverMySQL:
		dialect = goose.DialectMySQL
	case DriverPostgres:
		dialect = goose.DialectPostgres
	default:
		dialect = goose.DialectSQLite3
	}

	fsys, err := fs.Sub(migrations, "migrations/"+db.driver)
	if err != nil {
		return fmt.Errorf("migrations for %s: %w", db.driver, err)
	}

	provider, err := goose.NewProvider(dialect, db.DB, fsys)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders into the $n form postgres expects.
func (db *DB) rebind(query string) string {
	if db.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// isUniqueViolation reports whether err is a unique-constraint failure in any
// of the supported drivers.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// normalizeMySQLDSN forces the options the scanners depend on: DATETIME
// columns decode into time.Time in UTC, and UPDATE reports matched rows.
func normalizeMySQLDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", err
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.ClientFoundRows = true
	return cfg.FormatDSN(), nil
}

// now returns the timestamp stored on writes. Microsecond precision matches
// DATETIME(6) and TIMESTAMPTZ so values round-trip unchanged.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
