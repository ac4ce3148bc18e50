package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect identifies the SQL flavour behind a DB
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

// DB wraps *sql.DB with the dialect it was opened with. Queries are written
// with '?' placeholders and rebound for PostgreSQL.
type DB struct {
	*sql.DB
	dialect Dialect
}

// New opens the database named by url and verifies the connection.
//
//	postgres://... or postgresql://...   PostgreSQL via lib/pq
//	sqlite://path, file:path or a path   SQLite via mattn/go-sqlite3
func New(url string) (*DB, error) {
	dialect, dsn := parseURL(url)

	sqlDB, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dialect == DialectSQLite {
		// SQLite allows one writer; a single connection avoids SQLITE_BUSY
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &DB{DB: sqlDB, dialect: dialect}, nil
}

// Dialect reports which SQL flavour the DB speaks.
func (db *DB) Dialect() Dialect { return db.dialect }

func parseURL(url string) (Dialect, string) {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return DialectPostgres, url
	case strings.HasPrefix(url, "sqlite://"):
		return DialectSQLite, withSQLiteDefaults(strings.TrimPrefix(url, "sqlite://"))
	case strings.HasPrefix(url, "sqlite3://"):
		return DialectSQLite, withSQLiteDefaults(strings.TrimPrefix(url, "sqlite3://"))
	default:
		return DialectSQLite, withSQLiteDefaults(url)
	}
}

// withSQLiteDefaults turns on foreign keys and a busy timeout unless the DSN
// already sets its own options.
func withSQLiteDefaults(dsn string) string {
	if strings.Contains(dsn, "?") {
		return dsn
	}
	return dsn + "?_foreign_keys=on&_busy_timeout=5000"
}

// rebind rewrites '?' placeholders as $1, $2, ... for PostgreSQL.
func (db *DB) rebind(query string) string {
	if db.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (db *DB) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return db.QueryRowContext(ctx, db.rebind(query), args...)
}

func (db *DB) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.QueryContext(ctx, db.rebind(query), args...)
}

func (db *DB) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.ExecContext(ctx, db.rebind(query), args...)
}

// now is the timestamp written for created_at and updated_at. PostgreSQL
// keeps microseconds, so everything is truncated to match.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
