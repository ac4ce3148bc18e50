package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"
)

//go:embed migrations
var migrationFS embed.FS

// Migration is one versioned schema change
type Migration struct {
	Version string
	Name    string
	SQL     string
}

// Migrator applies the embedded migrations for the DB's dialect and records
// them in schema_migrations.
type Migrator struct {
	db     *DB
	logger *zap.Logger
}

// NewMigrator creates a new database migrator
func NewMigrator(db *DB, logger *zap.Logger) *Migrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Migrator{db: db, logger: logger}
}

// Migrate runs all pending migrations in version order
func (m *Migrator) Migrate(ctx context.Context) error {
	if err := m.ensureMigrationTable(ctx); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	migrations, err := m.load()
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	for _, mig := range migrations {
		if applied[mig.Version] {
			continue
		}
		if err := m.apply(ctx, mig); err != nil {
			return fmt.Errorf("migration %s failed: %w", mig.Version, err)
		}
		m.logger.Info("migration_applied",
			zap.String("version", mig.Version),
			zap.String("name", mig.Name),
			zap.String("dialect", string(m.db.dialect)),
		)
	}
	return nil
}

// Version returns the latest applied migration version, or "" for a new database.
func (m *Migrator) Version(ctx context.Context) (string, error) {
	if err := m.ensureMigrationTable(ctx); err != nil {
		return "", err
	}
	var version string
	err := m.db.queryRow(ctx, `SELECT COALESCE(MAX(version), '') FROM schema_migrations`).Scan(&version)
	if err != nil {
		return "", fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

func (m *Migrator) ensureMigrationTable(ctx context.Context) error {
	_, err := m.db.exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TEXT NOT NULL
		)
	`)
	return err
}

func (m *Migrator) appliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := m.db.query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

// load reads migrations/<dialect>/NNN_name.sql
func (m *Migrator) load() ([]Migration, error) {
	dir := path.Join("migrations", dialectDir(m.db.dialect))
	entries, err := fs.ReadDir(migrationFS, dir)
	if err != nil {
		return nil, err
	}

	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, name, ok := strings.Cut(strings.TrimSuffix(entry.Name(), ".sql"), "_")
		if !ok {
			continue
		}
		body, err := fs.ReadFile(migrationFS, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", entry.Name(), err)
		}
		migrations = append(migrations, Migration{Version: version, Name: name, SQL: string(body)})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// apply runs one migration in a transaction
func (m *Migrator) apply(ctx context.Context, mig Migration) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range splitStatements(mig.SQL) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute SQL: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, m.db.rebind(`
		INSERT INTO schema_migrations (version, name, applied_at)
		VALUES (?, ?, ?)
	`), mig.Version, mig.Name, now().Format("2006-01-02T15:04:05Z07:00"))
	if err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}

// splitStatements splits a migration file on ';' so each driver sees one
// statement per Exec. Migration files must not contain ';' inside literals.
func splitStatements(sql string) []string {
	var stmts []string
	for _, s := range strings.Split(sql, ";") {
		if s = strings.TrimSpace(s); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}

func dialectDir(d Dialect) string {
	if d == DialectPostgres {
		return "postgres"
	}
	return "sqlite"
}
