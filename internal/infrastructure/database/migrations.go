package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

// MigrationsFS holds the embedded migration files. The migrations
// package registers its embed.FS here in an init func so the schema
// ships inside the binary.
var MigrationsFS embed.FS

// MigrationsDir is the directory inside MigrationsFS holding the
// *.sql files. "." when the files sit at the FS root.
var MigrationsDir = "migrations"

// Migration is one versioned schema change. Files are named
// VERSION_description.up.sql / VERSION_description.down.sql where
// VERSION is YYYYMMDD_HHMMSS; the version orders application.
type Migration struct {
	Version string
	Name    string
	Up      string
	Down    string
}

// Migrate applies every pending migration in version order.
//
// Each migration runs in its own transaction: a failure rolls back
// that migration only, leaves earlier ones committed, and stops before
// later ones. Re-running Migrate after fixing the problem resumes from
// the failed version. Already-applied versions are skipped, so the
// call is idempotent.
func (db *DB) Migrate(ctx context.Context) error {
	if err := db.ensureVersionTable(ctx); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	migrations, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}

	applied, err := db.appliedVersions(ctx)
	if err != nil {
		return fmt.Errorf("reading applied versions: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		if err := db.runMigration(ctx, m); err != nil {
			return fmt.Errorf("migration %s (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

// MigrateDown rolls back the most recently applied migration. Intended
// for development and tests, not production schema management.
func (db *DB) MigrateDown(ctx context.Context) error {
	versions, err := db.appliedVersionList(ctx)
	if err != nil {
		return fmt.Errorf("reading applied versions: %w", err)
	}
	if len(versions) == 0 {
		return nil
	}
	latest := versions[len(versions)-1]

	migrations, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}

	for _, m := range migrations {
		if m.Version != latest {
			continue
		}
		if m.Down == "" {
			return fmt.Errorf("migration %s has no down SQL", latest)
		}
		return db.runRollback(ctx, m)
	}
	return fmt.Errorf("applied migration %s not present in embedded filesystem", latest)
}

// MigrationStatus reports which versions have been applied and which
// embedded migrations are still pending.
func (db *DB) MigrationStatus(ctx context.Context) (applied []string, pending []string, err error) {
	applied, err = db.appliedVersionList(ctx)
	if err != nil {
		return nil, nil, err
	}

	migrations, err := loadMigrations()
	if err != nil {
		return nil, nil, err
	}

	seen := make(map[string]bool, len(applied))
	for _, v := range applied {
		seen[v] = true
	}
	for _, m := range migrations {
		if !seen[m.Version] {
			pending = append(pending, m.Version)
		}
	}
	return applied, pending, nil
}

func (db *DB) ensureVersionTable(ctx context.Context) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`)
	return err
}

// appliedVersions returns the applied set as a lookup map.
func (db *DB) appliedVersions(ctx context.Context) (map[string]bool, error) {
	list, err := db.appliedVersionList(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(list))
	for _, v := range list {
		set[v] = true
	}
	return set, nil
}

func (db *DB) appliedVersionList(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT version FROM schema_migrations ORDER BY version",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// runMigration executes one up migration and records it, atomically.
func (db *DB) runMigration(ctx context.Context, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is a no-op after commit

	if _, err := tx.ExecContext(ctx, m.Up); err != nil {
		return fmt.Errorf("executing up SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
		m.Version, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("recording version: %w", err)
	}
	return tx.Commit()
}

// runRollback executes one down migration and removes its record,
// atomically.
func (db *DB) runRollback(ctx context.Context, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is a no-op after commit

	if _, err := tx.ExecContext(ctx, m.Down); err != nil {
		return fmt.Errorf("executing down SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM schema_migrations WHERE version = ?", m.Version,
	); err != nil {
		return fmt.Errorf("removing version record: %w", err)
	}
	return tx.Commit()
}

// loadMigrations reads and pairs the embedded up/down files, sorted by
// version. An empty or unset MigrationsFS yields no migrations.
func loadMigrations() ([]Migration, error) {
	var unset embed.FS
	if MigrationsFS == unset {
		return nil, nil
	}

	entries, err := fs.ReadDir(MigrationsFS, MigrationsDir)
	if err != nil {
		return nil, nil
	}

	byVersion := make(map[string]*Migration)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version, name, up, ok := splitMigrationFilename(entry.Name())
		if !ok {
			continue
		}

		sql, err := fs.ReadFile(MigrationsFS, path.Join(MigrationsDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}

		m := byVersion[version]
		if m == nil {
			m = &Migration{Version: version, Name: name}
			byVersion[version] = m
		}
		if up {
			m.Up = string(sql)
		} else {
			m.Down = string(sql)
		}
	}

	migrations := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		migrations = append(migrations, *m)
	}
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// splitMigrationFilename decomposes VERSION_description.up.sql into its
// parts. Files that do not follow the naming scheme are skipped.
func splitMigrationFilename(filename string) (version, name string, up, ok bool) {
	base, found := strings.CutSuffix(filename, ".sql")
	if !found {
		return "", "", false, false
	}

	switch {
	case strings.HasSuffix(base, ".up"):
		up = true
		base = strings.TrimSuffix(base, ".up")
	case strings.HasSuffix(base, ".down"):
		base = strings.TrimSuffix(base, ".down")
	default:
		return "", "", false, false
	}

	// VERSION is the date_time prefix: YYYYMMDD_HHMMSS_description.
	parts := strings.SplitN(base, "_", 3)
	if len(parts) < 3 {
		return "", "", false, false
	}
	return parts[0] + "_" + parts[1], parts[2], up, true
}
