package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

// MigrationsFS is set by the migrations package's init to embed the SQL
// files into the binary, so deployments never need loose schema files.
var MigrationsFS embed.FS

// MigrationsDir is the directory within MigrationsFS holding the files.
var MigrationsDir = "."

// Migrate applies all pending migrations in filename order.
//
// Migration files are named <version>_<description>.up.sql; the version
// prefix (YYYYMMDD_HHMMSS) orders them. Applied versions are recorded in
// schema_migrations, and each migration runs in its own transaction so a
// failure leaves earlier migrations committed and later ones untouched.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: If reading, ordering, or applying any migration fails
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	names, err := migrationFiles()
	if err != nil {
		return err
	}

	for _, name := range names {
		version := migrationVersion(name)

		var applied int
		if err := db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM schema_migrations WHERE version = ?", version,
		).Scan(&applied); err != nil {
			return fmt.Errorf("checking migration %s: %w", version, err)
		}
		if applied > 0 {
			continue
		}

		sqlText, err := fs.ReadFile(MigrationsFS, MigrationsDir+"/"+name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		if err := db.applyMigration(ctx, version, string(sqlText)); err != nil {
			return err
		}
	}

	return nil
}

// applyMigration runs one migration and records it, atomically.
func (db *DB) applyMigration(ctx context.Context, version, sqlText string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting migration %s: %w", version, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op once committed

	if _, err := tx.ExecContext(ctx, sqlText); err != nil {
		return fmt.Errorf("applying migration %s: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("recording migration %s: %w", version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migration %s: %w", version, err)
	}
	return nil
}

// migrationFiles lists the embedded .up.sql files in version order.
func migrationFiles() ([]string, error) {
	entries, err := fs.ReadDir(MigrationsFS, MigrationsDir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".up.sql") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// migrationVersion extracts the YYYYMMDD_HHMMSS prefix from a filename.
func migrationVersion(name string) string {
	parts := strings.SplitN(name, "_", 3)
	if len(parts) < 2 {
		return strings.TrimSuffix(name, ".up.sql")
	}
	return parts[0] + "_" + parts[1]
}
