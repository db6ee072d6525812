package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/tern/v2/migrate"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const (
	// "pollpu" in ASCII hex; every instance contends on the same key.
	migrationLockKey            = 0x706f6c6c7075
	migrationLockReleaseTimeout = 5 * time.Second
	schemaVersionTable          = "public.schema_version"
)

// RunMigrationsWithLock brings the schema up to date. Instances starting
// together serialize on a session-level advisory lock, so only the first
// one migrates and the rest find nothing to do.
func RunMigrationsWithLock(ctx context.Context, pool *pgxpool.Pool) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection for migration: %w", err)
	}
	defer conn.Release()

	return withAdvisoryLock(ctx, conn.Conn(), migrationLockKey, func() error {
		return migrateSchema(ctx, conn.Conn())
	})
}

func migrateSchema(ctx context.Context, conn *pgx.Conn) error {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	migrator, err := migrate.NewMigrator(ctx, conn, schemaVersionTable)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	if err := migrator.LoadMigrations(sub); err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	before, err := migrator.GetCurrentVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	target := int32(len(migrator.Migrations))
	if before == target {
		slog.Info("Database schema up to date", "version", before)
		return nil
	}

	migrator.OnStart = func(sequence int32, name, _, _ string) {
		slog.Info("Applying migration", "sequence", sequence, "name", name)
	}
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	slog.Info("Database schema migrated", "from", before, "to", target)
	return nil
}

func withAdvisoryLock(ctx context.Context, conn *pgx.Conn, key int64, fn func() error) error {
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", key); err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}

	defer func() {
		// The caller's ctx may already be done; the lock must still go.
		unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), migrationLockReleaseTimeout)
		defer cancel()
		if _, err := conn.Exec(unlockCtx, "SELECT pg_advisory_unlock($1)", key); err != nil {
			slog.Error("Failed to release migration lock", "error", err)
		}
	}()

	return fn()
}
