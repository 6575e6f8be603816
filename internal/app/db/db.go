/*
Package db implements the persistence collaborator for users and messages.

Two backends share one contract: PostgreSQL through a pgx connection pool for
production, and SQLite through the pure-Go modernc driver for development and
tests. Both are migrated with goose from SQL files embedded in the binary.
*/
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/pressly/goose/v3"

	"dmchat/internal/app/message"
	"dmchat/internal/app/user"
	"dmchat/internal/pkg/logx"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var embedMigrations embed.FS

// Store is the full persistence contract used by the server.
type Store interface {
	user.Store
	message.Store

	Ping(ctx context.Context) error
	Close() error
}

// Open connects to the database named by dsn and applies pending migrations.
// Supported forms are postgres://..., postgresql://... and sqlite://path.
func Open(ctx context.Context, dsn string) (Store, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return NewPostgres(ctx, dsn)
	case strings.HasPrefix(dsn, "sqlite://"):
		return NewSQLite(ctx, strings.TrimPrefix(dsn, "sqlite://"))
	default:
		return nil, fmt.Errorf("unsupported database DSN scheme in %q", redactDSN(dsn))
	}
}

// runMigrations applies all pending migrations of one dialect from the embedded file system.
func runMigrations(ctx context.Context, db *sql.DB, dialect goose.Dialect, dir string) error {
	fsys, err := fs.Sub(embedMigrations, dir)
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations %s: %w", dir, err)
	}

	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	logx.Info("Database migrations applied successfully.",
		"dialect", string(dialect),
		"applied", len(results),
	)
	return nil
}

// escapeLike escapes LIKE wildcards so a query is matched literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// timestamp normalizes t to the precision both backends can store.
func timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// redactDSN hides everything after the scheme so credentials never reach logs.
func redactDSN(dsn string) string {
	if i := strings.Index(dsn, "://"); i >= 0 {
		return dsn[:i+3] + "***"
	}
	return "***"
}
