// Package migration applies the embedded goose migrations.
package migration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"apphub/migrations"
)

// gooseLogger routes goose output through zap.
type gooseLogger struct {
	log *zap.Logger
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.log.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	l.log.Error(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// EnsureMigrated brings the schema up to the latest embedded version.
// Already applied migrations are skipped.
func EnsureMigrated(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	start := time.Now()
	log := logger.With(zap.String("component", "database"))

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(gooseLogger{log: log})
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	log.Info("db_migration_start")
	if err := goose.UpContext(ctx, db, "."); err != nil {
		log.Error("db_migration_failed",
			zap.Error(err),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	log.Info("db_migration_success",
		zap.Int64("version", version),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return nil
}
