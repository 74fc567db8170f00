package repo

import (
	"context"
	"embed"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsDir = "migrations"

// zapGooseLogger routes goose output through zap.
type zapGooseLogger struct {
	logger *zap.Logger
}

func (l zapGooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l zapGooseLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Fatal(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// Migrate applies all pending schema migrations to the database behind pool.
func Migrate(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	logger = logger.With(
		zap.String("component", "migrations"),
		zap.String("correlation_id", uuid.NewString()),
	)
	start := time.Now()

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(zapGooseLogger{logger: logger})
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, migrationsDir); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	logger.Info("Migrations applied",
		zap.Int64("version", version),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}
