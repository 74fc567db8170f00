// Package testutil starts throwaway PostgreSQL instances for integration tests.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// SetupTestDB запускает PostgreSQL в контейнере. Схема не создается:
// вызывающий код применяет миграции сам.
func SetupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("Failed to ping database: %v", err)
	}

	cleanup := func() {
		pool.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate container: %v", err)
		}
	}

	return pool, cleanup
}

// TruncateTables очищает все таблицы
func TruncateTables(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	_, err := pool.Exec(context.Background(),
		"TRUNCATE tasks, tags, task_tags, idempotency_keys RESTART IDENTITY CASCADE")
	if err != nil {
		t.Fatalf("Failed to truncate tables: %v", err)
	}
}

// SeedTasks создает тестовые задачи с приоритетами 1..5 по кругу
func SeedTasks(t *testing.T, pool *pgxpool.Pool, count int) []int64 {
	t.Helper()
	ctx := context.Background()
	due := time.Now().UTC().AddDate(0, 0, 7)

	ids := make([]int64, 0, count)
	for i := 0; i < count; i++ {
		var id int64
		err := pool.QueryRow(ctx, `
			INSERT INTO tasks (title, priority, due_date)
			VALUES ($1, $2, $3)
			RETURNING id
		`, fmt.Sprintf("Task %d", i+1), (i%5)+1, due).Scan(&id)

		if err != nil {
			t.Fatalf("Failed to seed task: %v", err)
		}
		ids = append(ids, id)
	}

	return ids
}
