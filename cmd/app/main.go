package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BuzzLyutic/task-tracker-api/internal/config"
	"github.com/BuzzLyutic/task-tracker-api/internal/handler"
	"github.com/BuzzLyutic/task-tracker-api/internal/repo"
	"github.com/BuzzLyutic/task-tracker-api/internal/service"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Подключаем логгер
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	taskRepo, ping, closeDB, err := openStorage(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open storage", zap.String("driver", cfg.StorageDriver), zap.Error(err))
	}
	defer closeDB()

	taskService := service.NewTaskService(taskRepo)
	taskHandler := handler.NewTaskHandler(taskService, logger)

	srv := http.Server{ // Создаем сервер
		Addr:         ":" + cfg.Port,
		Handler:      handler.NewRouter(taskHandler, logger, ping),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() { // Запуск сервера и обработка ошибок
		logger.Info("Server started", zap.String("addr", srv.Addr), zap.String("driver", cfg.StorageDriver))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Shutdown error", zap.Error(err))
		return
	}
	logger.Info("Server stopped successfully!")
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

// openStorage connects the configured backend and returns its repository,
// a health probe and a close func.
func openStorage(ctx context.Context, cfg config.Config, logger *zap.Logger) (repo.TaskRepository, handler.PingFunc, func(), error) {
	switch cfg.StorageDriver {
	case config.DriverSQLite:
		db, err := repo.NewSQLiteDB(cfg.SQLitePath, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, nil, err
		}
		logger.Info("Successfully opened SQLite database", zap.String("path", cfg.SQLitePath))
		return repo.NewGormTaskRepo(db), sqlDB.PingContext, func() { sqlDB.Close() }, nil

	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL) // Создаем новое соединение к БД
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil { // Пытаемся пингануть БД
			pool.Close()
			return nil, nil, nil, fmt.Errorf("ping: %w", err)
		}
		logger.Info("Successfully connected to the Database!")

		if cfg.AutoMigrate {
			if err := repo.Migrate(ctx, pool, logger); err != nil {
				pool.Close()
				return nil, nil, nil, err
			}
		}
		return repo.NewTaskRepo(pool), pool.Ping, pool.Close, nil
	}
	return nil, nil, nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
}
