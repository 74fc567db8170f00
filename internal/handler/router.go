package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/task-tracker-api/pkg/respond"
)

// PingFunc reports whether the storage backend is reachable.
type PingFunc func(ctx context.Context) error

func NewRouter(tasks *TaskHandler, logger *zap.Logger, ping PingFunc) http.Handler {
	r := chi.NewRouter() // Создаем роутер
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respond.Error(w, r, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respond.Error(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/health", Health(ping))

	r.Route("/tasks", func(r chi.Router) {
		r.Post("/", tasks.Create)
		r.Get("/", tasks.List)
		r.Get("/stats", tasks.Stats)
		r.Get("/{id}", tasks.Get)
		r.Patch("/{id}", tasks.Update)
		r.Delete("/{id}", tasks.Delete)
	})

	return r
}

func Health(ping PingFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				respond.JSON(w, r, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		respond.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// RequestLogger logs one line per request through zap.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				logger.Info("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("took", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("remote_ip", r.RemoteAddr),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
