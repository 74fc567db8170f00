package repo

import (
	"context"

	"github.com/BuzzLyutic/task-tracker-api/internal/model"
)

// TaskRepository определяет интерфейс для работы с задачами
type TaskRepository interface {
	// Create stores the task with its tags. A non-empty idempotencyKey is
	// recorded in the same transaction; ErrorKeyExists is returned when the
	// key already belongs to another task.
	Create(ctx context.Context, t model.Task, idempotencyKey string) (model.Task, error)
	Get(ctx context.Context, id int64) (model.Task, error)
	List(ctx context.Context, filter model.TaskFilter) (model.TaskList, error)
	Update(ctx context.Context, id int64, changes model.TaskChanges) (model.Task, error)
	// Delete flips is_deleted. The row and its tag links stay in place.
	Delete(ctx context.Context, id int64) error
	GetIdempotencyKey(ctx context.Context, key string) (int64, error)
	GetStats(ctx context.Context, asOf model.Date) (model.Stats, error)
}
