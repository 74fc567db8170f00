package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BuzzLyutic/task-tracker-api/internal/model"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type TaskRepo struct { // Репозиторий для работы непосредственно с БД
	pool *pgxpool.Pool
}

func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo { // Конструктор
	return &TaskRepo{
		pool: pool,
	}
}

func (r *TaskRepo) Create(ctx context.Context, t model.Task, idempotencyKey string) (model.Task, error) {
	var created model.Task
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var id int64
		err := tx.QueryRow(ctx, `
			INSERT INTO tasks (title, description, priority, due_date)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, t.Title, t.Description, t.Priority, t.DueDate.Time).Scan(&id)
		if err != nil {
			return err
		}

		if err := attachTags(ctx, tx, id, t.Tags); err != nil {
			return err
		}

		if idempotencyKey != "" {
			// Конкурентная вставка того же ключа ждет коммита первой транзакции
			tag, err := tx.Exec(ctx, `
				INSERT INTO idempotency_keys (key, resource_id) VALUES ($1, $2)
				ON CONFLICT (key) DO NOTHING
			`, idempotencyKey, id)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return ErrorKeyExists
			}
		}

		created, err = getTask(ctx, tx, id)
		return err
	})
	return created, mapError(err)
}

func (r *TaskRepo) Get(ctx context.Context, id int64) (model.Task, error) {
	t, err := getTask(ctx, r.pool, id)
	return t, mapError(err)
}

func (r *TaskRepo) List(ctx context.Context, filter model.TaskFilter) (model.TaskList, error) {
	list := model.TaskList{Limit: filter.Limit, Offset: filter.Offset}
	countSQL, pageSQL, countArgs, pageArgs := listQueries(filter)

	if err := r.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&list.Total); err != nil {
		return list, err
	}

	rows, err := r.pool.Query(ctx, pageSQL, pageArgs...)
	if err != nil {
		return list, err
	}
	defer rows.Close()

	list.Tasks = make([]model.Task, 0, filter.Limit)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return list, err
		}
		list.Tasks = append(list.Tasks, t)
	}
	return list, rows.Err()
}

func (r *TaskRepo) Update(ctx context.Context, id int64, changes model.TaskChanges) (model.Task, error) {
	var updated model.Task
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		set, args := updateSet(id, changes)
		tag, err := tx.Exec(ctx, "UPDATE tasks SET "+set+" WHERE id = $1 AND NOT is_deleted", args...)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrorNotFound
		}

		if changes.Tags != nil {
			if _, err := tx.Exec(ctx, "DELETE FROM task_tags WHERE task_id = $1", id); err != nil {
				return err
			}
			if err := attachTags(ctx, tx, id, *changes.Tags); err != nil {
				return err
			}
		}

		updated, err = getTask(ctx, tx, id)
		return err
	})
	return updated, mapError(err)
}

func (r *TaskRepo) Delete(ctx context.Context, id int64) error {
	cmd, err := r.pool.Exec(ctx, `
		UPDATE tasks SET is_deleted = TRUE, updated_at = now()
		WHERE id = $1 AND NOT is_deleted
	`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrorNotFound
	}
	return nil
}

func (r *TaskRepo) GetIdempotencyKey(ctx context.Context, key string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		SELECT resource_id from idempotency_keys WHERE key = $1
	`, key).Scan(&id)

	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrorNotFound
	}
	return id, err
}

func (r *TaskRepo) GetStats(ctx context.Context, asOf model.Date) (model.Stats, error) {
	stats := model.Stats{ByPriority: make(map[int]int)}
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE NOT is_deleted),
			COUNT(*) FILTER (WHERE NOT is_deleted AND completed),
			COUNT(*) FILTER (WHERE NOT is_deleted AND NOT completed),
			COUNT(*) FILTER (WHERE NOT is_deleted AND NOT completed AND due_date < $1),
			COUNT(*) FILTER (WHERE is_deleted)
		FROM tasks
	`, asOf.Time).Scan(&stats.TotalTasks, &stats.Completed, &stats.Pending, &stats.Overdue, &stats.Deleted)
	if err != nil {
		return stats, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT priority, COUNT(*) FROM tasks
		WHERE NOT is_deleted
		GROUP BY priority
	`)
	if err != nil {
		return stats, err
	}
	defer rows.Close()

	for rows.Next() {
		var priority, count int
		if err := rows.Scan(&priority, &count); err != nil {
			return stats, err
		}
		stats.ByPriority[priority] = count
	}
	return stats, rows.Err()
}

func getTask(ctx context.Context, q querier, id int64) (model.Task, error) {
	return scanTask(q.QueryRow(ctx, "SELECT "+taskColumns+" FROM tasks t WHERE t.id = $1 AND NOT t.is_deleted", id))
}

func scanTask(row pgx.Row) (model.Task, error) {
	var t model.Task
	err := row.Scan(
		&t.ID, &t.Title, &t.Description, &t.Priority, &t.DueDate.Time, &t.Completed,
		&t.IsDeleted, &t.CreatedAt, &t.UpdatedAt, &t.Tags,
	)
	t.DueDate = model.DateOf(t.DueDate.Time)
	return t, err
}

// attachTags creates missing tags and links them to the task.
func attachTags(ctx context.Context, q querier, taskID int64, names []string) error {
	if len(names) == 0 {
		return nil
	}
	if _, err := q.Exec(ctx, `
		INSERT INTO tags (name) SELECT unnest($1::text[])
		ON CONFLICT (name) DO NOTHING
	`, names); err != nil {
		return err
	}
	_, err := q.Exec(ctx, `
		INSERT INTO task_tags (task_id, tag_id)
		SELECT $1, id FROM tags WHERE name = ANY($2)
		ON CONFLICT DO NOTHING
	`, taskID, names)
	return err
}
