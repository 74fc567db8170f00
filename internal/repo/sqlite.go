package repo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/BuzzLyutic/task-tracker-api/internal/model"
)

type taskRecord struct {
	ID          int64   `gorm:"primaryKey"`
	Title       string  `gorm:"size:200;not null"`
	Description *string
	Priority    int       `gorm:"not null;index:idx_tasks_priority"`
	DueDate     time.Time `gorm:"not null;index:idx_tasks_due_date"`
	Completed   bool      `gorm:"not null;default:false;index:idx_tasks_completed"`
	IsDeleted   bool      `gorm:"not null;default:false;index:idx_tasks_is_deleted"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Tags        []tagRecord `gorm:"many2many:task_tags;joinForeignKey:TaskID;joinReferences:TagID;constraint:OnDelete:CASCADE"`
}

func (taskRecord) TableName() string { return "tasks" }

type tagRecord struct {
	ID   int64  `gorm:"primaryKey"`
	Name string `gorm:"size:50;not null;uniqueIndex"`
}

func (tagRecord) TableName() string { return "tags" }

type idempotencyRecord struct {
	Key        string `gorm:"primaryKey"`
	ResourceID int64  `gorm:"not null"`
	CreatedAt  time.Time
}

func (idempotencyRecord) TableName() string { return "idempotency_keys" }

// NewSQLiteDB opens a SQLite database and brings its schema up to date.
func NewSQLiteDB(dsn string, log *zap.Logger) (*gorm.DB, error) {
	if err := ensureDirForSQLite(dsn); err != nil {
		return nil, err
	}

	dbLogger := logger.New(
		zap.NewStdLog(log.Named("gorm")),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         dbLogger,
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Одно соединение: PRAGMA действует на соединение, а in-memory БД живет в нем же
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := db.AutoMigrate(&taskRecord{}, &tagRecord{}, &idempotencyRecord{}); err != nil {
		return nil, fmt.Errorf("migrate db: %w", err)
	}
	return db, nil
}

func ensureDirForSQLite(dsn string) error {
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		return nil
	}
	clean := strings.TrimPrefix(dsn, "file:")
	clean = strings.Split(clean, "?")[0]
	dir := filepath.Dir(clean)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create db dir %q: %w", dir, err)
	}
	return nil
}

// GormTaskRepo implements TaskRepository on top of gorm, used with SQLite.
type GormTaskRepo struct {
	db *gorm.DB
}

func NewGormTaskRepo(db *gorm.DB) *GormTaskRepo {
	return &GormTaskRepo{db: db}
}

func (r *GormTaskRepo) Create(ctx context.Context, t model.Task, idempotencyKey string) (model.Task, error) {
	var created model.Task
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tags, err := findOrCreateTags(tx, t.Tags)
		if err != nil {
			return err
		}

		rec := taskRecord{
			Title:       t.Title,
			Description: t.Description,
			Priority:    t.Priority,
			DueDate:     t.DueDate.Time,
			Tags:        tags,
		}
		if err := tx.Omit("Tags.*").Create(&rec).Error; err != nil {
			return fmt.Errorf("create task: %w", err)
		}

		if idempotencyKey != "" {
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&idempotencyRecord{Key: idempotencyKey, ResourceID: rec.ID})
			if res.Error != nil {
				return fmt.Errorf("save idempotency key: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				return ErrorKeyExists
			}
		}

		created, err = gormGet(tx, rec.ID)
		return err
	})
	return created, mapError(err)
}

func (r *GormTaskRepo) Get(ctx context.Context, id int64) (model.Task, error) {
	t, err := gormGet(r.db.WithContext(ctx), id)
	return t, mapError(err)
}

func (r *GormTaskRepo) List(ctx context.Context, filter model.TaskFilter) (model.TaskList, error) {
	list := model.TaskList{Limit: filter.Limit, Offset: filter.Offset}

	var total int64
	if err := gormFilter(r.db.WithContext(ctx), filter).Count(&total).Error; err != nil {
		return list, fmt.Errorf("count tasks: %w", err)
	}
	list.Total = int(total)

	var recs []taskRecord
	err := gormFilter(r.db.WithContext(ctx), filter).
		Preload("Tags", func(db *gorm.DB) *gorm.DB { return db.Order("tags.name") }).
		Order("created_at DESC").Order("id DESC").
		Limit(filter.Limit).Offset(filter.Offset).
		Find(&recs).Error
	if err != nil {
		return list, fmt.Errorf("list tasks: %w", err)
	}

	list.Tasks = make([]model.Task, 0, len(recs))
	for _, rec := range recs {
		list.Tasks = append(list.Tasks, rec.toModel())
	}
	return list, nil
}

func (r *GormTaskRepo) Update(ctx context.Context, id int64, changes model.TaskChanges) (model.Task, error) {
	var updated model.Task
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec taskRecord
		if err := tx.Where("id = ? AND is_deleted = ?", id, false).First(&rec).Error; err != nil {
			return err
		}

		values := map[string]any{"updated_at": time.Now().UTC()}
		if changes.Title != nil {
			values["title"] = *changes.Title
		}
		if changes.Description.Set {
			values["description"] = changes.Description.Value
		}
		if changes.Priority != nil {
			values["priority"] = *changes.Priority
		}
		if changes.DueDate != nil {
			values["due_date"] = changes.DueDate.Time
		}
		if changes.Completed != nil {
			values["completed"] = *changes.Completed
		}
		if err := tx.Model(&rec).Updates(values).Error; err != nil {
			return fmt.Errorf("update task: %w", err)
		}

		if changes.Tags != nil {
			tags, err := findOrCreateTags(tx, *changes.Tags)
			if err != nil {
				return err
			}
			assoc := tx.Model(&rec).Association("Tags")
			if len(tags) == 0 {
				err = assoc.Clear()
			} else {
				err = assoc.Replace(tags)
			}
			if err != nil {
				return fmt.Errorf("replace tags: %w", err)
			}
		}

		var err error
		updated, err = gormGet(tx, id)
		return err
	})
	return updated, mapError(err)
}

func (r *GormTaskRepo) Delete(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Model(&taskRecord{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(map[string]any{"is_deleted": true, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return fmt.Errorf("delete task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrorNotFound
	}
	return nil
}

func (r *GormTaskRepo) GetIdempotencyKey(ctx context.Context, key string) (int64, error) {
	var rec idempotencyRecord
	if err := r.db.WithContext(ctx).Where(&idempotencyRecord{Key: key}).First(&rec).Error; err != nil {
		return 0, mapError(err)
	}
	return rec.ResourceID, nil
}

func (r *GormTaskRepo) GetStats(ctx context.Context, asOf model.Date) (model.Stats, error) {
	stats := model.Stats{ByPriority: make(map[int]int)}
	db := r.db.WithContext(ctx)

	counts := []struct {
		dst   *int
		query string
		args  []any
	}{
		{&stats.TotalTasks, "is_deleted = ?", []any{false}},
		{&stats.Completed, "is_deleted = ? AND completed = ?", []any{false, true}},
		{&stats.Pending, "is_deleted = ? AND completed = ?", []any{false, false}},
		{&stats.Overdue, "is_deleted = ? AND completed = ? AND due_date < ?", []any{false, false, asOf.Time}},
		{&stats.Deleted, "is_deleted = ?", []any{true}},
	}
	for _, c := range counts {
		var n int64
		if err := db.Model(&taskRecord{}).Where(c.query, c.args...).Count(&n).Error; err != nil {
			return stats, fmt.Errorf("count tasks: %w", err)
		}
		*c.dst = int(n)
	}

	var rows []struct {
		Priority int
		Count    int
	}
	err := db.Model(&taskRecord{}).
		Select("priority, COUNT(*) AS count").
		Where("is_deleted = ?", false).
		Group("priority").
		Scan(&rows).Error
	if err != nil {
		return stats, fmt.Errorf("count by priority: %w", err)
	}
	for _, row := range rows {
		stats.ByPriority[row.Priority] = row.Count
	}
	return stats, nil
}

func gormFilter(db *gorm.DB, f model.TaskFilter) *gorm.DB {
	q := db.Model(&taskRecord{})
	if !f.IncludeDeleted {
		q = q.Where("is_deleted = ?", false)
	}
	if f.Completed != nil {
		q = q.Where("completed = ?", *f.Completed)
	}
	if f.Priority != nil {
		q = q.Where("priority = ?", *f.Priority)
	}
	if len(f.Tags) > 0 {
		q = q.Where(`EXISTS (
			SELECT 1 FROM task_tags tt JOIN tags g ON g.id = tt.tag_id
			WHERE tt.task_id = tasks.id AND g.name IN ?
		)`, f.Tags)
	}
	if f.DueAfter != nil {
		q = q.Where("due_date >= ?", f.DueAfter.Time)
	}
	if f.DueBefore != nil {
		q = q.Where("due_date <= ?", f.DueBefore.Time)
	}
	return q
}

func gormGet(db *gorm.DB, id int64) (model.Task, error) {
	var rec taskRecord
	err := db.Preload("Tags", func(db *gorm.DB) *gorm.DB { return db.Order("tags.name") }).
		Where("id = ? AND is_deleted = ?", id, false).
		First(&rec).Error
	if err != nil {
		return model.Task{}, err
	}
	return rec.toModel(), nil
}

func findOrCreateTags(tx *gorm.DB, names []string) ([]tagRecord, error) {
	tags := make([]tagRecord, 0, len(names))
	for _, name := range names {
		var tag tagRecord
		if err := tx.Where(tagRecord{Name: name}).FirstOrCreate(&tag).Error; err != nil {
			return nil, fmt.Errorf("get or create tag %q: %w", name, err)
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

func (rec taskRecord) toModel() model.Task {
	t := model.Task{
		ID:          rec.ID,
		Title:       rec.Title,
		Description: rec.Description,
		Priority:    rec.Priority,
		DueDate:     model.DateOf(rec.DueDate.UTC()),
		Completed:   rec.Completed,
		IsDeleted:   rec.IsDeleted,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
		Tags:        make([]string, 0, len(rec.Tags)),
	}
	for _, tag := range rec.Tags {
		t.Tags = append(t.Tags, tag.Name)
	}
	return t
}

var _ TaskRepository = (*GormTaskRepo)(nil)
var _ TaskRepository = (*TaskRepo)(nil)
