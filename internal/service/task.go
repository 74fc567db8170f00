package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/BuzzLyutic/task-tracker-api/internal/model"
	"github.com/BuzzLyutic/task-tracker-api/internal/repo"
)

const maxIdempotencyKeyLength = 255

type TaskService struct {
	repo     repo.TaskRepository
	validate *validator.Validate
	now      func() time.Time
}

type Option func(*TaskService)

// WithClock overrides the clock used for "not in the past" checks and stats.
func WithClock(now func() time.Time) Option {
	return func(s *TaskService) {
		s.now = now
	}
}

func NewTaskService(repo repo.TaskRepository, opts ...Option) *TaskService {
	s := &TaskService{
		repo:     repo,
		validate: newValidator(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TaskService) Create(ctx context.Context, in model.TaskInput, idempKey string) (model.Task, error) {
	t, err := s.validateInput(in, idempKey) // Валидация модели на корректность введенных данных
	if err != nil {
		return model.Task{}, err
	}

	if idempKey != "" { // Если ключ уже сохранен, возвращаем ранее созданную задачу
		existingID, err := s.repo.GetIdempotencyKey(ctx, idempKey)
		switch {
		case err == nil:
			return s.repo.Get(ctx, existingID)
		case !errors.Is(err, repo.ErrorNotFound):
			return model.Task{}, fmt.Errorf("lookup idempotency key: %w", err)
		}
	}

	created, err := s.repo.Create(ctx, t, idempKey)
	if errors.Is(err, repo.ErrorKeyExists) {
		// Параллельный запрос с тем же ключом успел первым
		existingID, err := s.repo.GetIdempotencyKey(ctx, idempKey)
		if err != nil {
			return model.Task{}, fmt.Errorf("lookup idempotency key: %w", err)
		}
		return s.repo.Get(ctx, existingID)
	}
	return created, err
}

func (s *TaskService) Get(ctx context.Context, id int64) (model.Task, error) {
	if id <= 0 {
		return model.Task{}, repo.ErrorNotFound
	}
	return s.repo.Get(ctx, id)
}

func (s *TaskService) List(ctx context.Context, filter model.TaskFilter) (model.TaskList, error) {
	fields := map[string]string{}
	if filter.Limit < 1 || filter.Limit > MaxLimit {
		fields["limit"] = fmt.Sprintf("must be between 1 and %d", MaxLimit)
	}
	if filter.Offset < 0 {
		fields["offset"] = "must be greater than or equal to 0"
	}
	if filter.Priority != nil && (*filter.Priority < 1 || *filter.Priority > 5) {
		fields["priority"] = "must be between 1 and 5"
	}
	if filter.DueAfter != nil && filter.DueBefore != nil && filter.DueAfter.After(*filter.DueBefore) {
		fields["due_after"] = "must not be after due_before"
	}
	if len(filter.Tags) > 0 {
		tags, msg := normalizeTags(filter.Tags)
		if msg != "" {
			fields["tags"] = msg
		}
		filter.Tags = tags
	}
	if len(fields) > 0 {
		return model.TaskList{}, NewValidationError(fields)
	}
	return s.repo.List(ctx, filter)
}

func (s *TaskService) Update(ctx context.Context, id int64, patch model.TaskPatch) (model.Task, error) {
	if id <= 0 {
		return model.Task{}, repo.ErrorNotFound
	}

	changes, err := s.validatePatch(patch)
	if err != nil {
		return model.Task{}, err
	}
	if changes.IsEmpty() {
		return s.repo.Get(ctx, id)
	}
	return s.repo.Update(ctx, id, changes)
}

func (s *TaskService) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return repo.ErrorNotFound
	}
	return s.repo.Delete(ctx, id)
}

func (s *TaskService) GetStats(ctx context.Context) (model.Stats, error) {
	return s.repo.GetStats(ctx, s.today())
}

func (s *TaskService) today() model.Date {
	return model.DateOf(s.now().UTC())
}

func (s *TaskService) validateInput(in model.TaskInput, idempKey string) (model.Task, error) {
	fields := map[string]string{}
	in.Title = strings.TrimSpace(in.Title) // длина проверяется по сохраняемому значению
	if err := s.validate.Struct(in); err != nil {
		if err := collectFieldErrors(err, fields); err != nil {
			return model.Task{}, err
		}
	}

	t := model.Task{
		Title:       in.Title,
		Description: in.Description,
	}
	if in.Priority != nil {
		t.Priority = *in.Priority
	}
	if in.DueDate != "" {
		due, msg := s.parseDueDate(in.DueDate)
		if msg != "" {
			fields["due_date"] = msg
		}
		t.DueDate = due
	}

	tags, msg := normalizeTags(in.Tags)
	if msg != "" {
		fields["tags"] = msg
	}
	t.Tags = tags

	if len(idempKey) > maxIdempotencyKeyLength {
		fields["idempotency_key"] = fmt.Sprintf("must be at most %d characters", maxIdempotencyKeyLength)
	}

	if len(fields) > 0 {
		return model.Task{}, NewValidationError(fields)
	}
	return t, nil
}

func (s *TaskService) validatePatch(p model.TaskPatch) (model.TaskChanges, error) {
	fields := map[string]string{}
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		p.Title = &title
	}
	if err := s.validate.Struct(p); err != nil {
		if err := collectFieldErrors(err, fields); err != nil {
			return model.TaskChanges{}, err
		}
	}

	changes := model.TaskChanges{
		Title:       p.Title,
		Description: p.Description,
		Priority:    p.Priority,
		Completed:   p.Completed,
	}
	if p.DueDate != nil {
		due, msg := s.parseDueDate(*p.DueDate)
		if msg != "" {
			fields["due_date"] = msg
		}
		changes.DueDate = &due
	}
	if p.Tags != nil {
		tags, msg := normalizeTags(*p.Tags)
		if msg != "" {
			fields["tags"] = msg
		}
		changes.Tags = &tags
	}

	if len(fields) > 0 {
		return model.TaskChanges{}, NewValidationError(fields)
	}
	return changes, nil
}

func (s *TaskService) parseDueDate(raw string) (model.Date, string) {
	due, err := model.ParseDate(raw)
	if err != nil {
		return model.Date{}, "must be a date in YYYY-MM-DD format"
	}
	if due.Before(s.today()) {
		return model.Date{}, "due date cannot be in the past"
	}
	return due, ""
}
