package model

import (
	"encoding/json"
	"time"
)

type Task struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	Priority    int       `json:"priority"`
	DueDate     Date      `json:"due_date"`
	Completed   bool      `json:"completed"`
	IsDeleted   bool      `json:"is_deleted"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Tags        []string  `json:"tags"`
}

type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// TaskFilter narrows a task listing. Nil pointers and empty slices mean the
// predicate is not applied.
type TaskFilter struct {
	Completed      *bool
	Priority       *int
	Tags           []string
	DueAfter       *Date
	DueBefore      *Date
	IncludeDeleted bool
	Limit          int
	Offset         int
}

type TaskList struct {
	Total  int    `json:"total"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
	Tasks  []Task `json:"tasks"`
}

// TaskInput is the body of a create request. DueDate stays a string until
// the service parses it so format errors can be reported per field.
// Priority is a pointer so that a missing value and 0 are reported apart.
type TaskInput struct {
	Title       string   `json:"title" validate:"notblank,max=200"`
	Description *string  `json:"description"`
	Priority    *int     `json:"priority" validate:"required,min=1,max=5"`
	DueDate     string   `json:"due_date" validate:"required"`
	Tags        []string `json:"tags"`
}

// TaskPatch is the body of a partial update. Absent fields are left alone.
type TaskPatch struct {
	Title       *string        `json:"title" validate:"omitnil,notblank,max=200"`
	Description OptionalString `json:"description"`
	Priority    *int           `json:"priority" validate:"omitnil,min=1,max=5"`
	DueDate     *string        `json:"due_date"`
	Completed   *bool          `json:"completed"`
	Tags        *[]string      `json:"tags"`
}

// TaskChanges is a validated patch ready to be applied by a repository.
type TaskChanges struct {
	Title       *string
	Description OptionalString
	Priority    *int
	DueDate     *Date
	Completed   *bool
	Tags        *[]string
}

func (c TaskChanges) IsEmpty() bool {
	return c.Title == nil && !c.Description.Set && c.Priority == nil &&
		c.DueDate == nil && c.Completed == nil && c.Tags == nil
}

// OptionalString tells an absent JSON field apart from an explicit null.
type OptionalString struct {
	Set   bool
	Value *string
}

func (o *OptionalString) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}

func (o OptionalString) MarshalJSON() ([]byte, error) {
	if o.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*o.Value)
}

type Stats struct {
	TotalTasks int         `json:"total_tasks"`
	Completed  int         `json:"completed"`
	Pending    int         `json:"pending"`
	Overdue    int         `json:"overdue"`
	Deleted    int         `json:"deleted"`
	ByPriority map[int]int `json:"by_priority"`
}
