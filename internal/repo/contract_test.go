package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BuzzLyutic/task-tracker-api/internal/model"
)

// runRepositoryContract exercises behaviour every TaskRepository must share.
func runRepositoryContract(t *testing.T, newRepo func(t *testing.T) TaskRepository) {
	ctx := context.Background()
	due := model.NewDate(2030, time.June, 15)

	newTask := func(title string, priority int, tags ...string) model.Task {
		if tags == nil {
			tags = []string{}
		}
		return model.Task{Title: title, Priority: priority, DueDate: due, Tags: tags}
	}

	t.Run("create and get", func(t *testing.T) {
		r := newRepo(t)
		desc := "quarterly numbers"
		in := newTask("Report", 3, "work", "urgent")
		in.Description = &desc

		created, err := r.Create(ctx, in, "")
		require.NoError(t, err)
		assert.NotZero(t, created.ID)
		assert.Equal(t, "Report", created.Title)
		assert.Equal(t, &desc, created.Description)
		assert.Equal(t, 3, created.Priority)
		assert.Equal(t, "2030-06-15", created.DueDate.String())
		assert.False(t, created.Completed)
		assert.False(t, created.IsDeleted)
		assert.Equal(t, []string{"urgent", "work"}, created.Tags)
		assert.False(t, created.CreatedAt.IsZero())

		got, err := r.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, created.Tags, got.Tags)
	})

	t.Run("get missing", func(t *testing.T) {
		r := newRepo(t)
		_, err := r.Get(ctx, 99999)
		assert.ErrorIs(t, err, ErrorNotFound)
	})

	t.Run("tags are shared between tasks", func(t *testing.T) {
		r := newRepo(t)
		a, err := r.Create(ctx, newTask("A", 1, "home"), "")
		require.NoError(t, err)
		b, err := r.Create(ctx, newTask("B", 1, "home", "garden"), "")
		require.NoError(t, err)

		assert.Equal(t, []string{"home"}, a.Tags)
		assert.Equal(t, []string{"garden", "home"}, b.Tags)
	})

	t.Run("list filters", func(t *testing.T) {
		r := newRepo(t)
		work, err := r.Create(ctx, newTask("Work", 5, "work"), "")
		require.NoError(t, err)
		home, err := r.Create(ctx, newTask("Home", 2, "home"), "")
		require.NoError(t, err)
		both, err := r.Create(ctx, newTask("Both", 2, "home", "work"), "")
		require.NoError(t, err)

		done := true
		_, err = r.Update(ctx, home.ID, model.TaskChanges{Completed: &done})
		require.NoError(t, err)

		later := model.NewDate(2031, time.January, 1)
		_, err = r.Update(ctx, both.ID, model.TaskChanges{DueDate: &later})
		require.NoError(t, err)

		prio := 2
		notDone := false
		from := model.NewDate(2030, time.December, 1)

		tests := []struct {
			name    string
			filter  model.TaskFilter
			wantIDs []int64
		}{
			{name: "all newest first", filter: model.TaskFilter{}, wantIDs: []int64{both.ID, home.ID, work.ID}},
			{name: "completed", filter: model.TaskFilter{Completed: &done}, wantIDs: []int64{home.ID}},
			{name: "not completed", filter: model.TaskFilter{Completed: &notDone}, wantIDs: []int64{both.ID, work.ID}},
			{name: "priority", filter: model.TaskFilter{Priority: &prio}, wantIDs: []int64{both.ID, home.ID}},
			{name: "tags any", filter: model.TaskFilter{Tags: []string{"work", "missing"}}, wantIDs: []int64{both.ID, work.ID}},
			{name: "due after", filter: model.TaskFilter{DueAfter: &from}, wantIDs: []int64{both.ID}},
			{name: "due before", filter: model.TaskFilter{DueBefore: &due}, wantIDs: []int64{home.ID, work.ID}},
			{name: "combined", filter: model.TaskFilter{Priority: &prio, Tags: []string{"home"}, Completed: &notDone}, wantIDs: []int64{both.ID}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				tt.filter.Limit = 10
				list, err := r.List(ctx, tt.filter)
				require.NoError(t, err)
				assert.Equal(t, len(tt.wantIDs), list.Total)
				assert.Equal(t, tt.wantIDs, taskIDs(list.Tasks))
			})
		}
	})

	t.Run("list pagination", func(t *testing.T) {
		r := newRepo(t)
		for i := 0; i < 7; i++ {
			_, err := r.Create(ctx, newTask(fmt.Sprintf("Task %d", i), (i%5)+1), "")
			require.NoError(t, err)
		}

		page, err := r.List(ctx, model.TaskFilter{Limit: 3, Offset: 3})
		require.NoError(t, err)
		assert.Equal(t, 7, page.Total)
		assert.Equal(t, 3, page.Limit)
		assert.Equal(t, 3, page.Offset)
		require.Len(t, page.Tasks, 3)
		assert.Equal(t, "Task 3", page.Tasks[0].Title)

		past, err := r.List(ctx, model.TaskFilter{Limit: 3, Offset: 30})
		require.NoError(t, err)
		assert.Equal(t, 7, past.Total)
		assert.Empty(t, past.Tasks)
		assert.NotNil(t, past.Tasks)
	})

	t.Run("update partial", func(t *testing.T) {
		r := newRepo(t)
		desc := "draft"
		in := newTask("Original", 1, "a", "b")
		in.Description = &desc
		created, err := r.Create(ctx, in, "")
		require.NoError(t, err)

		title := "Updated"
		prio := 4
		updated, err := r.Update(ctx, created.ID, model.TaskChanges{Title: &title, Priority: &prio})
		require.NoError(t, err)
		assert.Equal(t, "Updated", updated.Title)
		assert.Equal(t, 4, updated.Priority)
		assert.Equal(t, &desc, updated.Description, "untouched fields keep their value")
		assert.Equal(t, []string{"a", "b"}, updated.Tags)
		assert.False(t, updated.UpdatedAt.Before(created.UpdatedAt))

		updated, err = r.Update(ctx, created.ID, model.TaskChanges{Description: model.OptionalString{Set: true}})
		require.NoError(t, err)
		assert.Nil(t, updated.Description)
	})

	t.Run("update replaces tags", func(t *testing.T) {
		r := newRepo(t)
		created, err := r.Create(ctx, newTask("Tagged", 1, "old", "keep"), "")
		require.NoError(t, err)

		tags := []string{"keep", "new"}
		updated, err := r.Update(ctx, created.ID, model.TaskChanges{Tags: &tags})
		require.NoError(t, err)
		assert.Equal(t, []string{"keep", "new"}, updated.Tags)

		none := []string{}
		updated, err = r.Update(ctx, created.ID, model.TaskChanges{Tags: &none})
		require.NoError(t, err)
		assert.Empty(t, updated.Tags)
	})

	t.Run("update missing", func(t *testing.T) {
		r := newRepo(t)
		title := "x"
		_, err := r.Update(ctx, 424242, model.TaskChanges{Title: &title})
		assert.ErrorIs(t, err, ErrorNotFound)
	})

	t.Run("soft delete", func(t *testing.T) {
		r := newRepo(t)
		kept, err := r.Create(ctx, newTask("Kept", 1, "x"), "")
		require.NoError(t, err)
		gone, err := r.Create(ctx, newTask("Gone", 1, "x"), "")
		require.NoError(t, err)

		require.NoError(t, r.Delete(ctx, gone.ID))

		_, err = r.Get(ctx, gone.ID)
		assert.ErrorIs(t, err, ErrorNotFound)
		assert.ErrorIs(t, r.Delete(ctx, gone.ID), ErrorNotFound)

		title := "revive"
		_, err = r.Update(ctx, gone.ID, model.TaskChanges{Title: &title})
		assert.ErrorIs(t, err, ErrorNotFound)

		list, err := r.List(ctx, model.TaskFilter{Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, []int64{kept.ID}, taskIDs(list.Tasks))

		all, err := r.List(ctx, model.TaskFilter{Limit: 10, IncludeDeleted: true, Tags: []string{"x"}})
		require.NoError(t, err)
		require.Equal(t, 2, all.Total)
		assert.Equal(t, gone.ID, all.Tasks[0].ID)
		assert.True(t, all.Tasks[0].IsDeleted)
		assert.Equal(t, []string{"x"}, all.Tasks[0].Tags, "tag links are retained")
	})

	t.Run("delete missing", func(t *testing.T) {
		r := newRepo(t)
		assert.ErrorIs(t, r.Delete(ctx, 31337), ErrorNotFound)
	})

	t.Run("idempotency key", func(t *testing.T) {
		r := newRepo(t)
		first, err := r.Create(ctx, newTask("Once", 2), "key-1")
		require.NoError(t, err)

		_, err = r.Create(ctx, newTask("Twice", 2), "key-1")
		assert.ErrorIs(t, err, ErrorKeyExists)

		id, err := r.GetIdempotencyKey(ctx, "key-1")
		require.NoError(t, err)
		assert.Equal(t, first.ID, id)

		_, err = r.GetIdempotencyKey(ctx, "unknown")
		assert.ErrorIs(t, err, ErrorNotFound)

		list, err := r.List(ctx, model.TaskFilter{Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, 1, list.Total, "rejected create must roll back")
	})

	t.Run("stats", func(t *testing.T) {
		r := newRepo(t)
		asOf := model.NewDate(2030, time.June, 20)

		_, err := r.Create(ctx, newTask("Overdue", 5), "")
		require.NoError(t, err)

		future := newTask("Future", 3)
		future.DueDate = model.NewDate(2030, time.July, 1)
		_, err = r.Create(ctx, future, "")
		require.NoError(t, err)

		doneTask, err := r.Create(ctx, newTask("Done", 3), "")
		require.NoError(t, err)
		done := true
		_, err = r.Update(ctx, doneTask.ID, model.TaskChanges{Completed: &done})
		require.NoError(t, err)

		deleted, err := r.Create(ctx, newTask("Deleted", 1), "")
		require.NoError(t, err)
		require.NoError(t, r.Delete(ctx, deleted.ID))

		stats, err := r.GetStats(ctx, asOf)
		require.NoError(t, err)
		assert.Equal(t, model.Stats{
			TotalTasks: 3,
			Completed:  1,
			Pending:    2,
			Overdue:    1,
			Deleted:    1,
			ByPriority: map[int]int{3: 2, 5: 1},
		}, stats)
	})
}

func taskIDs(tasks []model.Task) []int64 {
	ids := make([]int64, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	return ids
}
