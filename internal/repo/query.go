package repo

import (
	"fmt"
	"strings"

	"github.com/BuzzLyutic/task-tracker-api/internal/model"
)

// predicates collects WHERE conditions with positional ($n) arguments.
type predicates struct {
	conds []string
	args  []any
}

// add appends a condition. Each "?" in cond is replaced by the next
// positional placeholder and consumes one of args.
func (p *predicates) add(cond string, args ...any) {
	var b strings.Builder
	i := 0
	for _, r := range cond {
		if r == '?' && i < len(args) {
			p.args = append(p.args, args[i])
			fmt.Fprintf(&b, "$%d", len(p.args))
			i++
			continue
		}
		b.WriteRune(r)
	}
	p.conds = append(p.conds, b.String())
}

func (p *predicates) where() string {
	if len(p.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(p.conds, " AND ")
}

// next returns the placeholder for an argument appended after the filters.
func (p *predicates) next(arg any) string {
	p.args = append(p.args, arg)
	return fmt.Sprintf("$%d", len(p.args))
}

func buildTaskFilter(f model.TaskFilter) *predicates {
	p := &predicates{}
	if !f.IncludeDeleted {
		p.add("NOT t.is_deleted")
	}
	if f.Completed != nil {
		p.add("t.completed = ?", *f.Completed)
	}
	if f.Priority != nil {
		p.add("t.priority = ?", *f.Priority)
	}
	if len(f.Tags) > 0 {
		p.add(`EXISTS (
			SELECT 1 FROM task_tags tt JOIN tags g ON g.id = tt.tag_id
			WHERE tt.task_id = t.id AND g.name = ANY(?)
		)`, f.Tags)
	}
	if f.DueAfter != nil {
		p.add("t.due_date >= ?", f.DueAfter.Time)
	}
	if f.DueBefore != nil {
		p.add("t.due_date <= ?", f.DueBefore.Time)
	}
	return p
}

const taskColumns = `t.id, t.title, t.description, t.priority, t.due_date, t.completed,
	t.is_deleted, t.created_at, t.updated_at,
	COALESCE((
		SELECT array_agg(g.name ORDER BY g.name)
		FROM task_tags tt JOIN tags g ON g.id = tt.tag_id
		WHERE tt.task_id = t.id
	), '{}'::text[])`

func listQueries(f model.TaskFilter) (countSQL string, pageSQL string, countArgs []any, pageArgs []any) {
	p := buildTaskFilter(f)
	countSQL = "SELECT COUNT(*) FROM tasks t" + p.where()
	countArgs = append([]any(nil), p.args...)

	where := p.where()
	limit := p.next(f.Limit)
	offset := p.next(f.Offset)
	pageSQL = "SELECT " + taskColumns + " FROM tasks t" + where +
		" ORDER BY t.created_at DESC, t.id DESC LIMIT " + limit + " OFFSET " + offset
	return countSQL, pageSQL, countArgs, p.args
}

// updateSet builds the SET list of an UPDATE for the non-tag fields of
// changes. The task id is always $1.
func updateSet(id int64, changes model.TaskChanges) (string, []any) {
	sets := []string{"updated_at = now()"}
	args := []any{id}
	push := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if changes.Title != nil {
		push("title", *changes.Title)
	}
	if changes.Description.Set {
		push("description", changes.Description.Value)
	}
	if changes.Priority != nil {
		push("priority", *changes.Priority)
	}
	if changes.DueDate != nil {
		push("due_date", changes.DueDate.Time)
	}
	if changes.Completed != nil {
		push("completed", *changes.Completed)
	}
	return strings.Join(sets, ", "), args
}
