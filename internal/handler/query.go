package handler

import (
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/BuzzLyutic/task-tracker-api/internal/model"
	"github.com/BuzzLyutic/task-tracker-api/internal/service"
)

const dateFormatMessage = "must be a date in YYYY-MM-DD format"

// parseListFilter reads list query parameters. Range checks are left to the
// service; only malformed values are reported here.
func parseListFilter(q url.Values) (model.TaskFilter, map[string]string) {
	filter := model.TaskFilter{Limit: service.DefaultLimit}
	fields := map[string]string{}

	if v := q.Get("completed"); v != "" {
		b, err := parseBoolStrict(v)
		if err != nil {
			fields["completed"] = "must be true or false"
		} else {
			filter.Completed = &b
		}
	}

	if v := q.Get("include_deleted"); v != "" {
		b, err := parseBoolStrict(v)
		if err != nil {
			fields["include_deleted"] = "must be true or false"
		} else {
			filter.IncludeDeleted = b
		}
	}

	if v := q.Get("priority"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			fields["priority"] = "must be an integer"
		} else {
			filter.Priority = &n
		}
	}

	if v := q.Get("tags"); v != "" {
		for _, tag := range strings.Split(v, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				filter.Tags = append(filter.Tags, tag)
			}
		}
	}

	if v := q.Get("due_after"); v != "" {
		d, err := model.ParseDate(strings.TrimSpace(v))
		if err != nil {
			fields["due_after"] = dateFormatMessage
		} else {
			filter.DueAfter = &d
		}
	}

	if v := q.Get("due_before"); v != "" {
		d, err := model.ParseDate(strings.TrimSpace(v))
		if err != nil {
			fields["due_before"] = dateFormatMessage
		} else {
			filter.DueBefore = &d
		}
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			fields["limit"] = "must be an integer"
		} else {
			filter.Limit = n
		}
	}

	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			fields["offset"] = "must be an integer"
		} else {
			filter.Offset = n
		}
	}

	return filter, fields
}

func parseBoolStrict(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, errors.New("not a bool")
	}
}
