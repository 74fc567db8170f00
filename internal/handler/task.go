package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/task-tracker-api/internal/model"
	"github.com/BuzzLyutic/task-tracker-api/internal/repo"
	"github.com/BuzzLyutic/task-tracker-api/internal/service"
	"github.com/BuzzLyutic/task-tracker-api/pkg/respond"
)

const maxBodyBytes = 1 << 20

type TaskHandler struct {
	service *service.TaskService
	logger  *zap.Logger
}

func NewTaskHandler(srv *service.TaskService, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{
		service: srv,
		logger:  logger,
	}
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength == 0 {
		respond.Error(w, r, http.StatusBadRequest, "empty request body")
		return
	}

	var req model.TaskInput
	if !h.decode(w, r, &req) {
		return
	}

	idempKey := r.Header.Get("Idempotency-Key")
	task, err := h.service.Create(r.Context(), req, idempKey)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/tasks/%d", task.ID))
	respond.JSON(w, r, http.StatusCreated, task)
}

func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(r)
	if !ok {
		respond.Error(w, r, http.StatusNotFound, "task not found")
		return
	}

	task, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, task)
}

func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, fields := parseListFilter(r.URL.Query())
	if len(fields) > 0 {
		respond.Validation(w, r, fields)
		return
	}

	list, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, list)
}

func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(r)
	if !ok {
		respond.Error(w, r, http.StatusNotFound, "task not found")
		return
	}
	if r.ContentLength == 0 {
		respond.Error(w, r, http.StatusBadRequest, "empty request body")
		return
	}

	var req model.TaskPatch
	if !h.decode(w, r, &req) {
		return
	}

	task, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}

	respond.JSON(w, r, http.StatusOK, task)
}

func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(r)
	if !ok {
		respond.Error(w, r, http.StatusNotFound, "task not found")
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		h.handleErrors(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *TaskHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetStats(r.Context())
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, stats)
}

func taskID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

// decode reads a JSON body into dst and writes the error response itself
// when it fails.
func (h *TaskHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	err := dec.Decode(dst)
	if err == nil {
		// Тело должно содержать ровно одно JSON-значение
		if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
			respond.Error(w, r, http.StatusBadRequest, "invalid json: unexpected data after the body")
			return false
		}
		return true
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		respond.Validation(w, r, map[string]string{
			typeErr.Field: "must be " + jsonTypeName(typeErr.Type),
		})
		return false
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		respond.Error(w, r, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}

	h.logger.Debug("failed to decode json", zap.Error(err))
	respond.Error(w, r, http.StatusBadRequest, fmt.Sprintf("invalid json: %v", err))
	return false
}

func jsonTypeName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return "an integer"
	case reflect.Bool:
		return "a boolean"
	case reflect.String:
		return "a string"
	case reflect.Slice, reflect.Array:
		return "an array"
	default:
		return "a valid " + t.String()
	}
}

func (h *TaskHandler) handleErrors(w http.ResponseWriter, r *http.Request, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		respond.Validation(w, r, verr.Fields)
	case errors.Is(err, service.ErrValidation):
		respond.Error(w, r, http.StatusUnprocessableEntity, "validation error")
	case errors.Is(err, repo.ErrorNotFound):
		respond.Error(w, r, http.StatusNotFound, "task not found")
	case errors.Is(err, repo.ErrorConflict):
		respond.Error(w, r, http.StatusConflict, "conflict")
	default:
		h.logger.Error("internal error",
			zap.Error(err),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
		)
		respond.Error(w, r, http.StatusInternalServerError, "internal error")
	}
}
