package respond

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

type ErrorBody struct {
	Error     string            `json:"error"`
	Details   map[string]string `json:"details,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

func JSON(w http.ResponseWriter, r *http.Request, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func Error(w http.ResponseWriter, r *http.Request, code int, message string) {
	JSON(w, r, code, ErrorBody{
		Error:     message,
		RequestID: middleware.GetReqID(r.Context()),
	})
}

// Validation writes a 422 with one message per rejected field.
func Validation(w http.ResponseWriter, r *http.Request, details map[string]string) {
	JSON(w, r, http.StatusUnprocessableEntity, ErrorBody{
		Error:     "Validation Failed",
		Details:   details,
		RequestID: middleware.GetReqID(r.Context()),
	})
}
