package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/and161185/qty-planner/internal/errs"
)

// envelope is the wrapper every endpoint answers with.
type envelope struct {
	Success    bool   `json:"success"`
	Message    string `json:"message,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	Data       any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func ok(w http.ResponseWriter, msg string, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: msg, Data: data})
}

func fail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Message: msg})
}

// failErr maps service errors onto HTTP statuses. Unexpected errors are logged, never echoed.
func failErr(w http.ResponseWriter, log *zap.Logger, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	fail(w, status, msg)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errs.ErrValidation):
		return http.StatusBadRequest, validationMessage(err)
	case errors.Is(err, errs.ErrUnauthorized):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, errs.ErrRateLimited):
		return http.StatusTooManyRequests, "Too many attempts. Please wait and try again."
	case errors.Is(err, errs.ErrAlreadyExists):
		return http.StatusConflict, "Email is already registered"
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound, "Not found"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// validationMessage drops the "validation: " sentinel prefix wherever it sits in the chain.
func validationMessage(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, errs.ErrValidation.Error()+": "); i >= 0 {
		return msg[:i] + msg[i+len(errs.ErrValidation.Error())+2:]
	}
	return msg
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return errs.Validation("invalid request body")
	}
	return nil
}
