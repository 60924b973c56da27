package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/evcraddock/advocate/internal/account"
	"github.com/evcraddock/advocate/internal/comment"
	"github.com/evcraddock/advocate/internal/issue"
	"github.com/evcraddock/advocate/internal/zone"
)

const maxBodyBytes = 1 << 20

// apiError writes a JSON error response.
func apiError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	resp := map[string]string{"error": msg}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, `{"error":"encode failed"}`, http.StatusInternalServerError)
	}
}

// apiJSON writes a JSON response with the given status code.
func apiJSON(w http.ResponseWriter, data interface{}, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, `{"error":"encode failed"}`, http.StatusInternalServerError)
	}
}

// writeError maps domain errors to HTTP status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *comment.ValidationError
	switch {
	case errors.As(err, &verr):
		apiError(w, verr.Message, http.StatusBadRequest)
	case errors.Is(err, account.ErrInvalidProfile), errors.Is(err, account.ErrInvalidStudent),
		errors.Is(err, issue.ErrInvalid):
		apiError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, comment.ErrNotFound), errors.Is(err, issue.ErrNotFound),
		errors.Is(err, account.ErrNotFound), errors.Is(err, zone.ErrNotFound):
		apiError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, comment.ErrAlreadyExists), errors.Is(err, comment.ErrTransitionNotAllowed),
		errors.Is(err, comment.ErrConflict), errors.Is(err, issue.ErrNoActiveIssue),
		errors.Is(err, issue.ErrInvalidState):
		apiError(w, err.Error(), http.StatusConflict)
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		apiError(w, "internal error", http.StatusInternalServerError)
	}
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// pathID parses the {id} path value.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid ID %q", r.PathValue("id"))
	}
	return id, nil
}

// queryInt parses an optional positive integer query parameter.
func queryInt(r *http.Request, name string) (int64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return n, nil
}
