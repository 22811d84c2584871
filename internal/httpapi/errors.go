package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"rfphub.org/internal/auth"
	"rfphub.org/internal/document"
	"rfphub.org/internal/policy"
	"rfphub.org/internal/response"
	"rfphub.org/internal/rfp"
	"rfphub.org/internal/store/pg"
)

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleDomainError maps sentinel errors from the lifecycle services and
// stores onto HTTP status codes.
func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, rfp.ErrInvalidInput),
		errors.Is(err, response.ErrInvalidInput),
		errors.Is(err, document.ErrInvalidInput),
		errors.Is(err, policy.ErrInvalidPolicy):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, rfp.ErrNotFound),
		errors.Is(err, response.ErrNotFound),
		errors.Is(err, document.ErrNotFound),
		errors.Is(err, policy.ErrNotFound),
		errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "resource not found")
	case errors.Is(err, rfp.ErrAlreadyAwarded),
		errors.Is(err, rfp.ErrInvalidState),
		errors.Is(err, response.ErrInvalidState),
		errors.Is(err, response.ErrDuplicate),
		errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, pg.ErrRetryable):
		writeError(w, r, http.StatusServiceUnavailable, "transient conflict, retry")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
