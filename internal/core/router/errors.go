package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mohammed-shakir/campus-geo/internal/importer"
	"github.com/mohammed-shakir/campus-geo/internal/search"
)

// errBadRequest marks request parsing failures.
var errBadRequest = errors.New("bad request")

type errorBody struct {
	Error string `json:"error"`
}

func statusFor(err error) int {
	var ve *importer.ValidationError
	var mbe *http.MaxBytesError
	switch {
	case errors.As(err, &mbe):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &ve), errors.Is(err, search.ErrInvalidQuery), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, importer.ErrScopeNotFound), errors.Is(err, search.ErrScopeNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		h.d.Log.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "err", err)
		msg = "internal error"
	}
	h.writeJSON(w, r, code, errorBody{Error: msg})
}

// writeJSON encodes before writing the header so an unencodable value becomes
// a 500 instead of an empty 200.
func (h *handlers) writeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		h.d.Log.ErrorContext(r.Context(), "encode response", "path", r.URL.Path, "err", err)
		code = http.StatusInternalServerError
		body = []byte(`{"error":"internal error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	body = append(body, '\n')
	if _, err := w.Write(body); err != nil {
		h.d.Log.DebugContext(r.Context(), "write response", "path", r.URL.Path, "err", err)
	}
}
