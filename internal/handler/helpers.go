package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/faucetdb/usher/internal/model"
	"github.com/faucetdb/usher/internal/server/middleware"
	"github.com/faucetdb/usher/internal/service"
)

// Client-facing messages.
const (
	msgInvalidCredentials = "Invalid credentials"
	msgAccountDisabled    = "Account is disabled"
	msgNotFound           = "Not found."
	msgInvalidPage        = "Invalid page."
	msgConflict           = "A user with that username already exists."
	msgInvalidInput       = "Invalid input."
	msgInternal           = "Internal server error"
	msgCannotSuspendSuper = "Cannot suspend superuser account"
)

// writeJSON serializes v as JSON and writes it to the response with the given
// HTTP status code. The Content-Type header is set to application/json.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes {"error": message}, plus per-field reasons when given.
func writeError(w http.ResponseWriter, code int, message string, fields ...map[string]string) {
	resp := model.ErrorResponse{Error: message}
	if len(fields) > 0 {
		resp.Fields = fields[0]
	}
	writeJSON(w, code, resp)
}

// statusForError maps a service error to an HTTP status and client message.
func statusForError(err error) (int, string) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		if verr.Message != "" {
			return http.StatusBadRequest, verr.Message
		}
		return http.StatusBadRequest, msgInvalidInput
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusBadRequest, msgInvalidCredentials
	case errors.Is(err, service.ErrAccountDisabled):
		return http.StatusForbidden, msgAccountDisabled
	case errors.Is(err, service.ErrInvalidToken):
		return http.StatusUnauthorized, middleware.MsgInvalidToken
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, middleware.MsgPermissionDenied
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, msgNotFound
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict, msgConflict
	default:
		return http.StatusInternalServerError, msgInternal
	}
}

// writeServiceError writes the response for a service error. Unexpected
// errors are logged and hidden from the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, msg := statusForError(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetRequestID(r.Context()),
			"error", err,
		)
	}
	var verr *service.ValidationError
	if errors.As(err, &verr) && len(verr.Fields) > 0 {
		writeError(w, status, msg, verr.Fields)
		return
	}
	writeError(w, status, msg)
}

// readJSON decodes the request body as JSON into v. The body is closed after
// decoding regardless of success or failure.
func readJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// pathID parses the {id} URL parameter.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// queryInt extracts an integer query parameter. ok is false when the
// parameter is present but not an integer.
func queryInt(r *http.Request, key string, defaultVal int) (n int, ok bool) {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal, true
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, false
	}
	return n, true
}
