package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/faucetdb/usher/internal/metrics"
	"github.com/faucetdb/usher/internal/model"
	"github.com/faucetdb/usher/internal/service"
)

// UserHandler serves the staff-only user administration endpoints.
type UserHandler struct {
	accounts *service.AccountService
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewUserHandler creates a new UserHandler. m may be nil.
func NewUserHandler(accounts *service.AccountService, m *metrics.Metrics, logger *slog.Logger) *UserHandler {
	return &UserHandler{accounts: accounts, metrics: m, logger: logger}
}

// List returns one page of accounts, newest first.
// GET /api/users/?page=N
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	page, ok := queryInt(r, "page", 1)
	if !ok {
		writeError(w, http.StatusNotFound, msgInvalidPage)
		return
	}

	result, err := h.accounts.List(r.Context(), page)
	if errors.Is(err, service.ErrNotFound) {
		writeError(w, http.StatusNotFound, msgInvalidPage)
		return
	}
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	resp := model.Page{
		Count:   result.Count,
		Results: result.Accounts,
	}
	if resp.Results == nil {
		resp.Results = []model.Account{}
	}
	if result.HasNext() {
		next := pageURL(r, result.Page+1)
		resp.Next = &next
	}
	if result.HasPrevious() {
		prev := pageURL(r, result.Page-1)
		resp.Previous = &prev
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create adds an account.
// POST /api/users/
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in model.NewAccount
	if err := readJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	acct, err := h.accounts.Create(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	h.metrics.Action("create")
	writeJSON(w, http.StatusCreated, acct)
}

// Get returns one account.
// GET /api/users/{id}/
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, msgNotFound)
		return
	}
	acct, err := h.accounts.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

// Replace performs a full update; username is required.
// PUT /api/users/{id}/
func (h *UserHandler) Replace(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, false)
}

// Patch performs a partial update.
// PATCH /api/users/{id}/
func (h *UserHandler) Patch(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, true)
}

func (h *UserHandler) update(w http.ResponseWriter, r *http.Request, partial bool) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, msgNotFound)
		return
	}
	var patch model.AccountPatch
	if err := readJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	acct, err := h.accounts.Update(r.Context(), id, patch, partial)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	h.metrics.Action("update")
	writeJSON(w, http.StatusOK, acct)
}

// Delete removes an account.
// DELETE /api/users/{id}/
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, msgNotFound)
		return
	}
	if err := h.accounts.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	h.metrics.Action("delete")
	w.WriteHeader(http.StatusNoContent)
}

// Suspend deactivates an account.
// POST /api/users/{id}/suspend/
func (h *UserHandler) Suspend(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, msgNotFound)
		return
	}
	err := h.accounts.Suspend(r.Context(), id)
	if errors.Is(err, service.ErrForbidden) {
		writeError(w, http.StatusForbidden, msgCannotSuspendSuper)
		return
	}
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	h.metrics.Action("suspend")
	writeJSON(w, http.StatusOK, model.StatusResponse{Status: "user suspended"})
}

// Unsuspend reactivates an account.
// POST /api/users/{id}/unsuspend/
func (h *UserHandler) Unsuspend(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, msgNotFound)
		return
	}
	if err := h.accounts.Unsuspend(r.Context(), id); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	h.metrics.Action("unsuspend")
	writeJSON(w, http.StatusOK, model.StatusResponse{Status: "user unsuspended"})
}

// Stats returns order aggregates for an account.
// GET /api/users/{id}/stats/
func (h *UserHandler) Stats(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, msgNotFound)
		return
	}
	stats, err := h.accounts.Stats(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// pageURL builds the absolute URL of another page of the current listing.
// Page 1 is linked without a page parameter.
func pageURL(r *http.Request, page int) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	q := r.URL.Query()
	if page <= 1 {
		q.Del("page")
	} else {
		q.Set("page", strconv.Itoa(page))
	}
	u := url.URL{
		Scheme:   scheme,
		Host:     r.Host,
		Path:     r.URL.Path,
		RawQuery: q.Encode(),
	}
	return u.String()
}
