/*
handlers.go - HTTP API handlers for the activity report lifecycle

PURPOSE:
  Exposes the CRA engine via REST. Handles HTTP request/response, JSON
  serialization, and delegates to the domain services.

ENDPOINTS:
  Reports:
    POST   /api/reports                          Create draft report
    GET    /api/reports?creator={id}             List a creator's reports
    GET    /api/reports/{id}                     Get report snapshot
    GET    /api/reports/{id}/entries             List active entries
    POST   /api/reports/{id}/entries             Add entry (draft only)
    DELETE /api/reports/{id}/entries/{entryID}   Soft-delete entry (draft only)

  Lifecycle:
    POST   /api/reports/{id}/submit              draft → submitted
    POST   /api/reports/{id}/lock                submitted → locked + ledger commit

  Observability:
    GET    /api/ledger/info                      Ledger repository facts
    GET    /healthz                              Liveness + ledger validity
    GET    /metrics                              Prometheus metrics

ERROR HANDLING:
  Typed domain failures map to HTTP statuses:
  - 400 invalid input            - 404 not found
  - 403 ownership violation      - 409 invalid transition / already locked /
  - 422 missing entries                duplicate period / immutable report
  - 502 ledger infrastructure fault (retryable)
  - 500 ledger integrity violation (fatal)

SECURITY NOTE:
  No authentication middleware; the actor is taken from the request body.
  Authn/authz is an explicit non-goal of this subsystem.

SEE ALSO:
  - dto.go:    Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/mickeymick25/foresy-sub002/cra"
	"github.com/mickeymick25/foresy-sub002/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *cra.Service
	Ledger  ledger.Repository
}

// NewHandler creates a new handler over the lifecycle service and ledger.
func NewHandler(service *cra.Service, repo ledger.Repository) *Handler {
	return &Handler{Service: service, Ledger: repo}
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// CreateReport opens a new draft report.
// POST /api/reports
func (h *Handler) CreateReport(w http.ResponseWriter, r *http.Request) {
	var req CreateReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	snapshot, err := h.Service.CreateReport(r.Context(), req.ActorID,
		cra.Period{Month: req.Month, Year: req.Year}, req.Description, req.Currency)
	if err != nil {
		writeDomainError(w, "Failed to create report", err)
		return
	}
	writeJSON(w, http.StatusCreated, toReportDTO(snapshot))
}

// GetReport returns a report snapshot.
// GET /api/reports/{id}
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.Service.GetReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to get report", err)
		return
	}
	writeJSON(w, http.StatusOK, toReportDTO(snapshot))
}

// ListReports returns a creator's reports.
// GET /api/reports?creator={id}
func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	creator := r.URL.Query().Get("creator")
	if creator == "" {
		writeError(w, http.StatusBadRequest, "Missing creator query parameter", nil)
		return
	}

	snapshots, err := h.Service.ListReports(r.Context(), creator)
	if err != nil {
		writeDomainError(w, "Failed to list reports", err)
		return
	}

	dtos := make([]ReportDTO, len(snapshots))
	for i, s := range snapshots {
		dtos[i] = toReportDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ENTRY HANDLERS
// =============================================================================

// ListEntries returns the active entries of a report.
// GET /api/reports/{id}/entries
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Service.Entries(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to list entries", err)
		return
	}

	dtos := make([]EntryDTO, len(entries))
	for i := range entries {
		dtos[i] = toEntryDTO(&entries[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AddEntry appends a line item to a draft report.
// POST /api/reports/{id}/entries
func (h *Handler) AddEntry(w http.ResponseWriter, r *http.Request) {
	var req AddEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD", err)
		return
	}
	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid quantity, expected a decimal string", err)
		return
	}

	entry, err := h.Service.AddEntry(r.Context(), chi.URLParam(r, "id"), req.ActorID,
		date, quantity, req.UnitPrice, req.Description, req.AssignmentID)
	if err != nil {
		writeDomainError(w, "Failed to add entry", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTO(entry))
}

// RemoveEntry soft-deletes an entry of a draft report.
// DELETE /api/reports/{id}/entries/{entryID}
func (h *Handler) RemoveEntry(w http.ResponseWriter, r *http.Request) {
	var req ActorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	snapshot, err := h.Service.RemoveEntry(r.Context(),
		chi.URLParam(r, "id"), chi.URLParam(r, "entryID"), req.ActorID)
	if err != nil {
		writeDomainError(w, "Failed to remove entry", err)
		return
	}
	writeJSON(w, http.StatusOK, toReportDTO(snapshot))
}

// =============================================================================
// LIFECYCLE HANDLERS
// =============================================================================

// SubmitReport moves a draft report to submitted.
// POST /api/reports/{id}/submit
func (h *Handler) SubmitReport(w http.ResponseWriter, r *http.Request) {
	var req ActorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	snapshot, err := h.Service.Submit(r.Context(), chi.URLParam(r, "id"), req.ActorID)
	if err != nil {
		observeTransition("submit", err)
		writeDomainError(w, "Failed to submit report", err)
		return
	}
	observeTransition("submit", nil)
	writeJSON(w, http.StatusOK, toReportDTO(snapshot))
}

// LockReport moves a submitted report to locked, atomically with the
// ledger commit. Idempotent: repeating the call returns the same commit.
// POST /api/reports/{id}/lock
func (h *Handler) LockReport(w http.ResponseWriter, r *http.Request) {
	var req ActorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.Service.Lock(r.Context(), chi.URLParam(r, "id"), req.ActorID)
	if err != nil {
		observeTransition("lock", err)
		writeDomainError(w, "Failed to lock report", err)
		return
	}
	observeTransition("lock", nil)
	observeLedgerCommit(result.Commit.Timestamp)
	writeJSON(w, http.StatusOK, toLockResponse(result))
}

// =============================================================================
// OBSERVABILITY HANDLERS
// =============================================================================

// LedgerInfo exposes repository facts for dashboards and smoke checks.
// GET /api/ledger/info
func (h *Handler) LedgerInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.Ledger.Info(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "Ledger unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, toLedgerInfoDTO(info))
}

// Health reports liveness and ledger structural validity.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":       "ok",
		"ledger_valid": h.Ledger.IsValid(r.Context()),
	}
	writeJSON(w, http.StatusOK, status)
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

// writeDomainError translates the three error kinds (validation,
// infrastructure, integrity) into HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	writeError(w, statusFor(err), message, err)
}

func statusFor(err error) int {
	switch {
	case cra.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, cra.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, cra.ErrNoActiveEntries):
		return http.StatusUnprocessableEntity
	case errors.Is(err, cra.ErrAlreadyLocked),
		errors.Is(err, cra.ErrInvalidTransition),
		errors.Is(err, cra.ErrDuplicatePeriod),
		errors.Is(err, cra.ErrReportImmutable):
		return http.StatusConflict
	case errors.Is(err, cra.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrIntegrityViolation):
		return http.StatusInternalServerError
	case errors.Is(err, ledger.ErrUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
