/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for API communication, decoupling the domain model from
  the external contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

PRECISION:
  Quantities and day totals travel as plain decimal strings ("1.5"), never
  floats; money travels as integer minor-currency units. This mirrors the
  canonical payload rules so API output can be checked against the ledger
  artifact.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/mickeymick25/foresy-sub002/cra"
	"github.com/mickeymick25/foresy-sub002/ledger"
)

// =============================================================================
// REPORTS
// =============================================================================

// ReportDTO represents a report snapshot in API responses.
type ReportDTO struct {
	ID          string  `json:"id"`
	Month       int     `json:"month"`
	Year        int     `json:"year"`
	Status      string  `json:"status"`
	Description string  `json:"description,omitempty"`
	Currency    string  `json:"currency"`
	TotalDays   string  `json:"total_days"`
	TotalAmount int64   `json:"total_amount"`
	CreatedBy   string  `json:"created_by"`
	LockedAt    *string `json:"locked_at,omitempty"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

func toReportDTO(s *cra.ReportSnapshot) ReportDTO {
	dto := ReportDTO{
		ID:          s.ID,
		Month:       s.Period.Month,
		Year:        s.Period.Year,
		Status:      string(s.Status),
		Description: s.Description,
		Currency:    s.Currency,
		TotalDays:   s.TotalDays.String(),
		TotalAmount: s.TotalAmount,
		CreatedBy:   s.CreatedBy,
		CreatedAt:   s.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   s.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if s.LockedAt != nil {
		locked := s.LockedAt.UTC().Format(time.RFC3339)
		dto.LockedAt = &locked
	}
	return dto
}

// CreateReportRequest opens a new draft report.
type CreateReportRequest struct {
	ActorID     string `json:"actor_id"`
	Month       int    `json:"month"`
	Year        int    `json:"year"`
	Description string `json:"description"`
	Currency    string `json:"currency"`
}

// ActorRequest carries the acting user for lifecycle transitions.
type ActorRequest struct {
	ActorID string `json:"actor_id"`
}

// =============================================================================
// ENTRIES
// =============================================================================

// EntryDTO represents a line item in API responses.
type EntryDTO struct {
	ID          string `json:"id"`
	ReportID    string `json:"report_id"`
	Date        string `json:"date"`
	Quantity    string `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	Description string `json:"description,omitempty"`
	CreatedBy   string `json:"created_by"`
}

func toEntryDTO(e *cra.ActivityEntry) EntryDTO {
	return EntryDTO{
		ID:          e.ID,
		ReportID:    e.ReportID,
		Date:        e.Date.UTC().Format("2006-01-02"),
		Quantity:    e.Quantity.String(),
		UnitPrice:   e.UnitPrice,
		Description: e.Description,
		CreatedBy:   e.CreatedBy,
	}
}

// AddEntryRequest appends a line item to a draft report.
type AddEntryRequest struct {
	ActorID      string `json:"actor_id"`
	Date         string `json:"date"`     // 2006-01-02
	Quantity     string `json:"quantity"` // plain decimal, e.g. "0.5"
	UnitPrice    int64  `json:"unit_price"`
	Description  string `json:"description"`
	AssignmentID string `json:"assignment_id,omitempty"`
}

// =============================================================================
// LOCKING
// =============================================================================

// CommitDTO is the ledger commit metadata of a lock.
type CommitDTO struct {
	Hash      string `json:"hash"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// LockResponse is returned by a successful lock: the final snapshot plus
// the commit that durably recorded it.
type LockResponse struct {
	Report ReportDTO `json:"report"`
	Commit CommitDTO `json:"commit"`
}

func toLockResponse(res *cra.LockResult) LockResponse {
	return LockResponse{
		Report: toReportDTO(res.Report),
		Commit: CommitDTO{
			Hash:      res.Commit.Hash,
			Message:   res.Commit.Message,
			Timestamp: res.Commit.Timestamp.UTC().Format(time.RFC3339),
		},
	}
}

// =============================================================================
// LEDGER / HEALTH
// =============================================================================

// LedgerInfoDTO mirrors ledger.RepositoryInfo for the health endpoint.
type LedgerInfoDTO struct {
	Exists      bool   `json:"exists"`
	Path        string `json:"path"`
	Branch      string `json:"branch"`
	CommitCount int    `json:"commit_count"`
	LastCommit  string `json:"last_commit,omitempty"`
}

func toLedgerInfoDTO(info *ledger.RepositoryInfo) LedgerInfoDTO {
	return LedgerInfoDTO{
		Exists:      info.Exists,
		Path:        info.Path,
		Branch:      info.Branch,
		CommitCount: info.CommitCount,
		LastCommit:  info.LastCommit,
	}
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
