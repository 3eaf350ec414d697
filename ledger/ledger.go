/*
Package ledger provides the append-only, tamper-evident store that durably
snapshots an activity report at the moment it becomes immutable.

PURPOSE:
  When a report is locked, its canonical payload is committed to a
  version-controlled store. The commit history IS the ledger: one commit per
  locked report, retrievable forever, protected against history rewrites by
  a store-level configuration guard.

KEY CONCEPTS:
  - Repository:     The capability set any conforming store implements
  - CommitInfo:     Identifier/message/timestamp of a ledger commit
  - RepositoryInfo: Structural facts for health/observability endpoints
  - Config:         Injected at construction; no process-wide fixed path

TAMPER EVIDENCE, NOT PROOF:
  The ledger relies on version-control semantics (append-only history plus
  a non-fast-forward rejection flag) for tamper evidence. It performs no
  cryptographic hash-chaining or notarization.

SEE ALSO:
  - git.go:    The git-backed implementation
  - runner.go: Process execution boundary
  - errors.go: Infrastructure vs integrity failure kinds
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// REPOSITORY - Capability set of the append-only store
// =============================================================================

// Repository is the contract the lock orchestrator depends on. Any
// append-only, tamper-evident store whose commits are retrievable by
// report id satisfies it; nothing requires a literal version-control
// binary.
type Repository interface {
	// EnsureInitialized creates the store on first use: identity, a single
	// default branch, and the anti-rewrite guard. No-op when already
	// initialized.
	EnsureInitialized(ctx context.Context) error

	// IsValid is a cheap structural health check.
	IsValid(ctx context.Context) bool

	// CommitExists reports whether a snapshot commit already exists for the
	// report. This is the idempotency primitive of the lock path.
	CommitExists(ctx context.Context, reportID string) (bool, error)

	// FindCommit returns the existing commit for the report, or nil.
	FindCommit(ctx context.Context, reportID string) (*CommitInfo, error)

	// CreateCommit writes the payload as a tracked file, re-verifies the
	// anti-rewrite guard, commits, and returns the commit metadata. The
	// working file is transient; the history entry is the durable artifact.
	// A CommitInfo is returned only for a genuinely completed commit.
	CreateCommit(ctx context.Context, reportID, period string, payload []byte) (*CommitInfo, error)

	// Cleanup destroys the store. Refused in production unless forced.
	Cleanup(ctx context.Context, force bool) error

	// Info returns structural facts for observability endpoints.
	Info(ctx context.Context) (*RepositoryInfo, error)
}

// =============================================================================
// METADATA
// =============================================================================

// CommitInfo identifies one ledger commit. It exists only in the store's
// history and is never duplicated into the relational store.
type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	ReportID  string    `json:"report_id"`
}

// RepositoryInfo describes the store for health endpoints.
type RepositoryInfo struct {
	Exists      bool   `json:"exists"`
	Path        string `json:"path"`
	Branch      string `json:"branch"`
	CommitCount int    `json:"commit_count"`
	LastCommit  string `json:"last_commit,omitempty"`
}

// =============================================================================
// CONFIG - Injected at construction
// =============================================================================

// Config locates and parameterizes the store. The path is an explicit
// configuration value with lifecycle tied to application startup, never a
// package-level constant.
type Config struct {
	// Path is the store's working directory on disk.
	Path string

	// Branch is the single default branch name. Defaults to "main".
	Branch string

	// Env gates destructive operations ("production" refuses Cleanup).
	Env string

	// Timeout is the hard per-invocation limit for the external binary.
	// A timeout is an infrastructure fault. Defaults to 10s.
	Timeout time.Duration

	// Identity recorded on every commit.
	AuthorName  string
	AuthorEmail string
}

func (c Config) branch() string {
	if c.Branch == "" {
		return "main"
	}
	return c.Branch
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 10 * time.Second
	}
	return c.Timeout
}

func (c Config) authorName() string {
	if c.AuthorName == "" {
		return "CRA Ledger"
	}
	return c.AuthorName
}

func (c Config) authorEmail() string {
	if c.AuthorEmail == "" {
		return "ledger@cra.local"
	}
	return c.AuthorEmail
}
