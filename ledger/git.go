/*
git.go - Git-backed Repository implementation

PURPOSE:
  Implements the Repository contract by shelling out to the git binary via
  the Runner boundary. One commit per locked report, identified by a
  "Report-Id:" trailer in the commit message.

ANTI-REWRITE GUARD:
  receive.denyNonFastForwards is set at initialization. It is re-verified
  after staging and immediately before every commit: if the flag is absent
  or altered the commit attempt aborts with ErrIntegrityViolation and
  nothing is written. The guard is a tamper-detection signal, not a
  cryptographic proof.

CONCURRENCY:
  Git write operations against a single working directory are not safe for
  concurrent writers, so every mutating operation (EnsureInitialized,
  CreateCommit, Cleanup) is serialized behind one process-wide mutex.
  Read-only queries (CommitExists, FindCommit, Info, IsValid) proceed
  without it. Every invocation carries the configured hard timeout.

ARTIFACT FORMAT:
  One JSON file per commit attempt, activity-report-<id>-<period>.json,
  holding the canonical payload. The file is removed from the working tree
  after the commit; the durable artifact is the history entry.
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

const antiRewriteKey = "receive.denyNonFastForwards"

// GitLedger is the git-backed append-only store.
type GitLedger struct {
	cfg    Config
	runner Runner

	// Serializes all mutating git operations; the working directory is a
	// single shared resource with no built-in writer coordination.
	mu sync.Mutex
}

// NewGitLedger returns a ledger over the store at cfg.Path. The runner
// defaults to the real git binary.
func NewGitLedger(cfg Config, runner Runner) *GitLedger {
	if runner == nil {
		runner = &GitRunner{}
	}
	return &GitLedger{cfg: cfg, runner: runner}
}

// runRaw executes one git invocation under the configured hard timeout and
// returns the runner's error untranslated, for callers that read specific
// exit codes as answers rather than faults.
func (l *GitLedger) runRaw(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.timeout())
	defer cancel()

	return l.runner.Run(ctx, l.cfg.Path, args...)
}

// run executes one git invocation and translates any process failure into
// an infrastructure fault.
func (l *GitLedger) run(ctx context.Context, op string, args ...string) (string, error) {
	out, err := l.runRaw(ctx, args...)
	if err != nil {
		return "", infra(op, err)
	}
	return out, nil
}

// =============================================================================
// INITIALIZATION
// =============================================================================

// EnsureInitialized creates the store on first use. Idempotent: an already
// valid store is left untouched, including its guard configuration.
func (l *GitLedger) EnsureInitialized(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.IsValid(ctx) {
		return nil
	}

	if err := os.MkdirAll(l.cfg.Path, 0o755); err != nil {
		return infra("init", err)
	}
	if _, err := l.run(ctx, "init", "init"); err != nil {
		return err
	}
	// Single default branch, before any commit exists.
	if _, err := l.run(ctx, "init", "symbolic-ref", "HEAD", "refs/heads/"+l.cfg.branch()); err != nil {
		return err
	}
	// Commit identity.
	if _, err := l.run(ctx, "init", "config", "user.name", l.cfg.authorName()); err != nil {
		return err
	}
	if _, err := l.run(ctx, "init", "config", "user.email", l.cfg.authorEmail()); err != nil {
		return err
	}
	// Anti-rewrite guard: reject non-fast-forward history changes.
	if _, err := l.run(ctx, "init", "config", antiRewriteKey, "true"); err != nil {
		return err
	}
	return nil
}

// IsValid reports whether the path holds a structurally sound store.
func (l *GitLedger) IsValid(ctx context.Context) bool {
	if _, err := os.Stat(l.cfg.Path); err != nil {
		return false
	}
	_, err := l.run(ctx, "validate", "rev-parse", "--git-dir")
	return err == nil
}

// =============================================================================
// COMMIT QUERIES (read-only, no mutex)
// =============================================================================

func trailerFor(reportID string) string {
	return "Report-Id: " + reportID
}

// findHash returns the hash of the snapshot commit for reportID, or "".
// rev-list --all is safe on a store with zero commits.
func (l *GitLedger) findHash(ctx context.Context, reportID string) (string, error) {
	out, err := l.run(ctx, "log", "rev-list", "--all", "-n", "1",
		"--fixed-strings", "--grep", trailerFor(reportID))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// CommitExists reports whether a snapshot commit exists for the report.
func (l *GitLedger) CommitExists(ctx context.Context, reportID string) (bool, error) {
	hash, err := l.findHash(ctx, reportID)
	if err != nil {
		return false, err
	}
	return hash != "", nil
}

// FindCommit returns the existing snapshot commit, or nil when absent.
func (l *GitLedger) FindCommit(ctx context.Context, reportID string) (*CommitInfo, error) {
	hash, err := l.findHash(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if hash == "" {
		return nil, nil
	}
	return l.describeCommit(ctx, hash, reportID)
}

// describeCommit loads hash, committer timestamp, and subject in one call.
func (l *GitLedger) describeCommit(ctx context.Context, hash, reportID string) (*CommitInfo, error) {
	out, err := l.run(ctx, "show", "show", "-s", "--format=%H%x1f%cI%x1f%s", hash)
	if err != nil {
		return nil, err
	}
	parts := strings.SplitN(strings.TrimSpace(out), "\x1f", 3)
	if len(parts) != 3 {
		return nil, infra("show", fmt.Errorf("unexpected commit description %q", out))
	}
	ts, err := time.Parse(time.RFC3339, parts[1])
	if err != nil {
		return nil, infra("show", fmt.Errorf("unparseable commit timestamp %q", parts[1]))
	}
	return &CommitInfo{
		Hash:      parts[0],
		Message:   parts[2],
		Timestamp: ts,
		ReportID:  reportID,
	}, nil
}

// =============================================================================
// COMMIT CREATION
// =============================================================================

// verifyGuard checks the anti-rewrite flag is still exactly "true". An
// absent or altered flag means the store may have been tampered with since
// initialization. Only a clean read is trusted to mean "absent": config
// --get exits 1 when the key is not set, while a timeout or missing binary
// stays an infrastructure fault so the caller may retry.
func (l *GitLedger) verifyGuard(ctx context.Context) error {
	out, err := l.runRaw(ctx, "config", "--get", antiRewriteKey)
	if err != nil {
		var exit *ExitError
		if errors.As(err, &exit) && exit.Code == 1 {
			return fmt.Errorf("%w (path %s)", ErrIntegrityViolation, l.cfg.Path)
		}
		return infra("verify-guard", err)
	}
	if strings.TrimSpace(out) != "true" {
		return fmt.Errorf("%w (path %s)", ErrIntegrityViolation, l.cfg.Path)
	}
	return nil
}

// artifactName builds the deterministic working-file name for a report.
func artifactName(reportID, period string) string {
	return fmt.Sprintf("activity-report-%s-%s.json", reportID, period)
}

// CreateCommit snapshots the payload into history. The sequence is: write
// the working file, stage everything, re-verify the anti-rewrite guard,
// commit, resolve hash and timestamp, remove the working file. A hash is
// only ever returned for a commit that genuinely completed.
func (l *GitLedger) CreateCommit(ctx context.Context, reportID, period string, payload []byte) (*CommitInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	name := artifactName(reportID, period)
	path := filepath.Join(l.cfg.Path, name)

	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return nil, infra("commit", err)
	}
	// Only the history entry is durable; the working copy is transient and
	// must not survive any exit path.
	defer os.Remove(path)

	// -A also stages the removal of previous reports' transient files.
	if _, err := l.run(ctx, "commit", "add", "-A"); err != nil {
		return nil, err
	}

	if err := l.verifyGuard(ctx); err != nil {
		// Abort: unstage, best effort.
		l.run(ctx, "commit", "reset", "--quiet") //nolint:errcheck
		return nil, err
	}

	subject := fmt.Sprintf("Lock activity report %s (%s)", reportID, period)
	if _, err := l.run(ctx, "commit", "commit", "-m", subject, "-m", trailerFor(reportID)); err != nil {
		return nil, err
	}

	hash, err := l.run(ctx, "commit", "rev-parse", "HEAD")
	if err != nil {
		return nil, err
	}
	return l.describeCommit(ctx, strings.TrimSpace(hash), reportID)
}

// =============================================================================
// MAINTENANCE
// =============================================================================

// Cleanup destroys the store. Refused in production unless forced.
func (l *GitLedger) Cleanup(ctx context.Context, force bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cfg.Env == "production" && !force {
		return ErrCleanupRefused
	}
	if err := os.RemoveAll(l.cfg.Path); err != nil {
		return infra("cleanup", err)
	}
	return nil
}

// Info returns structural facts about the store for health endpoints.
func (l *GitLedger) Info(ctx context.Context) (*RepositoryInfo, error) {
	info := &RepositoryInfo{
		Path:   l.cfg.Path,
		Branch: l.cfg.branch(),
	}
	if !l.IsValid(ctx) {
		return info, nil
	}
	info.Exists = true

	out, err := l.run(ctx, "info", "rev-list", "--all", "--count")
	if err != nil {
		return nil, err
	}
	count, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return nil, infra("info", fmt.Errorf("unexpected commit count %q", out))
	}
	info.CommitCount = count

	if count > 0 {
		last, err := l.run(ctx, "info", "rev-list", "--all", "-n", "1")
		if err != nil {
			return nil, err
		}
		info.LastCommit = strings.TrimSpace(last)
	}
	return info, nil
}
