package cra_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickeymick25/foresy-sub002/cra"
	"github.com/mickeymick25/foresy-sub002/cra/store"
	"github.com/mickeymick25/foresy-sub002/ledger"
)

// =============================================================================
// FAKE LEDGER
// =============================================================================

// fakeLedger implements ledger.Repository in memory with injectable
// failures, so the orchestration paths are tested without a git binary.
type fakeLedger struct {
	mu          sync.Mutex
	initialized bool
	commits     map[string]*ledger.CommitInfo
	payloads    map[string][]byte
	seq         int
	commitErr   error // returned by CreateCommit when set
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		commits:  make(map[string]*ledger.CommitInfo),
		payloads: make(map[string][]byte),
	}
}

func (f *fakeLedger) EnsureInitialized(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initialized = true
	return nil
}

func (f *fakeLedger) IsValid(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initialized
}

func (f *fakeLedger) CommitExists(ctx context.Context, reportID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.commits[reportID]
	return ok, nil
}

func (f *fakeLedger) FindCommit(ctx context.Context, reportID string) (*ledger.CommitInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.commits[reportID]
	if !ok {
		return nil, nil
	}
	copied := *info
	return &copied, nil
}

func (f *fakeLedger) CreateCommit(ctx context.Context, reportID, period string, payload []byte) (*ledger.CommitInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commitErr != nil {
		return nil, f.commitErr
	}
	f.seq++
	info := &ledger.CommitInfo{
		Hash:      fmt.Sprintf("hash-%03d", f.seq),
		Message:   fmt.Sprintf("Lock activity report %s (%s)", reportID, period),
		Timestamp: time.Now().UTC().Truncate(time.Second),
		ReportID:  reportID,
	}
	f.commits[reportID] = info
	f.payloads[reportID] = payload
	return info, nil
}

func (f *fakeLedger) Cleanup(ctx context.Context, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits = make(map[string]*ledger.CommitInfo)
	f.payloads = make(map[string][]byte)
	return nil
}

func (f *fakeLedger) Info(ctx context.Context) (*ledger.RepositoryInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &ledger.RepositoryInfo{
		Exists:      f.initialized,
		Path:        "fake",
		Branch:      "main",
		CommitCount: len(f.commits),
	}, nil
}

// commitCount is the test-side view of how many commits exist.
func (f *fakeLedger) commitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.commits)
}

// seed plants a commit as if a previous attempt committed before crashing.
func (f *fakeLedger) seed(reportID, hash string, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits[reportID] = &ledger.CommitInfo{
		Hash:      hash,
		Message:   "Lock activity report " + reportID,
		Timestamp: at,
		ReportID:  reportID,
	}
}

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestService(t *testing.T) (*cra.Service, *store.Memory, *fakeLedger) {
	t.Helper()
	mem := store.NewMemory()
	repo := newFakeLedger()
	locker := cra.NewLocker(mem, repo)
	return cra.NewService(mem, locker), mem, repo
}

// submittedReport creates a report with two entries and submits it.
func submittedReport(t *testing.T, svc *cra.Service) *cra.ReportSnapshot {
	t.Helper()
	ctx := context.Background()

	created, err := svc.CreateReport(ctx, "worker-1", cra.Period{Month: 1, Year: 2025}, "January", "EUR")
	require.NoError(t, err)

	_, err = svc.AddEntry(ctx, created.ID, "worker-1",
		day(2025, time.January, 2), cra.MustDecimal("1.0"), 50000, "client work", "assign-1")
	require.NoError(t, err)
	_, err = svc.AddEntry(ctx, created.ID, "worker-1",
		day(2025, time.January, 1), cra.MustDecimal("0.5"), 60000, "client work", "")
	require.NoError(t, err)

	snapshot, err := svc.Submit(ctx, created.ID, "worker-1")
	require.NoError(t, err)
	require.Equal(t, cra.StatusSubmitted, snapshot.Status)
	return snapshot
}

// =============================================================================
// LOCK HAPPY PATH
// =============================================================================

func TestLock_CommitsAndTransitions(t *testing.T) {
	// GIVEN: A submitted report with two entries
	// WHEN: Locking it
	// THEN: Status becomes locked, a commit exists, and totals match

	svc, mem, repo := newTestService(t)
	ctx := context.Background()
	snapshot := submittedReport(t, svc)

	result, err := svc.Lock(ctx, snapshot.ID, "worker-1")
	require.NoError(t, err)

	assert.Equal(t, cra.StatusLocked, result.Report.Status)
	require.NotNil(t, result.Report.LockedAt)
	assert.NotEmpty(t, result.Commit.Hash)
	assert.Equal(t, 1, repo.commitCount())

	// The persisted row agrees with the returned snapshot.
	persisted, err := mem.GetReport(ctx, snapshot.ID)
	require.NoError(t, err)
	assert.Equal(t, cra.StatusLocked, persisted.Status)
	assert.Equal(t, int64(80000), persisted.TotalAmount)
	assert.True(t, persisted.TotalDays.Equal(cra.MustDecimal("1.5")))
}

func TestLock_PayloadIsCanonical(t *testing.T) {
	// GIVEN: A submitted report whose entries were inserted newest-first
	// WHEN: Locking it
	// THEN: The committed payload orders entries date-ascending with
	//       recomputed totals and the sorted assignment list

	svc, _, repo := newTestService(t)
	ctx := context.Background()
	snapshot := submittedReport(t, svc)

	_, err := svc.Lock(ctx, snapshot.ID, "worker-1")
	require.NoError(t, err)

	var payload cra.CanonicalPayload
	require.NoError(t, json.Unmarshal(repo.payloads[snapshot.ID], &payload))

	require.Len(t, payload.Entries, 2)
	assert.Equal(t, "2025-01-01", payload.Entries[0].Date)
	assert.Equal(t, "2025-01-02", payload.Entries[1].Date)
	assert.Equal(t, "1.5", payload.Totals.Days)
	assert.Equal(t, int64(80000), payload.Totals.Amount)
	assert.Equal(t, []string{"assign-1"}, payload.AssignmentIDs)
}

// =============================================================================
// IDEMPOTENCY
// =============================================================================

func TestLock_SecondCallDoesNotCommitTwice(t *testing.T) {
	// GIVEN: A locked report
	// WHEN: Locking it again
	// THEN: The guard rejects with AlreadyLocked and no second commit exists

	svc, _, repo := newTestService(t)
	ctx := context.Background()
	snapshot := submittedReport(t, svc)

	first, err := svc.Lock(ctx, snapshot.ID, "worker-1")
	require.NoError(t, err)

	_, err = svc.Lock(ctx, snapshot.ID, "worker-1")
	assert.ErrorIs(t, err, cra.ErrAlreadyLocked)
	assert.Equal(t, 1, repo.commitCount(), "retry must not create a second commit")
	assert.Equal(t, "hash-001", first.Commit.Hash)
}

func TestCommitLock_SequentialCallsReturnSameCommit(t *testing.T) {
	// GIVEN: Two callers each holding a submitted view of the same report
	// WHEN: Both invoke the lock orchestration sequentially
	// THEN: Both get the identical commit and the count rises by one, not two

	svc, mem, repo := newTestService(t)
	ctx := context.Background()
	snapshot := submittedReport(t, svc)
	locker := cra.NewLocker(mem, repo)

	first, err := mem.GetReport(ctx, snapshot.ID)
	require.NoError(t, err)
	second, err := mem.GetReport(ctx, snapshot.ID)
	require.NoError(t, err)

	resultA, err := locker.CommitLock(ctx, first)
	require.NoError(t, err)
	resultB, err := locker.CommitLock(ctx, second)
	require.NoError(t, err)

	assert.Equal(t, resultA.Commit.Hash, resultB.Commit.Hash)
	assert.Equal(t, 1, repo.commitCount())
	assert.Equal(t, cra.StatusLocked, resultB.Report.Status)
}

func TestLock_RetryAfterCrashReusesExistingCommit(t *testing.T) {
	// GIVEN: A commit exists but the status transition never persisted
	//        (crash between the ledger commit and the store transaction)
	// WHEN: Locking the still-submitted report
	// THEN: The existing commit is returned, no new commit is created, and
	//       the transition is completed

	svc, mem, repo := newTestService(t)
	ctx := context.Background()
	snapshot := submittedReport(t, svc)

	committedAt := time.Date(2025, time.February, 1, 12, 0, 0, 0, time.UTC)
	repo.seed(snapshot.ID, "hash-prior", committedAt)

	result, err := svc.Lock(ctx, snapshot.ID, "worker-1")
	require.NoError(t, err)

	assert.Equal(t, "hash-prior", result.Commit.Hash)
	assert.Equal(t, 1, repo.commitCount(), "commit count must increase by zero on the retry path")
	assert.Equal(t, cra.StatusLocked, result.Report.Status)
	require.NotNil(t, result.Report.LockedAt)
	assert.True(t, result.Report.LockedAt.Equal(committedAt),
		"completed transition adopts the commit timestamp")

	persisted, err := mem.GetReport(ctx, snapshot.ID)
	require.NoError(t, err)
	assert.Equal(t, cra.StatusLocked, persisted.Status)
}

// =============================================================================
// ATOMICITY & ERROR CLASSIFICATION
// =============================================================================

func TestLock_CommitFailureLeavesReportSubmitted(t *testing.T) {
	// GIVEN: The ledger process fails during CreateCommit
	// WHEN: Locking a submitted report
	// THEN: The error surfaces as a retryable infrastructure fault and the
	//       report is still submitted, never locked without a commit

	svc, mem, repo := newTestService(t)
	ctx := context.Background()
	snapshot := submittedReport(t, svc)

	repo.commitErr = &ledger.InfraError{Op: "commit", Err: errors.New("exit status 128")}

	_, err := svc.Lock(ctx, snapshot.ID, "worker-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrUnavailable)
	assert.True(t, cra.IsRetryable(err))

	persisted, err := mem.GetReport(ctx, snapshot.ID)
	require.NoError(t, err)
	assert.Equal(t, cra.StatusSubmitted, persisted.Status)
	assert.Nil(t, persisted.LockedAt)
	assert.Equal(t, 0, repo.commitCount())
}

func TestLock_IntegrityViolationIsFatalNotRetryable(t *testing.T) {
	// GIVEN: The anti-rewrite guard was tampered with
	// WHEN: Locking a submitted report
	// THEN: The violation surfaces unchanged, is not classified retryable,
	//       and the report stays submitted

	svc, mem, repo := newTestService(t)
	ctx := context.Background()
	snapshot := submittedReport(t, svc)

	repo.commitErr = fmt.Errorf("%w (path /tmp/ledger)", ledger.ErrIntegrityViolation)

	_, err := svc.Lock(ctx, snapshot.ID, "worker-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrIntegrityViolation)
	assert.False(t, cra.IsRetryable(err))

	persisted, err := mem.GetReport(ctx, snapshot.ID)
	require.NoError(t, err)
	assert.Equal(t, cra.StatusSubmitted, persisted.Status)
}

func TestLock_RetrySucceedsAfterTransientFailure(t *testing.T) {
	// GIVEN: A first lock attempt failed on a transient ledger fault
	// WHEN: Retrying after the fault clears
	// THEN: The retry commits exactly once

	svc, _, repo := newTestService(t)
	ctx := context.Background()
	snapshot := submittedReport(t, svc)

	repo.commitErr = &ledger.InfraError{Op: "commit", Err: errors.New("timeout")}
	_, err := svc.Lock(ctx, snapshot.ID, "worker-1")
	require.Error(t, err)

	repo.commitErr = nil
	result, err := svc.Lock(ctx, snapshot.ID, "worker-1")
	require.NoError(t, err)

	assert.Equal(t, cra.StatusLocked, result.Report.Status)
	assert.Equal(t, 1, repo.commitCount())
}
