/*
runner.go - Narrow process-execution boundary

PURPOSE:
  The ledger shells out to an external versioning binary. That boundary is
  isolated behind the Runner interface so unit tests substitute a fake and
  never touch the filesystem or a real git installation.

CONTRACT:
  Run executes the binary with args inside dir and returns trimmed stdout.
  A non-zero exit, missing binary, or exceeded context deadline is an error;
  stderr is folded into the error message for diagnostics, never into the
  returned output. A command that ran to completion and exited non-zero
  additionally carries an ExitError in its chain, so callers can tell "the
  binary answered no" apart from "the binary never answered".
*/
package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes the external versioning binary.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// ExitError reports a command that ran to completion and exited non-zero.
// Process-level failures (missing binary, killed by a deadline) never wear
// this type: some git exit codes are answers, not faults, and callers need
// to read them as such.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return fmt.Sprintf("exit status %d (stderr: %s)", e.Code, e.Stderr)
}

// GitRunner runs the real git binary. All commands target a specific
// repository directory via the -C flag so there is never a default
// repository: callers always say which store they mean.
type GitRunner struct {
	// Binary overrides the executable name. Defaults to "git".
	Binary string
}

func (g *GitRunner) binary() string {
	if g.Binary != "" {
		return g.Binary
	}
	return "git"
}

// Run executes a git command targeting dir and returns trimmed stdout.
// Stderr is captured separately and included in error messages on failure.
func (g *GitRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	fullArgs := append([]string{"-C", dir}, args...)
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, g.binary(), fullArgs...)
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		var exit *exec.ExitError
		if errors.As(err, &exit) && exit.ExitCode() >= 0 && ctx.Err() == nil {
			return "", fmt.Errorf("%s %s in %s: %w", g.binary(), strings.Join(args, " "), dir,
				&ExitError{Code: exit.ExitCode(), Stderr: strings.TrimSpace(stderr.String())})
		}
		return "", fmt.Errorf("%s %s in %s: %w (stderr: %s)",
			g.binary(), strings.Join(args, " "), dir, err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}
