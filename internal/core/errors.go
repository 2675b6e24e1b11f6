package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// DiscoveryError reports a root directory that could not be walked.
// Err wraps fs.ErrNotExist or fs.ErrPermission when that is the cause.
type DiscoveryError struct {
	Path string
	Err  error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovery failed at %s: %v", e.Path, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// SnapshotReadError names the file whose content could not be captured.
type SnapshotReadError struct {
	Path string
	Err  error
}

func (e *SnapshotReadError) Error() string {
	return fmt.Sprintf("snapshot read failed for %s: %v", e.Path, e.Err)
}

func (e *SnapshotReadError) Unwrap() error { return e.Err }

// SnapshotWriteError lists every file that restore could not write back.
// Those files are left in their mutated state.
type SnapshotWriteError struct {
	Paths []string
	Errs  map[string]error
}

func (e *SnapshotWriteError) Error() string {
	paths := append([]string(nil), e.Paths...)
	sort.Strings(paths)

	var b strings.Builder
	fmt.Fprintf(&b, "restore failed for %d file(s), left mutated:", len(paths))
	for _, p := range paths {
		fmt.Fprintf(&b, "\n  %s: %v", p, e.Errs[p])
	}
	return b.String()
}

func (e *SnapshotWriteError) Unwrap() []error {
	errs := make([]error, 0, len(e.Errs))
	for _, p := range e.Paths {
		errs = append(errs, e.Errs[p])
	}
	return errs
}

// PipelineError reports a preprocess transform that failed on Path.
type PipelineError struct {
	Path string
	Err  error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("preprocess failed on %s: %v", e.Path, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// DownstreamTaskError wraps an opaque failure of the build step. Its message is
// the inner message so callers see the tool's own wording.
type DownstreamTaskError struct {
	Task string
	Err  error
}

func NewDownstreamTaskError(task string, err error) *DownstreamTaskError {
	return &DownstreamTaskError{Task: task, Err: err}
}

func (e *DownstreamTaskError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("task %s failed", e.Task)
	}
	return e.Err.Error()
}

func (e *DownstreamTaskError) Unwrap() error { return e.Err }

// TransactionError is returned when restore itself failed. Outcome is the
// error the transaction would otherwise have returned and may be nil.
type TransactionError struct {
	ID      string
	Outcome error
	Restore *SnapshotWriteError
}

func (e *TransactionError) Error() string {
	if e.Outcome == nil {
		return fmt.Sprintf("transaction %s: %v", e.ID, e.Restore)
	}
	return fmt.Sprintf("transaction %s: %v; %v", e.ID, e.Outcome, e.Restore)
}

func (e *TransactionError) Unwrap() []error {
	if e.Outcome == nil {
		return []error{e.Restore}
	}
	return []error{e.Outcome, e.Restore}
}

// UnrestoredPaths returns the files an operator has to repair by hand, or nil
// when err does not carry a restore failure.
func UnrestoredPaths(err error) []string {
	var we *SnapshotWriteError
	if errors.As(err, &we) {
		return append([]string(nil), we.Paths...)
	}
	return nil
}
