// internal/checkpoint/errors.go
package checkpoint

import (
	"fmt"
	"sort"
	"strings"
)

// CreationError indicates a repository's snapshot step failed during a
// multi-repository checkpoint. The whole checkpoint is discarded: a
// partial checkpoint would silently lose rollback capability for the
// failed repository.
type CreationError struct {
	ToolExecutionID string
	RepoPath        string
	Err             error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("checkpoint for tool execution %s failed at %s: %v", e.ToolExecutionID, e.RepoPath, e.Err)
}

func (e *CreationError) Unwrap() error { return e.Err }

// NoCheckpointError indicates a rollback target predates every checkpoint
// in the session; there is nothing to restore to
type NoCheckpointError struct {
	MessageID string
}

func (e *NoCheckpointError) Error() string {
	return fmt.Sprintf("message %s has no associated checkpoint to roll back to", e.MessageID)
}

// PartialRollbackError reports repositories that could not be restored
// during a best-effort rollback. Restored holds the repositories that did
// restore; it is empty when every repository failed. The session stays
// usable either way; callers must tell the user which repositories are in
// a stale state.
type PartialRollbackError struct {
	Restored map[string]string
	Failed   map[string]error
}

func (e *PartialRollbackError) Error() string {
	failed := make([]string, 0, len(e.Failed))
	for path := range e.Failed {
		failed = append(failed, path)
	}
	sort.Strings(failed)
	if len(e.Restored) == 0 {
		return fmt.Sprintf("rollback failed for all %d repositories: %s",
			len(e.Failed), strings.Join(failed, ", "))
	}
	return fmt.Sprintf("rollback restored %d of %d repositories; failed: %s",
		len(e.Restored), len(e.Restored)+len(e.Failed), strings.Join(failed, ", "))
}
