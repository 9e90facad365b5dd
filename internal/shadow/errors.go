// internal/shadow/errors.go
package shadow

import "fmt"

// InitError indicates the shadow repository could not be created
type InitError struct {
	RepoPath string
	Err      error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("failed to initialize shadow repository for %s: %v", e.RepoPath, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// RestoreError indicates a shadow commit is missing or unreadable during
// restore. This is fatal for the affected repository and must be surfaced
// to the caller, never skipped.
type RestoreError struct {
	RepoPath  string
	CommitSHA string
	Err       error
}

func (e *RestoreError) Error() string {
	return fmt.Sprintf("failed to restore %s to shadow commit %s: %v", e.RepoPath, e.CommitSHA, e.Err)
}

func (e *RestoreError) Unwrap() error { return e.Err }
