// internal/checkpoint/checkpoint.go
package checkpoint

import (
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/qckfx/rewind/internal/conversation"
	"github.com/qckfx/rewind/internal/tracker"
)

// Checkpoint is an atomic cross-repository snapshot taken before a
// potentially destructive tool execution. Immutable once created. The
// three maps always share an identical key set: one entry per tracked
// repository.
type Checkpoint struct {
	ID              string    `json:"id"`
	ToolExecutionID string    `json:"tool_execution_id"`
	CreatedAt       time.Time `json:"created_at"`

	// RepoPaths preserves discovery order; the first entry is the
	// primary repository used for backward-compatible reporting
	RepoPaths []string `json:"repo_paths"`

	HostCommits   map[string]string `json:"host_commits"`
	ShadowCommits map[string]string `json:"shadow_commits"`
	Bundles       map[string][]byte `json:"-"`

	// Aborted marks a checkpoint cut short by a session abort; the maps
	// cover only the repositories processed before the abort
	Aborted bool `json:"aborted,omitempty"`
}

// RepoCount returns the number of repositories captured
func (c *Checkpoint) RepoCount() int {
	return len(c.RepoPaths)
}

// Summary converts the checkpoint to the tracker's lightweight record
func (c *Checkpoint) Summary() tracker.CheckpointSummary {
	hosts := make(map[string]string, len(c.HostCommits))
	for k, v := range c.HostCommits {
		hosts[k] = v
	}
	return tracker.CheckpointSummary{
		ID:              c.ID,
		ToolExecutionID: c.ToolExecutionID,
		CreatedAt:       c.CreatedAt,
		RepoCount:       c.RepoCount(),
		HostCommits:     hosts,
	}
}

// RollbackRecord reports the outcome of a rollback
type RollbackRecord struct {
	// PrimarySHA is the first repository's restored commit, kept for
	// single-repository-era compatibility
	PrimarySHA string `json:"primary_sha,omitempty"`
	// RestoredCommits maps repository path to the shadow commit its
	// working tree was restored to
	RestoredCommits map[string]string `json:"restored_commits"`
	RepoCount       int               `json:"repo_count"`
	// RemovedMessages counts conversation entries truncated
	RemovedMessages int `json:"removed_messages"`
	// Aborted marks a rollback cut short by a session abort
	Aborted bool `json:"aborted,omitempty"`
}

// Session is the per-session state checkpoint operations act on. No
// process-wide session state exists; callers pass the session explicitly.
type Session interface {
	ID() string
	Aborted() bool
	Tracker() *tracker.Tracker
	Conversation() *conversation.Store
	AddCheckpoint(cp *Checkpoint)
	CheckpointByID(id string) (*Checkpoint, bool)
}

// NewID returns a fresh checkpoint id. ULIDs sort lexically by creation
// time, so checkpoint ids created later always compare greater.
func NewID() string {
	return ulid.Make().String()
}
