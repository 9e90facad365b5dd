// internal/checkpoint/builder.go
package checkpoint

import (
	"context"
	"fmt"
	"time"

	"github.com/qckfx/rewind/internal/eventhub"
	"github.com/qckfx/rewind/internal/git"
	"github.com/qckfx/rewind/internal/shadow"
)

// Builder creates checkpoints across every repository tracked by a
// session. Creation is all-or-nothing: if any repository's snapshot step
// fails the whole checkpoint is discarded, so the triggering tool call is
// blocked rather than left without a safety net for one repository.
type Builder struct {
	shadowOpts shadow.Options
	hub        *eventhub.Hub
}

// NewBuilder creates a Builder. hub may be nil when no observers exist.
func NewBuilder(shadowOpts shadow.Options, hub *eventhub.Hub) *Builder {
	return &Builder{shadowOpts: shadowOpts, hub: hub}
}

// Create snapshots every tracked repository and returns the aggregated
// checkpoint. A session abort between repositories yields a partial
// checkpoint with Aborted set, returned without error; the in-progress
// repository is always allowed to finish.
func (b *Builder) Create(ctx context.Context, sess Session, toolExecutionID string) (*Checkpoint, error) {
	records, err := sess.Tracker().Discover()
	if err != nil {
		return nil, &CreationError{ToolExecutionID: toolExecutionID, Err: fmt.Errorf("repository discovery failed: %w", err)}
	}

	cp := &Checkpoint{
		ID:              NewID(),
		ToolExecutionID: toolExecutionID,
		CreatedAt:       time.Now(),
		HostCommits:     make(map[string]string),
		ShadowCommits:   make(map[string]string),
		Bundles:         make(map[string][]byte),
	}

	for _, rec := range records {
		if sess.Aborted() {
			cp.Aborted = true
			break
		}

		if err := b.snapshotRepo(ctx, sess.ID(), rec.Path, cp); err != nil {
			return nil, &CreationError{ToolExecutionID: toolExecutionID, RepoPath: rec.Path, Err: err}
		}
	}

	if cp.Aborted {
		// Never published: an aborted checkpoint must not become the
		// checkpoint new messages inherit
		return cp, nil
	}

	sess.AddCheckpoint(cp)
	sess.Tracker().RecordCheckpoint(cp.Summary())
	sess.Conversation().SetCheckpoint(cp.ID)

	if b.hub != nil {
		b.hub.EmitCheckpointReady(sess.ID(), cp)
	}

	return cp, nil
}

// snapshotRepo captures one repository into the checkpoint: shadow commit,
// host head, portable bundle
func (b *Builder) snapshotRepo(ctx context.Context, sessionID, repoPath string, cp *Checkpoint) error {
	sh, err := shadow.Ensure(repoPath, sessionID, b.shadowOpts)
	if err != nil {
		return err
	}

	shadowSHA, err := sh.Snapshot(ctx)
	if err != nil {
		return err
	}

	// Empty on unborn HEAD; any other host inspection failure fails the
	// checkpoint like every other step
	repo, err := git.Open(repoPath)
	if err != nil {
		return fmt.Errorf("failed to open host repository: %w", err)
	}
	hostSHA, err := repo.HeadSHA()
	if err != nil {
		return fmt.Errorf("failed to read host HEAD: %w", err)
	}

	bundle, err := sh.Bundle(ctx, shadowSHA)
	if err != nil {
		return err
	}

	cp.RepoPaths = append(cp.RepoPaths, repoPath)
	cp.HostCommits[repoPath] = hostSHA
	cp.ShadowCommits[repoPath] = shadowSHA
	cp.Bundles[repoPath] = bundle
	return nil
}
