// internal/checkpoint/rollback.go
package checkpoint

import (
	"context"

	"github.com/qckfx/rewind/internal/eventhub"
	"github.com/qckfx/rewind/internal/shadow"
)

// Coordinator restores tracked repositories to a checkpoint's state and
// truncates conversation history to match
type Coordinator struct {
	shadowOpts shadow.Options
	hub        *eventhub.Hub
}

// NewCoordinator creates a Coordinator. hub may be nil.
func NewCoordinator(shadowOpts shadow.Options, hub *eventhub.Hub) *Coordinator {
	return &Coordinator{shadowOpts: shadowOpts, hub: hub}
}

// Rollback restores every repository recorded at the checkpoint active
// when messageID was created, then removes messageID and everything after
// it from history. Restoration is best effort: a failed repository is
// recorded and the rest still restored, surfaced as *PartialRollbackError.
// A session abort stops restoration at the repository boundary and leaves
// history untouched; the record comes back with Aborted set so the
// orchestrator can decide whether to retry.
func (c *Coordinator) Rollback(ctx context.Context, sess Session, messageID string) (*RollbackRecord, error) {
	record, err := RollbackState(ctx, sess, messageID, c.shadowOpts)
	if record != nil && c.hub != nil {
		c.hub.EmitRollbackCompleted(sess.ID(), record)
	}
	return record, err
}

// RollbackState is the detached variant of Rollback: it operates purely on
// the passed-in session state, with no live engine or observer plumbing.
func RollbackState(ctx context.Context, sess Session, messageID string, opts shadow.Options) (*RollbackRecord, error) {
	conv := sess.Conversation()

	cpID, err := conv.CheckpointForMessage(messageID)
	if err != nil {
		return nil, err
	}
	if cpID == "" {
		return nil, &NoCheckpointError{MessageID: messageID}
	}

	cp, ok := sess.CheckpointByID(cpID)
	if !ok {
		return nil, &NoCheckpointError{MessageID: messageID}
	}

	restored := make(map[string]string)
	failed := make(map[string]error)
	aborted := false

	for _, repoPath := range cp.RepoPaths {
		if sess.Aborted() {
			aborted = true
			break
		}

		shadowSHA := cp.ShadowCommits[repoPath]
		sh, err := shadow.Ensure(repoPath, sess.ID(), opts)
		if err != nil {
			failed[repoPath] = err
			continue
		}
		if err := sh.Restore(ctx, shadowSHA); err != nil {
			failed[repoPath] = err
			continue
		}
		restored[repoPath] = shadowSHA
	}

	// Truncation is tied to restoration: an aborted rollback must not
	// delete history while working trees keep their mutated state
	removed := 0
	if !aborted {
		var err error
		removed, err = conv.RollbackTo(messageID)
		if err != nil {
			return nil, err
		}
	}

	record := &RollbackRecord{
		RestoredCommits: restored,
		RepoCount:       len(restored),
		RemovedMessages: removed,
		Aborted:         aborted,
	}
	if len(cp.RepoPaths) > 0 {
		record.PrimarySHA = restored[cp.RepoPaths[0]]
	}

	if len(failed) > 0 {
		return record, &PartialRollbackError{Restored: restored, Failed: failed}
	}
	return record, nil
}
