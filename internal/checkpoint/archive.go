// internal/checkpoint/archive.go
package checkpoint

import (
	"log"

	"github.com/qckfx/rewind/internal/database"
	"github.com/qckfx/rewind/internal/eventhub"
)

// Archiver persists completed checkpoints to the archive database as they
// are announced on the hub. It runs off the synchronous checkpoint path:
// archive failures are logged and never fail the checkpoint that
// triggered them.
type Archiver struct {
	store  *database.Archive
	cancel func()
	done   chan struct{}
}

// NewArchiver subscribes to the hub and starts archiving
func NewArchiver(store *database.Archive, hub *eventhub.Hub) *Archiver {
	events, cancel := hub.Subscribe(64)

	a := &Archiver{
		store:  store,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go a.run(events)
	return a
}

func (a *Archiver) run(events <-chan eventhub.Event) {
	defer close(a.done)

	for ev := range events {
		if ev.Type != eventhub.EventCheckpointReady {
			continue
		}
		cp, ok := ev.Payload.(*Checkpoint)
		if !ok {
			continue
		}
		a.persist(ev.SessionID, cp)
	}
}

func (a *Archiver) persist(sessionID string, cp *Checkpoint) {
	rec := &database.CheckpointRecord{
		ID:              cp.ID,
		SessionID:       sessionID,
		ToolExecutionID: cp.ToolExecutionID,
		CreatedAt:       cp.CreatedAt,
		RepoCount:       cp.RepoCount(),
		HostCommits:     cp.HostCommits,
		ShadowCommits:   cp.ShadowCommits,
	}

	if err := a.store.SaveCheckpoint(rec); err != nil {
		log.Printf("archiver: failed to save checkpoint %s: %v", cp.ID, err)
		return
	}

	for repoPath, bundle := range cp.Bundles {
		if err := a.store.SaveBundle(cp.ID, repoPath, bundle); err != nil {
			log.Printf("archiver: failed to save bundle for %s at %s: %v", cp.ID, repoPath, err)
		}
	}
}

// Stop unsubscribes and waits for in-flight writes to finish
func (a *Archiver) Stop() {
	a.cancel()
	<-a.done
}
