// engine.go
package rewind

import (
	"context"
	"log"

	"github.com/qckfx/rewind/internal/checkpoint"
	"github.com/qckfx/rewind/internal/config"
	"github.com/qckfx/rewind/internal/conversation"
	"github.com/qckfx/rewind/internal/database"
	"github.com/qckfx/rewind/internal/eventhub"
	"github.com/qckfx/rewind/internal/session"
	"github.com/qckfx/rewind/internal/shadow"
	"github.com/qckfx/rewind/internal/tracker"
)

// Engine wires the checkpoint/rollback core together: sessions, the
// checkpoint builder, the rollback coordinator, the event hub, and the
// archive database. Orchestrators call it before and after tool
// executions; everything session-scoped is passed explicitly.
type Engine struct {
	cfg *config.Config
	hub *eventhub.Hub

	sessions    *session.Manager
	builder     *checkpoint.Builder
	coordinator *checkpoint.Coordinator

	archive  *database.Archive
	archiver *checkpoint.Archiver
}

// New creates an Engine from configuration. A nil cfg loads the default
// configuration from disk.
func New(cfg *config.Config) (*Engine, error) {
	if cfg == nil {
		loaded, err := config.Load()
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	shadowOpts := shadow.Options{
		DirPrefix:    cfg.ShadowDirPrefix,
		ExcludedDirs: cfg.ExcludedDirs,
	}

	hub := eventhub.New()

	e := &Engine{
		cfg:         cfg,
		hub:         hub,
		sessions:    session.NewManager(cfg),
		builder:     checkpoint.NewBuilder(shadowOpts, hub),
		coordinator: checkpoint.NewCoordinator(shadowOpts, hub),
	}

	// The archive is best effort: a broken database disables archiving
	// but never the checkpoint core
	if cfg.ArchivePath != "" {
		archive, err := database.Open(cfg.ArchivePath)
		if err != nil {
			log.Printf("failed to open checkpoint archive: %v", err)
		} else {
			e.archive = archive
			e.archiver = checkpoint.NewArchiver(archive, hub)
		}
	}

	return e, nil
}

// Session returns the session for id, creating it over workingDir on
// first use
func (e *Engine) Session(id, workingDir string) *session.Session {
	return e.sessions.GetOrCreate(id, workingDir)
}

// CreateCheckpoint snapshots every repository tracked by the session
// before the given tool execution runs. A failed checkpoint must block
// the mutating tool call; never run one without a safety net.
func (e *Engine) CreateCheckpoint(ctx context.Context, sess *session.Session, toolExecutionID string) (*checkpoint.Checkpoint, error) {
	return e.builder.Create(ctx, sess, toolExecutionID)
}

// PerformRollback restores the session's repositories to the checkpoint
// active at messageID and truncates history to match
func (e *Engine) PerformRollback(ctx context.Context, sess *session.Session, messageID string) (*checkpoint.RollbackRecord, error) {
	return e.coordinator.Rollback(ctx, sess, messageID)
}

// PerformRollbackState is the detached variant: it rolls back any state
// implementing checkpoint.Session without going through a live engine's
// observer plumbing
func PerformRollbackState(ctx context.Context, state checkpoint.Session, messageID string, cfg *config.Config) (*checkpoint.RollbackRecord, error) {
	opts := shadow.DefaultOptions()
	if cfg != nil {
		opts = shadow.Options{DirPrefix: cfg.ShadowDirPrefix, ExcludedDirs: cfg.ExcludedDirs}
	}
	return checkpoint.RollbackState(ctx, state, messageID, opts)
}

// RepositoryCount returns the session's tracked repository count
func (e *Engine) RepositoryCount(sess *session.Session) int {
	return sess.Tracker().Count()
}

// RepositoryPaths returns the session's tracked repository paths in
// discovery order
func (e *Engine) RepositoryPaths(sess *session.Session) []string {
	return sess.Tracker().Paths()
}

// MultiRepoInfo summarizes the session's repository tracking state
func (e *Engine) MultiRepoInfo(sess *session.Session) tracker.Info {
	return sess.Tracker().Info()
}

// WatchRepositories starts change notifications for the session's
// tracked repositories, delivered as repo:changed events
func (e *Engine) WatchRepositories(sess *session.Session) error {
	return sess.Tracker().Watch(e.hub, sess.ID(), e.cfg.WatchDebounce())
}

// Subscribe registers an observer for engine events. Delivery is fire
// and forget; a slow observer never affects core operations.
func (e *Engine) Subscribe(buffer int) (<-chan eventhub.Event, func()) {
	return e.hub.Subscribe(buffer)
}

// Archive returns the checkpoint archive store, or nil when archiving
// is disabled
func (e *Engine) Archive() *database.Archive {
	return e.archive
}

// Messages returns the session's model-facing message view
func (e *Engine) Messages(sess *session.Session) []conversation.Message {
	return sess.Conversation().Messages()
}

// Close releases sessions, observers and the archive
func (e *Engine) Close() {
	e.sessions.Close()
	if e.archiver != nil {
		e.archiver.Stop()
	}
	e.hub.Close()
	if e.archive != nil {
		e.archive.Close()
	}
}
