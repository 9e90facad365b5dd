// internal/session/session.go
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/qckfx/rewind/internal/checkpoint"
	"github.com/qckfx/rewind/internal/config"
	"github.com/qckfx/rewind/internal/conversation"
	"github.com/qckfx/rewind/internal/tracker"
)

// Session is one continuous interaction: its conversation history, its
// tracked repositories, and the checkpoints taken along the way. A session
// processes one query at a time; the orchestrator serializes access, so
// only the abort flag is safe to touch concurrently.
type Session struct {
	id         string
	workingDir string

	aborted   atomic.Bool
	abortMu   sync.Mutex
	abortedAt time.Time

	conv        *conversation.Store
	track       *tracker.Tracker
	checkpoints map[string]*checkpoint.Checkpoint
}

// New creates a session over a working directory. An empty id gets a
// generated one.
func New(id, workingDir string, cfg *config.Config) *Session {
	if id == "" {
		id = uuid.New().String()
	}

	return &Session{
		id:          id,
		workingDir:  workingDir,
		conv:        conversation.NewStore(cfg.ValidateHistory),
		track:       tracker.New(workingDir, cfg.DiscoveryDepth, cfg.ExcludedDirs),
		checkpoints: make(map[string]*checkpoint.Checkpoint),
	}
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// WorkingDir returns the directory this session operates in
func (s *Session) WorkingDir() string {
	return s.workingDir
}

// Abort raises the session's abort flag. Checkpoint and rollback loops
// observe it between repositories; the repository in progress finishes.
func (s *Session) Abort() {
	if s.aborted.CompareAndSwap(false, true) {
		s.abortMu.Lock()
		s.abortedAt = time.Now()
		s.abortMu.Unlock()
	}
}

// Aborted reports whether the abort flag is raised
func (s *Session) Aborted() bool {
	return s.aborted.Load()
}

// AbortedAt returns when the session was aborted, if it was
func (s *Session) AbortedAt() (time.Time, bool) {
	if !s.aborted.Load() {
		return time.Time{}, false
	}
	s.abortMu.Lock()
	defer s.abortMu.Unlock()
	return s.abortedAt, true
}

// Conversation returns the session's message history store
func (s *Session) Conversation() *conversation.Store {
	return s.conv
}

// Tracker returns the session's repository tracker
func (s *Session) Tracker() *tracker.Tracker {
	return s.track
}

// AddCheckpoint registers a completed checkpoint for later rollback
func (s *Session) AddCheckpoint(cp *checkpoint.Checkpoint) {
	s.checkpoints[cp.ID] = cp
}

// CheckpointByID looks up a checkpoint registered on this session
func (s *Session) CheckpointByID(id string) (*checkpoint.Checkpoint, bool) {
	cp, ok := s.checkpoints[id]
	return cp, ok
}

// Close releases session resources (repository watchers)
func (s *Session) Close() {
	s.track.Close()
}
