// internal/checkpoint/checkpoint_test.go
package checkpoint

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/qckfx/rewind/internal/conversation"
	"github.com/qckfx/rewind/internal/tracker"
)

// testSession implements Session over bare stores, standing in for a full
// engine session
type testSession struct {
	id          string
	aborted     bool
	track       *tracker.Tracker
	conv        *conversation.Store
	checkpoints map[string]*Checkpoint
}

func newTestSession(t *testing.T, workingDir string) *testSession {
	t.Helper()
	return &testSession{
		id:          "sess-test",
		track:       tracker.New(workingDir, 4, []string{".git", ".rewind", "node_modules"}),
		conv:        conversation.NewStore(false),
		checkpoints: make(map[string]*Checkpoint),
	}
}

func (s *testSession) ID() string                          { return s.id }
func (s *testSession) Aborted() bool                       { return s.aborted }
func (s *testSession) Tracker() *tracker.Tracker           { return s.track }
func (s *testSession) Conversation() *conversation.Store   { return s.conv }
func (s *testSession) AddCheckpoint(cp *Checkpoint)        { s.checkpoints[cp.ID] = cp }
func (s *testSession) CheckpointByID(id string) (*Checkpoint, bool) {
	cp, ok := s.checkpoints[id]
	return cp, ok
}

// gitInit creates a git repository with one committed file at dir
func gitInit(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@test",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@test",
		)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v failed: %v\n%s", args, err, out)
		}
	}

	run("init", "-b", "main")
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("v1"), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	run("add", ".")
	run("commit", "-m", "initial")
}

func TestNewID_Sortable(t *testing.T) {
	id1 := NewID()
	id2 := NewID()
	if len(id1) != 26 {
		t.Errorf("Expected 26-char ULID, got '%s'", id1)
	}
	if id2 < id1 {
		t.Errorf("Later id should not sort before earlier: %s < %s", id2, id1)
	}
}

func TestCheckpoint_Summary(t *testing.T) {
	cp := &Checkpoint{
		ID:              "cp-1",
		ToolExecutionID: "t1",
		RepoPaths:       []string{"/work/a", "/work/b"},
		HostCommits:     map[string]string{"/work/a": "aaa", "/work/b": "bbb"},
	}

	sum := cp.Summary()
	if sum.RepoCount != 2 {
		t.Errorf("Expected repo count 2, got %d", sum.RepoCount)
	}
	if sum.HostCommits["/work/a"] != "aaa" {
		t.Errorf("Host commits not carried into summary: %+v", sum)
	}

	// The summary's map is a copy
	sum.HostCommits["/work/a"] = "mutated"
	if cp.HostCommits["/work/a"] != "aaa" {
		t.Error("Summary mutation leaked into the checkpoint")
	}
}
