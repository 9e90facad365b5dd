// internal/checkpoint/rollback_test.go
package checkpoint

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/qckfx/rewind/internal/conversation"
	"github.com/qckfx/rewind/internal/eventhub"
)

func TestRollback_SingleRepoRoundTrip(t *testing.T) {
	work := t.TempDir()
	repoPath := filepath.Join(work, "repoA")
	gitInit(t, repoPath)
	ctx := context.Background()

	sess := newTestSession(t, work)
	builder := NewBuilder(testShadowOpts(), nil)
	coord := NewCoordinator(testShadowOpts(), nil)

	sess.conv.PushUser("please edit a.txt")
	cp, err := builder.Create(ctx, sess, "t1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	msgID, _ := sess.conv.PushToolUse("u1", "edit", map[string]any{"path": "a.txt"})

	// The tool mutates the file
	filePath := filepath.Join(repoPath, "a.txt")
	if err := os.WriteFile(filePath, []byte("v2"), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	sess.conv.PushToolResult("u1", "edited", false)

	record, err := coord.Rollback(ctx, sess, msgID)
	if err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}

	if record.RepoCount != 1 {
		t.Errorf("Expected repo count 1, got %d", record.RepoCount)
	}
	if record.PrimarySHA != cp.ShadowCommits[repoPath] {
		t.Errorf("Primary SHA %s != shadow commit %s", record.PrimarySHA, cp.ShadowCommits[repoPath])
	}
	if record.RemovedMessages != 2 {
		t.Errorf("Expected 2 messages removed, got %d", record.RemovedMessages)
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		t.Fatalf("read restored file: %v", err)
	}
	if string(data) != "v1" {
		t.Errorf("Expected restored content 'v1', got '%s'", data)
	}

	if sess.conv.Len() != 1 {
		t.Errorf("Expected 1 message left, got %d", sess.conv.Len())
	}
}

func TestRollback_PartialFailure(t *testing.T) {
	work := t.TempDir()
	repoA := filepath.Join(work, "repoA")
	repoB := filepath.Join(work, "repoB")
	gitInit(t, repoA)
	gitInit(t, repoB)
	ctx := context.Background()

	sess := newTestSession(t, work)
	builder := NewBuilder(testShadowOpts(), nil)
	coord := NewCoordinator(testShadowOpts(), nil)

	if _, err := builder.Create(ctx, sess, "t1"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	msgID, _ := sess.conv.PushUser("mutate both")

	if err := os.WriteFile(filepath.Join(repoA, "a.txt"), []byte("v2"), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	// Delete repoB's shadow out from under the session
	if err := os.RemoveAll(filepath.Join(repoB, ".rewind")); err != nil {
		t.Fatalf("remove shadow: %v", err)
	}

	record, err := coord.Rollback(ctx, sess, msgID)
	if err == nil {
		t.Fatal("Expected partial rollback error")
	}

	var partialErr *PartialRollbackError
	if !errors.As(err, &partialErr) {
		t.Fatalf("Expected *PartialRollbackError, got %T: %v", err, err)
	}
	if _, ok := partialErr.Restored[repoA]; !ok {
		t.Error("repoA should be in the restored set")
	}
	if _, ok := partialErr.Failed[repoB]; !ok {
		t.Error("repoB should be in the failed set")
	}

	if record == nil {
		t.Fatal("Partial rollback should still return a record")
	}
	if record.RepoCount != 1 {
		t.Errorf("Expected 1 restored repo, got %d", record.RepoCount)
	}

	// repoA's tree was actually restored
	data, err := os.ReadFile(filepath.Join(repoA, "a.txt"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if string(data) != "v1" {
		t.Errorf("Expected repoA restored to 'v1', got '%s'", data)
	}

	// History is truncated even on partial failure
	if sess.conv.Len() != 0 {
		t.Errorf("Expected truncated history, got %d messages", sess.conv.Len())
	}
}

func TestRollback_AbortSkipsTruncation(t *testing.T) {
	work := t.TempDir()
	repoPath := filepath.Join(work, "repoA")
	gitInit(t, repoPath)
	ctx := context.Background()

	sess := newTestSession(t, work)
	builder := NewBuilder(testShadowOpts(), nil)
	coord := NewCoordinator(testShadowOpts(), nil)

	if _, err := builder.Create(ctx, sess, "t1"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	msgID, _ := sess.conv.PushUser("mutate")
	if err := os.WriteFile(filepath.Join(repoPath, "a.txt"), []byte("v2"), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	sess.aborted = true
	record, err := coord.Rollback(ctx, sess, msgID)
	if err != nil {
		t.Fatalf("Aborted rollback should not error: %v", err)
	}
	if !record.Aborted {
		t.Error("Expected aborted record")
	}
	if record.RepoCount != 0 {
		t.Errorf("Abort before first repo should restore nothing, got %d", record.RepoCount)
	}

	// History must keep matching the un-restored working tree
	if record.RemovedMessages != 0 {
		t.Errorf("Aborted rollback must not truncate history, removed %d", record.RemovedMessages)
	}
	if sess.conv.Len() != 1 {
		t.Errorf("Expected history untouched, got %d messages", sess.conv.Len())
	}

	data, err := os.ReadFile(filepath.Join(repoPath, "a.txt"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if string(data) != "v2" {
		t.Errorf("Aborted rollback must leave the working tree alone, got '%s'", data)
	}
}

func TestRollback_AllReposFailed(t *testing.T) {
	work := t.TempDir()
	repoA := filepath.Join(work, "repoA")
	repoB := filepath.Join(work, "repoB")
	gitInit(t, repoA)
	gitInit(t, repoB)
	ctx := context.Background()

	sess := newTestSession(t, work)
	builder := NewBuilder(testShadowOpts(), nil)
	coord := NewCoordinator(testShadowOpts(), nil)

	if _, err := builder.Create(ctx, sess, "t1"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	msgID, _ := sess.conv.PushUser("mutate both")

	for _, repo := range []string{repoA, repoB} {
		if err := os.RemoveAll(filepath.Join(repo, ".rewind")); err != nil {
			t.Fatalf("remove shadow: %v", err)
		}
	}

	record, err := coord.Rollback(ctx, sess, msgID)
	var partialErr *PartialRollbackError
	if !errors.As(err, &partialErr) {
		t.Fatalf("Expected *PartialRollbackError, got %T: %v", err, err)
	}
	if len(partialErr.Restored) != 0 {
		t.Errorf("Expected no restored repos, got %v", partialErr.Restored)
	}
	if len(partialErr.Failed) != 2 {
		t.Errorf("Expected 2 failed repos, got %v", partialErr.Failed)
	}
	if !strings.Contains(err.Error(), "failed for all 2 repositories") {
		t.Errorf("Total failure should read as such, got: %v", err)
	}
	if record == nil || record.RepoCount != 0 {
		t.Fatalf("Expected a record with 0 restored repos, got %+v", record)
	}
}

func TestRollback_NoCheckpoint(t *testing.T) {
	sess := newTestSession(t, t.TempDir())
	coord := NewCoordinator(testShadowOpts(), nil)

	msgID, _ := sess.conv.PushUser("first message, no checkpoint yet")

	_, err := coord.Rollback(context.Background(), sess, msgID)
	var noCheckpoint *NoCheckpointError
	if !errors.As(err, &noCheckpoint) {
		t.Fatalf("Expected *NoCheckpointError, got %v", err)
	}
	if noCheckpoint.MessageID != msgID {
		t.Errorf("Expected message id %s, got %s", msgID, noCheckpoint.MessageID)
	}
}

func TestRollback_MessageNotFound(t *testing.T) {
	sess := newTestSession(t, t.TempDir())
	coord := NewCoordinator(testShadowOpts(), nil)

	_, err := coord.Rollback(context.Background(), sess, "no-such-message")
	if err == nil {
		t.Fatal("Expected error for unknown message")
	}
	// conversation.ErrMessageNotFound passes through unchanged
	if !errors.Is(err, conversation.ErrMessageNotFound) {
		t.Errorf("Expected ErrMessageNotFound, got %v", err)
	}
}

func TestRollback_ZeroRepos(t *testing.T) {
	sess := newTestSession(t, t.TempDir())
	builder := NewBuilder(testShadowOpts(), nil)
	coord := NewCoordinator(testShadowOpts(), nil)
	ctx := context.Background()

	if _, err := builder.Create(ctx, sess, "t1"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	msgID, _ := sess.conv.PushUser("nothing tracked")

	record, err := coord.Rollback(ctx, sess, msgID)
	if err != nil {
		t.Fatalf("Zero-repo rollback should succeed: %v", err)
	}
	if record.RepoCount != 0 {
		t.Errorf("Expected repo count 0, got %d", record.RepoCount)
	}
	if record.PrimarySHA != "" {
		t.Errorf("Expected empty primary SHA, got '%s'", record.PrimarySHA)
	}
}

func TestRollback_EmitsCompletedEvent(t *testing.T) {
	work := t.TempDir()
	gitInit(t, filepath.Join(work, "repoA"))
	ctx := context.Background()

	hub := eventhub.New()
	defer hub.Close()

	sess := newTestSession(t, work)
	builder := NewBuilder(testShadowOpts(), nil)
	coord := NewCoordinator(testShadowOpts(), hub)

	if _, err := builder.Create(ctx, sess, "t1"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	msgID, _ := sess.conv.PushUser("roll me back")

	events, cancel := hub.Subscribe(4)
	defer cancel()

	if _, err := coord.Rollback(ctx, sess, msgID); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Type != eventhub.EventRollbackCompleted {
			t.Errorf("Expected %s, got %s", eventhub.EventRollbackCompleted, ev.Type)
		}
		if _, ok := ev.Payload.(*RollbackRecord); !ok {
			t.Errorf("Expected *RollbackRecord payload, got %T", ev.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for rollback-completed event")
	}
}

func TestRollbackState_Detached(t *testing.T) {
	work := t.TempDir()
	repoPath := filepath.Join(work, "repoA")
	gitInit(t, repoPath)
	ctx := context.Background()

	sess := newTestSession(t, work)
	builder := NewBuilder(testShadowOpts(), nil)

	if _, err := builder.Create(ctx, sess, "t1"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	msgID, _ := sess.conv.PushUser("detached rollback")

	if err := os.WriteFile(filepath.Join(repoPath, "a.txt"), []byte("v2"), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	// No coordinator, no hub: pure state-in, record-out
	record, err := RollbackState(ctx, sess, msgID, testShadowOpts())
	if err != nil {
		t.Fatalf("RollbackState failed: %v", err)
	}
	if record.RepoCount != 1 {
		t.Errorf("Expected repo count 1, got %d", record.RepoCount)
	}

	data, _ := os.ReadFile(filepath.Join(repoPath, "a.txt"))
	if string(data) != "v1" {
		t.Errorf("Expected restored 'v1', got '%s'", data)
	}
}
