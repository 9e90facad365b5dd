package git

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// initTestRepo creates a git repository with one commit in a temp dir
func initTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

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

	return dir
}

func TestOpen_NotARepo(t *testing.T) {
	if _, err := Open(t.TempDir()); err == nil {
		t.Error("Expected error opening a non-repository")
	}
}

func TestIsRepo(t *testing.T) {
	dir := initTestRepo(t)
	if !IsRepo(dir) {
		t.Error("Expected IsRepo true for initialized repo")
	}
	if IsRepo(t.TempDir()) {
		t.Error("Expected IsRepo false for plain directory")
	}
}

func TestRepo_HeadAndBranch(t *testing.T) {
	dir := initTestRepo(t)

	repo, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	sha, err := repo.HeadSHA()
	if err != nil {
		t.Fatalf("HeadSHA failed: %v", err)
	}
	if len(sha) != 40 {
		t.Errorf("Expected 40-char SHA, got '%s'", sha)
	}

	branch, err := repo.CurrentBranch()
	if err != nil {
		t.Fatalf("CurrentBranch failed: %v", err)
	}
	if branch != "main" {
		t.Errorf("Expected branch 'main', got '%s'", branch)
	}
}

func TestRepo_IsDirty(t *testing.T) {
	dir := initTestRepo(t)

	repo, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	dirty, err := repo.IsDirty()
	if err != nil {
		t.Fatalf("IsDirty failed: %v", err)
	}
	if dirty {
		t.Error("Fresh commit should leave a clean tree")
	}

	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("v2"), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	dirty, err = repo.IsDirty()
	if err != nil {
		t.Fatalf("IsDirty failed: %v", err)
	}
	if !dirty {
		t.Error("Modified file should make the tree dirty")
	}
}

func TestRepo_GitDir(t *testing.T) {
	dir := initTestRepo(t)

	repo, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	gitDir, err := repo.GitDir()
	if err != nil {
		t.Fatalf("GitDir failed: %v", err)
	}
	if filepath.Base(gitDir) != ".git" {
		t.Errorf("Expected .git dir, got '%s'", gitDir)
	}
}
