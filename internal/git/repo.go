package git

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// Repo represents an existing Git repository opened for inspection.
// The engine never mutates the host repository's history or index.
type Repo struct {
	path string
	repo *gogit.Repository
}

// Open opens a git repository at the given path
func Open(path string) (*Repo, error) {
	repo, err := gogit.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open git repository: %w", err)
	}

	return &Repo{
		path: path,
		repo: repo,
	}, nil
}

// IsRepo reports whether path is the root of a git repository
func IsRepo(path string) bool {
	_, err := gogit.PlainOpen(path)
	return err == nil
}

// Path returns the repository root path
func (r *Repo) Path() string {
	return r.path
}

// HeadSHA returns the commit SHA at HEAD, or "" for a repository with
// no commits yet
func (r *Repo) HeadSHA() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		// Unborn HEAD (fresh repo) is not an error for our purposes
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	return head.Hash().String(), nil
}

// CurrentBranch returns the name of the current branch.
// Uses the git command instead of go-git because go-git doesn't handle
// linked worktrees correctly.
func (r *Repo) CurrentBranch() (string, error) {
	out, err := r.RunGitCommand("rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("failed to get current branch: %w", err)
	}
	if out == "HEAD" {
		return "", fmt.Errorf("HEAD is detached")
	}
	return out, nil
}

// IsDirty reports whether the working tree has uncommitted changes
func (r *Repo) IsDirty() (bool, error) {
	worktree, err := r.repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("failed to get worktree: %w", err)
	}

	status, err := worktree.Status()
	if err != nil {
		return false, fmt.Errorf("failed to get status: %w", err)
	}

	return !status.IsClean(), nil
}

// RemoteURL returns the first URL of the origin remote, or "" when
// no origin is configured
func (r *Repo) RemoteURL() string {
	remote, err := r.repo.Remote("origin")
	if err != nil {
		return ""
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return ""
	}
	return urls[0]
}

// GitDir returns the absolute path of the repository's git directory,
// resolving worktree indirection
func (r *Repo) GitDir() (string, error) {
	out, err := r.RunGitCommand("rev-parse", "--absolute-git-dir")
	if err != nil {
		return "", fmt.Errorf("failed to resolve git dir: %w", err)
	}
	return out, nil
}

// Diff returns the diff output for the repository.
// If cached is true, returns staged changes; otherwise unstaged changes.
func (r *Repo) Diff(cached bool) (string, error) {
	args := []string{"diff"}
	if cached {
		args = append(args, "--cached")
	}
	return r.RunGitCommand(args...)
}

// RunGitCommand executes a git command in the repository and returns
// its trimmed output
func (r *Repo) RunGitCommand(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = r.path

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		return "", fmt.Errorf("git command failed: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}

	return strings.TrimSpace(stdout.String()), nil
}
