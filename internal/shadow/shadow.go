// internal/shadow/shadow.go
package shadow

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Options configures shadow repository creation
type Options struct {
	// DirPrefix is the hidden directory created inside the host repository
	// that holds per-session shadow git dirs
	DirPrefix string
	// ExcludedDirs are directory names never staged into snapshots and
	// left untouched by Restore
	ExcludedDirs []string
}

// DefaultOptions returns the standard shadow configuration
func DefaultOptions() Options {
	return Options{
		DirPrefix: ".rewind",
		ExcludedDirs: []string{
			".rewind",
			"node_modules",
			"vendor",
			"target",
			"dist",
			"build",
			".venv",
			"__pycache__",
		},
	}
}

// Shadow is a hidden git repository mirroring one host repository's
// working tree for a single session. It owns a bare git dir nested under
// the host repository and uses the host working tree as its work tree,
// so the host repository's own history and index are never touched.
type Shadow struct {
	repoPath  string
	gitDir    string
	sessionID string
	opts      Options
}

// Ensure idempotently creates the shadow repository for (repoPath, session).
// The shadow directory is registered in the host repository's local exclude
// file so it stays invisible to the host's status and diff operations.
func Ensure(repoPath, sessionID string, opts Options) (*Shadow, error) {
	if opts.DirPrefix == "" {
		opts = DefaultOptions()
	}

	hostGitDir, err := gitOutput(context.Background(), repoPath, nil, "rev-parse", "--absolute-git-dir")
	if err != nil {
		return nil, &InitError{RepoPath: repoPath, Err: fmt.Errorf("not inside a git repository: %w", err)}
	}

	s := &Shadow{
		repoPath:  repoPath,
		gitDir:    filepath.Join(repoPath, opts.DirPrefix, sessionID),
		sessionID: sessionID,
		opts:      opts,
	}

	if !s.initialized() {
		if err := os.MkdirAll(s.gitDir, 0755); err != nil {
			return nil, &InitError{RepoPath: repoPath, Err: err}
		}
		if _, err := gitOutput(context.Background(), repoPath, nil, "init", "--bare", "--quiet", s.gitDir); err != nil {
			return nil, &InitError{RepoPath: repoPath, Err: err}
		}
		// The shadow always operates with an explicit work tree
		if _, err := gitOutput(context.Background(), repoPath, nil, "--git-dir", s.gitDir, "config", "core.bare", "false"); err != nil {
			return nil, &InitError{RepoPath: repoPath, Err: err}
		}
	}

	if err := s.writeExcludeFile(); err != nil {
		return nil, &InitError{RepoPath: repoPath, Err: err}
	}

	if err := appendExcludeEntry(hostGitDir, opts.DirPrefix+"/"); err != nil {
		return nil, &InitError{RepoPath: repoPath, Err: err}
	}

	return s, nil
}

// initialized reports whether the shadow git dir already exists
func (s *Shadow) initialized() bool {
	_, err := os.Stat(filepath.Join(s.gitDir, "HEAD"))
	return err == nil
}

// RepoPath returns the host repository path this shadow mirrors
func (s *Shadow) RepoPath() string {
	return s.repoPath
}

// GitDir returns the shadow's git directory
func (s *Shadow) GitDir() string {
	return s.gitDir
}

// SessionID returns the owning session id
func (s *Shadow) SessionID() string {
	return s.sessionID
}

// Snapshot stages the entire working tree (minus exclusions) and commits
// it, returning the commit SHA. A commit is created even when nothing
// changed: rollback correctness depends on every checkpoint having a
// retrievable commit, not on minimizing commit count.
func (s *Shadow) Snapshot(ctx context.Context) (string, error) {
	if _, err := s.git(ctx, "add", "-A", "."); err != nil {
		return "", fmt.Errorf("failed to stage working tree: %w", err)
	}

	msg := fmt.Sprintf("snapshot %s", time.Now().UTC().Format(time.RFC3339))
	if _, err := s.git(ctx, "commit", "--quiet", "--allow-empty", "-m", msg); err != nil {
		return "", fmt.Errorf("failed to commit snapshot: %w", err)
	}

	sha, err := s.git(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("failed to resolve snapshot commit: %w", err)
	}

	return sha, nil
}

// HasCommit reports whether a commit exists in the shadow repository
func (s *Shadow) HasCommit(ctx context.Context, commitSHA string) bool {
	_, err := s.git(ctx, "cat-file", "-e", commitSHA+"^{commit}")
	return err == nil
}

// Bundle serializes a shadow commit and its history into a portable,
// self-contained git bundle
func (s *Shadow) Bundle(ctx context.Context, commitSHA string) ([]byte, error) {
	if !s.HasCommit(ctx, commitSHA) {
		return nil, fmt.Errorf("commit %s not found in shadow repository", commitSHA)
	}

	// git bundle only accepts refs, so pin the commit under a named ref
	ref := "refs/checkpoints/" + commitSHA
	if _, err := s.git(ctx, "update-ref", ref, commitSHA); err != nil {
		return nil, fmt.Errorf("failed to pin bundle ref: %w", err)
	}

	tmp, err := os.CreateTemp("", "rewind-bundle-*.bundle")
	if err != nil {
		return nil, fmt.Errorf("failed to create bundle temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if _, err := s.git(ctx, "bundle", "create", tmpPath, ref); err != nil {
		return nil, fmt.Errorf("failed to create bundle: %w", err)
	}

	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle: %w", err)
	}

	return data, nil
}

// Restore forces the host working tree to exactly match the content of
// commitSHA. Excluded directories are left untouched, so dependency trees
// survive a rollback. Files created after the snapshot are removed.
func (s *Shadow) Restore(ctx context.Context, commitSHA string) error {
	if !s.HasCommit(ctx, commitSHA) {
		return &RestoreError{
			RepoPath:  s.repoPath,
			CommitSHA: commitSHA,
			Err:       fmt.Errorf("commit not found in shadow repository"),
		}
	}

	if _, err := s.git(ctx, "checkout", "--quiet", "--force", commitSHA); err != nil {
		return &RestoreError{RepoPath: s.repoPath, CommitSHA: commitSHA, Err: err}
	}

	// Remove files that did not exist at the snapshot. clean honors the
	// shadow's exclude file, keeping excluded directories in place.
	if _, err := s.git(ctx, "clean", "-qfd"); err != nil {
		return &RestoreError{RepoPath: s.repoPath, CommitSHA: commitSHA, Err: err}
	}

	return nil
}

// writeExcludeFile writes the fixed exclusion set into the shadow's
// info/exclude so staging and clean skip those directories
func (s *Shadow) writeExcludeFile() error {
	infoDir := filepath.Join(s.gitDir, "info")
	if err := os.MkdirAll(infoDir, 0755); err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString(s.opts.DirPrefix + "/\n")
	for _, dir := range s.opts.ExcludedDirs {
		if dir == s.opts.DirPrefix {
			continue
		}
		b.WriteString(dir + "/\n")
	}

	return os.WriteFile(filepath.Join(infoDir, "exclude"), []byte(b.String()), 0644)
}

// appendExcludeEntry adds an entry to the host repository's local exclude
// file if it is not already present
func appendExcludeEntry(hostGitDir, entry string) error {
	infoDir := filepath.Join(hostGitDir, "info")
	if err := os.MkdirAll(infoDir, 0755); err != nil {
		return err
	}

	excludePath := filepath.Join(infoDir, "exclude")
	data, err := os.ReadFile(excludePath)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == entry {
			return nil
		}
	}

	f, err := os.OpenFile(excludePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if len(data) > 0 && !strings.HasSuffix(string(data), "\n") {
		if _, err := f.WriteString("\n"); err != nil {
			return err
		}
	}
	_, err = f.WriteString(entry + "\n")
	return err
}

// git runs a git command against the shadow git dir with the host
// working tree
func (s *Shadow) git(ctx context.Context, args ...string) (string, error) {
	full := append([]string{"--git-dir", s.gitDir, "--work-tree", s.repoPath}, args...)
	return gitOutput(ctx, s.repoPath, shadowEnv(), full...)
}

// gitOutput runs a git command in dir and returns its trimmed stdout
func gitOutput(ctx context.Context, dir string, env []string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	if env != nil {
		cmd.Env = env
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w, stderr: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}

	return strings.TrimSpace(stdout.String()), nil
}

// shadowEnv returns the environment for shadow git commands, with a fixed
// committer identity so snapshots work without user-level git config
func shadowEnv() []string {
	return append(os.Environ(),
		"GIT_AUTHOR_NAME=rewind",
		"GIT_AUTHOR_EMAIL=rewind@localhost",
		"GIT_COMMITTER_NAME=rewind",
		"GIT_COMMITTER_EMAIL=rewind@localhost",
		"GIT_CONFIG_NOSYSTEM=1",
	)
}
