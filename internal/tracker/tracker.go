// internal/tracker/tracker.go
package tracker

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/qckfx/rewind/internal/eventhub"
	"github.com/qckfx/rewind/internal/git"
	"github.com/qckfx/rewind/internal/watcher"
)

// Record describes one tracked repository
type Record struct {
	Path      string `json:"path"`
	Branch    string `json:"branch,omitempty"`
	HeadSHA   string `json:"head_sha,omitempty"`
	Dirty     bool   `json:"dirty"`
	RemoteURL string `json:"remote_url,omitempty"`
}

// CheckpointSummary is the lightweight record of the most recent
// checkpoint, kept for introspection without reloading the full checkpoint
type CheckpointSummary struct {
	ID              string            `json:"id"`
	ToolExecutionID string            `json:"tool_execution_id"`
	CreatedAt       time.Time         `json:"created_at"`
	RepoCount       int               `json:"repo_count"`
	HostCommits     map[string]string `json:"host_commits"`
}

// Info summarizes the tracker state
type Info struct {
	Discovered     bool               `json:"discovered"`
	RepoCount      int                `json:"repo_count"`
	Paths          []string           `json:"paths"`
	LastCheckpoint *CheckpointSummary `json:"last_checkpoint,omitempty"`
}

// Tracker discovers and maintains the set of git repositories under a
// session's working directory. Discovery runs once, lazily, and is cached;
// a tool running `git init` mid-session is not picked up automatically.
// The Tracker is owned by one session and is not safe for concurrent use,
// matching the one-query-at-a-time session model.
type Tracker struct {
	workingDir string
	maxDepth   int
	excluded   []string

	discovered     bool
	records        []Record
	lastCheckpoint *CheckpointSummary

	watch *watcher.Watcher
}

// New creates a tracker for a working directory. maxDepth bounds the
// discovery walk; excluded directory names are skipped entirely.
func New(workingDir string, maxDepth int, excluded []string) *Tracker {
	if maxDepth <= 0 {
		maxDepth = 4
	}
	return &Tracker{
		workingDir: workingDir,
		maxDepth:   maxDepth,
		excluded:   excluded,
	}
}

// Discover walks the working directory for git roots, reading branch,
// head and dirty state for each. Results are cached; later calls return
// the cached set.
func (t *Tracker) Discover() ([]Record, error) {
	if t.discovered {
		return t.records, nil
	}

	root, err := filepath.Abs(t.workingDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve working dir: %w", err)
	}

	var roots []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped, not fatal
			if path == root {
				return err
			}
			return fs.SkipDir
		}
		if !d.IsDir() {
			return nil
		}
		if path != root {
			if t.isExcluded(d.Name()) {
				return fs.SkipDir
			}
			if depth(root, path) > t.maxDepth {
				return fs.SkipDir
			}
		}
		if _, statErr := os.Stat(filepath.Join(path, ".git")); statErr == nil {
			roots = append(roots, path)
			// Do not descend into a repository looking for more
			return fs.SkipDir
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}

	records := make([]Record, 0, len(roots))
	for _, repoRoot := range roots {
		records = append(records, readRecord(repoRoot))
	}

	t.records = records
	t.discovered = true
	return t.records, nil
}

// readRecord inspects one repository, tolerating partial reads (a fresh
// repo has no branch or head yet)
func readRecord(root string) Record {
	rec := Record{Path: root}

	repo, err := git.Open(root)
	if err != nil {
		return rec
	}

	if branch, err := repo.CurrentBranch(); err == nil {
		rec.Branch = branch
	}
	if sha, err := repo.HeadSHA(); err == nil {
		rec.HeadSHA = sha
	}
	if dirty, err := repo.IsDirty(); err == nil {
		rec.Dirty = dirty
	}
	rec.RemoteURL = repo.RemoteURL()

	return rec
}

// Count returns the number of tracked repositories, 0 when discovery
// has not run
func (t *Tracker) Count() int {
	return len(t.records)
}

// Paths returns tracked repository paths in discovery order
func (t *Tracker) Paths() []string {
	paths := make([]string, len(t.records))
	for i, r := range t.records {
		paths[i] = r.Path
	}
	return paths
}

// Records returns the tracked repository records
func (t *Tracker) Records() []Record {
	out := make([]Record, len(t.records))
	copy(out, t.records)
	return out
}

// RecordCheckpoint stores the latest checkpoint summary and refreshes
// each record's head SHA from the checkpoint's host commit map
func (t *Tracker) RecordCheckpoint(summary CheckpointSummary) {
	t.lastCheckpoint = &summary
	for i := range t.records {
		if sha, ok := summary.HostCommits[t.records[i].Path]; ok {
			t.records[i].HeadSHA = sha
		}
	}
}

// LastCheckpoint returns the most recent checkpoint summary, or nil
func (t *Tracker) LastCheckpoint() *CheckpointSummary {
	return t.lastCheckpoint
}

// Info returns a snapshot of tracker state
func (t *Tracker) Info() Info {
	return Info{
		Discovered:     t.discovered,
		RepoCount:      t.Count(),
		Paths:          t.Paths(),
		LastCheckpoint: t.lastCheckpoint,
	}
}

// Watch starts a debounced watcher over every tracked repository's git
// dir, emitting repo:changed events through the hub. Discovery must have
// run first. Watching is advisory: it flags staleness, it never triggers
// re-discovery.
func (t *Tracker) Watch(hub *eventhub.Hub, sessionID string, debounce time.Duration) error {
	if t.watch != nil {
		return nil
	}
	if len(t.records) == 0 {
		return nil
	}

	w, err := watcher.New(filepath.Join(t.records[0].Path, ".git"), debounce, func(e watcher.Event) {
		rec := t.recordForEventPath(e.Path)
		if rec == nil {
			return
		}
		fresh := readRecord(rec.Path)
		hub.EmitRepoChanged(sessionID, eventhub.RepoChangedEvent{
			Path:   fresh.Path,
			Branch: fresh.Branch,
			Dirty:  fresh.Dirty,
		})
	})
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", t.records[0].Path, err)
	}

	for _, rec := range t.records[1:] {
		if err := w.AddPath(filepath.Join(rec.Path, ".git")); err != nil {
			w.Close()
			return fmt.Errorf("failed to watch %s: %w", rec.Path, err)
		}
	}

	if err := w.Start(); err != nil {
		w.Close()
		return err
	}

	t.watch = w
	return nil
}

// recordForEventPath maps a watcher event path back to its repository
func (t *Tracker) recordForEventPath(path string) *Record {
	for i := range t.records {
		if strings.HasPrefix(path, t.records[i].Path+string(filepath.Separator)) {
			return &t.records[i]
		}
	}
	return nil
}

// Close stops the repository watcher if one is running
func (t *Tracker) Close() {
	if t.watch != nil {
		t.watch.Close()
		t.watch = nil
	}
}

// isExcluded reports whether a directory name is skipped during discovery
func (t *Tracker) isExcluded(name string) bool {
	for _, d := range t.excluded {
		if name == d {
			return true
		}
	}
	return false
}

// depth counts path components between root and path
func depth(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}
