// Package vcs guards rewrites of files under version control.
package vcs

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
)

// ErrDirtyWorkingDir is returned when a file has uncommitted changes.
var ErrDirtyWorkingDir = errors.New("working directory has uncommitted changes")

// ErrNotRepository is returned when no git repository encloses a path.
var ErrNotRepository = errors.New("not a git repository")

// Worktree is a snapshot of a repository's working tree status.
type Worktree struct {
	root   string
	status git.Status
}

// Open finds the repository enclosing path and snapshots its status.
func Open(path string) (*Worktree, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	repo, err := git.PlainOpenWithOptions(abs, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%w: %s", ErrNotRepository, path)
		}
		return nil, err
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, err
	}
	status, err := wt.Status()
	if err != nil {
		return nil, err
	}

	root := wt.Filesystem.Root()
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}
	return &Worktree{root: root, status: status}, nil
}

// Root returns the repository's top-level directory.
func (w *Worktree) Root() string {
	return w.root
}

// IsDirty reports whether any tracked file has staged or unstaged changes.
// Untracked files are not considered dirty.
func (w *Worktree) IsDirty() bool {
	for _, s := range w.status {
		if s.Staging == git.Untracked && s.Worktree == git.Untracked {
			continue
		}
		if s.Staging != git.Unmodified || s.Worktree != git.Unmodified {
			return true
		}
	}
	return false
}

// IsFileDirty reports whether path differs from HEAD. Untracked files count
// as dirty here: rewriting them cannot be undone from history. Paths outside
// the repository are never dirty.
func (w *Worktree) IsFileDirty(path string) bool {
	rel, ok := w.relative(path)
	if !ok {
		return false
	}
	s, ok := w.status[rel]
	if !ok {
		return false
	}
	return s.Staging != git.Unmodified || s.Worktree != git.Unmodified
}

// Guard returns a check that rejects dirty files with ErrDirtyWorkingDir.
func (w *Worktree) Guard() func(path string) error {
	return func(path string) error {
		if w.IsFileDirty(path) {
			return fmt.Errorf("%w: %s", ErrDirtyWorkingDir, path)
		}
		return nil
	}
}

func (w *Worktree) relative(path string) (string, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	rel, err := filepath.Rel(w.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
