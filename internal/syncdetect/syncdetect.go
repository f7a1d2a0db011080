package syncdetect

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/corpusd/corpusd/pkg/types"
)

// Plan describes the work a sync run must do for one source.
type Plan struct {
	// CurrentCommit is the HEAD commit the plan was computed against.
	CurrentCommit string

	// FullSync is set on the first run of a source, when every tracked
	// file lands in Added.
	FullSync bool

	Added    []string
	Modified []string
	Deleted  []string
}

// Empty reports whether the plan contains no work.
func (p *Plan) Empty() bool {
	return len(p.Added) == 0 && len(p.Modified) == 0 && len(p.Deleted) == 0
}

// Detector computes sync plans for one git repository.
type Detector struct {
	root string

	// Filter restricts detection to matching paths. Nil accepts all.
	Filter func(path string) bool
}

// NewDetector creates a detector rooted at the given repository path.
func NewDetector(repoRoot string) *Detector {
	return &Detector{root: repoRoot}
}

// IsGitRepo reports whether the detector root is inside a git work tree.
func (d *Detector) IsGitRepo(ctx context.Context) bool {
	_, err := d.git(ctx, "rev-parse", "--show-toplevel")
	return err == nil
}

// Head returns the current HEAD commit hash.
func (d *Detector) Head(ctx context.Context) (string, error) {
	out, err := d.git(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Detect computes the plan relative to lastCommit. An empty lastCommit
// requests a full sync of every tracked file. A lastCommit that cannot be
// diffed yields types.ErrFullResyncRequired.
func (d *Detector) Detect(ctx context.Context, lastCommit string) (*Plan, error) {
	head, err := d.Head(ctx)
	if err != nil {
		return nil, err
	}

	if lastCommit == "" {
		files, err := d.trackedFiles(ctx)
		if err != nil {
			return nil, err
		}
		return &Plan{
			CurrentCommit: head,
			FullSync:      true,
			Added:         d.filter(files),
		}, nil
	}

	plan := &Plan{CurrentCommit: head}
	if lastCommit == head {
		return plan, nil
	}

	out, err := d.git(ctx, "diff", "--name-status", lastCommit, head)
	if err != nil {
		// The recorded commit is gone (rebase, force push, shallow
		// clone). Guessing here could strand stale chunks, so demand an
		// explicit full resync.
		return nil, fmt.Errorf("cannot diff %s..%s: %w", shortCommit(lastCommit), shortCommit(head), types.ErrFullResyncRequired)
	}

	if err := parseNameStatus(out, plan); err != nil {
		return nil, err
	}
	plan.Added = d.filter(plan.Added)
	plan.Modified = d.filter(plan.Modified)
	plan.Deleted = d.filter(plan.Deleted)
	return plan, nil
}

// parseNameStatus fills the plan from `git diff --name-status` output.
// Lines are tab-separated: status, path, and for renames/copies a second
// path.
func parseNameStatus(out []byte, plan *Plan) error {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			continue
		}
		status := fields[0]

		switch status[0] {
		case 'A':
			plan.Added = append(plan.Added, fields[1])
		case 'M', 'T':
			plan.Modified = append(plan.Modified, fields[1])
		case 'D':
			plan.Deleted = append(plan.Deleted, fields[1])
		case 'R':
			// Rename: old path disappears, new path is ingested fresh
			if len(fields) >= 3 {
				plan.Deleted = append(plan.Deleted, fields[1])
				plan.Added = append(plan.Added, fields[2])
			}
		case 'C':
			if len(fields) >= 3 {
				plan.Added = append(plan.Added, fields[2])
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to parse git diff output: %w", err)
	}
	return nil
}

// trackedFiles returns every file tracked by git.
func (d *Detector) trackedFiles(ctx context.Context) ([]string, error) {
	out, err := d.git(ctx, "ls-files")
	if err != nil {
		return nil, fmt.Errorf("git ls-files failed: %w", err)
	}

	var files []string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		path := strings.TrimSpace(scanner.Text())
		if path != "" {
			files = append(files, path)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse git ls-files: %w", err)
	}
	return files, nil
}

func (d *Detector) filter(paths []string) []string {
	if d.Filter == nil {
		return paths
	}
	var kept []string
	for _, p := range paths {
		if d.Filter(p) {
			kept = append(kept, p)
		}
	}
	return kept
}

func (d *Detector) git(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = d.root
	return cmd.Output()
}

// IsGitInstalled checks if git is available on the system.
func IsGitInstalled(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, "git", "--version")
	return cmd.Run() == nil
}

func shortCommit(c string) string {
	if len(c) > 8 {
		return c[:8]
	}
	return c
}
