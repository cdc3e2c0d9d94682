// Package workspace describes the repository the agent works in.
package workspace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/alantheprice/xmlagent/pkg/utils"
)

// Snapshot lists the files of a repository and its current branch.
type Snapshot struct {
	Files       []string `json:"files"`
	Directories []string `json:"directories"`
	GitInfo     GitInfo  `json:"git_info"`
}

// GitInfo carries the branch, "unknown" outside a git checkout.
type GitInfo struct {
	CurrentBranch string `json:"current_branch"`
}

// Take snapshots root. Tracked files come from git when available;
// otherwise the tree is walked with the ignore rules applied.
func Take(ctx context.Context, root string) (*Snapshot, error) {
	if root == "" {
		root = "."
	}
	snap := &Snapshot{GitInfo: GitInfo{CurrentBranch: "unknown"}}

	files, err := gitLines(ctx, root, "ls-files")
	if err == nil {
		snap.Files = files
	} else {
		utils.GetLogger(true).Logf("git ls-files unavailable in %s, walking the tree: %v", root, err)
		if err := walk(root, snap); err != nil {
			return nil, err
		}
	}

	if branch, err := gitLines(ctx, root, "branch", "--show-current"); err == nil && len(branch) == 1 {
		snap.GitInfo.CurrentBranch = branch[0]
	}
	return snap, nil
}

func gitLines(ctx context.Context, dir string, args ...string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	var lines []string
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

func walk(root string, snap *Snapshot) error {
	rules := GetIgnoreRules(root)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if d.Name() == ".git" || rules.MatchesPath(rel+"/") {
				return filepath.SkipDir
			}
			snap.Directories = append(snap.Directories, rel)
			return nil
		}
		if !rules.MatchesPath(rel) {
			snap.Files = append(snap.Files, rel)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk %s: %w", root, err)
	}
	sort.Strings(snap.Files)
	sort.Strings(snap.Directories)
	return nil
}

// JSON renders the snapshot indented for inclusion in a prompt.
func (s *Snapshot) JSON() string {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}
