package tools

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrFileNotFound is returned when an edit targets a file that is missing.
var ErrFileNotFound = errors.New("file does not exist")

// Change is one original/new pair of a modify_file action.
type Change struct {
	Original string
	New      string
}

// ModifyResult describes what ModifyFile did.
type ModifyResult struct {
	Path     string
	Applied  int
	Warnings []string
	Before   string
	After    string
}

// Written reports whether the file was rewritten.
func (r ModifyResult) Written() bool {
	return r.Applied > 0
}

// ModifyFile replaces the first occurrence of each change's Original text.
// Changes whose text is missing are skipped with a warning. The file is
// written only if at least one change applied.
func ModifyFile(filePath string, changes []Change) (ModifyResult, error) {
	result := ModifyResult{Path: filepath.Clean(filePath)}
	data, mode, err := readExisting(result.Path)
	if err != nil {
		return result, err
	}
	content := string(data)
	result.Before = content

	for i, c := range changes {
		if c.Original == "" || !strings.Contains(content, c.Original) {
			result.Warnings = append(result.Warnings, fmt.Sprintf("change %d: could not find text to replace in %s", i+1, result.Path))
			continue
		}
		content = strings.Replace(content, c.Original, c.New, 1)
		result.Applied++
	}
	result.After = content

	if result.Applied == 0 {
		return result, nil
	}
	if err := os.WriteFile(result.Path, []byte(content), mode.Perm()); err != nil {
		return result, fmt.Errorf("failed to write file %s: %w", result.Path, err)
	}
	return result, nil
}

// EditResult describes what EditFile did.
type EditResult struct {
	Path    string
	Created bool
	Applied bool
	Warning string
	Before  string
	After   string
}

// PlanEdit computes the outcome of a search/replace edit without touching
// the file, so callers can preview it. An empty search appends replace;
// a missing file becomes a new file containing replace.
func PlanEdit(filePath, search, replace string) (EditResult, error) {
	result := EditResult{Path: filepath.Clean(filePath)}
	data, err := os.ReadFile(result.Path)
	if err != nil {
		if !os.IsNotExist(err) {
			return result, fmt.Errorf("failed to read file %s: %w", result.Path, err)
		}
		result.Created = true
		result.Applied = true
		result.After = replace
		return result, nil
	}
	content := string(data)
	result.Before = content

	switch {
	case search == "":
		result.After = content + replace
		result.Applied = true
	case strings.Contains(content, search):
		result.After = strings.Replace(content, search, replace, 1)
		result.Applied = true
	default:
		result.After = content
		result.Warning = fmt.Sprintf("search text not found in %s", result.Path)
	}
	return result, nil
}

// EditFile applies a search/replace edit. A missing search text is reported
// through EditResult.Warning, not as an error.
func EditFile(filePath, search, replace string) (EditResult, error) {
	result, err := PlanEdit(filePath, search, replace)
	if err != nil || !result.Applied {
		return result, err
	}
	return result, CommitEdit(result)
}

// CommitEdit writes a previously planned edit.
func CommitEdit(result EditResult) error {
	if !result.Applied {
		return nil
	}
	if result.Created {
		if dir := filepath.Dir(result.Path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
		}
		if err := os.WriteFile(result.Path, []byte(result.After), 0644); err != nil {
			return fmt.Errorf("failed to write file %s: %w", result.Path, err)
		}
		return nil
	}
	_, mode, err := readExisting(result.Path)
	if err != nil {
		return err
	}
	if err := os.WriteFile(result.Path, []byte(result.After), mode.Perm()); err != nil {
		return fmt.Errorf("failed to write file %s: %w", result.Path, err)
	}
	return nil
}

func readExisting(path string) ([]byte, os.FileMode, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, 0, fmt.Errorf("failed to stat file %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, 0, fmt.Errorf("%s is a directory", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return data, info.Mode(), nil
}
