package workspace

import (
	"os"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFile holds extra workspace-specific ignore patterns.
const IgnoreFile = ".xmlagent/ignore"

// GetIgnoreRules combines the agent's own patterns, .gitignore, the
// workspace ignore file and common build and editor artifacts.
func GetIgnoreRules(rootDir string) *ignore.GitIgnore {
	var allLines []string
	allLines = append(allLines, essentialPatterns()...)

	if content, err := os.ReadFile(filepath.Join(rootDir, ".gitignore")); err == nil {
		allLines = append(allLines, strings.Split(string(content), "\n")...)
	}
	if content, err := os.ReadFile(filepath.Join(rootDir, IgnoreFile)); err == nil {
		allLines = append(allLines, strings.Split(string(content), "\n")...)
	}
	allLines = append(allLines, fallbackPatterns()...)

	var filtered []string
	for _, line := range allLines {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			filtered = append(filtered, line)
		}
	}
	return ignore.CompileIgnoreLines(filtered...)
}

// essentialPatterns keep the agent's own state out of the snapshot.
func essentialPatterns() []string {
	return []string{
		".git/",
		".xmlagent/",
		"xmlagent",
	}
}

func fallbackPatterns() []string {
	return []string{
		".DS_Store",
		"Thumbs.db",
		"*.swp",
		"*.swo",
		"*.bak",
		"*.tmp",
		"*.log",
		".idea/",
		".vscode/",
		"build/",
		"dist/",
		"bin/",
		"target/",
		"*.class",
		"*.exe",
		"*.dll",
		"*.so",
		"*.dylib",
		"*.o",
		"*.a",
		"__pycache__/",
		"*.pyc",
		"venv/",
		".venv/",
		".pytest_cache/",
		".mypy_cache/",
		"*.egg-info/",
		"*.test",
		"node_modules/",
		".cache/",
		"coverage/",
		".next/",
	}
}
