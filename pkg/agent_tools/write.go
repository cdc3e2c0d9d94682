package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ScriptExtension is the extension of the interpreter scripts the agent
// writes; files with it, or with no extension, are made executable.
var ScriptExtension = ".py"

// IsExecutableTarget reports whether a created file should get mode 0755.
func IsExecutableTarget(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == "" || ext == ScriptExtension
}

// CreateFile writes content to path, creating parent directories as needed.
// Scripts and extensionless files are marked executable.
func CreateFile(filePath, content string) (string, error) {
	if filePath == "" {
		return "", fmt.Errorf("empty file path provided")
	}
	cleanPath := filepath.Clean(filePath)

	dir := filepath.Dir(cleanPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	if err := os.WriteFile(cleanPath, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write file %s: %w", cleanPath, err)
	}

	if IsExecutableTarget(cleanPath) {
		if err := os.Chmod(cleanPath, 0755); err != nil {
			return "", fmt.Errorf("failed to make %s executable: %w", cleanPath, err)
		}
		return fmt.Sprintf("Created file %s (%d bytes, executable)", cleanPath, len(content)), nil
	}
	return fmt.Sprintf("Created file %s (%d bytes)", cleanPath, len(content)), nil
}
