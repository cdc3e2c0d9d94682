package tools

import (
	"regexp"
	"strings"
)

// DangerousPatterns are substrings that disqualify a command from running
// without confirmation. Matching is literal and deliberately broad: "su"
// also rejects any command merely containing those letters.
var DangerousPatterns = []string{
	"rm -rf", "rm -r", "rmdir",
	"dd", "> /dev/", "mkfs",
	"fdisk", "format", "chmod -R",
	"chown -R", ":(){:|:&};:",
	"wget", "curl", "> /etc/",
	"> ~/.ssh/", "sudo", "su",
	"shutdown", "reboot", "halt",
	"mv /* ", "find / -delete",
}

// SafePrefixes are command prefixes that may run unattended once no
// dangerous pattern matched.
var SafePrefixes = []string{
	"ls", "dir", "echo", "cat", "head", "tail",
	"pwd", "cd", "mkdir", "touch",
	"grep", "find", "wc", "sort", "uniq",
	"git status", "git log", "git branch", "git diff",
	"python", "python3", "pip", "pip3",
	"pytest", "npm test", "npm run",
	"ps", "top", "htop", "df", "du",
}

// DestructiveCommand represents a potentially destructive command
type DestructiveCommand struct {
	Pattern     string
	Description string
	RiskLevel   string // "high", "medium", "low"
	re          *regexp.Regexp
}

// DestructiveCommands is a list of patterns that match potentially destructive commands
var DestructiveCommands = compileDestructive([]DestructiveCommand{
	// High risk - irreversible data loss
	{Pattern: `^\s*rm\s+-rf?\s+`, Description: "Recursive file deletion", RiskLevel: "high"},
	{Pattern: `^\s*rm\s+-fr\s+`, Description: "Recursive file deletion", RiskLevel: "high"},
	{Pattern: `^\s*rm\s+.*\*`, Description: "Wildcard file deletion", RiskLevel: "high"},
	{Pattern: `^\s*rmdir\s+.*/`, Description: "Directory deletion", RiskLevel: "high"},
	{Pattern: `^\s*dd\s+`, Description: "Disk/device manipulation", RiskLevel: "high"},
	{Pattern: `^\s*mkfs(\.\w+)?\s+`, Description: "Filesystem creation", RiskLevel: "high"},
	{Pattern: `^\s*mv\s+.*\s+/dev/null`, Description: "Redirect to /dev/null", RiskLevel: "high"},
	{Pattern: `^\s*>\s+.*`, Description: "File truncation/overwrite", RiskLevel: "high"},
	{Pattern: `:\(\)\s*\{\s*:\|:&\s*\};:`, Description: "Fork bomb", RiskLevel: "high"},

	// Medium risk - data modification
	{Pattern: `^\s*sudo\s+`, Description: "Privilege escalation", RiskLevel: "medium"},
	{Pattern: `^\s*git\s+checkout\s+`, Description: "Git checkout (potential data loss)", RiskLevel: "medium"},
	{Pattern: `^\s*git\s+reset\s+--hard`, Description: "Hard git reset", RiskLevel: "medium"},
	{Pattern: `^\s*git\s+clean\s+-fd`, Description: "Git clean with force", RiskLevel: "medium"},
	{Pattern: `^\s*chmod\s+(-R\s+)?[0-7]{3,4}\s+`, Description: "File permission changes", RiskLevel: "medium"},
	{Pattern: `^\s*chown\s+`, Description: "File ownership changes", RiskLevel: "medium"},
	{Pattern: `(curl|wget)\s+.*\|\s*(ba|z)?sh`, Description: "Piping a download into a shell", RiskLevel: "medium"},

	// Low risk - system operations
	{Pattern: `^\s*kill\s+`, Description: "Process termination", RiskLevel: "low"},
	{Pattern: `^\s*pkill\s+`, Description: "Process termination by name", RiskLevel: "low"},
	{Pattern: `^\s*reboot\b`, Description: "System reboot", RiskLevel: "low"},
	{Pattern: `^\s*shutdown\b`, Description: "System shutdown", RiskLevel: "low"},
})

func compileDestructive(cmds []DestructiveCommand) []DestructiveCommand {
	for i := range cmds {
		cmds[i].re = regexp.MustCompile(cmds[i].Pattern)
	}
	return cmds
}

// IsCommandSafe reports whether command may run without asking. Any
// dangerous substring rejects it; otherwise it must start with a known safe
// prefix. Everything else is unsafe.
func IsCommandSafe(command string) bool {
	command = strings.TrimSpace(command)
	if command == "" {
		return false
	}
	for _, pattern := range DangerousPatterns {
		if strings.Contains(command, pattern) {
			return false
		}
	}
	if _, destructive := IsDestructiveCommand(command); destructive {
		return false
	}
	for _, prefix := range SafePrefixes {
		if strings.HasPrefix(command, prefix) {
			return true
		}
	}
	return false
}

// IsDestructiveCommand checks if a command is potentially destructive
func IsDestructiveCommand(command string) (*DestructiveCommand, bool) {
	command = strings.TrimSpace(command)

	for i := range DestructiveCommands {
		if DestructiveCommands[i].re.MatchString(command) {
			return &DestructiveCommands[i], true
		}
	}

	return nil, false
}

// GetCommandRiskLevel returns the risk level of a command
func GetCommandRiskLevel(command string) string {
	if destructiveCmd, isDestructive := IsDestructiveCommand(command); isDestructive {
		return destructiveCmd.RiskLevel
	}
	return "none"
}
