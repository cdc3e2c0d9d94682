package prompts

import (
	"fmt"
	"strings"
)

// --- Plan Messages ---

func NoPlanExists() string {
	return "No plan exists"
}

func TaskNotFound(id string) string {
	return fmt.Sprintf("Task %s not found", id)
}

func TaskAlreadyCompleted(id string) string {
	return fmt.Sprintf("Task %s is already marked as completed", id)
}

func DependenciesNotMet() string {
	return "Dependencies not met"
}

func TaskUpdated(id, status string) string {
	return fmt.Sprintf("Updated task %s to %s", id, status)
}

func PlanGenerated(count int) string {
	return fmt.Sprintf("Plan generated with %d tasks", count)
}

func PlanGenerationFailed() string {
	return "Failed to generate plan"
}

func PlanUpdateApplied(changes int) string {
	if changes == 1 {
		return "Applied 1 plan change"
	}
	return fmt.Sprintf("Applied %d plan changes", changes)
}

func TasksNowReady(ids []string) string {
	return "Now ready: " + strings.Join(ids, ", ")
}

// --- Task Execution Messages ---

func ExecutingTask(id, description string) string {
	return fmt.Sprintf("Executing task %s: %s", id, description)
}

func StatusInProgress() string {
	return "Status updated to: in-progress (10%)"
}

func ProgressPlanning() string {
	return "Progress updated to: 30% (planning phase)"
}

func ProgressActionsGenerated() string {
	return "Progress updated to: 50% (actions generated)"
}

func ProgressReady() string {
	return "Progress updated to: 70% (ready for execution)"
}

func FailedToGenerateActions() string {
	return "Failed to generate actions"
}

func TaskFailedNoActions(id string) string {
	return fmt.Sprintf("Task %s failed: Could not generate actions", id)
}

func ActionsReady(id string) string {
	return fmt.Sprintf("Actions generated for task %s", id)
}

func TaskExecutionError(err string) string {
	return "Error executing task: " + err
}

func TaskCompleted(id string) string {
	return fmt.Sprintf("Task %s marked as completed", id)
}

// --- Session Messages ---

func ContinuingWithResults() string {
	return "Continuing execution with command results..."
}

func NoCommandsSucceeded() string {
	return "No commands succeeded. Continue with model execution?"
}

func ContinuationLimitReached(limit int) string {
	return fmt.Sprintf("Stopped after %d continuations; send a new message to keep going.", limit)
}

func SectionParseError(section string, err error) string {
	return fmt.Sprintf("Error parsing %s XML: %v", strings.ReplaceAll(section, "_", " "), err)
}
