package session

import (
	"context"
	"fmt"

	tools "github.com/alantheprice/xmlagent/pkg/agent_tools"
	"github.com/alantheprice/xmlagent/pkg/dispatch"
	"github.com/alantheprice/xmlagent/pkg/history"
	"github.com/alantheprice/xmlagent/pkg/llm"
	"github.com/alantheprice/xmlagent/pkg/orchestration"
	"github.com/alantheprice/xmlagent/pkg/prompts"
)

// Step is what came of processing one model answer.
type Step struct {
	Response    string
	Sections    Sections
	Memory      bool
	Actions     []dispatch.Outcome
	FileEdits   []dispatch.Outcome
	Commands    []tools.ExecutionContext
	PlanUpdates []orchestration.Result
	Status      *ExecutionStatus
	// Errors lists the sections that could not be parsed.
	Errors []string
}

// Turn collects the steps of one user message: the first answer and every
// continuation that fed command results back to the model.
type Turn struct {
	Steps         []Step
	Continuations int
	Err           error
}

// Last returns the final step, or the zero Step for an empty turn.
func (t Turn) Last() Step {
	if len(t.Steps) == 0 {
		return Step{}
	}
	return t.Steps[len(t.Steps)-1]
}

// ProcessResponse carries out a model answer. When shell commands ran, their
// results are sent back for as long as the answers keep proposing commands
// and at least one succeeds or the user agrees to go on, up to
// MaxContinuations round trips.
func (s *Session) ProcessResponse(ctx context.Context, response string) Turn {
	var turn Turn
	for {
		step := s.processOnce(ctx, response)
		turn.Steps = append(turn.Steps, step)

		if len(step.Commands) == 0 || ctx.Err() != nil || !s.shouldContinue(step.Commands) {
			return turn
		}
		if turn.Continuations >= s.MaxContinuations {
			s.Console.Warn(prompts.ContinuationLimitReached(s.MaxContinuations))
			return turn
		}
		turn.Continuations++
		s.Console.Info(prompts.ContinuingWithResults())

		contexts := make([]string, len(step.Commands))
		for i, ec := range step.Commands {
			contexts[i] = ec.XML()
		}
		prompt := prompts.ContinuationPrompt(step.Sections.MessageText(), contexts, s.SystemInfo())
		next, err := s.send(ctx, prompt)
		if err != nil {
			turn.Err = err
			if next == "" {
				s.Console.Error(llm.UserMessage(err))
				return turn
			}
			s.Console.Warn("Response interrupted; processing the partial answer.")
		}
		response = next
	}
}

// processOnce applies every section of response. Sections are independent:
// one that fails to parse is reported and the others still run.
func (s *Session) processOnce(ctx context.Context, response string) Step {
	sec := ExtractSections(response)
	step := Step{Response: response, Sections: sec}

	if _, err := s.History.Append(history.RoleAssistant, sec.HistoryContent(response)); err != nil {
		s.Console.Warn(fmt.Sprintf("Could not save chat history: %v", err))
	}

	if sec.MemoryUpdates != "" {
		report, err := s.Memory.Apply(sec.MemoryUpdates)
		if err != nil {
			s.sectionError(&step, "memory_updates", err)
		}
		for _, r := range report.Rejected {
			s.Console.Warn("Memory update rejected: " + r)
		}
		step.Memory = report.Changed()
	}

	if text := sec.MessageText(); text != "" {
		s.Console.Print("\n" + text + "\n\n")
	}

	if sec.Actions != "" {
		actions, err := dispatch.ParseActions(sec.Actions)
		if err != nil {
			s.sectionError(&step, "actions", err)
		} else {
			step.Actions = s.Dispatcher.RunActions(ctx, actions)
		}
	}

	if sec.FileEdits != "" {
		edits, err := dispatch.ParseFileEdits(sec.FileEdits)
		if err != nil {
			s.sectionError(&step, "file_edits", err)
		} else {
			step.FileEdits = s.Dispatcher.RunFileEdits(edits)
		}
	}

	if sec.ShellCommands != "" {
		cmds, err := dispatch.ParseShellCommands(sec.ShellCommands)
		if err != nil {
			s.sectionError(&step, "shell_commands", err)
		} else {
			step.Commands = s.Dispatcher.RunShellCommands(ctx, cmds)
		}
	}

	for _, update := range sec.PlanUpdates {
		r, err := s.Orchestrator.ApplyPlanUpdate(update)
		step.PlanUpdates = append(step.PlanUpdates, r)
		switch {
		case err != nil:
			s.Console.Error(err.Error())
		case r.OK():
			s.Console.Info(r.Message)
			for _, c := range r.Changes {
				s.Console.Info("  " + c)
			}
		default:
			s.Console.Warn("Plan update not applied: " + r.Message)
		}
	}

	if sec.ExecutionStatus != "" {
		st, err := ParseExecutionStatus(sec.ExecutionStatus)
		if err != nil {
			s.sectionError(&step, "execution_status", err)
		} else {
			step.Status = &st
			s.reportStatus(st)
		}
	}
	return step
}

func (s *Session) sectionError(step *Step, section string, err error) {
	step.Errors = append(step.Errors, section)
	s.Console.Error(prompts.SectionParseError(section, err))
}

func (s *Session) reportStatus(st ExecutionStatus) {
	report := s.Console.Info
	switch {
	case st.Complete:
		s.Console.Success("Task completed")
		report = s.Console.Success
	case st.NeedsUserInput:
		s.Console.Warn("Waiting for user input")
		report = s.Console.Warn
	default:
		s.Console.Info("Task in progress")
	}
	if st.Message != "" {
		report(st.Message)
	}
}

// shouldContinue is true when any command succeeded. Otherwise the user
// decides.
func (s *Session) shouldContinue(contexts []tools.ExecutionContext) bool {
	for _, ec := range contexts {
		if ec.Success {
			return true
		}
	}
	if s.Confirmer == nil {
		return false
	}
	return s.Confirmer.Confirm(prompts.NoCommandsSucceeded(), true)
}

// GeneratePlan asks the model for a plan implementing spec.
func (s *Session) GeneratePlan(ctx context.Context, spec string) (orchestration.Result, error) {
	s.resetReasoning()
	defer s.saveReasoning()
	return s.Orchestrator.GeneratePlan(ctx, spec)
}

// ExecuteTask runs one plan task end to end: the orchestrator prepares the
// actions, each is confirmed and executed, and when all of them went
// through the user may mark the task completed.
func (s *Session) ExecuteTask(ctx context.Context, id string) (orchestration.Result, []dispatch.Outcome, error) {
	s.resetReasoning()
	r, err := s.Orchestrator.ExecuteTask(ctx, id)
	s.saveReasoning()
	if err != nil || !r.OK() || r.Actions == "" {
		return r, nil, err
	}

	actions, perr := dispatch.ParseActions(r.Actions)
	if perr != nil {
		s.Console.Error(prompts.SectionParseError("actions", perr))
		return r, nil, nil
	}
	outcomes := s.Dispatcher.RunActions(ctx, actions)
	for _, o := range outcomes {
		if !o.Done {
			return r, outcomes, nil
		}
	}
	if s.Confirmer != nil && s.Confirmer.Confirm(fmt.Sprintf("Mark task %s as completed?", id), true) {
		done, err := s.Orchestrator.CompleteTask(id)
		if err != nil {
			return done, outcomes, err
		}
		if !done.OK() {
			s.Console.Warn(done.Message)
		}
		return done, outcomes, nil
	}
	return r, outcomes, nil
}
