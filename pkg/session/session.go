// Package session runs the chat loop: it sends user messages with their
// context to the model and carries out what the structured answer asks for.
package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	tools "github.com/alantheprice/xmlagent/pkg/agent_tools"
	"github.com/alantheprice/xmlagent/pkg/configuration"
	"github.com/alantheprice/xmlagent/pkg/dispatch"
	"github.com/alantheprice/xmlagent/pkg/history"
	"github.com/alantheprice/xmlagent/pkg/llm"
	"github.com/alantheprice/xmlagent/pkg/memory"
	"github.com/alantheprice/xmlagent/pkg/orchestration"
	"github.com/alantheprice/xmlagent/pkg/plan"
	"github.com/alantheprice/xmlagent/pkg/prompts"
	"github.com/alantheprice/xmlagent/pkg/utils"
	"github.com/alantheprice/xmlagent/pkg/xmlutil"
)

// DefaultReasoningFile keeps the thinking tokens of the latest answer.
const DefaultReasoningFile = ".xmlagent/last_reasoning.txt"

// Console is the terminal the session talks to.
type Console interface {
	dispatch.Console
	Print(s string)
	Reasoning(fragment string)
	Answer(fragment string)
}

// Session owns everything one conversation needs. Nothing is global, so
// several sessions can run side by side.
type Session struct {
	Client           llm.Client
	Model            string
	Stream           bool
	Plans            *plan.Store
	Memory           *memory.Store
	History          *history.Store
	Orchestrator     *orchestration.Orchestrator
	Dispatcher       *dispatch.Dispatcher
	Console          Console
	Confirmer        dispatch.Confirmer
	MaxContinuations int
	ReasoningFile    string
	SystemInfo       func() prompts.SystemInfo

	logger    *utils.Logger
	mu        sync.Mutex
	reasoning strings.Builder
}

// New wires a session from cfg. Relative state paths resolve against the
// working directory.
func New(cfg *configuration.Config, client llm.Client, console Console, confirmer dispatch.Confirmer) *Session {
	runner := tools.NewRunner()
	runner.UsePTY = cfg.Shell.UsePTY

	s := &Session{
		Client:           client,
		Model:            cfg.ResolveModel(cfg.Model),
		Stream:           cfg.Stream,
		Plans:            plan.NewStore(cfg.Paths.Plan),
		Memory:           memory.NewStore(cfg.Paths.Memory),
		History:          history.NewStore(cfg.Paths.History, cfg.HistorySize),
		Dispatcher:       dispatch.New(console, confirmer, runner),
		Console:          console,
		Confirmer:        confirmer,
		MaxContinuations: cfg.Session.MaxContinuations,
		ReasoningFile:    DefaultReasoningFile,
		SystemInfo:       func() prompts.SystemInfo { return prompts.CurrentSystemInfo(time.Now()) },
		logger:           utils.GetLogger(true),
	}
	s.Orchestrator = orchestration.New(client, s.Model, s.Plans)
	s.Orchestrator.Stream = s.Stream
	s.Orchestrator.OnToken = s.onToken
	s.Orchestrator.Reporter = console
	return s
}

// SetModel switches the model used by later requests.
func (s *Session) SetModel(model string) {
	s.Model = model
	s.Orchestrator.Model = model
}

func (s *Session) onToken(fragment string, reasoning bool) {
	if reasoning {
		s.mu.Lock()
		s.reasoning.WriteString(fragment)
		s.mu.Unlock()
		s.Console.Reasoning(fragment)
		return
	}
	s.Console.Answer(fragment)
}

// send delivers one prompt. The partial answer is returned with the error
// when the request fails part way.
func (s *Session) send(ctx context.Context, prompt string) (string, error) {
	s.resetReasoning()
	s.logger.Logf("sending prompt to %s (%d bytes)", s.Model, len(prompt))
	resp, err := s.Client.SendPrompt(ctx, s.Model, llm.UserPrompt(prompt), s.Stream, s.onToken)
	if s.Stream && resp != "" {
		s.Console.Print("\n")
	}
	s.saveReasoning()
	if err != nil {
		s.logger.LogError(fmt.Errorf("model request failed (%s): %w", llm.Categorize(err), err))
	}
	return resp, err
}

func (s *Session) resetReasoning() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reasoning.Reset()
}

func (s *Session) saveReasoning() {
	s.mu.Lock()
	text := s.reasoning.String()
	s.mu.Unlock()
	if text == "" || s.ReasoningFile == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.ReasoningFile), 0755); err != nil {
		s.logger.LogError(fmt.Errorf("save reasoning: %w", err))
		return
	}
	if err := os.WriteFile(s.ReasoningFile, []byte(text), 0644); err != nil {
		s.logger.LogError(fmt.Errorf("save reasoning: %w", err))
	}
}

// WrapUserMessage puts plain text into a <user_message> element. Input that
// is already a well-formed element is passed through.
func WrapUserMessage(message string) string {
	trimmed := strings.TrimSpace(message)
	if strings.HasPrefix(trimmed, "<") {
		if _, err := xmlutil.ParseElement(trimmed); err == nil {
			return trimmed
		}
	}
	return "<user_message>" + xmlutil.Escape(trimmed) + "</user_message>"
}

// Chat runs one user turn: the message is recorded, sent with recent
// history, memory and the current plan, and the answer is processed. A
// request that fails before any text arrived is reported and returned as an
// error; partial text from an interrupted stream is still processed.
func (s *Session) Chat(ctx context.Context, message string) (Turn, error) {
	wrapped := WrapUserMessage(message)
	if _, err := s.History.Append(history.RoleUser, wrapped); err != nil {
		s.Console.Warn(fmt.Sprintf("Could not save chat history: %v", err))
	}

	resp, err := s.send(ctx, s.chatPrompt(wrapped))
	if err != nil {
		if strings.TrimSpace(resp) == "" {
			s.Console.Error(llm.UserMessage(err))
			return Turn{Err: err}, err
		}
		s.Console.Warn("Response interrupted; processing the partial answer.")
	}
	turn := s.ProcessResponse(ctx, resp)
	if err != nil && turn.Err == nil {
		turn.Err = err
	}
	return turn, turn.Err
}

func (s *Session) chatPrompt(wrapped string) string {
	recent, err := s.History.Recent(history.PromptWindow)
	if err != nil {
		s.logger.LogError(err)
	}
	mem, err := s.Memory.Load()
	if err != nil {
		s.logger.LogError(err)
		mem = memory.DefaultDocument
	}
	in := prompts.ChatInput{
		Message: wrapped,
		History: history.FormatForPrompt(recent),
		Memory:  mem,
		System:  s.SystemInfo(),
	}
	if tree, err := s.Plans.Load(); err == nil && len(tree.Tasks) > 0 {
		in.Plan = tree.Pretty()
	}
	return prompts.ChatPrompt(in)
}
