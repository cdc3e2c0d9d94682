// Package history persists the chat transcript between runs.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/alantheprice/xmlagent/pkg/utils"
	"github.com/alantheprice/xmlagent/pkg/xmlutil"
)

// DefaultFile is the conventional history location relative to the workspace.
const DefaultFile = "chat_history.json"

// PromptWindow is how many recent entries are shown to the model.
const PromptWindow = 10

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Entry is one turn of the transcript.
type Entry struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// Store keeps the transcript as a JSON array, trimmed to the newest limit
// entries.
type Store struct {
	path  string
	limit int
	mu    sync.Mutex
	now   func() time.Time
}

// NewStore returns a store at path keeping at most limit entries. A limit
// of zero or less keeps everything.
func NewStore(path string, limit int) *Store {
	if path == "" {
		path = DefaultFile
	}
	return &Store{path: path, limit: limit, now: time.Now}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load returns the transcript. A missing file is an empty transcript; an
// unreadable one is logged and treated as empty.
func (s *Store) Load() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(), nil
}

func (s *Store) load() []Entry {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			utils.GetLogger(true).Logf("could not load chat history %s: %v", s.path, err)
		}
		return nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		utils.GetLogger(true).Logf("could not load chat history %s: %v", s.path, err)
		return nil
	}
	return entries
}

func (s *Store) save(entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode chat history: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to save chat history: %w", err)
	}
	return nil
}

// Append records a turn and returns it with its timestamp.
func (s *Store) Append(role, content string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := Entry{Role: role, Content: content, Timestamp: s.now().Format(time.RFC3339)}
	entries := append(s.load(), entry)
	if s.limit > 0 && len(entries) > s.limit {
		entries = entries[len(entries)-s.limit:]
	}
	return entry, s.save(entries)
}

// Recent returns the newest n entries.
func (s *Store) Recent(n int) ([]Entry, error) {
	entries, err := s.Load()
	if err != nil {
		return nil, err
	}
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}

// Clear empties the transcript.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(nil)
}

// FormatForPrompt renders entries as <entry> elements. Assistant turns are
// reduced to the text of their <message> when they have one.
func FormatForPrompt(entries []Entry) string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		content := e.Content
		if e.Role == RoleAssistant {
			content = messageText(content)
		}
		lines = append(lines, fmt.Sprintf(`<entry role="%s" timestamp="%s"><content>%s</content></entry>`,
			xmlutil.Escape(e.Role), xmlutil.Escape(e.Timestamp), content))
	}
	return strings.Join(lines, "\n")
}

func messageText(content string) string {
	section, ok := xmlutil.ExtractTaggedSection(content, "message")
	if !ok {
		return content
	}
	el, err := xmlutil.ParseElement(section)
	if err != nil {
		return content
	}
	return xmlutil.ElementText(el)
}
