// Package memory keeps the agent's free-form XML notebook that is carried
// between conversations.
package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/beevik/etree"

	"github.com/alantheprice/xmlagent/pkg/utils"
	"github.com/alantheprice/xmlagent/pkg/xmlutil"
)

// DefaultFile is the conventional memory location relative to the workspace.
const DefaultFile = "agent_memory.xml"

// DefaultDocument seeds a new memory file. The comment is only a hint for
// the model: the file is rewritten pretty-printed after the first update,
// and pretty printing drops comments.
const DefaultDocument = "<memory>\n  <!-- Agent can structure this as needed -->\n</memory>"

// Report summarizes one batch of memory updates.
type Report struct {
	Edits    int
	Rejected []string
	Appends  int
}

// Changed reports whether anything was written.
func (r Report) Changed() bool {
	return r.Edits > 0 || r.Appends > 0
}

// Store reads and rewrites the memory file.
type Store struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewStore returns a store backed by path.
func NewStore(path string) *Store {
	if path == "" {
		path = DefaultFile
	}
	return &Store{path: path, now: time.Now}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load returns the memory document, creating the file with DefaultDocument
// on first access.
func (s *Store) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() (string, error) {
	data, err := os.ReadFile(s.path)
	if err == nil {
		return string(data), nil
	}
	if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to read memory %s: %w", s.path, err)
	}
	if err := s.write(DefaultDocument); err != nil {
		return "", err
	}
	return DefaultDocument, nil
}

func (s *Store) write(doc string) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(s.path, []byte(doc), 0644); err != nil {
		return fmt.Errorf("failed to write memory %s: %w", s.path, err)
	}
	return nil
}

// Apply processes a <memory_updates> section. Each <edit> replaces every
// occurrence of its search text in the document; an edit whose result no
// longer parses is rejected. Each <append> adds its child elements to the
// root, or a timestamped <entry> when it holds plain text. The document is
// rewritten pretty-printed when anything changed.
func (s *Store) Apply(updates string) (Report, error) {
	var report Report
	root, err := xmlutil.ParseElement(updates)
	if err != nil {
		return report, fmt.Errorf("failed to parse memory updates: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load()
	if err != nil {
		return report, err
	}
	doc := current
	if _, err := xmlutil.ParseElement(doc); err != nil {
		utils.GetLogger(true).Logf("memory file %s is not valid XML, starting over: %v", s.path, err)
		doc = "<memory></memory>"
	}

	for _, edit := range root.SelectElements("edit") {
		search, okSearch := xmlutil.ChildText(edit, "search")
		replace, okReplace := xmlutil.ChildText(edit, "replace")
		if !okSearch || !okReplace || search == "" {
			report.Rejected = append(report.Rejected, "edit is missing search or replace")
			continue
		}
		if !strings.Contains(doc, search) {
			report.Rejected = append(report.Rejected, fmt.Sprintf("search text not found: %q", search))
			continue
		}
		candidate := strings.ReplaceAll(doc, search, replace)
		if _, err := xmlutil.ParseElement(candidate); err != nil {
			report.Rejected = append(report.Rejected, fmt.Sprintf("edit would break the document: %v", err))
			continue
		}
		doc = candidate
		report.Edits++
	}

	appends := root.SelectElements("append")
	if len(appends) > 0 {
		memRoot, err := xmlutil.ParseElement(doc)
		if err != nil {
			return report, fmt.Errorf("failed to parse memory: %w", err)
		}
		for _, a := range appends {
			if s.appendTo(memRoot, a) {
				report.Appends++
			}
		}
		doc = xmlutil.Compact(memRoot)
	}

	if !report.Changed() {
		return report, nil
	}
	if err := s.write(xmlutil.PrettyPrint(doc) + "\n"); err != nil {
		return report, err
	}
	utils.GetLogger(true).Logf("memory updated: %d edits, %d appends, %d rejected", report.Edits, report.Appends, len(report.Rejected))
	return report, nil
}

func (s *Store) appendTo(memRoot, a *etree.Element) bool {
	if children := a.ChildElements(); len(children) > 0 {
		for _, child := range children {
			memRoot.AddChild(child.Copy())
		}
		return true
	}
	text := strings.TrimSpace(xmlutil.ElementText(a))
	if text == "" {
		return false
	}
	entry := memRoot.CreateElement("entry")
	entry.CreateAttr("timestamp", s.now().Format(time.RFC3339))
	entry.SetText(text)
	return true
}

// Clear resets the memory to DefaultDocument.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(DefaultDocument)
}
