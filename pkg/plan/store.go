package plan

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/alantheprice/xmlagent/pkg/utils"
	"github.com/alantheprice/xmlagent/pkg/xmlutil"
)

// DefaultFile is the conventional plan location relative to the workspace.
const DefaultFile = "agent_plan.xml"

// ErrNoPlan is returned when the plan file does not exist yet.
var ErrNoPlan = errors.New("no plan exists")

// WriteError reports a failure to persist the plan file.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write plan %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Store persists the plan as an <agent-response> wrapped document. Every
// mutation goes through Update, which reloads, edits and rewrites the file
// under a mutex so concurrent callers are serialized.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore returns a store backed by path.
func NewStore(path string) *Store {
	if path == "" {
		path = DefaultFile
	}
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether the plan file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load reads the plan. A missing file yields ErrNoPlan; a malformed file is
// logged and replaced by an empty plan.
func (s *Store) Load() (*Tree, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() (*Tree, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoPlan
		}
		return nil, fmt.Errorf("read plan %s: %w", s.path, err)
	}
	tree, err := Parse(string(data))
	if err != nil {
		utils.GetLogger(true).Logf("plan file %s is malformed, starting from an empty plan: %v", s.path, err)
		return New(), nil
	}
	return tree, nil
}

// Save writes tree to disk, replacing any previous plan.
func (s *Store) Save(tree *Tree) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(tree)
}

func (s *Store) save(tree *Tree) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return &WriteError{Path: s.path, Err: err}
		}
	}
	doc := xmlutil.SerializeResponse(xmlutil.Field{Name: "plan", Value: tree.String()})
	if err := os.WriteFile(s.path, []byte(doc+"\n"), 0644); err != nil {
		return &WriteError{Path: s.path, Err: err}
	}
	return nil
}

// Update loads the plan, applies fn and saves the result. Nothing is written
// when fn returns an error.
func (s *Store) Update(fn func(*Tree) error) (*Tree, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tree, err := s.load()
	if err != nil {
		return nil, err
	}
	if err := fn(tree); err != nil {
		return tree, err
	}
	if err := s.save(tree); err != nil {
		return tree, err
	}
	return tree, nil
}

// Clear replaces the stored plan with an empty one.
func (s *Store) Clear() error {
	return s.Save(New())
}
