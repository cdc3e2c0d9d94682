package webui

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/alantheprice/xmlagent/pkg/events"
	"github.com/alantheprice/xmlagent/pkg/plan"
	"github.com/alantheprice/xmlagent/pkg/utils"
)

// DebounceInterval groups the bursts of events a single save produces.
const DebounceInterval = 50 * time.Millisecond

// Watcher publishes plan and memory file changes to an event bus. It
// watches the containing directories rather than the files, so files that
// do not exist yet or are replaced by rename are still seen.
type Watcher struct {
	watcher    *fsnotify.Watcher
	bus        *events.EventBus
	plans      *plan.Store
	planPath   string
	memoryPath string
	logger     *utils.Logger

	started  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewWatcher watches the plan file of plans and, when not empty,
// memoryPath.
func NewWatcher(bus *events.EventBus, plans *plan.Store, memoryPath string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	w := &Watcher{
		watcher: fw,
		bus:     bus,
		plans:   plans,
		logger:  utils.GetLogger(true),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}

	if w.planPath, err = filepath.Abs(plans.Path()); err != nil {
		fw.Close()
		return nil, err
	}
	dirs := map[string]bool{filepath.Dir(w.planPath): true}
	if memoryPath != "" {
		if w.memoryPath, err = filepath.Abs(memoryPath); err != nil {
			fw.Close()
			return nil, err
		}
		dirs[filepath.Dir(w.memoryPath)] = true
	}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	return w, nil
}

// Start begins delivering events.
func (w *Watcher) Start() {
	if w.started.Swap(true) {
		return
	}
	go w.watchLoop()
}

// Stop stops the watcher and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.watcher.Close()
	})
	if w.started.Load() {
		<-w.done
	}
}

func (w *Watcher) watchLoop() {
	defer close(w.done)

	debounce := time.NewTimer(DebounceInterval)
	debounce.Stop()
	pending := map[string]bool{}

	for {
		select {
		case <-w.stopCh:
			debounce.Stop()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			name, err := filepath.Abs(event.Name)
			if err != nil || (name != w.planPath && name != w.memoryPath) {
				continue
			}
			pending[name] = true
			debounce.Reset(DebounceInterval)

		case <-debounce.C:
			for name := range pending {
				w.publish(name)
			}
			pending = map[string]bool{}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.LogError(fmt.Errorf("file watcher: %w", err))
		}
	}
}

func (w *Watcher) publish(name string) {
	if name == w.memoryPath {
		w.bus.Publish(events.EventTypeMemoryChanged, events.MemoryChangedEvent(name))
		return
	}
	view, err := BuildPlanView(w.plans)
	if err != nil {
		w.bus.Publish(events.EventTypePlanError, events.PlanErrorEvent(name, err))
		return
	}
	w.bus.Publish(events.EventTypePlanChanged, events.PlanChangedEvent(name, view.Total, view.Percent, view.Rendered))
}
