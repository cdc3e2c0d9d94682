// Package webui serves a read-only browser view of the plan that updates
// live as the plan file changes.
package webui

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alantheprice/xmlagent/pkg/events"
	"github.com/alantheprice/xmlagent/pkg/plan"
	"github.com/alantheprice/xmlagent/pkg/utils"
)

//go:embed static/*
var staticFiles embed.FS

// DefaultAddr is used when no address is configured.
const DefaultAddr = "127.0.0.1:7788"

// ConnectionInfo stores metadata about a WebSocket connection
type ConnectionInfo struct {
	SessionID   string
	ConnectedAt time.Time
}

// PlanServer serves the plan viewer.
type PlanServer struct {
	plans      *plan.Store
	memoryPath string
	eventBus   *events.EventBus
	addr       string
	server     *http.Server
	listener   net.Listener
	upgrader   websocket.Upgrader
	// connections maps *websocket.Conn to *ConnectionInfo.
	connections sync.Map
	isRunning   bool
	mutex       sync.RWMutex
	startTime   time.Time
	logger      *utils.Logger
}

// NewPlanServer returns a viewer for the plan in plans. memoryPath, when
// not empty, is exposed read-only under /api/memory.
func NewPlanServer(plans *plan.Store, memoryPath string, eventBus *events.EventBus, addr string) *PlanServer {
	if addr == "" {
		addr = DefaultAddr
	}
	if eventBus == nil {
		eventBus = events.NewEventBus()
	}
	return &PlanServer{
		plans:      plans,
		memoryPath: memoryPath,
		eventBus:   eventBus,
		addr:       addr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				return strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1")
			},
		},
		startTime: time.Now(),
		logger:    utils.GetLogger(true),
	}
}

// Handler returns the viewer's routes.
func (ps *PlanServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", ps.handleIndex)
	mux.HandleFunc("/ws", ps.handleWebSocket)
	mux.HandleFunc("/api/plan", ps.handleAPIPlan)
	mux.HandleFunc("/api/memory", ps.handleAPIMemory)
	mux.HandleFunc("/health", ps.handleHealth)
	return mux
}

// Start binds the address and serves in the background until ctx is
// cancelled or Shutdown is called. A bind failure is returned directly.
func (ps *PlanServer) Start(ctx context.Context) error {
	ps.mutex.Lock()
	if ps.isRunning {
		ps.mutex.Unlock()
		return fmt.Errorf("plan viewer is already running")
	}
	listener, err := (&net.ListenConfig{}).Listen(ctx, "tcp", ps.addr)
	if err != nil {
		ps.mutex.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", ps.addr, err)
	}
	ps.listener = listener
	ps.server = &http.Server{
		Handler:           ps.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	ps.isRunning = true
	server := ps.server
	ps.mutex.Unlock()

	go func() {
		ps.logger.Logf("plan viewer listening on http://%s", listener.Addr())
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ps.logger.LogError(fmt.Errorf("plan viewer: %w", err))
		}
	}()

	go func() {
		<-ctx.Done()
		ps.Shutdown()
	}()
	return nil
}

// Shutdown closes open WebSocket connections and stops the server.
func (ps *PlanServer) Shutdown() error {
	ps.mutex.Lock()
	if !ps.isRunning {
		ps.mutex.Unlock()
		return nil
	}
	ps.isRunning = false
	server := ps.server
	ps.mutex.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ps.connections.Range(func(conn, _ any) bool {
		if wsConn, ok := conn.(*websocket.Conn); ok {
			wsConn.Close()
		}
		return true
	})
	return server.Shutdown(ctx)
}

// IsRunning returns true if the server is running
func (ps *PlanServer) IsRunning() bool {
	ps.mutex.RLock()
	defer ps.mutex.RUnlock()
	return ps.isRunning
}

// Addr returns the bound address once started, otherwise the configured one.
func (ps *PlanServer) Addr() string {
	ps.mutex.RLock()
	defer ps.mutex.RUnlock()
	if ps.listener != nil {
		return ps.listener.Addr().String()
	}
	return ps.addr
}

func (ps *PlanServer) countConnections() int {
	count := 0
	ps.connections.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

func (ps *PlanServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"addr":        ps.Addr(),
		"uptime":      time.Since(ps.startTime).String(),
		"connections": ps.countConnections(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
