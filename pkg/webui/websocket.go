package webui

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	readLimit    = 64 * 1024
	readDeadline = 60 * time.Second
)

// SafeConn serializes writes to a WebSocket connection.
type SafeConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	closed  bool
}

// NewSafeConn wraps conn.
func NewSafeConn(conn *websocket.Conn) *SafeConn {
	return &SafeConn{conn: conn}
}

// WriteJSON writes v as one JSON message. Writes after Close are dropped.
func (sc *SafeConn) WriteJSON(v any) error {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	if sc.closed {
		return nil
	}
	return sc.conn.WriteJSON(v)
}

// Close closes the underlying connection
func (sc *SafeConn) Close() error {
	sc.writeMu.Lock()
	sc.closed = true
	sc.writeMu.Unlock()
	return sc.conn.Close()
}

// message is the envelope for frames the server originates itself.
type message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// handleWebSocket sends the current plan, then forwards every bus event
// until the client goes away. Clients may send {"type":"ping"} or
// {"type":"refresh"}.
func (ps *PlanServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := ps.upgrader.Upgrade(w, r, nil)
	if err != nil {
		ps.logger.Logf("websocket upgrade failed: %v", err)
		return
	}
	safeConn := NewSafeConn(conn)
	defer safeConn.Close()

	sessionID := "ws_" + uuid.NewString()
	ps.connections.Store(conn, &ConnectionInfo{SessionID: sessionID, ConnectedAt: time.Now()})
	defer ps.connections.Delete(conn)

	// Subscribe before the snapshot so no change slips in between.
	eventCh := ps.eventBus.Subscribe(sessionID)
	defer ps.eventBus.Unsubscribe(sessionID)

	ps.logger.Logf("websocket client connected: %s", sessionID)
	safeConn.WriteJSON(message{Type: "connection_status", Data: map[string]any{"connected": true, "session_id": sessionID}})
	ps.sendSnapshot(safeConn)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		conn.SetReadLimit(readLimit)
		for {
			conn.SetReadDeadline(time.Now().Add(readDeadline))
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				var netErr net.Error
				if errors.As(err, &netErr) && netErr.Timeout() {
					ps.logger.Logf("websocket %s idle, closing", sessionID)
				} else if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					ps.logger.Logf("websocket %s read error: %v", sessionID, err)
				}
				return
			}
			ps.handleWebSocketMessage(safeConn, msg)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-readDone:
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			if err := safeConn.WriteJSON(event); err != nil {
				ps.logger.Logf("websocket %s write error: %v", sessionID, err)
				return
			}
		}
	}
}

func (ps *PlanServer) handleWebSocketMessage(safeConn *SafeConn, msg map[string]any) {
	msgType, _ := msg["type"].(string)
	switch msgType {
	case "ping":
		safeConn.WriteJSON(message{Type: "pong", Data: map[string]any{"timestamp": time.Now().Unix()}})
	case "refresh":
		ps.sendSnapshot(safeConn)
	default:
		safeConn.WriteJSON(message{Type: "error", Data: map[string]any{"message": fmt.Sprintf("unknown message type %q", msgType)}})
	}
}

func (ps *PlanServer) sendSnapshot(safeConn *SafeConn) {
	view, err := BuildPlanView(ps.plans)
	if err != nil {
		safeConn.WriteJSON(message{Type: "error", Data: map[string]any{"message": err.Error()}})
		return
	}
	safeConn.WriteJSON(message{Type: "plan_snapshot", Data: view})
}
