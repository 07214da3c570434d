package httpapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lance0/prefixd-sub000/internal/webhook"
)

// wsMessage is the envelope every /v1/ws frame carries.
type wsMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// hub fans alerts out to connected operator UIs. BroadcastReconcileTick can
// build a reconcile.tick frame, but nothing in the daemon calls it, so
// reconciliation outcomes are not broadcast.
// Supplemental per SPEC_FULL.md: no HTTP operation depends on it.
type hub struct {
	mu       sync.RWMutex
	conns    map[*websocket.Conn]struct{}
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func newHub(logger *zap.Logger) *hub {
	return &hub{
		conns: make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

func (h *hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	conn.Close()
}

func (h *hub) broadcast(msg wsMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns {
		if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
			c.Close()
			go func(conn *websocket.Conn) {
				h.mu.Lock()
				delete(h.conns, conn)
				h.mu.Unlock()
			}(c)
		}
	}
}

// BroadcastAlert relays a webhook.Alert to every connected UI, unchanged,
// under its own event_type as the frame type.
func (h *hub) BroadcastAlert(alert webhook.Alert) {
	h.broadcast(wsMessage{Type: string(alert.EventType), Data: alert})
}

// BroadcastReconcileTick notifies UIs a reconciliation cycle completed.
func (h *hub) BroadcastReconcileTick(outcome string, duration time.Duration) {
	h.broadcast(wsMessage{
		Type: "reconcile.tick",
		Data: map[string]interface{}{
			"outcome":          outcome,
			"duration_seconds": duration.Seconds(),
		},
	})
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		c.Close()
	}
}
