package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"papertrade/internal/monitoring"
	"papertrade/internal/notify"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
)

// WSHandler bridges the in-process notification hub to WebSocket clients.
// Each connection streams every event for one account: order updates, fills,
// position changes and equity refreshes.
type WSHandler struct {
	hub      notify.Bus
	accounts *AccountHandler
	metrics  *monitoring.Metrics
	upgrader websocket.Upgrader
	log      *logrus.Entry
}

// NewWSHandler creates a new WebSocket handler
func NewWSHandler(hub notify.Bus, accounts *AccountHandler, metrics *monitoring.Metrics, logger *logrus.Logger) *WSHandler {
	return &WSHandler{
		hub:      hub,
		accounts: accounts,
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: logger.WithField("component", "websocket"),
	}
}

// Stream handles GET /api/v1/accounts/:id/stream
func (h *WSHandler) Stream(c *gin.Context) {
	account, ok := h.accounts.ownedAccount(c)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	accountCh := h.hub.Subscribe("account:" + account.ID.String())
	orderCh := h.hub.Subscribe("order:" + account.ID.String())

	h.metrics.ConnectionOpened()
	h.log.WithField("account_id", account.ID).Info("WebSocket client connected")

	done := make(chan struct{})
	go h.readPump(conn, done)
	h.writePump(conn, accountCh, orderCh, done)

	h.hub.Unsubscribe("account:"+account.ID.String(), accountCh)
	h.hub.Unsubscribe("order:"+account.ID.String(), orderCh)
	conn.Close()
	h.metrics.ConnectionClosed()
	h.log.WithField("account_id", account.ID).Info("WebSocket client disconnected")
}

// readPump discards client frames and detects disconnects
func (h *WSHandler) readPump(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump forwards hub events to the client and keeps the connection alive
func (h *WSHandler) writePump(conn *websocket.Conn, accountCh, orderCh chan notify.Event, done chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-accountCh:
			if !ok {
				return
			}
			if !h.writeEvent(conn, event) {
				return
			}
		case event, ok := <-orderCh:
			if !ok {
				return
			}
			if !h.writeEvent(conn, event) {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (h *WSHandler) writeEvent(conn *websocket.Conn, event notify.Event) bool {
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(event); err != nil {
		h.log.WithError(err).Debug("WebSocket write failed")
		return false
	}
	return true
}
