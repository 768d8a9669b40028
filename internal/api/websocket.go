package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"go.klb.dev/clipkeeper/internal/history"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024

	// EventHistoryUpdate carries the latest page of history.
	EventHistoryUpdate = "history_update"
)

// Message is the WebSocket frame sent to clients.
type Message struct {
	Event string          `json:"event"`
	Data  []history.Entry `json:"data"`
}

func newUpgrader(origins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(origins),
	}
}

// originChecker accepts non-browser clients, same-origin pages and the
// configured origins.
func originChecker(origins []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range origins {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
}

func (h *httpHandler) handleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "remote", c.ClientIP(), "err", err)
		return
	}
	defer conn.Close()

	id := uuid.NewString()
	log := h.log.With("conn", id, "remote", c.ClientIP())
	updates, unsubscribe := h.realtime.subscribe(id)
	defer unsubscribe()

	log.Info("websocket client connected")
	defer log.Info("websocket client disconnected")

	done := make(chan struct{})
	go readPump(conn, done)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	if err := h.sendHistory(conn); err != nil {
		log.Debug("websocket write failed", "err", err)
		return
	}
	for {
		select {
		case <-done:
			return
		case _, ok := <-updates:
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if err := h.sendHistory(conn); err != nil {
				log.Debug("websocket write failed", "err", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *httpHandler) sendHistory(conn *websocket.Conn) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()

	items, err := h.keeper.History(ctx, DefaultLimit, 0)
	if err != nil {
		// Keep the connection; the next change retries.
		h.log.Error("failed to load history for websocket", "err", err)
		return nil
	}
	if items == nil {
		items = []history.Entry{}
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(Message{Event: EventHistoryUpdate, Data: items})
}

// readPump drains client frames so pongs and close frames are processed.
func readPump(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
