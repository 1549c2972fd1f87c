package introspect

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	wsWriteTimeout     = 5 * time.Second
	wsSubscriberBuffer = 64
)

// wsHandler upgrades introspection clients onto the event hub. The feed is
// publish-only: the engine never expects client-to-server traffic, but the
// handler still drains inbound frames so it notices the peer going away.
type wsHandler struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

func newWSHandler(hub *Hub) *wsHandler {
	return &wsHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}
}

func (h *wsHandler) handle(c echo.Context) error {
	remote := c.RealIP()
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error("introspect ws upgrade failed", "remote", remote, "err", err)
		return fmt.Errorf("upgrade websocket: %w", err)
	}
	h.serveConn(conn, remote)
	return nil
}

func (h *wsHandler) serveConn(conn *websocket.Conn, remote string) {
	defer conn.Close()

	events, unsubscribe := h.hub.Subscribe(wsSubscriberBuffer)
	defer unsubscribe()

	slog.Debug("introspect ws connected", "remote", remote)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			slog.Debug("introspect ws disconnected", "remote", remote)
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				slog.Debug("introspect ws write error", "remote", remote, "err", err)
				return
			}
		}
	}
}
