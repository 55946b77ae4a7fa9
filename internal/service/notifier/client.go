package notifier

import (
	"context"
	"encoding/json"
	"time"

	"MarketPull/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

func (h *Hub) serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", logger.Error(err))
		return nil
	}
	cl := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, h.cfg.BufferSize)}

	h.mu.Lock()
	h.clients[cl] = struct{}{}
	h.mu.Unlock()
	h.log.Info("notifier client connected", logger.String("client", cl.id), logger.String("remote", c.RealIP()))

	ctx, cancel := context.WithCancel(context.Background())
	go h.writeLoop(ctx, cl)
	h.readLoop(ctx, cl)
	cancel()

	h.mu.Lock()
	delete(h.clients, cl)
	h.mu.Unlock()
	_ = conn.Close()
	h.log.Info("notifier client disconnected", logger.String("client", cl.id))
	return nil
}

func (h *Hub) readLoop(ctx context.Context, cl *client) {
	pongWait := 2 * h.cfg.PingInterval
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, b, err := cl.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Warn("notifier read", logger.String("client", cl.id), logger.Error(err))
			}
			return
		}
		_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
		var f Frame
		if err := json.Unmarshal(b, &f); err != nil {
			continue
		}
		h.handleInbound(ctx, cl, f)
	}
}

func (h *Hub) writeLoop(ctx context.Context, cl *client) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = cl.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return
		case b := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := cl.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				h.log.Warn("notifier write", logger.String("client", cl.id), logger.Error(err))
				_ = cl.conn.Close()
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = cl.conn.Close()
				return
			}
		}
	}
}
