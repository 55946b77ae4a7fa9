// Package notifier is the websocket gateway chat front-ends subscribe to.
// It implements the notification sink: every operation is broadcast as a
// JSON frame, and clients report cancel clicks and deleted threads back.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"MarketPull/internal/domain/models"
	dsvc "MarketPull/internal/domain/service"
	"MarketPull/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// Frame types.
const (
	FrameThreadCreated       = "thread.created"
	FrameThreadDeleted       = "thread.deleted"
	FrameMessagePosted       = "message.posted"
	FrameMessageDeleted      = "message.deleted"
	FrameAffordanceAdded     = "affordance.added"
	FrameAffordanceRemoved   = "affordance.removed"
	FrameAffordanceTriggered = "affordance.triggered"
)

// Frame is one websocket message in either direction.
type Frame struct {
	Type      string              `json:"type"`
	ThreadID  string              `json:"thread_id,omitempty"`
	MessageID string              `json:"message_id,omitempty"`
	Name      string              `json:"name,omitempty"`
	Content   string              `json:"content,omitempty"`
	Preview   *models.RichPreview `json:"preview,omitempty"`
	At        time.Time           `json:"at"`
}

// CancelFunc is invoked when a client triggers a cancel affordance.
type CancelFunc func(ctx context.Context, messageID string) error

// ThreadDeletedFunc is invoked when a client reports a deleted thread.
type ThreadDeletedFunc func(ctx context.Context, threadID string) error

type Config struct {
	WriteTimeout time.Duration
	PingInterval time.Duration
	BufferSize   int
}

type Hub struct {
	cfg      Config
	log      *logger.Logger
	upgrader websocket.Upgrader

	mu              sync.RWMutex
	clients         map[*client]struct{}
	deleted         map[string]bool
	onCancel        CancelFunc
	onThreadDeleted ThreadDeletedFunc
}

var _ dsvc.NotificationSink = (*Hub)(nil)

func NewHub(cfg Config, log *logger.Logger) *Hub {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		cfg: cfg,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
		deleted: make(map[string]bool),
	}
}

// OnCancel sets the handler for affordance.triggered frames.
func (h *Hub) OnCancel(fn CancelFunc) {
	h.mu.Lock()
	h.onCancel = fn
	h.mu.Unlock()
}

// OnThreadDeleted sets the handler for thread.deleted frames.
func (h *Hub) OnThreadDeleted(fn ThreadDeletedFunc) {
	h.mu.Lock()
	h.onThreadDeleted = fn
	h.mu.Unlock()
}

// RegisterRoutes mounts the gateway at /ws.
func (h *Hub) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", h.serve)
}

func (h *Hub) CreateThread(_ context.Context, name string) (string, error) {
	id := uuid.NewString()
	h.broadcast(Frame{Type: FrameThreadCreated, ThreadID: id, Name: name})
	return id, nil
}

// Post fails with ErrThreadNotFound only for threads known to be deleted.
// Threads created before a restart are unknown to the hub and accepted.
func (h *Hub) Post(_ context.Context, threadID, content string, preview *models.RichPreview) (string, error) {
	h.mu.RLock()
	gone := h.deleted[threadID]
	h.mu.RUnlock()
	if gone {
		return "", fmt.Errorf("post to %s: %w", threadID, models.ErrThreadNotFound)
	}
	id := uuid.NewString()
	h.broadcast(Frame{Type: FrameMessagePosted, ThreadID: threadID, MessageID: id, Content: content, Preview: preview})
	return id, nil
}

func (h *Hub) Delete(_ context.Context, messageID string) error {
	h.broadcast(Frame{Type: FrameMessageDeleted, MessageID: messageID})
	return nil
}

func (h *Hub) AddCancelAffordance(_ context.Context, messageID string) error {
	h.broadcast(Frame{Type: FrameAffordanceAdded, MessageID: messageID})
	return nil
}

func (h *Hub) RemoveCancelAffordance(_ context.Context, messageID string) error {
	h.broadcast(Frame{Type: FrameAffordanceRemoved, MessageID: messageID})
	return nil
}

func (h *Hub) DeleteThread(_ context.Context, threadID string) error {
	h.mu.Lock()
	already := h.deleted[threadID]
	h.deleted[threadID] = true
	h.mu.Unlock()
	if already {
		return fmt.Errorf("delete %s: %w", threadID, models.ErrThreadNotFound)
	}
	h.broadcast(Frame{Type: FrameThreadDeleted, ThreadID: threadID})
	return nil
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcast(f Frame) {
	f.At = time.Now().UTC()
	b, err := json.Marshal(f)
	if err != nil {
		h.log.Error("encode frame", logger.Error(err), logger.String("type", f.Type))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
			h.log.Warn("notifier client too slow, frame dropped",
				logger.String("client", c.id), logger.String("type", f.Type))
		}
	}
}

// handleInbound applies a frame sent by a client.
func (h *Hub) handleInbound(ctx context.Context, c *client, f Frame) {
	switch f.Type {
	case FrameAffordanceTriggered:
		h.mu.RLock()
		fn := h.onCancel
		h.mu.RUnlock()
		if fn == nil || f.MessageID == "" {
			return
		}
		if err := fn(ctx, f.MessageID); err != nil {
			h.log.Warn("cancel from affordance failed",
				logger.String("client", c.id), logger.String("message_id", f.MessageID), logger.Error(err))
		}
	case FrameThreadDeleted:
		if f.ThreadID == "" {
			return
		}
		h.mu.Lock()
		h.deleted[f.ThreadID] = true
		fn := h.onThreadDeleted
		h.mu.Unlock()
		h.log.Info("thread deleted by client", logger.String("thread_id", f.ThreadID))
		if fn == nil {
			return
		}
		if err := fn(ctx, f.ThreadID); err != nil {
			h.log.Warn("forget deleted thread failed",
				logger.String("client", c.id), logger.String("thread_id", f.ThreadID), logger.Error(err))
		}
	default:
		h.log.Debug("ignored inbound frame", logger.String("type", f.Type))
	}
}
