package notifier

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"MarketPull/internal/domain/models"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

func startHub(t *testing.T) (*Hub, *websocket.Conn, func()) {
	t.Helper()
	h := NewHub(Config{PingInterval: time.Second, BufferSize: 16}, nil)
	e := echo.New()
	h.RegisterRoutes(e)
	srv := httptest.NewServer(e)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for h.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	return h, conn, func() {
		_ = conn.Close()
		srv.Close()
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f Frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return f
}

func TestHubBroadcastsFrames(t *testing.T) {
	h, conn, stop := startHub(t)
	defer stop()
	ctx := context.Background()

	threadID, err := h.CreateThread(ctx, "laptops")
	if err != nil {
		t.Fatalf("create thread: %v", err)
	}
	if f := readFrame(t, conn); f.Type != FrameThreadCreated || f.ThreadID != threadID || f.Name != "laptops" {
		t.Fatalf("unexpected frame %+v", f)
	}

	msgID, err := h.Post(ctx, threadID, "hello", &models.RichPreview{Title: "ThinkPad"})
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	f := readFrame(t, conn)
	if f.Type != FrameMessagePosted || f.MessageID != msgID || f.Preview == nil || f.Preview.Title != "ThinkPad" {
		t.Fatalf("unexpected frame %+v", f)
	}

	if err := h.AddCancelAffordance(ctx, msgID); err != nil {
		t.Fatalf("add affordance: %v", err)
	}
	if f := readFrame(t, conn); f.Type != FrameAffordanceAdded || f.MessageID != msgID {
		t.Fatalf("unexpected frame %+v", f)
	}
}

func TestHubDeletedThreadRejectsPosts(t *testing.T) {
	h := NewHub(Config{}, nil)
	ctx := context.Background()
	id, _ := h.CreateThread(ctx, "x")
	if err := h.DeleteThread(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := h.Post(ctx, id, "late", nil); !errors.Is(err, models.ErrThreadNotFound) {
		t.Fatalf("expected thread not found, got %v", err)
	}
	if err := h.DeleteThread(ctx, id); !errors.Is(err, models.ErrThreadNotFound) {
		t.Fatalf("second delete must report thread not found, got %v", err)
	}
	if _, err := h.Post(ctx, "created-before-restart", "hi", nil); err != nil {
		t.Fatalf("unknown threads are accepted: %v", err)
	}
}

func TestHubInboundFrames(t *testing.T) {
	h, conn, stop := startHub(t)
	defer stop()

	got := make(chan string, 1)
	h.OnCancel(func(_ context.Context, messageID string) error {
		got <- messageID
		return nil
	})
	forgot := make(chan string, 1)
	h.OnThreadDeleted(func(_ context.Context, threadID string) error {
		forgot <- threadID
		return nil
	})

	if err := conn.WriteJSON(Frame{Type: FrameAffordanceTriggered, MessageID: "m-1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case id := <-got:
		if id != "m-1" {
			t.Fatalf("unexpected message id %s", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("cancel callback not invoked")
	}

	if err := conn.WriteJSON(Frame{Type: FrameThreadDeleted, ThreadID: "t-9"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case id := <-forgot:
		if id != "t-9" {
			t.Fatalf("unexpected thread id %s", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("thread deleted callback not invoked")
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := h.Post(context.Background(), "t-9", "x", nil); errors.Is(err, models.ErrThreadNotFound) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("thread deleted by client still accepts posts")
}
