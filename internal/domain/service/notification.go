package service

import (
	"context"

	"MarketPull/internal/domain/models"
)

// NotificationSink is the chat-facing side of the system.
type NotificationSink interface {
	CreateThread(ctx context.Context, name string) (string, error)
	// Post fails with models.ErrThreadNotFound once the thread is gone.
	Post(ctx context.Context, threadID, content string, preview *models.RichPreview) (string, error)
	Delete(ctx context.Context, messageID string) error
	AddCancelAffordance(ctx context.Context, messageID string) error
	RemoveCancelAffordance(ctx context.Context, messageID string) error
	DeleteThread(ctx context.Context, threadID string) error
}
