package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"MarketPull/internal/domain/models"
	domrepo "MarketPull/internal/domain/repository"
	pkghttp "MarketPull/pkg/http"
	pkgkafka "MarketPull/pkg/kafka"
	"MarketPull/pkg/logger"
)

// Targeter is the part of TargetingService the command consumer drives.
type Targeter interface {
	Target(ctx context.Context, req models.TargetRequest) (*models.AuctionTarget, error)
	Untarget(ctx context.Context, listingID string) (*models.AuctionTarget, error)
	CancelByAffordance(ctx context.Context, messageID string) (*models.AuctionTarget, error)
}

// KafkaCommandsHandler consumes target commands from Kafka.
type KafkaCommandsHandler struct {
	topic    string
	targeter Targeter
	metrics  domrepo.Metrics
	log      *logger.Logger
}

func NewKafkaCommandsHandler(topic string, targeter Targeter, metrics domrepo.Metrics, log *logger.Logger) *KafkaCommandsHandler {
	return &KafkaCommandsHandler{
		topic:    topic,
		targeter: targeter,
		metrics:  metrics,
		log:      log.With(logger.String("topic", topic)),
	}
}

func (h *KafkaCommandsHandler) Topic() string { return h.topic }

// incoming message schema: models.Command
func (h *KafkaCommandsHandler) Handle(ctx context.Context, b []byte) error {
	var cmd models.Command
	if err := json.Unmarshal(b, &cmd); err != nil {
		h.metrics.RecordError("command_unmarshal")
		return pkgkafka.Permanent(fmt.Errorf("decode command: %w", err))
	}
	if err := pkghttp.ValidateStruct(ctx, &cmd); err != nil {
		h.metrics.RecordError("command_validate")
		return pkgkafka.Permanent(fmt.Errorf("invalid %q command: %w", cmd.Action, err))
	}

	start := time.Now()
	err := h.dispatch(ctx, &cmd)
	h.metrics.RecordLatency("command_"+cmd.Action, time.Since(start).Seconds())
	if err == nil {
		return nil
	}
	if models.IsUserError(err) {
		h.log.Warn("command rejected",
			logger.String("action", cmd.Action),
			logger.String("listing_id", cmd.ListingID),
			logger.Error(err),
		)
		return nil
	}
	h.metrics.RecordError("command_" + cmd.Action)
	return err
}

func (h *KafkaCommandsHandler) dispatch(ctx context.Context, cmd *models.Command) error {
	var (
		t   *models.AuctionTarget
		err error
	)
	switch cmd.Action {
	case "target":
		t, err = h.targeter.Target(ctx, models.TargetRequest{
			Source:      cmd.Source,
			ListingID:   cmd.ListingID,
			ThreadID:    cmd.ThreadID,
			MaxBid:      cmd.MaxBid,
			LeadSeconds: cmd.LeadSeconds,
		})
	case "untarget":
		t, err = h.targeter.Untarget(ctx, cmd.ListingID)
	case "cancel_affordance":
		t, err = h.targeter.CancelByAffordance(ctx, cmd.MessageID)
	default:
		return pkgkafka.Permanent(fmt.Errorf("unknown action %q", cmd.Action))
	}
	if err != nil {
		return err
	}
	h.log.Info("command applied",
		logger.String("action", cmd.Action),
		logger.String("listing_id", t.ListingID),
		logger.String("status", string(t.Status)),
	)
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaCommandsHandler)(nil)
