package usecase

import (
	"context"
	"errors"
	"testing"

	"MarketPull/internal/domain/models"
	pkgkafka "MarketPull/pkg/kafka"
	"MarketPull/pkg/logger"
	"MarketPull/pkg/metrics"
)

type stubTargeter struct {
	calls []string
	req   models.TargetRequest
	err   error
}

func (s *stubTargeter) Target(_ context.Context, req models.TargetRequest) (*models.AuctionTarget, error) {
	s.calls = append(s.calls, "target")
	s.req = req
	if s.err != nil {
		return nil, s.err
	}
	return &models.AuctionTarget{ListingID: req.ListingID, Status: models.TargetScheduled}, nil
}

func (s *stubTargeter) Untarget(_ context.Context, id string) (*models.AuctionTarget, error) {
	s.calls = append(s.calls, "untarget:"+id)
	if s.err != nil {
		return nil, s.err
	}
	return &models.AuctionTarget{ListingID: id, Status: models.TargetCancelled}, nil
}

func (s *stubTargeter) CancelByAffordance(_ context.Context, msg string) (*models.AuctionTarget, error) {
	s.calls = append(s.calls, "affordance:"+msg)
	if s.err != nil {
		return nil, s.err
	}
	return &models.AuctionTarget{ListingID: "x", Status: models.TargetCancelled}, nil
}

func newCommandsHandler(st *stubTargeter) *KafkaCommandsHandler {
	return NewKafkaCommandsHandler("marketpull.commands", st, metrics.Nop{}, logger.Nop())
}

func TestCommandsHandlerDispatch(t *testing.T) {
	st := &stubTargeter{}
	h := newCommandsHandler(st)
	ctx := context.Background()

	msgs := []string{
		`{"action":"target","listing_id":"1","thread_id":"z","max_bid":12.5,"lead_seconds":5}`,
		`{"action":"untarget","source":"big","listing_id":"1"}`,
		`{"action":"cancel_affordance","message_id":"m-1"}`,
	}
	for _, m := range msgs {
		if err := h.Handle(ctx, []byte(m)); err != nil {
			t.Fatalf("handle %s: %v", m, err)
		}
	}
	want := []string{"target", "untarget:1", "affordance:m-1"}
	for i := range want {
		if st.calls[i] != want[i] {
			t.Fatalf("unexpected calls %v", st.calls)
		}
	}
	if st.req.Source != "big" || st.req.MaxBid != 12.5 || st.req.LeadSeconds != 5 {
		t.Fatalf("defaults or fields not applied: %+v", st.req)
	}
}

func TestCommandsHandlerMalformedIsPermanent(t *testing.T) {
	h := newCommandsHandler(&stubTargeter{})
	ctx := context.Background()
	for _, m := range []string{
		`not json`,
		`{"action":"explode","listing_id":"1"}`,
		`{"action":"target","listing_id":"1"}`,
		`{"action":"cancel_affordance"}`,
	} {
		if err := h.Handle(ctx, []byte(m)); !pkgkafka.IsPermanent(err) {
			t.Fatalf("%s: expected permanent error, got %v", m, err)
		}
	}
}

func TestCommandsHandlerUserErrorsAcked(t *testing.T) {
	st := &stubTargeter{err: models.ErrDuplicateTarget}
	h := newCommandsHandler(st)
	if err := h.Handle(context.Background(), []byte(`{"action":"untarget","listing_id":"1"}`)); err != nil {
		t.Fatalf("user error should be acknowledged, got %v", err)
	}
}

func TestCommandsHandlerTransientRetried(t *testing.T) {
	st := &stubTargeter{err: models.ErrNetwork}
	h := newCommandsHandler(st)
	err := h.Handle(context.Background(), []byte(`{"action":"untarget","listing_id":"1"}`))
	if !errors.Is(err, models.ErrNetwork) || pkgkafka.IsPermanent(err) {
		t.Fatalf("expected retryable network error, got %v", err)
	}
}
