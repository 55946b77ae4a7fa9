package server

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"MarketPull/internal/domain/models"
	dsvc "MarketPull/internal/domain/service"
	"MarketPull/internal/repository"
	"MarketPull/internal/service/notifier"
	"MarketPull/internal/service/ratelimit"
	"MarketPull/internal/usecase"
	"MarketPull/pkg/config"
	applogger "MarketPull/pkg/logger"

	"github.com/shopspring/decimal"
)

func TestStartRestoresStateAndShutsDown(t *testing.T) {
	ctx := context.Background()
	log := applogger.Nop()
	path := filepath.Join(t.TempDir(), "state.json")

	seed, err := repository.NewFileStore(path, log)
	if err != nil {
		t.Fatalf("seed store: %v", err)
	}
	if err := seed.SaveQuery(ctx, &models.TrackedQuery{
		ThreadID:  "t-1",
		Source:    models.SourceBig,
		ParamSets: []models.SearchParams{{Query: "thinkpad"}},
	}); err != nil {
		t.Fatalf("seed query: %v", err)
	}
	if err := seed.SaveTarget(ctx, &models.AuctionTarget{
		ListingID:     "L1",
		Source:        models.SourceBig,
		FireAt:        time.Now().Add(time.Hour),
		MaxBid:        decimal.NewFromInt(10),
		OwnerThreadID: "t-1",
		Status:        models.TargetScheduled,
	}); err != nil {
		t.Fatalf("seed target: %v", err)
	}

	store, err := repository.NewFileStore(path, log)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	hub := notifier.NewHub(notifier.Config{}, log)
	registry := usecase.NewQueryRegistry(store, hub, log)
	scheduler := usecase.NewScheduler(dsvc.Marketplaces{}, hub, store, log)

	app := New(config.Default(), log, Components{
		Registry:  registry,
		Scheduler: scheduler,
		Archive:   repository.NoopArchive{},
		Limiter:   ratelimit.New(),
	})
	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	q, ok := registry.Get("t-1")
	if !ok || !q.FirstPoll {
		t.Fatalf("query not restored with first poll set: %+v", q)
	}
	if !scheduler.Has("L1") {
		t.Fatalf("target not re-armed")
	}

	if err := app.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if _, err := scheduler.Schedule(ctx, models.ScheduleRequest{
		ListingID: "L2",
		FireAt:    time.Now().Add(time.Hour),
	}); err == nil {
		t.Fatalf("schedule after shutdown should fail")
	}
}
