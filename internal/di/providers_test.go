package di

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"MarketPull/internal/domain/models"
	internalrepo "MarketPull/internal/repository"
	"MarketPull/internal/service/notifier"
	"MarketPull/pkg/config"
	"MarketPull/pkg/logger"
	"MarketPull/pkg/metrics"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Metrics.Enabled = false
	cfg.Storage.Path = filepath.Join(t.TempDir(), "state.json")
	cfg.Marketplaces.Big.BaseURL = "https://big.example/api/"
	return cfg
}

func TestProvideDisabledBackends(t *testing.T) {
	cfg := testConfig(t)
	log := logger.Nop()

	if _, ok := ProvideMetrics(cfg).(metrics.Nop); !ok {
		t.Fatalf("metrics disabled should give Nop")
	}
	archive, cleanup, err := ProvideListingArchive(cfg, log)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	cleanup()
	if _, ok := archive.(internalrepo.NoopArchive); !ok {
		t.Fatalf("archive = %T, want NoopArchive", archive)
	}
	pub, cleanup, err := ProvideEventPublisher(cfg, log)
	if err != nil {
		t.Fatalf("publisher: %v", err)
	}
	cleanup()
	if _, ok := pub.(internalrepo.NoopPublisher); !ok {
		t.Fatalf("publisher = %T, want NoopPublisher", pub)
	}
	consumer, err := ProvideKafkaConsumer(cfg, metrics.Nop{}, log)
	if err != nil || consumer != nil {
		t.Fatalf("consumer = %v, %v; want nil", consumer, err)
	}
}

func TestProvideStateStoreSelectsBackend(t *testing.T) {
	for _, typ := range []string{"file", "sqlite"} {
		t.Run(typ, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Storage.Type = typ
			cfg.Storage.Path = filepath.Join(t.TempDir(), "nested", "state."+typ)
			store, cleanup, err := ProvideStateStore(cfg, logger.Nop())
			if err != nil {
				t.Fatalf("ProvideStateStore: %v", err)
			}
			defer cleanup()
			switch typ {
			case "file":
				if _, ok := store.(*internalrepo.FileStore); !ok {
					t.Fatalf("store = %T", store)
				}
			case "sqlite":
				if _, ok := store.(*internalrepo.SQLiteStore); !ok {
					t.Fatalf("store = %T", store)
				}
			}
		})
	}
}

func TestProvidePollLoopsSkipsUnconfiguredSources(t *testing.T) {
	cfg := testConfig(t)
	log := logger.Nop()
	store, cleanup, err := ProvideStateStore(cfg, log)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	defer cleanup()

	markets := ProvideMarketplaces(cfg, log)
	if _, err := markets.Get(models.SourceSmall); err == nil {
		t.Fatalf("small marketplace has no base url and should be absent")
	}
	hub := ProvideHub(cfg, log)
	registry := ProvideQueryRegistry(store, hub, log)

	loops := ProvidePollLoops(cfg, markets, registry, hub, internalrepo.NoopArchive{}, internalrepo.NoopPublisher{}, metrics.Nop{}, log)
	if len(loops) != 1 {
		t.Fatalf("loops = %d, want 1", len(loops))
	}
	if src := loops[0].Runner.Source(); src != models.SourceBig {
		t.Fatalf("runner source = %q", src)
	}

	cfg.Poller.Big.Enabled = false
	if loops := ProvidePollLoops(cfg, markets, registry, hub, internalrepo.NoopArchive{}, internalrepo.NoopPublisher{}, metrics.Nop{}, log); len(loops) != 0 {
		t.Fatalf("disabled poller still built %d loops", len(loops))
	}
}

func TestThreadDeletedByClientForgetsQuery(t *testing.T) {
	cfg := testConfig(t)
	log := logger.Nop()
	store, cleanup, err := ProvideStateStore(cfg, log)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	defer cleanup()
	hub := ProvideHub(cfg, log)
	registry := ProvideQueryRegistry(store, hub, log)

	ctx := context.Background()
	q, err := registry.Create(ctx, models.SourceBig, "lamps", models.SearchParams{Query: "lamp"}, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	e := echo.New()
	hub.RegisterRoutes(e)
	srv := httptest.NewServer(e)
	defer srv.Close()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if err := conn.WriteJSON(notifier.Frame{Type: notifier.FrameThreadDeleted, ThreadID: q.ThreadID}); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := registry.Get(q.ThreadID); !ok {
			saved, err := store.LoadQueries(ctx)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if len(saved) != 0 {
				t.Fatalf("query still persisted: %+v", saved)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("query for deleted thread %s still tracked", q.ThreadID)
}
