package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"MarketPull/internal/domain/models"
	"MarketPull/pkg/logger"
)

func newTestRegistry() (*QueryRegistry, *memStore, *fakeSink) {
	store := newMemStore()
	sink := newFakeSink()
	return NewQueryRegistry(store, sink, logger.Nop()), store, sink
}

func TestRegistryCreatePersists(t *testing.T) {
	r, store, sink := newTestRegistry()
	ctx := context.Background()

	q, err := r.Create(ctx, models.SourceBig, "", models.SearchParams{Query: strings.Repeat("thinkpad ", 10)}, "@here")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !q.FirstPoll {
		t.Fatalf("new query must start with first poll")
	}
	if n := utf8.RuneCountInString(sink.threads[q.ThreadID]); n > 30 {
		t.Fatalf("thread name not truncated: %d runes", n)
	}
	if _, ok := store.queries[q.ThreadID]; !ok {
		t.Fatalf("query not persisted")
	}
}

func TestRegistryCreateUnknownSource(t *testing.T) {
	r, _, sink := newTestRegistry()
	_, err := r.Create(context.Background(), "other", "x", models.SearchParams{Query: "x"}, "")
	if !errors.Is(err, models.ErrUnknownSource) {
		t.Fatalf("expected unknown source, got %v", err)
	}
	if len(sink.threads) != 0 {
		t.Fatalf("no thread should be created")
	}
}

func TestRegistryParamsLifecycle(t *testing.T) {
	r, store, _ := newTestRegistry()
	ctx := context.Background()
	q, _ := r.Create(ctx, models.SourceSmall, "bikes", models.SearchParams{Query: "bike"}, "")

	if _, err := r.AddParams(ctx, q.ThreadID, models.SearchParams{Query: "frame"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := r.AddParams(ctx, q.ThreadID, models.SearchParams{Query: "wheel"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	got, err := r.RemoveParams(ctx, q.ThreadID, 0, 2)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(got.ParamSets) != 1 || got.ParamSets[0].Query != "frame" {
		t.Fatalf("unexpected param sets %+v", got.ParamSets)
	}
	if len(store.queries[q.ThreadID].ParamSets) != 1 {
		t.Fatalf("removal not persisted")
	}

	if _, err := r.RemoveParams(ctx, q.ThreadID, 5); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected not found for bad index, got %v", err)
	}
	if _, err := r.AddParams(ctx, "missing", models.SearchParams{Query: "x"}); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRegistryGetReturnsCopy(t *testing.T) {
	r, _, _ := newTestRegistry()
	q, _ := r.Create(context.Background(), models.SourceBig, "a", models.SearchParams{Query: "a"}, "")
	got, _ := r.Get(q.ThreadID)
	got.ParamSets[0].Query = "mutated"
	again, _ := r.Get(q.ThreadID)
	if again.ParamSets[0].Query != "a" {
		t.Fatalf("registry state leaked through Get")
	}
}

func TestRegistryDeleteToleratesMissingThread(t *testing.T) {
	r, store, sink := newTestRegistry()
	ctx := context.Background()
	q, _ := r.Create(ctx, models.SourceBig, "a", models.SearchParams{Query: "a"}, "")
	sink.gone[q.ThreadID] = true

	if err := r.Delete(ctx, q.ThreadID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := r.Get(q.ThreadID); ok {
		t.Fatalf("query still registered")
	}
	if len(store.queries) != 0 {
		t.Fatalf("query still persisted")
	}
	if err := r.Delete(ctx, q.ThreadID); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestRegistryLoadResetsFirstPoll(t *testing.T) {
	r, store, _ := newTestRegistry()
	store.queries["t9"] = &models.TrackedQuery{ThreadID: "t9", Source: models.SourceBig, ParamSets: []models.SearchParams{{Query: "x"}}}

	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	q, ok := r.Get("t9")
	if !ok || !q.FirstPoll {
		t.Fatalf("loaded query must be in first poll: %+v", q)
	}
	if err := r.ClearFirstPoll(context.Background(), "t9"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if store.queries["t9"].FirstPoll {
		t.Fatalf("clear not persisted")
	}
}

func TestRegistryListBySource(t *testing.T) {
	r, _, _ := newTestRegistry()
	ctx := context.Background()
	r.Create(ctx, models.SourceBig, "a", models.SearchParams{Query: "a"}, "")
	r.Create(ctx, models.SourceSmall, "b", models.SearchParams{Query: "b"}, "")
	r.Create(ctx, models.SourceBig, "c", models.SearchParams{Query: "c"}, "")

	if n := len(r.List(models.SourceBig)); n != 2 {
		t.Fatalf("expected 2 big queries, got %d", n)
	}
	if n := len(r.List("")); n != 3 {
		t.Fatalf("expected 3 queries, got %d", n)
	}
}
