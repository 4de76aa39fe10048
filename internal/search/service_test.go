package search

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hyperjump/suggest/internal/config"
	"github.com/hyperjump/suggest/internal/embedding"
	"github.com/hyperjump/suggest/internal/models"
	"github.com/hyperjump/suggest/internal/storage"
	"github.com/hyperjump/suggest/internal/vector"
)

const testDim = 256

type testEnv struct {
	store *storage.SQLiteStorage
	emb   *embedding.MockEmbedder
	index *vector.MemoryIndex
	cfg   *config.SearchConfig
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "search.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	idx, err := vector.NewMemoryIndex(testDim)
	if err != nil {
		t.Fatal(err)
	}
	return &testEnv{
		store: store,
		emb:   embedding.NewMockEmbedder(testDim),
		index: idx,
		cfg:   &config.SearchConfig{DefaultLimit: 5, MaxLimit: 10},
	}
}

// add stores a scenario and indexes its title.
func (e *testEnv) add(t *testing.T, title, description string) int64 {
	t.Helper()
	ctx := context.Background()
	vec, err := e.emb.Embed(ctx, title)
	if err != nil {
		t.Fatal(err)
	}
	sc := &models.Scenario{Title: title, Description: description}
	if err := e.store.CreateScenario(ctx, sc, vec); err != nil {
		t.Fatal(err)
	}
	if err := e.index.Add(ctx, sc.ID, vec); err != nil {
		t.Fatal(err)
	}
	return sc.ID
}

func TestService_SuggestRanksBySimilarity(t *testing.T) {
	env := newTestEnv(t)
	login := env.add(t, "user cannot login with password", "auth")
	env.add(t, "export report to csv", "reports")
	reset := env.add(t, "cannot reset password", "auth")

	svc := NewService(env.store, env.emb, env.index, env.cfg)
	resp, err := svc.Suggest(context.Background(), "  cannot login with password  ", 2)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Query != "cannot login with password" {
		t.Errorf("query not trimmed: %q", resp.Query)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(resp.Results))
	}
	if resp.Results[0].ID != login {
		t.Errorf("top result = %d, want %d", resp.Results[0].ID, login)
	}
	if resp.Results[1].ID != reset {
		t.Errorf("second result = %d, want %d", resp.Results[1].ID, reset)
	}
	if resp.Results[0].Description != "auth" || resp.Results[0].Title == "" {
		t.Errorf("result not hydrated: %+v", resp.Results[0])
	}
	if resp.Results[0].Similarity < resp.Results[1].Similarity {
		t.Error("results not sorted by similarity")
	}
	if resp.Partial {
		t.Error("response should not be partial when ready")
	}
}

func TestService_SuggestLimits(t *testing.T) {
	env := newTestEnv(t)
	for _, title := range []string{"a b", "b c", "c d", "d e", "e f", "f g", "g h", "h i", "i j", "j k", "k l", "l m"} {
		env.add(t, title, "")
	}
	svc := NewService(env.store, env.emb, env.index, env.cfg)
	ctx := context.Background()

	tests := []struct {
		k    int
		want int
	}{
		{0, 5},
		{-3, 5},
		{3, 3},
		{100, 10},
	}
	for _, tt := range tests {
		resp, err := svc.Suggest(ctx, "b c d", tt.k)
		if err != nil {
			t.Fatal(err)
		}
		if len(resp.Results) != tt.want {
			t.Errorf("k=%d: got %d results, want %d", tt.k, len(resp.Results), tt.want)
		}
	}
}

func TestService_SuggestEmptyIndexAndQuery(t *testing.T) {
	env := newTestEnv(t)
	svc := NewService(env.store, env.emb, env.index, env.cfg)
	ctx := context.Background()

	resp, err := svc.Suggest(ctx, "anything", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 0 {
		t.Errorf("expected no results, got %d", len(resp.Results))
	}
	if _, err := svc.Suggest(ctx, "   ", 5); !errors.Is(err, models.ErrEmptyQuery) {
		t.Errorf("expected ErrEmptyQuery, got %v", err)
	}
}

func TestService_SuggestDropsDeletedRecords(t *testing.T) {
	env := newTestEnv(t)
	gone := env.add(t, "printer jams on duplex", "")
	kept := env.add(t, "printer offline after update", "")
	if err := env.store.DeleteScenario(context.Background(), gone); err != nil {
		t.Fatal(err)
	}

	svc := NewService(env.store, env.emb, env.index, env.cfg)
	resp, err := svc.Suggest(context.Background(), "printer", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 || resp.Results[0].ID != kept {
		t.Errorf("expected only %d, got %+v", kept, resp.Results)
	}
}

func TestService_SuggestEncodingFailure(t *testing.T) {
	env := newTestEnv(t)
	env.emb.FailOn("broken")
	svc := NewService(env.store, env.emb, env.index, env.cfg)
	if _, err := svc.Suggest(context.Background(), "broken", 5); !errors.Is(err, embedding.ErrEncoding) {
		t.Errorf("expected ErrEncoding, got %v", err)
	}
}

type failingStore struct {
	storage.Storage
}

func (failingStore) GetScenariosByIDs(context.Context, []int64) ([]*models.Scenario, error) {
	return nil, errors.New("disk I/O error")
}

func (failingStore) GetScenario(context.Context, int64) (*models.Scenario, error) {
	return nil, errors.New("disk I/O error")
}

func TestService_StoreFailure(t *testing.T) {
	env := newTestEnv(t)
	env.add(t, "network timeout", "")
	svc := NewService(failingStore{env.store}, env.emb, env.index, env.cfg)

	if _, err := svc.Suggest(context.Background(), "network", 5); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Suggest: expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := svc.Get(context.Background(), 1); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Get: expected ErrStoreUnavailable, got %v", err)
	}
}

func TestService_PartialWhileLoading(t *testing.T) {
	env := newTestEnv(t)
	env.add(t, "slow page load", "")
	ready := false
	svc := NewService(env.store, env.emb, env.index, env.cfg, WithReadiness(func() bool { return ready }))

	resp, err := svc.Suggest(context.Background(), "slow", 5)
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Partial || len(resp.Results) != 1 {
		t.Errorf("expected one partial result, got partial=%v results=%d", resp.Partial, len(resp.Results))
	}
	ready = true
	resp, _ = svc.Suggest(context.Background(), "slow", 5)
	if resp.Partial {
		t.Error("expected complete result once ready")
	}
}

func TestService_Get(t *testing.T) {
	env := newTestEnv(t)
	id := env.add(t, "dark mode toggle", "settings")
	svc := NewService(env.store, env.emb, env.index, env.cfg)
	ctx := context.Background()

	sc, err := svc.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if sc.Title != "dark mode toggle" {
		t.Errorf("got %+v", sc)
	}
	if _, err := svc.Get(ctx, 999); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
