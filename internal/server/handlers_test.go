package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/hyperjump/suggest/internal/config"
	"github.com/hyperjump/suggest/internal/embedding"
	"github.com/hyperjump/suggest/internal/indexer"
	"github.com/hyperjump/suggest/internal/indexsync"
	"github.com/hyperjump/suggest/internal/models"
	"github.com/hyperjump/suggest/internal/search"
	"github.com/hyperjump/suggest/internal/storage"
	"github.com/hyperjump/suggest/internal/vector"
	"go.uber.org/zap"
)

const testDim = 128

// indexHook adds created and updated records straight to the index.
type indexHook struct {
	index vector.VectorIndex
}

func (h indexHook) OnRecordCreated(ctx context.Context, id int64, _ string, vec []float32) error {
	return h.index.Add(ctx, id, vec)
}

func (h indexHook) OnRecordUpdated(ctx context.Context, id int64, _ string, vec []float32) error {
	return h.index.Add(ctx, id, vec)
}

type fakeSync struct{}

func (fakeSync) State() indexsync.State { return indexsync.StateLive }
func (fakeSync) Stats() indexsync.Stats { return indexsync.Stats{Loaded: 3, Applied: 1} }

type testServer struct {
	srv     *Server
	handler http.Handler
	emb     *embedding.MockEmbedder
	index   *vector.MemoryIndex
	store   *storage.SQLiteStorage
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "db.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	emb := embedding.NewMockEmbedder(testDim)
	vecIdx, err := vector.NewMemoryIndex(testDim)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { vecIdx.Close() })

	cfg := &config.Config{
		Server:  config.ServerConfig{Host: "localhost", Port: 8080},
		Storage: config.StorageConfig{DatabasePath: filepath.Join(dir, "db.sqlite")},
		Search:  config.SearchConfig{DefaultLimit: 5, MaxLimit: 10},
	}
	svc := search.NewService(store, emb, vecIdx, &cfg.Search)
	idx := indexer.NewIndexer(store, emb, indexHook{index: vecIdx})
	srv := NewServer(svc, idx, store, vecIdx, fakeSync{}, cfg, zap.NewNop())
	return &testServer{srv: srv, handler: srv.Routes(), emb: emb, index: vecIdx, store: store}
}

func (ts *testServer) do(t *testing.T, r *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, r)
	return w
}

func (ts *testServer) create(t *testing.T, title string) int64 {
	t.Helper()
	body, _ := json.Marshal(models.ScenarioInput{Title: title})
	r := httptest.NewRequest(http.MethodPost, "/scenarios", bytes.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := ts.do(t, r)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: status %d, body %s", w.Code, w.Body.String())
	}
	var out struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	return out.ID
}

func TestHandleHealth(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("body: %s", w.Body.String())
	}
}

func TestHandleCreateScenario_JSON(t *testing.T) {
	ts := newTestServer(t)
	id := ts.create(t, "user can log in with valid password")
	if id <= 0 {
		t.Fatalf("id: got %d", id)
	}
	if !ts.index.Contains(id) {
		t.Error("created scenario should be indexed")
	}
}

func TestHandleCreateScenario_Form(t *testing.T) {
	ts := newTestServer(t)
	form := url.Values{"title": {"export report as pdf"}, "description": {"from the dashboard"}}
	r := httptest.NewRequest(http.MethodPost, "/scenarios", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := ts.do(t, r)
	if w.Code != http.StatusCreated {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	n, err := ts.store.CountScenarios(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("count: got %d", n)
	}
}

func TestHandleCreateScenario_Invalid(t *testing.T) {
	ts := newTestServer(t)
	tests := []struct {
		name        string
		body        string
		contentType string
	}{
		{"malformed json", "{", "application/json"},
		{"missing title", `{"description":"x"}`, "application/json"},
		{"blank form title", "title=++", "application/x-www-form-urlencoded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/scenarios", strings.NewReader(tt.body))
			r.Header.Set("Content-Type", tt.contentType)
			w := ts.do(t, r)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status: got %d, want 400", w.Code)
			}
		})
	}
}

func TestHandleGetScenario(t *testing.T) {
	ts := newTestServer(t)
	id := ts.create(t, "reset forgotten password")

	w := ts.do(t, httptest.NewRequest(http.MethodGet, "/scenarios/"+itoa(id), nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var sc models.Scenario
	if err := json.NewDecoder(w.Body).Decode(&sc); err != nil {
		t.Fatal(err)
	}
	if sc.ID != id || sc.Title != "reset forgotten password" {
		t.Errorf("scenario: got %+v", sc)
	}
}

func TestHandleGetScenario_NotFound(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, httptest.NewRequest(http.MethodGet, "/scenarios/999", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status: got %d", w.Code)
	}
	var out map[string]string
	_ = json.NewDecoder(w.Body).Decode(&out)
	if out["error"] != "scenario not found" {
		t.Errorf("error: got %q", out["error"])
	}
}

func TestHandleGetScenario_BadID(t *testing.T) {
	ts := newTestServer(t)
	for _, id := range []string{"abc", "0", "-4"} {
		w := ts.do(t, httptest.NewRequest(http.MethodGet, "/scenarios/"+id, nil))
		if w.Code != http.StatusBadRequest {
			t.Errorf("id %q: status got %d, want 400", id, w.Code)
		}
	}
}

func TestHandleUpdateScenario(t *testing.T) {
	ts := newTestServer(t)
	id := ts.create(t, "old title")

	body, _ := json.Marshal(models.ScenarioInput{Title: "new title", Description: "changed"})
	r := httptest.NewRequest(http.MethodPut, "/scenarios/"+itoa(id), bytes.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := ts.do(t, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	sc, err := ts.store.GetScenario(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if sc.Title != "new title" || sc.Description != "changed" {
		t.Errorf("stored: got %+v", sc)
	}
}

func TestHandleUpdateScenario_NotFound(t *testing.T) {
	ts := newTestServer(t)
	body, _ := json.Marshal(models.ScenarioInput{Title: "anything"})
	r := httptest.NewRequest(http.MethodPut, "/scenarios/42", bytes.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := ts.do(t, r)
	if w.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", w.Code)
	}
}

func TestHandleSuggest(t *testing.T) {
	ts := newTestServer(t)
	loginID := ts.create(t, "user logs in with valid credentials")
	ts.create(t, "export monthly invoice")

	w := ts.do(t, httptest.NewRequest(http.MethodGet, "/suggest?query="+url.QueryEscape("user logs in")+"&k=1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	var resp models.SuggestResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("results: got %d, want 1", len(resp.Results))
	}
	if resp.Results[0].ID != loginID {
		t.Errorf("top hit: got %d, want %d", resp.Results[0].ID, loginID)
	}
}

func TestHandleSuggest_EmptyQuery(t *testing.T) {
	ts := newTestServer(t)
	for _, target := range []string{"/suggest", "/suggest?query=+++"} {
		w := ts.do(t, httptest.NewRequest(http.MethodGet, target, nil))
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status got %d, want 400", target, w.Code)
		}
	}
}

func TestHandleSuggest_BadK(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, httptest.NewRequest(http.MethodGet, "/suggest?query=login&k=many", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", w.Code)
	}
}

func TestHandleSuggest_FailureHidesDetail(t *testing.T) {
	ts := newTestServer(t)
	ts.emb.FailOn("broken query")

	w := ts.do(t, httptest.NewRequest(http.MethodGet, "/suggest?query="+url.QueryEscape("broken query"), nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d, want 500", w.Code)
	}
	var out map[string]string
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out["error"] != "search failed" {
		t.Errorf("error: got %q", out["error"])
	}
	if out["reference"] == "" {
		t.Error("expected a reference id")
	}
	if strings.Contains(w.Body.String(), "mock failure") {
		t.Errorf("response leaks internal detail: %s", w.Body.String())
	}
}

func TestHandleStatus(t *testing.T) {
	ts := newTestServer(t)
	ts.create(t, "first scenario")
	ts.create(t, "second scenario")

	w := ts.do(t, httptest.NewRequest(http.MethodGet, "/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out["scenarios"] != float64(2) {
		t.Errorf("scenarios: got %v", out["scenarios"])
	}
	if out["index_size"] != float64(2) {
		t.Errorf("index_size: got %v", out["index_size"])
	}
	if out["index_type"] != "memory" {
		t.Errorf("index_type: got %v", out["index_type"])
	}
	if out["sync_state"] != "live" {
		t.Errorf("sync_state: got %v", out["sync_state"])
	}
	stats, ok := out["sync_stats"].(map[string]interface{})
	if !ok || stats["loaded"] != float64(3) {
		t.Errorf("sync_stats: got %v", out["sync_stats"])
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func TestHandleStatus_ReportsIVFProbeSettings(t *testing.T) {
	ts := newTestServer(t)
	ivf, err := vector.NewIVFIndex(vector.IVFOptions{Dimensions: testDim, NumLists: 4, NumProbes: 9})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ivf.Close() })
	srv := NewServer(ts.srv.search, ts.srv.indexer, ts.store, ivf, nil, ts.srv.config, zap.NewNop())

	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out["index_type"] != "ivf" || out["index_lists"] != float64(4) || out["index_probes"] != float64(4) {
		t.Errorf("ivf settings: got type %v lists %v probes %v", out["index_type"], out["index_lists"], out["index_probes"])
	}
	if out["sync_state"] != "disabled" {
		t.Errorf("sync_state: got %v", out["sync_state"])
	}

	var mem map[string]interface{}
	if err := json.NewDecoder(ts.do(t, httptest.NewRequest(http.MethodGet, "/status", nil)).Body).Decode(&mem); err != nil {
		t.Fatal(err)
	}
	if _, has := mem["index_lists"]; has {
		t.Error("memory index should not report index_lists")
	}
}
