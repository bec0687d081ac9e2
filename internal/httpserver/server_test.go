package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tinytelemetry/valuewatch/internal/duckdb"
	"github.com/tinytelemetry/valuewatch/internal/model"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) (*duckdb.Store, *gin.Engine) {
	t.Helper()
	store, err := duckdb.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	srv := NewServer("", store)
	return store, srv.routes()
}

func get(t *testing.T, r *gin.Engine, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal %s: %v (body %q)", path, err, w.Body.String())
	}
	return w, body
}

func seedStore(t *testing.T, store *duckdb.Store) {
	t.Helper()
	ctx := context.Background()
	items := []model.TrackedItem{
		{ID: "gpu", Name: "GPU", URL: "https://shop.example/gpu", Selector: ".price", PreviousValue: "499", LatestValue: "479", LastUpdated: time.Now()},
		{ID: "ssd", Name: "SSD", URL: "https://shop.example/ssd", Selector: "#cost", PreviousValue: model.NoPreviousValue},
	}
	if err := store.SaveItems(ctx, items); err != nil {
		t.Fatalf("SaveItems: %v", err)
	}
	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	for i, v := range []string{"489", "479"} {
		ch := model.ValueChange{ItemID: "gpu", Name: "GPU", OldValue: "499", NewValue: v, At: base.Add(time.Duration(i) * time.Hour)}
		if err := store.RecordChange(ctx, ch); err != nil {
			t.Fatalf("RecordChange: %v", err)
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	store, r := newTestServer(t)
	seedStore(t, store)

	w, body := get(t, r, "/api/health")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	if body["item_count"] != float64(2) {
		t.Errorf("item_count = %v, want 2", body["item_count"])
	}
}

func TestHealthEndpoint_WrongMethod(t *testing.T) {
	_, r := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed && w.Code != http.StatusNotFound {
		t.Errorf("health POST status = %d, want 405 or 404", w.Code)
	}
}

func TestItemsEndpoint(t *testing.T) {
	store, r := newTestServer(t)
	seedStore(t, store)

	w, body := get(t, r, "/api/items")
	if w.Code != http.StatusOK {
		t.Fatalf("items status = %d", w.Code)
	}
	items, ok := body["items"].([]any)
	if !ok || len(items) != 2 {
		t.Fatalf("items = %v", body["items"])
	}
	first := items[0].(map[string]any)
	if first["id"] != "gpu" || first["latest_value"] != "479" || first["previous_value"] != "499" {
		t.Errorf("first item = %v", first)
	}
	if _, ok := first["last_updated"]; !ok {
		t.Error("first item lacks last_updated")
	}
	second := items[1].(map[string]any)
	if _, ok := second["last_updated"]; ok {
		t.Error("never-updated item has last_updated")
	}
}

func TestItemChangesEndpoint(t *testing.T) {
	store, r := newTestServer(t)
	seedStore(t, store)

	w, body := get(t, r, "/api/items/gpu/changes?limit=1")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	changes := body["changes"].([]any)
	if len(changes) != 1 {
		t.Fatalf("changes = %v, want 1 entry", changes)
	}
	if got := changes[0].(map[string]any)["new_value"]; got != "479" {
		t.Errorf("newest change = %v, want 479", got)
	}
}

func TestItemChangesEndpoint_UnknownItem(t *testing.T) {
	_, r := newTestServer(t)
	w, _ := get(t, r, "/api/items/missing/changes")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestChangesEndpoint(t *testing.T) {
	store, r := newTestServer(t)
	seedStore(t, store)

	w, body := get(t, r, "/api/changes")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if changes := body["changes"].([]any); len(changes) != 2 {
		t.Errorf("changes = %d, want 2", len(changes))
	}
}

func TestChangesEndpoint_BadLimit(t *testing.T) {
	_, r := newTestServer(t)
	for _, limit := range []string{"abc", "-1", "5000"} {
		w, _ := get(t, r, "/api/changes?limit="+limit)
		if w.Code != http.StatusBadRequest {
			t.Errorf("limit=%s status = %d, want 400", limit, w.Code)
		}
	}
}

func TestStopWithoutStart(t *testing.T) {
	srv := NewServer("", nil)
	if err := srv.Stop(); err != nil {
		t.Errorf("Stop: %v", err)
	}
}
