package duckdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/tinytelemetry/valuewatch/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore("")
	if err != nil {
		t.Fatalf("NewStore(\"\") failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveAndLoadItems(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	updated := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	items := []model.TrackedItem{
		{ID: "b", Name: "GPU", URL: "https://shop.example/gpu", Selector: ".price", PreviousValue: "499", LatestValue: "479", LastUpdated: updated},
		{ID: "a", Name: "SSD", URL: "https://shop.example/ssd", Selector: "#cost", PreviousValue: model.NoPreviousValue},
	}
	if err := store.SaveItems(ctx, items); err != nil {
		t.Fatalf("SaveItems: %v", err)
	}

	got, err := store.LoadItems(ctx)
	if err != nil {
		t.Fatalf("LoadItems: %v", err)
	}
	if diff := cmp.Diff(items, got); diff != "" {
		t.Errorf("LoadItems mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveItemsReplacesTable(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := []model.TrackedItem{{ID: "a", Name: "one"}, {ID: "b", Name: "two"}}
	if err := store.SaveItems(ctx, first); err != nil {
		t.Fatalf("SaveItems: %v", err)
	}
	if err := store.SaveItems(ctx, first[1:]); err != nil {
		t.Fatalf("SaveItems: %v", err)
	}

	got, err := store.LoadItems(ctx)
	if err != nil {
		t.Fatalf("LoadItems: %v", err)
	}
	if len(got) != 1 || got[0].ID != "b" {
		t.Errorf("LoadItems = %+v, want only item b", got)
	}
}

func TestLoadItemsEmpty(t *testing.T) {
	store := newTestStore(t)
	got, err := store.LoadItems(context.Background())
	if err != nil {
		t.Fatalf("LoadItems: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("LoadItems = %d items, want 0", len(got))
	}
}

func TestNewStoreFileReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "valuewatch.duckdb")
	ctx := context.Background()

	store, err := NewStore(path, 5*time.Second)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if store.QueryTimeout != 5*time.Second {
		t.Errorf("QueryTimeout = %v, want 5s", store.QueryTimeout)
	}
	if err := store.SaveItems(ctx, []model.TrackedItem{{ID: "x", Name: "kept"}}); err != nil {
		t.Fatalf("SaveItems: %v", err)
	}
	store.Close()

	reopened, err := NewStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if reopened.DBPath() != path {
		t.Errorf("DBPath = %q, want %q", reopened.DBPath(), path)
	}
	got, err := reopened.LoadItems(ctx)
	if err != nil {
		t.Fatalf("LoadItems: %v", err)
	}
	if len(got) != 1 || got[0].Name != "kept" {
		t.Errorf("LoadItems after reopen = %+v", got)
	}
}
