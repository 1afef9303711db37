package stores

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *SymbolStore {
	t.Helper()
	store, err := NewSymbolStore(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("NewSymbolStore failed: %v", err)
	}
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleSymbols() []SymbolRecord {
	return []SymbolRecord{
		{Name: "NET", Type: "boolean", Value: "y", Visibility: "y", Prompts: 1},
		{Name: "NETDEVICES", Type: "boolean", Value: "n", Visibility: "y", Prompts: 1, DirectDeps: "NET"},
		{Name: "WLAN", Type: "boolean", Value: "n", Visibility: "n", Prompts: 1, DirectDeps: "(NET && NETDEVICES)"},
	}
}

func TestWriteIndexAndQuery(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run, err := store.WriteIndex(ctx, "5.19.0", "/usr/src/linux", sampleSymbols())
	if err != nil {
		t.Fatalf("WriteIndex failed: %v", err)
	}
	if run.Symbols != 3 {
		t.Errorf("Expected 3 symbols recorded, got %d", run.Symbols)
	}

	symbols, err := store.QuerySymbols(ctx, run.ID, "NET%")
	if err != nil {
		t.Fatalf("QuerySymbols failed: %v", err)
	}
	if len(symbols) != 2 {
		t.Fatalf("Expected 2 matches for NET%%, got %d", len(symbols))
	}
	if symbols[0].Name != "NET" || symbols[1].Name != "NETDEVICES" {
		t.Errorf("Expected name-ordered results, got %+v", symbols)
	}

	all, err := store.QuerySymbols(ctx, run.ID, "")
	if err != nil {
		t.Fatalf("QuerySymbols failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 symbols, got %d", len(all))
	}
}

func TestLatestRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	latest, err := store.LatestRun(ctx)
	if err != nil {
		t.Fatalf("LatestRun failed: %v", err)
	}
	if latest != nil {
		t.Fatalf("Expected no runs in a fresh database, got %+v", latest)
	}

	if _, err := store.WriteIndex(ctx, "5.19.0", "/usr/src/linux", sampleSymbols()); err != nil {
		t.Fatalf("WriteIndex failed: %v", err)
	}
	latest, err = store.LatestRun(ctx)
	if err != nil {
		t.Fatalf("LatestRun failed: %v", err)
	}
	if latest == nil || latest.KernelVersion != "5.19.0" {
		t.Errorf("Unexpected latest run: %+v", latest)
	}
}

func TestNewSymbolStoreRequiresPath(t *testing.T) {
	if _, err := NewSymbolStore(""); err == nil {
		t.Fatal("Expected an error for an empty path")
	}
}
