package repo

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	if _, found, err := store.Get(ctx, "missing"); err != nil || found {
		t.Fatalf("expected missing key, got found=%v err=%v", found, err)
	}
	if err := store.Set(ctx, "cobranzas_v3_data_ana", []byte(`[]`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Set(ctx, "cobranzas_v3_data_ana", []byte(`[{"id":"1"}]`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	v, found, err := store.Get(ctx, "cobranzas_v3_data_ana")
	if err != nil || !found {
		t.Fatalf("expected stored value, got found=%v err=%v", found, err)
	}
	if string(v) != `[{"id":"1"}]` {
		t.Fatalf("expected overwritten value, got %s", v)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, Options{
		Backend:    BackendSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "cobranzas.db"),
	}, discardLogger())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer store.Close()
	exerciseStore(t, store)
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), Options{Backend: "mongo"}, discardLogger())
	if !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("expected ErrUnknownBackend, got %v", err)
	}
}
