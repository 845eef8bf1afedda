package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rcliao/brick-matrix/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteBackend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	b, err := NewSQLiteBackend(path)
	if err != nil {
		t.Fatalf("create backend: %v", err)
	}
	if b.Path() != path {
		t.Fatalf("expected path %s, got %s", path, b.Path())
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestSQLiteLoadEmpty(t *testing.T) {
	data, err := newTestSQLite(t).Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if data != nil {
		t.Errorf("expected nil data, got %q", data)
	}
}

func TestSQLiteSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	b := newTestSQLite(t)

	if err := b.Save(ctx, []byte(`[1]`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := b.Save(ctx, []byte(`[1,2]`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	data, err := b.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(data) != `[1,2]` {
		t.Errorf("expected latest blob, got %q", data)
	}
}

func TestSQLiteHistory(t *testing.T) {
	ctx := context.Background()
	b := newTestSQLite(t).WithHistoryDepth(2)

	for _, blob := range []string{`["a"]`, `["b"]`, `["c"]`, `["d"]`} {
		if err := b.Save(ctx, []byte(blob)); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	gens, err := b.History(ctx)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(gens) != 2 {
		t.Fatalf("expected 2 retained generations, got %d", len(gens))
	}
	data, err := b.LoadGeneration(ctx, gens[0].Seq)
	if err != nil {
		t.Fatalf("load generation: %v", err)
	}
	if string(data) != `["c"]` {
		t.Errorf("expected newest archived blob, got %q", data)
	}
	if _, err := b.LoadGeneration(ctx, -1); err == nil {
		t.Error("expected error for missing generation")
	}
}

func TestSQLiteBackedStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "dir", "bricks.db")

	backend, err := NewSQLiteBackend(path)
	if err != nil {
		t.Fatalf("create backend: %v", err)
	}
	s := New(backend, Options{})
	b := mustCreate(t, s, model.Draft{
		Type:    model.TypeProtocol,
		Title:   "Sterilization",
		Content: json.RawMessage(`{"steps": ["wash", "autoclave"]}`),
	})
	backend.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Fatal("expected db file to be created")
	}

	reopened, err := NewSQLiteBackend(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	got, err := New(reopened, Options{}).Get(ctx, b.ID)
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if string(got.Content) != `{"steps":["wash","autoclave"]}` {
		t.Errorf("unexpected content %s", got.Content)
	}
}

func TestFileBackend(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "bricks.json")
	fb, err := NewFileBackend(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if fb.Path() != path {
		t.Errorf("expected path %s, got %s", path, fb.Path())
	}

	data, err := fb.Load(ctx)
	if err != nil || data != nil {
		t.Fatalf("expected empty load, got %q, %v", data, err)
	}

	s := New(fb, Options{})
	mustCreate(t, s, draft(model.TypeStyleGuide, "Tone", "warm and brief"))

	list, err := New(fb, Options{}).List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Title != "Tone" {
		t.Errorf("expected persisted brick, got %+v", list)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("expected no temp files left behind, got %d entries", len(entries))
	}
}

func TestCorruptBlobIsStorageError(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	backend.Save(ctx, []byte(`not json`))

	_, err := New(backend, Options{}).List(ctx)
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("expected ErrStorageUnavailable, got %v", err)
	}
}
