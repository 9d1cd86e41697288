package filesystem

import (
	"certificate-server/core"
	"certificate-server/stores/storetest"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *fsStore {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() failed: %v", err)
	}
	return store
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Store {
		return newTestStore(t)
	})
}

func TestNewStore_CreatesDirectory(t *testing.T) {
	base := filepath.Join(t.TempDir(), "nested", "path")
	if _, err := NewStore(base); err != nil {
		t.Fatalf("NewStore() failed: %v", err)
	}
	for _, dir := range []string{templatesDir, issuancesDir} {
		if _, err := os.Stat(filepath.Join(base, dir)); err != nil {
			t.Errorf("NewStore() did not create %s: %v", dir, err)
		}
	}
}

func TestPathTraversal(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	testCases := []string{
		"../etc/passwd",
		"../../secret",
		"..\\..\\windows\\system32",
		"/etc/passwd",
		"..",
		"",
	}
	for _, id := range testCases {
		t.Run(id, func(t *testing.T) {
			if _, err := store.Get(ctx, id); !errors.Is(err, core.ErrInvalidID) {
				t.Errorf("Get(%q) error mismatch: got %v, want ErrInvalidID", id, err)
			}
			if err := store.Delete(ctx, id); !errors.Is(err, core.ErrInvalidID) {
				t.Errorf("Delete(%q) error mismatch: got %v, want ErrInvalidID", id, err)
			}
		})
	}
}

func TestListSkipsCorruptFiles(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Create(ctx, &core.Template{Name: "valid"}); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	corrupt := filepath.Join(store.basePath, templatesDir, "broken.json")
	if err := os.WriteFile(corrupt, []byte("{not json"), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	templates, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(templates) != 1 || templates[0].Name != "valid" {
		t.Errorf("List() mismatch: got %d templates, want only the valid one", len(templates))
	}
}

func TestDeleteRemovesIssuances(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, &core.Template{Name: "to delete"})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if err := store.RecordIssuance(ctx, &core.Issuance{TemplateID: id, StudentID: "s1"}); err != nil {
		t.Fatalf("RecordIssuance() failed: %v", err)
	}
	if err := store.Delete(ctx, id); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(store.basePath, issuancesDir, id)); !os.IsNotExist(err) {
		t.Errorf("issuance directory still present after Delete(): %v", err)
	}
}

func TestPersistsAcrossInstances(t *testing.T) {
	base := t.TempDir()
	ctx := context.Background()

	first, err := NewStore(base)
	if err != nil {
		t.Fatalf("NewStore() failed: %v", err)
	}
	id, err := first.Create(ctx, &core.Template{Name: "durable"})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	second, err := NewStore(base)
	if err != nil {
		t.Fatalf("NewStore() failed: %v", err)
	}
	got, err := second.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Name != "durable" {
		t.Errorf("Name mismatch: got %q, want %q", got.Name, "durable")
	}
}
