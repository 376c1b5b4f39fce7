package storage

import (
	"context"
	"path/filepath"
	"testing"
)

var testFormats = []string{".yaml", ".json", ".xml"}

func tempFilePathExt(t *testing.T, ext string) string {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "lsh"+ext)
}

func runForAllFormats(t *testing.T, fn func(t *testing.T, ext string)) {
	t.Helper()
	for _, ext := range testFormats {
		t.Run(ext, func(t *testing.T) {
			fn(t, ext)
		})
	}
}

type widget struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestFileStore_UpsertGet(t *testing.T) {
	runForAllFormats(t, func(t *testing.T, ext string) {
		fs, err := NewFileStore(tempFilePathExt(t, ext))
		if err != nil {
			t.Fatalf("NewFileStore: %v", err)
		}
		ctx := context.Background()

		if err := fs.Upsert(ctx, CollectionJobs, "job-1", widget{Name: "a", Count: 1}); err != nil {
			t.Fatalf("Upsert: %v", err)
		}

		var got widget
		ok, err := fs.Get(ctx, CollectionJobs, "job-1", &got)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if !ok {
			t.Fatal("Get: want ok=true")
		}
		if got.Name != "a" || got.Count != 1 {
			t.Fatalf("Get: got %+v", got)
		}

		if err := fs.Upsert(ctx, CollectionJobs, "job-1", widget{Name: "b", Count: 2}); err != nil {
			t.Fatalf("Upsert overwrite: %v", err)
		}
		ok, err = fs.Get(ctx, CollectionJobs, "job-1", &got)
		if err != nil || !ok {
			t.Fatalf("Get after overwrite: ok=%v err=%v", ok, err)
		}
		if got.Name != "b" || got.Count != 2 {
			t.Fatalf("Get after overwrite: got %+v", got)
		}
	})
}

func TestFileStore_GetMissing(t *testing.T) {
	fs, err := NewFileStore(tempFilePathExt(t, ".json"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	var got widget
	ok, err := fs.Get(ctx, CollectionJobs, "nope", &got)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("Get: want ok=false for missing record")
	}
}

func TestFileStore_Delete(t *testing.T) {
	fs, err := NewFileStore(tempFilePathExt(t, ".json"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	_ = fs.Upsert(ctx, CollectionJobs, "job-1", widget{Name: "a"})
	if err := fs.Delete(ctx, CollectionJobs, "job-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := fs.Delete(ctx, CollectionJobs, "job-1"); err != ErrNotFound {
		t.Fatalf("Delete missing: got %v, want ErrNotFound", err)
	}
}

func TestFileStore_ListAndListRecent(t *testing.T) {
	fs, err := NewFileStore(tempFilePathExt(t, ".json"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		name := string(rune('a' + i))
		if err := fs.Upsert(ctx, CollectionExecutions, name, widget{Name: name, Count: i}); err != nil {
			t.Fatalf("Upsert %s: %v", name, err)
		}
	}

	var all []widget
	if err := fs.List(ctx, CollectionExecutions, &all); err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("List: got %d records, want 5", len(all))
	}
	if all[0].Name != "a" {
		t.Fatalf("List: want ascending insertion order, got first=%q", all[0].Name)
	}

	var recent []widget
	if err := fs.ListRecent(ctx, CollectionExecutions, 2, &recent); err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("ListRecent: got %d records, want 2", len(recent))
	}
	if recent[0].Name != "e" || recent[1].Name != "d" {
		t.Fatalf("ListRecent: want most-recent-first [e d], got %+v", recent)
	}
}

func TestFileStore_PersistsAcrossReopen(t *testing.T) {
	path := tempFilePathExt(t, ".yaml")
	ctx := context.Background()

	fs1, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := fs1.Upsert(ctx, CollectionConfig, "k", widget{Name: "v"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	fs2, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("reopen NewFileStore: %v", err)
	}
	var got widget
	ok, err := fs2.Get(ctx, CollectionConfig, "k", &got)
	if err != nil || !ok {
		t.Fatalf("Get after reopen: ok=%v err=%v", ok, err)
	}
	if got.Name != "v" {
		t.Fatalf("Get after reopen: got %+v", got)
	}
}
