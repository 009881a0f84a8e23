package rag

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadDirectory(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, filepath.Join(root, "playbook.md"), "销售流程手册")
	writeTestFile(t, filepath.Join(root, "notes", "renewal.txt"), "Renewal checklist")
	writeTestFile(t, filepath.Join(root, "empty.txt"), "")
	writeTestFile(t, filepath.Join(root, ".secret.txt"), "hidden")
	writeTestFile(t, filepath.Join(root, ".git", "config"), "hidden dir")

	docs, err := NewDirectoryLoader(nil, 0).Load(context.Background(), root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	sort.Strings(ids)
	want := []string{"notes/renewal.txt", "playbook.md"}
	if len(ids) != len(want) || ids[0] != want[0] || ids[1] != want[1] {
		t.Fatalf("loaded IDs = %v, want %v", ids, want)
	}

	for _, d := range docs {
		if d.Metadata["source"] != d.ID {
			t.Errorf("doc %s source metadata = %v, want the relative path", d.ID, d.Metadata["source"])
		}
		if _, ok := d.Metadata["modified"]; !ok {
			t.Errorf("doc %s missing modified metadata", d.ID)
		}
		if d.Metadata["format"] != "text" {
			t.Errorf("doc %s format = %v, want extractor metadata merged in", d.ID, d.Metadata["format"])
		}
	}
}

func TestLoadSkipsOversizedFiles(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, filepath.Join(root, "small.txt"), "ok")
	writeTestFile(t, filepath.Join(root, "big.txt"), strings.Repeat("x", 100))

	docs, err := NewDirectoryLoader(nil, 50).Load(context.Background(), root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "small.txt" {
		t.Errorf("loaded %d docs %v, want only small.txt", len(docs), docs)
	}
}

func TestLoadSkipsUnextractableFiles(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, filepath.Join(root, "good.txt"), "fine")
	if err := os.WriteFile(filepath.Join(root, "bad.txt"), []byte{0xff, 0xfe}, 0o644); err != nil {
		t.Fatal(err)
	}

	docs, err := NewDirectoryLoader(nil, 0).Load(context.Background(), root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "good.txt" {
		t.Errorf("loaded %v, want only good.txt", docs)
	}
}

func TestLoadMissingRoot(t *testing.T) {
	// The walk root itself failing is the one fatal case.
	if _, err := NewDirectoryLoader(nil, 0).Load(context.Background(), filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("Load of missing root succeeded, want error")
	}
}

func TestLoadHonorsContext(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, filepath.Join(root, "a.txt"), "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewDirectoryLoader(nil, 0).Load(ctx, root); err == nil {
		t.Error("Load with canceled context succeeded, want error")
	}
}
