package provider

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		in      string
		want    Type
		wantErr bool
	}{
		{"file", TypeFile, false},
		{"", TypeFile, false},
		{"consul", TypeConsul, false},
		{"etcd", TypeEtcd, false},
		{"zookeeper", TypeZookeeper, false},
		{"zk", TypeZookeeper, false},
		{"bogus", "", true},
	}

	for _, tt := range tests {
		got, err := ParseType(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseType(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseType(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewRequiresPath(t *testing.T) {
	if _, err := New(ProviderConfig{Type: TypeFile}); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestNewRejectsUnknownType(t *testing.T) {
	if _, err := New(ProviderConfig{Type: "bogus", Path: "x"}); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestFileProviderLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(path, []byte("name: herald\n"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	p, err := NewFileProvider(path)
	if err != nil {
		t.Fatalf("NewFileProvider failed: %v", err)
	}
	defer p.Close()

	if p.Type() != TypeFile {
		t.Errorf("unexpected type: %q", p.Type())
	}

	data, err := p.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(data) != "name: herald\n" {
		t.Errorf("unexpected content: %q", data)
	}
}

func TestFileProviderLoadMissingFile(t *testing.T) {
	p, err := NewFileProvider(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("NewFileProvider failed: %v", err)
	}
	defer p.Close()

	if _, err := p.Load(context.Background()); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFileProviderWatchSignalsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(path, []byte("v: 1\n"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	p, err := NewFileProvider(path)
	if err != nil {
		t.Fatalf("NewFileProvider failed: %v", err)
	}
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := p.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	// Let the watcher arm before touching the file.
	time.Sleep(300 * time.Millisecond)

	if err := os.WriteFile(path, []byte("v: 2\n"), 0o644); err != nil {
		t.Fatalf("failed to update file: %v", err)
	}

	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change signal")
	}
}

func TestFileProviderWatchIgnoresSiblings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(path, []byte("v: 1\n"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	p, err := NewFileProvider(path)
	if err != nil {
		t.Fatalf("NewFileProvider failed: %v", err)
	}
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := p.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	time.Sleep(300 * time.Millisecond)

	sibling := filepath.Join(dir, "other.yaml")
	if err := os.WriteFile(sibling, []byte("noise\n"), 0o644); err != nil {
		t.Fatalf("failed to write sibling: %v", err)
	}

	select {
	case <-ch:
		t.Error("sibling write should not signal a change")
	case <-time.After(500 * time.Millisecond):
	}
}

func TestFileProviderWatchAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(path, []byte("v: 1\n"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	p, err := NewFileProvider(path)
	if err != nil {
		t.Fatalf("NewFileProvider failed: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := p.Watch(context.Background()); err == nil {
		t.Error("expected error watching a closed provider")
	}
}
