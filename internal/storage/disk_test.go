package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/suggest/internal/models"
)

func TestDatabaseFiles(t *testing.T) {
	got := DatabaseFiles("/data/suggest.db")
	want := []string{"/data/suggest.db", "/data/suggest.db-wal", "/data/suggest.db-shm"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("file %d: got %q, want %q", i, got[i], want[i])
		}
	}
	if files := DatabaseFiles(""); files != nil {
		t.Errorf("empty path: got %v, want nil", files)
	}
}

func TestDiskUsageBytes_FilesAndSnapshotDir(t *testing.T) {
	dir := t.TempDir()
	snapshot := filepath.Join(dir, "index.snap")
	if err := os.WriteFile(snapshot, make([]byte, 64), 0644); err != nil {
		t.Fatal(err)
	}
	shards := filepath.Join(dir, "shards")
	if err := os.MkdirAll(filepath.Join(shards, "nested"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(shards, "a"), make([]byte, 10), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(shards, "nested", "b"), make([]byte, 6), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		paths []string
		want  int64
	}{
		{"snapshot only", []string{snapshot}, 64},
		{"nested dir", []string{shards}, 16},
		{"both", []string{snapshot, shards}, 80},
		{"missing and empty skipped", []string{"", filepath.Join(dir, "gone.db-wal"), snapshot}, 64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DiskUsageBytes(tt.paths...)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %d bytes, want %d", got, tt.want)
			}
		})
	}
}

func TestDiskUsageBytes_LiveDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "suggest.db")
	store, err := NewSQLiteStorage(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if err := store.CreateScenario(context.Background(), &models.Scenario{Title: "checkout with saved card"}, nil); err != nil {
		t.Fatal(err)
	}

	got, err := DiskUsageBytes(DatabaseFiles(dbPath)...)
	if err != nil {
		t.Fatal(err)
	}
	if got <= 0 {
		t.Errorf("expected a non-zero footprint, got %d", got)
	}
}
