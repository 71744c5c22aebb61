package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/reelworks/segfilter/internal/jobs"
)

func TestJSONStore_MissingFileIsEmpty(t *testing.T) {
	store, err := NewJSONStore(filepath.Join(t.TempDir(), "data", "jobs.json"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	loaded, err := store.LoadJobs()
	if err != nil {
		t.Fatalf("failed to load jobs: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("expected no jobs, got %d", len(loaded))
	}
}

func TestJSONStore_SaveWritesKeyedRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	store, _ := NewJSONStore(path)

	store.SaveJob(createTestJob("a"))
	store.SaveJob(createTestJob("b"))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("job file not written: %v", err)
	}
	var onDisk map[string]*jobs.Job
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatalf("job file is not a JSON object: %v", err)
	}
	if len(onDisk) != 2 || onDisk["a"] == nil || onDisk["b"] == nil {
		t.Errorf("expected records keyed a and b, got %v", onDisk)
	}

	// No temp files left behind
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("expected only jobs.json in directory, got %d entries", len(entries))
	}
}

func TestJSONStore_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")

	store1, _ := NewJSONStore(path)
	job := createTestJob("persist-test")
	job.Status = jobs.StatusFailed
	job.FilterName = "blur"
	job.Error = "merge failed"
	store1.SaveJob(job)
	store1.SaveJob(createTestJob("gone"))
	store1.DeleteJob("gone")
	store1.Close()

	store2, err := NewJSONStore(path)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	loaded, _ := store2.LoadJobs()
	if len(loaded) != 1 {
		t.Fatalf("expected 1 job, got %d", len(loaded))
	}
	got := loaded[0]
	if got.ID != "persist-test" || got.Status != jobs.StatusFailed || got.Error != "merge failed" {
		t.Errorf("unexpected job after reload: %+v", got)
	}
	if got.Analytics == nil || got.Analytics.Width != 1920 {
		t.Errorf("analytics not persisted: %+v", got.Analytics)
	}
}

func TestJSONStore_ReturnsCopies(t *testing.T) {
	store, _ := NewJSONStore(filepath.Join(t.TempDir(), "jobs.json"))

	job := createTestJob("a")
	store.SaveJob(job)
	job.Status = jobs.StatusCompleted
	job.Analytics.Width = 1

	loaded, _ := store.LoadJobs()
	if loaded[0].Status != jobs.StatusUploaded {
		t.Errorf("store shares state with caller: status %s", loaded[0].Status)
	}
	if loaded[0].Analytics.Width != 1920 {
		t.Errorf("store shares analytics with caller: width %d", loaded[0].Analytics.Width)
	}
}

func TestJSONStore_DeleteUnknownIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	store, _ := NewJSONStore(path)

	if err := store.DeleteJob("missing"); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("deleting an unknown job should not create the file")
	}
}

func TestJSONStore_CorruptFileRenamed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	os.WriteFile(path, []byte(`{"a": {"id": `), 0644)

	store, err := NewJSONStore(path)
	if err != nil {
		t.Fatalf("corrupt file should not prevent startup: %v", err)
	}
	loaded, _ := store.LoadJobs()
	if len(loaded) != 0 {
		t.Errorf("expected no jobs, got %d", len(loaded))
	}
	if _, err := os.Stat(path + ".corrupt"); err != nil {
		t.Error("corrupt file should be renamed to .corrupt")
	}
}

func TestJSONStore_KeyIsAuthoritativeID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	os.WriteFile(path, []byte(`{"real-id": {"id": "stale", "status": "uploaded"}, "empty": null}`), 0644)

	store, _ := NewJSONStore(path)
	loaded, _ := store.LoadJobs()
	if len(loaded) != 1 {
		t.Fatalf("expected null record to be dropped, got %d jobs", len(loaded))
	}
	if loaded[0].ID != "real-id" {
		t.Errorf("expected ID from key, got %s", loaded[0].ID)
	}
}

func TestInitStore_Backends(t *testing.T) {
	tests := []struct {
		backend string
		want    string
	}{
		{"json", "*store.JSONStore"},
		{"sqlite", "*store.SQLiteStore"},
		{"", "*store.JSONStore"},
		{"bogus", "*store.JSONStore"},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			s, err := InitStore(tt.backend, t.TempDir())
			if err != nil {
				t.Fatalf("InitStore(%q): %v", tt.backend, err)
			}
			defer s.Close()

			var got string
			switch s.(type) {
			case *JSONStore:
				got = "*store.JSONStore"
			case *SQLiteStore:
				got = "*store.SQLiteStore"
			}
			if got != tt.want {
				t.Errorf("InitStore(%q) = %s, want %s", tt.backend, got, tt.want)
			}
		})
	}
}

func TestStores_TableRoundTrip(t *testing.T) {
	for _, backend := range []string{"json", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			dir := t.TempDir()

			s1, err := InitStore(backend, dir)
			if err != nil {
				t.Fatalf("InitStore: %v", err)
			}
			table, err := jobs.NewTableWithStore(s1)
			if err != nil {
				t.Fatalf("NewTableWithStore: %v", err)
			}
			first := createTestJob("x")
			table.Create("first", first.Filename, first.SourcePath, *first.Analytics)
			table.Create("second", "b.mp4", "/data/uploads/second_b.mp4", *first.Analytics)
			table.StartProcessing("first", "sepia")
			table.Delete("second")
			s1.Close()

			s2, err := InitStore(backend, dir)
			if err != nil {
				t.Fatalf("reopen: %v", err)
			}
			defer s2.Close()
			table, err = jobs.NewTableWithStore(s2)
			if err != nil {
				t.Fatalf("NewTableWithStore: %v", err)
			}

			all := table.All()
			if len(all) != 1 {
				t.Fatalf("expected 1 job after reload, got %d", len(all))
			}
			if all[0].ID != "first" || all[0].Status != jobs.StatusProcessing || all[0].FilterName != "sepia" {
				t.Errorf("unexpected job after reload: %+v", all[0])
			}
		})
	}
}
