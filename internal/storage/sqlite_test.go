package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/mpataki/dtm/internal/models"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "dtm.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func createTestBatch(t *testing.T, store *Storage) int64 {
	t.Helper()
	id, err := store.CreateBatch(&models.Batch{
		Command:   "make test",
		PathCount: 2,
		Workers:   4,
		Shell:     true,
		Timeout:   30 * time.Second,
		Status:    models.BatchRunning,
	})
	if err != nil {
		t.Fatalf("CreateBatch returned error: %v", err)
	}
	return id
}

func TestCreateAndGetBatch(t *testing.T) {
	store := newTestStorage(t)
	id := createTestBatch(t, store)

	batch, err := store.GetBatch(id)
	if err != nil {
		t.Fatalf("GetBatch returned error: %v", err)
	}

	if batch.ID != id {
		t.Errorf("ID = %d, want %d", batch.ID, id)
	}
	if batch.Command != "make test" {
		t.Errorf("Command = %q, want %q", batch.Command, "make test")
	}
	if batch.PathCount != 2 {
		t.Errorf("PathCount = %d, want 2", batch.PathCount)
	}
	if !batch.Shell {
		t.Error("Shell = false, want true")
	}
	if batch.Timeout != 30*time.Second {
		t.Errorf("Timeout = %s, want 30s", batch.Timeout)
	}
	if batch.Status != models.BatchRunning {
		t.Errorf("Status = %q, want %q", batch.Status, models.BatchRunning)
	}
	if batch.CompletedAt != nil {
		t.Error("CompletedAt should be nil for a running batch")
	}
}

func TestFinishBatchRecordsTasksAndFailureCount(t *testing.T) {
	store := newTestStorage(t)
	id := createTestBatch(t, store)

	results := []models.TaskResult{
		{WorkDir: "/work/a", PID: 11, PPID: 10, ExitCode: 0, Status: models.TaskCompleted, Message: "ok"},
		{WorkDir: "/work/b", PID: 12, PPID: 10, ExitCode: 2, Status: models.TaskError, Message: "boom", Output: "stderr text"},
	}
	if err := store.FinishBatch(id, results); err != nil {
		t.Fatalf("FinishBatch returned error: %v", err)
	}

	batch, err := store.GetBatch(id)
	if err != nil {
		t.Fatalf("GetBatch returned error: %v", err)
	}
	if batch.Status != models.BatchFailed {
		t.Errorf("Status = %q, want %q", batch.Status, models.BatchFailed)
	}
	if batch.FailedCount != 1 {
		t.Errorf("FailedCount = %d, want 1", batch.FailedCount)
	}
	if batch.CompletedAt == nil {
		t.Error("CompletedAt not set by FinishBatch")
	}

	tasks, err := store.GetTasksForBatch(id)
	if err != nil {
		t.Fatalf("GetTasksForBatch returned error: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("Got %d tasks, want 2", len(tasks))
	}
	if tasks[0].SequenceNum != 1 || tasks[1].SequenceNum != 2 {
		t.Errorf("Sequence numbers = %d, %d, want 1, 2", tasks[0].SequenceNum, tasks[1].SequenceNum)
	}
	if tasks[0].WorkDir != "/work/a" {
		t.Errorf("tasks[0].WorkDir = %q, want %q", tasks[0].WorkDir, "/work/a")
	}
	if tasks[1].ExitCode != 2 {
		t.Errorf("tasks[1].ExitCode = %d, want 2", tasks[1].ExitCode)
	}
	if tasks[1].Output != "stderr text" {
		t.Errorf("tasks[1].Output = %q, want %q", tasks[1].Output, "stderr text")
	}
}

func TestFinishBatchAllSucceeded(t *testing.T) {
	store := newTestStorage(t)
	id := createTestBatch(t, store)

	results := []models.TaskResult{
		{WorkDir: "/work/a", ExitCode: 0, Status: models.TaskCompleted},
	}
	if err := store.FinishBatch(id, results); err != nil {
		t.Fatalf("FinishBatch returned error: %v", err)
	}

	batch, _ := store.GetBatch(id)
	if batch.Status != models.BatchComplete {
		t.Errorf("Status = %q, want %q", batch.Status, models.BatchComplete)
	}
	if batch.FailedCount != 0 {
		t.Errorf("FailedCount = %d, want 0", batch.FailedCount)
	}
}

func TestListBatchesNewestFirst(t *testing.T) {
	store := newTestStorage(t)

	first := createTestBatch(t, store)
	second := createTestBatch(t, store)

	batches, err := store.ListBatches(10)
	if err != nil {
		t.Fatalf("ListBatches returned error: %v", err)
	}
	if len(batches) != 2 {
		t.Fatalf("Got %d batches, want 2", len(batches))
	}
	if batches[0].ID != second || batches[1].ID != first {
		t.Errorf("Order = %d, %d, want %d, %d", batches[0].ID, batches[1].ID, second, first)
	}
}

func TestListBatchesRespectsLimit(t *testing.T) {
	store := newTestStorage(t)
	for i := 0; i < 5; i++ {
		createTestBatch(t, store)
	}

	batches, err := store.ListBatches(3)
	if err != nil {
		t.Fatalf("ListBatches returned error: %v", err)
	}
	if len(batches) != 3 {
		t.Errorf("Got %d batches, want 3", len(batches))
	}
}

func TestDeleteBatchRemovesTasks(t *testing.T) {
	store := newTestStorage(t)
	id := createTestBatch(t, store)
	store.FinishBatch(id, []models.TaskResult{
		{WorkDir: "/work/a", Status: models.TaskCompleted},
	})

	if err := store.DeleteBatch(id); err != nil {
		t.Fatalf("DeleteBatch returned error: %v", err)
	}

	if _, err := store.GetBatch(id); err == nil {
		t.Error("GetBatch succeeded for a deleted batch")
	}

	tasks, err := store.GetTasksForBatch(id)
	if err != nil {
		t.Fatalf("GetTasksForBatch returned error: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("Got %d tasks after delete, want 0", len(tasks))
	}
}

func TestGetBatchNotFound(t *testing.T) {
	store := newTestStorage(t)
	if _, err := store.GetBatch(12345); err == nil {
		t.Error("Expected an error for an unknown batch ID")
	}
}

func TestZeroTimeoutStoredAsNull(t *testing.T) {
	store := newTestStorage(t)
	id, err := store.CreateBatch(&models.Batch{
		Command:   "true",
		PathCount: 1,
		Workers:   1,
		Status:    models.BatchRunning,
	})
	if err != nil {
		t.Fatalf("CreateBatch returned error: %v", err)
	}

	batch, err := store.GetBatch(id)
	if err != nil {
		t.Fatalf("GetBatch returned error: %v", err)
	}
	if batch.Timeout != 0 {
		t.Errorf("Timeout = %s, want 0", batch.Timeout)
	}
}
