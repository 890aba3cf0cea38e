package slurmproxy

import (
	"errors"
	"testing"
	"time"
)

func TestInMemoryRegistryUpsertAndLookup(t *testing.T) {
	registry := NewInMemoryRegistry()
	task := sampleTask("u1")
	record := &JobRecord{
		SlurmJobID:    1002,
		SlurmUsername: "alice",
		SlurmJobState: SlurmStateUnknown,
		Task:          *task,
	}
	if err := registry.Upsert(record); err != nil {
		t.Fatalf("Failed to upsert record: %v", err)
	}

	byID, err := registry.FindBySlurmJobID(1002)
	if err != nil {
		t.Fatalf("Failed to find by slurm_job_id: %v", err)
	}
	if byID.Task.UUID != "u1" {
		t.Errorf("Unexpected task uuid: %s", byID.Task.UUID)
	}
	if byID.CreatedAt.IsZero() || byID.UpdatedAt.IsZero() {
		t.Error("Timestamps must be set on insert")
	}

	byUUID, err := registry.FindByTaskUUID("u1")
	if err != nil {
		t.Fatalf("Failed to find by task uuid: %v", err)
	}
	if byUUID.SlurmJobID != 1002 {
		t.Errorf("Unexpected slurm_job_id: %d", byUUID.SlurmJobID)
	}
}

func TestInMemoryRegistryUpsertIdempotent(t *testing.T) {
	registry := NewInMemoryRegistry()
	record := &JobRecord{SlurmJobID: 1, SlurmJobState: SlurmStateUnknown, Task: *sampleTask("u1")}
	if err := registry.Upsert(record); err != nil {
		t.Fatalf("Failed to upsert record: %v", err)
	}
	// Re-inserting the same (slurm_job_id, task uuid) pair is a no-op.
	if err := registry.Upsert(record); err != nil {
		t.Errorf("Expected idempotent upsert, got %v", err)
	}
}

func TestInMemoryRegistryUniqueness(t *testing.T) {
	registry := NewInMemoryRegistry()
	if err := registry.Upsert(&JobRecord{SlurmJobID: 1, Task: *sampleTask("u1")}); err != nil {
		t.Fatalf("Failed to upsert record: %v", err)
	}

	var duplicate *DuplicateError
	err := registry.Upsert(&JobRecord{SlurmJobID: 1, Task: *sampleTask("u2")})
	if !errors.As(err, &duplicate) {
		t.Errorf("Expected DuplicateError for reused slurm_job_id, got %v", err)
	}
	err = registry.Upsert(&JobRecord{SlurmJobID: 2, Task: *sampleTask("u1")})
	if !errors.As(err, &duplicate) {
		t.Errorf("Expected DuplicateError for reused task uuid, got %v", err)
	}
}

func TestInMemoryRegistryUpdateState(t *testing.T) {
	registry := NewInMemoryRegistry()
	if err := registry.Upsert(&JobRecord{SlurmJobID: 1, SlurmJobState: "RUNNING", Task: *sampleTask("u1")}); err != nil {
		t.Fatalf("Failed to upsert record: %v", err)
	}

	before, _ := registry.FindBySlurmJobID(1)
	time.Sleep(10 * time.Millisecond)
	if err := registry.UpdateState(1, "COMPLETED"); err != nil {
		t.Fatalf("Failed to update state: %v", err)
	}
	after, _ := registry.FindBySlurmJobID(1)
	if after.SlurmJobState != "COMPLETED" {
		t.Errorf("Expected state COMPLETED, got %s", after.SlurmJobState)
	}
	if !after.UpdatedAt.After(before.UpdatedAt) {
		t.Error("UpdateState must refresh updated_at")
	}

	// Writing the same state again is a no-op beyond the timestamp.
	if err := registry.UpdateState(1, "COMPLETED"); err != nil {
		t.Errorf("Expected benign no-op, got %v", err)
	}

	var notFound *NotFoundError
	if err := registry.UpdateState(99, "COMPLETED"); !errors.As(err, &notFound) {
		t.Errorf("Expected NotFoundError for missing record, got %v", err)
	}
}

func TestInMemoryRegistryDelete(t *testing.T) {
	registry := NewInMemoryRegistry()
	if err := registry.Upsert(&JobRecord{SlurmJobID: 1, Task: *sampleTask("u1")}); err != nil {
		t.Fatalf("Failed to upsert record: %v", err)
	}

	deleted, err := registry.Delete(1)
	if err != nil {
		t.Fatalf("Failed to delete record: %v", err)
	}
	if deleted.Task.UUID != "u1" {
		t.Errorf("Unexpected deleted record: %+v", deleted)
	}

	var notFound *NotFoundError
	if _, err := registry.FindBySlurmJobID(1); !errors.As(err, &notFound) {
		t.Error("Record must be gone after delete")
	}
	if _, err := registry.FindByTaskUUID("u1"); !errors.As(err, &notFound) {
		t.Error("Secondary key must be gone after delete")
	}
	if _, err := registry.Delete(1); !errors.As(err, &notFound) {
		t.Errorf("Expected NotFoundError for double delete, got %v", err)
	}
}

func TestInMemoryRegistryScanWindow(t *testing.T) {
	registry := NewInMemoryRegistry()
	old := &JobRecord{
		SlurmJobID: 1,
		Task:       *sampleTask("u1"),
		CreatedAt:  time.Now().UTC().Add(-48 * time.Hour),
	}
	recent := &JobRecord{SlurmJobID: 2, Task: *sampleTask("u2")}
	if err := registry.Upsert(old); err != nil {
		t.Fatalf("Failed to upsert record: %v", err)
	}
	if err := registry.Upsert(recent); err != nil {
		t.Fatalf("Failed to upsert record: %v", err)
	}

	windowed, err := registry.Scan(24 * time.Hour)
	if err != nil {
		t.Fatalf("Failed to scan: %v", err)
	}
	if len(windowed) != 1 || windowed[0].SlurmJobID != 2 {
		t.Errorf("Expected only the recent record in the window, got %+v", windowed)
	}

	// A non-positive window disables the age filter.
	all, err := registry.Scan(0)
	if err != nil {
		t.Fatalf("Failed to scan: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("Expected a full scan without a window, got %d records", len(all))
	}
}

func TestInMemoryRegistryFindByState(t *testing.T) {
	registry := NewInMemoryRegistry()
	if err := registry.Upsert(&JobRecord{SlurmJobID: 1, SlurmJobState: "RUNNING", Task: *sampleTask("u1")}); err != nil {
		t.Fatalf("Failed to upsert record: %v", err)
	}
	if err := registry.Upsert(&JobRecord{SlurmJobID: 2, SlurmJobState: "COMPLETED", Task: *sampleTask("u2")}); err != nil {
		t.Fatalf("Failed to upsert record: %v", err)
	}

	running, err := registry.FindByState("RUNNING")
	if err != nil {
		t.Fatalf("Failed to find by state: %v", err)
	}
	if len(running) != 1 || running[0].SlurmJobID != 1 {
		t.Errorf("Unexpected records for RUNNING: %+v", running)
	}
}
