package slurmproxy

import (
	"fmt"
	"testing"
	"time"
)

// fakeStatusClient serves canned summaries and counts lookups per job id.
type fakeStatusClient struct {
	summaries map[int]*SlurmJobSummary
	lookups   map[int]int
	cancelled []int
}

func newFakeStatusClient() *fakeStatusClient {
	return &fakeStatusClient{
		summaries: make(map[int]*SlurmJobSummary),
		lookups:   make(map[int]int),
	}
}

func (c *fakeStatusClient) GetJobSummary(username string, jobID int) (*SlurmJobSummary, error) {
	c.lookups[jobID]++
	return c.summaries[jobID], nil
}

func (c *fakeStatusClient) CancelJob(username string, jobID int) error {
	c.cancelled = append(c.cancelled, jobID)
	return nil
}

// newTestPoller wires a poller over an in-memory registry, a fake scheduler
// and a counting notification sink.
func newTestPoller() (*Poller, *InMemoryRegistry, *fakeStatusClient, *countingNotifier) {
	registry := NewInMemoryRegistry()
	client := newFakeStatusClient()
	counting := &countingNotifier{}
	hub := NewNotifierHub(testCatalog(NotificationMethodTest), func(method NotificationMethod) (Notifier, error) {
		return counting, nil
	})
	poller := NewPoller(registry, client, hub, time.Minute, 24*time.Hour)
	return poller, registry, client, counting
}

func seedRecord(t *testing.T, registry *InMemoryRegistry, slurmJobID int, state string) {
	t.Helper()
	task := sampleTask(fmt.Sprintf("uuid-%d", slurmJobID))
	record := &JobRecord{
		SlurmJobID:    slurmJobID,
		SlurmUsername: "alice",
		SlurmJobState: state,
		Task:          *task,
	}
	if err := registry.Upsert(record); err != nil {
		t.Fatalf("Failed to seed registry: %v", err)
	}
}

func TestPollerTerminalTransition(t *testing.T) {
	poller, registry, client, counting := newTestPoller()
	seedRecord(t, registry, 1002, "RUNNING")
	client.summaries[1002] = &SlurmJobSummary{Username: "alice", JobID: 1002, JobState: "COMPLETED"}

	poller.Tick()

	if len(counting.messages) != 1 {
		t.Fatalf("Expected exactly one notification, got %d", len(counting.messages))
	}
	record, err := registry.FindBySlurmJobID(1002)
	if err != nil {
		t.Fatalf("Failed to load record: %v", err)
	}
	if record.SlurmJobState != "COMPLETED" {
		t.Errorf("Expected state COMPLETED, got %s", record.SlurmJobState)
	}

	// A terminal record is frozen: the next tick must not look it up again.
	lookupsBefore := client.lookups[1002]
	poller.Tick()
	if client.lookups[1002] != lookupsBefore {
		t.Error("Terminal record was looked up again")
	}
	if len(counting.messages) != 1 {
		t.Errorf("Expected no further notifications, got %d", len(counting.messages))
	}
}

func TestPollerUnknownStateNormalisation(t *testing.T) {
	poller, registry, client, counting := newTestPoller()
	seedRecord(t, registry, 1003, "RUNNING")
	client.summaries[1003] = &SlurmJobSummary{Username: "alice", JobID: 1003, JobState: "WEIRD"}

	poller.Tick()

	record, err := registry.FindBySlurmJobID(1003)
	if err != nil {
		t.Fatalf("Failed to load record: %v", err)
	}
	if record.SlurmJobState != SlurmStateUnknown {
		t.Errorf("Expected state UNKNOWN, got %s", record.SlurmJobState)
	}
	if len(counting.messages) != 0 {
		t.Errorf("UNKNOWN is not terminal; expected no notifications, got %d", len(counting.messages))
	}
}

func TestPollerTransientMiss(t *testing.T) {
	poller, registry, client, counting := newTestPoller()
	seedRecord(t, registry, 1004, "PENDING")
	// No summary configured: the scheduler has not surfaced the job yet.

	poller.Tick()

	record, err := registry.FindBySlurmJobID(1004)
	if err != nil {
		t.Fatalf("Failed to load record: %v", err)
	}
	if record.SlurmJobState != "PENDING" {
		t.Errorf("Transient miss must leave the state untouched, got %s", record.SlurmJobState)
	}
	if len(counting.messages) != 0 {
		t.Errorf("Expected no notifications on a transient miss, got %d", len(counting.messages))
	}
	if client.lookups[1004] != 1 {
		t.Errorf("Expected one lookup, got %d", client.lookups[1004])
	}
}

func TestPollerUnchangedStateIsNoOp(t *testing.T) {
	poller, registry, client, counting := newTestPoller()
	seedRecord(t, registry, 1005, "RUNNING")
	client.summaries[1005] = &SlurmJobSummary{Username: "alice", JobID: 1005, JobState: "RUNNING"}

	poller.Tick()

	record, err := registry.FindBySlurmJobID(1005)
	if err != nil {
		t.Fatalf("Failed to load record: %v", err)
	}
	if record.SlurmJobState != "RUNNING" {
		t.Errorf("Expected state RUNNING, got %s", record.SlurmJobState)
	}
	if len(counting.messages) != 0 {
		t.Errorf("Expected no notifications without a transition, got %d", len(counting.messages))
	}
}

func TestPollerNotifiesOncePerTransition(t *testing.T) {
	poller, registry, client, counting := newTestPoller()
	seedRecord(t, registry, 1006, "RUNNING")
	client.summaries[1006] = &SlurmJobSummary{Username: "alice", JobID: 1006, JobState: "FAILED"}

	poller.Tick()
	poller.Tick()
	poller.Tick()

	if len(counting.messages) != 1 {
		t.Errorf("Expected exactly one notification across ticks, got %d", len(counting.messages))
	}
}
