package slurmproxy

import (
	"log"
)

// MonitorService registers submitted jobs in the registry, resolves combined
// job summaries for lookups, and handles job deletion. It shares the
// notifier hub with the poller so a job that is already terminal when
// registered is notified immediately.
type MonitorService struct {
	Registry JobRegistry
	Client   JobStatusClient
	Hub      *NotifierHub
}

// NewMonitorService creates a new MonitorService instance.
func NewMonitorService(registry JobRegistry, client JobStatusClient, hub *NotifierHub) *MonitorService {
	return &MonitorService{
		Registry: registry,
		Client:   client,
		Hub:      hub,
	}
}

// Register inserts a newly submitted job into the registry. The current
// scheduler state is resolved when available, falling back to UNKNOWN for a
// job the scheduler has not surfaced yet. A job that is already terminal at
// registration time is notified on the spot, since the poller will never
// observe its transition.
func (m *MonitorService) Register(slurmJobID int, task *Task) (*JobRecord, error) {
	state := SlurmStateUnknown
	username := task.Username
	summary, err := m.Client.GetJobSummary(task.Username, slurmJobID)
	if err != nil {
		log.Printf("Could not resolve state for new job %d: %v", slurmJobID, err)
	} else if summary != nil {
		state = summary.JobState
		if summary.Username != "" {
			username = summary.Username
		}
	}

	record := &JobRecord{
		SlurmJobID:    slurmJobID,
		SlurmUsername: username,
		SlurmJobState: state,
		Task:          *task,
	}
	if err := m.Registry.Upsert(record); err != nil {
		return nil, err
	}
	stored, err := m.Registry.FindBySlurmJobID(slurmJobID)
	if err != nil {
		return nil, err
	}

	if IsTerminalSlurmState(state) {
		m.Hub.Dispatch(stored, state)
	}
	return stored, nil
}

// Summary builds the combined scheduler/registry view of one monitored job.
// The scheduler side degrades to an UNKNOWN-state stub when the scheduler
// has no record or is unreachable.
func (m *MonitorService) Summary(record *JobRecord) *JobSummary {
	slurmSummary, err := m.Client.GetJobSummary(record.SlurmUsername, record.SlurmJobID)
	if err != nil {
		log.Printf("Could not resolve scheduler state for job %d: %v", record.SlurmJobID, err)
	}
	if slurmSummary == nil {
		slurmSummary = &SlurmJobSummary{JobID: record.SlurmJobID, JobState: SlurmStateUnknown}
		slurmSummary.SetUsername(record.SlurmUsername)
	}
	return &JobSummary{
		Slurm:   slurmSummary,
		Monitor: record,
	}
}

// Delete cancels the job on the scheduler and removes its registry record,
// returning the removed record. A job missing from the registry is a
// NotFoundError and no scheduler call is made.
func (m *MonitorService) Delete(slurmJobID int) (*JobRecord, error) {
	record, err := m.Registry.FindBySlurmJobID(slurmJobID)
	if err != nil {
		return nil, err
	}
	if err := m.Client.CancelJob(record.SlurmUsername, slurmJobID); err != nil {
		return nil, err
	}
	return m.Registry.Delete(slurmJobID)
}
