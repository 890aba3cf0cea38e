package slurmproxy

// JobSubmitClient abstracts job submission against the scheduler.
type JobSubmitClient interface {
	SubmitJob(username string, job SlurmJobDescription) (int, error)
}

// JobStatusClient abstracts per-job status lookup and cancellation against
// the scheduler. GetJobSummary returns (nil, nil) when the scheduler has no
// record of the job, which callers treat as a transient miss.
type JobStatusClient interface {
	GetJobSummary(username string, jobID int) (*SlurmJobSummary, error)
	CancelJob(username string, jobID int) error
}
