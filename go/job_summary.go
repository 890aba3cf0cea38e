package slurmproxy

import "time"

// SlurmJobSummary is the slice of job metadata derived from querying the
// scheduler directly.
type SlurmJobSummary struct {
	Username  string `json:"user"`
	JobID     int    `json:"job_id"`
	JobName   string `json:"job_name,omitempty"`
	JobState  string `json:"job_state"`
	Partition string `json:"partition,omitempty"`
	Start     string `json:"start,omitempty"`
	End       string `json:"end,omitempty"`
	Elapsed   string `json:"elapsed,omitempty"`
}

// SetUsername stores the username, substituting the generic identity for an
// empty one.
func (s *SlurmJobSummary) SetUsername(username string) {
	if username == "" {
		username = GenericUsername
	}
	s.Username = username
}

// SetJobState stores the state only when it belongs to the recognised set.
func (s *SlurmJobSummary) SetJobState(state string) {
	if IsKnownSlurmState(state) {
		s.JobState = state
	}
}

// JobRecord is one row of the monitor registry: the scheduler identity of a
// submitted job, its last observed state, and the full task it was created
// from. Records are created when a submitted job is registered for
// monitoring, mutated only by the poller, and removed only by an explicit
// delete request.
type JobRecord struct {
	SlurmJobID    int       `json:"slurm_job_id" bson:"slurm_job_id"`
	SlurmUsername string    `json:"slurm_username" bson:"slurm_username"`
	SlurmJobState string    `json:"slurm_job_state" bson:"slurm_job_state"`
	Task          Task      `json:"task" bson:"task"`
	CreatedAt     time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" bson:"updated_at"`
}

// IsTerminal reports whether the record has reached a terminal state and is
// therefore frozen for the poller.
func (r *JobRecord) IsTerminal() bool {
	return IsTerminalSlurmState(r.SlurmJobState)
}

// JobSummary pairs the live scheduler view of a job with its registry record
// for monitor lookup responses.
type JobSummary struct {
	Slurm   *SlurmJobSummary `json:"slurm"`
	Monitor *JobRecord       `json:"monitor"`
}
