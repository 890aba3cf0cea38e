package slurmproxy

// SlurmStateInfo describes one scheduler job state: the short code shown by
// squeue and a human-readable explanation.
type SlurmStateInfo struct {
	Code        string `json:"code"`
	Explanation string `json:"explanation"`
}

// SlurmStateUnknown is the sentinel assigned when the scheduler reports a
// state outside the recognised set, or when a lookup fails transiently.
const SlurmStateUnknown = "UNKNOWN"

// SlurmStates maps every recognised scheduler job state to its metadata.
// ref. https://slurm.schedmd.com/squeue.html#SECTION_JOB-STATE-CODES
var SlurmStates = map[string]SlurmStateInfo{
	"COMPLETED":     {Code: "CD", Explanation: "The job has completed successfully."},
	"COMPLETING":    {Code: "CG", Explanation: "The job is finishing but some processes are still active."},
	"FAILED":        {Code: "F", Explanation: "The job terminated with a non-zero exit code and failed to execute."},
	"PENDING":       {Code: "PD", Explanation: "The job is waiting for resource allocation. It will eventually run."},
	"PREEMPTED":     {Code: "PR", Explanation: "The job was terminated because of preemption by another job."},
	"RUNNING":       {Code: "R", Explanation: "The job currently is allocated to a node and is running."},
	"SUSPENDED":     {Code: "S", Explanation: "A running job has been stopped with its cores released to other jobs."},
	"STOPPED":       {Code: "ST", Explanation: "A running job has been stopped with its cores retained."},
	"TIMEOUT":       {Code: "TO", Explanation: "The job has been terminated because it exceeded its time limit."},
	"CANCELLED":     {Code: "CA", Explanation: "The job has been cancelled by the user."},
	"NODE_FAIL":     {Code: "NF", Explanation: "The job has been terminated because one or more nodes failed."},
	"BOOT_FAIL":     {Code: "BF", Explanation: "The job has been terminated because the node failed to boot."},
	"OUT_OF_MEMORY": {Code: "OOM", Explanation: "The job has been terminated because it exceeded its memory limit."},
	"RESV_DEL_HOLD": {Code: "RD", Explanation: "The job has been held."},
	"REQUEUE_FED":   {Code: "RF", Explanation: "The job has been requeued by a federation."},
	"REQUEUE_HOLD":  {Code: "RH", Explanation: "Held job is being requeued."},
	"RESIZING":      {Code: "RS", Explanation: "The job is being resized."},
	"REVOKED":       {Code: "RV", Explanation: "Sibling was removed from cluster due to other cluster starting the job."},
	"SIGNALING":     {Code: "SI", Explanation: "The job is being signaled."},
	"SPECIAL_EXIT":  {Code: "SE", Explanation: "The job was requeued in a special state."},
	"STAGE_OUT":     {Code: "SO", Explanation: "The job is being staged out."},
	"DEADLINE":      {Code: "DL", Explanation: "The job has been terminated because it exceeded its deadline."},
}

// SlurmEndStates lists the terminal states. A monitored job that reaches one
// of these is frozen: the poller never queries the scheduler for it again.
var SlurmEndStates = []string{
	"COMPLETED",
	"FAILED",
	"CANCELLED",
	"SUSPENDED",
	"NODE_FAIL",
	"TIMEOUT",
	"DEADLINE",
}

// IsKnownSlurmState reports whether the state appears in the recognised set.
// The UNKNOWN sentinel itself is not a recognised scheduler state.
func IsKnownSlurmState(state string) bool {
	_, ok := SlurmStates[state]
	return ok
}

// IsTerminalSlurmState reports whether the state is terminal.
func IsTerminalSlurmState(state string) bool {
	for _, end := range SlurmEndStates {
		if state == end {
			return true
		}
	}
	return false
}

// NormalizeSlurmState maps any string reported by the scheduler into the
// recognised set, collapsing everything else to UNKNOWN.
func NormalizeSlurmState(state string) string {
	if IsKnownSlurmState(state) {
		return state
	}
	return SlurmStateUnknown
}
