package slurmproxy

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/crypto/ssh"
)

// SSHClient holds a single lazily-dialed SSH connection to the scheduler's
// login host. A mutex guards every exec because concurrent commands on one
// connection are not safe.
type SSHClient struct {
	Config SSHConfig

	mu     sync.Mutex
	client *ssh.Client
}

// NewSSHClient creates a new SSHClient instance. The connection is not
// dialed until the first command runs.
func NewSSHClient(config SSHConfig) *SSHClient {
	return &SSHClient{Config: config}
}

// connectLocked dials the SSH connection if needed. Callers hold the mutex.
func (c *SSHClient) connectLocked() error {
	if c.client != nil {
		return nil
	}
	keyData, err := os.ReadFile(c.Config.PrivateKeyPath)
	if err != nil {
		return &TransportError{Op: "read ssh private key", Err: err}
	}
	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return &TransportError{Op: "parse ssh private key", Err: err}
	}
	clientConfig := &ssh.ClientConfig{
		User:            c.Config.Username,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}
	client, err := ssh.Dial("tcp", c.Config.Hostname+":22", clientConfig)
	if err != nil {
		return &TransportError{Op: "ssh dial", Err: err}
	}
	c.client = client
	return nil
}

// Exec runs one command on the login host and returns its stdout and stderr.
func (c *SSHClient) Exec(cmd string) (string, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(); err != nil {
		return "", "", err
	}
	session, err := c.client.NewSession()
	if err != nil {
		// The connection may have dropped; reset it so the next call
		// redials.
		c.client.Close()
		c.client = nil
		return "", "", &TransportError{Op: "ssh session", Err: err}
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if err := session.Run(cmd); err != nil {
		return stdout.String(), stderr.String(), &TransportError{Op: "ssh exec", Err: err}
	}
	return stdout.String(), stderr.String(), nil
}

// Close tears down the connection if one was dialed.
func (c *SSHClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}

// shellMetacharacters are rejected in task parameters on the SSH path, where
// the sbatch command line is built by string interpolation.
const shellMetacharacters = "`$|&;<>(){}!\\\"'\n"

// containsShellMetacharacters reports whether the value could escape its
// place in an interpolated shell command.
func containsShellMetacharacters(value string) bool {
	return strings.ContainsAny(value, shellMetacharacters)
}

// SSHTransport submits and queries jobs by running Slurm's command-line
// tools over SSH, for sites without the REST API. Query output is requested
// pipe-delimited; a per-job query takes the first line, a per-state listing
// parses every line.
type SSHTransport struct {
	Client  *SSHClient
	Catalog TaskCatalog
}

// NewSSHTransport creates a new SSHTransport instance.
func NewSSHTransport(client *SSHClient, catalog TaskCatalog) *SSHTransport {
	return &SSHTransport{
		Client:  client,
		Catalog: catalog,
	}
}

// sacctFormat is the field list requested from sacct; its order matches the
// parse in summaryFromSacctLine.
const sacctFormat = "JobID,Jobname%-128,state,User,partition,time,start,end,elapsed"

// SubmitTask builds the directory-creation commands and the sbatch
// invocation for one task and runs them as a single chained command. The
// --parsable flag makes the job id the only thing written to stdout.
func (t *SSHTransport) SubmitTask(task *Task) (int, error) {
	if err := task.Validate(); err != nil {
		return 0, err
	}
	for _, param := range task.Params {
		if containsShellMetacharacters(param) {
			return 0, NewValidationError("task param %q contains shell metacharacters", param)
		}
	}
	if task.Cmd != "" && containsShellMetacharacters(task.Cmd) {
		return 0, NewValidationError("task cmd contains shell metacharacters")
	}
	taskCmd, err := t.Catalog.DefineTaskCmd(task.Name, task.Cmd, task.Params)
	if err != nil {
		return 0, err
	}

	cmdComps := []string{
		fmt.Sprintf("mkdir -p %s", task.Dirs.Parent),
		fmt.Sprintf("mkdir -p %s", task.Dirs.Input),
		fmt.Sprintf("mkdir -p %s", task.Dirs.Output),
		fmt.Sprintf("mkdir -p %s", task.Dirs.Error),
	}
	sbatchComps := []string{
		"sbatch",
		"--parsable",
		fmt.Sprintf("--job-name=%s", task.Slurm.JobName),
		fmt.Sprintf("--output=%s/%s", task.Dirs.Output, task.Slurm.Output),
		fmt.Sprintf("--error=%s/%s", task.Dirs.Error, task.Slurm.Error),
		fmt.Sprintf("--nodes=%d", task.Slurm.Nodes),
		fmt.Sprintf("--mem=%d", task.Slurm.Mem),
		fmt.Sprintf("--cpus-per-task=%d", task.Slurm.CPUsPerTask),
		fmt.Sprintf("--ntasks-per-node=%d", task.Slurm.NtasksPerNode),
		fmt.Sprintf("--partition=%s", task.Slurm.Partition),
	}
	if task.Slurm.Time != 0 {
		sbatchComps = append(sbatchComps, fmt.Sprintf("--time=%d", task.Slurm.Time))
	}
	sbatchComps = append(sbatchComps, fmt.Sprintf("--wrap='%s'", taskCmd))
	cmd := strings.Join(append(cmdComps, strings.Join(sbatchComps, " ")), " ; ")

	stdout, stderr, err := t.Client.Exec(cmd)
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(stderr) != "" {
		return 0, fmt.Errorf("failed sbatch submit: %s", strings.TrimSpace(stderr))
	}
	var jobID int
	if _, err := fmt.Sscanf(strings.TrimSpace(stdout), "%d", &jobID); err != nil {
		return 0, fmt.Errorf("unexpected sbatch output: %q", stdout)
	}
	return jobID, nil
}

// GetJobSummary queries sacct for one job. A job sacct does not know about
// yields a nil summary with no error.
func (t *SSHTransport) GetJobSummary(username string, jobID int) (*SlurmJobSummary, error) {
	cmd := fmt.Sprintf("sacct -j %d --format=%s --noheader --parsable2", jobID, sacctFormat)
	stdout, _, err := t.Client.Exec(cmd)
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(stdout)
	if trimmed == "" {
		return nil, nil
	}
	return summaryFromSacctLine(strings.Split(trimmed, "\n")[0]), nil
}

// ListJobSummariesByState queries sacct for every job currently in one
// state.
func (t *SSHTransport) ListJobSummariesByState(state string) ([]*SlurmJobSummary, error) {
	cmd := fmt.Sprintf("sacct --state %s --format=%s --noheader --parsable2", state, sacctFormat)
	stdout, _, err := t.Client.Exec(cmd)
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(stdout)
	if trimmed == "" {
		return nil, nil
	}
	var summaries []*SlurmJobSummary
	for _, line := range strings.Split(trimmed, "\n") {
		summaries = append(summaries, summaryFromSacctLine(line))
	}
	return summaries, nil
}

// summaryFromSacctLine parses one pipe-delimited sacct record.
func summaryFromSacctLine(line string) *SlurmJobSummary {
	fields := strings.Split(line, "|")
	summary := &SlurmJobSummary{}
	if len(fields) > 0 {
		fmt.Sscanf(fields[0], "%d", &summary.JobID)
	}
	if len(fields) > 1 {
		summary.JobName = fields[1]
	}
	if len(fields) > 2 {
		summary.JobState = NormalizeSlurmState(fields[2])
	}
	if len(fields) > 3 {
		summary.SetUsername(fields[3])
	} else {
		summary.SetUsername("")
	}
	if len(fields) > 4 {
		summary.Partition = fields[4]
	}
	if len(fields) > 6 {
		summary.Start = fields[6]
	}
	if len(fields) > 7 {
		summary.End = fields[7]
	}
	if len(fields) > 8 {
		summary.Elapsed = fields[8]
	}
	return summary
}

// CancelJob cancels one job with scancel.
func (t *SSHTransport) CancelJob(username string, jobID int) error {
	cmd := fmt.Sprintf("scancel %d", jobID)
	_, stderr, err := t.Client.Exec(cmd)
	if err != nil {
		return err
	}
	if strings.TrimSpace(stderr) != "" {
		return fmt.Errorf("failed scancel: %s", strings.TrimSpace(stderr))
	}
	return nil
}

// assert that SSHTransport implements JobStatusClient at compile-time rather
// than run-time
var _ JobStatusClient = (*SSHTransport)(nil)
