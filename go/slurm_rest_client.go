package slurmproxy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// NumberSetting is the {set, number} pair the Slurm REST API uses for
// optional numeric job fields such as memory_per_cpu and time_limit.
type NumberSetting struct {
	Set    bool `json:"set"`
	Number int  `json:"number"`
}

// SlurmJobDescription is the job object posted to the scheduler's submit
// endpoint.
type SlurmJobDescription struct {
	Script                  string        `json:"script"`
	Environment             []string      `json:"environment"`
	CurrentWorkingDirectory string        `json:"current_working_directory"`
	Name                    string        `json:"name"`
	Partition               string        `json:"partition"`
	CPUsPerTask             int           `json:"cpus_per_task"`
	MemoryPerCPU            NumberSetting `json:"memory_per_cpu"`
	TimeLimit               NumberSetting `json:"time_limit"`
	StandardOutput          string        `json:"standard_output"`
	StandardError           string        `json:"standard_error"`
	Dependency              string        `json:"dependency,omitempty"`
}

// SlurmRestClient issues typed requests against the Slurm REST API, minting a
// fresh per-user token for every call. Errors reported by the scheduler are
// surfaced as SlurmRestError; network failures as TransportError. The client
// never retries.
type SlurmRestClient struct {
	Config SlurmRestConfig
	Minter *TokenMinter
	client *http.Client
}

// NewSlurmRestClient creates a new SlurmRestClient instance. Every request
// uses the configured bounded timeout.
func NewSlurmRestClient(config SlurmRestConfig, minter *TokenMinter) *SlurmRestClient {
	return &SlurmRestClient{
		Config: config,
		Minter: minter,
		client: &http.Client{Timeout: config.Timeout},
	}
}

// do mints a token for the user, attaches the Slurm auth headers, performs
// the request and decodes the JSON body. Non-200 responses are parsed for
// the scheduler's structured errors array.
func (c *SlurmRestClient) do(username, method, url string, body []byte) (map[string]interface{}, error) {
	token, err := c.Minter.Mint(username)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %v", method, err)
	}
	req.Header.Set("X-SLURM-USER-TOKEN", token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &TransportError{Op: fmt.Sprintf("%s %s", method, url), Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: fmt.Sprintf("read %s response", url), Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseSlurmRestError(resp.StatusCode, respBody)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode response from %s: %v", url, err)
	}
	return decoded, nil
}

// parseSlurmRestError extracts the first entry of the scheduler's errors
// array when present, falling back to the raw body.
func parseSlurmRestError(statusCode int, body []byte) *SlurmRestError {
	restErr := &SlurmRestError{
		StatusCode: statusCode,
		Message:    string(body),
	}
	var decoded struct {
		Errors []struct {
			ErrorNumber int    `json:"error_number"`
			Description string `json:"description"`
			Error       string `json:"error"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &decoded); err == nil && len(decoded.Errors) > 0 {
		first := decoded.Errors[0]
		restErr.ErrorNumber = first.ErrorNumber
		restErr.Description = first.Description
		if restErr.Description == "" {
			restErr.Description = first.Error
		}
	}
	return restErr
}

// Diag retrieves scheduler diagnostics for a health passthrough.
func (c *SlurmRestClient) Diag(username string) (map[string]interface{}, error) {
	url := fmt.Sprintf("%s/diag/", c.Config.SlurmEndpointURL())
	return c.do(username, http.MethodGet, url, nil)
}

// ListJobs pulls accounting records for jobs updated at or after the given
// unix timestamp.
func (c *SlurmRestClient) ListJobs(username string, updateTime int64) (map[string]interface{}, error) {
	url := fmt.Sprintf("%s/jobs/?update_time=%d", c.Config.SlurmdbEndpointURL(), updateTime)
	return c.do(username, http.MethodGet, url, nil)
}

// GetJob retrieves the accounting record for one job.
func (c *SlurmRestClient) GetJob(username string, jobID int) (map[string]interface{}, error) {
	url := fmt.Sprintf("%s/job/%d/", c.Config.SlurmdbEndpointURL(), jobID)
	return c.do(username, http.MethodGet, url, nil)
}

// GetJobSummary retrieves and condenses the scheduler's view of one job.
// A job the scheduler no longer knows about yields a nil summary with no
// error, so callers can treat the miss as transient.
func (c *SlurmRestClient) GetJobSummary(username string, jobID int) (*SlurmJobSummary, error) {
	decoded, err := c.GetJob(username, jobID)
	if err != nil {
		return nil, err
	}
	jobs, ok := decoded["jobs"].([]interface{})
	if !ok || len(jobs) == 0 {
		return nil, nil
	}
	jobMap, ok := jobs[0].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	return summaryFromJobMap(jobMap), nil
}

// summaryFromJobMap condenses one decoded scheduler job object. The state is
// normalised into the recognised set; the reported state may be a plain
// string or the REST API's {current: [...]} form.
func summaryFromJobMap(jobMap map[string]interface{}) *SlurmJobSummary {
	summary := &SlurmJobSummary{}
	if id, ok := jobMap["job_id"].(float64); ok {
		summary.JobID = int(id)
	}
	if name, ok := jobMap["name"].(string); ok {
		summary.JobName = name
	}
	if user, ok := jobMap["user"].(string); ok {
		summary.SetUsername(user)
	} else {
		summary.SetUsername("")
	}
	if partition, ok := jobMap["partition"].(string); ok {
		summary.Partition = partition
	}
	summary.JobState = NormalizeSlurmState(extractJobState(jobMap["state"]))
	return summary
}

// extractJobState digs the current state string out of the scheduler's state
// field, which is either a bare string, {"current": "..."}, or
// {"current": ["..."]}.
func extractJobState(state interface{}) string {
	switch v := state.(type) {
	case string:
		return v
	case map[string]interface{}:
		switch current := v["current"].(type) {
		case string:
			return current
		case []interface{}:
			if len(current) > 0 {
				if s, ok := current[0].(string); ok {
					return s
				}
			}
		}
	}
	return SlurmStateUnknown
}

// SubmitJob posts one job description to the scheduler on behalf of the user
// and returns the new job id from the response.
func (c *SlurmRestClient) SubmitJob(username string, job SlurmJobDescription) (int, error) {
	payload, err := json.Marshal(map[string]interface{}{"job": job})
	if err != nil {
		return 0, fmt.Errorf("failed to encode submit payload: %v", err)
	}
	url := fmt.Sprintf("%s/job/submit/", c.Config.SlurmEndpointURL())
	decoded, err := c.do(username, http.MethodPost, url, payload)
	if err != nil {
		return 0, err
	}
	jobID, ok := decoded["job_id"].(float64)
	if !ok {
		return 0, fmt.Errorf("invalid submit response: missing job_id")
	}
	return int(jobID), nil
}

// SubmitRaw forwards an arbitrary submit payload unchanged, for the
// passthrough endpoint.
func (c *SlurmRestClient) SubmitRaw(username string, payload []byte) (map[string]interface{}, error) {
	url := fmt.Sprintf("%s/job/submit/", c.Config.SlurmEndpointURL())
	return c.do(username, http.MethodPost, url, payload)
}

// CancelJob asks the scheduler to cancel one job.
func (c *SlurmRestClient) CancelJob(username string, jobID int) error {
	url := fmt.Sprintf("%s/job/%d/", c.Config.SlurmEndpointURL(), jobID)
	_, err := c.do(username, http.MethodDelete, url, nil)
	return err
}

// assert that SlurmRestClient implements the transport interfaces at
// compile-time rather than run-time
var (
	_ JobSubmitClient = (*SlurmRestClient)(nil)
	_ JobStatusClient = (*SlurmRestClient)(nil)
)
