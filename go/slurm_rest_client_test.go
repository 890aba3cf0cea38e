package slurmproxy

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestRestClient(t *testing.T, serverURL string) *SlurmRestClient {
	t.Helper()
	minter, err := NewTokenMinter(TokenConfig{
		KeyBase64:      base64.StdEncoding.EncodeToString([]byte("test-key")),
		ExpirationSecs: 10,
	})
	if err != nil {
		t.Fatalf("Failed to create token minter: %v", err)
	}
	return NewSlurmRestClient(SlurmRestConfig{
		Host:          serverURL,
		ParserVersion: "0.0.42",
		Timeout:       5 * time.Second,
	}, minter)
}

func TestSubmitJobExtractsJobID(t *testing.T) {
	var gotPath, gotToken, gotContentType string
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.Header.Get("X-SLURM-USER-TOKEN")
		gotContentType = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"job_id": 1001, "errors": []}`))
	}))
	defer server.Close()

	client := newTestRestClient(t, server.URL)
	jobID, err := client.SubmitJob("alice", SlurmJobDescription{
		Script:    "#!/bin/bash\nsrun /bin/bash -c 'echo;'",
		Name:      "j",
		Partition: "q",
	})
	if err != nil {
		t.Fatalf("Failed to submit job: %v", err)
	}
	if jobID != 1001 {
		t.Errorf("Expected job id 1001, got %d", jobID)
	}
	if gotPath != "/slurm/v0.0.42/job/submit/" {
		t.Errorf("Unexpected submit path: %s", gotPath)
	}
	if gotToken == "" {
		t.Error("Expected X-SLURM-USER-TOKEN header to be set")
	}
	if gotContentType != "application/json" {
		t.Errorf("Unexpected content type: %s", gotContentType)
	}
	if _, ok := gotBody["job"]; !ok {
		t.Errorf("Expected job object in submit body, got %v", gotBody)
	}
}

func TestSubmitJobStructuredError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"errors": [{"error_number": 5005, "description": "Zero Bytes were transmitted or received", "error": "..." }]}`))
	}))
	defer server.Close()

	client := newTestRestClient(t, server.URL)
	_, err := client.SubmitJob("alice", SlurmJobDescription{})
	var restErr *SlurmRestError
	if !errors.As(err, &restErr) {
		t.Fatalf("Expected SlurmRestError, got %v", err)
	}
	if restErr.ErrorNumber != 5005 {
		t.Errorf("Expected error number 5005, got %d", restErr.ErrorNumber)
	}
	if restErr.Description != "Zero Bytes were transmitted or received" {
		t.Errorf("Unexpected description: %q", restErr.Description)
	}
	if restErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("Unexpected status code: %d", restErr.StatusCode)
	}
}

func TestGetJobSummaryParsesStateList(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/slurmdb/v0.0.42/job/1002/" {
			t.Errorf("Unexpected lookup path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jobs": [{"job_id": 1002, "name": "j", "user": "alice", "partition": "q", "state": {"current": ["COMPLETED"]}}]}`))
	}))
	defer server.Close()

	client := newTestRestClient(t, server.URL)
	summary, err := client.GetJobSummary("alice", 1002)
	if err != nil {
		t.Fatalf("Failed to get job summary: %v", err)
	}
	if summary == nil {
		t.Fatal("Expected a summary, got nil")
	}
	if summary.JobState != "COMPLETED" {
		t.Errorf("Expected state COMPLETED, got %s", summary.JobState)
	}
	if summary.Username != "alice" || summary.JobID != 1002 {
		t.Errorf("Unexpected summary: %+v", summary)
	}
}

func TestGetJobSummaryUnknownStateNormalised(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jobs": [{"job_id": 7, "user": "", "state": {"current": "WEIRD"}}]}`))
	}))
	defer server.Close()

	client := newTestRestClient(t, server.URL)
	summary, err := client.GetJobSummary("", 7)
	if err != nil {
		t.Fatalf("Failed to get job summary: %v", err)
	}
	if summary.JobState != SlurmStateUnknown {
		t.Errorf("Expected UNKNOWN, got %s", summary.JobState)
	}
	if summary.Username != GenericUsername {
		t.Errorf("Expected generic username, got %s", summary.Username)
	}
}

func TestGetJobSummaryMissingJob(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jobs": []}`))
	}))
	defer server.Close()

	client := newTestRestClient(t, server.URL)
	summary, err := client.GetJobSummary("alice", 9999)
	if err != nil {
		t.Fatalf("Expected no error for an unlisted job, got %v", err)
	}
	if summary != nil {
		t.Errorf("Expected nil summary for an unlisted job, got %+v", summary)
	}
}

func TestDiagPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/slurm/v0.0.42/diag/" {
			t.Errorf("Unexpected diag path: %s", r.URL.Path)
		}
		w.Write([]byte(`{"statistics": {}}`))
	}))
	defer server.Close()

	client := newTestRestClient(t, server.URL)
	if _, err := client.Diag("alice"); err != nil {
		t.Fatalf("Failed to get diag: %v", err)
	}
}

func TestListJobsPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/slurmdb/v0.0.42/jobs/" {
			t.Errorf("Unexpected jobs path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("update_time") != "1700000000" {
			t.Errorf("Unexpected update_time: %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"jobs": []}`))
	}))
	defer server.Close()

	client := newTestRestClient(t, server.URL)
	if _, err := client.ListJobs("alice", 1700000000); err != nil {
		t.Fatalf("Failed to list jobs: %v", err)
	}
}
