package tests

import (
	"net/http"
	"strings"
	"testing"
)

func TestSubmitHappyPath(t *testing.T) {
	fixture := newProxyFixture(t)

	recorder := fixture.do(http.MethodPost, "/submit/", sampleTaskJSON)
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	body := decodeBody(t, recorder)
	if body["uuid"] != "u1" {
		t.Errorf("Expected uuid u1, got %v", body["uuid"])
	}
	// Two jobs were submitted; the main job id (the second) is returned.
	if id, _ := body["slurm_job_id"].(float64); int(id) != 1002 {
		t.Errorf("Expected slurm_job_id 1002, got %v", body["slurm_job_id"])
	}
	if fixture.slurm.submitCount() != 2 {
		t.Errorf("Expected 2 scheduler submissions, got %d", fixture.slurm.submitCount())
	}

	record, err := fixture.registry.FindBySlurmJobID(1002)
	if err != nil {
		t.Fatalf("Expected a registry record, got %v", err)
	}
	if record.SlurmJobState != "UNKNOWN" {
		t.Errorf("Expected state UNKNOWN, got %s", record.SlurmJobState)
	}
	if record.Task.Username != "alice" {
		t.Errorf("Unexpected record task: %+v", record.Task)
	}
}

func TestSubmitDuplicateUUID(t *testing.T) {
	fixture := newProxyFixture(t)

	if recorder := fixture.do(http.MethodPost, "/submit/", sampleTaskJSON); recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200 on first submit, got %d", recorder.Code)
	}
	submitsBefore := fixture.slurm.submitCount()

	recorder := fixture.do(http.MethodPost, "/submit/", sampleTaskJSON)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 on duplicate submit, got %d", recorder.Code)
	}
	body := decodeBody(t, recorder)
	errMsg, _ := body["error"].(string)
	if !strings.Contains(errMsg, "uuid") {
		t.Errorf("Expected duplicate uuid error, got %q", errMsg)
	}
	if fixture.slurm.submitCount() != submitsBefore {
		t.Error("Duplicate submit must not reach the scheduler")
	}
}

func TestSubmitInvalidTask(t *testing.T) {
	fixture := newProxyFixture(t)

	recorder := fixture.do(http.MethodPost, "/submit/", `{"task": {"uuid": "u9"}}`)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for invalid task, got %d", recorder.Code)
	}
	if fixture.slurm.submitCount() != 0 {
		t.Error("Invalid task must not reach the scheduler")
	}
}

func TestSubmitNoTask(t *testing.T) {
	fixture := newProxyFixture(t)

	recorder := fixture.do(http.MethodPost, "/submit/", `{}`)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for missing task, got %d", recorder.Code)
	}
	body := decodeBody(t, recorder)
	if body["error"] != "No task provided" {
		t.Errorf("Unexpected error body: %v", body)
	}
}

func TestPing(t *testing.T) {
	fixture := newProxyFixture(t)

	recorder := fixture.do(http.MethodGet, "/ping", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", recorder.Code)
	}
	if recorder.Body.String() != "pong" {
		t.Errorf("Expected pong, got %q", recorder.Body.String())
	}
}
