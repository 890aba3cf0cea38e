package tests

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	sw "github.com/alexpreynolds/slurm-proxy/go"
)

// fakeSlurmServer is an httptest stand-in for the Slurm REST API. It hands
// out sequential job ids on submit, serves canned job states, and records
// cancellations.
type fakeSlurmServer struct {
	mu          sync.Mutex
	server      *httptest.Server
	nextJobID   int
	submits     int
	cancelled   []int
	jobStates   map[int]string
	jobUsers    map[int]string
	lookupCount map[int]int
}

func newFakeSlurmServer(firstJobID int) *fakeSlurmServer {
	f := &fakeSlurmServer{
		nextJobID:   firstJobID,
		jobStates:   make(map[int]string),
		jobUsers:    make(map[int]string),
		lookupCount: make(map[int]int),
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	return f
}

func (f *fakeSlurmServer) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/job/submit/"):
		jobID := f.nextJobID
		f.nextJobID++
		f.submits++
		fmt.Fprintf(w, `{"job_id": %d, "errors": []}`, jobID)
	case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/slurmdb/") && strings.Contains(r.URL.Path, "/job/"):
		var jobID int
		fmt.Sscanf(r.URL.Path[strings.Index(r.URL.Path, "/job/")+5:], "%d", &jobID)
		f.lookupCount[jobID]++
		state, ok := f.jobStates[jobID]
		if !ok {
			w.Write([]byte(`{"jobs": []}`))
			return
		}
		user := f.jobUsers[jobID]
		fmt.Fprintf(w, `{"jobs": [{"job_id": %d, "name": "j", "user": %q, "state": {"current": [%q]}}]}`, jobID, user, state)
	case r.Method == http.MethodDelete && strings.Contains(r.URL.Path, "/slurm/") && strings.Contains(r.URL.Path, "/job/"):
		var jobID int
		fmt.Sscanf(r.URL.Path[strings.Index(r.URL.Path, "/job/")+5:], "%d", &jobID)
		f.cancelled = append(f.cancelled, jobID)
		w.Write([]byte(`{"errors": []}`))
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/diag/"):
		w.Write([]byte(`{"statistics": {"jobs_submitted": 1}}`))
	default:
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"errors": [{"error_number": 9999, "description": "no such endpoint"}]}`))
	}
}

func (f *fakeSlurmServer) setJobState(jobID int, user, state string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobStates[jobID] = state
	f.jobUsers[jobID] = user
}

func (f *fakeSlurmServer) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits
}

func (f *fakeSlurmServer) cancelledJobs() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int{}, f.cancelled...)
}

func (f *fakeSlurmServer) close() {
	f.server.Close()
}

// proxyFixture wires the full proxy over an in-memory registry and a fake
// scheduler, mirroring the production composition.
type proxyFixture struct {
	router   *gin.Engine
	registry sw.JobRegistry
	slurm    *fakeSlurmServer
	poller   *sw.Poller
}

func newProxyFixture(t *testing.T) *proxyFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	slurm := newFakeSlurmServer(1001)
	t.Cleanup(slurm.close)

	minter, err := sw.NewTokenMinter(sw.TokenConfig{
		KeyBase64:      base64.StdEncoding.EncodeToString([]byte("integration-test-key")),
		ExpirationSecs: 10,
	})
	if err != nil {
		t.Fatalf("Failed to create token minter: %v", err)
	}

	registry := sw.NewInMemoryRegistry()
	catalog := sw.DefaultTaskCatalog()
	restClient := sw.NewSlurmRestClient(sw.SlurmRestConfig{
		Host:          slurm.server.URL,
		ParserVersion: "0.0.42",
		Timeout:       5 * time.Second,
	}, minter)

	// Notifications land in a stderr sink regardless of the method tag, so
	// terminal transitions never reach a real transport in tests.
	hub := sw.NewNotifierHub(catalog, func(method sw.NotificationMethod) (sw.Notifier, error) {
		return sw.NewTestNotifier(), nil
	})

	submitter := sw.NewSubmitter(catalog, registry, restClient)
	monitor := sw.NewMonitorService(registry, restClient, hub)
	poller := sw.NewPoller(registry, restClient, hub, time.Minute, 24*time.Hour)

	router := gin.New()
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	submitAPI := sw.NewSubmitAPI(submitter, monitor)
	router.POST("/submit/", submitAPI.PostTask)
	monitorAPI := sw.NewMonitorAPI(monitor, registry)
	monitorAPI.RegisterRoutes(router.Group("/monitor"))
	slurmAPI := sw.NewSlurmAPI(restClient)
	slurmAPI.RegisterRoutes(router.Group("/slurm"))

	return &proxyFixture{
		router:   router,
		registry: registry,
		slurm:    slurm,
		poller:   poller,
	}
}

// do performs one request against the fixture router.
func (f *proxyFixture) do(method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	recorder := httptest.NewRecorder()
	f.router.ServeHTTP(recorder, req)
	return recorder
}

// decodeBody decodes a JSON response body into a map.
func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var decoded map[string]interface{}
	if err := json.Unmarshal(recorder.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("Failed to decode response body %q: %v", recorder.Body.String(), err)
	}
	return decoded
}

// sampleTaskObjectJSON is the canned task used across the API tests.
const sampleTaskObjectJSON = `{
  "uuid": "u1",
  "username": "alice",
  "name": "echo_hello_world",
  "cwd": "/h/a",
  "dirs": {"parent": "/h/a/p", "input": "/h/a/i", "output": "/h/a/o", "error": "/h/a/e"},
  "slurm": {
    "partition": "q",
    "cpus_per_task": 1,
    "mem": 100,
    "time": 60,
    "nodes": 1,
    "ntasks_per_node": 1,
    "output": "o.txt",
    "error": "e.txt",
    "job_name": "j"
  },
  "params": []
}`

// sampleTaskJSON is the submission body wrapping the canned task.
const sampleTaskJSON = `{"task": ` + sampleTaskObjectJSON + `}`
