package slurmproxy

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// httpStatusForError maps the proxy's error kinds onto response codes:
// lookups that miss are 404, every client-, scheduler- or backend-reported
// failure is 400, and anything unrecognised is 500.
func httpStatusForError(err error) int {
	var notFound *NotFoundError
	if errors.As(err, &notFound) {
		return http.StatusNotFound
	}
	var validation *ValidationError
	var duplicate *DuplicateError
	var auth *AuthError
	var slurmRest *SlurmRestError
	var transport *TransportError
	var persistence *PersistenceError
	if errors.As(err, &validation) || errors.As(err, &duplicate) || errors.As(err, &auth) ||
		errors.As(err, &slurmRest) || errors.As(err, &transport) || errors.As(err, &persistence) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// abortWithError writes the uniform error body for a failed request.
func abortWithError(c *gin.Context, err error) {
	c.JSON(httpStatusForError(err), gin.H{"error": err.Error()})
}

// SubmitAPI handles task submission requests.
type SubmitAPI struct {
	Submitter *Submitter
	Monitor   *MonitorService
}

// NewSubmitAPI creates a new SubmitAPI instance.
func NewSubmitAPI(submitter *Submitter, monitor *MonitorService) *SubmitAPI {
	return &SubmitAPI{
		Submitter: submitter,
		Monitor:   monitor,
	}
}

// submitRequest is the body of a task submission.
type submitRequest struct {
	Task *Task `json:"task"`
}

// PostTask validates and submits one task, registers the resulting job for
// monitoring, and returns the task uuid with the main job id.
// POST /submit/
func (api *SubmitAPI) PostTask(c *gin.Context) {
	var request submitRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format"})
		return
	}
	if request.Task == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No task provided"})
		return
	}

	slurmJobID, err := api.Submitter.Submit(request.Task)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if _, err := api.Monitor.Register(slurmJobID, request.Task); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"uuid":         request.Task.UUID,
		"slurm_job_id": slurmJobID,
	})
}
