package slurmproxy

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// SlurmAPI exposes thin passthrough endpoints over the scheduler's REST API,
// minting per-user tokens on the way through.
type SlurmAPI struct {
	Client *SlurmRestClient
}

// NewSlurmAPI creates a new SlurmAPI instance.
func NewSlurmAPI(client *SlurmRestClient) *SlurmAPI {
	return &SlurmAPI{Client: client}
}

// GetDiag passes through the scheduler diagnostics.
// GET /slurm/diag/?username=
func (api *SlurmAPI) GetDiag(c *gin.Context) {
	diag, err := api.Client.Diag(c.Query("username"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, diag)
}

// GetJobs passes through the accounting records updated since the given unix
// timestamp.
// GET /slurm/jobs/:update_time?username=
func (api *SlurmAPI) GetJobs(c *gin.Context) {
	updateTime, err := strconv.ParseInt(c.Param("update_time"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid update_time"})
		return
	}
	jobs, err := api.Client.ListJobs(c.Query("username"), updateTime)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, jobs)
}

// GetJob passes through the accounting record of one job.
// GET /slurm/job/:slurm_job_id/?username=
func (api *SlurmAPI) GetJob(c *gin.Context) {
	slurmJobID, err := strconv.Atoi(c.Param("slurm_job_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid slurm_job_id"})
		return
	}
	job, err := api.Client.GetJob(c.Query("username"), slurmJobID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// PostJobSubmit forwards a raw submit payload to the scheduler unchanged.
// POST /slurm/job/submit/?username=
func (api *SlurmAPI) PostJobSubmit(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil || len(payload) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid submit payload"})
		return
	}
	response, err := api.Client.SubmitRaw(c.Query("username"), payload)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// RegisterRoutes attaches the passthrough endpoints to a router group.
func (api *SlurmAPI) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/diag/", api.GetDiag)
	group.GET("/jobs/:update_time", api.GetJobs)
	group.GET("/job/:slurm_job_id/", api.GetJob)
	group.POST("/job/submit/", api.PostJobSubmit)
}
