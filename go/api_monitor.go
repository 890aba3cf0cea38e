package slurmproxy

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// MonitorAPI handles monitor registration, lookup and deletion endpoints.
type MonitorAPI struct {
	Monitor  *MonitorService
	Registry JobRegistry
}

// NewMonitorAPI creates a new MonitorAPI instance.
func NewMonitorAPI(monitor *MonitorService, registry JobRegistry) *MonitorAPI {
	return &MonitorAPI{
		Monitor:  monitor,
		Registry: registry,
	}
}

// monitorRequest is the body of a direct monitor registration.
type monitorRequest struct {
	Monitor *struct {
		SlurmJobID int   `json:"slurm_job_id"`
		Task       *Task `json:"task"`
	} `json:"monitor"`
}

// PostMonitor registers an already-submitted job for monitoring.
// POST /monitor/
func (api *MonitorAPI) PostMonitor(c *gin.Context) {
	var request monitorRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format"})
		return
	}
	if request.Monitor == nil || request.Monitor.Task == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No job provided"})
		return
	}
	if err := request.Monitor.Task.Validate(); err != nil {
		abortWithError(c, err)
		return
	}

	record, err := api.Monitor.Register(request.Monitor.SlurmJobID, request.Monitor.Task)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// GetBySlurmJobID returns the combined scheduler/registry view of one job.
// GET /monitor/slurm_job_id/:slurm_job_id
func (api *MonitorAPI) GetBySlurmJobID(c *gin.Context) {
	slurmJobID, err := strconv.Atoi(c.Param("slurm_job_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid slurm_job_id"})
		return
	}
	record, err := api.Registry.FindBySlurmJobID(slurmJobID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.Monitor.Summary(record))
}

// GetByTaskUUID returns the combined scheduler/registry view of the job
// submitted for one task uuid.
// GET /monitor/task_uuid/:task_uuid
func (api *MonitorAPI) GetByTaskUUID(c *gin.Context) {
	record, err := api.Registry.FindByTaskUUID(c.Param("task_uuid"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.Monitor.Summary(record))
}

// GetBySlurmJobState lists the monitored jobs currently in one state.
// GET /monitor/slurm_job_state/:slurm_job_state
func (api *MonitorAPI) GetBySlurmJobState(c *gin.Context) {
	state := c.Param("slurm_job_state")
	if !IsKnownSlurmState(state) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid state key"})
		return
	}
	records, err := api.Registry.FindByState(state)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if records == nil {
		records = []*JobRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"jobs": records})
}

// DeleteBySlurmJobID cancels the job on the scheduler and removes it from
// the registry, returning the removed record.
// DELETE /monitor/slurm_job_id/:slurm_job_id
func (api *MonitorAPI) DeleteBySlurmJobID(c *gin.Context) {
	slurmJobID, err := strconv.Atoi(c.Param("slurm_job_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid slurm_job_id"})
		return
	}
	record, err := api.Monitor.Delete(slurmJobID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// RegisterRoutes attaches the monitor endpoints to a router group.
func (api *MonitorAPI) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("/", api.PostMonitor)
	group.GET("/slurm_job_id/:slurm_job_id", api.GetBySlurmJobID)
	group.GET("/task_uuid/:task_uuid", api.GetByTaskUUID)
	group.GET("/slurm_job_state/:slurm_job_state", api.GetBySlurmJobState)
	group.DELETE("/slurm_job_id/:slurm_job_id", api.DeleteBySlurmJobID)
}
