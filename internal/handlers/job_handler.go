package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"crawler-api/internal/models"
	"crawler-api/internal/services"
	"crawler-api/pkg/errors"
)

type JobHandler struct {
	jobService *services.JobService
}

func NewJobHandler(jobService *services.JobService) *JobHandler {
	return &JobHandler{jobService: jobService}
}

type CreateJobRequest struct {
	URL string `json:"url" binding:"required"`
}

type jobResponse struct {
	Job    *models.Job    `json:"job"`
	Result *models.Result `json:"result,omitempty"`
}

func writeError(c *gin.Context, err error) {
	if appErr, ok := errors.AsAppError(err); ok {
		c.JSON(appErr.Status, errors.ErrorResponse{
			Error:   appErr.Code,
			Message: appErr.Message,
		})
		return
	}
	c.JSON(http.StatusInternalServerError, errors.ErrorResponse{
		Error:   errors.ErrInternalServer.Code,
		Message: "Internal server error",
	})
}

func (h *JobHandler) Create(c *gin.Context) {
	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ErrorResponse{
			Error:   errors.ErrBadRequest.Code,
			Message: err.Error(),
		})
		return
	}

	owner := c.GetString("user_id")
	job, err := h.jobService.SubmitJob(c.Request.Context(), req.URL, owner)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

func (h *JobHandler) List(c *gin.Context) {
	owner := c.GetString("user_id")
	jobs, err := h.jobService.ListJobs(c.Request.Context(), owner)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (h *JobHandler) Get(c *gin.Context) {
	owner := c.GetString("user_id")
	job, result, err := h.jobService.GetJob(c.Request.Context(), c.Param("id"), owner)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, jobResponse{Job: job, Result: result})
}

func (h *JobHandler) Retry(c *gin.Context) {
	owner := c.GetString("user_id")
	job, err := h.jobService.RetryJob(c.Request.Context(), c.Param("id"), owner)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *JobHandler) Delete(c *gin.Context) {
	owner := c.GetString("user_id")
	if err := h.jobService.DeleteJob(c.Request.Context(), c.Param("id"), owner); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
