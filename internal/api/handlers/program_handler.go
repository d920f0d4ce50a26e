package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/fitcoach/internal/models"
	"github.com/yoockh/fitcoach/internal/services"
)

// JobQueue schedules background program generation and returns a job id.
type JobQueue interface {
	Enqueue(ctx context.Context, userID string) (string, error)
}

type ProgramHandler struct {
	svc  services.ProgramService
	jobs JobQueue
}

func NewProgramHandler(svc services.ProgramService, jobs JobQueue) *ProgramHandler {
	return &ProgramHandler{svc: svc, jobs: jobs}
}

func (h *ProgramHandler) Generate(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	p, err := h.svc.Generate(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"program": p})
}

func (h *ProgramHandler) GenerateAsync(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	jobID, err := h.jobs.Enqueue(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID, "status": "queued"})
}

func (h *ProgramHandler) Active(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	p, err := h.svc.GetActive(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"program": p})
}

func (h *ProgramHandler) List(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	rows, err := h.svc.List(c.Request.Context(), userID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	if rows == nil {
		rows = []models.Program{}
	}
	c.JSON(http.StatusOK, gin.H{"programs": rows})
}

func (h *ProgramHandler) Get(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	p, err := h.svc.GetByID(c.Request.Context(), userID, c.Param("program_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"program": p})
}
