package handler

import (
	"github.com/gin-gonic/gin"

	"paperflow/internal/pipeline"
)

// RunStatus exposes the live summary of the current run.
type RunStatus interface {
	Snapshot() pipeline.Summary
}

// RunHandler reports run progress.
type RunHandler struct {
	runs RunStatus
}

// NewRunHandler creates a new RunHandler.
func NewRunHandler(runs RunStatus) *RunHandler {
	return &RunHandler{runs: runs}
}

// Current handles GET /v1/runs/current
func (h *RunHandler) Current(c *gin.Context) {
	RespondOK(c, h.runs.Snapshot())
}
