package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"paperflow/internal/port"
)

// PaperHandler serves point lookups from the paper table.
type PaperHandler struct {
	papers port.PaperRepository
	logger *zap.Logger
}

// NewPaperHandler creates a new PaperHandler.
func NewPaperHandler(papers port.PaperRepository, logger *zap.Logger) *PaperHandler {
	return &PaperHandler{papers: papers, logger: logger.Named("http")}
}

// GetByID handles GET /v1/papers/*id. Old-style identifiers such as
// hep-th/9901001 contain a slash, hence the wildcard.
func (h *PaperHandler) GetByID(c *gin.Context) {
	id := strings.Trim(c.Param("id"), "/")
	if id == "" {
		RespondError(c, http.StatusBadRequest, "INVALID_ID", "paper id is required")
		return
	}

	paper, err := h.papers.GetByID(c.Request.Context(), id)
	if err != nil {
		HandleError(c, h.logger, err)
		return
	}
	RespondOK(c, paper)
}
