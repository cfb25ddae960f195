package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"paperflow/internal/handler"
	"paperflow/internal/middleware"
)

// Setup configures the Gin engine with the run status routes. paperH and
// metrics may be nil.
func Setup(
	healthH *handler.HealthHandler,
	runH *handler.RunHandler,
	paperH *handler.PaperHandler,
	metrics http.Handler,
	logger *zap.Logger,
) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))

	// Health checks
	r.GET("/healthz", healthH.Liveness)
	r.GET("/readyz", healthH.Readiness)

	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}

	v1 := r.Group("/v1")
	v1.GET("/runs/current", runH.Current)
	if paperH != nil {
		v1.GET("/papers/*id", paperH.GetByID)
	}

	return r
}
