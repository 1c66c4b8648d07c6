package bridge

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/ssebridge/pkg/jobstore"
)

// healthzResponse mirrors the shape of the originating codebase's /health
// handler: overall status plus the checks that contributed to it.
type healthzResponse struct {
	Status          string               `json:"status"`
	Database        *jobstore.HealthStatus `json:"database,omitempty"`
	RecurringEngine bool                 `json:"recurring_engine_running"`
}

// handleHealthz reports database connectivity and recurring-engine
// liveness for use as a Kubernetes readiness/liveness probe.
func (a *App) handleHealthz(c *gin.Context) {
	dbHealth, dbErr := jobstore.Health(c.Request.Context(), a.Store.DB())
	engineRunning := a.Recurring != nil && a.Recurring.Running()

	status := "ok"
	code := http.StatusOK
	if dbErr != nil || !engineRunning {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, healthzResponse{
		Status:          status,
		Database:        dbHealth,
		RecurringEngine: engineRunning,
	})
}
