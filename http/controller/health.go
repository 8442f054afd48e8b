package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func (ctrl *Controller) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{}
	healthy := true

	if ctrl.Infra.Postgres != nil && ctrl.Infra.Postgres.DB != nil {
		checks["postgres"] = "ok"
		sqlDB, err := ctrl.Infra.Postgres.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Health] Postgres check failed: %v", err)
			checks["postgres"] = "unavailable"
			healthy = false
		}
	}

	if ctrl.Infra.Redis != nil {
		checks["redis"] = "ok"
		if err := ctrl.Infra.Redis.Ping(ctx); err != nil {
			ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Health] Redis check failed: %v", err)
			checks["redis"] = "unavailable"
			healthy = false
		}
	}

	if !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "checks": checks})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "checks": checks})
}
