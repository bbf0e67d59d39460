package api

import (
	"database/sql"
	"net/http"

	"github.com/gin-gonic/gin"

	"appalti/internal/pipeline"
	"appalti/internal/registry"
)

func StatusHandler(db *sql.DB) gin.HandlerFunc {
	tracker := pipeline.NewTracker(db)
	return func(c *gin.Context) {
		run, err := tracker.LastRun(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if run == nil {
			c.JSON(http.StatusOK, gin.H{"lastRun": nil})
			return
		}
		files, err := tracker.RunFiles(c.Request.Context(), run.RunID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"lastRun": run, "files": files})
	}
}

func PendingHandler(db *sql.DB, reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		pending, err := pipeline.PendingChildren(c.Request.Context(), db, reg)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"pending": pending})
	}
}

func PlanHandler(reg *registry.Registry, jsonRoot string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var datasets []string
		if ds := c.QueryArray("dataset"); len(ds) > 0 {
			datasets = ds
		}
		plan, err := pipeline.DryRun(jsonRoot, reg, datasets)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, plan)
	}
}
