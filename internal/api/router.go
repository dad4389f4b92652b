package api

import (
	"net/http"

	"biosync/internal/device"
	"biosync/internal/engine"
	"biosync/internal/export"
	"biosync/internal/handlers"
	"biosync/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// requestID echoes the caller's X-Request-ID or assigns one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func RegisterRoutes(r *gin.Engine, db *store.SQLiteStore, eng *engine.Engine, agent *device.AgentReader, exp *export.Service) {
	r.Use(requestID())

	v1 := r.Group("/v1")
	{
		v1.GET("/devices", func(c *gin.Context) {
			handlers.ListDevicesHandler(c, db)
		})
		v1.POST("/devices", func(c *gin.Context) {
			handlers.AddDeviceHandler(c, db)
		})
		v1.PUT("/devices/:id", func(c *gin.Context) {
			handlers.UpdateDeviceHandler(c, db)
		})
		v1.DELETE("/devices/:id", func(c *gin.Context) {
			handlers.DeleteDeviceHandler(c, db)
		})
		v1.POST("/devices/:id/test", func(c *gin.Context) {
			handlers.TestDeviceHandler(c, db, agent)
		})

		v1.GET("/shifts", func(c *gin.Context) {
			handlers.ListShiftsHandler(c, db)
		})
		v1.POST("/shifts", func(c *gin.Context) {
			handlers.AddShiftHandler(c, db)
		})
		v1.PUT("/shifts/:id", func(c *gin.Context) {
			handlers.UpdateShiftHandler(c, db)
		})
		v1.DELETE("/shifts/:id", func(c *gin.Context) {
			handlers.DeleteShiftHandler(c, db)
		})

		v1.POST("/sync", func(c *gin.Context) {
			handlers.RunSyncHandler(c, eng)
		})
		v1.POST("/sync/pending", func(c *gin.Context) {
			handlers.SyncPendingHandler(c, eng)
		})
		v1.GET("/sync/status", func(c *gin.Context) {
			handlers.SyncStatusHandler(c, eng)
		})
		v1.GET("/sync/history", func(c *gin.Context) {
			handlers.SyncHistoryHandler(c, db)
		})

		v1.GET("/attendance", func(c *gin.Context) {
			handlers.AttendanceLogsHandler(c, db)
		})
		v1.POST("/export/excel", func(c *gin.Context) {
			handlers.ExportExcelHandler(c, exp)
		})
		v1.POST("/export/pdf", func(c *gin.Context) {
			handlers.ExportPDFHandler(c, exp)
		})

		v1.POST("/erpnext/test", func(c *gin.Context) {
			handlers.TestERPNextHandler(c)
		})

		v1.GET("/config/:key", func(c *gin.Context) {
			handlers.GetConfigHandler(c, db)
		})
		v1.PUT("/config/:key", func(c *gin.Context) {
			handlers.SaveConfigHandler(c, db)
		})

		// liveness probe
		v1.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "pong"})
		})
	}
}
