package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"biosync/internal/engine"
	"biosync/internal/erpnext"
	"biosync/internal/export"
	"biosync/internal/store"

	"github.com/gin-gonic/gin"
)

// @Summary Run a full sync cycle
// @Description Blocks until the cycle completes; poll /v1/sync/status for progress.
// @Tags sync
// @Produce json
// @Success 200 {object} engine.CycleResult
// @Router /v1/sync [post]
func RunSyncHandler(c *gin.Context, eng *engine.Engine) {
	c.JSON(http.StatusOK, eng.RunSync(c.Request.Context()))
}

// @Summary Re-push pending punches
// @Tags sync
// @Produce json
// @Success 200 {object} engine.SweepResult
// @Router /v1/sync/pending [post]
func SyncPendingHandler(c *gin.Context, eng *engine.Engine) {
	c.JSON(http.StatusOK, eng.SyncPending(c.Request.Context()))
}

// @Summary Sync status snapshot
// @Tags sync
// @Produce json
// @Success 200 {object} engine.Status
// @Router /v1/sync/status [get]
func SyncStatusHandler(c *gin.Context, eng *engine.Engine) {
	status, err := eng.Status()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// @Summary Sync history
// @Tags sync
// @Produce json
// @Param page query int false "page"
// @Param limit query int false "page size"
// @Success 200 {object} map[string]interface{}
// @Router /v1/sync/history [get]
func SyncHistoryHandler(c *gin.Context, db *store.SQLiteStore) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	items, total, err := db.ListSyncHistory(page, limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": items, "total": total})
}

// @Summary Query attendance logs
// @Tags attendance
// @Produce json
// @Param search query string false "substring match on user id"
// @Param status query string false "synced or pending"
// @Param device_id query int false "device filter"
// @Param date_from query string false "YYYY-MM-DD"
// @Param date_to query string false "YYYY-MM-DD"
// @Param page query int false "page"
// @Param limit query int false "page size"
// @Success 200 {object} map[string]interface{}
// @Router /v1/attendance [get]
func AttendanceLogsHandler(c *gin.Context, db *store.SQLiteStore) {
	var q store.PunchQuery
	if err := c.BindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	items, total, err := db.ListPunches(q)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": items, "total": total})
}

// @Summary Export attendance to Excel
// @Tags attendance
// @Accept json
// @Produce json
// @Param body body export.Params true "report parameters"
// @Success 200 {object} map[string]string
// @Router /v1/export/excel [post]
func ExportExcelHandler(c *gin.Context, exp *export.Service) {
	var p export.Params
	if err := c.BindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	path, err := exp.ToExcel(p)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": path})
}

// @Summary Export attendance to PDF
// @Tags attendance
// @Accept json
// @Produce json
// @Param body body export.Params true "report parameters"
// @Success 200 {object} map[string]string
// @Router /v1/export/pdf [post]
func ExportPDFHandler(c *gin.Context, exp *export.Service) {
	var p export.Params
	if err := c.BindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	path, err := exp.ToPDF(p)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": path})
}

// @Summary Test remote connection
// @Tags erpnext
// @Accept json
// @Produce json
// @Param body body erpnext.Config true "connection settings"
// @Success 200 {object} erpnext.ConnectionInfo
// @Failure 502 {object} map[string]string
// @Router /v1/erpnext/test [post]
func TestERPNextHandler(c *gin.Context) {
	var cfg erpnext.Config
	if err := c.BindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	info, err := erpnext.NewClient(cfg).TestConnection(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, info)
}

// @Summary Read a config value
// @Tags config
// @Produce json
// @Param key path string true "config key"
// @Success 200 {object} map[string]interface{}
// @Router /v1/config/{key} [get]
func GetConfigHandler(c *gin.Context, db *store.SQLiteStore) {
	value, err := db.GetConfig(c.Param("key"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": c.Param("key"), "value": value})
}

// @Summary Save a config value
// @Tags config
// @Accept json
// @Produce json
// @Param key path string true "config key"
// @Success 200 {object} map[string]bool
// @Router /v1/config/{key} [put]
func SaveConfigHandler(c *gin.Context, db *store.SQLiteStore) {
	var value json.RawMessage
	if err := c.BindJSON(&value); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := db.SaveConfig(c.Param("key"), value); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"saved": true})
}
