package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"biosync/internal/device"
	"biosync/internal/store"

	"github.com/gin-gonic/gin"
)

func httpStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrDeviceInUse):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(httpStatus(err), gin.H{"error": err.Error()})
}

func pathID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

// @Summary List devices
// @Tags devices
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /v1/devices [get]
func ListDevicesHandler(c *gin.Context, db *store.SQLiteStore) {
	devices, err := db.ListDevices()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"devices": devices})
}

// @Summary Add device
// @Tags devices
// @Accept json
// @Produce json
// @Param body body store.DeviceInput true "device"
// @Success 200 {object} models.Device
// @Failure 400 {object} map[string]string
// @Router /v1/devices [post]
func AddDeviceHandler(c *gin.Context, db *store.SQLiteStore) {
	var in store.DeviceInput
	if err := c.BindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d, err := db.CreateDevice(in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// @Summary Update device
// @Tags devices
// @Accept json
// @Produce json
// @Param id path int true "device id"
// @Param body body store.DeviceInput true "device"
// @Success 200 {object} models.Device
// @Failure 404 {object} map[string]string
// @Router /v1/devices/{id} [put]
func UpdateDeviceHandler(c *gin.Context, db *store.SQLiteStore) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var in store.DeviceInput
	if err := c.BindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d, err := db.UpdateDevice(id, in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// @Summary Delete device
// @Description Fails with 409 while attendance or history rows still reference the device.
// @Tags devices
// @Produce json
// @Param id path int true "device id"
// @Success 200 {object} map[string]bool
// @Failure 409 {object} map[string]string
// @Router /v1/devices/{id} [delete]
func DeleteDeviceHandler(c *gin.Context, db *store.SQLiteStore) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := db.DeleteDevice(id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// @Summary Test device connectivity
// @Tags devices
// @Produce json
// @Param id path int true "device id"
// @Success 200 {object} device.Info
// @Failure 502 {object} map[string]string
// @Router /v1/devices/{id}/test [post]
func TestDeviceHandler(c *gin.Context, db *store.SQLiteStore, agent *device.AgentReader) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	d, err := db.GetDevice(id)
	if err != nil {
		fail(c, err)
		return
	}
	info, err := agent.TestConnection(c.Request.Context(), d.IP, d.Port)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, info)
}

// @Summary List shifts
// @Tags shifts
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /v1/shifts [get]
func ListShiftsHandler(c *gin.Context, db *store.SQLiteStore) {
	shifts, err := db.ListShifts()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"shifts": shifts})
}

// @Summary Add shift
// @Tags shifts
// @Accept json
// @Produce json
// @Param body body store.ShiftInput true "shift"
// @Success 200 {object} models.Shift
// @Router /v1/shifts [post]
func AddShiftHandler(c *gin.Context, db *store.SQLiteStore) {
	var in store.ShiftInput
	if err := c.BindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sh, err := db.CreateShift(in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sh)
}

// @Summary Update shift
// @Description Replaces the device mapping set atomically.
// @Tags shifts
// @Accept json
// @Produce json
// @Param id path int true "shift id"
// @Param body body store.ShiftInput true "shift"
// @Success 200 {object} models.Shift
// @Router /v1/shifts/{id} [put]
func UpdateShiftHandler(c *gin.Context, db *store.SQLiteStore) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var in store.ShiftInput
	if err := c.BindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sh, err := db.UpdateShift(id, in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sh)
}

// @Summary Delete shift
// @Tags shifts
// @Produce json
// @Param id path int true "shift id"
// @Success 200 {object} map[string]bool
// @Router /v1/shifts/{id} [delete]
func DeleteShiftHandler(c *gin.Context, db *store.SQLiteStore) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := db.DeleteShift(id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
