package api

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"biosync/internal/device"
	"biosync/internal/engine"
	"biosync/internal/export"
	"biosync/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*gin.Engine, *store.SQLiteStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.sqlite"))
	require.NoError(t, err)
	agent := device.NewAgentReader(time.Second)
	eng := engine.New(st, agent, nil)
	exp := export.NewService(st, t.TempDir())

	r := gin.New()
	RegisterRoutes(r, st, eng, agent, exp)
	return r, st
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPing(t *testing.T) {
	r, _ := newTestRouter(t)
	w := do(r, http.MethodGet, "/v1/ping", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pong")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestDeviceCRUD(t *testing.T) {
	r, st := newTestRouter(t)

	w := do(r, http.MethodPost, "/v1/devices", `{"name":"lobby","ip":"10.0.0.1","punch_direction":"IN"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodPost, "/v1/devices", `{"ip":"10.0.0.2"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "name is required")

	w = do(r, http.MethodGet, "/v1/devices", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "lobby")

	devices, err := st.ListDevices()
	require.NoError(t, err)
	require.Len(t, devices, 1)

	w = do(r, http.MethodDelete, "/v1/devices/999", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteDeviceConflict(t *testing.T) {
	r, st := newTestRouter(t)
	d, err := st.CreateDevice(store.DeviceInput{Name: "lobby", IP: "10.0.0.1"})
	require.NoError(t, err)
	_, _, err = st.RecordPunch(d.ID, "101", time.Now(), 0)
	require.NoError(t, err)

	w := do(r, http.MethodDelete, "/v1/devices/1", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSyncEndpoints(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(r, http.MethodPost, "/v1/sync", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "no_devices")

	w = do(r, http.MethodGet, "/v1/sync/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"is_running":false`)
}

func TestExportRoutes(t *testing.T) {
	r, st := newTestRouter(t)
	d, err := st.CreateDevice(store.DeviceInput{Name: "lobby", IP: "10.0.0.1"})
	require.NoError(t, err)
	_, _, err = st.RecordPunch(d.ID, "101", time.Date(2026, 8, 20, 9, 0, 0, 0, time.Local), 0)
	require.NoError(t, err)

	w := do(r, http.MethodPost, "/v1/export/pdf", `{"report_type":"detailed"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), ".pdf")

	w = do(r, http.MethodPost, "/v1/export/excel", `{"report_type":"summary"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), ".xlsx")
}

func TestAttendanceQuery(t *testing.T) {
	r, st := newTestRouter(t)
	d, err := st.CreateDevice(store.DeviceInput{Name: "lobby", IP: "10.0.0.1"})
	require.NoError(t, err)
	_, _, err = st.RecordPunch(d.ID, "EMP-101", time.Date(2026, 8, 20, 9, 0, 0, 0, time.Local), 0)
	require.NoError(t, err)

	w := do(r, http.MethodGet, "/v1/attendance?search=101&status=pending", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":1`)

	w = do(r, http.MethodGet, "/v1/attendance?search=nobody", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":0`)
}
