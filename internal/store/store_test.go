package store

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"biosync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.sqlite"))
	require.NoError(t, err)
	return s
}

func addDevice(t *testing.T, s *SQLiteStore, name string) models.Device {
	t.Helper()
	d, err := s.CreateDevice(DeviceInput{Name: name, IP: "10.0.0.1"})
	require.NoError(t, err)
	return d
}

func ts(day, hour, minute int) time.Time {
	return time.Date(2026, 8, day, hour, minute, 0, 0, time.Local)
}

func TestRecordPunchDedup(t *testing.T) {
	s := newTestStore(t)
	d := addDevice(t, s, "lobby")

	id, created, err := s.RecordPunch(d.ID, "101", ts(20, 9, 0), 0)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, id)

	_, created, err = s.RecordPunch(d.ID, "101", ts(20, 9, 0), 0)
	require.NoError(t, err)
	assert.False(t, created, "same natural key must report duplicate")

	var count int64
	require.NoError(t, s.DB.Model(&models.Punch{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	// same user and time on another device is a distinct punch
	d2 := addDevice(t, s, "backdoor")
	_, created, err = s.RecordPunch(d2.ID, "101", ts(20, 9, 0), 0)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestMarkSyncedIdempotent(t *testing.T) {
	s := newTestStore(t)
	d := addDevice(t, s, "lobby")
	id, _, err := s.RecordPunch(d.ID, "101", ts(20, 9, 0), 0)
	require.NoError(t, err)

	require.NoError(t, s.MarkSynced(id, `{"name":"CHK-1"}`))
	first, err := s.GetPunch(id)
	require.NoError(t, err)
	require.True(t, first.Synced)
	require.NotNil(t, first.SyncedAt)

	// second call must not move the terminal state
	require.NoError(t, s.MarkSynced(id, `{"name":"CHK-other"}`))
	second, err := s.GetPunch(id)
	require.NoError(t, err)
	assert.True(t, second.Synced)
	assert.Equal(t, `{"name":"CHK-1"}`, second.RemoteResponse)
	assert.True(t, first.SyncedAt.Equal(*second.SyncedAt))
}

func TestListUnsyncedOrdering(t *testing.T) {
	s := newTestStore(t)
	d := addDevice(t, s, "lobby")

	times := []time.Time{ts(20, 17, 0), ts(20, 9, 0), ts(20, 12, 30)}
	for _, tm := range times {
		_, _, err := s.RecordPunch(d.ID, "101", tm, 0)
		require.NoError(t, err)
	}

	pending, err := s.ListUnsynced(nil)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	for i := 1; i < len(pending); i++ {
		assert.False(t, pending[i].Timestamp.Before(pending[i-1].Timestamp))
	}

	other := addDevice(t, s, "backdoor")
	_, _, err = s.RecordPunch(other.ID, "202", ts(21, 8, 0), 0)
	require.NoError(t, err)

	scoped, err := s.ListUnsynced(&other.ID)
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "202", scoped[0].UserID)
}

func TestListPunchesPagination(t *testing.T) {
	s := newTestStore(t)
	d := addDevice(t, s, "lobby")
	for i := 0; i < 25; i++ {
		_, _, err := s.RecordPunch(d.ID, "101", ts(20, 8, i), 0)
		require.NoError(t, err)
	}

	page1, total, err := s.ListPunches(PunchQuery{Page: 1, PageSize: 20})
	require.NoError(t, err)
	assert.Len(t, page1, 20)
	assert.EqualValues(t, 25, total)

	page2, total, err := s.ListPunches(PunchQuery{Page: 2, PageSize: 20})
	require.NoError(t, err)
	assert.Len(t, page2, 5)
	assert.EqualValues(t, 25, total, "total must be the filtered count, not the page size")
}

func TestListPunchesFilters(t *testing.T) {
	s := newTestStore(t)
	d1 := addDevice(t, s, "lobby")
	d2 := addDevice(t, s, "backdoor")

	p1, _, err := s.RecordPunch(d1.ID, "EMP-101", ts(20, 9, 0), 0)
	require.NoError(t, err)
	_, _, err = s.RecordPunch(d1.ID, "EMP-202", ts(21, 9, 0), 0)
	require.NoError(t, err)
	_, _, err = s.RecordPunch(d2.ID, "EMP-101", ts(22, 9, 0), 1)
	require.NoError(t, err)
	require.NoError(t, s.MarkSynced(p1, "{}"))

	items, total, err := s.ListPunches(PunchQuery{Search: "101"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, items, 2)

	_, total, err = s.ListPunches(PunchQuery{Status: SyncStatusSynced})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	_, total, err = s.ListPunches(PunchQuery{Status: SyncStatusPending})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)

	// conjunctive: user on device 1 within a single day
	_, total, err = s.ListPunches(PunchQuery{
		Search:   "101",
		DeviceID: d1.ID,
		DateFrom: "2026-08-20",
		DateTo:   "2026-08-20",
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}

func TestShiftUpdateReplacesMappings(t *testing.T) {
	s := newTestStore(t)
	d1 := addDevice(t, s, "lobby")
	d2 := addDevice(t, s, "backdoor")
	d3 := addDevice(t, s, "gate")

	sh, err := s.CreateShift(ShiftInput{Name: "Morning", StartTime: "08:00", EndTime: "16:00", DeviceIDs: []uint{d1.ID, d2.ID}})
	require.NoError(t, err)

	_, err = s.UpdateShift(sh.ID, ShiftInput{Name: "Morning", StartTime: "08:00", EndTime: "16:00", DeviceIDs: []uint{d3.ID}})
	require.NoError(t, err)

	shifts, err := s.ListShifts()
	require.NoError(t, err)
	require.Len(t, shifts, 1)
	assert.Equal(t, []uint{d3.ID}, shifts[0].DeviceIDs, "mapping set must be replaced, not merged")
}

func TestDeleteDeviceGuard(t *testing.T) {
	s := newTestStore(t)
	d := addDevice(t, s, "lobby")
	_, _, err := s.RecordPunch(d.ID, "101", ts(20, 9, 0), 0)
	require.NoError(t, err)

	err = s.DeleteDevice(d.ID)
	assert.ErrorIs(t, err, ErrDeviceInUse)

	empty := addDevice(t, s, "unused")
	require.NoError(t, s.DeleteDevice(empty.ID))
	_, err = s.GetDevice(empty.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConfigLastWriteWins(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetConfig("erpnext")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SaveConfig("erpnext", json.RawMessage(`{"url":"http://a"}`)))
	require.NoError(t, s.SaveConfig("erpnext", json.RawMessage(`{"url":"http://b"}`)))

	raw, err := s.GetConfig("erpnext")
	require.NoError(t, err)
	assert.JSONEq(t, `{"url":"http://b"}`, string(raw))
}

func TestSyncHistoryLifecycle(t *testing.T) {
	s := newTestStore(t)
	d := addDevice(t, s, "lobby")

	id, err := s.CreateSyncHistory(d.ID)
	require.NoError(t, err)

	var open models.SyncHistory
	require.NoError(t, s.DB.First(&open, id).Error)
	assert.Equal(t, models.SyncRunning, open.Status)
	assert.Nil(t, open.CompletedAt)

	require.NoError(t, s.FinalizeSyncHistory(id, 10, 8, 2, models.SyncPartial, ""))

	var done models.SyncHistory
	require.NoError(t, s.DB.First(&done, id).Error)
	assert.Equal(t, models.SyncPartial, done.Status)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, 10, done.RecordsFetched)
	assert.Equal(t, 8, done.RecordsSynced)
	assert.Equal(t, 2, done.RecordsFailed)
	assert.LessOrEqual(t, done.RecordsSynced+done.RecordsFailed, done.RecordsFetched)
}

func TestAggregateCounts(t *testing.T) {
	s := newTestStore(t)
	d := addDevice(t, s, "lobby")

	p1, _, err := s.RecordPunch(d.ID, "101", ts(20, 9, 0), 0)
	require.NoError(t, err)
	_, _, err = s.RecordPunch(d.ID, "101", ts(20, 17, 0), 1)
	require.NoError(t, err)
	require.NoError(t, s.MarkSynced(p1, "{}"))

	today, err := s.TodaySyncedCount()
	require.NoError(t, err)
	assert.EqualValues(t, 1, today, "synced_at is now, so it counts for today")

	pending, err := s.PendingCount()
	require.NoError(t, err)
	assert.EqualValues(t, 1, pending)
}

func TestDeviceStatusUpdates(t *testing.T) {
	s := newTestStore(t)
	d := addDevice(t, s, "lobby")
	assert.Equal(t, models.DeviceOffline, d.Status)

	require.NoError(t, s.UpdateDeviceStatus(d.ID, models.DeviceSyncing, nil))
	got, err := s.GetDevice(d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeviceSyncing, got.Status)
	assert.Nil(t, got.LastSync)

	now := time.Now()
	require.NoError(t, s.UpdateDeviceStatus(d.ID, models.DeviceOnline, &now))
	got, err = s.GetDevice(d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeviceOnline, got.Status)
	require.NotNil(t, got.LastSync)
}
