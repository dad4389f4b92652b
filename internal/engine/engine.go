// Package engine orchestrates sync cycles: it drains attendance batches
// from terminals into the store and forwards unsynced punches to the
// remote system, keeping per-device history and partial-failure accounting.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"sync"
	"time"

	"biosync/internal/device"
	"biosync/internal/erpnext"
	"biosync/internal/models"
	"biosync/internal/store"
)

// Cycle and sweep statuses.
const (
	StatusSuccess        = "success"
	StatusError          = "error"
	StatusAlreadyRunning = "already_running"
	StatusNoDevices      = "no_devices"
	StatusInProgress     = "sync_in_progress"
)

// remoteConfigKey is the config-table key holding erpnext.Config.
const remoteConfigKey = "erpnext"

// Pusher records one punch in the remote system.
type Pusher interface {
	Push(ctx context.Context, in erpnext.CheckinRequest) (erpnext.PushResult, error)
}

// PusherFactory builds a Pusher from the stored remote configuration once
// per cycle.
type PusherFactory func(cfg erpnext.Config) Pusher

// DeviceResult is the outcome of one device's sync within a cycle.
type DeviceResult struct {
	DeviceID       uint   `json:"device_id"`
	DeviceName     string `json:"device_name"`
	Status         string `json:"status"`
	RecordsFetched int    `json:"records_fetched"`
	RecordsSynced  int    `json:"records_synced"`
	RecordsFailed  int    `json:"records_failed"`
	Error          string `json:"error,omitempty"`
}

// CycleResult is the outcome of one full sync cycle.
type CycleResult struct {
	Status           string         `json:"status"`
	Message          string         `json:"message,omitempty"`
	DevicesProcessed int            `json:"devices_processed"`
	RecordsFetched   int            `json:"records_fetched"`
	RecordsSynced    int            `json:"records_synced"`
	RecordsFailed    int            `json:"records_failed"`
	DeviceResults    []DeviceResult `json:"device_results,omitempty"`
}

// SweepResult is the outcome of a pending-records sweep.
type SweepResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Synced  int    `json:"synced"`
	Failed  int    `json:"failed"`
}

// Status is a point-in-time snapshot; the counts are live store reads.
type Status struct {
	Running        bool       `json:"is_running"`
	Progress       int        `json:"progress"`
	LastSync       *time.Time `json:"last_sync"`
	LastError      string     `json:"last_error,omitempty"`
	TodaySynced    int64      `json:"today_synced"`
	PendingRecords int64      `json:"pending_records"`
}

type Engine struct {
	store     *store.SQLiteStore
	reader    device.Reader
	newPusher PusherFactory

	mu        sync.Mutex
	running   bool
	progress  int
	lastSync  *time.Time
	lastError string
}

func New(st *store.SQLiteStore, reader device.Reader, factory PusherFactory) *Engine {
	if factory == nil {
		factory = func(cfg erpnext.Config) Pusher { return erpnext.NewClient(cfg) }
	}
	return &Engine{store: st, reader: reader, newPusher: factory}
}

// tryStart claims the engine for one cycle or sweep. Exactly one of the two
// may run at a time; callers that lose get a rejection status, never a wait.
func (e *Engine) tryStart() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return false
	}
	e.running = true
	e.progress = 0
	e.lastError = ""
	return true
}

// finish always runs on every exit path of a cycle: the mutual-exclusion
// gate is released and progress forced to 100 regardless of outcome.
func (e *Engine) finish() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running = false
	e.progress = 100
}

func (e *Engine) setProgress(completed, total int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.progress = int(math.Round(float64(completed) / float64(total) * 100))
}

func (e *Engine) setError(msg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastError = msg
}

// Status returns the engine snapshot plus live aggregate counts.
func (e *Engine) Status() (Status, error) {
	todaySynced, err := e.store.TodaySyncedCount()
	if err != nil {
		return Status{}, err
	}
	pending, err := e.store.PendingCount()
	if err != nil {
		return Status{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		Running:        e.running,
		Progress:       e.progress,
		LastSync:       e.lastSync,
		LastError:      e.lastError,
		TodaySynced:    todaySynced,
		PendingRecords: pending,
	}, nil
}

func (e *Engine) loadRemoteConfig() (erpnext.Config, error) {
	raw, err := e.store.GetConfig(remoteConfigKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return erpnext.Config{}, erpnext.ErrNotConfigured
		}
		return erpnext.Config{}, err
	}
	var cfg erpnext.Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return erpnext.Config{}, fmt.Errorf("invalid remote configuration: %w", err)
	}
	if cfg.URL == "" || cfg.APIKey == "" {
		return erpnext.Config{}, erpnext.ErrNotConfigured
	}
	return cfg, nil
}

// RunSync executes one full cycle over all enabled devices, in sequence.
func (e *Engine) RunSync(ctx context.Context) CycleResult {
	if !e.tryStart() {
		return CycleResult{Status: StatusAlreadyRunning}
	}
	defer e.finish()

	devices, err := e.store.ListEnabledDevices()
	if err != nil {
		e.setError(err.Error())
		return CycleResult{Status: StatusError, Message: err.Error()}
	}
	if len(devices) == 0 {
		return CycleResult{Status: StatusNoDevices, Message: "no enabled devices found"}
	}

	cfg, err := e.loadRemoteConfig()
	if err != nil {
		e.setError(err.Error())
		return CycleResult{Status: StatusError, Message: err.Error()}
	}
	pusher := e.newPusher(cfg)

	result := CycleResult{Status: StatusSuccess, DevicesProcessed: len(devices)}
	for i, d := range devices {
		dr := e.syncDevice(ctx, pusher, d)
		result.DeviceResults = append(result.DeviceResults, dr)
		result.RecordsFetched += dr.RecordsFetched
		result.RecordsSynced += dr.RecordsSynced
		result.RecordsFailed += dr.RecordsFailed
		e.setProgress(i+1, len(devices))
	}

	now := time.Now()
	e.mu.Lock()
	e.lastSync = &now
	e.mu.Unlock()

	return result
}

// syncDevice runs one device's sync. Every failure is contained here: a
// broken device finalizes its own history row and never disturbs the rest
// of the cycle.
func (e *Engine) syncDevice(ctx context.Context, pusher Pusher, d models.Device) DeviceResult {
	result := DeviceResult{DeviceID: d.ID, DeviceName: d.Name}

	historyID, err := e.store.CreateSyncHistory(d.ID)
	if err != nil {
		result.Status = models.SyncFailed
		result.Error = err.Error()
		return result
	}

	if err := e.store.UpdateDeviceStatus(d.ID, models.DeviceSyncing, nil); err != nil {
		log.Printf("device %d: set syncing: %v", d.ID, err)
	}

	records, err := e.reader.FetchAttendance(ctx, d.IP, d.Port)
	if err != nil {
		result.Status = models.SyncFailed
		result.Error = err.Error()
		if serr := e.store.UpdateDeviceStatus(d.ID, models.DeviceOffline, nil); serr != nil {
			log.Printf("device %d: set offline: %v", d.ID, serr)
		}
		if herr := e.store.FinalizeSyncHistory(historyID, 0, 0, 0, models.SyncFailed, err.Error()); herr != nil {
			log.Printf("device %d: finalize history: %v", d.ID, herr)
		}
		return result
	}

	result.RecordsFetched = len(records)
	for _, rec := range records {
		switch e.processRecord(ctx, pusher, d, rec) {
		case recordSynced:
			result.RecordsSynced++
		case recordFailed:
			result.RecordsFailed++
		case recordDuplicate:
			// Absorbed silently: counted neither synced nor failed.
		}
	}

	now := time.Now()
	if err := e.store.UpdateDeviceStatus(d.ID, models.DeviceOnline, &now); err != nil {
		log.Printf("device %d: set online: %v", d.ID, err)
	}

	if result.RecordsFailed == 0 {
		result.Status = models.SyncSuccess
	} else {
		result.Status = models.SyncPartial
	}
	if err := e.store.FinalizeSyncHistory(historyID, result.RecordsFetched, result.RecordsSynced, result.RecordsFailed, result.Status, ""); err != nil {
		log.Printf("device %d: finalize history: %v", d.ID, err)
	}
	return result
}

type recordOutcome int

const (
	recordSynced recordOutcome = iota
	recordFailed
	recordDuplicate
)

// processRecord stores and forwards one raw punch. Duplicates skip the push
// entirely; they were handled by an earlier cycle.
func (e *Engine) processRecord(ctx context.Context, pusher Pusher, d models.Device, rec device.RawPunch) recordOutcome {
	ts, err := time.ParseInLocation(device.TimestampLayout, rec.Timestamp, time.Local)
	if err != nil {
		log.Printf("device %d: bad timestamp %q: %v", d.ID, rec.Timestamp, err)
		return recordFailed
	}

	punchID, created, err := e.store.RecordPunch(d.ID, rec.UserID, ts, rec.PunchType)
	if err != nil {
		log.Printf("device %d: store punch: %v", d.ID, err)
		return recordFailed
	}
	if !created {
		return recordDuplicate
	}

	res, err := pusher.Push(ctx, erpnext.CheckinRequest{
		EmployeeFieldValue: rec.UserID,
		Timestamp:          rec.Timestamp,
		DeviceID:           d.Name,
		LogType:            directionTag(d),
		Latitude:           d.Latitude,
		Longitude:          d.Longitude,
	})
	if err != nil {
		log.Printf("device %d: push punch %d: %v", d.ID, punchID, err)
		return recordFailed
	}
	if !res.Success && !res.Skipped {
		return recordFailed
	}
	if err := e.store.MarkSynced(punchID, string(res.Raw)); err != nil {
		log.Printf("device %d: mark punch %d synced: %v", d.ID, punchID, err)
		return recordFailed
	}
	return recordSynced
}

// SyncPending re-pushes every unsynced punch across all devices, oldest
// first. It is a catch-up path: no history rows, no progress, but the same
// exclusivity gate as the full cycle.
func (e *Engine) SyncPending(ctx context.Context) SweepResult {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return SweepResult{Status: StatusInProgress}
	}
	e.running = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	cfg, err := e.loadRemoteConfig()
	if err != nil {
		return SweepResult{Status: StatusError, Message: err.Error()}
	}
	pusher := e.newPusher(cfg)

	devices, err := e.store.ListDevices()
	if err != nil {
		return SweepResult{Status: StatusError, Message: err.Error()}
	}
	byID := make(map[uint]models.Device, len(devices))
	for _, d := range devices {
		byID[d.ID] = d
	}

	pending, err := e.store.ListUnsynced(nil)
	if err != nil {
		return SweepResult{Status: StatusError, Message: err.Error()}
	}

	result := SweepResult{Status: StatusSuccess}
	for _, p := range pending {
		in := erpnext.CheckinRequest{
			EmployeeFieldValue: p.UserID,
			Timestamp:          p.Timestamp.Format(device.TimestampLayout),
			DeviceID:           strconv.FormatUint(uint64(p.DeviceID), 10),
		}
		if d, ok := byID[p.DeviceID]; ok {
			in.DeviceID = d.Name
			in.LogType = directionTag(d)
			in.Latitude = d.Latitude
			in.Longitude = d.Longitude
		}

		res, err := pusher.Push(ctx, in)
		if err != nil || (!res.Success && !res.Skipped) {
			if err != nil {
				log.Printf("pending sweep: push punch %d: %v", p.ID, err)
			}
			result.Failed++
			continue
		}
		if err := e.store.MarkSynced(p.ID, string(res.Raw)); err != nil {
			log.Printf("pending sweep: mark punch %d synced: %v", p.ID, err)
			result.Failed++
			continue
		}
		result.Synced++
	}
	return result
}

// directionTag forces IN/OUT when the device is configured for a single
// direction; otherwise the remote system infers it.
func directionTag(d models.Device) string {
	switch d.PunchDirection {
	case models.DirectionIn:
		return models.DirectionIn
	case models.DirectionOut:
		return models.DirectionOut
	}
	return ""
}
