package models

import "time"

// Device statuses as reported after the most recent sync attempt.
const (
	DeviceOffline = "offline"
	DeviceOnline  = "online"
	DeviceSyncing = "syncing"
)

// Punch directions. An empty direction means the remote system infers
// IN/OUT on its own.
const (
	DirectionIn  = "IN"
	DirectionOut = "OUT"
)

// Sync history statuses.
const (
	SyncRunning = "running"
	SyncSuccess = "success"
	SyncPartial = "partial"
	SyncFailed  = "failed"
)

type Device struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	Name           string     `gorm:"size:255;not null" json:"name"`
	IP             string     `gorm:"size:64;not null" json:"ip"`
	Port           int        `gorm:"default:4370" json:"port"`
	PunchDirection string     `gorm:"size:8" json:"punch_direction"`
	Latitude       *float64   `json:"latitude"`
	Longitude      *float64   `json:"longitude"`
	Enabled        bool       `gorm:"default:true" json:"enabled"`
	Status         string     `gorm:"size:16;default:offline" json:"status"`
	LastSync       *time.Time `json:"last_sync"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Punch is one attendance log entry. (DeviceID, UserID, Timestamp) is the
// natural key; the composite unique index is the dedup boundary.
type Punch struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	DeviceID       uint       `gorm:"uniqueIndex:idx_punch_natural;index" json:"device_id"`
	UserID         string     `gorm:"size:128;uniqueIndex:idx_punch_natural;not null" json:"user_id"`
	Timestamp      time.Time  `gorm:"uniqueIndex:idx_punch_natural;index;not null" json:"timestamp"`
	PunchType      int        `gorm:"default:0" json:"punch_type"`
	Synced         bool       `gorm:"default:false;index" json:"synced"`
	SyncedAt       *time.Time `json:"synced_at"`
	RemoteResponse string     `gorm:"type:text" json:"remote_response"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (Punch) TableName() string { return "attendance_logs" }

type SyncHistory struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	DeviceID       uint       `gorm:"index" json:"device_id"`
	StartedAt      time.Time  `gorm:"not null" json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at"`
	RecordsFetched int        `gorm:"default:0" json:"records_fetched"`
	RecordsSynced  int        `gorm:"default:0" json:"records_synced"`
	RecordsFailed  int        `gorm:"default:0" json:"records_failed"`
	Status         string     `gorm:"size:16;default:running" json:"status"`
	ErrorMessage   string     `gorm:"type:text" json:"error_message"`
}

func (SyncHistory) TableName() string { return "sync_history" }

type Shift struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Name            string    `gorm:"size:255;not null" json:"name"`
	StartTime       string    `gorm:"size:8" json:"start_time"`
	EndTime         string    `gorm:"size:8" json:"end_time"`
	RemoteShiftType string    `gorm:"size:255" json:"remote_shift_type"`
	CreatedAt       time.Time `json:"created_at"`
	// DeviceIDs is populated from the mapping table, not a column.
	DeviceIDs []uint `gorm:"-" json:"device_ids"`
}

type DeviceShift struct {
	DeviceID uint `gorm:"primaryKey" json:"device_id"`
	ShiftID  uint `gorm:"primaryKey" json:"shift_id"`
}

func (DeviceShift) TableName() string { return "device_shifts" }

// ConfigEntry is a flat key/value row; values are stored as JSON text.
type ConfigEntry struct {
	Key   string `gorm:"primaryKey;size:128" json:"key"`
	Value string `gorm:"type:text" json:"value"`
}

func (ConfigEntry) TableName() string { return "config" }
