package store

import (
	"encoding/json"
	"errors"
	"time"

	"biosync/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SQLiteStore struct {
	DB *gorm.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&models.Device{},
		&models.Punch{},
		&models.SyncHistory{},
		&models.Shift{},
		&models.DeviceShift{},
		&models.ConfigEntry{},
	); err != nil {
		return nil, err
	}

	return &SQLiteStore{DB: db}, nil
}

// Device operations

type DeviceInput struct {
	Name           string   `json:"name" binding:"required"`
	IP             string   `json:"ip" binding:"required"`
	Port           int      `json:"port"`
	PunchDirection string   `json:"punch_direction"`
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
	Enabled        *bool    `json:"enabled"`
}

func (in DeviceInput) apply(d *models.Device) {
	d.Name = in.Name
	d.IP = in.IP
	d.Port = in.Port
	if d.Port == 0 {
		d.Port = 4370
	}
	d.PunchDirection = in.PunchDirection
	d.Latitude = in.Latitude
	d.Longitude = in.Longitude
	d.Enabled = in.Enabled == nil || *in.Enabled
}

func (s *SQLiteStore) ListDevices() ([]models.Device, error) {
	var out []models.Device
	if err := s.DB.Order("created_at desc").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLiteStore) ListEnabledDevices() ([]models.Device, error) {
	var out []models.Device
	if err := s.DB.Where("enabled = ?", true).Order("created_at desc").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLiteStore) GetDevice(id uint) (models.Device, error) {
	var d models.Device
	if err := s.DB.First(&d, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return d, ErrNotFound
		}
		return d, err
	}
	return d, nil
}

func (s *SQLiteStore) CreateDevice(in DeviceInput) (models.Device, error) {
	d := models.Device{Status: models.DeviceOffline, CreatedAt: time.Now()}
	in.apply(&d)
	if err := s.DB.Create(&d).Error; err != nil {
		return models.Device{}, err
	}
	return d, nil
}

func (s *SQLiteStore) UpdateDevice(id uint, in DeviceInput) (models.Device, error) {
	d, err := s.GetDevice(id)
	if err != nil {
		return models.Device{}, err
	}
	in.apply(&d)
	if err := s.DB.Save(&d).Error; err != nil {
		return models.Device{}, err
	}
	return d, nil
}

// DeleteDevice refuses to remove a device that still owns punches or sync
// history; those rows are the audit trail.
func (s *SQLiteStore) DeleteDevice(id uint) error {
	var punches, history int64
	if err := s.DB.Model(&models.Punch{}).Where("device_id = ?", id).Count(&punches).Error; err != nil {
		return err
	}
	if err := s.DB.Model(&models.SyncHistory{}).Where("device_id = ?", id).Count(&history).Error; err != nil {
		return err
	}
	if punches > 0 || history > 0 {
		return ErrDeviceInUse
	}
	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("device_id = ?", id).Delete(&models.DeviceShift{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Device{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *SQLiteStore) UpdateDeviceStatus(id uint, status string, lastSync *time.Time) error {
	updates := map[string]interface{}{"status": status}
	if lastSync != nil {
		updates["last_sync"] = *lastSync
	}
	return s.DB.Model(&models.Device{}).Where("id = ?", id).Updates(updates).Error
}

// Punch operations

// RecordPunch inserts a punch if its natural key is new. The second return
// reports whether a row was created; false means the punch already existed,
// which is a normal outcome, not an error.
func (s *SQLiteStore) RecordPunch(deviceID uint, userID string, ts time.Time, punchType int) (uint, bool, error) {
	p := models.Punch{
		DeviceID:  deviceID,
		UserID:    userID,
		Timestamp: ts,
		PunchType: punchType,
		CreatedAt: time.Now(),
	}
	res := s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_id"}, {Name: "user_id"}, {Name: "timestamp"}},
		DoNothing: true,
	}).Create(&p)
	if res.Error != nil {
		return 0, false, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, false, nil
	}
	return p.ID, true, nil
}

// MarkSynced flips a punch to synced and stores the raw remote response.
// Already-synced punches are left untouched, so repeat calls are no-ops.
func (s *SQLiteStore) MarkSynced(punchID uint, remoteResponse string) error {
	now := time.Now()
	return s.DB.Model(&models.Punch{}).
		Where("id = ? AND synced = ?", punchID, false).
		Updates(map[string]interface{}{
			"synced":          true,
			"synced_at":       now,
			"remote_response": remoteResponse,
		}).Error
}

func (s *SQLiteStore) GetPunch(id uint) (models.Punch, error) {
	var p models.Punch
	if err := s.DB.First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return p, ErrNotFound
		}
		return p, err
	}
	return p, nil
}

// ListUnsynced returns pending punches in timestamp order. A nil deviceID
// spans all devices.
func (s *SQLiteStore) ListUnsynced(deviceID *uint) ([]models.Punch, error) {
	q := s.DB.Where("synced = ?", false)
	if deviceID != nil {
		q = q.Where("device_id = ?", *deviceID)
	}
	var out []models.Punch
	if err := q.Order("timestamp asc").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

const (
	SyncStatusSynced  = "synced"
	SyncStatusPending = "pending"
)

type PunchQuery struct {
	Search   string `json:"search" form:"search"`
	Status   string `json:"status" form:"status"`
	DeviceID uint   `json:"device_id" form:"device_id"`
	DateFrom string `json:"date_from" form:"date_from"`
	DateTo   string `json:"date_to" form:"date_to"`
	Page     int    `json:"page" form:"page"`
	PageSize int    `json:"limit" form:"limit"`
}

// ListPunches applies all filters conjunctively, counts the filtered set,
// then pages it newest-first.
func (s *SQLiteStore) ListPunches(q PunchQuery) ([]models.Punch, int64, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = 20
	}

	db := s.DB.Model(&models.Punch{})
	if q.Search != "" {
		db = db.Where("user_id LIKE ?", "%"+q.Search+"%")
	}
	switch q.Status {
	case SyncStatusSynced:
		db = db.Where("synced = ?", true)
	case SyncStatusPending:
		db = db.Where("synced = ?", false)
	}
	if q.DeviceID != 0 {
		db = db.Where("device_id = ?", q.DeviceID)
	}
	if q.DateFrom != "" {
		db = db.Where("DATE(timestamp) >= ?", q.DateFrom)
	}
	if q.DateTo != "" {
		db = db.Where("DATE(timestamp) <= ?", q.DateTo)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var out []models.Punch
	err := db.Order("timestamp desc").
		Limit(q.PageSize).
		Offset((q.Page - 1) * q.PageSize).
		Find(&out).Error
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Sync history operations

func (s *SQLiteStore) CreateSyncHistory(deviceID uint) (uint, error) {
	h := models.SyncHistory{
		DeviceID:  deviceID,
		StartedAt: time.Now(),
		Status:    models.SyncRunning,
	}
	if err := s.DB.Create(&h).Error; err != nil {
		return 0, err
	}
	return h.ID, nil
}

func (s *SQLiteStore) FinalizeSyncHistory(historyID uint, fetched, synced, failed int, status, errorMessage string) error {
	now := time.Now()
	return s.DB.Model(&models.SyncHistory{}).Where("id = ?", historyID).Updates(map[string]interface{}{
		"completed_at":    now,
		"records_fetched": fetched,
		"records_synced":  synced,
		"records_failed":  failed,
		"status":          status,
		"error_message":   errorMessage,
	}).Error
}

func (s *SQLiteStore) ListSyncHistory(page, pageSize int) ([]models.SyncHistory, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	var total int64
	if err := s.DB.Model(&models.SyncHistory{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []models.SyncHistory
	err := s.DB.Order("started_at desc").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&out).Error
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Shift operations

type ShiftInput struct {
	Name            string `json:"name" binding:"required"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	RemoteShiftType string `json:"remote_shift_type"`
	DeviceIDs       []uint `json:"device_ids"`
}

func (s *SQLiteStore) ListShifts() ([]models.Shift, error) {
	var shifts []models.Shift
	if err := s.DB.Order("created_at desc").Find(&shifts).Error; err != nil {
		return nil, err
	}
	for i := range shifts {
		var mappings []models.DeviceShift
		if err := s.DB.Where("shift_id = ?", shifts[i].ID).Find(&mappings).Error; err != nil {
			return nil, err
		}
		ids := make([]uint, 0, len(mappings))
		for _, m := range mappings {
			ids = append(ids, m.DeviceID)
		}
		shifts[i].DeviceIDs = ids
	}
	return shifts, nil
}

func (s *SQLiteStore) CreateShift(in ShiftInput) (models.Shift, error) {
	sh := models.Shift{
		Name:            in.Name,
		StartTime:       in.StartTime,
		EndTime:         in.EndTime,
		RemoteShiftType: in.RemoteShiftType,
		CreatedAt:       time.Now(),
	}
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&sh).Error; err != nil {
			return err
		}
		for _, deviceID := range in.DeviceIDs {
			m := models.DeviceShift{DeviceID: deviceID, ShiftID: sh.ID}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&m).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return models.Shift{}, err
	}
	sh.DeviceIDs = in.DeviceIDs
	return sh, nil
}

// UpdateShift replaces the device mapping set wholesale: old mappings are
// removed and the new set inserted in the same transaction.
func (s *SQLiteStore) UpdateShift(id uint, in ShiftInput) (models.Shift, error) {
	var sh models.Shift
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&sh, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		sh.Name = in.Name
		sh.StartTime = in.StartTime
		sh.EndTime = in.EndTime
		sh.RemoteShiftType = in.RemoteShiftType
		if err := tx.Save(&sh).Error; err != nil {
			return err
		}
		if err := tx.Where("shift_id = ?", id).Delete(&models.DeviceShift{}).Error; err != nil {
			return err
		}
		for _, deviceID := range in.DeviceIDs {
			m := models.DeviceShift{DeviceID: deviceID, ShiftID: id}
			if err := tx.Create(&m).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return models.Shift{}, err
	}
	sh.DeviceIDs = in.DeviceIDs
	return sh, nil
}

func (s *SQLiteStore) DeleteShift(id uint) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("shift_id = ?", id).Delete(&models.DeviceShift{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Shift{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// Config operations

// SaveConfig upserts a key; last write wins.
func (s *SQLiteStore) SaveConfig(key string, value json.RawMessage) error {
	entry := models.ConfigEntry{Key: key, Value: string(value)}
	return s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&entry).Error
}

func (s *SQLiteStore) GetConfig(key string) (json.RawMessage, error) {
	var entry models.ConfigEntry
	if err := s.DB.First(&entry, "key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return json.RawMessage(entry.Value), nil
}

// Aggregate reads

func (s *SQLiteStore) TodaySyncedCount() (int64, error) {
	var n int64
	err := s.DB.Model(&models.Punch{}).
		Where("synced = ? AND DATE(synced_at, 'localtime') = DATE('now', 'localtime')", true).
		Count(&n).Error
	return n, err
}

func (s *SQLiteStore) PendingCount() (int64, error) {
	var n int64
	err := s.DB.Model(&models.Punch{}).Where("synced = ?", false).Count(&n).Error
	return n, err
}
