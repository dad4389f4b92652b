// Package export renders attendance reports to Excel workbooks.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"biosync/internal/models"
	"biosync/internal/store"

	"github.com/xuri/excelize/v2"
)

const (
	ReportDetailed = "detailed"
	ReportSummary  = "summary"
)

type Params struct {
	DateFrom   string `json:"date_from" form:"date_from"`
	DateTo     string `json:"date_to" form:"date_to"`
	DeviceID   uint   `json:"device_id" form:"device_id"`
	ReportType string `json:"report_type" form:"report_type"`
}

type Service struct {
	store *store.SQLiteStore
	dir   string
}

func NewService(st *store.SQLiteStore, dir string) *Service {
	return &Service{store: st, dir: dir}
}

// ToExcel writes the report and returns the file path.
func (s *Service) ToExcel(p Params) (string, error) {
	if p.ReportType == "" {
		p.ReportType = ReportDetailed
	}

	// One big page: reports cover the whole filtered set.
	logs, _, err := s.store.ListPunches(store.PunchQuery{
		DeviceID: p.DeviceID,
		DateFrom: p.DateFrom,
		DateTo:   p.DateTo,
		Page:     1,
		PageSize: 100000,
	})
	if err != nil {
		return "", err
	}

	devices, err := s.store.ListDevices()
	if err != nil {
		return "", err
	}
	deviceNames := make(map[uint]string, len(devices))
	for _, d := range devices {
		deviceNames[d.ID] = d.Name
	}

	f := excelize.NewFile()
	defer f.Close()
	const sheet = "Attendance Report"
	f.SetSheetName("Sheet1", sheet)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"4F81BD"}},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return "", err
	}

	switch p.ReportType {
	case ReportSummary:
		writeSummary(f, sheet, headerStyle, logs)
	default:
		writeDetailed(f, sheet, headerStyle, logs, deviceNames)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("attendance_%s_%s.xlsx", p.ReportType, time.Now().Format("20060102_150405"))
	path := filepath.Join(s.dir, name)
	if err := f.SaveAs(path); err != nil {
		return "", err
	}
	return path, nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) {
	for col, v := range values {
		cell, _ := excelize.CoordinatesToCellName(col+1, row)
		f.SetCellValue(sheet, cell, v)
	}
}

func punchTypeLabel(t int) string {
	if t == 1 {
		return "Check Out"
	}
	return "Check In"
}

func writeDetailed(f *excelize.File, sheet string, headerStyle int, logs []models.Punch, deviceNames map[uint]string) {
	headers := []interface{}{"S.No", "User ID", "Date", "Time", "Type", "Device", "Sync Status", "Synced At"}
	setRow(f, sheet, 1, headers)
	end, _ := excelize.CoordinatesToCellName(len(headers), 1)
	f.SetCellStyle(sheet, "A1", end, headerStyle)

	for i, log := range logs {
		status := "Pending"
		syncedAt := ""
		if log.Synced {
			status = "Synced"
			if log.SyncedAt != nil {
				syncedAt = log.SyncedAt.Format("2006-01-02 15:04:05")
			}
		}
		deviceName := deviceNames[log.DeviceID]
		if deviceName == "" {
			deviceName = fmt.Sprintf("device %d", log.DeviceID)
		}
		setRow(f, sheet, i+2, []interface{}{
			i + 1,
			log.UserID,
			log.Timestamp.Format("2006-01-02"),
			log.Timestamp.Format("15:04:05"),
			punchTypeLabel(log.PunchType),
			deviceName,
			status,
			syncedAt,
		})
	}
}

func writeSummary(f *excelize.File, sheet string, headerStyle int, logs []models.Punch) {
	headers := []interface{}{"User ID", "Total Punches", "Check Ins", "Check Outs", "Synced", "Pending"}
	setRow(f, sheet, 1, headers)
	end, _ := excelize.CoordinatesToCellName(len(headers), 1)
	f.SetCellStyle(sheet, "A1", end, headerStyle)

	type counts struct {
		total, in, out, synced, pending int
	}
	perUser := map[string]*counts{}
	var order []string
	for _, log := range logs {
		c, ok := perUser[log.UserID]
		if !ok {
			c = &counts{}
			perUser[log.UserID] = c
			order = append(order, log.UserID)
		}
		c.total++
		if log.PunchType == 1 {
			c.out++
		} else {
			c.in++
		}
		if log.Synced {
			c.synced++
		} else {
			c.pending++
		}
	}

	for i, userID := range order {
		c := perUser[userID]
		setRow(f, sheet, i+2, []interface{}{userID, c.total, c.in, c.out, c.synced, c.pending})
	}
}
