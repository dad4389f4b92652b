package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"biosync/internal/models"
	"biosync/internal/store"

	"github.com/go-pdf/fpdf"
)

// pdfRowCap bounds detailed PDF reports; larger sets belong in Excel.
const pdfRowCap = 500

// ToPDF writes the report as a landscape A4 PDF and returns the file path.
func (s *Service) ToPDF(p Params) (string, error) {
	if p.ReportType == "" {
		p.ReportType = ReportDetailed
	}

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

	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 12, "Attendance Report", "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 12)
	pdf.CellFormat(0, 8, fmt.Sprintf("Period: %s to %s", p.DateFrom, p.DateTo), "", 1, "C", false, 0, "")
	pdf.Ln(6)

	switch p.ReportType {
	case ReportSummary:
		pdfSummary(pdf, logs)
	default:
		pdfDetailed(pdf, logs, deviceNames)
	}

	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 8)
	pdf.SetTextColor(128, 128, 128)
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated on %s | Total Records: %d",
		time.Now().Format("2006-01-02 15:04:05"), len(logs)), "", 1, "C", false, 0, "")

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("attendance_%s_%s.pdf", p.ReportType, time.Now().Format("20060102_150405"))
	path := filepath.Join(s.dir, name)
	if err := pdf.OutputFileAndClose(path); err != nil {
		return "", err
	}
	return path, nil
}

func pdfHeaderRow(pdf *fpdf.Fpdf, headers []string, widths []float64) {
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(79, 129, 189)
	pdf.SetTextColor(255, 255, 255)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 9, h, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Helvetica", "", 8)
	pdf.SetTextColor(0, 0, 0)
}

func pdfDataRow(pdf *fpdf.Fpdf, values []string, widths []float64, shaded bool) {
	if shaded {
		pdf.SetFillColor(245, 245, 245)
	} else {
		pdf.SetFillColor(255, 255, 255)
	}
	for i, v := range values {
		pdf.CellFormat(widths[i], 7, v, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)
}

func pdfDetailed(pdf *fpdf.Fpdf, logs []models.Punch, deviceNames map[uint]string) {
	headers := []string{"#", "User ID", "Date", "Time", "Type", "Device", "Status"}
	widths := []float64{12, 40, 34, 26, 24, 50, 26}
	pdfHeaderRow(pdf, headers, widths)

	if len(logs) > pdfRowCap {
		logs = logs[:pdfRowCap]
	}
	for i, log := range logs {
		status := "Pending"
		if log.Synced {
			status = "Synced"
		}
		deviceName := deviceNames[log.DeviceID]
		if deviceName == "" {
			deviceName = fmt.Sprintf("device %d", log.DeviceID)
		}
		pdfDataRow(pdf, []string{
			fmt.Sprint(i + 1),
			log.UserID,
			log.Timestamp.Format("2006-01-02"),
			log.Timestamp.Format("15:04:05"),
			punchTypeLabel(log.PunchType),
			deviceName,
			status,
		}, widths, i%2 == 1)
	}
}

func pdfSummary(pdf *fpdf.Fpdf, logs []models.Punch) {
	headers := []string{"#", "User ID", "Check-Ins", "Check-Outs", "Total"}
	widths := []float64{16, 56, 44, 44, 44}
	pdfHeaderRow(pdf, headers, widths)

	type counts struct {
		in, out int
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
		if log.PunchType == 1 {
			c.out++
		} else {
			c.in++
		}
	}

	for i, userID := range order {
		c := perUser[userID]
		pdfDataRow(pdf, []string{
			fmt.Sprint(i + 1),
			userID,
			fmt.Sprint(c.in),
			fmt.Sprint(c.out),
			fmt.Sprint(c.in + c.out),
		}, widths, i%2 == 1)
	}
}
