package export

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requirePDF(t *testing.T, path string) {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(raw), 4)
	assert.Equal(t, "%PDF", string(raw[:4]), "file carries the PDF magic")
}

func TestExportPDFDetailed(t *testing.T) {
	svc, st := newTestService(t)
	seed(t, st)

	path, err := svc.ToPDF(Params{ReportType: ReportDetailed})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, ".pdf"))
	assert.Contains(t, path, "attendance_detailed_")
	requirePDF(t, path)
}

func TestExportPDFSummary(t *testing.T) {
	svc, st := newTestService(t)
	seed(t, st)

	path, err := svc.ToPDF(Params{ReportType: ReportSummary})
	require.NoError(t, err)
	assert.Contains(t, path, "attendance_summary_")
	requirePDF(t, path)
}

func TestExportPDFEmptySet(t *testing.T) {
	svc, _ := newTestService(t)

	path, err := svc.ToPDF(Params{DateFrom: "2026-01-01", DateTo: "2026-01-31"})
	require.NoError(t, err)
	requirePDF(t, path)
}
