package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/98iam/classtrack-api/internal/models"
	appErrors "github.com/98iam/classtrack-api/pkg/errors"
)

type mockSummaryReader struct {
	rows     []models.MonthlyStudentSummary
	from, to time.Time
}

func (m *mockSummaryReader) MonthlySummary(ctx context.Context, from, to time.Time) ([]models.MonthlyStudentSummary, error) {
	m.from, m.to = from, to
	return m.rows, nil
}

func TestExportMonthlyReportCSV(t *testing.T) {
	reader := &mockSummaryReader{rows: []models.MonthlyStudentSummary{
		{StudentID: "s1", StudentName: "Alice", RollNumber: "1", Present: 18, Absent: 2, Total: 20},
		{StudentID: "s2", StudentName: "Bob", RollNumber: "2", Present: 5, Absent: 15, Total: 20},
	}}
	svc := NewExportService(reader, zap.NewNop())

	result, err := svc.MonthlyReport(context.Background(), 2024, 3, ExportFormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "text/csv", result.ContentType)
	assert.Equal(t, "attendance-2024-03.csv", result.Filename)
	assert.Equal(t,
		"Roll,Name,Present,Absent,Total,Percentage\n1,Alice,18,2,20,90\n2,Bob,5,15,20,25\n",
		string(result.Content))

	assert.Equal(t, day("2024-03-01"), reader.from)
	assert.Equal(t, day("2024-03-31"), reader.to)
}

func TestExportMonthlyReportPDF(t *testing.T) {
	reader := &mockSummaryReader{rows: []models.MonthlyStudentSummary{
		{StudentID: "s1", StudentName: "Alice", RollNumber: "1", Present: 18, Absent: 2, Total: 20},
	}}
	svc := NewExportService(reader, zap.NewNop())

	result, err := svc.MonthlyReport(context.Background(), 2024, 3, ExportFormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", result.ContentType)
	assert.Equal(t, "attendance-2024-03.pdf", result.Filename)
	assert.True(t, len(result.Content) > 4 && string(result.Content[:4]) == "%PDF")
}

func TestExportMonthlyReportInvalidMonth(t *testing.T) {
	svc := NewExportService(&mockSummaryReader{}, zap.NewNop())

	_, err := svc.MonthlyReport(context.Background(), 2024, 13, ExportFormatCSV)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExportMonthlyReportUnknownFormat(t *testing.T) {
	svc := NewExportService(&mockSummaryReader{}, zap.NewNop())

	_, err := svc.MonthlyReport(context.Background(), 2024, 3, ExportFormat("xlsx"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
