package service

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/98iam/classtrack-api/internal/models"
	appErrors "github.com/98iam/classtrack-api/pkg/errors"
	"github.com/98iam/classtrack-api/pkg/export"
)

type monthlySummaryReader interface {
	MonthlySummary(ctx context.Context, from, to time.Time) ([]models.MonthlyStudentSummary, error)
}

// ExportFormat names a supported report rendition.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportResult carries rendered report bytes and response metadata.
type ExportResult struct {
	Content     []byte
	ContentType string
	Filename    string
}

// ExportService renders monthly attendance reports.
type ExportService struct {
	ledger monthlySummaryReader
	csv    *export.CSVExporter
	pdf    *export.PDFExporter
	logger *zap.Logger
}

// NewExportService constructs the export service.
func NewExportService(ledger monthlySummaryReader, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		ledger: ledger,
		csv:    export.NewCSVExporter(),
		pdf:    export.NewPDFExporter(),
		logger: logger,
	}
}

var exportHeaders = []string{"Roll", "Name", "Present", "Absent", "Total", "Percentage"}

// MonthlyReport renders the per-student summary for one calendar month.
func (s *ExportService) MonthlyReport(ctx context.Context, year, month int, format ExportFormat) (*ExportResult, error) {
	if month < 1 || month > 12 || year < 1 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid year or month")
	}
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, -1)

	summaries, err := s.ledger.MonthlySummary(ctx, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build monthly summary")
	}

	dataset := export.Dataset{Headers: exportHeaders, Rows: make([]map[string]string, 0, len(summaries))}
	for _, row := range summaries {
		percentage := 0
		if row.Total > 0 {
			percentage = int(math.Round(float64(row.Present) / float64(row.Total) * 100))
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Roll":       row.RollNumber,
			"Name":       row.StudentName,
			"Present":    strconv.Itoa(row.Present),
			"Absent":     strconv.Itoa(row.Absent),
			"Total":      strconv.Itoa(row.Total),
			"Percentage": strconv.Itoa(percentage),
		})
	}

	period := from.Format("2006-01")
	switch format {
	case ExportFormatCSV:
		content, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv report")
		}
		return &ExportResult{
			Content:     content,
			ContentType: "text/csv",
			Filename:    fmt.Sprintf("attendance-%s.csv", period),
		}, nil
	case ExportFormatPDF:
		content, err := s.pdf.Render(dataset, fmt.Sprintf("Attendance %s", period))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf report")
		}
		return &ExportResult{
			Content:     content,
			ContentType: "application/pdf",
			Filename:    fmt.Sprintf("attendance-%s.pdf", period),
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}
