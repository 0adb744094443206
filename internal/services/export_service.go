// Package services – ExportService
//
// ExportService renders filtered complaints as a spreadsheet report (XLSX
// with a summary sheet) or plain CSV for the admin dashboard.
package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"github.com/tbourn/civic-complaints-backend/internal/domain"
	"github.com/tbourn/civic-complaints-backend/internal/repo"
)

const (
	complaintsSheet = "Complaints"
	summarySheet    = "Summary"
)

var exportHeaders = []string{
	"Tracking ID", "Issue Type", "Severity", "Department", "Status",
	"Location", "District", "Description", "Modality", "Admin Notes",
	"Created At", "Updated At",
}

var exportWidths = []float64{16, 18, 10, 32, 14, 30, 16, 60, 10, 40, 20, 20}

func exportRow(c domain.Complaint, loc *time.Location) []any {
	return []any{
		c.TrackingID, string(c.IssueType), string(c.Severity), c.Department, string(c.Status),
		c.Location, c.District, c.Description, string(c.Modality), c.AdminNotes,
		c.CreatedAt.In(loc).Format("2006-01-02 15:04"), c.UpdatedAt.In(loc).Format("2006-01-02 15:04"),
	}
}

// ExportService produces downloadable reports.
type ExportService struct {
	DB       *gorm.DB
	Location *time.Location
	// MaxRows caps the report size; 0 means 10000.
	MaxRows int
}

func (s *ExportService) load(ctx context.Context, f ListFilter) ([]domain.Complaint, *time.Location, error) {
	rf, err := f.toRepo()
	if err != nil {
		return nil, nil, err
	}
	limit := s.MaxRows
	if limit <= 0 {
		limit = 10000
	}
	items, err := repo.ListComplaints(ctx, s.DB, rf, 0, limit)
	if err != nil {
		return nil, nil, err
	}
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	return items, loc, nil
}

// FileName returns the suggested download name for ext ("xlsx" or "csv").
func (s *ExportService) FileName(ext string) string {
	return fmt.Sprintf("complaints_report_%s.%s", time.Now().UTC().Format("20060102"), ext)
}

// CSV writes the filtered complaints as CSV.
func (s *ExportService) CSV(ctx context.Context, f ListFilter, w io.Writer) error {
	ctx, span := otel.Tracer("services/ExportService").Start(ctx, "CSV")
	defer span.End()

	items, loc, err := s.load(ctx, f)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeaders); err != nil {
		return err
	}
	for _, c := range items {
		row := exportRow(c, loc)
		rec := make([]string, len(row))
		for i, v := range row {
			rec[i] = fmt.Sprint(v)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// XLSX writes the filtered complaints plus a summary sheet as an Excel workbook.
func (s *ExportService) XLSX(ctx context.Context, f ListFilter, w io.Writer) error {
	ctx, span := otel.Tracer("services/ExportService").Start(ctx, "XLSX")
	defer span.End()

	items, loc, err := s.load(ctx, f)
	if err != nil {
		return err
	}

	x := excelize.NewFile()
	defer x.Close()

	index, err := x.NewSheet(complaintsSheet)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	_ = x.DeleteSheet("Sheet1")
	x.SetActiveSheet(index)

	headerStyle, err := x.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	if err := writeRow(x, complaintsSheet, 1, toAny(exportHeaders)); err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(len(exportHeaders), 1)
	if err := x.SetCellStyle(complaintsSheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("set header style: %w", err)
	}
	for i, width := range exportWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := x.SetColWidth(complaintsSheet, col, col, width); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}
	for i, c := range items {
		if err := writeRow(x, complaintsSheet, i+2, exportRow(c, loc)); err != nil {
			return err
		}
	}
	if err := x.SetPanes(complaintsSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	if err := writeSummary(x, items, loc, headerStyle); err != nil {
		return err
	}

	if _, err := x.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSummary(x *excelize.File, items []domain.Complaint, loc *time.Location, headerStyle int) error {
	if _, err := x.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	rows := make([]repo.StatsRow, len(items))
	for i, c := range items {
		rows[i] = repo.StatsRow{
			IssueType: string(c.IssueType), Severity: string(c.Severity), Status: string(c.Status),
			Department: c.Department, District: c.District, CreatedAt: c.CreatedAt,
		}
	}
	st := Aggregate(rows, loc)

	r := 1
	put := func(vals ...any) error {
		err := writeRow(x, summarySheet, r, vals)
		r++
		return err
	}
	if err := put("Total", st.Total); err != nil {
		return err
	}
	if err := put("Resolution rate", st.ResolutionRate); err != nil {
		return err
	}
	for _, section := range []struct {
		title string
		m     map[string]int64
	}{
		{"By status", st.ByStatus},
		{"By issue type", st.ByIssueType},
		{"By severity", st.BySeverity},
		{"By department", st.ByDepartment},
		{"By district", st.ByDistrict},
	} {
		r++
		cell, _ := excelize.CoordinatesToCellName(1, r)
		if err := put(section.title, "Count"); err != nil {
			return err
		}
		_ = x.SetCellStyle(summarySheet, cell, cell, headerStyle)
		keys := make([]string, 0, len(section.m))
		for k := range section.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := put(k, section.m[k]); err != nil {
				return err
			}
		}
	}
	return x.SetColWidth(summarySheet, "A", "A", 32)
}

func writeRow(x *excelize.File, sheet string, row int, vals []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := x.SetSheetRow(sheet, cell, &vals); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
