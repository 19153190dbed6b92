package analytics

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"tokobill/backend/internal/domain"
)

const (
	sheetSummary = "Summary"
	sheetDaily   = "Daily"
	sheetTop     = "TopProducts"
)

// WriteWorkbook renders summary as an .xlsx workbook, one sheet per
// section of the summary.
func WriteWorkbook(w io.Writer, summary domain.AnalyticsSummary, generatedAt time.Time) error {
	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return fmt.Errorf("rename summary sheet: %w", err)
	}
	rows := [][]any{
		{"Metric", "Value"},
		{"Generated At", generatedAt.UTC().Format(time.RFC3339)},
		{"Total Revenue", summary.TotalRevenue.InexactFloat64()},
		{"Total Orders", summary.TotalOrders},
		{"Cash", summary.PaymentStats.Cash.InexactFloat64()},
		{"Online", summary.PaymentStats.Online.InexactFloat64()},
	}
	if err := writeRows(f, sheetSummary, rows); err != nil {
		return err
	}

	if _, err := f.NewSheet(sheetDaily); err != nil {
		return fmt.Errorf("create daily sheet: %w", err)
	}
	daily := [][]any{{"Day", "Revenue"}}
	for i, label := range summary.Chart.Labels {
		value := 0.0
		if i < len(summary.Chart.Data) {
			value = summary.Chart.Data[i].InexactFloat64()
		}
		daily = append(daily, []any{label, value})
	}
	if err := writeRows(f, sheetDaily, daily); err != nil {
		return err
	}

	if _, err := f.NewSheet(sheetTop); err != nil {
		return fmt.Errorf("create top products sheet: %w", err)
	}
	top := [][]any{{"Rank", "Product", "Qty"}}
	for i, p := range summary.TopProducts {
		top = append(top, []any{i + 1, p.Name, p.Qty})
	}
	if err := writeRows(f, sheetTop, top); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := row
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
