package export

import (
	"fmt"
	"io"
	"sort"

	"github.com/example/appointment-desk/internal/application"
	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet holding the appointment rows.
const SheetName = "予約一覧"

var workbookHeader = []string{"日付", "希望時間", "来店時間", "終了時間", "状態", "お名前", "メール", "内容", "受付日時"}

var statusLabels = map[application.AppointmentStatus]string{
	application.StatusPending:  "承認待ち",
	application.StatusApproved: "承認済み",
	application.StatusRejected: "却下",
}

// WriteWorkbook writes an XLSX report of the appointments ordered by date and
// requested time. title is placed in the first row.
func WriteWorkbook(w io.Writer, title string, appointments []application.Appointment) error {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(SheetName)
	if err != nil {
		return fmt.Errorf("export: create sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("export: remove default sheet: %w", err)
	}

	widths := []float64{12, 10, 10, 10, 10, 18, 26, 40, 20}
	for i, width := range widths {
		col := colName(i)
		if err := f.SetColWidth(SheetName, col, col, width); err != nil {
			return fmt.Errorf("export: column width: %w", err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("export: header style: %w", err)
	}

	if err := f.SetCellValue(SheetName, "A1", title); err != nil {
		return fmt.Errorf("export: title: %w", err)
	}

	row := 2
	for i, label := range workbookHeader {
		if err := f.SetCellValue(SheetName, cell(colName(i), row), label); err != nil {
			return fmt.Errorf("export: header: %w", err)
		}
	}
	if err := f.SetCellStyle(SheetName, cell("A", row), cell(colName(len(workbookHeader)-1), row), headerStyle); err != nil {
		return fmt.Errorf("export: header style: %w", err)
	}

	sorted := append([]application.Appointment(nil), appointments...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Date != sorted[j].Date {
			return sorted[i].Date < sorted[j].Date
		}
		return sorted[i].RequestedTime < sorted[j].RequestedTime
	})

	for _, appointment := range sorted {
		row++
		values := []any{
			appointment.Date,
			appointment.RequestedTime,
			appointment.ArrivalTime,
			appointment.FinishedTime,
			statusLabel(appointment.Status),
			appointment.UserName,
			appointment.UserEmail,
			appointment.Description,
			appointment.CreatedAt.Format("2006-01-02 15:04"),
		}
		if err := f.SetSheetRow(SheetName, cell("A", row), &values); err != nil {
			return fmt.Errorf("export: row %d: %w", row, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("export: write workbook: %w", err)
	}
	return nil
}

func statusLabel(status application.AppointmentStatus) string {
	if label, ok := statusLabels[status]; ok {
		return label
	}
	return string(status)
}

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
