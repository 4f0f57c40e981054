package exporter

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"wialonblock/internal/domain"
	"wialonblock/internal/ports"
)

// SheetName — имя листа с объектами.
const SheetName = "Объекты"

// ExcelExporter сохраняет объекты в xlsx-книгу.
type ExcelExporter struct {
	now func() time.Time
}

var _ ports.Exporter = (*ExcelExporter)(nil)

// NewExcelExporter создает ExcelExporter.
func NewExcelExporter() *ExcelExporter {
	return &ExcelExporter{now: time.Now}
}

// Export пишет книгу с колонками "Дата экспорта", ID, "Объект", "Состояние".
func (e *ExcelExporter) Export(w io.Writer, units []domain.Unit) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close excel file: %w", cerr)
		}
	}()

	index, err := f.NewSheet(SheetName)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to delete default sheet: %w", err)
	}

	headers := []any{"Дата экспорта", "ID", "Объект", "Состояние"}
	if err := f.SetSheetRow(SheetName, "A1", &headers); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	exportDate := e.now().Format(time.RFC3339)
	for i, u := range units {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{exportDate, u.ID, u.Name, stateText(u.LockState)}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(SheetName, "C", "C", 40); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}
	if err := f.AutoFilter(SheetName, fmt.Sprintf("A1:D%d", len(units)+1), nil); err != nil {
		return fmt.Errorf("failed to set autofilter: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write excel: %w", err)
	}
	return nil
}

func stateText(s domain.LockState) string {
	switch s {
	case domain.LockLocked:
		return "Заблокирован"
	case domain.LockUnlocked:
		return "Разблокирован"
	default:
		return "Неизвестно"
	}
}
