package output

import (
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/fedseries/fedseries/internal/dataset"
)

// ExcelFormatter renders results as an .xlsx workbook.
type ExcelFormatter struct {
	Options Options
}

const (
	excelDataSheet     = "Data"
	excelMetadataSheet = "Metadata"
)

// WriteTable renders the aligned table on a "Data" sheet. Missing
// observations are left as empty cells so spreadsheet formulas skip them.
func (f *ExcelFormatter) WriteTable(w io.Writer, t *dataset.Table) error {
	book := excelize.NewFile()
	defer book.Close()
	if err := book.SetSheetName("Sheet1", excelDataSheet); err != nil {
		return err
	}

	if t != nil && !t.IsEmpty() {
		if f.Options.Long {
			if err := f.fillLong(book, t); err != nil {
				return err
			}
		} else if err := f.fillWide(book, t); err != nil {
			return err
		}
	}
	return book.Write(w)
}

func (f *ExcelFormatter) fillWide(book *excelize.File, t *dataset.Table) error {
	header := append([]any{"date"}, toAny(t.Columns())...)
	if err := setRow(book, excelDataSheet, 1, header); err != nil {
		return err
	}
	for i, date := range t.Dates() {
		row := make([]any, 0, t.NumColumns()+1)
		row = append(row, date.Format(dateLayout))
		for _, column := range t.Columns() {
			if value, ok := t.Value(column, date); ok {
				row = append(row, value)
			} else {
				row = append(row, nil)
			}
		}
		if err := setRow(book, excelDataSheet, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func (f *ExcelFormatter) fillLong(book *excelize.File, t *dataset.Table) error {
	if err := setRow(book, excelDataSheet, 1, []any{"date", "variable", "value"}); err != nil {
		return err
	}
	for i, row := range t.Long() {
		cells := []any{row.Date.Format(dateLayout), row.Variable, row.Value}
		if err := setRow(book, excelDataSheet, i+2, cells); err != nil {
			return err
		}
	}
	return nil
}

// WriteMetadata renders series metadata on a "Metadata" sheet.
func (f *ExcelFormatter) WriteMetadata(w io.Writer, metadata []dataset.Metadata) error {
	book := excelize.NewFile()
	defer book.Close()
	if err := book.SetSheetName("Sheet1", excelMetadataSheet); err != nil {
		return err
	}

	header := []any{"code", "name", "units", "frequency", "start_date", "end_date", "source"}
	if err := setRow(book, excelMetadataSheet, 1, header); err != nil {
		return err
	}
	for i, m := range metadata {
		row := []any{m.Code, m.Name, m.Units, m.Frequency, m.StartDate, m.EndDate, m.Source}
		if err := setRow(book, excelMetadataSheet, i+2, row); err != nil {
			return err
		}
	}
	return book.Write(w)
}

func setRow(book *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return book.SetSheetRow(sheet, cell, &values)
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
