package output

import (
	"encoding/csv"
	"io"

	"github.com/fedseries/fedseries/internal/dataset"
)

// CSVFormatter renders results as CSV.
type CSVFormatter struct {
	Options Options
}

// WriteTable renders the aligned table as CSV with a date column followed
// by one column per variable.
func (f *CSVFormatter) WriteTable(w io.Writer, t *dataset.Table) error {
	cw := csv.NewWriter(w)
	if t == nil || t.IsEmpty() {
		cw.Flush()
		return cw.Error()
	}
	if f.Options.Long {
		return f.writeLong(cw, t)
	}

	header := append([]string{"date"}, t.Columns()...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, date := range t.Dates() {
		record := make([]string, 0, len(header))
		record = append(record, date.Format(dateLayout))
		for _, column := range t.Columns() {
			if value, ok := t.Value(column, date); ok {
				record = append(record, formatValue(value))
			} else {
				record = append(record, f.Options.Missing)
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (f *CSVFormatter) writeLong(cw *csv.Writer, t *dataset.Table) error {
	if err := cw.Write([]string{"date", "variable", "value"}); err != nil {
		return err
	}
	for _, row := range t.Long() {
		if err := cw.Write([]string{row.Date.Format(dateLayout), row.Variable, formatValue(row.Value)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteMetadata renders series metadata as CSV.
func (f *CSVFormatter) WriteMetadata(w io.Writer, metadata []dataset.Metadata) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"code", "name", "units", "frequency", "start_date", "end_date", "source"}); err != nil {
		return err
	}
	for _, m := range metadata {
		if err := cw.Write([]string{m.Code, m.Name, m.Units, m.Frequency, m.StartDate, m.EndDate, m.Source}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
