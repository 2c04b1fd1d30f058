package output

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/fedseries/fedseries/internal/dataset"
)

// TableFormatter renders results as an ASCII table.
type TableFormatter struct {
	Options Options
}

// WriteTable renders the aligned table, one column per variable.
func (f *TableFormatter) WriteTable(w io.Writer, t *dataset.Table) error {
	if t == nil || t.IsEmpty() {
		_, err := io.WriteString(w, "no observations\n")
		return err
	}
	if f.Options.Long {
		return f.writeLong(w, t)
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := table.Row{"Date"}
	for _, column := range t.Columns() {
		header = append(header, column)
	}
	tw.AppendHeader(header)

	for _, date := range t.Dates() {
		row := table.Row{date.Format(dateLayout)}
		for _, column := range t.Columns() {
			if value, ok := t.Value(column, date); ok {
				row = append(row, formatValue(value))
			} else {
				row = append(row, f.Options.Missing)
			}
		}
		tw.AppendRow(row)
	}

	footer := table.Row{fmt.Sprintf("%d rows", t.NumRows())}
	for range t.Columns() {
		footer = append(footer, "")
	}
	tw.AppendFooter(footer)

	_, err := io.WriteString(w, tw.Render()+"\n")
	return err
}

func (f *TableFormatter) writeLong(w io.Writer, t *dataset.Table) error {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Date", "Variable", "Value"})
	for _, row := range t.Long() {
		tw.AppendRow(table.Row{row.Date.Format(dateLayout), row.Variable, formatValue(row.Value)})
	}
	_, err := io.WriteString(w, tw.Render()+"\n")
	return err
}

// WriteMetadata renders series metadata, one row per variable.
func (f *TableFormatter) WriteMetadata(w io.Writer, metadata []dataset.Metadata) error {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Code", "Name", "Units", "Frequency", "Range", "Source"})
	for _, m := range metadata {
		tw.AppendRow(table.Row{
			m.Code,
			m.Name,
			m.Units,
			m.Frequency,
			metadataRange(m),
			m.Source,
		})
	}
	_, err := io.WriteString(w, tw.Render()+"\n")
	return err
}

func metadataRange(m dataset.Metadata) string {
	if m.StartDate == "" && m.EndDate == "" {
		return ""
	}
	return m.StartDate + " .. " + m.EndDate
}
