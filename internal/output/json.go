package output

import (
	"encoding/json"
	"io"

	"github.com/fedseries/fedseries/internal/dataset"
)

// JSONFormatter renders results as JSON.
type JSONFormatter struct {
	Options Options
	Indent  bool
}

type jsonWideRow struct {
	Date   string              `json:"date"`
	Values map[string]*float64 `json:"values"`
}

type jsonLongRow struct {
	Date     string  `json:"date"`
	Variable string  `json:"variable"`
	Value    float64 `json:"value"`
}

// WriteTable renders the aligned table as a JSON document. Wide output
// carries null for missing observations so every row has the same shape.
func (f *JSONFormatter) WriteTable(w io.Writer, t *dataset.Table) error {
	if t == nil || t.IsEmpty() {
		return f.encode(w, []jsonWideRow{})
	}
	if f.Options.Long {
		rows := make([]jsonLongRow, 0, t.NumRows()*t.NumColumns())
		for _, row := range t.Long() {
			rows = append(rows, jsonLongRow{
				Date:     row.Date.Format(dateLayout),
				Variable: row.Variable,
				Value:    row.Value,
			})
		}
		return f.encode(w, rows)
	}

	rows := make([]jsonWideRow, 0, t.NumRows())
	for _, date := range t.Dates() {
		values := make(map[string]*float64, t.NumColumns())
		for _, column := range t.Columns() {
			if value, ok := t.Value(column, date); ok {
				values[column] = &value
			} else {
				values[column] = nil
			}
		}
		rows = append(rows, jsonWideRow{Date: date.Format(dateLayout), Values: values})
	}
	return f.encode(w, rows)
}

// WriteMetadata renders series metadata as JSON.
func (f *JSONFormatter) WriteMetadata(w io.Writer, metadata []dataset.Metadata) error {
	return f.encode(w, metadata)
}

func (f *JSONFormatter) encode(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	if f.Indent {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(value)
}
