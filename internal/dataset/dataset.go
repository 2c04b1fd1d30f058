// Package dataset aligns per-variable time series into date-indexed tables
// for export. Columns keep the order in which series were added; rows are
// sorted by date ascending.
package dataset

import (
	"math"
	"sort"
	"time"
)

// Observation is a single dated value.
type Observation struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// Series is the ordered set of observations for one variable code.
type Series struct {
	Code         string        `json:"code"`
	Observations []Observation `json:"observations"`
}

// Metadata describes a variable as reported by its data source.
type Metadata struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Units       string `json:"units,omitempty"`
	Frequency   string `json:"frequency,omitempty"`
	Source      string `json:"source"`
	StartDate   string `json:"start_date,omitempty"`
	EndDate     string `json:"end_date,omitempty"`
}

// Table is a wide-format view: one row per date, one column per variable.
// Missing cells are NaN.
type Table struct {
	dates   []time.Time
	columns []string
	values  map[string]map[int64]float64
}

// Row is a long-format record: one (date, variable, value) triple.
type Row struct {
	Date     time.Time `json:"date"`
	Variable string    `json:"variable"`
	Value    float64   `json:"value"`
}

// Align builds a table from the given series, unioning their dates.
func Align(series []Series) *Table {
	t := &Table{values: map[string]map[int64]float64{}}

	seen := map[int64]bool{}
	for _, s := range series {
		if s.Code == "" {
			continue
		}
		if _, ok := t.values[s.Code]; !ok {
			t.columns = append(t.columns, s.Code)
			t.values[s.Code] = map[int64]float64{}
		}
		for _, obs := range s.Observations {
			key := dayKey(obs.Date)
			t.values[s.Code][key] = obs.Value
			if !seen[key] {
				seen[key] = true
				t.dates = append(t.dates, obs.Date.UTC().Truncate(24*time.Hour))
			}
		}
	}

	sort.Slice(t.dates, func(i, j int) bool { return t.dates[i].Before(t.dates[j]) })
	return t
}

// Dates returns the sorted row index.
func (t *Table) Dates() []time.Time {
	if t == nil {
		return nil
	}
	out := make([]time.Time, len(t.dates))
	copy(out, t.dates)
	return out
}

// Columns returns the variable codes in insertion order.
func (t *Table) Columns() []string {
	if t == nil {
		return nil
	}
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// Value returns the cell for (code, date); ok is false for missing cells.
func (t *Table) Value(code string, date time.Time) (float64, bool) {
	if t == nil {
		return 0, false
	}
	col, ok := t.values[code]
	if !ok {
		return 0, false
	}
	value, ok := col[dayKey(date)]
	return value, ok
}

// ValueOrNaN is Value with NaN standing in for missing cells.
func (t *Table) ValueOrNaN(code string, date time.Time) float64 {
	if value, ok := t.Value(code, date); ok {
		return value
	}
	return math.NaN()
}

// NumRows returns the number of distinct dates.
func (t *Table) NumRows() int {
	if t == nil {
		return 0
	}
	return len(t.dates)
}

// NumColumns returns the number of variables.
func (t *Table) NumColumns() int {
	if t == nil {
		return 0
	}
	return len(t.columns)
}

// IsEmpty reports whether the table holds no observations.
func (t *Table) IsEmpty() bool {
	return t.NumRows() == 0 || t.NumColumns() == 0
}

// Long flattens the table to long format, skipping missing cells.
func (t *Table) Long() []Row {
	if t == nil {
		return nil
	}
	rows := make([]Row, 0, len(t.dates)*len(t.columns))
	for _, date := range t.dates {
		for _, code := range t.columns {
			value, ok := t.Value(code, date)
			if !ok {
				continue
			}
			rows = append(rows, Row{Date: date, Variable: code, Value: value})
		}
	}
	return rows
}

func dayKey(date time.Time) int64 {
	return date.UTC().Truncate(24 * time.Hour).Unix()
}
