package dataset

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAlignUnionsDates(t *testing.T) {
	table := Align([]Series{
		{
			Code: "GDP",
			Observations: []Observation{
				{Date: day(2020, 1, 1), Value: 100},
				{Date: day(2020, 4, 1), Value: 95},
			},
		},
		{
			Code: "UNRATE",
			Observations: []Observation{
				{Date: day(2020, 4, 1), Value: 14.7},
				{Date: day(2020, 7, 1), Value: 10.2},
			},
		},
	})

	require.Equal(t, []time.Time{day(2020, 1, 1), day(2020, 4, 1), day(2020, 7, 1)}, table.Dates())
	require.Equal(t, []string{"GDP", "UNRATE"}, table.Columns())
	require.Equal(t, 3, table.NumRows())
	require.Equal(t, 2, table.NumColumns())
	require.False(t, table.IsEmpty())

	value, ok := table.Value("GDP", day(2020, 1, 1))
	require.True(t, ok)
	require.Equal(t, 100.0, value)

	_, ok = table.Value("UNRATE", day(2020, 1, 1))
	require.False(t, ok)
	require.True(t, math.IsNaN(table.ValueOrNaN("UNRATE", day(2020, 1, 1))))
}

func TestAlignEmpty(t *testing.T) {
	table := Align(nil)
	require.True(t, table.IsEmpty())
	require.Zero(t, table.NumRows())
	require.Zero(t, table.NumColumns())
	require.Empty(t, table.Long())
}

func TestAlignColumnOrderFollowsInput(t *testing.T) {
	table := Align([]Series{
		{Code: "ZZZ", Observations: []Observation{{Date: day(2021, 1, 1), Value: 1}}},
		{Code: "AAA", Observations: []Observation{{Date: day(2021, 1, 1), Value: 2}}},
	})
	require.Equal(t, []string{"ZZZ", "AAA"}, table.Columns())
}

func TestLongSkipsMissingCells(t *testing.T) {
	table := Align([]Series{
		{Code: "A", Observations: []Observation{{Date: day(2022, 1, 1), Value: 1}}},
		{Code: "B", Observations: []Observation{{Date: day(2022, 1, 2), Value: 2}}},
	})

	rows := table.Long()
	require.Len(t, rows, 2)
	require.Equal(t, Row{Date: day(2022, 1, 1), Variable: "A", Value: 1}, rows[0])
	require.Equal(t, Row{Date: day(2022, 1, 2), Variable: "B", Value: 2}, rows[1])
}

func TestValueNormalizesTimeOfDay(t *testing.T) {
	table := Align([]Series{
		{Code: "A", Observations: []Observation{{Date: day(2023, 6, 15), Value: 3.5}}},
	})

	// Lookups match on the calendar day regardless of clock time.
	noon := time.Date(2023, 6, 15, 12, 30, 0, 0, time.UTC)
	value, ok := table.Value("A", noon)
	require.True(t, ok)
	require.Equal(t, 3.5, value)
}

func TestDatesAndColumnsReturnCopies(t *testing.T) {
	table := Align([]Series{
		{Code: "A", Observations: []Observation{{Date: day(2023, 1, 1), Value: 1}}},
	})

	dates := table.Dates()
	dates[0] = day(1999, 1, 1)
	require.Equal(t, day(2023, 1, 1), table.Dates()[0])

	columns := table.Columns()
	columns[0] = "MUTATED"
	require.Equal(t, "A", table.Columns()[0])
}
