package output

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fedseries/fedseries/internal/dataset"
)

// Format represents an output format.
type Format string

const (
	FormatTable Format = "table"
	FormatCSV   Format = "csv"
	FormatJSON  Format = "json"
	FormatExcel Format = "excel"
)

// Options adjusts how a formatter renders a table.
type Options struct {
	// Long emits one row per (date, variable, value) instead of one
	// column per variable.
	Long bool

	// Missing is the placeholder written for absent observations in
	// table and CSV output. Defaults to ".".
	Missing string
}

// Formatter renders aligned tables and series metadata. Excel output is
// binary, so formatters write to an io.Writer rather than returning a
// string.
type Formatter interface {
	WriteTable(w io.Writer, t *dataset.Table) error
	WriteMetadata(w io.Writer, metadata []dataset.Metadata) error
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatCSV):
		return FormatCSV, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatExcel), "xlsx":
		return FormatExcel, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format, opts Options) Formatter {
	if opts.Missing == "" {
		opts.Missing = "."
	}
	switch format {
	case FormatCSV:
		return &CSVFormatter{Options: opts}
	case FormatJSON:
		return &JSONFormatter{Options: opts, Indent: true}
	case FormatExcel:
		return &ExcelFormatter{Options: opts}
	default:
		return &TableFormatter{Options: opts}
	}
}

// formatValue renders an observation without trailing zero noise.
func formatValue(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

const dateLayout = "2006-01-02"
