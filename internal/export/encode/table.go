package encode

import (
	"encoding/csv"
	"io"
	"unicode/utf8"

	"github.com/ourresearch/openalex-formatter/internal/export/flatten"
)

// MaxCellChars is the longest cell spreadsheet tools accept without
// splitting, including the ellipsis added on truncation.
const MaxCellChars = 32740

const ellipsis = "..."

// TruncateCell shortens s so that it fits in MaxCellChars characters. A cell
// that reaches the limit is cut and marked with a trailing ellipsis.
func TruncateCell(s string) string {
	keep := MaxCellChars - len(ellipsis)
	if utf8.RuneCountInString(s) < keep {
		return s
	}
	r := []rune(s)
	return string(r[:keep]) + ellipsis
}

// table is a buffered CSV table whose header is fixed only when written.
type table struct {
	columns *flatten.ColumnSet
	rows    []flatten.Row
}

func newTable(base ...string) *table {
	return &table{columns: flatten.NewColumnSet(base...)}
}

func (t *table) add(r flatten.Row) {
	t.columns.AddRow(r)
	t.rows = append(t.rows, r)
}

func (t *table) writeTo(w io.Writer, columns []string, truncate bool) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return err
	}

	record := make([]string, len(columns))
	for _, r := range t.rows {
		m := r.Map()
		for i, c := range columns {
			v := m[c]
			if truncate {
				v = TruncateCell(v)
			}
			record[i] = v
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
