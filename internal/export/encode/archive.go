package encode

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ourresearch/openalex-formatter/internal/export/flatten"
)

const mainTable = "works"

// ZipEncoder writes a deflate zip of CSV tables: works.csv plus one
// <field>.csv per list of objects, linked back through work_id.
type ZipEncoder struct {
	flattener *flatten.Flattener
}

// NewZipEncoder returns a ZipEncoder.
func NewZipEncoder() *ZipEncoder {
	return &ZipEncoder{flattener: flatten.New(flatten.Options{})}
}

// ContentType implements Encoder.
func (e *ZipEncoder) ContentType() string { return ContentTypeZip }

// Encode implements Encoder.
func (e *ZipEncoder) Encode(ctx context.Context, job Job, w io.Writer) error {
	filter := NewColumnFilter(job.Args.Columns)
	works := newTable("id")
	children := map[string]*table{}
	var order []string

	err := ForEachPage(ctx, job.Pages, func(page []map[string]any) error {
		for _, rec := range page {
			out := e.flattener.FlattenTables(rec)
			works.add(out.Main)
			for _, c := range out.Children {
				if !filter.TableAllowed(c.Table) {
					continue
				}
				t, ok := children[c.Table]
				if !ok {
					t = newTable(flatten.ParentColumn)
					children[c.Table] = t
					order = append(order, c.Table)
				}
				t.add(c.Row)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	zw := zip.NewWriter(w)
	mainCols := make([]string, 0, works.columns.Len())
	for _, c := range works.columns.Columns() {
		if _, exploded := children[c]; exploded {
			continue
		}
		if filter.MainAllowed(c) {
			mainCols = append(mainCols, c)
		}
	}
	if err := writeZipTable(zw, mainTable, works, mainCols, job.Args.Truncate); err != nil {
		return err
	}

	for _, name := range order {
		t := children[name]
		cols := make([]string, 0, t.columns.Len())
		if t.columns.Has("id") {
			cols = append(cols, "id")
		}
		for _, c := range t.columns.Columns() {
			if c == "id" {
				continue
			}
			if c == flatten.ParentColumn || filter.SubAllowed(name, c) {
				cols = append(cols, c)
			}
		}
		if err := writeZipTable(zw, name, t, cols, job.Args.Truncate); err != nil {
			return err
		}
	}
	return zw.Close()
}

func writeZipTable(zw *zip.Writer, name string, t *table, cols []string, truncate bool) error {
	f, err := zw.CreateHeader(&zip.FileHeader{Name: name + ".csv", Method: zip.Deflate})
	if err != nil {
		return fmt.Errorf("create %s.csv: %w", name, err)
	}
	if err := t.writeTo(f, cols, truncate); err != nil {
		return fmt.Errorf("write %s.csv: %w", name, err)
	}
	return nil
}

// ColumnFilter applies an archive column allow-list. Entries name a main
// column or nested field ("open_access", "primary_location.source.id") or a
// side table, optionally narrowed to one of its columns ("authorships",
// "authorships.author.display_name"). An empty list allows everything.
type ColumnFilter struct {
	active bool
	main   []string
	tables map[string]map[string]struct{}
}

// NewColumnFilter builds a filter from the raw allow-list.
func NewColumnFilter(columns []string) ColumnFilter {
	f := ColumnFilter{tables: map[string]map[string]struct{}{}}
	for _, raw := range columns {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		f.active = true
		f.main = append(f.main, strings.ReplaceAll(entry, ".", "_"))

		field, sub, nested := strings.Cut(entry, ".")
		subs, seen := f.tables[field]
		switch {
		case !nested:
			f.tables[field] = nil
		case seen && subs == nil:
			// whole table already allowed
		default:
			if subs == nil {
				subs = map[string]struct{}{}
				f.tables[field] = subs
			}
			subs[strings.ReplaceAll(sub, ".", "_")] = struct{}{}
		}
	}
	return f
}

// MainAllowed reports whether a works.csv column survives.
func (f ColumnFilter) MainAllowed(column string) bool {
	if !f.active || column == "id" {
		return true
	}
	for _, m := range f.main {
		if column == m || strings.HasPrefix(column, m+"_") {
			return true
		}
	}
	return false
}

// TableAllowed reports whether a side table is written at all.
func (f ColumnFilter) TableAllowed(table string) bool {
	if !f.active {
		return true
	}
	_, ok := f.tables[table]
	return ok
}

// SubAllowed reports whether a side-table column survives. The row's own id
// is kept whenever the table is.
func (f ColumnFilter) SubAllowed(table, column string) bool {
	if !f.active || column == "id" {
		return true
	}
	subs, ok := f.tables[table]
	if !ok {
		return false
	}
	if subs == nil {
		return true
	}
	if _, ok := subs[column]; ok {
		return true
	}
	for s := range subs {
		if strings.HasPrefix(column, s+"_") {
			return true
		}
	}
	return false
}
