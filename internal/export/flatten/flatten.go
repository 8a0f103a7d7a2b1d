// Package flatten turns nested work records into flat, path-keyed rows for the
// tabular encoders.
package flatten

import (
	"sort"
	"strings"
)

const (
	// DefaultSeparator joins list values inside one cell.
	DefaultSeparator = "|"

	abstractColumn = "abstract"
	abstractIndex  = "abstract_inverted_index"
	// ParentColumn is the foreign key column of archive side tables.
	ParentColumn = "work_id"
)

// BaseColumns is the fixed, hand-curated leading schema of the CSV export.
var BaseColumns = []string{
	"id",
	"display_name",
	"publication_date",
	"relevance_score",
	"primary_location_id",
	"primary_location_display_name",
	"primary_location_host_organization",
	"primary_location_issns",
	"primary_location_issn_l",
	"primary_location_type",
	"primary_location_landing_page_url",
	"primary_location_pdf_url",
	"primary_location_is_oa",
	"primary_location_version",
	"primary_location_license",
	"author_ids",
	"author_names",
	"author_orcids",
	"author_institution_ids",
	"author_institution_names",
	"is_oa",
	"oa_status",
	"oa_url",
	"cited_by_count",
	"doi",
	"mag",
	"pmid",
	"pmcid",
	"publication_year",
	"cited_by_api_url",
	"type",
	"is_paratext",
	"is_retracted",
	"biblio_issue",
	"biblio_first_page",
	"biblio_volume",
	"biblio_last_page",
	"referenced_works",
	"related_works",
	"concept_ids",
}

// curatedSources are top-level fields whose meaning is already carried by a
// base column. legacyFields are older duplicates of current fields.
var (
	curatedSources = map[string]struct{}{
		"id": {}, "display_name": {}, "publication_date": {}, "relevance_score": {},
		"primary_location": {}, "authorships": {}, "open_access": {}, "ids": {},
		"doi": {}, "cited_by_count": {}, "publication_year": {}, "cited_by_api_url": {},
		"type": {}, "is_paratext": {}, "is_retracted": {}, "biblio": {},
		"referenced_works": {}, "related_works": {}, "concepts": {},
	}
	legacyFields = map[string]struct{}{
		"title": {}, "host_venue": {}, "alternate_host_venues": {},
	}
)

// Options tunes flattening.
type Options struct {
	// Separator joins list values in one cell. Defaults to "|".
	Separator string
}

// Flattener converts records to rows. It holds no per-record state and is
// safe for concurrent use.
type Flattener struct {
	sep string
}

// New returns a Flattener.
func New(opts Options) *Flattener {
	sep := opts.Separator
	if sep == "" {
		sep = DefaultSeparator
	}
	return &Flattener{sep: sep}
}

// Flatten produces the single-table row of a record: the base columns, the
// reconstructed abstract for open-access works, then every remaining field.
// Lists of objects are projected to <parent>_<field> columns whose cells join
// the per-element values.
func (f *Flattener) Flatten(record map[string]any) Row {
	row := make(Row, 0, len(BaseColumns)+16)
	row = f.appendBase(row, record)

	if abstract, ok := f.abstract(record); ok {
		row.set(abstractColumn, abstract)
	}

	for _, key := range sortedKeys(record) {
		if _, ok := curatedSources[key]; ok {
			continue
		}
		if _, ok := legacyFields[key]; ok {
			continue
		}
		if key == abstractIndex {
			continue
		}
		f.walk(&row, key, record[key])
	}
	return row
}

// Child is one side-table row produced by exploding a list of objects.
type Child struct {
	Table string
	Row   Row
}

// Tables is a record split into its main row and side-table rows.
type Tables struct {
	Main     Row
	Children []Child
}

// FlattenTables produces the archive form of a record. Every list of objects
// becomes rows of a side table named after its path, each row carrying the
// element's own id (when present) and the owning record's id.
func (f *Flattener) FlattenTables(record map[string]any) Tables {
	var out Tables
	parentID := Scalar(record["id"])
	out.Main.set("id", parentID)

	if abstract, ok := f.abstract(record); ok {
		out.Main.set(abstractColumn, abstract)
	}

	for _, key := range sortedKeys(record) {
		if _, ok := legacyFields[key]; ok {
			continue
		}
		if key == abstractIndex || key == "id" {
			continue
		}
		f.walkTables(&out, key, record[key], parentID)
	}
	return out
}

func (f *Flattener) walkTables(out *Tables, path string, v any, parentID string) {
	switch t := v.(type) {
	case map[string]any:
		for _, k := range sortedKeys(t) {
			f.walkTables(out, path+"_"+k, t[k], parentID)
		}
	case []any:
		if len(t) > 0 && allObjects(t) {
			for _, elem := range t {
				obj, _ := elem.(map[string]any)
				out.Children = append(out.Children, Child{Table: path, Row: f.childRow(obj, parentID)})
			}
			return
		}
		out.Main.set(path, f.list(t))
	default:
		out.Main.set(path, Scalar(t))
	}
}

func (f *Flattener) childRow(obj map[string]any, parentID string) Row {
	row := Row{}
	if id, ok := obj["id"]; ok {
		row.set("id", Scalar(id))
	}
	row.set(ParentColumn, parentID)
	for _, k := range sortedKeys(obj) {
		if k == "id" {
			continue
		}
		f.walkElement(&row, k, obj[k])
	}
	return row
}

// walk flattens v under path into row in single-table mode.
func (f *Flattener) walk(row *Row, path string, v any) {
	switch t := v.(type) {
	case map[string]any:
		for _, k := range sortedKeys(t) {
			f.walk(row, path+"_"+k, t[k])
		}
	case []any:
		if len(t) > 0 && allObjects(t) {
			f.project(row, path, t)
			return
		}
		row.set(path, f.list(t))
	default:
		row.set(path, Scalar(t))
	}
}

// project writes one <path>_<field> column per field seen in any element,
// joining the element values in element order. Elements lacking the field
// contribute an empty slot so positions stay aligned.
func (f *Flattener) project(row *Row, path string, elems []any) {
	flat := make([]Row, len(elems))
	cols := NewColumnSet()
	for i, e := range elems {
		obj, _ := e.(map[string]any)
		var r Row
		for _, k := range sortedKeys(obj) {
			f.walkElement(&r, k, obj[k])
		}
		flat[i] = r
		cols.AddRow(r)
	}

	for _, col := range cols.Columns() {
		vals := make([]string, len(flat))
		for i, r := range flat {
			vals[i], _ = r.Get(col)
		}
		row.set(path+"_"+col, strings.Join(vals, f.sep))
	}
}

// walkElement flattens one list element. Nested objects still merge with a
// prefix; nested lists of scalars join; deeper lists of objects are kept as
// JSON because a second level of joining would be ambiguous.
func (f *Flattener) walkElement(row *Row, path string, v any) {
	switch t := v.(type) {
	case map[string]any:
		for _, k := range sortedKeys(t) {
			f.walkElement(row, path+"_"+k, t[k])
		}
	case []any:
		if allScalars(t) {
			row.set(path, f.list(t))
			return
		}
		row.set(path, Scalar(t))
	default:
		row.set(path, Scalar(t))
	}
}

func (f *Flattener) list(items []any) string {
	if !allScalars(items) {
		return Scalar(items)
	}
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = Scalar(it)
	}
	return strings.Join(parts, f.sep)
}

func (f *Flattener) abstract(record map[string]any) (string, bool) {
	if !IsTrue(record, "open_access", "is_oa") {
		return "", false
	}
	index, ok := record[abstractIndex].(map[string]any)
	if !ok {
		return "", false
	}
	return AbstractFromInvertedIndex(index), true
}

func (f *Flattener) appendBase(row Row, w map[string]any) Row {
	loc := LookupObject(w, "primary_location")
	src := LookupObject(loc, "source")

	values := map[string]string{
		"id":                                 LookupString(w, "id"),
		"display_name":                       LookupString(w, "display_name"),
		"publication_date":                   LookupString(w, "publication_date"),
		"relevance_score":                    LookupString(w, "relevance_score"),
		"primary_location_id":                LookupString(src, "id"),
		"primary_location_display_name":      LookupString(src, "display_name"),
		"primary_location_host_organization": LookupString(src, "host_organization_name"),
		"primary_location_issns":             f.list(LookupList(src, "issn")),
		"primary_location_issn_l":            LookupString(src, "issn_l"),
		"primary_location_type":              LookupString(src, "type"),
		"primary_location_landing_page_url":  LookupString(loc, "landing_page_url"),
		"primary_location_pdf_url":           LookupString(loc, "pdf_url"),
		"primary_location_is_oa":             LookupString(loc, "is_oa"),
		"primary_location_version":           LookupString(loc, "version"),
		"primary_location_license":           LookupString(loc, "license"),
		"author_ids":                         f.authorships(w, "author", "id"),
		"author_names":                       f.authorships(w, "author", "display_name"),
		"author_orcids":                      f.authorships(w, "author", "orcid"),
		"author_institution_ids":             f.firstInstitutions(w, "id"),
		"author_institution_names":           f.firstInstitutions(w, "display_name"),
		"is_oa":                              LookupString(w, "open_access", "is_oa"),
		"oa_status":                          LookupString(w, "open_access", "oa_status"),
		"oa_url":                             LookupString(w, "open_access", "oa_url"),
		"cited_by_count":                     LookupString(w, "cited_by_count"),
		"doi":                                firstNonEmpty(LookupString(w, "ids", "doi"), LookupString(w, "doi")),
		"mag":                                LookupString(w, "ids", "mag"),
		"pmid":                               LookupString(w, "ids", "pmid"),
		"pmcid":                              LookupString(w, "ids", "pmcid"),
		"publication_year":                   LookupString(w, "publication_year"),
		"cited_by_api_url":                   LookupString(w, "cited_by_api_url"),
		"type":                               LookupString(w, "type"),
		"is_paratext":                        LookupString(w, "is_paratext"),
		"is_retracted":                       LookupString(w, "is_retracted"),
		"biblio_issue":                       LookupString(w, "biblio", "issue"),
		"biblio_first_page":                  LookupString(w, "biblio", "first_page"),
		"biblio_volume":                      LookupString(w, "biblio", "volume"),
		"biblio_last_page":                   LookupString(w, "biblio", "last_page"),
		"referenced_works":                   f.list(LookupList(w, "referenced_works")),
		"related_works":                      f.list(LookupList(w, "related_works")),
		"concept_ids":                        f.pluck(LookupList(w, "concepts"), "id"),
	}

	for _, col := range BaseColumns {
		row = append(row, Cell{Column: col, Value: values[col]})
	}
	return row
}

// authorships joins one author field across authorships, stripping the
// separator from values so the cell splits back cleanly.
func (f *Flattener) authorships(w map[string]any, keys ...string) string {
	list := LookupList(w, "authorships")
	parts := make([]string, len(list))
	for i, a := range list {
		parts[i] = strings.ReplaceAll(LookupString(a, keys...), f.sep, "")
	}
	return strings.Join(parts, f.sep)
}

func (f *Flattener) firstInstitutions(w map[string]any, field string) string {
	list := LookupList(w, "authorships")
	parts := make([]string, len(list))
	for i, a := range list {
		insts := LookupList(a, "institutions")
		if len(insts) == 0 {
			continue
		}
		parts[i] = strings.ReplaceAll(LookupString(insts[0], field), f.sep, "")
	}
	return strings.Join(parts, f.sep)
}

func (f *Flattener) pluck(list []any, field string) string {
	parts := make([]string, len(list))
	for i, it := range list {
		parts[i] = LookupString(it, field)
	}
	return strings.Join(parts, f.sep)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func allObjects(items []any) bool {
	for _, it := range items {
		if _, ok := it.(map[string]any); !ok {
			return false
		}
	}
	return true
}

func allScalars(items []any) bool {
	for _, it := range items {
		if !isScalar(it) {
			return false
		}
	}
	return true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
