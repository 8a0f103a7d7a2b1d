package flatten

// Cell is one column/value pair of a flattened record.
type Cell struct {
	Column string
	Value  string
}

// Row is a flattened record kept as an ordered list so the column order a
// record was discovered in survives until the header is finalized.
type Row []Cell

// Get returns the value stored for column.
func (r Row) Get(column string) (string, bool) {
	for _, c := range r {
		if c.Column == column {
			return c.Value, true
		}
	}
	return "", false
}

// Columns returns the row's column names in order.
func (r Row) Columns() []string {
	cols := make([]string, len(r))
	for i, c := range r {
		cols[i] = c.Column
	}
	return cols
}

// Map indexes the row by column for writers that look up many columns.
func (r Row) Map() map[string]string {
	m := make(map[string]string, len(r))
	for _, c := range r {
		m[c.Column] = c.Value
	}
	return m
}

func (r *Row) set(column, value string) {
	for i := range *r {
		if (*r)[i].Column == column {
			(*r)[i].Value = value
			return
		}
	}
	*r = append(*r, Cell{Column: column, Value: value})
}

// ColumnSet accumulates the ordered union of column names seen across rows.
type ColumnSet struct {
	order []string
	seen  map[string]struct{}
}

// NewColumnSet returns a set seeded with base columns, in order.
func NewColumnSet(base ...string) *ColumnSet {
	cs := &ColumnSet{seen: make(map[string]struct{}, len(base))}
	for _, c := range base {
		cs.Add(c)
	}
	return cs
}

// Add appends column if it was not seen before.
func (cs *ColumnSet) Add(column string) {
	if cs.seen == nil {
		cs.seen = make(map[string]struct{})
	}
	if _, ok := cs.seen[column]; ok {
		return
	}
	cs.seen[column] = struct{}{}
	cs.order = append(cs.order, column)
}

// AddRow adds every column of r in row order.
func (cs *ColumnSet) AddRow(r Row) {
	for _, c := range r {
		cs.Add(c.Column)
	}
}

// Has reports whether column was seen.
func (cs *ColumnSet) Has(column string) bool {
	_, ok := cs.seen[column]
	return ok
}

// Columns returns the finalized column order.
func (cs *ColumnSet) Columns() []string {
	return append([]string(nil), cs.order...)
}

// Len returns the number of distinct columns.
func (cs *ColumnSet) Len() int {
	return len(cs.order)
}
