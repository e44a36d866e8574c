package core

import (
	"fmt"
	"sort"
	"strings"
)

// Default identifier column names used by the source workbooks.
const (
	ColumnCategory  = "表单"
	ColumnIndicator = "指标名称"
	ColumnUnit      = "单位"
	ColumnRegion    = "地区"
	ColumnSource    = "数据来源"
	ColumnYear      = "年份"
	ColumnValue     = "数值"
)

// RawTable is an untyped grid as read from a spreadsheet.
// Columns holds the header labels; Rows may be ragged, missing trailing
// cells are treated as blank.
type RawTable struct {
	Columns []string
	Rows    [][]string
}

// Cell returns the cell at row i, column j, or "" when the row is short.
func (t RawTable) Cell(i, j int) string {
	row := t.Rows[i]
	if j >= len(row) {
		return ""
	}
	return row[j]
}

// ColumnIndex returns the position of the column with the exact label name.
func (t RawTable) ColumnIndex(name string) (int, bool) {
	for i, c := range t.Columns {
		if c == name {
			return i, true
		}
	}
	return -1, false
}

// Concat stacks tables vertically. Columns are unioned in first-seen order
// and cells a table does not have are left blank.
func Concat(tables ...RawTable) RawTable {
	var out RawTable
	pos := make(map[string]int)

	for _, t := range tables {
		for _, c := range t.Columns {
			if _, ok := pos[c]; !ok {
				pos[c] = len(out.Columns)
				out.Columns = append(out.Columns, c)
			}
		}
	}

	for _, t := range tables {
		for i := range t.Rows {
			row := make([]string, len(out.Columns))
			for j, c := range t.Columns {
				row[pos[c]] = t.Cell(i, j)
			}
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// Schema names the identifier columns of an indicator table.
// Region is optional; when empty the table has no region dimension.
//
// When Year and Value are set the table is already long form: each row
// carries its year and value in those columns. Otherwise the table is wide
// and every non-identifier column is a year.
type Schema struct {
	Category  string
	Indicator string
	Unit      string
	Region    string

	Year  string
	Value string
}

// CentralSchema returns the schema of the central enterprise workbook.
func CentralSchema() Schema {
	return Schema{
		Category:  ColumnCategory,
		Indicator: ColumnIndicator,
		Unit:      ColumnUnit,
	}
}

// ProvinceSchema returns the schema of the provincial workbook: long form,
// with the sheet each row came from as its category.
func ProvinceSchema() Schema {
	return Schema{
		Category:  ColumnSource,
		Indicator: ColumnIndicator,
		Unit:      ColumnUnit,
		Region:    ColumnRegion,
		Year:      ColumnYear,
		Value:     ColumnValue,
	}
}

// LongForm reports whether tables under this schema carry year and value
// columns instead of one column per year.
func (s Schema) LongForm() bool {
	return s.Year != "" && s.Value != ""
}

// Identifiers returns the configured identifier column names in order.
func (s Schema) Identifiers() []string {
	cols := []string{s.Category, s.Indicator, s.Unit}
	if s.Region != "" {
		cols = append(cols, s.Region)
	}
	return cols
}

// Required returns every column a table must have: the identifiers, plus
// the year and value columns of a long-form schema.
func (s Schema) Required() []string {
	cols := s.Identifiers()
	if s.LongForm() {
		cols = append(cols, s.Year, s.Value)
	}
	return cols
}

// isIdentifier reports whether label is one of the schema's required columns.
func (s Schema) isIdentifier(label string) bool {
	for _, c := range s.Required() {
		if c == label {
			return true
		}
	}
	return false
}

// Record is one row of the long-form table.
type Record struct {
	Category  string  `json:"category"`
	Indicator string  `json:"indicator"`
	Unit      string  `json:"unit"`
	Region    string  `json:"region,omitempty"`
	Year      int     `json:"year"`
	Value     float64 `json:"value"`
	Label     string  `json:"label"`
}

// Table is the normalized long-form table.
type Table struct {
	Records []Record
}

// Len returns the number of records.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Records)
}

// Filter returns a new table holding the records keep accepts.
func (t *Table) Filter(keep func(Record) bool) *Table {
	out := &Table{}
	for _, r := range t.Records {
		if keep(r) {
			out.Records = append(out.Records, r)
		}
	}
	return out
}

// Categories returns the distinct categories in first-seen order.
func (t *Table) Categories() []string {
	return t.distinct(func(r Record) (string, bool) { return r.Category, true })
}

// Indicators returns the distinct indicator names of a category in
// first-seen order. An empty category matches every record.
func (t *Table) Indicators(category string) []string {
	return t.distinct(func(r Record) (string, bool) {
		return r.Indicator, category == "" || r.Category == category
	})
}

// Regions returns the distinct non-empty regions in first-seen order.
func (t *Table) Regions() []string {
	return t.distinct(func(r Record) (string, bool) { return r.Region, r.Region != "" })
}

// Years returns the distinct years in ascending order.
func (t *Table) Years() []int {
	seen := make(map[int]bool)
	var years []int
	for _, r := range t.Records {
		if !seen[r.Year] {
			seen[r.Year] = true
			years = append(years, r.Year)
		}
	}
	sort.Ints(years)
	return years
}

func (t *Table) distinct(key func(Record) (string, bool)) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range t.Records {
		k, ok := key(r)
		if !ok || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

// DuplicateIndicatorWarning reports an indicator identity that occurs on
// more than one source row. Category and Region are set when the schema
// has a region dimension; Year is set for long-form tables.
type DuplicateIndicatorWarning struct {
	Indicator string `json:"indicator"`
	Category  string `json:"category,omitempty"`
	Region    string `json:"region,omitempty"`
	Year      int    `json:"year,omitempty"`
}

func (w DuplicateIndicatorWarning) String() string {
	s := w.Indicator
	if w.Region != "" {
		s = w.Category + "/" + w.Region + "/" + s
	}
	if w.Year != 0 {
		s += fmt.Sprintf(" (%d)", w.Year)
	}
	return s
}

// NumericCoercionWarning identifies one non-blank cell that is not a number.
type NumericCoercionWarning struct {
	Indicator string `json:"indicator"`
	Region    string `json:"region,omitempty"`
	Year      int    `json:"year"`
	Raw       string `json:"raw"`
}

func (w NumericCoercionWarning) String() string {
	if w.Region != "" {
		return fmt.Sprintf("indicator %q, region %q, year %d: invalid value %q", w.Indicator, w.Region, w.Year, w.Raw)
	}
	return fmt.Sprintf("indicator %q, year %d: invalid value %q", w.Indicator, w.Year, w.Raw)
}

// ValidationReport collects the non-fatal findings of one normalization.
type ValidationReport struct {
	Duplicates       []DuplicateIndicatorWarning `json:"duplicates"`
	CoercionFailures []NumericCoercionWarning    `json:"coercionFailures"`
	IncompleteRows   []IncompleteRowWarning      `json:"incompleteRows,omitempty"`

	// ExcludedColumns lists column labels that were neither identifiers nor
	// years. Diagnostic only; not a warning.
	ExcludedColumns []string `json:"excludedColumns,omitempty"`
}

// HasWarnings reports whether the report holds any warning.
func (r *ValidationReport) HasWarnings() bool {
	return r != nil && (len(r.Duplicates) > 0 || len(r.CoercionFailures) > 0 || len(r.IncompleteRows) > 0)
}

// DuplicateNames returns the duplicated identities as strings.
func (r *ValidationReport) DuplicateNames() []string {
	names := make([]string, len(r.Duplicates))
	for i, d := range r.Duplicates {
		names[i] = d.String()
	}
	return names
}

// DefaultSummaryLimit is how many coercion failures Summary lists before
// collapsing the rest into a count.
const DefaultSummaryLimit = 5

// Summary renders the report as warning lines for display. At most limit
// coercion failures are listed individually; a limit <= 0 lists all.
func (r *ValidationReport) Summary(limit int) []string {
	if !r.HasWarnings() {
		return nil
	}

	var lines []string
	if len(r.Duplicates) > 0 {
		lines = append(lines, "duplicate indicator names: "+strings.Join(r.DuplicateNames(), ", "))
	}

	failures := r.CoercionFailures
	if len(failures) > 0 {
		lines = append(lines, "non-numeric values ignored:")
		shown := failures
		if limit > 0 && len(shown) > limit {
			shown = shown[:limit]
		}
		for _, f := range shown {
			lines = append(lines, "  - "+f.String())
		}
		if rest := len(failures) - len(shown); rest > 0 {
			lines = append(lines, fmt.Sprintf("  - ... and %d more", rest))
		}
	}

	for _, w := range r.IncompleteRows {
		lines = append(lines, fmt.Sprintf("row %d skipped: blank %s", w.Line, strings.Join(w.Missing, ", ")))
	}
	return lines
}
