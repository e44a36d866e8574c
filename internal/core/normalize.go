package core

// normalize.go turns a RawTable into the long-form Table.
//
// A wide table has one row per indicator and one column per year. The long
// table has one record per (indicator row, year column) whose cell holds a
// number. Reshape and coercion are separate passes: reshape keeps the raw
// cell text on every long row so that a failed coercion can be reported
// with the exact indicator, year and value that caused it.
//
// Tables that already carry year and value columns (see Schema.LongForm)
// skip the melt but go through the same coercion and reporting.

import "errors"

// Normalizer validates and reshapes tables for one Schema.
// It holds no mutable state and is safe for concurrent use.
type Normalizer struct {
	schema Schema
}

// NewNormalizer creates a normalizer for tables laid out according to schema.
func NewNormalizer(schema Schema) *Normalizer {
	return &Normalizer{schema: schema}
}

// Schema returns the columns this normalizer expects.
func (n *Normalizer) Schema() Schema {
	return n.schema
}

// yearColumn is a value column and the year its label normalized to.
type yearColumn struct {
	index int
	year  int
}

// identity holds the identifier cells of one source row.
type identity struct {
	row       int // 0-based data row index
	category  string
	indicator string
	unit      string
	region    string
}

// longRow is one reshaped cell before coercion.
type longRow struct {
	id   identity
	year int
	raw  string
}

// IncompleteRowWarning reports a data row skipped because a required cell
// is blank or, for a year column, has no digits. Line is the 1-based
// spreadsheet line of the row (the header is line 1).
type IncompleteRowWarning struct {
	Line    int      `json:"line"`
	Missing []string `json:"missing"`
}

// Normalize validates raw and reshapes it into a long-form table.
//
// It fails only when raw has no data rows (EmptyTableError) or lacks a
// required column (SchemaError). Duplicate indicators and unparseable cells
// are recorded in the report and never stop processing.
func (n *Normalizer) Normalize(raw RawTable) (*Table, *ValidationReport, error) {
	rows := nonBlankRows(raw)
	if len(rows) == 0 {
		return nil, nil, &EmptyTableError{}
	}

	pos, err := n.columnPositions(raw)
	if err != nil {
		return nil, nil, err
	}

	report := &ValidationReport{}
	ids := n.identities(raw, rows, pos, report)

	var long []longRow
	if n.schema.LongForm() {
		long = n.longRows(raw, ids, pos, report)
		report.Duplicates = n.duplicates(long, true)
		report.ExcludedColumns = n.otherColumns(raw)
	} else {
		cols := n.yearColumns(raw, report)
		long = reshape(raw, ids, cols)
		report.Duplicates = n.duplicates(n.namedRows(raw, rows, pos), false)
	}

	return coerce(long, report), report, nil
}

// nonBlankRows returns the indexes of rows with at least one non-blank cell.
// Entirely blank lines are layout, not data.
func nonBlankRows(raw RawTable) []int {
	var rows []int
	for i, row := range raw.Rows {
		for _, cell := range row {
			if !IsBlank(cell) {
				rows = append(rows, i)
				break
			}
		}
	}
	return rows
}

// columnPositions resolves every required column by exact label.
func (n *Normalizer) columnPositions(raw RawTable) (map[string]int, error) {
	pos := make(map[string]int)
	var missing []string
	for _, name := range n.schema.Required() {
		idx, ok := raw.ColumnIndex(name)
		if !ok {
			missing = append(missing, name)
			continue
		}
		pos[name] = idx
	}
	if len(missing) > 0 {
		return nil, &SchemaError{Missing: missing}
	}
	return pos, nil
}

// identities extracts the identifier cells of every data row. Rows with a
// blank identifier are reported and left out.
func (n *Normalizer) identities(raw RawTable, rows []int, pos map[string]int, report *ValidationReport) []identity {
	ids := make([]identity, 0, len(rows))
	for _, i := range rows {
		var missing []string
		for _, name := range n.schema.Identifiers() {
			if IsBlank(raw.Cell(i, pos[name])) {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			report.IncompleteRows = append(report.IncompleteRows, IncompleteRowWarning{Line: i + 2, Missing: missing})
			continue
		}

		id := identity{
			row:       i,
			category:  raw.Cell(i, pos[n.schema.Category]),
			indicator: raw.Cell(i, pos[n.schema.Indicator]),
			unit:      raw.Cell(i, pos[n.schema.Unit]),
		}
		if n.schema.Region != "" {
			id.region = raw.Cell(i, pos[n.schema.Region])
		}
		ids = append(ids, id)
	}
	return ids
}

// namedRows returns a year-less long row for every data row with a
// non-blank indicator cell, incomplete rows included.
func (n *Normalizer) namedRows(raw RawTable, rows []int, pos map[string]int) []longRow {
	var out []longRow
	for _, i := range rows {
		id := identity{row: i, indicator: raw.Cell(i, pos[n.schema.Indicator])}
		if IsBlank(id.indicator) {
			continue
		}
		if p, ok := pos[n.schema.Category]; ok {
			id.category = raw.Cell(i, p)
		}
		if n.schema.Region != "" {
			id.region = raw.Cell(i, pos[n.schema.Region])
		}
		out = append(out, longRow{id: id})
	}
	return out
}

// duplicates lists every identity seen on more than one row, once each, in
// order of first occurrence. Without a region dimension the identity is the
// indicator name alone; withYear adds the year for long-form tables.
func (n *Normalizer) duplicates(rows []longRow, withYear bool) []DuplicateIndicatorWarning {
	key := func(lr longRow) DuplicateIndicatorWarning {
		k := DuplicateIndicatorWarning{Indicator: lr.id.indicator}
		if n.schema.Region != "" {
			k.Category, k.Region = lr.id.category, lr.id.region
		}
		if withYear {
			k.Year = lr.year
		}
		return k
	}

	counts := make(map[DuplicateIndicatorWarning]int)
	var order []DuplicateIndicatorWarning
	for _, lr := range rows {
		k := key(lr)
		if counts[k] == 0 {
			order = append(order, k)
		}
		counts[k]++
	}

	var dups []DuplicateIndicatorWarning
	for _, k := range order {
		if counts[k] > 1 {
			dups = append(dups, k)
		}
	}
	return dups
}

// yearColumns picks the value columns of a wide table: every non-identifier
// column whose label contains digits. Two labels that normalize to the same
// year are both kept.
func (n *Normalizer) yearColumns(raw RawTable, report *ValidationReport) []yearColumn {
	var cols []yearColumn
	for i, label := range raw.Columns {
		if n.schema.isIdentifier(label) {
			continue
		}
		year, ok := NormalizeYearLabel(label)
		if !ok {
			report.ExcludedColumns = append(report.ExcludedColumns, label)
			continue
		}
		cols = append(cols, yearColumn{index: i, year: year})
	}
	return cols
}

// otherColumns lists the columns a long-form table carries beyond the schema.
func (n *Normalizer) otherColumns(raw RawTable) []string {
	var out []string
	for _, label := range raw.Columns {
		if !n.schema.isIdentifier(label) {
			out = append(out, label)
		}
	}
	return out
}

// reshape melts the wide rows into one long row per (row, year column),
// keeping the raw cell text.
func reshape(raw RawTable, ids []identity, cols []yearColumn) []longRow {
	long := make([]longRow, 0, len(ids)*len(cols))
	for _, id := range ids {
		for _, c := range cols {
			long = append(long, longRow{id: id, year: c.year, raw: raw.Cell(id.row, c.index)})
		}
	}
	return long
}

// longRows reads the year and value cells of a long-form table. A row whose
// year cell has no digits cannot be placed and is reported as incomplete.
func (n *Normalizer) longRows(raw RawTable, ids []identity, pos map[string]int, report *ValidationReport) []longRow {
	long := make([]longRow, 0, len(ids))
	for _, id := range ids {
		year, ok := NormalizeYearLabel(raw.Cell(id.row, pos[n.schema.Year]))
		if !ok {
			report.IncompleteRows = append(report.IncompleteRows, IncompleteRowWarning{
				Line:    id.row + 2,
				Missing: []string{n.schema.Year},
			})
			continue
		}
		long = append(long, longRow{id: id, year: year, raw: raw.Cell(id.row, pos[n.schema.Value])})
	}
	return long
}

// coerce parses every long row's raw cell. Blank cells are dropped without
// a trace; any other unparseable cell is reported with its raw text.
func coerce(long []longRow, report *ValidationReport) *Table {
	table := &Table{Records: make([]Record, 0, len(long))}
	for _, lr := range long {
		v, err := ParseValue(lr.raw)
		if errors.Is(err, ErrBlank) {
			continue
		}
		if err != nil {
			report.CoercionFailures = append(report.CoercionFailures, NumericCoercionWarning{
				Indicator: lr.id.indicator,
				Region:    lr.id.region,
				Year:      lr.year,
				Raw:       lr.raw,
			})
			continue
		}
		table.Records = append(table.Records, Record{
			Category:  lr.id.category,
			Indicator: lr.id.indicator,
			Unit:      lr.id.unit,
			Region:    lr.id.region,
			Year:      lr.year,
			Value:     v,
			Label:     FormatLabel(v, lr.id.unit),
		})
	}
	return table
}
