package core

import (
	"sort"
	"strconv"
)

// Wide re-exports the table in wide form under schema: identifier columns
// followed by one column per year, ascending. Records sharing an identity
// are folded into one row; when the same identity has two values for a
// year, a further row is opened so that no record is lost.
func (t *Table) Wide(schema Schema) RawTable {
	years := t.Years()
	yearCol := make(map[int]int, len(years))

	ids := schema.Identifiers()
	out := RawTable{Columns: append([]string(nil), ids...)}
	for i, y := range years {
		yearCol[y] = len(ids) + i
		out.Columns = append(out.Columns, strconv.Itoa(y))
	}

	type key struct{ category, indicator, unit, region string }
	rowsOf := make(map[key][]int)

	for _, r := range t.Records {
		k := key{r.Category, r.Indicator, r.Unit, r.Region}
		col := yearCol[r.Year]

		target := -1
		for _, i := range rowsOf[k] {
			if out.Rows[i][col] == "" {
				target = i
				break
			}
		}
		if target < 0 {
			row := make([]string, len(out.Columns))
			row[0], row[1], row[2] = r.Category, r.Indicator, r.Unit
			if schema.Region != "" {
				row[3] = r.Region
			}
			target = len(out.Rows)
			out.Rows = append(out.Rows, row)
			rowsOf[k] = append(rowsOf[k], target)
		}
		out.Rows[target][col] = strconv.FormatFloat(r.Value, 'g', -1, 64)
	}
	return out
}

// SortRecords orders records by category, indicator, region, year, value.
func SortRecords(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.Indicator != b.Indicator {
			return a.Indicator < b.Indicator
		}
		if a.Region != b.Region {
			return a.Region < b.Region
		}
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		return a.Value < b.Value
	})
}
