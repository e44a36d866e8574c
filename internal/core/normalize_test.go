package core

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
)

func centralRaw(years []string, rows ...[]string) RawTable {
	cols := append([]string{ColumnCategory, ColumnIndicator, ColumnUnit}, years...)
	return RawTable{Columns: cols, Rows: rows}
}

// ----------------------------------------------------------------------------
// Scenarios
// ----------------------------------------------------------------------------

func TestNormalize_MixedYearLabelsAndPlaceholder(t *testing.T) {
	raw := centralRaw([]string{"2019", "2021年"}, []string{"A", "M1", "%", "6.0", "N/A"})

	table, report, err := NewNormalizer(CentralSchema()).Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() unexpected error: %v", err)
	}

	want := []Record{{Category: "A", Indicator: "M1", Unit: "%", Year: 2019, Value: 6, Label: "6.0 %"}}
	if !reflect.DeepEqual(table.Records, want) {
		t.Errorf("Normalize() records = %+v, want %+v", table.Records, want)
	}

	wantFailures := []NumericCoercionWarning{{Indicator: "M1", Year: 2021, Raw: "N/A"}}
	if !reflect.DeepEqual(report.CoercionFailures, wantFailures) {
		t.Errorf("CoercionFailures = %+v, want %+v", report.CoercionFailures, wantFailures)
	}
	if len(report.Duplicates) != 0 {
		t.Errorf("Duplicates = %v, want none", report.Duplicates)
	}
}

func TestNormalize_DuplicateIndicatorKeepsBothRows(t *testing.T) {
	raw := centralRaw([]string{"2020"},
		[]string{"A", "M1", "%", "1"},
		[]string{"B", "M1", "%", "2"},
		[]string{"A", "M2", "%", "3"},
	)

	table, report, err := NewNormalizer(CentralSchema()).Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() unexpected error: %v", err)
	}

	if table.Len() != 3 {
		t.Errorf("Normalize() produced %d records, want 3 (duplicates are not merged)", table.Len())
	}
	want := []DuplicateIndicatorWarning{{Indicator: "M1"}}
	if !reflect.DeepEqual(report.Duplicates, want) {
		t.Errorf("Duplicates = %v, want %v", report.Duplicates, want)
	}
}

func TestNormalize_ColumnWithoutDigitsExcluded(t *testing.T) {
	raw := centralRaw([]string{"2020", "年份说明"}, []string{"A", "M1", "%", "1", "说明文字"})

	table, report, err := NewNormalizer(CentralSchema()).Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() unexpected error: %v", err)
	}

	if table.Len() != 1 || table.Records[0].Year != 2020 {
		t.Errorf("Normalize() records = %+v, want one 2020 record", table.Records)
	}
	if report.HasWarnings() {
		t.Errorf("HasWarnings() = true, want false: %+v", report)
	}
	if !reflect.DeepEqual(report.ExcludedColumns, []string{"年份说明"}) {
		t.Errorf("ExcludedColumns = %v, want [年份说明]", report.ExcludedColumns)
	}
}

func TestNormalize_EmptyTable(t *testing.T) {
	tests := []struct {
		name string
		raw  RawTable
	}{
		{"no rows", centralRaw([]string{"2020"})},
		{"only blank rows", centralRaw([]string{"2020"}, []string{"", " ", "", ""}, []string{})},
		{"no columns", RawTable{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, report, err := NewNormalizer(CentralSchema()).Normalize(tt.raw)
			var empty *EmptyTableError
			if !errors.As(err, &empty) {
				t.Fatalf("Normalize() error = %v, want *EmptyTableError", err)
			}
			if table != nil || report != nil {
				t.Error("Normalize() returned partial output alongside a fatal error")
			}
		})
	}
}

// ----------------------------------------------------------------------------
// Schema and edge cases
// ----------------------------------------------------------------------------

func TestNormalize_MissingColumns(t *testing.T) {
	raw := RawTable{
		Columns: []string{ColumnIndicator, "2020"},
		Rows:    [][]string{{"M1", "1"}},
	}

	_, _, err := NewNormalizer(CentralSchema()).Normalize(raw)

	var se *SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("Normalize() error = %v, want *SchemaError", err)
	}
	want := []string{ColumnCategory, ColumnUnit}
	if !reflect.DeepEqual(se.Missing, want) {
		t.Errorf("SchemaError.Missing = %v, want %v", se.Missing, want)
	}
}

func TestNormalize_MissingRegionColumn(t *testing.T) {
	raw := RawTable{
		Columns: []string{ColumnSource, ColumnIndicator, ColumnUnit, ColumnYear, ColumnValue},
		Rows:    [][]string{{"经济", "GDP", "亿元", "2020", "1"}},
	}

	_, _, err := NewNormalizer(ProvinceSchema()).Normalize(raw)

	var se *SchemaError
	if !errors.As(err, &se) || !reflect.DeepEqual(se.Missing, []string{ColumnRegion}) {
		t.Errorf("Normalize() error = %v, want SchemaError naming %s", err, ColumnRegion)
	}
}

func TestNormalize_BlankCellsDroppedSilently(t *testing.T) {
	raw := centralRaw([]string{"2019", "2020", "2021"}, []string{"A", "M1", "%", "", "  ", "3"})

	table, report, err := NewNormalizer(CentralSchema()).Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() unexpected error: %v", err)
	}
	if table.Len() != 1 {
		t.Errorf("Normalize() produced %d records, want 1", table.Len())
	}
	if report.HasWarnings() {
		t.Errorf("blank cells produced warnings: %+v", report)
	}
}

func TestNormalize_RaggedRowsTreatedAsBlank(t *testing.T) {
	raw := centralRaw([]string{"2019", "2020"}, []string{"A", "M1", "%", "1"})

	table, report, err := NewNormalizer(CentralSchema()).Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() unexpected error: %v", err)
	}
	if table.Len() != 1 || report.HasWarnings() {
		t.Errorf("Normalize() = %d records, warnings %v; want 1 record, none", table.Len(), report.HasWarnings())
	}
}

func TestNormalize_RawValueKeptVerbatim(t *testing.T) {
	raw := centralRaw([]string{"2020"}, []string{"A", "M1", "%", " 1,234 "})

	_, report, err := NewNormalizer(CentralSchema()).Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() unexpected error: %v", err)
	}
	if len(report.CoercionFailures) != 1 || report.CoercionFailures[0].Raw != " 1,234 " {
		t.Errorf("CoercionFailures = %+v, want raw value %q", report.CoercionFailures, " 1,234 ")
	}
}

func TestNormalize_SameYearFromTwoLabels(t *testing.T) {
	raw := centralRaw([]string{"2021", "2021年"}, []string{"A", "M1", "%", "1", "2"})

	table, _, err := NewNormalizer(CentralSchema()).Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() unexpected error: %v", err)
	}
	if table.Len() != 2 {
		t.Fatalf("Normalize() produced %d records, want 2", table.Len())
	}
	for _, r := range table.Records {
		if r.Year != 2021 {
			t.Errorf("record year = %d, want 2021", r.Year)
		}
	}
}

func TestNormalize_IncompleteRowSkipped(t *testing.T) {
	raw := centralRaw([]string{"2020"},
		[]string{"A", "M1", "%", "1"},
		[]string{"A", "", "%", "2"},
	)

	table, report, err := NewNormalizer(CentralSchema()).Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() unexpected error: %v", err)
	}
	if table.Len() != 1 {
		t.Errorf("Normalize() produced %d records, want 1", table.Len())
	}
	want := []IncompleteRowWarning{{Line: 3, Missing: []string{ColumnIndicator}}}
	if !reflect.DeepEqual(report.IncompleteRows, want) {
		t.Errorf("IncompleteRows = %+v, want %+v", report.IncompleteRows, want)
	}
}

func TestNormalize_DuplicateIncludesIncompleteRow(t *testing.T) {
	raw := centralRaw([]string{"2020"},
		[]string{"A", "M1", "%", "1"},
		[]string{"A", "M1", "", "2"},
	)

	table, report, err := NewNormalizer(CentralSchema()).Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() unexpected error: %v", err)
	}
	if table.Len() != 1 {
		t.Errorf("Normalize() produced %d records, want 1", table.Len())
	}
	wantDup := []DuplicateIndicatorWarning{{Indicator: "M1"}}
	if !reflect.DeepEqual(report.Duplicates, wantDup) {
		t.Errorf("Duplicates = %+v, want %+v", report.Duplicates, wantDup)
	}
	wantIncomplete := []IncompleteRowWarning{{Line: 3, Missing: []string{ColumnUnit}}}
	if !reflect.DeepEqual(report.IncompleteRows, wantIncomplete) {
		t.Errorf("IncompleteRows = %+v, want %+v", report.IncompleteRows, wantIncomplete)
	}
}

func provinceRaw(rows ...[]string) RawTable {
	return RawTable{
		Columns: []string{ColumnSource, ColumnRegion, ColumnIndicator, ColumnUnit, ColumnYear, ColumnValue, "备注"},
		Rows:    rows,
	}
}

func TestNormalize_LongForm(t *testing.T) {
	raw := provinceRaw(
		[]string{"经济", "北京", "GDP", "亿元", "2020", "36102.6"},
		[]string{"经济", "北京", "GDP", "亿元", "2021年", "40269.6"},
		[]string{"经济", "上海", "GDP", "亿元", "2021", "待补充"},
		[]string{"经济", "上海", "GDP", "亿元", "", "1"},
		[]string{"经济", "上海", "GDP", "亿元", "2020", ""},
	)

	table, report, err := NewNormalizer(ProvinceSchema()).Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() unexpected error: %v", err)
	}

	want := []Record{
		{Category: "经济", Indicator: "GDP", Unit: "亿元", Region: "北京", Year: 2020, Value: 36102.6, Label: "36102.6 亿元"},
		{Category: "经济", Indicator: "GDP", Unit: "亿元", Region: "北京", Year: 2021, Value: 40269.6, Label: "40269.6 亿元"},
	}
	if !reflect.DeepEqual(table.Records, want) {
		t.Errorf("Normalize() records = %+v, want %+v", table.Records, want)
	}

	wantFailures := []NumericCoercionWarning{{Indicator: "GDP", Region: "上海", Year: 2021, Raw: "待补充"}}
	if !reflect.DeepEqual(report.CoercionFailures, wantFailures) {
		t.Errorf("CoercionFailures = %+v, want %+v", report.CoercionFailures, wantFailures)
	}
	wantIncomplete := []IncompleteRowWarning{{Line: 5, Missing: []string{ColumnYear}}}
	if !reflect.DeepEqual(report.IncompleteRows, wantIncomplete) {
		t.Errorf("IncompleteRows = %+v, want %+v", report.IncompleteRows, wantIncomplete)
	}
	if !reflect.DeepEqual(report.ExcludedColumns, []string{"备注"}) {
		t.Errorf("ExcludedColumns = %v, want [备注]", report.ExcludedColumns)
	}
	if len(report.Duplicates) != 0 {
		t.Errorf("Duplicates = %+v, want none", report.Duplicates)
	}
}

func TestNormalize_LongFormDuplicatesIncludeYear(t *testing.T) {
	raw := provinceRaw(
		[]string{"经济", "上海", "GDP", "亿元", "2020", "38700.58"},
		[]string{"经济", "上海", "GDP", "亿元", "2020", "38700.58"},
		[]string{"社会", "上海", "GDP", "亿元", "2020", "1"},
	)

	table, report, err := NewNormalizer(ProvinceSchema()).Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() unexpected error: %v", err)
	}
	if table.Len() != 3 {
		t.Errorf("Normalize() produced %d records, want 3", table.Len())
	}
	want := []DuplicateIndicatorWarning{{Indicator: "GDP", Category: "经济", Region: "上海", Year: 2020}}
	if !reflect.DeepEqual(report.Duplicates, want) {
		t.Errorf("Duplicates = %+v, want %+v", report.Duplicates, want)
	}
}

func TestNormalize_LongFormMissingValueColumn(t *testing.T) {
	raw := RawTable{
		Columns: []string{ColumnSource, ColumnRegion, ColumnIndicator, ColumnUnit, ColumnYear},
		Rows:    [][]string{{"经济", "北京", "GDP", "亿元", "2020"}},
	}

	_, _, err := NewNormalizer(ProvinceSchema()).Normalize(raw)

	var se *SchemaError
	if !errors.As(err, &se) || !reflect.DeepEqual(se.Missing, []string{ColumnValue}) {
		t.Errorf("Normalize() error = %v, want SchemaError naming %s", err, ColumnValue)
	}
}

// ----------------------------------------------------------------------------
// Properties
// ----------------------------------------------------------------------------

func TestNormalize_RowCountBound(t *testing.T) {
	years := []string{"2018", "2019", "2020"}
	tests := []struct {
		name      string
		rows      [][]string
		wantEqual bool
	}{
		{
			name:      "all numeric",
			rows:      [][]string{{"A", "M1", "%", "1", "2", "3"}, {"A", "M2", "%", "4", "5", "6"}},
			wantEqual: true,
		},
		{
			name:      "one blank",
			rows:      [][]string{{"A", "M1", "%", "1", "", "3"}, {"A", "M2", "%", "4", "5", "6"}},
			wantEqual: false,
		},
		{
			name:      "one non-numeric",
			rows:      [][]string{{"A", "M1", "%", "1", "x", "3"}, {"A", "M2", "%", "4", "5", "6"}},
			wantEqual: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := centralRaw(years, tt.rows...)
			table, _, err := NewNormalizer(CentralSchema()).Normalize(raw)
			if err != nil {
				t.Fatalf("Normalize() unexpected error: %v", err)
			}
			max := len(tt.rows) * len(years)
			if table.Len() > max {
				t.Errorf("Normalize() produced %d records, want <= %d", table.Len(), max)
			}
			if (table.Len() == max) != tt.wantEqual {
				t.Errorf("Normalize() produced %d of %d records, wantEqual %v", table.Len(), max, tt.wantEqual)
			}
		})
	}
}

func TestNormalize_FailuresMatchAbsentPairs(t *testing.T) {
	raw := centralRaw([]string{"2019", "2020", "2021"},
		[]string{"A", "M1", "%", "1", "bad", ""},
		[]string{"A", "M2", "%", "-", "2", "3"},
	)

	table, report, err := NewNormalizer(CentralSchema()).Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() unexpected error: %v", err)
	}

	present := make(map[string]bool)
	for _, r := range table.Records {
		present[fmt.Sprintf("%s/%d", r.Indicator, r.Year)] = true
	}
	failed := make(map[string]bool)
	for _, f := range report.CoercionFailures {
		key := fmt.Sprintf("%s/%d", f.Indicator, f.Year)
		failed[key] = true
		if present[key] {
			t.Errorf("failure %s also present in table", key)
		}
	}

	// Every non-blank source cell is either present or failed.
	for i := range raw.Rows {
		for j, label := range raw.Columns[3:] {
			cell := raw.Cell(i, j+3)
			if IsBlank(cell) {
				continue
			}
			year, _ := NormalizeYearLabel(label)
			key := fmt.Sprintf("%s/%d", raw.Cell(i, 1), year)
			if present[key] == failed[key] {
				t.Errorf("cell %s: present=%v failed=%v, want exactly one", key, present[key], failed[key])
			}
		}
	}
}

func TestNormalize_WideRoundTrip(t *testing.T) {
	raw := centralRaw([]string{"2019", "2020年", "说明"},
		[]string{"财务", "营收", "亿元", "12.345", "13", "x"},
		[]string{"财务", "营收", "亿元", "1e3", "N/A", ""},
		[]string{"社会", "就业", "万人", "", "0.1", ""},
	)
	n := NewNormalizer(CentralSchema())

	first, _, err := n.Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() unexpected error: %v", err)
	}
	second, report, err := n.Normalize(first.Wide(CentralSchema()))
	if err != nil {
		t.Fatalf("Normalize(Wide()) unexpected error: %v", err)
	}
	if len(report.CoercionFailures) != 0 {
		t.Errorf("re-normalizing produced failures: %+v", report.CoercionFailures)
	}

	a := append([]Record(nil), first.Records...)
	b := append([]Record(nil), second.Records...)
	SortRecords(a)
	SortRecords(b)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("round trip mismatch:\n first  %+v\n second %+v", a, b)
	}
}

func TestNormalize_Deterministic(t *testing.T) {
	raw := centralRaw([]string{"2020", "2021"},
		[]string{"A", "M1", "%", "1", "N/A"},
		[]string{"A", "M1", "%", "2", "3"},
	)
	n := NewNormalizer(CentralSchema())

	t1, r1, _ := n.Normalize(raw)
	t2, r2, _ := n.Normalize(raw)
	if !reflect.DeepEqual(t1, t2) || !reflect.DeepEqual(r1, r2) {
		t.Error("Normalize() is not deterministic for identical input")
	}
}
