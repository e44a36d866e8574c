package dashboard

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/soedash/internal/core"
)

// Column is one exported column.
type Column struct {
	Header string
	Value  func(core.Record) any
}

func yearOf(r core.Record) any      { return r.Year }
func categoryOf(r core.Record) any  { return r.Category }
func indicatorOf(r core.Record) any { return r.Indicator }
func regionOf(r core.Record) any    { return r.Region }
func valueOf(r core.Record) any     { return r.Value }
func unitOf(r core.Record) any      { return r.Unit }

// DetailColumns is the layout of the central detail table.
var DetailColumns = []Column{
	{Header: "年份", Value: yearOf},
	{Header: core.ColumnCategory, Value: categoryOf},
	{Header: core.ColumnIndicator, Value: indicatorOf},
	{Header: core.ColumnValue, Value: valueOf},
	{Header: core.ColumnUnit, Value: unitOf},
}

// TrendColumns is the layout of the province trend table.
var TrendColumns = []Column{
	{Header: "年份", Value: yearOf},
	{Header: core.ColumnRegion, Value: regionOf},
	{Header: core.ColumnValue, Value: valueOf},
	{Header: core.ColumnUnit, Value: unitOf},
}

// utf8BOM lets spreadsheet programs detect the encoding of exported CSV.
const utf8BOM = "\uFEFF"

// WriteCSV writes records as UTF-8 CSV with a header row.
func WriteCSV(w io.Writer, cols []Column, records []core.Record) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = c.Header
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	row := make([]string, len(cols))
	for _, r := range records {
		for i, c := range cols {
			row[i] = csvCell(c.Value(r))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvCell(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// WriteXLSX writes records as a single-sheet workbook. Years and values are
// stored as numbers.
func WriteXLSX(w io.Writer, sheet string, cols []Column, records []core.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	if sheet == "" {
		sheet = "Sheet1"
	}
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	header := make([]any, len(cols))
	for i, c := range cols {
		header[i] = c.Header
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for n, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, n+2)
		if err != nil {
			return err
		}
		row := make([]any, len(cols))
		for i, c := range cols {
			row[i] = c.Value(r)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", n+2, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
