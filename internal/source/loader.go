// Package source reads spreadsheet files into untyped core.RawTable grids.
//
// The loader is purely structural: the first row becomes the header and
// every cell is kept as text. Interpreting the grid is the normalizer's job.
// Any failure to open or parse a file is returned as *core.SourceReadError.
package source

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/soedash/internal/core"
)

// Format identifies a supported file type.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// FormatOf returns the format implied by a file name's extension.
func FormatOf(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".csv", ".txt":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unsupported format %q", filepath.Ext(name))
	}
}

// Load reads the first sheet of the workbook at path.
func Load(ctx context.Context, path string) (core.RawTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return core.RawTable{}, &core.SourceReadError{Path: path, Err: err}
	}
	defer f.Close()

	return Read(ctx, path, f)
}

// LoadWorkbook reads every sheet of the workbook at path and stacks them.
// Each row gains a sheetColumn cell holding the name of its sheet.
func LoadWorkbook(ctx context.Context, path, sheetColumn string) (core.RawTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return core.RawTable{}, &core.SourceReadError{Path: path, Err: err}
	}
	defer f.Close()

	return ReadWorkbook(ctx, path, f, sheetColumn)
}

// Read parses r as the file type implied by name. For workbooks only the
// first sheet is read.
func Read(ctx context.Context, name string, r io.Reader) (core.RawTable, error) {
	sheets, err := readSheets(ctx, name, r, true)
	if err != nil {
		return core.RawTable{}, &core.SourceReadError{Path: name, Err: err}
	}
	if len(sheets) == 0 {
		return core.RawTable{}, nil
	}
	return sheets[0].table, nil
}

// ReadWorkbook parses every sheet in r and stacks them like LoadWorkbook.
// A CSV file counts as a single sheet named after the file.
func ReadWorkbook(ctx context.Context, name string, r io.Reader, sheetColumn string) (core.RawTable, error) {
	sheets, err := readSheets(ctx, name, r, false)
	if err != nil {
		return core.RawTable{}, &core.SourceReadError{Path: name, Err: err}
	}

	tables := make([]core.RawTable, 0, len(sheets))
	for _, s := range sheets {
		tables = append(tables, withSheetColumn(s.table, sheetColumn, s.name))
	}
	return core.Concat(tables...), nil
}

type sheet struct {
	name  string
	table core.RawTable
}

func readSheets(ctx context.Context, name string, r io.Reader, firstOnly bool) ([]sheet, error) {
	format, err := FormatOf(name)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatCSV:
		t, err := readCSV(r)
		if err != nil {
			return nil, err
		}
		base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
		return []sheet{{name: base, table: t}}, nil
	default:
		return readXLSX(ctx, r, firstOnly)
	}
}

func readXLSX(ctx context.Context, r io.Reader, firstOnly bool) ([]sheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	names := f.GetSheetList()
	if firstOnly && len(names) > 1 {
		names = names[:1]
	}

	sheets := make([]sheet, 0, len(names))
	for _, sheetName := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rows, err := f.GetRows(sheetName, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheetName, err)
		}
		sheets = append(sheets, sheet{name: sheetName, table: toRawTable(rows)})
	}
	return sheets, nil
}

func readCSV(r io.Reader) (core.RawTable, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return core.RawTable{}, err
	}
	data, err = Decode(data)
	if err != nil {
		return core.RawTable{}, err
	}

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	rows, err := cr.ReadAll()
	if err != nil {
		return core.RawTable{}, fmt.Errorf("invalid csv: %w", err)
	}
	return toRawTable(rows), nil
}

// toRawTable splits a grid into header and data rows.
func toRawTable(rows [][]string) core.RawTable {
	if len(rows) == 0 {
		return core.RawTable{}
	}
	return core.RawTable{Columns: rows[0], Rows: rows[1:]}
}

// withSheetColumn prepends a column holding the sheet name on every row.
// Entirely blank rows are dropped so the added cell does not turn them
// into data.
func withSheetColumn(t core.RawTable, column, value string) core.RawTable {
	out := core.RawTable{Columns: append([]string{column}, t.Columns...)}
	for _, row := range t.Rows {
		if blankRow(row) {
			continue
		}
		out.Rows = append(out.Rows, append([]string{value}, row...))
	}
	return out
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if !core.IsBlank(cell) {
			return false
		}
	}
	return true
}
