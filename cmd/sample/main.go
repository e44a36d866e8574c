// Command sample writes demonstration workbooks for the dashboard.
//
// The central workbook deliberately contains the irregularities the
// normalizer must cope with: a "2021年" year column, an "N/A" cell and a
// duplicated "GDP增速" row. The province workbook has one sheet per data
// source in long form, including an excluded region and the national
// aggregate rows.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/soedash/internal/core"
	"github.com/JonMunkholm/soedash/internal/logging"
)

func main() {
	dir := flag.String("dir", "data", "output directory")
	force := flag.Bool("force", false, "overwrite existing files")
	flag.Parse()

	logger := logging.Setup("info", "text")

	if err := os.MkdirAll(*dir, 0o755); err != nil {
		logger.Error("create output directory", "error", err)
		os.Exit(1)
	}

	files := []struct {
		name  string
		write func(string) error
	}{
		{"data_central.xlsx", writeCentral},
		{"data_province.xlsx", writeProvince},
	}
	for _, f := range files {
		path := filepath.Join(*dir, f.name)
		if _, err := os.Stat(path); err == nil && !*force {
			logger.Info("sample exists, skipping", "path", path)
			continue
		}
		if err := f.write(path); err != nil {
			logger.Error("write sample", "path", path, "error", err)
			os.Exit(1)
		}
		logger.Info("sample written", "path", path)
	}
}

// centralRows is the wide-form central sample.
var centralRows = [][]any{
	{core.ColumnCategory, core.ColumnIndicator, core.ColumnUnit, "2019", "2020", "2021年", "2022", "2023"},
	{"经济增长", "GDP增速", "%", 6.0, 2.4, 8.1, 3.0, 5.2},
	{"经济增长", "工业增加值增速", "%", 5.7, 2.8, 9.6, 3.6, 4.6},
	{"经济增长", "GDP增速", "%", 6.0, 2.3, 8.1, 3.0, 5.2},
	{"人口社会", "全国总人口", "万人", 141008, 141212, 141260, 141175, 140967},
	{"人口社会", "城镇化率", "%", 60.6, 63.9, 64.7, 65.2, 66.2},
	{"科技创新", "研发支出占比", "%", 2.2, 2.4, "N/A", 2.55, 2.64},
}

// provinceRegions lists the sample regions with a base value each.
var provinceRegions = []struct {
	name string
	base float64
}{
	{"北京", 520},
	{"上海", 480},
	{"广东", 610},
	{"江苏", 560},
	{"浙江", 430},
	{"四川", 260},
	{"新疆", 120},
	{"台湾", 300},
	{"全国平均", 380},
	{"全国中位数", 350},
}

type indicatorSpec struct {
	name, unit string
	scale      float64
}

// provinceSheets maps each data source to its indicators. Values are the
// region base times scale, growing 5% a year.
var provinceSheets = []struct {
	name       string
	indicators []indicatorSpec
}{
	{"资产表", []indicatorSpec{
		{"资产总额", "亿元", 10},
		{"营业收入", "亿元", 3},
	}},
	{"利润表", []indicatorSpec{
		{"利润总额", "亿元", 0.3},
		{"净资产收益率", "%", 0.01},
	}},
}

var provinceYears = []int{2019, 2020, 2021, 2022, 2023}

func writeCentral(path string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := writeRows(f, "Sheet1", centralRows); err != nil {
		return err
	}
	return f.SaveAs(path)
}

func writeProvince(path string) error {
	f := excelize.NewFile()
	defer f.Close()

	for i, sheet := range provinceSheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet.name); err != nil {
				return err
			}
		} else if _, err := f.NewSheet(sheet.name); err != nil {
			return err
		}

		rows := [][]any{{core.ColumnIndicator, core.ColumnUnit, core.ColumnRegion, core.ColumnYear, core.ColumnValue}}
		for _, ind := range sheet.indicators {
			for _, region := range provinceRegions {
				for j, year := range provinceYears {
					v := core.RoundValue(region.base * ind.scale * (1 + 0.05*float64(j)))
					rows = append(rows, []any{ind.name, ind.unit, region.name, year, v})
				}
			}
		}
		if err := writeRows(f, sheet.name, rows); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
