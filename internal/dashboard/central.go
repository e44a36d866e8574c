package dashboard

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/JonMunkholm/soedash/internal/chart"
	"github.com/JonMunkholm/soedash/internal/core"
)

// ErrNoIndicators is returned for a series query without indicators.
var ErrNoIndicators = errors.New("validation failed: select at least one indicator")

// YearRange is an inclusive span of years. A zero bound is open.
type YearRange struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// FullRange returns the range spanning years, which must be sorted
// ascending. A single year collapses the range to that year; no years
// yields the open range.
func FullRange(years []int) YearRange {
	if len(years) == 0 {
		return YearRange{}
	}
	return YearRange{From: years[0], To: years[len(years)-1]}
}

// Contains reports whether year lies within the range.
func (r YearRange) Contains(year int) bool {
	return (r.From == 0 || year >= r.From) && (r.To == 0 || year <= r.To)
}

// Single reports whether the range covers exactly one year.
func (r YearRange) Single() bool {
	return r.From != 0 && r.From == r.To
}

// SeriesQuery selects central indicators to chart.
type SeriesQuery struct {
	Indicators []string
	Years      YearRange

	// Axes overrides the default axis of individual indicators.
	Axes map[string]chart.Axis
}

// Point is one charted value.
type Point struct {
	Year  int     `json:"year"`
	Value float64 `json:"value"`
	Label string  `json:"label"`
}

// IndicatorSeries is the charted history of one indicator.
type IndicatorSeries struct {
	Indicator string     `json:"indicator"`
	Unit      string     `json:"unit"`
	Axis      chart.Axis `json:"axis"`
	Points    []Point    `json:"points"`
}

// SeriesResult is everything the central chart and its detail table need.
type SeriesResult struct {
	Title   string            `json:"title"`
	YTitle  string            `json:"yTitle"`
	Y2Title string            `json:"y2Title,omitempty"`
	Years   YearRange         `json:"years"`
	Series  []IndicatorSeries `json:"series"`
	Rows    []core.Record     `json:"rows"`
}

// DefaultAxes assigns each selected indicator to an axis. When the selection
// mixes units and some unit is a percentage, percentage indicators go to the
// secondary axis; otherwise everything stays on the primary axis.
func DefaultAxes(table *core.Table, indicators []string) map[string]chart.Axis {
	units := indicatorUnits(table, indicators)

	distinct := make(map[string]bool)
	hasPercent := false
	for _, u := range units {
		distinct[u] = true
		if strings.Contains(u, "%") {
			hasPercent = true
		}
	}

	axes := make(map[string]chart.Axis, len(indicators))
	for _, ind := range indicators {
		axes[ind] = chart.AxisPrimary
		if len(distinct) > 1 && hasPercent && strings.Contains(units[ind], "%") {
			axes[ind] = chart.AxisSecondary
		}
	}
	return axes
}

// indicatorUnits maps each indicator to the unit of its first record.
func indicatorUnits(table *core.Table, indicators []string) map[string]string {
	want := make(map[string]bool, len(indicators))
	for _, ind := range indicators {
		want[ind] = true
	}
	units := make(map[string]string)
	for _, r := range table.Records {
		if want[r.Indicator] {
			if _, ok := units[r.Indicator]; !ok {
				units[r.Indicator] = r.Unit
			}
		}
	}
	return units
}

// Series builds the chart series and detail rows for q. Indicators appear
// in query order; points within a series are sorted by year.
func Series(table *core.Table, q SeriesQuery) (*SeriesResult, error) {
	if len(q.Indicators) == 0 {
		return nil, ErrNoIndicators
	}

	axes := DefaultAxes(table, q.Indicators)
	for ind, axis := range q.Axes {
		if _, ok := axes[ind]; ok && (axis == chart.AxisPrimary || axis == chart.AxisSecondary) {
			axes[ind] = axis
		}
	}

	selected := make(map[string]bool, len(q.Indicators))
	for _, ind := range q.Indicators {
		selected[ind] = true
	}
	rows := table.Filter(func(r core.Record) bool {
		return selected[r.Indicator] && q.Years.Contains(r.Year)
	})

	res := &SeriesResult{
		Title: ChartTitle(q.Indicators),
		Years: q.Years,
	}

	units := indicatorUnits(rows, q.Indicators)
	left, right := make(map[string]bool), make(map[string]bool)
	for _, ind := range q.Indicators {
		s := IndicatorSeries{Indicator: ind, Unit: units[ind], Axis: axes[ind]}
		for _, r := range rows.Records {
			if r.Indicator == ind {
				s.Points = append(s.Points, Point{Year: r.Year, Value: r.Value, Label: r.Label})
			}
		}
		sort.SliceStable(s.Points, func(i, j int) bool { return s.Points[i].Year < s.Points[j].Year })

		if u, ok := units[ind]; ok {
			if s.Axis == chart.AxisSecondary {
				right[u] = true
			} else {
				left[u] = true
			}
		}
		res.Series = append(res.Series, s)
	}
	res.YTitle = joinSorted(left)
	res.Y2Title = joinSorted(right)

	res.Rows = rows.Records
	sort.SliceStable(res.Rows, func(i, j int) bool {
		if res.Rows[i].Indicator != res.Rows[j].Indicator {
			return res.Rows[i].Indicator < res.Rows[j].Indicator
		}
		return res.Rows[i].Year < res.Rows[j].Year
	})
	return res, nil
}

// ChartTitle names a chart after its indicators.
func ChartTitle(indicators []string) string {
	return fmt.Sprintf("'%s' 时间序列趋势", strings.Join(indicators, "、"))
}

func joinSorted(set map[string]bool) string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}

// ChartSpec converts the result into a renderable chart with the given
// years marked.
func (r *SeriesResult) ChartSpec(highlight []int) chart.Spec {
	spec := chart.Spec{
		Title:      r.Title,
		YTitle:     r.YTitle,
		Y2Title:    r.Y2Title,
		Highlight:  highlight,
		ShowLabels: true,
	}
	for _, s := range r.Series {
		side := "左轴"
		if s.Axis == chart.AxisSecondary {
			side = "右轴"
		}
		cs := chart.Series{Name: fmt.Sprintf("%s (%s)", s.Indicator, side), Axis: s.Axis}
		for _, p := range s.Points {
			cs.Points = append(cs.Points, chart.Point{Year: p.Year, Value: p.Value, Label: p.Label})
		}
		spec.Series = append(spec.Series, cs)
	}
	return spec
}

// Series answers a central series query against the current dataset.
func (s *Service) Series(q SeriesQuery) (*SeriesResult, error) {
	ds, err := s.Central()
	if err != nil {
		return nil, err
	}
	return Series(ds.Table, q)
}
