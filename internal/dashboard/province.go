package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/montanaflynn/stats"

	"github.com/JonMunkholm/soedash/internal/core"
	"github.com/JonMunkholm/soedash/internal/geo"
)

// UnmappedMarker flags a ranked region with no boundary on the map, such as
// the Xinjiang Production and Construction Corps or a separately planned city.
const UnmappedMarker = "@"

// UnmappedCaption explains UnmappedMarker to readers of the ranking.
const UnmappedCaption = "@ 表示新疆兵团或计划单列市，未在地图中渲染。"

// RegionPolicy decides which regions are shown and ranked.
type RegionPolicy struct {
	// Excluded regions are dropped from every province view.
	Excluded []string
	// National rows are aggregates: shown in trends, never ranked or mapped.
	National []string
}

// DefaultRegionPolicy returns the policy of the provincial workbook.
func DefaultRegionPolicy() RegionPolicy {
	return RegionPolicy{
		Excluded: []string{"台湾"},
		National: []string{"全国平均", "全国中位数"},
	}
}

func (p RegionPolicy) excluded(region string) bool { return contains(p.Excluded, region) }
func (p RegionPolicy) national(region string) bool { return contains(p.National, region) }

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// visible drops excluded regions.
func (p RegionPolicy) visible(table *core.Table) *core.Table {
	return table.Filter(func(r core.Record) bool { return !p.excluded(r.Region) })
}

// ProvinceYears returns the years of a data source, newest first.
func ProvinceYears(table *core.Table, source string) []int {
	years := table.Filter(func(r core.Record) bool { return r.Category == source }).Years()
	sort.Sort(sort.Reverse(sort.IntSlice(years)))
	return years
}

// ProvinceIndicators returns the indicator names of a data source in
// lexical order. An empty source lists every indicator.
func ProvinceIndicators(table *core.Table, source string) []string {
	names := table.Indicators(source)
	sort.Strings(names)
	return names
}

// RankedRegion is one row of the snapshot ranking.
type RankedRegion struct {
	Rank   int     `json:"rank"`
	Region string  `json:"region"`
	Value  float64 `json:"value"`
	Label  string  `json:"label"`
	Unit   string  `json:"unit"`
	Mapped bool    `json:"mapped"`
	Marker string  `json:"marker"`
}

// Summary describes the ranked values.
type Summary struct {
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
}

// SnapshotQuery selects one indicator of one data source in one year.
type SnapshotQuery struct {
	Source    string
	Year      int
	Indicator string
}

// Snapshot is the ranking and map data of a SnapshotQuery.
type Snapshot struct {
	Source       string         `json:"source"`
	Year         int            `json:"year"`
	Indicator    string         `json:"indicator"`
	Unit         string         `json:"unit"`
	Ranking      []RankedRegion `json:"ranking"`
	National     []core.Record  `json:"national"`
	Summary      *Summary       `json:"summary,omitempty"`
	MapAvailable bool           `json:"mapAvailable"`
	// ScaleMin and ScaleMax bound the colour scale over mapped regions.
	ScaleMin float64 `json:"scaleMin"`
	ScaleMax float64 `json:"scaleMax"`
	Caption  string  `json:"caption"`
}

// Empty reports whether the query matched no rows.
func (s *Snapshot) Empty() bool {
	return len(s.Ranking) == 0 && len(s.National) == 0
}

// Snapshot ranks the regions of q by value, highest first. names is the
// boundary name set; nil means the map is unavailable and every region is
// reported unmapped.
func (p RegionPolicy) Snapshot(table *core.Table, q SnapshotQuery, names geo.NameSet) (*Snapshot, error) {
	rows := p.visible(table).Filter(func(r core.Record) bool {
		return r.Category == q.Source && r.Year == q.Year && r.Indicator == q.Indicator
	})

	snap := &Snapshot{
		Source:       q.Source,
		Year:         q.Year,
		Indicator:    q.Indicator,
		MapAvailable: names != nil,
		Caption:      UnmappedCaption,
	}
	if rows.Len() > 0 {
		snap.Unit = rows.Records[0].Unit
	}

	var ranked []core.Record
	for _, r := range rows.Records {
		if p.national(r.Region) {
			snap.National = append(snap.National, r)
			continue
		}
		ranked = append(ranked, r)
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Value > ranked[j].Value })

	values := make([]float64, 0, len(ranked))
	first := true
	for i, r := range ranked {
		rr := RankedRegion{
			Rank:   i + 1,
			Region: r.Region,
			Value:  r.Value,
			Label:  r.Label,
			Unit:   r.Unit,
			Mapped: names.Contains(r.Region),
		}
		if !rr.Mapped {
			rr.Marker = UnmappedMarker
		} else if first {
			snap.ScaleMin, snap.ScaleMax = r.Value, r.Value
			first = false
		} else {
			snap.ScaleMin = min(snap.ScaleMin, r.Value)
			snap.ScaleMax = max(snap.ScaleMax, r.Value)
		}
		snap.Ranking = append(snap.Ranking, rr)
		values = append(values, r.Value)
	}

	if len(values) > 0 {
		sum, err := summarize(values)
		if err != nil {
			return nil, fmt.Errorf("summarize %s %d: %w", q.Indicator, q.Year, err)
		}
		snap.Summary = sum
	}
	return snap, nil
}

func summarize(values []float64) (*Summary, error) {
	data := stats.Float64Data(values)

	lo, err := stats.Min(data)
	if err != nil {
		return nil, err
	}
	hi, err := stats.Max(data)
	if err != nil {
		return nil, err
	}
	mean, err := stats.Mean(data)
	if err != nil {
		return nil, err
	}
	median, err := stats.Median(data)
	if err != nil {
		return nil, err
	}
	return &Summary{Count: len(values), Min: lo, Max: hi, Mean: mean, Median: median}, nil
}

// DefaultTrendRegions returns the top n ranked regions of a snapshot.
func DefaultTrendRegions(snap *Snapshot, n int) []string {
	var out []string
	for _, r := range snap.Ranking {
		if len(out) == n {
			break
		}
		out = append(out, r.Region)
	}
	return out
}

// ErrNoRegions is returned for a trend query without regions.
var ErrNoRegions = errors.New("validation failed: select at least one region")

// TrendQuery selects regions to compare over time.
type TrendQuery struct {
	Source    string
	Indicator string
	Regions   []string
	Years     YearRange
}

// Trend returns the history of the selected regions plus the national
// aggregate rows, sorted by region then year.
func (p RegionPolicy) Trend(table *core.Table, q TrendQuery) ([]core.Record, error) {
	if len(q.Regions) == 0 {
		return nil, ErrNoRegions
	}
	rows := p.visible(table).Filter(func(r core.Record) bool {
		return r.Category == q.Source &&
			r.Indicator == q.Indicator &&
			q.Years.Contains(r.Year) &&
			(contains(q.Regions, r.Region) || p.national(r.Region))
	})

	out := rows.Records
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Region != out[j].Region {
			return out[i].Region < out[j].Region
		}
		return out[i].Year < out[j].Year
	})
	return out, nil
}

// TrendPoints rounds trend values to two decimals for point annotations.
func TrendPoints(records []core.Record) map[string][]Point {
	out := make(map[string][]Point)
	for _, r := range records {
		out[r.Region] = append(out[r.Region], Point{
			Year:  r.Year,
			Value: r.Value,
			Label: core.FormatValue(core.RoundValue(r.Value)),
		})
	}
	return out
}

// Snapshot answers a snapshot query against the current province dataset.
func (s *Service) Snapshot(ctx context.Context, q SnapshotQuery) (*Snapshot, error) {
	ds, err := s.Province()
	if err != nil {
		return nil, err
	}
	names, _ := s.GeoNames(ctx)
	return s.regions.Snapshot(ds.Table, q, names)
}

// Trend answers a trend query against the current province dataset.
func (s *Service) Trend(q TrendQuery) ([]core.Record, error) {
	ds, err := s.Province()
	if err != nil {
		return nil, err
	}
	return s.regions.Trend(ds.Table, q)
}

// ProvinceSources lists the data sources (workbook sheets) of the province
// dataset with excluded regions removed.
func (s *Service) ProvinceSources() ([]string, error) {
	ds, err := s.Province()
	if err != nil {
		return nil, err
	}
	return s.regions.visible(ds.Table).Categories(), nil
}
