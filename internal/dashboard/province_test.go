package dashboard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/soedash/internal/core"
	"github.com/JonMunkholm/soedash/internal/geo"
)

func prov(source, indicator, region string, year int, value float64) core.Record {
	r := rec(source, indicator, "亿元", year, value)
	r.Region = region
	return r
}

func provinceTable() *core.Table {
	return &core.Table{Records: []core.Record{
		prov("资产表", "营业收入", "北京", 2022, 50),
		prov("资产表", "营业收入", "上海", 2022, 80),
		prov("资产表", "营业收入", "广东", 2022, 120),
		prov("资产表", "营业收入", "新疆兵团", 2022, 10),
		prov("资产表", "营业收入", "台湾", 2022, 999),
		prov("资产表", "营业收入", "全国平均", 2022, 65),
		prov("资产表", "营业收入", "全国中位数", 2022, 50),
		prov("资产表", "营业收入", "北京", 2021, 45),
		prov("资产表", "营业收入", "全国平均", 2021, 60),
		prov("资产表", "利润总额", "北京", 2020, 5),
		prov("利润表", "净利润", "上海", 2019, 3),
	}}
}

func TestRegionPolicy_Snapshot(t *testing.T) {
	names := geo.StaticProvider("北京市", "上海市", "广东省")
	set, _ := names.Names(context.Background())

	snap, err := DefaultRegionPolicy().Snapshot(provinceTable(), SnapshotQuery{
		Source: "资产表", Year: 2022, Indicator: "营业收入",
	}, set)
	require.NoError(t, err)

	require.Len(t, snap.Ranking, 4)
	assert.Equal(t, "广东", snap.Ranking[0].Region)
	assert.Equal(t, 1, snap.Ranking[0].Rank)
	assert.Equal(t, "新疆兵团", snap.Ranking[3].Region)
	assert.Equal(t, 4, snap.Ranking[3].Rank)
	assert.False(t, snap.Ranking[3].Mapped)
	assert.Equal(t, UnmappedMarker, snap.Ranking[3].Marker)
	assert.Empty(t, snap.Ranking[0].Marker)

	assert.Len(t, snap.National, 2)
	assert.Equal(t, "亿元", snap.Unit)
	assert.True(t, snap.MapAvailable)
	assert.Equal(t, 50.0, snap.ScaleMin)
	assert.Equal(t, 120.0, snap.ScaleMax)

	require.NotNil(t, snap.Summary)
	assert.Equal(t, 4, snap.Summary.Count)
	assert.Equal(t, 10.0, snap.Summary.Min)
	assert.Equal(t, 120.0, snap.Summary.Max)
	assert.Equal(t, 65.0, snap.Summary.Median)
	assert.Equal(t, 65.0, snap.Summary.Mean)

	assert.Equal(t, []string{"广东", "上海", "北京"}, DefaultTrendRegions(snap, 3))
}

func TestRegionPolicy_Snapshot_NoMap(t *testing.T) {
	snap, err := DefaultRegionPolicy().Snapshot(provinceTable(), SnapshotQuery{
		Source: "资产表", Year: 2022, Indicator: "营业收入",
	}, nil)
	require.NoError(t, err)

	assert.False(t, snap.MapAvailable)
	for _, r := range snap.Ranking {
		assert.False(t, r.Mapped, r.Region)
	}
}

func TestRegionPolicy_Snapshot_Empty(t *testing.T) {
	snap, err := DefaultRegionPolicy().Snapshot(provinceTable(), SnapshotQuery{
		Source: "资产表", Year: 1990, Indicator: "营业收入",
	}, nil)
	require.NoError(t, err)
	assert.True(t, snap.Empty())
	assert.Nil(t, snap.Summary)
}

func TestRegionPolicy_Trend(t *testing.T) {
	rows, err := DefaultRegionPolicy().Trend(provinceTable(), TrendQuery{
		Source:    "资产表",
		Indicator: "营业收入",
		Regions:   []string{"北京", "台湾"},
		Years:     YearRange{From: 2021, To: 2022},
	})
	require.NoError(t, err)

	var got []string
	for _, r := range rows {
		got = append(got, r.Region)
	}
	// 台湾 is excluded even when selected.
	assert.Equal(t, []string{"全国中位数", "全国平均", "全国平均", "北京", "北京"}, got)
	assert.Equal(t, 2021, rows[1].Year)
	assert.Equal(t, 2022, rows[2].Year)

	points := TrendPoints(rows)
	assert.Equal(t, "45.0", points["北京"][0].Label)

	_, err = DefaultRegionPolicy().Trend(provinceTable(), TrendQuery{Source: "资产表"})
	assert.ErrorIs(t, err, ErrNoRegions)
}

func TestProvinceYearsAndIndicators(t *testing.T) {
	table := provinceTable()
	assert.Equal(t, []int{2022, 2021, 2020}, ProvinceYears(table, "资产表"))
	assert.Equal(t, []string{"利润总额", "营业收入"}, ProvinceIndicators(table, "资产表"))
	assert.Len(t, ProvinceIndicators(table, ""), 3)
}
