package dashboard

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/soedash/internal/audit"
	"github.com/JonMunkholm/soedash/internal/core"
	"github.com/JonMunkholm/soedash/internal/geo"
)

type memRecorder struct {
	mu   sync.Mutex
	runs []audit.Run
}

func (m *memRecorder) Record(_ context.Context, run audit.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func (m *memRecorder) Recent(_ context.Context, limit int) ([]audit.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]audit.Run(nil), m.runs...), nil
}

func (m *memRecorder) all() []audit.Run {
	runs, _ := m.Recent(context.Background(), 0)
	return runs
}

// writeXLSX saves sheets (name -> rows) as a workbook at path.
func writeXLSX(t *testing.T, path string, sheets map[string][][]any, order ...string) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i, name := range order {
		if i == 0 {
			require.NoError(t, f.SetSheetName("Sheet1", name))
		} else {
			_, err := f.NewSheet(name)
			require.NoError(t, err)
		}
		for r, row := range sheets[name] {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetSheetRow(name, cell, &row))
		}
	}
	require.NoError(t, f.SaveAs(path))
}

func writeCentral(t *testing.T, path string, extra ...[]any) {
	rows := [][]any{
		{"表单", "指标名称", "单位", "2019", "2020", "2021年"},
		{"经济增长", "GDP增速", "%", 6.0, 2.4, 8.1},
		{"经济增长", "GDP增速", "%", 6.0, 2.3, 8.1},
		{"科技创新", "研发支出占比", "%", 2.2, 2.4, "N/A"},
	}
	rows = append(rows, extra...)
	writeXLSX(t, path, map[string][][]any{"Sheet1": rows}, "Sheet1")
}

func writeProvince(t *testing.T, path string) {
	header := []any{"指标名称", "单位", "地区", "年份", "数值"}
	writeXLSX(t, path, map[string][][]any{
		"资产表": {
			header,
			{"营业收入", "亿元", "北京", 2022, 50},
			{"营业收入", "亿元", "广东", 2022, 120},
			{"营业收入", "亿元", "全国平均", 2022, 85},
		},
		"利润表": {
			header,
			{"净利润", "亿元", "上海", 2021, 3},
		},
	}, "资产表", "利润表")
}

type fixture struct {
	svc          *Service
	rec          *memRecorder
	centralPath  string
	provincePath string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	fx := &fixture{
		rec:          &memRecorder{},
		centralPath:  filepath.Join(dir, "data_central.xlsx"),
		provincePath: filepath.Join(dir, "data_province.xlsx"),
	}
	writeCentral(t, fx.centralPath)
	writeProvince(t, fx.provincePath)

	catalog, err := NewCatalog(
		Definition{Key: "central", Title: "中央企业", Level: LevelCentral, Path: fx.centralPath, Schema: core.CentralSchema()},
		Definition{Key: "province", Title: "地方企业", Level: LevelProvince, Path: fx.provincePath, Schema: core.ProvinceSchema(), SheetColumn: core.ColumnSource},
	)
	require.NoError(t, err)

	fx.svc, err = NewService(Options{
		Catalog:  catalog,
		Regions:  DefaultRegionPolicy(),
		Geo:      geo.StaticProvider("北京市", "广东省", "上海市"),
		Recorder: fx.rec,
	})
	require.NoError(t, err)
	t.Cleanup(fx.svc.Close)
	return fx
}

func TestService_Reload(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Central()
	assert.ErrorIs(t, err, ErrNotLoaded)

	require.NoError(t, fx.svc.Reload(ctx))

	central, err := fx.svc.Central()
	require.NoError(t, err)
	// 3 rows x 3 years minus one N/A cell.
	assert.Equal(t, 8, central.Table.Len())
	assert.Equal(t, []string{"GDP增速"}, central.Report.DuplicateNames())
	require.Len(t, central.Report.CoercionFailures, 1)
	assert.Equal(t, 2021, central.Report.CoercionFailures[0].Year)
	assert.Equal(t, "N/A", central.Report.CoercionFailures[0].Raw)

	province, err := fx.svc.Province()
	require.NoError(t, err)
	assert.Equal(t, 4, province.Table.Len())

	sources, err := fx.svc.ProvinceSources()
	require.NoError(t, err)
	assert.Equal(t, []string{"资产表", "利润表"}, sources)

	runs := fx.rec.all()
	require.Len(t, runs, 2)
	for _, r := range runs {
		assert.Equal(t, audit.ActionReload, r.Action)
		assert.False(t, r.Failed())
	}

	hits, err := fx.svc.SearchIndicators(ctx, "研发", "", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "研发支出占比", hits[0].Indicator)
}

func TestService_QueriesAfterReload(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	require.NoError(t, fx.svc.Reload(ctx))

	res, err := fx.svc.Series(SeriesQuery{Indicators: []string{"研发支出占比"}})
	require.NoError(t, err)
	require.Len(t, res.Series, 1)
	assert.Len(t, res.Series[0].Points, 2)

	snap, err := fx.svc.Snapshot(ctx, SnapshotQuery{Source: "资产表", Year: 2022, Indicator: "营业收入"})
	require.NoError(t, err)
	require.Len(t, snap.Ranking, 2)
	assert.Equal(t, "广东", snap.Ranking[0].Region)
	assert.True(t, snap.MapAvailable)
	assert.Len(t, snap.National, 1)

	trend, err := fx.svc.Trend(TrendQuery{Source: "资产表", Indicator: "营业收入", Regions: []string{"北京"}})
	require.NoError(t, err)
	assert.Len(t, trend, 2)
}

func TestService_FailedReloadKeepsPrevious(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	require.NoError(t, fx.svc.Reload(ctx))
	before, err := fx.svc.Central()
	require.NoError(t, err)

	writeXLSX(t, fx.centralPath, map[string][][]any{
		"Sheet1": {{"表单", "指标名称", "2020"}, {"A", "M1", 1}},
	}, "Sheet1")

	err = fx.svc.Reload(ctx)
	var schemaErr *core.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, []string{core.ColumnUnit}, schemaErr.Missing)
	assert.Equal(t, fx.centralPath, schemaErr.Source)

	after, err := fx.svc.Central()
	require.NoError(t, err)
	assert.Same(t, before, after)

	var status DatasetStatus
	for _, st := range fx.svc.Status() {
		if st.Key == "central" {
			status = st
		}
	}
	assert.True(t, status.Loaded)
	assert.Contains(t, status.Error, "missing required columns")

	runs := fx.rec.all()
	assert.True(t, runs[len(runs)-2].Failed() || runs[len(runs)-1].Failed())
}

func TestService_ReloadChanged(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	n, err := fx.svc.ReloadChanged(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = fx.svc.ReloadChanged(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	writeCentral(t, fx.centralPath, []any{"人口社会", "城镇化率", "%", 60.6, 63.9, 64.7})
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(fx.centralPath, later, later))

	n, err = fx.svc.ReloadChanged(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	central, err := fx.svc.Central()
	require.NoError(t, err)
	assert.Equal(t, 11, central.Table.Len())
}

func TestService_MissingFile(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, os.Remove(fx.provincePath))

	err := fx.svc.Reload(context.Background())
	var readErr *core.SourceReadError
	require.ErrorAs(t, err, &readErr)

	_, err = fx.svc.Province()
	assert.ErrorAs(t, err, &readErr)

	_, err = fx.svc.Central()
	assert.NoError(t, err)
}

func TestService_Validate(t *testing.T) {
	fx := newFixture(t)
	ctx := audit.ContextWithIPAddress(context.Background(), "10.1.1.1")

	csv := "表单,指标名称,单位,2019,2021年,年份说明\nA,M1,%,6.0,N/A,x\n"
	res, err := fx.svc.Validate(ctx, LevelCentral, "upload.csv", strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Records)
	assert.Equal(t, []int{2019}, res.Years)
	require.Len(t, res.Report.CoercionFailures, 1)
	assert.Equal(t, core.NumericCoercionWarning{Indicator: "M1", Year: 2021, Raw: "N/A"}, res.Report.CoercionFailures[0])
	assert.Equal(t, []string{"年份说明"}, res.Report.ExcludedColumns)

	_, err = fx.svc.Validate(ctx, LevelCentral, "empty.csv", strings.NewReader("表单,指标名称,单位,2019\n"))
	var empty *core.EmptyTableError
	require.ErrorAs(t, err, &empty)
	assert.Equal(t, "empty.csv", empty.Source)

	_, err = fx.svc.Validate(ctx, LevelCentral, "notes.pdf", bytes.NewReader(nil))
	var readErr *core.SourceReadError
	require.ErrorAs(t, err, &readErr)

	runs := fx.rec.all()
	require.Len(t, runs, 3)
	assert.Equal(t, audit.ActionValidate, runs[0].Action)
	assert.Equal(t, "10.1.1.1", runs[0].IPAddress)
	assert.True(t, runs[1].Failed())

	// Nothing is stored by validation.
	_, err = fx.svc.Central()
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestService_ValidateBusy(t *testing.T) {
	fx := newFixture(t)
	fx.svc.limiter = NewParseLimiter(1, 20*time.Millisecond)
	require.True(t, fx.svc.Limiter().TryAcquire())
	defer fx.svc.Limiter().Release()

	_, err := fx.svc.Validate(context.Background(), LevelCentral, "a.csv", strings.NewReader(""))
	assert.True(t, errors.Is(err, ErrServerBusy))
}

func TestService_UnknownDataset(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.svc.Dataset("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestService_Scheduler(t *testing.T) {
	fx := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		fx.svc.StartReloadScheduler(ctx, time.Hour)
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, err := fx.svc.Central()
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
