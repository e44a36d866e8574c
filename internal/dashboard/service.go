// Package dashboard serves the indicator datasets behind the web layer.
//
// A Service owns one dataset per source in its Catalog. Each dataset is
// loaded from disk, normalized, and swapped in whole under a lock, so
// readers always see a complete table. A failed reload keeps the previous
// dataset and remembers the error for status reporting.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/soedash/internal/audit"
	"github.com/JonMunkholm/soedash/internal/core"
	"github.com/JonMunkholm/soedash/internal/geo"
	"github.com/JonMunkholm/soedash/internal/logging"
	"github.com/JonMunkholm/soedash/internal/search"
	"github.com/JonMunkholm/soedash/internal/source"
)

// ErrNotLoaded is returned for a source that has not finished its first load.
var ErrNotLoaded = errors.New("dataset not found: source has not been loaded yet")

// DefaultCacheEntries is the normalization cache size per source.
const DefaultCacheEntries = 32

// Options configures a Service.
type Options struct {
	Catalog      *Catalog
	CacheEntries int64
	Regions      RegionPolicy
	Geo          geo.Source     // nil disables map matching
	Index        *search.Index  // nil creates a private index
	Recorder     audit.Recorder // nil records nothing
	Limiter      *ParseLimiter  // nil uses defaults
	Logger       *slog.Logger
}

// Dataset is one loaded and normalized source.
type Dataset struct {
	Key         string
	Title       string
	Level       Level
	Source      string
	Table       *core.Table
	Report      *core.ValidationReport
	Fingerprint string
	LoadedAt    time.Time
}

// fileStamp identifies a version of a file on disk.
type fileStamp struct {
	size    int64
	modTime time.Time
}

func statFile(path string) (fileStamp, error) {
	info, err := os.Stat(path)
	if err != nil {
		return fileStamp{}, err
	}
	return fileStamp{size: info.Size(), modTime: info.ModTime()}, nil
}

// Service loads sources and answers dashboard queries over them.
type Service struct {
	catalog     *Catalog
	normalizers map[string]*core.CachedNormalizer
	regions     RegionPolicy
	geo         geo.Source
	index       *search.Index
	ownIndex    bool
	recorder    audit.Recorder
	limiter     *ParseLimiter
	logger      *slog.Logger

	mu       sync.RWMutex
	datasets map[string]*Dataset
	lastErr  map[string]error
	stamps   map[string]fileStamp
}

// NewService creates a service over opts.Catalog. Nothing is loaded until
// Reload is called.
func NewService(opts Options) (*Service, error) {
	if opts.Catalog == nil || opts.Catalog.Len() == 0 {
		return nil, errors.New("dashboard: catalog has no sources")
	}
	if opts.CacheEntries <= 0 {
		opts.CacheEntries = DefaultCacheEntries
	}
	if opts.Recorder == nil {
		opts.Recorder = audit.NopRecorder{}
	}
	if opts.Limiter == nil {
		opts.Limiter = NewParseLimiter(0, 0)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Service{
		catalog:     opts.Catalog,
		normalizers: make(map[string]*core.CachedNormalizer),
		regions:     opts.Regions,
		geo:         opts.Geo,
		index:       opts.Index,
		recorder:    opts.Recorder,
		limiter:     opts.Limiter,
		logger:      opts.Logger,
		datasets:    make(map[string]*Dataset),
		lastErr:     make(map[string]error),
		stamps:      make(map[string]fileStamp),
	}

	if s.index == nil {
		idx, err := search.New(opts.Logger)
		if err != nil {
			return nil, err
		}
		s.index, s.ownIndex = idx, true
	}

	for _, def := range opts.Catalog.All() {
		cn, err := core.NewCachedNormalizer(core.NewNormalizer(def.Schema), opts.CacheEntries)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.normalizers[def.Key] = cn
	}
	return s, nil
}

// Close releases caches and the private search index.
func (s *Service) Close() {
	for _, cn := range s.normalizers {
		cn.Close()
	}
	if s.ownIndex {
		s.index.Close()
	}
}

// Limiter returns the parse limiter used by Validate.
func (s *Service) Limiter() *ParseLimiter {
	return s.limiter
}

// Reload reads every source from disk. Sources that fail keep serving their
// previous dataset; the failures are returned joined.
func (s *Service) Reload(ctx context.Context) error {
	var errs []error
	for _, def := range s.catalog.All() {
		if _, err := s.reload(ctx, def, true); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ReloadChanged reloads only the sources whose file size or modification
// time changed since the last attempt. It returns how many were reloaded.
func (s *Service) ReloadChanged(ctx context.Context) (int, error) {
	var (
		errs     []error
		reloaded int
	)
	for _, def := range s.catalog.All() {
		ok, err := s.reload(ctx, def, false)
		if err != nil {
			errs = append(errs, err)
		}
		if ok {
			reloaded++
		}
	}
	return reloaded, errors.Join(errs...)
}

// reload loads def and swaps its dataset in on success. It reports whether
// a load was attempted.
func (s *Service) reload(ctx context.Context, def Definition, force bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	start := time.Now()
	logger := logging.WithFields(ctx, "source", def.Key, "path", def.Path)

	stamp, err := statFile(def.Path)
	if err != nil {
		err = &core.SourceReadError{Path: def.Path, Err: err}
		s.fail(ctx, def, "", err, start, logger)
		return true, err
	}

	s.mu.Lock()
	prev, seen := s.stamps[def.Key]
	s.stamps[def.Key] = stamp
	s.mu.Unlock()
	if !force && seen && prev == stamp {
		return false, nil
	}

	var raw core.RawTable
	if def.SheetColumn != "" {
		raw, err = source.LoadWorkbook(ctx, def.Path, def.SheetColumn)
	} else {
		raw, err = source.Load(ctx, def.Path)
	}
	if err != nil {
		s.fail(ctx, def, "", err, start, logger)
		return true, err
	}

	table, report, fingerprint, err := s.normalizers[def.Key].Normalize(raw)
	if err != nil {
		err = core.WithSource(err, def.Path)
		s.fail(ctx, def, fingerprint, err, start, logger)
		return true, err
	}

	ds := &Dataset{
		Key:         def.Key,
		Title:       def.Title,
		Level:       def.Level,
		Source:      def.Path,
		Table:       table,
		Report:      report,
		Fingerprint: fingerprint,
		LoadedAt:    time.Now(),
	}

	if def.Level == LevelCentral {
		if err := s.index.Rebuild(table); err != nil {
			logger.Error("search index rebuild failed", "error", err)
		}
	}

	s.mu.Lock()
	s.datasets[def.Key] = ds
	delete(s.lastErr, def.Key)
	s.mu.Unlock()

	s.record(ctx, audit.NewRun(ctx, audit.ActionReload, def.Path, fingerprint, table, report, nil, time.Since(start)))
	logReport(logger, report)
	logger.Info("source loaded",
		"rows", len(raw.Rows),
		"records", table.Len(),
		"duplicates", len(report.Duplicates),
		"coercion_failures", len(report.CoercionFailures),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return true, nil
}

func (s *Service) fail(ctx context.Context, def Definition, fingerprint string, err error, start time.Time, logger *slog.Logger) {
	s.mu.Lock()
	s.lastErr[def.Key] = err
	_, hasPrevious := s.datasets[def.Key]
	s.mu.Unlock()

	s.record(ctx, audit.NewRun(ctx, audit.ActionReload, def.Path, fingerprint, nil, nil, err, time.Since(start)))
	logger.Error("source load failed",
		"error", err,
		"keeping_previous", hasPrevious,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

func (s *Service) record(ctx context.Context, run audit.Run) {
	if err := s.recorder.Record(ctx, run); err != nil {
		s.logger.Warn("ingest run not recorded", "source", run.Source, "error", err)
	}
}

// logReport logs each coercion failure at debug and a summary at warn.
func logReport(logger *slog.Logger, report *core.ValidationReport) {
	for _, f := range report.CoercionFailures {
		logger.Debug("non-numeric value ignored",
			"indicator", f.Indicator,
			"region", f.Region,
			"year", f.Year,
			"raw", f.Raw,
		)
	}
	if report.HasWarnings() {
		logger.Warn("source has data quality warnings",
			"duplicates", len(report.Duplicates),
			"coercion_failures", len(report.CoercionFailures),
			"incomplete_rows", len(report.IncompleteRows),
			"summary", strings.Join(report.Summary(core.DefaultSummaryLimit), "; "),
		)
	}
}

// Dataset returns the current dataset of a source. When the source has
// never loaded successfully, its last load error is returned instead.
func (s *Service) Dataset(key string) (*Dataset, error) {
	if _, ok := s.catalog.Get(key); !ok {
		return nil, fmt.Errorf("source %q not found", key)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if ds := s.datasets[key]; ds != nil {
		return ds, nil
	}
	if err := s.lastErr[key]; err != nil {
		return nil, err
	}
	return nil, ErrNotLoaded
}

// Central returns the central-level dataset.
func (s *Service) Central() (*Dataset, error) {
	return s.first(LevelCentral)
}

// Province returns the province-level dataset.
func (s *Service) Province() (*Dataset, error) {
	return s.first(LevelProvince)
}

func (s *Service) first(level Level) (*Dataset, error) {
	defs := s.catalog.ByLevel(level)
	if len(defs) == 0 {
		return nil, fmt.Errorf("%s source not found", level)
	}
	return s.Dataset(defs[0].Key)
}

// DatasetStatus describes the load state of one source.
type DatasetStatus struct {
	Definition
	Loaded      bool      `json:"loaded"`
	Records     int       `json:"records"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	LoadedAt    time.Time `json:"loadedAt,omitempty"`
	Warnings    []string  `json:"warnings,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// Status reports every source's load state.
func (s *Service) Status() []DatasetStatus {
	defs := s.catalog.All()

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]DatasetStatus, len(defs))
	for i, def := range defs {
		st := DatasetStatus{Definition: def}
		if ds := s.datasets[def.Key]; ds != nil {
			st.Loaded = true
			st.Records = ds.Table.Len()
			st.Fingerprint = ds.Fingerprint
			st.LoadedAt = ds.LoadedAt
			st.Warnings = ds.Report.Summary(core.DefaultSummaryLimit)
		}
		if err := s.lastErr[def.Key]; err != nil {
			st.Error = err.Error()
		}
		out[i] = st
	}
	return out
}

// CacheStats returns the normalization cache counters per source.
func (s *Service) CacheStats() map[string]core.CacheStats {
	out := make(map[string]core.CacheStats, len(s.normalizers))
	for key, cn := range s.normalizers {
		out[key] = cn.Stats()
	}
	return out
}

// ValidationResult is the outcome of checking an uploaded workbook.
type ValidationResult struct {
	Source      string                 `json:"source"`
	Level       Level                  `json:"level"`
	Records     int                    `json:"records"`
	Years       []int                  `json:"years"`
	Fingerprint string                 `json:"fingerprint"`
	Report      *core.ValidationReport `json:"report"`
	Warnings    []string               `json:"warnings"`
}

// Validate runs an uploaded workbook through the pipeline of level without
// storing anything but the audit record. name is the uploaded file name and
// selects the format.
func (s *Service) Validate(ctx context.Context, level Level, name string, r io.Reader) (*ValidationResult, error) {
	defs := s.catalog.ByLevel(level)
	if len(defs) == 0 {
		return nil, fmt.Errorf("%s source not found", level)
	}
	def := defs[0]

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	start := time.Now()
	var (
		raw core.RawTable
		err error
	)
	if def.SheetColumn != "" {
		raw, err = source.ReadWorkbook(ctx, name, r, def.SheetColumn)
	} else {
		raw, err = source.Read(ctx, name, r)
	}
	if err != nil {
		s.record(ctx, audit.NewRun(ctx, audit.ActionValidate, name, "", nil, nil, err, time.Since(start)))
		return nil, err
	}

	table, report, fingerprint, err := s.normalizers[def.Key].Normalize(raw)
	err = core.WithSource(err, name)
	s.record(ctx, audit.NewRun(ctx, audit.ActionValidate, name, fingerprint, table, report, err, time.Since(start)))
	if err != nil {
		return nil, err
	}

	logger := logging.WithFields(ctx, "source", name, "level", level)
	logReport(logger, report)
	logger.Info("workbook validated",
		"records", table.Len(),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &ValidationResult{
		Source:      name,
		Level:       level,
		Records:     table.Len(),
		Years:       table.Years(),
		Fingerprint: fingerprint,
		Report:      report,
		Warnings:    report.Summary(0),
	}, nil
}

// SearchIndicators looks up central indicators by name.
func (s *Service) SearchIndicators(ctx context.Context, q, category string, limit int) ([]search.Hit, error) {
	if _, err := s.Central(); err != nil {
		return nil, err
	}
	return s.index.Search(ctx, q, category, limit)
}

// RecentRuns lists the latest ingest runs.
func (s *Service) RecentRuns(ctx context.Context, limit int) ([]audit.Run, error) {
	return s.recorder.Recent(ctx, limit)
}

// GeoNames returns the boundary name set. ok is false when no provider is
// configured or the boundary file cannot be fetched.
func (s *Service) GeoNames(ctx context.Context) (names geo.NameSet, ok bool) {
	if s.geo == nil {
		return nil, false
	}
	names, err := s.geo.Names(ctx)
	if err != nil {
		logging.FromContext(ctx).Warn("boundary names unavailable", "error", err)
		return nil, false
	}
	return names, true
}

// GeoJSON returns the boundary document with stripped names.
func (s *Service) GeoJSON(ctx context.Context) ([]byte, error) {
	if s.geo == nil {
		return nil, geo.ErrUnavailable
	}
	return s.geo.GeoJSON(ctx)
}
