package web

import (
	"net/http"

	"github.com/JonMunkholm/soedash/internal/core"
	"github.com/JonMunkholm/soedash/internal/dashboard"
)

// defaultTrendRegions is how many top-ranked regions a trend shows when
// none are selected.
const defaultTrendRegions = 3

// handleProvinceSources lists the province data sources.
func (s *Server) handleProvinceSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.service.ProvinceSources()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, map[string]any{"sources": sources})
}

// handleProvinceYears lists a source's years, latest first.
func (s *Server) handleProvinceYears(w http.ResponseWriter, r *http.Request) {
	var p sourceParams
	if err := s.bindQuery(r, &p); err != nil {
		s.respondError(w, r, err)
		return
	}

	ds, err := s.service.Province()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, map[string]any{"source": p.Source, "years": dashboard.ProvinceYears(ds.Table, p.Source)})
}

// handleProvinceIndicators lists a source's indicators.
func (s *Server) handleProvinceIndicators(w http.ResponseWriter, r *http.Request) {
	var p sourceParams
	if err := s.bindQuery(r, &p); err != nil {
		s.respondError(w, r, err)
		return
	}

	ds, err := s.service.Province()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, map[string]any{"source": p.Source, "indicators": dashboard.ProvinceIndicators(ds.Table, p.Source)})
}

// handleProvinceSnapshot ranks regions for one indicator in one year. The
// year defaults to the source's latest.
func (s *Server) handleProvinceSnapshot(w http.ResponseWriter, r *http.Request) {
	var p snapshotParams
	if err := s.bindQuery(r, &p); err != nil {
		s.respondError(w, r, err)
		return
	}

	snap, err := s.snapshot(r, p.Source, p.Indicator, p.Year)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, snap)
}

func (s *Server) snapshot(r *http.Request, source, indicator string, year int) (*dashboard.Snapshot, error) {
	if year == 0 {
		ds, err := s.service.Province()
		if err != nil {
			return nil, err
		}
		if years := dashboard.ProvinceYears(ds.Table, source); len(years) > 0 {
			year = years[0]
		}
	}
	return s.service.Snapshot(r.Context(), dashboard.SnapshotQuery{Source: source, Year: year, Indicator: indicator})
}

// trendResponse is the province trend payload.
type trendResponse struct {
	Source    string                       `json:"source"`
	Indicator string                       `json:"indicator"`
	Regions   []string                     `json:"regions"`
	Years     dashboard.YearRange          `json:"years"`
	Records   []core.Record                `json:"records"`
	Points    map[string][]dashboard.Point `json:"points"`
}

// handleProvinceTrend compares regions over time.
func (s *Server) handleProvinceTrend(w http.ResponseWriter, r *http.Request) {
	res, err := s.trend(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, res)
}

// handleProvinceTrendExport downloads the trend rows.
func (s *Server) handleProvinceTrendExport(w http.ResponseWriter, r *http.Request) {
	res, err := s.trend(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.writeExport(w, r, "province_trend", "地区趋势", dashboard.TrendColumns, res.Records)
}

// trend binds a trend query and runs it. Without explicit regions the top
// ranked regions of the latest snapshot are used.
func (s *Server) trend(r *http.Request) (*trendResponse, error) {
	var p trendParams
	if err := s.bindQuery(r, &p); err != nil {
		return nil, err
	}
	years, err := yearRange(p.From, p.To)
	if err != nil {
		return nil, err
	}

	regions := p.Regions
	if len(regions) == 0 {
		top := p.Top
		if top == 0 {
			top = defaultTrendRegions
		}
		snap, err := s.snapshot(r, p.Source, p.Indicator, 0)
		if err != nil {
			return nil, err
		}
		regions = dashboard.DefaultTrendRegions(snap, top)
	}

	records, err := s.service.Trend(dashboard.TrendQuery{
		Source:    p.Source,
		Indicator: p.Indicator,
		Regions:   regions,
		Years:     years,
	})
	if err != nil {
		return nil, err
	}

	return &trendResponse{
		Source:    p.Source,
		Indicator: p.Indicator,
		Regions:   regions,
		Years:     years,
		Records:   records,
		Points:    dashboard.TrendPoints(records),
	}, nil
}

// handleGeo serves the boundary GeoJSON with normalized region names.
func (s *Server) handleGeo(w http.ResponseWriter, r *http.Request) {
	data, err := s.service.GeoJSON(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Write(data)
}
