package web

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/JonMunkholm/soedash/internal/chart"
	"github.com/JonMunkholm/soedash/internal/core"
	"github.com/JonMunkholm/soedash/internal/dashboard"
)

// handleCentralCategories lists the central categories in workbook order.
func (s *Server) handleCentralCategories(w http.ResponseWriter, r *http.Request) {
	ds, err := s.service.Central()
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, r, map[string]any{
		"categories": ds.Table.Categories(),
		"years":      ds.Table.Years(),
		"range":      dashboard.FullRange(ds.Table.Years()),
	})
}

// handleCentralIndicators lists the indicators of one category, or of all
// categories when none is given.
func (s *Server) handleCentralIndicators(w http.ResponseWriter, r *http.Request) {
	var p indicatorsParams
	if err := s.bindQuery(r, &p); err != nil {
		s.respondError(w, r, err)
		return
	}

	ds, err := s.service.Central()
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, r, map[string]any{
		"category":   p.Category,
		"indicators": ds.Table.Indicators(p.Category),
	})
}

// handleCentralSearch looks up indicators by name.
func (s *Server) handleCentralSearch(w http.ResponseWriter, r *http.Request) {
	var p searchParams
	if err := s.bindQuery(r, &p); err != nil {
		s.respondError(w, r, err)
		return
	}

	hits, err := s.service.SearchIndicators(r.Context(), p.Q, p.Category, p.Limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, r, map[string]any{"query": p.Q, "hits": hits})
}

// seriesResponse is the central chart payload.
type seriesResponse struct {
	*dashboard.SeriesResult
	Highlight []int    `json:"highlight,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

// handleCentralSeries returns the chart series and detail rows for the
// selected indicators.
func (s *Server) handleCentralSeries(w http.ResponseWriter, r *http.Request) {
	res, p, warnings, err := s.centralSeries(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, r, seriesResponse{SeriesResult: res, Highlight: p.Highlight, Warnings: warnings})
}

// handleCentralChart renders the selected series as a PNG line chart.
func (s *Server) handleCentralChart(w http.ResponseWriter, r *http.Request) {
	res, p, _, err := s.centralSeries(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := chart.RenderPNG(&buf, res.ChartSpec(p.Highlight)); err != nil {
		s.respondError(w, r, fmt.Errorf("render chart: %w", err))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

// handleCentralExport downloads the detail rows of the selected series.
// The format follows the route suffix.
func (s *Server) handleCentralExport(w http.ResponseWriter, r *http.Request) {
	res, _, _, err := s.centralSeries(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.writeExport(w, r, "central_indicators", "指标明细", dashboard.DetailColumns, res.Rows)
}

// centralSeries binds a series query and runs it.
func (s *Server) centralSeries(r *http.Request) (*dashboard.SeriesResult, seriesParams, []string, error) {
	var p seriesParams
	if err := s.bindQuery(r, &p); err != nil {
		return nil, p, nil, err
	}
	years, err := yearRange(p.From, p.To)
	if err != nil {
		return nil, p, nil, err
	}

	ds, err := s.service.Central()
	if err != nil {
		return nil, p, nil, err
	}

	q := dashboard.SeriesQuery{Indicators: p.Indicators, Years: years}
	if _, ok := r.URL.Query()["secondary"]; ok {
		q.Axes = make(map[string]chart.Axis, len(p.Indicators))
		for _, ind := range p.Indicators {
			q.Axes[ind] = chart.AxisPrimary
		}
		for _, ind := range p.Secondary {
			q.Axes[ind] = chart.AxisSecondary
		}
	}

	res, err := dashboard.Series(ds.Table, q)
	if err != nil {
		return nil, p, nil, err
	}
	return res, p, ds.Report.Summary(core.DefaultSummaryLimit), nil
}

// handleCentralReport returns the validation report of the central dataset.
func (s *Server) handleCentralReport(w http.ResponseWriter, r *http.Request) {
	ds, err := s.service.Central()
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, r, map[string]any{
		"source":      ds.Source,
		"records":     ds.Table.Len(),
		"fingerprint": ds.Fingerprint,
		"loadedAt":    ds.LoadedAt,
		"report":      ds.Report,
		"warnings":    ds.Report.Summary(core.DefaultSummaryLimit),
	})
}

// yearRange builds an inclusive year window; zero bounds are open.
func yearRange(from, to int) (dashboard.YearRange, error) {
	if from != 0 && to != 0 && from > to {
		return dashboard.YearRange{}, fmt.Errorf("%w: from (%d) must not be after to (%d)", errInvalidRequest, from, to)
	}
	return dashboard.YearRange{From: from, To: to}, nil
}

// writeExport writes records as CSV or XLSX depending on the request path.
func (s *Server) writeExport(w http.ResponseWriter, r *http.Request, base, sheet string, cols []dashboard.Column, records []core.Record) {
	var buf bytes.Buffer
	var contentType, ext string

	if strings.HasSuffix(r.URL.Path, ".xlsx") {
		contentType, ext = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "xlsx"
		if err := dashboard.WriteXLSX(&buf, sheet, cols, records); err != nil {
			s.respondError(w, r, fmt.Errorf("write xlsx: %w", err))
			return
		}
	} else {
		contentType, ext = "text/csv; charset=utf-8", "csv"
		if err := dashboard.WriteCSV(&buf, cols, records); err != nil {
			s.respondError(w, r, fmt.Errorf("write csv: %w", err))
			return
		}
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", base+"."+ext))
	w.Write(buf.Bytes())
}
