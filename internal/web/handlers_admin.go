package web

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/JonMunkholm/soedash/internal/dashboard"
)

// handleHealth reports liveness and which sources are loaded. It is public
// and never fails; unloaded sources are reported, not treated as errors.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	loaded := make(map[string]bool)
	for _, st := range s.service.Status() {
		loaded[st.Key] = st.Loaded
	}
	writeJSON(w, r, map[string]any{"status": "ok", "sources": loaded})
}

// handleStatus returns every source's load state, cache counters and the
// parse limiter state.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, map[string]any{
		"sources": s.service.Status(),
		"cache":   s.service.CacheStats(),
		"parser":  s.service.Limiter().Status(),
	})
}

// handleValidate runs an uploaded workbook through the pipeline and returns
// its report. Nothing is stored.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var p validateParams
	if err := s.bindQuery(r, &p); err != nil {
		s.respondError(w, r, err)
		return
	}

	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)
	if err := r.ParseMultipartForm(maxSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			s.respondError(w, r, fmt.Errorf("file too large: limit is %d bytes", maxSize))
			return
		}
		s.respondError(w, r, fmt.Errorf("invalid upload: %w", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, errors.New("no file provided"))
		return
	}
	defer file.Close()

	ctx := WithRequestMetadata(r.Context(), r)
	res, err := s.service.Validate(ctx, dashboard.Level(p.Level), header.Filename, file)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, res)
}

// handleReload re-reads every source from disk. Sources that fail keep
// their previous dataset; the failure is returned with the status list.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	ctx := WithRequestMetadata(r.Context(), r)
	if err := s.service.Reload(ctx); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, map[string]any{"sources": s.service.Status()})
}

// handleAudit lists the latest ingest runs.
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	var p auditParams
	if err := s.bindQuery(r, &p); err != nil {
		s.respondError(w, r, err)
		return
	}
	if p.Limit == 0 {
		p.Limit = 50
	}

	runs, err := s.service.RecentRuns(r.Context(), p.Limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, map[string]any{"runs": runs})
}
