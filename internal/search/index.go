// Package search provides full-text lookup of indicator names.
//
// The index is memory-only and rebuilt from the central table on every
// reload. Indicator names are Chinese, so text fields use the CJK bigram
// analyzer; a plain substring scan backs it up for queries the analyzer
// cannot match (single characters, mixed Latin fragments).
package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/lang/cjk"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/JonMunkholm/soedash/internal/core"
)

// Hit is one matching indicator.
type Hit struct {
	Category  string  `json:"category"`
	Indicator string  `json:"indicator"`
	Unit      string  `json:"unit"`
	Score     float64 `json:"score"`
}

// document is what gets indexed per (category, indicator).
type document struct {
	Category  string
	Indicator string
	Unit      string
}

// Index wraps an in-memory Bleve index of indicators.
//
// All methods are safe for concurrent use. Rebuild swaps the whole index.
type Index struct {
	mu     sync.RWMutex
	index  bleve.Index
	docs   []document
	logger *slog.Logger
}

// New creates an empty index.
func New(logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.Default()
	}
	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	return &Index{index: idx, logger: logger}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = cjk.AnalyzerName

	docMapping := bleve.NewDocumentMapping()

	indicatorField := bleve.NewTextFieldMapping()
	indicatorField.Analyzer = cjk.AnalyzerName
	indicatorField.Store = true
	docMapping.AddFieldMappingsAt("indicator", indicatorField)

	categoryField := bleve.NewTextFieldMapping()
	categoryField.Analyzer = keyword.Name
	categoryField.Store = true
	docMapping.AddFieldMappingsAt("category", categoryField)

	unitField := bleve.NewTextFieldMapping()
	unitField.Analyzer = keyword.Name
	unitField.Store = true
	docMapping.AddFieldMappingsAt("unit", unitField)

	indexMapping.AddDocumentMapping("_default", docMapping)
	return indexMapping
}

// Rebuild replaces the index contents with the indicators of table.
func (s *Index) Rebuild(table *core.Table) error {
	docs := documentsOf(table)

	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}

	batch := idx.NewBatch()
	for _, d := range docs {
		if err := batch.Index(docID(d), d.toMap()); err != nil {
			idx.Close()
			return fmt.Errorf("index %q: %w", d.Indicator, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		idx.Close()
		return fmt.Errorf("commit batch: %w", err)
	}

	s.mu.Lock()
	old := s.index
	s.index, s.docs = idx, docs
	s.mu.Unlock()

	if err := old.Close(); err != nil {
		s.logger.Warn("close previous search index", "error", err)
	}
	s.logger.Debug("search index rebuilt", "documents", len(docs))
	return nil
}

// documentsOf returns one document per distinct (category, indicator) in
// first-seen order.
func documentsOf(table *core.Table) []document {
	if table == nil {
		return nil
	}
	seen := make(map[string]bool)
	var docs []document
	for _, r := range table.Records {
		d := document{Category: r.Category, Indicator: r.Indicator, Unit: r.Unit}
		id := docID(d)
		if seen[id] {
			continue
		}
		seen[id] = true
		docs = append(docs, d)
	}
	return docs
}

// toMap keys the fields exactly as the mapping names them.
func (d document) toMap() map[string]any {
	return map[string]any{
		"category":  d.Category,
		"indicator": d.Indicator,
		"unit":      d.Unit,
	}
}

func docID(d document) string {
	return d.Category + "\x1f" + d.Indicator
}

// Search returns up to limit indicators matching q, best first. An empty
// category matches all categories.
func (s *Index) Search(ctx context.Context, q, category string, limit int) ([]Hit, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	req := bleve.NewSearchRequestOptions(buildQuery(q, category), limit, 0, false)
	req.Fields = []string{"category", "indicator", "unit"}

	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := Hit{Score: h.Score}
		hit.Category, _ = h.Fields["category"].(string)
		hit.Indicator, _ = h.Fields["indicator"].(string)
		hit.Unit, _ = h.Fields["unit"].(string)
		hits = append(hits, hit)
	}

	if len(hits) == 0 {
		hits = s.substring(q, category, limit)
	}
	return hits, nil
}

func buildQuery(q, category string) query.Query {
	match := bleve.NewMatchQuery(q)
	match.SetField("indicator")

	if category == "" {
		return match
	}
	cat := bleve.NewTermQuery(category)
	cat.SetField("category")
	return bleve.NewConjunctionQuery(match, cat)
}

// substring scans the indexed documents for a plain case-insensitive
// substring match. Callers hold s.mu.
func (s *Index) substring(q, category string, limit int) []Hit {
	needle := strings.ToLower(q)
	var hits []Hit
	for _, d := range s.docs {
		if category != "" && d.Category != category {
			continue
		}
		if strings.Contains(strings.ToLower(d.Indicator), needle) {
			hits = append(hits, Hit{Category: d.Category, Indicator: d.Indicator, Unit: d.Unit})
			if len(hits) == limit {
				break
			}
		}
	}
	return hits
}

// Count returns the number of indexed indicators.
func (s *Index) Count() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.DocCount()
}

// Close releases the index.
func (s *Index) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}
