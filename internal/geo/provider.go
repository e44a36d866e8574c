// Package geo matches region names against province boundary features.
//
// The boundary file is a GeoJSON FeatureCollection whose features carry a
// Chinese province name in properties.name. Names are compared after the
// administrative suffixes are stripped ("广西壮族自治区" and "广西" match).
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultURL is the public boundary file of China's provinces.
const DefaultURL = "https://raw.githubusercontent.com/longwosion/geojson-map-china/master/china.json"

// suffixes are removed in this order, each everywhere it occurs.
var suffixes = []string{"省", "市", "自治区", "回族", "壮族", "维吾尔"}

// StripSuffixes removes administrative suffixes from a province name.
//
//	StripSuffixes("新疆维吾尔自治区") // "新疆"
//	StripSuffixes("北京市")           // "北京"
func StripSuffixes(name string) string {
	for _, s := range suffixes {
		name = strings.ReplaceAll(name, s, "")
	}
	return name
}

// NameSet is a set of stripped boundary names.
type NameSet map[string]struct{}

// Contains reports whether name is a boundary in the set.
func (s NameSet) Contains(name string) bool {
	_, ok := s[name]
	return ok
}

// Sorted returns the names in lexical order.
func (s NameSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Source supplies boundary names and the boundary document itself.
type Source interface {
	Names(ctx context.Context) (NameSet, error)
	GeoJSON(ctx context.Context) ([]byte, error)
}

// ErrUnavailable is returned while the boundary file cannot be fetched.
var ErrUnavailable = errors.New("boundary file unavailable")

// Provider fetches the boundary file over HTTP once and serves it from
// memory afterwards. A failed fetch is retried no sooner than retryAfter.
type Provider struct {
	url        string
	httpClient *http.Client
	retryAfter time.Duration
	logger     *slog.Logger

	mu        sync.Mutex
	names     NameSet
	doc       []byte
	lastErr   error
	lastTryAt time.Time
}

// NewProvider creates a provider for the boundary file at url.
func NewProvider(url string, timeout time.Duration, logger *slog.Logger) *Provider {
	if url == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		retryAfter: time.Minute,
		logger:     logger,
	}
}

// Names returns the stripped feature names, fetching the file if needed.
func (p *Provider) Names(ctx context.Context) (NameSet, error) {
	if err := p.load(ctx); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.names, nil
}

// GeoJSON returns the boundary document with feature names already stripped,
// so clients can join it to region names directly.
func (p *Provider) GeoJSON(ctx context.Context) ([]byte, error) {
	if err := p.load(ctx); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc, nil
}

func (p *Provider) load(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.names != nil {
		return nil
	}
	if p.lastErr != nil && time.Since(p.lastTryAt) < p.retryAfter {
		return fmt.Errorf("%w: %v", ErrUnavailable, p.lastErr)
	}

	p.lastTryAt = time.Now()
	names, doc, err := p.fetch(ctx)
	if err != nil {
		p.lastErr = err
		p.logger.Warn("boundary fetch failed", "url", p.url, "error", err)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	p.names, p.doc, p.lastErr = names, doc, nil
	p.logger.Info("boundary file loaded", "url", p.url, "features", len(names))
	return nil
}

func (p *Provider) fetch(ctx context.Context) (NameSet, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, nil, err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read body: %w", err)
	}
	return Parse(body)
}

// featureCollection is the subset of GeoJSON we read. Geometry is kept raw.
type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	Type       string          `json:"type"`
	Properties map[string]any  `json:"properties"`
	Geometry   json.RawMessage `json:"geometry"`
}

// Parse reads a FeatureCollection, strips every feature name in place and
// returns the name set together with the rewritten document.
func Parse(data []byte) (NameSet, []byte, error) {
	var fc featureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, nil, fmt.Errorf("decode geojson: %w", err)
	}

	names := make(NameSet, len(fc.Features))
	for i, f := range fc.Features {
		name, _ := f.Properties["name"].(string)
		if name == "" {
			continue
		}
		stripped := StripSuffixes(name)
		fc.Features[i].Properties["name"] = stripped
		names[stripped] = struct{}{}
	}
	if len(names) == 0 {
		return nil, nil, errors.New("geojson has no named features")
	}

	doc, err := json.Marshal(fc)
	if err != nil {
		return nil, nil, fmt.Errorf("encode geojson: %w", err)
	}
	return names, doc, nil
}

// Static is a fixed Source for tests and offline deployments.
type Static struct {
	set NameSet
}

// StaticProvider returns a Source holding the given names (stripped).
func StaticProvider(names ...string) *Static {
	set := make(NameSet, len(names))
	for _, n := range names {
		set[StripSuffixes(n)] = struct{}{}
	}
	return &Static{set: set}
}

func (s *Static) Names(context.Context) (NameSet, error) {
	return s.set, nil
}

// GeoJSON returns a FeatureCollection of the names without geometry.
func (s *Static) GeoJSON(context.Context) ([]byte, error) {
	fc := featureCollection{Type: "FeatureCollection"}
	for _, n := range s.set.Sorted() {
		fc.Features = append(fc.Features, feature{
			Type:       "Feature",
			Properties: map[string]any{"name": n},
			Geometry:   json.RawMessage("null"),
		})
	}
	return json.Marshal(fc)
}
