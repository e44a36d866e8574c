package geo

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"name": "北京市"}, "geometry": null},
    {"type": "Feature", "properties": {"name": "广西壮族自治区"}, "geometry": null},
    {"type": "Feature", "properties": {"name": "新疆维吾尔自治区"}, "geometry": null},
    {"type": "Feature", "properties": {"name": "宁夏回族自治区"}, "geometry": null},
    {"type": "Feature", "properties": {"name": "广东省"}, "geometry": null}
  ]
}`

func TestStripSuffixes(t *testing.T) {
	tests := map[string]string{
		"北京市":      "北京",
		"广东省":      "广东",
		"广西壮族自治区":  "广西",
		"新疆维吾尔自治区": "新疆",
		"宁夏回族自治区":  "宁夏",
		"内蒙古自治区":   "内蒙古",
		"全国平均":     "全国平均",
	}
	for in, want := range tests {
		assert.Equal(t, want, StripSuffixes(in), "StripSuffixes(%q)", in)
	}
}

func TestParse(t *testing.T) {
	names, doc, err := Parse([]byte(sampleGeoJSON))
	require.NoError(t, err)

	assert.Equal(t, []string{"北京", "宁夏", "广东", "广西", "新疆"}, names.Sorted())
	assert.True(t, names.Contains("广西"))
	assert.False(t, names.Contains("兵团"))

	var fc featureCollection
	require.NoError(t, json.Unmarshal(doc, &fc))
	assert.Equal(t, "北京", fc.Features[0].Properties["name"])
}

func TestParse_Invalid(t *testing.T) {
	_, _, err := Parse([]byte("not json"))
	assert.Error(t, err)

	_, _, err = Parse([]byte(`{"type":"FeatureCollection","features":[]}`))
	assert.Error(t, err)
}

func TestProvider_FetchesOnce(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(sampleGeoJSON))
	}))
	defer srv.Close()

	p := NewProvider(srv.URL, time.Second, nil)
	ctx := context.Background()

	names, err := p.Names(ctx)
	require.NoError(t, err)
	assert.Len(t, names, 5)

	doc, err := p.GeoJSON(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(doc), "广西")

	assert.Equal(t, int32(1), hits.Load())
}

func TestProvider_FailureIsNotFatalAndBacksOff(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewProvider(srv.URL, time.Second, nil)
	ctx := context.Background()

	_, err := p.Names(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))

	_, err = p.Names(ctx)
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.Equal(t, int32(1), hits.Load(), "second call within the retry window should not refetch")
}

func TestStaticProvider(t *testing.T) {
	s := StaticProvider("北京市", "上海")
	names, err := s.Names(context.Background())
	require.NoError(t, err)
	assert.True(t, names.Contains("北京"))
	assert.True(t, names.Contains("上海"))

	doc, err := s.GeoJSON(context.Background())
	require.NoError(t, err)
	_, parsed, err := Parse(doc)
	require.NoError(t, err)
	assert.NotEmpty(t, parsed)
}
