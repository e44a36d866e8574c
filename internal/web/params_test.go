package web

import (
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/soedash/internal/core"
	"github.com/JonMunkholm/soedash/internal/dashboard"
	"github.com/JonMunkholm/soedash/internal/geo"
)

func TestDecodeQuery(t *testing.T) {
	values := url.Values{
		"indicators": {"GDP增速, 研发支出占比", "GDP总量"},
		"from":       {"2019"},
		"highlight":  {"2020,2021"},
		"secondary":  {""},
	}

	var p seriesParams
	require.NoError(t, decodeQuery(values, &p))
	assert.Equal(t, []string{"GDP增速", "研发支出占比", "GDP总量"}, p.Indicators)
	assert.Equal(t, 2019, p.From)
	assert.Equal(t, 0, p.To)
	assert.Equal(t, []int{2020, 2021}, p.Highlight)
	assert.Empty(t, p.Secondary)
}

func TestDecodeQuery_Errors(t *testing.T) {
	var p seriesParams
	err := decodeQuery(url.Values{"to": {"20x1"}}, &p)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errInvalidRequest))
	assert.Contains(t, err.Error(), "to must be an integer")

	err = decodeQuery(url.Values{"highlight": {"2020,x"}}, &p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "highlight")
}

func TestBindQuery_Validation(t *testing.T) {
	s := &Server{validate: newValidator()}

	req, _ := http.NewRequest(http.MethodGet, "/?q=", nil)
	var sp searchParams
	err := s.bindQuery(req, &sp)
	require.Error(t, err)
	assert.ErrorIs(t, err, errInvalidRequest)
	assert.Contains(t, err.Error(), "q is required")

	req, _ = http.NewRequest(http.MethodGet, "/?level=central", nil)
	var vp validateParams
	require.NoError(t, s.bindQuery(req, &vp))
	assert.Equal(t, "central", vp.Level)
}

func TestYearRange(t *testing.T) {
	r, err := yearRange(2019, 2021)
	require.NoError(t, err)
	assert.Equal(t, dashboard.YearRange{From: 2019, To: 2021}, r)

	r, err = yearRange(0, 2021)
	require.NoError(t, err)
	assert.Equal(t, dashboard.YearRange{To: 2021}, r)

	_, err = yearRange(2022, 2021)
	assert.ErrorIs(t, err, errInvalidRequest)
}

func TestSafeNext(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "/"},
		{"/", "/"},
		{"/api/central/series?indicators=x", "/api/central/series?indicators=x"},
		{"https://evil.example", "/"},
		{"//evil.example", "/"},
		{"/\\evil.example", "/"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, safeNext(tt.in), tt.in)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not loaded", dashboard.ErrNotLoaded, http.StatusServiceUnavailable},
		{"busy", dashboard.ErrServerBusy, http.StatusServiceUnavailable},
		{"geo", geo.ErrUnavailable, http.StatusServiceUnavailable},
		{"schema", &core.SchemaError{Missing: []string{"单位"}}, http.StatusUnprocessableEntity},
		{"empty", &core.EmptyTableError{Source: "x.xlsx"}, http.StatusUnprocessableEntity},
		{"read", &core.SourceReadError{Path: "x.xlsx", Err: errors.New("zip: not a valid zip file")}, http.StatusUnprocessableEntity},
		{"invalid request", errInvalidRequest, http.StatusBadRequest},
		{"no indicators", dashboard.ErrNoIndicators, http.StatusBadRequest},
		{"unknown source", errors.New(`source "x" not found`), http.StatusNotFound},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err, core.MapError(tt.err)))
		})
	}
}
