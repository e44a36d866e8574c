// Package audit records ingest runs: every reload of a source workbook and
// every validation of an uploaded one. Only run metadata is stored, never the
// indicator values themselves.
package audit

import (
	"context"
	"net"
	"net/netip"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/soedash/internal/core"
)

// Action is the kind of ingest being recorded.
type Action string

const (
	ActionReload   Action = "reload"
	ActionValidate Action = "validate"
)

// Run is one ingest attempt.
type Run struct {
	ID               string    `json:"id"`
	Action           Action    `json:"action"`
	Source           string    `json:"source"`
	Fingerprint      string    `json:"fingerprint,omitempty"`
	Records          int       `json:"records"`
	Duplicates       int       `json:"duplicates"`
	CoercionFailures int       `json:"coercionFailures"`
	IncompleteRows   int       `json:"incompleteRows"`
	Error            string    `json:"error,omitempty"`
	IPAddress        string    `json:"ipAddress,omitempty"`
	UserAgent        string    `json:"userAgent,omitempty"`
	DurationMS       int64     `json:"durationMs"`
	CreatedAt        time.Time `json:"createdAt"`
}

// NewRun builds a run from the outcome of one normalization. table and
// report may be nil when err is set. Client details are taken from ctx.
func NewRun(ctx context.Context, action Action, source, fingerprint string, table *core.Table, report *core.ValidationReport, err error, elapsed time.Duration) Run {
	run := Run{
		ID:          uuid.NewString(),
		Action:      action,
		Source:      source,
		Fingerprint: fingerprint,
		Records:     table.Len(),
		IPAddress:   IPAddressFromContext(ctx),
		UserAgent:   UserAgentFromContext(ctx),
		DurationMS:  elapsed.Milliseconds(),
		CreatedAt:   time.Now().UTC(),
	}
	if report != nil {
		run.Duplicates = len(report.Duplicates)
		run.CoercionFailures = len(report.CoercionFailures)
		run.IncompleteRows = len(report.IncompleteRows)
	}
	if err != nil {
		run.Error = err.Error()
	}
	return run
}

// Failed reports whether the run ended in a fatal error.
func (r Run) Failed() bool {
	return r.Error != ""
}

// Recorder persists and lists ingest runs.
type Recorder interface {
	Record(ctx context.Context, run Run) error
	Recent(ctx context.Context, limit int) ([]Run, error)
}

// NopRecorder discards runs. Used when no database is configured.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, Run) error { return nil }

func (NopRecorder) Recent(context.Context, int) ([]Run, error) { return nil, nil }

// parseIP strips a port if present and parses the address.
// Returns nil for anything that is not an IP.
func parseIP(s string) *netip.Addr {
	if s == "" {
		return nil
	}
	host := s
	if h, _, err := net.SplitHostPort(s); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return nil
	}
	return &addr
}
