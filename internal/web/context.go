package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/soedash/internal/audit"
	"github.com/JonMunkholm/soedash/internal/web/middleware"
)

// WithRequestMetadata adds the client IP and User-Agent to ctx for ingest
// run records.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ctx = audit.ContextWithIPAddress(ctx, middleware.ClientIP(r))
	ctx = audit.ContextWithUserAgent(ctx, r.UserAgent())
	return ctx
}
