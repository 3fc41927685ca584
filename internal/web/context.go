package web

import (
	"context"
	"net/http"

	"github.com/csvreorder/csvreorder/internal/core"
	mw "github.com/csvreorder/csvreorder/internal/web/middleware"
)

// WithRequestMetadata adds IP and User-Agent to context for audit logging.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	return core.ContextWithClient(ctx, mw.ClientIP(r), r.Header.Get("User-Agent"))
}
