package middlewares

import (
	"fmt"
	"net/http"

	"github.com/stellar-insights/ledger-stream-service/internal/observability/tracing"
)

const TraceIdHeader = "X-Trace-Id"

// TracingMiddleware starts a trace for the request and echoes its id back so
// a client can quote it when reporting a failure.
func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := tracing.AttachTracingIntoContext(r.Context())
		if traceId := ctx.Value(tracing.TraceIdKey); traceId != nil {
			w.Header().Set(TraceIdHeader, fmt.Sprint(traceId))
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
