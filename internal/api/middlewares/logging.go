package middlewares

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/rs/zerolog/log"

	"github.com/stellar-insights/ledger-stream-service/internal/observability/tracing"
)

func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/swagger/") {
			next.ServeHTTP(w, r)
			return
		}

		startTime := time.Now()
		logger := log.With().Str("path", r.URL.Path).Str("method", r.Method).Logger()

		// Attach traceId into each log within the request chain
		traceId := r.Context().Value(tracing.TraceIdKey)
		if traceId != nil {
			logger = logger.With().Interface("traceId", traceId).Logger()
		}

		logger.Debug().Msg("request received")
		r = r.WithContext(logger.WithContext(r.Context()))

		// the wrapper keeps http.Hijacker so push connections can upgrade
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logEvent := logger.Info()
		if tracingInfo, ok := r.Context().Value(tracing.TracingInfoKey).(*tracing.TracingInfo); ok {
			logEvent = logEvent.Interface("tracingInfo", tracingInfo.Spans())
		}

		logEvent.
			Int("status", ww.Status()).
			Int64("requestDuration", time.Since(startTime).Milliseconds()).
			Msg("Request completed")
	})
}
