package middlewares

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/unrolled/secure"
)

// Swagger UI loads its assets from the CDNs below. Push clients connect back
// over ws/wss on the same host.
var contentSecurityPolicy = strings.Join([]string{
	"default-src 'self'",
	"connect-src 'self' ws: wss:",
	"script-src 'self' 'unsafe-inline' https://cdnjs.cloudflare.com",
	"style-src 'self' 'unsafe-inline' https://cdnjs.cloudflare.com",
	"img-src 'self' data: https://cdnjs.cloudflare.com",
	"font-src 'self' https://cdnjs.cloudflare.com",
	"object-src 'none'",
	"frame-ancestors 'none'",
	"form-action 'self'",
	"base-uri 'self'",
}, "; ")

func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	sec := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ContentSecurityPolicy: contentSecurityPolicy,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
	})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := sec.Process(w, r); err != nil {
				log.Ctx(r.Context()).Error().Err(err).Msg("request rejected by security headers middleware")
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
