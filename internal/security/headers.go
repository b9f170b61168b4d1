package security

import "net/http"

// hardeningHeaders is the fixed header set attached to every response on
// protected paths: no-index directives, strict referrer policy,
// content-sniffing and framing protections, and cache busting. These are
// unconditional hardening, not error signals.
var hardeningHeaders = map[string]string{
	// Prevent search engine indexing of share links
	"X-Robots-Tag": "noindex, nofollow, noarchive, nosnippet",

	// Prevent referrer leaks to external sites
	"Referrer-Policy": "no-referrer",

	"X-Content-Type-Options": "nosniff",
	"X-Frame-Options":        "DENY",
	"X-XSS-Protection":       "1; mode=block",

	// Cache control for shared links
	"Cache-Control": "private, no-cache, no-store, must-revalidate",
	"Pragma":        "no-cache",
	"Expires":       "0",
}

// SetHardeningHeaders writes the fixed hardening header set.
func SetHardeningHeaders(h http.Header) {
	for key, value := range hardeningHeaders {
		h.Set(key, value)
	}
}

// Harden is middleware that attaches the hardening header set to every
// response it wraps.
func Harden(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		SetHardeningHeaders(w.Header())
		next.ServeHTTP(w, r)
	})
}
