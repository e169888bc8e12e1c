package middleware

import "net/http"

// MaxRequestSize rejects bodies larger than the configured limit. The limit
// is enforced lazily by MaxBytesReader, so oversized uploads fail during
// decoding rather than being buffered.
func MaxRequestSize(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}
