package middleware

import (
	"net/http"
)

// MaxBytes caps request bodies. Reads past the limit fail inside the
// handler with *http.MaxBytesError instead of buffering without bound.
func MaxBytes(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, n)
			next.ServeHTTP(w, r)
		})
	}
}
