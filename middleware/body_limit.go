package middleware

import (
	"net/http"

	"github.com/gorilla/mux"
)

// BodyLimit returns middleware that caps the request body at maxBytes.
// Reads past the limit fail and the server responds with 413.
func BodyLimit(maxBytes int64) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// BodyLimitHandler wraps a single handler with its own body size limit,
// overriding the router-wide default. Used for upload routes.
func BodyLimitHandler(maxBytes int64, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		next(w, r)
	}
}
