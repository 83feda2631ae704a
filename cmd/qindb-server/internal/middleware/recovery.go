package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog"

	"github.com/sausheong/qindb/cmd/qindb-server/internal/api"
)

// RecoveryMiddleware recovers from panics and logs the stack trace.
func RecoveryMiddleware(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error().
						Str("method", r.Method).
						Str("path", r.URL.Path).
						Str("remote_addr", r.RemoteAddr).
						Interface("panic", err).
						Bytes("stack", debug.Stack()).
						Msg("panic_recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					fmt.Fprintf(w, `{"error":{"code":%q,"message":"internal server error: %v"}}`, api.ErrCodeInternal, err)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
