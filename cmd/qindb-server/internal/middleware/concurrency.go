package middleware

import (
	"net/http"

	"github.com/sausheong/qindb/cmd/qindb-server/internal/api"
	"github.com/sausheong/qindb/internal/semaphore"
)

// ConcurrencyLimitMiddleware bounds how many requests execute against
// the engine at once, adapted from cmd/mindb-server's execSem guard
// around query/execute handling.
func ConcurrencyLimitMiddleware(sem *semaphore.Semaphore) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := sem.Acquire(r.Context()); err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				writeServiceUnavailable(w)
				return
			}
			defer sem.Release()
			next.ServeHTTP(w, r)
		})
	}
}

func writeServiceUnavailable(w http.ResponseWriter) {
	w.Write([]byte(`{"error":{"code":"` + api.ErrCodeInternal + `","message":"server busy"}}`))
}
