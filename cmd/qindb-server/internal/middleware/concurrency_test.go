package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sausheong/qindb/internal/semaphore"
)

func TestConcurrencyLimitMiddlewareAllowsUnderCapacity(t *testing.T) {
	sem := semaphore.New(1)
	handler := ConcurrencyLimitMiddleware(sem)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/tables", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if sem.InUse() != 0 {
		t.Fatalf("InUse after request completes = %d, want 0 (should release)", sem.InUse())
	}
}

func TestConcurrencyLimitMiddlewareRejectsWhenFull(t *testing.T) {
	sem := semaphore.New(1)
	if err := sem.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	handler := ConcurrencyLimitMiddleware(sem)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/tables", nil)
	req = req.WithContext(timeoutCtx(t))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func timeoutCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	t.Cleanup(cancel)
	return ctx
}
