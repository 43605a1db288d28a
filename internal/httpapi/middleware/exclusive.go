package middleware

import (
	"net/http"
	"sync"
)

// Exclusive serializes an expensive endpoint. A diagnostic run works
// through its checks one by one, so overlapping runs would only fight
// over sockets; concurrent requests get 429 instead of queueing.
func Exclusive() func(http.Handler) http.Handler {
	var mu sync.Mutex
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !mu.TryLock() {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"run already in progress"}`))
				return
			}
			defer mu.Unlock()
			next.ServeHTTP(w, r)
		})
	}
}
