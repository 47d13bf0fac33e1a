package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// ipWindow tracks request counts for one client IP inside a fixed window.
type ipWindow struct {
	count     int
	windowEnd time.Time
}

// RateLimiter is an in-memory fixed-window per-IP rate limiter. Counts live
// in a map guarded by a mutex; a background goroutine drops expired windows
// so memory stays bounded.
type RateLimiter struct {
	mu      sync.Mutex
	entries map[string]*ipWindow
	limit   int
	window  time.Duration
	stop    chan struct{}
}

// NewRateLimiter creates a limiter allowing limit requests per window per
// client IP. A limit of zero or less disables limiting. Call Stop on
// shutdown to end the cleanup goroutine.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	l := &RateLimiter{
		entries: make(map[string]*ipWindow),
		limit:   limit,
		window:  window,
		stop:    make(chan struct{}),
	}
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.cleanup()
			case <-l.stop:
				return
			}
		}
	}()
	return l
}

// Handler is the middleware: requests over the limit end with 429.
func (l *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		if !l.allow(clientIP(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"success":false,"error":"too_many_requests","message":"rate limit exceeded, please try again later"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Stop ends the background cleanup goroutine.
func (l *RateLimiter) Stop() {
	close(l.stop)
}

func (l *RateLimiter) allow(ip string) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[ip]
	if !ok || now.After(e.windowEnd) {
		l.entries[ip] = &ipWindow{count: 1, windowEnd: now.Add(l.window)}
		return true
	}

	e.count++
	return e.count <= l.limit
}

func (l *RateLimiter) cleanup() {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, e := range l.entries {
		if now.After(e.windowEnd) {
			delete(l.entries, ip)
		}
	}
}

// clientIP prefers the address set by chi's RealIP middleware (which folds in
// X-Forwarded-For / X-Real-IP) and strips the port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
