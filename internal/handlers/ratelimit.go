package handlers

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// RateLimiter implements a per-IP token bucket rate limiter.
type RateLimiter struct {
	mu       sync.Mutex
	clients  map[string]*bucket
	rate     int // tokens per interval
	burst    int // max tokens
	interval time.Duration
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

type bucket struct {
	tokens   int
	lastTime time.Time
}

// NewRateLimiter creates a rate limiter: rate tokens per interval, with burst
// capacity. Call Stop to end the background cleanup.
func NewRateLimiter(rate int, burst int, interval time.Duration) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	rl := &RateLimiter{
		clients:  make(map[string]*bucket),
		rate:     rate,
		burst:    burst,
		interval: interval,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.cleanup()
			case <-rl.stop:
				return
			}
		}
	}()
	return rl
}

// Stop ends the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-10 * time.Minute)
	for ip, b := range rl.clients {
		if b.lastTime.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, exists := rl.clients[ip]
	now := rl.now()

	if !exists {
		rl.clients[ip] = &bucket{tokens: rl.burst - 1, lastTime: now}
		return true
	}

	// Refill whole intervals only; the remainder carries over.
	if rl.interval > 0 {
		intervals := int(now.Sub(b.lastTime) / rl.interval)
		if intervals > 0 {
			b.tokens += intervals * rl.rate
			if b.tokens > rl.burst {
				b.tokens = rl.burst
			}
			b.lastTime = b.lastTime.Add(time.Duration(intervals) * rl.interval)
		}
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}
	return false
}

// clientIP is the first X-Forwarded-For hop when behind a proxy, otherwise
// the remote address without its port.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if ip := strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0]); ip != "" {
			return ip
		}
	}
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return ip
}

// Middleware wraps an http.Handler with rate limiting.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(clientIP(r)) {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "Demasiados pedidos. Tente novamente dentro de instantes.", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
