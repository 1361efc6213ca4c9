package server

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ipBucket tracks fixed-window request counts for one client IP across two
// windows (minute and hour); each count resets once its window expires.
type ipBucket struct {
	mu          sync.Mutex
	minuteCount int
	minuteReset time.Time
	hourCount   int
	hourReset   time.Time
}

// IPRateLimiter enforces per-IP request quotas on a minute and hour window.
// It is an in-process limiter: fine for a single instance, not a substitute
// for a shared counter (Redis, etc.) behind multiple replicas.
type IPRateLimiter struct {
	perMinute int
	perHour   int
	burst     int

	mu      sync.Mutex
	buckets map[string]*ipBucket

	stopCh chan struct{}
	once   sync.Once
}

// NewIPRateLimiter builds a limiter allowing perMinute requests per minute
// and perHour requests per hour per IP, plus burst extra requests on top of
// the per-minute cap to absorb short spikes. It runs a background sweep to
// evict idle IP buckets; call Stop when done.
func NewIPRateLimiter(perMinute, perHour, burst int) *IPRateLimiter {
	rl := &IPRateLimiter{
		perMinute: perMinute,
		perHour:   perHour,
		burst:     burst,
		buckets:   make(map[string]*ipBucket),
		stopCh:    make(chan struct{}),
	}
	go rl.sweepLoop()
	return rl
}

// Allow reports whether a request from ip may proceed, incrementing its
// counters if so.
func (rl *IPRateLimiter) Allow(ip string) bool {
	now := time.Now()

	rl.mu.Lock()
	b, ok := rl.buckets[ip]
	if !ok {
		b = &ipBucket{minuteReset: now.Add(time.Minute), hourReset: now.Add(time.Hour)}
		rl.buckets[ip] = b
	}
	rl.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	if now.After(b.minuteReset) {
		b.minuteCount = 0
		b.minuteReset = now.Add(time.Minute)
	}
	if now.After(b.hourReset) {
		b.hourCount = 0
		b.hourReset = now.Add(time.Hour)
	}

	if b.minuteCount >= rl.perMinute+rl.burst || b.hourCount >= rl.perHour {
		return false
	}

	b.minuteCount++
	b.hourCount++
	return true
}

// Stop halts the background eviction sweep. Safe to call multiple times.
func (rl *IPRateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stopCh) })
}

func (rl *IPRateLimiter) sweepLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.evictIdle()
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *IPRateLimiter) evictIdle() {
	now := time.Now()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, b := range rl.buckets {
		b.mu.Lock()
		idle := now.After(b.hourReset)
		b.mu.Unlock()
		if idle {
			delete(rl.buckets, ip)
		}
	}
}

// clientIP extracts the request's originating IP, preferring the first
// X-Forwarded-For hop when present (trusted only because this service sits
// behind an internal edge proxy, never exposed directly).
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx >= 0 {
			fwd = fwd[:idx]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.rateLimiter == nil || r.URL.Path == "/health" || r.URL.Path == "/config" {
			next.ServeHTTP(w, r)
			return
		}
		if !s.rateLimiter.Allow(clientIP(r)) {
			w.Header().Set("Retry-After", strconv.Itoa(60))
			s.writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
