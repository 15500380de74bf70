package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	appErr "github.com/workflow-builder/engine/pkg/errors"
)

type limiterEntry struct {
	limiter *rate.Limiter
	last    time.Time
}

// visitors holds one token bucket per client address.
type visitors struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	rps     rate.Limit
	burst   int
}

func (v *visitors) allow(ip string, now time.Time) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	le, ok := v.entries[ip]
	if !ok {
		le = &limiterEntry{limiter: rate.NewLimiter(v.rps, v.burst)}
		v.entries[ip] = le
	}
	le.last = now
	return le.limiter.AllowN(now, 1)
}

func (v *visitors) sweep(now time.Time, idle time.Duration) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for k, e := range v.entries {
		if now.Sub(e.last) > idle {
			delete(v.entries, k)
		}
	}
}

// sweepEvery drops idle visitors on every tick until ctx is done.
func (v *visitors) sweepEvery(ctx context.Context, interval, idle time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			v.sweep(now, idle)
		}
	}
}

func getIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimit applies a simple IP-based token bucket limiter. Idle clients
// are forgotten by a sweeper that runs until ctx is done.
func RateLimit(ctx context.Context, rps float64, burst int) func(http.Handler) http.Handler {
	v := &visitors{entries: map[string]*limiterEntry{}, rps: rate.Limit(rps), burst: burst}
	go v.sweepEvery(ctx, 5*time.Minute, 10*time.Minute)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !v.allow(getIP(r), time.Now()) {
				w.Header().Set("Retry-After", "1")
				deny(w, appErr.CodeRateLimited, http.StatusText(http.StatusTooManyRequests))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
