package middlewares

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// RateLimiter allows each client IP at most limit requests per window.
type RateLimiter struct {
	limits     sync.Map
	limit      int32
	window     time.Duration
	cleanupInt time.Duration
	trusted    []*net.IPNet
	log        logrus.FieldLogger
}

type clientData struct {
	requests int32
	timer    *time.Timer
}

// NewRateLimiter starts a limiter whose idle-entry cleanup runs until ctx is done.
func NewRateLimiter(ctx context.Context, limit int, window, cleanupInt time.Duration, log logrus.FieldLogger) *RateLimiter {
	rl := &RateLimiter{
		limit:      int32(limit),
		window:     window,
		cleanupInt: cleanupInt,
		log:        log,
	}

	go rl.cleanup(ctx)

	return rl
}

func (rl *RateLimiter) cleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.cleanupInt)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.limits.Range(func(key, value interface{}) bool {
				data := value.(*clientData)
				if atomic.LoadInt32(&data.requests) == 0 {
					data.timer.Stop()
					rl.limits.Delete(key)
				}
				return true
			})
		}
	}
}

// SetTrustedProxies lists the peers allowed to report the client address
// through X-Forwarded-For. Call it before the limiter serves requests.
func (rl *RateLimiter) SetTrustedProxies(nets []*net.IPNet) {
	rl.trusted = nets
}

// getClientIP keys on the socket peer. X-Forwarded-For is only read when the
// peer is a trusted proxy, and then the right-most untrusted hop is the client.
func getClientIP(r *http.Request, trusted []*net.IPNet) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	peer := net.ParseIP(host)
	if peer == nil {
		return ""
	}
	if !isTrusted(peer, trusted) {
		return peer.String()
	}

	client := peer
	hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		ip := net.ParseIP(strings.TrimSpace(hops[i]))
		if ip == nil {
			break
		}
		client = ip
		if !isTrusted(ip, trusted) {
			break
		}
	}
	return client.String()
}

func isTrusted(ip net.IP, trusted []*net.IPNet) bool {
	for _, n := range trusted {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(getClientIP(r, rl.trusted)) {
			rl.log.WithField("path", r.URL.Path).Warn("rate limit exceeded")
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Allow counts one request for clientIP and reports whether it is within the limit.
func (rl *RateLimiter) Allow(clientIP string) bool {
	data, ok := rl.limits.Load(clientIP)
	if !ok {
		fresh := &clientData{
			timer: time.AfterFunc(rl.window, func() {
				rl.resetRequests(clientIP)
			}),
		}
		var loaded bool
		data, loaded = rl.limits.LoadOrStore(clientIP, fresh)
		if loaded {
			fresh.timer.Stop()
		}
	}
	client := data.(*clientData)

	return atomic.AddInt32(&client.requests, 1) <= rl.limit
}

func (rl *RateLimiter) resetRequests(clientIP string) {
	data, ok := rl.limits.Load(clientIP)
	if !ok {
		return
	}
	client := data.(*clientData)
	atomic.StoreInt32(&client.requests, 0)
	client.timer.Reset(rl.window)
}
