package security

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ConnectionLimiter caps concurrent long-lived connections per client IP.
type ConnectionLimiter struct {
	mu          sync.RWMutex
	connections map[string]int
	maxConn     int
}

func NewConnectionLimiter(maxConn int) *ConnectionLimiter {
	return &ConnectionLimiter{
		connections: make(map[string]int),
		maxConn:     maxConn,
	}
}

func (cl *ConnectionLimiter) TryConnect(ip string) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.connections[ip] >= cl.maxConn {
		return false
	}
	cl.connections[ip]++
	return true
}

func (cl *ConnectionLimiter) Disconnect(ip string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.connections[ip] > 0 {
		cl.connections[ip]--
		if cl.connections[ip] == 0 {
			delete(cl.connections, ip)
		}
	}
}

func (cl *ConnectionLimiter) Active(ip string) int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return cl.connections[ip]
}

// ProxyTrust resolves client addresses, honouring forwarding headers only
// when the direct peer is a trusted proxy.
type ProxyTrust struct {
	networks []*net.IPNet
}

// NewProxyTrust parses cidrs. Entries that do not parse are ignored.
func NewProxyTrust(cidrs []string) *ProxyTrust {
	pt := &ProxyTrust{}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(strings.TrimSpace(cidr))
		if err == nil {
			pt.networks = append(pt.networks, network)
		}
	}
	return pt
}

func (pt *ProxyTrust) trusted(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, network := range pt.networks {
		if network.Contains(parsed) {
			return true
		}
	}
	return false
}

// ClientIP extracts the client IP, only trusting proxy headers from trusted sources.
func (pt *ProxyTrust) ClientIP(r *http.Request) string {
	directIP, _, _ := net.SplitHostPort(r.RemoteAddr)
	if directIP == "" {
		directIP = r.RemoteAddr
	}

	if pt.trusted(directIP) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			clientIP := strings.TrimSpace(strings.Split(xff, ",")[0])
			if net.ParseIP(clientIP) != nil {
				return clientIP
			}
		}
		if xri := r.Header.Get("X-Real-Ip"); xri != "" {
			xri = strings.TrimSpace(xri)
			if net.ParseIP(xri) != nil {
				return xri
			}
		}
	}

	return directIP
}

// RateLimiter is a per-key token bucket limiter.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// NewRateLimiter allows perMinute events per key, with a burst of ten
// seconds' worth.
func NewRateLimiter(perMinute int) *RateLimiter {
	burst := perMinute / 6
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(float64(perMinute) / 60),
		burst:    burst,
	}
}

const maxTrackedKeys = 4096

func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters[key]
	if !ok {
		if len(l.limiters) >= maxTrackedKeys {
			l.prune()
		}
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[key] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}

// RetryAfter estimates when key may next be allowed.
func (l *RateLimiter) RetryAfter(key string) time.Duration {
	l.mu.Lock()
	limiter, ok := l.limiters[key]
	l.mu.Unlock()
	if !ok {
		return 0
	}
	reservation := limiter.Reserve()
	delay := reservation.Delay()
	reservation.Cancel()
	return delay
}

// prune drops limiters whose buckets have refilled. Caller holds mu.
func (l *RateLimiter) prune() {
	for key, limiter := range l.limiters {
		if limiter.Tokens() >= float64(l.burst) {
			delete(l.limiters, key)
		}
	}
}

// BruteForceProtector blocks an IP for a while after repeated failures.
type BruteForceProtector struct {
	mu            sync.Mutex
	attempts      map[string]*ipAttempts
	maxAttempts   int
	blockDuration time.Duration
	now           func() time.Time
}

type ipAttempts struct {
	count     int
	blockedAt time.Time
}

func NewBruteForceProtector(maxAttempts int, blockDuration time.Duration) *BruteForceProtector {
	return &BruteForceProtector{
		attempts:      make(map[string]*ipAttempts),
		maxAttempts:   maxAttempts,
		blockDuration: blockDuration,
		now:           time.Now,
	}
}

// Check reports whether ip may try again.
func (bf *BruteForceProtector) Check(ip string) bool {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	attempts, exists := bf.attempts[ip]
	if !exists {
		return true
	}

	if !attempts.blockedAt.IsZero() {
		if bf.now().Sub(attempts.blockedAt) < bf.blockDuration {
			return false
		}
		delete(bf.attempts, ip)
		return true
	}

	return attempts.count < bf.maxAttempts
}

func (bf *BruteForceProtector) RecordFailure(ip string) {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	bf.cleanup()

	attempts, exists := bf.attempts[ip]
	if !exists {
		attempts = &ipAttempts{}
		bf.attempts[ip] = attempts
	}

	attempts.count++
	if attempts.count >= bf.maxAttempts && attempts.blockedAt.IsZero() {
		attempts.blockedAt = bf.now()
	}
}

func (bf *BruteForceProtector) RecordSuccess(ip string) {
	bf.mu.Lock()
	defer bf.mu.Unlock()
	delete(bf.attempts, ip)
}

// cleanup drops expired blocks. Caller holds mu.
func (bf *BruteForceProtector) cleanup() {
	now := bf.now()
	for ip, attempts := range bf.attempts {
		if !attempts.blockedAt.IsZero() && now.Sub(attempts.blockedAt) > bf.blockDuration {
			delete(bf.attempts, ip)
		}
	}
}
