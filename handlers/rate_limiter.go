package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	// 超过此数量时清理闲置的限流器
	maxTrackedClients = 10000
	idleLimiterTTL    = 10 * time.Minute
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter 按客户端IP进行令牌桶限流
type IPRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	rate     rate.Limit
	burst    int
}

// NewIPRateLimiter 创建按IP限流器，rps<=0 表示不限流
func NewIPRateLimiter(rps float64, burst int) *IPRateLimiter {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst <= 0 {
		burst = 1
	}
	return &IPRateLimiter{
		limiters: make(map[string]*clientLimiter),
		rate:     limit,
		burst:    burst,
	}
}

// Allow 判断该IP的请求是否允许通过
func (l *IPRateLimiter) Allow(ip string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	cl, ok := l.limiters[ip]
	if !ok {
		if len(l.limiters) >= maxTrackedClients {
			l.sweep(now)
		}
		cl = &clientLimiter{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[ip] = cl
	}
	cl.lastSeen = now
	return cl.limiter.AllowN(now, 1)
}

func (l *IPRateLimiter) sweep(now time.Time) {
	for ip, cl := range l.limiters {
		if now.Sub(cl.lastSeen) > idleLimiterTTL {
			delete(l.limiters, ip)
		}
	}
}

// Middleware 返回gin限流中间件
func (l *IPRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "请求过于频繁，请稍后再试"})
			return
		}
		c.Next()
	}
}
