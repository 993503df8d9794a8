// Package ratelimit is a sliding-window request limiter keyed by client and
// route, backed by memory or Redis.
package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"task-manager/logging"
	"task-manager/models"
	"task-manager/utils"
)

type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Rule is a request budget per window.
type Rule struct {
	Limit  int
	Window time.Duration
}

var (
	HomeRule      = Rule{Limit: 20, Window: time.Minute}
	LoginRule     = Rule{Limit: 5, Window: time.Minute}
	VerifyOTPRule = Rule{Limit: 5, Window: time.Minute}
	ResendRule    = Rule{Limit: 3, Window: time.Minute}
	LogoutRule    = Rule{Limit: 10, Window: time.Minute}
)

// ClientIP returns the RemoteAddr host. Behind a trusted proxy the first
// X-Forwarded-For hop is used instead.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Key builds a limiter key from a route name and its scope parts.
func Key(name string, parts ...string) string {
	return "ratelimit:" + name + ":" + strings.Join(parts, ":")
}

// Allow spends one request of key's budget. A nil limiter and limiter errors
// both let the request through.
func Allow(ctx context.Context, l Limiter, key string, rule Rule) bool {
	if l == nil {
		return true
	}
	ok, err := l.Allow(ctx, key, rule.Limit, rule.Window)
	if err != nil {
		logging.Logger.Warnf("Event ID: RATE_LIMIT_UNAVAILABLE, Description: %s: %v", key, err)
		return true
	}
	if !ok {
		logging.Logger.Infof("Event ID: RATE_LIMITED, Description: %s", key)
	}
	return ok
}

// Reject writes the 429 answer for rule.
func Reject(w http.ResponseWriter, rule Rule) {
	w.Header().Set("Retry-After", retryAfter(rule.Window))
	utils.RespondWithError(w, http.StatusTooManyRequests, models.Error{
		Message: "Too many requests. Please try again later.",
		Code:    "too_many_requests",
	})
}

// Middleware limits requests per client IP under name.
func Middleware(l Limiter, name string, rule Rule, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !Allow(r.Context(), l, Key(name, ClientIP(r, trustProxy)), rule) {
				Reject(w, rule)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func retryAfter(window time.Duration) string {
	secs := int(window / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
