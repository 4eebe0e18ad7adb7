package handlers

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/friendchat/backend/internal/logging"
)

// RateLimiter guards the credential endpoints, keyed per scope and client.
type RateLimiter interface {
	Allow(key string) bool
}

// rejectLimited writes a 429 and returns true when the caller is over its budget for scope.
// Proxy headers count only when trustProxy is set.
func rejectLimited(ctx context.Context, w http.ResponseWriter, r *http.Request, limiter RateLimiter, trustProxy bool, scope string) bool {
	if limiter == nil {
		return false
	}
	ip := clientIP(r, trustProxy)
	if limiter.Allow(scope + ":" + ip) {
		return false
	}
	logging.FromContext(ctx).Warn("rate limited", "scope", scope, "ip", ip)
	respondFailure(ctx, w, http.StatusTooManyRequests, kindRateLimited, "too many "+scope+" attempts, try again later")
	return true
}

// clientIP returns the socket peer. With trustProxy it prefers the first
// X-Forwarded-For hop, then X-Real-IP.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := proxiedIP(r); ip != "" {
			return ip
		}
	}

	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return host
	}
	return addr
}

func proxiedIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	return strings.TrimSpace(r.Header.Get("X-Real-IP"))
}
