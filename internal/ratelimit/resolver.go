package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/spaolacci/murmur3"
)

// Principal carries the caller identity resolved by upstream middleware.
// Zero values mean the request is anonymous.
type Principal struct {
	UserID   string
	APIKeyID string
}

// Proxy headers consulted for the caller address, strongest first. Only the
// first entry of a comma-separated value is trusted.
var trustedIPHeaders = []string{"CF-Connecting-IP", "X-Forwarded-For", "X-Real-IP"}

// ClientKey derives the stable identifier requests are counted against.
// Precedence: authenticated user, API key, proxy-reported address, peer
// address, then a shared "unknown" bucket. It is a pure function of the
// request and never fails; colliding clients just share a budget.
//
// The Authorization header value itself is never used, so bearer secrets
// cannot leak into backend key space.
func ClientKey(r *http.Request, p Principal) string {
	if p.UserID != "" {
		return "user:" + p.UserID
	}
	if p.APIKeyID != "" {
		return "key:" + p.APIKeyID
	}

	for _, header := range trustedIPHeaders {
		value := r.Header.Get(header)
		if value == "" {
			continue
		}
		ip := strings.TrimSpace(strings.Split(value, ",")[0])
		if ip != "" {
			return "ip:" + ip
		}
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return "ip:" + host
	}
	if r.RemoteAddr != "" {
		return "ip:" + r.RemoteAddr
	}

	return "unknown"
}

// hashKey folds a client key into a fixed-width token before it reaches the
// backend. The threat model is abuse prevention, not secrecy, so a fast
// non-cryptographic hash is enough.
func hashKey(clientKey string) string {
	return strconv.FormatUint(murmur3.Sum64([]byte(clientKey)), 16)
}
