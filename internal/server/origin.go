package server

import (
	"net"
	"net/http"
	"net/url"
	"slices"
)

// OriginChecker accepts requests without an Origin header, from loopback
// origins and from the configured origins.
type OriginChecker struct {
	allowed []string
}

func NewOriginChecker(allowed []string) *OriginChecker {
	return &OriginChecker{
		allowed: allowed,
	}
}

func (c *OriginChecker) Check(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if slices.Contains(c.allowed, origin) {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := u.Hostname()
	if host == "localhost" {
		return true
	}

	ip := net.ParseIP(host)

	return ip != nil && ip.IsLoopback()
}
