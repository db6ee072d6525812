package websocket

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// OriginPolicy decides which browser pages may open a tally stream.
// Requests without an Origin header come from non-browser clients and are
// always allowed.
type OriginPolicy struct {
	allowed        map[string]struct{}
	allowLocalhost bool
}

// NewOriginPolicy accepts full URLs or bare origins; paths are ignored and
// entries without a host are skipped.
func NewOriginPolicy(origins []string, allowLocalhost bool) *OriginPolicy {
	p := &OriginPolicy{
		allowed:        make(map[string]struct{}, len(origins)),
		allowLocalhost: allowLocalhost,
	}
	for _, raw := range origins {
		if origin := normalizeOrigin(raw); origin != "" {
			p.allowed[origin] = struct{}{}
		}
	}
	return p
}

func (p *OriginPolicy) Allows(origin string) bool {
	if origin == "" {
		return true
	}
	if _, ok := p.allowed[normalizeOrigin(origin)]; ok {
		return true
	}
	return p.allowLocalhost && isLoopback(origin)
}

// CheckOrigin plugs into websocket.Upgrader.
func (p *OriginPolicy) CheckOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if p.Allows(origin) {
		return true
	}
	slog.Warn("Tally stream origin rejected", "origin", origin, "remote_addr", r.RemoteAddr)
	return false
}

// normalizeOrigin reduces a URL to scheme://host[:port], lowercased.
func normalizeOrigin(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme + "://" + u.Host)
}

func isLoopback(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
