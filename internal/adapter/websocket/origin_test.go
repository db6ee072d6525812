package websocket

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOriginPolicy_CheckOrigin(t *testing.T) {
	origins := []string{"https://polls.example.edu/app", "https://kiosk.example.edu"}

	tests := []struct {
		name           string
		origin         string
		allowLocalhost bool
		want           bool
	}{
		{"empty origin", "", false, true},
		{"app origin", "https://polls.example.edu", false, true},
		{"second origin", "https://kiosk.example.edu", false, true},
		{"case insensitive", "HTTPS://Polls.Example.EDU", false, true},

		{"different host", "https://evil.com", false, false},
		{"different port", "https://polls.example.edu:9090", false, false},
		{"http instead of https", "http://polls.example.edu", false, false},
		{"subdomain", "https://sub.polls.example.edu", false, false},

		{"localhost dev", "http://localhost:5173", true, true},
		{"localhost no port dev", "http://localhost", true, true},
		{"127.0.0.1 dev", "http://127.0.0.1:3000", true, true},
		{"ipv6 loopback dev", "http://[::1]:3000", true, true},
		{"localhost prod rejected", "http://localhost:5173", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := NewOriginPolicy(origins, tt.allowLocalhost)
			r, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "/api/polls/p1/stream", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, policy.CheckOrigin(r))
		})
	}
}

func TestOriginPolicy_NoOrigins(t *testing.T) {
	policy := NewOriginPolicy(nil, false)

	assert.True(t, policy.Allows(""))
	assert.False(t, policy.Allows("https://anything.example.com"))
}

func TestOriginPolicy_SkipsEntriesWithoutHost(t *testing.T) {
	policy := NewOriginPolicy([]string{"", "mailto:user@example.com", "  https://ok.example.com/  "}, false)

	assert.Len(t, policy.allowed, 1)
	assert.True(t, policy.Allows("https://ok.example.com"))
}

func TestNormalizeOrigin(t *testing.T) {
	tests := []struct {
		name   string
		rawURL string
		want   string
	}{
		{"full URL with path", "https://example.com/app", "https://example.com"},
		{"URL with port", "https://example.com:8443/path", "https://example.com:8443"},
		{"http URL", "http://localhost:8080/", "http://localhost:8080"},
		{"mixed case", "HTTP://Example.COM", "http://example.com"},
		{"empty string", "", ""},
		{"no host", "mailto:user@example.com", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeOrigin(tt.rawURL))
		})
	}
}
