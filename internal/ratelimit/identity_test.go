package ratelimit

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIP(t *testing.T) {
	trusted := ParseTrustedProxies([]string{"10.0.0.0/8", "bogus", " ::1 "})

	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{"direct", "203.0.113.9:5555", nil, "203.0.113.9"},
		{"untrusted peer ignores headers", "203.0.113.9:5555",
			map[string]string{"X-Forwarded-For": "1.2.3.4"}, "203.0.113.9"},
		{"trusted xff", "10.1.2.3:80",
			map[string]string{"X-Forwarded-For": "198.51.100.7, 10.1.2.3"}, "198.51.100.7"},
		{"forwarded wins over xff", "10.1.2.3:80",
			map[string]string{"Forwarded": `for="[2001:db8::1]:4711";proto=https`, "X-Forwarded-For": "1.2.3.4"}, "2001:db8::1"},
		{"forwarded skips obfuscated", "10.1.2.3:80",
			map[string]string{"Forwarded": "for=_hidden, For=192.0.2.60"}, "192.0.2.60"},
		{"trusted without headers", "10.1.2.3:80", nil, "10.1.2.3"},
		{"ipv6 loopback trusted", "[::1]:9000",
			map[string]string{"X-Forwarded-For": "192.0.2.1:1234"}, "192.0.2.1"},
		{"garbage remote", "nonsense", nil, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(r, trusted))
		})
	}
}

func TestIdentity(t *testing.T) {
	assert.Equal(t, "tk:abc", Identity("abc", "1.2.3.4"))
	assert.Equal(t, "ip:1.2.3.4", Identity("", "1.2.3.4"))
}
