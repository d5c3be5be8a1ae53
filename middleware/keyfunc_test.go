package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetRemoteIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		want       string
	}{
		{"IPv4 with port", "1.2.3.4:1234", "1.2.3.4"},
		{"IPv6 with port and brackets", "[::1]:1234", "::1"},
		{"IPv6 with port and brackets (long)", "[2001:db8::1]:8080", "2001:db8::1"},
		{"IPv4 only", "1.2.3.4", "1.2.3.4"},
		{"IPv6 only", "::1", "::1"},
		{"brackets without port", "[::1]", "[::1]"},
		{"unterminated bracket", "[::1", "[::1"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			assert.Equal(t, tt.want, getRemoteIP(req))
		})
	}
}

func TestDefaultKeyFunc(t *testing.T) {
	tests := []struct {
		name    string
		xff     string
		realIP  string
		remote  string
		wantKey string
	}{
		{name: "remote addr", remote: "192.168.1.1:12345", wantKey: "192.168.1.1"},
		{name: "first forwarded entry", xff: "203.0.113.1, 10.0.0.1", remote: "10.0.0.1:1", wantKey: "203.0.113.1"},
		{name: "real ip header", realIP: " 203.0.113.7 ", remote: "10.0.0.1:1", wantKey: "203.0.113.7"},
		{name: "forwarded beats real ip", xff: "203.0.113.1", realIP: "203.0.113.7", remote: "10.0.0.1:1", wantKey: "203.0.113.1"},
		{name: "IPv4-mapped IPv6", xff: "::ffff:192.168.1.1", remote: "127.0.0.1:1", wantKey: "192.168.1.1"},
		{name: "IPv6 long form", xff: "2001:db8:0:0:0:0:0:1", remote: "127.0.0.1:1", wantKey: "2001:db8::1"},
		{name: "IPv6 with port", xff: "[2001:db8:0:0:0:0:0:1]:8080", remote: "127.0.0.1:1", wantKey: "2001:db8::1"},
		{name: "IPv4 with port", xff: "203.0.113.1:4711", remote: "127.0.0.1:1", wantKey: "203.0.113.1"},
		{name: "non address kept as is", xff: "client-a", remote: "127.0.0.1:1", wantKey: "client-a"},
		{name: "IPv4-mapped remote", remote: "[::ffff:192.168.1.1]:80", wantKey: "192.168.1.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			assert.Equal(t, tt.wantKey, DefaultKeyFunc(req))
		})
	}
}

func TestTrustedIPKeyFunc(t *testing.T) {
	keyFunc, err := TrustedIPKeyFunc([]string{"10.0.0.1", "10.0.0.2"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		remote string
		xff    []string
		want   string
	}{
		// Client -> LB1 -> App
		{"single proxy", "10.0.0.1:12345", []string{"203.0.113.1"}, "203.0.113.1"},
		// Client -> LB2 -> LB1 -> App
		{"two proxies", "10.0.0.1:12345", []string{"203.0.113.1, 10.0.0.2"}, "203.0.113.1"},
		// the attacker prepends a spoofed entry, LB1 appends the real peer
		{"spoofed entry ignored", "10.0.0.1:12345", []string{"198.51.100.1, 192.0.2.1"}, "192.0.2.1"},
		// direct connection bypassing the LB
		{"untrusted peer", "192.0.2.1:12345", []string{"198.51.100.1"}, "192.0.2.1"},
		{"untrusted IPv6 peer", "[2001:db8::1]:12345", []string{"10.0.0.1"}, "2001:db8::1"},
		{"entry with port", "10.0.0.1:12345", []string{"198.51.100.1, 192.0.2.1:12345"}, "192.0.2.1"},
		{"invalid entry skipped", "10.0.0.1:12345", []string{"203.0.113.1, not-an-ip"}, "203.0.113.1"},
		{"no header", "10.0.0.1:12345", nil, "10.0.0.1"},
		{"all hops trusted", "10.0.0.1:12345", []string{"10.0.0.2, 10.0.0.1"}, "10.0.0.2"},
		{"repeated headers", "10.0.0.1:12345", []string{"1.2.3.4", "203.0.113.1"}, "203.0.113.1"},
		{"repeated headers with lists", "10.0.0.1:12345", []string{"1.2.3.4, 5.6.7.8", "9.10.11.12"}, "9.10.11.12"},
		{"mapped entry canonicalized", "10.0.0.1:12345", []string{"::ffff:192.168.1.1, 10.0.0.2"}, "192.168.1.1"},
		{"long IPv6 entry canonicalized", "10.0.0.1:12345", []string{"2001:db8:0:0:0:0:0:1"}, "2001:db8::1"},
		{"mapped peer is trusted", "[::ffff:10.0.0.1]:12345", []string{"203.0.113.1"}, "203.0.113.1"},
		{"unparsable peer", "unix-socket", []string{"203.0.113.1"}, "unix-socket"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remote
			for _, v := range tt.xff {
				req.Header.Add("X-Forwarded-For", v)
			}
			assert.Equal(t, tt.want, keyFunc(req))
		})
	}
}

func TestTrustedIPKeyFunc_CIDR(t *testing.T) {
	keyFunc, err := TrustedIPKeyFunc([]string{"10.0.0.0/24", "fd00::/8"})
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.50:12345"
	req.Header.Set("X-Forwarded-For", "203.0.113.1, fd00::17")
	assert.Equal(t, "203.0.113.1", keyFunc(req))

	req.RemoteAddr = "10.0.1.50:12345"
	assert.Equal(t, "10.0.1.50", keyFunc(req))
}

func TestTrustedIPKeyFunc_InvalidProxy(t *testing.T) {
	_, err := TrustedIPKeyFunc([]string{"10.0.0.1", "not-an-ip"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not-an-ip")

	_, err = TrustedIPKeyFunc([]string{"10.0.0.0/33"})
	assert.Error(t, err)
}
