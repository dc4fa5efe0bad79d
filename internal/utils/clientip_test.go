package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remote     string
		headers    map[string]string
		trustProxy bool
		want       string
	}{
		{name: "remote addr", remote: "192.0.2.1:4000", want: "192.0.2.1"},
		{name: "ipv6 remote addr", remote: "[2001:db8::1]:4000", want: "2001:db8::1"},
		{name: "headers ignored without trust", remote: "192.0.2.1:4000", headers: map[string]string{"X-Real-IP": "198.51.100.7"}, want: "192.0.2.1"},
		{name: "cloudflare header first", remote: "127.0.0.1:1", trustProxy: true, headers: map[string]string{"CF-Connecting-IP": "198.51.100.1", "X-Forwarded-For": "198.51.100.2"}, want: "198.51.100.1"},
		{name: "left-most forwarded entry", remote: "127.0.0.1:1", trustProxy: true, headers: map[string]string{"X-Forwarded-For": " 198.51.100.2 , 10.0.0.1"}, want: "198.51.100.2"},
		{name: "real ip fallback", remote: "127.0.0.1:1", trustProxy: true, headers: map[string]string{"X-Real-IP": "198.51.100.3"}, want: "198.51.100.3"},
		{name: "no headers falls back to remote", remote: "127.0.0.1:1", trustProxy: true, want: "127.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(r, tt.trustProxy))
		})
	}
}

func TestAddrSet(t *testing.T) {
	set, err := ParseAddrSet([]string{"10.0.0.0/8", " 192.0.2.7 ", "", "2001:db8::/32"})
	require.NoError(t, err)
	assert.Equal(t, 3, set.Len())

	tests := []struct {
		ip   string
		want bool
	}{
		{ip: "10.200.1.1", want: true},
		{ip: "192.0.2.7", want: true},
		{ip: "192.0.2.8", want: false},
		{ip: "::ffff:10.0.0.1", want: true},
		{ip: "2001:db8::42", want: true},
		{ip: "not-an-ip", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			assert.Equal(t, tt.want, set.Contains(tt.ip))
		})
	}
}

func TestParseAddrSetKeepsValidEntries(t *testing.T) {
	set, err := ParseAddrSet([]string{"10.0.0.0/8", "bogus"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus")
	assert.Equal(t, 1, set.Len())
}
