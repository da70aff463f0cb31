package httputil

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "remote addr only",
			remoteAddr: "192.0.2.10:54321",
			want:       "192.0.2.10",
		},
		{
			name:       "x-forwarded-for single",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.5"},
			want:       "203.0.113.5",
		},
		{
			name:       "x-forwarded-for chain takes first hop",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.2, 10.0.0.3"},
			want:       "203.0.113.5",
		},
		{
			name:       "x-real-ip fallback",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Real-IP": "198.51.100.7"},
			want:       "198.51.100.7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(r))
		})
	}
}

func TestAcceptsJSON(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	assert.False(t, AcceptsJSON(r))

	r.Header.Set("Accept", "application/json")
	assert.True(t, AcceptsJSON(r))

	r.Header.Set("Accept", "text/html,application/json;q=0.9")
	assert.True(t, AcceptsJSON(r))

	r.Header.Set("Accept", "text/html")
	assert.False(t, AcceptsJSON(r))
}
