package httpclient

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Diomandeee/learnnko-sub000/errors"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		opts    Options
		wantErr bool
	}{
		{name: "https", raw: "https://example.com/videos.json"},
		{name: "localhost allowed by default", raw: "http://localhost:8900/analyze"},
		{name: "file scheme", raw: "file:///etc/passwd", wantErr: true},
		{name: "missing host", raw: "http:///path", wantErr: true},
		{name: "localhost blocked", raw: "http://localhost:8900", opts: Options{BlockPrivateIP: true}, wantErr: true},
		{name: "private ip blocked", raw: "http://10.1.2.3/", opts: Options{BlockPrivateIP: true}, wantErr: true},
		{name: "public ip allowed when blocking", raw: "http://93.184.216.34/", opts: Options{BlockPrivateIP: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateURL(tt.raw, tt.opts)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsPrivateIP(t *testing.T) {
	assert.True(t, isPrivateIP(net.ParseIP("127.0.0.1")))
	assert.True(t, isPrivateIP(net.ParseIP("192.168.1.10")))
	assert.True(t, isPrivateIP(net.ParseIP("::1")))
	assert.True(t, isPrivateIP(net.ParseIP("fd00::1")))
	assert.False(t, isPrivateIP(net.ParseIP("8.8.8.8")))
	assert.False(t, isPrivateIP(net.ParseIP("2606:4700::1111")))
}

func TestNew_SendsAuthAndUserAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer k3y", r.Header.Get("Authorization"))
		assert.Contains(t, r.Header.Get("User-Agent"), "nkosched/")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resp, err := New(Options{Timeout: time.Second, APIKey: "k3y"}).R().Get(srv.URL)
	require.NoError(t, err)
	assert.NoError(t, StatusError(resp))
}

func TestStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/busy":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("bad job"))
		}
	}))
	defer srv.Close()

	client := New(Options{Timeout: time.Second})

	resp, err := client.R().Get(srv.URL + "/busy")
	require.NoError(t, err)
	busy := StatusError(resp)
	require.Error(t, busy)
	assert.Equal(t, errors.KindTransient, errors.KindOf(busy))

	resp, err = client.R().Get(srv.URL + "/bad")
	require.NoError(t, err)
	bad := StatusError(resp)
	require.Error(t, bad)
	assert.Contains(t, bad.Error(), "HTTP 400")
	assert.Contains(t, bad.Error(), "bad job")
	assert.Equal(t, errors.KindUnknown, errors.KindOf(bad))
}
