package research

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<html><head><title> Graphics Guide </title><script>var x = 1;</script></head>
<body>
<nav>Home | About</nav>
<h1>Best settings</h1>
<p>Use the   High preset
for most GPUs.</p>
<ul><li>Disable motion blur</li><li>Enable DLSS</li></ul>
<footer>copyright</footer>
</body></html>`

var allowLocal = WithTargetPolicy(TargetPolicy{AllowLocalhost: true, AllowPrivateNetworks: true})

func TestHTTPPageFetcherExtractsReadableText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	page, err := NewHTTPPageFetcher(5*time.Second, 0, allowLocal).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "Graphics Guide", page.Title)
	assert.Contains(t, page.Text, "Best settings")
	assert.Contains(t, page.Text, "Use the High preset for most GPUs.")
	assert.Contains(t, page.Text, "- Disable motion blur")
	assert.NotContains(t, page.Text, "var x")
	assert.NotContains(t, page.Text, "copyright")
	assert.NotContains(t, page.Text, "About")
	assert.False(t, page.Truncated)
}

func TestHTTPPageFetcherTruncates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<p>" + strings.Repeat("é", 100) + "</p>"))
	}))
	defer srv.Close()

	page, err := NewHTTPPageFetcher(5*time.Second, 10, allowLocal).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.True(t, page.Truncated)
	assert.Equal(t, 10, len([]rune(page.Text)))
}

func TestHTTPPageFetcherRejectsBadInput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	f := NewHTTPPageFetcher(5*time.Second, 0, allowLocal)
	_, err := f.Fetch(context.Background(), srv.URL)
	assert.Error(t, err)

	_, err = f.Fetch(context.Background(), "file:///etc/passwd")
	assert.Error(t, err)
}

func TestHTTPPageFetcherBlocksInternalTargets(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("<p>internal metrics</p>"))
	}))
	defer srv.Close()

	f := NewHTTPPageFetcher(5*time.Second, 0)
	for _, target := range []string{
		srv.URL + "/metrics",
		"http://localhost/",
		"http://api.localhost/",
		"http://0.0.0.0/",
		"http://[::1]/",
		"http://169.254.169.254/latest/meta-data/",
		"http://10.0.0.8/",
		"http://192.168.1.1/",
	} {
		page, err := f.Fetch(context.Background(), target)
		assert.ErrorIs(t, err, ErrBlockedTarget, target)
		assert.Nil(t, page, target)
	}
	assert.Zero(t, hits.Load())
}

func TestTargetPolicyDialControl(t *testing.T) {
	var strict TargetPolicy
	assert.ErrorIs(t, strict.dialControl("tcp", "127.0.0.1:80", nil), ErrBlockedTarget)
	assert.ErrorIs(t, strict.dialControl("tcp", net.JoinHostPort("fe80::1", "443"), nil), ErrBlockedTarget)
	assert.ErrorIs(t, strict.dialControl("tcp", "172.16.0.4:443", nil), ErrBlockedTarget)
	assert.NoError(t, strict.dialControl("tcp", "93.184.216.34:443", nil))

	local := TargetPolicy{AllowLocalhost: true}
	assert.NoError(t, local.dialControl("tcp", "127.0.0.1:80", nil))
	assert.ErrorIs(t, local.dialControl("tcp", "10.1.2.3:80", nil), ErrBlockedTarget)

	err := strict.dialControl("tcp", "not-an-address", nil)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrBlockedTarget))
}
