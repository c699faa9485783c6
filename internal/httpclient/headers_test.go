package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultHeadersWithoutTab(t *testing.T) {
	h := DefaultHeaderProvider{}.Headers(nil, "https://cdn.example.com/a.m3u8")

	assert.Equal(t, DefaultUserAgent, h["User-Agent"])
	assert.Equal(t, DefaultAccept, h["Accept"])
	assert.Equal(t, DefaultAcceptLanguage, h["Accept-Language"])
	assert.NotContains(t, h, "Origin")
	assert.NotContains(t, h, "Referer")
}

func TestDefaultHeadersWithTab(t *testing.T) {
	tests := []struct {
		name    string
		page    string
		origin  string
		referer string
	}{
		{"page url", "https://www.example.com/watch?v=1#t=3", "https://www.example.com", "https://www.example.com/watch?v=1"},
		{"non-http page", "chrome://newtab", "", ""},
		{"empty page", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := DefaultHeaderProvider{}.Headers(&TabContext{PageURL: tt.page}, "https://cdn.example.com/a.mpd")
			assert.Equal(t, tt.origin, h["Origin"])
			assert.Equal(t, tt.referer, h["Referer"])
		})
	}
}

func TestMergeHeadersCaseInsensitive(t *testing.T) {
	got := MergeHeaders(
		map[string]string{"User-Agent": "default", "Accept": "*/*"},
		map[string]string{"user-agent": "custom"},
	)
	assert.Equal(t, map[string]string{"User-Agent": "custom", "Accept": "*/*"}, got)
}

func TestFetcherSendsTabHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client(), WithHeaderProvider(DefaultHeaderProvider{UserAgent: "probe/1"}))
	ctx := WithTab(context.Background(), &TabContext{PageURL: "https://site.example/page"})
	res := f.FetchFull(ctx, srv.URL, map[string]string{"Cookie": "a=b"}, time.Second)

	require.True(t, res.OK)
	assert.Equal(t, "probe/1", got.Get("User-Agent"))
	assert.Equal(t, "https://site.example", got.Get("Origin"))
	assert.Equal(t, "https://site.example/page", got.Get("Referer"))
	assert.Equal(t, "a=b", got.Get("Cookie"))
}
