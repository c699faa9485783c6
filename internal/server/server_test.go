package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohaanymo/streamprobe/internal/httpclient"
	"github.com/mohaanymo/streamprobe/internal/models"
	"github.com/mohaanymo/streamprobe/internal/parser"
	"github.com/mohaanymo/streamprobe/internal/registry"
)

const master = `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=2500000,RESOLUTION=1280x720,CODECS="avc1.64001f,mp4a.40.2"
720p.m3u8
`

const media = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:6
#EXTINF:6.0,
seg0.ts
#EXTINF:6.0,
seg1.ts
#EXT-X-ENDLIST
`

func newTestServer(t *testing.T) (*Server, *httptest.Server, *registry.Videos) {
	t.Helper()
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/master.m3u8":
			w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
			_, _ = w.Write([]byte(master))
		case "/720p.m3u8":
			_, _ = w.Write([]byte(media))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(upstream.Close)

	videos := registry.New(16)
	reg := parser.NewRegistry(httpclient.NewFetcher(upstream.Client()), parser.WithVideoRegistry(videos))
	return New(reg, WithVideos(videos), WithHeaders(map[string]string{"X-Test": "1"})), upstream, videos
}

func post(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Len(t, rec.Header().Get(RequestIDHeader), 36)
}

func TestRequestIDPassthrough(t *testing.T) {
	s, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestParse(t *testing.T) {
	s, upstream, videos := newTestServer(t)

	rec := post(t, s.Handler(), "/v1/parse", map[string]any{"url": upstream.URL + "/master.m3u8"})
	require.Equal(t, http.StatusOK, rec.Code)

	var res models.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.IsValid)
	assert.True(t, res.IsMaster)
	assert.Equal(t, models.ManifestHLS, res.Type)
	require.Len(t, res.VideoTracks, 1)
	assert.Equal(t, 720, res.VideoTracks[0].Height)
	require.NotNil(t, res.Duration)
	assert.Equal(t, 12, *res.Duration)

	assert.Equal(t, 1, videos.Len())
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/videos", nil))
	assert.Contains(t, rec.Body.String(), "master.m3u8")
}

func TestParseForcedDASHOnHLS(t *testing.T) {
	s, upstream, _ := newTestServer(t)

	rec := post(t, s.Handler(), "/v1/parse", map[string]any{"url": upstream.URL + "/master.m3u8", "type": "dash"})
	require.Equal(t, http.StatusOK, rec.Code)

	var res models.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.False(t, res.IsValid)
	assert.Equal(t, models.StatusNotDASH, res.Status)
	assert.Empty(t, res.VideoTracks)
}

func TestClassify(t *testing.T) {
	s, upstream, _ := newTestServer(t)

	rec := post(t, s.Handler(), "/v1/classify", map[string]any{"url": upstream.URL + "/720p.m3u8"})
	require.Equal(t, http.StatusOK, rec.Code)

	var cl models.Classification
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cl))
	assert.True(t, cl.IsValid)
	assert.Equal(t, models.SubtypeHLSVariant, cl.Subtype)

	rec = post(t, s.Handler(), "/v1/classify", map[string]any{"url": upstream.URL + "/missing"})
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cl))
	assert.Equal(t, models.SubtypeFetchFailed, cl.Subtype)
	assert.Equal(t, http.StatusNotFound, cl.Status)
}

func TestDecideContainer(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := post(t, s.Handler(), "/v1/container", map[string]any{"codecs": "vp09.00.10.08,opus", "mediaKind": "video"})
	require.Equal(t, http.StatusOK, rec.Code)

	var d struct {
		Container  string `json:"container"`
		Confidence string `json:"confidence"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.Equal(t, "webm", d.Container)
	assert.Equal(t, "high", d.Confidence)
}

func TestBadRequests(t *testing.T) {
	s, _, _ := newTestServer(t)

	tests := []struct {
		name string
		path string
		body string
	}{
		{"missing url", "/v1/parse", `{}`},
		{"bad type", "/v1/parse", `{"url":"https://x.example/a.m3u8","type":"smooth"}`},
		{"malformed", "/v1/classify", `{"url":`},
		{"unknown field", "/v1/container", `{"codec":"avc1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), "error")
		})
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/parse", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
