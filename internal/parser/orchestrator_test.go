package parser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/mohaanymo/streamprobe/internal/dedup"
	"github.com/mohaanymo/streamprobe/internal/httpclient"
	"github.com/mohaanymo/streamprobe/internal/models"
	"github.com/mohaanymo/streamprobe/internal/urlnorm"
)

func okManifest(content string) httpclient.ManifestFetchResult {
	return httpclient.ManifestFetchResult{
		FetchResult: httpclient.FetchResult{OK: true, Status: 200, Content: content},
		Attempts:    1,
	}
}

func TestHLSParseMasterWithPartialEnrichmentFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := NewMockFetcher(ctrl)

	const masterURL = "https://cdn.example.com/show/master.m3u8"
	f.EXPECT().FetchRange(gomock.Any(), masterURL, gomock.Any(), gomock.Any(), gomock.Any()).
		Return(okRange(testMaster, false))
	f.EXPECT().FetchManifest(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, u string, _ httpclient.ManifestOptions) httpclient.ManifestFetchResult {
			if strings.HasSuffix(u, "/720p.m3u8") {
				return httpclient.ManifestFetchResult{
					FetchResult: httpclient.FetchResult{Status: httpclient.StatusTimeout, Error: "timeout"},
					Attempts:    3,
				}
			}
			return okManifest(testMedia)
		}).Times(3)

	reg := mapRegistry{}
	res := NewHLSParser(f, WithVideoRegistry(reg)).Parse(context.Background(), masterURL, nil)

	require.True(t, res.IsValid, res.Error)
	assert.Equal(t, models.StatusSuccess, res.Status)
	assert.True(t, res.IsMaster)
	assert.False(t, res.IsVariant)
	assert.Equal(t, 4, res.Version)

	require.Len(t, res.Variants, 3)
	assert.Equal(t, 1080, res.Variants[0].Height)
	assert.Equal(t, 720, res.Variants[1].Height)
	assert.Equal(t, 360, res.Variants[2].Height)

	failed := res.Variants[1]
	assert.Nil(t, failed.Duration)
	assert.True(t, failed.IsLive)
	assert.NotEmpty(t, failed.EnrichmentError)
	assert.Zero(t, failed.EstimatedFileSizeBytes)

	for _, v := range []*models.Variant{res.Variants[0], res.Variants[2]} {
		require.NotNil(t, v.Duration)
		assert.Equal(t, 12, *v.Duration)
		assert.False(t, v.IsLive)
		assert.Empty(t, v.EnrichmentError)
	}
	assert.Equal(t, int64(2800000*12/8), res.Variants[0].EstimatedFileSizeBytes)

	require.NotNil(t, res.Duration)
	assert.Equal(t, 12, *res.Duration)
	assert.False(t, res.IsLive)

	require.Len(t, res.VideoTracks, 3)
	assert.Equal(t, "mp4", res.VideoTracks[0].Container)
	assert.Equal(t, "1080p", res.VideoTracks[0].StandardizedResolution)

	require.Len(t, res.AudioTracks, 1)
	audio := res.AudioTracks[0]
	assert.Equal(t, "en", audio.Language)
	assert.Equal(t, "mp4a.40.2", audio.Codecs)
	assert.Equal(t, 2, audio.Channels)
	assert.Equal(t, "m4a", audio.Container)
	assert.Equal(t, "https://cdn.example.com/show/audio/en.m3u8", audio.URL)

	require.Len(t, res.SubtitleTracks, 1)
	assert.Equal(t, "de", res.SubtitleTracks[0].Language)
	assert.Equal(t, "vtt", res.SubtitleTracks[0].Container)

	assert.False(t, res.TimestampLP.IsZero())
	assert.False(t, res.TimestampFP.Before(res.TimestampLP))

	md, ok := reg.GetVideoByURL(masterURL)
	require.True(t, ok)
	assert.Equal(t, MimeHLS, md.MimeType)
	assert.Equal(t, "mp4", md.Container)
}

func TestHLSParseMediaPlaylist(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := NewMockFetcher(ctrl)
	f.EXPECT().FetchRange(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(okRange(testMedia, false))

	res := NewHLSParser(f).Parse(context.Background(), "https://cdn.example.com/v/index.m3u8", nil)

	require.True(t, res.IsValid)
	assert.True(t, res.IsVariant)
	require.Len(t, res.Variants, 1)
	require.NotNil(t, res.Duration)
	assert.Equal(t, 12, *res.Duration)
	assert.Equal(t, 3, res.Version)
	require.Len(t, res.VideoTracks, 1)
	assert.Equal(t, "https://cdn.example.com/v/index.m3u8", res.VideoTracks[0].URL)
}

func TestHLSParseRefetchesTruncatedContent(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := NewMockFetcher(ctrl)

	const u = "https://cdn.example.com/v/index.m3u8"
	f.EXPECT().FetchRange(gomock.Any(), u, gomock.Any(), gomock.Any(), gomock.Any()).
		Return(okRange(testMedia[:strings.Index(testMedia, "seg1")], true))
	f.EXPECT().FetchManifest(gomock.Any(), u, gomock.Any()).Return(okManifest(testMedia))

	res := NewHLSParser(f).Parse(context.Background(), u, nil)

	require.True(t, res.IsValid)
	require.NotNil(t, res.Duration)
	assert.Equal(t, 12, *res.Duration)
}

func TestHLSParseFailures(t *testing.T) {
	const u = "https://cdn.example.com/page.m3u8"

	t.Run("not hls", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := NewMockFetcher(ctrl)
		f.EXPECT().FetchRange(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(okRange("<html><body>nope</body></html>", false))

		res := NewHLSParser(f).Parse(context.Background(), u, nil)

		assert.False(t, res.IsValid)
		assert.Equal(t, models.StatusNotHLS, res.Status)
		assert.Empty(t, res.VideoTracks)
		assert.NotNil(t, res.VideoTracks)
		assert.Empty(t, res.Variants)
	})

	t.Run("light fetch failed", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := NewMockFetcher(ctrl)
		f.EXPECT().FetchRange(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(httpclient.FetchResult{Status: 404, Error: "HTTP 404"})

		res := NewHLSParser(f).Parse(context.Background(), u, nil)

		assert.Equal(t, models.StatusFetchFailed, res.Status)
		assert.Equal(t, "HTTP 404", res.Error)
	})

	t.Run("full fetch failed", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := NewMockFetcher(ctrl)
		f.EXPECT().FetchRange(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(okRange("#EXTM3U\n#EXTINF:4,", true))
		f.EXPECT().FetchManifest(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(httpclient.ManifestFetchResult{FetchResult: httpclient.FetchResult{Status: 503, Error: "HTTP 503"}, Attempts: 3, RetryCount: 2})

		res := NewHLSParser(f).Parse(context.Background(), u, nil)

		assert.Equal(t, models.StatusFetchFailed, res.Status)
		assert.False(t, res.IsValid)
	})

	t.Run("panic becomes parse error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := NewMockFetcher(ctrl)
		d := dedup.New()
		f.EXPECT().FetchRange(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(okRange("#EXTM3U\n#EXTINF:4,", true))
		f.EXPECT().FetchManifest(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(context.Context, string, httpclient.ManifestOptions) httpclient.ManifestFetchResult {
				panic("decoder exploded")
			})

		var res *models.Result
		require.NotPanics(t, func() {
			res = NewHLSParser(f, WithDeduplicator(d)).Parse(context.Background(), u, nil)
		})
		assert.Equal(t, models.StatusParseError, res.Status)
		assert.Contains(t, res.Error, "decoder exploded")
		assert.False(t, d.InFlight(dedup.PhaseFull, urlnorm.Normalize(u)))
	})
}

func TestParseInFlightReturnsProcessing(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := NewMockFetcher(ctrl)
	d := dedup.New()

	const u = "https://cdn.example.com/a/manifest.mpd"
	release, ok := d.Acquire(dedup.PhaseFull, urlnorm.Normalize(u))
	require.True(t, ok)
	defer release()

	res := NewDASHParser(f, WithDeduplicator(d)).Parse(context.Background(), u, nil)

	assert.False(t, res.IsValid)
	assert.Equal(t, models.StatusProcessing, res.Status)
	assert.Equal(t, models.ManifestDASH, res.Type)
}

func TestDASHParseOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/dash+xml")
		http.ServeContent(w, r, "manifest.mpd", time.Time{}, strings.NewReader(sampleMPD))
	}))
	defer srv.Close()

	p := NewDASHParser(httpclient.NewFetcher(srv.Client()))
	res := p.Parse(context.Background(), srv.URL+"/vod/manifest.mpd", nil)

	require.True(t, res.IsValid, res.Error)
	assert.Equal(t, models.ManifestDASH, res.Type)
	assert.True(t, res.IsMaster)
	assert.True(t, res.IsEncrypted)
	assert.Equal(t, DRMWidevine, res.EncryptionType)
	require.NotNil(t, res.Duration)
	assert.Equal(t, 635, *res.Duration)

	require.Len(t, res.VideoTracks, 2)
	assert.Equal(t, "mp4", res.VideoTracks[0].Container)
	require.Len(t, res.AudioTracks, 1)
	assert.Equal(t, "m4a", res.AudioTracks[0].Container)
	require.Len(t, res.SubtitleTracks, 1)
	assert.Equal(t, "vtt", res.SubtitleTracks[0].Container)
	require.Len(t, res.Variants, 2)
}

func TestRegistryDispatch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/play", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(testMaster))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ".m3u8") {
			_, _ = w.Write([]byte(testMedia))
			return
		}
		_, _ = w.Write([]byte("<html>hello</html>"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	reg := NewRegistry(httpclient.NewFetcher(srv.Client()))

	t.Run("content decides when url does not", func(t *testing.T) {
		res := reg.Parse(context.Background(), srv.URL+"/play", nil)
		require.True(t, res.IsValid, res.Error)
		assert.Equal(t, models.ManifestHLS, res.Type)
		assert.Len(t, res.Variants, 3)
	})

	t.Run("extension picks parser", func(t *testing.T) {
		res := reg.Parse(context.Background(), srv.URL+"/v/index.m3u8", nil)
		require.True(t, res.IsValid, res.Error)
		assert.True(t, res.IsVariant)
	})

	t.Run("unknown content", func(t *testing.T) {
		res := reg.Parse(context.Background(), srv.URL+"/page", nil)
		assert.False(t, res.IsValid)
		assert.Equal(t, models.StatusUnknownType, res.Status)
		assert.Equal(t, models.ManifestUnknown, res.Type)
		assert.Empty(t, res.VideoTracks)
	})
}

func TestParseNeverPanicsOnGarbage(t *testing.T) {
	reg := NewRegistry(httpclient.NewFetcher(nil), WithOptions(Options{
		RangeBytes:     16,
		LightTimeout:   200 * time.Millisecond,
		FullTimeout:    200 * time.Millisecond,
		VariantTimeout: 200 * time.Millisecond,
		MaxConcurrency: 1,
	}))

	inputs := []string{"", "::garbage::", "http://", "ftp://x.example/a.m3u8", "http://127.0.0.1:1/a.mpd", "%zz.m3u8"}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			var res *models.Result
			require.NotPanics(t, func() {
				res = reg.Parse(context.Background(), in, map[string]string{"X-Bad\n": "v\r\n"})
			})
			require.NotNil(t, res)
			assert.False(t, res.IsValid)
			assert.NotEmpty(t, res.Status)
			assert.Empty(t, res.Tracks())
		})
	}
}
