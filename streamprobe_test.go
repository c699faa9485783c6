package streamprobe

import (
	"context"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMaster = `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=5000000,RESOLUTION=1920x1080,CODECS="avc1.640028,mp4a.40.2"
1080p.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2500000,RESOLUTION=1280x720,CODECS="avc1.64001f,mp4a.40.2"
720p.m3u8
`

const testMedia = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:10
#EXTINF:10.0,
seg0.ts
#EXTINF:10.0,
seg1.ts
#EXTINF:10.0,
seg2.ts
#EXT-X-ENDLIST
`

type upstream struct {
	*httptest.Server
	mu       sync.Mutex
	referers []string
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.referers = append(u.referers, r.Header.Get("Referer"))
		u.mu.Unlock()

		switch r.URL.Path {
		case "/master.m3u8":
			w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
			_, _ = w.Write([]byte(testMaster))
		case "/1080p.m3u8", "/720p.m3u8":
			_, _ = w.Write([]byte(testMedia))
		case "/video.bin":
			_, _ = w.Write(ftyp("isom", "isom", "avc1"))
		case "/page.html":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<html><body><video src="/master.m3u8"></video></body></html>`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(u.Close)
	return u
}

func ftyp(major string, compatible ...string) []byte {
	size := 16 + 4*len(compatible)
	b := make([]byte, 0, size)
	b = binary.BigEndian.AppendUint32(b, uint32(size))
	b = append(b, "ftyp"...)
	b = append(b, major...)
	b = binary.BigEndian.AppendUint32(b, 0x200)
	for _, c := range compatible {
		b = append(b, c...)
	}
	return b
}

func newProber(t *testing.T, u *upstream, opts ...Option) *Prober {
	t.Helper()
	opts = append([]Option{WithHTTPClient(u.Client())}, opts...)
	p, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestProberParse(t *testing.T) {
	u := newUpstream(t)
	p := newProber(t, u, WithPageURL("https://watch.example/show#t=10"))

	res := p.Parse(context.Background(), u.URL+"/master.m3u8")
	require.True(t, res.IsValid, res.Error)
	assert.Equal(t, ManifestHLS, res.Type)
	assert.True(t, res.IsMaster)
	assert.False(t, res.IsLive)
	require.Len(t, res.VideoTracks, 2)
	assert.Equal(t, 1080, res.VideoTracks[0].Height)
	require.NotNil(t, res.Duration)
	assert.Equal(t, 30, *res.Duration)

	u.mu.Lock()
	defer u.mu.Unlock()
	require.NotEmpty(t, u.referers)
	for _, ref := range u.referers {
		assert.Equal(t, "https://watch.example/show", ref)
	}

	assert.Len(t, p.KnownVideos(), 1)
}

func TestProberSelectAndPlan(t *testing.T) {
	u := newUpstream(t)
	p := newProber(t, u, WithTrackSelector("720p"))

	res := p.Parse(context.Background(), u.URL+"/master.m3u8")
	require.True(t, res.IsValid)

	selected, err := p.SelectTracks(res, "")
	require.NoError(t, err)
	require.NotEmpty(t, selected)
	assert.Equal(t, 720, selected[0].Height)

	plan, err := p.Plan(res, "best", "movie")
	require.NoError(t, err)
	assert.Equal(t, "movie.mp4", plan.Output)
	assert.Contains(t, plan.Command(p.Headers()), "1080p.m3u8")

	_, err = p.SelectTracks(nil, "best")
	assert.ErrorIs(t, err, ErrNoTracks)
}

func TestBuildPlanFromChosenTracks(t *testing.T) {
	u := newUpstream(t)
	p := newProber(t, u)

	res := p.Parse(context.Background(), u.URL+"/master.m3u8")
	require.True(t, res.IsValid)

	plan, err := BuildPlan(res, res.VideoTracks[1:], "clip")
	require.NoError(t, err)
	assert.Contains(t, plan.Command(nil), "720p.m3u8")
	assert.NotContains(t, plan.Command(nil), "1080p.m3u8")

	_, err = BuildPlan(res, nil, "clip")
	assert.Error(t, err)
}

func TestProbeContainer(t *testing.T) {
	u := newUpstream(t)
	p := newProber(t, u)

	d := p.ProbeContainer(context.Background(), u.URL+"/video.bin", ContainerOptions{MediaKind: "video"})
	assert.Equal(t, "mp4", d.Container)
	assert.Equal(t, "highest", d.Confidence.String())

	// A failed sniff leaves the remaining inputs in charge.
	d = p.ProbeContainer(context.Background(), u.URL+"/missing.webm", ContainerOptions{MediaKind: "video"})
	assert.Equal(t, "webm", d.Container)
	assert.Equal(t, "low", d.Confidence.String())
}

func TestDecideContainer(t *testing.T) {
	d := DecideContainer(ContainerOptions{Codecs: "vp09.00.10.08,opus", MediaKind: "video"})
	assert.Equal(t, "webm", d.Container)
	assert.Equal(t, "high", d.Confidence.String())
}

func TestDiscover(t *testing.T) {
	u := newUpstream(t)
	p := newProber(t, u)

	cands, err := p.Discover(context.Background(), u.URL+"/page.html")
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, u.URL+"/master.m3u8", cands[0].URL)
}

func TestBatchCheckpoint(t *testing.T) {
	u := newUpstream(t)
	cp := filepath.Join(t.TempDir(), "run")
	p := newProber(t, u, WithCheckpoint(cp), WithThreads(2))

	jobs, err := p.Batch(context.Background(), []string{
		u.URL + "/master.m3u8",
		u.URL + "/missing.m3u8",
		u.URL + "/master.m3u8",
	})
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.True(t, jobs[0].Result.IsValid)
	assert.Equal(t, StatusFetchFailed, jobs[1].Result.Status)

	// The failed job keeps the checkpoint around for a retry.
	_, err = os.Stat(cp + ".streamprobe.json")
	assert.NoError(t, err)
}

func TestParseURLInvalid(t *testing.T) {
	u := newUpstream(t)

	res, err := ParseURL(context.Background(), u.URL+"/missing.m3u8", WithHTTPClient(u.Client()))
	require.Error(t, err)
	require.NotNil(t, res)
	assert.False(t, res.IsValid)
	assert.Empty(t, res.VideoTracks)
}
