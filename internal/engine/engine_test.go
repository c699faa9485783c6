package engine

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohaanymo/streamprobe/internal/models"
)

type parseFunc func(ctx context.Context, url string, headers map[string]string) *models.Result

func (f parseFunc) Parse(ctx context.Context, url string, headers map[string]string) *models.Result {
	return f(ctx, url, headers)
}

func okResult(url string) *models.Result {
	res := models.NewFailedResult(url, url, models.ManifestHLS, models.StatusSuccess, "")
	res.IsValid = true
	res.IsMaster = true
	v := &models.Track{ID: "v1", Type: models.TrackVideo, URL: url + "/v1.m3u8", Codecs: "avc1.640028", Bandwidth: 5000000, Container: "mp4"}
	v.SetResolution(models.Resolution{Width: 1920, Height: 1080})
	res.VideoTracks = append(res.VideoTracks, v)
	res.AudioTracks = append(res.AudioTracks, &models.Track{ID: "a1", Type: models.TrackAudio, URL: url + "/a1.m3u8", Codecs: "mp4a.40.2", Language: "en", Container: "m4a"})
	return res
}

func TestEngineRun(t *testing.T) {
	var calls atomic.Int32
	p := parseFunc(func(_ context.Context, url string, headers map[string]string) *models.Result {
		calls.Add(1)
		assert.Equal(t, "streamprobe-test", headers["User-Agent"])
		return okResult(url)
	})

	e, err := New(p, Config{Threads: 2, Headers: map[string]string{"User-Agent": "streamprobe-test"}})
	require.NoError(t, err)
	defer e.Close()

	jobs, err := e.Run(context.Background(), []string{
		"https://a.example/one.m3u8",
		"https://a.example/two.m3u8",
		"https://A.example/one.m3u8",
		"  ",
		"https://a.example/three.m3u8",
	})
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.EqualValues(t, 3, calls.Load())

	assert.Equal(t, "https://a.example/one.m3u8", jobs[0].URL)
	assert.Equal(t, "https://a.example/two.m3u8", jobs[1].URL)
	assert.Equal(t, "https://a.example/three.m3u8", jobs[2].URL)

	idSeen := map[string]bool{}
	for _, j := range jobs {
		require.NotNil(t, j.Result)
		assert.Equal(t, models.StatusSuccess, j.Result.Status)
		assert.Len(t, j.ID, 36)
		assert.False(t, idSeen[j.ID])
		idSeen[j.ID] = true
	}
}

func TestEngineRequiresParserAndURLs(t *testing.T) {
	_, err := New(nil, Config{})
	assert.ErrorIs(t, err, ErrNoParser)

	e, err := New(parseFunc(func(context.Context, string, map[string]string) *models.Result { return nil }), Config{})
	require.NoError(t, err)
	_, err = e.Run(context.Background(), []string{"", " "})
	assert.ErrorIs(t, err, ErrNoURLs)
}

func TestEngineProgress(t *testing.T) {
	p := parseFunc(func(_ context.Context, url string, _ map[string]string) *models.Result {
		return okResult(url)
	})
	e, err := New(p, Config{Threads: 3, Progress: true})
	require.NoError(t, err)

	var updates []ProgressUpdate
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for u := range e.Progress() {
			updates = append(updates, u)
		}
	}()

	_, err = e.Run(context.Background(), []string{"https://a.example/1.m3u8", "https://a.example/2.m3u8"})
	require.NoError(t, err)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
	wg.Wait()

	require.Len(t, updates, 2)
	for _, u := range updates {
		assert.True(t, u.Completed)
		assert.Equal(t, 2, u.Total)
		assert.Equal(t, models.StatusSuccess, u.Status)
	}
}

func TestEnginePanicIsContained(t *testing.T) {
	p := parseFunc(func(_ context.Context, url string, _ map[string]string) *models.Result {
		if url == "https://a.example/boom.m3u8" {
			panic("boom")
		}
		return okResult(url)
	})
	e, err := New(p, Config{Threads: 2})
	require.NoError(t, err)

	jobs, err := e.Run(context.Background(), []string{"https://a.example/boom.m3u8", "https://a.example/ok.m3u8"})
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, models.StatusParseError, jobs[0].Result.Status)
	assert.Equal(t, models.StatusSuccess, jobs[1].Result.Status)
}

func TestEngineCanceledContext(t *testing.T) {
	var calls atomic.Int32
	p := parseFunc(func(_ context.Context, url string, _ map[string]string) *models.Result {
		calls.Add(1)
		return okResult(url)
	})
	e, err := New(p, Config{Threads: 1})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	jobs, err := e.Run(ctx, []string{"https://a.example/1.m3u8"})
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, jobs, 1)
	assert.Equal(t, models.StatusFetchFailed, jobs[0].Result.Status)
	assert.Zero(t, calls.Load())
}

func TestEngineCheckpointResume(t *testing.T) {
	path := CheckpointPath(filepath.Join(t.TempDir(), "batch"))
	failing := "https://a.example/flaky.m3u8"

	var calls atomic.Int32
	flaky := true
	p := parseFunc(func(_ context.Context, url string, _ map[string]string) *models.Result {
		calls.Add(1)
		if url == failing && flaky {
			return models.NewFailedResult(url, url, models.ManifestHLS, models.StatusFetchFailed, "HTTP 503")
		}
		return okResult(url)
	})

	urls := []string{"https://a.example/good.m3u8", failing}

	e, err := New(p, Config{Threads: 1, CheckpointPath: path})
	require.NoError(t, err)
	jobs, err := e.Run(context.Background(), urls)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFetchFailed, jobs[1].Result.Status)
	assert.EqualValues(t, 2, calls.Load())

	cp, err := LoadCheckpoint(path)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, 1, cp.Len())
	saved, ok := cp.Done("https://a.example/good.m3u8")
	require.True(t, ok)
	require.Len(t, saved.VideoTracks, 1)
	assert.Equal(t, 1080, saved.VideoTracks[0].Resolution.Height)
	assert.Equal(t, models.TrackVideo, saved.VideoTracks[0].Type)

	flaky = false
	jobs, err = e.Run(context.Background(), urls)
	require.NoError(t, err)
	assert.True(t, jobs[0].Resumed)
	assert.False(t, jobs[1].Resumed)
	assert.Equal(t, models.StatusSuccess, jobs[1].Result.Status)
	assert.EqualValues(t, 3, calls.Load())

	cp, err = LoadCheckpoint(path)
	require.NoError(t, err)
	assert.Nil(t, cp, "checkpoint is removed once every job is final")
}

func TestEnginePlan(t *testing.T) {
	e, err := New(parseFunc(func(_ context.Context, url string, _ map[string]string) *models.Result {
		return okResult(url)
	}), Config{})
	require.NoError(t, err)

	jobs, err := e.Run(context.Background(), []string{"https://a.example/m.m3u8"})
	require.NoError(t, err)

	plan, err := e.Plan(jobs[0], "best", "out/movie")
	require.NoError(t, err)
	assert.Equal(t, FormatMP4, plan.Format)
	assert.Equal(t, "out/movie.mp4", plan.Output)
	require.Len(t, plan.Inputs, 2)

	_, err = e.Plan(nil, "best", "x")
	assert.ErrorIs(t, err, ErrNoTracks)
}
