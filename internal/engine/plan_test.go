package engine

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohaanymo/streamprobe/internal/models"
)

func TestBuildPlan(t *testing.T) {
	res := okResult("https://cdn.example/master.m3u8")
	res.SubtitleTracks = []*models.Track{
		{ID: "s1", Type: models.TrackSubtitle, URL: "https://cdn.example/en.m3u8", Codecs: "wvtt", Language: "en"},
		{ID: "s2", Type: models.TrackSubtitle, URL: "https://cdn.example/en-cc.m3u8", Codecs: "wvtt", Language: "en"},
		{ID: "s3", Type: models.TrackSubtitle, Codecs: "stpp.ttml.im1t"},
	}

	plan, err := BuildPlan(res, res.Tracks(), filepath.Join("downloads", "show.mp4"))
	require.NoError(t, err)

	assert.Equal(t, FormatMP4, plan.Format)
	assert.Equal(t, filepath.Join("downloads", "show.mp4"), plan.Output)
	assert.Equal(t, "https://cdn.example/master.m3u8", plan.Source)
	require.Len(t, plan.Inputs, 2)
	assert.Equal(t, "video", plan.Inputs[0].Type)
	assert.Equal(t, "audio", plan.Inputs[1].Type)

	require.Len(t, plan.Subtitles, 3)
	assert.Equal(t, filepath.Join("downloads", "show.en.vtt"), plan.Subtitles[0].Path)
	assert.Equal(t, filepath.Join("downloads", "show.en.2.vtt"), plan.Subtitles[1].Path)
	assert.Equal(t, filepath.Join("downloads", "show.sub.ttml"), plan.Subtitles[2].Path)
	assert.Equal(t, "https://cdn.example/master.m3u8", plan.Subtitles[2].URL)
}

func TestBuildPlanErrors(t *testing.T) {
	_, err := BuildPlan(nil, nil, "x")
	assert.ErrorIs(t, err, ErrNoTracks)

	_, err = BuildPlan(okResult("u"), nil, "x")
	assert.ErrorIs(t, err, ErrNoTracks)
}

func TestOutputFormat(t *testing.T) {
	v := func(c string) *models.Track { return &models.Track{Type: models.TrackVideo, Container: c} }
	a := func(c string) *models.Track { return &models.Track{Type: models.TrackAudio, Container: c} }

	tests := []struct {
		name   string
		tracks []*models.Track
		want   ContainerFormat
	}{
		{"mp4 video with aac", []*models.Track{v("mp4"), a("m4a")}, FormatMP4},
		{"webm video with opus", []*models.Track{v("webm"), a("webm")}, FormatWebM},
		{"webm video with aac", []*models.Track{v("webm"), a("m4a")}, FormatMKV},
		{"mp4 video with opus", []*models.Track{v("mp4"), a("webm")}, FormatMKV},
		{"transport stream", []*models.Track{v("ts")}, FormatTS},
		{"audio only aac", []*models.Track{a("m4a")}, FormatM4A},
		{"audio only opus", []*models.Track{a("webm")}, FormatWebM},
		{"audio only flac", []*models.Track{a("flac")}, FormatMKV},
		{"unknown video", []*models.Track{v("")}, FormatMP4},
		{"nothing", nil, FormatMP4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, outputFormat(tt.tracks))
		})
	}
}

func TestFFmpegArgs(t *testing.T) {
	plan := &Plan{
		Output: "out.mp4",
		Format: FormatMP4,
		Inputs: []PlanInput{{URL: "https://cdn.example/v.m3u8"}, {URL: "https://cdn.example/a.m3u8"}},
	}

	args := plan.FFmpegArgs(nil)
	assert.Equal(t, []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", "https://cdn.example/v.m3u8",
		"-i", "https://cdn.example/a.m3u8",
		"-c", "copy", "-map", "0", "-map", "1",
		"-movflags", "+faststart",
		"out.mp4",
	}, args)

	args = plan.FFmpegArgs(map[string]string{"Referer": "https://site.example/", "Cookie": "a=b"})
	assert.Equal(t, "-headers", args[4])
	assert.Equal(t, "Cookie: a=b\r\nReferer: https://site.example/\r\n", args[5])

	webm := &Plan{Output: "o.webm", Format: FormatWebM, Inputs: []PlanInput{{URL: "https://x/v"}}}
	assert.NotContains(t, webm.FFmpegArgs(nil), "-movflags")
}

func TestPlanCommand(t *testing.T) {
	plan := &Plan{Output: "my show.mp4", Format: FormatMP4, Inputs: []PlanInput{{URL: "https://cdn.example/v.m3u8?a=1&b=2"}}}
	cmd := plan.Command(nil)
	assert.Equal(t, "ffmpeg -y -hide_banner -loglevel error -i 'https://cdn.example/v.m3u8?a=1&b=2' -c copy -map 0 -movflags +faststart 'my show.mp4'", cmd)
}

func TestGetSubtitleExt(t *testing.T) {
	assert.Equal(t, ".vtt", getSubtitleExt("wvtt", ""))
	assert.Equal(t, ".ttml", getSubtitleExt("stpp", ""))
	assert.Equal(t, ".srt", getSubtitleExt("", "srt"))
	assert.Equal(t, ".vtt", getSubtitleExt("", ""))
}
