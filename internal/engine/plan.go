package engine

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mohaanymo/streamprobe/internal/models"
)

// PlanInput is one media input handed to the downloader.
type PlanInput struct {
	TrackID   string `json:"trackId"`
	Type      string `json:"type"`
	URL       string `json:"url"`
	Codecs    string `json:"codecs,omitempty"`
	Container string `json:"container,omitempty"`
}

// SubtitleOutput is a subtitle track saved next to the output file.
type SubtitleOutput struct {
	TrackID  string `json:"trackId"`
	URL      string `json:"url"`
	Language string `json:"lang,omitempty"`
	Path     string `json:"path"`
}

// Plan describes how an external downloader should fetch and mux the
// selected tracks. Building a plan never touches the network or disk.
type Plan struct {
	Source    string           `json:"source"`
	Output    string           `json:"output"`
	Format    ContainerFormat  `json:"format"`
	IsLive    bool             `json:"isLive"`
	Inputs    []PlanInput      `json:"inputs"`
	Subtitles []SubtitleOutput `json:"subtitles,omitempty"`
}

// BuildPlan builds a download plan for the selected tracks of res.
func BuildPlan(res *models.Result, selected []*models.Track, output string) (*Plan, error) {
	if res == nil || len(selected) == 0 {
		return nil, ErrNoTracks
	}

	// Separate media tracks from subtitles
	var mediaTracks, subtitleTracks []*models.Track
	for _, t := range selected {
		if t.IsSubtitle() {
			subtitleTracks = append(subtitleTracks, t)
		} else {
			mediaTracks = append(mediaTracks, t)
		}
	}

	format := outputFormat(mediaTracks)
	if output == "" {
		output = "output"
	}
	ext := "." + string(format)
	if !strings.HasSuffix(strings.ToLower(output), ext) {
		output += ext
	}
	dir := filepath.Dir(output)
	baseName := strings.TrimSuffix(filepath.Base(output), ext)

	plan := &Plan{
		Source: res.URL,
		Output: output,
		Format: format,
		IsLive: res.IsLive,
		Inputs: make([]PlanInput, 0, len(mediaTracks)),
	}

	for _, t := range mediaTracks {
		plan.Inputs = append(plan.Inputs, PlanInput{
			TrackID:   t.ID,
			Type:      t.Type.String(),
			URL:       firstURL(t.URL, res.URL),
			Codecs:    t.Codecs,
			Container: t.Container,
		})
	}

	used := make(map[string]bool)
	for _, sub := range subtitleTracks {
		path := subtitlePath(dir, baseName, sub)
		for n := 2; used[path]; n++ {
			ext := filepath.Ext(path)
			path = strings.TrimSuffix(subtitlePath(dir, baseName, sub), ext) + fmt.Sprintf(".%d", n) + ext
		}
		used[path] = true
		plan.Subtitles = append(plan.Subtitles, SubtitleOutput{
			TrackID:  sub.ID,
			URL:      firstURL(sub.URL, res.URL),
			Language: sub.Language,
			Path:     path,
		})
	}

	return plan, nil
}

// FFmpegArgs returns the ffmpeg argument list that muxes the plan's media
// inputs with stream copy. Headers are sent with every input.
func (p *Plan) FFmpegArgs(headers map[string]string) []string {
	args := []string{"-y", "-hide_banner", "-loglevel", "error"}

	headerBlob := ffmpegHeaders(headers)
	for _, in := range p.Inputs {
		if headerBlob != "" {
			args = append(args, "-headers", headerBlob)
		}
		args = append(args, "-i", in.URL)
	}

	args = append(args, "-c", "copy")

	// "-map N" maps every stream of input N, not just its first.
	for i := range p.Inputs {
		args = append(args, "-map", fmt.Sprintf("%d", i))
	}

	if p.Format == FormatMP4 || p.Format == FormatM4A {
		args = append(args, "-movflags", "+faststart")
	}

	return append(args, p.Output)
}

// Command renders the ffmpeg invocation as a shell command line.
func (p *Plan) Command(headers map[string]string) string {
	args := p.FFmpegArgs(headers)
	quoted := make([]string, 0, len(args)+1)
	quoted = append(quoted, "ffmpeg")
	for _, a := range args {
		quoted = append(quoted, shellQuote(a))
	}
	return strings.Join(quoted, " ")
}

// outputFormat picks the output container from the tracks' container
// decisions. WebM video only stays WebM when the audio fits in WebM too.
func outputFormat(media []*models.Track) ContainerFormat {
	var videoContainer string
	var audioContainers []string
	for _, t := range media {
		switch {
		case t.Type == models.TrackVideo && videoContainer == "":
			videoContainer = t.Container
		case t.Type == models.TrackAudio:
			audioContainers = append(audioContainers, t.Container)
		}
	}

	if videoContainer == "" && len(audioContainers) > 0 {
		switch audioContainers[0] {
		case "m4a", "mp4", "":
			return FormatM4A
		case "webm":
			return FormatWebM
		case "ts", "mpegts":
			return FormatTS
		default:
			return FormatMKV
		}
	}

	switch videoContainer {
	case "webm":
		for _, c := range audioContainers {
			if c != "" && c != "webm" && c != "ogg" {
				return FormatMKV
			}
		}
		return FormatWebM
	case "mkv", "matroska":
		return FormatMKV
	case "ts", "mpegts":
		return FormatTS
	}
	for _, c := range audioContainers {
		if c == "webm" || c == "ogg" || c == "mkv" {
			return FormatMKV
		}
	}
	return FormatMP4
}

// subtitlePath generates a path for a subtitle file.
func subtitlePath(dir, baseName string, sub *models.Track) string {
	ext := getSubtitleExt(sub.Codecs, sub.Container)
	lang := sub.Language
	if lang == "" {
		lang = "sub"
	}
	return filepath.Join(dir, fmt.Sprintf("%s.%s%s", baseName, lang, ext))
}

// getSubtitleExt returns appropriate extension for subtitle codec.
func getSubtitleExt(codec, container string) string {
	codec = strings.ToLower(codec)
	switch {
	case strings.Contains(codec, "vtt"), strings.Contains(codec, "webvtt"), strings.Contains(codec, "wvtt"):
		return ".vtt"
	case strings.Contains(codec, "ttml"), strings.Contains(codec, "stpp"):
		return ".ttml"
	case strings.Contains(codec, "srt"):
		return ".srt"
	}
	switch container {
	case "ttml", "srt":
		return "." + container
	}
	return ".vtt"
}

func ffmpegHeaders(headers map[string]string) string {
	if len(headers) == 0 {
		return ""
	}
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(headers[k])
		b.WriteString("\r\n")
	}
	return b.String()
}

func shellQuote(s string) string {
	if s != "" && strings.IndexFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./:=+,%@", r))
	}) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func firstURL(urls ...string) string {
	for _, u := range urls {
		if u != "" {
			return u
		}
	}
	return ""
}
