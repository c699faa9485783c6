package parser

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/sourcegraph/conc/pool"

	"github.com/mohaanymo/streamprobe/internal/httpclient"
	"github.com/mohaanymo/streamprobe/internal/models"
	"github.com/mohaanymo/streamprobe/internal/urlnorm"
)

var errNotMediaPlaylist = errors.New("not a media playlist")

// HLSParser parses HLS (m3u8) playlists.
type HLSParser struct {
	*core
}

// NewHLSParser creates a new HLS parser.
func NewHLSParser(f Fetcher, opts ...Option) *HLSParser {
	return &HLSParser{core: newCore(f, newSettings(opts))}
}

// CanParse checks if URL is an HLS manifest.
func (p *HLSParser) CanParse(urlStr string) bool {
	lower := strings.ToLower(urlStr)
	return strings.Contains(lower, ".m3u8") || strings.Contains(lower, "format=m3u8")
}

// Rendition is an #EXT-X-MEDIA entry.
type Rendition struct {
	Type            string
	GroupID         string
	Name            string
	Language        string
	URI             string
	Default         bool
	Autoselect      bool
	Forced          bool
	Channels        string
	Characteristics string
}

// MasterPlaylist is the pure parse of a master playlist.
type MasterPlaylist struct {
	Variants   []*models.Variant
	Renditions []Rendition
	Version    int
}

// ParseMasterPlaylist extracts variants and renditions. Variant URLs are
// resolved against manifestURL; variants are sorted by bandwidth, highest
// first, keeping document order for ties.
func ParseMasterPlaylist(content, manifestURL string) MasterPlaylist {
	base := parseBaseURL(manifestURL)
	var (
		mp      MasterPlaylist
		pending map[string]string
	)

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)

		switch {
		case line == "":
			continue

		case strings.HasPrefix(line, "#EXT-X-STREAM-INF:"):
			pending = parseAttributeList(strings.TrimPrefix(line, "#EXT-X-STREAM-INF:"))

		case strings.HasPrefix(line, "#EXT-X-MEDIA:"):
			attrs := parseAttributeList(strings.TrimPrefix(line, "#EXT-X-MEDIA:"))
			r := Rendition{
				Type:            strings.ToUpper(attrs["TYPE"]),
				GroupID:         attrs["GROUP-ID"],
				Name:            attrs["NAME"],
				Language:        attrs["LANGUAGE"],
				Default:         attrs["DEFAULT"] == "YES",
				Autoselect:      attrs["AUTOSELECT"] == "YES",
				Forced:          attrs["FORCED"] == "YES",
				Channels:        attrs["CHANNELS"],
				Characteristics: attrs["CHARACTERISTICS"],
			}
			if uri := attrs["URI"]; uri != "" {
				r.URI = resolveURL(base, uri)
			}
			mp.Renditions = append(mp.Renditions, r)

		case strings.HasPrefix(line, "#EXT-X-VERSION:"):
			mp.Version, _ = strconv.Atoi(strings.TrimPrefix(line, "#EXT-X-VERSION:"))

		case strings.HasPrefix(line, "#"):
			continue

		case pending != nil:
			mp.Variants = append(mp.Variants, newVariant(len(mp.Variants), pending, resolveURL(base, line)))
			pending = nil
		}
	}

	sort.SliceStable(mp.Variants, func(i, j int) bool {
		return mp.Variants[i].SortBandwidth() > mp.Variants[j].SortBandwidth()
	})
	return mp
}

func newVariant(index int, attrs map[string]string, variantURL string) *models.Variant {
	v := &models.Variant{
		ID:            fmt.Sprintf("video_%d", index),
		URL:           variantURL,
		NormalizedURL: urlnorm.Normalize(variantURL),
		Codecs:        attrs["CODECS"],
		AudioGroup:    attrs["AUDIO"],
		SubtitleGroup: attrs["SUBTITLES"],
	}
	v.Bandwidth, _ = strconv.ParseInt(attrs["BANDWIDTH"], 10, 64)
	v.AverageBandwidth, _ = strconv.ParseInt(attrs["AVERAGE-BANDWIDTH"], 10, 64)

	if res, ok := attrs["RESOLUTION"]; ok {
		if w, h, ok := parseResolution(res); ok {
			v.Width, v.Height = w, h
			v.StandardizedResolution = v.Resolution().Standardized()
		}
	}
	if fr, err := strconv.ParseFloat(attrs["FRAME-RATE"], 64); err == nil {
		v.FrameRate = math.Round(fr*1000) / 1000
	}
	return v
}

func parseResolution(s string) (int, int, bool) {
	w, h, found := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !found {
		return 0, 0, false
	}
	width, err1 := strconv.Atoi(w)
	height, err2 := strconv.Atoi(h)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return width, height, true
}

// parseAttributeList splits KEY=VALUE pairs on commas outside quotes.
// Quoted values are returned without their quotes.
func parseAttributeList(s string) map[string]string {
	attrs := make(map[string]string)
	var (
		key, val strings.Builder
		inKey    = true
		inQuote  bool
	)
	flush := func() {
		k := strings.ToUpper(strings.TrimSpace(key.String()))
		if k != "" {
			attrs[k] = strings.TrimSpace(val.String())
		}
		key.Reset()
		val.Reset()
		inKey = true
		inQuote = false
	}

	for _, r := range s {
		switch {
		case inKey && r == '=':
			inKey = false
		case inKey && r == ',':
			key.Reset()
		case inKey:
			key.WriteRune(r)
		case r == '"':
			inQuote = !inQuote
		case r == ',' && !inQuote:
			flush()
		default:
			val.WriteRune(r)
		}
	}
	if !inKey {
		flush()
	}
	return attrs
}

// MediaInfo is what a media playlist says about its stream.
type MediaInfo struct {
	Duration       *int
	TotalSeconds   float64
	IsLive         bool
	IsEncrypted    bool
	EncryptionType string
	Version        int
	TargetDuration int
	MediaSequence  int64
	SegmentCount   int
	PlaylistType   string
}

// ParseMediaPlaylist sums segment durations and reads liveness, encryption
// and version. Duration is nil when there are no segments.
func ParseMediaPlaylist(content string) MediaInfo {
	info := MediaInfo{IsLive: true, Version: 1}
	endList := false

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(line, "#EXTINF:"):
			durStr, _, _ := strings.Cut(strings.TrimPrefix(line, "#EXTINF:"), ",")
			if dur, err := strconv.ParseFloat(strings.TrimSpace(durStr), 64); err == nil && dur >= 0 {
				info.TotalSeconds += dur
			}
			info.SegmentCount++

		case line == "#EXT-X-ENDLIST":
			endList = true

		case strings.HasPrefix(line, "#EXT-X-KEY:"):
			attrs := parseAttributeList(strings.TrimPrefix(line, "#EXT-X-KEY:"))
			method := strings.ToUpper(attrs["METHOD"])
			if method != "" && method != "NONE" && !info.IsEncrypted {
				info.IsEncrypted = true
				info.EncryptionType = method
			}

		case strings.HasPrefix(line, "#EXT-X-VERSION:"):
			if v, err := strconv.Atoi(strings.TrimPrefix(line, "#EXT-X-VERSION:")); err == nil && v > 0 {
				info.Version = v
			}

		case strings.HasPrefix(line, "#EXT-X-TARGETDURATION:"):
			info.TargetDuration, _ = strconv.Atoi(strings.TrimPrefix(line, "#EXT-X-TARGETDURATION:"))

		case strings.HasPrefix(line, "#EXT-X-MEDIA-SEQUENCE:"):
			info.MediaSequence, _ = strconv.ParseInt(strings.TrimPrefix(line, "#EXT-X-MEDIA-SEQUENCE:"), 10, 64)

		case strings.HasPrefix(line, "#EXT-X-PLAYLIST-TYPE:"):
			info.PlaylistType = strings.ToUpper(strings.TrimPrefix(line, "#EXT-X-PLAYLIST-TYPE:"))
		}
	}

	info.IsLive = !endList
	if info.SegmentCount > 0 {
		info.Duration = intPtr(int(math.Round(info.TotalSeconds)))
	}
	return info
}

type enrichOutcome struct {
	index int
	info  MediaInfo
	err   error
}

// Enrich fetches every variant's media playlist concurrently. A failed
// variant is marked live with unknown duration; the others are unaffected.
// Variants are re-sorted by height, then bandwidth, highest first.
func (p *HLSParser) Enrich(ctx context.Context, variants []*models.Variant, headers map[string]string) {
	if len(variants) == 0 {
		return
	}

	workers := pool.NewWithResults[enrichOutcome]().WithMaxGoroutines(p.opts.MaxConcurrency)
	for i, v := range variants {
		workers.Go(func() enrichOutcome {
			return p.enrichOne(ctx, i, v.URL, headers)
		})
	}

	for _, out := range workers.Wait() {
		v := variants[out.index]
		if out.err != nil {
			p.logger.Warn("variant enrichment failed", "variant", v.URL, "err", out.err)
			v.Duration = nil
			v.IsLive = true
			v.EnrichmentError = out.err.Error()
			continue
		}
		v.Duration = out.info.Duration
		v.IsLive = out.info.IsLive
		v.IsEncrypted = out.info.IsEncrypted
		v.EncryptionType = out.info.EncryptionType
		v.Version = out.info.Version
	}

	for _, v := range variants {
		v.EstimatedFileSizeBytes = estimateSize(v.Bandwidth, v.Duration)
	}

	sort.SliceStable(variants, func(i, j int) bool {
		if variants[i].Height != variants[j].Height {
			return variants[i].Height > variants[j].Height
		}
		return variants[i].SortBandwidth() > variants[j].SortBandwidth()
	})
}

func (p *HLSParser) enrichOne(ctx context.Context, index int, variantURL string, headers map[string]string) (out enrichOutcome) {
	out.index = index
	defer func() {
		if r := recover(); r != nil {
			out.err = fmt.Errorf("enrich %s: panic: %v", variantURL, r)
		}
	}()

	res := p.fetcher.FetchManifest(ctx, variantURL, httpclient.ManifestOptions{
		Headers:    headers,
		Timeout:    p.opts.VariantTimeout,
		MaxRetries: p.opts.MaxRetries,
		RetryDelay: p.opts.RetryDelay,
	})
	if !res.OK {
		out.err = res.Err()
		return out
	}
	if !strings.Contains(res.Content, sigExtInf) && !strings.Contains(res.Content, "#EXTM3U") {
		out.err = fmt.Errorf("enrich %s: %w", variantURL, errNotMediaPlaylist)
		return out
	}
	out.info = ParseMediaPlaylist(res.Content)
	return out
}

// parseContent builds the result from a complete playlist.
func (p *HLSParser) parseContent(ctx context.Context, rawURL, normalized, content string, headers map[string]string) *models.Result {
	res := &models.Result{
		URL:            rawURL,
		NormalizedURL:  normalized,
		Type:           models.ManifestHLS,
		IsValid:        true,
		Status:         models.StatusSuccess,
		VideoTracks:    []*models.Track{},
		AudioTracks:    []*models.Track{},
		SubtitleTracks: []*models.Track{},
		Variants:       []*models.Variant{},
	}
	if p.opts.Lint {
		res.Warnings = lintHLS(content)
	}

	if !strings.Contains(content, sigStreamInf) {
		p.fillMedia(res, rawURL, normalized, content)
		return res
	}

	mp := ParseMasterPlaylist(content, rawURL)
	res.IsMaster = true
	p.Enrich(ctx, mp.Variants, headers)
	res.Variants = mp.Variants

	enriched, live := false, false
	for _, v := range mp.Variants {
		if v.EnrichmentError == "" {
			enriched = true
			live = live || v.IsLive
			if res.Duration == nil && v.Duration != nil {
				res.Duration = v.Duration
			}
		}
		if v.IsEncrypted && !res.IsEncrypted {
			res.IsEncrypted = true
			res.EncryptionType = v.EncryptionType
		}
		if v.Version > res.Version {
			res.Version = v.Version
		}
	}
	res.IsLive = !enriched || live
	if mp.Version > res.Version {
		res.Version = mp.Version
	}

	ids := newIDSet()
	for _, v := range mp.Variants {
		t := variantTrack(v)
		t.ID = ids.unique(t.ID)
		if t.Type == models.TrackAudio {
			res.AudioTracks = append(res.AudioTracks, t)
		} else {
			res.VideoTracks = append(res.VideoTracks, t)
		}
	}
	for _, r := range mp.Renditions {
		t := renditionTrack(r, mp.Variants, res)
		if t == nil {
			continue
		}
		t.ID = ids.unique(t.ID)
		switch t.Type {
		case models.TrackAudio:
			res.AudioTracks = append(res.AudioTracks, t)
		case models.TrackSubtitle:
			res.SubtitleTracks = append(res.SubtitleTracks, t)
		}
	}
	return res
}

// fillMedia handles a standalone media playlist: one variant, one track.
func (p *HLSParser) fillMedia(res *models.Result, rawURL, normalized, content string) {
	info := ParseMediaPlaylist(content)
	res.IsVariant = true
	res.Duration = info.Duration
	res.IsLive = info.IsLive
	res.IsEncrypted = info.IsEncrypted
	res.EncryptionType = info.EncryptionType
	res.Version = info.Version

	v := &models.Variant{
		ID:             "video_0",
		URL:            rawURL,
		NormalizedURL:  normalized,
		Duration:       info.Duration,
		IsLive:         info.IsLive,
		IsEncrypted:    info.IsEncrypted,
		EncryptionType: info.EncryptionType,
		Version:        info.Version,
	}
	res.Variants = []*models.Variant{v}
	res.VideoTracks = []*models.Track{variantTrack(v)}
}

func variantTrack(v *models.Variant) *models.Track {
	t := &models.Track{
		ID:                     v.ID,
		Type:                   models.TrackVideo,
		URL:                    v.URL,
		NormalizedURL:          v.NormalizedURL,
		GroupID:                v.AudioGroup,
		Codecs:                 v.Codecs,
		Bandwidth:              v.Bandwidth,
		AverageBandwidth:       v.AverageBandwidth,
		EstimatedFileSizeBytes: v.EstimatedFileSizeBytes,
		FrameRate:              v.FrameRate,
		Duration:               v.Duration,
		IsLive:                 v.IsLive,
		IsEncrypted:            v.IsEncrypted,
		EncryptionType:         v.EncryptionType,
		Version:                v.Version,
	}
	t.SetResolution(v.Resolution())
	if v.Height == 0 && v.Codecs != "" && models.VideoCodecOf(v.Codecs) == "" && models.AudioCodecOf(v.Codecs) != "" {
		t.Type = models.TrackAudio
		t.ID = strings.Replace(t.ID, "video_", "audio_", 1)
	}
	return t
}

// renditionTrack turns an #EXT-X-MEDIA entry with its own playlist into a
// track. Renditions without a URI are muxed into the variants.
func renditionTrack(r Rendition, variants []*models.Variant, res *models.Result) *models.Track {
	if r.URI == "" {
		return nil
	}
	t := &models.Track{
		URL:            r.URI,
		NormalizedURL:  urlnorm.Normalize(r.URI),
		GroupID:        r.GroupID,
		Language:       models.NormalizeLanguage(r.Language),
		Label:          r.Name,
		Duration:       res.Duration,
		IsLive:         res.IsLive,
		IsEncrypted:    res.IsEncrypted,
		EncryptionType: res.EncryptionType,
		Version:        res.Version,
	}
	switch r.Type {
	case "AUDIO":
		t.Type = models.TrackAudio
		t.ID = "audio_" + idPart(r.GroupID, r.Language, r.Name)
		for _, v := range variants {
			if v.AudioGroup == r.GroupID {
				t.Codecs = models.AudioCodecOf(v.Codecs)
				break
			}
		}
		if ch, _, _ := strings.Cut(r.Channels, "/"); ch != "" {
			t.Channels, _ = strconv.Atoi(ch)
		}
	case "SUBTITLES":
		t.Type = models.TrackSubtitle
		t.ID = "subtitle_" + idPart(r.GroupID, r.Language, r.Name)
		t.Codecs = "wvtt"
		t.MimeType = "text/vtt"
	default:
		return nil
	}
	return t
}

func idPart(parts ...string) string {
	var out []string
	for _, p := range parts {
		p = strings.Map(func(r rune) rune {
			if r == ' ' || r == '/' {
				return '-'
			}
			return r
		}, strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return "0"
	}
	return strings.Join(out, "_")
}

// idSet hands out unique track IDs.
type idSet map[string]int

func newIDSet() idSet { return make(idSet) }

func (s idSet) unique(id string) string {
	n := s[id]
	s[id] = n + 1
	if n == 0 {
		return id
	}
	candidate := fmt.Sprintf("%s_%d", id, n+1)
	for s[candidate] > 0 {
		n++
		candidate = fmt.Sprintf("%s_%d", id, n+1)
	}
	s[candidate] = 1
	return candidate
}
