package engine

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/language"

	"github.com/mohaanymo/streamprobe/internal/models"
)

// ErrNoTracks is returned when a result has nothing to select from.
var ErrNoTracks = errors.New("no tracks available")

// TrackSelector provides smart track selection from a list of tracks.
//
// Selector grammar, parts joined with "+":
//
//	best | all | all-video | all-audio | all-subs | bv | ba
//	1080p | 4k | en | aac                 bare shorthands
//	v:<res> | v:-<res> | v:<n>            closest, best at or below, index
//	a:<langs> | s:<langs>                 comma-separated languages
//	  en!   required        en*  all matches     ?  undefined language
//	  [>128k] [<2M] [1M-5M]                bandwidth filter suffix
type TrackSelector struct {
	Videos    []*models.Track
	Audios    []*models.Track
	Subtitles []*models.Track
}

// NewTrackSelector categorizes tracks by type. Videos and audios are
// ordered by bandwidth, highest first.
func NewTrackSelector(tracks []*models.Track) *TrackSelector {
	ts := &TrackSelector{}

	for _, t := range tracks {
		switch t.Type {
		case models.TrackAudio:
			ts.Audios = append(ts.Audios, t)
		case models.TrackSubtitle:
			ts.Subtitles = append(ts.Subtitles, t)
		default:
			ts.Videos = append(ts.Videos, t)
		}
	}

	sortByBandwidth := func(tracks []*models.Track) {
		sort.SliceStable(tracks, func(i, j int) bool {
			return tracks[i].Bandwidth > tracks[j].Bandwidth
		})
	}
	sortByBandwidth(ts.Videos)
	sortByBandwidth(ts.Audios)

	return ts
}

// Select selects tracks based on selector string.
func (ts *TrackSelector) Select(selector string) ([]*models.Track, error) {
	selector = strings.ToLower(strings.TrimSpace(selector))

	switch selector {
	case "all":
		var selected []*models.Track
		selected = append(selected, ts.Videos...)
		selected = append(selected, ts.Audios...)
		selected = append(selected, ts.Subtitles...)
		return selected, nil
	case "all-video":
		return ts.Videos, nil
	case "all-audio":
		return ts.Audios, nil
	case "all-subs", "all-subtitles":
		return ts.Subtitles, nil
	case "", "best", "best-video+best-audio":
		selector = "bv+ba"
	}

	var selected []*models.Track
	for _, part := range strings.Split(selector, "+") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		tracks, err := ts.selectPart(part)
		if err != nil {
			return nil, err
		}
		selected = appendUnique(selected, tracks...)
	}

	if len(selected) == 0 {
		selected = appendUnique(selected, first(ts.Videos)...)
		selected = appendUnique(selected, first(ts.Audios)...)
	}

	// Auto-add best audio if only video was selected
	hasVideo, hasAudio := false, false
	for _, t := range selected {
		switch t.Type {
		case models.TrackVideo:
			hasVideo = true
		case models.TrackAudio:
			hasAudio = true
		}
	}
	if hasVideo && !hasAudio {
		selected = appendUnique(selected, first(ts.Audios)...)
	}

	return selected, nil
}

func (ts *TrackSelector) selectPart(part string) ([]*models.Track, error) {
	switch part {
	case "bv", "best-video":
		return first(ts.Videos), nil
	case "ba", "best-audio":
		return first(ts.Audios), nil
	}

	if kind, spec, ok := strings.Cut(part, ":"); ok {
		switch kind {
		case "v", "video":
			return ts.selectVideo(spec), nil
		case "a", "audio":
			return ts.selectByLanguage(ts.Audios, spec, true)
		case "s", "sub", "subs", "subtitle":
			return ts.selectByLanguage(ts.Subtitles, spec, false)
		}
		return nil, fmt.Errorf("unknown track type %q in selector", kind)
	}

	if isResolutionSelector(part) {
		return optional(ts.findByResolution(ts.Videos, parseResolution(part))), nil
	}
	if isLanguage(part) {
		for _, t := range ts.Audios {
			if languageMatches(t.Language, part) {
				return []*models.Track{t}, nil
			}
		}
		return nil, nil
	}
	return optional(ts.findByCodec(part)), nil
}

func (ts *TrackSelector) selectVideo(spec string) []*models.Track {
	spec, minBW, maxBW := splitBandwidthFilter(spec)
	videos := filterBandwidth(ts.Videos, minBW, maxBW)

	switch {
	case spec == "" || spec == "best":
		return first(videos)
	case isIndex(spec):
		return optional(byIndex(videos, spec))
	case strings.HasPrefix(spec, "-") && isResolutionSelector(spec[1:]):
		return optional(bestAtOrBelow(videos, parseResolution(spec[1:])))
	case isResolutionSelector(spec):
		return optional(ts.findByResolution(videos, parseResolution(spec)))
	}
	for _, t := range videos {
		if strings.Contains(strings.ToLower(t.Codecs), spec) {
			return []*models.Track{t}
		}
	}
	return nil
}

// selectByLanguage handles "a:" and "s:" parts. When nothing matches and
// no language was required, audio falls back to the best track.
func (ts *TrackSelector) selectByLanguage(tracks []*models.Track, spec string, fallback bool) ([]*models.Track, error) {
	spec, minBW, maxBW := splitBandwidthFilter(spec)
	candidates := filterBandwidth(tracks, minBW, maxBW)

	if spec == "" || spec == "best" {
		return first(candidates), nil
	}
	if isIndex(spec) {
		return optional(byIndex(candidates, spec)), nil
	}

	var selected []*models.Track
	required := false
	for _, term := range strings.Split(spec, ",") {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		if term == "?" {
			for _, t := range candidates {
				if isUndefinedLanguage(t.Language) {
					selected = appendUnique(selected, t)
				}
			}
			continue
		}

		must := strings.HasSuffix(term, "!")
		term = strings.TrimSuffix(term, "!")
		all := strings.HasSuffix(term, "*")
		term = strings.TrimSuffix(term, "*")
		required = required || must

		var matched []*models.Track
		for _, t := range candidates {
			if languageMatches(t.Language, term) || (!isLanguage(term) && strings.Contains(strings.ToLower(t.Codecs), term)) {
				matched = append(matched, t)
				if !all {
					break
				}
			}
		}
		if len(matched) == 0 && must {
			return nil, fmt.Errorf("required language %q not available", term)
		}
		selected = appendUnique(selected, matched...)
	}

	if len(selected) == 0 && fallback && !required {
		return first(candidates), nil
	}
	return selected, nil
}

func byIndex(tracks []*models.Track, s string) *models.Track {
	idx, err := strconv.Atoi(s)
	if err != nil || idx < 0 || idx >= len(tracks) {
		return nil
	}
	return tracks[idx]
}

func isIndex(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil && !strings.HasPrefix(s, "-")
}

func isResolutionSelector(s string) bool {
	s = strings.ToLower(s)
	switch s {
	case "4k", "2k", "hd", "fhd", "sd":
		return true
	}
	if !strings.HasSuffix(s, "p") {
		return false
	}
	_, err := strconv.Atoi(strings.TrimSuffix(s, "p"))
	return err == nil
}

// parseResolution turns "1080p", "4k", "hd" into a target height.
func parseResolution(res string) int {
	switch strings.ToLower(res) {
	case "4k":
		return 2160
	case "2k":
		return 1440
	case "fhd":
		return 1080
	case "hd":
		return 720
	case "sd":
		return 480
	}
	h, _ := strconv.Atoi(strings.TrimSuffix(strings.ToLower(res), "p"))
	return h
}

// findByResolution returns the video whose height is closest to target.
func (ts *TrackSelector) findByResolution(videos []*models.Track, target int) *models.Track {
	var best *models.Track
	bestDiff := int(^uint(0) >> 1) // Max int

	for _, t := range videos {
		diff := abs(t.Height - target)
		if diff < bestDiff {
			bestDiff = diff
			best = t
		}
	}
	return best
}

// bestAtOrBelow returns the tallest video not exceeding max, preferring
// higher bandwidth on equal height.
func bestAtOrBelow(videos []*models.Track, max int) *models.Track {
	var best *models.Track
	for _, t := range videos {
		if t.Height > max {
			continue
		}
		if best == nil || t.Height > best.Height || (t.Height == best.Height && t.Bandwidth > best.Bandwidth) {
			best = t
		}
	}
	return best
}

func (ts *TrackSelector) findByCodec(codec string) *models.Track {
	codec = strings.ToLower(codec)

	// Check audio first
	for _, t := range ts.Audios {
		if strings.Contains(strings.ToLower(t.Codecs), codec) {
			return t
		}
	}
	for _, t := range ts.Videos {
		if strings.Contains(strings.ToLower(t.Codecs), codec) {
			return t
		}
	}
	return nil
}

// splitBandwidthFilter strips a trailing "[...]" filter.
func splitBandwidthFilter(spec string) (string, int64, int64) {
	open := strings.LastIndexByte(spec, '[')
	if open < 0 || !strings.HasSuffix(spec, "]") {
		return spec, 0, 0
	}
	minBW, maxBW := parseBandwidthRange(spec[open+1 : len(spec)-1])
	return strings.TrimSpace(spec[:open]), minBW, maxBW
}

// parseBandwidthRange parses ">128k", "<2M" and "1M-5M". Zero means
// unbounded.
func parseBandwidthRange(s string) (min, max int64) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, ">"):
		return parseBandwidth(s[1:]), 0
	case strings.HasPrefix(s, "<"):
		return 0, parseBandwidth(s[1:])
	}
	if lo, hi, ok := strings.Cut(s, "-"); ok {
		return parseBandwidth(lo), parseBandwidth(hi)
	}
	bw := parseBandwidth(s)
	return bw, bw
}

// parseBandwidth parses "128k", "2M", "1G" or a plain number of bits/s.
func parseBandwidth(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	mult := int64(1)
	switch s[len(s)-1] {
	case 'k', 'K':
		mult = 1_000
	case 'm', 'M':
		mult = 1_000_000
	case 'g', 'G':
		mult = 1_000_000_000
	}
	if mult > 1 {
		s = s[:len(s)-1]
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int64(f * float64(mult))
}

func filterBandwidth(tracks []*models.Track, min, max int64) []*models.Track {
	if min == 0 && max == 0 {
		return tracks
	}
	var out []*models.Track
	for _, t := range tracks {
		if min > 0 && t.Bandwidth < min {
			continue
		}
		if max > 0 && t.Bandwidth > max {
			continue
		}
		out = append(out, t)
	}
	return out
}

var languageNames = map[string]string{
	"english":    "en",
	"arabic":     "ar",
	"japanese":   "ja",
	"turkish":    "tr",
	"french":     "fr",
	"german":     "de",
	"spanish":    "es",
	"italian":    "it",
	"portuguese": "pt",
	"russian":    "ru",
	"chinese":    "zh",
	"korean":     "ko",
	"hindi":      "hi",
}

// normalizeLanguage reduces a language code or English name to its base
// language, folding ISO 639-2 and macrolanguage members ("arb" -> "ar").
func normalizeLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		return ""
	}
	if code, ok := languageNames[lang]; ok {
		return code
	}
	tag, err := language.All.Parse(lang)
	if err != nil {
		return lang
	}
	base, _ := tag.Base()
	return base.String()
}

func languageMatches(trackLang, want string) bool {
	a, b := normalizeLanguage(trackLang), normalizeLanguage(want)
	return a != "" && a == b
}

func isLanguage(s string) bool {
	if _, ok := languageNames[s]; ok {
		return true
	}
	if len(s) != 2 && len(s) != 3 {
		return false
	}
	_, err := language.ParseBase(s)
	return err == nil
}

func isUndefinedLanguage(lang string) bool {
	switch normalizeLanguage(lang) {
	case "", "und", "mul", "zxx":
		return true
	}
	return false
}

func first(tracks []*models.Track) []*models.Track {
	if len(tracks) == 0 {
		return nil
	}
	return tracks[:1]
}

func optional(t *models.Track) []*models.Track {
	if t == nil {
		return nil
	}
	return []*models.Track{t}
}

func appendUnique(dst []*models.Track, tracks ...*models.Track) []*models.Track {
	for _, t := range tracks {
		dup := false
		for _, d := range dst {
			if d == t {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, t)
		}
	}
	return dst
}

// SelectTracks applies selector to a parse result.
func SelectTracks(res *models.Result, selector string) ([]*models.Track, error) {
	if res == nil || len(res.Tracks()) == 0 {
		return nil, ErrNoTracks
	}

	selected, err := NewTrackSelector(res.Tracks()).Select(selector)
	if err != nil {
		return nil, err
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("no tracks matched selector: %s", selector)
	}
	return selected, nil
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
