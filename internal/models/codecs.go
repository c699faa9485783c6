package models

import "strings"

// Codec detection helpers shared by the parsers and the selector.
var (
	audioCodecs    = []string{"mp4a", "aac", "ac-3", "ec-3", "opus", "vorbis", "flac", "mp3", "dts", "alac"}
	videoCodecs    = []string{"avc", "h264", "hevc", "h265", "hvc1", "hev1", "vp9", "vp09", "vp8", "vp08", "av01", "av1", "dvh1", "dvhe"}
	subtitleCodecs = []string{"stpp", "wvtt", "ttml", "webvtt", "vtt", "srt"}
)

func containsAny(codec string, list []string) bool {
	codec = strings.ToLower(codec)
	for _, c := range list {
		if strings.Contains(codec, c) {
			return true
		}
	}
	return false
}

func hasAudioCodec(codec string) bool    { return containsAny(codec, audioCodecs) }
func hasVideoCodec(codec string) bool    { return containsAny(codec, videoCodecs) }
func hasSubtitleCodec(codec string) bool { return containsAny(codec, subtitleCodecs) }

// HasAudioCodec is exported for use by other packages.
func HasAudioCodec(codec string) bool { return hasAudioCodec(codec) }

// HasVideoCodec is exported for use by other packages.
func HasVideoCodec(codec string) bool { return hasVideoCodec(codec) }

// HasSubtitleCodec is exported for use by other packages.
func HasSubtitleCodec(codec string) bool { return hasSubtitleCodec(codec) }

// SplitCodecs splits a CODECS attribute into trimmed, non-empty entries.
func SplitCodecs(codecs string) []string {
	var out []string
	for _, c := range strings.Split(codecs, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// AudioCodecOf returns the first audio codec in a combined codec string.
func AudioCodecOf(codecs string) string {
	for _, c := range SplitCodecs(codecs) {
		if hasAudioCodec(c) && !hasVideoCodec(c) {
			return c
		}
	}
	return ""
}

// VideoCodecOf returns the first video codec in a combined codec string.
func VideoCodecOf(codecs string) string {
	for _, c := range SplitCodecs(codecs) {
		if hasVideoCodec(c) {
			return c
		}
	}
	return ""
}
