package container

import (
	"regexp"
	"strings"
)

type probeEntry struct {
	name      string
	container string
	reason    string
}

// Ordered: "quicktime" must be checked before the shorter names it contains.
var probeTable = []probeEntry{
	{"quicktime", "mp4", "probe reported quicktime"},
	{"matroska", "webm", "probe reported matroska"},
	{"webm", "webm", "probe reported webm"},
	{"mkv", "mkv", "probe reported mkv"},
	{"mov", "mp4", "probe reported mov, normalize to mp4"},
	{"mp4", "mp4", "probe reported mp4"},
}

type codecEntry struct {
	container string
	kind      string
}

// Keyed by the lowercased codec prefix before the first dot.
var codecTable = map[string]codecEntry{
	// video
	"avc1":   {"mp4", KindVideo},
	"avc3":   {"mp4", KindVideo},
	"h264":   {"mp4", KindVideo},
	"hev1":   {"mp4", KindVideo},
	"hvc1":   {"mp4", KindVideo},
	"h265":   {"mp4", KindVideo},
	"hevc":   {"mp4", KindVideo},
	"dvh1":   {"mp4", KindVideo},
	"dvhe":   {"mp4", KindVideo},
	"av01":   {"mp4", KindVideo},
	"vp8":    {"webm", KindVideo},
	"vp08":   {"webm", KindVideo},
	"vp9":    {"webm", KindVideo},
	"vp09":   {"webm", KindVideo},
	"ffv1":   {"mkv", KindVideo},
	"theora": {"ogg", KindVideo},

	// audio
	"mp4a":   {"m4a", KindAudio},
	"aac":    {"m4a", KindAudio},
	"alac":   {"m4a", KindAudio},
	"ac-3":   {"mp4", KindAudio},
	"ec-3":   {"mp4", KindAudio},
	"opus":   {"webm", KindAudio},
	"vorbis": {"ogg", KindAudio},
	"flac":   {"flac", KindAudio},
	"mp3":    {"mp3", KindAudio},
	"dtsc":   {"mkv", KindAudio},
	"dtsh":   {"mkv", KindAudio},
	"dtsl":   {"mkv", KindAudio},
	"dtse":   {"mkv", KindAudio},
	"dts":    {"mkv", KindAudio},
	"truehd": {"mkv", KindAudio},
	"mlpa":   {"mkv", KindAudio},

	// subtitles
	"wvtt": {"vtt", KindSubtitle},
	"stpp": {"ttml", KindSubtitle},
}

var (
	videoCodecRe = regexp.MustCompile(`^(avc|hev|hvc|vp|av|dv|mp4v|h26|mpeg|theora|ffv|prores|apc)`)
	audioCodecRe = regexp.MustCompile(`^(mp4a|aac|ac|ec|opus|vorbis|flac|mp3|dts|alac|pcm|lpcm|mha|mhm)`)
)

// codecContainer maps one codec entry to a container and media kind.
// Codecs missing from the table are classified by pattern; anything
// unrecognized is treated as video.
func codecContainer(codec string) (container, kind string) {
	prefix := strings.ToLower(strings.TrimSpace(codec))
	if i := strings.IndexByte(prefix, '.'); i >= 0 {
		prefix = prefix[:i]
	}
	if e, ok := codecTable[prefix]; ok {
		return e.container, e.kind
	}
	switch {
	case audioCodecRe.MatchString(prefix) && !videoCodecRe.MatchString(prefix):
		return "mp3", KindAudio
	default:
		return "mp4", KindVideo
	}
}

var mimeTable = map[string]string{
	"video/mp4":                     "mp4",
	"video/quicktime":               "mp4",
	"video/x-m4v":                   "mp4",
	"video/webm":                    "webm",
	"video/x-matroska":              "mkv",
	"video/ogg":                     "ogg",
	"video/mp2t":                    "mp4",
	"video/x-flv":                   "mp4",
	"video/x-msvideo":               "mp4",
	"application/x-mpegurl":         "mp4",
	"application/vnd.apple.mpegurl": "mp4",
	"audio/mpegurl":                 "mp4",
	"audio/x-mpegurl":               "mp4",
	"application/dash+xml":          "mp4",
	"video/vnd.mpeg.dash.mpd":       "mp4",
	"audio/mp4":                     "m4a",
	"audio/x-m4a":                   "m4a",
	"audio/aac":                     "m4a",
	"audio/mpeg":                    "mp3",
	"audio/mp3":                     "mp3",
	"audio/webm":                    "webm",
	"audio/ogg":                     "ogg",
	"audio/flac":                    "flac",
	"audio/x-flac":                  "flac",
	"text/vtt":                      "vtt",
	"application/ttml+xml":          "ttml",
	"application/x-subrip":          "srt",
	"text/x-ssa":                    "ass",
}

var extensionTable = map[string]string{
	"mp4":  "mp4",
	"m4v":  "mp4",
	"mov":  "mp4",
	"avi":  "mp4",
	"flv":  "mp4",
	"ts":   "mp4",
	"m2ts": "mp4",
	"m3u8": "mp4",
	"mpd":  "mp4",
	"webm": "webm",
	"mkv":  "mkv",
	"ogv":  "ogg",
	"m4a":  "m4a",
	"aac":  "m4a",
	"mp3":  "mp3",
	"oga":  "ogg",
	"ogg":  "ogg",
	"opus": "webm",
	"flac": "flac",
	"vtt":  "vtt",
	"srt":  "srt",
	"sub":  "srt",
	"ttml": "ttml",
	"dfxp": "ttml",
	"ass":  "ass",
	"ssa":  "ass",
}
