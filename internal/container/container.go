// Package container picks the output container for a stream from whatever
// is known about it: a prior probe, codecs, MIME type, URL or media kind.
package container

import (
	"fmt"
	"strings"
)

// Confidence ranks how reliable a decision is. Higher values win.
type Confidence int

const (
	None Confidence = iota
	Fallback
	Low
	Medium
	High
	Highest
)

func (c Confidence) String() string {
	switch c {
	case Highest:
		return "highest"
	case High:
		return "high"
	case Medium:
		return "medium"
	case Low:
		return "low"
	case Fallback:
		return "fallback"
	default:
		return "none"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c Confidence) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Confidence) UnmarshalText(b []byte) error {
	for v := None; v <= Highest; v++ {
		if v.String() == strings.ToLower(string(b)) {
			*c = v
			return nil
		}
	}
	return fmt.Errorf("unknown confidence %q", string(b))
}

// Media kinds.
const (
	KindVideo    = "video"
	KindAudio    = "audio"
	KindSubtitle = "subtitle"
)

// Streaming protocols.
const (
	ProtocolHLS    = "hls"
	ProtocolDASH   = "dash"
	ProtocolDirect = "direct"
)

// Options is everything known about the stream. Any subset may be set.
type Options struct {
	ProbeContainer string `json:"probeContainer,omitempty"`
	Codecs         string `json:"codecs,omitempty"`
	MimeType       string `json:"mimeType,omitempty"`
	URL            string `json:"url,omitempty"`
	MediaKind      string `json:"mediaKind,omitempty"`

	// Protocol and VideoContainer only matter for subtitles.
	Protocol       string `json:"protocol,omitempty"`
	VideoContainer string `json:"videoContainer,omitempty"`

	// Separate additionally decides video and audio containers independently.
	Separate bool `json:"separate,omitempty"`
}

// Decision is the chosen container and how it was reached.
type Decision struct {
	Container   string     `json:"container"`
	Confidence  Confidence `json:"confidence"`
	Reason      string     `json:"reason"`
	AllAttempts []Decision `json:"allAttempts,omitempty"`

	Video *Decision `json:"video,omitempty"`
	Audio *Decision `json:"audio,omitempty"`
}

// Decide runs the fallback chain. Every step is evaluated so AllAttempts
// explains the result; the first step that yields a container wins.
func Decide(opts Options) Decision {
	steps := []func(Options) Decision{
		fromProbe,
		fromCodecs,
		fromMime,
		fromExtension,
		fromKind,
	}

	var (
		chosen   Decision
		attempts = make([]Decision, 0, len(steps))
	)
	for _, step := range steps {
		d := step(opts)
		attempts = append(attempts, d)
		if chosen.Container == "" && d.Container != "" {
			chosen = d
		}
	}

	if strings.EqualFold(opts.MediaKind, KindSubtitle) && chosen.Confidence <= Fallback {
		override := subtitleForProtocol(opts.Protocol, opts.VideoContainer)
		attempts = append(attempts, override)
		chosen = override
	}

	chosen.AllAttempts = attempts
	if opts.Separate {
		v, a := separate(opts.Codecs)
		chosen.Video, chosen.Audio = &v, &a
	}
	return chosen
}

func none(reason string) Decision {
	return Decision{Confidence: None, Reason: reason}
}

func fromProbe(opts Options) Decision {
	probe := strings.ToLower(strings.TrimSpace(opts.ProbeContainer))
	if probe == "" {
		return none("no probe result")
	}
	for _, e := range probeTable {
		if probe == e.name || strings.Contains(probe, e.name) {
			return Decision{Container: e.container, Confidence: Highest, Reason: e.reason}
		}
	}
	return none(fmt.Sprintf("probe container %q not recognized", probe))
}

func fromCodecs(opts Options) Decision {
	codecs := splitCodecs(opts.Codecs)
	if len(codecs) == 0 {
		return none("no codecs")
	}

	var t tally
	for _, c := range codecs {
		container, _ := codecContainer(c)
		t.add(container)
	}

	winner, votes := t.winner()
	conf := Medium
	if votes == len(codecs) {
		conf = High
	}
	return Decision{
		Container:  winner,
		Confidence: conf,
		Reason:     fmt.Sprintf("codecs %s: %d/%d votes for %s", strings.Join(codecs, ","), votes, len(codecs), winner),
	}
}

func fromMime(opts Options) Decision {
	mime := strings.ToLower(strings.TrimSpace(opts.MimeType))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	if mime == "" {
		return none("no mime type")
	}
	if c, ok := mimeTable[mime]; ok {
		return Decision{Container: c, Confidence: High, Reason: "mime type " + mime}
	}
	switch {
	case strings.HasPrefix(mime, "video/"):
		return Decision{Container: "mp4", Confidence: Medium, Reason: "unknown video mime type " + mime}
	case strings.HasPrefix(mime, "audio/"):
		return Decision{Container: "mp3", Confidence: Medium, Reason: "unknown audio mime type " + mime}
	}
	return none("mime type " + mime + " not recognized")
}

func fromExtension(opts Options) Decision {
	ext := extensionOf(opts.URL)
	if ext == "" {
		return none("no url extension")
	}
	if c, ok := extensionTable[ext]; ok {
		return Decision{Container: c, Confidence: Low, Reason: "url extension ." + ext}
	}
	return none("url extension ." + ext + " not recognized")
}

func fromKind(opts Options) Decision {
	switch strings.ToLower(opts.MediaKind) {
	case KindAudio:
		return Decision{Container: "mp3", Confidence: Fallback, Reason: "default for audio"}
	case KindSubtitle:
		return Decision{Container: "srt", Confidence: Fallback, Reason: "default for subtitles"}
	default:
		return Decision{Container: "mp4", Confidence: Fallback, Reason: "default for video"}
	}
}

func subtitleForProtocol(protocol, videoContainer string) Decision {
	switch strings.ToLower(protocol) {
	case ProtocolHLS:
		return Decision{Container: "vtt", Confidence: Low, Reason: "hls subtitles are webvtt"}
	case ProtocolDASH:
		if strings.EqualFold(videoContainer, "webm") {
			return Decision{Container: "vtt", Confidence: Low, Reason: "dash subtitles alongside webm video"}
		}
		return Decision{Container: "ttml", Confidence: Low, Reason: "dash subtitles"}
	default:
		return Decision{Container: "srt", Confidence: Low, Reason: "subtitles without protocol context"}
	}
}

// separate decides video and audio containers from the first codec of each kind.
func separate(codecs string) (video, audio Decision) {
	video = Decision{Container: "mp4", Confidence: Fallback, Reason: "no video codec, default mp4"}
	audio = Decision{Container: "mp3", Confidence: Fallback, Reason: "no audio codec, mp3 is always safe"}

	var haveVideo, haveAudio bool
	for _, c := range splitCodecs(codecs) {
		container, kind := codecContainer(c)
		switch {
		case kind == KindVideo && !haveVideo:
			video = Decision{Container: container, Confidence: High, Reason: "video codec " + c}
			haveVideo = true
		case kind == KindAudio && !haveAudio:
			audio = Decision{Container: container, Confidence: High, Reason: "audio codec " + c}
			haveAudio = true
		}
	}
	return video, audio
}

func splitCodecs(codecs string) []string {
	var out []string
	for _, c := range strings.Split(codecs, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// tally counts votes and remembers first-seen order for tie-breaks.
type tally struct {
	order  []string
	counts map[string]int
}

func (t *tally) add(container string) {
	if t.counts == nil {
		t.counts = make(map[string]int)
	}
	if _, ok := t.counts[container]; !ok {
		t.order = append(t.order, container)
	}
	t.counts[container]++
}

func (t *tally) winner() (string, int) {
	var best string
	bestVotes := 0
	for _, c := range t.order {
		if t.counts[c] > bestVotes {
			best, bestVotes = c, t.counts[c]
		}
	}
	return best, bestVotes
}

func extensionOf(rawURL string) string {
	s := rawURL
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		s = s[i+1:]
	}
	i := strings.LastIndexByte(s, '.')
	if i < 0 || i == len(s)-1 {
		return ""
	}
	return strings.ToLower(s[i+1:])
}
