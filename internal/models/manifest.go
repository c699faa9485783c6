// Package models defines core data structures for parsed streaming manifests.
package models

import (
	"fmt"
	"strings"
	"time"
)

// ManifestType represents the type of streaming manifest.
type ManifestType int

const (
	ManifestHLS ManifestType = iota
	ManifestDASH
	ManifestUnknown
)

func (t ManifestType) String() string {
	switch t {
	case ManifestHLS:
		return "hls"
	case ManifestDASH:
		return "dash"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t ManifestType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *ManifestType) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "hls":
		*t = ManifestHLS
	case "dash":
		*t = ManifestDASH
	case "unknown":
		*t = ManifestUnknown
	default:
		return fmt.Errorf("unknown manifest type %q", string(b))
	}
	return nil
}

// Status explains the outcome of a full manifest parse.
type Status string

const (
	StatusSuccess     Status = "success"
	StatusNotHLS      Status = "not-hls"
	StatusNotDASH     Status = "not-dash"
	StatusFetchFailed Status = "fetch-failed"
	StatusParseError  Status = "parse-error"
	StatusProcessing  Status = "processing"
	StatusUnknownType Status = "unknown-type"
)

// Result is the top-level output of a manifest parse.
// When IsValid is false every track slice is empty and Status says why.
type Result struct {
	URL            string       `json:"url"`
	NormalizedURL  string       `json:"normalizedUrl"`
	Type           ManifestType `json:"type"`
	IsValid        bool         `json:"isValid"`
	IsMaster       bool         `json:"isMaster"`
	IsVariant      bool         `json:"isVariant"`
	Duration       *int         `json:"duration"`
	IsLive         bool         `json:"isLive"`
	IsEncrypted    bool         `json:"isEncrypted"`
	EncryptionType string       `json:"encryptionType,omitempty"`
	Version        int          `json:"version,omitempty"`

	VideoTracks    []*Track   `json:"videoTracks"`
	AudioTracks    []*Track   `json:"audioTracks"`
	SubtitleTracks []*Track   `json:"subtitleTracks"`
	Variants       []*Variant `json:"variants"`

	Status   Status   `json:"status"`
	Error    string   `json:"error,omitempty"`
	Warnings []string `json:"warnings,omitempty"`

	TimestampLP time.Time `json:"timestampLP"`
	TimestampFP time.Time `json:"timestampFP"`
}

// NewFailedResult builds an invalid result with empty track lists.
func NewFailedResult(url, normalizedURL string, typ ManifestType, status Status, errMsg string) *Result {
	return &Result{
		URL:            url,
		NormalizedURL:  normalizedURL,
		Type:           typ,
		Status:         status,
		Error:          errMsg,
		VideoTracks:    []*Track{},
		AudioTracks:    []*Track{},
		SubtitleTracks: []*Track{},
		Variants:       []*Variant{},
	}
}

// Tracks returns all tracks in video, audio, subtitle order.
func (r *Result) Tracks() []*Track {
	all := make([]*Track, 0, len(r.VideoTracks)+len(r.AudioTracks)+len(r.SubtitleTracks))
	all = append(all, r.VideoTracks...)
	all = append(all, r.AudioTracks...)
	all = append(all, r.SubtitleTracks...)
	return all
}

// TrackType represents the type of media track.
type TrackType int

const (
	TrackVideo TrackType = iota
	TrackAudio
	TrackSubtitle
)

func (t TrackType) String() string {
	switch t {
	case TrackVideo:
		return "video"
	case TrackAudio:
		return "audio"
	case TrackSubtitle:
		return "subtitle"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t TrackType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *TrackType) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "video":
		*t = TrackVideo
	case "audio":
		*t = TrackAudio
	case "subtitle":
		*t = TrackSubtitle
	default:
		return fmt.Errorf("unknown track type %q", string(b))
	}
	return nil
}

// Track represents a media track (video, audio, or subtitle).
// Fields below the enrichment marker may be filled in after creation.
type Track struct {
	ID            string    `json:"id"`
	Type          TrackType `json:"type"`
	URL           string    `json:"url,omitempty"`
	NormalizedURL string    `json:"normalizedUrl,omitempty"`
	GroupID       string    `json:"groupId,omitempty"`

	Codecs                 string `json:"codecs,omitempty"`
	MimeType               string `json:"mimeType,omitempty"`
	Bandwidth              int64  `json:"bandwidth,omitempty"`
	AverageBandwidth       int64  `json:"averageBandwidth,omitempty"`
	EstimatedFileSizeBytes int64  `json:"estimatedFileSizeBytes,omitempty"`
	Language               string `json:"lang,omitempty"`
	Label                  string `json:"label,omitempty"`

	// Video
	Resolution             Resolution `json:"-"`
	Width                  int        `json:"width,omitempty"`
	Height                 int        `json:"height,omitempty"`
	ResolutionLabel        string     `json:"resolution,omitempty"`
	StandardizedResolution string     `json:"standardizedResolution,omitempty"`
	FrameRate              float64    `json:"frameRate,omitempty"`

	// Audio
	AudioSamplingRate    int    `json:"audioSamplingRate,omitempty"`
	Channels             int    `json:"channels,omitempty"`
	ChannelConfiguration string `json:"channelConfiguration,omitempty"`

	Segments *SegmentAddressing `json:"segments,omitempty"`

	Container           string `json:"container,omitempty"`
	ContainerConfidence string `json:"containerConfidence,omitempty"`

	// Enrichment
	Duration       *int   `json:"duration"`
	IsLive         bool   `json:"isLive"`
	IsEncrypted    bool   `json:"isEncrypted"`
	EncryptionType string `json:"encryptionType,omitempty"`
	Version        int    `json:"version,omitempty"`
}

// SetResolution sets the resolution and the derived labels together.
func (t *Track) SetResolution(r Resolution) {
	t.Resolution = r
	t.Width = r.Width
	t.Height = r.Height
	t.ResolutionLabel = r.String()
	t.StandardizedResolution = r.Standardized()
}

// IsVideo returns true if track is a video track.
func (t *Track) IsVideo() bool {
	if t.Type == TrackVideo {
		return true
	}
	if t.Resolution.Height > 0 {
		return true
	}
	return hasVideoCodec(t.Codecs)
}

// IsAudio returns true if track is an audio track.
func (t *Track) IsAudio() bool {
	if t.Type == TrackAudio {
		return true
	}
	return hasAudioCodec(t.Codecs) && !hasVideoCodec(t.Codecs)
}

// IsSubtitle returns true if track is a subtitle track.
func (t *Track) IsSubtitle() bool {
	if t.Type == TrackSubtitle {
		return true
	}
	return hasSubtitleCodec(t.Codecs)
}

// Variant is one quality option in the legacy quality-list view.
type Variant struct {
	ID                     string  `json:"id"`
	URL                    string  `json:"url"`
	NormalizedURL          string  `json:"normalizedUrl"`
	Bandwidth              int64   `json:"bandwidth"`
	AverageBandwidth       int64   `json:"averageBandwidth,omitempty"`
	Codecs                 string  `json:"codecs,omitempty"`
	Width                  int     `json:"width,omitempty"`
	Height                 int     `json:"height,omitempty"`
	StandardizedResolution string  `json:"standardizedResolution,omitempty"`
	FrameRate              float64 `json:"frameRate,omitempty"`
	AudioGroup             string  `json:"audioGroup,omitempty"`
	SubtitleGroup          string  `json:"subtitleGroup,omitempty"`

	Duration               *int   `json:"duration"`
	IsLive                 bool   `json:"isLive"`
	IsEncrypted            bool   `json:"isEncrypted"`
	EncryptionType         string `json:"encryptionType,omitempty"`
	Version                int    `json:"version,omitempty"`
	EstimatedFileSizeBytes int64  `json:"estimatedFileSizeBytes,omitempty"`
	EnrichmentError        string `json:"enrichmentError,omitempty"`
}

// Resolution returns the variant's dimensions.
func (v *Variant) Resolution() Resolution {
	return Resolution{Width: v.Width, Height: v.Height}
}

// SortBandwidth is the bandwidth used for quality ordering.
func (v *Variant) SortBandwidth() int64 {
	if v.AverageBandwidth > 0 {
		return v.AverageBandwidth
	}
	return v.Bandwidth
}

// SegmentAddressing describes how DASH segments are located.
type SegmentAddressing struct {
	BaseURL           string           `json:"baseUrl,omitempty"`
	InitializationURL string           `json:"initializationUrl,omitempty"`
	Template          *SegmentTemplate `json:"template,omitempty"`
	Base              *SegmentBase     `json:"base,omitempty"`
	List              *SegmentList     `json:"list,omitempty"`
	SegmentCount      int              `json:"segmentCount,omitempty"`
}

// SegmentTemplate mirrors the DASH SegmentTemplate attributes we care about.
type SegmentTemplate struct {
	Media           string `json:"media,omitempty"`
	Initialization  string `json:"initialization,omitempty"`
	Timescale       int64  `json:"timescale,omitempty"`
	Duration        int64  `json:"duration,omitempty"`
	StartNumber     int64  `json:"startNumber,omitempty"`
	TimelineEntries int    `json:"timelineEntries,omitempty"`
	TimelineUnits   int64  `json:"-"`
}

// SegmentBase mirrors DASH SegmentBase.
type SegmentBase struct {
	IndexRange     string `json:"indexRange,omitempty"`
	Initialization string `json:"initialization,omitempty"`
	Timescale      int64  `json:"timescale,omitempty"`
}

// SegmentList mirrors DASH SegmentList.
type SegmentList struct {
	Initialization string `json:"initialization,omitempty"`
	Timescale      int64  `json:"timescale,omitempty"`
	Duration       int64  `json:"duration,omitempty"`
	Count          int    `json:"count"`
}

// Resolution represents video dimensions.
type Resolution struct {
	Width  int
	Height int
}

func (r Resolution) String() string {
	if r.Width == 0 && r.Height == 0 {
		return ""
	}
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// QualityLabel returns a human-readable quality label (e.g., "1080p").
func (r Resolution) QualityLabel() string {
	switch {
	case r.Height >= 2160:
		return "4K"
	case r.Height >= 1440:
		return "1440p"
	case r.Height >= 1080:
		return "1080p"
	case r.Height >= 720:
		return "720p"
	case r.Height >= 480:
		return "480p"
	case r.Height >= 360:
		return "360p"
	case r.Height > 0:
		return fmt.Sprintf("%dp", r.Height)
	default:
		return ""
	}
}

var standardHeights = []int{144, 240, 360, 480, 720, 1080, 1440, 2160, 4320}

// Standardized buckets the shorter side into the nearest standard label.
// Ties resolve to the lower bucket; unknown dimensions return "".
func (r Resolution) Standardized() string {
	side := r.Height
	if r.Width > 0 && r.Height > 0 && r.Width < r.Height {
		side = r.Width
	}
	if side <= 0 {
		return ""
	}
	best := standardHeights[0]
	bestDiff := abs(side - best)
	for _, h := range standardHeights[1:] {
		if d := abs(side - h); d < bestDiff {
			best, bestDiff = h, d
		}
	}
	return fmt.Sprintf("%dp", best)
}

// VideoMetadata is what the video registry remembers about a URL.
type VideoMetadata struct {
	URL           string       `json:"url"`
	NormalizedURL string       `json:"normalizedUrl"`
	Type          ManifestType `json:"type"`
	MimeType      string       `json:"mimeType,omitempty"`
	Container     string       `json:"container,omitempty"`
	Duration      *int         `json:"duration"`
	IsLive        bool         `json:"isLive"`
	SeenAt        time.Time    `json:"seenAt"`
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
