package streamprobe

import (
	"github.com/mohaanymo/streamprobe/internal/container"
	"github.com/mohaanymo/streamprobe/internal/discover"
	"github.com/mohaanymo/streamprobe/internal/engine"
	"github.com/mohaanymo/streamprobe/internal/models"
	"github.com/mohaanymo/streamprobe/internal/parser"
	"github.com/mohaanymo/streamprobe/internal/probe"
)

// Parse output.
type (
	Result         = models.Result
	Track          = models.Track
	Variant        = models.Variant
	Resolution     = models.Resolution
	Status         = models.Status
	TrackType      = models.TrackType
	ManifestType   = models.ManifestType
	Classification = models.Classification
	Subtype        = models.Subtype
	VideoMetadata  = models.VideoMetadata
)

const (
	TrackVideo    = models.TrackVideo
	TrackAudio    = models.TrackAudio
	TrackSubtitle = models.TrackSubtitle

	ManifestHLS     = models.ManifestHLS
	ManifestDASH    = models.ManifestDASH
	ManifestUnknown = models.ManifestUnknown

	StatusSuccess     = models.StatusSuccess
	StatusNotHLS      = models.StatusNotHLS
	StatusNotDASH     = models.StatusNotDASH
	StatusFetchFailed = models.StatusFetchFailed
	StatusParseError  = models.StatusParseError
	StatusProcessing  = models.StatusProcessing
	StatusUnknownType = models.StatusUnknownType
)

// Kind tells Classify which manifest family to look for.
type Kind = parser.Kind

const (
	KindAuto = parser.KindAuto
	KindHLS  = parser.KindHLS
	KindDASH = parser.KindDASH
)

// Container inference.
type (
	ContainerOptions = container.Options
	Decision         = container.Decision
	Confidence       = container.Confidence
	ProbeResult      = probe.Result
)

// Discovery, batch runs and download plans.
type (
	Candidate      = discover.Candidate
	Job            = engine.Job
	Plan           = engine.Plan
	ProgressUpdate = engine.ProgressUpdate
)

// ErrNoTracks is returned when a selection or plan has nothing to work with.
var ErrNoTracks = engine.ErrNoTracks
