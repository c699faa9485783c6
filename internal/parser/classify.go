package parser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mohaanymo/streamprobe/internal/dedup"
	"github.com/mohaanymo/streamprobe/internal/models"
	"github.com/mohaanymo/streamprobe/internal/urlnorm"
)

// Signatures looked for in the manifest prefix.
const (
	sigStreamInf      = "#EXT-X-STREAM-INF"
	sigExtInf         = "#EXTINF"
	sigMPDOpen        = "<MPD"
	sigMPDClose       = "</MPD"
	sigDASHNamespace  = "urn:mpeg:dash:schema:mpd"
	sigAdaptationSet  = "<AdaptationSet"
	sigRepresentation = "<Representation"
)

// Classifier performs the light parse: a small ranged fetch and a
// signature check, without parsing the document.
type Classifier struct {
	fetcher Fetcher
	dedup   *dedup.Deduplicator
	videos  VideoRegistry
	logger  *slog.Logger
	opts    Options
}

// NewClassifier creates a Classifier.
func NewClassifier(f Fetcher, opts ...Option) *Classifier {
	s := newSettings(opts)
	return &Classifier{
		fetcher: f,
		dedup:   s.dedup,
		videos:  s.videos,
		logger:  s.logger,
		opts:    s.opts,
	}
}

// Classify decides what rawURL points at. It never panics. A second call
// for a URL that is still being classified returns SubtypeProcessing.
func (c *Classifier) Classify(ctx context.Context, rawURL string, headers map[string]string, kind Kind) (cl models.Classification) {
	key := urlnorm.Normalize(rawURL)
	release, ok := c.dedup.Acquire(dedup.PhaseLight, key)
	if !ok {
		c.logger.Debug("classification already in flight", "url", rawURL, "phase", dedup.PhaseLight)
		return models.Classification{IsValid: true, Subtype: models.SubtypeProcessing}
	}
	defer release()

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("classification panic", "url", rawURL, "err", r)
			cl = models.Classification{Subtype: models.SubtypeParseError, Error: fmt.Sprint(r)}
		}
	}()

	var hint *models.VideoMetadata
	if c.videos != nil {
		if md, found := c.videos.GetVideoByURL(key); found {
			hint = md
		}
	}

	headConfirmed := false
	if c.opts.HeadProbe {
		head := c.fetcher.Head(ctx, rawURL, headers, c.opts.HeadTimeout)
		if head.OK {
			switch headVerdict(head.ContentType) {
			case headDASH:
				if kind == KindHLS {
					return models.Classification{Subtype: negativeSubtype(kind), ContentType: head.ContentType, Status: head.Status, Hint: hint}
				}
				headConfirmed = true
			case headNotManifest:
				c.logger.Debug("head says not a manifest", "url", rawURL, "content_type", head.ContentType)
				return models.Classification{Subtype: negativeSubtype(kind), ContentType: head.ContentType, Status: head.Status, Hint: hint}
			}
		}
	}

	res := c.fetcher.FetchRange(ctx, rawURL, headers, c.opts.RangeBytes, c.opts.LightTimeout)
	if !res.OK {
		c.logger.Debug("light fetch failed", "url", rawURL, "status", res.Status, "err", res.Error)
		return models.Classification{Subtype: models.SubtypeFetchFailed, Status: res.Status, Error: res.Error, Hint: hint}
	}

	cl = classifyContent(res.Content, kind)
	if !cl.IsValid && headConfirmed {
		cl = models.Classification{IsValid: true, Subtype: models.SubtypeDASHVariant, IsVariant: true}
	}
	cl.HeadConfirmed = headConfirmed
	cl.ContentType = res.ContentType
	cl.Status = res.Status
	cl.Hint = hint
	if cl.IsValid && !res.Truncated {
		cl.Content = res.Content
	}

	c.logger.Debug("classified", "url", rawURL, "subtype", cl.Subtype, "complete", cl.Content != "")
	return cl
}

// classifyContent matches manifest signatures. It only needs the
// signature substrings, so a truncated prefix is fine.
func classifyContent(content string, kind Kind) models.Classification {
	content = strings.TrimPrefix(content, "\uFEFF")

	if kind != KindDASH {
		switch {
		case strings.Contains(content, sigStreamInf):
			return models.Classification{IsValid: true, Subtype: models.SubtypeHLSMaster, IsMaster: true}
		case strings.Contains(content, sigExtInf):
			return models.Classification{IsValid: true, Subtype: models.SubtypeHLSVariant, IsVariant: true}
		}
	}

	if kind != KindHLS && strings.Contains(content, sigMPDOpen) &&
		(strings.Contains(content, sigMPDClose) || strings.Contains(content, sigDASHNamespace)) {
		if strings.Contains(content, sigAdaptationSet) && strings.Contains(content, sigRepresentation) {
			return models.Classification{IsValid: true, Subtype: models.SubtypeDASHMaster, IsMaster: true}
		}
		return models.Classification{IsValid: true, Subtype: models.SubtypeDASHVariant, IsVariant: true}
	}

	return models.Classification{Subtype: negativeSubtype(kind)}
}

func negativeSubtype(kind Kind) models.Subtype {
	switch kind {
	case KindHLS:
		return models.SubtypeNotAVideo
	case KindDASH:
		return models.SubtypeNotADASHVideo
	default:
		return models.SubtypeUnknownType
	}
}

type headResult int

const (
	headUnknown headResult = iota
	headDASH
	headNotManifest
)

// headVerdict interprets a HEAD Content-Type. Only clear answers count;
// anything else falls through to content inspection.
func headVerdict(contentType string) headResult {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch {
	case ct == "application/dash+xml" || ct == "video/vnd.mpeg.dash.mpd":
		return headDASH
	case ct == "audio/mpegurl" || ct == "audio/x-mpegurl":
		return headUnknown
	case ct == "video/mp4" || ct == "video/webm" || strings.HasPrefix(ct, "audio/"):
		return headNotManifest
	}
	return headUnknown
}
