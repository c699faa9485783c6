package parser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mohaanymo/streamprobe/internal/container"
	"github.com/mohaanymo/streamprobe/internal/dedup"
	"github.com/mohaanymo/streamprobe/internal/httpclient"
	"github.com/mohaanymo/streamprobe/internal/models"
	"github.com/mohaanymo/streamprobe/internal/urlnorm"
)

// Manifest MIME types recorded in the video registry.
const (
	MimeHLS  = "application/vnd.apple.mpegurl"
	MimeDASH = "application/dash+xml"
)

// core is shared by the HLS and DASH parsers.
type core struct {
	fetcher    Fetcher
	classifier *Classifier
	dedup      *dedup.Deduplicator
	videos     VideoRegistry
	logger     *slog.Logger
	opts       Options
}

func newCore(f Fetcher, s settings) *core {
	return &core{
		fetcher: f,
		classifier: &Classifier{
			fetcher: f,
			dedup:   s.dedup,
			videos:  s.videos,
			logger:  s.logger,
			opts:    s.opts,
		},
		dedup:  s.dedup,
		videos: s.videos,
		logger: s.logger,
		opts:   s.opts,
	}
}

type contentParser func(ctx context.Context, rawURL, normalized, content string, headers map[string]string) *models.Result

// Parse classifies and fully parses an HLS playlist. It never panics; on
// failure the result is invalid with empty track lists.
func (p *HLSParser) Parse(ctx context.Context, rawURL string, headers map[string]string) *models.Result {
	return p.parseClassified(ctx, rawURL, headers, nil, time.Time{})
}

func (p *HLSParser) parseClassified(ctx context.Context, rawURL string, headers map[string]string, cl *models.Classification, lp time.Time) *models.Result {
	return p.run(ctx, KindHLS, rawURL, headers, cl, lp, p.parseContent)
}

// Parse classifies and fully parses a DASH manifest. It never panics; on
// failure the result is invalid with empty track lists.
func (p *DASHParser) Parse(ctx context.Context, rawURL string, headers map[string]string) *models.Result {
	return p.parseClassified(ctx, rawURL, headers, nil, time.Time{})
}

func (p *DASHParser) parseClassified(ctx context.Context, rawURL string, headers map[string]string, cl *models.Classification, lp time.Time) *models.Result {
	return p.run(ctx, KindDASH, rawURL, headers, cl, lp, p.parseContent)
}

// run is the shared full-parse flow: full-phase dedup, classification
// (unless already done), content reuse or fetch, parse, containers.
func (c *core) run(ctx context.Context, kind Kind, rawURL string, headers map[string]string, cl *models.Classification, lp time.Time, parse contentParser) (res *models.Result) {
	mt, negative := models.ManifestHLS, models.StatusNotHLS
	if kind == KindDASH {
		mt, negative = models.ManifestDASH, models.StatusNotDASH
	}
	normalized := urlnorm.Normalize(rawURL)
	if lp.IsZero() {
		lp = time.Now()
	}
	fail := func(status models.Status, msg string) *models.Result {
		r := models.NewFailedResult(rawURL, normalized, mt, status, msg)
		r.TimestampLP = lp
		r.TimestampFP = time.Now()
		return r
	}

	release, ok := c.dedup.Acquire(dedup.PhaseFull, normalized)
	if !ok {
		c.logger.Debug("parse already in flight", "url", rawURL, "phase", dedup.PhaseFull)
		return fail(models.StatusProcessing, "")
	}
	defer release()

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("manifest parse panic", "url", rawURL, "err", r)
			res = fail(models.StatusParseError, fmt.Sprint(r))
		}
	}()

	if cl == nil {
		lp = time.Now()
		got := c.classifier.Classify(ctx, rawURL, headers, kind)
		cl = &got
	}
	matches := cl.Subtype.IsHLS()
	if kind == KindDASH {
		matches = cl.Subtype.IsDASH()
	}
	if !matches {
		c.logger.Debug("not a manifest", "url", rawURL, "subtype", cl.Subtype)
		return fail(statusFor(cl.Subtype, negative), cl.Error)
	}

	content := cl.Content
	if content == "" {
		fr := c.fetcher.FetchManifest(ctx, rawURL, httpclient.ManifestOptions{
			Headers:    headers,
			Timeout:    c.opts.FullTimeout,
			MaxRetries: c.opts.MaxRetries,
			RetryDelay: c.opts.RetryDelay,
		})
		if !fr.OK {
			c.logger.Warn("manifest fetch failed", "url", rawURL, "status", fr.Status, "attempt", fr.Attempts, "err", fr.Error)
			return fail(models.StatusFetchFailed, fr.Error)
		}
		content = fr.Content
	}

	res = parse(ctx, rawURL, normalized, content, headers)
	assignContainers(res, kind)
	res.TimestampLP = lp
	res.TimestampFP = time.Now()
	c.remember(res)

	c.logger.Info("manifest parsed",
		"url", rawURL,
		"type", res.Type,
		"video", len(res.VideoTracks),
		"audio", len(res.AudioTracks),
		"subtitle", len(res.SubtitleTracks),
		"live", res.IsLive,
	)
	return res
}

// assignContainers fills each track's target container.
func assignContainers(res *models.Result, kind Kind) {
	protocol := container.ProtocolHLS
	if kind == KindDASH {
		protocol = container.ProtocolDASH
	}

	videoContainer := ""
	for _, t := range res.VideoTracks {
		d := container.Decide(container.Options{Codecs: t.Codecs, MimeType: t.MimeType, MediaKind: container.KindVideo, Protocol: protocol})
		t.Container, t.ContainerConfidence = d.Container, d.Confidence.String()
		if videoContainer == "" {
			videoContainer = d.Container
		}
	}
	for _, t := range res.AudioTracks {
		d := container.Decide(container.Options{Codecs: t.Codecs, MimeType: t.MimeType, MediaKind: container.KindAudio, Protocol: protocol})
		t.Container, t.ContainerConfidence = d.Container, d.Confidence.String()
	}
	for _, t := range res.SubtitleTracks {
		d := container.Decide(container.Options{
			Codecs:         t.Codecs,
			MimeType:       t.MimeType,
			URL:            t.URL,
			MediaKind:      container.KindSubtitle,
			Protocol:       protocol,
			VideoContainer: videoContainer,
		})
		t.Container, t.ContainerConfidence = d.Container, d.Confidence.String()
	}
}

func (c *core) remember(res *models.Result) {
	if c.videos == nil || !res.IsValid {
		return
	}
	md := &models.VideoMetadata{
		URL:           res.URL,
		NormalizedURL: res.NormalizedURL,
		Type:          res.Type,
		MimeType:      MimeHLS,
		Duration:      res.Duration,
		IsLive:        res.IsLive,
		SeenAt:        res.TimestampFP,
	}
	if res.Type == models.ManifestDASH {
		md.MimeType = MimeDASH
	}
	if len(res.VideoTracks) > 0 {
		md.Container = res.VideoTracks[0].Container
	}
	c.videos.Remember(md)
}
