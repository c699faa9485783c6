// Package parser classifies and parses HLS and DASH manifests into the
// track-oriented model in internal/models.
package parser

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/mohaanymo/streamprobe/internal/dedup"
	"github.com/mohaanymo/streamprobe/internal/httpclient"
	"github.com/mohaanymo/streamprobe/internal/models"
	"github.com/mohaanymo/streamprobe/internal/urlnorm"
)

//go:generate mockgen -destination=fetcher_mock_test.go -package=parser . Fetcher

// Fetcher is the subset of httpclient.Fetcher the parsers need.
type Fetcher interface {
	FetchRange(ctx context.Context, rawURL string, headers map[string]string, rangeBytes int, timeout time.Duration) httpclient.FetchResult
	FetchFull(ctx context.Context, rawURL string, headers map[string]string, timeout time.Duration) httpclient.FetchResult
	FetchManifest(ctx context.Context, rawURL string, opts httpclient.ManifestOptions) httpclient.ManifestFetchResult
	Head(ctx context.Context, rawURL string, headers map[string]string, timeout time.Duration) httpclient.FetchResult
}

// VideoRegistry remembers what is known about URLs. Optional.
type VideoRegistry interface {
	GetVideoByURL(rawURL string) (*models.VideoMetadata, bool)
	Remember(md *models.VideoMetadata)
}

// Parser defines the interface for manifest parsers.
type Parser interface {
	Parse(ctx context.Context, url string, headers map[string]string) *models.Result
	CanParse(url string) bool
}

// Kind tells the classifier which manifest family to look for.
type Kind int

const (
	KindAuto Kind = iota
	KindHLS
	KindDASH
)

func (k Kind) String() string {
	switch k {
	case KindHLS:
		return "hls"
	case KindDASH:
		return "dash"
	default:
		return "auto"
	}
}

// Tunables.
type Options struct {
	RangeBytes     int
	LightTimeout   time.Duration
	FullTimeout    time.Duration
	HeadTimeout    time.Duration
	VariantTimeout time.Duration
	MaxRetries     int
	RetryDelay     time.Duration
	MaxConcurrency int
	HeadProbe      bool
	Lint           bool
}

// DefaultOptions returns the standard timeouts and limits.
func DefaultOptions() Options {
	return Options{
		RangeBytes:     httpclient.DefaultRangeBytes,
		LightTimeout:   httpclient.DefaultRangeTimeout,
		FullTimeout:    httpclient.DefaultFullTimeout,
		HeadTimeout:    httpclient.DefaultHeadTimeout,
		VariantTimeout: httpclient.DefaultFullTimeout,
		MaxRetries:     httpclient.DefaultMaxRetries,
		RetryDelay:     httpclient.DefaultRetryDelay,
		MaxConcurrency: 8,
		HeadProbe:      false,
		Lint:           true,
	}
}

// Option configures parsers and the classifier.
type Option func(*settings)

type settings struct {
	opts   Options
	dedup  *dedup.Deduplicator
	videos VideoRegistry
	logger *slog.Logger
}

// WithOptions replaces the tunables.
func WithOptions(o Options) Option {
	return func(s *settings) { s.opts = o }
}

// WithDeduplicator shares an in-flight tracker between components.
func WithDeduplicator(d *dedup.Deduplicator) Option {
	return func(s *settings) {
		if d != nil {
			s.dedup = d
		}
	}
}

// WithVideoRegistry enables classification hints and result recording.
func WithVideoRegistry(r VideoRegistry) Option {
	return func(s *settings) { s.videos = r }
}

// WithLogger sets the logger. Nil discards.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

func newSettings(opts []Option) settings {
	s := settings{
		opts:   DefaultOptions(),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(&s)
	}
	if s.dedup == nil {
		s.dedup = dedup.New()
	}
	if s.opts.MaxConcurrency <= 0 {
		s.opts.MaxConcurrency = 1
	}
	return s
}

// Registry dispatches to the HLS or DASH parser.
type Registry struct {
	classifier *Classifier
	hls        *HLSParser
	dash       *DASHParser
	parsers    []Parser
}

// NewRegistry creates a registry whose parsers share one deduplicator.
func NewRegistry(f Fetcher, opts ...Option) *Registry {
	s := newSettings(opts)
	shared := append(append([]Option{}, opts...), WithDeduplicator(s.dedup))

	r := &Registry{
		classifier: NewClassifier(f, shared...),
		hls:        NewHLSParser(f, shared...),
		dash:       NewDASHParser(f, shared...),
	}
	r.parsers = []Parser{r.hls, r.dash}
	return r
}

// HLS returns the HLS parser.
func (r *Registry) HLS() *HLSParser { return r.hls }

// DASH returns the DASH parser.
func (r *Registry) DASH() *DASHParser { return r.dash }

// Classifier returns the shared classifier.
func (r *Registry) Classifier() *Classifier { return r.classifier }

// Parse picks a parser from the URL, or classifies the content when the
// URL does not say what it is.
func (r *Registry) Parse(ctx context.Context, rawURL string, headers map[string]string) *models.Result {
	for _, p := range r.parsers {
		if p.CanParse(rawURL) {
			return p.Parse(ctx, rawURL, headers)
		}
	}

	lp := time.Now()
	cl := r.classifier.Classify(ctx, rawURL, headers, KindAuto)
	switch {
	case cl.Subtype.IsHLS():
		return r.hls.parseClassified(ctx, rawURL, headers, &cl, lp)
	case cl.Subtype.IsDASH():
		return r.dash.parseClassified(ctx, rawURL, headers, &cl, lp)
	}

	res := models.NewFailedResult(rawURL, urlnorm.Normalize(rawURL), models.ManifestUnknown, statusFor(cl.Subtype, models.StatusUnknownType), cl.Error)
	res.TimestampLP = lp
	res.TimestampFP = time.Now()
	return res
}

// statusFor maps a non-manifest classification to a result status.
func statusFor(st models.Subtype, negative models.Status) models.Status {
	switch st {
	case models.SubtypeProcessing:
		return models.StatusProcessing
	case models.SubtypeFetchFailed:
		return models.StatusFetchFailed
	case models.SubtypeParseError:
		return models.StatusParseError
	default:
		return negative
	}
}

// resolveURL resolves a relative URL against a base URL.
func resolveURL(base *url.URL, relative string) string {
	relative = strings.TrimSpace(relative)
	if strings.HasPrefix(relative, "http://") || strings.HasPrefix(relative, "https://") {
		return relative
	}
	if base == nil {
		return relative
	}
	rel, err := url.Parse(relative)
	if err != nil {
		return relative
	}
	return base.ResolveReference(rel).String()
}

func parseBaseURL(rawURL string) *url.URL {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil
	}
	return u
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(a, b int) int {
	if a != 0 {
		return a
	}
	return b
}

func estimateSize(bandwidth int64, duration *int) int64 {
	if bandwidth <= 0 || duration == nil || *duration <= 0 {
		return 0
	}
	return bandwidth * int64(*duration) / 8
}

func intPtr(v int) *int { return &v }
