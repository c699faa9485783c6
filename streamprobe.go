// Package streamprobe classifies, parses and normalizes HLS and DASH
// manifests into one track-oriented model.
//
// Basic usage:
//
//	p, err := streamprobe.New(
//		streamprobe.WithHeader("Referer", "https://example.com/watch"),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer p.Close()
//
//	res := p.Parse(ctx, "https://example.com/master.m3u8")
//	if !res.IsValid {
//		log.Fatalf("not a manifest: %s", res.Status)
//	}
//	for _, t := range res.Tracks() {
//		fmt.Println(t.ID, t.Codecs, t.Container)
//	}
//
// Or use the convenience function:
//
//	res, err := streamprobe.ParseURL(ctx, "https://example.com/manifest.mpd")
package streamprobe

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mohaanymo/streamprobe/internal/config"
	"github.com/mohaanymo/streamprobe/internal/container"
	"github.com/mohaanymo/streamprobe/internal/dedup"
	"github.com/mohaanymo/streamprobe/internal/discover"
	"github.com/mohaanymo/streamprobe/internal/engine"
	"github.com/mohaanymo/streamprobe/internal/httpclient"
	"github.com/mohaanymo/streamprobe/internal/parser"
	"github.com/mohaanymo/streamprobe/internal/probe"
	"github.com/mohaanymo/streamprobe/internal/registry"
)

// Prober is the main API for inspecting media streams.
type Prober struct {
	cfg      *config.Config
	logger   *slog.Logger
	client   *http.Client
	fetcher  *httpclient.Fetcher
	videos   *registry.Videos
	registry *parser.Registry
}

type options struct {
	cfg    *config.Config
	logger *slog.Logger
	client *http.Client
}

// Option configures the prober.
type Option func(*options)

// New creates a Prober with the given options.
func New(opts ...Option) (*Prober, error) {
	o := &options{cfg: config.New()}
	for _, opt := range opts {
		opt(o)
	}

	cfg := o.cfg
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	client := o.client
	if client == nil {
		client = httpclient.New(httpclient.Config{
			MaxConnsPerHost:   16,
			RequestsPerSecond: cfg.RequestsPerSecond,
		})
	}

	fetcher := httpclient.NewFetcher(client,
		httpclient.WithLogger(logger),
		httpclient.WithHeaderProvider(httpclient.DefaultHeaderProvider{
			UserAgent:      cfg.UserAgent,
			AcceptLanguage: cfg.AcceptLanguage,
		}),
	)
	videos := registry.New(cfg.RegistrySize)

	return &Prober{
		cfg:     cfg,
		logger:  logger,
		client:  client,
		fetcher: fetcher,
		videos:  videos,
		registry: parser.NewRegistry(fetcher,
			parser.WithOptions(ParserOptions(cfg)),
			parser.WithDeduplicator(dedup.New()),
			parser.WithVideoRegistry(videos),
			parser.WithLogger(logger),
		),
	}, nil
}

// ParserOptions maps configuration onto parser tunables.
func ParserOptions(cfg *config.Config) parser.Options {
	o := parser.DefaultOptions()
	o.RangeBytes = cfg.RangeBytes
	o.LightTimeout = cfg.LightTimeout
	o.FullTimeout = cfg.FullTimeout
	o.HeadTimeout = cfg.HeadTimeout
	o.VariantTimeout = cfg.VariantTimeout
	o.MaxRetries = cfg.MaxRetries
	o.RetryDelay = cfg.RetryDelay
	o.MaxConcurrency = cfg.MaxConcurrency
	o.HeadProbe = cfg.HeadProbe
	return o
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) {
		if cfg != nil {
			o.cfg = cfg
		}
	}
}

// WithHeaders sets custom HTTP headers for requests.
func WithHeaders(headers map[string]string) Option {
	return func(o *options) {
		if o.cfg.Headers == nil {
			o.cfg.Headers = make(map[string]string)
		}
		for k, v := range headers {
			o.cfg.Headers[k] = v
		}
	}
}

// WithHeader adds a single HTTP header.
func WithHeader(key, value string) Option {
	return func(o *options) {
		if o.cfg.Headers == nil {
			o.cfg.Headers = make(map[string]string)
		}
		o.cfg.Headers[key] = value
	}
}

// WithPageURL sets the page the streams were found on. It becomes the
// Origin and Referer of every request.
func WithPageURL(pageURL string) Option {
	return func(o *options) {
		o.cfg.PageURL = pageURL
	}
}

// WithHeadProbe enables a HEAD request before the light fetch.
func WithHeadProbe(enabled bool) Option {
	return func(o *options) {
		o.cfg.HeadProbe = enabled
	}
}

// WithMaxConcurrency bounds concurrent variant playlist fetches.
func WithMaxConcurrency(n int) Option {
	return func(o *options) {
		o.cfg.MaxConcurrency = n
	}
}

// WithThreads sets the number of concurrent batch jobs (default: 8, max: 128).
func WithThreads(n int) Option {
	return func(o *options) {
		o.cfg.Threads = n
	}
}

// WithTrackSelector sets the track selection string.
// Examples: "best", "1080p", "all", "video:0+audio:1", "a:en,?"
func WithTrackSelector(selector string) Option {
	return func(o *options) {
		o.cfg.TrackSelector = selector
	}
}

// WithCheckpoint enables batch resume. The checkpoint is written to
// path with ".streamprobe.json" appended unless already present.
func WithCheckpoint(path string) Option {
	return func(o *options) {
		o.cfg.Checkpoint = path
	}
}

// WithHTTPClient sets the HTTP client used for every request.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.client = c
	}
}

// WithLogger sets the logger. By default nothing is logged.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// withTab attaches the configured page context to ctx.
func (p *Prober) withTab(ctx context.Context) context.Context {
	if p.cfg.PageURL == "" || httpclient.TabFromContext(ctx) != nil {
		return ctx
	}
	return httpclient.WithTab(ctx, &httpclient.TabContext{PageURL: p.cfg.PageURL})
}

// Parse classifies rawURL and parses it with the matching parser.
func (p *Prober) Parse(ctx context.Context, rawURL string) *Result {
	return p.registry.Parse(p.withTab(ctx), rawURL, p.cfg.Headers)
}

// ParseHLS parses rawURL as an HLS playlist.
func (p *Prober) ParseHLS(ctx context.Context, rawURL string) *Result {
	return p.registry.HLS().Parse(p.withTab(ctx), rawURL, p.cfg.Headers)
}

// ParseDASH parses rawURL as a DASH manifest.
func (p *Prober) ParseDASH(ctx context.Context, rawURL string) *Result {
	return p.registry.DASH().Parse(p.withTab(ctx), rawURL, p.cfg.Headers)
}

// Classify runs only the light parse.
func (p *Prober) Classify(ctx context.Context, rawURL string, kind Kind) Classification {
	return p.registry.Classifier().Classify(p.withTab(ctx), rawURL, p.cfg.Headers, kind)
}

// SniffContainer reads the first bytes of a direct media URL.
func (p *Prober) SniffContainer(ctx context.Context, rawURL string) (ProbeResult, error) {
	return probe.Sniff(p.withTab(ctx), p.fetcher, rawURL, p.cfg.Headers)
}

// ProbeContainer sniffs rawURL and feeds the result into the container
// decision as its highest-priority input. A failed sniff falls back to
// the remaining inputs in opts.
func (p *Prober) ProbeContainer(ctx context.Context, rawURL string, opts ContainerOptions) Decision {
	if opts.URL == "" {
		opts.URL = rawURL
	}
	sniffed, err := p.SniffContainer(ctx, rawURL)
	if err != nil {
		p.logger.Debug("container sniff failed", "url", rawURL, "err", err)
	} else {
		opts.ProbeContainer = sniffed.Container
		if opts.MimeType == "" {
			opts.MimeType = sniffed.MimeType
		}
	}
	return container.Decide(opts)
}

// Discover scans an HTML page for media URLs.
func (p *Prober) Discover(ctx context.Context, pageURL string) ([]Candidate, error) {
	return discover.Page(ctx, p.fetcher, pageURL, p.cfg.Headers)
}

// Batch parses many URLs concurrently. When a checkpoint is configured,
// results already recorded there are reused.
func (p *Prober) Batch(ctx context.Context, urls []string) ([]*Job, error) {
	eng, err := p.Engine(false)
	if err != nil {
		return nil, err
	}
	defer eng.Close()
	return eng.Run(p.withTab(ctx), urls)
}

// Engine returns a batch engine bound to this prober. With progress set,
// the caller must drain eng.Progress() while Run executes.
func (p *Prober) Engine(progress bool) (*engine.Engine, error) {
	var checkpoint string
	if p.cfg.Checkpoint != "" {
		checkpoint = engine.CheckpointPath(p.cfg.Checkpoint)
	}
	return engine.New(p.registry, engine.Config{
		Threads:        p.cfg.Threads,
		Headers:        p.cfg.Headers,
		CheckpointPath: checkpoint,
		Progress:       progress,
		Logger:         p.logger,
	})
}

// SelectTracks applies selector to res. An empty selector uses the
// configured one.
func (p *Prober) SelectTracks(res *Result, selector string) ([]*Track, error) {
	if selector == "" {
		selector = p.cfg.TrackSelector
	}
	return engine.SelectTracks(res, selector)
}

// Plan selects tracks from res and builds a download plan.
func (p *Prober) Plan(res *Result, selector, output string) (*Plan, error) {
	selected, err := p.SelectTracks(res, selector)
	if err != nil {
		return nil, err
	}
	return engine.BuildPlan(res, selected, output)
}

// BuildPlan builds a download plan from tracks already chosen, such as
// the interactive picker's result.
func BuildPlan(res *Result, selected []*Track, output string) (*Plan, error) {
	return engine.BuildPlan(res, selected, output)
}

// KnownVideos returns what the prober has learned about parsed URLs.
func (p *Prober) KnownVideos() []*VideoMetadata {
	return p.videos.All()
}

// Headers returns the headers sent with every request.
func (p *Prober) Headers() map[string]string {
	return p.cfg.Headers
}

// Registry exposes the parser registry for embedding in servers.
func (p *Prober) Registry() *parser.Registry {
	return p.registry
}

// Close releases all resources held by the prober.
func (p *Prober) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

// DecideContainer runs the container fallback chain on what is known.
func DecideContainer(opts ContainerOptions) Decision {
	return container.Decide(opts)
}

// ParseURL is a convenience function for one-off parses.
func ParseURL(ctx context.Context, rawURL string, opts ...Option) (*Result, error) {
	p, err := New(opts...)
	if err != nil {
		return nil, err
	}
	defer p.Close()

	res := p.Parse(ctx, rawURL)
	if !res.IsValid {
		return res, fmt.Errorf("parse %s: %s", rawURL, res.Status)
	}
	return res, nil
}
