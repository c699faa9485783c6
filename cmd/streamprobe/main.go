package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"github.com/mohaanymo/streamprobe"
	"github.com/mohaanymo/streamprobe/internal/config"
	"github.com/mohaanymo/streamprobe/internal/discover"
	"github.com/mohaanymo/streamprobe/internal/logging"
	"github.com/mohaanymo/streamprobe/internal/report"
	"github.com/mohaanymo/streamprobe/internal/server"
)

var (
	version = "1.0.0"
	commit  = "dev"
)

// console is the stderr log sink, paused while a terminal UI is running.
var console = logging.NewConsole(os.Stderr)

// cliFlags holds flag values before they are layered over the config file.
type cliFlags struct {
	configPath string
	urls       multiFlag
	headers    multiFlag
	pageURL    string
	selector   string
	plan       string
	checkpoint string
	json       bool
	serve      bool
	listen     string
	headProbe  bool
	threads    int
	verbose    bool
	version    bool
}

func main() {
	fl := parseFlags(os.Args[1:])

	if fl.version {
		fmt.Printf("streamprobe %s (%s)\n", version, commit)
		os.Exit(0)
	}

	cfg, err := buildConfig(fl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if !fl.serve {
		if err := cfg.RequireInput(); err != nil {
			fmt.Fprintln(os.Stderr, "Error: --url or --page is required")
			printUsage()
			os.Exit(1)
		}
	}

	logger, closer, err := logging.NewWithConsole(cfg.Log, cfg.Verbose, console)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := run(ctx, cfg, fl, logger, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) *cliFlags {
	fl := &cliFlags{}
	fs := flag.NewFlagSet("streamprobe", flag.ExitOnError)

	fs.Var(&fl.urls, "url", "")
	fs.Var(&fl.urls, "u", "")
	fs.Var(&fl.headers, "header", "")
	fs.Var(&fl.headers, "H", "")
	fs.StringVar(&fl.configPath, "config", "", "")
	fs.StringVar(&fl.configPath, "c", "", "")
	fs.StringVar(&fl.pageURL, "page", "", "")
	fs.StringVar(&fl.selector, "select-track", "", "")
	fs.StringVar(&fl.selector, "s", "", "")
	fs.StringVar(&fl.plan, "plan", "", "")
	fs.StringVar(&fl.checkpoint, "checkpoint", "", "")
	fs.BoolVar(&fl.json, "json", false, "")
	fs.BoolVar(&fl.serve, "serve", false, "")
	fs.StringVar(&fl.listen, "listen", "", "")
	fs.BoolVar(&fl.headProbe, "head-probe", false, "")
	fs.IntVar(&fl.threads, "threads", 0, "")
	fs.IntVar(&fl.threads, "n", 0, "")
	fs.BoolVar(&fl.verbose, "verbose", false, "")
	fs.BoolVar(&fl.verbose, "v", false, "")
	fs.BoolVar(&fl.version, "version", false, "")

	fs.Usage = printUsage
	_ = fs.Parse(args)

	// Bare arguments are URLs too.
	fl.urls = append(fl.urls, fs.Args()...)
	return fl
}

// buildConfig loads the config file and layers flags on top.
func buildConfig(fl *cliFlags) (*config.Config, error) {
	cfg, err := config.Load(fl.configPath)
	if err != nil {
		return nil, err
	}

	if len(fl.urls) > 0 {
		cfg.URLs = fl.urls
	}
	for _, h := range fl.headers {
		parts := strings.SplitN(h, ":", 2)
		if len(parts) == 2 {
			cfg.Headers[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	if fl.pageURL != "" {
		cfg.PageURL = fl.pageURL
	}
	if fl.selector != "" {
		cfg.TrackSelector = fl.selector
	}
	if fl.plan != "" {
		cfg.PlanOutput = fl.plan
	}
	if fl.checkpoint != "" {
		cfg.Checkpoint = fl.checkpoint
	}
	if fl.json {
		cfg.Output = "json"
	}
	if fl.listen != "" {
		cfg.Listen = fl.listen
	}
	if fl.headProbe {
		cfg.HeadProbe = true
	}
	if fl.threads > 0 {
		cfg.Threads = fl.threads
	}
	if fl.verbose {
		cfg.Verbose = true
	}
	return cfg, cfg.Validate()
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `streamprobe - Inspect HLS and DASH manifests

Usage: streamprobe [options] -u <URL> [URL...]

Options:
  -u, --url <URL>           Manifest URL (repeatable, or pass as arguments)
  -H, --header <header>     Custom header (repeatable)
      --page <URL>          Scan a web page for streams and use it as Referer
  -c, --config <file>       YAML config file
  -s, --select-track <sel>  Track selection (default: best)
      --plan <output>       Print a download plan for the selected tracks
      --checkpoint <file>   Resume batch runs from this file
  -n, --threads <num>       Concurrent batch jobs (default: 8)
      --head-probe          Send a HEAD request before classifying
      --json                JSON output
      --serve               Run the HTTP API
      --listen <addr>       HTTP API address (default: :8080)
  -v, --verbose             Verbose output
      --version             Show version

Track Selection (-s):
  Presets:
    best                Best video + best audio
    all                 All tracks
    1080p, 720p, etc    Video by resolution + best audio
    interactive         Pick tracks in a terminal UI
    video:0+audio:1     By index
    a:en,tr  s:ar*      By language

Examples:
  streamprobe -u https://example.com/master.m3u8
  streamprobe -u https://example.com/manifest.mpd -s 1080p --plan movie
  streamprobe --page https://example.com/watch/42 --json
  streamprobe --checkpoint batch.json $(cat urls.txt)
`)
}

func run(ctx context.Context, cfg *config.Config, fl *cliFlags, logger *slog.Logger, out io.Writer) error {
	p, err := streamprobe.New(
		streamprobe.WithConfig(cfg),
		streamprobe.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	defer p.Close()

	if fl.serve {
		srv := server.New(p.Registry(),
			server.WithVideos(videoLister{p}),
			server.WithHeaders(cfg.RequestHeaders()),
			server.WithLogger(logger),
		)
		return srv.ListenAndServe(ctx, cfg.Listen)
	}

	urls := cfg.URLs
	if cfg.PageURL != "" {
		found, err := discoverPage(ctx, p, cfg, out)
		if err != nil {
			return err
		}
		urls = append(urls, found...)
		if len(urls) == 0 {
			return nil
		}
	}

	if len(urls) == 1 && cfg.Checkpoint == "" {
		return single(ctx, p, cfg, urls[0], out)
	}
	if cfg.Output != "json" && isTerminal(os.Stderr) {
		return batchUI(ctx, p, urls, out)
	}
	return batch(ctx, p, cfg, urls, out)
}

// discoverPage scans the page and returns the manifest URLs on it.
func discoverPage(ctx context.Context, p *streamprobe.Prober, cfg *config.Config, out io.Writer) ([]string, error) {
	cands, err := p.Discover(ctx, cfg.PageURL)
	if err != nil {
		return nil, err
	}

	var manifests []string
	for _, c := range cands {
		if c.Kind == discover.KindHLS || c.Kind == discover.KindDASH {
			manifests = append(manifests, c.URL)
		}
	}
	if len(manifests) == 0 || cfg.Verbose {
		if cfg.Output == "json" && len(manifests) == 0 {
			return nil, report.JSON(out, cands)
		}
		if cfg.Output != "json" {
			if err := report.Candidates(out, cfg.PageURL, cands); err != nil {
				return nil, err
			}
		}
	}
	return manifests, nil
}

type singleOutput struct {
	Result   *streamprobe.Result `json:"result"`
	Selected []string            `json:"selected,omitempty"`
	Plan     *streamprobe.Plan   `json:"plan,omitempty"`
	Command  string              `json:"command,omitempty"`
}

func single(ctx context.Context, p *streamprobe.Prober, cfg *config.Config, rawURL string, out io.Writer) error {
	res := p.Parse(ctx, rawURL)

	var selected []*streamprobe.Track
	var plan *streamprobe.Plan
	if res.IsValid {
		var err error
		if cfg.TrackSelector == interactiveSelector {
			selected, err = pickTracks(res)
		} else {
			selected, err = p.SelectTracks(res, cfg.TrackSelector)
		}
		if err != nil && !errors.Is(err, streamprobe.ErrNoTracks) {
			return fmt.Errorf("failed to select tracks: %w", err)
		}
		if cfg.PlanOutput != "" && len(selected) > 0 {
			plan, err = streamprobe.BuildPlan(res, selected, cfg.PlanOutput)
			if err != nil {
				return fmt.Errorf("failed to build plan: %w", err)
			}
		}
	}

	if cfg.Output == "json" {
		o := singleOutput{Result: res, Plan: plan}
		for _, t := range selected {
			o.Selected = append(o.Selected, t.ID)
		}
		if plan != nil {
			o.Command = plan.Command(cfg.RequestHeaders())
		}
		if err := report.JSON(out, o); err != nil {
			return err
		}
	} else {
		if err := report.Result(out, res, selected); err != nil {
			return err
		}
		if plan != nil {
			if err := report.Plan(out, plan, cfg.RequestHeaders()); err != nil {
				return err
			}
		}
	}

	if !res.IsValid {
		return fmt.Errorf("%s: %s", rawURL, res.Status)
	}
	return nil
}

func batch(ctx context.Context, p *streamprobe.Prober, cfg *config.Config, urls []string, out io.Writer) error {
	eng, err := p.Engine(cfg.Verbose)
	if err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for u := range eng.Progress() {
			fmt.Fprintf(os.Stderr, "[%d/%d] %s %s\n", u.Done, u.Total, u.Status, u.URL)
		}
	}()

	jobs, runErr := eng.Run(ctx, urls)
	eng.Close()
	<-done

	if cfg.Output == "json" {
		if err := report.JSON(out, jobs); err != nil {
			return err
		}
	} else if err := report.Jobs(out, jobs); err != nil {
		return err
	}
	return runErr
}

// batchUI runs the batch behind the progress view and prints the
// job table once the view exits.
func batchUI(ctx context.Context, p *streamprobe.Prober, urls []string, out io.Writer) error {
	eng, err := p.Engine(true)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var jobs []*streamprobe.Job
	var runErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		jobs, runErr = eng.Run(ctx, urls)
		eng.Close()
	}()

	model := report.NewBatchProgress(eng.Progress(), len(urls))
	console.Pause()
	_, err = tea.NewProgram(model, tea.WithOutput(os.Stderr), tea.WithContext(ctx)).Run()
	_ = console.Resume()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		cancel()
		<-done
		return err
	}
	if model.Canceled() {
		cancel()
	}
	<-done

	if model.Canceled() {
		return context.Canceled
	}
	if err := report.Jobs(out, jobs); err != nil {
		return err
	}
	return runErr
}

const interactiveSelector = "interactive"

// pickTracks lets the user choose tracks in the terminal picker.
func pickTracks(res *streamprobe.Result) ([]*streamprobe.Track, error) {
	if !isTerminal(os.Stdin) || !isTerminal(os.Stderr) {
		return nil, errors.New("interactive track selection needs a terminal")
	}
	tracks := res.Tracks()
	if len(tracks) == 0 {
		return nil, streamprobe.ErrNoTracks
	}

	picker := report.NewPicker(tracks)
	console.Pause()
	_, err := tea.NewProgram(picker, tea.WithAltScreen(), tea.WithOutput(os.Stderr)).Run()
	_ = console.Resume()
	if err != nil {
		return nil, fmt.Errorf("track picker: %w", err)
	}

	result := picker.Result()
	if result.Canceled {
		return nil, errors.New("track selection canceled")
	}
	return result.Selected, nil
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// videoLister adapts the prober to server.VideoLister.
type videoLister struct{ p *streamprobe.Prober }

func (v videoLister) All() []*streamprobe.VideoMetadata { return v.p.KnownVideos() }

// multiFlag implements flag.Value for repeatable flags
type multiFlag []string

func (m *multiFlag) String() string {
	return strings.Join(*m, ", ")
}

func (m *multiFlag) Set(value string) error {
	*m = append(*m, value)
	return nil
}
