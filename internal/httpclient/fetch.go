package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/net/html/charset"
)

// Fetch defaults.
const (
	DefaultRangeBytes   = 4096
	DefaultRangeTimeout = 5 * time.Second
	DefaultFullTimeout  = 10 * time.Second
	DefaultHeadTimeout  = 3 * time.Second
	DefaultMaxRetries   = 2
	DefaultRetryDelay   = 250 * time.Millisecond

	// StatusTimeout is the synthetic status reported when a request times out.
	StatusTimeout = http.StatusRequestTimeout

	maxBodyBytes = 32 << 20
)

var (
	ErrTimeout = errors.New("timeout")
	ErrStatus  = errors.New("unexpected status")
)

// FetchError describes a failed fetch attempt.
type FetchError struct {
	URL    string
	Status int
	Op     string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Op, e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// FetchResult is the uniform outcome of a request. OK=false means Content
// must not be trusted; Status is 0 for network failures.
type FetchResult struct {
	OK          bool   `json:"ok"`
	Status      int    `json:"status"`
	Content     string `json:"-"`
	ContentType string `json:"contentType,omitempty"`
	Truncated   bool   `json:"truncated,omitempty"`
	Error       string `json:"error,omitempty"`

	err error
}

// Err returns the failure as an error, or nil when OK.
func (r FetchResult) Err() error {
	if r.OK {
		return nil
	}
	if r.err != nil {
		return r.err
	}
	return &FetchError{Status: r.Status, Op: "fetch", Err: errors.New(firstNonEmpty(r.Error, "request failed"))}
}

// ManifestFetchResult adds retry diagnostics to FetchResult.
type ManifestFetchResult struct {
	FetchResult
	RetryCount int `json:"retryCount"`
	Attempts   int `json:"attempts"`
}

// ManifestOptions configure FetchManifest. Zero values use defaults.
type ManifestOptions struct {
	Headers    map[string]string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

type tabKey struct{}

// WithTab attaches page context to ctx so the header provider can derive
// Origin and Referer.
func WithTab(ctx context.Context, tab *TabContext) context.Context {
	return context.WithValue(ctx, tabKey{}, tab)
}

// TabFromContext returns the page context attached by WithTab, if any.
func TabFromContext(ctx context.Context) *TabContext {
	tab, _ := ctx.Value(tabKey{}).(*TabContext)
	return tab
}

// Fetcher performs manifest requests. It never panics and never returns
// an error; failures are reported in the result.
type Fetcher struct {
	client  *http.Client
	headers HeaderProvider
	logger  *slog.Logger
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithHeaderProvider replaces the default header provider.
func WithHeaderProvider(p HeaderProvider) FetcherOption {
	return func(f *Fetcher) {
		if p != nil {
			f.headers = p
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) FetcherOption {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewFetcher creates a Fetcher. A nil client uses New(DefaultConfig()).
func NewFetcher(client *http.Client, opts ...FetcherOption) *Fetcher {
	if client == nil {
		client = New(DefaultConfig())
	}
	f := &Fetcher{
		client:  client,
		headers: DefaultHeaderProvider{},
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchRange fetches at most rangeBytes from the start of the resource.
func (f *Fetcher) FetchRange(ctx context.Context, rawURL string, headers map[string]string, rangeBytes int, timeout time.Duration) FetchResult {
	if rangeBytes <= 0 {
		rangeBytes = DefaultRangeBytes
	}
	if timeout <= 0 {
		timeout = DefaultRangeTimeout
	}
	h := f.buildHeaders(ctx, rawURL, headers)
	h["Range"] = fmt.Sprintf("bytes=0-%d", rangeBytes-1)
	return f.do(ctx, http.MethodGet, rawURL, h, int64(rangeBytes), timeout)
}

// FetchFull fetches the whole resource. Any inherited Range header is dropped.
func (f *Fetcher) FetchFull(ctx context.Context, rawURL string, headers map[string]string, timeout time.Duration) FetchResult {
	if timeout <= 0 {
		timeout = DefaultFullTimeout
	}
	h := f.buildHeaders(ctx, rawURL, headers)
	delete(h, "Range")
	return f.do(ctx, http.MethodGet, rawURL, h, 0, timeout)
}

// Head issues a HEAD request; only Status and ContentType are meaningful.
func (f *Fetcher) Head(ctx context.Context, rawURL string, headers map[string]string, timeout time.Duration) FetchResult {
	if timeout <= 0 {
		timeout = DefaultHeadTimeout
	}
	h := f.buildHeaders(ctx, rawURL, headers)
	delete(h, "Range")
	return f.do(ctx, http.MethodHead, rawURL, h, 0, timeout)
}

// FetchManifest is FetchFull with retries. Each attempt gets its own timeout.
// Client errors other than 408 and 429 are not retried.
func (f *Fetcher) FetchManifest(ctx context.Context, rawURL string, opts ManifestOptions) ManifestFetchResult {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}

	var (
		last     FetchResult
		attempts int
	)
	err := retry.Do(
		func() error {
			attempts++
			last = f.FetchFull(ctx, rawURL, opts.Headers, opts.Timeout)
			if last.OK {
				return nil
			}
			if !retryable(last.Status) {
				return retry.Unrecoverable(last.Err())
			}
			return last.Err()
		},
		retry.Context(ctx),
		retry.Attempts(uint(opts.MaxRetries+1)),
		retry.Delay(opts.RetryDelay),
		retry.MaxDelay(4*opts.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			f.logger.Debug("manifest fetch retry", "url", rawURL, "attempt", n+1, "err", err)
		}),
	)

	if err != nil && attempts == 0 {
		// context was already done before the first attempt
		last = failure(rawURL, "fetch", 0, err)
	}

	retries := attempts - 1
	if retries < 0 {
		retries = 0
	}
	return ManifestFetchResult{FetchResult: last, RetryCount: retries, Attempts: attempts}
}

func retryable(status int) bool {
	if status >= 400 && status < 500 {
		return status == http.StatusRequestTimeout || status == http.StatusTooManyRequests
	}
	return true
}

func (f *Fetcher) buildHeaders(ctx context.Context, rawURL string, headers map[string]string) map[string]string {
	return MergeHeaders(f.headers.Headers(TabFromContext(ctx), rawURL), headers)
}

func (f *Fetcher) do(ctx context.Context, method, rawURL string, headers map[string]string, limit int64, timeout time.Duration) (res FetchResult) {
	defer func() {
		if r := recover(); r != nil {
			res = failure(rawURL, strings.ToLower(method), 0, fmt.Errorf("panic: %v", r))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return failure(rawURL, "request", 0, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return failure(rawURL, strings.ToLower(method), StatusTimeout, ErrTimeout)
		}
		return failure(rawURL, strings.ToLower(method), 0, err)
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		r := failure(rawURL, strings.ToLower(method), resp.StatusCode, ErrStatus)
		r.ContentType = contentType
		return r
	}
	if method == http.MethodHead {
		return FetchResult{OK: true, Status: resp.StatusCode, ContentType: contentType}
	}

	readLimit := int64(maxBodyBytes)
	if limit > 0 {
		readLimit = limit + 1
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, readLimit))
	if err != nil {
		if isTimeout(ctx, err) {
			return failure(rawURL, "read", StatusTimeout, ErrTimeout)
		}
		return failure(rawURL, "read", 0, err)
	}

	truncated := false
	if limit > 0 {
		if int64(len(body)) > limit {
			body = body[:limit]
			truncated = true
		} else if total, ok := contentRangeTotal(resp.Header.Get("Content-Range")); ok {
			truncated = total > int64(len(body))
		} else if resp.StatusCode == http.StatusPartialContent && int64(len(body)) == limit {
			truncated = true
		}
	}

	return FetchResult{
		OK:          true,
		Status:      resp.StatusCode,
		Content:     decodeBody(body, contentType),
		ContentType: contentType,
		Truncated:   truncated,
	}
}

func failure(rawURL, op string, status int, err error) FetchResult {
	return FetchResult{
		Status: status,
		Error:  err.Error(),
		err:    &FetchError{URL: rawURL, Status: status, Op: op, Err: err},
	}
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// contentRangeTotal parses the complete length from "bytes 0-4095/12345".
func contentRangeTotal(v string) (int64, bool) {
	i := strings.LastIndexByte(v, '/')
	if i < 0 || i == len(v)-1 {
		return 0, false
	}
	total, err := strconv.ParseInt(strings.TrimSpace(v[i+1:]), 10, 64)
	if err != nil {
		return 0, false
	}
	return total, true
}

// decodeBody converts text with an explicit non-UTF-8 charset to UTF-8.
func decodeBody(body []byte, contentType string) string {
	if contentType == "" {
		return string(body)
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return string(body)
	}
	cs := strings.ToLower(params["charset"])
	if cs == "" || cs == "utf-8" || cs == "utf8" || cs == "us-ascii" {
		return string(body)
	}
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return string(body)
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return string(body)
	}
	return string(decoded)
}
