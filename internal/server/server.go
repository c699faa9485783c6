// Package server exposes parsing, classification and container decisions
// over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/mohaanymo/streamprobe/internal/container"
	"github.com/mohaanymo/streamprobe/internal/httpclient"
	"github.com/mohaanymo/streamprobe/internal/models"
	"github.com/mohaanymo/streamprobe/internal/parser"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

const maxBodyBytes = 1 << 20

// VideoLister lists what the video registry knows.
type VideoLister interface {
	All() []*models.VideoMetadata
}

// Server is the HTTP front end.
type Server struct {
	registry *parser.Registry
	videos   VideoLister
	headers  map[string]string
	logger   *slog.Logger
	router   *mux.Router
}

// Option configures a Server.
type Option func(*Server)

// WithVideos enables GET /v1/videos.
func WithVideos(v VideoLister) Option {
	return func(s *Server) { s.videos = v }
}

// WithHeaders sets headers sent upstream on every request. Per-request
// headers in the body win.
func WithHeaders(h map[string]string) Option {
	return func(s *Server) { s.headers = h }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Server backed by reg.
func New(reg *parser.Registry, opts ...Option) *Server {
	s := &Server{
		registry: reg,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := mux.NewRouter()
	r.Use(s.requestID, s.accessLog)
	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)

	api := r.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/parse", s.parse).Methods(http.MethodPost)
	api.HandleFunc("/classify", s.classify).Methods(http.MethodPost)
	api.HandleFunc("/container", s.decideContainer).Methods(http.MethodPost)
	api.HandleFunc("/videos", s.listVideos).Methods(http.MethodGet)
	s.router = r
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type requestIDKey struct{}

// RequestID returns the request ID stored by the middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"elapsed", time.Since(start),
			"request_id", RequestID(r.Context()),
		)
	})
}

// probeRequest is the body of /v1/parse and /v1/classify.
type probeRequest struct {
	URL     string            `json:"url"`
	PageURL string            `json:"pageUrl,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Type    string            `json:"type,omitempty"` // hls, dash or empty for auto
}

func (req *probeRequest) kind() (parser.Kind, bool) {
	switch strings.ToLower(req.Type) {
	case "", "auto":
		return parser.KindAuto, true
	case "hls":
		return parser.KindHLS, true
	case "dash":
		return parser.KindDASH, true
	}
	return parser.KindAuto, false
}

func (s *Server) decodeProbe(w http.ResponseWriter, r *http.Request) (*probeRequest, parser.Kind, bool) {
	var req probeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, 0, false
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return nil, 0, false
	}
	kind, ok := req.kind()
	if !ok {
		writeError(w, http.StatusBadRequest, "type must be hls, dash or empty")
		return nil, 0, false
	}
	return &req, kind, true
}

func (s *Server) requestContext(r *http.Request, req *probeRequest) context.Context {
	ctx := r.Context()
	if req.PageURL != "" {
		ctx = httpclient.WithTab(ctx, &httpclient.TabContext{PageURL: req.PageURL})
	}
	return ctx
}

func (s *Server) parse(w http.ResponseWriter, r *http.Request) {
	req, kind, ok := s.decodeProbe(w, r)
	if !ok {
		return
	}
	ctx := s.requestContext(r, req)
	headers := httpclient.MergeHeaders(s.headers, req.Headers)

	var res *models.Result
	switch kind {
	case parser.KindHLS:
		res = s.registry.HLS().Parse(ctx, req.URL, headers)
	case parser.KindDASH:
		res = s.registry.DASH().Parse(ctx, req.URL, headers)
	default:
		res = s.registry.Parse(ctx, req.URL, headers)
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) classify(w http.ResponseWriter, r *http.Request) {
	req, kind, ok := s.decodeProbe(w, r)
	if !ok {
		return
	}
	headers := httpclient.MergeHeaders(s.headers, req.Headers)
	cl := s.registry.Classifier().Classify(s.requestContext(r, req), req.URL, headers, kind)
	writeJSON(w, http.StatusOK, cl)
}

func (s *Server) decideContainer(w http.ResponseWriter, r *http.Request) {
	var opts container.Options
	if err := decodeJSON(r, &opts); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, container.Decide(opts))
}

func (s *Server) listVideos(w http.ResponseWriter, _ *http.Request) {
	if s.videos == nil {
		writeJSON(w, http.StatusOK, []*models.VideoMetadata{})
		return
	}
	writeJSON(w, http.StatusOK, s.videos.All())
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid request body: " + err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
