// Package server exposes funnel analysis and the analyst chat over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/KaramelBytes/funnelscope/internal/ai"
	"github.com/KaramelBytes/funnelscope/internal/dataset"
	"github.com/KaramelBytes/funnelscope/internal/funnel"
	"github.com/KaramelBytes/funnelscope/internal/report"
)

// Config wires the server to a chat runtime and analysis settings.
type Config struct {
	Runtime     ai.Runtime
	Model       string
	MaxTokens   int
	Temperature float64
	MaxHistory  int
	Thresholds  funnel.Thresholds

	// ChatRate is the sustained /api/chat rate per second; <= 0 disables limiting.
	ChatRate    float64
	ChatBurst   int
	MaxBodySize int64
	CORSOrigins []string
	Logger      *zap.Logger
}

// Server holds the handlers and their shared state.
type Server struct {
	cfg     Config
	log     *zap.Logger
	limiter *rate.Limiter
	metrics *Metrics
}

func New(cfg Config) *Server {
	s := &Server{cfg: cfg, log: cfg.Logger, metrics: NewMetrics()}
	if s.log == nil {
		s.log = zap.L()
	}
	s.cfg.Thresholds = cfg.Thresholds.WithDefaults()
	if cfg.ChatRate > 0 {
		burst := cfg.ChatBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.ChatRate), burst)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	mux := chi.NewRouter()
	mux.Use(RequestID)
	mux.Use(Logger(s.log, s.metrics))
	mux.Use(middleware.Recoverer)
	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader},
		MaxAge:         300,
	}))

	mux.Get("/healthz", s.handleHealthz)
	mux.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	mux.Route("/api", func(r chi.Router) {
		r.Use(LimitBody(s.cfg.MaxBodySize))
		r.Post("/columns", s.handleColumns)
		r.Post("/analyze", s.handleAnalyze)
		r.Post("/chat", s.handleChat)
	})
	return mux
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info("listening", zap.String("addr", addr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return eris.Wrap(err, "listen")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return eris.Wrap(err, "shutdown")
		}
		return nil
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		s.log.Debug("healthz write failed", zap.String("rid", RID(r.Context())), zap.Error(err))
	}
}

type columnsResponse struct {
	Source  string                 `json:"source"`
	Rows    int                    `json:"rows"`
	Columns funnel.DetectedColumns `json:"columns"`
	Options []string               `json:"dimension_options"`
}

func (s *Server) handleColumns(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.readDataset(w, r)
	if !ok {
		return
	}
	t := s.cfg.Thresholds
	cols := t.Detect(ds.Headers, ds.Sample(t.SampleSize))
	opts := cols.DimensionOptions()
	if opts == nil {
		opts = []string{}
	}
	writeJSON(w, http.StatusOK, columnsResponse{Source: ds.Name, Rows: len(ds.Rows), Columns: cols, Options: opts})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.readDataset(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	rep, err := report.Build(r.Context(), ds, report.Options{
		Dimension:  q.Get("dimension"),
		CrossCut:   q.Get("cross_cut"),
		Thresholds: s.cfg.Thresholds,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.metrics.analyses.Inc()
	writeJSON(w, http.StatusOK, rep)
}

// ChatRequest is the /api/chat body. Either DataContext or CSV supplies the
// data summary; CSV is summarized server-side.
type ChatRequest struct {
	Messages    []ai.Message `json:"messages"`
	DataContext string       `json:"dataContext,omitempty"`
	CSV         string       `json:"csv,omitempty"`
}

type chatResponse struct {
	Content string `json:"content"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.metrics.chats.WithLabelValues("invalid").Inc()
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Messages) == 0 || (strings.TrimSpace(req.DataContext) == "" && strings.TrimSpace(req.CSV) == "") {
		s.metrics.chats.WithLabelValues("invalid").Inc()
		writeError(w, http.StatusBadRequest, "Missing messages or dataContext")
		return
	}
	if err := ai.ValidateHistory(req.Messages); err != nil {
		s.metrics.chats.WithLabelValues("invalid").Inc()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.limiter != nil && !s.limiter.Allow() {
		s.metrics.chats.WithLabelValues("throttled").Inc()
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}
	if s.cfg.Runtime == nil {
		s.metrics.chats.WithLabelValues("unavailable").Inc()
		writeError(w, http.StatusServiceUnavailable, "no chat runtime configured")
		return
	}

	dataContext := req.DataContext
	if dataContext == "" {
		ds, err := dataset.ReadCSV(strings.NewReader(req.CSV), "upload.csv", dataset.Options{})
		if err == nil {
			dataContext, err = report.Context(ds, s.cfg.Thresholds)
		}
		if err != nil {
			s.metrics.chats.WithLabelValues("invalid").Inc()
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if len(dataContext) > s.cfg.Thresholds.MaxContextLength {
		s.metrics.chats.WithLabelValues("invalid").Inc()
		writeError(w, http.StatusBadRequest, "data context too long")
		return
	}

	genReq := ai.ChatRequest(s.cfg.Model, dataContext, req.Messages, s.cfg.MaxHistory, s.cfg.MaxTokens, s.cfg.Temperature)
	resp, err := s.cfg.Runtime.Generate(r.Context(), genReq)
	if err != nil {
		s.metrics.chats.WithLabelValues("failed").Inc()
		s.log.Warn("chat runtime failed",
			zap.String("rid", RID(r.Context())),
			zap.Bool("transient", ai.IsTransient(err)),
			zap.Error(err),
		)
		writeError(w, http.StatusBadGateway, "Failed to get AI response")
		return
	}
	s.metrics.chats.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, chatResponse{Content: resp.Content()})
}

// readDataset parses a CSV request body. Query parameters name and delimiter
// are optional.
func (s *Server) readDataset(w http.ResponseWriter, r *http.Request) (*dataset.Dataset, bool) {
	q := r.URL.Query()
	delim, err := dataset.ParseDelimiter(q.Get("delimiter"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	name := q.Get("name")
	if name == "" {
		name = "upload.csv"
	}
	ds, err := dataset.ReadCSV(r.Body, name, dataset.Options{Delimiter: delim})
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	if len(ds.Headers) == 0 {
		writeError(w, http.StatusBadRequest, "empty CSV body")
		return nil, false
	}
	return ds, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", " ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
