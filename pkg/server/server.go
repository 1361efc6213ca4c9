// Package server exposes the query coordinator over HTTP: search,
// feedback submission, stats, health, and config discovery.
//
// It is a thin net/http adapter. Every real decision (fusion, boosting,
// reranking, logging) happens in pkg/coordinator; this package only
// decodes requests, enforces the API-key and rate-limit gates, and
// encodes responses.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/saagar210/AssistSupport/pkg/article"
	appconfig "github.com/saagar210/AssistSupport/pkg/config"
	"github.com/saagar210/AssistSupport/pkg/coordinator"
	"github.com/saagar210/AssistSupport/pkg/pool"
)

// ErrServerClosed is returned by Start after Stop has been called.
var ErrServerClosed = errors.New("server: already closed")

// Config controls the HTTP listener and request gating. It is distinct
// from config.RuntimeConfig: this struct is server-specific wiring, while
// RuntimeConfig is the environment-derived source of truth the caller
// builds it from.
type Config struct {
	Address string
	Port    int

	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxRequestSize int64

	// APIKey gates every endpoint except /health and /config when
	// RequireAuth is true. Matches the Authorization: Bearer <key>
	// convention, not HTTP Basic.
	APIKey      string
	RequireAuth bool

	EnableCORS  bool
	CORSOrigins []string

	// Rate limiting gates /search, /feedback, and /stats per client IP.
	// It is a single-process in-memory limiter; a shared store behind
	// RuntimeConfig.RateLimitStorageURI is expected for multi-replica
	// deployments but is not implemented by this adapter.
	RateLimitEnabled   bool
	RateLimitPerMinute int
	RateLimitPerHour   int
	RateLimitBurst     int

	Version string
}

// DefaultConfig returns sane defaults for local development: no auth
// required, CORS wide open, a 10MB request cap.
func DefaultConfig() *Config {
	return &Config{
		Address:        "0.0.0.0",
		Port:           3000,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   60 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxRequestSize: 10 * 1024 * 1024,
		RequireAuth:    false,
		EnableCORS:     true,
		CORSOrigins:    []string{"*"},

		RateLimitEnabled:   false,
		RateLimitPerMinute: 60,
		RateLimitPerHour:   1000,
		RateLimitBurst:     10,

		Version: "1.0.0",
	}
}

// Server is the HTTP frontend for one Coordinator.
type Server struct {
	config      *Config
	coordinator *coordinator.Coordinator

	httpServer  *http.Server
	listener    net.Listener
	rateLimiter *IPRateLimiter

	// apiKeyDigest is the PBKDF2 digest withAuth compares incoming
	// bearer tokens against, derived once in New from config.APIKey.
	apiKeyDigest []byte

	mu      sync.RWMutex
	closed  atomic.Bool
	started time.Time

	requestCount   atomic.Int64
	errorCount     atomic.Int64
	activeRequests atomic.Int64
}

// New builds a Server around coord. config may be nil to use
// DefaultConfig().
func New(coord *coordinator.Coordinator, config *Config) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if coord == nil {
		return nil, fmt.Errorf("server: coordinator required")
	}
	srv := &Server{config: config, coordinator: coord}
	if config.RequireAuth {
		srv.apiKeyDigest = appconfig.DeriveAPIKeyDigest(config.APIKey)
	}
	if config.RateLimitEnabled {
		srv.rateLimiter = NewIPRateLimiter(config.RateLimitPerMinute, config.RateLimitPerHour, config.RateLimitBurst)
	}
	return srv, nil
}

// Start binds the listener and begins serving in the background. It
// returns once the listener is open; request handling continues in a
// goroutine until Stop is called.
func (s *Server) Start() error {
	if s.closed.Load() {
		return ErrServerClosed
	}

	addr := fmt.Sprintf("%s:%d", s.config.Address, s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: failed to listen on %s: %w", addr, err)
	}

	s.listener = listener
	s.started = time.Now()

	s.httpServer = &http.Server{
		Handler:      s.buildRouter(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("server: http serve error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server, waiting for in-flight requests
// to finish or ctx to expire, whichever comes first.
func (s *Server) Stop(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Addr returns the server's bound listen address, or "" if not started.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// RuntimeStats reports request counters, distinct from the search-domain
// Stats the coordinator computes.
type RuntimeStats struct {
	Uptime         time.Duration
	RequestCount   int64
	ErrorCount     int64
	ActiveRequests int64
}

// RuntimeStats returns current server-level request counters.
func (s *Server) RuntimeStats() RuntimeStats {
	return RuntimeStats{
		Uptime:         time.Since(s.started),
		RequestCount:   s.requestCount.Load(),
		ErrorCount:     s.errorCount.Load(),
		ActiveRequests: s.activeRequests.Load(),
	}
}

func (s *Server) buildRouter() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/config", s.handleConfig)
	mux.HandleFunc("/search", s.withAuth(s.handleSearch))
	mux.HandleFunc("/feedback", s.withAuth(s.handleFeedback))
	mux.HandleFunc("/stats", s.withAuth(s.handleStats))

	handler := s.corsMiddleware(mux)
	handler = s.rateLimitMiddleware(handler)
	handler = s.loggingMiddleware(handler)
	handler = s.recoveryMiddleware(handler)
	handler = s.metricsMiddleware(handler)
	return handler
}

// =============================================================================
// Middleware
// =============================================================================

// withAuth enforces the Authorization: Bearer <api_key> header when
// RequireAuth is set. Disabled by default so local development and tests
// never need a token.
func (s *Server) withAuth(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.config.RequireAuth {
			handler(w, r)
			return
		}
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			s.writeError(w, http.StatusUnauthorized, "missing or invalid Authorization header")
			return
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if !appconfig.VerifyAPIKey(token, s.apiKeyDigest) {
			s.writeError(w, http.StatusForbidden, "invalid API key")
			return
		}
		handler(w, r)
	}
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.EnableCORS {
			origin := r.Header.Get("Origin")
			if origin == "" {
				origin = "*"
			}
			allowed := false
			for _, o := range s.config.CORSOrigins {
				if o == "*" || o == origin {
					allowed = true
					break
				}
			}
			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		if r.URL.Path != "/health" {
			log.Printf("[http] %s %s %d %v", r.Method, r.URL.Path, wrapped.status, time.Since(start))
		}
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				buf := make([]byte, 4096)
				n := runtime.Stack(buf, false)
				log.Printf("server: panic: %v\n%s", rec, buf[:n])
				s.errorCount.Add(1)
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requestCount.Add(1)
		s.activeRequests.Add(1)
		defer s.activeRequests.Add(-1)
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Handlers
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "assistsupport hybrid search api",
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"api_url": fmt.Sprintf("http://%s:%d", s.config.Address, s.config.Port),
		"version": s.config.Version,
		"features": map[string]bool{
			"hybrid_search":       true,
			"intent_detection":    true,
			"feedback_collection": true,
		},
	})
}

type searchRequest struct {
	Query          string                 `json:"query"`
	TopK           int                    `json:"top_k"`
	IncludeScores  bool                   `json:"include_scores"`
	FusionStrategy article.FusionStrategy `json:"fusion_strategy"`
}

type searchResultScores struct {
	BM25   float64 `json:"bm25"`
	Vector float64 `json:"vector"`
	Fused  float64 `json:"fused"`
}

type searchResultRow struct {
	Rank           int                 `json:"rank"`
	ArticleID      article.ID          `json:"article_id"`
	Title          string              `json:"title"`
	Category       article.Category    `json:"category"`
	Preview        string              `json:"preview"`
	SourceDocument string              `json:"source_document,omitempty"`
	Section        string              `json:"section,omitempty"`
	Scores         *searchResultScores `json:"scores,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req searchRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "request body required")
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		s.writeError(w, http.StatusBadRequest, "query parameter required")
		return
	}

	resp, err := s.coordinator.Search(r.Context(), coordinator.Request{
		Query:          req.Query,
		TopK:           req.TopK,
		FusionStrategy: req.FusionStrategy,
	})
	if err != nil {
		s.writeSearchError(w, err)
		return
	}

	// Scratch-build the row slice through the shared candidate pool
	// rather than a fresh append-growth allocation per request.
	scratch := pool.GetCandidateSlice()
	defer pool.PutCandidateSlice(scratch)
	for _, row := range resp.Results {
		scratch = append(scratch, &pool.PooledCandidate{
			ArticleID:   string(row.ArticleID),
			FusionScore: row.Score,
			BM25Score:   row.BM25Score,
			VectorScore: row.VectorScore,
		})
	}

	rows := make([]searchResultRow, 0, len(resp.Results))
	for i, row := range resp.Results {
		out := searchResultRow{
			Rank:           row.Rank,
			ArticleID:      row.ArticleID,
			Title:          row.Title,
			Category:       row.Category,
			Preview:        row.Preview,
			SourceDocument: row.SourceDocumentID,
			Section:        row.HeadingPath,
		}
		if req.IncludeScores {
			out.Scores = &searchResultScores{
				BM25:   scratch[i].BM25Score,
				Vector: scratch[i].VectorScore,
				Fused:  scratch[i].FusionScore,
			}
		}
		rows = append(rows, out)
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "success",
		"query":             req.Query,
		"query_id":          resp.QueryID,
		"intent":            resp.Intent,
		"intent_confidence": round2(resp.IntentConfidence),
		"results_count":     len(rows),
		"results":           rows,
		"metrics": map[string]interface{}{
			"latency_ms":        round1(resp.Metrics.TotalMS),
			"embedding_time_ms": round1(resp.Metrics.EmbeddingMS),
			"search_time_ms":    round1(resp.Metrics.RetrievalMS),
			"rerank_time_ms":    round1(resp.Metrics.RerankMS),
			"result_count":      len(rows),
			"cache_hit":         resp.Metrics.CacheHit,
			"timestamp":         time.Now().UTC().Format(time.RFC3339),
		},
	})
}

func (s *Server) writeSearchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, coordinator.ErrInvalidQuery):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		s.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"status":    "error",
			"error":     "request timed out",
			"timeout":   true,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	default:
		s.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"status":    "error",
			"error":     err.Error(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

type feedbackRequest struct {
	QueryID    string         `json:"query_id"`
	ResultRank int            `json:"result_rank"`
	ArticleID  article.ID     `json:"article_id"`
	Rating     article.Rating `json:"rating"`
	Comment    string         `json:"comment"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req feedbackRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "request body required")
		return
	}
	if req.QueryID == "" || req.ResultRank == 0 || req.Rating == "" {
		s.writeError(w, http.StatusBadRequest, "query_id, result_rank, and rating required")
		return
	}
	if !req.Rating.Valid() {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid rating: %s", req.Rating))
		return
	}

	err := s.coordinator.SubmitFeedback(r.Context(), article.FeedbackEntry{
		QueryID:    req.QueryID,
		ResultRank: req.ResultRank,
		ArticleID:  req.ArticleID,
		Rating:     req.Rating,
		Comment:    req.Comment,
	})
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"status": "error", "error": err.Error()})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "success",
		"message":   "feedback recorded",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	stats, err := s.coordinator.Stats(r.Context(), 24*time.Hour)
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"status": "error", "error": err.Error()})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"data": map[string]interface{}{
			"queries_total":       stats.QueriesTotal,
			"queries_24h":         stats.QueriesInWindow,
			"latency_ms": map[string]float64{
				"avg": round1(stats.Latency.Avg),
				"p50": round1(stats.Latency.P50),
				"p95": round1(stats.Latency.P95),
				"p99": round1(stats.Latency.P99),
			},
			"intent_distribution": stats.IntentCounts,
			"fusion_strategy_mix": stats.FusionStrategyMix,
			"feedback_counts":     stats.FeedbackCounts,
		},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// =============================================================================
// JSON helpers
// =============================================================================

func (s *Server) readJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return fmt.Errorf("server: empty request body")
	}
	body := io.LimitReader(r.Body, s.config.MaxRequestSize)
	return json.NewDecoder(body).Decode(v)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.errorCount.Add(1)
	s.writeJSON(w, status, map[string]interface{}{"error": message})
}

func round1(v float64) float64 { return roundN(v, 10) }
func round2(v float64) float64 { return roundN(v, 100) }

func roundN(v float64, n float64) float64 {
	return float64(int64(v*n+0.5)) / n
}
