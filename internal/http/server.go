// Package http provides the HTTP API and monitoring endpoints for the
// cover search service.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"coverhound/internal/core"
	"coverhound/internal/flood"
	"coverhound/internal/store"
	"coverhound/pkg/covers"
	"coverhound/pkg/query"
)

// Searcher is the aggregated cover search the API fronts.
type Searcher interface {
	Search(ctx context.Context, artist, album, title string) []covers.CoverSearchResult
}

// Historian records searches and serves the recent search log.
type Historian interface {
	Record(ctx context.Context, record store.SearchRecord) error
	Recent(ctx context.Context, limit int) ([]store.SearchRecord, error)
}

type Server struct {
	config   *core.ServerConfig
	logger   *zap.Logger
	server   *http.Server
	metrics  *Metrics
	searcher Searcher
	cache    *store.Cache
	history  Historian
	gate     *flood.Floodgate
	parser   *query.Parser
}

type Metrics struct {
	SearchesTotal  *prometheus.CounterVec
	ResultsTotal   prometheus.Counter
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	SearchDuration prometheus.Histogram
	CacheSize      prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	metrics := &Metrics{
		SearchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coverhound_searches_total",
				Help: "Total number of search requests",
			},
			[]string{"status"},
		),
		ResultsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "coverhound_results_total",
				Help: "Total number of cover results returned",
			},
		),
		CacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "coverhound_cache_hits_total",
				Help: "Total number of cache hits",
			},
		),
		CacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "coverhound_cache_misses_total",
				Help: "Total number of cache misses",
			},
		),
		SearchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "coverhound_search_duration_seconds",
				Help:    "Time spent resolving searches",
				Buckets: prometheus.DefBuckets,
			},
		),
		CacheSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "coverhound_cache_size",
				Help: "Current number of cached result sets",
			},
		),
	}

	reg.MustRegister(
		metrics.SearchesTotal,
		metrics.ResultsTotal,
		metrics.CacheHits,
		metrics.CacheMisses,
		metrics.SearchDuration,
		metrics.CacheSize,
	)

	return metrics
}

// NewServer wires the API around the given collaborators. cache, history
// and gate may be nil; the corresponding behavior is then skipped.
func NewServer(config *core.ServerConfig, logger *zap.Logger, searcher Searcher, cache *store.Cache, history Historian, gate *flood.Floodgate) *Server {
	return newServerWithRegistry(config, logger, searcher, cache, history, gate, prometheus.DefaultRegisterer)
}

func newServerWithRegistry(config *core.ServerConfig, logger *zap.Logger, searcher Searcher, cache *store.Cache, history Historian, gate *flood.Floodgate, reg prometheus.Registerer) *Server {
	s := &Server{
		config:   config,
		logger:   logger,
		metrics:  newMetrics(reg),
		searcher: searcher,
		cache:    cache,
		history:  history,
		gate:     gate,
		parser:   query.NewParser(),
	}
	s.server = createHTTPServer(config, s.routes())
	return s
}

func createHTTPServer(config *core.ServerConfig, mux http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      mux,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/search", s.handleSearch)
	mux.HandleFunc("/api/history", s.handleHistory)

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "coverhound"})
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "service": "coverhound"})
	})

	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

type searchResponse struct {
	Artist   string                     `json:"artist"`
	Album    string                     `json:"album"`
	Title    string                     `json:"title"`
	CacheHit bool                       `json:"cache_hit"`
	Count    int                        `json:"count"`
	Results  []covers.CoverSearchResult `json:"results"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if s.gate != nil && !s.gate.Allow(clientID(r)) {
		s.metrics.SearchesTotal.WithLabelValues("rate_limited").Inc()
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
		return
	}

	params := r.URL.Query()
	artist := params.Get("artist")
	album := params.Get("album")
	title := params.Get("title")

	if artist == "" && album == "" && title == "" {
		if freetext := params.Get("q"); freetext != "" {
			parsed := s.parser.Parse(freetext, params.Get("kind") == "track")
			artist, album, title = parsed.Artist, parsed.Album, parsed.Title
		}
	}

	if artist == "" && album == "" && title == "" {
		s.metrics.SearchesTotal.WithLabelValues("bad_request").Inc()
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "at least one of artist, album, title or q is required"})
		return
	}

	key := store.Key(artist, album, title)

	var results []covers.CoverSearchResult
	cacheHit := false
	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			results = cached
			cacheHit = true
			s.metrics.CacheHits.Inc()
		} else {
			s.metrics.CacheMisses.Inc()
		}
	}

	if !cacheHit {
		results = s.searcher.Search(r.Context(), artist, album, title)
		if s.cache != nil {
			s.cache.Put(key, results)
			s.metrics.CacheSize.Set(float64(s.cache.Len()))
		}
	}

	duration := time.Since(start)
	s.metrics.SearchesTotal.WithLabelValues("ok").Inc()
	s.metrics.ResultsTotal.Add(float64(len(results)))
	s.metrics.SearchDuration.Observe(duration.Seconds())

	if s.history != nil {
		record := store.SearchRecord{
			Artist:      artist,
			Album:       album,
			Title:       title,
			ResultCount: len(results),
			CacheHit:    cacheHit,
			Duration:    duration,
			CreatedAt:   time.Now(),
		}
		if err := s.history.Record(r.Context(), record); err != nil {
			s.logger.Warn("Failed to record search", zap.Error(err))
		}
	}

	if results == nil {
		results = []covers.CoverSearchResult{}
	}
	writeJSON(w, http.StatusOK, searchResponse{
		Artist:   artist,
		Album:    album,
		Title:    title,
		CacheHit: cacheHit,
		Count:    len(results),
		Results:  results,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "history is disabled"})
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	records, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to query history", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to query history"})
		return
	}
	if records == nil {
		records = []store.SearchRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// clientID identifies the caller for rate limiting purposes.
func clientID(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status line is already committed; an encode failure here only
	// truncates the body.
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server",
		zap.String("addr", s.server.Addr))

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to shutdown HTTP server gracefully", zap.Error(err))
		}
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

func (s *Server) GetMetrics() *Metrics {
	return s.metrics
}
