package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"clinicsync/internal/config"
	"clinicsync/internal/domain"
	"clinicsync/internal/metrics"
	"clinicsync/internal/models"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

const (
	healthPath        = "/healthz"
	defaultListLimit  = 100
	maxDeadLetterList = 1000
)

// Store is what the API needs from each side's database.
type Store interface {
	domain.QueueInspector
	PingContext(ctx context.Context) error
}

// Deps are the collaborators behind the HTTP endpoints.
type Deps struct {
	TenantID    int64
	Runner      domain.TickRunner
	Local       Store
	Cloud       Store
	DeadLetters domain.DeadLetterSink
	Logger      *zerolog.Logger
}

// HTTPServer exposes the operational endpoints of the synchronizer.
type HTTPServer struct {
	cfg    config.APIConfig
	deps   Deps
	server *http.Server
	auth   *HTTPAuth
	logger *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, deps Deps) *HTTPServer {
	logger := deps.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	mux := http.NewServeMux()
	srv := &HTTPServer{cfg: cfg, deps: deps, logger: logger}
	srv.auth = NewHTTPAuth(cfg)

	mux.HandleFunc(healthPath, srv.handleHealth)
	mux.HandleFunc("/api/v1/sync/status", srv.handleStatus)
	mux.HandleFunc("/api/v1/sync/run", srv.handleRun)
	mux.HandleFunc("/api/v1/sync/failed", srv.handleFailed)
	mux.HandleFunc("/api/v1/sync/queue", srv.handleQueue)
	mux.HandleFunc("/api/v1/sync/deadletter", srv.handleDeadLetters)

	handler := loggingMiddleware(logger, srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      2 * time.Minute,
	}

	return srv
}

func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("healthz")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	resp := map[string]string{"status": "ok"}
	for side, store := range map[models.Side]Store{models.SideLocal: s.deps.Local, models.SideCloud: s.deps.Cloud} {
		if store == nil {
			continue
		}
		if err := store.PingContext(ctx); err != nil {
			resp[string(side)] = err.Error()
			resp["status"] = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp[string(side)] = "ok"
	}
	writeJSON(w, status, resp)
}

func (s *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("status")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	local, err := s.deps.Local.CountUnprocessed(r.Context(), s.deps.TenantID)
	if err != nil {
		s.logger.Error().Err(err).Msg("status: count local queue")
		writeError(w, http.StatusInternalServerError, "local store unavailable")
		return
	}
	cloud, err := s.deps.Cloud.CountUnprocessed(r.Context(), s.deps.TenantID)
	if err != nil {
		s.logger.Error().Err(err).Msg("status: count cloud queue")
		writeError(w, http.StatusInternalServerError, "cloud store unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"account_id":        s.deps.TenantID,
		"local_unprocessed": local,
		"cloud_unprocessed": cloud,
	})
}

func (s *HTTPServer) handleRun(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("run")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	report, err := s.deps.Runner.Tick(r.Context(), s.deps.TenantID)
	if err != nil {
		s.logger.Error().Err(err).Msg("manual sync tick failed")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error(), "report": report})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *HTTPServer) handleFailed(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("failed")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	side, store, ok := s.storeFor(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "side must be local or cloud")
		return
	}

	items, err := store.ListFailed(r.Context(), s.deps.TenantID)
	if err != nil {
		s.logger.Error().Err(err).Str("side", string(side)).Msg("list failed items")
		writeError(w, http.StatusInternalServerError, "failed to list items")
		return
	}
	if items == nil {
		items = []models.QueueItem{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"side": side, "items": items})
}

// handleQueue lists pending items, optionally of one entity type. With since
// (RFC 3339) it lists everything recorded after that time instead.
func (s *HTTPServer) handleQueue(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("queue")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	side, store, ok := s.storeFor(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "side must be local or cloud")
		return
	}

	query := r.URL.Query()
	filter := models.QueueFilter{EntityType: models.EntityType(query.Get("entity_type"))}
	if raw := query.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be an RFC 3339 timestamp")
			return
		}
		filter.Since = since
	}

	items, err := store.ListQueue(r.Context(), s.deps.TenantID, filter)
	if err != nil {
		s.logger.Error().Err(err).Str("side", string(side)).Msg("list queue items")
		writeError(w, http.StatusInternalServerError, "failed to list items")
		return
	}
	if items == nil {
		items = []models.QueueItem{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"side": side, "items": items})
}

func (s *HTTPServer) storeFor(r *http.Request) (models.Side, Store, bool) {
	side := models.Side(r.URL.Query().Get("side"))
	switch side {
	case "", models.SideLocal:
		return models.SideLocal, s.deps.Local, true
	case models.SideCloud:
		return side, s.deps.Cloud, true
	default:
		return side, nil, false
	}
}

func (s *HTTPServer) handleDeadLetters(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("deadletter")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.deps.DeadLetters == nil {
		writeError(w, http.StatusNotFound, "dead letters are not kept")
		return
	}

	limit := int64(defaultListLimit)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 || n > maxDeadLetterList {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxDeadLetterList))
			return
		}
		limit = n
	}

	letters, err := s.deps.DeadLetters.List(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("list dead letters")
		writeError(w, http.StatusInternalServerError, "failed to list dead letters")
		return
	}
	if letters == nil {
		letters = []models.DeadLetter{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": letters})
}

func loggingMiddleware(logger *zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
