package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"streamqueue/internal/config"
	"streamqueue/internal/database"
	"streamqueue/internal/domain"
	"streamqueue/internal/metrics"
	"streamqueue/internal/queue"
	"streamqueue/internal/webhook"
)

// HTTPServer exposes the webhook, dashboard and overlay endpoints.
type HTTPServer struct {
	cfg      *config.Config
	db       *database.DB
	engine   *queue.Engine
	registry *queue.Registry
	cache    domain.StateCache
	filter   *webhook.Filter
	auth     *AdminAuth
	server   *http.Server
	logger   *zerolog.Logger
}

func NewHTTPServer(
	cfg *config.Config,
	db *database.DB,
	engine *queue.Engine,
	registry *queue.Registry,
	cache domain.StateCache,
	logger *zerolog.Logger,
) *HTTPServer {
	mux := http.NewServeMux()
	srv := &HTTPServer{
		cfg:      cfg,
		db:       db,
		engine:   engine,
		registry: registry,
		cache:    cache,
		filter:   webhook.NewFilter(cfg.Webhook.IncludeKeywords, cfg.Webhook.ExcludeKeywords),
		auth:     NewAdminAuth(cfg.Auth),
		logger:   logger,
	}

	mux.HandleFunc("/api/v1/webhook/order-paid", srv.handleOrderPaid)

	mux.Handle("/api/v1/queue/advance", srv.auth.Wrap(http.HandlerFunc(srv.handleAdvance)))
	mux.Handle("/api/v1/queue/skip", srv.auth.Wrap(http.HandlerFunc(srv.handleSkip)))
	mux.Handle("/api/v1/queue/reset", srv.auth.Wrap(http.HandlerFunc(srv.handleReset)))
	mux.Handle("/api/v1/queue/add", srv.auth.Wrap(http.HandlerFunc(srv.handleAdd)))
	mux.Handle("/api/v1/queue/remove", srv.auth.Wrap(http.HandlerFunc(srv.handleRemove)))
	mux.Handle("/api/v1/queue/undo", srv.auth.Wrap(http.HandlerFunc(srv.handleUndo)))
	mux.Handle("/api/v1/queue/state", srv.auth.Wrap(http.HandlerFunc(srv.handleState)))
	mux.Handle("/api/v1/queue/export", srv.auth.Wrap(http.HandlerFunc(srv.handleExport)))

	mux.HandleFunc("/api/v1/queue/public-state", srv.handlePublicState)

	mux.Handle("/api/v1/shops", srv.auth.Wrap(http.HandlerFunc(srv.handleShops)))
	mux.Handle("/api/v1/shops/delete", srv.auth.Wrap(http.HandlerFunc(srv.handleShopDelete)))
	mux.Handle("/api/v1/shops/toggle-queue", srv.auth.Wrap(http.HandlerFunc(srv.handleToggleQueue)))
	mux.Handle("/api/v1/shops/branding", srv.auth.Wrap(http.HandlerFunc(srv.handleBranding)))

	mux.HandleFunc("/healthz", srv.handleHealth)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.loggingMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

// Handler returns the full middleware chain. Used in tests.
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
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		w.Header().Set("X-Request-Id", requestID)

		next.ServeHTTP(recorder, r)

		metrics.IncHTTP(r.URL.Path)
		s.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// writeCommandError maps storage errors onto HTTP statuses for the dashboard.
func (s *HTTPServer) writeCommandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, database.ErrShopNameTaken), errors.Is(err, database.ErrDuplicateOrder):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, queue.ErrEmptyShopName), errors.Is(err, queue.ErrEmptyBrandingUpdate):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

func decodeBody(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
