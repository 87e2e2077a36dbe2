package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/MayukhDg/BidWinnerAI-prod/internal/api/handlers"
	appMiddleware "github.com/MayukhDg/BidWinnerAI-prod/internal/api/middlewares"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/config"
	ingest "github.com/MayukhDg/BidWinnerAI-prod/internal/core/ingestion_engine"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/core/remote"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/logger"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/metrics"
)

const shutdownTimeout = 30 * time.Second

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// NewAPIServer builds the public API routes.
func NewAPIServer(cfg *config.Config, a *App) *Server {
	docHandler := handlers.NewDocumentHandler(a.Documents, cfg.MaxUploadBytes, a.Logger)
	queryHandler := handlers.NewQueryHandler(a.Retrieval, a.Answers, a.Logger)

	r := baseRouter(a.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/health", handlers.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Use(appMiddleware.JWTMiddleware(cfg.JWTSecret))

		api.Post("/documents", docHandler.UploadDocument)
		api.Get("/documents", docHandler.GetDocuments)
		api.Get("/documents/{id}", docHandler.GetDocument)
		api.Post("/documents/{id}/process", docHandler.ProcessDocument)
		api.Delete("/documents/{id}", docHandler.DeleteDocument)

		api.Post("/search", queryHandler.Search)
		api.Post("/answers", queryHandler.Answer)
	})

	return &Server{
		httpServer: &http.Server{Addr: ":" + cfg.Port, Handler: r, ReadHeaderTimeout: 10 * time.Second},
		logger:     a.Logger,
	}
}

// NewWorkerServer exposes the synchronous ingestion RPC used in remote mode.
// It has no request timeout; the caller's WORKER_TIMEOUT bounds each call.
func NewWorkerServer(cfg *config.Config, a *App) *Server {
	return newWorkerServer(cfg, a, a.Pipeline)
}

func newWorkerServer(cfg *config.Config, a *App, ing ingest.Ingestor) *Server {
	workerHandler := handlers.NewWorkerHandler(ing, a.Logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(a.Logger))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware())

	r.Get("/health", handlers.Health)
	r.Handle("/metrics", promhttp.Handler())
	r.With(appMiddleware.WorkerKey(remote.WorkerKeyHdr, cfg.WorkerKey)).
		Post(remote.ProcessPath, workerHandler.ProcessDocument)

	return &Server{
		httpServer: &http.Server{Addr: ":" + cfg.WorkerPort, Handler: r, ReadHeaderTimeout: 10 * time.Second},
		logger:     a.Logger,
	}
}

func baseRouter(log *zap.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(metrics.Middleware())
	return r
}

// requestLogger stores a request-scoped logger in the context and emits one line per request.
func requestLogger(base *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := middleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := base.With(zap.String("request_id", requestID))
			ctx := logger.ContextWithLogger(r.Context(), reqLogger)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
