package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"incidentdesk/api/handlers"
	"incidentdesk/config"
	"incidentdesk/core/analytics"
	"incidentdesk/core/audit"
	"incidentdesk/core/auth"
	"incidentdesk/core/export"
	"incidentdesk/core/incidents"
	"incidentdesk/core/notify"
	"incidentdesk/core/rbac"
	"incidentdesk/core/uploads"
	"incidentdesk/core/users"
	"incidentdesk/core/utils"

	"github.com/go-chi/chi/v5"
)

// BackgroundWorker is a long-running component started and stopped with the server.
type BackgroundWorker interface {
	StartWithContext(ctx context.Context) error
	StopWithContext(ctx context.Context) error
}

type ServerDeps struct {
	DB         handlers.Pinger
	Policy     *rbac.Policy
	Audit      *audit.Recorder
	AuditQuery *audit.Query
	Auth       *auth.Service
	Incidents  *incidents.Service
	Users      *users.Service
	Analytics  *analytics.Service
	Export     *export.Service
	Uploads    *uploads.Service
	Hub        *notify.Hub
	Metrics    *Metrics
}

type Server struct {
	cfg           *config.AppConfig
	deps          ServerDeps
	policy        *rbac.Policy
	auth          *auth.Service
	responder     *handlers.Responder
	metrics       *Metrics
	authLimiter   *requestLimiter
	uploadLimiter *requestLimiter
	logger        *utils.Logger
	router        chi.Router
	httpServer    *http.Server
	workers       []BackgroundWorker
}

func NewServer(cfg *config.AppConfig, deps ServerDeps, workers []BackgroundWorker, logger *utils.Logger) *Server {
	s := &Server{
		cfg:           cfg,
		deps:          deps,
		policy:        deps.Policy,
		auth:          deps.Auth,
		responder:     handlers.NewResponder(deps.Audit, logger),
		metrics:       deps.Metrics,
		authLimiter:   newLimiter(cfg.Security.AuthRatePerMin, cfg.Security.AuthBurst),
		uploadLimiter: newLimiter(cfg.Security.UploadRatePerMin, cfg.Security.UploadBurst),
		logger:        logger,
		workers:       workers,
	}
	s.router = s.routes()
	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Run starts the workers and serves until ctx ends, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	for _, w := range s.workers {
		if err := w.StartWithContext(ctx); err != nil {
			return err
		}
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("listening addr=%s tls=%t", s.cfg.ListenAddr, s.cfg.TLSEnabled)
		var err error
		if s.cfg.TLSEnabled {
			err = s.httpServer.ListenAndServeTLS(s.cfg.TLSCert, s.cfg.TLSKey)
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()
	select {
	case err := <-errCh:
		s.stopWorkers()
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	err := s.httpServer.Shutdown(shutdownCtx)
	s.stopWorkers()
	if serveErr := <-errCh; serveErr != nil && err == nil {
		err = serveErr
	}
	return err
}

func (s *Server) stopWorkers() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for i := len(s.workers) - 1; i >= 0; i-- {
		if err := s.workers[i].StopWithContext(ctx); err != nil {
			s.logger.Warnf("worker stop: %v", err)
		}
	}
}
