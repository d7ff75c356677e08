package gateway

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/impbridge/impbridge/internal/config"
	"github.com/impbridge/impbridge/internal/logging"
	"github.com/impbridge/impbridge/internal/metrics"
	"github.com/impbridge/impbridge/internal/profile"
	"github.com/impbridge/impbridge/internal/refresh"
	"github.com/impbridge/impbridge/internal/store"
)

// Server runs the two directional listeners on top of one refresh
// controller and one profile store.
type Server struct {
	cfg        *config.Config
	store      store.Store
	controller *refresh.Controller
	collector  *metrics.Collector
	watcher    *config.ProfileWatcher

	terminated *http.Server
	originated *http.Server
}

// NewServer wires the store, controller and listeners from configuration.
func NewServer(cfg *config.Config) (*Server, error) {
	st, err := store.Open(cfg.Database.Kind, cfg.Database.Connection)
	if err != nil {
		return nil, fmt.Errorf("opening profile store: %w", err)
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector()
	}

	controller := refresh.NewController(refresh.Options{
		Store:         st,
		Wait:          cfg.WaitOnForward,
		DispatchLimit: cfg.DispatchLimit,
		Logger:        logging.Global(),
		Metrics:       collector,
	})

	s := &Server{
		cfg:        cfg,
		store:      st,
		controller: controller,
		collector:  collector,
	}

	var metricsHandler http.Handler
	if collector != nil {
		metricsHandler = collector.Handler()
	}
	terminated := NewInstance(InstanceOptions{
		Direction:   profile.RemoteTerminated,
		Controller:  controller,
		Timeout:     cfg.ResponseTimeout,
		Logger:      logging.Global(),
		Metrics:     metricsHandler,
		MetricsPath: cfg.Metrics.Path,
	})
	originated := NewInstance(InstanceOptions{
		Direction:  profile.RemoteOriginated,
		Controller: controller,
		Timeout:    cfg.ResponseTimeout,
		Logger:     logging.Global(),
	})

	s.terminated = &http.Server{
		Addr:        cfg.RemoteTerminated.Address,
		Handler:     terminated.Handler(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	s.originated = &http.Server{
		Addr:        cfg.RemoteOriginated.Address,
		Handler:     originated.Handler(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// The file backend can react to edits immediately; databases are
	// covered by the refresh timer.
	if cfg.Database.Kind == store.KindFile {
		watcher, err := config.NewProfileWatcher(cfg.Database.Connection)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("watching profile directory: %w", err)
		}
		watcher.OnChange(func() {
			if _, err := controller.Refresh(context.Background()); err != nil {
				logging.Error("refresh after profile change failed", zap.Error(err))
			}
		})
		s.watcher = watcher
	}

	return s, nil
}

// Controller exposes the refresh controller, mainly for tests.
func (s *Server) Controller() *refresh.Controller { return s.controller }

// Start loads the initial routing state and brings up both listeners.
func (s *Server) Start() error {
	if _, err := s.controller.Refresh(context.Background()); err != nil {
		return fmt.Errorf("initial profile load: %w", err)
	}
	s.controller.Start(s.cfg.Database.Refresh)
	if s.watcher != nil {
		if err := s.watcher.Start(); err != nil {
			return fmt.Errorf("starting profile watcher: %w", err)
		}
	}

	errCh := make(chan error, 2)
	go func() {
		logging.Info("remote-terminated listener up",
			zap.String("address", s.cfg.RemoteTerminated.Address))
		if err := s.listen(s.terminated, s.cfg.RemoteTerminated); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("remote-terminated listener: %w", err)
		}
	}()
	go func() {
		logging.Info("remote-originated listener up",
			zap.String("address", s.cfg.RemoteOriginated.Address),
			zap.Bool("tls", s.cfg.RemoteOriginated.TLS.Enabled()))
		if err := s.listen(s.originated, s.cfg.RemoteOriginated); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("remote-originated listener: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

func (s *Server) listen(srv *http.Server, lst config.Listener) error {
	if lst.TLS.Enabled() {
		return srv.ListenAndServeTLS(lst.TLS.CertFile, lst.TLS.KeyFile)
	}
	return srv.ListenAndServe()
}

// Run starts the server and blocks until shutdown. SIGHUP triggers a
// routing refresh; SIGINT/SIGTERM shut down gracefully.
func (s *Server) Run() error {
	if err := s.Start(); err != nil {
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range quit {
		switch sig {
		case syscall.SIGHUP:
			result, err := s.controller.Refresh(context.Background())
			if err != nil {
				logging.Error("refresh on SIGHUP failed", zap.Error(err))
			} else {
				logging.Info("refresh on SIGHUP complete",
					zap.Int("clients", result.Clients),
					zap.Any("routes", result.Routes))
			}
		default:
			logging.Info("shutting down")
			return s.Shutdown(s.cfg.ResponseTimeout)
		}
	}
	return nil
}

// Shutdown stops both listeners, drains in-flight background forwards
// and releases the store.
func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if s.watcher != nil {
		s.watcher.Stop()
	}
	if err := s.terminated.Shutdown(ctx); err != nil {
		logging.Error("remote-terminated shutdown error", zap.Error(err))
	}
	if err := s.originated.Shutdown(ctx); err != nil {
		logging.Error("remote-originated shutdown error", zap.Error(err))
	}

	if !s.controller.Drain(timeout) {
		logging.Warn("background forwards still pending at shutdown")
	}
	s.controller.Close()

	if err := s.store.Close(); err != nil {
		logging.Error("store close error", zap.Error(err))
		return err
	}
	logging.Info("shutdown complete")
	return nil
}
