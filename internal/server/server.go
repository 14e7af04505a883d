package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Server defines fields used in HTTP processing
type Server struct {
	logger        *zap.SugaredLogger
	httpServer    *http.Server
	afterShutdown []func()
	tasks         []func(ctx context.Context) error
}

// NewServer returns new Server serving the status, send-message and get-messages endpoints
// plus any route added with WithWebsocket
func NewServer(logger *zap.SugaredLogger, r Relay, hist History, opts ...Option) (*Server, error) {
	if r == nil || hist == nil {
		return nil, errors.New("server: relay and history are required")
	}

	h := &handler{
		logger:  logger,
		relay:   r,
		history: hist,
	}

	c := &config{
		httpServer: &http.Server{Addr: ":9000"},
		routes: map[string]route{
			"/status":       {kind: routeGet, handler: http.HandlerFunc(h.status)},
			"/send-message": {kind: routePost, handler: http.HandlerFunc(h.sendMessage)},
			"/get-messages": {kind: routePost, handler: http.HandlerFunc(h.getMessages)},
		},
		handlerTimeout: defaultHandlerTimeout,
		timeoutMessage: defaultTimeoutMessage,
	}

	for _, opt := range opts {
		opt.apply(c)
	}

	for _, opt := range []Option{
		applyEnforcePostJson(),
		applyTimeout(),
		applyLog(logger.Desugar()),
		registerHandlers(),
	} {
		opt.apply(c)
	}

	return &Server{
		logger:        logger,
		httpServer:    c.httpServer,
		afterShutdown: c.afterShutdown,
		tasks:         c.tasks,
	}, nil
}

// Handler returns the fully wrapped root handler
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start calls ListenAndServe on http.Server instance inside Server struct together with the
// registered tasks, and shuts everything down once ctx is done or any of them fails
func (s *Server) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Infof("Starting HTTP server on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("s.httpServer.ListenAndServe: %w", err)
		}
		return nil
	})

	for _, task := range s.tasks {
		task := task
		g.Go(func() error {
			return task(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()

		s.logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := s.httpServer.Shutdown(shutdownCtx)
		if err != nil {
			s.logger.Errorf("srv.Shutdown: %v", err)
		}
		s.logger.Info("HTTP server is stopped")

		for _, f := range s.afterShutdown {
			f()
		}

		return err
	})

	return g.Wait()
}
