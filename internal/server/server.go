// Package server exposes the monitor over HTTP: a command endpoint, a
// listing of monitored processes and a websocket snapshot stream.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"github.com/nhdewitt/threadmon/internal/broadcast"
	"github.com/nhdewitt/threadmon/internal/protocol"
)

// Commander executes inbound commands on the scheduler.
type Commander interface {
	Handle(ctx context.Context, cmd protocol.Command) protocol.CommandResult
	AddedPIDs(ctx context.Context) ([]protocol.ProcessIdentity, error)
}

// Subscriber hands out snapshot subscriptions.
type Subscriber interface {
	Subscribe(buffer int) (*broadcast.Subscription, error)
}

type Config struct {
	Addr     string
	Hostname string

	// CommandTimeout bounds how long a request waits for the scheduler.
	CommandTimeout time.Duration
}

type Server struct {
	Config Config
	Router *http.ServeMux

	cmds   Commander
	subs   Subscriber
	logger hclog.Logger

	wsUpgrader websocket.Upgrader
}

func New(cfg Config, cmds Commander, subs Subscriber, logger hclog.Logger) *Server {
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	s := &Server{
		Config: cfg,
		Router: http.NewServeMux(),
		cmds:   cmds,
		subs:   subs,
		logger: logger.Named("server"),
		wsUpgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.HandleFunc("/api/v1/command", s.handleCommand)
	s.Router.HandleFunc("/api/v1/pids", s.handlePIDs)
	s.Router.HandleFunc("/api/v1/stream", s.handleStream)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:        s.Config.Addr,
		Handler:     s.Router,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.Config.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
