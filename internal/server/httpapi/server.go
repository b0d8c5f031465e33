// Package httpapi exposes the forum over JSON/HTTP. Every handler that
// touches the database runs inside a pooled session bound to the request.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/gophforum/internal/dbx"
	"github.com/dmitrijs2005/gophforum/internal/logging"
	"github.com/dmitrijs2005/gophforum/internal/server/metrics"
	"github.com/dmitrijs2005/gophforum/internal/server/models"
	"github.com/gorilla/mux"
)

type AccountService interface {
	Register(ctx context.Context, db dbx.DBTX, username, password string) (*models.Account, string, error)
	Login(ctx context.Context, tr dbx.Transactor, username, password string) (string, error)
	Get(ctx context.Context, db dbx.DBTX, id int64) (*models.Account, error)
	Authenticate(ctx context.Context, token string) (int64, error)
}

type ForumService interface {
	CreateThread(ctx context.Context, db dbx.DBTX, creatorID int64, title string) (*models.Thread, error)
	ListThreads(ctx context.Context, db dbx.DBTX) ([]models.ThreadSummary, error)
	GetThread(ctx context.Context, db dbx.DBTX, id int64) (*models.ThreadDetail, error)
	PostMessage(ctx context.Context, tr dbx.Transactor, creatorID, threadID int64, content string) (*models.Message, error)
}

type Server struct {
	address         string
	pool            *dbx.Pool
	accounts        AccountService
	forum           ForumService
	metrics         *metrics.Collector
	logger          logging.Logger
	shutdownTimeout time.Duration
}

type Option func(*Server)

func WithMetrics(c *metrics.Collector) Option {
	return func(s *Server) { s.metrics = c }
}

func WithLogger(l logging.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) { s.shutdownTimeout = d }
}

func NewServer(address string, pool *dbx.Pool, accounts AccountService, forum ForumService, opts ...Option) *Server {
	s := &Server{
		address:         address,
		pool:            pool,
		accounts:        accounts,
		forum:           forum,
		logger:          logging.Nop(),
		shutdownTimeout: 10 * time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With("module", "http_server")
	return s
}

// Handler builds the router with the full middleware chain.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.requestID, s.accessLog, s.instrument, s.recoverer)

	r.HandleFunc("/account", s.bind(s.register)).Methods(http.MethodPost)
	r.HandleFunc("/login", s.bind(s.login)).Methods(http.MethodPost)
	r.HandleFunc("/account/{id:[0-9]+}", s.bind(s.getAccount)).Methods(http.MethodGet)
	r.HandleFunc("/thread", s.bind(s.listThreads)).Methods(http.MethodGet)
	r.HandleFunc("/thread/{id:[0-9]+}", s.bind(s.getThread)).Methods(http.MethodGet)
	r.Handle("/thread", s.authenticated(s.bind(s.createThread))).Methods(http.MethodPost)
	r.Handle("/thread/{id:[0-9]+}", s.authenticated(s.bind(s.postMessage))).Methods(http.MethodPost)

	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

func (s *Server) Serve(ctx context.Context, listen net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")

		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
		defer cancel()
		shutdownErr <- srv.Shutdown(sctx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return <-shutdownErr
}
