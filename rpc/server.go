package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"lendledger/config"
	"lendledger/core/ledger"
)

// Config holds the HTTP server settings.
type Config struct {
	Address           string
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxBodyBytes      int64
	Auth              AuthConfig
	RateLimit         RateLimit
}

// ConfigFromNode derives the server settings from the node configuration.
func ConfigFromNode(cfg *config.Config) Config {
	return Config{
		Address:           cfg.RPCAddress,
		ReadHeaderTimeout: time.Duration(cfg.RPCReadHeaderTimeout) * time.Second,
		ReadTimeout:       time.Duration(cfg.RPCReadTimeout) * time.Second,
		WriteTimeout:      time.Duration(cfg.RPCWriteTimeout) * time.Second,
		IdleTimeout:       time.Duration(cfg.RPCIdleTimeout) * time.Second,
		MaxBodyBytes:      cfg.MaxBodyBytes,
		Auth: AuthConfig{
			HMACSecret:          cfg.AuthSecret(),
			Issuer:              cfg.Auth.Issuer,
			Audience:            cfg.Auth.Audience,
			AllowAnonymousReads: cfg.Auth.AllowAnonymousReads,
		},
		RateLimit: RateLimit{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		},
	}
}

// Server exposes the ledger over HTTP/JSON.
type Server struct {
	ledger  *ledger.Ledger
	cfg     Config
	logger  *slog.Logger
	auth    *Authenticator
	limiter *RateLimiter
	handler http.Handler
}

func NewServer(l *ledger.Ledger, cfg Config, logger *slog.Logger) (*Server, error) {
	if l == nil {
		return nil, errors.New("rpc: ledger required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	s := &Server{
		ledger:  l,
		cfg:     cfg,
		logger:  logger,
		auth:    NewAuthenticator(cfg.Auth, logger),
		limiter: NewRateLimiter(cfg.RateLimit),
	}
	s.handler = s.routes()
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.limiter.Middleware("lending"))
		r.Group(func(r chi.Router) {
			r.Use(s.auth.Middleware(ScopeRead))
			r.Get("/pools", s.handlePools)
			r.Get("/pools/{asset}", s.handlePool)
			r.Get("/accounts/{account}", s.handleAccount)
			r.Get("/rankings", s.handleRankings)
			r.Get("/root", s.handleRoot)
		})
		r.With(s.auth.Middleware(ScopeWrite)).Post("/actions", s.handleAction)
	})
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Serve listens on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           otelhttp.NewHandler(s, "lendledger.rpc"),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
	}

	errs := make(chan error, 1)
	go func() {
		s.logger.Info("rpc listening",
			slog.String("address", s.cfg.Address),
			slog.Bool("auth", s.auth.Enabled()))
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return fmt.Errorf("rpc shutdown: %w", err)
		}
		return nil
	case err := <-errs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
