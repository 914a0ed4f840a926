package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/avillegas/payticket/internal/db"
	"github.com/avillegas/payticket/internal/handlers"
	"github.com/avillegas/payticket/internal/handlers/middleware"
	"github.com/avillegas/payticket/internal/logger"
	"github.com/avillegas/payticket/internal/repository/postgres"
	"github.com/avillegas/payticket/internal/service/issuer"
	"github.com/avillegas/payticket/internal/service/verifier"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	log, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	// Initialize repositories
	storage := postgres.NewStorage(pool)

	// Initialize services. The bundled postgres lookup serves as the
	// payment snapshot provider here; a host system embedding these
	// services may inject its own.
	issuerService, err := issuer.New(
		issuer.Config{TTL: time.Duration(c.TokenTTLMinutes) * time.Minute},
		storage,
		storage.Payments(),
	)
	if err != nil {
		return nil, fmt.Errorf("error while creating issuer. Err: %w", err)
	}
	verifierService, err := verifier.New(verifier.Config{}, storage.Tokens(), storage.Payments())
	if err != nil {
		return nil, fmt.Errorf("error while creating verifier. Err: %w", err)
	}

	// Initialize handlers
	tokenHandler := handlers.NewToken(issuerService, verifierService, log)

	mux := handlers.NewRouter(
		tokenHandler,
		middleware.LoggerMiddleware(log),
	)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
	}, nil
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); err == context.DeadlineExceeded {
			slog.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		slog.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	slog.Info("Starting server", "addr", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	return err
}
