package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/quozen/internal/auth"
	"github.com/mmynk/quozen/internal/middleware"
	"github.com/mmynk/quozen/internal/service"
	"github.com/mmynk/quozen/internal/storage"
	"github.com/mmynk/quozen/internal/storage/memory"
	"github.com/mmynk/quozen/internal/storage/sqlite"
	"github.com/mmynk/quozen/internal/telemetry"
)

var (
	serveAddr   string
	serveMemory bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Connect RPC server",
	Long: `Serves GroupService, LedgerService and SettingsService over Connect
(HTTP/1.1 and h2c), plus Prometheus metrics on /metrics.

Every RPC requires a bearer token signed with QUOZEN_JWT_SECRET.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides QUOZEN_ADDR)")
	serveCmd.Flags().BoolVar(&serveMemory, "memory", false, "Use an in-memory store instead of SQLite")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.RequireAuth(); err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Addr = serveAddr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "quozen", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("Failed to flush traces", "error", err)
		}
	}()

	var adapter storage.Adapter
	if serveMemory {
		adapter = memory.New()
		logger.Info("Storage initialized", "backend", "memory")
	} else {
		store, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("initialize storage: %w", err)
		}
		defer store.Close()
		adapter = store
		logger.Info("Storage initialized", "backend", "sqlite", "database", cfg.DBPath)
	}
	store := storage.NewService(storage.Instrument(adapter), storage.WithLogger(logger))

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL)
	interceptors := connect.WithInterceptors(
		middleware.RequireAuth(jwtManager),
		middleware.LoggingInterceptor(logger),
	)

	mux := http.NewServeMux()
	mux.Handle(service.NewGroupServiceHandler(service.NewGroupService(store), interceptors))
	mux.Handle(service.NewLedgerServiceHandler(service.NewLedgerService(store), interceptors))
	mux.Handle(service.NewSettingsServiceHandler(service.NewSettingsService(store), interceptors))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// h2c serves HTTP/2 without TLS, which Connect and gRPC clients need.
	handler := h2c.NewHandler(loggingMiddleware(corsMiddleware(mux)), &http2.Server{})

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Connect server starting", "address", cfg.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// loggingMiddleware logs every HTTP request at debug level.
// RPC outcomes are logged by the Connect interceptor.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("Request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"user_agent", r.UserAgent(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// corsMiddleware adds CORS headers for browser access
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Connect-Protocol-Version, Connect-Timeout-Ms")
		w.Header().Set("Access-Control-Expose-Headers", "Connect-Protocol-Version, Connect-Timeout-Ms, "+
			service.ConflictExpectedHeader+", "+service.ConflictActualHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
