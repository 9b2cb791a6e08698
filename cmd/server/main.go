package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/DGApex/CRT-INV/internal/config"
	"github.com/DGApex/CRT-INV/internal/gateway"
	"github.com/DGApex/CRT-INV/internal/handler"
	"github.com/DGApex/CRT-INV/internal/metrics"
	"github.com/DGApex/CRT-INV/internal/middleware"
	"github.com/DGApex/CRT-INV/internal/outbox"
	"github.com/DGApex/CRT-INV/internal/reconcile"
	"github.com/DGApex/CRT-INV/internal/repository"
	"github.com/DGApex/CRT-INV/internal/service"
	"github.com/DGApex/CRT-INV/internal/websocket"

	_ "github.com/go-kivik/kivik/v4/couchdb"

	"github.com/go-kivik/kivik/v4"
	"github.com/gorilla/mux"
	"github.com/spf13/pflag"
)

func main() {
	flags := pflag.NewFlagSet("crt-inv", pflag.ExitOnError)
	envFile := flags.String("env-file", "", "load environment variables from this file")
	addr := flags.String("addr", "", "listen address, overrides HOST and PORT")
	once := flags.Bool("once", false, "run a single sync, print the summary and exit")
	flags.Parse(os.Args[1:])

	var envFiles []string
	if *envFile != "" {
		envFiles = append(envFiles, *envFile)
	}

	cfg, err := config.Load(envFiles...)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	if err := run(cfg, logger, *addr, *once); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, addr string, once bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	snapshots, commands, closeStore, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	m := metrics.New()
	remote := gateway.NewClient(cfg.Gateway.URL, cfg.Gateway.APIKey, cfg.Gateway.Timeout)
	reconciler := reconcile.New(
		reconcile.WithLogger(logger),
		reconcile.WithIDPrefix(cfg.Reconcile.IDPrefix),
	)

	dispatcher := outbox.NewDispatcher(remote, commands, m, logger, outbox.Config{
		Timeout:     cfg.Outbox.Timeout,
		MaxAttempts: cfg.Outbox.MaxAttempts,
		Backoff:     cfg.Outbox.Backoff,
		QueueSize:   cfg.Outbox.QueueSize,
	})

	if once {
		svc := service.NewInventoryService(reconciler, remote, dispatcher, snapshots, commands, nil, m, logger, cfg.Gateway.PollInterval)
		if err := svc.Restore(ctx); err != nil {
			return err
		}
		report, err := svc.SyncOnce(ctx)
		fmt.Println(report.Summary)
		return err
	}

	wsManager := websocket.NewManager(
		cfg.WebSocket.MaxConnPerClient,
		cfg.WebSocket.WriteWait,
		cfg.WebSocket.PongWait,
		cfg.WebSocket.PingPeriod,
		logger,
	)

	svc := service.NewInventoryService(reconciler, remote, dispatcher, snapshots, commands, wsManager, m, logger, cfg.Gateway.PollInterval)
	if err := svc.Restore(ctx); err != nil {
		return err
	}

	wsManager.SetMessageHandler(handler.NewWebSocketMessageHandler(ctx, wsManager, svc, logger))

	var wg sync.WaitGroup
	for _, runner := range []func(context.Context){wsManager.Run, dispatcher.Run, svc.Run} {
		wg.Add(1)
		go func(run func(context.Context)) {
			defer wg.Done()
			run(ctx)
		}(runner)
	}

	inventoryHandler := handler.NewInventoryHandler(svc)
	authHandler := handler.NewAuthHandler(cfg.Auth.AccessKey, cfg.Auth.JWTSecret, cfg.Auth.TokenExpiration)
	healthHandler := handler.NewHealthHandler(svc)
	wsHandler := handler.NewWebSocketHandler(
		wsManager,
		svc,
		cfg.Auth.JWTSecret,
		cfg.WebSocket.ReadBufferSize,
		cfg.WebSocket.WriteBufferSize,
		logger,
	)

	r := mux.NewRouter()

	r.Use(middleware.LoggerMiddleware(logger))
	r.Use(middleware.CORSMiddleware(
		cfg.CORS.AllowedOrigins,
		cfg.CORS.AllowedMethods,
		cfg.CORS.AllowedHeaders,
	))

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/auth/token", authHandler.Token).Methods("POST", "OPTIONS")

	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.AuthMiddleware(cfg.Auth.AccessKey, cfg.Auth.JWTSecret))

	protected.HandleFunc("/snapshot", inventoryHandler.Snapshot).Methods("GET", "OPTIONS")
	protected.HandleFunc("/sync", inventoryHandler.Sync).Methods("POST", "OPTIONS")

	protected.HandleFunc("/equipment", inventoryHandler.Equipment).Methods("GET", "OPTIONS")
	protected.HandleFunc("/equipment/{id}", inventoryHandler.GetEquipment).Methods("GET", "OPTIONS")

	protected.HandleFunc("/sessions", inventoryHandler.Sessions).Methods("GET", "OPTIONS")
	protected.HandleFunc("/sessions", inventoryHandler.CreateSession).Methods("POST", "OPTIONS")
	protected.HandleFunc("/sessions/overdue", inventoryHandler.OverdueSessions).Methods("GET", "OPTIONS")
	protected.HandleFunc("/sessions/{id}/items", inventoryHandler.AddItem).Methods("POST", "OPTIONS")
	protected.HandleFunc("/sessions/{id}/items/{itemId}", inventoryHandler.RemoveItem).Methods("DELETE", "OPTIONS")
	protected.HandleFunc("/sessions/{id}/close", inventoryHandler.CloseSession).Methods("POST", "OPTIONS")
	protected.HandleFunc("/history", inventoryHandler.History).Methods("GET", "OPTIONS")

	protected.HandleFunc("/assignments", inventoryHandler.Assignments).Methods("GET", "OPTIONS")
	protected.HandleFunc("/assignments", inventoryHandler.CreateAssignment).Methods("POST", "OPTIONS")
	protected.HandleFunc("/assignments/{id}/return", inventoryHandler.ReturnAssignment).Methods("POST", "OPTIONS")

	protected.HandleFunc("/commands", inventoryHandler.Commands).Methods("GET", "OPTIONS")

	r.HandleFunc("/ws", wsHandler.HandleConnection)
	if cfg.Server.MetricsEnabled {
		r.Handle("/metrics", m.Handler()).Methods("GET")
	}
	r.HandleFunc("/health", healthHandler.Health).Methods("GET")

	if addr == "" {
		addr = fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	}

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting inventory server",
			"addr", addr,
			"env", cfg.Server.Env,
			"store", cfg.Store.Driver,
			"sync_interval", cfg.Gateway.PollInterval,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		stop()
		wg.Wait()
		return fmt.Errorf("server failed to start: %w", err)
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	wg.Wait()

	logger.Info("server stopped gracefully")
	return nil
}

// openStore returns the snapshot and command repositories for the
// configured driver along with a function releasing the connection.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (repository.SnapshotRepository, repository.CommandRepository, func(), error) {
	switch cfg.Driver {
	case "couch":
		client, err := kivik.New("couch", cfg.Couch.URL())
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to connect to CouchDB: %w", err)
		}

		exists, err := client.DBExists(ctx, cfg.Couch.Name)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to check database existence: %w", err)
		}
		if !exists {
			if err := client.CreateDB(ctx, cfg.Couch.Name); err != nil {
				return nil, nil, nil, fmt.Errorf("failed to create database: %w", err)
			}
			logger.Info("created database", "name", cfg.Couch.Name)
		}

		if err := repository.EnsureCouchIndexes(ctx, client, cfg.Couch.Name); err != nil {
			return nil, nil, nil, err
		}

		logger.Info("connected to CouchDB", "host", cfg.Couch.Host, "port", cfg.Couch.Port)
		return repository.NewCouchSnapshotRepository(client, cfg.Couch.Name),
			repository.NewCouchCommandRepository(client, cfg.Couch.Name),
			func() { client.Close() },
			nil

	default:
		db, err := repository.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}

		logger.Info("opened SQLite store", "path", cfg.SQLitePath)
		return repository.NewSQLiteSnapshotRepository(db),
			repository.NewSQLiteCommandRepository(db),
			func() { db.Close() },
			nil
	}
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
