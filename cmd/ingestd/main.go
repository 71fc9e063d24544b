// Command ingestd runs the metadata ingestion API.
package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/oncoregistry/ingest/pkg/api"
	"github.com/oncoregistry/ingest/pkg/auth"
	"github.com/oncoregistry/ingest/pkg/authz"
	"github.com/oncoregistry/ingest/pkg/config"
	"github.com/oncoregistry/ingest/pkg/ingest"
	"github.com/oncoregistry/ingest/pkg/lifecycle"
	"github.com/oncoregistry/ingest/pkg/observability"
	"github.com/oncoregistry/ingest/pkg/schema"
	"github.com/oncoregistry/ingest/pkg/storage"
	"github.com/oncoregistry/ingest/pkg/storage/memory"
	"github.com/oncoregistry/ingest/pkg/storage/mongo"
	"github.com/oncoregistry/ingest/pkg/tasks"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger("info", os.Stderr).WithError(err).Fatal("invalid configuration")
	}

	log := observability.NewLogger(cfg.LogLevel, os.Stdout)
	serverLog := observability.WithCategory(log, observability.CategoryServer)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := newStore(ctx, cfg.Storage)
	if err != nil {
		serverLog.WithError(err).Fatal("failed to open document store")
	}
	defer store.Close(context.Background())

	dispatcher, err := tasks.NewRedisDispatcher(cfg.Broker, metrics, log)
	if err != nil {
		serverLog.WithError(err).Fatal("failed to connect to task broker")
	}
	defer dispatcher.Close()

	validator, err := schema.New()
	if err != nil {
		serverLog.WithError(err).Fatal("failed to build validator")
	}

	accounts := auth.NewAccountStore(store, log)
	verifier, err := auth.NewOIDCVerifier(ctx, cfg.Auth, accounts, metrics, log)
	if err != nil {
		serverLog.WithError(err).Fatal("failed to discover identity provider")
	}

	server := api.NewServer(api.Deps{
		Store:      store,
		Verifier:   verifier,
		Accounts:   accounts,
		Compiler:   authz.NewCompiler(accounts, store, metrics, log),
		Registrar:  ingest.NewRegistrar(store, validator, metrics, log),
		Lifecycle:  lifecycle.NewManager(store, dispatcher, log),
		Dispatcher: dispatcher,
		Validator:  validator,
		Upload:     cfg.Upload,
		Metrics:    metrics,
		Log:        log,
	})

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		serverLog.WithField("addr", httpServer.Addr).Info("ingestion API listening")
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		serverLog.WithError(err).Fatal("server exited")
	case <-ctx.Done():
	}

	serverLog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		serverLog.WithError(err).Error("shutdown did not complete cleanly")
	}
}

func newStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	if cfg.Backend == "mongo" {
		return mongo.New(ctx, mongo.Config{URL: cfg.MongoURL, Database: cfg.Database})
	}
	return memory.New(), nil
}
