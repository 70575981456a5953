// Package app wires the registry together: configuration, logging,
// telemetry, persistence, the in-process ledger substrate, the binding
// engine, the issuance strategies, the event stream and the HTTP server.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"licbind/internal/account"
	"licbind/internal/config"
	"licbind/internal/events"
	"licbind/internal/infrastructure"
	"licbind/internal/issuance"
	"licbind/internal/ledger"
	"licbind/internal/registry"
	"licbind/internal/services"
	"licbind/internal/store"
	transport "licbind/internal/transport/http"
	"licbind/pkg/contracts"
)

// Application holds every long-lived component of the registry process.
type Application struct {
	Config        *config.Config
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Store         store.Store
	Ledger        *ledger.Ledger
	Binder        *account.Binder
	Registry      *registry.Registry
	Hub           *events.Hub
	Bus           *events.Bus
	Service       services.RegistryService
	Server        *http.Server
}

// NewApplication assembles an application from the given configuration.
func NewApplication(cfg *config.Config) (*Application, error) {
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	logger.Info("application starting",
		slog.String("version", contracts.Version),
		slog.Uint64("chain_id", cfg.Registry.ChainID),
		slog.String("store_backend", cfg.Store.Backend))

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.DefaultOTelConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("initialize opentelemetry: %w", err)
	}

	st, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	if err := seedMetadataBase(st, cfg.Registry.MetadataBase); err != nil {
		st.Close()
		return nil, fmt.Errorf("seed metadata base: %w", err)
	}

	regAddr, proxy, impl, executor, err := cfg.BindingAddresses()
	if err != nil {
		st.Close()
		return nil, err
	}
	issuerAddr, err := cfg.IssuerAddress()
	if err != nil {
		st.Close()
		return nil, err
	}

	l := ledger.NewLedger()
	binder, err := account.NewBinder(account.Params{
		Registry:       regAddr,
		ProxyTemplate:  proxy,
		Implementation: impl,
		Executor:       executor,
		Salt:           cfg.Binding.Salt,
		ChainID:        cfg.Registry.ChainID,
	}, l, l, l, l)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("create binder: %w", err)
	}

	hub := events.NewHub(logger)
	hub.Start()
	bus := events.NewBus(hub, logger)

	reg := registry.NewRegistry(st, issuerAddr, cfg.Registry.ChainID, bus)

	metrics, err := issuance.InitializeMetrics(otelProviders.Meter)
	if err != nil {
		logger.Warn("issuance metrics unavailable", slog.String("error", err.Error()))
	}

	allowlist := issuance.NewAllowlistStrategy(st, reg, binder, bus, metrics)
	offers := issuance.NewOfferStrategy(st, reg, binder, bus, metrics)
	open := issuance.NewOpenStrategy(st, reg, binder, l, bus, metrics)

	svc := services.NewRegistryService(reg, binder, allowlist, offers, open, logger)

	router := transport.NewRouter(transport.RouterDeps{
		Config:  cfg,
		Service: svc,
		Hub:     hub,
		Metrics: otelProviders.PrometheusHTTP,
		Logger:  logger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: otelProviders,
		Store:         st,
		Ledger:        l,
		Binder:        binder,
		Registry:      reg,
		Hub:           hub,
		Bus:           bus,
		Service:       svc,
		Server:        server,
	}, nil
}

// openStore selects the persistence backend.
func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case "sqlite":
		return store.NewSQLiteStore(cfg.Store.DSN)
	default:
		return store.NewMemoryStore(), nil
	}
}

// seedMetadataBase installs the configured metadata base on first run. An
// operator-set base in a durable store is left alone.
func seedMetadataBase(st store.Store, base string) error {
	ctx := context.Background()
	current, err := st.MetadataBase(ctx)
	if err != nil {
		return err
	}
	if current != "" {
		return nil
	}
	return st.SetMetadataBase(ctx, base)
}

// Start begins serving. It returns once the listener goroutine is running.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "http server starting",
		slog.Int("port", a.Config.Server.Port))

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.ErrorContext(ctx, "server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	return nil
}

// Stop shuts the application down in dependency order: listener first, then
// the event hub, telemetry and finally the store.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	a.Hub.Stop()

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "opentelemetry shutdown error",
				slog.String("error", err.Error()))
		}
	}

	if err := a.Store.Close(); err != nil {
		a.Logger.ErrorContext(ctx, "store close error",
			slog.String("error", err.Error()))
	}

	a.Logger.InfoContext(ctx, "shutdown complete")
	return nil
}

// Run serves until interrupted, then shuts down gracefully.
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	select {
	case <-sigChan:
		a.Logger.InfoContext(ctx, "received interrupt signal")
	case <-ctx.Done():
	}

	return a.Stop(context.Background())
}
