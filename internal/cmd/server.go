package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"github.com/bjarke-xyz/hire-me-maybe/internal/config"
	"github.com/bjarke-xyz/hire-me-maybe/internal/domain"
	"github.com/bjarke-xyz/hire-me-maybe/internal/metrics"
	"github.com/bjarke-xyz/hire-me-maybe/internal/repository"
	serverPkg "github.com/bjarke-xyz/hire-me-maybe/internal/server"
	"github.com/bjarke-xyz/hire-me-maybe/internal/service"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/api/option"
)

func ServerCmd(ctx context.Context) error {
	godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	logger := newLogger(cfg.Env, "web")

	var app *firebase.App
	if cfg.NeedsFirebaseApp() {
		opt := option.WithCredentialsJSON([]byte(cfg.CredentialsJSON))
		app, err = firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.Firebase.ProjectID}, opt)
		if err != nil {
			return fmt.Errorf("error initializing app: %w", err)
		}
	}

	newProvider, err := newProviderFactory(ctx, logger, cfg, app)
	if err != nil {
		return err
	}

	repo, closeRepo, err := newApplicationRepository(ctx, cfg, app)
	if err != nil {
		return err
	}
	defer closeRepo()

	collector := metrics.NewCollector(prometheus.DefaultRegisterer)
	repo = metrics.InstrumentRepository(repo, collector)

	server, err := serverPkg.NewServer(ctx, logger, newProvider, repo, collector, serverPkg.Options{
		LoginRatePerMinute: cfg.LoginRatePerMinute,
		SessionIdleTimeout: cfg.SessionIdleTimeout,
		SecureCookies:      cfg.CookieSecure,
	})
	if err != nil {
		return fmt.Errorf("error creating server: %w", err)
	}

	srv := server.Server(cfg.Port)

	// metrics
	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: metrics.SetupMetricsRoute(prometheus.DefaultGatherer),
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "error", err)
		}
	}()
	logger.Info("started server", slog.Int("port", cfg.Port), slog.String("auth", cfg.AuthBackend), slog.String("store", cfg.StoreBackend))
	<-ctx.Done()
	_ = metricsSrv.Shutdown(context.Background())
	_ = srv.Shutdown(context.Background())
	return nil
}

// newProviderFactory returns what gives every browser session its own
// provider. The accounts or clients behind them are shared.
func newProviderFactory(ctx context.Context, logger *slog.Logger, cfg *config.Config, app *firebase.App) (serverPkg.ProviderFactory, error) {
	if cfg.AuthBackend == config.AuthMemory {
		logger.Warn("using in-memory auth provider, accounts are lost on restart")
		accounts := service.NewMemoryAccounts(0)
		return func(sessCtx context.Context) (domain.AuthProvider, error) {
			return accounts.NewProvider(sessCtx), nil
		}, nil
	}
	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting auth client: %w", err)
	}
	rest := service.NewFirebaseAuthRestClient(cfg.Firebase.APIKey, cfg.Firebase.ProjectID).
		WithBaseURLs(cfg.IdentityToolkitURL, cfg.SecureTokenURL)
	return func(sessCtx context.Context) (domain.AuthProvider, error) {
		provider := service.NewFirebaseProvider(logger, rest, authClient)
		go provider.WatchSession(sessCtx, cfg.SessionCheckInterval)
		return provider, nil
	}, nil
}

func newApplicationRepository(ctx context.Context, cfg *config.Config, app *firebase.App) (domain.ApplicationRepository, func(), error) {
	switch cfg.StoreBackend {
	case config.StoreMemory:
		return repository.NewMemoryApplication(nil), func() {}, nil
	case config.StorePostgres:
		pool, err := newDatabasePool(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("error creating db pool: %w", err)
		}
		return repository.NewPostgresApplication(pool), pool.Close, nil
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("error getting firestore client: %w", err)
	}
	return repository.NewFirestoreApplication(client), func() { closeFirestore(client) }, nil
}

func closeFirestore(client *firestore.Client) {
	_ = client.Close()
}
