package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/bjarke-xyz/hire-me-maybe/internal/config"
	"github.com/bjarke-xyz/hire-me-maybe/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

func newLogger(env string, service string) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	child := logger.With(slog.Group("service_info", slog.String("env", env), slog.String("service", service)))
	return child
}

func newDatabasePool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	maxConns := cfg.DatabaseMaxConns
	if maxConns == 0 {
		maxConns = 1
	}
	unformattedConnStr := cfg.DatabaseURL
	err := repository.Migrate("up", unformattedConnStr)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	queryChar := "?"
	if strings.Contains(unformattedConnStr, "?") {
		queryChar = "&"
	}
	url := fmt.Sprintf(
		"%s%vpool_max_conns=%d&pool_min_conns=%d",
		unformattedConnStr,
		queryChar,
		maxConns,
		min(2, maxConns),
	)
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}

	// simple protocol keeps it working behind pgbouncer
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Second
	return pgxpool.NewWithConfig(ctx, poolConfig)
}
