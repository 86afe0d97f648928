package main

import (
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/quantfolio/quantfolio/internal/application"
	"github.com/quantfolio/quantfolio/internal/config"
	httpapi "github.com/quantfolio/quantfolio/internal/interfaces/http"
	"github.com/quantfolio/quantfolio/internal/persistence"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the JSON API server",
		Long:  "Expose the optimization and Monte Carlo endpoints plus the portfolio registry over HTTP.",
		RunE:  runServe,
	}
	bindServeFlags(cmd.Flags())
	return cmd
}

func bindServeFlags(fs *pflag.FlagSet) {
	fs.Int("port", 0, "Override the configured HTTP port")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Server.Port = port
	}

	portfolios, results, err := buildStores(cfg)
	if err != nil {
		return err
	}

	svc := application.New(cfg, portfolios, results)
	server := httpapi.NewServer(cfg, svc)

	ctx, cancel := signalContext()
	defer cancel()

	log.Info().
		Str("backend", cfg.Storage.Backend).
		Str("version", version).
		Msg("quantfolio starting")

	return server.Start(ctx)
}

// buildStores selects the persistence backend. The result store is always
// wrapped in a circuit breaker so a flaky backend degrades cleanly.
func buildStores(cfg *config.Config) (persistence.PortfolioStore, persistence.ResultStore, error) {
	switch cfg.Storage.Backend {
	case "memory":
		mem := persistence.NewMemoryStore()
		return mem, persistence.NewBreakerStore("results", mem.Results()), nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:        cfg.Storage.Redis.Addr,
			DB:          cfg.Storage.Redis.DB,
			DialTimeout: 5 * time.Second,
		})
		store := persistence.NewRedisStore(client, cfg.Storage.Redis.ResultTTL())
		return store, persistence.NewBreakerStore("results", store.Results()), nil

	case "postgres":
		store, err := persistence.OpenPostgres(cfg.Storage.Postgres.DSN, cfg.Storage.Postgres.Timeout())
		if err != nil {
			return nil, nil, err
		}
		return store, persistence.NewBreakerStore("results", store.Results()), nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
