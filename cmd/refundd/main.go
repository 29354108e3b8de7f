// Command refundd runs the refund backend: the merchant dashboard API, the
// customer portal API and their maintenance tasks.
//
//	@title						Refund Backend API
//	@version					1.0
//	@description				Merchant dashboard and customer portal API for refund requests on ikas stores.
//	@BasePath					/
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Merchant session token: "Bearer <jwt>" or "JWT <jwt>".
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tbourn/go-refund-backend/internal/config"
	"github.com/tbourn/go-refund-backend/internal/observability"
	"github.com/tbourn/go-refund-backend/internal/repo"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

var envFiles []string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "refundd",
		Short:         "Refund desk backend for ikas merchants",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "dotenv files loaded before the environment is read")

	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(seedCmd())
	root.AddCommand(purgeCmd())
	return root
}

// loadConfig reads dotenv files and the environment, then configures the
// global logger.
func loadConfig(logOut io.Writer) (config.Config, error) {
	if err := config.LoadDotEnv(envFiles...); err != nil {
		return config.Config{}, fmt.Errorf("load env files: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("config: %w", err)
	}
	observability.SetupLogger(logOut, cfg.LogLevel, cfg.LogPretty, cfg.OTEL.ServiceName)
	return cfg, nil
}

// openDB opens the configured database. The returned close func releases the
// connection pool.
func openDB(ctx context.Context, cfg config.DBConfig) (*gorm.DB, func(), error) {
	db, err := repo.Open(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	return db, func() {
		if sqlDB, err := db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				log.Warn().Err(err).Msg("close database")
			}
		}
	}, nil
}
