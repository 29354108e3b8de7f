package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-refund-backend/internal/services"
)

func purgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete expired idempotency records once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(os.Stderr)
			if err != nil {
				return err
			}
			db, closeDB, err := openDB(cmd.Context(), cfg.DB)
			if err != nil {
				return err
			}
			defer closeDB()

			n, err := services.NewIdempotencyService(db, cfg.IdempotencyTTL).Purge(cmd.Context())
			if err != nil {
				return fmt.Errorf("purge: %w", err)
			}
			log.Info().Int64("deleted", n).Msg("idempotency records purged")
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired idempotency records\n", n)
			return nil
		},
	}
}
