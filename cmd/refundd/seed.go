package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tbourn/go-refund-backend/internal/auth"
	"github.com/tbourn/go-refund-backend/internal/domain"
	"github.com/tbourn/go-refund-backend/internal/repo"
)

// seedOptions describe one merchant installation to register locally.
type seedOptions struct {
	MerchantID  string
	AppID       string
	AccessToken string
	StoreName   string
	TokenTTL    time.Duration
	IssueJWT    time.Duration
}

var seedOpts seedOptions

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Register a merchant installation and its platform token",
		Long: `Register a merchant and the OAuth token of its installed app.

The merchant row is created when missing; the token is always replaced.
With --issue-jwt a dashboard session token for the installation is printed.

Examples:
  refundd seed --merchant-id m1 --app-id app1 --access-token tok
  refundd seed --merchant-id m1 --app-id app1 --access-token tok --issue-jwt 24h`,
		Args: cobra.NoArgs,
		RunE: runSeed,
	}
	f := cmd.Flags()
	f.StringVar(&seedOpts.MerchantID, "merchant-id", "", "merchant id (required)")
	f.StringVar(&seedOpts.AppID, "app-id", "", "authorized app id (required)")
	f.StringVar(&seedOpts.AccessToken, "access-token", "", "platform access token (required)")
	f.StringVar(&seedOpts.StoreName, "store-name", "", "store display name")
	f.DurationVar(&seedOpts.TokenTTL, "token-ttl", 0, "access token lifetime (0 means no known expiry)")
	f.DurationVar(&seedOpts.IssueJWT, "issue-jwt", 0, "print a dashboard JWT valid for this long")
	_ = cmd.MarkFlagRequired("merchant-id")
	_ = cmd.MarkFlagRequired("app-id")
	_ = cmd.MarkFlagRequired("access-token")
	return cmd
}

func runSeed(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(os.Stderr)
	if err != nil {
		return err
	}
	db, closeDB, err := openDB(cmd.Context(), cfg.DB)
	if err != nil {
		return err
	}
	defer closeDB()

	return seedMerchant(cmd.Context(), db, seedOpts, cfg.Auth.JWTSecret, cmd.OutOrStdout())
}

// seedMerchant writes the merchant and token rows and optionally prints a
// signed session token to out.
func seedMerchant(ctx context.Context, db *gorm.DB, o seedOptions, jwtSecret string, out io.Writer) error {
	o.MerchantID = strings.TrimSpace(o.MerchantID)
	o.AppID = strings.TrimSpace(o.AppID)
	if o.MerchantID == "" || o.AppID == "" || o.AccessToken == "" {
		return errors.New("merchant id, app id and access token are required")
	}

	m := &domain.Merchant{
		ID:              o.MerchantID,
		AuthorizedAppID: o.AppID,
		PortalEnabled:   true,
	}
	if s := strings.TrimSpace(o.StoreName); s != "" {
		m.StoreName = &s
	}
	switch err := repo.CreateMerchant(ctx, db, m); {
	case errors.Is(err, repo.ErrDuplicate):
		log.Info().Str("merchant_id", o.MerchantID).Msg("merchant already registered")
	case err != nil:
		return fmt.Errorf("create merchant: %w", err)
	default:
		log.Info().Str("merchant_id", o.MerchantID).Str("app_id", o.AppID).Msg("merchant created")
	}

	tok := &domain.AuthToken{
		AuthorizedAppID: o.AppID,
		MerchantID:      o.MerchantID,
		AccessToken:     o.AccessToken,
		TokenType:       "Bearer",
	}
	if o.TokenTTL > 0 {
		exp := time.Now().UTC().Add(o.TokenTTL)
		tok.ExpiresAt = &exp
	}
	if err := repo.SaveAuthToken(ctx, db, tok); err != nil {
		return fmt.Errorf("save auth token: %w", err)
	}

	if o.IssueJWT <= 0 {
		return nil
	}
	if jwtSecret == "" {
		return errors.New("--issue-jwt needs JWT_SECRET")
	}
	signed, err := auth.NewJWTAuthenticator(jwtSecret).Issue(auth.Identity{
		MerchantID:      o.MerchantID,
		AuthorizedAppID: o.AppID,
	}, o.IssueJWT)
	if err != nil {
		return fmt.Errorf("issue jwt: %w", err)
	}
	_, err = fmt.Fprintln(out, signed)
	return err
}
