package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	_ "github.com/tbourn/go-refund-backend/docs"
	"github.com/tbourn/go-refund-backend/internal/config"
	"github.com/tbourn/go-refund-backend/internal/gateway"
	httpapi "github.com/tbourn/go-refund-backend/internal/http"
	"github.com/tbourn/go-refund-backend/internal/notify"
	"github.com/tbourn/go-refund-backend/internal/observability"
	"github.com/tbourn/go-refund-backend/internal/portal"
	"github.com/tbourn/go-refund-backend/internal/services"
	"github.com/tbourn/go-refund-backend/internal/storage"
)

const shutdownTimeout = 15 * time.Second

var purgeInterval time.Duration

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the dashboard and portal HTTP server.

The server stops gracefully on SIGINT or SIGTERM. Expired idempotency
records are purged every --purge-interval.

Examples:
  refundd serve
  refundd serve --env-file .env.local --purge-interval 30m`,
		RunE: runServe,
	}
	cmd.Flags().DurationVar(&purgeInterval, "purge-interval", time.Hour, "interval between idempotency purges (0 disables)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(os.Stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupOTel(ctx, cfg.OTEL, Version)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	db, closeDB, err := openDB(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer closeDB()

	deps, closeDeps, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDeps()
	deps.DB = db
	deps.Gateways = gateway.NewConnector(db, cfg.Gateway, deps.cache)

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, deps.Deps, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("version", Version).
			Str("gateway_mode", cfg.Gateway.Mode).Str("auth_mode", cfg.Auth.Mode).
			Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		log.Info().Msg("http server shutting down")
		return srv.Shutdown(sctx)
	})
	if purgeInterval > 0 {
		idem := services.NewIdempotencyService(db, cfg.IdempotencyTTL)
		g.Go(func() error {
			purgeLoop(gctx, idem, purgeInterval)
			return nil
		})
	}
	return g.Wait()
}

// serveDeps carries the HTTP collaborators plus the Redis cache handle the
// gateway connector needs. cache stays a nil interface without Redis.
type serveDeps struct {
	httpapi.Deps
	cache gateway.RedisClient
}

// buildDeps constructs the optional infrastructure: Redis (sessions and the
// order cache), MinIO (portal photos) and SMTP (notifications).
func buildDeps(ctx context.Context, cfg config.Config) (*serveDeps, func(), error) {
	d := &serveDeps{}
	closers := []func(){}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pctx).Err()
		cancel()
		if err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		closers = append(closers, func() { _ = rdb.Close() })
		d.cache = rdb
		d.Sessions = portal.NewRedisStore(rdb, cfg.Portal.SessionTTL)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("redis connected")
	}

	images, err := storage.New(ctx, cfg.Minio)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	d.Images = images

	n, err := notify.New(cfg.Mail)
	if err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("mail client: %w", err)
	}
	d.Notifier = n

	return d, closeAll, nil
}

func purgeLoop(ctx context.Context, idem *services.IdempotencyService, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := idem.Purge(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("idempotency purge failed")
				continue
			}
			if n > 0 {
				log.Info().Int64("deleted", n).Msg("idempotency records purged")
			}
		}
	}
}
