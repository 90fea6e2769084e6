package cli

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"hitest/internal/app"
	"hitest/internal/auth"
	"hitest/internal/config"
	"hitest/internal/infra/memory"
	"hitest/internal/infra/postgres"
	redisinfra "hitest/internal/infra/redis"
	transport "hitest/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// backend holds the storage wiring chosen from configuration.
type backend struct {
	tests     app.TestRepository
	sessions  app.SessionRepository
	analytics app.AnalyticsReader
	public    app.PublicTestRepository
	limiter   app.RateLimiter
	close     func()
}

// openBackend uses Postgres when a URL is configured and falls back to the
// in-memory store otherwise. Redis, when configured, backs the rate limiter and
// the participant test cache so several instances share them.
func openBackend(ctx context.Context, cfg config.Config) (*backend, error) {
	b := &backend{close: func() {}}
	cacheTTL := config.TTLDuration(cfg.Cache.TTL, 5*time.Minute)

	var testLoader memory.TestLoader
	var closers []func()
	if cfg.Postgres.URL != "" {
		db := postgres.Open(cfg.Postgres.URL)
		closers = append(closers, func() { db.Close() })
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			db.Close()
			return nil, err
		}
		closers = append(closers, pool.Close)

		store := postgres.NewStore(db)
		b.tests, b.sessions = store, store
		b.analytics = postgres.NewAnalyticsReader(pool)
		testLoader = postgres.NewTestLoader(pool)
	} else {
		log.Printf("postgres not configured, using in-memory storage")
		store := memory.NewStore()
		b.tests, b.sessions, b.analytics = store, store, store
		testLoader = store
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Printf("redis ping failed: %v", err)
		}
		closers = append(closers, func() { client.Close() })
		b.limiter = redisinfra.NewRateLimiter(client)
		b.public = redisinfra.NewTestCache(client, testLoader, cacheTTL)
	} else {
		b.limiter = memory.NewRateLimiter()
		b.public = memory.NewTestCache(testLoader, cacheTTL)
	}

	b.close = func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return b, nil
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Admin.Password == "" {
		log.Printf("ADMIN_PASSWORD not set, admin login is disabled")
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close()

	feed := app.NewFeed()
	svc := transport.Services{
		Tests:     app.NewTestService(b.tests, b.public, cfg.Server.PublicBaseURL),
		Sessions:  app.NewSessionService(b.tests, b.sessions, feed),
		Analytics: app.NewAnalyticsService(b.analytics),
		Exports:   app.NewExportService(b.analytics),
		Feed:      feed,
	}
	signer := auth.NewSigner(cfg.AdminSecret)
	api := transport.NewServer(svc, signer, b.limiter, transport.Options{
		AdminPassword: cfg.Admin.Password,
		SecureCookies: cfg.Production(),
		AllowedOrigin: cfg.Server.AllowedOrigin,
		Limits: transport.Limits{
			Login:      cfg.Limits.Login,
			Start:      cfg.Limits.Start,
			Complete:   cfg.Limits.Complete,
			CreateTest: cfg.Limits.CreateTest,
		},
		Window: config.TTLDuration(cfg.Limits.Window, time.Minute),
	})

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// No WriteTimeout: it would cut the /admin/live websocket.
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("starting hitest on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
