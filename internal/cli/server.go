package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"quiz-ranking-service/internal/app"
	"quiz-ranking-service/internal/config"
	"quiz-ranking-service/internal/infra/memory"
	"quiz-ranking-service/internal/infra/postgres"
	rediscache "quiz-ranking-service/internal/infra/redis"
	"quiz-ranking-service/internal/logging"
	transport "quiz-ranking-service/internal/transport/http"
)

const defaultCacheTTL = 300 * time.Second

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func setupLogging(cfg config.Config) {
	logging.SetDefault(logging.New(cfg.Log.Level, cfg.Log.Format, os.Stdout))
}

// backends bundles the storage chosen from config. close releases whatever
// was opened.
type backends struct {
	repo   app.AttemptRepository
	ranker app.Ranker
	cache  app.LeaderboardCache
	close  func()
}

func openBackends(ctx context.Context, cfg config.Config) (*backends, error) {
	log := logging.WithContext(ctx)
	b := &backends{close: func() {}}
	var closers []func()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		db := openDB(cfg)
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		closers = append(closers, func() { db.Close() }, pool.Close)
		b.repo = postgres.NewStore(db)
		b.ranker = postgres.NewRanker(pool)
		log.Info("using postgres storage")
	} else {
		store := memory.NewStore()
		b.repo = store
		b.ranker = store
		log.Warn("postgres url not configured, attempts are kept in memory")
	}

	ttl := config.TTLDuration(cfg.Leaderboard.CacheTTL, defaultCacheTTL)
	switch backend := cfg.CacheBackend(); backend {
	case "redis":
		if cfg.Redis.Addr == "" {
			return nil, fmt.Errorf("leaderboard cache is redis but redis.addr is empty")
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			log.WithError(err).Warn("redis unreachable, leaderboard reads fall through to the database")
		}
		closers = append(closers, func() { client.Close() })
		b.cache = rediscache.NewLeaderboardCache(client, ttl)
	case "none":
		b.cache = app.NoopCache{}
	default:
		b.cache = memory.NewLeaderboardCache(ttl)
	}
	log.WithField("backend", cfg.CacheBackend()).WithField("ttl", ttl.String()).Info("leaderboard cache configured")

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
	setupLogging(cfg)
	log := logging.WithContext(ctx)

	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwtSecret (or JWT_SECRET) must be set")
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close()

	attempts := app.NewAttemptService(b.repo, b.cache, app.AttemptOptions{
		Cooldown:      config.TTLDuration(cfg.Attempts.Cooldown, app.DefaultCooldown),
		QuestionCount: cfg.Attempts.QuestionCount,
	})
	leaderboards := app.NewLeaderboardService(b.repo, b.ranker, b.cache)
	handler := transport.NewHandler(attempts, leaderboards)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      transport.NewRouter(handler, transport.NewAuthenticator(cfg.Auth.JWTSecret)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.WithField("port", finalPort).Info("starting quiz ranking service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server...")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
