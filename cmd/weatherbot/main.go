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

	"github.com/joho/godotenv"
	"github.com/nidhogg/weatherbot/internal/api"
	"github.com/nidhogg/weatherbot/internal/command"
	"github.com/nidhogg/weatherbot/internal/config"
	"github.com/nidhogg/weatherbot/internal/dispatch"
	"github.com/nidhogg/weatherbot/internal/gateway"
	"github.com/nidhogg/weatherbot/internal/pending"
	msgrouter "github.com/nidhogg/weatherbot/internal/router"
	pgstore "github.com/nidhogg/weatherbot/internal/store"
	"github.com/nidhogg/weatherbot/internal/weather"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Version is overridden at build time with -ldflags "-X main.Version=...".
var Version = "1.0.0"

func main() {
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "configs/weatherbot.json"
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "weatherbot",
		Short: "Chat bot answering weather questions",
		Long: `weatherbot connects to Slack, Discord, Telegram or plain HTTP and answers
/help, /uptime, /weather <city>, /forecast <city> and /feedback <text>.

A command sent without its argument makes the bot ask for it; the next
message in the same conversation is taken as the answer.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Config file path (JSON or YAML)")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("weatherbot version %s\n", Version)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "commands",
		Short: "Print the help text the bot sends to users",
		RunE: func(cmd *cobra.Command, args []string) error {
			projectURL := "https://github.com/nidhogg/weatherbot"
			if cfg, err := config.Load(configPath); err == nil {
				projectURL = cfg.Bot.ProjectURL
			}
			engine := dispatch.NewEngine(dispatch.Config{
				Registry:   command.DefaultRegistry(),
				Version:    Version,
				ProjectURL: projectURL,
			}, zap.NewNop())
			fmt.Println(engine.HelpText())
			return nil
		},
	})

	return cmd
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	return cfg.Build()
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Server.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("Starting weatherbot...", zap.String("version", Version))
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.String("path", configPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", configPath))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Weather provider, optionally behind the Redis cache
	var provider weather.Provider = weather.NewOWMClient(weather.Config{
		APIKey:    cfg.Weather.APIKey,
		Endpoint:  cfg.Weather.Endpoint,
		Language:  cfg.Weather.Language,
		Units:     cfg.Weather.Units,
		Timeout:   cfg.Weather.Timeout.Std(),
		RateLimit: cfg.Weather.RateLimit,
		Burst:     cfg.Weather.Burst,
	}, logger)

	var rdb *redis.Client
	if cfg.Database.Redis.URL != "" {
		client, rErr := weather.NewRedisClient(ctx, cfg.Database.Redis.URL)
		if rErr != nil {
			logger.Warn("Redis unavailable, running without weather cache", zap.Error(rErr))
		} else {
			rdb = client
			provider = weather.NewCachedProvider(provider, rdb, cfg.Weather.CacheTTL.Std(), cfg.Weather.Language, logger)
			logger.Info("Weather cache enabled", zap.Duration("ttl", cfg.Weather.CacheTTL.Std()))
		}
	}

	// Feedback archive
	var pgStore *pgstore.Store
	var archive dispatch.FeedbackArchive
	var feedbackList api.FeedbackLister
	if cfg.Database.Postgres.DSN != "" {
		ps, pgErr := pgstore.New(ctx, cfg.Database.Postgres.DSN, logger)
		if pgErr != nil {
			logger.Warn("PostgreSQL unavailable, running without feedback archive", zap.Error(pgErr))
		} else {
			if mErr := ps.Migrate(ctx, cfg.Database.Postgres.MigrationsDir); mErr != nil {
				logger.Fatal("migration failed", zap.Error(mErr))
			}
			pgStore = ps
			archive = ps
			feedbackList = ps
		}
	}

	// Dispatch engine
	var trackerOpts []pending.Option
	if ttl := cfg.Bot.PendingTimeout.Std(); ttl > 0 {
		trackerOpts = append(trackerOpts, pending.WithTTL(ttl))
	}
	tracker := pending.NewTracker(logger, trackerOpts...)

	feedbackConv, _ := cfg.FeedbackConversation()
	engine := dispatch.NewEngine(dispatch.Config{
		Registry:             command.DefaultRegistry(),
		Tracker:              tracker,
		Provider:             provider,
		FeedbackConversation: feedbackConv,
		Archive:              archive,
		Version:              Version,
		ProjectURL:           cfg.Bot.ProjectURL,
		ReplyUnknownCommands: cfg.Bot.ReplyUnknownCommands,
	}, logger)

	// Gateway and router
	gw := gateway.NewGateway(logger)
	gw.SetHandler(msgrouter.New(engine, gw, logger))

	var restAdapter *gateway.RESTAdapter
	if cfg.Gateway.REST.Enabled {
		restAdapter = gateway.NewRESTAdapter(logger)
		gw.Register(restAdapter)
	}
	if cfg.Gateway.Slack.Enabled {
		gw.Register(gateway.NewSlackAdapter(cfg.Gateway.Slack.BotToken, cfg.Gateway.Slack.AppToken, logger))
	}
	if cfg.Gateway.Discord.Enabled {
		gw.Register(gateway.NewDiscordAdapter(cfg.Gateway.Discord.BotToken, logger))
	}
	if cfg.Gateway.Telegram.Enabled {
		gw.Register(gateway.NewTelegramAdapter(cfg.Gateway.Telegram.BotToken, logger))
	}
	if !feedbackConv.IsZero() && !hasPlatform(gw.Adapters(), feedbackConv.Platform) {
		logger.Warn("feedback conversation is on a platform with no enabled adapter; relays will fail",
			zap.String("conversation", feedbackConv.Key()))
	}

	if err := gw.ConnectAll(ctx); err != nil {
		logger.Fatal("gateway connect failed", zap.Error(err))
	}

	go tracker.Run(ctx, time.Minute)

	// HTTP server
	handler := api.NewHandler(engine, gw, restAdapter, feedbackList, Version, logger)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("weatherbot listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down weatherbot...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	gw.Close()
	if rdb != nil {
		rdb.Close()
	}
	if pgStore != nil {
		pgStore.Close()
	}
	return nil
}

func hasPlatform(platforms []string, p string) bool {
	for _, name := range platforms {
		if name == p {
			return true
		}
	}
	return false
}
