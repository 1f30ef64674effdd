package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/xaenox/modmail-bot/internal/bot"
	"github.com/xaenox/modmail-bot/internal/cooldown"
	"github.com/xaenox/modmail-bot/internal/discord"
	"github.com/xaenox/modmail-bot/internal/observability"
	"github.com/xaenox/modmail-bot/internal/server"
	"github.com/xaenox/modmail-bot/internal/storage"
	"github.com/xaenox/modmail-bot/pkg/config"
)

func main() {
	configPath := pflag.StringP("config", "c", "config.yaml", "path to the YAML config file (optional)")
	pflag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(observability.LoggerConfig{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
	})
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize storage
	var store storage.Storage
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory storage")
		store = storage.NewMemoryStorage()
	} else {
		logger.Info("Using PostgreSQL storage")
		store, err = storage.NewPostgresStorage(ctx, storage.DatabaseConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		}, logger.Named("storage"))
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	}
	defer store.Close()

	var limiter cooldown.Limiter
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("Failed to connect to redis", zap.Error(err), zap.String("addr", cfg.Redis.Addr))
		}
		logger.Info("Using redis cooldowns", zap.String("addr", cfg.Redis.Addr))
		limiter = cooldown.NewRedisLimiter(rdb, cfg.Bot.Cooldown)
	} else {
		limiter = cooldown.NewMemoryLimiter(cfg.Bot.Cooldown, nil)
	}

	parents := []string{cfg.Discord.ForumChannelID}
	if cfg.Discord.AppealChannelID != "" && cfg.Discord.AppealChannelID != cfg.Discord.ForumChannelID {
		parents = append(parents, cfg.Discord.AppealChannelID)
	}
	client, err := discord.New(discord.Config{
		Token:         cfg.Discord.Token,
		GuildID:       cfg.Discord.GuildID,
		Prefix:        cfg.Bot.Prefix,
		TicketParents: parents,
	}, logger.Named("discord"))
	if err != nil {
		logger.Fatal("Failed to create discord client", zap.Error(err))
	}

	b, err := bot.New(client, store, limiter, bot.Config{
		Prefix:             cfg.Bot.Prefix,
		ForumChannelID:     cfg.Discord.ForumChannelID,
		AppealChannelID:    cfg.Discord.AppealChannelID,
		ModLogChannelID:    cfg.Discord.ModLogChannelID,
		LookupBeforeCreate: cfg.Bot.LookupBeforeCreate,
		WarnThreshold:      cfg.Bot.WarnThreshold,
		RequestTimeout:     cfg.Bot.RequestTimeout,
	}, logger.Named("bot"))
	if err != nil {
		logger.Fatal("Failed to create bot", zap.Error(err))
	}

	if err := client.Open(ctx); err != nil {
		logger.Fatal("Failed to connect to Discord", zap.Error(err))
	}
	defer client.Close()

	if cfg.HTTP.Addr != "" {
		srv := server.New(b, logger.Named("http"))
		go func() {
			if err := srv.Listen(cfg.HTTP.Addr); err != nil {
				logger.Error("Health server stopped", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if err := b.Start(ctx, client.Events()); err != nil {
		logger.Error("Bot stopped", zap.Error(err))
	}
	logger.Info("Shutting down")
}
