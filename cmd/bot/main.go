package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"nuclight.org/feedback-tg-bot/app/access"
	"nuclight.org/feedback-tg-bot/app/admin"
	"nuclight.org/feedback-tg-bot/app/cache"
	"nuclight.org/feedback-tg-bot/app/config"
	"nuclight.org/feedback-tg-bot/app/relay"
	"nuclight.org/feedback-tg-bot/app/services"
	"nuclight.org/feedback-tg-bot/app/storage"
	"nuclight.org/feedback-tg-bot/app/telegram"
	"nuclight.org/feedback-tg-bot/pkg/logger"
	"nuclight.org/feedback-tg-bot/pkg/report"
)

var opts struct {
	Config string `short:"c" long:"config" env:"RELAY_CONFIG" default:"./config.ini" description:"path to the config file"`

	Migrate struct{} `command:"migrate" description:"create or update database tables"`
	Start   struct{} `command:"start" description:"start the bot"`
}

var Revision = "dev"

func main() {
	// .env is optional
	_ = godotenv.Load()

	parser := flags.NewParser(&opts, flags.Default)
	_, err := parser.Parse()
	if err != nil {
		os.Exit(1)
	}

	if err := run(parser.Active.Name); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run executes the command and returns only after every deferred cleanup ran.
func run(command string) error {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return err
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}

	log := logger.NewLogger(level)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := storage.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("closing database", "error", err)
		}
	}()

	switch command {
	case "migrate":
		err = migrate(ctx, log, db)
	case "start":
		err = start(ctx, log, cfg, db)
	default:
		err = fmt.Errorf("unknown command %q", command)
	}

	if err != nil {
		return fmt.Errorf("%s failed: %w", command, err)
	}

	return nil
}

func migrate(ctx context.Context, log logger.Logger, db storage.Store) error {
	log.Info("running migrations")

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	log.Info("migrations applied")
	return nil
}

func start(ctx context.Context, log logger.Logger, cfg *config.Config, db storage.Store) error {
	log.Info("starting bot", "revision", Revision)

	reporter, err := report.NewSentry(cfg.SentryDSN, Revision, cfg.Environment)
	if err != nil {
		return err
	}
	defer reporter.Flush()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := relay.NewMetrics(registry)

	users := &services.UserService{
		Log:   log,
		Store: db,
	}

	if cfg.RedisURL != "" {
		blockCache, err := cache.NewBlockCache(cfg.RedisURL, cfg.BlockCacheTTL)
		if err != nil {
			return fmt.Errorf("creating block cache: %w", err)
		}
		defer func() {
			if err := blockCache.Close(); err != nil {
				log.Error("closing block cache", "error", err)
			}
		}()
		users.Cache = blockCache
	}

	links := &services.MessageLinkService{Store: db}

	api, err := telegram.NewAPI(cfg.Token)
	if err != nil {
		return err
	}

	log.Info("bot api created", "username", api.Username())

	bot := &telegram.Client{
		Log:         log,
		WorkersNum:  cfg.WorkersNum,
		AdminPolicy: access.NewAdminPolicy(cfg.ChatID),
		SubscriberPolicy: &access.SubscriberPolicy{
			Users:       users,
			AdminChatID: cfg.ChatID,
		},
		Relay: &relay.Relay{
			Log:         log,
			AdminChatID: cfg.ChatID,
			Links:       links,
			Platform:    api,
			Reporter:    reporter,
			Metrics:     metrics,
		},
		Commands: &admin.Commands{
			Log:    log,
			Links:  links,
			Users:  users,
			Sender: api,
		},
		Users:    users,
		Sender:   api,
		Reporter: reporter,
		Metrics:  metrics,
	}

	server := &telegram.Server{
		Log:      log,
		Webhook:  api,
		Gatherer: registry,
	}

	updates := server.Updates()

	switch {
	case cfg.Webhook():
		server.Address = cfg.WebhookAddress
		server.WebhookPath = cfg.WebhookPath

		if cfg.WebhookURL != "" {
			if err := api.SetWebhook(cfg.WebhookURL); err != nil {
				return err
			}
			log.Info("webhook registered", "url", cfg.WebhookURL)
		}
	default:
		server.Address = cfg.MetricsAddress
		updates = api.PollUpdates()
		defer api.StopPolling()
	}

	if server.Address != "" {
		if err := server.Start(ctx); err != nil {
			return err
		}
	}

	if err := bot.Start(ctx, updates); err != nil {
		return fmt.Errorf("starting bot: %w", err)
	}

	<-ctx.Done()
	log.Info("stopping bot")

	bot.Wait()

	return nil
}
