package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sipeed/wabridge/pkg/api"
	"github.com/sipeed/wabridge/pkg/bus"
	"github.com/sipeed/wabridge/pkg/channels"
	"github.com/sipeed/wabridge/pkg/config"
	"github.com/sipeed/wabridge/pkg/history"
	"github.com/sipeed/wabridge/pkg/logger"
	"github.com/sipeed/wabridge/pkg/session"
	"github.com/sipeed/wabridge/pkg/storage"
	"github.com/sipeed/wabridge/pkg/webhook"
)

const version = "0.1.0"

func main() {
	cmd := "serve"
	args := os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "serve":
		serveCommand(args)
	case "console":
		consoleCommand(args)
	case "version":
		fmt.Printf("wabridge %s\n", version)
	case "help":
		printHelp()
	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		printHelp()
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Println("wabridge - WhatsApp Web session bridge")
	fmt.Println()
	fmt.Println("Usage: wabridge <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve     Run the bridge (default)")
	fmt.Println("  console   Interactive console against a running bridge")
	fmt.Println("  version   Print the version")
}

func getConfigPath() string {
	if path := strings.TrimSpace(os.Getenv("WABRIDGE_CONFIG")); path != "" {
		return path
	}
	return config.DefaultConfigPath()
}

func serveCommand(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", getConfigPath(), "path to a JSON or YAML config file")
	fs.Parse(args)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(os.Stderr, cfg.Log.Level, logger.Format(cfg.Log.Format))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg); err != nil {
		logger.ErrorCF("main", "Bridge stopped with error", map[string]interface{}{
			"error": err.Error(),
		})
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	storeCfg := storage.DefaultConfig()
	storeCfg.Dialect = cfg.WhatsApp.StoreDialect
	storeCfg.DSN = cfg.WhatsApp.StoreDSN
	storeCfg.SSLEnabled = cfg.WhatsApp.SSLEnabled

	deviceStore, err := storage.Open(ctx, storeCfg)
	if err != nil {
		return err
	}
	defer deviceStore.Close()

	msgBus := bus.NewMessageBus()
	defer msgBus.Close()

	registry := webhook.NewRegistry()
	if err := seedWebhooks(registry, cfg.Webhooks); err != nil {
		return err
	}

	secret, err := cfg.WebhookSecret()
	if err != nil {
		return fmt.Errorf("failed to resolve webhook secret: %w", err)
	}
	if secret != nil {
		logger.InfoCF("main", "Webhook payloads are signed", map[string]interface{}{
			"header": webhook.HeaderSignature,
			"secret": config.MaskSecret(string(secret)),
		})
	}

	dispatcher := webhook.NewDispatcher(registry, webhook.Options{
		Workers:        cfg.Webhooks.Workers,
		QueueSize:      cfg.Webhooks.QueueSize,
		MessageTimeout: cfg.Webhooks.MessageTimeout.Duration,
		DefaultTimeout: cfg.Webhooks.DefaultTimeout.Duration,
		MaxAttempts:    cfg.Webhooks.MaxAttempts,
		RetryPolicy: webhook.ExponentialRetryPolicy{
			Initial: cfg.Webhooks.RetryInitial.Duration,
			Max:     cfg.Webhooks.RetryMax.Duration,
		},
		Secret:          secret,
		DeadLetterLimit: cfg.Webhooks.DeadLetterLimit,
	})
	go dispatcher.Run(ctx)

	if cfg.Webhooks.ReplayCron != "" {
		replay, err := webhook.NewReplayScheduler(cfg.Webhooks.ReplayCron, dispatcher)
		if err != nil {
			return err
		}
		go replay.Run(ctx)
	}

	var qrOut io.Writer
	if cfg.WhatsApp.PrintQR {
		qrOut = os.Stdout
	}

	media := channels.NewMediaFetcher(cfg.WhatsApp.MediaTimeout.Duration, cfg.WhatsApp.MaxMediaBytes)
	manager := session.NewManager(session.Options{
		Factory:        channels.NewWhatsAppFactory(deviceStore, media),
		Bus:            msgBus,
		Dispatcher:     dispatcher,
		History:        history.NewStore(cfg.History.PerChat),
		ReconnectDelay: cfg.Session.ReconnectDelay.Duration,
		RestartDelay:   cfg.Session.RestartDelay.Duration,
		SendTimeout:    cfg.Session.SendTimeout.Duration,
		QRWriter:       qrOut,
	})
	go manager.Run(ctx)

	server := api.NewServer(cfg.Server, manager, registry, dispatcher, msgBus)
	if err := server.Start(ctx); err != nil {
		return err
	}
	defer server.Stop()

	if err := manager.Start(ctx); err != nil {
		logger.WarnCF("main", "Initial connection failed, retry scheduled", map[string]interface{}{
			"error": err.Error(),
		})
	}

	logger.InfoCF("main", "wabridge running", map[string]interface{}{
		"version": version,
		"address": cfg.ListenAddr(),
	})

	<-ctx.Done()
	logger.InfoC("main", "Shutting down")
	manager.Stop(context.Background())
	return nil
}

func seedWebhooks(registry *webhook.Registry, cfg config.WebhooksConfig) error {
	seeds := map[webhook.Category]string{
		webhook.CategoryMessage: cfg.MessageURL,
		webhook.CategoryStatus:  cfg.StatusURL,
		webhook.CategoryGroup:   cfg.GroupURL,
	}
	for category, url := range seeds {
		if url == "" {
			continue
		}
		if err := registry.Set(category, url); err != nil {
			return fmt.Errorf("invalid %s webhook in config: %w", category, err)
		}
	}
	return nil
}
