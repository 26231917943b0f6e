package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/apascal07/mailroom/core/delivery"
	"github.com/apascal07/mailroom/core/dispatch"
	"github.com/apascal07/mailroom/core/mail"
	"github.com/apascal07/mailroom/integration/database/mongo"
	"github.com/apascal07/mailroom/integration/email/postmark"
	"github.com/apascal07/mailroom/integration/email/smtp"
)

func main() {
	if err := run(); err != nil {
		slog.Error("service failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfg appConfig
	if err := loadConfig(&cfg); err != nil {
		return err
	}

	log := newLogger(cfg)

	var mongoCfg mongo.Config
	if err := loadConfig(&mongoCfg); err != nil {
		return err
	}

	client, err := mongo.New(ctx, mongoCfg)
	if err != nil {
		return err
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	db := client.Database(cfg.Database)
	mailColl := db.Collection(cfg.MailCollection)

	var deliveryCfg delivery.Config
	if err := loadConfig(&deliveryCfg); err != nil {
		return err
	}
	machine, err := delivery.NewStateMachineFromConfig(deliveryCfg,
		mongo.NewDeliveryStore(client, mailColl),
		delivery.WithMachineLogger(log.With(slog.String("component", "delivery"))),
	)
	if err != nil {
		return err
	}

	resolverOpts := []mail.ResolverOption{
		mail.WithResolverLogger(log.With(slog.String("component", "resolver"))),
	}
	if cfg.UsersCollection != "" {
		resolverOpts = append(resolverOpts,
			mail.WithUserLookup(mongo.NewUserDirectory(db.Collection(cfg.UsersCollection))))
	}
	resolver := mail.NewResolver(resolverOpts...)

	var preparerOpts []mail.PreparerOption
	if cfg.TemplatesCollection != "" {
		renderer, err := mail.NewRenderer(mongo.NewTemplateCollection(db.Collection(cfg.TemplatesCollection)))
		if err != nil {
			return err
		}
		preparerOpts = append(preparerOpts, mail.WithRenderer(renderer))
	}
	preparer, err := mail.NewPreparer(resolver, preparerOpts...)
	if err != nil {
		return err
	}

	transport, err := newTransport(cfg)
	if err != nil {
		return err
	}

	var dispatchCfg dispatch.Config
	if err := loadConfig(&dispatchCfg); err != nil {
		return err
	}
	dispatcher, err := dispatch.NewDispatcherFromConfig(dispatchCfg, machine, preparer, transport,
		dispatch.WithLogger(log.With(slog.String("component", "dispatcher"))),
	)
	if err != nil {
		return err
	}

	watcher, err := mongo.NewWatcher(mailColl, dispatcher,
		mongo.WithWatcherLogger(log.With(slog.String("component", "watcher"))),
		mongo.WithWatcherInvocationTimeout(machine.LeaseDuration()),
	)
	if err != nil {
		return err
	}

	log.InfoContext(ctx, "mailroom starting",
		slog.String("database", cfg.Database),
		slog.String("collection", cfg.MailCollection),
		slog.String("transport", cfg.Transport))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(watcher.Run(ctx))

	return g.Wait()
}

// newTransport builds the configured mail transport backend.
func newTransport(cfg appConfig) (mail.Transport, error) {
	switch cfg.Transport {
	case "smtp":
		var smtpCfg smtp.Config
		if err := loadConfig(&smtpCfg); err != nil {
			return nil, err
		}
		return smtp.New(smtpCfg)
	case "postmark":
		var pmCfg postmark.Config
		if err := loadConfig(&pmCfg); err != nil {
			return nil, err
		}
		return postmark.New(pmCfg)
	case "file":
		return mail.NewFileTransport(cfg.FileDir), nil
	default:
		return nil, fmt.Errorf("%w: unknown transport %q", mail.ErrInvalidConfig, cfg.Transport)
	}
}

func newLogger(cfg appConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
