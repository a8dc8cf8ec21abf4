package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"price-move-alerts/internal/alerting"
	"price-move-alerts/internal/config"
	"price-move-alerts/internal/fetcher"
	"price-move-alerts/internal/journal"
	"price-move-alerts/internal/scheduler"
	"price-move-alerts/internal/service"
	"price-move-alerts/internal/storage"
	"price-move-alerts/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	// FS backs the detection journal.
	FS afero.Fs
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), FS: afero.NewOsFs()}
}

func (a *App) newSource() fetcher.SampleSource {
	opts := fetcher.KuCoinOptions{
		BaseURL:   a.Config.Exchange.BaseURL,
		Timeout:   a.Config.Poll.RequestTimeout,
		UserAgent: version.UserAgent(),
	}
	if a.Config.HasCredentials() {
		opts.Credentials = fetcher.Credentials{
			Key:        a.Config.Key,
			Secret:     a.Config.Secret,
			Passphrase: a.Config.Passphrase,
			KeyVersion: a.Config.Exchange.KeyVersion,
		}
	} else {
		a.Logger.Info().Msg("no exchange credentials configured; ticker requests are unsigned")
	}
	return fetcher.NewKuCoin(opts, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if !a.Config.Alerting.Enabled {
		return nil
	}

	targets := make([]alerting.Named, 0, len(a.Config.Alerting.Channels))
	for _, ch := range a.Config.Alerting.Channels {
		switch ch {
		case config.ChannelWebhook:
			targets = append(targets, alerting.Named{
				Channel:  ch,
				Notifier: alerting.NewWebhookNotifier(a.Config.Webhook, a.Config.Alerting.Timeout, a.Logger),
			})
		case config.ChannelTelegram:
			tg := a.Config.Alerting.Telegram
			targets = append(targets, alerting.Named{
				Channel:  ch,
				Notifier: alerting.NewTelegramNotifier(tg.BotToken, tg.ChatID, tg.APIBase, a.Config.Alerting.Timeout, a.Logger),
			})
		}
	}
	return alerting.NewMulti(targets...)
}

func (a *App) newJournal() service.EventWriter {
	if !a.Config.Journal.Enabled {
		return nil
	}
	return journal.New(a.FS, a.Config.Journal.Dir)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running poll loop until SIGINT/SIGTERM.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Poll.Interval,
		StartupDelay: a.Config.Poll.StartupDelay,
		MaxBackoff:   a.Config.Poll.MaxBackoff,
		Retryable:    fetcher.IsRetryable,
	}, a.Logger)

	notifier := a.newNotifier()
	if notifier == nil {
		a.Logger.Warn().Msg("no alert channels enabled; hits will only be logged")
	}

	var sampleStore storage.SampleStore
	var alertStore storage.AlertStore
	if store != nil {
		sampleStore = store
		alertStore = store
	}

	svc := service.New(a.Config, sched, a.newSource(), notifier, a.newJournal(), sampleStore, alertStore, a.Logger)

	a.Logger.Info().Str("symbol", a.Config.Symbol).Msg("starting monitoring service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// ExportOptions hold parameters for exporting historical samples.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit   int
	Samples bool
}
