package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"property_lifecycle_engine/internal/app"
	"property_lifecycle_engine/internal/domain/lifecycle"
	"property_lifecycle_engine/internal/domain/notification"
	idb "property_lifecycle_engine/internal/infra/database"
	"property_lifecycle_engine/internal/infra/logger"
	"property_lifecycle_engine/internal/infra/telegram"
	"property_lifecycle_engine/internal/infra/telemetry"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const metricsInterval = time.Minute

// runtime holds the wired components shared by the subcommands.
type runtime struct {
	db           *sql.DB
	loc          *time.Location
	clock        lifecycle.Clock
	tasks        *idb.PostgresTaskRepository
	promoter     *app.Promoter
	replacements *app.ReplacementService
	metrics      *telemetry.Metrics
	log          *logrus.Entry

	shutdownMetrics func(context.Context) error
}

func newRuntime(ctx context.Context) (*runtime, error) {
	log := logger.Base(cfg)
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	table := lifecycle.DefaultTable()
	if err := table.Validate(); err != nil {
		return nil, err
	}

	shutdown, err := telemetry.Init(ctx, cfg.OtelMetricsEnabled, "lifecycled", metricsInterval)
	if err != nil {
		return nil, err
	}
	metrics, err := telemetry.NewMetrics(telemetry.Meter())
	if err != nil {
		shutdown(ctx)
		return nil, fmt.Errorf("creating metrics: %w", err)
	}

	db, err := idb.NewPostgresConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		shutdown(ctx)
		return nil, err
	}
	log.Info("Database connection established successfully.")

	clock := lifecycle.SystemClock{}
	tasks := idb.NewPostgresTaskRepository(db)
	promoter := app.NewPromoter(table, tasks, clock, cfg.NotifyMaxRetries, metrics, log)
	tables := idb.DefaultSubjectTables()
	for _, spec := range table.Subjects {
		repo, err := idb.NewPostgresSubjectRepository(db, tables[spec.Type], spec)
		if err != nil {
			db.Close()
			shutdown(ctx)
			return nil, err
		}
		promoter.Register(spec.Type, repo)
	}

	return &runtime{
		db:              db,
		loc:             loc,
		clock:           clock,
		tasks:           tasks,
		promoter:        promoter,
		replacements:    app.NewReplacementService(idb.NewPostgresChequeRepository(db, clock), log),
		metrics:         metrics,
		log:             log,
		shutdownMetrics: shutdown,
	}, nil
}

func (rt *runtime) dispatcher(channel notification.Channel) *app.Dispatcher {
	return app.NewDispatcher(rt.tasks, channel, app.DispatcherConfig{
		Concurrency:     cfg.DispatchConcurrency,
		DeliveryTimeout: cfg.DeliveryTimeout,
		StaleClaimAfter: cfg.StaleClaimAfter,
		Backoff: app.BackoffPolicy{
			Initial:    cfg.BackoffInitial,
			Max:        cfg.BackoffMax,
			Multiplier: cfg.BackoffMultiplier,
		},
	}, rt.metrics, rt.log)
}

// channel returns the Telegram channel when a token is configured, otherwise one that only logs.
// The bot is nil in the latter case.
func (rt *runtime) channel() (notification.Channel, *telebot.Bot, error) {
	if cfg.TelegramToken == "" {
		rt.log.Warn("TELEGRAM_TOKEN is not set; notifications are logged only")
		return app.NewLoggingChannel(rt.log), nil, nil
	}
	pref := telebot.Settings{
		Token:  cfg.TelegramToken,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c telebot.Context) { // Global error handler
			entry := rt.log.WithError(err)
			if c != nil && c.Sender() != nil && c.Chat() != nil {
				entry = entry.WithFields(logrus.Fields{"sender_id": c.Sender().ID, "chat_id": c.Chat().ID})
			}
			entry.Error("telebot error")
		},
	}
	bot, err := telebot.NewBot(pref)
	if err != nil {
		return nil, nil, fmt.Errorf("could not create Telegram bot: %w", err)
	}
	return telegram.NewChannel(telegram.NewTelebotAdapter(bot), cfg.NotifyChatID), bot, nil
}

func (rt *runtime) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rt.shutdownMetrics(ctx); err != nil {
		rt.log.WithError(err).Warn("Metrics shutdown failed")
	}
	rt.db.Close()
}

// parseAsOf reads a YYYY-MM-DD date in the configured zone; empty means today.
func (rt *runtime) parseAsOf(s string) (time.Time, error) {
	if s == "" {
		return rt.clock.Now().In(rt.loc), nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, rt.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --as-of %q, want YYYY-MM-DD: %w", s, err)
	}
	return t, nil
}
