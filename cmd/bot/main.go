package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-telegram/bot"

	"numinfo_bot/internal/broadcast"
	"numinfo_bot/internal/config"
	"numinfo_bot/internal/domain"
	"numinfo_bot/internal/feature/user"
	"numinfo_bot/internal/gate"
	"numinfo_bot/internal/health"
	"numinfo_bot/internal/ledger"
	"numinfo_bot/internal/logging"
	"numinfo_bot/internal/lookup"
	"numinfo_bot/internal/payment"
	"numinfo_bot/internal/referral"
	"numinfo_bot/internal/roles"
	"numinfo_bot/internal/session"
	"numinfo_bot/internal/store"
	"numinfo_bot/internal/telegram"
)

const (
	mongoConnectTimeout     = 10 * time.Second
	mongoIndexTimeout       = 5 * time.Second
	mongoDisconnectTimeout  = 5 * time.Second
	getMeTimeout            = 10 * time.Second
	setWebhookTimeout       = 10 * time.Second
	httpShutdownTimeout     = 5 * time.Second
	telegramShutdownTimeout = 10 * time.Second
)

func main() {
	configOnly := flag.Bool("config-only", false, "load and print configuration then exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Error("configuration error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Setup(cfg)
	if err != nil {
		logging.Error("logger setup error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "logger setup error: %v\n", err)
		os.Exit(1)
	}

	if *configOnly {
		logging.Info("configuration check", logging.Fields{"event": "config_only"})
		fmt.Println("configuration check: ok")
		fmt.Println(config.FormatRedacted(cfg))
		return
	}

	logger.WithFields(logging.Fields{
		"event":    "startup",
		"mongo_db": cfg.MongoDB,
		"mode":     cfg.BotMode,
	}).Info("configuration loaded")

	connectCtx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
	manager, err := store.NewManager(connectCtx, cfg)
	cancel()
	if err != nil {
		logger.WithError(err).Error("mongo connection error")
		fmt.Fprintf(os.Stderr, "mongo connection error: %v\n", err)
		os.Exit(1)
	}

	logger.WithField("event", "mongo_connect").Info("connected to mongo")

	indexCtx, cancelIndexes := context.WithTimeout(context.Background(), mongoIndexTimeout)
	err = manager.EnsureBaseIndexes(indexCtx)
	cancelIndexes()
	if err != nil {
		logger.WithError(err).Error("mongo index setup error")
		fmt.Fprintf(os.Stderr, "mongo index setup error: %v\n", err)
		os.Exit(1)
	}

	logger.WithField("event", "mongo_indexes").Info("ensured base mongo indexes")

	registrar := user.NewRegistrar(manager.Users(), logger)
	pointsLedger := ledger.New(manager.Points(), cfg.StartBonus, logger)
	tracker := referral.NewTracker(manager.Referrals(), pointsLedger, cfg.ReferralReward, logger)
	sessions := session.NewStore(manager.Sessions(), logger)
	roleResolver := roles.NewResolver(manager.Users(), cfg.BotOwnerID, logger)
	stats := store.NewStatsProvider(manager.Users())
	lookupClient := lookup.NewClient(cfg.LookupAPIURL, cfg.LookupAPIKey, logger)

	tgClient, err := telegram.NewClient(cfg, logger)
	if err != nil {
		logger.WithError(err).Error("telegram client setup error")
		fmt.Fprintf(os.Stderr, "telegram client setup error: %v\n", err)
		os.Exit(1)
	}

	botAPI := tgClient.Bot()

	getMeCtx, cancelGetMe := context.WithTimeout(context.Background(), getMeTimeout)
	me, err := botAPI.GetMe(getMeCtx)
	cancelGetMe()
	if err != nil {
		logger.WithError(err).Error("telegram identity error")
		fmt.Fprintf(os.Stderr, "telegram identity error: %v\n", err)
		os.Exit(1)
	}

	logger.WithFields(logging.Fields{
		"event":    "telegram_identity",
		"bot_id":   me.ID,
		"username": me.Username,
	}).Info("telegram bot identified")

	membershipGate := gate.New(botAPI, cfg.RequiredChannels, logger)
	engine := broadcast.NewEngine(botAPI, stats, manager.BroadcastLogs(), cfg.BroadcastDelay, logger)

	var bridge *payment.Bridge
	if cfg.PaymentsEnabled() {
		bridge = payment.NewBridge(manager.Payments(), pointsLedger,
			cfg.PayAPIURL, cfg.PayAPIKey, cfg.PayWebhookSecret, cfg.PayPointsPerUnit, logger)
		bridge.SetCreditNotifier(func(ctx context.Context, row domain.PendingPayment) {
			_, sendErr := botAPI.SendMessage(ctx, &bot.SendMessageParams{
				ChatID: row.ChatID,
				Text:   fmt.Sprintf("Your deposit was confirmed: +%d point(s).", row.Points),
			})
			if sendErr != nil {
				logging.WithContext(logging.Context{
					UserID: row.UserID,
					ChatID: row.ChatID,
					Event:  "payment_notify_failed",
				}).WithError(sendErr).Warn("failed to notify paid user")
			}
		})
	}

	deps := telegram.Deps{
		API:         botAPI,
		Cfg:         cfg,
		Users:       registrar,
		Gate:        membershipGate,
		Sessions:    sessions,
		Ledger:      pointsLedger,
		Referrals:   tracker,
		Roles:       roleResolver,
		Lookup:      lookupClient,
		Broadcast:   engine,
		Stats:       stats,
		BotUsername: me.Username,
		Logger:      logger,
	}
	if bridge != nil {
		deps.Payments = bridge
	}

	dispatcher := telegram.NewDispatcher(deps)
	membershipGate.SetPassHook(dispatcher.CompleteReferrals)
	tgClient.SetDispatcher(dispatcher)

	httpServer := health.NewServer(cfg.HTTPPort, manager, logger)
	if bridge != nil {
		httpServer.Mount("/payments/webhook", bridge.WebhookHandler())
	}
	if cfg.BotMode == config.ModeWebhook {
		webhookPath := "/webhook/" + cfg.WebhookSecret
		httpServer.Mount(webhookPath, tgClient.WebhookHandler())

		hookCtx, cancelHook := context.WithTimeout(context.Background(), setWebhookTimeout)
		_, err = botAPI.SetWebhook(hookCtx, &bot.SetWebhookParams{
			URL: cfg.WebhookURL + webhookPath,
		})
		cancelHook()
		if err != nil {
			logger.WithError(err).Error("set webhook error")
			fmt.Fprintf(os.Stderr, "set webhook error: %v\n", err)
			os.Exit(1)
		}

		logger.WithField("event", "webhook_set").Info("registered telegram webhook")
	}

	logger.WithField("event", "telegram_ready").Info("telegram client initialized")

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if serveErr := httpServer.ListenAndServe(); serveErr != nil {
			logger.WithError(serveErr).Error("http server error")
		}
	}()

	pinger := health.NewPinger(cfg.KeepaliveURL, cfg.KeepaliveInterval, logger)
	go pinger.Run(signalCtx)

	telegramCtx, cancelTelegram := context.WithCancel(context.Background())
	tgDone := make(chan struct{})

	go func() {
		tgClient.Start(telegramCtx)
		close(tgDone)
	}()

	select {
	case <-signalCtx.Done():
		logger.WithField("event", "shutdown_signal").Info("received termination signal, stopping")
	case <-tgDone:
		logger.WithField("event", "telegram_stopped_early").Warn("telegram client stopped before shutdown signal")
	}

	cancelTelegram()

	waitCtx, cancelWait := context.WithTimeout(context.Background(), telegramShutdownTimeout)
	select {
	case <-tgDone:
	case <-waitCtx.Done():
		logger.WithField("event", "telegram_shutdown_timeout").Warn("timed out waiting for telegram client to stop")
	}
	cancelWait()

	httpCtx, cancelHTTP := context.WithTimeout(context.Background(), httpShutdownTimeout)
	if err := httpServer.Shutdown(httpCtx); err != nil {
		logger.WithError(err).Error("http shutdown error")
	}
	cancelHTTP()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), mongoDisconnectTimeout)
	if err := manager.Close(shutdownCtx); err != nil {
		logger.WithError(err).Error("mongo disconnect error")
	} else {
		logger.WithField("event", "mongo_disconnect").Info("mongo client disconnected")
	}
	cancelShutdown()

	logger.WithField("event", "shutdown_complete").Info("shutdown complete")
}
