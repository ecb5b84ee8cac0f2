package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/Asort97/promoBot/clients/campaign"
	colorfulprint "github.com/Asort97/promoBot/clients/colorfulPrint"
	"github.com/Asort97/promoBot/clients/config"
	"github.com/Asort97/promoBot/clients/metrics"
	promofile "github.com/Asort97/promoBot/clients/promoFile"
	remnawave "github.com/Asort97/promoBot/clients/remnaWave"
)

const (
	cleanupInterval = 24 * time.Hour
	loginTimeout    = 30 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		_ = colorfulprint.PrintError("promo bot stopped", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	logger, err := colorfulprint.NewLogger(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return err
	}
	defer logger.Sync()
	_ = tgbotapi.SetLogger(zap.NewStdLog(logger.Named("telegram")))

	panel := remnawave.New(remnawave.Options{
		BaseURL:           cfg.Remnawave.BaseURL,
		Token:             cfg.Remnawave.Token,
		CaddyToken:        cfg.Remnawave.CaddyToken,
		NamePrefix:        cfg.Promo.NamePrefix,
		InboundIDs:        cfg.Promo.InboundIDs,
		RequestsPerSecond: cfg.Remnawave.RequestsPerSecond,
		HTTPClient:        &http.Client{Timeout: cfg.Remnawave.Timeout},
		Logger:            logger,
	})
	reports := promofile.New(cfg.Promo.ReportDir, promofile.DefaultFallbacks()...)
	orch := campaign.New(campaign.Options{
		Gateway:       panel,
		Reporter:      reports,
		MaxPerRequest: cfg.Promo.MaxPerRequest,
		Logger:        logger,
	})

	api, err := telegramLogin(cfg.Telegram.BotToken, tgbotapi.APIEndpoint, &http.Client{Timeout: loginTimeout})
	if err != nil {
		return err
	}
	colorfulprint.PrintState("Authorized on account @" + api.Self.UserName)
	logger.Info("bot started",
		zap.String("bot", api.Self.UserName),
		zap.Int("admins", len(cfg.AdminUserIDs)),
		zap.String("panel", cfg.Remnawave.BaseURL),
	)

	if cfg.HTTPAddr != "" {
		srv := metrics.NewServer(cfg.HTTPAddr, panel, logger)
		go func() {
			if err := srv.Run(ctx); err != nil {
				logger.Error("metrics server", zap.Error(err))
			}
		}()
	}

	go reportCleanupWorker(ctx, reports, cfg.Promo.ReportMaxAge, logger)

	bot := newPromoBot(api, orch, cfg.AdminUserIDs, logger)
	d := newDispatcher(bot.handleUpdate, logger)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = cfg.Telegram.PollTimeout
	updates := api.GetUpdatesChan(u)

	serveUpdates(ctx, updates, bot, d)

	logger.Info("shutting down")
	api.StopReceivingUpdates()
	d.Close()
	return nil
}

// telegramLogin checks the token with getMe. endpoint is a tgbotapi endpoint format.
func telegramLogin(token, endpoint string, client *http.Client) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram login failed: %w", err)
	}
	return api, nil
}

// serveUpdates routes updates until ctx ends or the channel closes. Updates from
// non-admins are answered here and never reach a worker.
func serveUpdates(ctx context.Context, updates <-chan tgbotapi.Update, bot *promoBot, d *dispatcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			userID, _, ok := updateSender(update)
			if !ok {
				continue
			}
			if !bot.isAdmin(userID) {
				bot.denyAccess(update)
				continue
			}
			if !d.Dispatch(ctx, userID, update) {
				bot.rejectBusy(update)
			}
		}
	}
}

// reportCleanupWorker removes old report files at startup and then once a day.
func reportCleanupWorker(ctx context.Context, reports *promofile.Writer, maxAge time.Duration, logger *zap.Logger) {
	log := logger.Named("cleanup")
	sweep := func() {
		removed, err := reports.Cleanup(maxAge)
		if err != nil {
			log.Warn("report cleanup", zap.Error(err))
		}
		if removed > 0 {
			log.Info("old reports removed", zap.Int("count", removed))
		}
	}

	sweep()
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}
