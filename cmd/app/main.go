// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"golden-ticket/internal/config"
	"golden-ticket/internal/domain/ports/adapter"
	"golden-ticket/internal/domain/ports/repository"
	"golden-ticket/internal/infra/adapters/alert"
	"golden-ticket/internal/infra/adapters/crm"
	"golden-ticket/internal/infra/adapters/mail"
	"golden-ticket/internal/infra/adapters/sheets"
	"golden-ticket/internal/infra/api"
	"golden-ticket/internal/infra/db"
	httpserver "golden-ticket/internal/infra/http"
	"golden-ticket/internal/infra/i18n"
	"golden-ticket/internal/infra/lock"
	"golden-ticket/internal/infra/logging"
	"golden-ticket/internal/infra/metrics"
	red "golden-ticket/internal/infra/redis"
	"golden-ticket/internal/infra/sched"
	"golden-ticket/internal/infra/worker"
	"golden-ticket/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file (empty = env and defaults only)")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, no PII redaction)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("[DEV MODE] Enabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit, cfg.Store.Backend)

	// ---- Store ----
	store, closeStore, err := db.Open(ctx, cfg.Store)
	if err != nil {
		logger.Fatal().Err(err).Msg("open redemption store")
	}
	defer closeStore()
	logger.Info().Str("backend", store.Backend()).Msg("redemption store ready")

	// ---- Lock + rate limiter ----
	var (
		locker  repository.Locker
		limiter repository.RateLimiter
	)
	switch cfg.Lock.Backend {
	case "redis":
		redisClient, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer redisClient.Close()
		locker = red.NewLocker(redisClient)
		limiter = red.NewRateLimiter(redisClient)
	default:
		locker = lock.NewLocalLocker(5 * time.Second)
		limiter = lock.NewLocalRateLimiter()
	}

	// ---- Adapters (noop when not configured) ----
	var alerter adapter.Alerter = alert.NewLogAlerter(logger)
	if cfg.Alert.TelegramToken != "" && cfg.Alert.ChatID != 0 {
		tg, err := alert.NewTelegramAlerter(cfg.Alert.TelegramToken, cfg.Alert.ChatID, "golden-ticket")
		if err != nil {
			logger.Error().Err(err).Msg("telegram alerter disabled")
		} else {
			alerter = tg
		}
	}

	var crmAdapter adapter.CRM = crm.NoopCRM{}
	if cfg.CRM.APIKey != "" {
		k, err := crm.NewKlaviyoCRM(crm.KlaviyoOptions{
			APIKey:   cfg.CRM.APIKey,
			ListID:   cfg.CRM.ListID,
			BaseURL:  cfg.CRM.BaseURL,
			Revision: cfg.CRM.Revision,
			Source:   cfg.Campaign.Website,
			Timeout:  cfg.CRM.Timeout,
			Dev:      cfg.Runtime.Dev,
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("klaviyo")
		}
		crmAdapter = k
	} else {
		logger.Warn().Msg("crm.api_key not set; CRM follow-ups disabled")
	}

	var sheetLogger adapter.SheetLogger = sheets.NoopLogger{}
	if cfg.Sheets.WebAppURL != "" {
		s, err := sheets.NewWebAppLogger(cfg.Sheets.WebAppURL, cfg.Sheets.Timeout)
		if err != nil {
			logger.Fatal().Err(err).Msg("sheets")
		}
		sheetLogger = s
	}

	var mailer adapter.Mailer = mail.NoopMailer{}
	if cfg.Mail.APIKey != "" {
		m, err := mail.NewResendMailer(cfg.Mail.APIKey, cfg.Mail.BaseURL, cfg.Mail.From, cfg.Mail.Timeout)
		if err != nil {
			logger.Fatal().Err(err).Msg("mail")
		}
		mailer = m
	}

	// ---- Workers ----
	pool := worker.NewPool(cfg.Workers.Count, logger)
	pool.Start(ctx)
	defer pool.Stop()

	// ---- Use cases ----
	redUC := usecase.NewRedemptionUseCase(store, locker, alerter, usecase.RedemptionOptions{
		Campaign: cfg.Campaign.Name,
		Website:  cfg.Campaign.Website,
		LockTTL:  cfg.Lock.TTL,
	}, logger)
	regUC := usecase.NewRegistrationUseCase(redUC, crmAdapter, sheetLogger, mailer, pool, usecase.RegistrationOptions{
		Website:     cfg.Campaign.Website,
		EventName:   cfg.CRM.Event,
		MailSubject: cfg.Mail.Subject,
	}, logger)

	newsUC := usecase.NewNewsletterUseCase(crmAdapter, usecase.NewsletterOptions{
		Website: cfg.Campaign.Website,
	}, logger)

	statsWorker := sched.NewStatsWorker(cfg.Workers.StatsInterval, redUC, logger)
	go func() {
		if err := statsWorker.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("stats worker stopped")
		}
	}()

	// ---- HTTP ----
	tr, err := i18n.NewTranslator(i18n.LocalesFS, cfg.HTTP.Language)
	if err != nil {
		logger.Fatal().Err(err).Msg("i18n")
	}
	auth := api.NewAuthManager(cfg.Admin.JWTSecret, cfg.Admin.PasswordHash, cfg.Admin.SecureCookie, cfg.Admin.SessionTTL)
	router := api.NewServer(redUC, regUC, newsUC, auth, limiter, api.ServerOptions{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		RateLimit:      cfg.HTTP.RateLimit,
		RateWindow:     cfg.HTTP.RateWindow,
		Translator:     tr,
	}, logger).Router()
	srv := httpserver.NewServer(cfg.HTTP.Port, router, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	logger.Info().Msg("bye")
}
