// File: cmd/app/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"vpn-shop-bot/internal/application"
	"vpn-shop-bot/internal/config"
	"vpn-shop-bot/internal/domain/model"
	"vpn-shop-bot/internal/domain/ports/adapter"
	"vpn-shop-bot/internal/infra/adapters/events"
	"vpn-shop-bot/internal/infra/adapters/panel"
	payAdapters "vpn-shop-bot/internal/infra/adapters/payment"
	"vpn-shop-bot/internal/infra/adapters/rate"
	"vpn-shop-bot/internal/infra/adapters/storage"
	tele "vpn-shop-bot/internal/infra/adapters/telegram"
	pg "vpn-shop-bot/internal/infra/db/postgres"
	webhooks "vpn-shop-bot/internal/infra/http"
	"vpn-shop-bot/internal/infra/i18n"
	"vpn-shop-bot/internal/infra/logging"
	"vpn-shop-bot/internal/infra/metrics"
	red "vpn-shop-bot/internal/infra/redis"
	"vpn-shop-bot/internal/infra/scheduler"
	"vpn-shop-bot/internal/infra/security"
	"vpn-shop-bot/internal/infra/web"
	"vpn-shop-bot/internal/infra/worker"
	"vpn-shop-bot/internal/usecase"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		logging.Global.Fatal().Err(err).Msg("config")
	}
	log := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		log.Warn().Msg("[DEV MODE] enabled: unconfigured card rail falls back to a no-op gateway")
	}
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Single poller per host ----
	lock := flock.New(cfg.Bot.LockFile)
	locked, err := lock.TryLock()
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Bot.LockFile).Msg("lock file")
	}
	if !locked {
		log.Fatal().Str("path", cfg.Bot.LockFile).Msg("another instance is already polling on this host")
	}
	defer func() { _ = lock.Unlock() }()

	// ---- Postgres ----
	pool, err := pg.Connect(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	if err := pg.Migrate(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}
	go pg.ReportPoolStats(ctx, pool, 15*time.Second)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("redis")
	}
	defer func() { _ = redisClient.Close() }()
	rateLimiter := red.NewRateLimiter(redisClient)
	stateRepo := red.NewStateRepo(redisClient, cfg.Redis.StateTTL)
	locker := red.NewLocker(redisClient)

	// ---- Encryption of panel passwords ----
	var cipher pg.Cipher
	if cfg.Security.EncryptionKey != "" {
		enc, err := security.NewEncryptionService(cfg.Security.EncryptionKey)
		if err != nil {
			log.Fatal().Err(err).Msg("encryption")
		}
		cipher = enc
	} else {
		log.Warn().Msg("security.encryption_key not set; host passwords are stored in plain text")
	}

	// ---- Repositories ----
	settingRepo := pg.NewPostgresSettingRepo(pool)
	if err := settingRepo.SeedDefaults(ctx, model.DefaultSettings); err != nil {
		log.Fatal().Err(err).Msg("seed settings")
	}
	settings := pg.NewSettingRepoCacheDecorator(settingRepo, redisClient, 5*time.Minute)
	userRepo := pg.NewUserRepoCacheDecorator(pg.NewPostgresUserRepo(pool), redisClient, time.Minute)
	planRepo := pg.NewPlanRepoCacheDecorator(pg.NewPostgresPlanRepo(pool), redisClient)
	hostRepo := pg.NewPostgresHostRepo(pool, cipher)
	keyRepo := pg.NewPostgresKeyRepo(pool)
	txRepo := pg.NewPostgresTransactionRepo(pool)
	docRepo := pg.NewPostgresBankDocumentRepo(pool)
	tm := pg.NewTxManager(pool)

	// ---- Outbound adapters ----
	tr, err := i18n.NewTranslator(i18n.LocalesFS, cfg.Bot.Language)
	if err != nil {
		log.Fatal().Err(err).Msg("i18n")
	}
	oracle := red.NewCachedRateOracle(rate.NewBinanceOracle(cfg.Rates, log), redisClient, cfg.Rates.CacheTTL, log)
	panelClient := panel.NewXUIClient(cfg.Panel, log)

	var store adapter.DocumentStore = storage.NoopStore{}
	if cfg.Storage.Enabled {
		s3, err := storage.NewS3Store(ctx, cfg.Storage, log)
		if err != nil {
			log.Fatal().Err(err).Msg("s3 storage")
		}
		store = s3
	}

	var publisher adapter.EventPublisher = events.NewNoopPublisher(log)
	if cfg.Events.AMQPURL != "" {
		amqpPub, err := events.NewAMQPPublisher(cfg.Events, log)
		if err != nil {
			log.Fatal().Err(err).Msg("amqp")
		}
		defer func() { _ = amqpPub.Close() }()
		publisher = amqpPub
	}

	rails, yookassa := buildRails(cfg, log)

	// ---- Telegram ----
	updates := worker.NewPool(cfg.Bot.Workers, log)
	updates.Start(ctx)
	defer updates.Stop()
	botAdapter, err := tele.NewRealTelegramBotAdapter(&cfg.Bot, updates, rateLimiter, log)
	if err != nil {
		log.Fatal().Err(err).Msg("telegram")
	}
	botUsername := strings.TrimPrefix(cfg.Bot.Username, "@")
	if botUsername == "" {
		botUsername = botAdapter.Username()
	}

	// ---- Use cases ----
	settingsUC := usecase.NewSettingsUseCase(settings, cfg.Bot.AdminIDs, log)
	notifierUC := usecase.NewNotificationUseCase(botAdapter, tr, settingsUC, keyRepo, log)
	userUC := usecase.NewUserUseCase(userRepo, keyRepo, log)
	catalogUC := usecase.NewCatalogUseCase(hostRepo, planRepo, log)
	keyUC := usecase.NewKeyUseCase(keyRepo, userRepo, hostRepo, tm, panelClient, settingsUC, log)
	pricingUC := usecase.NewPricingUseCase(settingsUC, oracle, log)
	referralUC := usecase.NewReferralUseCase(userRepo, settingsUC, notifierUC, publisher, botUsername, log)
	settlementUC := usecase.NewSettlementUseCase(tm, txRepo, userRepo, keyRepo, hostRepo, panelClient, referralUC, notifierUC, publisher, log)
	listeners := usecase.NewWalletListeners(time.Second, cfg.Payment.TonConnect.ListenTimeout, log)
	checkoutUC := usecase.NewCheckoutUseCase(usecase.CheckoutDeps{
		Users:     userRepo,
		Plans:     planRepo,
		Keys:      keyRepo,
		Txs:       txRepo,
		Docs:      docRepo,
		Pricing:   pricingUC,
		Settings:  settingsUC,
		Rails:     rails,
		Listeners: listeners,
		Settler:   settlementUC,
		Notifier:  notifierUC,
		Bot:       botAdapter,
		Store:     store,
		Events:    publisher,
		Tr:        tr,
	}, log)
	broadcastUC := usecase.NewBroadcastUseCase(userRepo, botAdapter, tr, 100*time.Millisecond, log)
	statsUC := usecase.NewStatsUseCase(userRepo, keyRepo, txRepo, docRepo, log)

	// ---- Conversation ----
	flow := application.NewFlow(application.Deps{
		Users:     userUC,
		Keys:      keyUC,
		Catalog:   catalogUC,
		Checkout:  checkoutUC,
		Referrals: referralUC,
		Broadcast: broadcastUC,
		Settings:  settingsUC,
		State:     stateRepo,
		Bot:       botAdapter,
		Tr:        tr,
	}, log)
	botAdapter.SetHandler(flow)
	go func() {
		if err := botAdapter.StartPolling(ctx); err != nil {
			log.Error().Err(err).Msg("telegram polling stopped")
		}
	}()

	// ---- Webhooks ----
	hookSrv := webhooks.NewServer(cfg.HTTP.Port, webhooks.Deps{
		Settler:        settlementUC,
		YooKassa:       yookassa,
		YooKassaIPs:    cfg.Payment.YooKassa.AllowedIPs,
		CryptoBotToken: cfg.Payment.CryptoBot.Token,
		HeleketAPIKey:  cfg.Payment.Heleket.APIKey,
		TonSecret:      cfg.Payment.TonConnect.WebhookSecret,
		BotUsername:    botUsername,
	}, log)
	go func() {
		if err := hookSrv.Start(); err != nil {
			log.Error().Err(err).Msg("webhook server")
		}
	}()

	// ---- Admin API ----
	var adminSrv *web.Server
	if cfg.Admin.JWTSecret != "" && cfg.Admin.APIKey != "" {
		auth := web.NewAuthManager(cfg.Admin.JWTSecret, cfg.Admin.APIKey, cfg.Admin.SecureCookie, "", cfg.Admin.SessionTTL)
		adminSrv = web.NewServer(cfg.Admin.Port, web.Deps{
			Stats:     statsUC,
			Catalog:   catalogUC,
			Settings:  settingsUC,
			Referrals: referralUC,
			Settler:   settlementUC,
		}, auth, log)
		go func() {
			if err := adminSrv.Start(); err != nil {
				log.Error().Err(err).Msg("admin api")
			}
		}()
	} else {
		log.Warn().Msg("admin.jwt_secret or admin.api_key not set; admin api disabled")
	}

	// ---- Scheduled jobs ----
	sched, err := scheduler.New(cfg.Scheduler, checkoutUC, notifierUC, locker, log)
	if err != nil {
		log.Fatal().Err(err).Msg("scheduler")
	}
	sched.Start(ctx)

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	log.Info().Msg("shutdown requested")

	botAdapter.StopPolling()
	listeners.StopAll()
	sched.Stop()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := hookSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("webhook server shutdown")
	}
	if adminSrv != nil {
		if err := adminSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("admin api shutdown")
		}
	}
	cancel()
}

// buildRails enables each rail whose credentials are configured. The card gateway is
// returned separately because the webhook server re-reads payments through it.
func buildRails(cfg *config.Config, log *zerolog.Logger) (usecase.Rails, adapter.CardGateway) {
	var rails usecase.Rails
	base := strings.TrimRight(cfg.HTTP.PublicBaseURL, "/")
	returnURL := base + "/payment/return"

	p := cfg.Payment
	switch {
	case p.YooKassa.ShopID != "" && p.YooKassa.SecretKey != "":
		if p.YooKassa.ReturnURL == "" {
			p.YooKassa.ReturnURL = returnURL
		}
		rails.YooKassa = payAdapters.NewYooKassaGateway(p.YooKassa, log)
	case cfg.Runtime.Dev:
		rails.YooKassa = payAdapters.NewNoopGateway("yookassa")
	}
	if p.CryptoBot.Token != "" {
		rails.CryptoBot = payAdapters.NewCryptoBotIssuer(p.CryptoBot, log)
	}
	if p.Heleket.MerchantID != "" && p.Heleket.APIKey != "" {
		rails.Heleket = payAdapters.NewHeleketIssuer(p.Heleket, base+"/webhooks/heleket", returnURL, log)
	}
	if p.TonConnect.ManifestURL != "" {
		rails.Ton = payAdapters.NewTonConnector(p.TonConnect, log)
	}
	log.Info().
		Bool("yookassa", rails.YooKassa != nil).
		Bool("cryptobot", rails.CryptoBot != nil).
		Bool("heleket", rails.Heleket != nil).
		Bool("ton", rails.Ton != nil).
		Msg("payment rails")
	return rails, rails.YooKassa
}
