package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/digkill/TGContentBot/internal/api"
	"github.com/digkill/TGContentBot/internal/cache"
	"github.com/digkill/TGContentBot/internal/config"
	"github.com/digkill/TGContentBot/internal/database"
	"github.com/digkill/TGContentBot/internal/images"
	"github.com/digkill/TGContentBot/internal/llm"
	"github.com/digkill/TGContentBot/internal/metrics"
	"github.com/digkill/TGContentBot/internal/repository"
	"github.com/digkill/TGContentBot/internal/scraper"
	"github.com/digkill/TGContentBot/internal/service"
	"github.com/digkill/TGContentBot/internal/storage"
	"github.com/digkill/TGContentBot/internal/telegram"
	"github.com/digkill/TGContentBot/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg, logr)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("database migrate: %v", err)
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatalf("telegram bot: %v", err)
	}
	botAPI.Debug = cfg.IsDev()
	logr.Info("starting", "env", cfg.AppEnv, "bot", botAPI.Self.UserName)

	m := metrics.New()
	cascade := llm.NewCascade(buildProviders(cfg, logr), m, logr)

	userRepo := repository.NewUserRepository(db)
	usageRepo := repository.NewUsageRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	analysisRepo := repository.NewAnalysisRepository(db)
	ideaRepo := repository.NewIdeaRepository(db)
	postRepo := repository.NewPostRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)

	var imageCache images.Cache
	if cfg.RedisURL != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			logr.Warn("redis unavailable, image search is not cached", "err", err)
		} else {
			defer rdb.Close()
			imageCache = cache.NewImageCache(rdb, cfg.ImageCacheTTL)
		}
	}
	imageClient := images.NewClient(images.Options{
		UnsplashKey: cfg.UnsplashAccessKey,
		PexelsKey:   cfg.PexelsAPIKey,
		Timeout:     cfg.ImageFetchTimeout,
	}, imageCache, logr)

	var mirror service.ImageMirror
	if cfg.S3Enabled() {
		uploader, err := storage.NewUploader(storage.Config{
			Endpoint:      cfg.S3Endpoint,
			Region:        cfg.S3Region,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Bucket:        cfg.S3Bucket,
			PublicBaseURL: cfg.S3PublicBaseURL,
			UsePathStyle:  cfg.S3UsePathStyle,
			Prefix:        cfg.S3Prefix,
		}, cfg.ImageFetchTimeout)
		if err != nil {
			log.Fatalf("storage uploader: %v", err)
		}
		mirror = uploader
	}

	userService := service.NewUserService(userRepo)
	notifier := telegram.NewNotifier(botAPI, userService, logr)
	ledger := service.NewUsageLedger(usageRepo, subscriptionRepo, notifier, logr)
	fetcher := scraper.NewFetcher(cfg.ScrapeBaseURL, cfg.ScrapeTimeout, cfg.ScrapeLimit, logr)
	imageService := service.NewImageService(cascade, imageClient, mirror, logr)
	analysisService := service.NewAnalysisService(ledger, fetcher, cascade, analysisRepo, m, logr)
	planService := service.NewPlanService(ledger, cascade, ideaRepo, m, logr)
	postService := service.NewPostService(ledger, cascade, ideaRepo, postRepo, analysisRepo, imageService, m, logr)
	paymentService := service.NewPaymentService(cfg.SubscriptionPriceStars, cfg.SubscriptionDays, paymentRepo, ledger, logr)

	bot := telegram.NewBot(cfg, botAPI, logr, userService, ledger, analysisService, paymentService)

	apiServer := api.NewServer(api.Options{
		Addr:            cfg.APIListenAddr,
		AdminUsername:   cfg.AdminUsername,
		AdminPassword:   cfg.AdminPassword,
		AllowedOrigins:  cfg.CORSAllowOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
	}, api.Deps{
		Analysis:    analysisService,
		Plans:       planService,
		Posts:       postService,
		Ledger:      ledger,
		Payments:    paymentService,
		Broadcaster: notifier,
		Bot:         botAPI,
		Metrics:     m,
	}, logr)
	go func() {
		if err := apiServer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logr.Error("api server stopped", "err", err)
			stop()
		}
	}()

	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("bot stopped", "err", err)
	}
}

// buildProviders orders the cascade: DeepSeek answers in strict JSON first,
// OpenRouter with the line format is the fallback.
func buildProviders(cfg config.Config, logr *slog.Logger) []llm.Provider {
	httpClient := &http.Client{Timeout: 3 * time.Minute}
	return []llm.Provider{
		{
			Name:  "deepseek",
			Model: cfg.DeepSeekModel,
			Style: llm.StyleJSON,
			Keys:  []string{cfg.DeepSeekAPIKey, cfg.DeepSeekAPIKey2},
			Client: llm.NewProviderClient(llm.ClientOptions{
				Name:       "deepseek",
				BaseURL:    cfg.DeepSeekBaseURL,
				HTTPClient: httpClient,
			}, logr),
		},
		{
			Name:  "openrouter",
			Model: cfg.OpenRouterModel,
			Style: llm.StyleLines,
			Keys:  []string{cfg.OpenRouterAPIKey, cfg.OpenRouterAPIKey2},
			Client: llm.NewProviderClient(llm.ClientOptions{
				Name:       "openrouter",
				BaseURL:    cfg.OpenRouterBaseURL,
				Referer:    cfg.AppReferer,
				Title:      cfg.AppTitle,
				HTTPClient: httpClient,
			}, logr),
		},
	}
}
