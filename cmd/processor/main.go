package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/nimasrn/balance-bot/internal/bot"
	"github.com/nimasrn/balance-bot/internal/config"
	"github.com/nimasrn/balance-bot/internal/detection"
	"github.com/nimasrn/balance-bot/internal/processor"
	"github.com/nimasrn/balance-bot/internal/repository"
	"github.com/nimasrn/balance-bot/internal/services"
	"github.com/nimasrn/balance-bot/pkg/logger"
	"github.com/nimasrn/balance-bot/pkg/pg"
	"github.com/nimasrn/balance-bot/pkg/prom"
	"github.com/nimasrn/balance-bot/pkg/redis"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {

	err := config.Load(argContainsEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}
	cfg := config.Get()
	logger.Info("starting processor", "version", version, "commit", commit, "date", date, "mode", cfg.BotMode)

	if cfg.TelegramBotToken == "" {
		logger.Error("TELEGRAM_BOT_TOKEN is required")
		return
	}

	db, err := openDatabase(cfg)
	if err != nil {
		logger.Error("failed connecting to database", "error", err)
		return
	}
	defer db.Close()

	redisAdap, err := redis.NewRedisAdapter("default", cfg.RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{cfg.RedisAddr},
		ClientName: "default",
		DB:         cfg.RedisDatabase,
		Username:   cfg.RedisUsername,
		Password:   cfg.RedisPassword,
	})
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	var hostname string
	hostname, err = os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	err = prom.Create(hostname, cfg.AppEnv, cfg.PromNamespace)
	if err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}

	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		logger.Error("failed to create telegram client", "error", err)
		return
	}
	api.Debug = cfg.TelegramDebug
	_ = tgbotapi.SetLogger(logger.GetLogger())
	logger.Info("telegram client ready", "bot", api.Self.UserName)

	userRepo := repository.NewUserRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)

	// services
	defaultBalance := cfg.DefaultBalanceAmount()
	var (
		resolver services.IdentityResolver
		lookup   services.IdentityResolver
	)
	if cfg.BotMode == config.ModeNamed {
		fixed := services.NewFixedNameResolver(userRepo, cfg.FixedAccounts(), cfg.AccountAliases(), defaultBalance)
		if err := fixed.Seed(context.Background()); err != nil {
			logger.Error("failed seeding accounts", "error", err)
			return
		}
		resolver, lookup = fixed, fixed
	} else {
		resolver = services.NewPlatformResolver(userRepo, defaultBalance)
	}
	transferService := services.NewTransferService(userRepo, transactionRepo, resolver, defaultBalance)
	reportService := services.NewReportService(userRepo, transactionRepo, lookup, cfg.MaxTransactionHistory)

	var (
		detector  detection.Detector = detection.NewRuleDetector()
		confirmer detection.Confirmer
	)
	if cfg.DetectionProvider == "llm" {
		llm, err := detection.NewLLMDetector(&detection.LLMConfig{
			Providers: []detection.ProviderConfig{
				{Name: "primary", URL: cfg.LLMPrimaryUrl, Weight: 100},
				{Name: "secondary", URL: cfg.LLMSecondaryUrl, Weight: 80},
			},
			APIKey:                  cfg.LLMApiKey,
			Model:                   cfg.LLMModel,
			Timeout:                 cfg.LLMTimeout,
			MaxRetries:              2,
			RetryDelay:              time.Millisecond * 200,
			MaxConns:                64,
			HealthCheckInterval:     30 * time.Second,
			CircuitBreakerThreshold: 5,
			CircuitBreakerTimeout:   60 * time.Second,
		})
		if err != nil {
			logger.Error("failed to create llm detector", "error", err)
			return
		}
		defer llm.Close()
		detector = detection.Chain(llm, detector)
		confirmer = llm
	}

	var conversations bot.ConversationStore
	if cfg.ConversationStore == "memory" {
		conversations = bot.NewMemoryConversationStore(cfg.ConversationTTL)
	} else {
		conversations = bot.NewRedisConversationStore(redisAdap, cfg.ConversationTTL)
	}

	handler := bot.NewHandler(api, transferService, reportService, resolver, detector, conversations, bot.Options{
		Mode:          cfg.BotMode,
		Accounts:      cfg.FixedAccounts(),
		MinConfidence: cfg.DetectionMinConfidence,
		HistoryLimit:  cfg.MaxTransactionHistory,
		Confirmer:     confirmer,
	})

	idempotencyService := processor.NewIdempotencyService(redisAdap, processor.DefaultIdempotencyConfig())

	service, err := processor.NewProcessorService(redisAdap)
	if err != nil {
		logger.Error("failed to run the processor", "error", err)
		return
	}
	service.RegisterProcessor(processor.NewUpdateProcessor(handler, idempotencyService))

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		prom.ListenAndServer(cfg.PromListenAddr, "/metrics")
	}()

	go func() {
		err := service.Start()
		if err != nil {
			logger.Error("failed to start processor", "error", err)
		}
	}()

	<-c
	service.Stop()
}

func openDatabase(cfg *config.Config) (*pg.DB, error) {
	debug := cfg.AppEnv == "dev"
	if cfg.DBDriver == config.DriverSQLite {
		db, err := pg.CreateSQLite(cfg.SQLitePath, debug)
		if err != nil {
			return nil, err
		}
		if cfg.DBAutoMigrate {
			if err := repository.AutoMigrate(db); err != nil {
				return nil, err
			}
		}
		return db, nil
	}
	return pg.CreateReadWrite(cfg.PostgresRead(), cfg.PostgresWrite(), debug)
}

func argContainsEnvPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--env=") {
			s := strings.Split(v, "=")
			if _, err := os.Open(s[1]); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	return ""
}
