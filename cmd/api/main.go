package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nimasrn/balance-bot/internal/config"
	"github.com/nimasrn/balance-bot/internal/handlers"
	"github.com/nimasrn/balance-bot/internal/repository"
	"github.com/nimasrn/balance-bot/internal/services"
	xhttp "github.com/nimasrn/balance-bot/pkg/http"
	"github.com/nimasrn/balance-bot/pkg/logger"
	"github.com/nimasrn/balance-bot/pkg/pg"
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
	logger.Info("starting api", "version", version, "commit", commit, "date", date)

	s := newHTTPServer(config.Get().HttpRequestTimeout)

	db, err := openDatabase(config.Get())
	if err != nil {
		logger.Error("failed connecting to database", "error", err)
		return
	}
	defer db.Close()

	redisAdap, err := redis.NewRedisAdapter("default", config.Get().RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{config.Get().RedisAddr},
		ClientName: "default",
		DB:         config.Get().RedisDatabase,
		Username:   config.Get().RedisUsername,
		Password:   config.Get().RedisPassword,
	})
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	userRepo := repository.NewUserRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)

	// services
	defaultBalance := config.Get().DefaultBalanceAmount()
	var (
		resolver services.IdentityResolver
		lookup   services.IdentityResolver
	)
	if config.Get().BotMode == config.ModeNamed {
		fixed := services.NewFixedNameResolver(userRepo, config.Get().FixedAccounts(), config.Get().AccountAliases(), defaultBalance)
		if err := fixed.Seed(context.Background()); err != nil {
			logger.Error("failed seeding accounts", "error", err)
			return
		}
		resolver, lookup = fixed, fixed
	} else {
		resolver = services.NewPlatformResolver(userRepo, defaultBalance)
	}
	transferService := services.NewTransferService(userRepo, transactionRepo, resolver, defaultBalance)
	reportService := services.NewReportService(userRepo, transactionRepo, lookup, config.Get().MaxTransactionHistory)
	healthService := services.NewHealthService(map[string]services.Pinger{
		"database": db,
		"redis": services.PingFunc(func(ctx context.Context) error {
			return redisAdap.Client().Ping(ctx).Err()
		}),
	})

	// v1 handlers
	ledgerHandler := handlers.NewLedgerHandler(reportService, transferService)
	healthHandler := handlers.NewHealthHandler(healthService)

	g := s.Router.Group("/api/v1")
	handlers.RegisterLedgerRoutes(g, ledgerHandler)
	handlers.RegisterHealthRoutes(g, healthHandler)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		var err = s.ListenAndServe(config.Get().HttpListenAddr)
		if err != nil {
			logger.Error("error in running http-server", "error", err)
		}
	}()

	<-c
	s.Shutdown()
}

func newHTTPServer(timeout time.Duration) *xhttp.Engine {
	s := xhttp.NewServer(xhttp.DefaultServerOption)
	s.Server.ReadBufferSize = 1024 * 16
	s.Server.WriteBufferSize = 1024 * 16
	s.Server.Logger = logger.GetLogger()
	s.Use(xhttp.RequestIDMiddleware)
	s.Use(xhttp.CompressMiddleware(6))
	s.Use(xhttp.TimeoutMiddleware(timeout))
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(xhttp.RecoverMiddleware)
	s.Router = xhttp.CreateDefaultRouter()
	return s
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
