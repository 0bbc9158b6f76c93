package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/nimasrn/balance-bot/internal/config"
	"github.com/nimasrn/balance-bot/internal/processor"
	"github.com/nimasrn/balance-bot/internal/queue"
	"github.com/nimasrn/balance-bot/pkg/logger"
	"github.com/nimasrn/balance-bot/pkg/redis"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const publishTimeout = 5 * time.Second

// The bot process only long-polls Telegram and appends every update to the
// stream; cmd/processor does the actual work.
func main() {
	err := config.Load(argContainsEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}
	cfg := config.Get()
	logger.Info("starting bot poller", "version", version, "commit", commit, "date", date)

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

	q, err := queue.NewQueue(redisAdap, queue.QueueConfig{
		Name:          cfg.QueueName,
		ConsumerGroup: cfg.QueueConsumerGroup,
		MaxLen:        cfg.QueueMaxLen,
		EnableDLQ:     cfg.QueueEnableDLQ,
	})
	if err != nil {
		logger.Error("failed to open update queue", "error", err)
		return
	}

	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		logger.Error("failed to create telegram client", "error", err)
		return
	}
	api.Debug = cfg.TelegramDebug
	_ = tgbotapi.SetLogger(logger.GetLogger())
	logger.Info("authorized on telegram", "bot", api.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = cfg.TelegramPollTimeout
	updates := api.GetUpdatesChan(u)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-c:
			logger.Info("stopping bot poller")
			api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			publish(q, update)
		}
	}
}

func publish(q *queue.Queue, update tgbotapi.Update) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	meta := map[string]string{
		"update_id": strconv.Itoa(update.UpdateID),
		"trace_id":  uuid.NewString(),
	}
	if chat := update.FromChat(); chat != nil {
		meta[processor.MetadataChatID] = strconv.FormatInt(chat.ID, 10)
	}

	id, err := q.PublishJSON(ctx, update, meta)
	if err != nil {
		logger.Error("failed to enqueue update", "update_id", update.UpdateID, "error", err)
		return
	}
	logger.Debug("update enqueued", "update_id", update.UpdateID, "stream_id", id, "trace_id", meta["trace_id"])
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
