package config

import (
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/nimasrn/balance-bot/internal/model"
	"github.com/nimasrn/balance-bot/pkg/logger"
	"github.com/nimasrn/balance-bot/pkg/pg"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	ModeNamed    = "named"
	ModePlatform = "platform"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var config *Config

// Config holds every setting of the bot processes. Only this struct must be
// used to read configuration; no direct env access elsewhere.
type Config struct {
	AppEnv  string `env:"APP_ENV,default=dev"`
	AppName string `env:"APP_NAME,default=balance_bot"`
	LogEnv  string `env:"LOG_ENV,default=development"`

	LogLevel string `env:"LOG_LEVEL,default=info"`

	HttpListenAddr     string        `env:"HTTP_LISTEN_ADDR,default=:8080"`
	HttpRequestTimeout time.Duration `env:"HTTP_REQUEST_TIMEOUT,default=5s"`

	DBDriver      string `env:"DB_DRIVER,default=postgres"`
	DBAutoMigrate bool   `env:"DB_AUTO_MIGRATE,default=false"`
	SQLitePath    string `env:"SQLITE_PATH,default=balance_bot.db"`

	PostgresReadHost     string `env:"POSTGRES_READ_HOST"`
	PostgresReadPort     string `env:"POSTGRES_READ_PORT,default=5432"`
	PostgresReadUser     string `env:"POSTGRES_READ_USER"`
	PostgresReadPassword string `env:"POSTGRES_READ_PASSWORD"`
	PostgresReadDatabase string `env:"POSTGRES_READ_DBNAME"`

	PostgresWriteHost     string `env:"POSTGRES_WRITE_HOST"`
	PostgresWritePort     string `env:"POSTGRES_WRITE_PORT,default=5432"`
	PostgresWriteUser     string `env:"POSTGRES_WRITE_USER"`
	PostgresWritePassword string `env:"POSTGRES_WRITE_PASSWORD"`
	PostgresWriteDatabase string `env:"POSTGRES_WRITE_DBNAME"`

	RedisAddr               string `env:"REDIS_ADDR,default=localhost:6379"`
	RedisUsername           string `env:"REDIS_USER"`
	RedisPassword           string `env:"REDIS_PASS"`
	RedisDatabase           int    `env:"REDIS_DATABASE,default=0"`
	RedisUniversalKeyPrefix string `env:"REDIS_UNIVERSAL_KEY_PREFIX,default=balance_bot:"`

	PromNamespace  string `env:"PROM_NAMESPACE,default=balance_bot"`
	PromListenAddr string `env:"PROM_LISTEN_ADDR,default=:9100"`

	QueueName              string        `env:"QUEUE_NAME,default=telegram:updates"`
	QueueConsumerGroup     string        `env:"QUEUE_CONSUMER_GROUP,default=processors"`
	QueueConsumerName      string        `env:"QUEUE_CONSUMER_NAME,default=processor"`
	QueueConsumers         int           `env:"QUEUE_CONSUMERS,default=4"`
	QueueMaxRetries        int           `env:"QUEUE_MAX_RETRIES,default=3"`
	QueueVisibilityTimeout time.Duration `env:"QUEUE_VISIBILITY_TIMEOUT,default=30s"`
	QueuePollInterval      time.Duration `env:"QUEUE_POLL_INTERVAL,default=1s"`
	QueueBatchSize         int64         `env:"QUEUE_BATCH_SIZE,default=10"`
	QueueMaxLen            int64         `env:"QUEUE_MAX_LEN,default=100000"`
	QueueEnableDLQ         bool          `env:"QUEUE_ENABLE_DLQ,default=true"`

	WorkerCount  int `env:"WORKER_COUNT,default=8"`
	WorkerBuffer int `env:"WORKER_BUFFER,default=64"`

	TelegramBotToken    string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramPollTimeout int    `env:"TELEGRAM_POLL_TIMEOUT,default=60"`
	TelegramDebug       bool   `env:"TELEGRAM_DEBUG,default=false"`

	BotMode           string `env:"BOT_MODE,default=platform"`
	BotFixedAccounts  string `env:"BOT_FIXED_ACCOUNTS"`
	BotAccountAliases string `env:"BOT_ACCOUNT_ALIASES"`

	DefaultBalance        string `env:"DEFAULT_BALANCE,default=1000"`
	MaxTransactionHistory int    `env:"MAX_TRANSACTION_HISTORY,default=10"`

	ConversationStore string        `env:"CONVERSATION_STORE,default=redis"`
	ConversationTTL   time.Duration `env:"CONVERSATION_TTL,default=10m"`

	DetectionProvider      string  `env:"DETECTION_PROVIDER,default=rules"`
	DetectionMinConfidence float64 `env:"DETECTION_MIN_CONFIDENCE,default=0.7"`

	LLMPrimaryUrl   string        `env:"LLM_PRIMARY_URL"`
	LLMSecondaryUrl string        `env:"LLM_SECONDARY_URL"`
	LLMApiKey       string        `env:"LLM_API_KEY"`
	LLMModel        string        `env:"LLM_MODEL,default=mistral-small-latest"`
	LLMTimeout      time.Duration `env:"LLM_TIMEOUT,default=10s"`
}

func Load(path string) error {
	logger.Info("loading configs..", "path", path)
	c := &Config{}
	var err error
	if path != "" {
		logger.Info("trying to publish env from file", "path", path)
		err = godotenv.Load(path)
		if err != nil {
			return errors.New("failed to load configuration file " + path + " error: " + err.Error())
		}
	}

	_, err = env.UnmarshalFromEnviron(c)

	if err != nil {
		return errors.New("failed to map env variables to Configuration object " + " error: " + err.Error())
	}

	if err = c.Validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}

	if err = logger.Setup(c.LogEnv, c.LogLevel); err != nil {
		return errors.Wrap(err, "logger setup")
	}

	config = c
	return nil
}

// Set installs c as the global configuration. Used by tests.
func Set(c *Config) {
	config = c
}

func Get() *Config {
	if config == nil {
		logger.Panic("Config is not initialized")
	}
	return config
}

func (c *Config) Validate() error {
	d, err := decimal.NewFromString(c.DefaultBalance)
	if err != nil {
		return errors.Wrapf(err, "DEFAULT_BALANCE %q", c.DefaultBalance)
	}
	if d.IsNegative() {
		return errors.Errorf("DEFAULT_BALANCE must not be negative, got %s", c.DefaultBalance)
	}
	if err := model.CheckAmount(d); err != nil {
		return errors.Wrapf(err, "DEFAULT_BALANCE %q", c.DefaultBalance)
	}

	if c.BotFixedAccounts == "" {
		c.BotFixedAccounts = "person_a,person_b"
	}
	if c.BotAccountAliases == "" {
		c.BotAccountAliases = "alice:person_a,bob:person_b"
	}
	if c.BotMode != ModeNamed && c.BotMode != ModePlatform {
		return errors.Errorf("BOT_MODE must be %q or %q, got %q", ModeNamed, ModePlatform, c.BotMode)
	}
	if c.DBDriver != DriverPostgres && c.DBDriver != DriverSQLite {
		return errors.Errorf("DB_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.DBDriver)
	}
	if c.MaxTransactionHistory <= 0 {
		return errors.Errorf("MAX_TRANSACTION_HISTORY must be positive, got %d", c.MaxTransactionHistory)
	}
	if c.DetectionMinConfidence < 0 || c.DetectionMinConfidence > 1 {
		return errors.Errorf("DETECTION_MIN_CONFIDENCE must be within [0,1], got %v", c.DetectionMinConfidence)
	}
	return nil
}

// DefaultBalanceAmount is the parsed DEFAULT_BALANCE.
func (c *Config) DefaultBalanceAmount() decimal.Decimal {
	d, err := decimal.NewFromString(c.DefaultBalance)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// FixedAccounts splits BOT_FIXED_ACCOUNTS.
func (c *Config) FixedAccounts() []string {
	return splitList(c.BotFixedAccounts)
}

// AccountAliases parses BOT_ACCOUNT_ALIASES ("alice:person_a,bob:person_b").
func (c *Config) AccountAliases() map[string]string {
	aliases := make(map[string]string)
	for _, pair := range splitList(c.BotAccountAliases) {
		alias, account, ok := strings.Cut(pair, ":")
		if !ok {
			continue
		}
		aliases[strings.ToLower(strings.TrimSpace(alias))] = strings.TrimSpace(account)
	}
	return aliases
}

func (c *Config) PostgresRead() pg.Config {
	return pg.Config{
		Host:     c.PostgresReadHost,
		Port:     c.PostgresReadPort,
		User:     c.PostgresReadUser,
		Password: c.PostgresReadPassword,
		Database: c.PostgresReadDatabase,
	}
}

func (c *Config) PostgresWrite() pg.Config {
	return pg.Config{
		Host:     c.PostgresWriteHost,
		Port:     c.PostgresWritePort,
		User:     c.PostgresWriteUser,
		Password: c.PostgresWritePassword,
		Database: c.PostgresWriteDatabase,
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
