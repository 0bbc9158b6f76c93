package bot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/nimasrn/balance-bot/internal/config"
	"github.com/nimasrn/balance-bot/internal/model"
	"github.com/nimasrn/balance-bot/internal/repository"
	"github.com/nimasrn/balance-bot/internal/services"
	"github.com/nimasrn/balance-bot/pkg/pg"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type recordingSender struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	err      error
}

func (s *recordingSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, c)
	if s.err != nil {
		return tgbotapi.Message{}, s.err
	}
	return tgbotapi.Message{MessageID: len(s.sent)}, nil
}

func (s *recordingSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func (s *recordingSender) last(t *testing.T) tgbotapi.Chattable {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.sent, "nothing was sent")
	return s.sent[len(s.sent)-1]
}

func (s *recordingSender) lastText(t *testing.T) string {
	t.Helper()
	switch c := s.last(t).(type) {
	case tgbotapi.MessageConfig:
		return c.Text
	case tgbotapi.EditMessageTextConfig:
		return c.Text
	}
	t.Fatalf("unexpected chattable %T", s.last(t))
	return ""
}

type MockDetector struct {
	mock.Mock
}

func (m *MockDetector) Detect(ctx context.Context, text, senderHint string) (*model.DetectionResult, error) {
	args := m.Called(ctx, text, senderHint)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DetectionResult), args.Error(1)
}

type MockConfirmer struct {
	mock.Mock
}

func (m *MockConfirmer) Confirm(ctx context.Context, res *model.TransferResult) (string, error) {
	args := m.Called(ctx, res)
	return args.String(0), args.Error(1)
}

type botFixture struct {
	handler      *Handler
	sender       *recordingSender
	detector     *MockDetector
	transfers    *services.TransferService
	users        *repository.UserRepository
	transactions *repository.TransactionRepository
	nextUpdate   int
}

func openLedger(t *testing.T) *pg.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	pgDB := pg.New(db, db)
	require.NoError(t, repository.AutoMigrate(pgDB))
	return pgDB
}

func newBotFixture(t *testing.T, mode string) *botFixture {
	db := openLedger(t)
	users := repository.NewUserRepository(db)
	transactions := repository.NewTransactionRepository(db)
	balance := decimal.NewFromInt(1000)

	f := &botFixture{
		sender:       &recordingSender{},
		detector:     &MockDetector{},
		users:        users,
		transactions: transactions,
	}

	var (
		registrar services.IdentityResolver
		reports   *services.ReportService
		accounts  []string
	)
	if mode == config.ModeNamed {
		accounts = []string{"person_a", "person_b"}
		fixed := services.NewFixedNameResolver(users, accounts, map[string]string{"alice": "person_a", "bob": "person_b"}, balance)
		require.NoError(t, fixed.Seed(context.Background()))
		registrar = fixed
		reports = services.NewReportService(users, transactions, fixed, 10)
	} else {
		registrar = services.NewPlatformResolver(users, balance)
		reports = services.NewReportService(users, transactions, nil, 10)
	}
	transfers := services.NewTransferService(users, transactions, registrar, balance)
	f.transfers = transfers

	f.handler = NewHandler(f.sender, transfers, reports, registrar, f.detector,
		NewMemoryConversationStore(time.Minute),
		Options{Mode: mode, Accounts: accounts, MinConfidence: 0.7, HistoryLimit: 10})
	return f
}

var (
	privateChat = &tgbotapi.Chat{ID: 501, Type: "private"}
	groupChat   = &tgbotapi.Chat{ID: -1001, Type: "supergroup"}
	alice       = &tgbotapi.User{ID: 501, UserName: "alice", FirstName: "Alice"}
	bob         = &tgbotapi.User{ID: 502, UserName: "bob", FirstName: "Bob"}
)

func (f *botFixture) message(chat *tgbotapi.Chat, from *tgbotapi.User, text string) tgbotapi.Update {
	f.nextUpdate++
	msg := &tgbotapi.Message{
		MessageID: 100 + f.nextUpdate,
		From:      from,
		Chat:      chat,
		Text:      text,
	}
	if strings.HasPrefix(text, "/") {
		cmd, _, _ := strings.Cut(text, " ")
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	}
	return tgbotapi.Update{UpdateID: f.nextUpdate, Message: msg}
}

func (f *botFixture) callback(chat *tgbotapi.Chat, from *tgbotapi.User, data string) tgbotapi.Update {
	f.nextUpdate++
	return tgbotapi.Update{
		UpdateID: f.nextUpdate,
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:      "cb-" + data,
			From:    from,
			Message: &tgbotapi.Message{MessageID: 9, Chat: chat},
			Data:    data,
		},
	}
}

func (f *botFixture) handle(t *testing.T, upd tgbotapi.Update) {
	t.Helper()
	require.NoError(t, f.handler.HandleUpdate(context.Background(), upd))
}

func (f *botFixture) balance(t *testing.T, id model.Identity) decimal.Decimal {
	t.Helper()
	u, err := f.users.GetByIdentity(context.Background(), id)
	require.NoError(t, err)
	return u.Balance
}

func amount(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}
