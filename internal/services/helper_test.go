package services

import (
	"context"
	"testing"

	"github.com/nimasrn/balance-bot/internal/model"
	"github.com/nimasrn/balance-bot/internal/repository"
	"github.com/nimasrn/balance-bot/pkg/pg"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type ledger struct {
	db           *pg.DB
	users        *repository.UserRepository
	transactions *repository.TransactionRepository
}

func setupLedger(t *testing.T) *ledger {
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

	return &ledger{
		db:           pgDB,
		users:        repository.NewUserRepository(pgDB),
		transactions: repository.NewTransactionRepository(pgDB),
	}
}

// namedLedger seeds person_a and person_b with balance each and returns the
// engine and reports wired in named-account mode.
func namedLedger(t *testing.T, balance int64) (*ledger, *TransferService, *ReportService) {
	l := setupLedger(t)
	resolver := NewFixedNameResolver(l.users,
		[]string{"person_a", "person_b"},
		map[string]string{"alice": "person_a", "bob": "person_b"},
		decimal.NewFromInt(balance))
	require.NoError(t, resolver.Seed(context.Background()))

	transfers := NewTransferService(l.users, l.transactions, resolver, decimal.NewFromInt(balance))
	reports := NewReportService(l.users, l.transactions, resolver, 10)
	return l, transfers, reports
}

func named(name string) model.Identity {
	return model.Identity{Name: name}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertAmount(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), append([]interface{}{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

func balanceOf(t *testing.T, l *ledger, name string) decimal.Decimal {
	t.Helper()
	u, err := l.users.GetByIdentity(context.Background(), named(name))
	require.NoError(t, err)
	return u.Balance
}

type MockTransactionRepository struct {
	mock.Mock
}

func (m *MockTransactionRepository) Append(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	args := m.Called(ctx, txn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) Recent(ctx context.Context, limit int) ([]*model.Transaction, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) ByUser(ctx context.Context, userID int64, limit int) ([]*model.Transaction, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTransactionRepository) ClearAll(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type MockIdentityResolver struct {
	mock.Mock
}

func (m *MockIdentityResolver) Resolve(ctx context.Context, id model.Identity) (*model.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}
