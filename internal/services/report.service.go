package services

import (
	"context"
	"errors"
	"sort"

	"github.com/nimasrn/balance-bot/internal/model"
	"github.com/nimasrn/balance-bot/internal/repository"
	"github.com/shopspring/decimal"
)

// ReportService answers read-only questions about balances and history.
// Unknown users yield empty results, never errors.
type ReportService struct {
	users        UserRepository
	transactions TransactionRepository
	resolver     IdentityResolver
	historyLimit int
}

// NewReportService builds the reporting side. resolver must not create users;
// pass nil to look identities up directly in the store.
func NewReportService(users UserRepository, transactions TransactionRepository, resolver IdentityResolver, historyLimit int) *ReportService {
	return &ReportService{
		users:        users,
		transactions: transactions,
		resolver:     resolver,
		historyLimit: historyLimit,
	}
}

// AllBalances lists every user by balance, richest first. Equal balances keep
// creation order.
func (s *ReportService) AllBalances(ctx context.Context) (*model.BalanceSummary, error) {
	users, err := s.users.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(users, func(i, j int) bool {
		return users[i].Balance.GreaterThan(users[j].Balance)
	})

	total := decimal.Zero
	for _, u := range users {
		total = total.Add(u.Balance)
	}

	return &model.BalanceSummary{
		Users: users,
		Total: total,
		Count: len(users),
	}, nil
}

// Users lists every user in creation order.
func (s *ReportService) Users(ctx context.Context) ([]*model.User, error) {
	return s.users.ListAll(ctx)
}

func (s *ReportService) History(ctx context.Context, limit int) ([]*model.Transaction, error) {
	return s.transactions.Recent(ctx, s.limit(limit))
}

func (s *ReportService) UserHistory(ctx context.Context, id model.Identity, limit int) ([]*model.Transaction, error) {
	user, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return []*model.Transaction{}, nil
	}
	return s.transactions.ByUser(ctx, user.ID, s.limit(limit))
}

func (s *ReportService) UserBalance(ctx context.Context, id model.Identity) (decimal.Decimal, error) {
	user, err := s.lookup(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	if user == nil {
		return decimal.Zero, nil
	}
	return user.Balance, nil
}

// UserByID returns nil when the user does not exist.
func (s *ReportService) UserByID(ctx context.Context, id int64) (*model.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

func (s *ReportService) UserHistoryByID(ctx context.Context, id int64, limit int) ([]*model.Transaction, error) {
	return s.transactions.ByUser(ctx, id, s.limit(limit))
}

func (s *ReportService) Stats(ctx context.Context) (*model.Stats, error) {
	summary, err := s.AllBalances(ctx)
	if err != nil {
		return nil, err
	}
	count, err := s.transactions.Count(ctx)
	if err != nil {
		return nil, err
	}
	return &model.Stats{
		Users:        summary.Count,
		Transactions: count,
		Total:        summary.Total,
	}, nil
}

func (s *ReportService) lookup(ctx context.Context, id model.Identity) (*model.User, error) {
	var (
		user *model.User
		err  error
	)
	if s.resolver != nil {
		user, err = s.resolver.Resolve(ctx, id)
	} else {
		user, err = s.users.GetByIdentity(ctx, id)
	}
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

func (s *ReportService) limit(limit int) int {
	if limit <= 0 {
		return s.historyLimit
	}
	return limit
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) || errors.Is(err, repository.ErrUserNotFound) || errors.Is(err, repository.ErrInvalidIdentity)
}
