package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nimasrn/balance-bot/internal/model"
	"github.com/nimasrn/balance-bot/internal/repository"
	"github.com/nimasrn/balance-bot/pkg/logger"
	"github.com/nimasrn/balance-bot/pkg/prom"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount     = errors.New("transfer amount must be positive")
	ErrUserNotFound      = errors.New("user not found")
	ErrSelfTransfer      = errors.New("cannot transfer to yourself")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

const storageFailureMessage = "❌ Transfer failed due to a storage error. Please try again."

type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByIdentity(ctx context.Context, id model.Identity) (*model.User, error)
	GetOrCreate(ctx context.Context, id model.Identity, defaultBalance decimal.Decimal) (*model.User, error)
	ListAll(ctx context.Context) ([]*model.User, error)
	Count(ctx context.Context) (int64, error)
	LockForUpdate(ctx context.Context, ids ...int64) ([]*model.User, error)
	UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal) error
	ResetAll(ctx context.Context, balance decimal.Decimal) (int64, error)
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type TransactionRepository interface {
	Append(ctx context.Context, txn *model.Transaction) (*model.Transaction, error)
	Recent(ctx context.Context, limit int) ([]*model.Transaction, error)
	ByUser(ctx context.Context, userID int64, limit int) ([]*model.Transaction, error)
	Count(ctx context.Context) (int64, error)
	ClearAll(ctx context.Context) (int64, error)
}

// TransferService is the only writer of balances and of the transaction log.
type TransferService struct {
	users          UserRepository
	transactions   TransactionRepository
	resolver       IdentityResolver
	defaultBalance decimal.Decimal
}

func NewTransferService(users UserRepository, transactions TransactionRepository, resolver IdentityResolver, defaultBalance decimal.Decimal) *TransferService {
	return &TransferService{
		users:          users,
		transactions:   transactions,
		resolver:       resolver,
		defaultBalance: defaultBalance,
	}
}

// Transfer moves req.Amount from req.From to req.To. Both balance writes and
// the log append commit together or not at all. The returned result is never
// nil; failures are described by its Kind.
func (s *TransferService) Transfer(ctx context.Context, req model.TransferRequest) *model.TransferResult {
	start := time.Now()
	res := s.transfer(ctx, req)

	outcome := "success"
	if !res.Success {
		outcome = string(res.Kind)
	}
	prom.ObserveTransfer(outcome, time.Since(start).Seconds())

	return res
}

func (s *TransferService) transfer(ctx context.Context, req model.TransferRequest) *model.TransferResult {
	if !req.Amount.IsPositive() {
		logger.Info("transfer rejected", "reason", ErrInvalidAmount, "amount", req.Amount.String())
		return failure(model.FailureInvalidAmount, "❌ Transfer amount must be positive!")
	}
	if err := model.CheckAmount(req.Amount); err != nil {
		logger.Info("transfer rejected", "reason", err, "amount", req.Amount.String())
		if errors.Is(err, model.ErrAmountOutOfRange) {
			return failure(model.FailureInvalidAmount, "❌ Transfer amount is too large!")
		}
		return failure(model.FailureInvalidAmount, "❌ Transfer amount must be whole cents!")
	}

	from, res := s.resolve(ctx, req.From, model.SideSender)
	if res != nil {
		return res
	}
	to, res := s.resolve(ctx, req.To, model.SideReceiver)
	if res != nil {
		return res
	}

	if from.ID == to.ID {
		logger.Info("transfer rejected", "reason", ErrSelfTransfer, "user_id", from.ID)
		return failure(model.FailureSelfTransfer, "❌ Cannot transfer to yourself!")
	}

	var (
		sender, receiver *model.User
		created          *model.Transaction
	)
	err := s.users.WithinTransaction(ctx, func(ctx context.Context) error {
		locked, err := s.users.LockForUpdate(ctx, from.ID, to.ID)
		if err != nil {
			return fmt.Errorf("lock users: %w", err)
		}
		for _, u := range locked {
			switch u.ID {
			case from.ID:
				sender = u
			case to.ID:
				receiver = u
			}
		}
		if sender == nil {
			return fmt.Errorf("%w: sender %d", ErrUserNotFound, from.ID)
		}
		if receiver == nil {
			return fmt.Errorf("%w: receiver %d", ErrUserNotFound, to.ID)
		}

		if !sender.CanDebit(req.Amount) {
			return ErrInsufficientFunds
		}

		newFrom := sender.Balance.Sub(req.Amount)
		newTo := receiver.Balance.Add(req.Amount)
		if err := model.CheckAmount(newTo); err != nil {
			return err
		}

		if err := s.users.UpdateBalance(ctx, sender.ID, newFrom); err != nil {
			return fmt.Errorf("update sender balance: %w", err)
		}
		if err := s.users.UpdateBalance(ctx, receiver.ID, newTo); err != nil {
			return fmt.Errorf("update receiver balance: %w", err)
		}

		txn := &model.Transaction{
			FromUserID:       sender.ID,
			ToUserID:         receiver.ID,
			Amount:           req.Amount,
			BalanceFromAfter: newFrom,
			BalanceToAfter:   newTo,
		}
		if req.Provenance != nil {
			messageID, chatID := req.Provenance.MessageID, req.Provenance.ChatID
			txn.MessageID = &messageID
			txn.ChatID = &chatID
		}

		created, err = s.transactions.Append(ctx, txn)
		if err != nil {
			return fmt.Errorf("append transaction: %w", err)
		}

		sender.Balance = newFrom
		receiver.Balance = newTo
		return nil
	})

	switch {
	case err == nil:
	case errors.Is(err, ErrInsufficientFunds):
		logger.Info("transfer rejected", "reason", err, "user_id", sender.ID, "balance", sender.Balance.String(), "amount", req.Amount.String())
		return failure(model.FailureInsufficientFunds,
			fmt.Sprintf("❌ Insufficient funds! %s has %s", sender.DisplayName(), model.FormatMoney(sender.Balance)))
	case errors.Is(err, model.ErrAmountOutOfRange):
		logger.Info("transfer rejected", "reason", err, "user_id", receiver.ID, "amount", req.Amount.String())
		return failure(model.FailureInvalidAmount, "❌ Transfer amount is too large!")
	case errors.Is(err, ErrUserNotFound), errors.Is(err, repository.ErrUserNotFound):
		// deleted between resolution and locking
		side, msg := model.SideSender, "❌ Sender not found!"
		if sender != nil {
			side, msg = model.SideReceiver, "❌ Receiver not found!"
		}
		res := failure(model.FailureUserNotFound, msg)
		res.Side = side
		return res
	default:
		logger.Error("transfer failed",
			"from_user_id", from.ID,
			"to_user_id", to.ID,
			"amount", req.Amount.String(),
			"error", err)
		return failure(model.FailureStorage, storageFailureMessage)
	}

	created.FromName = sender.DisplayName()
	created.ToName = receiver.DisplayName()

	logger.Info("transfer completed",
		"transaction_id", created.ID,
		"from", created.FromName,
		"to", created.ToName,
		"amount", req.Amount.String())

	return &model.TransferResult{
		Success: true,
		Message: fmt.Sprintf("✅ Transfer successful!\n\n💸 %s from %s to %s",
			model.FormatMoney(req.Amount), sender.DisplayName(), receiver.DisplayName()),
		From:        sender,
		To:          receiver,
		Transaction: created,
	}
}

func (s *TransferService) resolve(ctx context.Context, id model.Identity, side string) (*model.User, *model.TransferResult) {
	user, err := s.resolver.Resolve(ctx, id)
	if err == nil {
		return user, nil
	}

	if errors.Is(err, ErrUserNotFound) {
		logger.Info("transfer rejected", "reason", err, "side", side, "identity", id.String())
		msg := "❌ Sender not found!"
		if side == model.SideReceiver {
			msg = "❌ Receiver not found!"
		}
		res := failure(model.FailureUserNotFound, msg)
		res.Side = side
		return nil, res
	}

	logger.Error("identity resolution failed", "side", side, "identity", id.String(), "error", err)
	return nil, failure(model.FailureStorage, storageFailureMessage)
}

// Reset sets every balance to balance, or to the configured default when
// balance is nil, and clears the transaction log in the same transaction.
func (s *TransferService) Reset(ctx context.Context, balance *decimal.Decimal) error {
	target := s.defaultBalance
	if balance != nil {
		target = *balance
	}
	if target.IsNegative() {
		return fmt.Errorf("reset: %w", repository.ErrNegativeBalance)
	}
	if err := model.CheckAmount(target); err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	var users, removed int64
	err := s.users.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		if users, err = s.users.ResetAll(ctx, target); err != nil {
			return fmt.Errorf("reset balances: %w", err)
		}
		if removed, err = s.transactions.ClearAll(ctx); err != nil {
			return fmt.Errorf("clear transactions: %w", err)
		}
		return nil
	})
	if err != nil {
		logger.Error("reset failed", "balance", target.String(), "error", err)
		return err
	}

	logger.Info("balances reset", "balance", target.String(), "users", users, "transactions_removed", removed)
	return nil
}

// DefaultBalance is the balance new accounts start with.
func (s *TransferService) DefaultBalance() decimal.Decimal {
	return s.defaultBalance
}

func failure(kind model.FailureKind, message string) *model.TransferResult {
	return &model.TransferResult{Success: false, Kind: kind, Message: message}
}
