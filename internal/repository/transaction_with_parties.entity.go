package repository

import (
	"time"

	"github.com/nimasrn/balance-bot/internal/model"
	"github.com/shopspring/decimal"
)

// TransactionWithPartiesEntity is one row of the transactions x users join
// used by the listing queries.
type TransactionWithPartiesEntity struct {
	ID               int64           `gorm:"column:id"`
	FromUserID       int64           `gorm:"column:from_user_id"`
	ToUserID         int64           `gorm:"column:to_user_id"`
	Amount           decimal.Decimal `gorm:"column:amount"`
	BalanceFromAfter decimal.Decimal `gorm:"column:balance_from_after"`
	BalanceToAfter   decimal.Decimal `gorm:"column:balance_to_after"`
	MessageID        *int64          `gorm:"column:message_id"`
	ChatID           *int64          `gorm:"column:chat_id"`
	CreatedAt        time.Time       `gorm:"column:created_at"`

	FromPlatformUserID *int64  `gorm:"column:from_platform_user_id"`
	FromName           *string `gorm:"column:from_name"`
	FromUsername       string  `gorm:"column:from_username"`
	FromFirstName      string  `gorm:"column:from_first_name"`
	FromLastName       string  `gorm:"column:from_last_name"`

	ToPlatformUserID *int64  `gorm:"column:to_platform_user_id"`
	ToName           *string `gorm:"column:to_name"`
	ToUsername       string  `gorm:"column:to_username"`
	ToFirstName      string  `gorm:"column:to_first_name"`
	ToLastName       string  `gorm:"column:to_last_name"`
}

func toTransactionWithPartiesModel(e *TransactionWithPartiesEntity) *model.Transaction {
	if e == nil {
		return nil
	}

	from := model.User{
		ID:             e.FromUserID,
		PlatformUserID: e.FromPlatformUserID,
		Name:           e.FromName,
		Username:       e.FromUsername,
		FirstName:      e.FromFirstName,
		LastName:       e.FromLastName,
	}
	to := model.User{
		ID:             e.ToUserID,
		PlatformUserID: e.ToPlatformUserID,
		Name:           e.ToName,
		Username:       e.ToUsername,
		FirstName:      e.ToFirstName,
		LastName:       e.ToLastName,
	}

	return &model.Transaction{
		ID:               e.ID,
		FromUserID:       e.FromUserID,
		ToUserID:         e.ToUserID,
		Amount:           e.Amount,
		BalanceFromAfter: e.BalanceFromAfter,
		BalanceToAfter:   e.BalanceToAfter,
		MessageID:        e.MessageID,
		ChatID:           e.ChatID,
		CreatedAt:        e.CreatedAt,
		FromName:         from.DisplayName(),
		ToName:           to.DisplayName(),
	}
}

func toTransactionWithPartiesModels(entities []*TransactionWithPartiesEntity) []*model.Transaction {
	if entities == nil {
		return []*model.Transaction{}
	}
	models := make([]*model.Transaction, len(entities))
	for i, e := range entities {
		models[i] = toTransactionWithPartiesModel(e)
	}
	return models
}
