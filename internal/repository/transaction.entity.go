package repository

import (
	"time"

	"github.com/nimasrn/balance-bot/internal/model"
)

type TransactionEntity struct {
	ID               int64     `db:"id"                 gorm:"primaryKey;autoIncrement;column:id"`
	FromUserID       int64     `db:"from_user_id"       gorm:"column:from_user_id;not null;index:idx_transactions_from_user"`
	ToUserID         int64     `db:"to_user_id"         gorm:"column:to_user_id;not null;index:idx_transactions_to_user"`
	Amount           Money     `db:"amount"             gorm:"column:amount;not null"`
	BalanceFromAfter Money     `db:"balance_from_after" gorm:"column:balance_from_after;not null"`
	BalanceToAfter   Money     `db:"balance_to_after"   gorm:"column:balance_to_after;not null"`
	MessageID        *int64    `db:"message_id"         gorm:"column:message_id"`
	ChatID           *int64    `db:"chat_id"            gorm:"column:chat_id"`
	CreatedAt        time.Time `db:"created_at"         gorm:"column:created_at;not null;autoCreateTime;index:idx_transactions_created_at,sort:desc"`
}

func (TransactionEntity) TableName() string {
	return "transactions"
}

func toTransactionEntity(m *model.Transaction) *TransactionEntity {
	if m == nil {
		return nil
	}
	return &TransactionEntity{
		ID:               m.ID,
		FromUserID:       m.FromUserID,
		ToUserID:         m.ToUserID,
		Amount:           NewMoney(m.Amount),
		BalanceFromAfter: NewMoney(m.BalanceFromAfter),
		BalanceToAfter:   NewMoney(m.BalanceToAfter),
		MessageID:        m.MessageID,
		ChatID:           m.ChatID,
		CreatedAt:        m.CreatedAt,
	}
}

func toTransactionModel(e *TransactionEntity) *model.Transaction {
	if e == nil {
		return nil
	}
	return &model.Transaction{
		ID:               e.ID,
		FromUserID:       e.FromUserID,
		ToUserID:         e.ToUserID,
		Amount:           e.Amount.Decimal,
		BalanceFromAfter: e.BalanceFromAfter.Decimal,
		BalanceToAfter:   e.BalanceToAfter.Decimal,
		MessageID:        e.MessageID,
		ChatID:           e.ChatID,
		CreatedAt:        e.CreatedAt,
	}
}
