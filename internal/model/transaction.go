package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Transaction struct {
	ID               int64           `json:"id"`
	FromUserID       int64           `json:"from_user_id"`
	ToUserID         int64           `json:"to_user_id"`
	Amount           decimal.Decimal `json:"amount"`
	BalanceFromAfter decimal.Decimal `json:"balance_from_after"`
	BalanceToAfter   decimal.Decimal `json:"balance_to_after"`
	MessageID        *int64          `json:"message_id,omitempty"`
	ChatID           *int64          `json:"chat_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`

	// Filled by listing queries only.
	FromName string `json:"from_name,omitempty"`
	ToName   string `json:"to_name,omitempty"`
}

func (Transaction) TableName() string { return "transactions" }

// Provenance links a transaction to the chat message that caused it.
type Provenance struct {
	MessageID int64 `json:"message_id"`
	ChatID    int64 `json:"chat_id"`
}
