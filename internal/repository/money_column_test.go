package repository

import (
	"context"
	"testing"

	"github.com/nimasrn/balance-bot/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoney_RoundTripsLargeAmounts(t *testing.T) {
	db := setupTestDB(t)
	users := NewUserRepository(db.DB)
	transactions := NewTransactionRepository(db.DB)
	ctx := context.Background()

	a, b := seedNamedUsers(t, db)
	big := decimal.RequireFromString("12345678901234567.89")

	t.Run("balance", func(t *testing.T) {
		require.NoError(t, users.UpdateBalance(ctx, a.ID, big))

		user, err := users.GetByID(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, "12345678901234567.89", user.Balance.String())
	})

	t.Run("reset", func(t *testing.T) {
		_, err := users.ResetAll(ctx, big)
		require.NoError(t, err)

		all, err := users.ListAll(ctx)
		require.NoError(t, err)
		for _, u := range all {
			assert.True(t, big.Equal(u.Balance), u.Balance.String())
		}
	})

	t.Run("transaction log", func(t *testing.T) {
		_, err := transactions.Append(ctx, &model.Transaction{
			FromUserID:       a.ID,
			ToUserID:         b.ID,
			Amount:           decimal.RequireFromString("0.01"),
			BalanceFromAfter: decimal.RequireFromString("12345678901234567.88"),
			BalanceToAfter:   decimal.RequireFromString("12345678901234567.90"),
		})
		require.NoError(t, err)

		recent, err := transactions.Recent(ctx, 1)
		require.NoError(t, err)
		require.Len(t, recent, 1)
		assert.Equal(t, "0.01", recent[0].Amount.String())
		assert.Equal(t, "12345678901234567.88", recent[0].BalanceFromAfter.String())
		assert.Equal(t, "12345678901234567.9", recent[0].BalanceToAfter.String())
	})

	t.Run("stored as text on sqlite", func(t *testing.T) {
		var kind string
		require.NoError(t, db.rawDB.Raw("SELECT typeof(balance) FROM users WHERE id = ?", a.ID).Scan(&kind).Error)
		assert.Equal(t, "text", kind)
	})
}
