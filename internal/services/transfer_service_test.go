package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nimasrn/balance-bot/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestTransferService_Transfer_Success(t *testing.T) {
	l, transfers, _ := namedLedger(t, 1000)
	ctx := context.Background()

	res := transfers.Transfer(ctx, model.TransferRequest{
		From:   named("person_a"),
		To:     named("person_b"),
		Amount: dec("100"),
	})

	require.True(t, res.Success, res.Message)
	assert.Equal(t, model.FailureNone, res.Kind)
	assert.Equal(t, "✅ Transfer successful!\n\n💸 $100.00 from Person A to Person B", res.Message)

	require.NotNil(t, res.Transaction)
	assert.NotZero(t, res.Transaction.ID)
	assertAmount(t, "100", res.Transaction.Amount)
	assertAmount(t, "900", res.Transaction.BalanceFromAfter)
	assertAmount(t, "1100", res.Transaction.BalanceToAfter)
	assert.Nil(t, res.Transaction.MessageID)

	assertAmount(t, "900", balanceOf(t, l, "person_a"))
	assertAmount(t, "1100", balanceOf(t, l, "person_b"))

	count, err := l.transactions.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestTransferService_Transfer_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		req     model.TransferRequest
		kind    model.FailureKind
		side    string
		message string
	}{
		{
			name:    "insufficient funds",
			req:     model.TransferRequest{From: named("person_a"), To: named("person_b"), Amount: dec("2000")},
			kind:    model.FailureInsufficientFunds,
			message: "❌ Insufficient funds! Person A has $1,000.00",
		},
		{
			name:    "negative amount",
			req:     model.TransferRequest{From: named("person_a"), To: named("person_b"), Amount: dec("-50")},
			kind:    model.FailureInvalidAmount,
			message: "❌ Transfer amount must be positive!",
		},
		{
			name:    "zero amount",
			req:     model.TransferRequest{From: named("person_a"), To: named("person_b"), Amount: decimal.Zero},
			kind:    model.FailureInvalidAmount,
			message: "❌ Transfer amount must be positive!",
		},
		{
			name:    "fraction of a cent",
			req:     model.TransferRequest{From: named("person_a"), To: named("person_b"), Amount: dec("0.005")},
			kind:    model.FailureInvalidAmount,
			message: "❌ Transfer amount must be whole cents!",
		},
		{
			name:    "beyond ledger range",
			req:     model.TransferRequest{From: named("person_a"), To: named("person_b"), Amount: dec("1000000000000000000")},
			kind:    model.FailureInvalidAmount,
			message: "❌ Transfer amount is too large!",
		},
		{
			name:    "self transfer",
			req:     model.TransferRequest{From: named("person_a"), To: named("person_a"), Amount: dec("10")},
			kind:    model.FailureSelfTransfer,
			message: "❌ Cannot transfer to yourself!",
		},
		{
			name:    "self transfer through alias",
			req:     model.TransferRequest{From: named("alice"), To: named("person_a"), Amount: dec("10")},
			kind:    model.FailureSelfTransfer,
			message: "❌ Cannot transfer to yourself!",
		},
		{
			name:    "unknown receiver",
			req:     model.TransferRequest{From: named("person_a"), To: named("Z"), Amount: dec("10")},
			kind:    model.FailureUserNotFound,
			side:    model.SideReceiver,
			message: "❌ Receiver not found!",
		},
		{
			name:    "unknown sender",
			req:     model.TransferRequest{From: named("Z"), To: named("person_b"), Amount: dec("10")},
			kind:    model.FailureUserNotFound,
			side:    model.SideSender,
			message: "❌ Sender not found!",
		},
		{
			name:    "invalid amount wins over unknown users",
			req:     model.TransferRequest{From: named("Y"), To: named("Z"), Amount: dec("-1")},
			kind:    model.FailureInvalidAmount,
			message: "❌ Transfer amount must be positive!",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, transfers, _ := namedLedger(t, 1000)
			ctx := context.Background()

			res := transfers.Transfer(ctx, tt.req)

			assert.False(t, res.Success)
			assert.Equal(t, tt.kind, res.Kind)
			assert.Equal(t, tt.side, res.Side)
			assert.Equal(t, tt.message, res.Message)
			assert.Nil(t, res.Transaction)

			assertAmount(t, "1000", balanceOf(t, l, "person_a"))
			assertAmount(t, "1000", balanceOf(t, l, "person_b"))
			count, err := l.transactions.Count(ctx)
			require.NoError(t, err)
			assert.Zero(t, count)
		})
	}
}

func TestTransferService_Transfer_ExactBalance(t *testing.T) {
	l, transfers, _ := namedLedger(t, 1000)

	res := transfers.Transfer(context.Background(), model.TransferRequest{
		From: named("person_a"), To: named("person_b"), Amount: dec("1000"),
	})

	require.True(t, res.Success, res.Message)
	assertAmount(t, "0", balanceOf(t, l, "person_a"))
	assertAmount(t, "2000", balanceOf(t, l, "person_b"))
}

func TestTransferService_Transfer_Sequence(t *testing.T) {
	l, transfers, reports := namedLedger(t, 1000)
	ctx := context.Background()

	steps := []struct {
		from, to string
		amount   string
	}{
		{"person_a", "person_b", "100"},
		{"person_a", "person_b", "200"},
		{"person_b", "person_a", "50"},
	}
	for _, s := range steps {
		res := transfers.Transfer(ctx, model.TransferRequest{From: named(s.from), To: named(s.to), Amount: dec(s.amount)})
		require.True(t, res.Success, res.Message)
	}

	assertAmount(t, "750", balanceOf(t, l, "person_a"))
	assertAmount(t, "1250", balanceOf(t, l, "person_b"))

	history, err := reports.History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, history, 3)

	// newest first
	assertAmount(t, "50", history[0].Amount)
	assertAmount(t, "200", history[1].Amount)
	assertAmount(t, "100", history[2].Amount)
	assert.Equal(t, "Person B", history[0].FromName)
	assert.Equal(t, "Person A", history[0].ToName)

	// the last logged post-balances match the stored ones
	assertAmount(t, "1250", history[0].BalanceFromAfter)
	assertAmount(t, "750", history[0].BalanceToAfter)
}

func TestTransferService_Transfer_Provenance(t *testing.T) {
	_, transfers, _ := namedLedger(t, 1000)

	res := transfers.Transfer(context.Background(), model.TransferRequest{
		From:       named("bob"),
		To:         named("alice"),
		Amount:     dec("12.50"),
		Provenance: &model.Provenance{MessageID: 77, ChatID: -1001},
	})

	require.True(t, res.Success, res.Message)
	require.NotNil(t, res.Transaction.MessageID)
	require.NotNil(t, res.Transaction.ChatID)
	assert.Equal(t, int64(77), *res.Transaction.MessageID)
	assert.Equal(t, int64(-1001), *res.Transaction.ChatID)
	assert.Contains(t, res.Message, "$12.50 from Person B to Person A")
}

func TestTransferService_Transfer_Conservation(t *testing.T) {
	l, transfers, reports := namedLedger(t, 1000)
	ctx := context.Background()

	before, err := reports.AllBalances(ctx)
	require.NoError(t, err)

	amounts := []string{"0.01", "999.99", "250", "3000", "-1", "125.50", "0"}
	for i, a := range amounts {
		from, to := "person_a", "person_b"
		if i%2 == 1 {
			from, to = to, from
		}
		transfers.Transfer(ctx, model.TransferRequest{From: named(from), To: named(to), Amount: dec(a)})
	}

	after, err := reports.AllBalances(ctx)
	require.NoError(t, err)
	assertAmount(t, before.Total.String(), after.Total)

	for _, u := range after.Users {
		assert.False(t, u.Balance.IsNegative(), "user %d went negative", u.ID)
	}

	// every logged entry is consistent with its amount
	history, err := l.transactions.Recent(ctx, 100)
	require.NoError(t, err)
	for _, txn := range history {
		assert.True(t, txn.Amount.IsPositive())
		assert.NotEqual(t, txn.FromUserID, txn.ToUserID)
	}
}

func TestTransferService_Transfer_Concurrent(t *testing.T) {
	l, transfers, _ := namedLedger(t, 1000)
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from, to := "person_a", "person_b"
			if i%2 == 0 {
				from, to = to, from
			}
			res := transfers.Transfer(ctx, model.TransferRequest{From: named(from), To: named(to), Amount: dec("75")})
			if res.Success {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	a, b := balanceOf(t, l, "person_a"), balanceOf(t, l, "person_b")
	assertAmount(t, "2000", a.Add(b))

	count, err := l.transactions.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(succeeded), count)
}

func TestTransferService_Transfer_StorageFailureRollsBack(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	resolver := NewFixedNameResolver(l.users, []string{"person_a", "person_b"}, nil, decimal.NewFromInt(1000))
	require.NoError(t, resolver.Seed(ctx))

	txns := new(MockTransactionRepository)
	txns.On("Append", mock.Anything, mock.AnythingOfType("*model.Transaction")).
		Return(nil, errors.New("disk full"))

	transfers := NewTransferService(l.users, txns, resolver, decimal.NewFromInt(1000))

	res := transfers.Transfer(ctx, model.TransferRequest{From: named("person_a"), To: named("person_b"), Amount: dec("100")})

	assert.False(t, res.Success)
	assert.Equal(t, model.FailureStorage, res.Kind)
	assert.NotContains(t, res.Message, "disk full")

	// both balance writes were rolled back with the failed append
	assertAmount(t, "1000", balanceOf(t, l, "person_a"))
	assertAmount(t, "1000", balanceOf(t, l, "person_b"))
	txns.AssertExpectations(t)
}

func TestTransferService_Transfer_ResolverFailure(t *testing.T) {
	l := setupLedger(t)
	resolver := new(MockIdentityResolver)
	resolver.On("Resolve", mock.Anything, named("person_a")).Return(nil, errors.New("connection reset"))

	transfers := NewTransferService(l.users, l.transactions, resolver, decimal.NewFromInt(1000))
	res := transfers.Transfer(context.Background(), model.TransferRequest{From: named("person_a"), To: named("person_b"), Amount: dec("1")})

	assert.False(t, res.Success)
	assert.Equal(t, model.FailureStorage, res.Kind)
	resolver.AssertExpectations(t)
}

func TestTransferService_Reset(t *testing.T) {
	l, transfers, reports := namedLedger(t, 1000)
	ctx := context.Background()

	for _, amount := range []string{"100", "250.75"} {
		res := transfers.Transfer(ctx, model.TransferRequest{From: named("person_a"), To: named("person_b"), Amount: dec(amount)})
		require.True(t, res.Success, res.Message)
	}

	t.Run("explicit balance", func(t *testing.T) {
		balance := dec("500")
		require.NoError(t, transfers.Reset(ctx, &balance))

		assertAmount(t, "500", balanceOf(t, l, "person_a"))
		assertAmount(t, "500", balanceOf(t, l, "person_b"))

		history, err := reports.History(ctx, 0)
		require.NoError(t, err)
		assert.Empty(t, history)
	})

	t.Run("default balance", func(t *testing.T) {
		require.NoError(t, transfers.Reset(ctx, nil))
		assertAmount(t, "1000", balanceOf(t, l, "person_a"))
		assertAmount(t, "1000", balanceOf(t, l, "person_b"))
	})

	t.Run("negative balance is rejected", func(t *testing.T) {
		balance := dec("-1")
		assert.Error(t, transfers.Reset(ctx, &balance))
		assertAmount(t, "1000", balanceOf(t, l, "person_a"))
	})

	t.Run("fractional cents are rejected", func(t *testing.T) {
		balance := dec("10.005")
		err := transfers.Reset(ctx, &balance)
		assert.ErrorIs(t, err, model.ErrMalformedAmount)
		assertAmount(t, "1000", balanceOf(t, l, "person_a"))
	})
}

func TestTransferService_Transfer_LargeBalancesStayExact(t *testing.T) {
	l, transfers, _ := namedLedger(t, 1000)
	ctx := context.Background()

	balance := dec("12345678901234567.89")
	require.NoError(t, transfers.Reset(ctx, &balance))

	res := transfers.Transfer(ctx, model.TransferRequest{From: named("person_a"), To: named("person_b"), Amount: dec("0.01")})
	require.True(t, res.Success, res.Message)

	assertAmount(t, "12345678901234567.88", res.Transaction.BalanceFromAfter)
	assertAmount(t, "12345678901234567.9", res.Transaction.BalanceToAfter)
	assertAmount(t, "12345678901234567.88", balanceOf(t, l, "person_a"))
	assertAmount(t, "12345678901234567.9", balanceOf(t, l, "person_b"))

	history, err := l.transactions.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assertAmount(t, "12345678901234567.88", history[0].BalanceFromAfter)
	assertAmount(t, "12345678901234567.9", history[0].BalanceToAfter)
}

func TestTransferService_Transfer_ReceiverOverflowRollsBack(t *testing.T) {
	l, transfers, _ := namedLedger(t, 1000)
	ctx := context.Background()

	balance := dec("999999999999999999.99")
	require.NoError(t, transfers.Reset(ctx, &balance))

	res := transfers.Transfer(ctx, model.TransferRequest{From: named("person_a"), To: named("person_b"), Amount: dec("0.01")})
	assert.False(t, res.Success)
	assert.Equal(t, model.FailureInvalidAmount, res.Kind)
	assert.Equal(t, "❌ Transfer amount is too large!", res.Message)

	assertAmount(t, "999999999999999999.99", balanceOf(t, l, "person_a"))
	assertAmount(t, "999999999999999999.99", balanceOf(t, l, "person_b"))
}
