package services

import (
	"context"
	"testing"

	"github.com/nimasrn/balance-bot/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedNameResolver(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	resolver := NewFixedNameResolver(l.users,
		[]string{"person_a", "person_b"},
		map[string]string{"Alice": "person_a", "bob": "person_b"},
		decimal.NewFromInt(1000))

	t.Run("nothing resolves before seeding", func(t *testing.T) {
		_, err := resolver.Resolve(ctx, named("person_a"))
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	require.NoError(t, resolver.Seed(ctx))

	t.Run("seed is idempotent and keeps balances", func(t *testing.T) {
		require.NoError(t, l.users.UpdateBalance(ctx, 1, dec("10")))
		require.NoError(t, resolver.Seed(ctx))

		users, err := l.users.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, users, 2)
		assertAmount(t, "10", users[0].Balance)
	})

	tests := []struct {
		name string
		id   model.Identity
		want string
	}{
		{"account name", named("person_b"), "person_b"},
		{"alias", named("alice"), "person_a"},
		{"alias is case insensitive", named("BOB"), "person_b"},
		{"username falls back to name", model.Identity{Username: "@alice"}, "person_a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := resolver.Resolve(ctx, tt.id)
			require.NoError(t, err)
			require.NotNil(t, user.Name)
			assert.Equal(t, tt.want, *user.Name)
		})
	}

	t.Run("unknown name is never created", func(t *testing.T) {
		_, err := resolver.Resolve(ctx, named("carol"))
		assert.ErrorIs(t, err, ErrUserNotFound)

		count, err := l.users.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})

	t.Run("empty identity", func(t *testing.T) {
		_, err := resolver.Resolve(ctx, model.Identity{})
		assert.ErrorIs(t, err, ErrUserNotFound)
	})
}

func TestPlatformResolver(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()
	resolver := NewPlatformResolver(l.users, decimal.NewFromInt(1000))

	t.Run("platform id registers on first sight", func(t *testing.T) {
		user, err := resolver.Resolve(ctx, model.Identity{PlatformID: 11, Username: "alice", FirstName: "Alice"})
		require.NoError(t, err)
		assertAmount(t, "1000", user.Balance)
		assert.Equal(t, "@alice", user.DisplayName())

		again, err := resolver.Resolve(ctx, model.Identity{PlatformID: 11})
		require.NoError(t, err)
		assert.Equal(t, user.ID, again.ID)
	})

	t.Run("profile changes are picked up", func(t *testing.T) {
		user, err := resolver.Resolve(ctx, model.Identity{PlatformID: 11, Username: "alice_new"})
		require.NoError(t, err)
		assert.Equal(t, "alice_new", user.Username)
	})

	t.Run("known username is found", func(t *testing.T) {
		user, err := resolver.Resolve(ctx, model.Identity{Username: "@ALICE_NEW"})
		require.NoError(t, err)
		require.NotNil(t, user.PlatformUserID)
		assert.Equal(t, int64(11), *user.PlatformUserID)
	})

	t.Run("unknown username is not created", func(t *testing.T) {
		_, err := resolver.Resolve(ctx, model.Identity{Username: "ghost"})
		assert.ErrorIs(t, err, ErrUserNotFound)

		count, err := l.users.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("empty identity", func(t *testing.T) {
		_, err := resolver.Resolve(ctx, model.Identity{})
		assert.ErrorIs(t, err, ErrUserNotFound)
	})
}

func TestPlatformResolver_DrivesTransfers(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()
	resolver := NewPlatformResolver(l.users, decimal.NewFromInt(1000))
	transfers := NewTransferService(l.users, l.transactions, resolver, decimal.NewFromInt(1000))

	_, err := resolver.Resolve(ctx, model.Identity{PlatformID: 2, Username: "bob"})
	require.NoError(t, err)

	res := transfers.Transfer(ctx, model.TransferRequest{
		From:   model.Identity{PlatformID: 1, Username: "alice"},
		To:     model.Identity{Username: "bob"},
		Amount: dec("40"),
	})
	require.True(t, res.Success, res.Message)
	assert.Equal(t, "✅ Transfer successful!\n\n💸 $40.00 from @alice to @bob", res.Message)
	assertAmount(t, "960", res.From.Balance)
	assertAmount(t, "1040", res.To.Balance)

	res = transfers.Transfer(ctx, model.TransferRequest{
		From:   model.Identity{PlatformID: 1},
		To:     model.Identity{Username: "nobody"},
		Amount: dec("1"),
	})
	assert.Equal(t, model.FailureUserNotFound, res.Kind)
	assert.Equal(t, model.SideReceiver, res.Side)
}
