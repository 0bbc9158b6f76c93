package repository

import (
	"context"
	"sync"
	"testing"

	"github.com/nimasrn/balance-bot/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func int64Ptr(v int64) *int64 { return &v }

func seedNamedUsers(t *testing.T, db *testDB) (*UserEntity, *UserEntity) {
	a := &UserEntity{Name: strPtr("person_a"), Balance: NewMoney(decimal.NewFromInt(1000))}
	b := &UserEntity{Name: strPtr("person_b"), Balance: NewMoney(decimal.NewFromInt(1000))}
	require.NoError(t, db.rawDB.Create(a).Error)
	require.NoError(t, db.rawDB.Create(b).Error)
	return a, b
}

func TestUserRepository_GetByIdentity(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db.DB)
	ctx := context.Background()

	a, _ := seedNamedUsers(t, db)
	tg := &UserEntity{PlatformUserID: int64Ptr(4242), Username: "Alice", Balance: NewMoney(decimal.NewFromInt(50))}
	require.NoError(t, db.rawDB.Create(tg).Error)

	t.Run("by name", func(t *testing.T) {
		user, err := repo.GetByIdentity(ctx, model.Identity{Name: "person_a"})
		require.NoError(t, err)
		assert.Equal(t, a.ID, user.ID)
		assert.Equal(t, "1000", user.Balance.String())
		assert.Equal(t, "Person A", user.DisplayName())
	})

	t.Run("by platform id", func(t *testing.T) {
		user, err := repo.GetByIdentity(ctx, model.Identity{PlatformID: 4242})
		require.NoError(t, err)
		assert.Equal(t, tg.ID, user.ID)
		assert.Equal(t, "@Alice", user.DisplayName())
	})

	t.Run("by username ignores case and at sign", func(t *testing.T) {
		user, err := repo.GetByIdentity(ctx, model.Identity{Username: "@alice"})
		require.NoError(t, err)
		assert.Equal(t, tg.ID, user.ID)
	})

	t.Run("unknown name", func(t *testing.T) {
		_, err := repo.GetByIdentity(ctx, model.Identity{Name: "nobody"})
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("empty identity", func(t *testing.T) {
		_, err := repo.GetByIdentity(ctx, model.Identity{})
		assert.ErrorIs(t, err, ErrInvalidIdentity)
	})
}

func TestUserRepository_GetByID(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db.DB)
	ctx := context.Background()

	a, _ := seedNamedUsers(t, db)

	user, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "person_a", *user.Name)

	_, err = repo.GetByID(ctx, 999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepository_GetOrCreate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db.DB)
	ctx := context.Background()
	def := decimal.NewFromInt(1000)

	t.Run("creates with default balance", func(t *testing.T) {
		user, err := repo.GetOrCreate(ctx, model.Identity{PlatformID: 1, Username: "bob", FirstName: "Bob"}, def)
		require.NoError(t, err)
		assert.NotZero(t, user.ID)
		assert.Equal(t, "1000", user.Balance.String())
		assert.Equal(t, "bob", user.Username)
		assert.NotZero(t, user.CreatedAt)
	})

	t.Run("returns existing and refreshes profile", func(t *testing.T) {
		first, err := repo.GetOrCreate(ctx, model.Identity{PlatformID: 2, FirstName: "Carol"}, def)
		require.NoError(t, err)

		require.NoError(t, repo.UpdateBalance(ctx, first.ID, decimal.NewFromInt(10)))

		second, err := repo.GetOrCreate(ctx, model.Identity{PlatformID: 2, Username: "carol"}, def)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, "10", second.Balance.String())
		assert.Equal(t, "carol", second.Username)

		stored, err := repo.GetByID(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, "carol", stored.Username)
	})

	t.Run("named account", func(t *testing.T) {
		user, err := repo.GetOrCreate(ctx, model.Identity{Name: "person_a"}, def)
		require.NoError(t, err)
		again, err := repo.GetOrCreate(ctx, model.Identity{Name: "person_a"}, def)
		require.NoError(t, err)
		assert.Equal(t, user.ID, again.ID)
	})

	t.Run("username only is not creatable", func(t *testing.T) {
		_, err := repo.GetOrCreate(ctx, model.Identity{Username: "dave"}, def)
		assert.ErrorIs(t, err, ErrInvalidIdentity)
	})

	t.Run("negative default rejected", func(t *testing.T) {
		_, err := repo.GetOrCreate(ctx, model.Identity{PlatformID: 3}, decimal.NewFromInt(-1))
		assert.ErrorIs(t, err, ErrNegativeBalance)
	})

	t.Run("concurrent callers share one row", func(t *testing.T) {
		var wg sync.WaitGroup
		ids := make([]int64, 10)
		errs := make([]error, 10)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				user, err := repo.GetOrCreate(ctx, model.Identity{PlatformID: 77}, def)
				errs[idx] = err
				if err == nil {
					ids[idx] = user.ID
				}
			}(i)
		}
		wg.Wait()

		for i := range ids {
			require.NoError(t, errs[i])
			assert.Equal(t, ids[0], ids[i])
		}
	})
}

func TestUserRepository_ListAll(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db.DB)
	ctx := context.Background()

	users, err := repo.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)

	a, b := seedNamedUsers(t, db)

	users, err = repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, a.ID, users[0].ID)
	assert.Equal(t, b.ID, users[1].ID)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestUserRepository_UpdateBalance(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db.DB)
	ctx := context.Background()

	a, _ := seedNamedUsers(t, db)

	t.Run("updates balance and timestamp", func(t *testing.T) {
		before, err := repo.GetByID(ctx, a.ID)
		require.NoError(t, err)

		err = repo.UpdateBalance(ctx, a.ID, decimal.RequireFromString("1500.25"))
		require.NoError(t, err)

		user, err := repo.GetByID(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, "1500.25", user.Balance.String())
		assert.False(t, user.UpdatedAt.Before(before.UpdatedAt))
	})

	t.Run("negative balance rejected", func(t *testing.T) {
		err := repo.UpdateBalance(ctx, a.ID, decimal.NewFromInt(-100))
		assert.ErrorIs(t, err, ErrNegativeBalance)

		user, err := repo.GetByID(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, "1500.25", user.Balance.String())
	})

	t.Run("zero is allowed", func(t *testing.T) {
		require.NoError(t, repo.UpdateBalance(ctx, a.ID, decimal.Zero))
	})

	t.Run("unknown user", func(t *testing.T) {
		err := repo.UpdateBalance(ctx, 999, decimal.NewFromInt(1))
		assert.ErrorIs(t, err, ErrUserNotFound)
	})
}

func TestUserRepository_LockForUpdate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db.DB)
	ctx := context.Background()

	a, b := seedNamedUsers(t, db)

	err := repo.WithinTransaction(ctx, func(ctx context.Context) error {
		users, err := repo.LockForUpdate(ctx, b.ID, a.ID)
		require.NoError(t, err)
		require.Len(t, users, 2)
		assert.Equal(t, a.ID, users[0].ID)
		assert.Equal(t, b.ID, users[1].ID)
		return nil
	})
	require.NoError(t, err)

	err = repo.WithinTransaction(ctx, func(ctx context.Context) error {
		_, err := repo.LockForUpdate(ctx, a.ID, 999)
		return err
	})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepository_ResetAllAndDelete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db.DB)
	ctx := context.Background()

	a, b := seedNamedUsers(t, db)
	require.NoError(t, repo.UpdateBalance(ctx, a.ID, decimal.NewFromInt(3)))

	n, err := repo.ResetAll(ctx, decimal.NewFromInt(1000))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	users, err := repo.ListAll(ctx)
	require.NoError(t, err)
	for _, u := range users {
		assert.Equal(t, "1000", u.Balance.String())
	}

	_, err = repo.ResetAll(ctx, decimal.NewFromInt(-5))
	assert.ErrorIs(t, err, ErrNegativeBalance)

	require.NoError(t, repo.Delete(ctx, b.ID))
	_, err = repo.GetByID(ctx, b.ID)
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, b.ID), ErrUserNotFound)
}

func TestUserRepository_RollbackOnError(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db.DB)
	ctx := context.Background()

	a, _ := seedNamedUsers(t, db)

	err := repo.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := repo.UpdateBalance(ctx, a.ID, decimal.NewFromInt(1)); err != nil {
			return err
		}
		return repo.UpdateBalance(ctx, a.ID, decimal.NewFromInt(-1))
	})
	assert.ErrorIs(t, err, ErrNegativeBalance)

	user, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "1000", user.Balance.String())
}
