package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/nimasrn/balance-bot/internal/model"
	"github.com/nimasrn/balance-bot/pkg/pg"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrNegativeBalance  = errors.New("balance cannot be negative")
	ErrInvalidIdentity  = errors.New("identity has no platform id, name or username")
	ErrIdentityConflict = errors.New("identity could not be created or found")
)

type UserRepository struct {
	*pg.DB
}

func NewUserRepository(db *pg.DB) *UserRepository {
	return &UserRepository{
		db,
	}
}

func normalizeUsername(username string) string {
	return strings.TrimPrefix(strings.TrimSpace(username), "@")
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	var entity UserEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("id = ?", id).
		First(&entity).
		Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return toUserModel(&entity), nil
}

// GetByIdentity looks the user up by platform id, then account name, then
// username (case-insensitive).
func (r *UserRepository) GetByIdentity(ctx context.Context, id model.Identity) (*model.User, error) {
	query := r.Read(ctx).WithContext(ctx)

	switch {
	case id.PlatformID != 0:
		query = query.Where("platform_user_id = ?", id.PlatformID)
	case id.Name != "":
		query = query.Where("name = ?", id.Name)
	case id.NormalizedUsername() != "":
		query = query.Where("LOWER(username) = ?", id.NormalizedUsername()).Order("id ASC")
	default:
		return nil, ErrInvalidIdentity
	}

	var entity UserEntity
	if err := query.First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return toUserModel(&entity), nil
}

// GetOrCreate returns the user for id, inserting it with defaultBalance when
// absent. Concurrent callers racing on the same identity end up with the
// same row.
func (r *UserRepository) GetOrCreate(ctx context.Context, id model.Identity, defaultBalance decimal.Decimal) (*model.User, error) {
	if id.PlatformID == 0 && id.Name == "" {
		return nil, ErrInvalidIdentity
	}
	if defaultBalance.IsNegative() {
		return nil, ErrNegativeBalance
	}

	user, err := r.GetByIdentity(ctx, model.Identity{PlatformID: id.PlatformID, Name: id.Name})
	if err == nil {
		return r.refreshProfile(ctx, user, id)
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	entity := newUserEntity(id, defaultBalance)
	result := r.Write(ctx).WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(entity)
	if result.Error != nil {
		return nil, fmt.Errorf("insert user: %w", result.Error)
	}

	if result.RowsAffected == 1 {
		return toUserModel(entity), nil
	}

	user, err = r.GetByIdentity(ctx, model.Identity{PlatformID: id.PlatformID, Name: id.Name})
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrIdentityConflict
	}
	return user, err
}

func (r *UserRepository) refreshProfile(ctx context.Context, user *model.User, id model.Identity) (*model.User, error) {
	updates := map[string]interface{}{}
	if u := normalizeUsername(id.Username); u != "" && u != user.Username {
		updates["username"] = u
		user.Username = u
	}
	if id.FirstName != "" && id.FirstName != user.FirstName {
		updates["first_name"] = id.FirstName
		user.FirstName = id.FirstName
	}
	if id.LastName != "" && id.LastName != user.LastName {
		updates["last_name"] = id.LastName
		user.LastName = id.LastName
	}
	if len(updates) == 0 {
		return user, nil
	}

	err := r.Write(ctx).WithContext(ctx).
		Model(&UserEntity{}).
		Where("id = ?", user.ID).
		Updates(updates).
		Error
	if err != nil {
		return nil, err
	}
	return user, nil
}

// ListAll returns every user in creation order.
func (r *UserRepository) ListAll(ctx context.Context) ([]*model.User, error) {
	var entities []*UserEntity
	err := r.Read(ctx).WithContext(ctx).
		Order("id ASC").
		Find(&entities).
		Error
	if err != nil {
		return nil, err
	}

	return toUserModels(entities), nil
}

func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.Read(ctx).WithContext(ctx).
		Model(&UserEntity{}).
		Count(&count).
		Error
	return count, err
}

// LockForUpdate locks the given rows one by one in ascending id order and
// returns them in that order. It must run inside WithinTransaction.
func (r *UserRepository) LockForUpdate(ctx context.Context, ids ...int64) ([]*model.User, error) {
	ordered := slices.Clone(ids)
	slices.Sort(ordered)
	ordered = slices.Compact(ordered)

	users := make([]*model.User, 0, len(ordered))
	for _, id := range ordered {
		var entity UserEntity
		err := r.Write(ctx).WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			First(&entity).
			Error

		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrUserNotFound
			}
			return nil, err
		}
		users = append(users, toUserModel(&entity))
	}

	return users, nil
}

func (r *UserRepository) UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	if balance.IsNegative() {
		return ErrNegativeBalance
	}

	result := r.Write(ctx).WithContext(ctx).
		Model(&UserEntity{}).
		Where("id = ?", id).
		Update("balance", NewMoney(balance))

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}

	return nil
}

// ResetAll sets every balance to balance and returns the number of users touched.
func (r *UserRepository) ResetAll(ctx context.Context, balance decimal.Decimal) (int64, error) {
	if balance.IsNegative() {
		return 0, ErrNegativeBalance
	}

	result := r.Write(ctx).WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Model(&UserEntity{}).
		Update("balance", NewMoney(balance))

	return result.RowsAffected, result.Error
}

func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	result := r.Write(ctx).WithContext(ctx).
		Where("id = ?", id).
		Delete(&UserEntity{})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}

	return nil
}
