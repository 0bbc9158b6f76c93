package repository

import (
	"github.com/nimasrn/balance-bot/internal/model"
	"github.com/nimasrn/balance-bot/pkg/pg"
	"github.com/shopspring/decimal"
)

type UserEntity struct {
	ID             int64   `db:"id"               gorm:"primaryKey;autoIncrement;column:id"`
	PlatformUserID *int64  `db:"platform_user_id" gorm:"column:platform_user_id;uniqueIndex:idx_users_platform_user_id"`
	Name           *string `db:"name"             gorm:"column:name;uniqueIndex:idx_users_name"`
	Username       string  `db:"username"         gorm:"column:username;index:idx_users_username"`
	FirstName      string  `db:"first_name"       gorm:"column:first_name"`
	LastName       string  `db:"last_name"        gorm:"column:last_name"`
	Balance        Money   `db:"balance"          gorm:"column:balance;not null;default:0"`
	pg.Model
}

func (UserEntity) TableName() string {
	return "users"
}

func toUserEntity(m *model.User) *UserEntity {
	if m == nil {
		return nil
	}
	return &UserEntity{
		ID:             m.ID,
		PlatformUserID: m.PlatformUserID,
		Name:           m.Name,
		Username:       m.Username,
		FirstName:      m.FirstName,
		LastName:       m.LastName,
		Balance:        NewMoney(m.Balance),
		Model: pg.Model{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
	}
}

func toUserModel(e *UserEntity) *model.User {
	if e == nil {
		return nil
	}
	return &model.User{
		ID:             e.ID,
		PlatformUserID: e.PlatformUserID,
		Name:           e.Name,
		Username:       e.Username,
		FirstName:      e.FirstName,
		LastName:       e.LastName,
		Balance:        e.Balance.Decimal,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

func toUserModels(entities []*UserEntity) []*model.User {
	if entities == nil {
		return nil
	}
	models := make([]*model.User, len(entities))
	for i, e := range entities {
		models[i] = toUserModel(e)
	}
	return models
}

// newUserEntity builds the row inserted on first sight of an identity.
func newUserEntity(id model.Identity, balance decimal.Decimal) *UserEntity {
	e := &UserEntity{
		Username:  normalizeUsername(id.Username),
		FirstName: id.FirstName,
		LastName:  id.LastName,
		Balance:   NewMoney(balance),
	}
	if id.PlatformID != 0 {
		pid := id.PlatformID
		e.PlatformUserID = &pid
	}
	if id.Name != "" {
		name := id.Name
		e.Name = &name
	}
	return e
}
