package repository

import (
	"context"

	"github.com/nimasrn/balance-bot/internal/model"
	"github.com/nimasrn/balance-bot/pkg/pg"
	"gorm.io/gorm"
)

const (
	DefaultHistoryLimit = 10
	MaxHistoryLimit     = 1000
)

type TransactionRepository struct {
	*pg.DB
}

func NewTransactionRepository(db *pg.DB) *TransactionRepository {
	return &TransactionRepository{
		db,
	}
}

// Append writes one log entry. The log is append-only apart from ClearAll.
func (r *TransactionRepository) Append(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	entity := toTransactionEntity(txn)

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toTransactionModel(entity), nil
}

// Recent returns the newest entries first, with party names filled in.
func (r *TransactionRepository) Recent(ctx context.Context, limit int) ([]*model.Transaction, error) {
	var entities []*TransactionWithPartiesEntity
	err := r.buildWithPartiesQuery(ctx).
		Order("t.created_at DESC, t.id DESC").
		Limit(clampLimit(limit)).
		Find(&entities).
		Error
	if err != nil {
		return nil, err
	}

	return toTransactionWithPartiesModels(entities), nil
}

// ByUser returns the entries where userID is the sender or the receiver.
func (r *TransactionRepository) ByUser(ctx context.Context, userID int64, limit int) ([]*model.Transaction, error) {
	var entities []*TransactionWithPartiesEntity
	err := r.buildWithPartiesQuery(ctx).
		Where("t.from_user_id = ? OR t.to_user_id = ?", userID, userID).
		Order("t.created_at DESC, t.id DESC").
		Limit(clampLimit(limit)).
		Find(&entities).
		Error
	if err != nil {
		return nil, err
	}

	return toTransactionWithPartiesModels(entities), nil
}

func (r *TransactionRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.Read(ctx).WithContext(ctx).
		Model(&TransactionEntity{}).
		Count(&count).
		Error
	return count, err
}

// ClearAll deletes the whole log. Only the administrative reset calls it.
func (r *TransactionRepository) ClearAll(ctx context.Context) (int64, error) {
	result := r.Write(ctx).WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&TransactionEntity{})
	return result.RowsAffected, result.Error
}

func (r *TransactionRepository) buildWithPartiesQuery(ctx context.Context) *gorm.DB {
	return r.Read(ctx).WithContext(ctx).
		Table("transactions AS t").
		Select(`
            t.id                  AS id,
            t.from_user_id        AS from_user_id,
            t.to_user_id          AS to_user_id,
            t.amount              AS amount,
            t.balance_from_after  AS balance_from_after,
            t.balance_to_after    AS balance_to_after,
            t.message_id          AS message_id,
            t.chat_id             AS chat_id,
            t.created_at          AS created_at,

            fu.platform_user_id   AS from_platform_user_id,
            fu.name               AS from_name,
            fu.username           AS from_username,
            fu.first_name         AS from_first_name,
            fu.last_name          AS from_last_name,

            tu.platform_user_id   AS to_platform_user_id,
            tu.name               AS to_name,
            tu.username           AS to_username,
            tu.first_name         AS to_first_name,
            tu.last_name          AS to_last_name
        `).
		Joins("JOIN users AS fu ON fu.id = t.from_user_id").
		Joins("JOIN users AS tu ON tu.id = t.to_user_id")
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}
