package repository

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Money is a decimal column. Postgres stores it as NUMERIC(20,2); SQLite has
// no exact numeric affinity and would round through REAL, so there it is kept
// as TEXT.
type Money struct {
	decimal.Decimal
}

func NewMoney(d decimal.Decimal) Money {
	return Money{Decimal: d}
}

func (Money) GormDataType() string {
	return "numeric"
}

func (Money) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "sqlite" {
		return "TEXT"
	}
	return "numeric(20,2)"
}
