package pg

import (
	"time"
)

// Model carries the audit timestamps shared by mutable tables.
type Model struct {
	CreatedAt time.Time `db:"created_at" gorm:"column:created_at;not null;autoCreateTime"`
	UpdatedAt time.Time `db:"updated_at" gorm:"column:updated_at;not null;autoUpdateTime"`
}
