package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID             int64           `json:"id"`
	PlatformUserID *int64          `json:"platform_user_id,omitempty"`
	Name           *string         `json:"name,omitempty"`
	Username       string          `json:"username,omitempty"`
	FirstName      string          `json:"first_name,omitempty"`
	LastName       string          `json:"last_name,omitempty"`
	Balance        decimal.Decimal `json:"balance"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// DisplayName prefers @username, then the full name, then the account name
// and finally the platform id.
func (u *User) DisplayName() string {
	if u.Username != "" {
		return "@" + u.Username
	}
	full := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if full != "" {
		return full
	}
	if u.Name != nil && *u.Name != "" {
		return HumanizeName(*u.Name)
	}
	if u.PlatformUserID != nil {
		return fmt.Sprintf("User %d", *u.PlatformUserID)
	}
	return fmt.Sprintf("User #%d", u.ID)
}

func (u *User) CanDebit(amount decimal.Decimal) bool {
	return u.Balance.GreaterThanOrEqual(amount)
}

// HumanizeName turns an account name like "person_a" into "Person A".
func HumanizeName(name string) string {
	parts := strings.Fields(strings.ReplaceAll(name, "_", " "))
	for i, p := range parts {
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}
