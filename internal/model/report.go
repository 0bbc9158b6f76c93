package model

import "github.com/shopspring/decimal"

type BalanceSummary struct {
	Users []*User         `json:"users"`
	Total decimal.Decimal `json:"total"`
	Count int             `json:"count"`
}

type Stats struct {
	Users        int             `json:"users"`
	Transactions int64           `json:"transactions"`
	Total        decimal.Decimal `json:"total"`
}
