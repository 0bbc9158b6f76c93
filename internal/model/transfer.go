package model

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Identity refers to a user by platform id, account name or username.
// Lookups try them in that order.
type Identity struct {
	PlatformID int64  `json:"platform_id,omitempty"`
	Name       string `json:"name,omitempty"`
	Username   string `json:"username,omitempty"`
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
}

func (i Identity) IsZero() bool {
	return i.PlatformID == 0 && i.Name == "" && i.NormalizedUsername() == ""
}

func (i Identity) NormalizedUsername() string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(i.Username), "@"))
}

func (i Identity) String() string {
	switch {
	case i.Username != "":
		return "@" + strings.TrimPrefix(i.Username, "@")
	case i.Name != "":
		return i.Name
	case i.PlatformID != 0:
		return "platform:" + strconv.FormatInt(i.PlatformID, 10)
	}
	return "unknown"
}

type TransferRequest struct {
	From       Identity        `json:"from"`
	To         Identity        `json:"to"`
	Amount     decimal.Decimal `json:"amount"`
	Provenance *Provenance     `json:"provenance,omitempty"`
}

type FailureKind string

const (
	FailureNone              FailureKind = ""
	FailureInvalidAmount     FailureKind = "invalid_amount"
	FailureUserNotFound      FailureKind = "user_not_found"
	FailureSelfTransfer      FailureKind = "self_transfer"
	FailureInsufficientFunds FailureKind = "insufficient_funds"
	FailureStorage           FailureKind = "storage_failure"
)

const (
	SideSender   = "sender"
	SideReceiver = "receiver"
)

type TransferResult struct {
	Success     bool         `json:"success"`
	Message     string       `json:"message"`
	Kind        FailureKind  `json:"kind,omitempty"`
	Side        string       `json:"side,omitempty"`
	From        *User        `json:"from,omitempty"`
	To          *User        `json:"to,omitempty"`
	Transaction *Transaction `json:"transaction,omitempty"`
}
