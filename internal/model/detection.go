package model

import "github.com/shopspring/decimal"

type DetectionResult struct {
	IsTransfer bool             `json:"is_transfer"`
	From       string           `json:"from,omitempty"`
	To         string           `json:"to,omitempty"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	Confidence float64          `json:"confidence"`
	Reasoning  string           `json:"reasoning,omitempty"`
}

// Complete reports whether both the recipient and the amount were found.
func (d *DetectionResult) Complete() bool {
	return d.To != "" && d.Amount != nil
}

// NoTransfer is the safe default returned when detection cannot decide.
func NoTransfer(reason string) *DetectionResult {
	return &DetectionResult{IsTransfer: false, Confidence: 0, Reasoning: reason}
}
