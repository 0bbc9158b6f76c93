// Package detection decides whether a free-text chat message announces a
// completed money transfer.
package detection

import (
	"context"

	"github.com/nimasrn/balance-bot/internal/model"
	"github.com/nimasrn/balance-bot/pkg/logger"
)

const (
	outcomeTransfer = "transfer"
	outcomePartial  = "partial"
	outcomeNone     = "none"
	outcomeRejected = "rejected"
	outcomeError    = "error"
)

// Detector never decides on a threshold; callers compare Confidence
// against their own minimum.
type Detector interface {
	Detect(ctx context.Context, text, senderHint string) (*model.DetectionResult, error)
}

// Confirmer writes the chat reply for a completed transfer.
type Confirmer interface {
	Confirm(ctx context.Context, res *model.TransferResult) (string, error)
}

type chain struct {
	primary  Detector
	fallback Detector
}

// Chain asks primary first and falls back when it errors.
func Chain(primary, fallback Detector) Detector {
	return &chain{primary: primary, fallback: fallback}
}

func (c *chain) Detect(ctx context.Context, text, senderHint string) (*model.DetectionResult, error) {
	res, err := c.primary.Detect(ctx, text, senderHint)
	if err == nil {
		return res, nil
	}
	logger.Warn("Primary detector failed, using fallback", "error", err)
	return c.fallback.Detect(ctx, text, senderHint)
}
