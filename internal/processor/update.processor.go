package processor

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/nimasrn/balance-bot/internal/bot"
	"github.com/nimasrn/balance-bot/internal/queue"
	"github.com/nimasrn/balance-bot/pkg/logger"
	"github.com/nimasrn/balance-bot/pkg/prom"
)

const (
	resultHandled   = "handled"
	resultDuplicate = "duplicate"
	resultExhausted = "exhausted"
	resultRetry     = "retry"
	resultDropped   = "dropped"
	resultMalformed = "malformed"
)

// UpdateHandler reacts to one chat update.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update tgbotapi.Update) error
}

type UpdateProcessor struct {
	handler     UpdateHandler
	idempotency *IdempotencyService
}

func NewUpdateProcessor(handler UpdateHandler, idempotency *IdempotencyService) *UpdateProcessor {
	return &UpdateProcessor{
		handler:     handler,
		idempotency: idempotency,
	}
}

func (p *UpdateProcessor) GetType() string {
	return "update"
}

// Process decodes a queued update and runs it through the bot handler under an
// idempotency lock. A nil return acks the queue message.
func (p *UpdateProcessor) Process(ctx context.Context, queueMessage *queue.Message) error {
	start := time.Now()

	var update tgbotapi.Update
	if err := json.Unmarshal(queueMessage.Data, &update); err != nil {
		// redelivery cannot fix a broken payload
		logger.Error("Failed to unmarshal update", "message_id", queueMessage.ID, "error", err)
		p.observe(resultMalformed, start)
		return nil
	}

	updateID := strconv.Itoa(update.UpdateID)

	procCtx, err := p.idempotency.AcquireProcessingLock(ctx, updateID)
	if err != nil {
		switch {
		case errors.Is(err, ErrAlreadyProcessed):
			p.observe(resultDuplicate, start)
			return nil
		case errors.Is(err, ErrMaxRetriesExceeded):
			logger.Error("Giving up on update", "update_id", updateID, "trace_id", queueMessage.Metadata["trace_id"], "error", err)
			p.observe(resultExhausted, start)
			return nil
		case errors.Is(err, ErrLockAcquireFailed):
			logger.Info("Update is being handled elsewhere, will retry", "update_id", updateID)
			return errors.New("lock held by another consumer")
		}
		logger.Error("Failed to acquire lock", "update_id", updateID, "error", err)
		return err
	}

	defer func() {
		if procCtx.lockAcquired {
			_ = p.idempotency.ReleaseLock(ctx, procCtx)
		}
	}()

	logger.Debug("Processing update",
		"update_id", updateID,
		"trace_id", queueMessage.Metadata["trace_id"],
		"retry_count", procCtx.RetryCount,
		"is_retry", procCtx.IsRetry)

	err = p.handler.HandleUpdate(ctx, update)
	if err != nil && bot.IsRetryable(err) {
		if markErr := p.idempotency.MarkFailure(ctx, procCtx, err); markErr != nil {
			logger.Error("Failed to mark failure", "update_id", updateID, "error", markErr)
		}
		p.observe(resultRetry, start)
		return err
	}

	result := resultHandled
	if err != nil {
		// the ledger already changed; a retry would apply it twice
		logger.Warn("Update handled with a non-retryable error", "update_id", updateID, "error", err)
		result = resultDropped
	}

	if markErr := p.idempotency.MarkSuccess(ctx, procCtx); markErr != nil {
		logger.Error("Failed to mark success", "update_id", updateID, "error", markErr)
	}

	p.observe(result, start)
	return nil
}

func (p *UpdateProcessor) observe(result string, start time.Time) {
	prom.ObserveUpdate(result, time.Since(start).Seconds())
}
