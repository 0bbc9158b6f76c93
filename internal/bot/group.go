package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/nimasrn/balance-bot/internal/model"
	"github.com/nimasrn/balance-bot/pkg/logger"
)

// monitorGroup watches ordinary group chatter for announced transfers and
// records them on behalf of the author.
func (h *Handler) monitorGroup(ctx context.Context, msg *tgbotapi.Message, text string) error {
	author, err := h.registrar.Resolve(ctx, identityOf(msg.From))
	if err != nil {
		return err
	}

	hint := msg.From.UserName
	if hint == "" {
		hint = msg.From.FirstName
	}

	detected, err := h.detector.Detect(ctx, text, hint)
	if err != nil {
		logger.Warn("detection failed", "chat_id", msg.Chat.ID, "message_id", msg.MessageID, "error", err)
		return nil
	}
	if !detected.IsTransfer || detected.Confidence < h.opts.MinConfidence {
		return nil
	}

	logger.Info("transfer detected",
		"chat_id", msg.Chat.ID,
		"message_id", msg.MessageID,
		"from_user_id", author.ID,
		"to", detected.To,
		"confidence", detected.Confidence)

	if !detected.Complete() {
		return h.replyTo(msg.Chat.ID, msg.MessageID, msgIncompleteDetect)
	}

	res := h.transfers.Transfer(ctx, model.TransferRequest{
		From:   model.Identity{PlatformID: msg.From.ID},
		To:     model.Identity{Username: detected.To},
		Amount: *detected.Amount,
		Provenance: &model.Provenance{
			MessageID: int64(msg.MessageID),
			ChatID:    msg.Chat.ID,
		},
	})

	var reply string
	switch {
	case res.Success:
		reply = h.confirmGroupTransfer(ctx, res)
	case res.Kind == model.FailureUserNotFound && res.Side == model.SideReceiver:
		users, err := h.reports.Users(ctx)
		if err != nil {
			logger.Warn("list users failed", "error", err)
		}
		reply = renderUnknownRecipient(detected.To, users)
	default:
		reply = res.Message
	}
	return Permanent(h.replyTo(msg.Chat.ID, msg.MessageID, reply))
}

func (h *Handler) confirmGroupTransfer(ctx context.Context, res *model.TransferResult) string {
	if h.opts.Confirmer == nil {
		return renderGroupTransfer(res)
	}
	text, err := h.opts.Confirmer.Confirm(ctx, res)
	if err != nil {
		logger.Warn("confirmation generation failed, using template", "transaction_id", res.Transaction.ID, "error", err)
		return renderGroupTransfer(res)
	}
	return text
}
