package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/nimasrn/balance-bot/internal/model"
	"github.com/nimasrn/balance-bot/pkg/logger"
)

const (
	cbAToB         = "transfer_a_to_b"
	cbBToA         = "transfer_b_to_a"
	cbCancel       = "cancel"
	cbConfirm      = "confirm_transfer"
	cbConfirmReset = "confirm_reset"
	cbCancelReset  = "cancel_reset"
)

func (h *Handler) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	chatID := msg.Chat.ID
	logger.Debug("command received", "command", msg.Command(), "chat_id", chatID, "user_id", msg.From.ID)

	switch msg.Command() {
	case "start":
		if h.namedMode() {
			return h.reply(chatID, startText, false)
		}
		return h.reply(chatID, h.groupHelp(), true)
	case "help":
		if h.namedMode() {
			return h.reply(chatID, namedHelpText, true)
		}
		return h.reply(chatID, h.groupHelp(), true)
	case "balance":
		if h.namedMode() {
			return h.allBalances(ctx, chatID, renderAllBalances)
		}
		return h.ownBalance(ctx, msg)
	case "balances":
		if h.namedMode() {
			return h.allBalances(ctx, chatID, renderAllBalances)
		}
		return h.allBalances(ctx, chatID, renderGroupBalances)
	case "mybalance":
		if h.namedMode() {
			return h.allBalances(ctx, chatID, renderAllBalances)
		}
		return h.ownBalance(ctx, msg)
	case "users":
		users, err := h.reports.Users(ctx)
		if err != nil {
			return err
		}
		return h.reply(chatID, renderUsers(users), false)
	case "history":
		txns, err := h.reports.History(ctx, h.opts.HistoryLimit)
		if err != nil {
			return err
		}
		return h.reply(chatID, renderHistory(txns), false)
	case "stats":
		stats, err := h.reports.Stats(ctx)
		if err != nil {
			return err
		}
		return h.reply(chatID, renderStats(stats), true)
	case "transfer":
		if h.namedMode() {
			return h.startNamedTransfer(ctx, msg)
		}
		return h.startPlatformTransfer(ctx, msg)
	case "cancel":
		if err := h.conversations.Delete(ctx, conversationKey(chatID, msg.From.ID)); err != nil {
			return err
		}
		return h.reply(chatID, msgTransferCancelled, false)
	case "reset":
		out := tgbotapi.NewMessage(chatID, msgResetPrompt)
		out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("✅ Yes, reset", cbConfirmReset),
				tgbotapi.NewInlineKeyboardButtonData("❌ Cancel", cbCancelReset),
			),
		)
		return h.send(out)
	}
	return nil
}

func (h *Handler) groupHelp() string {
	return fmt.Sprintf(groupHelpText, model.FormatMoney(h.transfers.DefaultBalance()))
}

func (h *Handler) allBalances(ctx context.Context, chatID int64, render func(*model.BalanceSummary) string) error {
	summary, err := h.reports.AllBalances(ctx)
	if err != nil {
		return err
	}
	return h.reply(chatID, render(summary), false)
}

func (h *Handler) ownBalance(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := h.registrar.Resolve(ctx, identityOf(msg.From))
	if err != nil {
		return err
	}
	return h.reply(msg.Chat.ID, renderOwnBalance(user), false)
}

func (h *Handler) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	if _, err := h.sender.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
		logger.Warn("answer callback failed", "callback_id", q.ID, "error", err)
	}
	if q.Message == nil || q.From == nil {
		return nil
	}

	chatID, messageID := q.Message.Chat.ID, q.Message.MessageID
	key := conversationKey(chatID, q.From.ID)

	switch q.Data {
	case cbAToB, cbBToA:
		return h.selectDirection(ctx, key, chatID, messageID, q.Data == cbAToB)
	case cbCancel:
		if err := h.conversations.Delete(ctx, key); err != nil {
			return err
		}
		return h.edit(chatID, messageID, msgTransferCancelled)
	case cbConfirm:
		return h.confirmTransfer(ctx, key, chatID, messageID)
	case cbConfirmReset:
		if err := h.transfers.Reset(ctx, nil); err != nil {
			return Permanent(h.edit(chatID, messageID, msgInternalError))
		}
		text := fmt.Sprintf("✅ All balances have been reset to %s!", model.FormatMoney(h.transfers.DefaultBalance()))
		return Permanent(h.edit(chatID, messageID, text))
	case cbCancelReset:
		return h.edit(chatID, messageID, msgResetCancelled)
	}

	logger.Debug("unknown callback ignored", "data", q.Data, "chat_id", chatID)
	return nil
}

// commandTarget splits "/transfer @alice 50" arguments into the username and
// the optional amount text.
func commandTarget(args string) (username, amount string) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return "", ""
	}
	username = strings.TrimPrefix(fields[0], "@")
	if len(fields) > 1 {
		amount = fields[1]
	}
	return username, amount
}
