package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/nimasrn/balance-bot/internal/model"
	"github.com/nimasrn/balance-bot/pkg/logger"
)

var confirmKeyboard = tgbotapi.NewInlineKeyboardMarkup(
	tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✅ Confirm", cbConfirm),
		tgbotapi.NewInlineKeyboardButtonData("❌ Cancel", cbCancel),
	),
)

func (h *Handler) startNamedTransfer(ctx context.Context, msg *tgbotapi.Message) error {
	if len(h.opts.Accounts) < 2 {
		logger.Warn("named transfer needs two accounts", "accounts", h.opts.Accounts)
		return h.reply(msg.Chat.ID, msgNoUsers, false)
	}

	key := conversationKey(msg.Chat.ID, msg.From.ID)
	if err := h.conversations.Save(ctx, key, &Conversation{Step: StepSelectDirection}); err != nil {
		return err
	}

	a, b := model.HumanizeName(h.opts.Accounts[0]), model.HumanizeName(h.opts.Accounts[1])
	out := tgbotapi.NewMessage(msg.Chat.ID, msgSelectDirection)
	out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(a+" → "+b, cbAToB)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(b+" → "+a, cbBToA)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("❌ Cancel", cbCancel)),
	)
	return h.send(out)
}

func (h *Handler) selectDirection(ctx context.Context, key string, chatID int64, messageID int, aToB bool) error {
	c, err := h.conversations.Get(ctx, key)
	if err != nil {
		return err
	}
	if c == nil || c.Step != StepSelectDirection || len(h.opts.Accounts) < 2 {
		return h.edit(chatID, messageID, msgSessionExpired)
	}

	from, to := h.opts.Accounts[0], h.opts.Accounts[1]
	if !aToB {
		from, to = to, from
	}
	c.From = model.Identity{Name: from}
	c.To = model.Identity{Name: to}
	c.FromLabel = model.HumanizeName(from)
	c.ToLabel = model.HumanizeName(to)
	c.Step = StepEnterAmount

	available, err := h.reports.UserBalance(ctx, c.From)
	if err != nil {
		return err
	}
	if err := h.conversations.Save(ctx, key, c); err != nil {
		return err
	}
	return h.edit(chatID, messageID, renderDirectionPrompt(c.FromLabel+" → "+c.ToLabel, model.FormatMoney(available)))
}

// startPlatformTransfer handles "/transfer @user [amount]". Without an amount
// the dialogue waits for one; with a valid amount it goes straight to
// confirmation.
func (h *Handler) startPlatformTransfer(ctx context.Context, msg *tgbotapi.Message) error {
	username, amountText := commandTarget(msg.CommandArguments())
	if username == "" {
		return h.reply(msg.Chat.ID, msgTransferUsage, false)
	}

	sender, err := h.registrar.Resolve(ctx, identityOf(msg.From))
	if err != nil {
		return err
	}

	key := conversationKey(msg.Chat.ID, msg.From.ID)
	c := &Conversation{
		Step:      StepEnterAmount,
		From:      model.Identity{PlatformID: msg.From.ID},
		To:        model.Identity{Username: username},
		FromLabel: sender.DisplayName(),
		ToLabel:   "@" + username,
	}

	if amountText != "" {
		if amount, err := model.ParseAmount(amountText); err == nil && amount.IsPositive() {
			c.Amount = &amount
			c.Step = StepConfirm
			if err := h.conversations.Save(ctx, key, c); err != nil {
				return err
			}
			return h.askConfirmation(msg.Chat.ID, c)
		}
		if err := h.conversations.Save(ctx, key, c); err != nil {
			return err
		}
		return h.reply(msg.Chat.ID, msgInvalidAmount, false)
	}

	if err := h.conversations.Save(ctx, key, c); err != nil {
		return err
	}
	return h.reply(msg.Chat.ID, renderDirectionPrompt(c.FromLabel+" → "+c.ToLabel, model.FormatMoney(sender.Balance)), false)
}

// continueConversation consumes text that answers a pending amount prompt.
// It reports false when the text belongs to no dialogue.
func (h *Handler) continueConversation(ctx context.Context, msg *tgbotapi.Message, text string) (bool, error) {
	key := conversationKey(msg.Chat.ID, msg.From.ID)
	c, err := h.conversations.Get(ctx, key)
	if err != nil {
		return true, err
	}
	if c == nil || c.Step != StepEnterAmount {
		return false, nil
	}

	amount, err := model.ParseAmount(text)
	if err != nil || !amount.IsPositive() {
		return true, h.reply(msg.Chat.ID, msgInvalidAmount, false)
	}

	c.Amount = &amount
	c.Step = StepConfirm
	if err := h.conversations.Save(ctx, key, c); err != nil {
		return true, err
	}
	return true, h.askConfirmation(msg.Chat.ID, c)
}

func (h *Handler) askConfirmation(chatID int64, c *Conversation) error {
	out := tgbotapi.NewMessage(chatID, renderConfirm(c))
	out.ReplyMarkup = confirmKeyboard
	return h.send(out)
}

func (h *Handler) confirmTransfer(ctx context.Context, key string, chatID int64, messageID int) error {
	c, err := h.conversations.Get(ctx, key)
	if err != nil {
		return err
	}
	if c == nil || c.Step != StepConfirm || c.Amount == nil {
		return h.edit(chatID, messageID, msgSessionExpired)
	}

	// cleared first so a second tap cannot submit the same dialogue again
	if err := h.conversations.Delete(ctx, key); err != nil {
		return err
	}

	res := h.transfers.Transfer(ctx, model.TransferRequest{
		From:   c.From,
		To:     c.To,
		Amount: *c.Amount,
	})
	return Permanent(h.edit(chatID, messageID, renderTransferResult(res)))
}
