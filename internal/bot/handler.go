// Package bot adapts chat updates to the ledger: commands, the /transfer
// dialogue, reset confirmation and transfer announcements in group chats.
package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/nimasrn/balance-bot/internal/config"
	"github.com/nimasrn/balance-bot/internal/detection"
	"github.com/nimasrn/balance-bot/internal/model"
	"github.com/nimasrn/balance-bot/pkg/logger"
	"github.com/shopspring/decimal"
)

// Sender is the part of *tgbotapi.BotAPI the handler talks to.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Transfers interface {
	Transfer(ctx context.Context, req model.TransferRequest) *model.TransferResult
	Reset(ctx context.Context, balance *decimal.Decimal) error
	DefaultBalance() decimal.Decimal
}

type Reports interface {
	AllBalances(ctx context.Context) (*model.BalanceSummary, error)
	Users(ctx context.Context) ([]*model.User, error)
	History(ctx context.Context, limit int) ([]*model.Transaction, error)
	UserBalance(ctx context.Context, id model.Identity) (decimal.Decimal, error)
	Stats(ctx context.Context) (*model.Stats, error)
}

// Registrar resolves chat users to ledger users, registering them on first
// sight when the identity carries a platform id.
type Registrar interface {
	Resolve(ctx context.Context, id model.Identity) (*model.User, error)
}

type Options struct {
	Mode          string
	Accounts      []string
	MinConfidence float64
	HistoryLimit  int

	// Confirmer phrases group transfer confirmations; nil or a failing
	// confirmer falls back to the fixed template.
	Confirmer detection.Confirmer
}

type Handler struct {
	sender        Sender
	transfers     Transfers
	reports       Reports
	registrar     Registrar
	detector      detection.Detector
	conversations ConversationStore
	opts          Options
}

func NewHandler(sender Sender, transfers Transfers, reports Reports, registrar Registrar, detector detection.Detector, conversations ConversationStore, opts Options) *Handler {
	if opts.Mode == "" {
		opts.Mode = config.ModePlatform
	}
	return &Handler{
		sender:        sender,
		transfers:     transfers,
		reports:       reports,
		registrar:     registrar,
		detector:      detector,
		conversations: conversations,
		opts:          opts,
	}
}

// HandleUpdate routes one update. A returned error is retryable unless it is
// wrapped with Permanent.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) error {
	if upd.CallbackQuery != nil {
		return h.handleCallback(ctx, upd.CallbackQuery)
	}

	msg := upd.Message
	if msg == nil || msg.From == nil {
		return nil
	}

	if msg.IsCommand() {
		return h.handleCommand(ctx, msg)
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil
	}

	handled, err := h.continueConversation(ctx, msg, text)
	if handled || err != nil {
		return err
	}

	if h.namedMode() || msg.From.IsBot {
		return nil
	}
	if msg.Chat.IsGroup() || msg.Chat.IsSuperGroup() {
		return h.monitorGroup(ctx, msg, text)
	}
	return nil
}

func (h *Handler) namedMode() bool {
	return h.opts.Mode == config.ModeNamed
}

func identityOf(u *tgbotapi.User) model.Identity {
	return model.Identity{
		PlatformID: u.ID,
		Username:   u.UserName,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
	}
}

func (h *Handler) reply(chatID int64, text string, markdown bool) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if markdown {
		msg.ParseMode = tgbotapi.ModeMarkdown
	}
	return h.send(msg)
}

func (h *Handler) replyTo(chatID int64, messageID int, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = messageID
	return h.send(msg)
}

func (h *Handler) edit(chatID int64, messageID int, text string) error {
	return h.send(tgbotapi.NewEditMessageText(chatID, messageID, text))
}

func (h *Handler) send(c tgbotapi.Chattable) error {
	if _, err := h.sender.Send(c); err != nil {
		logger.Warn("telegram send failed", "error", err)
		return err
	}
	return nil
}
