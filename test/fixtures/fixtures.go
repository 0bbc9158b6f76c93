package fixtures

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/nimasrn/balance-bot/internal/model"
)

var (
	GroupChat   = tgbotapi.Chat{ID: -1001, Type: "supergroup", Title: "Flatmates"}
	PrivateChat = tgbotapi.Chat{ID: 501, Type: "private"}

	Alice = tgbotapi.User{ID: 501, UserName: "alice", FirstName: "Alice"}
	Bob   = tgbotapi.User{ID: 502, UserName: "bob", FirstName: "Bob"}
	Carol = tgbotapi.User{ID: 503, FirstName: "Carol"}
)

func IdentityOf(u tgbotapi.User) model.Identity {
	return model.Identity{
		PlatformID: u.ID,
		Username:   u.UserName,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
	}
}

// TextUpdate builds a message update; text starting with "/" is tagged as a
// bot command the way Telegram does.
func TextUpdate(updateID, messageID int, chat tgbotapi.Chat, from tgbotapi.User, text string) tgbotapi.Update {
	msg := &tgbotapi.Message{
		MessageID: messageID,
		From:      &from,
		Chat:      &chat,
		Text:      text,
	}
	if strings.HasPrefix(text, "/") {
		cmd, _, _ := strings.Cut(text, " ")
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	}
	return tgbotapi.Update{UpdateID: updateID, Message: msg}
}

func CallbackUpdate(updateID int, chat tgbotapi.Chat, from tgbotapi.User, data string) tgbotapi.Update {
	return tgbotapi.Update{
		UpdateID: updateID,
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:   "cb-" + data,
			From: &from,
			Data: data,
			Message: &tgbotapi.Message{
				MessageID: 9,
				Chat:      &chat,
			},
		},
	}
}

var (
	TransferAnnouncements = []string{
		"I sent $25 to @bob",
		"paid @bob 25",
		"@bob I sent you $25",
	}

	ChatterMessages = []string{
		"lunch at noon?",
		"I will send $20 to @bob tomorrow",
		"please send me 10",
		"good morning",
	}
)
