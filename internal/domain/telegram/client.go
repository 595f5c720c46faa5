package telegram

import "gopkg.in/telebot.v3"

// Client sends messages to a Telegram chat (a user, group or channel id).
// It keeps the application away from the bot library's transport details.
type Client interface {
	SendMessage(chatID int64, text string, options *telebot.SendOptions) error
}
