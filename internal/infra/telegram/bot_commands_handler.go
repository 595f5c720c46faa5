// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// adminHelp lists the admin commands.
func adminHelp() string {
	var helpText strings.Builder
	helpText.WriteString("Available admin commands:\n\n")
	helpText.WriteString("`/failed_tasks`\n - Notifications that exhausted their retries.\n\n")
	helpText.WriteString("`/requeue <taskID>`\n - Give a failed notification a fresh retry budget.\n\n")
	helpText.WriteString("`/queue_stats`\n - Notification tasks per status.\n\n")
	helpText.WriteString("`/chain <chequeID>`\n - Show a cheque's replacement chain.\n\n")
	helpText.WriteString("`/bounce <chequeID> [reason]`\n - Record a bounced cheque.\n\n")
	helpText.WriteString("`/replace <chequeID> <number> <amount> [YYYY-MM-DD]`\n - Record the replacement of a bounced cheque.\n\n")
	helpText.WriteString("`/help`\n - Show this message.")
	return helpText.String()
}

func RegisterBotCommands(
	b *telebot.Bot,
	adminTelegramID int64,
	baseLogger *logrus.Entry, // For contextual logging
) {
	startHelpLogger := baseLogger.WithField("handler_group", "start_help")

	b.Handle("/start", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := startHelpLogger.WithField("command", "/start").WithField("sender_id", senderID)
		logCtx.Info("Processing /start command")

		if senderID == adminTelegramID {
			logCtx.Info("User identified as Admin")
			return c.Send(fmt.Sprintf("Hello, %s! Lifecycle notifications are running. Use /help for the command list.", c.Sender().FirstName))
		}
		logCtx.Info("User is unknown")
		return c.Send("This bot posts property lifecycle notifications. It accepts commands from the administrator only.")
	})

	b.Handle("/help", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := startHelpLogger.WithField("command", "/help").WithField("sender_id", senderID)
		logCtx.Info("Processing /help command")

		if senderID == adminTelegramID {
			return c.Send(adminHelp(), &telebot.SendOptions{ParseMode: telebot.ModeMarkdown})
		}
		logCtx.Info("User is unknown, sending restricted help.")
		return c.Send("No commands are available to you.")
	})
}
