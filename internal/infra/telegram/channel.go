// internal/infra/telegram/channel.go
package telegram

import (
	"context"
	"fmt"

	"property_lifecycle_engine/internal/domain/lifecycle"
	"property_lifecycle_engine/internal/domain/notification"
	domainTelegram "property_lifecycle_engine/internal/domain/telegram"

	"gopkg.in/telebot.v3"
)

var subjectLabels = map[lifecycle.SubjectType]string{
	lifecycle.SubjectInvoice:        "Rent invoice",
	lifecycle.SubjectCheque:         "Post-dated cheque",
	lifecycle.SubjectCompliance:     "Compliance schedule",
	lifecycle.SubjectDocument:       "Document",
	lifecycle.SubjectVendorDocument: "Vendor document",
}

// messageTemplates take the subject label and id.
var messageTemplates = map[string]string{
	string(lifecycle.MilestoneInvoiceDue):       "%s #%d falls due within 7 days.",
	string(lifecycle.MilestoneChequeDue):        "%s #%d is due for deposit today.",
	string(lifecycle.MilestoneOverdueNotice):    "%s #%d is overdue.",
	string(lifecycle.MilestoneDepositReminder):  "%s #%d can be deposited within 3 days.",
	string(lifecycle.MilestoneReplacementChase): "%s #%d bounced and still has no replacement. Please chase the tenant.",
	string(lifecycle.MilestoneReminder14):       "%s #%d is due within 14 days.",
	string(lifecycle.MilestoneNotice30):         "%s #%d expires within 30 days.",
	string(lifecycle.MilestoneNotice7):          "%s #%d expires within 7 days.",
	string(lifecycle.MilestoneExpiredNotice):    "%s #%d has expired.",
}

// RenderNotification builds the chat text for a notification.
func RenderNotification(n notification.Notification) string {
	label, ok := subjectLabels[n.SubjectType]
	if !ok {
		label = string(n.SubjectType)
	}
	var text string
	if tmpl, ok := messageTemplates[n.MilestoneKey]; ok {
		text = fmt.Sprintf(tmpl, label, n.SubjectID)
	} else {
		text = fmt.Sprintf("%s #%d: %s", label, n.SubjectID, n.MilestoneKey)
	}
	if n.Attempt > 1 {
		text += fmt.Sprintf(" (attempt %d)", n.Attempt)
	}
	return text
}

// Channel delivers notifications as messages to one Telegram chat.
type Channel struct {
	client domainTelegram.Client
	chatID int64
}

func NewChannel(client domainTelegram.Client, chatID int64) *Channel {
	return &Channel{client: client, chatID: chatID}
}

// Send returns when the message is sent or ctx is done, whichever comes first. telebot
// has no context support, so a send abandoned on timeout may still reach the chat.
func (ch *Channel) Send(ctx context.Context, n notification.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	text := RenderNotification(n)
	done := make(chan error, 1)
	go func() {
		done <- ch.client.SendMessage(ch.chatID, text, &telebot.SendOptions{DisableWebPagePreview: true})
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("telegram send for task %d: %w", n.TaskID, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("telegram send for task %d: %w", n.TaskID, ctx.Err())
	}
}
