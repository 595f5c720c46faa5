package telegram

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"property_lifecycle_engine/internal/app"
	"property_lifecycle_engine/internal/domain/cheque"
	"property_lifecycle_engine/internal/domain/notification"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const (
	msgUnauthorized = "Error: you are not allowed to run this command."
	dateLayout      = "2006-01-02"
)

// adminCommands turns command arguments into replies. The telebot handlers only adapt it.
type adminCommands struct {
	service *app.AdminService
	loc     *time.Location
}

// RegisterAdminHandlers registers handlers for admin commands.
// Every command is restricted to the configured admin Telegram ID.
func RegisterAdminHandlers(ctx context.Context, b *telebot.Bot, adminService *app.AdminService, adminTelegramID int64, loc *time.Location, baseLogger *logrus.Entry) {
	cmds := &adminCommands{service: adminService, loc: loc}

	handle := func(command string, run func(ctx context.Context, senderID int64, args []string) string) {
		b.Handle(command, func(c telebot.Context) error {
			handlerLogger := baseLogger.WithFields(logrus.Fields{
				"handler":   command,
				"sender_id": c.Sender().ID,
			})
			handlerLogger.Info("Command received")

			if c.Sender().ID != adminTelegramID {
				handlerLogger.Warn("Unauthorized access attempt")
				return c.Send(msgUnauthorized)
			}
			reply := run(ctx, c.Sender().ID, c.Args())
			handlerLogger.WithField("args", c.Args()).Debug("Command handled")
			return c.Send(reply)
		})
	}

	handle("/failed_tasks", cmds.failedTasks)
	handle("/requeue", cmds.requeue)
	handle("/queue_stats", cmds.queueStats)
	handle("/chain", cmds.chain)
	handle("/bounce", cmds.bounce)
	handle("/replace", cmds.replace)
}

func errorReply(action string, err error) string {
	switch {
	case errors.Is(err, app.ErrAdminNotAuthorized):
		return msgUnauthorized
	case errors.Is(err, notification.ErrTaskNotFound):
		return "Error: notification task not found."
	case errors.Is(err, notification.ErrTaskNotTerminal):
		return "Error: only FAILED_TERMINAL tasks can be requeued."
	case errors.Is(err, cheque.ErrChequeNotFound):
		return "Error: cheque not found."
	case errors.Is(err, cheque.ErrNotBounceable):
		return "Error: the cheque's current status does not allow a bounce."
	case errors.Is(err, app.ErrReplacementConflict):
		return "Error: this cheque has already been replaced."
	case errors.Is(err, app.ErrNotTerminalFailure):
		return "Error: only bounced cheques can be replaced."
	case errors.Is(err, app.ErrInvalidDraft):
		return fmt.Sprintf("Error: %s", err.Error())
	case errors.Is(err, app.ErrChainCycle), errors.Is(err, app.ErrChainBroken):
		return fmt.Sprintf("Error: the replacement chain is corrupt (%s).", err.Error())
	default:
		return fmt.Sprintf("An error occurred while trying to %s: %s", action, err.Error())
	}
}

func parseID(arg string) (int64, bool) {
	id, err := strconv.ParseInt(arg, 10, 64)
	return id, err == nil && id > 0
}

func (a *adminCommands) failedTasks(ctx context.Context, senderID int64, _ []string) string {
	tasks, err := a.service.ListFailedTasks(ctx, senderID)
	if err != nil {
		return errorReply("list failed tasks", err)
	}
	if len(tasks) == 0 {
		return "No permanently failed notifications."
	}
	var response strings.Builder
	response.WriteString("--- Failed notifications ---\n")
	for _, t := range tasks {
		response.WriteString(fmt.Sprintf("Task %d: %s #%d %s, retries %d, last error: %s\n",
			t.ID, t.SubjectType, t.SubjectID, t.MilestoneKey, t.RetryCount, t.LastError.String))
	}
	response.WriteString("Use /requeue <taskID> to retry.")
	return response.String()
}

func (a *adminCommands) requeue(ctx context.Context, senderID int64, args []string) string {
	if len(args) != 1 {
		return "Invalid command format. Use: /requeue <taskID>"
	}
	id, ok := parseID(args[0])
	if !ok {
		return "Error: task ID must be a positive number."
	}
	task, err := a.service.RequeueTask(ctx, senderID, id)
	if err != nil {
		return errorReply("requeue the task", err)
	}
	return fmt.Sprintf("Task %d (%s #%d %s) is %s again.", task.ID, task.SubjectType, task.SubjectID, task.MilestoneKey, task.Status)
}

func (a *adminCommands) queueStats(ctx context.Context, senderID int64, _ []string) string {
	counts, err := a.service.QueueStats(ctx, senderID)
	if err != nil {
		return errorReply("count tasks", err)
	}
	if len(counts) == 0 {
		return "The notification queue is empty."
	}
	statuses := make([]string, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, string(s))
	}
	sort.Strings(statuses)
	var response strings.Builder
	response.WriteString("--- Notification queue ---\n")
	for _, s := range statuses {
		response.WriteString(fmt.Sprintf("%s: %d\n", s, counts[notification.TaskStatus(s)]))
	}
	return response.String()
}

func (a *adminCommands) chain(ctx context.Context, senderID int64, args []string) string {
	if len(args) != 1 {
		return "Invalid command format. Use: /chain <chequeID>"
	}
	id, ok := parseID(args[0])
	if !ok {
		return "Error: cheque ID must be a positive number."
	}
	chain, err := a.service.TraceCheque(ctx, senderID, id)
	if err != nil {
		return errorReply("trace the cheque", err)
	}
	var response strings.Builder
	response.WriteString(fmt.Sprintf("--- Replacement chain of cheque %d ---\n", id))
	for i, c := range chain {
		response.WriteString(fmt.Sprintf("%d. #%d no. %s, %s, dated %s, %s",
			i+1, c.ID, c.ChequeNumber, c.Amount.StringFixed(2), c.ChequeDate.Format(dateLayout), c.Status))
		if i == len(chain)-1 {
			response.WriteString(" (active)")
		}
		response.WriteString("\n")
	}
	return response.String()
}

func (a *adminCommands) bounce(ctx context.Context, senderID int64, args []string) string {
	if len(args) < 1 {
		return "Invalid command format. Use: /bounce <chequeID> [reason]"
	}
	id, ok := parseID(args[0])
	if !ok {
		return "Error: cheque ID must be a positive number."
	}
	c, err := a.service.BounceCheque(ctx, senderID, id, strings.Join(args[1:], " "))
	if err != nil {
		return errorReply("record the bounce", err)
	}
	return fmt.Sprintf("Cheque #%d (no. %s) is now %s. Record its replacement with /replace.", c.ID, c.ChequeNumber, c.Status)
}

func (a *adminCommands) replace(ctx context.Context, senderID int64, args []string) string {
	if len(args) < 3 || len(args) > 4 {
		return "Invalid command format. Use: /replace <chequeID> <number> <amount> [YYYY-MM-DD]"
	}
	id, ok := parseID(args[0])
	if !ok {
		return "Error: cheque ID must be a positive number."
	}
	amount, err := decimal.NewFromString(args[2])
	if err != nil {
		return "Error: amount must be a decimal number, e.g. 12500.00"
	}
	draft := cheque.Draft{ChequeNumber: args[1], Amount: amount}
	if len(args) == 4 {
		date, err := time.ParseInLocation(dateLayout, args[3], a.loc)
		if err != nil {
			return "Error: cheque date must be YYYY-MM-DD."
		}
		draft.ChequeDate = date
	}
	repl, err := a.service.ReplaceCheque(ctx, senderID, id, draft)
	if err != nil {
		return errorReply("record the replacement", err)
	}
	return fmt.Sprintf("Cheque #%d replaced by #%d (no. %s, %s, dated %s).",
		id, repl.ID, repl.ChequeNumber, repl.Amount.StringFixed(2), repl.ChequeDate.Format(dateLayout))
}
