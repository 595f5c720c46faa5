package app

import (
	"context"

	"property_lifecycle_engine/internal/domain/notification"

	"github.com/sirupsen/logrus"
)

// LoggingChannel is a notification channel that only logs. Used when no Telegram token is
// configured, e.g. in development.
type LoggingChannel struct {
	logger *logrus.Entry
}

func NewLoggingChannel(logger *logrus.Entry) *LoggingChannel {
	return &LoggingChannel{logger: logger.WithField("component", "log_channel")}
}

func (c *LoggingChannel) Send(ctx context.Context, n notification.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.logger.WithFields(logrus.Fields{
		"task_id":      n.TaskID,
		"subject_type": n.SubjectType,
		"subject_id":   n.SubjectID,
		"milestone":    n.MilestoneKey,
		"attempt":      n.Attempt,
	}).Info("MOCK: notification would be delivered")
	return nil
}
