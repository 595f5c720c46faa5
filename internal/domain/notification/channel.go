package notification

import "context"

// Channel delivers a notification to its recipients (email, SMS, chat).
// Templating and recipient resolution belong to the channel.
type Channel interface {
	Send(ctx context.Context, n Notification) error
}
