package cheque

import (
	"context"
	"errors"
	"time"
)

var (
	ErrChequeNotFound = errors.New("cheque not found")
	// ErrAlreadyReplaced means the cheque already has a replacement linked to it.
	ErrAlreadyReplaced = errors.New("cheque already has a replacement")
	// ErrNotBounced means the cheque is not in the terminal failure status.
	ErrNotBounced = errors.New("cheque is not bounced")
	// ErrNotBounceable means the cheque's status does not allow recording a bounce.
	ErrNotBounceable = errors.New("cheque cannot be bounced from its current status")
)

// Repository persists cheques and their replacement links.
type Repository interface {
	Create(ctx context.Context, c *Cheque) error
	GetByID(ctx context.Context, id int64) (*Cheque, error)
	// MarkBounced moves a bounceable cheque to BOUNCED.
	MarkBounced(ctx context.Context, id int64, reason string, on time.Time) (*Cheque, error)
	// LinkReplacement creates a RECEIVED cheque from draft replacing originalID and sets
	// the original's ReplacementID, in one transaction. The original must be BOUNCED
	// (ErrNotBounced) and not yet replaced (ErrAlreadyReplaced).
	LinkReplacement(ctx context.Context, originalID int64, draft Draft) (*Cheque, error)
}
