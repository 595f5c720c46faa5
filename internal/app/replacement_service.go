package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"property_lifecycle_engine/internal/domain/cheque"

	"github.com/sirupsen/logrus"
)

var (
	// ErrReplacementConflict is returned when a cheque already has a replacement.
	ErrReplacementConflict = errors.New("replacement conflict: cheque already replaced")
	// ErrNotTerminalFailure is returned when replacing a cheque that has not bounced.
	ErrNotTerminalFailure = errors.New("cheque is not in a terminal failure status")
	ErrInvalidDraft       = errors.New("invalid replacement cheque")
	// ErrChainCycle means a cheque appears twice while walking its chain.
	ErrChainCycle = errors.New("replacement chain contains a cycle")
	// ErrChainBroken means a forward link is not mirrored by the back link.
	ErrChainBroken = errors.New("replacement chain links are inconsistent")
)

// maxChainLength bounds a chain walk independently of cycle detection.
const maxChainLength = 1000

// ReplacementService records bounced cheques, links their replacements and traces chains.
type ReplacementService struct {
	cheques cheque.Repository
	logger  *logrus.Entry
}

func NewReplacementService(cr cheque.Repository, logger *logrus.Entry) *ReplacementService {
	return &ReplacementService{
		cheques: cr,
		logger:  logger.WithField("component", "replacement"),
	}
}

// RecordBounce moves a cheque to BOUNCED.
func (s *ReplacementService) RecordBounce(ctx context.Context, chequeID int64, reason string, on time.Time) (*cheque.Cheque, error) {
	c, err := s.cheques.MarkBounced(ctx, chequeID, strings.TrimSpace(reason), on)
	if err != nil {
		return nil, fmt.Errorf("record bounce of cheque %d: %w", chequeID, err)
	}
	s.logger.WithFields(logrus.Fields{
		"cheque_id": chequeID,
		"reason":    reason,
	}).Info("Cheque bounced")
	return c, nil
}

// RecordReplacement creates the cheque replacing originalID and links the two in one
// transaction. A cheque can be replaced once; a second attempt is a conflict.
func (s *ReplacementService) RecordReplacement(ctx context.Context, originalID int64, draft cheque.Draft) (*cheque.Cheque, error) {
	if err := validateDraft(draft); err != nil {
		return nil, err
	}
	log := s.logger.WithField("original_id", originalID)

	repl, err := s.cheques.LinkReplacement(ctx, originalID, draft)
	switch {
	case err == nil:
	case errors.Is(err, cheque.ErrAlreadyReplaced):
		log.WithError(err).Warn("Rejected second replacement")
		return nil, fmt.Errorf("%w: cheque %d", ErrReplacementConflict, originalID)
	case errors.Is(err, cheque.ErrNotBounced):
		log.WithError(err).Warn("Rejected replacement of a cheque that has not bounced")
		return nil, fmt.Errorf("%w: cheque %d", ErrNotTerminalFailure, originalID)
	case errors.Is(err, cheque.ErrChequeNotFound):
		return nil, err
	default:
		log.WithError(err).Error("Failed to record replacement")
		return nil, fmt.Errorf("link replacement for cheque %d: %w", originalID, err)
	}

	log.WithFields(logrus.Fields{
		"replacement_id": repl.ID,
		"cheque_number":  repl.ChequeNumber,
		"amount":         repl.Amount.StringFixed(2),
	}).Info("Replacement cheque recorded")
	return repl, nil
}

func validateDraft(d cheque.Draft) error {
	if strings.TrimSpace(d.ChequeNumber) == "" {
		return fmt.Errorf("%w: cheque number is required", ErrInvalidDraft)
	}
	if !d.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidDraft)
	}
	if d.ChequeDate.IsZero() {
		return fmt.Errorf("%w: cheque date is required", ErrInvalidDraft)
	}
	return nil
}

// TraceChain returns the whole replacement chain containing id, from the root instrument to
// the active one.
func (s *ReplacementService) TraceChain(ctx context.Context, id int64) ([]*cheque.Cheque, error) {
	start, err := s.cheques.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	seen := map[int64]bool{start.ID: true}

	// Walk back to the root.
	var back []*cheque.Cheque
	cur := start
	for cur.OriginalID.Valid {
		if len(seen) > maxChainLength {
			return nil, fmt.Errorf("%w: longer than %d", ErrChainCycle, maxChainLength)
		}
		prevID := cur.OriginalID.Int64
		if seen[prevID] {
			return nil, fmt.Errorf("%w: cheque %d repeats walking back from %d", ErrChainCycle, prevID, id)
		}
		prev, err := s.cheques.GetByID(ctx, prevID)
		if err != nil {
			return nil, fmt.Errorf("load cheque %d in chain of %d: %w", prevID, id, err)
		}
		if !prev.ReplacementID.Valid || prev.ReplacementID.Int64 != cur.ID {
			return nil, fmt.Errorf("%w: %d names %d as original, but %d does not name it as replacement", ErrChainBroken, cur.ID, prev.ID, prev.ID)
		}
		seen[prevID] = true
		back = append(back, prev)
		cur = prev
	}

	chain := make([]*cheque.Cheque, 0, len(back)+1)
	for i := len(back) - 1; i >= 0; i-- {
		chain = append(chain, back[i])
	}
	chain = append(chain, start)

	// Walk forward to the active leaf.
	cur = start
	for cur.ReplacementID.Valid {
		if len(seen) > maxChainLength {
			return nil, fmt.Errorf("%w: longer than %d", ErrChainCycle, maxChainLength)
		}
		nextID := cur.ReplacementID.Int64
		if seen[nextID] {
			return nil, fmt.Errorf("%w: cheque %d repeats walking forward from %d", ErrChainCycle, nextID, id)
		}
		next, err := s.cheques.GetByID(ctx, nextID)
		if err != nil {
			return nil, fmt.Errorf("load cheque %d in chain of %d: %w", nextID, id, err)
		}
		if !next.OriginalID.Valid || next.OriginalID.Int64 != cur.ID {
			return nil, fmt.Errorf("%w: %d names %d as replacement, but %d does not name it as original", ErrChainBroken, cur.ID, next.ID, next.ID)
		}
		seen[nextID] = true
		chain = append(chain, next)
		cur = next
	}
	return chain, nil
}

// ActiveInstrument returns the unreplaced cheque at the end of id's chain.
func (s *ReplacementService) ActiveInstrument(ctx context.Context, id int64) (*cheque.Cheque, error) {
	chain, err := s.TraceChain(ctx, id)
	if err != nil {
		return nil, err
	}
	return chain[len(chain)-1], nil
}
