package memstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"property_lifecycle_engine/internal/domain/cheque"
	"property_lifecycle_engine/internal/domain/lifecycle"
)

// ChequeStore is a cheque.Repository that also serves as the cheque subject repository.
type ChequeStore struct {
	*SubjectStore[*cheque.Cheque]
	clock  lifecycle.Clock
	nextID int64
}

func NewChequeStore(clock lifecycle.Clock) *ChequeStore {
	return &ChequeStore{SubjectStore: NewSubjectStore[*cheque.Cheque](), clock: clock}
}

func (s *ChequeStore) Create(ctx context.Context, c *cheque.Cheque) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertLocked(c)
	return nil
}

func (s *ChequeStore) insertLocked(c *cheque.Cheque) {
	s.nextID++
	now := s.clock.Now()
	c.ID = s.nextID
	c.CreatedAt, c.UpdatedAt = now, now
	stored := *c
	s.subjects[c.ID] = &stored
}

func (s *ChequeStore) GetByID(ctx context.Context, id int64) (*cheque.Cheque, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.subjects[id]
	if !ok {
		return nil, cheque.ErrChequeNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *ChequeStore) MarkBounced(ctx context.Context, id int64, reason string, on time.Time) (*cheque.Cheque, error) {
	var out cheque.Cheque
	err := s.Update(id, func(c *cheque.Cheque) error {
		if !cheque.Bounceable(c.Status) {
			return cheque.ErrNotBounceable
		}
		c.Status = cheque.StatusBounced
		c.BouncedOn = sql.NullTime{Time: lifecycle.DateOnly(on), Valid: true}
		c.BounceReason = sql.NullString{String: reason, Valid: reason != ""}
		c.UpdatedAt = s.clock.Now()
		out = *c
		return nil
	})
	if errors.Is(err, errNotFound) {
		return nil, cheque.ErrChequeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *ChequeStore) LinkReplacement(ctx context.Context, originalID int64, draft cheque.Draft) (*cheque.Cheque, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	orig, ok := s.subjects[originalID]
	if !ok {
		return nil, cheque.ErrChequeNotFound
	}
	if orig.Status != cheque.StatusBounced {
		return nil, cheque.ErrNotBounced
	}
	if orig.ReplacementID.Valid {
		return nil, cheque.ErrAlreadyReplaced
	}
	repl := &cheque.Cheque{
		LeaseID:      orig.LeaseID,
		ChequeNumber: draft.ChequeNumber,
		BankName:     draft.BankName,
		Amount:       draft.Amount,
		ChequeDate:   lifecycle.DateOnly(draft.ChequeDate),
		Status:       cheque.StatusReceived,
		OriginalID:   sql.NullInt64{Int64: originalID, Valid: true},
	}
	s.insertLocked(repl)
	orig.ReplacementID = sql.NullInt64{Int64: repl.ID, Valid: true}
	orig.UpdatedAt = repl.CreatedAt
	return repl, nil
}
