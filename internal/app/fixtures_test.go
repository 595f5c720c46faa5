package app

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"property_lifecycle_engine/internal/domain/lifecycle"
	"property_lifecycle_engine/internal/domain/notification"
	"property_lifecycle_engine/internal/infra/memstore"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type promoterFixture struct {
	promoter   *Promoter
	clock      *lifecycle.FixedClock
	tasks      *memstore.TaskStore
	invoices   *memstore.SubjectStore[*lifecycle.Record]
	compliance *memstore.SubjectStore[*lifecycle.Record]
	documents  *memstore.SubjectStore[*lifecycle.Record]
	vendorDocs *memstore.SubjectStore[*lifecycle.Record]
	cheques    *memstore.ChequeStore
	maxRetries int
}

func newPromoterFixture(t *testing.T, now time.Time) *promoterFixture {
	t.Helper()
	f := &promoterFixture{
		clock:      lifecycle.NewFixedClock(now),
		tasks:      memstore.NewTaskStore(),
		invoices:   memstore.NewSubjectStore[*lifecycle.Record](),
		compliance: memstore.NewSubjectStore[*lifecycle.Record](),
		documents:  memstore.NewSubjectStore[*lifecycle.Record](),
		vendorDocs: memstore.NewSubjectStore[*lifecycle.Record](),
		maxRetries: 3,
	}
	f.cheques = memstore.NewChequeStore(f.clock)
	f.promoter = NewPromoter(lifecycle.DefaultTable(), f.tasks, f.clock, f.maxRetries, nil, testLogger())
	f.promoter.Register(lifecycle.SubjectInvoice, f.invoices)
	f.promoter.Register(lifecycle.SubjectCheque, f.cheques)
	f.promoter.Register(lifecycle.SubjectCompliance, f.compliance)
	f.promoter.Register(lifecycle.SubjectDocument, f.documents)
	f.promoter.Register(lifecycle.SubjectVendorDocument, f.vendorDocs)
	return f
}

func (f *promoterFixture) taskKeys() []notification.TaskKey {
	var keys []notification.TaskKey
	for _, t := range f.tasks.All() {
		keys = append(keys, t.Key())
	}
	return keys
}

// scriptedChannel fails the first `failures` sends of each task (all of them when negative) and records every attempt.
type scriptedChannel struct {
	mu       sync.Mutex
	failures int
	err      error
	attempts map[int64][]int
	sent     []int64
}

func newScriptedChannel(failures int, err error) *scriptedChannel {
	return &scriptedChannel{failures: failures, err: err, attempts: make(map[int64][]int)}
}

func (c *scriptedChannel) Send(ctx context.Context, n notification.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts[n.TaskID] = append(c.attempts[n.TaskID], n.Attempt)
	if c.failures < 0 || len(c.attempts[n.TaskID]) <= c.failures {
		return c.err
	}
	c.sent = append(c.sent, n.TaskID)
	return nil
}
