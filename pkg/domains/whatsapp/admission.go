package whatsapp

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/wadispatch/pkg/metrics"
)

// AdmissionStatus reports the bring-up queue.
type AdmissionStatus struct {
	Queued      int `json:"queued"`
	Active      int `json:"active"`
	Concurrency int `json:"concurrency"`
}

// Ticket resolves when its admitted bring-up has finished.
type Ticket struct {
	TenantID uint
	done     chan struct{}
	err      error
}

func newTicket(tenantID uint) *Ticket {
	return &Ticket{TenantID: tenantID, done: make(chan struct{})}
}

func resolvedTicket(tenantID uint, err error) *Ticket {
	t := newTicket(tenantID)
	t.resolve(err)
	return t
}

func (t *Ticket) resolve(err error) {
	t.err = err
	close(t.done)
}

func (t *Ticket) Done() <-chan struct{} { return t.done }

// Err is the bring-up result; it is only meaningful after Done is closed.
func (t *Ticket) Err() error { return t.err }

func (t *Ticket) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type admission struct {
	ticket *Ticket
	run    func(context.Context) error
}

// AdmissionQueue runs session bring-ups in arrival order with at most
// concurrency of them in flight.
type AdmissionQueue struct {
	ctx         context.Context
	concurrency int
	log         *logrus.Entry

	mu     sync.Mutex
	queue  []*admission
	active int
}

func NewAdmissionQueue(ctx context.Context, concurrency int) *AdmissionQueue {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &AdmissionQueue{
		ctx:         ctx,
		concurrency: concurrency,
		log:         logrus.WithField("component", "admission"),
	}
}

// Admit enqueues run for tenantID and returns its ticket.
func (q *AdmissionQueue) Admit(tenantID uint, run func(context.Context) error) *Ticket {
	a := &admission{ticket: newTicket(tenantID), run: run}
	q.mu.Lock()
	q.queue = append(q.queue, a)
	q.mu.Unlock()

	q.log.WithField("tenant_id", tenantID).Debug("bring-up queued")
	q.drain()
	return a.ticket
}

func (q *AdmissionQueue) Status() AdmissionStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	return AdmissionStatus{Queued: len(q.queue), Active: q.active, Concurrency: q.concurrency}
}

func (q *AdmissionQueue) drain() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.active < q.concurrency && len(q.queue) > 0 {
		a := q.queue[0]
		q.queue[0] = nil
		q.queue = q.queue[1:]
		q.active++
		go q.execute(a)
	}
	metrics.AdmissionQueued.Set(float64(len(q.queue)))
	metrics.AdmissionActive.Set(float64(q.active))
}

func (q *AdmissionQueue) execute(a *admission) {
	err := a.run(q.ctx)
	if err != nil {
		q.log.WithError(err).WithField("tenant_id", a.ticket.TenantID).Warn("session bring-up failed")
	}

	q.mu.Lock()
	q.active--
	q.mu.Unlock()

	a.ticket.resolve(err)
	q.drain()
}
