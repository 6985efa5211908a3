package producer

import (
	"context"
	"sync"
	"time"
)

// Report describes where the broker stored a record.
type Report struct {
	Topic     string
	Partition int32
	Offset    int64
	Timestamp time.Time
}

// Delivery is the pending outcome of one Publish. It settles exactly once,
// when the broker acknowledges or rejects the record.
type Delivery struct {
	once   sync.Once
	done   chan struct{}
	report Report
	err    error
}

func newDelivery() *Delivery { return &Delivery{done: make(chan struct{})} }

func (d *Delivery) settle(r Report, err error) {
	d.once.Do(func() {
		d.report, d.err = r, err
		close(d.done)
	})
}

// Done is closed once the delivery has settled.
func (d *Delivery) Done() <-chan struct{} { return d.done }

// Err returns the delivery error, or nil while unsettled or on success.
func (d *Delivery) Err() error {
	select {
	case <-d.done:
		return d.err
	default:
		return nil
	}
}

// Wait blocks until the delivery settles or ctx is done.
func (d *Delivery) Wait(ctx context.Context) (Report, error) {
	select {
	case <-d.done:
		return d.report, d.err
	case <-ctx.Done():
		return Report{}, ctx.Err()
	}
}

/* ───────────────────────── in-flight tracking ────────────────────────── */

// inflight counts records handed to the broker client but not yet settled.
// idle is closed whenever the count is zero.
type inflight struct {
	mu   sync.Mutex
	n    int
	idle chan struct{}
}

func newInflight() *inflight {
	f := &inflight{idle: make(chan struct{})}
	close(f.idle)
	return f
}

func (f *inflight) add() {
	f.mu.Lock()
	if f.n == 0 {
		f.idle = make(chan struct{})
	}
	f.n++
	f.mu.Unlock()
}

func (f *inflight) done() {
	f.mu.Lock()
	if f.n > 0 {
		f.n--
		if f.n == 0 {
			close(f.idle)
		}
	}
	f.mu.Unlock()
}

func (f *inflight) pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n
}

func (f *inflight) wait() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.idle
}
