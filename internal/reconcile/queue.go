package reconcile

import (
	"context"
	"sync"
)

// writeOp is one remote mutation.
type writeOp struct {
	userID string
	desc   string
	run    func(ctx context.Context) error
}

// writeQueue runs remote writes one at a time in submission order.
type writeQueue struct {
	exec    func(op writeOp)
	onDrain func()

	mu       sync.Mutex
	ops      []writeOp
	inflight *writeOp
	idleCh   chan struct{}
	closed   bool

	wakeCh chan struct{}
	doneCh chan struct{}
}

func newWriteQueue(exec func(op writeOp), onDrain func()) *writeQueue {
	q := &writeQueue{
		exec:    exec,
		onDrain: onDrain,
		idleCh:  make(chan struct{}),
		wakeCh:  make(chan struct{}, 1),
		doneCh:  make(chan struct{}),
	}
	close(q.idleCh)
	go q.run()
	return q
}

func (q *writeQueue) push(op writeOp) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	if q.idleLocked() {
		q.idleCh = make(chan struct{})
	}
	q.ops = append(q.ops, op)
	q.mu.Unlock()

	select {
	case q.wakeCh <- struct{}{}:
	default:
	}
	return true
}

func (q *writeQueue) idleLocked() bool {
	return len(q.ops) == 0 && q.inflight == nil
}

func (q *writeQueue) run() {
	defer close(q.doneCh)

	for {
		q.mu.Lock()
		if len(q.ops) == 0 {
			closed := q.closed
			q.mu.Unlock()
			if closed {
				return
			}
			<-q.wakeCh
			continue
		}
		op := q.ops[0]
		q.ops = q.ops[1:]
		q.inflight = &op
		q.mu.Unlock()

		q.exec(op)

		q.mu.Lock()
		q.inflight = nil
		drained := q.idleLocked()
		if drained {
			close(q.idleCh)
		}
		q.mu.Unlock()

		if drained && q.onDrain != nil {
			q.onDrain()
		}
	}
}

// pending counts queued and in-flight ops.
func (q *writeQueue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.ops)
	if q.inflight != nil {
		n++
	}
	return n
}

// pendingFor counts queued and in-flight ops for userID.
func (q *writeQueue) pendingFor(userID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, op := range q.ops {
		if op.userID == userID {
			n++
		}
	}
	if q.inflight != nil && q.inflight.userID == userID {
		n++
	}
	return n
}

// wait blocks until no op is queued or in flight.
func (q *writeQueue) wait(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idleCh
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close stops accepting ops and returns once queued ops have run.
func (q *writeQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	select {
	case q.wakeCh <- struct{}{}:
	default:
	}
	<-q.doneCh
}
