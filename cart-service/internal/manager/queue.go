package manager

import (
	"sync"

	"github.com/fjod/mood_store/cart-service/internal/domain"
)

type opKind int

const (
	opUpsert opKind = iota
	opSetQuantity
	opDelete
	opDeleteAll
	opBarrier
)

func (k opKind) String() string {
	switch k {
	case opUpsert:
		return "upsert"
	case opSetQuantity:
		return "set_quantity"
	case opDelete:
		return "delete"
	case opDeleteAll:
		return "delete_all"
	default:
		return "barrier"
	}
}

// op is one queued remote write. For opUpsert line.Quantity is the
// increment, for opSetQuantity it is the new absolute quantity. When result
// is set the outcome goes to the caller instead of the notifier.
type op struct {
	kind    opKind
	line    domain.CartLine
	barrier chan struct{}
	result  chan error
}

// queue is an unbounded FIFO drained by a single worker, so local mutations
// never block on the remote store.
type queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []op
	closed bool
}

func newQueue() *queue {
	q := &queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *queue) push(o op) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, o)
	q.cond.Signal()
	return true
}

// pop blocks until an op is available. It returns false once the queue is
// closed and empty.
func (q *queue) pop() (op, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return op{}, false
	}
	o := q.items[0]
	q.items[0] = op{}
	q.items = q.items[1:]
	return o, true
}

func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
