// Package manager holds the per-user cart sessions. Every mutation is
// applied to the local cart first and then written to the remote store by a
// single worker, in call order.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fjod/mood_store/cart-service/internal/domain"
	"github.com/fjod/mood_store/cart-service/internal/mirror"
	"github.com/fjod/mood_store/cart-service/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrClosed = errors.New("cart session closed")
	// ErrCartChanged means local mutations kept arriving while a reconcile
	// was fetching, so the remote copy was not applied.
	ErrCartChanged = errors.New("cart changed during reconcile")
)

const reconcileAttempts = 3

type Options struct {
	// SyncTimeout bounds each remote write and fetch.
	SyncTimeout time.Duration
	// MirrorTimeout bounds each mirror save.
	MirrorTimeout time.Duration
	// Follow subscribes every session to the remote change feed.
	Follow bool
}

func (o Options) withDefaults() Options {
	if o.SyncTimeout <= 0 {
		o.SyncTimeout = 5 * time.Second
	}
	if o.MirrorTimeout <= 0 {
		o.MirrorTimeout = time.Second
	}
	return o
}

type Manager struct {
	userID   string
	session  string
	store    repository.Store
	mirror   mirror.Mirror
	notifier Notifier
	log      *slog.Logger
	opts     Options
	now      func() time.Time

	mu    sync.Mutex
	lines []domain.CartLine
	// seq counts local mutations; Reconcile uses it to detect interleaving.
	seq uint64

	queue     *queue
	done      chan struct{}
	closeOnce sync.Once
}

func New(userID string, store repository.Store, m mirror.Mirror, notifier Notifier, log *slog.Logger, opts Options) *Manager {
	if log == nil {
		log = slog.Default()
	}
	mgr := &Manager{
		userID:   userID,
		session:  uuid.NewString(),
		store:    store,
		mirror:   m,
		notifier: notifier,
		log:      log.With("user_id", userID),
		opts:     opts.withDefaults(),
		now:      time.Now,
		lines:    []domain.CartLine{},
		queue:    newQueue(),
		done:     make(chan struct{}),
	}
	go mgr.run()
	return mgr
}

func (m *Manager) UserID() string { return m.userID }

// Session identifies this manager's writes in the remote change feed.
func (m *Manager) Session() string { return m.session }

// AddToCart merges line into the line with the same product, or appends it.
func (m *Manager) AddToCart(line domain.CartLine) error {
	if err := line.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	remote := line
	if i := m.indexByProduct(line.ProductID); i >= 0 {
		l := &m.lines[i]
		l.Quantity += line.Quantity
		l.Version = domain.NextVersion(l.Version, now)
		l.UpdatedAt = now

		remote = *l
		remote.Quantity = line.Quantity
	} else {
		if line.ID == "" {
			line.ID = uuid.NewString()
		}
		line.Version = domain.NextVersion(0, now)
		line.UpdatedAt = now
		m.lines = append(m.lines, line)
		remote = line
	}

	m.mutatedLocked()
	m.enqueueLocked(op{kind: opUpsert, line: remote})
	return nil
}

// UpdateQuantity sets the quantity of a line. Quantities below one leave the
// cart untouched; removal is a separate operation.
func (m *Manager) UpdateQuantity(lineID string, quantity int) error {
	if quantity < 1 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexByID(lineID)
	if i < 0 {
		return domain.ErrLineNotFound
	}
	now := m.now().UTC()
	l := &m.lines[i]
	l.Quantity = quantity
	l.Version = domain.NextVersion(l.Version, now)
	l.UpdatedAt = now

	m.mutatedLocked()
	m.enqueueLocked(op{kind: opSetQuantity, line: *l})
	return nil
}

// RemoveFromCart deletes a line. Unknown ids are ignored.
func (m *Manager) RemoveFromCart(lineID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexByID(lineID)
	if i < 0 {
		return
	}
	removed := m.lines[i]
	m.lines = append(m.lines[:i], m.lines[i+1:]...)

	m.mutatedLocked()
	m.enqueueLocked(op{kind: opDelete, line: removed})
}

// ClearCart empties the local cart. The remote rows are left to the caller.
func (m *Manager) ClearCart() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = []domain.CartLine{}
	m.mutatedLocked()
}

// clearEverywhere empties the local cart, drops the mirror and queues a
// remote delete of every row. The delete runs after the writes already
// queued and before any mutation made once it returns to the caller.
func (m *Manager) clearEverywhere(ctx context.Context) error {
	result := make(chan error, 1)

	m.mu.Lock()
	m.lines = []domain.CartLine{}
	m.seq++
	if m.mirror != nil {
		mctx, cancel := context.WithTimeout(context.Background(), m.opts.MirrorTimeout)
		if err := m.mirror.Delete(mctx, m.userID); err != nil {
			m.log.Warn("cart mirror delete failed", "err", err)
		}
		cancel()
	}
	ok := m.queue.push(op{kind: opDeleteAll, result: result})
	m.mu.Unlock()

	if !ok {
		return ErrClosed
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) Subtotal() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := decimal.Zero
	for _, l := range m.lines {
		total = total.Add(l.Total())
	}
	return total
}

// Lines returns a copy of the current lines in cart order.
func (m *Manager) Lines() []domain.CartLine {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.CartLine, len(m.lines))
	copy(out, m.lines)
	return out
}

// Flush waits until every write queued before the call has been attempted.
func (m *Manager) Flush(ctx context.Context) error {
	barrier := make(chan struct{})
	if !m.queue.push(op{kind: opBarrier, barrier: barrier}) {
		return ErrClosed
	}
	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reconcile drains pending writes and replaces the local cart with the
// remote one. On failure the local cart is kept.
func (m *Manager) Reconcile(ctx context.Context) error {
	for attempt := 0; attempt < reconcileAttempts; attempt++ {
		m.mu.Lock()
		seq := m.seq
		m.mu.Unlock()

		if err := m.Flush(ctx); err != nil {
			return err
		}

		fetchCtx, cancel := context.WithTimeout(ctx, m.opts.SyncTimeout)
		remote, err := m.store.Fetch(fetchCtx, m.userID)
		cancel()
		if err != nil {
			return fmt.Errorf("fetch remote cart: %w", err)
		}

		m.mu.Lock()
		if m.seq != seq {
			m.mu.Unlock()
			continue
		}
		if remote == nil {
			remote = []domain.CartLine{}
		}
		m.lines = remote
		m.mutatedLocked()
		m.mu.Unlock()
		return nil
	}
	return ErrCartChanged
}

// Close stops the sync worker after the queued writes are attempted.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.queue.close()
	})
	<-m.done
}

func (m *Manager) restore(lines []domain.CartLine) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = lines
}

func (m *Manager) indexByProduct(productID string) int {
	for i := range m.lines {
		if m.lines[i].ProductID == productID {
			return i
		}
	}
	return -1
}

func (m *Manager) indexByID(lineID string) int {
	for i := range m.lines {
		if m.lines[i].ID == lineID {
			return i
		}
	}
	return -1
}

// mutatedLocked bumps the mutation counter and saves the mirror. Saving
// under the lock keeps mirror writes in mutation order.
func (m *Manager) mutatedLocked() {
	m.seq++
	if m.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.MirrorTimeout)
	defer cancel()
	if err := m.mirror.Save(ctx, m.userID, m.lines); err != nil {
		m.log.Warn("cart mirror save failed", "err", err)
	}
}

func (m *Manager) enqueueLocked(o op) {
	if !m.queue.push(o) {
		m.log.Warn("cart session closed, remote write dropped", "op", o.kind.String(), "product_id", o.line.ProductID)
	}
}

func (m *Manager) run() {
	defer close(m.done)
	for {
		o, ok := m.queue.pop()
		if !ok {
			return
		}
		m.apply(o)
	}
}

func (m *Manager) apply(o op) {
	if o.kind == opBarrier {
		close(o.barrier)
		return
	}

	ctx, cancel := context.WithTimeout(domain.WithOrigin(context.Background(), m.session), m.opts.SyncTimeout)
	defer cancel()

	var err error
	switch o.kind {
	case opUpsert:
		err = m.store.UpsertIncrement(ctx, m.userID, o.line)
	case opSetQuantity:
		err = m.store.SetQuantity(ctx, m.userID, o.line.ProductID, o.line.Quantity, o.line.Version)
	case opDelete:
		err = m.store.Delete(ctx, m.userID, o.line.ProductID)
	case opDeleteAll:
		err = m.store.DeleteAll(ctx, m.userID)
	}
	if o.result != nil {
		o.result <- err
		return
	}
	if err == nil {
		return
	}

	m.log.Warn("remote cart sync failed", "op", o.kind.String(), "product_id", o.line.ProductID, "err", err)
	if m.notifier != nil {
		m.notifier.Notify(SyncError{
			UserID:    m.userID,
			LineID:    o.line.ID,
			ProductID: o.line.ProductID,
			Op:        o.kind.String(),
			Message:   err.Error(),
			At:        m.now().UTC(),
		})
	}
}
