package manager

import (
	"context"
	"fmt"
	"sync"

	"github.com/fjod/mood_store/cart-service/internal/domain"
)

type storeCall struct {
	op        string
	productID string
	quantity  int
	origin    string
}

// memStore is an in-memory remote store keyed by (user, product).
type memStore struct {
	m        sync.RWMutex
	rows     map[string][]domain.CartLine
	calls    []storeCall
	writeErr error
	fetchErr error
	events   chan domain.ChangeEvent

	// deleteAllEntered and deleteAllRelease hold DeleteAll before it
	// touches the rows.
	deleteAllEntered chan struct{}
	deleteAllRelease chan struct{}
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string][]domain.CartLine)}
}

func (s *memStore) record(ctx context.Context, op, productID string, qty int) {
	s.calls = append(s.calls, storeCall{op: op, productID: productID, quantity: qty, origin: domain.OriginFrom(ctx)})
}

func (s *memStore) Fetch(_ context.Context, userID string) ([]domain.CartLine, error) {
	s.m.RLock()
	defer s.m.RUnlock()
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	out := make([]domain.CartLine, len(s.rows[userID]))
	copy(out, s.rows[userID])
	return out, nil
}

func (s *memStore) UpsertIncrement(ctx context.Context, userID string, line domain.CartLine) error {
	s.m.Lock()
	defer s.m.Unlock()
	s.record(ctx, "upsert", line.ProductID, line.Quantity)
	if s.writeErr != nil {
		return s.writeErr
	}
	rows := s.rows[userID]
	for i := range rows {
		if rows[i].ProductID == line.ProductID {
			rows[i].Quantity += line.Quantity
			if line.Version > rows[i].Version {
				rows[i].Version = line.Version
			}
			return nil
		}
	}
	s.rows[userID] = append(rows, line)
	return nil
}

func (s *memStore) SetQuantity(ctx context.Context, userID, productID string, quantity int, version int64) error {
	s.m.Lock()
	defer s.m.Unlock()
	s.record(ctx, "set_quantity", productID, quantity)
	if s.writeErr != nil {
		return s.writeErr
	}
	rows := s.rows[userID]
	for i := range rows {
		if rows[i].ProductID == productID {
			if rows[i].Version >= version {
				return domain.ErrStaleWrite
			}
			rows[i].Quantity = quantity
			rows[i].Version = version
			return nil
		}
	}
	return domain.ErrLineNotFound
}

func (s *memStore) Delete(ctx context.Context, userID, productID string) error {
	s.m.Lock()
	defer s.m.Unlock()
	s.record(ctx, "delete", productID, 0)
	if s.writeErr != nil {
		return s.writeErr
	}
	rows := s.rows[userID]
	for i := range rows {
		if rows[i].ProductID == productID {
			s.rows[userID] = append(rows[:i], rows[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *memStore) DeleteAll(ctx context.Context, userID string) error {
	if s.deleteAllEntered != nil {
		s.deleteAllEntered <- struct{}{}
		<-s.deleteAllRelease
	}
	s.m.Lock()
	defer s.m.Unlock()
	s.record(ctx, "delete_all", "", 0)
	if s.writeErr != nil {
		return s.writeErr
	}
	delete(s.rows, userID)
	return nil
}

func (s *memStore) Watch(ctx context.Context, _ string) (<-chan domain.ChangeEvent, error) {
	if s.events == nil {
		return nil, fmt.Errorf("change feed not supported")
	}
	out := make(chan domain.ChangeEvent)
	go func() {
		defer close(out)
		for {
			select {
			case ev := <-s.events:
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (s *memStore) setRows(userID string, lines ...domain.CartLine) {
	s.m.Lock()
	defer s.m.Unlock()
	s.rows[userID] = lines
}

func (s *memStore) row(userID, productID string) (domain.CartLine, bool) {
	s.m.RLock()
	defer s.m.RUnlock()
	for _, l := range s.rows[userID] {
		if l.ProductID == productID {
			return l, true
		}
	}
	return domain.CartLine{}, false
}

func (s *memStore) callLog() []storeCall {
	s.m.RLock()
	defer s.m.RUnlock()
	out := make([]storeCall, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *memStore) failWrites(err error) {
	s.m.Lock()
	defer s.m.Unlock()
	s.writeErr = err
}

func (s *memStore) failFetch(err error) {
	s.m.Lock()
	defer s.m.Unlock()
	s.fetchErr = err
}
