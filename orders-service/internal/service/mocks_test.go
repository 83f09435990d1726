package service

import (
	"context"
	"sync"

	"github.com/fjod/mood_store/orders-service/internal/domain"
	"github.com/fjod/mood_store/orders-service/internal/invoice"
	"github.com/fjod/mood_store/orders-service/internal/mailer"
	"github.com/fjod/mood_store/orders-service/internal/repository"
	"github.com/fjod/mood_store/product-service/pkg/client"
	"github.com/google/uuid"
)

type MockRepository struct {
	m        sync.Mutex
	orders   map[uuid.UUID]*domain.Order
	keys     map[string]uuid.UUID
	profiles map[string]*domain.CustomerProfile
	events   [][]byte

	CreateErr     error
	GetErr        error
	GetProfileErr error
	UpsertErr     error
	// DuplicateOnCreate simulates a concurrent insert with the same key.
	DuplicateOnCreate *domain.Order
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		orders:   make(map[uuid.UUID]*domain.Order),
		keys:     make(map[string]uuid.UUID),
		profiles: make(map[string]*domain.CustomerProfile),
	}
}

func (r *MockRepository) CreateOrder(_ context.Context, order *domain.Order, key string, event []byte) error {
	r.m.Lock()
	defer r.m.Unlock()
	if r.CreateErr != nil {
		return r.CreateErr
	}
	if r.DuplicateOnCreate != nil {
		r.orders[r.DuplicateOnCreate.ID] = r.DuplicateOnCreate
		r.keys[r.DuplicateOnCreate.UserID+"/"+key] = r.DuplicateOnCreate.ID
		return repository.ErrDuplicateOrder
	}
	r.orders[order.ID] = order
	if key != "" {
		r.keys[order.UserID+"/"+key] = order.ID
	}
	r.events = append(r.events, event)
	return nil
}

func (r *MockRepository) GetOrderByIdempotencyKey(_ context.Context, userID, key string) (*domain.Order, error) {
	r.m.Lock()
	defer r.m.Unlock()
	if r.GetErr != nil {
		return nil, r.GetErr
	}
	id, ok := r.keys[userID+"/"+key]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return r.orders[id], nil
}

func (r *MockRepository) GetOrderForUser(_ context.Context, id uuid.UUID, userID string) (*domain.Order, error) {
	r.m.Lock()
	defer r.m.Unlock()
	if r.GetErr != nil {
		return nil, r.GetErr
	}
	o, ok := r.orders[id]
	if !ok || o.UserID != userID {
		return nil, repository.ErrOrderNotFound
	}
	return o, nil
}

func (r *MockRepository) ListOrdersByUserID(_ context.Context, userID string) ([]*domain.Order, error) {
	r.m.Lock()
	defer r.m.Unlock()
	if r.GetErr != nil {
		return nil, r.GetErr
	}
	out := make([]*domain.Order, 0)
	for _, o := range r.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *MockRepository) GetProfile(_ context.Context, userID string) (*domain.CustomerProfile, error) {
	r.m.Lock()
	defer r.m.Unlock()
	if r.GetProfileErr != nil {
		return nil, r.GetProfileErr
	}
	p, ok := r.profiles[userID]
	if !ok {
		return nil, repository.ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *MockRepository) UpsertProfile(_ context.Context, p *domain.CustomerProfile) error {
	r.m.Lock()
	defer r.m.Unlock()
	if r.UpsertErr != nil {
		return r.UpsertErr
	}
	cp := *p
	r.profiles[p.UserID] = &cp
	return nil
}

type MockCatalog struct {
	Products map[string]client.ProductView
	Err      error
	Calls    int
}

func (c *MockCatalog) GetProduct(_ context.Context, id string) (*client.ProductView, error) {
	c.Calls++
	if c.Err != nil {
		return nil, c.Err
	}
	p, ok := c.Products[id]
	if !ok {
		return nil, client.ErrProductNotFound
	}
	return &p, nil
}

type MockRenderer struct {
	Docs []*invoice.Document
	Err  error
}

func (r *MockRenderer) Render(doc *invoice.Document) ([]byte, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	r.Docs = append(r.Docs, doc)
	return []byte("%PDF-mock"), nil
}

type MockMailer struct {
	Sent []mailer.Invoice
	Err  error
}

func (m *MockMailer) SendInvoice(_ context.Context, inv mailer.Invoice) error {
	if m.Err != nil {
		return m.Err
	}
	m.Sent = append(m.Sent, inv)
	return nil
}
