package store

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/marlonbarreto-git/warranty-checkout/internal/model"
)

// MemoryAttempts provides thread-safe in-process storage for attempts.
type MemoryAttempts struct {
	mu       sync.RWMutex
	attempts map[string][]byte
}

// NewMemoryAttempts creates a new empty attempt store.
func NewMemoryAttempts() *MemoryAttempts {
	return &MemoryAttempts{attempts: make(map[string][]byte)}
}

// Save stores a copy of the attempt.
func (s *MemoryAttempts) Save(a *model.CheckoutAttempt) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[a.Token] = data
	return nil
}

func (s *MemoryAttempts) SaveIfVersion(a *model.CheckoutAttempt, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := casEncode(s.attempts[a.Token], a, version)
	if err != nil {
		return err
	}
	s.attempts[a.Token] = data
	return nil
}

// Get retrieves a copy of the attempt by token.
func (s *MemoryAttempts) Get(token string) (*model.CheckoutAttempt, error) {
	s.mu.RLock()
	data, ok := s.attempts[token]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	var a model.CheckoutAttempt
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// MemoryOrders keeps orders in process, for demo mode and tests.
type MemoryOrders struct {
	mu     sync.Mutex
	orders map[string]model.Order
}

// NewMemoryOrders creates an empty order store.
func NewMemoryOrders() *MemoryOrders {
	return &MemoryOrders{orders: make(map[string]model.Order)}
}

func (s *MemoryOrders) Create(_ context.Context, o model.Order) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.orders[o.Token]; exists {
		return false, nil
	}
	s.orders[o.Token] = o
	return true, nil
}

// Get returns the order recorded for a token.
func (s *MemoryOrders) Get(token string) (model.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[token]
	return o, ok
}
