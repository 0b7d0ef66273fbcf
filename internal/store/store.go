// Package store persists checkout attempts and finalized orders.
//
// Attempts are kept server-side keyed by their opaque token so that partner
// callbacks carry only the token instead of the whole order.
package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/marlonbarreto-git/warranty-checkout/internal/model"
)

var (
	// ErrNotFound is returned when no attempt exists for a token.
	ErrNotFound = errors.New("checkout attempt not found")
	// ErrConflict is returned when the stored attempt changed since it was read.
	ErrConflict = errors.New("checkout attempt was modified concurrently")
)

// Attempts stores checkout attempts by token.
type Attempts interface {
	Save(a *model.CheckoutAttempt) error
	Get(token string) (*model.CheckoutAttempt, error)
	// SaveIfVersion stores a only if the stored copy is still at version,
	// and bumps a.Version on success. It returns ErrConflict otherwise.
	SaveIfVersion(a *model.CheckoutAttempt, version int) error
}

type versioned struct {
	Version int `json:"version"`
}

// casEncode checks the stored bytes against version and encodes a at the
// next version.
func casEncode(stored []byte, a *model.CheckoutAttempt, version int) ([]byte, error) {
	if stored == nil {
		return nil, ErrNotFound
	}
	var cur versioned
	if err := json.Unmarshal(stored, &cur); err != nil {
		return nil, err
	}
	if cur.Version != version {
		return nil, ErrConflict
	}

	next := *a
	next.Version = version + 1
	data, err := json.Marshal(&next)
	if err != nil {
		return nil, err
	}
	a.Version = next.Version
	return data, nil
}

// Orders records finalized purchases.
type Orders interface {
	// Create records the order. Creating the same token twice is a no-op.
	Create(ctx context.Context, o model.Order) (created bool, err error)
}
