package store

import (
	"encoding/json"
	"time"

	bolt "github.com/boltdb/bolt"

	"github.com/marlonbarreto-git/warranty-checkout/internal/model"
)

const attemptsBucket = "checkout_attempts"

// BoltAttempts keeps checkout attempts in an embedded BoltDB file.
type BoltAttempts struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) the database at path and ensures the bucket exists.
func OpenBolt(path string) (*BoltAttempts, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(attemptsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltAttempts{db: db}, nil
}

// Close releases the database file lock.
func (s *BoltAttempts) Close() error {
	return s.db.Close()
}

// Save writes the attempt under its token, replacing any previous version.
func (s *BoltAttempts) Save(a *model.CheckoutAttempt) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(attemptsBucket)).Put([]byte(a.Token), data)
	})
}

// SaveIfVersion re-reads the stored attempt inside the write transaction, so
// two callers holding the same version cannot both win.
func (s *BoltAttempts) SaveIfVersion(a *model.CheckoutAttempt, version int) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(attemptsBucket))
		data, err := casEncode(b.Get([]byte(a.Token)), a, version)
		if err != nil {
			return err
		}
		return b.Put([]byte(a.Token), data)
	})
}

// Get retrieves an attempt by token. Returns ErrNotFound if absent.
func (s *BoltAttempts) Get(token string) (*model.CheckoutAttempt, error) {
	var a model.CheckoutAttempt
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(attemptsBucket)).Get([]byte(token))
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, &a)
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}
