// Package storage persists controls, certifications and scan snapshots in
// an embedded bbolt database. The engine core only ever talks to the Store
// interface; network-backed persistence lives behind the same boundary.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"go.etcd.io/bbolt"
)

// Bucket names.
var (
	BucketCertifications = []byte("certifications")
	BucketControls       = []byte("controls")
	BucketScans          = []byte("scans")
)

// ErrNotFound is returned when a key does not exist in a bucket.
var ErrNotFound = errors.New("entity not found")

// Store is the persistence boundary consumed by the aggregator.
type Store interface {
	SaveOrUpdate(bucket []byte, key string, entity any) error
	Get(bucket []byte, key string, entity any) error
	Delete(bucket []byte, key string) error
	List(bucket []byte, fn func(key string, data []byte) error) error
	Close() error
}

// BoltStore is the embedded implementation of Store.
type BoltStore struct {
	db *bbolt.DB
}

var _ Store = (*BoltStore)(nil)

// Open creates or opens the database under dir.
func Open(dir string) (*BoltStore, error) {
	db, err := bbolt.Open(filepath.Join(dir, "assure.db"), 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{BucketCertifications, BucketControls, BucketScans} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// SaveOrUpdate writes the JSON encoding of entity under key.
func (s *BoltStore) SaveOrUpdate(bucket []byte, key string, entity any) error {
	value, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to encode entity: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), value)
	})
}

// Get decodes the entity stored under key into entity.
func (s *BoltStore) Get(bucket []byte, key string, entity any) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucket).Get([]byte(key))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, entity)
	})
}

// Delete removes the entity stored under key. Deleting a missing key is
// not an error.
func (s *BoltStore) Delete(bucket []byte, key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).Delete([]byte(key))
	})
}

// List iterates the bucket in key order.
func (s *BoltStore) List(bucket []byte, fn func(key string, data []byte) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(k, v []byte) error {
			return fn(string(k), v)
		})
	})
}
