// Package boltstore keeps command idempotency records in an embedded BoltDB file for
// single-node deployments that run without MongoDB.
package boltstore

import (
	"context"
	"encoding/json"
	"time"

	bolt "github.com/boltdb/bolt"

	"roomies/internal/app/middleware"
)

const bucketName = "idempotency"

type IdempotencyStore struct {
	db  *bolt.DB
	now func() time.Time
}

// Open opens (or creates) the database at path and ensures the bucket exists.
func Open(path string) (*IdempotencyStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &IdempotencyStore{db: db, now: time.Now}, nil
}

func (s *IdempotencyStore) Close() error {
	return s.db.Close()
}

type record struct {
	Fingerprint string    `json:"fingerprint"`
	Payload     []byte    `json:"payload"`
	OccurredAt  time.Time `json:"occurred_at"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}

// Get returns the stored record. Expired records read as missing.
func (s *IdempotencyStore) Get(_ context.Context, key string) (middleware.IdempotencyRecord, bool, error) {
	var (
		rec   record
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketName)).Get([]byte(key))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &rec)
	})
	if err != nil || !found {
		return middleware.IdempotencyRecord{}, false, err
	}
	out := middleware.IdempotencyRecord{
		Key:         key,
		Fingerprint: rec.Fingerprint,
		Payload:     rec.Payload,
		OccurredAt:  rec.OccurredAt,
		ExpiresAt:   rec.ExpiresAt,
	}
	if out.Expired(s.now()) {
		return middleware.IdempotencyRecord{}, false, nil
	}
	return out, true, nil
}

func (s *IdempotencyStore) Save(_ context.Context, rec middleware.IdempotencyRecord) error {
	data, err := json.Marshal(record{
		Fingerprint: rec.Fingerprint,
		Payload:     rec.Payload,
		OccurredAt:  rec.OccurredAt,
		ExpiresAt:   rec.ExpiresAt,
	})
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(rec.Key), data)
	})
}

// Purge deletes expired records and returns how many were removed.
func (s *IdempotencyStore) Purge(now time.Time) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		var expired [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var rec record
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if !rec.ExpiresAt.IsZero() && !now.Before(rec.ExpiresAt) {
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range expired {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(expired)
		return nil
	})
	return removed, err
}

var _ middleware.IdempotencyStore = (*IdempotencyStore)(nil)
