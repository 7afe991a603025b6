package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/chhavsingh/180protocol/protocol"
)

var receiptBucket = []byte("delivery-receipts")

// BoltStore implements ReceiptStore in an embedded bbolt file.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens or creates the store at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(receiptBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

// SaveReceipt stores the signed receipt under its id.
func (s *BoltStore) SaveReceipt(_ context.Context, signed *protocol.Signed[DeliveryReceipt]) error {
	buf, err := json.Marshal(signed)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(receiptBucket).Put([]byte(signed.Object.ID), buf)
	})
}

// LoadReceipt returns the receipt with id.
func (s *BoltStore) LoadReceipt(_ context.Context, id string) (*protocol.Signed[DeliveryReceipt], error) {
	var signed *protocol.Signed[DeliveryReceipt]
	err := s.db.View(func(tx *bbolt.Tx) error {
		buf := tx.Bucket(receiptBucket).Get([]byte(id))
		if buf == nil {
			return ErrReceiptNotFound
		}
		var err error
		signed, err = protocol.UnmarshalMessage[protocol.Signed[DeliveryReceipt]](buf)
		return err
	})
	return signed, err
}

// ListReceipts returns all receipts, oldest first.
func (s *BoltStore) ListReceipts(_ context.Context) ([]*protocol.Signed[DeliveryReceipt], error) {
	var out []*protocol.Signed[DeliveryReceipt]
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(receiptBucket).ForEach(func(k, v []byte) error {
			signed, err := protocol.UnmarshalMessage[protocol.Signed[DeliveryReceipt]](v)
			if err != nil {
				return fmt.Errorf("receipt %s: %w", k, err)
			}
			out = append(out, signed)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortReceipts(out)
	return out, nil
}

// Close closes the database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
