package reimbursement

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	tripBucket    = "trips"
	invoiceBucket = "invoices"
	claimBucket   = "claims"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("not found")

// DB defines the interface for workspace persistence
type DB interface {
	SaveTrip(trip *TripRecord) error
	GetTrip(id string) (*TripRecord, error)
	ListTrips() ([]*TripRecord, error)
	DeleteTrip(id string) error

	SaveInvoice(invoice *InvoiceRecord) error
	GetInvoice(id string) (*InvoiceRecord, error)
	ListInvoices() ([]*InvoiceRecord, error)
	DeleteInvoice(id string) error

	SaveClaim(c *ClaimRecord) error
	GetClaim(id string) (*ClaimRecord, error)
	ListClaims() ([]*ClaimRecord, error)

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB opens the database at path and creates its buckets
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{tripBucket, invoiceBucket, claimBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

func put(db *bbolt.DB, bucket, id string, v any) error {
	return db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshaling %s record: %w", bucket, err)
		}
		return tx.Bucket([]byte(bucket)).Put([]byte(id), data)
	})
}

func get[T any](db *bbolt.DB, bucket, id string) (*T, error) {
	var v T
	err := db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucket)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%s record %s: %w", bucket, id, ErrNotFound)
		}
		return json.Unmarshal(data, &v)
	})
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func list[T any](db *bbolt.DB, bucket string) ([]*T, error) {
	records := []*T{}
	err := db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucket)).ForEach(func(k, data []byte) error {
			var v T
			if err := json.Unmarshal(data, &v); err != nil {
				return fmt.Errorf("unmarshaling %s record %s: %w", bucket, k, err)
			}
			records = append(records, &v)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func del(db *bbolt.DB, bucket, id string) error {
	return db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b.Get([]byte(id)) == nil {
			return fmt.Errorf("%s record %s: %w", bucket, id, ErrNotFound)
		}
		return b.Delete([]byte(id))
	})
}

// SaveTrip saves a trip, replacing any trip with the same ID
func (b *BoltDB) SaveTrip(trip *TripRecord) error {
	return put(b.db, tripBucket, trip.ID, trip)
}

// GetTrip retrieves a trip by ID
func (b *BoltDB) GetTrip(id string) (*TripRecord, error) {
	return get[TripRecord](b.db, tripBucket, id)
}

// ListTrips returns all trips in key order
func (b *BoltDB) ListTrips() ([]*TripRecord, error) {
	return list[TripRecord](b.db, tripBucket)
}

// DeleteTrip removes a trip
func (b *BoltDB) DeleteTrip(id string) error {
	return del(b.db, tripBucket, id)
}

// SaveInvoice saves an invoice, replacing any invoice with the same ID
func (b *BoltDB) SaveInvoice(invoice *InvoiceRecord) error {
	return put(b.db, invoiceBucket, invoice.ID, invoice)
}

// GetInvoice retrieves an invoice by ID
func (b *BoltDB) GetInvoice(id string) (*InvoiceRecord, error) {
	return get[InvoiceRecord](b.db, invoiceBucket, id)
}

// ListInvoices returns all invoices in key order
func (b *BoltDB) ListInvoices() ([]*InvoiceRecord, error) {
	return list[InvoiceRecord](b.db, invoiceBucket)
}

// DeleteInvoice removes an invoice
func (b *BoltDB) DeleteInvoice(id string) error {
	return del(b.db, invoiceBucket, id)
}

// SaveClaim saves a generated claim
func (b *BoltDB) SaveClaim(c *ClaimRecord) error {
	return put(b.db, claimBucket, c.ID, c)
}

// GetClaim retrieves a claim by ID
func (b *BoltDB) GetClaim(id string) (*ClaimRecord, error) {
	return get[ClaimRecord](b.db, claimBucket, id)
}

// ListClaims returns all claims in key order
func (b *BoltDB) ListClaims() ([]*ClaimRecord, error) {
	return list[ClaimRecord](b.db, claimBucket)
}

// Close closes the database
func (b *BoltDB) Close() error {
	return b.db.Close()
}
