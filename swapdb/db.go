// Package swapdb implements the durable ledger underneath the escrow,
// auction and settlement engines. It stores every entity in a single bolt
// database, one bucket per keyspace, so that a cross-engine operation such as
// an auction fill creating an escrow lock commits in one serialized
// transaction.
package swapdb

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"
)

var (
	// dbFileName is the default file name of the ledger database.
	dbFileName = "xswap.db"

	// locksBucketKey is a bucket that contains all escrow locks, keyed by
	// the lock id assigned from the bucket sequence.
	//
	// maps: lockID -> serialized lock
	locksBucketKey = []byte("escrow-locks")

	// lockIntentIndexKey is a bucket that maps a settlement intent id to
	// the lock funding it. The settlement pipeline resolves locks through
	// this index when executing a meta order.
	//
	// maps: intentID -> lockID
	lockIntentIndexKey = []byte("escrow-intent-index")

	// auctionsBucketKey is a bucket that contains all dutch auctions,
	// keyed by the auction id assigned from the bucket sequence.
	//
	// maps: auctionID -> serialized auction
	auctionsBucketKey = []byte("auctions")

	// quoteRequestsBucketKey is a bucket that contains all quote
	// requests, keyed by the request id assigned from the bucket
	// sequence. The sequence doubles as the total request counter.
	//
	// maps: requestID -> serialized quote request
	quoteRequestsBucketKey = []byte("quote-requests")

	// metaOrdersBucketKey is a bucket that contains all meta orders,
	// keyed by the order id assigned from the bucket sequence. The
	// sequence doubles as the total order counter.
	//
	// maps: orderID -> serialized meta order
	metaOrdersBucketKey = []byte("meta-orders")

	// intentsBucketKey is a bucket that contains all settlement intents,
	// keyed by their caller-supplied intent id.
	//
	// maps: intentID -> serialized intent
	intentsBucketKey = []byte("intents")

	// solversBucketKey is a bucket that contains the configuration and
	// reputation of every registered solver, keyed by account id.
	//
	// maps: solverAddress -> serialized solver config
	solversBucketKey = []byte("solvers")

	byteOrder = binary.BigEndian

	// ErrNotFound is returned when a referenced entity does not exist in
	// its keyspace.
	ErrNotFound = errors.New("entity not found")
)

// DB is the bolt backed ledger store.
type DB struct {
	db *bbolt.DB
}

// fileExists returns true if the file exists, and false otherwise.
func fileExists(path string) bool {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}

	return true
}

// Open opens, and creates if necessary, the ledger database in the given
// directory.
func Open(dbPath string) (*DB, error) {
	// If the target path for the store doesn't exist, then we'll create
	// it now before we proceed.
	if !fileExists(dbPath) {
		if err := os.MkdirAll(dbPath, 0700); err != nil {
			return nil, err
		}
	}

	path := filepath.Join(dbPath, dbFileName)
	bdb, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}

	// We'll create all the buckets we need if this is the first time
	// we're starting up. If they already exist, then these calls will be
	// noops.
	err = bdb.Update(func(tx *bbolt.Tx) error {
		buckets := [][]byte{
			locksBucketKey, lockIntentIndexKey, auctionsBucketKey,
			quoteRequestsBucketKey, metaOrdersBucketKey,
			intentsBucketKey, solversBucketKey,
		}
		for _, bucket := range buckets {
			_, err := tx.CreateBucketIfNotExists(bucket)
			if err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Infof("Opened ledger database at %v", path)

	return &DB{db: bdb}, nil
}

// Close closes the underlying database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Update executes the given function within a read-write transaction. The
// transaction is fully committed if the function returns nil, and fully
// rolled back otherwise. Writers are serialized by the underlying store,
// which gives every engine operation the single-writer, all-or-nothing
// semantics it relies on.
func (d *DB) Update(fn func(tx *Tx) error) error {
	return d.db.Update(func(btx *bbolt.Tx) error {
		return fn(&Tx{tx: btx})
	})
}

// View executes the given function within a read-only transaction.
func (d *DB) View(fn func(tx *Tx) error) error {
	return d.db.View(func(btx *bbolt.Tx) error {
		return fn(&Tx{tx: btx})
	})
}

// Tx is a single ledger transaction. All entity accessors hang off of it so
// that multi-entity operations are naturally atomic.
type Tx struct {
	tx *bbolt.Tx
}

// itob returns an 8-byte big endian representation of v.
func itob(v uint64) []byte {
	b := make([]byte, 8)
	byteOrder.PutUint64(b, v)
	return b
}
