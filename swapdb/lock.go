package swapdb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/xswaplabs/xswap"
)

// LockID uniquely identifies an escrow lock. Ids are assigned from the lock
// bucket sequence, so they are monotonically increasing and collision free by
// construction.
type LockID uint64

// LockState represents the lifecycle state of an escrow lock.
type LockState uint8

const (
	// LockOpen is the initial state. The lock can be claimed against the
	// preimage or refunded after the recovery timelock.
	LockOpen LockState = 0

	// LockClaimed is the terminal state of a lock whose preimage was
	// revealed in time. Funds moved to the claim recipient.
	LockClaimed LockState = 1

	// LockRefunded is the terminal state of a lock that expired
	// unclaimed. Funds moved back to the maker.
	LockRefunded LockState = 2
)

// String returns a human readable state name.
func (s LockState) String() string {
	switch s {
	case LockOpen:
		return "Open"
	case LockClaimed:
		return "Claimed"
	case LockRefunded:
		return "Refunded"
	default:
		return "Unknown"
	}
}

// Lock is a single atomic-swap leg. Value held under a lock is released
// either against the hashlock preimage before the recovery timelock, or back
// to the maker after it, never both.
type Lock struct {
	// ID is the store-assigned lock id.
	ID LockID

	// Maker is the depositor the lock holds value from.
	Maker xswap.AccountID

	// Receiver is the designated claim recipient. May be unset only when
	// the lock is in resolver-exclusive mode.
	Receiver xswap.AccountID

	// Resolver is the privileged claimant during the exclusivity window.
	// May be assigned after creation, first assignment wins.
	Resolver xswap.AccountID

	// Token is the asset held under the lock.
	Token xswap.Token

	// Amount is the value held under the lock.
	Amount xswap.Amount

	// Hashlock commits to the preimage that releases the lock.
	Hashlock lntypes.Hash

	// TimelockExclusive ends the resolver-only claim window. The zero
	// time means no timed exclusivity window is configured.
	TimelockExclusive time.Time

	// TimelockRecovery is the instant the lock becomes refundable and
	// stops being claimable.
	TimelockRecovery time.Time

	// State is the lifecycle state of the lock.
	State LockState

	// IntentID optionally ties the lock to a settlement intent. Used by
	// the settlement pipeline to resolve the lock a meta order executes
	// against.
	IntentID string

	// CreatedAt is the store time the lock was created.
	CreatedAt time.Time
}

// serializeLock serializes a lock into its on-disk representation.
func serializeLock(l *Lock) ([]byte, error) {
	var b bytes.Buffer

	if err := writeString(&b, string(l.Maker)); err != nil {
		return nil, err
	}
	if err := writeString(&b, string(l.Receiver)); err != nil {
		return nil, err
	}
	if err := writeString(&b, string(l.Resolver)); err != nil {
		return nil, err
	}
	if err := writeString(&b, string(l.Token)); err != nil {
		return nil, err
	}
	if err := binary.Write(&b, byteOrder, uint64(l.Amount)); err != nil {
		return nil, err
	}
	if _, err := b.Write(l.Hashlock[:]); err != nil {
		return nil, err
	}
	if err := writeTime(&b, l.TimelockExclusive); err != nil {
		return nil, err
	}
	if err := writeTime(&b, l.TimelockRecovery); err != nil {
		return nil, err
	}
	if err := binary.Write(&b, byteOrder, uint8(l.State)); err != nil {
		return nil, err
	}
	if err := writeString(&b, l.IntentID); err != nil {
		return nil, err
	}
	if err := writeTime(&b, l.CreatedAt); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// deserializeLock deserializes a lock from its on-disk representation.
func deserializeLock(id LockID, data []byte) (*Lock, error) {
	r := bytes.NewReader(data)
	lock := Lock{ID: id}

	maker, err := readString(r)
	if err != nil {
		return nil, err
	}
	lock.Maker = xswap.AccountID(maker)

	receiver, err := readString(r)
	if err != nil {
		return nil, err
	}
	lock.Receiver = xswap.AccountID(receiver)

	resolver, err := readString(r)
	if err != nil {
		return nil, err
	}
	lock.Resolver = xswap.AccountID(resolver)

	token, err := readString(r)
	if err != nil {
		return nil, err
	}
	lock.Token = xswap.Token(token)

	var amount uint64
	if err := binary.Read(r, byteOrder, &amount); err != nil {
		return nil, err
	}
	lock.Amount = xswap.Amount(amount)

	if _, err := io.ReadFull(r, lock.Hashlock[:]); err != nil {
		return nil, err
	}

	if lock.TimelockExclusive, err = readTime(r); err != nil {
		return nil, err
	}
	if lock.TimelockRecovery, err = readTime(r); err != nil {
		return nil, err
	}

	var state uint8
	if err := binary.Read(r, byteOrder, &state); err != nil {
		return nil, err
	}
	lock.State = LockState(state)

	if lock.IntentID, err = readString(r); err != nil {
		return nil, err
	}
	if lock.CreatedAt, err = readTime(r); err != nil {
		return nil, err
	}

	return &lock, nil
}

// CreateLock assigns the next lock id, persists the lock and, if the lock
// references a settlement intent, records it in the intent index.
func (tx *Tx) CreateLock(l *Lock) (LockID, error) {
	bucket := tx.tx.Bucket(locksBucketKey)
	if bucket == nil {
		return 0, fmt.Errorf("bucket %s does not exist",
			locksBucketKey)
	}

	seq, err := bucket.NextSequence()
	if err != nil {
		return 0, err
	}
	l.ID = LockID(seq)

	data, err := serializeLock(l)
	if err != nil {
		return 0, err
	}

	if err := bucket.Put(itob(seq), data); err != nil {
		return 0, err
	}

	if l.IntentID != "" {
		index := tx.tx.Bucket(lockIntentIndexKey)
		if index == nil {
			return 0, fmt.Errorf("bucket %s does not exist",
				lockIntentIndexKey)
		}

		err := index.Put([]byte(l.IntentID), itob(seq))
		if err != nil {
			return 0, err
		}
	}

	return l.ID, nil
}

// Lock fetches the lock with the given id, or ErrNotFound.
func (tx *Tx) Lock(id LockID) (*Lock, error) {
	bucket := tx.tx.Bucket(locksBucketKey)
	if bucket == nil {
		return nil, fmt.Errorf("bucket %s does not exist",
			locksBucketKey)
	}

	data := bucket.Get(itob(uint64(id)))
	if data == nil {
		return nil, ErrNotFound
	}

	return deserializeLock(id, data)
}

// PutLock overwrites an existing lock.
func (tx *Tx) PutLock(l *Lock) error {
	bucket := tx.tx.Bucket(locksBucketKey)
	if bucket == nil {
		return fmt.Errorf("bucket %s does not exist", locksBucketKey)
	}

	data, err := serializeLock(l)
	if err != nil {
		return err
	}

	return bucket.Put(itob(uint64(l.ID)), data)
}

// LockIDByIntent resolves the lock funding the given settlement intent, or
// ErrNotFound if no lock references it.
func (tx *Tx) LockIDByIntent(intentID string) (LockID, error) {
	index := tx.tx.Bucket(lockIntentIndexKey)
	if index == nil {
		return 0, fmt.Errorf("bucket %s does not exist",
			lockIntentIndexKey)
	}

	data := index.Get([]byte(intentID))
	if data == nil {
		return 0, ErrNotFound
	}

	return LockID(byteOrder.Uint64(data)), nil
}
