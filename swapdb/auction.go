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

// AuctionID uniquely identifies a dutch auction. Ids are assigned from the
// auction bucket sequence.
type AuctionID uint64

// Auction is a decaying-price sell order. The offered rate falls linearly
// from StartRate to EndRate over Duration, and every fill hands the filled
// portion into an escrow lock gated by the auction hashlock.
type Auction struct {
	// ID is the store-assigned auction id.
	ID AuctionID

	// Maker is the account selling the source amount.
	Maker xswap.AccountID

	// SourceToken is the asset sold.
	SourceToken xswap.Token

	// SourceAmount is the amount still available. It only ever
	// decreases.
	SourceAmount xswap.Amount

	// DestinationChain names the chain the maker wants to be paid on.
	// Opaque to the engine.
	DestinationChain string

	// DestinationToken names the asset the maker wants to be paid in.
	// Opaque to the engine.
	DestinationToken string

	// DestinationAccount names the account the maker wants to be paid
	// to. Opaque to the engine.
	DestinationAccount string

	// StartRate is the opening rate in destination units per 100 source
	// units. Strictly greater than EndRate.
	StartRate uint64

	// EndRate is the floor rate. The offered rate never falls below it,
	// even after the auction expires.
	EndRate uint64

	// StartTime is when the decay started.
	StartTime time.Time

	// Duration is the length of the decay window.
	Duration time.Duration

	// Timelock is the recovery deadline handed to every escrow lock
	// created by a fill.
	Timelock time.Time

	// Active reports whether the auction can still be filled. It flips
	// to false exactly when SourceAmount reaches zero, or on
	// cancellation.
	Active bool

	// Hashlock is the preimage commitment pinned by the first fill. Nil
	// until then, and immutable afterwards.
	Hashlock *lntypes.Hash
}

// serializeAuction serializes an auction into its on-disk representation.
func serializeAuction(a *Auction) ([]byte, error) {
	var b bytes.Buffer

	if err := writeString(&b, string(a.Maker)); err != nil {
		return nil, err
	}
	if err := writeString(&b, string(a.SourceToken)); err != nil {
		return nil, err
	}
	err := binary.Write(&b, byteOrder, uint64(a.SourceAmount))
	if err != nil {
		return nil, err
	}
	if err := writeString(&b, a.DestinationChain); err != nil {
		return nil, err
	}
	if err := writeString(&b, a.DestinationToken); err != nil {
		return nil, err
	}
	if err := writeString(&b, a.DestinationAccount); err != nil {
		return nil, err
	}
	if err := binary.Write(&b, byteOrder, a.StartRate); err != nil {
		return nil, err
	}
	if err := binary.Write(&b, byteOrder, a.EndRate); err != nil {
		return nil, err
	}
	if err := writeTime(&b, a.StartTime); err != nil {
		return nil, err
	}
	err = binary.Write(&b, byteOrder, int64(a.Duration))
	if err != nil {
		return nil, err
	}
	if err := writeTime(&b, a.Timelock); err != nil {
		return nil, err
	}
	if err := binary.Write(&b, byteOrder, a.Active); err != nil {
		return nil, err
	}

	hasHashlock := a.Hashlock != nil
	if err := binary.Write(&b, byteOrder, hasHashlock); err != nil {
		return nil, err
	}
	if hasHashlock {
		if _, err := b.Write(a.Hashlock[:]); err != nil {
			return nil, err
		}
	}

	return b.Bytes(), nil
}

// deserializeAuction deserializes an auction from its on-disk representation.
func deserializeAuction(id AuctionID, data []byte) (*Auction, error) {
	r := bytes.NewReader(data)
	auction := Auction{ID: id}

	maker, err := readString(r)
	if err != nil {
		return nil, err
	}
	auction.Maker = xswap.AccountID(maker)

	sourceToken, err := readString(r)
	if err != nil {
		return nil, err
	}
	auction.SourceToken = xswap.Token(sourceToken)

	var sourceAmount uint64
	if err := binary.Read(r, byteOrder, &sourceAmount); err != nil {
		return nil, err
	}
	auction.SourceAmount = xswap.Amount(sourceAmount)

	if auction.DestinationChain, err = readString(r); err != nil {
		return nil, err
	}
	if auction.DestinationToken, err = readString(r); err != nil {
		return nil, err
	}
	if auction.DestinationAccount, err = readString(r); err != nil {
		return nil, err
	}
	if err := binary.Read(r, byteOrder, &auction.StartRate); err != nil {
		return nil, err
	}
	if err := binary.Read(r, byteOrder, &auction.EndRate); err != nil {
		return nil, err
	}
	if auction.StartTime, err = readTime(r); err != nil {
		return nil, err
	}

	var duration int64
	if err := binary.Read(r, byteOrder, &duration); err != nil {
		return nil, err
	}
	auction.Duration = time.Duration(duration)

	if auction.Timelock, err = readTime(r); err != nil {
		return nil, err
	}
	if err := binary.Read(r, byteOrder, &auction.Active); err != nil {
		return nil, err
	}

	var hasHashlock bool
	if err := binary.Read(r, byteOrder, &hasHashlock); err != nil {
		return nil, err
	}
	if hasHashlock {
		var hashlock lntypes.Hash
		if _, err := io.ReadFull(r, hashlock[:]); err != nil {
			return nil, err
		}
		auction.Hashlock = &hashlock
	}

	return &auction, nil
}

// CreateAuction assigns the next auction id and persists the auction.
func (tx *Tx) CreateAuction(a *Auction) (AuctionID, error) {
	bucket := tx.tx.Bucket(auctionsBucketKey)
	if bucket == nil {
		return 0, fmt.Errorf("bucket %s does not exist",
			auctionsBucketKey)
	}

	seq, err := bucket.NextSequence()
	if err != nil {
		return 0, err
	}
	a.ID = AuctionID(seq)

	data, err := serializeAuction(a)
	if err != nil {
		return 0, err
	}

	if err := bucket.Put(itob(seq), data); err != nil {
		return 0, err
	}

	return a.ID, nil
}

// Auction fetches the auction with the given id, or ErrNotFound.
func (tx *Tx) Auction(id AuctionID) (*Auction, error) {
	bucket := tx.tx.Bucket(auctionsBucketKey)
	if bucket == nil {
		return nil, fmt.Errorf("bucket %s does not exist",
			auctionsBucketKey)
	}

	data := bucket.Get(itob(uint64(id)))
	if data == nil {
		return nil, ErrNotFound
	}

	return deserializeAuction(id, data)
}

// PutAuction overwrites an existing auction.
func (tx *Tx) PutAuction(a *Auction) error {
	bucket := tx.tx.Bucket(auctionsBucketKey)
	if bucket == nil {
		return fmt.Errorf("bucket %s does not exist",
			auctionsBucketKey)
	}

	data, err := serializeAuction(a)
	if err != nil {
		return err
	}

	return bucket.Put(itob(uint64(a.ID)), data)
}
