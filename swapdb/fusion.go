package swapdb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/xswaplabs/xswap"
	"github.com/xswaplabs/xswap/attest"
)

// RequestID uniquely identifies a quote request. Ids are assigned from the
// quote request bucket sequence, so two in-flight requests can never collide.
type RequestID uint64

// OrderID uniquely identifies a meta order. Ids are assigned from the meta
// order bucket sequence.
type OrderID uint64

// IntentState represents the lifecycle state of a settlement intent.
type IntentState uint8

const (
	// IntentPending means the intent was quoted but not yet executed.
	IntentPending IntentState = 0

	// IntentExecuted is the terminal state of a settled intent.
	IntentExecuted IntentState = 1

	// IntentFailed is the terminal state of an intent whose settlement
	// failed downstream. A failed intent is never retried, a fresh
	// request must be submitted instead.
	IntentFailed IntentState = 2
)

// String returns a human readable state name.
func (s IntentState) String() string {
	switch s {
	case IntentPending:
		return "Pending"
	case IntentExecuted:
		return "Executed"
	case IntentFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// QuoteRequest is a user's ask for a cross-chain price.
type QuoteRequest struct {
	// ID is the store-assigned request id.
	ID RequestID

	// Requester is the account that asked for the quote and that the
	// resulting intent belongs to.
	Requester xswap.AccountID

	// FromToken is the asset the requester sells.
	FromToken xswap.Token

	// ToToken is the asset the requester buys.
	ToToken xswap.Token

	// FromAmount is the amount sold.
	FromAmount xswap.Amount

	// ToAmount is the quoted net amount. Zero until a solver quotes.
	ToAmount xswap.Amount

	// Deadline is the instant the request stops being quotable.
	Deadline time.Time

	// IntentID references the settlement intent. Empty until quoted.
	IntentID string

	// Executed reports whether a quote was generated for this request.
	Executed bool
}

// MetaOrder is a solver's signed commitment to fill a quote request.
type MetaOrder struct {
	// ID is the store-assigned order id.
	ID OrderID

	// Solver is the account of the solver that generated the quote.
	// Reputation feedback from execution lands on this account.
	Solver xswap.AccountID

	// FromToken is the asset sold, copied from the request.
	FromToken xswap.Token

	// ToToken is the asset bought, copied from the request.
	ToToken xswap.Token

	// FromAmount is the amount sold, copied from the request.
	FromAmount xswap.Amount

	// ToAmount is the net amount after the solver fee.
	ToAmount xswap.Amount

	// Deadline is the instant the order stops being executable, copied
	// from the request.
	Deadline time.Time

	// IntentID references the settlement intent this order executes.
	IntentID string

	// Signature authorizes execution of the intent.
	Signature attest.Signature

	// Executed reports whether the order settled.
	Executed bool
}

// Intent is the user facing record of a requested swap and its lifecycle.
type Intent struct {
	// IntentID is the caller-supplied intent id.
	IntentID string

	// User is the account the swap settles for.
	User xswap.AccountID

	// FromToken is the asset sold.
	FromToken xswap.Token

	// ToToken is the asset bought.
	ToToken xswap.Token

	// FromAmount is the amount sold.
	FromAmount xswap.Amount

	// ToAmount is the net amount bought.
	ToAmount xswap.Amount

	// Deadline is the settlement deadline.
	Deadline time.Time

	// State is the lifecycle state of the intent.
	State IntentState
}

// SolverConfig is the registration record and reputation of a solver.
type SolverConfig struct {
	// Address is the solver's account id.
	Address xswap.AccountID

	// MinQuoteAmount is the smallest quote the solver will honor.
	MinQuoteAmount xswap.Amount

	// MaxQuoteAmount is the largest quote the solver will honor.
	MaxQuoteAmount xswap.Amount

	// FeeBps is the solver fee in basis points, at most 1000.
	FeeBps uint32

	// Active reports whether the solver may generate quotes.
	Active bool

	// Reputation is the solver's score. It starts at 1000, has no
	// ceiling and never goes below zero. Only the settlement pipeline
	// mutates it.
	Reputation uint32

	// Attestation is the enclave attestation presented at registration.
	Attestation attest.Attestation
}

// serializeQuoteRequest serializes a quote request.
func serializeQuoteRequest(q *QuoteRequest) ([]byte, error) {
	var b bytes.Buffer

	if err := writeString(&b, string(q.Requester)); err != nil {
		return nil, err
	}
	if err := writeString(&b, string(q.FromToken)); err != nil {
		return nil, err
	}
	if err := writeString(&b, string(q.ToToken)); err != nil {
		return nil, err
	}
	err := binary.Write(&b, byteOrder, uint64(q.FromAmount))
	if err != nil {
		return nil, err
	}
	if err := binary.Write(&b, byteOrder, uint64(q.ToAmount)); err != nil {
		return nil, err
	}
	if err := writeTime(&b, q.Deadline); err != nil {
		return nil, err
	}
	if err := writeString(&b, q.IntentID); err != nil {
		return nil, err
	}
	if err := binary.Write(&b, byteOrder, q.Executed); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// deserializeQuoteRequest deserializes a quote request.
func deserializeQuoteRequest(id RequestID, data []byte) (*QuoteRequest,
	error) {

	r := bytes.NewReader(data)
	request := QuoteRequest{ID: id}

	requester, err := readString(r)
	if err != nil {
		return nil, err
	}
	request.Requester = xswap.AccountID(requester)

	fromToken, err := readString(r)
	if err != nil {
		return nil, err
	}
	request.FromToken = xswap.Token(fromToken)

	toToken, err := readString(r)
	if err != nil {
		return nil, err
	}
	request.ToToken = xswap.Token(toToken)

	var fromAmount, toAmount uint64
	if err := binary.Read(r, byteOrder, &fromAmount); err != nil {
		return nil, err
	}
	request.FromAmount = xswap.Amount(fromAmount)

	if err := binary.Read(r, byteOrder, &toAmount); err != nil {
		return nil, err
	}
	request.ToAmount = xswap.Amount(toAmount)

	if request.Deadline, err = readTime(r); err != nil {
		return nil, err
	}
	if request.IntentID, err = readString(r); err != nil {
		return nil, err
	}
	if err := binary.Read(r, byteOrder, &request.Executed); err != nil {
		return nil, err
	}

	return &request, nil
}

// serializeMetaOrder serializes a meta order.
func serializeMetaOrder(m *MetaOrder) ([]byte, error) {
	var b bytes.Buffer

	if err := writeString(&b, string(m.Solver)); err != nil {
		return nil, err
	}
	if err := writeString(&b, string(m.FromToken)); err != nil {
		return nil, err
	}
	if err := writeString(&b, string(m.ToToken)); err != nil {
		return nil, err
	}
	err := binary.Write(&b, byteOrder, uint64(m.FromAmount))
	if err != nil {
		return nil, err
	}
	if err := binary.Write(&b, byteOrder, uint64(m.ToAmount)); err != nil {
		return nil, err
	}
	if err := writeTime(&b, m.Deadline); err != nil {
		return nil, err
	}
	if err := writeString(&b, m.IntentID); err != nil {
		return nil, err
	}
	if err := writeString(&b, m.Signature.Signature); err != nil {
		return nil, err
	}
	if err := writeString(&b, m.Signature.PublicKey); err != nil {
		return nil, err
	}
	if err := writeString(&b, m.Signature.Message); err != nil {
		return nil, err
	}
	if err := binary.Write(&b, byteOrder, m.Executed); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// deserializeMetaOrder deserializes a meta order.
func deserializeMetaOrder(id OrderID, data []byte) (*MetaOrder, error) {
	r := bytes.NewReader(data)
	order := MetaOrder{ID: id}

	solver, err := readString(r)
	if err != nil {
		return nil, err
	}
	order.Solver = xswap.AccountID(solver)

	fromToken, err := readString(r)
	if err != nil {
		return nil, err
	}
	order.FromToken = xswap.Token(fromToken)

	toToken, err := readString(r)
	if err != nil {
		return nil, err
	}
	order.ToToken = xswap.Token(toToken)

	var fromAmount, toAmount uint64
	if err := binary.Read(r, byteOrder, &fromAmount); err != nil {
		return nil, err
	}
	order.FromAmount = xswap.Amount(fromAmount)

	if err := binary.Read(r, byteOrder, &toAmount); err != nil {
		return nil, err
	}
	order.ToAmount = xswap.Amount(toAmount)

	if order.Deadline, err = readTime(r); err != nil {
		return nil, err
	}
	if order.IntentID, err = readString(r); err != nil {
		return nil, err
	}
	if order.Signature.Signature, err = readString(r); err != nil {
		return nil, err
	}
	if order.Signature.PublicKey, err = readString(r); err != nil {
		return nil, err
	}
	if order.Signature.Message, err = readString(r); err != nil {
		return nil, err
	}
	if err := binary.Read(r, byteOrder, &order.Executed); err != nil {
		return nil, err
	}

	return &order, nil
}

// serializeIntent serializes an intent.
func serializeIntent(i *Intent) ([]byte, error) {
	var b bytes.Buffer

	if err := writeString(&b, string(i.User)); err != nil {
		return nil, err
	}
	if err := writeString(&b, string(i.FromToken)); err != nil {
		return nil, err
	}
	if err := writeString(&b, string(i.ToToken)); err != nil {
		return nil, err
	}
	err := binary.Write(&b, byteOrder, uint64(i.FromAmount))
	if err != nil {
		return nil, err
	}
	if err := binary.Write(&b, byteOrder, uint64(i.ToAmount)); err != nil {
		return nil, err
	}
	if err := writeTime(&b, i.Deadline); err != nil {
		return nil, err
	}
	if err := binary.Write(&b, byteOrder, uint8(i.State)); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// deserializeIntent deserializes an intent.
func deserializeIntent(intentID string, data []byte) (*Intent, error) {
	r := bytes.NewReader(data)
	intent := Intent{IntentID: intentID}

	user, err := readString(r)
	if err != nil {
		return nil, err
	}
	intent.User = xswap.AccountID(user)

	fromToken, err := readString(r)
	if err != nil {
		return nil, err
	}
	intent.FromToken = xswap.Token(fromToken)

	toToken, err := readString(r)
	if err != nil {
		return nil, err
	}
	intent.ToToken = xswap.Token(toToken)

	var fromAmount, toAmount uint64
	if err := binary.Read(r, byteOrder, &fromAmount); err != nil {
		return nil, err
	}
	intent.FromAmount = xswap.Amount(fromAmount)

	if err := binary.Read(r, byteOrder, &toAmount); err != nil {
		return nil, err
	}
	intent.ToAmount = xswap.Amount(toAmount)

	if intent.Deadline, err = readTime(r); err != nil {
		return nil, err
	}

	var state uint8
	if err := binary.Read(r, byteOrder, &state); err != nil {
		return nil, err
	}
	intent.State = IntentState(state)

	return &intent, nil
}

// serializeSolverConfig serializes a solver config.
func serializeSolverConfig(s *SolverConfig) ([]byte, error) {
	var b bytes.Buffer

	err := binary.Write(&b, byteOrder, uint64(s.MinQuoteAmount))
	if err != nil {
		return nil, err
	}
	err = binary.Write(&b, byteOrder, uint64(s.MaxQuoteAmount))
	if err != nil {
		return nil, err
	}
	if err := binary.Write(&b, byteOrder, s.FeeBps); err != nil {
		return nil, err
	}
	if err := binary.Write(&b, byteOrder, s.Active); err != nil {
		return nil, err
	}
	if err := binary.Write(&b, byteOrder, s.Reputation); err != nil {
		return nil, err
	}
	if err := writeString(&b, s.Attestation.EnclaveID); err != nil {
		return nil, err
	}
	if err := writeString(&b, s.Attestation.Report); err != nil {
		return nil, err
	}
	if err := writeString(&b, s.Attestation.PublicKey); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// deserializeSolverConfig deserializes a solver config.
func deserializeSolverConfig(address xswap.AccountID, data []byte) (
	*SolverConfig, error) {

	r := bytes.NewReader(data)
	cfg := SolverConfig{Address: address}

	var minAmount, maxAmount uint64
	if err := binary.Read(r, byteOrder, &minAmount); err != nil {
		return nil, err
	}
	cfg.MinQuoteAmount = xswap.Amount(minAmount)

	if err := binary.Read(r, byteOrder, &maxAmount); err != nil {
		return nil, err
	}
	cfg.MaxQuoteAmount = xswap.Amount(maxAmount)

	if err := binary.Read(r, byteOrder, &cfg.FeeBps); err != nil {
		return nil, err
	}
	if err := binary.Read(r, byteOrder, &cfg.Active); err != nil {
		return nil, err
	}
	if err := binary.Read(r, byteOrder, &cfg.Reputation); err != nil {
		return nil, err
	}

	var err error
	if cfg.Attestation.EnclaveID, err = readString(r); err != nil {
		return nil, err
	}
	if cfg.Attestation.Report, err = readString(r); err != nil {
		return nil, err
	}
	if cfg.Attestation.PublicKey, err = readString(r); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// CreateQuoteRequest assigns the next request id and persists the request.
func (tx *Tx) CreateQuoteRequest(q *QuoteRequest) (RequestID, error) {
	bucket := tx.tx.Bucket(quoteRequestsBucketKey)
	if bucket == nil {
		return 0, fmt.Errorf("bucket %s does not exist",
			quoteRequestsBucketKey)
	}

	seq, err := bucket.NextSequence()
	if err != nil {
		return 0, err
	}
	q.ID = RequestID(seq)

	data, err := serializeQuoteRequest(q)
	if err != nil {
		return 0, err
	}

	if err := bucket.Put(itob(seq), data); err != nil {
		return 0, err
	}

	return q.ID, nil
}

// QuoteRequest fetches the request with the given id, or ErrNotFound.
func (tx *Tx) QuoteRequest(id RequestID) (*QuoteRequest, error) {
	bucket := tx.tx.Bucket(quoteRequestsBucketKey)
	if bucket == nil {
		return nil, fmt.Errorf("bucket %s does not exist",
			quoteRequestsBucketKey)
	}

	data := bucket.Get(itob(uint64(id)))
	if data == nil {
		return nil, ErrNotFound
	}

	return deserializeQuoteRequest(id, data)
}

// PutQuoteRequest overwrites an existing quote request.
func (tx *Tx) PutQuoteRequest(q *QuoteRequest) error {
	bucket := tx.tx.Bucket(quoteRequestsBucketKey)
	if bucket == nil {
		return fmt.Errorf("bucket %s does not exist",
			quoteRequestsBucketKey)
	}

	data, err := serializeQuoteRequest(q)
	if err != nil {
		return err
	}

	return bucket.Put(itob(uint64(q.ID)), data)
}

// CreateMetaOrder assigns the next order id and persists the order.
func (tx *Tx) CreateMetaOrder(m *MetaOrder) (OrderID, error) {
	bucket := tx.tx.Bucket(metaOrdersBucketKey)
	if bucket == nil {
		return 0, fmt.Errorf("bucket %s does not exist",
			metaOrdersBucketKey)
	}

	seq, err := bucket.NextSequence()
	if err != nil {
		return 0, err
	}
	m.ID = OrderID(seq)

	data, err := serializeMetaOrder(m)
	if err != nil {
		return 0, err
	}

	if err := bucket.Put(itob(seq), data); err != nil {
		return 0, err
	}

	return m.ID, nil
}

// MetaOrder fetches the order with the given id, or ErrNotFound.
func (tx *Tx) MetaOrder(id OrderID) (*MetaOrder, error) {
	bucket := tx.tx.Bucket(metaOrdersBucketKey)
	if bucket == nil {
		return nil, fmt.Errorf("bucket %s does not exist",
			metaOrdersBucketKey)
	}

	data := bucket.Get(itob(uint64(id)))
	if data == nil {
		return nil, ErrNotFound
	}

	return deserializeMetaOrder(id, data)
}

// PutMetaOrder overwrites an existing meta order.
func (tx *Tx) PutMetaOrder(m *MetaOrder) error {
	bucket := tx.tx.Bucket(metaOrdersBucketKey)
	if bucket == nil {
		return fmt.Errorf("bucket %s does not exist",
			metaOrdersBucketKey)
	}

	data, err := serializeMetaOrder(m)
	if err != nil {
		return err
	}

	return bucket.Put(itob(uint64(m.ID)), data)
}

// Intent fetches the intent with the given id, or ErrNotFound.
func (tx *Tx) Intent(intentID string) (*Intent, error) {
	bucket := tx.tx.Bucket(intentsBucketKey)
	if bucket == nil {
		return nil, fmt.Errorf("bucket %s does not exist",
			intentsBucketKey)
	}

	data := bucket.Get([]byte(intentID))
	if data == nil {
		return nil, ErrNotFound
	}

	return deserializeIntent(intentID, data)
}

// PutIntent creates or overwrites an intent.
func (tx *Tx) PutIntent(i *Intent) error {
	bucket := tx.tx.Bucket(intentsBucketKey)
	if bucket == nil {
		return fmt.Errorf("bucket %s does not exist",
			intentsBucketKey)
	}

	data, err := serializeIntent(i)
	if err != nil {
		return err
	}

	return bucket.Put([]byte(i.IntentID), data)
}

// Solver fetches the config of the given solver, or ErrNotFound.
func (tx *Tx) Solver(address xswap.AccountID) (*SolverConfig, error) {
	bucket := tx.tx.Bucket(solversBucketKey)
	if bucket == nil {
		return nil, fmt.Errorf("bucket %s does not exist",
			solversBucketKey)
	}

	data := bucket.Get([]byte(address))
	if data == nil {
		return nil, ErrNotFound
	}

	return deserializeSolverConfig(address, data)
}

// PutSolver creates or overwrites a solver config.
func (tx *Tx) PutSolver(s *SolverConfig) error {
	bucket := tx.tx.Bucket(solversBucketKey)
	if bucket == nil {
		return fmt.Errorf("bucket %s does not exist",
			solversBucketKey)
	}

	data, err := serializeSolverConfig(s)
	if err != nil {
		return err
	}

	return bucket.Put([]byte(s.Address), data)
}

// ForEachSolver calls the given function for every registered solver.
func (tx *Tx) ForEachSolver(fn func(*SolverConfig) error) error {
	bucket := tx.tx.Bucket(solversBucketKey)
	if bucket == nil {
		return fmt.Errorf("bucket %s does not exist",
			solversBucketKey)
	}

	return bucket.ForEach(func(k, v []byte) error {
		cfg, err := deserializeSolverConfig(xswap.AccountID(k), v)
		if err != nil {
			return err
		}

		return fn(cfg)
	})
}

// TotalQuoteRequests returns the number of quote requests ever created. The
// bucket sequence is the counter, so the value survives restarts without
// separate bookkeeping.
func (tx *Tx) TotalQuoteRequests() (uint64, error) {
	bucket := tx.tx.Bucket(quoteRequestsBucketKey)
	if bucket == nil {
		return 0, fmt.Errorf("bucket %s does not exist",
			quoteRequestsBucketKey)
	}

	return bucket.Sequence(), nil
}

// TotalMetaOrders returns the number of meta orders ever created.
func (tx *Tx) TotalMetaOrders() (uint64, error) {
	bucket := tx.tx.Bucket(metaOrdersBucketKey)
	if bucket == nil {
		return 0, fmt.Errorf("bucket %s does not exist",
			metaOrdersBucketKey)
	}

	return bucket.Sequence(), nil
}
