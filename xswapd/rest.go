package xswapd

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/xswaplabs/xswap"
	"github.com/xswaplabs/xswap/attest"
	"github.com/xswaplabs/xswap/auction"
	"github.com/xswaplabs/xswap/escrow"
	"github.com/xswaplabs/xswap/fusion"
	"github.com/xswaplabs/xswap/swapdb"
)

// restHandler builds the REST routing tree for all engine operations.
func (d *Daemon) restHandler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestLogger)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/v1/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version": xswap.Version(),
		})
	})

	r.Route("/v1/wallet", func(api chi.Router) {
		api.Post("/deposit", d.walletDeposit)
		api.Get("/balance", d.walletBalance)
	})

	r.Route("/v1/escrow/locks", func(api chi.Router) {
		api.Post("/", d.escrowCreateLock)
		api.Get("/{lock_id}", d.escrowGetLock)
		api.Post("/{lock_id}/resolver", d.escrowAssignResolver)
		api.Post("/{lock_id}/claim", d.escrowClaim)
		api.Post("/{lock_id}/refund", d.escrowRefund)
	})

	r.Route("/v1/auctions", func(api chi.Router) {
		api.Post("/", d.auctionCreate)
		api.Get("/{auction_id}", d.auctionGet)
		api.Get("/{auction_id}/rate", d.auctionRate)
		api.Post("/{auction_id}/fills", d.auctionFill)
		api.Post("/{auction_id}/cancel", d.auctionCancel)
	})

	r.Route("/v1/solvers", func(api chi.Router) {
		api.Post("/", d.solverRegister)
		api.Get("/", d.solverList)
		api.Get("/{address}", d.solverGet)
		api.Put("/{address}", d.solverUpdate)
		api.Post("/{address}/deactivate", d.solverDeactivate)
	})

	r.Route("/v1/quotes", func(api chi.Router) {
		api.Post("/requests", d.quoteRequest)
		api.Get("/requests/{request_id}", d.quoteRequestGet)
		api.Post("/requests/{request_id}/quote", d.quoteGenerate)
		api.Get("/stats", d.quoteStats)
	})

	r.Route("/v1/orders", func(api chi.Router) {
		api.Get("/{order_id}", d.orderGet)
		api.Post("/{order_id}/execute", d.orderExecute)
	})

	r.Get("/v1/intents/{intent_id}", d.intentGet)

	return r
}

// requestLogger tags every request with an id and traces it.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		w.Header().Set("X-Request-Id", reqID)

		log.Debugf("%s %s id=%s", r.Method, r.URL.Path, reqID)

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("Unable to encode response: %v", err)
	}
}

func readJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// writeError maps an engine error onto an http status. Validation failures
// map to 400, authorization failures to 403, missing entities to 404, state
// and deadline conflicts to 409 and downstream failures to 502.
func writeError(w http.ResponseWriter, err error) {
	var downstream *xswap.DownstreamError

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &downstream):
		status = http.StatusBadGateway

	case errors.Is(err, escrow.ErrInvalidAmount),
		errors.Is(err, escrow.ErrInvalidHashlock),
		errors.Is(err, escrow.ErrInvalidTimelock),
		errors.Is(err, escrow.ErrInvalidRecipient),
		errors.Is(err, escrow.ErrPreimageMismatch),
		errors.Is(err, auction.ErrInvalidAuctionParams),
		errors.Is(err, auction.ErrInvalidFillAmount),
		errors.Is(err, fusion.ErrFeeTooHigh),
		errors.Is(err, fusion.ErrInvalidAttestation),
		errors.Is(err, fusion.ErrInvalidAmount),
		errors.Is(err, fusion.ErrInvalidDeadline),
		errors.Is(err, fusion.ErrInvalidIntentID),
		errors.Is(err, fusion.ErrQuoteOutOfRange),
		errors.Is(err, fusion.ErrFeeExceedsAmount):

		status = http.StatusBadRequest

	case errors.Is(err, escrow.ErrUnauthorized),
		errors.Is(err, auction.ErrUnauthorized),
		errors.Is(err, fusion.ErrUnauthorized),
		errors.Is(err, fusion.ErrInvalidSignature):

		status = http.StatusForbidden

	case errors.Is(err, escrow.ErrLockNotFound),
		errors.Is(err, auction.ErrAuctionNotFound),
		errors.Is(err, fusion.ErrSolverNotRegistered),
		errors.Is(err, fusion.ErrRequestNotFound),
		errors.Is(err, fusion.ErrOrderNotFound),
		errors.Is(err, swapdb.ErrNotFound):

		status = http.StatusNotFound

	case errors.Is(err, escrow.ErrAlreadySettled),
		errors.Is(err, escrow.ErrLockExpired),
		errors.Is(err, escrow.ErrNotYetExpired),
		errors.Is(err, auction.ErrAuctionInactive),
		errors.Is(err, auction.ErrAuctionExpired),
		errors.Is(err, auction.ErrHashlockAlreadySet),
		errors.Is(err, fusion.ErrSolverInactive),
		errors.Is(err, fusion.ErrRequestExpired),
		errors.Is(err, fusion.ErrOrderExpired),
		errors.Is(err, fusion.ErrAlreadyExecuted):

		status = http.StatusConflict
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func parseID(r *http.Request, param string) (uint64, error) {
	return strconv.ParseUint(chi.URLParam(r, param), 10, 64)
}

func (d *Daemon) walletDeposit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account string `json:"account"`
		Token   string `json:"token"`
		Amount  uint64 `json:"amount"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	d.wallet.Deposit(
		xswap.AccountID(req.Account), xswap.Token(req.Token),
		xswap.Amount(req.Amount),
	)

	writeJSON(w, http.StatusOK, map[string]uint64{
		"balance": uint64(d.wallet.Balance(
			xswap.AccountID(req.Account), xswap.Token(req.Token),
		)),
	})
}

func (d *Daemon) walletBalance(w http.ResponseWriter, r *http.Request) {
	account := xswap.AccountID(r.URL.Query().Get("account"))
	token := xswap.Token(r.URL.Query().Get("token"))

	writeJSON(w, http.StatusOK, map[string]uint64{
		"balance": uint64(d.wallet.Balance(account, token)),
	})
}

type lockResponse struct {
	ID                uint64     `json:"id"`
	Maker             string     `json:"maker"`
	Receiver          string     `json:"receiver,omitempty"`
	Resolver          string     `json:"resolver,omitempty"`
	Token             string     `json:"token"`
	Amount            uint64     `json:"amount"`
	Hashlock          string     `json:"hashlock"`
	TimelockExclusive *time.Time `json:"timelock_exclusive,omitempty"`
	TimelockRecovery  time.Time  `json:"timelock_recovery"`
	State             string     `json:"state"`
	IntentID          string     `json:"intent_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

func marshalLock(lock *swapdb.Lock) *lockResponse {
	resp := &lockResponse{
		ID:               uint64(lock.ID),
		Maker:            string(lock.Maker),
		Receiver:         string(lock.Receiver),
		Resolver:         string(lock.Resolver),
		Token:            string(lock.Token),
		Amount:           uint64(lock.Amount),
		Hashlock:         lock.Hashlock.String(),
		TimelockRecovery: lock.TimelockRecovery,
		State:            lock.State.String(),
		IntentID:         lock.IntentID,
		CreatedAt:        lock.CreatedAt,
	}
	if !lock.TimelockExclusive.IsZero() {
		t := lock.TimelockExclusive
		resp.TimelockExclusive = &t
	}

	return resp
}

func (d *Daemon) escrowCreateLock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Maker             string     `json:"maker"`
		Receiver          string     `json:"receiver"`
		Resolver          string     `json:"resolver"`
		Token             string     `json:"token"`
		Amount            uint64     `json:"amount"`
		Hashlock          string     `json:"hashlock"`
		TimelockExclusive *time.Time `json:"timelock_exclusive"`
		TimelockRecovery  time.Time  `json:"timelock_recovery"`
		IntentID          string     `json:"intent_id"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	hashlock, err := lntypes.MakeHashFromStr(req.Hashlock)
	if err != nil {
		writeError(w, escrow.ErrInvalidHashlock)
		return
	}

	createReq := &escrow.CreateLockRequest{
		Maker:            xswap.AccountID(req.Maker),
		Receiver:         xswap.AccountID(req.Receiver),
		Resolver:         xswap.AccountID(req.Resolver),
		Token:            xswap.Token(req.Token),
		Amount:           xswap.Amount(req.Amount),
		Hashlock:         hashlock,
		TimelockRecovery: req.TimelockRecovery,
		IntentID:         req.IntentID,
	}
	if req.TimelockExclusive != nil {
		createReq.TimelockExclusive = *req.TimelockExclusive
	}

	lockID, err := d.escrow.CreateLock(r.Context(), createReq)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]uint64{
		"lock_id": uint64(lockID),
	})
}

func (d *Daemon) escrowGetLock(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "lock_id")
	if err != nil {
		writeError(w, escrow.ErrLockNotFound)
		return
	}

	lock, err := d.escrow.Lock(r.Context(), swapdb.LockID(id))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, marshalLock(lock))
}

func (d *Daemon) escrowAssignResolver(w http.ResponseWriter,
	r *http.Request) {

	id, err := parseID(r, "lock_id")
	if err != nil {
		writeError(w, escrow.ErrLockNotFound)
		return
	}

	var req struct {
		Resolver string `json:"resolver"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	err = d.escrow.AssignResolver(
		r.Context(), swapdb.LockID(id),
		xswap.AccountID(req.Resolver),
	)
	if err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type receiptResponse struct {
	LockID    uint64 `json:"lock_id"`
	Token     string `json:"token"`
	Amount    uint64 `json:"amount"`
	Recipient string `json:"recipient"`
}

func marshalReceipt(receipt *escrow.Receipt) *receiptResponse {
	return &receiptResponse{
		LockID:    uint64(receipt.LockID),
		Token:     string(receipt.Token),
		Amount:    uint64(receipt.Amount),
		Recipient: string(receipt.Recipient),
	}
}

func (d *Daemon) escrowClaim(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "lock_id")
	if err != nil {
		writeError(w, escrow.ErrLockNotFound)
		return
	}

	var req struct {
		Caller   string `json:"caller"`
		Preimage string `json:"preimage"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	preimage, err := lntypes.MakePreimageFromStr(req.Preimage)
	if err != nil {
		writeError(w, escrow.ErrPreimageMismatch)
		return
	}

	receipt, err := d.escrow.Claim(
		r.Context(), xswap.AccountID(req.Caller), swapdb.LockID(id),
		preimage,
	)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, marshalReceipt(receipt))
}

func (d *Daemon) escrowRefund(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "lock_id")
	if err != nil {
		writeError(w, escrow.ErrLockNotFound)
		return
	}

	var req struct {
		Caller string `json:"caller"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	receipt, err := d.escrow.Refund(
		r.Context(), xswap.AccountID(req.Caller), swapdb.LockID(id),
	)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, marshalReceipt(receipt))
}

type auctionResponse struct {
	ID                 uint64    `json:"id"`
	Maker              string    `json:"maker"`
	SourceToken        string    `json:"source_token"`
	SourceAmount       uint64    `json:"source_amount"`
	DestinationChain   string    `json:"destination_chain"`
	DestinationToken   string    `json:"destination_token"`
	DestinationAccount string    `json:"destination_account"`
	StartRate          uint64    `json:"start_rate"`
	EndRate            uint64    `json:"end_rate"`
	StartTime          time.Time `json:"start_time"`
	DurationMs         int64     `json:"duration_ms"`
	Timelock           time.Time `json:"timelock"`
	Active             bool      `json:"active"`
	Hashlock           string    `json:"hashlock,omitempty"`
}

func marshalAuction(a *swapdb.Auction) *auctionResponse {
	resp := &auctionResponse{
		ID:                 uint64(a.ID),
		Maker:              string(a.Maker),
		SourceToken:        string(a.SourceToken),
		SourceAmount:       uint64(a.SourceAmount),
		DestinationChain:   a.DestinationChain,
		DestinationToken:   a.DestinationToken,
		DestinationAccount: a.DestinationAccount,
		StartRate:          a.StartRate,
		EndRate:            a.EndRate,
		StartTime:          a.StartTime,
		DurationMs:         a.Duration.Milliseconds(),
		Timelock:           a.Timelock,
		Active:             a.Active,
	}
	if a.Hashlock != nil {
		resp.Hashlock = a.Hashlock.String()
	}

	return resp
}

func (d *Daemon) auctionCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Maker              string    `json:"maker"`
		SourceToken        string    `json:"source_token"`
		SourceAmount       uint64    `json:"source_amount"`
		DestinationChain   string    `json:"destination_chain"`
		DestinationToken   string    `json:"destination_token"`
		DestinationAccount string    `json:"destination_account"`
		StartRate          uint64    `json:"start_rate"`
		EndRate            uint64    `json:"end_rate"`
		DurationMs         int64     `json:"duration_ms"`
		Timelock           time.Time `json:"timelock"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	auctionID, err := d.auction.Create(
		r.Context(), &auction.CreateAuctionRequest{
			Maker:              xswap.AccountID(req.Maker),
			SourceToken:        xswap.Token(req.SourceToken),
			SourceAmount:       xswap.Amount(req.SourceAmount),
			DestinationChain:   req.DestinationChain,
			DestinationToken:   req.DestinationToken,
			DestinationAccount: req.DestinationAccount,
			StartRate:          req.StartRate,
			EndRate:            req.EndRate,
			Duration: time.Duration(req.DurationMs) *
				time.Millisecond,
			Timelock: req.Timelock,
		},
	)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]uint64{
		"auction_id": uint64(auctionID),
	})
}

func (d *Daemon) auctionGet(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "auction_id")
	if err != nil {
		writeError(w, auction.ErrAuctionNotFound)
		return
	}

	a, err := d.auction.Auction(r.Context(), swapdb.AuctionID(id))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, marshalAuction(a))
}

func (d *Daemon) auctionRate(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "auction_id")
	if err != nil {
		writeError(w, auction.ErrAuctionNotFound)
		return
	}

	rate, err := d.auction.CurrentRate(r.Context(), swapdb.AuctionID(id))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]uint64{"rate": rate})
}

func (d *Daemon) auctionFill(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "auction_id")
	if err != nil {
		writeError(w, auction.ErrAuctionNotFound)
		return
	}

	var req struct {
		Caller   string `json:"caller"`
		Preimage string `json:"preimage"`
		Amount   uint64 `json:"amount"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	preimage, err := lntypes.MakePreimageFromStr(req.Preimage)
	if err != nil {
		writeError(w, auction.ErrInvalidFillAmount)
		return
	}

	result, err := d.auction.Fill(
		r.Context(), xswap.AccountID(req.Caller),
		swapdb.AuctionID(id), preimage, xswap.Amount(req.Amount),
	)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]uint64{
		"destination_amount": uint64(result.DestinationAmount),
		"rate":               result.Rate,
		"lock_id":            uint64(result.LockID),
	})
}

func (d *Daemon) auctionCancel(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "auction_id")
	if err != nil {
		writeError(w, auction.ErrAuctionNotFound)
		return
	}

	var req struct {
		Caller string `json:"caller"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	err = d.auction.Cancel(
		r.Context(), xswap.AccountID(req.Caller), swapdb.AuctionID(id),
	)
	if err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type solverResponse struct {
	Address        string `json:"address"`
	MinQuoteAmount uint64 `json:"min_quote_amount"`
	MaxQuoteAmount uint64 `json:"max_quote_amount"`
	FeeBps         uint32 `json:"fee_bps"`
	Active         bool   `json:"active"`
	Reputation     uint32 `json:"reputation"`
	EnclaveID      string `json:"enclave_id,omitempty"`
}

func marshalSolver(solver *swapdb.SolverConfig) *solverResponse {
	return &solverResponse{
		Address:        string(solver.Address),
		MinQuoteAmount: uint64(solver.MinQuoteAmount),
		MaxQuoteAmount: uint64(solver.MaxQuoteAmount),
		FeeBps:         solver.FeeBps,
		Active:         solver.Active,
		Reputation:     solver.Reputation,
		EnclaveID:      solver.Attestation.EnclaveID,
	}
}

func (d *Daemon) solverRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller         string `json:"caller"`
		Address        string `json:"address"`
		MinQuoteAmount uint64 `json:"min_quote_amount"`
		MaxQuoteAmount uint64 `json:"max_quote_amount"`
		FeeBps         uint32 `json:"fee_bps"`
		Attestation    struct {
			EnclaveID string `json:"enclave_id"`
			Report    string `json:"report"`
			PublicKey string `json:"public_key"`
		} `json:"attestation"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	err := d.fusion.RegisterSolver(
		r.Context(), xswap.AccountID(req.Caller),
		xswap.AccountID(req.Address),
		xswap.Amount(req.MinQuoteAmount),
		xswap.Amount(req.MaxQuoteAmount), req.FeeBps,
		attest.Attestation{
			EnclaveID: req.Attestation.EnclaveID,
			Report:    req.Attestation.Report,
			PublicKey: req.Attestation.PublicKey,
		},
	)
	if err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

func (d *Daemon) solverList(w http.ResponseWriter, r *http.Request) {
	solvers, err := d.fusion.ActiveSolvers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	addresses := make([]string, 0, len(solvers))
	for _, solver := range solvers {
		addresses = append(addresses, string(solver))
	}

	writeJSON(w, http.StatusOK, map[string][]string{
		"solvers": addresses,
	})
}

func (d *Daemon) solverGet(w http.ResponseWriter, r *http.Request) {
	address := xswap.AccountID(chi.URLParam(r, "address"))

	solver, err := d.fusion.SolverConfig(r.Context(), address)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, marshalSolver(solver))
}

func (d *Daemon) solverUpdate(w http.ResponseWriter, r *http.Request) {
	address := xswap.AccountID(chi.URLParam(r, "address"))

	var req struct {
		Caller         string `json:"caller"`
		MinQuoteAmount uint64 `json:"min_quote_amount"`
		MaxQuoteAmount uint64 `json:"max_quote_amount"`
		FeeBps         uint32 `json:"fee_bps"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	err := d.fusion.UpdateSolverConfig(
		r.Context(), xswap.AccountID(req.Caller), address,
		xswap.Amount(req.MinQuoteAmount),
		xswap.Amount(req.MaxQuoteAmount), req.FeeBps,
	)
	if err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (d *Daemon) solverDeactivate(w http.ResponseWriter, r *http.Request) {
	address := xswap.AccountID(chi.URLParam(r, "address"))

	var req struct {
		Caller string `json:"caller"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	err := d.fusion.DeactivateSolver(
		r.Context(), xswap.AccountID(req.Caller), address,
	)
	if err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type quoteRequestResponse struct {
	ID         uint64    `json:"id"`
	Requester  string    `json:"requester"`
	FromToken  string    `json:"from_token"`
	ToToken    string    `json:"to_token"`
	FromAmount uint64    `json:"from_amount"`
	ToAmount   uint64    `json:"to_amount"`
	Deadline   time.Time `json:"deadline"`
	IntentID   string    `json:"intent_id,omitempty"`
	Executed   bool      `json:"executed"`
}

func marshalQuoteRequest(request *swapdb.QuoteRequest) *quoteRequestResponse {
	return &quoteRequestResponse{
		ID:         uint64(request.ID),
		Requester:  string(request.Requester),
		FromToken:  string(request.FromToken),
		ToToken:    string(request.ToToken),
		FromAmount: uint64(request.FromAmount),
		ToAmount:   uint64(request.ToAmount),
		Deadline:   request.Deadline,
		IntentID:   request.IntentID,
		Executed:   request.Executed,
	}
}

func (d *Daemon) quoteRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Requester  string    `json:"requester"`
		FromToken  string    `json:"from_token"`
		ToToken    string    `json:"to_token"`
		FromAmount uint64    `json:"from_amount"`
		Deadline   time.Time `json:"deadline"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	requestID, err := d.fusion.RequestQuote(
		r.Context(), xswap.AccountID(req.Requester),
		xswap.Token(req.FromToken), xswap.Token(req.ToToken),
		xswap.Amount(req.FromAmount), req.Deadline,
	)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]uint64{
		"request_id": uint64(requestID),
	})
}

func (d *Daemon) quoteRequestGet(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "request_id")
	if err != nil {
		writeError(w, fusion.ErrRequestNotFound)
		return
	}

	request, err := d.fusion.QuoteRequest(r.Context(), swapdb.RequestID(id))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, marshalQuoteRequest(request))
}

func (d *Daemon) quoteGenerate(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "request_id")
	if err != nil {
		writeError(w, fusion.ErrRequestNotFound)
		return
	}

	var req struct {
		Caller    string `json:"caller"`
		ToAmount  uint64 `json:"to_amount"`
		IntentID  string `json:"intent_id"`
		Signature struct {
			Signature string `json:"signature"`
			PublicKey string `json:"public_key"`
			Message   string `json:"message"`
		} `json:"signature"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	orderID, err := d.fusion.GenerateQuote(
		r.Context(), xswap.AccountID(req.Caller),
		swapdb.RequestID(id), xswap.Amount(req.ToAmount),
		req.IntentID, attest.Signature{
			Signature: req.Signature.Signature,
			PublicKey: req.Signature.PublicKey,
			Message:   req.Signature.Message,
		},
	)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]uint64{
		"order_id": uint64(orderID),
	})
}

func (d *Daemon) quoteStats(w http.ResponseWriter, r *http.Request) {
	requests, orders, err := d.fusion.QuoteStats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]uint64{
		"total_requests": requests,
		"total_orders":   orders,
	})
}

type metaOrderResponse struct {
	ID         uint64    `json:"id"`
	Solver     string    `json:"solver"`
	FromToken  string    `json:"from_token"`
	ToToken    string    `json:"to_token"`
	FromAmount uint64    `json:"from_amount"`
	ToAmount   uint64    `json:"to_amount"`
	Deadline   time.Time `json:"deadline"`
	IntentID   string    `json:"intent_id"`
	Executed   bool      `json:"executed"`
}

func marshalMetaOrder(order *swapdb.MetaOrder) *metaOrderResponse {
	return &metaOrderResponse{
		ID:         uint64(order.ID),
		Solver:     string(order.Solver),
		FromToken:  string(order.FromToken),
		ToToken:    string(order.ToToken),
		FromAmount: uint64(order.FromAmount),
		ToAmount:   uint64(order.ToAmount),
		Deadline:   order.Deadline,
		IntentID:   order.IntentID,
		Executed:   order.Executed,
	}
}

func (d *Daemon) orderGet(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "order_id")
	if err != nil {
		writeError(w, fusion.ErrOrderNotFound)
		return
	}

	order, err := d.fusion.MetaOrder(r.Context(), swapdb.OrderID(id))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, marshalMetaOrder(order))
}

func (d *Daemon) orderExecute(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "order_id")
	if err != nil {
		writeError(w, fusion.ErrOrderNotFound)
		return
	}

	var req struct {
		Caller string `json:"caller"`
		Secret string `json:"secret"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	secret, err := lntypes.MakePreimageFromStr(req.Secret)
	if err != nil {
		writeError(w, escrow.ErrPreimageMismatch)
		return
	}

	settled, err := d.fusion.ExecuteMetaOrder(
		r.Context(), xswap.AccountID(req.Caller), swapdb.OrderID(id),
		secret,
	)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"settled": settled})
}

func (d *Daemon) intentGet(w http.ResponseWriter, r *http.Request) {
	intentID := chi.URLParam(r, "intent_id")

	intent, err := d.fusion.Intent(r.Context(), intentID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"intent_id":   intent.IntentID,
		"user":        string(intent.User),
		"from_token":  string(intent.FromToken),
		"to_token":    string(intent.ToToken),
		"from_amount": uint64(intent.FromAmount),
		"to_amount":   uint64(intent.ToAmount),
		"deadline":    intent.Deadline,
		"state":       intent.State.String(),
	})
}
