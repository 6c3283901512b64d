package xswapd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/xswaplabs/xswap"
	"github.com/xswaplabs/xswap/attest"
	"github.com/xswaplabs/xswap/auction"
	"github.com/xswaplabs/xswap/escrow"
	"github.com/xswaplabs/xswap/fusion"
	"github.com/xswaplabs/xswap/swapdb"
	"golang.org/x/sync/errgroup"
)

// shutdownTimeout is the grace period given to in-flight requests when the
// daemon stops.
const shutdownTimeout = 5 * time.Second

// Daemon bundles the swap engines behind a single REST listener.
type Daemon struct {
	cfg *Config

	db     *swapdb.DB
	wallet *memWallet

	escrow  *escrow.Engine
	auction *auction.Engine
	fusion  *fusion.Manager
}

// NewDaemon opens the swap database and wires up the engines according to
// the given config.
func NewDaemon(cfg *Config) (*Daemon, error) {
	db, err := swapdb.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	var (
		attestations attest.AttestationVerifier
		signatures   attest.SignatureVerifier
	)
	switch cfg.Verifier {
	case VerifierSecp:
		verifier := attest.SecpVerifier{}
		attestations, signatures = verifier, verifier

	default:
		verifier := attest.PermissiveVerifier{}
		attestations, signatures = verifier, verifier
	}

	wallet := newMemWallet()
	chainClock := clock.NewDefaultClock()

	escrowEngine := escrow.NewEngine(&escrow.Config{
		Store:  db,
		Wallet: wallet,
		Clock:  chainClock,
	})

	auctionEngine := auction.NewEngine(&auction.Config{
		Store:  db,
		Escrow: escrowEngine,
		Wallet: wallet,
		Clock:  chainClock,
	})

	fusionManager := fusion.NewManager(&fusion.Config{
		Store:        db,
		Escrow:       escrowEngine,
		Attestations: attestations,
		Signatures:   signatures,
		Clock:        chainClock,
		Admin:        xswap.AccountID(cfg.Admin),
	})

	return &Daemon{
		cfg:     cfg,
		db:      db,
		wallet:  wallet,
		escrow:  escrowEngine,
		auction: auctionEngine,
		fusion:  fusionManager,
	}, nil
}

// Run serves the REST API until the passed context is canceled, then shuts
// down gracefully.
func (d *Daemon) Run(ctx context.Context) error {
	defer d.db.Close()

	server := &http.Server{
		Addr:    d.cfg.RESTListen,
		Handler: d.restHandler(),
	}

	var eg errgroup.Group
	eg.Go(func() error {
		log.Infof("REST proxy listening on %v", d.cfg.RESTListen)

		err := server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	eg.Go(func() error {
		<-ctx.Done()

		log.Infof("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()

		return server.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
