package main

import (
	"net/http"
	"time"

	"github.com/urfave/cli"
)

var registerSolverCommand = cli.Command{
	Name:      "registersolver",
	Usage:     "register a solver with the settlement pipeline",
	ArgsUsage: "admin address",
	Description: `
	Registers a solver under the given address. Only the daemon's admin
	account may register solvers. The attestation report is required, the
	daemon's configured verifier decides what counts as valid.`,
	Flags: []cli.Flag{
		cli.Uint64Flag{
			Name:  "min_amt",
			Usage: "the smallest quote the solver will honor",
		},
		cli.Uint64Flag{
			Name:  "max_amt",
			Usage: "the largest quote the solver will honor",
		},
		cli.Uint64Flag{
			Name:  "fee_bps",
			Usage: "the solver fee in basis points, at most 1000",
		},
		cli.StringFlag{
			Name:  "enclave_id",
			Usage: "the enclave identity of the solver",
		},
		cli.StringFlag{
			Name:  "report",
			Usage: "the attestation report",
		},
		cli.StringFlag{
			Name:  "public_key",
			Usage: "the solver's hex encoded public key",
		},
	},
	Action: registerSolver,
}

func registerSolver(ctx *cli.Context) error {
	args := ctx.Args()
	if ctx.NArg() != 2 {
		return cli.ShowCommandHelp(ctx, "registersolver")
	}

	return getClient(ctx).call(
		http.MethodPost, "/v1/solvers", map[string]interface{}{
			"caller":           args.Get(0),
			"address":          args.Get(1),
			"min_quote_amount": ctx.Uint64("min_amt"),
			"max_quote_amount": ctx.Uint64("max_amt"),
			"fee_bps":          uint32(ctx.Uint64("fee_bps")),
			"attestation": map[string]string{
				"enclave_id": ctx.String("enclave_id"),
				"report":     ctx.String("report"),
				"public_key": ctx.String("public_key"),
			},
		}, nil,
	)
}

var updateSolverCommand = cli.Command{
	Name:      "updatesolver",
	Usage:     "update a solver's quote range and fee",
	ArgsUsage: "admin address",
	Flags: []cli.Flag{
		cli.Uint64Flag{
			Name:  "min_amt",
			Usage: "the smallest quote the solver will honor",
		},
		cli.Uint64Flag{
			Name:  "max_amt",
			Usage: "the largest quote the solver will honor",
		},
		cli.Uint64Flag{
			Name:  "fee_bps",
			Usage: "the solver fee in basis points, at most 1000",
		},
	},
	Action: updateSolver,
}

func updateSolver(ctx *cli.Context) error {
	args := ctx.Args()
	if ctx.NArg() != 2 {
		return cli.ShowCommandHelp(ctx, "updatesolver")
	}

	return getClient(ctx).call(
		http.MethodPut, "/v1/solvers/"+args.Get(1),
		map[string]interface{}{
			"caller":           args.Get(0),
			"min_quote_amount": ctx.Uint64("min_amt"),
			"max_quote_amount": ctx.Uint64("max_amt"),
			"fee_bps":          uint32(ctx.Uint64("fee_bps")),
		}, nil,
	)
}

var deactivateSolverCommand = cli.Command{
	Name:      "deactivatesolver",
	Usage:     "take a solver out of the quoting rotation",
	ArgsUsage: "admin address",
	Action:    deactivateSolver,
}

func deactivateSolver(ctx *cli.Context) error {
	args := ctx.Args()
	if ctx.NArg() != 2 {
		return cli.ShowCommandHelp(ctx, "deactivatesolver")
	}

	return getClient(ctx).call(
		http.MethodPost, "/v1/solvers/"+args.Get(1)+"/deactivate",
		map[string]string{"caller": args.Get(0)}, nil,
	)
}

var listSolversCommand = cli.Command{
	Name:   "solvers",
	Usage:  "list the active solvers",
	Action: listSolvers,
}

func listSolvers(ctx *cli.Context) error {
	var resp map[string][]string
	err := getClient(ctx).call(
		http.MethodGet, "/v1/solvers", nil, &resp,
	)
	if err != nil {
		return err
	}

	printRespJSON(resp)

	return nil
}

var getSolverCommand = cli.Command{
	Name:      "getsolver",
	Usage:     "show a solver's registration and reputation",
	ArgsUsage: "address",
	Action:    getSolver,
}

func getSolver(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "getsolver")
	}

	var resp map[string]interface{}
	err := getClient(ctx).call(
		http.MethodGet, "/v1/solvers/"+ctx.Args().First(), nil, &resp,
	)
	if err != nil {
		return err
	}

	printRespJSON(resp)

	return nil
}

var requestQuoteCommand = cli.Command{
	Name:      "requestquote",
	Usage:     "ask the solver network for a cross-chain price",
	ArgsUsage: "requester from_token to_token amt",
	Flags: []cli.Flag{
		cli.DurationFlag{
			Name:  "deadline",
			Usage: "time until the request expires, measured from now",
			Value: 10 * time.Minute,
		},
	},
	Action: requestQuote,
}

func requestQuote(ctx *cli.Context) error {
	args := ctx.Args()
	if ctx.NArg() != 4 {
		return cli.ShowCommandHelp(ctx, "requestquote")
	}

	amt, err := parseAmt(args.Get(3))
	if err != nil {
		return err
	}

	var resp map[string]uint64
	err = getClient(ctx).call(
		http.MethodPost, "/v1/quotes/requests", map[string]interface{}{
			"requester":   args.Get(0),
			"from_token":  args.Get(1),
			"to_token":    args.Get(2),
			"from_amount": amt,
			"deadline":    time.Now().Add(ctx.Duration("deadline")),
		}, &resp,
	)
	if err != nil {
		return err
	}

	printRespJSON(resp)

	return nil
}

var generateQuoteCommand = cli.Command{
	Name:      "generatequote",
	Usage:     "answer a quote request as a solver",
	ArgsUsage: "solver request_id to_amt intent_id",
	Description: `
	Quotes the gross destination amount for a pending request. The
	solver's fee is deducted from the amount and a meta order covering
	the net amount is created, signed by the given signature over the
	intent id.`,
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "signature",
			Usage: "the solver's signature over the intent id",
		},
		cli.StringFlag{
			Name:  "public_key",
			Usage: "the hex encoded key the signature verifies under",
		},
	},
	Action: generateQuote,
}

func generateQuote(ctx *cli.Context) error {
	args := ctx.Args()
	if ctx.NArg() != 4 {
		return cli.ShowCommandHelp(ctx, "generatequote")
	}

	amt, err := parseAmt(args.Get(2))
	if err != nil {
		return err
	}

	var resp map[string]uint64
	err = getClient(ctx).call(
		http.MethodPost, "/v1/quotes/requests/"+args.Get(1)+"/quote",
		map[string]interface{}{
			"caller":    args.Get(0),
			"to_amount": amt,
			"intent_id": args.Get(3),
			"signature": map[string]string{
				"signature":  ctx.String("signature"),
				"public_key": ctx.String("public_key"),
				"message":    args.Get(3),
			},
		}, &resp,
	)
	if err != nil {
		return err
	}

	printRespJSON(resp)

	return nil
}

var executeOrderCommand = cli.Command{
	Name:      "executeorder",
	Usage:     "settle a meta order against its escrow lock",
	ArgsUsage: "caller order_id secret",
	Description: `
	Verifies the order's signature and claims the escrow lock tied to the
	order's intent with the given secret. A failed settlement marks the
	intent failed and costs the solver reputation, it is reported in the
	response rather than as an error.`,
	Action: executeOrder,
}

func executeOrder(ctx *cli.Context) error {
	args := ctx.Args()
	if ctx.NArg() != 3 {
		return cli.ShowCommandHelp(ctx, "executeorder")
	}

	var resp map[string]bool
	err := getClient(ctx).call(
		http.MethodPost, "/v1/orders/"+args.Get(1)+"/execute",
		map[string]string{
			"caller": args.Get(0),
			"secret": args.Get(2),
		}, &resp,
	)
	if err != nil {
		return err
	}

	printRespJSON(resp)

	return nil
}

var getOrderCommand = cli.Command{
	Name:      "getorder",
	Usage:     "show a meta order",
	ArgsUsage: "order_id",
	Action:    getOrder,
}

func getOrder(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "getorder")
	}

	var resp map[string]interface{}
	err := getClient(ctx).call(
		http.MethodGet, "/v1/orders/"+ctx.Args().First(), nil, &resp,
	)
	if err != nil {
		return err
	}

	printRespJSON(resp)

	return nil
}

var getIntentCommand = cli.Command{
	Name:      "getintent",
	Usage:     "show a settlement intent",
	ArgsUsage: "intent_id",
	Action:    getIntent,
}

func getIntent(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "getintent")
	}

	var resp map[string]interface{}
	err := getClient(ctx).call(
		http.MethodGet, "/v1/intents/"+ctx.Args().First(), nil, &resp,
	)
	if err != nil {
		return err
	}

	printRespJSON(resp)

	return nil
}
