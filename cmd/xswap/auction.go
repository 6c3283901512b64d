package main

import (
	"net/http"
	"time"

	"github.com/urfave/cli"
)

var createAuctionCommand = cli.Command{
	Name:      "createauction",
	Usage:     "open a declining rate auction",
	ArgsUsage: "maker token amt",
	Description: `
	Takes the source amount out of the maker's balance and offers it at a
	rate that decays linearly from start_rate to end_rate over the
	duration. Rates are denominated in destination units per 100 source
	units.`,
	Flags: []cli.Flag{
		cli.Uint64Flag{
			Name:  "start_rate",
			Usage: "the opening rate",
		},
		cli.Uint64Flag{
			Name:  "end_rate",
			Usage: "the floor rate",
		},
		cli.DurationFlag{
			Name:  "duration",
			Usage: "the length of the decay window",
			Value: time.Hour,
		},
		cli.DurationFlag{
			Name: "timelock",
			Usage: "recovery deadline for the escrow locks " +
				"created by fills, measured from now",
			Value: 24 * time.Hour,
		},
		cli.StringFlag{
			Name:  "dest_chain",
			Usage: "the chain the maker wants to be paid on",
		},
		cli.StringFlag{
			Name:  "dest_token",
			Usage: "the asset the maker wants to be paid in",
		},
		cli.StringFlag{
			Name:  "dest_account",
			Usage: "the account the maker wants to be paid to",
		},
	},
	Action: createAuction,
}

func createAuction(ctx *cli.Context) error {
	args := ctx.Args()
	if ctx.NArg() != 3 {
		return cli.ShowCommandHelp(ctx, "createauction")
	}

	amt, err := parseAmt(args.Get(2))
	if err != nil {
		return err
	}

	var resp map[string]uint64
	err = getClient(ctx).call(
		http.MethodPost, "/v1/auctions", map[string]interface{}{
			"maker":               args.Get(0),
			"source_token":        args.Get(1),
			"source_amount":       amt,
			"start_rate":          ctx.Uint64("start_rate"),
			"end_rate":            ctx.Uint64("end_rate"),
			"duration_ms":         ctx.Duration("duration").Milliseconds(),
			"timelock":            time.Now().Add(ctx.Duration("timelock")),
			"destination_chain":   ctx.String("dest_chain"),
			"destination_token":   ctx.String("dest_token"),
			"destination_account": ctx.String("dest_account"),
		}, &resp,
	)
	if err != nil {
		return err
	}

	printRespJSON(resp)

	return nil
}

var getAuctionCommand = cli.Command{
	Name:      "getauction",
	Usage:     "show an auction",
	ArgsUsage: "auction_id",
	Action:    getAuction,
}

func getAuction(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "getauction")
	}

	var resp map[string]interface{}
	err := getClient(ctx).call(
		http.MethodGet, "/v1/auctions/"+ctx.Args().First(), nil, &resp,
	)
	if err != nil {
		return err
	}

	printRespJSON(resp)

	return nil
}

var rateCommand = cli.Command{
	Name:      "rate",
	Usage:     "show the current rate of an auction",
	ArgsUsage: "auction_id",
	Action:    rate,
}

func rate(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "rate")
	}

	var resp map[string]uint64
	err := getClient(ctx).call(
		http.MethodGet, "/v1/auctions/"+ctx.Args().First()+"/rate",
		nil, &resp,
	)
	if err != nil {
		return err
	}

	printRespJSON(resp)

	return nil
}

var fillCommand = cli.Command{
	Name:      "fill",
	Usage:     "fill an auction at the current rate",
	ArgsUsage: "caller auction_id amt preimage",
	Description: `
	Buys part of the auctioned amount at the rate in effect right now.
	The bought value moves into an escrow lock gated by the sha256 hash
	of the given preimage, claimable by the caller.

	The preimage is hex encoded and 32 bytes long. The first fill pins
	the auction's hashlock, all later fills must present the same
	preimage.`,
	Action: fill,
}

func fill(ctx *cli.Context) error {
	args := ctx.Args()
	if ctx.NArg() != 4 {
		return cli.ShowCommandHelp(ctx, "fill")
	}

	amt, err := parseAmt(args.Get(2))
	if err != nil {
		return err
	}

	var resp map[string]uint64
	err = getClient(ctx).call(
		http.MethodPost, "/v1/auctions/"+args.Get(1)+"/fills",
		map[string]interface{}{
			"caller":   args.Get(0),
			"amount":   amt,
			"preimage": args.Get(3),
		}, &resp,
	)
	if err != nil {
		return err
	}

	printRespJSON(resp)

	return nil
}

var cancelAuctionCommand = cli.Command{
	Name:      "cancelauction",
	Usage:     "cancel an auction and recover the unsold amount",
	ArgsUsage: "maker auction_id",
	Action:    cancelAuction,
}

func cancelAuction(ctx *cli.Context) error {
	args := ctx.Args()
	if ctx.NArg() != 2 {
		return cli.ShowCommandHelp(ctx, "cancelauction")
	}

	return getClient(ctx).call(
		http.MethodPost, "/v1/auctions/"+args.Get(1)+"/cancel",
		map[string]string{"caller": args.Get(0)}, nil,
	)
}
