package main

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/urfave/cli"
)

func parseAmt(text string) (uint64, error) {
	amt, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amt value")
	}

	return amt, nil
}

var createLockCommand = cli.Command{
	Name:      "createlock",
	Usage:     "lock funds under a hashlock and timelock",
	ArgsUsage: "maker token amt hashlock",
	Description: `
	Takes the amount out of the maker's balance and holds it until the
	preimage of the hashlock is presented, or until the recovery deadline
	passes and the maker refunds.

	The hashlock is the hex encoded sha256 hash of the claim preimage.`,
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "receiver",
			Usage: "the designated claim recipient",
		},
		cli.StringFlag{
			Name: "resolver",
			Usage: "the privileged claimant of the exclusivity " +
				"window",
		},
		cli.DurationFlag{
			Name: "exclusive",
			Usage: "length of the resolver-only claim window, " +
				"measured from now",
		},
		cli.DurationFlag{
			Name: "recovery",
			Usage: "time until the lock becomes refundable, " +
				"measured from now",
			Value: 24 * time.Hour,
		},
		cli.StringFlag{
			Name:  "intent",
			Usage: "the settlement intent to tie the lock to",
		},
	},
	Action: createLock,
}

func createLock(ctx *cli.Context) error {
	args := ctx.Args()
	if ctx.NArg() != 4 {
		return cli.ShowCommandHelp(ctx, "createlock")
	}

	amt, err := parseAmt(args.Get(2))
	if err != nil {
		return err
	}

	now := time.Now()
	req := map[string]interface{}{
		"maker":             args.Get(0),
		"token":             args.Get(1),
		"amount":            amt,
		"hashlock":          args.Get(3),
		"receiver":          ctx.String("receiver"),
		"resolver":          ctx.String("resolver"),
		"timelock_recovery": now.Add(ctx.Duration("recovery")),
		"intent_id":         ctx.String("intent"),
	}
	if ctx.IsSet("exclusive") {
		req["timelock_exclusive"] = now.Add(ctx.Duration("exclusive"))
	}

	var resp map[string]uint64
	err = getClient(ctx).call(
		http.MethodPost, "/v1/escrow/locks", req, &resp,
	)
	if err != nil {
		return err
	}

	printRespJSON(resp)

	return nil
}

var getLockCommand = cli.Command{
	Name:      "getlock",
	Usage:     "show an escrow lock",
	ArgsUsage: "lock_id",
	Action:    getLock,
}

func getLock(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "getlock")
	}

	var resp map[string]interface{}
	err := getClient(ctx).call(
		http.MethodGet, "/v1/escrow/locks/"+ctx.Args().First(), nil,
		&resp,
	)
	if err != nil {
		return err
	}

	printRespJSON(resp)

	return nil
}

var assignResolverCommand = cli.Command{
	Name:      "assignresolver",
	Usage:     "assign the privileged claimant of a lock",
	ArgsUsage: "lock_id resolver",
	Description: `
	Names the resolver of a lock that was created without one. The first
	assignment wins, later assignments are ignored.`,
	Action: assignResolver,
}

func assignResolver(ctx *cli.Context) error {
	args := ctx.Args()
	if ctx.NArg() != 2 {
		return cli.ShowCommandHelp(ctx, "assignresolver")
	}

	return getClient(ctx).call(
		http.MethodPost, "/v1/escrow/locks/"+args.Get(0)+"/resolver",
		map[string]string{"resolver": args.Get(1)}, nil,
	)
}

var claimCommand = cli.Command{
	Name:      "claim",
	Usage:     "claim a lock with its preimage",
	ArgsUsage: "caller lock_id preimage",
	Action:    claim,
}

func claim(ctx *cli.Context) error {
	args := ctx.Args()
	if ctx.NArg() != 3 {
		return cli.ShowCommandHelp(ctx, "claim")
	}

	var resp map[string]interface{}
	err := getClient(ctx).call(
		http.MethodPost, "/v1/escrow/locks/"+args.Get(1)+"/claim",
		map[string]string{
			"caller":   args.Get(0),
			"preimage": args.Get(2),
		}, &resp,
	)
	if err != nil {
		return err
	}

	printRespJSON(resp)

	return nil
}

var refundCommand = cli.Command{
	Name:      "refund",
	Usage:     "refund an expired lock back to its maker",
	ArgsUsage: "caller lock_id",
	Action:    refund,
}

func refund(ctx *cli.Context) error {
	args := ctx.Args()
	if ctx.NArg() != 2 {
		return cli.ShowCommandHelp(ctx, "refund")
	}

	var resp map[string]interface{}
	err := getClient(ctx).call(
		http.MethodPost, "/v1/escrow/locks/"+args.Get(1)+"/refund",
		map[string]string{"caller": args.Get(0)}, &resp,
	)
	if err != nil {
		return err
	}

	printRespJSON(resp)

	return nil
}
