package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/urfave/cli"
	"github.com/xswaplabs/xswap"
)

// defaultTimeout bounds every call to the daemon.
const defaultTimeout = 30 * time.Second

func printRespJSON(resp interface{}) {
	jsonStr, err := json.MarshalIndent(resp, "", "    ")
	if err != nil {
		fmt.Println("unable to encode response: ", err)
		return
	}

	fmt.Println(string(jsonStr))
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[xswap] %v\n", err)
	os.Exit(1)
}

func main() {
	app := cli.NewApp()

	app.Version = xswap.Version()
	app.Name = "xswap"
	app.Usage = "control plane for your xswapd"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "restserver",
			Value: "localhost:8180",
			Usage: "xswapd daemon address host:port",
		},
	}
	app.Commands = []cli.Command{
		depositCommand, balanceCommand,
		createLockCommand, getLockCommand, assignResolverCommand,
		claimCommand, refundCommand,
		createAuctionCommand, getAuctionCommand, rateCommand,
		fillCommand, cancelAuctionCommand,
		registerSolverCommand, updateSolverCommand,
		deactivateSolverCommand, listSolversCommand, getSolverCommand,
		requestQuoteCommand, generateQuoteCommand, executeOrderCommand,
		getOrderCommand, getIntentCommand, statsCommand,
	}

	err := app.Run(os.Args)
	if err != nil {
		fatal(err)
	}
}

// restClient is a minimal JSON client against the daemon's REST listener.
type restClient struct {
	base string
	http *http.Client
}

func getClient(ctx *cli.Context) *restClient {
	return &restClient{
		base: "http://" + ctx.GlobalString("restserver"),
		http: &http.Client{Timeout: defaultTimeout},
	}
}

// call performs a request against the daemon, decoding the JSON response
// into resp when it is non-nil. Error responses are surfaced with the
// daemon's error message.
func (c *restClient) call(method, path string, req,
	resp interface{}) error {

	var body bytes.Buffer
	if req != nil {
		if err := json.NewEncoder(&body).Encode(req); err != nil {
			return err
		}
	}

	httpReq, err := http.NewRequest(method, c.base+path, &body)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(httpResp.Body).Decode(&errResp); err == nil &&
			errResp.Error != "" {

			return fmt.Errorf("daemon: %v", errResp.Error)
		}

		return fmt.Errorf("daemon: http %v", httpResp.StatusCode)
	}

	if resp == nil {
		return nil
	}

	return json.NewDecoder(httpResp.Body).Decode(resp)
}

var depositCommand = cli.Command{
	Name:      "deposit",
	Usage:     "seed an account balance in the daemon wallet",
	ArgsUsage: "account token amount",
	Action:    deposit,
}

func deposit(ctx *cli.Context) error {
	args := ctx.Args()
	if ctx.NArg() != 3 {
		return cli.ShowCommandHelp(ctx, "deposit")
	}

	amt, err := parseAmt(args.Get(2))
	if err != nil {
		return err
	}

	var resp map[string]uint64
	err = getClient(ctx).call(
		http.MethodPost, "/v1/wallet/deposit", map[string]interface{}{
			"account": args.Get(0),
			"token":   args.Get(1),
			"amount":  amt,
		}, &resp,
	)
	if err != nil {
		return err
	}

	printRespJSON(resp)

	return nil
}

var balanceCommand = cli.Command{
	Name:      "balance",
	Usage:     "show an account balance",
	ArgsUsage: "account token",
	Action:    balance,
}

func balance(ctx *cli.Context) error {
	args := ctx.Args()
	if ctx.NArg() != 2 {
		return cli.ShowCommandHelp(ctx, "balance")
	}

	var resp map[string]uint64
	err := getClient(ctx).call(
		http.MethodGet, "/v1/wallet/balance?account="+args.Get(0)+
			"&token="+args.Get(1), nil, &resp,
	)
	if err != nil {
		return err
	}

	printRespJSON(resp)

	return nil
}

var statsCommand = cli.Command{
	Name:   "stats",
	Usage:  "show quote pipeline counters",
	Action: stats,
}

func stats(ctx *cli.Context) error {
	var resp map[string]uint64
	err := getClient(ctx).call(
		http.MethodGet, "/v1/quotes/stats", nil, &resp,
	)
	if err != nil {
		return err
	}

	printRespJSON(resp)

	return nil
}
