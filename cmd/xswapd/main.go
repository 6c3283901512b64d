package main

import (
	"fmt"
	"os"

	"github.com/xswaplabs/xswap/xswapd"
)

func main() {
	err := xswapd.Start()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
