package xswapd

import (
	"io"

	"github.com/btcsuite/btclog"
	"github.com/xswaplabs/xswap/auction"
	"github.com/xswaplabs/xswap/escrow"
	"github.com/xswaplabs/xswap/fusion"
	"github.com/xswaplabs/xswap/swapdb"
)

// Subsystem defines the sub system name of this package.
const Subsystem = "XSWPD"

// log is a logger that is initialized as disabled. This means the package
// will not perform any logging by default until a logger is set.
var log = btclog.Disabled

// setupLoggers initializes all package-global logger variables at the given
// level, writing to w.
func setupLoggers(w io.Writer, level btclog.Level) {
	backend := btclog.NewBackend(w)

	newLogger := func(tag string) btclog.Logger {
		logger := backend.Logger(tag)
		logger.SetLevel(level)
		return logger
	}

	log = newLogger(Subsystem)

	swapdb.UseLogger(newLogger(swapdb.Subsystem))
	escrow.UseLogger(newLogger(escrow.Subsystem))
	auction.UseLogger(newLogger(auction.Subsystem))
	fusion.UseLogger(newLogger(fusion.Subsystem))
}

// logLevel parses the configured debug level, falling back to info for
// unknown values.
func logLevel(debugLevel string) btclog.Level {
	level, ok := btclog.LevelFromString(debugLevel)
	if !ok {
		return btclog.LevelInfo
	}

	return level
}
