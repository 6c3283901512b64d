package xswapd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/btcutil"
)

var (
	xswapDirBase = btcutil.AppDataDir("xswap", false)

	defaultLogLevel   = "info"
	defaultConfigFile = filepath.Join(xswapDirBase, defaultConfigFilename)
)

const (
	defaultConfigFilename = "xswapd.conf"

	defaultRESTListen = "localhost:8180"

	// VerifierPermissive accepts any structurally well formed attestation
	// or signature. Meant for development setups.
	VerifierPermissive = "permissive"

	// VerifierSecp requires valid secp256k1 ECDSA signatures over the
	// sha256 digest of the signed message.
	VerifierSecp = "secp256k1"
)

// Config holds the runtime configuration of the swap daemon.
type Config struct {
	ShowVersion bool   `long:"version" description:"Display version information and exit"`
	RESTListen  string `long:"restlisten" description:"Address to listen on for REST clients"`

	XswapDir   string `long:"xswapdir" description:"The directory for all of the daemon's data."`
	ConfigFile string `long:"configfile" description:"Path to configuration file."`
	DataDir    string `long:"datadir" description:"Directory for the swap database."`

	DebugLevel string `long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical}"`

	Admin    string `long:"admin" description:"Account authorized to manage the solver registry"`
	Verifier string `long:"verifier" description:"Attestation and signature verifier to use" choice:"permissive" choice:"secp256k1"`
}

// DefaultConfig returns all default values for the Config struct.
func DefaultConfig() Config {
	return Config{
		RESTListen: defaultRESTListen,
		XswapDir:   xswapDirBase,
		ConfigFile: defaultConfigFile,
		DataDir:    xswapDirBase,
		DebugLevel: defaultLogLevel,
		Admin:      "admin",
		Verifier:   VerifierPermissive,
	}
}

// Validate cleans up paths in the config provided and validates it.
func Validate(cfg *Config) error {
	// Cleanup any paths before we use them.
	cfg.XswapDir = cleanAndExpandPath(cfg.XswapDir)
	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)

	// The xswap directory overrides the data dir value, make sure they
	// are not both set. We fail here rather than overwriting and
	// potentially confusing the user.
	dataDirSet := cfg.DataDir != xswapDirBase
	xswapDirSet := cfg.XswapDir != xswapDirBase

	if xswapDirSet && dataDirSet {
		return fmt.Errorf("xswapdir overwrites datadir, please only " +
			"set one value")
	}

	if xswapDirSet {
		cfg.DataDir = cfg.XswapDir
	}

	switch cfg.Verifier {
	case VerifierPermissive, VerifierSecp:

	default:
		return fmt.Errorf("unknown verifier %v", cfg.Verifier)
	}

	if cfg.Admin == "" {
		return fmt.Errorf("admin account must be set")
	}

	// If the data directory does not exist, create it.
	if err := os.MkdirAll(cfg.DataDir, os.ModePerm); err != nil {
		return err
	}

	return nil
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}

	// Expand initial ~ to OS specific home directory.
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[1:])
		}
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}
