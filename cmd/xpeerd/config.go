// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	flags "github.com/jessevdk/go-flags"

	"github.com/exccoin-labs/xpeerd/chaincfg"
)

const (
	defaultConfigFilename = "xpeerd.conf"
	defaultLogFilename    = "xpeerd.log"
	defaultLogLevel       = "info"
	defaultChain          = "mainnet"
)

var (
	defaultHomeDir    = appDataDir("xpeerd", false)
	defaultDataDir    = filepath.Join(defaultHomeDir, "data")
	defaultLogDir     = filepath.Join(defaultHomeDir, "logs")
	defaultConfigFile = filepath.Join(defaultHomeDir, defaultConfigFilename)
)

// config defines the configuration options for xpeerd, populated from the
// command line only. ConfigFile holds a path, but no configuration file is
// read.
type config struct {
	ConfigFile string   `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir    string   `short:"b" long:"datadir" description:"Directory to store headers and address manager data"`
	BlocksDir  string   `long:"blocksdir" description:"Directory the external block processor stores full blocks in; recommended to be <datadir>/blocks"`
	LogDir     string   `long:"logdir" description:"Directory to log output"`
	LogLevel   string   `long:"loglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical}"`
	Chain      string   `long:"chain" description:"Network to connect to" choice:"mainnet" choice:"testnet3" choice:"testnet4" choice:"signet" choice:"regtest"`
	RPCListen  string   `long:"rpc" description:"Address:port the integrator's RPC server should listen on (recorded only; xpeerd's core does not run an RPC server itself)"`
	Peers      []string `long:"peer" description:"Peer to connect to in addition to DNS-seeded/address-manager peers; may be specified multiple times"`
	UserAgent  string   `long:"useragent" description:"Extra user agent comment appended to the wire version string"`

	params *chaincfg.Params
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir := filepath.Dir(defaultHomeDir)
		path = filepath.Join(homeDir, path[1:])
	}
	return filepath.Clean(os.ExpandEnv(path))
}

// loadConfig parses the command line flags, applies defaults for anything
// left unset, resolves the active chain parameters, and ensures the data
// directory exists (the log directory is created by initLogRotator).
func loadConfig() (*config, []string, error) {
	cfg := config{
		ConfigFile: defaultConfigFile,
		DataDir:    defaultDataDir,
		LogDir:     defaultLogDir,
		LogLevel:   defaultLogLevel,
		Chain:      defaultChain,
	}

	parser := flags.NewParser(&cfg, flags.Default)
	remainingArgs, err := parser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			os.Exit(0)
		}
		return nil, nil, err
	}

	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)
	if cfg.BlocksDir == "" {
		cfg.BlocksDir = filepath.Join(cfg.DataDir, "blocks")
	} else {
		cfg.BlocksDir = cleanAndExpandPath(cfg.BlocksDir)
	}

	if !setLogLevels(cfg.LogLevel) {
		return nil, nil, fmt.Errorf("invalid loglevel %q", cfg.LogLevel)
	}

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg.params = chaincfg.ParamsForNetwork(cfg.Chain)

	return &cfg, remainingArgs, nil
}

// appDataDir returns an operating system specific directory to be used for
// storing application data.
func appDataDir(appName string, roaming bool) string {
	if appName == "" || appName == "." {
		return "."
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = os.TempDir()
	}
	appName = strings.TrimPrefix(appName, ".")

	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("LOCALAPPDATA")
		if roaming {
			appData = os.Getenv("APPDATA")
		}
		if appData == "" {
			appData = homeDir
		}
		return filepath.Join(appData, appName)

	case "darwin":
		return filepath.Join(homeDir, "Library", "Application Support", appName)

	case "plan9":
		return filepath.Join(homeDir, appName)

	default:
		return filepath.Join(homeDir, "."+appName)
	}
}
