// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package app

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"decred.org/multiswap/client/core"
	"decred.org/multiswap/client/exchange"
	"decred.org/multiswap/client/webserver"
	"decred.org/multiswap/dex"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/jessevdk/go-flags"
)

// Version is the application version.
const Version = "0.1.0"

const (
	defaultMainnetHost = "127.0.0.1"
	defaultTestnetHost = "127.0.0.2"
	defaultSimnetHost  = "127.0.0.3"
	defaultWebPort     = "5760"
	defaultLogLevel    = "debug"
	configFilename     = "swapc.conf"
	walletsFilename    = "wallets.conf"
)

var (
	defaultApplicationDirectory = btcutil.AppDataDir("swapc", false)
	defaultConfigPath           = filepath.Join(defaultApplicationDirectory, configFilename)
)

// CoreConfig encapsulates the settings specific to core.Core.
type CoreConfig struct {
	DBPath       string        `long:"db" description:"Database filepath. Database will be created if it does not exist."`
	WalletsPath  string        `long:"wallets" description:"Path to the INI file describing the wallets."`
	PollInterval time.Duration `long:"pollinterval" description:"How often to check order and transaction status, e.g. 30s."`
	// Net is a derivative field set by ResolveConfig.
	Net dex.Network
}

// ExchangeConfig is the configuration of the swap provider's API client.
type ExchangeConfig struct {
	ExchangeURL       string  `long:"exchangeurl" description:"Base URL of the swap provider API."`
	ExchangeAPIKey    string  `long:"exchangekey" description:"API key for the swap provider."`
	RequestsPerSecond float64 `long:"exchangerps" description:"Maximum requests per second to the swap provider."`
}

// WebConfig encapsulates the configuration needed for the web server.
type WebConfig struct {
	WebAddr   string `long:"webaddr" description:"HTTP server address"`
	WebIndent bool   `long:"webindent" description:"Indent JSON responses."`
}

// LogConfig encapsulates the logging-related settings.
type LogConfig struct {
	LogPath    string `long:"logpath" description:"A file to save app logs"`
	DebugLevel string `long:"log" description:"Logging level {trace, debug, info, warn, error, critical}"`
	LocalLogs  bool   `long:"loglocal" description:"Use local time zone time stamps in log entries."`
}

// Config is the common application configuration definition.
type Config struct {
	CoreConfig
	ExchangeConfig
	WebConfig
	LogConfig
	// AppData and ConfigPath should be parsed from the command-line, as it
	// makes no sense to set these in the config file itself. If no values
	// are assigned, defaults will be used.
	AppData    string `long:"appdata" description:"Path to application directory."`
	ConfigPath string `long:"config" description:"Path to an INI configuration file."`
	// Testnet and Simnet are used to set the derivative CoreConfig.Net
	// dex.Network field.
	Testnet bool `long:"testnet" description:"use testnet"`
	Simnet  bool `long:"simnet" description:"use simnet"`
	ShowVer bool `short:"V" long:"version" description:"Display version information and exit"`
}

// Web creates a configuration for the webserver.
func (cfg *Config) Web(c *core.Core) *webserver.Config {
	return &webserver.Config{
		Core:   c,
		Addr:   cfg.WebAddr,
		Indent: cfg.WebIndent,
	}
}

// Exchange creates a configuration for the swap provider client.
func (cfg *Config) Exchange() *exchange.Config {
	return &exchange.Config{
		URL:               cfg.ExchangeURL,
		APIKey:            cfg.ExchangeAPIKey,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}
}

// DefaultConfig is the Config before any files or arguments are parsed.
var DefaultConfig = Config{
	AppData:    defaultApplicationDirectory,
	ConfigPath: defaultConfigPath,
	LogConfig:  LogConfig{DebugLevel: defaultLogLevel},
	CoreConfig: CoreConfig{PollInterval: core.DefaultPollInterval},
}

// ParseCLIConfig parses the command-line arguments into the provided struct
// with go-flags tags. If the --help flag has been passed, the struct is
// described back to the terminal and the program exits using os.Exit.
func ParseCLIConfig(cfg any) error {
	preParser := flags.NewParser(cfg, flags.HelpFlag|flags.PassDoubleDash|flags.IgnoreUnknown)
	_, flagerr := preParser.Parse()
	if flagerr != nil {
		e, ok := flagerr.(*flags.Error)
		if ok && e.Type == flags.ErrHelp {
			preParser.WriteHelp(os.Stdout)
			os.Exit(0)
		}
		preParser.WriteHelp(os.Stderr)
		return flagerr
	}
	return nil
}

// ResolveCLIConfigPaths resolves the app data directory path and the
// configuration file path from the CLI config, (presumably parsed with
// ParseCLIConfig).
func ResolveCLIConfigPaths(cfg *Config) (appData, configPath string) {
	// If the app directory has been changed, replace shortcut chars such
	// as "~" with the full path.
	if cfg.AppData != defaultApplicationDirectory {
		cfg.AppData = dex.CleanAndExpandPath(cfg.AppData)
		// If the app directory has been changed, but the config file path
		// hasn't, reform the config file path with the new directory.
		if cfg.ConfigPath == defaultConfigPath {
			cfg.ConfigPath = filepath.Join(cfg.AppData, configFilename)
		}
	}
	cfg.ConfigPath = dex.CleanAndExpandPath(cfg.ConfigPath)
	return cfg.AppData, cfg.ConfigPath
}

// ParseFileConfig parses the INI file into the provided struct with go-flags
// tags. The args are then parsed, and take precedence over the file values.
// Positional arguments are returned.
func ParseFileConfig(path string, cfg any, args []string) ([]string, error) {
	parser := flags.NewParser(cfg, flags.Default)
	err := flags.NewIniParser(parser).ParseFile(path)
	if err != nil {
		if _, ok := err.(*os.PathError); !ok {
			fmt.Fprintln(os.Stderr, err)
			parser.WriteHelp(os.Stderr)
			return nil, err
		}
		// Missing file is not an error.
	}

	// Parse command line options again to ensure they take precedence.
	rest, err := parser.ParseArgs(args)
	if err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			parser.WriteHelp(os.Stderr)
		}
		return nil, err
	}
	return rest, nil
}

// ResolveConfig sets derivative fields of the Config struct using the specified
// app data directory (presumably returned from ResolveCLIConfigPaths). Some
// unset values are given defaults.
func ResolveConfig(appData string, cfg *Config) error {
	if cfg.Simnet && cfg.Testnet {
		return fmt.Errorf("simnet and testnet cannot both be specified")
	}
	if cfg.PollInterval < 0 {
		return fmt.Errorf("negative poll interval %s", cfg.PollInterval)
	}

	cfg.AppData = appData

	var netName string
	switch {
	case cfg.Testnet:
		cfg.Net, netName = dex.Testnet, "testnet"
	case cfg.Simnet:
		cfg.Net, netName = dex.Simnet, "simnet"
	default:
		cfg.Net, netName = dex.Mainnet, "mainnet"
	}
	defaultDBPath, defaultLogPath, err := setNet(appData, netName)
	if err != nil {
		return err
	}

	if cfg.WebAddr == "" {
		cfg.WebAddr = net.JoinHostPort(DefaultHostByNetwork(cfg.Net), defaultWebPort)
	}
	if cfg.DBPath == "" {
		cfg.DBPath = defaultDBPath
	}
	if cfg.LogPath == "" {
		cfg.LogPath = defaultLogPath
	}
	if cfg.WalletsPath == "" {
		cfg.WalletsPath = filepath.Join(appData, walletsFilename)
	}
	cfg.WalletsPath = dex.CleanAndExpandPath(cfg.WalletsPath)
	return nil
}

// setNet creates the directory for the network and its logs. It returns
// the paths for the database file and the log file.
func setNet(applicationDirectory, net string) (dbPath, logPath string, err error) {
	netDirectory := filepath.Join(applicationDirectory, net)
	logDirectory := filepath.Join(netDirectory, "logs")
	if err := os.MkdirAll(logDirectory, 0700); err != nil {
		return "", "", fmt.Errorf("failed to create log directory: %w", err)
	}
	return filepath.Join(netDirectory, "swapc.db"), filepath.Join(logDirectory, "swapc.log"), nil
}

// DefaultHostByNetwork accepts configured network and returns the network
// specific default host
func DefaultHostByNetwork(network dex.Network) string {
	switch network {
	case dex.Testnet:
		return defaultTestnetHost
	case dex.Simnet:
		return defaultSimnetHost
	default:
		return defaultMainnetHost
	}
}
