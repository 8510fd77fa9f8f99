// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// swapc runs swundles of cross-chain swaps from a set of wallets. With no
// command it serves the web API. Commands:
//
//	status              list swundles and swap statuses
//	restore <file>      import exported or legacy swap state
//	export [file]       write the state of every swundle
//	dismiss [id]        dismiss a swundle, or the latest one
//	remove <id>         delete a swundle
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"time"

	"decred.org/multiswap/client/app"
	"decred.org/multiswap/client/core"
	"decred.org/multiswap/client/db/bolt"
	"decred.org/multiswap/client/exchange"
	"decred.org/multiswap/client/webserver"
	"decred.org/multiswap/dex"
)

// appName defines the application name.
const appName = "swapc"

var log dex.Logger

func main() {
	cfg, args, err := configure()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	if cfg.ShowVer {
		fmt.Printf("%s version %s (Go version %s)\n", appName, app.Version, runtime.Version())
		os.Exit(0)
	}
	if err := run(cfg, args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func configure() (*app.Config, []string, error) {
	// Pre-parse the command line for the appdata and config file locations.
	cfg := app.DefaultConfig
	if err := app.ParseCLIConfig(&cfg); err != nil {
		return nil, nil, err
	}
	appData, configPath := app.ResolveCLIConfigPaths(&cfg)
	args, err := app.ParseFileConfig(configPath, &cfg, os.Args[1:])
	if err != nil {
		return nil, nil, err
	}
	if err := app.ResolveConfig(appData, &cfg); err != nil {
		return nil, nil, err
	}
	return &cfg, args, nil
}

func run(cfg *app.Config, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serve := len(args) == 0
	utc := !cfg.LocalLogs
	logMaker, closeLogger, err := app.InitLogging(cfg.LogPath, cfg.DebugLevel, serve, utc)
	if err != nil {
		return err
	}
	defer closeLogger()
	log = logMaker.Logger("SWAPC")
	log.Infof("%s version %v (Go version %s) starting for network %s", appName, app.Version, runtime.Version(), cfg.Net)

	defer func() {
		if pv := recover(); pv != nil {
			log.Criticalf("Uh-oh! \n\nPanic:\n\n%v\n\nStack:\n\n%v\n\n",
				pv, string(debug.Stack()))
		}
	}()

	core.UseLoggerMaker(logMaker)
	webserver.UseLogger(logMaker.Logger("WEB"))

	wallets, err := app.OpenWallets(cfg.WalletsPath, cfg.Net, app.WalletLogger(logMaker))
	if err != nil {
		return err
	}
	xc, err := exchange.NewClient(cfg.Exchange())
	if err != nil {
		return err
	}
	db, err := bolt.NewDB(cfg.DBPath, logMaker.Logger("DB"))
	if err != nil {
		return fmt.Errorf("error opening database: %w", err)
	}
	dbRunner := dex.NewStartStopWaiter(db)
	dbRunner.Start(ctx)
	defer func() {
		dbRunner.Stop()
		dbRunner.WaitForShutdown()
	}()

	c, err := core.New(&core.Config{
		Wallets:      wallets,
		Exchange:     xc,
		DB:           db,
		PollInterval: cfg.PollInterval,
	})
	if err != nil {
		return fmt.Errorf("error creating core: %w", err)
	}
	if err := c.LoadState(); err != nil {
		return fmt.Errorf("error loading swap state: %w", err)
	}

	if !serve {
		return runCommand(ctx, c, args)
	}

	killChan := make(chan os.Signal, 1)
	signal.Notify(killChan, os.Interrupt)
	go func() {
		<-killChan
		log.Infof("Shutting down...")
		cancel()
	}()

	webSrv, err := webserver.New(cfg.Web(c))
	if err != nil {
		return fmt.Errorf("failed creating web server: %w", err)
	}
	coreRunner := dex.NewStartStopWaiter(c)
	coreRunner.Start(ctx)
	webRunner := dex.NewStartStopWaiter(webSrv)
	webRunner.Start(ctx)

	webRunner.WaitForShutdown()
	cancel()
	coreRunner.WaitForShutdown()
	log.Info("Exiting swapc main.")
	return nil
}

func runCommand(ctx context.Context, c *core.Core, args []string) error {
	cmd, args := args[0], args[1:]
	arg := func(i int) (string, error) {
		if len(args) <= i {
			return "", fmt.Errorf("%s: missing argument", cmd)
		}
		return args[i], nil
	}
	switch cmd {
	case "status":
		printSwundles(c.Swundles())
		return nil
	case "restore":
		path, err := arg(0)
		if err != nil {
			return err
		}
		b, err := os.ReadFile(dex.CleanAndExpandPath(path))
		if err != nil {
			return err
		}
		ids, err := c.RestoreSwundles(ctx, b)
		if err != nil {
			return err
		}
		fmt.Printf("restored %d swundles\n", len(ids))
		for _, id := range ids {
			if sw, err := c.Swundle(id); err == nil {
				printSwundles([]*core.SwundleInfo{sw})
			}
		}
		return nil
	case "export":
		b, err := c.ExportState()
		if err != nil {
			return err
		}
		if len(args) == 0 {
			_, err = os.Stdout.Write(append(b, '\n'))
			return err
		}
		return os.WriteFile(dex.CleanAndExpandPath(args[0]), b, 0600)
	case "dismiss":
		if len(args) == 0 {
			return c.DismissLatestSwundle()
		}
		return c.DismissSwundle(args[0])
	case "remove":
		id, err := arg(0)
		if err != nil {
			return err
		}
		return c.RemoveSwundle(id)
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func printSwundles(swundles []*core.SwundleInfo) {
	for _, sw := range swundles {
		dismissed := ""
		if sw.Dismissed {
			dismissed = " (dismissed)"
		}
		fmt.Printf("%s %s %s%s\n", sw.ID, sw.CreatedDate.Local().Format(time.DateTime), sw.Status, dismissed)
		for _, s := range sw.Swaps {
			fmt.Printf("  %s %s %s -> %s  %s (%s)\n", s.ID, s.SendUnits, s.SendSymbol, s.ReceiveSymbol, s.Status.Label, s.Status.Code)
		}
	}
}
