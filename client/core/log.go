// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package core

import (
	"decred.org/multiswap/client/discovery"
	"decred.org/multiswap/client/exchange"
	"decred.org/multiswap/dex"
)

// log is a logger that is initialized with no output filters. This means the
// package will not perform any logging by default until the caller requests it.
var log = dex.Disabled

// DisableLog disables all library log output. Logging output is disabled
// by default until UseLogger is called.
func DisableLog() {
	log = dex.Disabled
}

// UseLogger uses a specified Logger to output package logging info.
func UseLogger(logger dex.Logger) {
	log = logger
}

// UseLoggerMaker sets the loggers of core and the services it depends on.
func UseLoggerMaker(maker *dex.LoggerMaker) {
	log = maker.Logger("CORE")
	exchange.UseLogger(maker.Logger("XCHG"))
	discovery.UseLogger(maker.Logger("DSCV"))
}
