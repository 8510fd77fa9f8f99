// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package dex

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/decred/slog"
)

// DefaultLogLevel is the level used for subsystems that have not been
// assigned a level explicitly.
const DefaultLogLevel = slog.LevelInfo

// Every backend constructor will accept a Logger. All logging should take place
// through the provided logger.
type Logger = slog.Logger

// Disabled is a Logger that will never output anything.
var Disabled Logger = slog.Disabled

// LoggerMaker allows creation of new log subsystems with predefined levels.
type LoggerMaker struct {
	*slog.Backend
	DefaultLevel slog.Level
	Levels       map[string]slog.Level
}

// NewLoggerMaker parses the debug level string into a new *LoggerMaker. The
// debugLevel string can specify a single verbosity for all loggers, or a
// comma-separated list of SUBSYSTEM=level pairs, e.g.
// "info,CORE=debug,BTC=trace".
func NewLoggerMaker(writer io.Writer, debugLevel string, utc bool) (*LoggerMaker, error) {
	var opts []slog.BackendOption
	if utc {
		opts = append(opts, slog.WithFlags(slog.LUTC))
	}
	lm := &LoggerMaker{
		Backend:      slog.NewBackend(writer, opts...),
		Levels:       make(map[string]slog.Level),
		DefaultLevel: DefaultLogLevel,
	}

	for _, pair := range strings.Split(debugLevel, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		if !strings.Contains(pair, "=") {
			lvl, ok := slog.LevelFromString(pair)
			if !ok {
				return nil, fmt.Errorf("unknown log level %q", pair)
			}
			lm.DefaultLevel = lvl
			continue
		}
		fields := strings.Split(pair, "=")
		if len(fields) != 2 {
			return nil, fmt.Errorf("malformed subsystem log level %q", pair)
		}
		subsys, lvlStr := strings.ToUpper(fields[0]), fields[1]
		lvl, ok := slog.LevelFromString(lvlStr)
		if !ok {
			return nil, fmt.Errorf("unknown log level %q for subsystem %s", lvlStr, subsys)
		}
		lm.Levels[subsys] = lvl
	}
	return lm, nil
}

// SetLevelsFromMap sets all logs for certain subsystems with the same name to
// the corresponding log level in the map. Levels already set with the debug
// level string are not overwritten.
func (lm *LoggerMaker) SetLevelsFromMap(lvls map[string]slog.Level) {
	for name, lvl := range lvls {
		if _, set := lm.Levels[name]; !set {
			lm.Levels[name] = lvl
		}
	}
}

// Logger creates a logger with the provided name, using the log level for
// that name if it was set, otherwise the default log level.
func (lm *LoggerMaker) Logger(name string) Logger {
	lvl, ok := lm.Levels[name]
	if !ok {
		lvl = lm.DefaultLevel
	}
	return lm.NewLogger(name, lvl)
}

// SubLogger creates a Logger with a subsystem name "parent[name]", using any
// known log level for the parent subsystem, defaulting to the DefaultLevel if
// the parent does not have an explicitly set level.
func (lm *LoggerMaker) SubLogger(parent, name string) Logger {
	// Use the parent logger's log level, if set.
	level, ok := lm.Levels[parent]
	if !ok {
		level = lm.DefaultLevel
	}
	logger := lm.Backend.Logger(fmt.Sprintf("%s[%s]", parent, name))
	logger.SetLevel(level)
	return logger
}

// NewLogger creates a new Logger for the subsystem with the given name. If a
// log level is specified, it is used for the Logger. Otherwise the DefaultLevel
// is used.
func (lm *LoggerMaker) NewLogger(name string, level ...slog.Level) Logger {
	lvl := lm.DefaultLevel
	if len(level) > 0 {
		lvl = level[0]
	}
	logger := lm.Backend.Logger(name)
	logger.SetLevel(lvl)
	return logger
}

// StdOutLogger creates a Logger with the provided name with lvl as the log
// level that prints to standard out. Used mostly by tests.
func StdOutLogger(name string, lvl slog.Level, utc ...bool) Logger {
	var opts []slog.BackendOption
	if len(utc) > 0 && utc[0] {
		opts = append(opts, slog.WithFlags(slog.LUTC))
	}
	backend := slog.NewBackend(os.Stdout, opts...)
	logger := backend.Logger(name)
	logger.SetLevel(lvl)
	return logger
}
