// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package app

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"decred.org/multiswap/dex"
	"github.com/jrick/logrotate/rotator"
)

const (
	maxLogRolls = 16
)

// logWriter implements an io.Writer that outputs to a rotating log file.
type logWriter struct {
	*rotator.Rotator
	stdout io.Writer
}

// Write writes the data in p to the log file.
func (w logWriter) Write(p []byte) (n int, err error) {
	if w.stdout != nil {
		w.stdout.Write(p)
	}
	return w.Rotator.Write(p)
}

// InitLogging initializes the logging rotater to write logs to logFile and
// create roll files in the same directory. The returned function closes the
// rotator and should be called on shutdown.
func InitLogging(logFilename, lvl string, stdout bool, utc bool) (lm *dex.LoggerMaker, closeFn func(), err error) {
	if err := os.MkdirAll(filepath.Dir(logFilename), 0700); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	logRotator, err := rotator.New(logFilename, 32*1024, false, maxLogRolls)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create file rotator: %w", err)
	}
	w := logWriter{Rotator: logRotator}
	if stdout {
		w.stdout = os.Stdout
	}
	lm, err = dex.NewLoggerMaker(w, lvl, utc)
	if err != nil {
		logRotator.Close()
		return nil, nil, fmt.Errorf("failed to create custom logger: %w", err)
	}
	return lm, func() {
		logRotator.Close()
	}, nil
}
