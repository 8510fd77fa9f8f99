// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package dex

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

// CleanAndExpandPath expands environment variables, a leading ~ or ~user,
// and cleans the path. Paths from config files and flags go through here.
func CleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}
	path = os.ExpandEnv(path)
	if !strings.HasPrefix(path, "~") {
		return filepath.Clean(path)
	}

	rest := filepath.ToSlash(path[1:])
	userName, tail, _ := strings.Cut(rest, "/")
	var home string
	if userName == "" {
		home, _ = os.UserHomeDir()
	} else if u, err := user.Lookup(userName); err == nil {
		home = u.HomeDir
	}
	if home == "" {
		// Unknown user or no home directory.
		home = "."
	}
	return filepath.Join(home, filepath.FromSlash(tail))
}
