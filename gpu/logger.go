package gpu

import (
	"log/slog"

	"github.com/gostab/undistort"
)

// slogger returns the current package logger. All logging in gpu goes
// through this function; configuration is shared with the root package
// via undistort.SetLogger.
func slogger() *slog.Logger { return undistort.Logger() }
