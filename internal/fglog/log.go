// Package fglog provides the controller's single package-level structured
// logger, grounded on pkg/util/log's Logger var + go-kit/log/level call
// site convention (level.Info(log.Logger).Log("msg", ..., "key", val)).
package fglog

import (
	"os"

	"github.com/go-kit/log"
)

// Logger is the process-wide structured logger. cmd/fgnhgctl may replace
// it at startup (e.g. to set a log level filter); every other package
// logs through this var rather than constructing its own.
var Logger = log.NewSyncLogger(log.NewLogfmtLogger(os.Stderr))

func init() {
	Logger = log.With(Logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
}
