package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/robert-malhotra/swiftserve/internal/config"
)

// newLogger builds a leveled logger writing to w in the configured format.
func newLogger(w io.Writer, c config.LogConfig) (log.Logger, error) {
	var logger log.Logger
	switch c.Format {
	case "", config.FormatLogfmt:
		logger = log.NewLogfmtLogger(log.NewSyncWriter(w))
	case config.FormatJSON:
		logger = log.NewJSONLogger(log.NewSyncWriter(w))
	default:
		return nil, fmt.Errorf("unknown log format %q", c.Format)
	}

	var allow level.Option
	switch strings.ToLower(c.Level) {
	case "debug":
		allow = level.AllowDebug()
	case "", "info":
		allow = level.AllowInfo()
	case "warn", "warning":
		allow = level.AllowWarn()
	case "error":
		allow = level.AllowError()
	case "none":
		allow = level.AllowNone()
	default:
		return nil, fmt.Errorf("unknown log level %q", c.Level)
	}

	logger = level.NewFilter(logger, allow)
	return log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller), nil
}
