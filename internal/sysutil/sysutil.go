// Package sysutil holds small process-level helpers shared by the server
// entrypoint.
package sysutil

import (
	"strings"

	"github.com/rs/zerolog"
)

var levelNames = map[string]zerolog.Level{
	"trace":   zerolog.TraceLevel,
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
	"fatal":   zerolog.FatalLevel,
	"panic":   zerolog.PanicLevel,
}

// ParseLevel maps a level name to a zerolog level. Matching is
// case-insensitive; empty or unknown names resolve to info.
func ParseLevel(lvl string) zerolog.Level {
	if l, ok := levelNames[strings.ToLower(strings.TrimSpace(lvl))]; ok {
		return l
	}
	return zerolog.InfoLevel
}

// SetLogLevel applies the named level to the global zerolog logger.
func SetLogLevel(lvl string) {
	zerolog.SetGlobalLevel(ParseLevel(lvl))
}
