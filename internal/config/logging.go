package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// LevelTrace sits below [slog.LevelDebug] and is reserved for wire
// forensics: full request and response payloads exchanged with the
// DNS provider and the assistant service. -8 matches the spacing slog
// uses between its own levels.
//
// Trace output includes message bodies, so keep it off outside of
// debugging sessions.
const LevelTrace = slog.Level(-8)

// ParseLogLevel maps a config string onto an [slog.Level]. Matching is
// case-insensitive and ignores surrounding whitespace; the empty
// string means Info.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q (valid: trace, debug, info, warn, error)", s)
}

// ReplaceLogLevelNames is a ReplaceAttr function that labels
// [LevelTrace] records as "TRACE". slog knows nothing about custom
// levels and would otherwise print "DEBUG-4".
func ReplaceLogLevelNames(groups []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if level, ok := a.Value.Any().(slog.Level); ok && level == LevelTrace {
		a.Value = slog.StringValue("TRACE")
	}
	return a
}
