package config

import (
	"strings"

	"github.com/labstack/gommon/log"
)

// ParseLevel maps LOG_LEVEL to a gommon level, defaulting to INFO.
func ParseLevel(s string) log.Lvl {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return log.DEBUG
	case "warn", "warning":
		return log.WARN
	case "error":
		return log.ERROR
	case "off":
		return log.OFF
	default:
		return log.INFO
	}
}

// NewLogger returns a component logger tagged with prefix.
func NewLogger(prefix, level string) *log.Logger {
	l := log.New(prefix)
	l.SetLevel(ParseLevel(level))
	return l
}
