// Package util provides the component loggers and traffic counters shared by
// the signaling, negotiation, transport and relay packages.
package util

import (
	"fmt"

	"github.com/pterm/pterm"
)

func init() {
	pterm.DefaultLogger.ShowTime = true
	pterm.DefaultLogger.TimeFormat = "02 Jan 15:04:05"
	pterm.DefaultLogger.MaxWidth = 1000
}

// Logger writes leveled lines to pterm's default logger, tagged with the
// component that produced them: "[relay] peer 1a2b3c4d joined /call".
type Logger struct {
	scope string
}

// NewLogger returns a logger tagging every line with scope. An empty scope
// logs untagged lines.
func NewLogger(scope string) *Logger {
	return &Logger{scope: scope}
}

// With returns a logger for one instance inside the component, e.g. a single
// call attempt: "[negotiation 1a2b3c4d]".
func (l *Logger) With(id string) *Logger {
	if l.scope == "" {
		return NewLogger(id)
	}
	return NewLogger(l.scope + " " + id)
}

func (l *Logger) line(format string, args []interface{}) string {
	msg := fmt.Sprintf(format, args...)
	if l.scope == "" {
		return msg
	}
	return "[" + l.scope + "] " + msg
}

func (l *Logger) Tracef(format string, args ...interface{}) {
	pterm.DefaultLogger.Trace(l.line(format, args))
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	pterm.DefaultLogger.Debug(l.line(format, args))
}

func (l *Logger) Infof(format string, args ...interface{}) {
	pterm.DefaultLogger.Info(l.line(format, args))
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	pterm.DefaultLogger.Warn(l.line(format, args))
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	pterm.DefaultLogger.Error(l.line(format, args))
}

// Untagged logging for the command line front end.

var cli = NewLogger("")

func LogDebug(format string, args ...interface{})   { cli.Debugf(format, args...) }
func LogInfo(format string, args ...interface{})    { cli.Infof(format, args...) }
func LogWarning(format string, args ...interface{}) { cli.Warnf(format, args...) }
func LogError(format string, args ...interface{})   { cli.Errorf(format, args...) }

// EnableDebug configures the logger to show debug messages, including pion's
// demoted info output.
func EnableDebug() {
	pterm.DefaultLogger.Level = pterm.LogLevelDebug
}
