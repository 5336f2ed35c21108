package util

import (
	"github.com/pion/logging"
)

// PionLoggerFactory routes pion's internal logs (ICE, DTLS, SCTP, ...) into
// the pterm logger under a "pion/<scope>" tag. Trace and debug output is only
// printed in debug mode; pion's info chatter is demoted to debug so it does
// not drown call events.
type PionLoggerFactory struct{}

var _ logging.LoggerFactory = PionLoggerFactory{}

// NewLogger implements logging.LoggerFactory.
func (PionLoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return &pionLogger{log: NewLogger("pion/" + scope)}
}

type pionLogger struct {
	log *Logger
}

func (l *pionLogger) Trace(msg string) { l.log.Tracef("%s", msg) }
func (l *pionLogger) Debug(msg string) { l.log.Debugf("%s", msg) }
func (l *pionLogger) Info(msg string)  { l.log.Debugf("%s", msg) }
func (l *pionLogger) Warn(msg string)  { l.log.Warnf("%s", msg) }
func (l *pionLogger) Error(msg string) { l.log.Errorf("%s", msg) }

func (l *pionLogger) Tracef(format string, args ...interface{}) { l.log.Tracef(format, args...) }
func (l *pionLogger) Debugf(format string, args ...interface{}) { l.log.Debugf(format, args...) }
func (l *pionLogger) Infof(format string, args ...interface{})  { l.log.Debugf(format, args...) }
func (l *pionLogger) Warnf(format string, args ...interface{})  { l.log.Warnf(format, args...) }
func (l *pionLogger) Errorf(format string, args ...interface{}) { l.log.Errorf(format, args...) }
