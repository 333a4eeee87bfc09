// Package logging bridges a github.com/sirupsen/logrus.FieldLogger to the
// github.com/pion/logging LeveledLogger/LoggerFactory interfaces consumed
// by pkg/discovery. backkem/matter's pkg/matter/node.go
// injects a pion/logging.LeveledLogger through its whole stack; this module
// carries the same convention so it composes with a pion/WebRTC-based
// transport sharing one logger factory, while the top-level cmd/matterd
// wiring keeps using logrus directly.
package logging

import (
	"fmt"

	"github.com/pion/logging"
	"github.com/sirupsen/logrus"
)

// Factory adapts a logrus.FieldLogger into a pion/logging.LoggerFactory,
// scoping each derived logger under a "component" field.
type Factory struct {
	base logrus.FieldLogger
}

// NewFactory wraps base. If base is nil, logrus.StandardLogger() is used.
func NewFactory(base logrus.FieldLogger) *Factory {
	if base == nil {
		base = logrus.StandardLogger()
	}
	return &Factory{base: base}
}

// NewLogger returns a LeveledLogger scoped to the named component,
// satisfying logging.LoggerFactory.
func (f *Factory) NewLogger(scope string) logging.LeveledLogger {
	return &leveledLogger{entry: f.base.WithField("component", scope)}
}

type leveledLogger struct {
	entry logrus.FieldLogger
}

func (l *leveledLogger) Trace(msg string)                 { l.entry.Debug(msg) }
func (l *leveledLogger) Tracef(format string, a ...any)    { l.entry.Debug(fmt.Sprintf(format, a...)) }
func (l *leveledLogger) Debug(msg string)                  { l.entry.Debug(msg) }
func (l *leveledLogger) Debugf(format string, a ...any)    { l.entry.Debug(fmt.Sprintf(format, a...)) }
func (l *leveledLogger) Info(msg string)                   { l.entry.Info(msg) }
func (l *leveledLogger) Infof(format string, a ...any)     { l.entry.Info(fmt.Sprintf(format, a...)) }
func (l *leveledLogger) Warn(msg string)                   { l.entry.Warn(msg) }
func (l *leveledLogger) Warnf(format string, a ...any)     { l.entry.Warn(fmt.Sprintf(format, a...)) }
func (l *leveledLogger) Error(msg string)                  { l.entry.Error(msg) }
func (l *leveledLogger) Errorf(format string, a ...any)    { l.entry.Error(fmt.Sprintf(format, a...)) }
