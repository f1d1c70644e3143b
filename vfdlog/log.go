// Package vfdlog is the logging facade used throughout this module. It
// mirrors the teacher's fs.Debugf/fs.Infof/fs.Errorf calling convention
// (an object plus a format string) but is backed by logrus instead of a
// hand-rolled logger.
package vfdlog

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Object is anything nameable in a log line: a VFD, a slot, a back-end.
type Object interface {
	String() string
}

var std = logrus.New()

func init() {
	std.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// SetLevel adjusts the facade's verbosity.
func SetLevel(level logrus.Level) {
	std.SetLevel(level)
}

func line(o Object, format string, args []interface{}) string {
	msg := fmt.Sprintf(format, args...)
	if o == nil {
		return msg
	}
	return fmt.Sprintf("%s: %s", o.String(), msg)
}

// Debugf logs at debug level (remote dials, the RLIMIT_NOFILE clamp).
func Debugf(o Object, format string, args ...interface{}) {
	std.Debug(line(o, format, args))
}

// Infof logs at info level.
func Infof(o Object, format string, args ...interface{}) {
	std.Info(line(o, format, args))
}

// Errorf logs at error level; vfdctl uses it to report a failed command.
func Errorf(o Object, format string, args ...interface{}) {
	std.Error(line(o, format, args))
}

// Warnf logs at warning level — used by abort/exit cleanup paths that
// must downgrade back-end errors rather than fail the cleanup itself
// (spec §7 propagation policy).
func Warnf(o Object, format string, args ...interface{}) {
	std.Warn(line(o, format, args))
}

// StringObject adapts a bare string to Object for log calls that have
// no natural receiver.
type StringObject string

// String implements Object.
func (s StringObject) String() string { return string(s) }
