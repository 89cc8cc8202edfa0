// Package elog is the logging facade shared by all three binaries: a
// small Logger interface backed by logrus, writing text lines (or JSON
// when asked to), with warnings and errors colorized by fatih/color and
// a bounded in-memory mirror of the most recent lines for local
// debugging.
package elog

import (
	"io"
	"os"

	"github.com/armon/circbuf"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// Logger is the interface every package in this repo logs through.
type Logger interface {
	Debugf(format string, x ...interface{})
	Infof(format string, x ...interface{})
	Warnf(format string, x ...interface{})
	Errorf(format string, x ...interface{})
	Printf(format string, x ...interface{})
	IsDebugEnabled() bool
}

// ringCapacity bounds the in-memory mirror of recent log lines.
const ringCapacity = 64 * 1024

// CLI is the concrete Logger used by cmd/disk and cmd/fsd.
// It owns one logrus.Logger instance, a session id attached to every
// line, and a fixed-capacity ring buffer of recently written bytes.
type CLI struct {
	SessionID string
	IsDebug   bool

	log *logrus.Logger
	ring *circbuf.Buffer
}

// New builds a CLI logger writing to file (typically fs.log/disk.log)
// as well as the bounded ring. When jsonOutput is true a logrus JSON
// formatter is used; otherwise a text formatter with full timestamps.
func New(file io.Writer, jsonOutput bool, debug bool) *CLI {
	ring, _ := circbuf.NewBuffer(ringCapacity) // fixed capacity, never fails for a positive size

	l := logrus.New()
	l.SetOutput(io.MultiWriter(file, ring))
	if debug {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	if jsonOutput {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return &CLI{
		SessionID: uuid.New().String(),
		IsDebug:   debug,
		log:       l,
		ring:      ring,
	}
}

// Stderr wraps os.Stderr in a colorable writer when attached to a
// terminal, matching the teacher's isatty/colorable pairing used to
// decide whether ANSI escapes are safe to emit.
func Stderr() io.Writer {
	if isatty.IsTerminal(os.Stderr.Fd()) {
		return colorable.NewColorableStderr()
	}
	return colorable.NewNonColorable(os.Stderr)
}

func (c *CLI) entry() *logrus.Entry {
	return c.log.WithField("session", c.SessionID)
}

// Debugf logs at debug level, visible only when IsDebug is set.
func (c *CLI) Debugf(format string, x ...interface{}) { c.entry().Debugf(format, x...) }

// Infof logs at info level.
func (c *CLI) Infof(format string, x ...interface{}) { c.entry().Infof(format, x...) }

// Warnf logs at warn level, colorized yellow on an interactive CLI.
func (c *CLI) Warnf(format string, x ...interface{}) {
	c.entry().Warnf(color.YellowString(format), x...)
}

// Errorf logs at error level, colorized red on an interactive CLI.
func (c *CLI) Errorf(format string, x ...interface{}) {
	c.entry().Errorf(color.RedString(format), x...)
}

// Printf logs at info level unconditionally (used for user-facing
// status lines that aren't gated by verbosity).
func (c *CLI) Printf(format string, x ...interface{}) { c.entry().Printf(format, x...) }

// IsDebugEnabled reports whether debug-level logging is active.
func (c *CLI) IsDebugEnabled() bool { return c.log.IsLevelEnabled(logrus.DebugLevel) }

// Recent returns a copy of the most recently logged bytes, bounded by
// ringCapacity, for local "what just happened" inspection.
func (c *CLI) Recent() []byte {
	return append([]byte(nil), c.ring.Bytes()...)
}
